package marketdata

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// StaticProvider serves prices and company info from memory
type StaticProvider struct {
	mu        sync.RWMutex
	prices    map[string]decimal.Decimal
	companies map[string]domain.CompanyInfo
}

// NewStaticProvider creates a provider from fixed price and company maps. Either may be nil.
func NewStaticProvider(prices map[string]decimal.Decimal, companies map[string]domain.CompanyInfo) *StaticProvider {
	p := &StaticProvider{
		prices:    make(map[string]decimal.Decimal, len(prices)),
		companies: make(map[string]domain.CompanyInfo, len(companies)),
	}
	for s, price := range prices {
		p.prices[s] = price
	}
	for s, info := range companies {
		p.companies[s] = info
	}
	return p
}

// SetPrice sets or replaces the price of a symbol
func (p *StaticProvider) SetPrice(symbol string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prices[symbol] = price
}

// GetCurrentPrice implements domain.MarketDataProvider
func (p *StaticProvider) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, &domain.MarketDataUnavailableError{Symbol: symbol, Err: err}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	price, ok := p.prices[symbol]
	if !ok {
		return decimal.Zero, &domain.MarketDataUnavailableError{Symbol: symbol, Err: errors.New("no price configured")}
	}
	return price, nil
}

// GetCompanyInfo implements domain.MarketDataProvider
func (p *StaticProvider) GetCompanyInfo(ctx context.Context, symbol string) (domain.CompanyInfo, error) {
	if err := ctx.Err(); err != nil {
		return domain.CompanyInfo{}, &domain.MarketDataUnavailableError{Symbol: symbol, Err: err}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.companies[symbol]
	if !ok {
		return domain.CompanyInfo{}, &domain.MarketDataUnavailableError{Symbol: symbol, Err: errors.New("no company info configured")}
	}
	return info, nil
}

// RateLimitedProvider throttles calls to an upstream provider with a token bucket
type RateLimitedProvider struct {
	next    domain.MarketDataProvider
	limiter *rate.Limiter
}

// NewRateLimitedProvider allows perSecond calls per second with the given burst
func NewRateLimitedProvider(next domain.MarketDataProvider, perSecond float64, burst int) *RateLimitedProvider {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// GetCurrentPrice waits for a token and calls the upstream provider
func (p *RateLimitedProvider) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return decimal.Zero, &domain.MarketDataUnavailableError{Symbol: symbol, Err: err}
	}
	return p.next.GetCurrentPrice(ctx, symbol)
}

// GetCompanyInfo waits for a token and calls the upstream provider
func (p *RateLimitedProvider) GetCompanyInfo(ctx context.Context, symbol string) (domain.CompanyInfo, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return domain.CompanyInfo{}, &domain.MarketDataUnavailableError{Symbol: symbol, Err: err}
	}
	return p.next.GetCompanyInfo(ctx, symbol)
}

type cachedPrice struct {
	Price     string `msgpack:"price"`
	FetchedAt int64  `msgpack:"fetched_at"`
}

// CachingProvider is cache-first: a fresh cache entry is returned without calling upstream,
// a miss is fetched and stored, and an upstream failure falls back to a stale entry.
type CachingProvider struct {
	next     domain.MarketDataProvider
	cache    *QuoteCache
	priceTTL time.Duration
	infoTTL  time.Duration
	log      zerolog.Logger
}

// NewCachingProvider wraps next with the quote cache. A zero priceTTL uses TTLCurrentPrice.
func NewCachingProvider(next domain.MarketDataProvider, cache *QuoteCache, priceTTL time.Duration, log zerolog.Logger) *CachingProvider {
	if priceTTL <= 0 {
		priceTTL = TTLCurrentPrice
	}
	return &CachingProvider{
		next:     next,
		cache:    cache,
		priceTTL: priceTTL,
		infoTTL:  TTLCompanyInfo,
		log:      log.With().Str("component", "caching_provider").Logger(),
	}
}

// GetCurrentPrice implements domain.MarketDataProvider
func (p *CachingProvider) GetCurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	var cached cachedPrice
	if ok, err := p.cache.GetIfFresh(KindPrice, symbol, &cached); err != nil {
		p.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to read cached price")
	} else if ok {
		if price, err := decimal.NewFromString(cached.Price); err == nil {
			return price, nil
		}
	}

	price, fetchErr := p.next.GetCurrentPrice(ctx, symbol)
	if fetchErr == nil {
		entry := cachedPrice{Price: price.String(), FetchedAt: p.cache.now().Unix()}
		if err := p.cache.Store(KindPrice, symbol, entry, p.priceTTL); err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache price")
		}
		return price, nil
	}

	if ok, err := p.cache.Get(KindPrice, symbol, &cached); err == nil && ok {
		if price, err := decimal.NewFromString(cached.Price); err == nil {
			p.log.Warn().
				Err(fetchErr).
				Str("symbol", symbol).
				Time("fetched_at", time.Unix(cached.FetchedAt, 0)).
				Msg("Upstream price unavailable, using stale cache")
			return price, nil
		}
	}

	return decimal.Zero, unavailable(symbol, fetchErr)
}

// GetCompanyInfo implements domain.MarketDataProvider
func (p *CachingProvider) GetCompanyInfo(ctx context.Context, symbol string) (domain.CompanyInfo, error) {
	var info domain.CompanyInfo
	if ok, err := p.cache.GetIfFresh(KindCompany, symbol, &info); err == nil && ok {
		return info, nil
	}

	info, fetchErr := p.next.GetCompanyInfo(ctx, symbol)
	if fetchErr == nil {
		if err := p.cache.Store(KindCompany, symbol, info, p.infoTTL); err != nil {
			p.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to cache company info")
		}
		return info, nil
	}

	var stale domain.CompanyInfo
	if ok, err := p.cache.Get(KindCompany, symbol, &stale); err == nil && ok {
		return stale, nil
	}
	return domain.CompanyInfo{}, unavailable(symbol, fetchErr)
}

// unavailable makes sure upstream failures surface as MarketDataUnavailableError
func unavailable(symbol string, err error) error {
	var mdErr *domain.MarketDataUnavailableError
	if errors.As(err, &mdErr) {
		return err
	}
	return &domain.MarketDataUnavailableError{Symbol: symbol, Err: err}
}
