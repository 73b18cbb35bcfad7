package di

import (
	"github.com/aristath/ledger/internal/config"
	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/allocation"
	"github.com/aristath/ledger/internal/modules/marketdata"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/aristath/ledger/internal/modules/transactions"
	"github.com/aristath/ledger/internal/services"
	"github.com/aristath/ledger/internal/store"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// InitializeRepositories creates the database-backed repositories
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.Store = store.NewSQLiteStore(container.LedgerDB.Conn(), log)
	container.Targets = allocation.NewTargetRepository(container.LedgerDB.Conn(), log)
	container.QuoteCache = marketdata.NewQuoteCache(container.CacheDB.Conn(), log)
}

// InitializeServices creates the ledger components and service.
// upstream is the market data source; nil serves an empty offline provider.
func InitializeServices(container *Container, cfg *config.Config, upstream domain.MarketDataProvider, log zerolog.Logger) {
	if upstream == nil {
		upstream = marketdata.NewStaticProvider(nil, nil)
		log.Warn().Msg("No market data provider configured, prices will not refresh")
	}

	limited := marketdata.NewRateLimitedProvider(upstream, cfg.MarketData.RatePerSecond, cfg.MarketData.Burst)
	container.MarketData = marketdata.NewCachingProvider(limited, container.QuoteCache, cfg.QuoteTTL(), log)

	container.Processor = transactions.NewProcessor(log,
		transactions.WithScaleTargetsOnSplit(cfg.Ledger.ScaleTargetsOnSplit),
	)
	container.Aggregator = portfolio.NewAggregator(log)
	container.Analyzer = allocation.NewAnalyzer(allocation.Limits{
		HoldingPct:        decimal.NewFromFloat(cfg.Allocation.HoldingLimitPct),
		SectorPct:         decimal.NewFromFloat(cfg.Allocation.SectorLimitPct),
		DiversifiedMaxPct: decimal.NewFromFloat(cfg.Allocation.DiversifiedMaxSectorPct),
	}, log)

	container.LedgerService = services.NewLedgerService(
		container.Store,
		container.MarketData,
		container.Processor,
		container.Aggregator,
		container.Analyzer,
		container.Targets,
		services.Config{
			ConflictRetries:    cfg.Ledger.ConflictRetries,
			RefreshConcurrency: cfg.Refresh.Concurrency,
			DefaultCurrency:    defaultCurrency(cfg, log),
		},
		log,
	)

	log.Info().Msg("Services initialized")
}

// defaultCurrency returns the configured fallback currency. Load has already validated it.
func defaultCurrency(cfg *config.Config, log zerolog.Logger) domain.Currency {
	code, err := domain.ParseCurrency(cfg.DefaultCurrency)
	if err != nil {
		log.Warn().Err(err).Str("currency", cfg.DefaultCurrency).Msg("Invalid default currency, using EUR")
		return domain.CurrencyEUR
	}
	return code
}
