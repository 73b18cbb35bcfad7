// Package transactions validates BUY/SELL/DIVIDEND/SPLIT events and applies them to the
// holdings of one portfolio.
//
// Every operation works on a clone of the holding and only commits it to the arena once
// the mutation and recompute have succeeded, so a failed event leaves the holding exactly
// as it was.
package transactions

import (
	"fmt"
	"time"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/aristath/ledger/internal/modules/lifecycle"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Processor applies transaction events to a holdings arena
type Processor struct {
	log                 zerolog.Logger
	now                 func() time.Time
	newID               func() string
	scaleTargetsOnSplit bool
}

// Option configures a Processor
type Option func(*Processor)

// WithClock overrides the time source used for transaction and update timestamps
func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// WithIDGenerator overrides the id source for new holdings, transactions and dividends
func WithIDGenerator(newID func() string) Option {
	return func(p *Processor) { p.newID = newID }
}

// WithScaleTargetsOnSplit controls whether splits also divide target and stop-loss prices
func WithScaleTargetsOnSplit(scale bool) Option {
	return func(p *Processor) { p.scaleTargetsOnSplit = scale }
}

// NewProcessor creates a transaction processor
func NewProcessor(log zerolog.Logger, opts ...Option) *Processor {
	p := &Processor{
		log:                 log.With().Str("component", "transaction_processor").Logger(),
		now:                 time.Now,
		newID:               uuid.NewString,
		scaleTargetsOnSplit: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Apply dispatches ev by type
func (p *Processor) Apply(arena *holdings.Arena, portfolioID string, ev Event) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch ev.Type {
	case domain.TransactionBuy:
		res, err = p.Buy(arena, portfolioID, ev)
	case domain.TransactionSell:
		res, err = p.Sell(arena, ev)
	case domain.TransactionDividend:
		res, err = p.Dividend(arena, ev)
	case domain.TransactionSplit:
		res, err = p.Split(arena, ev)
	default:
		return nil, &domain.ValidationError{Field: "type", Value: string(ev.Type), Message: "unknown transaction type"}
	}
	if err != nil {
		p.log.Debug().
			Err(err).
			Str("portfolio_id", portfolioID).
			Str("tx_type", string(ev.Type)).
			Str("symbol", ev.Symbol).
			Str("holding_id", ev.HoldingID).
			Msg("Transaction rejected")
		return nil, err
	}

	p.log.Debug().
		Str("portfolio_id", portfolioID).
		Str("tx_type", string(ev.Type)).
		Str("symbol", res.Holding.Symbol).
		Str("quantity", res.Holding.Quantity.String()).
		Msg("Transaction applied")
	return res, nil
}

// Buy adds to the position for ev.Symbol, opening a holding on the first buy and reopening a
// closed one. The average price is the quantity-weighted mean of the old position and the buy.
func (p *Processor) Buy(arena *holdings.Arena, portfolioID string, ev Event) (*Result, error) {
	qty, err := roundedPositive("quantity", ev.Quantity, domain.RoundQuantity)
	if err != nil {
		return nil, err
	}
	price, err := roundedPositive("price", ev.Price, domain.RoundPrice)
	if err != nil {
		return nil, err
	}
	if err := requireNotNegative("fees", ev.Fees); err != nil {
		return nil, err
	}
	if holdings.NormalizeSymbol(ev.Symbol) == "" {
		return nil, &domain.ValidationError{Field: "symbol", Message: "must not be empty"}
	}

	at := p.eventTime(ev)

	var (
		h        *domain.Holding
		created  bool
		reopened bool
	)
	existing, ok := arena.BySymbol(ev.Symbol)
	switch {
	case !ok:
		h = p.newHolding(portfolioID, ev, at)
		created = true
	case existing.Status.IsTerminal():
		h = existing.Clone()
		if err := holdings.Transition(h, domain.HoldingActive, at); err != nil {
			return nil, err
		}
		h.Quantity = decimal.Zero
		h.PreviousClosePrice = decimal.NullDecimal{}
		h.PurchaseDate = at
		reopened = true
	default:
		if err := requireTradable(existing); err != nil {
			return nil, err
		}
		h = existing.Clone()
	}

	oldCost := h.Quantity.Mul(h.AveragePrice)
	newQty := h.Quantity.Add(qty)
	h.AveragePrice = oldCost.Add(qty.Mul(price)).DivRound(newQty, domain.PricePlaces)
	h.Quantity = newQty
	// An open position keeps its market price; only a fresh position starts at the buy price
	if created || reopened {
		h.CurrentPrice = price
	}
	h.LastUpdated = at
	holdings.Recompute(h)

	tx, err := p.record(h, ev, at, qty, price)
	if err != nil {
		return nil, err
	}
	tx.TotalAmount = qty.Mul(price).Add(ev.Fees)

	if err := commit(arena, h); err != nil {
		return nil, err
	}
	return &Result{Holding: h, Transaction: tx, Created: created}, nil
}

// Sell reduces the position. The average price is unchanged; the realized gain on the sold
// quantity is returned and accumulated on the holding. A sell to zero closes the holding.
func (p *Processor) Sell(arena *holdings.Arena, ev Event) (*Result, error) {
	qty, err := roundedPositive("quantity", ev.Quantity, domain.RoundQuantity)
	if err != nil {
		return nil, err
	}
	price, err := roundedPositive("price", ev.Price, domain.RoundPrice)
	if err != nil {
		return nil, err
	}
	if err := requireNotNegative("fees", ev.Fees); err != nil {
		return nil, err
	}

	existing, err := lookup(arena, ev)
	if err != nil {
		return nil, err
	}
	if err := requireTradable(existing); err != nil {
		return nil, err
	}

	if qty.GreaterThan(existing.Quantity) {
		return nil, &domain.InsufficientQuantityError{
			Symbol:    existing.Symbol,
			Available: existing.Quantity,
			Requested: qty,
		}
	}

	at := p.eventTime(ev)
	h := existing.Clone()
	realized := domain.RoundPrice(price.Sub(h.AveragePrice).Mul(qty))

	h.Quantity = h.Quantity.Sub(qty)
	h.CurrentPrice = price
	h.RealizedGainLoss = h.RealizedGainLoss.Add(realized)
	h.LastUpdated = at
	if h.Quantity.IsZero() {
		if err := holdings.Transition(h, domain.HoldingClosed, at); err != nil {
			return nil, err
		}
	}
	holdings.Recompute(h)

	tx, err := p.record(h, ev, at, qty, price)
	if err != nil {
		return nil, err
	}
	tx.TotalAmount = qty.Mul(price).Sub(ev.Fees)
	tx.RealizedGainLoss = realized

	if err := commit(arena, h); err != nil {
		return nil, err
	}
	return &Result{Holding: h, Transaction: tx, RealizedGainLoss: realized}, nil
}

// Dividend books perShare × quantity as income. Quantity, average price and cost basis are
// not affected.
func (p *Processor) Dividend(arena *holdings.Arena, ev Event) (*Result, error) {
	perShare, err := roundedPositive("per_share", ev.PerShare, domain.RoundPrice)
	if err != nil {
		return nil, err
	}

	existing, err := lookup(arena, ev)
	if err != nil {
		return nil, err
	}
	if err := requireTradable(existing); err != nil {
		return nil, err
	}

	at := p.eventTime(ev)
	payDate := ev.PayDate
	if payDate.IsZero() {
		payDate = at
	}
	exDate := ev.ExDate
	if exDate.IsZero() {
		exDate = payDate
	}

	h := existing.Clone()
	amount := domain.RoundPrice(perShare.Mul(h.Quantity))
	h.LastDividendDate = &payDate
	h.LastUpdated = at
	holdings.Recompute(h)

	tx, err := p.record(h, ev, at, h.Quantity, perShare)
	if err != nil {
		return nil, err
	}
	tx.TotalAmount = amount
	tx.ExDate = &exDate
	tx.PayDate = &payDate

	record := &domain.DividendRecord{
		ExDate:        exDate,
		PayDate:       payDate,
		ID:            p.newID(),
		PortfolioID:   h.PortfolioID,
		HoldingID:     h.ID,
		TransactionID: tx.ID,
		Symbol:        h.Symbol,
		PerShare:      perShare,
		Quantity:      h.Quantity,
		Amount:        amount,
	}

	if err := commit(arena, h); err != nil {
		return nil, err
	}
	return &Result{Holding: h, Transaction: tx, Dividend: record}, nil
}

// Split multiplies the quantity by ratio and divides every per-share price by it, keeping
// quantity × average price unchanged within rounding.
func (p *Processor) Split(arena *holdings.Arena, ev Event) (*Result, error) {
	if err := requirePositive("ratio", ev.Ratio); err != nil {
		return nil, err
	}

	existing, err := lookup(arena, ev)
	if err != nil {
		return nil, err
	}
	if err := requireTradable(existing); err != nil {
		return nil, err
	}

	at := p.eventTime(ev)
	h := existing.Clone()
	ratio := ev.Ratio

	h.Quantity = domain.RoundQuantity(h.Quantity.Mul(ratio))
	if existing.Quantity.IsPositive() && !h.Quantity.IsPositive() {
		return nil, domain.NewValidationError("ratio", ratio, "reduces the quantity to zero at stored precision")
	}
	h.AveragePrice = h.AveragePrice.DivRound(ratio, domain.PricePlaces)
	h.CurrentPrice = h.CurrentPrice.DivRound(ratio, domain.PricePlaces)
	h.PreviousClosePrice = scaleNull(h.PreviousClosePrice, ratio)
	if p.scaleTargetsOnSplit {
		h.TargetPrice = scaleNull(h.TargetPrice, ratio)
		h.StopLossPrice = scaleNull(h.StopLossPrice, ratio)
	}
	h.LastUpdated = at
	holdings.Recompute(h)

	tx, err := p.record(h, ev, at, h.Quantity, decimal.Zero)
	if err != nil {
		return nil, err
	}
	tx.SplitRatio = ratio
	tx.TotalAmount = decimal.Zero

	if err := commit(arena, h); err != nil {
		return nil, err
	}
	return &Result{Holding: h, Transaction: tx}, nil
}

func (p *Processor) newHolding(portfolioID string, ev Event, at time.Time) *domain.Holding {
	h := &domain.Holding{
		PurchaseDate: at,
		LastUpdated:  at,
		ID:           p.newID(),
		PortfolioID:  portfolioID,
		Symbol:       holdings.NormalizeSymbol(ev.Symbol),
		Currency:     ev.Currency,
		Type:         domain.AssetTypeUnknown,
		Status:       domain.HoldingActive,
	}
	if info := ev.Info; info != nil {
		h.CompanyName = info.Name
		h.Sector = info.Sector
		h.Country = info.Country
		h.Market = info.Market
		if info.Currency != "" {
			h.Currency = info.Currency
		}
		if info.Type != "" {
			h.Type = info.Type
		}
	}
	return h
}

// record builds the transaction log entry and walks it from PENDING to EXECUTED
func (p *Processor) record(h *domain.Holding, ev Event, at time.Time, qty, price decimal.Decimal) (*domain.Transaction, error) {
	status, err := lifecycle.Advance(domain.TransactionPending, domain.TransactionExecuted)
	if err != nil {
		return nil, fmt.Errorf("failed to advance transaction: %w", err)
	}
	return &domain.Transaction{
		TransactionDate: at,
		ID:              p.newID(),
		PortfolioID:     h.PortfolioID,
		HoldingID:       h.ID,
		Symbol:          h.Symbol,
		Type:            ev.Type,
		Quantity:        qty,
		Price:           price,
		Fees:            ev.Fees,
		Status:          status,
	}, nil
}

func (p *Processor) eventTime(ev Event) time.Time {
	if !ev.Date.IsZero() {
		return ev.Date
	}
	return p.now()
}

func lookup(arena *holdings.Arena, ev Event) (*domain.Holding, error) {
	if ev.HoldingID != "" {
		if h, ok := arena.Get(ev.HoldingID); ok {
			return h, nil
		}
		return nil, &domain.NotFoundError{Entity: "holding", ID: ev.HoldingID}
	}
	if h, ok := arena.BySymbol(ev.Symbol); ok {
		return h, nil
	}
	return nil, &domain.NotFoundError{Entity: "holding", ID: ev.Symbol}
}

// requireTradable rejects events against closed or archived holdings
func requireTradable(h *domain.Holding) error {
	if h.Status.IsTerminal() {
		return &domain.ValidationError{
			Field:   "status",
			Value:   string(h.Status),
			Message: fmt.Sprintf("holding %s does not accept transactions", h.Symbol),
		}
	}
	return nil
}

func requirePositive(field string, v decimal.Decimal) error {
	if !v.IsPositive() {
		return domain.NewValidationError(field, v, "must be positive")
	}
	return nil
}

// roundedPositive rounds v to its stored precision and requires the rounded value to be
// positive
func roundedPositive(field string, v decimal.Decimal, round func(decimal.Decimal) decimal.Decimal) (decimal.Decimal, error) {
	if err := requirePositive(field, v); err != nil {
		return decimal.Zero, err
	}
	rounded := round(v)
	if !rounded.IsPositive() {
		return decimal.Zero, domain.NewValidationError(field, v, "rounds to zero at stored precision")
	}
	return rounded, nil
}

// commit stores h in the arena once its invariants hold
func commit(arena *holdings.Arena, h *domain.Holding) error {
	if err := holdings.CheckInvariants(h); err != nil {
		return err
	}
	arena.Put(h)
	return nil
}

func requireNotNegative(field string, v decimal.Decimal) error {
	if v.IsNegative() {
		return domain.NewValidationError(field, v, "must not be negative")
	}
	return nil
}

func scaleNull(v decimal.NullDecimal, ratio decimal.Decimal) decimal.NullDecimal {
	if !v.Valid {
		return v
	}
	return domain.NullDecimal(v.Decimal.DivRound(ratio, domain.PricePlaces))
}
