// Package store implements domain.Store on SQLite and in memory.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/ledger/internal/database"
	"github.com/aristath/ledger/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Compile-time check that SQLiteStore implements domain.Store
var _ domain.Store = (*SQLiteStore)(nil)

const holdingColumns = `id, portfolio_id, symbol, company_name, sector, country, market, currency, type,
	quantity, average_price, current_price, previous_close_price, target_price, stop_loss_price,
	cost_basis, current_value, gain_loss, gain_loss_percent, realized_gain_loss,
	status, purchase_date, last_updated, last_dividend_date`

const portfolioColumns = `id, name, currency, status, total_value, total_cost, total_gain_loss,
	total_gain_loss_percent, day_change, version, created_at, last_calculated`

const transactionColumns = `id, portfolio_id, holding_id, symbol, type, quantity, price, fees,
	total_amount, realized_gain_loss, status, transaction_date, details`

const dividendColumns = `id, portfolio_id, holding_id, transaction_id, symbol, per_share, quantity,
	amount, ex_date, pay_date`

// transactionDetails holds the type-specific fields of a transaction, stored msgpack-encoded
type transactionDetails struct {
	SplitRatio string `msgpack:"split_ratio,omitempty"`
	ExDate     int64  `msgpack:"ex_date,omitempty"`
	PayDate    int64  `msgpack:"pay_date,omitempty"`
}

// SQLiteStore persists portfolios, holdings and the transaction log in the ledger database
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore creates a store on the ledger database connection
func NewSQLiteStore(db *sql.DB, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// execer is satisfied by *sql.DB and *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func unixOrNull(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromUnix(v int64) time.Time {
	return time.Unix(v, 0).UTC()
}

// LoadPortfolio returns the portfolio with the given id
func (s *SQLiteStore) LoadPortfolio(ctx context.Context, id string) (*domain.Portfolio, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id)
	p, err := scanPortfolio(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "portfolio", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolio %s: %w", id, err)
	}
	return p, nil
}

// ListPortfolios returns every portfolio ordered by creation time
func (s *SQLiteStore) ListPortfolios(ctx context.Context) ([]*domain.Portfolio, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+portfolioColumns+" FROM portfolios ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*domain.Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return portfolios, nil
}

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var (
		p              domain.Portfolio
		currency       string
		status         string
		createdAt      int64
		lastCalculated sql.NullInt64
	)
	err := row.Scan(
		&p.ID, &p.Name, &currency, &status,
		&p.TotalValue, &p.TotalCost, &p.TotalGainLoss, &p.TotalGainLossPercent, &p.DayChange,
		&p.Version, &createdAt, &lastCalculated,
	)
	if err != nil {
		return nil, err
	}
	p.Currency = domain.Currency(currency)
	p.Status = domain.PortfolioStatus(status)
	p.CreatedAt = fromUnix(createdAt)
	if lastCalculated.Valid {
		p.LastCalculated = fromUnix(lastCalculated.Int64)
	}
	return &p, nil
}

// SavePortfolio inserts or updates the portfolio when p.Version matches the stored version,
// then increments p.Version. A mismatch returns a ConcurrencyConflictError.
func (s *SQLiteStore) SavePortfolio(ctx context.Context, p *domain.Portfolio) error {
	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		return savePortfolio(ctx, tx, p)
	})
	if err != nil {
		return unwrapDomainError(err)
	}

	p.Version++
	s.log.Debug().Str("portfolio_id", p.ID).Int64("version", p.Version).Msg("Portfolio saved")
	return nil
}

// savePortfolio writes p if its version matches the stored one. It does not touch p.Version.
func savePortfolio(ctx context.Context, q execer, p *domain.Portfolio) error {
	result, err := q.ExecContext(ctx, `
		UPDATE portfolios SET
			name = ?, currency = ?, status = ?, total_value = ?, total_cost = ?,
			total_gain_loss = ?, total_gain_loss_percent = ?, day_change = ?,
			last_calculated = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		p.Name, string(p.Currency), string(p.Status), p.TotalValue, p.TotalCost,
		p.TotalGainLoss, p.TotalGainLossPercent, p.DayChange,
		unixOrNull(&p.LastCalculated), p.ID, p.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update portfolio: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 1 {
		return nil
	}

	var stored int64
	err = q.QueryRowContext(ctx, "SELECT version FROM portfolios WHERE id = ?", p.ID).Scan(&stored)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if p.Version != 0 {
			return &domain.NotFoundError{Entity: "portfolio", ID: p.ID}
		}
	case err != nil:
		return fmt.Errorf("failed to read portfolio version: %w", err)
	default:
		return &domain.ConcurrencyConflictError{PortfolioID: p.ID, Expected: p.Version, Actual: stored}
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err = q.ExecContext(ctx, "INSERT INTO portfolios ("+portfolioColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)",
		p.ID, p.Name, string(p.Currency), string(p.Status),
		p.TotalValue, p.TotalCost, p.TotalGainLoss, p.TotalGainLossPercent, p.DayChange,
		createdAt.Unix(), unixOrNull(&p.LastCalculated),
	)
	if err != nil {
		return fmt.Errorf("failed to insert portfolio: %w", err)
	}
	return nil
}

// LoadHolding returns the holding with the given id
func (s *SQLiteStore) LoadHolding(ctx context.Context, id string) (*domain.Holding, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+holdingColumns+" FROM holdings WHERE id = ?", id)
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "holding", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load holding %s: %w", id, err)
	}
	return h, nil
}

// ListHoldings returns every holding of a portfolio ordered by symbol
func (s *SQLiteStore) ListHoldings(ctx context.Context, portfolioID string) ([]*domain.Holding, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+holdingColumns+" FROM holdings WHERE portfolio_id = ? ORDER BY symbol", portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var result []*domain.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holdings: %w", err)
	}
	return result, nil
}

// FindHoldingBySymbol returns the portfolio's holding for symbol, whatever its status
func (s *SQLiteStore) FindHoldingBySymbol(ctx context.Context, portfolioID, symbol string) (*domain.Holding, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+holdingColumns+" FROM holdings WHERE portfolio_id = ? AND symbol = ?",
		portfolioID, strings.ToUpper(strings.TrimSpace(symbol)))
	h, err := scanHolding(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "holding", ID: portfolioID + "/" + symbol}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find holding %s: %w", symbol, err)
	}
	return h, nil
}

func scanHolding(row rowScanner) (*domain.Holding, error) {
	var (
		h                           domain.Holding
		currency, assetType, status string
		purchaseDate, lastUpdated   int64
		lastDividendDate            sql.NullInt64
	)
	err := row.Scan(
		&h.ID, &h.PortfolioID, &h.Symbol, &h.CompanyName, &h.Sector, &h.Country, &h.Market, &currency, &assetType,
		&h.Quantity, &h.AveragePrice, &h.CurrentPrice, &h.PreviousClosePrice, &h.TargetPrice, &h.StopLossPrice,
		&h.CostBasis, &h.CurrentValue, &h.GainLoss, &h.GainLossPercent, &h.RealizedGainLoss,
		&status, &purchaseDate, &lastUpdated, &lastDividendDate,
	)
	if err != nil {
		return nil, err
	}
	h.Currency = domain.Currency(currency)
	h.Type = domain.AssetType(assetType)
	h.Status = domain.HoldingStatus(status)
	h.PurchaseDate = fromUnix(purchaseDate)
	h.LastUpdated = fromUnix(lastUpdated)
	if lastDividendDate.Valid {
		t := fromUnix(lastDividendDate.Int64)
		h.LastDividendDate = &t
	}
	return &h, nil
}

// SaveHolding inserts or replaces a holding
func (s *SQLiteStore) SaveHolding(ctx context.Context, h *domain.Holding) error {
	return saveHolding(ctx, s.db, h)
}

func saveHolding(ctx context.Context, q execer, h *domain.Holding) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO holdings (`+holdingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			symbol = excluded.symbol,
			company_name = excluded.company_name,
			sector = excluded.sector,
			country = excluded.country,
			market = excluded.market,
			currency = excluded.currency,
			type = excluded.type,
			quantity = excluded.quantity,
			average_price = excluded.average_price,
			current_price = excluded.current_price,
			previous_close_price = excluded.previous_close_price,
			target_price = excluded.target_price,
			stop_loss_price = excluded.stop_loss_price,
			cost_basis = excluded.cost_basis,
			current_value = excluded.current_value,
			gain_loss = excluded.gain_loss,
			gain_loss_percent = excluded.gain_loss_percent,
			realized_gain_loss = excluded.realized_gain_loss,
			status = excluded.status,
			purchase_date = excluded.purchase_date,
			last_updated = excluded.last_updated,
			last_dividend_date = excluded.last_dividend_date`,
		h.ID, h.PortfolioID, h.Symbol, h.CompanyName, h.Sector, h.Country, h.Market, string(h.Currency), string(h.Type),
		h.Quantity, h.AveragePrice, h.CurrentPrice, h.PreviousClosePrice, h.TargetPrice, h.StopLossPrice,
		h.CostBasis, h.CurrentValue, h.GainLoss, h.GainLossPercent, h.RealizedGainLoss,
		string(h.Status), h.PurchaseDate.Unix(), h.LastUpdated.Unix(), unixOrNull(h.LastDividendDate),
	)
	if err != nil {
		return fmt.Errorf("failed to save holding %s: %w", h.ID, err)
	}
	return nil
}

// AppendTransaction adds a transaction to the log. Existing entries are never updated.
func (s *SQLiteStore) AppendTransaction(ctx context.Context, tx *domain.Transaction) error {
	return appendTransaction(ctx, s.db, tx)
}

func appendTransaction(ctx context.Context, q execer, tx *domain.Transaction) error {
	details := transactionDetails{}
	if !tx.SplitRatio.IsZero() {
		details.SplitRatio = tx.SplitRatio.String()
	}
	if tx.ExDate != nil {
		details.ExDate = tx.ExDate.Unix()
	}
	if tx.PayDate != nil {
		details.PayDate = tx.PayDate.Unix()
	}
	blob, err := msgpack.Marshal(details)
	if err != nil {
		return fmt.Errorf("failed to encode transaction details: %w", err)
	}

	_, err = q.ExecContext(ctx,
		"INSERT INTO transactions ("+transactionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		tx.ID, tx.PortfolioID, tx.HoldingID, tx.Symbol, string(tx.Type),
		tx.Quantity, tx.Price, tx.Fees, tx.TotalAmount, tx.RealizedGainLoss,
		string(tx.Status), tx.TransactionDate.Unix(), blob,
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction %s: %w", tx.ID, err)
	}
	return nil
}

// ListTransactions returns a holding's transactions in the order they happened
func (s *SQLiteStore) ListTransactions(ctx context.Context, holdingID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE holding_id = ? ORDER BY transaction_date, rowid", holdingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var result []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return result, nil
}

// LoadTransaction returns one logged transaction
func (s *SQLiteStore) LoadTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Entity: "transaction", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction %s: %w", id, err)
	}
	return tx, nil
}

// UpdateTransactionStatus sets the status of a logged transaction
func (s *SQLiteStore) UpdateTransactionStatus(ctx context.Context, id string, status domain.TransactionStatus) error {
	result, err := s.db.ExecContext(ctx, "UPDATE transactions SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update transaction %s: %w", id, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return &domain.NotFoundError{Entity: "transaction", ID: id}
	}
	return nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		tx              domain.Transaction
		txType, status  string
		transactionDate int64
		blob            []byte
	)
	if err := row.Scan(
		&tx.ID, &tx.PortfolioID, &tx.HoldingID, &tx.Symbol, &txType,
		&tx.Quantity, &tx.Price, &tx.Fees, &tx.TotalAmount, &tx.RealizedGainLoss,
		&status, &transactionDate, &blob,
	); err != nil {
		return nil, err
	}
	tx.Type = domain.TransactionType(txType)
	tx.Status = domain.TransactionStatus(status)
	tx.TransactionDate = fromUnix(transactionDate)

	if len(blob) == 0 {
		return &tx, nil
	}

	var details transactionDetails
	if err := msgpack.Unmarshal(blob, &details); err != nil {
		return nil, fmt.Errorf("failed to decode details of transaction %s: %w", tx.ID, err)
	}
	if details.SplitRatio != "" {
		ratio, err := decimal.NewFromString(details.SplitRatio)
		if err != nil {
			return nil, fmt.Errorf("invalid split ratio on transaction %s: %w", tx.ID, err)
		}
		tx.SplitRatio = ratio
	}
	if details.ExDate != 0 {
		t := fromUnix(details.ExDate)
		tx.ExDate = &t
	}
	if details.PayDate != 0 {
		t := fromUnix(details.PayDate)
		tx.PayDate = &t
	}
	return &tx, nil
}

// AppendDividend records a dividend payment
func (s *SQLiteStore) AppendDividend(ctx context.Context, d *domain.DividendRecord) error {
	return appendDividend(ctx, s.db, d)
}

func appendDividend(ctx context.Context, q execer, d *domain.DividendRecord) error {
	_, err := q.ExecContext(ctx,
		"INSERT INTO dividends ("+dividendColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		d.ID, d.PortfolioID, d.HoldingID, d.TransactionID, d.Symbol,
		d.PerShare, d.Quantity, d.Amount, d.ExDate.Unix(), d.PayDate.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to append dividend %s: %w", d.ID, err)
	}
	return nil
}

// ListDividends returns a portfolio's dividends paid between from and to inclusive.
// A zero bound is open.
func (s *SQLiteStore) ListDividends(ctx context.Context, portfolioID string, from, to time.Time) ([]domain.DividendRecord, error) {
	query := "SELECT " + dividendColumns + " FROM dividends WHERE portfolio_id = ?"
	args := []interface{}{portfolioID}
	if !from.IsZero() {
		query += " AND pay_date >= ?"
		args = append(args, from.Unix())
	}
	if !to.IsZero() {
		query += " AND pay_date <= ?"
		args = append(args, to.Unix())
	}
	query += " ORDER BY pay_date, rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividends: %w", err)
	}
	defer rows.Close()

	var result []domain.DividendRecord
	for rows.Next() {
		var (
			d               domain.DividendRecord
			exDate, payDate int64
		)
		if err := rows.Scan(
			&d.ID, &d.PortfolioID, &d.HoldingID, &d.TransactionID, &d.Symbol,
			&d.PerShare, &d.Quantity, &d.Amount, &exDate, &payDate,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dividend: %w", err)
		}
		d.ExDate = fromUnix(exDate)
		d.PayDate = fromUnix(payDate)
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dividends: %w", err)
	}
	return result, nil
}

// Commit applies every write of cs in one database transaction. The portfolio is written
// first so a version conflict aborts the whole set; on success cs.Portfolio.Version is
// incremented.
func (s *SQLiteStore) Commit(ctx context.Context, cs *domain.ChangeSet) error {
	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		if cs.Portfolio != nil {
			if err := savePortfolio(ctx, tx, cs.Portfolio); err != nil {
				return err
			}
		}
		for _, h := range cs.Holdings {
			if err := saveHolding(ctx, tx, h); err != nil {
				return err
			}
		}
		for _, t := range cs.Transactions {
			if err := appendTransaction(ctx, tx, t); err != nil {
				return err
			}
		}
		for _, d := range cs.Dividends {
			if err := appendDividend(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return unwrapDomainError(err)
	}

	if cs.Portfolio != nil {
		cs.Portfolio.Version++
		s.log.Debug().
			Str("portfolio_id", cs.Portfolio.ID).
			Int64("version", cs.Portfolio.Version).
			Int("holdings", len(cs.Holdings)).
			Int("transactions", len(cs.Transactions)).
			Msg("Change set committed")
	}
	return nil
}

// unwrapDomainError strips the transaction wrapper from typed domain errors so callers can
// use errors.As on them directly. Other errors are returned unchanged.
func unwrapDomainError(err error) error {
	var conflict *domain.ConcurrencyConflictError
	if errors.As(err, &conflict) {
		return conflict
	}
	var notFound *domain.NotFoundError
	if errors.As(err, &notFound) {
		return notFound
	}
	return err
}
