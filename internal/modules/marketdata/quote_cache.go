// Package marketdata adapts market data providers for the ledger: rate limiting, a
// persistent quote cache with stale fallback, and a static provider for offline runs.
package marketdata

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind is the type of data a cache entry holds
type Kind string

const (
	KindPrice   Kind = "price"
	KindCompany Kind = "company"
)

// QuoteCache persists provider responses in the quote_cache table with an expiry.
// Values are stored msgpack-encoded.
type QuoteCache struct {
	db  *sql.DB
	now func() time.Time
	log zerolog.Logger
}

// NewQuoteCache creates a quote cache on the cache database
func NewQuoteCache(db *sql.DB, log zerolog.Logger) *QuoteCache {
	return &QuoteCache{
		db:  db,
		now: time.Now,
		log: log.With().Str("repo", "quote_cache").Logger(),
	}
}

// Store saves value with expiration = now + ttl, replacing any previous entry
func (c *QuoteCache) Store(kind Kind, symbol string, value interface{}, ttl time.Duration) error {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s for %s: %w", kind, symbol, err)
	}

	now := c.now()
	_, err = c.db.Exec(
		"INSERT OR REPLACE INTO quote_cache (kind, symbol, data, expires_at, updated_at) VALUES (?, ?, ?, ?, ?)",
		string(kind), symbol, data, now.Add(ttl).Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s for %s: %w", kind, symbol, err)
	}
	return nil
}

// GetIfFresh decodes the entry into out if it has not expired.
// It reports false when the entry is missing or expired.
func (c *QuoteCache) GetIfFresh(kind Kind, symbol string, out interface{}) (bool, error) {
	return c.get(
		"SELECT data FROM quote_cache WHERE kind = ? AND symbol = ? AND expires_at > ?",
		out, string(kind), symbol, c.now().Unix(),
	)
}

// Get decodes the entry into out regardless of expiry. Stale data is the fallback when the
// upstream provider fails.
func (c *QuoteCache) Get(kind Kind, symbol string, out interface{}) (bool, error) {
	return c.get("SELECT data FROM quote_cache WHERE kind = ? AND symbol = ?", out, string(kind), symbol)
}

func (c *QuoteCache) get(query string, out interface{}, args ...interface{}) (bool, error) {
	var data []byte
	err := c.db.QueryRow(query, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read quote cache: %w", err)
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode quote cache entry: %w", err)
	}
	return true, nil
}

// Delete removes a specific entry
func (c *QuoteCache) Delete(kind Kind, symbol string) error {
	if _, err := c.db.Exec("DELETE FROM quote_cache WHERE kind = ? AND symbol = ?", string(kind), symbol); err != nil {
		return fmt.Errorf("failed to delete %s for %s: %w", kind, symbol, err)
	}
	return nil
}

// DeleteExpired removes every expired entry and returns the number deleted per kind
func (c *QuoteCache) DeleteExpired() (map[Kind]int64, error) {
	now := c.now().Unix()
	results := make(map[Kind]int64)

	for _, kind := range []Kind{KindPrice, KindCompany} {
		result, err := c.db.Exec("DELETE FROM quote_cache WHERE kind = ? AND expires_at <= ?", string(kind), now)
		if err != nil {
			return results, fmt.Errorf("failed to delete expired %s entries: %w", kind, err)
		}
		deleted, err := result.RowsAffected()
		if err != nil {
			return results, fmt.Errorf("failed to get rows affected for %s: %w", kind, err)
		}
		results[kind] = deleted
	}

	return results, nil
}
