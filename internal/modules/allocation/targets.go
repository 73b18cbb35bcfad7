package allocation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// TargetType names the breakdown a target or group applies to
type TargetType string

const (
	TargetSector    TargetType = "sector"
	TargetGeography TargetType = "geography"
	TargetAssetType TargetType = "asset_type"
)

// Target is the desired share of one bucket or group
type Target struct {
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Type      TargetType      `json:"type"`
	Name      string          `json:"name"`
	TargetPct decimal.Decimal `json:"target_pct"`
}

// TargetRepository handles allocation target and group database operations
// Database: ledger.db (allocation_targets, allocation_groups tables)
type TargetRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewTargetRepository creates a new allocation target repository
func NewTargetRepository(db *sql.DB, log zerolog.Logger) *TargetRepository {
	return &TargetRepository{
		db:  db,
		log: log.With().Str("repo", "allocation_targets").Logger(),
	}
}

// GetByType returns allocation targets filtered by type, ordered by name
func (r *TargetRepository) GetByType(targetType TargetType) ([]Target, error) {
	query := "SELECT type, name, target_pct, created_at, updated_at FROM allocation_targets WHERE type = ? ORDER BY name"

	rows, err := r.db.Query(query, string(targetType))
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation targets by type: %w", err)
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var (
			target                   Target
			rawType, pct             string
			createdAtUnix, updatedAt sql.NullInt64
		)
		if err := rows.Scan(&rawType, &target.Name, &pct, &createdAtUnix, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan allocation target: %w", err)
		}
		target.Type = TargetType(rawType)
		target.TargetPct, err = decimal.NewFromString(pct)
		if err != nil {
			return nil, fmt.Errorf("invalid target_pct %q for %s: %w", pct, target.Name, err)
		}
		if createdAtUnix.Valid {
			target.CreatedAt = time.Unix(createdAtUnix.Int64, 0).UTC()
		}
		if updatedAt.Valid {
			target.UpdatedAt = time.Unix(updatedAt.Int64, 0).UTC()
		}
		targets = append(targets, target)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation targets: %w", err)
	}

	return targets, nil
}

// GetTargets returns the targets of one type keyed by name
func (r *TargetRepository) GetTargets(targetType TargetType) (map[string]decimal.Decimal, error) {
	targets, err := r.GetByType(targetType)
	if err != nil {
		return nil, err
	}

	result := make(map[string]decimal.Decimal, len(targets))
	for _, t := range targets {
		result[t.Name] = t.TargetPct
	}
	return result, nil
}

// Upsert inserts or updates an allocation target
func (r *TargetRepository) Upsert(target Target) error {
	if target.TargetPct.IsNegative() || target.TargetPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("target_pct for %s must be between 0 and 100, got %s", target.Name, target.TargetPct)
	}
	now := time.Now().Unix()

	query := `
		INSERT INTO allocation_targets (type, name, target_pct, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(type, name) DO UPDATE SET
			target_pct = excluded.target_pct,
			updated_at = excluded.updated_at
	`

	_, err := r.db.Exec(query, string(target.Type), target.Name, target.TargetPct.String(), now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert allocation target: %w", err)
	}

	r.log.Debug().
		Str("type", string(target.Type)).
		Str("name", target.Name).
		Str("target_pct", target.TargetPct.String()).
		Msg("Allocation target upserted")

	return nil
}

// SetTargets upserts several targets of one type at once
func (r *TargetRepository) SetTargets(targetType TargetType, targets map[string]decimal.Decimal) error {
	for name, pct := range targets {
		if err := r.Upsert(Target{Type: targetType, Name: name, TargetPct: pct}); err != nil {
			return fmt.Errorf("failed to set %s target %s: %w", targetType, name, err)
		}
	}
	return nil
}

// Delete removes an allocation target
func (r *TargetRepository) Delete(targetType TargetType, name string) error {
	result, err := r.db.Exec("DELETE FROM allocation_targets WHERE type = ? AND name = ?", string(targetType), name)
	if err != nil {
		return fmt.Errorf("failed to delete allocation target: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.log.Debug().
		Str("type", string(targetType)).
		Str("name", name).
		Int64("rows_affected", rowsAffected).
		Msg("Allocation target deleted")

	return nil
}

// SetGroup replaces the members of a group
func (r *TargetRepository) SetGroup(targetType TargetType, group string, members []string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM allocation_groups WHERE type = ? AND group_name = ?", string(targetType), group); err != nil {
		return fmt.Errorf("failed to clear group %s: %w", group, err)
	}
	for _, member := range members {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO allocation_groups (type, group_name, member) VALUES (?, ?, ?)",
			string(targetType), group, member,
		); err != nil {
			return fmt.Errorf("failed to add %s to group %s: %w", member, group, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group %s: %w", group, err)
	}
	return nil
}

// GetGroups returns every group of one type with its members
func (r *TargetRepository) GetGroups(targetType TargetType) (map[string][]string, error) {
	rows, err := r.db.Query(
		"SELECT group_name, member FROM allocation_groups WHERE type = ? ORDER BY group_name, member",
		string(targetType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation groups: %w", err)
	}
	defer rows.Close()

	groups := make(map[string][]string)
	for rows.Next() {
		var group, member string
		if err := rows.Scan(&group, &member); err != nil {
			return nil, fmt.Errorf("failed to scan allocation group: %w", err)
		}
		groups[group] = append(groups[group], member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocation groups: %w", err)
	}
	return groups, nil
}
