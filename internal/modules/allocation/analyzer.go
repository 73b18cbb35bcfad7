// Package allocation reports how a portfolio's value is spread across sectors, countries
// and asset types, and flags concentration.
package allocation

import (
	"sort"

	"github.com/aristath/ledger/internal/domain"
	"github.com/aristath/ledger/internal/modules/holdings"
	"github.com/aristath/ledger/internal/modules/portfolio"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// DefaultDiversifiedMaxSectorPct is the largest single-sector share a diversified portfolio may have
var DefaultDiversifiedMaxSectorPct = decimal.NewFromInt(40)

// Limits configures concentration checks. Values are percentages.
type Limits struct {
	HoldingPct        decimal.Decimal
	SectorPct         decimal.Decimal
	DiversifiedMaxPct decimal.Decimal
}

// DefaultLimits flags holdings above 20% and sectors above 40%
func DefaultLimits() Limits {
	return Limits{
		HoldingPct:        decimal.NewFromInt(20),
		SectorPct:         decimal.NewFromInt(40),
		DiversifiedMaxPct: DefaultDiversifiedMaxSectorPct,
	}
}

// Slice is one bucket of an allocation breakdown
type Slice struct {
	Name     string          `json:"name"`
	Value    decimal.Decimal `json:"value"`
	Percent  decimal.Decimal `json:"percent"`
	Holdings int             `json:"holdings"`
}

// AlertKind says what an alert is about
type AlertKind string

const (
	AlertHolding AlertKind = "holding"
	AlertSector  AlertKind = "sector"
)

// Alert flags a holding or sector above its concentration limit
type Alert struct {
	Kind    AlertKind       `json:"kind"`
	Name    string          `json:"name"`
	Percent decimal.Decimal `json:"percent"`
	Limit   decimal.Decimal `json:"limit"`
}

// Report is the full allocation picture of one portfolio
type Report struct {
	Sectors              map[string]decimal.Decimal `json:"sectors"`
	Countries            map[string]decimal.Decimal `json:"countries"`
	AssetTypes           map[string]decimal.Decimal `json:"asset_types"`
	DiversificationScore decimal.Decimal            `json:"diversification_score"`
	HerfindahlIndex      float64                    `json:"herfindahl_index"`
	Diversified          bool                       `json:"diversified"`
	Alerts               []Alert                    `json:"alerts"`
}

// Analyzer builds allocation reports against configured limits
type Analyzer struct {
	limits Limits
	log    zerolog.Logger
}

// NewAnalyzer creates an allocation analyzer
func NewAnalyzer(limits Limits, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		limits: limits,
		log:    log.With().Str("component", "allocation_analyzer").Logger(),
	}
}

// Analyze computes every allocation metric for the portfolio. The portfolio totals must be
// current.
func (a *Analyzer) Analyze(p *domain.Portfolio, arena *holdings.Arena) Report {
	report := Report{
		Sectors:              SectorAllocation(p, arena),
		Countries:            GeographicAllocation(p, arena),
		AssetTypes:           AssetTypeAllocation(p, arena),
		DiversificationScore: DiversificationScore(arena),
		HerfindahlIndex:      HerfindahlIndex(arena),
		Diversified:          IsDiversified(p, arena, a.limits.DiversifiedMaxPct),
		Alerts:               ConcentrationAlerts(p, arena, a.limits),
	}

	if len(report.Alerts) > 0 {
		a.log.Info().
			Str("portfolio_id", p.ID).
			Int("alerts", len(report.Alerts)).
			Msg("Portfolio has concentration alerts")
	}
	return report
}

func classification(name string) string {
	if name == "" {
		return domain.UnknownClassification
	}
	return name
}

func sectorOf(h *domain.Holding) string  { return classification(h.Sector) }
func countryOf(h *domain.Holding) string { return classification(h.Country) }

func assetTypeOf(h *domain.Holding) string {
	if h.Type == "" || h.Type == domain.AssetTypeUnknown {
		return domain.UnknownClassification
	}
	return string(h.Type)
}

// Breakdown groups active holdings by key and sorts the buckets by value, largest first
func Breakdown(p *domain.Portfolio, arena *holdings.Arena, key func(*domain.Holding) string) []Slice {
	byName := make(map[string]*Slice)
	for _, h := range arena.Active() {
		name := key(h)
		s, ok := byName[name]
		if !ok {
			s = &Slice{Name: name, Value: decimal.Zero}
			byName[name] = s
		}
		s.Value = s.Value.Add(h.CurrentValue)
		s.Holdings++
	}

	out := make([]Slice, 0, len(byName))
	for _, s := range byName {
		s.Percent = domain.Percent(s.Value, p.TotalValue)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Value.Equal(out[j].Value) {
			return out[i].Value.GreaterThan(out[j].Value)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func percentages(slices []Slice) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(slices))
	for _, s := range slices {
		out[s.Name] = s.Percent
	}
	return out
}

// SectorAllocation returns each sector's share of total value. Unclassified holdings
// are reported under "Unknown".
func SectorAllocation(p *domain.Portfolio, arena *holdings.Arena) map[string]decimal.Decimal {
	return percentages(Breakdown(p, arena, sectorOf))
}

// GeographicAllocation returns each country's share of total value
func GeographicAllocation(p *domain.Portfolio, arena *holdings.Arena) map[string]decimal.Decimal {
	return percentages(Breakdown(p, arena, countryOf))
}

// AssetTypeAllocation returns each asset type's share of total value
func AssetTypeAllocation(p *domain.Portfolio, arena *holdings.Arena) map[string]decimal.Decimal {
	return percentages(Breakdown(p, arena, assetTypeOf))
}

// DiversificationScore is distinct sectors / active holdings × 100, or zero without holdings
func DiversificationScore(arena *holdings.Arena) decimal.Decimal {
	active := arena.Active()
	if len(active) == 0 {
		return decimal.Zero
	}
	sectors := make(map[string]struct{})
	for _, h := range active {
		sectors[sectorOf(h)] = struct{}{}
	}
	return domain.Percent(decimal.NewFromInt(int64(len(sectors))), decimal.NewFromInt(int64(len(active))))
}

// IsOverconcentrated reports whether the holding's share of the portfolio exceeds limitPct
func IsOverconcentrated(h *domain.Holding, p *domain.Portfolio, limitPct decimal.Decimal) bool {
	return portfolio.HoldingPercentage(h, p).GreaterThan(limitPct)
}

// IsDiversified reports whether no single sector exceeds maxSectorPct
func IsDiversified(p *domain.Portfolio, arena *holdings.Arena, maxSectorPct decimal.Decimal) bool {
	for _, pct := range SectorAllocation(p, arena) {
		if pct.GreaterThan(maxSectorPct) {
			return false
		}
	}
	return true
}

// ConcentrationAlerts lists active holdings above the holding limit and sectors above the
// sector limit. Holdings come first, each group ordered by share.
func ConcentrationAlerts(p *domain.Portfolio, arena *holdings.Arena, limits Limits) []Alert {
	var alerts []Alert

	for _, s := range Breakdown(p, arena, func(h *domain.Holding) string { return h.Symbol }) {
		if s.Percent.GreaterThan(limits.HoldingPct) {
			alerts = append(alerts, Alert{Kind: AlertHolding, Name: s.Name, Percent: s.Percent, Limit: limits.HoldingPct})
		}
	}
	for _, s := range Breakdown(p, arena, sectorOf) {
		if s.Percent.GreaterThan(limits.SectorPct) {
			alerts = append(alerts, Alert{Kind: AlertSector, Name: s.Name, Percent: s.Percent, Limit: limits.SectorPct})
		}
	}
	return alerts
}

// HerfindahlIndex is the sum of squared value weights of the active holdings: 1/n for n
// equal positions, 1 for a single position, 0 when nothing is held.
func HerfindahlIndex(arena *holdings.Arena) float64 {
	active := arena.Active()
	weights := make([]float64, 0, len(active))
	for _, h := range active {
		if h.CurrentValue.IsPositive() {
			weights = append(weights, h.CurrentValue.InexactFloat64())
		}
	}
	total := floats.Sum(weights)
	if total == 0 {
		return 0
	}
	floats.Scale(1/total, weights)
	return floats.Dot(weights, weights)
}
