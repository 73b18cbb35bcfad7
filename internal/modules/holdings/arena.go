package holdings

import (
	"sort"
	"strings"

	"github.com/aristath/ledger/internal/domain"
)

// Arena holds the holdings owned by one portfolio, indexed by id.
// Holdings are reached through the arena only; nothing keeps a back-reference to the
// portfolio.
type Arena struct {
	byID     map[string]*domain.Holding
	bySymbol map[string]string
}

// NewArena builds an arena from a loaded holding set
func NewArena(hs ...*domain.Holding) *Arena {
	a := &Arena{
		byID:     make(map[string]*domain.Holding, len(hs)),
		bySymbol: make(map[string]string, len(hs)),
	}
	for _, h := range hs {
		a.Put(h)
	}
	return a
}

// NormalizeSymbol is the key used for symbol lookups
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Put adds or replaces a holding
func (a *Arena) Put(h *domain.Holding) {
	a.byID[h.ID] = h
	a.bySymbol[NormalizeSymbol(h.Symbol)] = h.ID
}

// Get returns the holding with the given id
func (a *Arena) Get(id string) (*domain.Holding, bool) {
	h, ok := a.byID[id]
	return h, ok
}

// BySymbol returns the holding for a symbol, whatever its status
func (a *Arena) BySymbol(symbol string) (*domain.Holding, bool) {
	id, ok := a.bySymbol[NormalizeSymbol(symbol)]
	if !ok {
		return nil, false
	}
	return a.Get(id)
}

// Len returns the number of holdings, active or not
func (a *Arena) Len() int {
	return len(a.byID)
}

// All returns every holding sorted by symbol for stable iteration
func (a *Arena) All() []*domain.Holding {
	out := make([]*domain.Holding, 0, len(a.byID))
	for _, h := range a.byID {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Active returns the holdings that count towards totals, sorted by symbol
func (a *Arena) Active() []*domain.Holding {
	var out []*domain.Holding
	for _, h := range a.All() {
		if IsActive(h) {
			out = append(out, h)
		}
	}
	return out
}

// Dirty returns holdings changed by price updates since the last recompute
func (a *Arena) Dirty() []*domain.Holding {
	var out []*domain.Holding
	for _, h := range a.All() {
		if h.Dirty {
			out = append(out, h)
		}
	}
	return out
}
