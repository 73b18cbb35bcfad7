package services

import "sync"

// portfolioLocks hands out one mutex per portfolio id. Work on different portfolios never
// contends; work on the same portfolio is serialized.
type portfolioLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newPortfolioLocks() *portfolioLocks {
	return &portfolioLocks{locks: make(map[string]*sync.Mutex)}
}

// lock blocks until the portfolio's mutex is held and returns the matching unlock
func (l *portfolioLocks) lock(portfolioID string) func() {
	l.mu.Lock()
	m, ok := l.locks[portfolioID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[portfolioID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
