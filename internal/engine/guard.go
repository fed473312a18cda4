package engine

import (
	"sync"

	"github.com/alanyoungcy/stakeboard/internal/domain"
)

// reentrancyGuard tracks which entities have a state-mutating transition in
// flight. A second entry for the same entity is rejected instead of queued, so
// a collaborator calling back into the core mid-transition cannot observe or
// corrupt partial state.
type reentrancyGuard struct {
	mu       sync.Mutex
	inFlight map[uint64]bool
}

func newReentrancyGuard() *reentrancyGuard {
	return &reentrancyGuard{inFlight: make(map[uint64]bool)}
}

// enter marks id as in flight and returns a release function that must run on
// every exit path, including errors. Returns ErrReentrancy if id is already
// in flight.
func (g *reentrancyGuard) enter(id uint64) (release func(), err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight[id] {
		return nil, domain.ErrReentrancy
	}
	g.inFlight[id] = true

	released := false
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if released {
			return
		}
		released = true
		delete(g.inFlight, id)
	}, nil
}
