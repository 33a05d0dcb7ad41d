// Package worker drives scheduled pipeline runs: one trigger per user,
// admission through a small concurrency gate.
package worker

import (
	"sync"
	"time"

	"maildigest/pkg/apperr"
)

// Gate bounds concurrent pipeline runs and enforces per-user single
// flight. A released slot stays blocked for the cooldown so back-to-back
// triggers cannot hammer the IMAP servers.
type Gate struct {
	mu       sync.Mutex
	current  map[int64]struct{}
	max      int
	cooldown time.Duration
}

func NewGate(maxConcurrent int, cooldown time.Duration) *Gate {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	return &Gate{
		current:  make(map[int64]struct{}),
		max:      maxConcurrent,
		cooldown: cooldown,
	}
}

// Acquire claims a slot. It fails fast with a gate-busy error when the
// user is already running or the gate is full; triggers coalesce instead
// of queueing.
func (g *Gate) Acquire(userID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, running := g.current[userID]; running {
		return apperr.GateBusy(userID)
	}
	if len(g.current) >= g.max {
		return apperr.GateBusy(userID)
	}

	g.current[userID] = struct{}{}
	return nil
}

// Release frees the slot after the cooldown elapses.
func (g *Gate) Release(userID int64) {
	if g.cooldown <= 0 {
		g.release(userID)
		return
	}
	time.AfterFunc(g.cooldown, func() { g.release(userID) })
}

func (g *Gate) release(userID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.current, userID)
}

// Running reports the number of held slots.
func (g *Gate) Running() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.current)
}
