package models

import (
	"sync"
	"time"
)

// PositionBook is the Orchestrator's exclusive in-memory store of open
// positions and the account balance (the ownership rule: "the
// Orchestrator exclusively owns ... the set of open Positions"). Close
// serializes a position's removal with its ClosedTrade and Account update
// under one lock, so two exit triggers racing in on the same 30s tick
// resolve to a single exit (the ordering guarantee).
type PositionBook struct {
	mu        sync.Mutex
	positions map[string]*Position
	account   Account
}

// NewPositionBook seeds a book with account as the starting balance state.
func NewPositionBook(account Account) *PositionBook {
	return &PositionBook{positions: make(map[string]*Position), account: account}
}

// Add inserts a newly-filled position. Its PositionID must be unique;
// Add overwrites silently on collision since the executor's idempotency
// keying already guarantees a given client_order_id fills at most once.
func (b *PositionBook) Add(p *Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[p.PositionID] = p
}

// Snapshot returns a defensive copy of every open position. Safe to read
// without holding the book's lock afterward, so callers may fan out
// concurrent quote fetches over the result per the rule that the monitor "may parallelise quote
// updates" allowance.
func (b *PositionBook) Snapshot() []Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, *p)
	}
	return out
}

// Get returns a copy of the position with id, or false if it is not open.
func (b *PositionBook) Get(id string) (Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[id]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Mutate applies fn to the live position with id under the book's lock,
// reporting false if it is no longer open (already closed by a racing
// trigger). Used for in-place stop-state progression that must not be
// lost even when the position does not exit this tick.
func (b *PositionBook) Mutate(id string, fn func(*Position)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[id]
	if !ok {
		return false
	}
	fn(p)
	return true
}

// Close removes the position and produces its ClosedTrade plus updated
// Account atomically. Returns false if id was already closed by a racing
// trigger in the same tick, matching the "always resolve to a single
// exit" guarantee.
func (b *PositionBook) Close(id, reason string, exitPrice float64, at time.Time) (ClosedTrade, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[id]
	if !ok {
		return ClosedTrade{}, false
	}
	delete(b.positions, id)
	trade := NewClosedTrade(*p, exitPrice, at, reason)
	b.account.ApplyTrade(trade, at)
	return trade, true
}

// Account returns a copy of the current account state.
func (b *PositionBook) Account() Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.account
}

// SetAccount overwrites the account state, used when restoring from a
// storage checkpoint on cold start.
func (b *PositionBook) SetAccount(a Account) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.account = a
}

// Len reports how many positions are currently open.
func (b *PositionBook) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions)
}
