package engine

import (
	"sync"
	"time"
)

type ledgerKey struct {
	symbol string
	ruleID string
}

// Ledger records when each (symbol, rule) pair last produced a dispatched
// alert. It is consulted by the evaluator and mutated only after the
// notification sink acknowledges a dispatch.
type Ledger struct {
	mu    sync.Mutex
	fired map[ledgerKey]time.Time
}

// NewLedger constructs an empty cooldown ledger.
func NewLedger() *Ledger {
	return &Ledger{fired: make(map[ledgerKey]time.Time)}
}

// Eligible reports whether the pair is outside its cooldown at now. A pair
// that never fired is always eligible; one that fired exactly cooldown ago
// is eligible again.
func (l *Ledger) Eligible(symbol, ruleID string, cooldown time.Duration, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.fired[ledgerKey{symbol: symbol, ruleID: ruleID}]
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}

// MarkFired records a successful dispatch.
func (l *Ledger) MarkFired(symbol, ruleID string, at time.Time) {
	l.mu.Lock()
	l.fired[ledgerKey{symbol: symbol, ruleID: ruleID}] = at
	l.mu.Unlock()
}

// LastFired returns the recorded dispatch time for a pair, if any.
func (l *Ledger) LastFired(symbol, ruleID string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	last, ok := l.fired[ledgerKey{symbol: symbol, ruleID: ruleID}]
	return last, ok
}
