// Package conversation holds the client's conversation history: the
// admission-control guard that paces history loads and the in-memory store
// of summaries and the currently open conversation.
package conversation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dominicdesy/intelia-expert-sub011/internal/logging"
	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

// Guard policy defaults. UI remounts and effect re-runs invoke Load far more
// often than the history actually changes; the guard turns that storm into
// at most one backend call per window.
const (
	DefaultCooldown     = 10 * time.Minute
	DefaultSuccessCache = 30 * time.Minute
	DefaultMaxRetries   = 1

	// failureUnlockDelay keeps the in-flight latch set for a short period
	// after a failed attempt ends, absorbing racing re-entrant calls.
	failureUnlockDelay = 60 * time.Second
)

// GuardConfig tunes the admission policy. Zero values fall back to the
// defaults above.
type GuardConfig struct {
	Cooldown     time.Duration
	SuccessCache time.Duration
	MaxRetries   int
}

// guardState is the per-user admission state.
type guardState struct {
	loading       bool
	unlockAt      time.Time // loading holds until here after a failure
	lastAttemptAt time.Time
	lastSuccessAt time.Time
	attempts      int
}

// LoadGuard bounds how often conversation-history loads may be attempted
// per user: one load in flight, a cooldown between attempts, a success
// window during which repeats are treated as satisfied, and a hard attempt
// budget of 1 + MaxRetries until ForceReset. State is keyed by user id so
// concurrent identities never corrupt each other.
type LoadGuard struct {
	cfg GuardConfig
	now func() time.Time
	log zerolog.Logger

	mu     sync.Mutex
	states map[string]*guardState
}

// NewLoadGuard creates a guard with the given policy.
func NewLoadGuard(cfg GuardConfig) *LoadGuard {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}
	if cfg.SuccessCache <= 0 {
		cfg.SuccessCache = DefaultSuccessCache
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	return &LoadGuard{
		cfg:    cfg,
		now:    time.Now,
		log:    logging.Component("load-guard"),
		states: make(map[string]*guardState),
	}
}

func (g *LoadGuard) state(userID string) *guardState {
	st, ok := g.states[userID]
	if !ok {
		st = &guardState{}
		g.states[userID] = st
	}
	return st
}

// admits reports whether a load attempt is admitted right now. Caller holds
// the lock. The failure latch is released lazily once its delay has passed.
func (g *LoadGuard) admits(st *guardState) bool {
	now := g.now()

	if st.loading {
		if st.unlockAt.IsZero() || now.Before(st.unlockAt) {
			return false
		}
		st.loading = false
		st.unlockAt = time.Time{}
	}
	if !st.lastSuccessAt.IsZero() && now.Sub(st.lastSuccessAt) < g.cfg.SuccessCache {
		return false
	}
	if !st.lastAttemptAt.IsZero() && now.Sub(st.lastAttemptAt) < g.cfg.Cooldown {
		return false
	}
	if st.attempts > g.cfg.MaxRetries {
		return false
	}
	return true
}

// CanLoad reports whether a load attempt for the identity would be admitted.
func (g *LoadGuard) CanLoad(identity types.Identity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.admits(g.state(identity.UserID))
}

// Begin atomically checks admission and marks an attempt. The attempt
// counter moves here, not on failure, so repeated attempts exhaust the
// budget even when they never complete.
func (g *LoadGuard) Begin(identity types.Identity) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(identity.UserID)
	if !g.admits(st) {
		return false
	}
	st.loading = true
	st.unlockAt = time.Time{}
	st.lastAttemptAt = g.now()
	st.attempts++
	return true
}

// RecordSuccess marks the in-flight attempt as succeeded, opening the
// success-cache window and restoring the attempt budget.
func (g *LoadGuard) RecordSuccess(identity types.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(identity.UserID)
	st.loading = false
	st.unlockAt = time.Time{}
	st.lastSuccessAt = g.now()
	st.attempts = 0
}

// RecordFailure marks the in-flight attempt as failed. The in-flight latch
// stays set for failureUnlockDelay.
func (g *LoadGuard) RecordFailure(identity types.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(identity.UserID)
	st.unlockAt = g.now().Add(failureUnlockDelay)
	g.log.Debug().Str("userID", identity.UserID).Int("attempts", st.attempts).Msg("history load failed")
}

// ForceReset zeroes the attempt budget, cooldown and success window for the
// identity so the next load is admitted immediately. A failure latch is
// released too; only a genuinely in-flight load keeps its latch.
func (g *LoadGuard) ForceReset(identity types.Identity) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st := g.state(identity.UserID)
	st.lastAttemptAt = time.Time{}
	st.lastSuccessAt = time.Time{}
	st.attempts = 0
	if !st.unlockAt.IsZero() {
		st.loading = false
		st.unlockAt = time.Time{}
	}
}
