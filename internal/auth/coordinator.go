package auth

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/dominicdesy/intelia-expert-sub011/internal/event"
	"github.com/dominicdesy/intelia-expert-sub011/internal/logging"
	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

// State is the coordinator lifecycle state.
type State string

const (
	StateUninitialized   State = "uninitialized"
	StateInitializing    State = "initializing"
	StateAuthenticated   State = "authenticated"
	StateUnauthenticated State = "unauthenticated"

	// StateError marks an unexpected provider failure. The UI treats it as
	// unauthenticated; it exists so the failure is attributable in logs.
	StateError State = "error"
)

// reloadOp is an in-flight reload joined by concurrent callers.
type reloadOp struct {
	done chan struct{}
}

// Coordinator owns the authenticated identity: one-shot initialization,
// subscription to session-change notifications, filtering of redundant
// notifications, and serialized reload of identity and profile.
type Coordinator struct {
	provider Provider
	cache    *IdentityCache
	bus      *event.Bus
	language string
	log      zerolog.Logger

	mu           sync.Mutex
	state        State
	user         *types.User
	lastIdentity *types.Identity
	reload       *reloadOp

	loggingOut  atomic.Bool
	initOnce    sync.Once
	unsubscribe func()
}

// NewCoordinator creates a coordinator. language is the locale applied when
// neither the provider nor the backend supplies one; empty falls back to the
// default locale.
func NewCoordinator(provider Provider, cache *IdentityCache, bus *event.Bus, language string) *Coordinator {
	if language == "" {
		language = types.DefaultLanguage
	}
	return &Coordinator{
		provider: provider,
		cache:    cache,
		bus:      bus,
		language: language,
		log:      logging.Component("session"),
		state:    StateUninitialized,
	}
}

// Init performs one reload and subscribes to session-change notifications.
// It runs at most once per process lifetime; later calls are no-ops.
func (c *Coordinator) Init(ctx context.Context) {
	c.initOnce.Do(func() {
		c.Reload(ctx)
		c.unsubscribe = c.provider.Subscribe(func(ev Event) {
			c.handleEvent(ctx, ev)
		})
	})
}

// Close unsubscribes from provider notifications.
func (c *Coordinator) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// User returns the normalized user record, or nil when unauthenticated.
func (c *Coordinator) User() *types.User {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user
}

// Identity returns the last observed identity, or nil when unauthenticated.
func (c *Coordinator) Identity() *types.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastIdentity == nil {
		return nil
	}
	identity := *c.lastIdentity
	return &identity
}

// Reload re-derives the authenticated user from the provider session and
// the profile cache. Reloads are serialized: when one is already in flight,
// callers wait for it instead of racing a second reload to completion.
func (c *Coordinator) Reload(ctx context.Context) {
	c.mu.Lock()
	if c.reload != nil {
		pending := c.reload
		c.mu.Unlock()
		select {
		case <-pending.done:
		case <-ctx.Done():
		}
		return
	}
	op := &reloadOp{done: make(chan struct{})}
	c.reload = op
	if c.state == StateUninitialized {
		c.state = StateInitializing
	}
	c.mu.Unlock()

	c.doReload(ctx)

	c.mu.Lock()
	c.reload = nil
	c.mu.Unlock()
	close(op.done)
}

func (c *Coordinator) doReload(ctx context.Context) {
	session, err := c.provider.GetSession(ctx)
	if err != nil {
		c.log.Error().Err(err).Msg("session retrieval failed")
		c.mu.Lock()
		c.user = nil
		c.lastIdentity = nil
		c.state = StateError
		c.mu.Unlock()
		c.publish(event.AuthReloaded, StateError)
		return
	}

	if session == nil {
		c.cache.Invalidate()
		c.mu.Lock()
		c.user = nil
		c.lastIdentity = nil
		c.state = StateUnauthenticated
		c.mu.Unlock()
		c.publish(event.AuthReloaded, StateUnauthenticated)
		return
	}

	identity := session.Identity()
	profile := c.cache.GetProfile(ctx, identity)
	user := normalizeUser(session, profile, c.language)

	c.mu.Lock()
	c.user = user
	c.lastIdentity = &identity
	c.state = StateAuthenticated
	c.mu.Unlock()

	c.log.Debug().Str("userID", user.ID).Str("userType", user.UserType).Msg("session reloaded")
	c.bus.Publish(event.Event{Type: event.AuthSignedIn, Data: user})
}

// handleEvent processes one session-change notification. Notifications are
// ignored entirely while a logout is in progress.
func (c *Coordinator) handleEvent(ctx context.Context, ev Event) {
	if c.loggingOut.Load() {
		return
	}

	if ev.Kind == SignedOut {
		// Unconditional, regardless of current state.
		c.clearLocal()
		c.bus.Publish(event.Event{Type: event.AuthSignedOut})
		return
	}

	if ev.Session == nil {
		return
	}

	// Providers emit no-op refresh notifications far more often than the
	// identity actually changes; reloading on every one would hammer the
	// backend for nothing.
	newIdentity := ev.Session.Identity()
	c.mu.Lock()
	last := c.lastIdentity
	c.mu.Unlock()
	if last != nil && last.Equal(newIdentity) {
		c.log.Debug().Str("kind", string(ev.Kind)).Msg("ignoring redundant session notification")
		return
	}

	c.Reload(ctx)
}

// Logout clears local state and signs out from the provider. A provider
// sign-out failure is logged but never blocks the local clearing.
func (c *Coordinator) Logout(ctx context.Context) {
	c.loggingOut.Store(true)
	defer c.loggingOut.Store(false)

	c.cache.Invalidate()

	if err := c.provider.SignOut(ctx); err != nil {
		c.log.Warn().Err(err).Msg("provider sign-out failed")
	}

	c.clearLocal()
	c.bus.Publish(event.Event{Type: event.AuthSignedOut})
}

func (c *Coordinator) clearLocal() {
	c.cache.Invalidate()
	c.mu.Lock()
	c.user = nil
	c.lastIdentity = nil
	c.state = StateUnauthenticated
	c.mu.Unlock()
}

func (c *Coordinator) publish(t event.Type, state State) {
	c.bus.Publish(event.Event{Type: t, Data: string(state)})
}

// normalizeUser merges provider-supplied fields with the backend profile.
// The backend augments, never replaces, what the provider reported.
func normalizeUser(session *Session, profile *types.Profile, language string) *types.User {
	user := &types.User{
		ID:       session.UserID,
		Email:    session.Email,
		Name:     session.Name,
		UserType: types.DefaultUserType,
		Language: language,
	}

	if profile != nil {
		if profile.UserType != "" {
			user.UserType = profile.UserType
		}
		if user.Email == "" {
			user.Email = profile.Email
		}
		if user.Name == "" {
			user.Name = profile.Name
		}
		if profile.Language != "" {
			user.Language = profile.Language
		}
	}

	return user
}
