package auth

import (
	"context"
	"os"
	"sync"
)

// StaticProvider is an in-memory Provider fed with explicit credentials.
// The CLI uses it with environment-supplied tokens; tests script it through
// SignIn, RefreshToken and Update.
type StaticProvider struct {
	mu      sync.Mutex
	session *Session
	subs    map[uint64]func(Event)
	nextID  uint64
}

// NewStaticProvider creates a provider holding the given session, which may
// be nil for a signed-out start.
func NewStaticProvider(session *Session) *StaticProvider {
	return &StaticProvider{
		session: session,
		subs:    make(map[uint64]func(Event)),
	}
}

// FromEnv builds a provider from INTELIA_USER_ID, INTELIA_ACCESS_TOKEN and
// optionally INTELIA_EMAIL. Returns a signed-out provider when the
// credentials are absent.
func FromEnv() *StaticProvider {
	userID := os.Getenv("INTELIA_USER_ID")
	token := os.Getenv("INTELIA_ACCESS_TOKEN")
	if userID == "" || token == "" {
		return NewStaticProvider(nil)
	}
	return NewStaticProvider(&Session{
		UserID:      userID,
		AccessToken: token,
		Email:       os.Getenv("INTELIA_EMAIL"),
	})
}

// GetSession returns the current session, or nil when signed out.
func (p *StaticProvider) GetSession(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session, nil
}

// SignOut clears the session and notifies subscribers.
func (p *StaticProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.session = nil
	p.mu.Unlock()
	p.emit(Event{Kind: SignedOut})
	return nil
}

// Subscribe registers a session-change handler.
func (p *StaticProvider) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// SignIn installs a session and emits SIGNED_IN.
func (p *StaticProvider) SignIn(session *Session) {
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()
	p.emit(Event{Kind: SignedIn, Session: session})
}

// RefreshToken replaces the access token and emits TOKEN_REFRESHED. Passing
// the current token reproduces the provider's no-op refresh notifications.
func (p *StaticProvider) RefreshToken(token string) {
	p.mu.Lock()
	if p.session == nil {
		p.mu.Unlock()
		return
	}
	refreshed := *p.session
	refreshed.AccessToken = token
	p.session = &refreshed
	p.mu.Unlock()
	p.emit(Event{Kind: TokenRefreshed, Session: &refreshed})
}

// Update replaces session metadata and emits USER_UPDATED.
func (p *StaticProvider) Update(session *Session) {
	p.mu.Lock()
	p.session = session
	p.mu.Unlock()
	p.emit(Event{Kind: UserUpdated, Session: session})
}

// emit delivers an event to subscribers in the calling goroutine, matching
// the ordering guarantee of real providers.
func (p *StaticProvider) emit(ev Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
