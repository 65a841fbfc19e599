package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dominicdesy/intelia-expert-sub011/internal/logging"
	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

// DefaultProfileTTL is how long a fetched profile is served from cache.
const DefaultProfileTTL = 60 * time.Second

// ProfileFetcher retrieves the backend profile for an identity.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, identity types.Identity) (*types.Profile, error)
}

// profileFetch is a pending fetch shared by concurrent callers.
type profileFetch struct {
	done    chan struct{}
	profile *types.Profile
}

// IdentityCache is a time-bound cache of the backend profile for the current
// identity. At most one fetch is in flight per identity; concurrent callers
// join the pending fetch instead of issuing a duplicate request. A cached
// value is only served while both the user id and the access token still
// match, so a profile is never read across an identity change.
type IdentityCache struct {
	fetcher ProfileFetcher
	ttl     time.Duration
	now     func() time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	cached    *types.Profile
	owner     types.Identity
	fetchedAt time.Time
	inflight  map[types.Identity]*profileFetch
}

// NewIdentityCache creates a cache. A non-positive ttl falls back to
// DefaultProfileTTL.
func NewIdentityCache(fetcher ProfileFetcher, ttl time.Duration) *IdentityCache {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	return &IdentityCache{
		fetcher:  fetcher,
		ttl:      ttl,
		now:      time.Now,
		log:      logging.Component("identity-cache"),
		inflight: make(map[types.Identity]*profileFetch),
	}
}

// GetProfile returns the profile for the identity. Fetch failures are logged
// and resolve to nil; a failure is never cached, so the next call may retry
// immediately.
func (c *IdentityCache) GetProfile(ctx context.Context, identity types.Identity) *types.Profile {
	c.mu.Lock()

	if c.cached != nil && c.owner.Equal(identity) && c.now().Sub(c.fetchedAt) < c.ttl {
		profile := c.cached
		c.mu.Unlock()
		return profile
	}

	if pending, ok := c.inflight[identity]; ok {
		c.mu.Unlock()
		select {
		case <-pending.done:
			return pending.profile
		case <-ctx.Done():
			return nil
		}
	}

	fetch := &profileFetch{done: make(chan struct{})}
	c.inflight[identity] = fetch
	c.mu.Unlock()

	profile, err := c.fetcher.FetchProfile(ctx, identity)

	c.mu.Lock()
	if err != nil {
		c.log.Warn().Err(err).Str("userID", identity.UserID).Msg("profile fetch failed")
	} else {
		fetch.profile = profile
		c.cached = profile
		c.owner = identity
		c.fetchedAt = c.now()
	}
	delete(c.inflight, identity)
	c.mu.Unlock()

	close(fetch.done)
	return fetch.profile
}

// Invalidate clears the cached profile. Called on sign-out and identity
// change.
func (c *IdentityCache) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.owner = types.Identity{}
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
