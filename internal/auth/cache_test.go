package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

// fakeFetcher counts fetches and can be made to block or fail.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   int32
	profile *types.Profile
	err     error
	block   chan struct{} // when set, fetches wait here before returning
}

func (f *fakeFetcher) FetchProfile(ctx context.Context, identity types.Identity) (*types.Profile, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

func (f *fakeFetcher) callCount() int32 {
	return atomic.LoadInt32(&f.calls)
}

func (f *fakeFetcher) set(profile *types.Profile, err error) {
	f.mu.Lock()
	f.profile = profile
	f.err = err
	f.mu.Unlock()
}

var (
	identityA = types.Identity{UserID: "42", AccessToken: "tok-a"}
	identityB = types.Identity{UserID: "7", AccessToken: "tok-b"}
)

func TestGetProfile_DeduplicatesConcurrentFetches(t *testing.T) {
	fetcher := &fakeFetcher{
		profile: &types.Profile{UserType: "admin"},
		block:   make(chan struct{}),
	}
	cache := NewIdentityCache(fetcher, 0)

	const callers = 8
	results := make([]*types.Profile, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.GetProfile(context.Background(), identityA)
		}(i)
	}

	// Let all callers reach the cache before the fetch resolves.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.block)
	wg.Wait()

	assert.Equal(t, int32(1), fetcher.callCount(), "exactly one network fetch")
	for i := 0; i < callers; i++ {
		require.NotNil(t, results[i])
		assert.Equal(t, "admin", results[i].UserType)
	}
}

func TestGetProfile_TTL(t *testing.T) {
	fetcher := &fakeFetcher{profile: &types.Profile{UserType: "producer"}}
	cache := NewIdentityCache(fetcher, 60*time.Second)

	start := time.Now()
	now := start
	cache.now = func() time.Time { return now }

	require.NotNil(t, cache.GetProfile(context.Background(), identityA))
	assert.Equal(t, int32(1), fetcher.callCount())

	// 59s after the fetch: served from cache.
	now = start.Add(59 * time.Second)
	require.NotNil(t, cache.GetProfile(context.Background(), identityA))
	assert.Equal(t, int32(1), fetcher.callCount())

	// 61s after the fetch: expired, refetched.
	now = start.Add(61 * time.Second)
	require.NotNil(t, cache.GetProfile(context.Background(), identityA))
	assert.Equal(t, int32(2), fetcher.callCount())
}

func TestGetProfile_IdentityScopedInvalidation(t *testing.T) {
	fetcher := &fakeFetcher{profile: &types.Profile{UserType: "producer"}}
	cache := NewIdentityCache(fetcher, time.Hour)

	cache.GetProfile(context.Background(), identityA)
	assert.Equal(t, int32(1), fetcher.callCount())

	// Different user: the unexpired entry for A must not be served.
	cache.GetProfile(context.Background(), identityB)
	assert.Equal(t, int32(2), fetcher.callCount())

	// Same user, rotated token: still an identity change.
	rotated := types.Identity{UserID: identityB.UserID, AccessToken: "tok-b2"}
	cache.GetProfile(context.Background(), rotated)
	assert.Equal(t, int32(3), fetcher.callCount())
}

func TestGetProfile_FailureNotCached(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("backend down")}
	cache := NewIdentityCache(fetcher, time.Hour)

	assert.Nil(t, cache.GetProfile(context.Background(), identityA))
	assert.Equal(t, int32(1), fetcher.callCount())

	// The failure was not cached; the next call retries immediately and
	// succeeds.
	fetcher.set(&types.Profile{UserType: "admin"}, nil)
	profile := cache.GetProfile(context.Background(), identityA)
	require.NotNil(t, profile)
	assert.Equal(t, "admin", profile.UserType)
	assert.Equal(t, int32(2), fetcher.callCount())
}

func TestInvalidate(t *testing.T) {
	fetcher := &fakeFetcher{profile: &types.Profile{UserType: "producer"}}
	cache := NewIdentityCache(fetcher, time.Hour)

	cache.GetProfile(context.Background(), identityA)
	cache.Invalidate()
	cache.GetProfile(context.Background(), identityA)

	assert.Equal(t, int32(2), fetcher.callCount())
}
