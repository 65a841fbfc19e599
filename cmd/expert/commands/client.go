package commands

import (
	"context"
	"fmt"

	"github.com/dominicdesy/intelia-expert-sub011/internal/api"
	"github.com/dominicdesy/intelia-expert-sub011/internal/auth"
	"github.com/dominicdesy/intelia-expert-sub011/internal/conversation"
	"github.com/dominicdesy/intelia-expert-sub011/internal/event"
	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

// appClient bundles the wired coordination core for one CLI invocation.
type appClient struct {
	bus   *event.Bus
	coord *auth.Coordinator
	store *conversation.Store
}

// newAppClient wires the provider, cache, coordinator and store and runs
// the one-time initialization.
func newAppClient(ctx context.Context) *appClient {
	provider := auth.FromEnv()
	bus := event.NewBus()

	backend := api.NewClient(cfg.BackendURL, cfg.RequestTimeout)
	cache := auth.NewIdentityCache(backend, cfg.ProfileTTL)
	coord := auth.NewCoordinator(provider, cache, bus, cfg.Language)

	guard := conversation.NewLoadGuard(conversation.GuardConfig{
		Cooldown:     cfg.LoadCooldown,
		SuccessCache: cfg.SuccessCache,
		MaxRetries:   cfg.MaxRetries,
	})
	store := conversation.NewStore(backend, guard, bus)

	coord.Init(ctx)
	return &appClient{bus: bus, coord: coord, store: store}
}

// close releases the client's subscriptions.
func (c *appClient) close() {
	c.coord.Close()
	c.bus.Close()
}

// identity returns the authenticated identity or an actionable error.
func (c *appClient) identity() (types.Identity, error) {
	identity := c.coord.Identity()
	if identity == nil {
		return types.Identity{}, fmt.Errorf("not signed in (set INTELIA_USER_ID and INTELIA_ACCESS_TOKEN)")
	}
	return *identity, nil
}
