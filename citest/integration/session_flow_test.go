package integration_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dominicdesy/intelia-expert-sub011/citest/testutil"
	"github.com/dominicdesy/intelia-expert-sub011/internal/api"
	"github.com/dominicdesy/intelia-expert-sub011/internal/auth"
	"github.com/dominicdesy/intelia-expert-sub011/internal/conversation"
	"github.com/dominicdesy/intelia-expert-sub011/internal/event"
	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

const (
	testUserID = "usr-100"
	testToken  = "tok-alpha"
)

var _ = Describe("Session flow", func() {
	var (
		backend  *testutil.FakeBackend
		provider *auth.StaticProvider
		bus      *event.Bus
		coord    *auth.Coordinator
		store    *conversation.Store
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		backend = testutil.StartFakeBackend()
		backend.AddProfile(testToken, testutil.ProfileFixture{
			UserID:   testUserID,
			UserType: "veterinarian",
			Email:    "vet@example.com",
			Name:     "Dr. Brown",
			Language: "fr",
		})
		backend.AddConversation(testutil.ConversationFixture{
			ID:        "conv-1",
			UserID:    testUserID,
			Title:     "Broiler weight gain",
			Preview:   "My broilers are underweight at day 21",
			CreatedAt: time.Now().Add(-2 * time.Hour),
			UpdatedAt: time.Now().Add(-time.Hour),
			Messages: []testutil.MessageFixture{
				{ID: "msg-1", Content: "My broilers are underweight at day 21", IsUser: true, Timestamp: time.Now().Add(-2 * time.Hour)},
				{ID: "msg-2", Content: "Check feed conversion and temperature first.", IsUser: false, Timestamp: time.Now().Add(-time.Hour)},
			},
		})
		backend.AddConversation(testutil.ConversationFixture{
			ID:        "conv-2",
			UserID:    testUserID,
			Title:     "Vaccination schedule",
			CreatedAt: time.Now().Add(-40 * 24 * time.Hour),
			UpdatedAt: time.Now().Add(-40 * 24 * time.Hour),
		})

		provider = auth.NewStaticProvider(&auth.Session{
			UserID:      testUserID,
			AccessToken: testToken,
			Email:       "vet@example.com",
		})

		bus = event.NewBus()
		apiClient := api.NewClient(backend.BaseURL(), 5*time.Second)
		cache := auth.NewIdentityCache(apiClient, time.Minute)
		coord = auth.NewCoordinator(provider, cache, bus, "en")
		guard := conversation.NewLoadGuard(conversation.GuardConfig{
			Cooldown:     10 * time.Minute,
			SuccessCache: 30 * time.Minute,
			MaxRetries:   1,
		})
		store = conversation.NewStore(apiClient, guard, bus)
	})

	AfterEach(func() {
		coord.Close()
		bus.Close()
		backend.Close()
	})

	Describe("Initialization", func() {
		It("authenticates and merges the backend profile", func() {
			coord.Init(ctx)

			Expect(coord.State()).To(Equal(auth.StateAuthenticated))
			user := coord.User()
			Expect(user).NotTo(BeNil())
			Expect(user.ID).To(Equal(testUserID))
			Expect(user.UserType).To(Equal("veterinarian"))
			Expect(user.Language).To(Equal("fr"))
			Expect(backend.ProfileCalls()).To(Equal(1))
		})

		It("stays usable with defaults when the profile endpoint fails", func() {
			backend.FailProfile(true)
			coord.Init(ctx)

			Expect(coord.State()).To(Equal(auth.StateAuthenticated))
			user := coord.User()
			Expect(user.UserType).To(Equal(types.DefaultUserType))
			Expect(user.Language).To(Equal("en"))
		})

		It("initializes at most once", func() {
			coord.Init(ctx)
			coord.Init(ctx)
			coord.Init(ctx)

			Expect(backend.ProfileCalls()).To(Equal(1))
		})
	})

	Describe("Session notifications", func() {
		BeforeEach(func() {
			coord.Init(ctx)
		})

		It("ignores a token refresh carrying the same credentials", func() {
			provider.RefreshToken(testToken)

			Expect(coord.State()).To(Equal(auth.StateAuthenticated))
			Expect(backend.ProfileCalls()).To(Equal(1))
		})

		It("re-fetches the profile when the token rotates", func() {
			backend.AddProfile("tok-beta", testutil.ProfileFixture{
				UserID:   testUserID,
				UserType: "veterinarian",
				Language: "fr",
			})
			provider.RefreshToken("tok-beta")

			Expect(coord.State()).To(Equal(auth.StateAuthenticated))
			Expect(backend.ProfileCalls()).To(Equal(2))
		})

		It("clears everything on sign-out", func() {
			provider.SignOut(ctx)

			Expect(coord.State()).To(Equal(auth.StateUnauthenticated))
			Expect(coord.User()).To(BeNil())
			Expect(coord.Identity()).To(BeNil())
		})
	})

	Describe("History", func() {
		var identity types.Identity

		BeforeEach(func() {
			coord.Init(ctx)
			id := coord.Identity()
			Expect(id).NotTo(BeNil())
			identity = *id
		})

		It("loads and groups the conversation list", func() {
			Expect(store.Load(ctx, identity)).To(Succeed())

			Expect(store.Summaries()).To(HaveLen(2))
			groups := store.Groups()
			Expect(groups.Today).To(HaveLen(1))
			Expect(groups.Today[0].ID).To(Equal("conv-1"))
			Expect(groups.Older).To(HaveLen(1))
		})

		It("serves a repeat load from the success window without a request", func() {
			Expect(store.Load(ctx, identity)).To(Succeed())
			Expect(store.Load(ctx, identity)).To(Succeed())

			Expect(backend.ListCalls()).To(Equal(1))
		})

		It("bypasses the success window on refresh", func() {
			Expect(store.Load(ctx, identity)).To(Succeed())
			Expect(store.Refresh(ctx, identity)).To(Succeed())

			Expect(backend.ListCalls()).To(Equal(2))
		})

		It("opens a conversation with its messages", func() {
			detail := store.LoadConversation(ctx, identity, "conv-1")

			Expect(detail.Title).To(Equal("Broiler weight gain"))
			Expect(detail.Messages).To(HaveLen(2))
			Expect(detail.Messages[0].IsUser).To(BeTrue())
		})

		It("never fails opening an unknown conversation", func() {
			detail := store.LoadConversation(ctx, identity, "conv-missing")

			Expect(detail).NotTo(BeNil())
			Expect(detail.Messages).To(HaveLen(1))
			Expect(detail.Messages[0].IsUser).To(BeFalse())
		})

		It("deletes a conversation remotely and locally", func() {
			Expect(store.Load(ctx, identity)).To(Succeed())
			Expect(store.DeleteConversation(ctx, identity, "conv-1")).To(Succeed())

			Expect(backend.ConversationCount()).To(Equal(1))
			Expect(store.Summaries()).To(HaveLen(1))
		})

		It("clears the whole history", func() {
			Expect(store.Load(ctx, identity)).To(Succeed())
			Expect(store.ClearAll(ctx, identity)).To(Succeed())

			Expect(backend.ConversationCount()).To(BeZero())
			Expect(store.Summaries()).To(BeEmpty())
		})
	})
})
