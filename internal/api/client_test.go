package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

var testIdentity = types.Identity{UserID: "42", AccessToken: "tok-a"}

func TestFetchProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/auth/me", r.URL.Path)
		assert.Equal(t, "Bearer tok-a", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"user_type": "admin", "email": "a@intelia.com"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	profile, err := c.FetchProfile(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.Equal(t, "admin", profile.UserType)
	assert.Equal(t, "a@intelia.com", profile.Email)
}

func TestFetchProfileRoleFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"role": "veterinarian"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	profile, err := c.FetchProfile(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.Equal(t, "veterinarian", profile.UserType)
}

func TestFetchProfileServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.FetchProfile(context.Background(), testIdentity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestListConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/conversations/user/42", r.URL.Path)
		w.Write([]byte(`[
			{"id": "c1", "title": "Broiler weight", "message_count": 4,
			 "created_at": "2026-08-01T10:00:00Z", "updated_at": "2026-08-02T10:00:00Z"},
			{"id": "c2", "title": "", "message_count": 2,
			 "created_at": "2026-08-03T10:00:00Z", "updated_at": "2026-08-03T11:00:00Z"}
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	records, err := c.ListConversations(context.Background(), testIdentity)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "c1", records[0].ID)
	assert.Equal(t, 4, records[0].MessageCount)
	assert.Equal(t, time.Date(2026, 8, 2, 10, 0, 0, 0, time.UTC), records[0].UpdatedAt)
}

func TestGetConversationNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	_, err := c.GetConversation(context.Background(), testIdentity, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteConversationRetriesTransientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	err := c.DeleteConversation(context.Background(), testIdentity, "c1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestDeleteConversationDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	err := c.DeleteConversation(context.Background(), testIdentity, "c1")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDeleteConversationTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	assert.NoError(t, c.DeleteConversation(context.Background(), testIdentity, "gone"))
}

func TestClearConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/conversations/user/42", r.URL.Path)
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	assert.NoError(t, c.ClearConversations(context.Background(), testIdentity))
}

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.ListConversations(ctx, testIdentity)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
