// Package testutil provides a scriptable fake of the expert backend for
// integration tests.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// ProfileFixture is the backend-side profile served for one access token.
type ProfileFixture struct {
	UserID   string
	UserType string
	Email    string
	Name     string
	Language string
}

// ConversationFixture is a stored conversation with its messages.
type ConversationFixture struct {
	ID        string
	UserID    string
	Title     string
	Preview   string
	CreatedAt time.Time
	UpdatedAt time.Time
	Messages  []MessageFixture
}

// MessageFixture is a single stored message.
type MessageFixture struct {
	ID        string
	Content   string
	IsUser    bool
	Timestamp time.Time
}

// FakeBackend serves the expert API surface the client consumes, backed by
// in-memory fixtures. Every handler counts its calls so tests can assert on
// request traffic, not just on client state.
type FakeBackend struct {
	mu            sync.Mutex
	profiles      map[string]ProfileFixture // keyed by access token
	conversations map[string]ConversationFixture
	failProfile   bool
	failList      bool

	profileCalls int
	listCalls    int
	detailCalls  int
	deleteCalls  int

	server *httptest.Server
}

// StartFakeBackend starts an HTTP server with an empty fixture set.
func StartFakeBackend() *FakeBackend {
	b := &FakeBackend{
		profiles:      make(map[string]ProfileFixture),
		conversations: make(map[string]ConversationFixture),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Accept", "Content-Type"},
	}))

	r.Get("/v1/auth/me", b.handleProfile)
	r.Get("/v1/conversations/user/{userID}", b.handleList)
	r.Delete("/v1/conversations/user/{userID}", b.handleClear)
	r.Get("/v1/conversations/{id}", b.handleDetail)
	r.Delete("/v1/conversations/{id}", b.handleDelete)

	b.server = httptest.NewServer(r)
	return b
}

// BaseURL returns the server's base URL.
func (b *FakeBackend) BaseURL() string { return b.server.URL }

// Close shuts the server down.
func (b *FakeBackend) Close() { b.server.Close() }

// AddProfile registers the profile served for the given token.
func (b *FakeBackend) AddProfile(token string, p ProfileFixture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.profiles[token] = p
}

// AddConversation stores a conversation fixture.
func (b *FakeBackend) AddConversation(c ConversationFixture) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[c.ID] = c
}

// FailProfile makes the profile endpoint answer 500 when set.
func (b *FakeBackend) FailProfile(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failProfile = fail
}

// FailList makes the listing endpoint answer 500 when set.
func (b *FakeBackend) FailList(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failList = fail
}

// ProfileCalls reports how many times the profile endpoint was hit.
func (b *FakeBackend) ProfileCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.profileCalls
}

// ListCalls reports how many times the listing endpoint was hit.
func (b *FakeBackend) ListCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.listCalls
}

// DeleteCalls reports how many delete requests were received.
func (b *FakeBackend) DeleteCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deleteCalls
}

// ConversationCount reports how many conversations remain stored.
func (b *FakeBackend) ConversationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conversations)
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func (b *FakeBackend) handleProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.profileCalls++
	fail := b.failProfile
	p, ok := b.profiles[bearerToken(r)]
	b.mu.Unlock()

	if fail {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, map[string]any{
		"user_type": p.UserType,
		"email":     p.Email,
		"name":      p.Name,
		"language":  p.Language,
	})
}

func (b *FakeBackend) handleList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	b.mu.Lock()
	b.listCalls++
	fail := b.failList
	var records []map[string]any
	for _, c := range b.conversations {
		if c.UserID != userID {
			continue
		}
		records = append(records, conversationJSON(c))
	}
	b.mu.Unlock()

	if fail {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i]["id"].(string) < records[j]["id"].(string)
	})
	if records == nil {
		records = []map[string]any{}
	}
	writeJSON(w, records)
}

func (b *FakeBackend) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	b.detailCalls++
	c, ok := b.conversations[id]
	b.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	detail := conversationJSON(c)
	messages := make([]map[string]any, 0, len(c.Messages))
	for _, m := range c.Messages {
		messages = append(messages, map[string]any{
			"id":              m.ID,
			"conversation_id": c.ID,
			"content":         m.Content,
			"is_user":         m.IsUser,
			"timestamp":       m.Timestamp,
		})
	}
	detail["messages"] = messages
	writeJSON(w, detail)
}

func (b *FakeBackend) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	b.mu.Lock()
	b.deleteCalls++
	_, ok := b.conversations[id]
	delete(b.conversations, id)
	b.mu.Unlock()

	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (b *FakeBackend) handleClear(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	b.mu.Lock()
	b.deleteCalls++
	for id, c := range b.conversations {
		if c.UserID == userID {
			delete(b.conversations, id)
		}
	}
	b.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func conversationJSON(c ConversationFixture) map[string]any {
	return map[string]any{
		"id":            c.ID,
		"title":         c.Title,
		"preview":       c.Preview,
		"message_count": len(c.Messages),
		"created_at":    c.CreatedAt,
		"updated_at":    c.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
