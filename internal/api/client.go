// Package api provides the HTTP client for the expert backend.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/dominicdesy/intelia-expert-sub011/internal/logging"
	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

// ErrNotFound is returned when the backend reports 404 for a resource.
var ErrNotFound = errors.New("not found")

const (
	// DefaultTimeout bounds any single backend fetch.
	DefaultTimeout = 10 * time.Second

	// deleteRetryLimit caps the bounded retry on best-effort delete calls.
	// Admission-controlled loads never retry here; their pacing belongs to
	// the history load guard.
	deleteRetryLimit = 2
)

// Client talks to the expert backend API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates a backend client. A zero timeout falls back to
// DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logging.Component("api"),
	}
}

// profileResponse tolerates both the current `user_type` field and the
// legacy `role` alias.
type profileResponse struct {
	UserType string `json:"user_type"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Language string `json:"language"`
}

// FetchProfile retrieves the backend profile for the identity via the
// profile endpoint.
func (c *Client) FetchProfile(ctx context.Context, identity types.Identity) (*types.Profile, error) {
	var resp profileResponse
	if err := c.getJSON(ctx, identity, "/v1/auth/me", &resp); err != nil {
		return nil, err
	}

	userType := resp.UserType
	if userType == "" {
		userType = resp.Role
	}

	return &types.Profile{
		UserType: userType,
		Email:    resp.Email,
		Name:     resp.Name,
		Language: resp.Language,
	}, nil
}

// ConversationRecord is a conversation as the backend returns it in the
// history listing.
type ConversationRecord struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Preview            string    `json:"preview"`
	MessageCount       int       `json:"message_count"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
	LastMessagePreview string    `json:"last_message_preview"`
	Status             string    `json:"status"`
	Feedback           *string   `json:"feedback"`
}

// MessageRecord is a single message in a conversation detail response.
type MessageRecord struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Content        string    `json:"content"`
	IsUser         bool      `json:"is_user"`
	Timestamp      time.Time `json:"timestamp"`
	Feedback       *string   `json:"feedback"`
}

// ConversationDetailRecord is a conversation with its full message list.
type ConversationDetailRecord struct {
	ConversationRecord
	Messages []MessageRecord `json:"messages"`
}

// ListConversations retrieves every conversation belonging to the identity.
func (c *Client) ListConversations(ctx context.Context, identity types.Identity) ([]ConversationRecord, error) {
	var records []ConversationRecord
	path := "/v1/conversations/user/" + identity.UserID
	if err := c.getJSON(ctx, identity, path, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetConversation retrieves a conversation with its messages. Returns
// ErrNotFound when the backend has no such conversation.
func (c *Client) GetConversation(ctx context.Context, identity types.Identity, id string) (*ConversationDetailRecord, error) {
	var record ConversationDetailRecord
	if err := c.getJSON(ctx, identity, "/v1/conversations/"+id, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteConversation removes a single conversation. The local store has
// already dropped it optimistically, so transient failures are retried with
// backoff before the error is surfaced.
func (c *Client) DeleteConversation(ctx context.Context, identity types.Identity, id string) error {
	return c.deleteWithRetry(ctx, identity, "/v1/conversations/"+id)
}

// ClearConversations removes every conversation belonging to the identity.
func (c *Client) ClearConversations(ctx context.Context, identity types.Identity) error {
	return c.deleteWithRetry(ctx, identity, "/v1/conversations/user/"+identity.UserID)
}

func (c *Client) getJSON(ctx context.Context, identity types.Identity, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+identity.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) deleteWithRetry(ctx context.Context, identity types.Identity, path string) error {
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+identity.AccessToken)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("delete %s failed: %w", path, err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusNotFound:
			// Already gone; the optimistic local removal was right.
			return nil
		case resp.StatusCode >= 500:
			return fmt.Errorf("delete %s returned %d", path, resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return backoff.Permanent(fmt.Errorf("delete %s returned %d", path, resp.StatusCode))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = time.Second

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, deleteRetryLimit), ctx))
	if err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("best-effort delete failed")
	}
	return err
}
