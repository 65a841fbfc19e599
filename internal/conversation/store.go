package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/dominicdesy/intelia-expert-sub011/internal/api"
	"github.com/dominicdesy/intelia-expert-sub011/internal/event"
	"github.com/dominicdesy/intelia-expert-sub011/internal/logging"
	"github.com/dominicdesy/intelia-expert-sub011/pkg/types"
)

const (
	// placeholderTitle replaces a missing conversation title.
	placeholderTitle = "New conversation"

	// Character budgets for list rendering; overlong text is cut to the
	// budget with an ellipsis marker.
	maxTitleRunes   = 60
	maxPreviewRunes = 120
	ellipsis        = "…"

	// tempIDPrefix marks a provisional conversation that has not been
	// assigned a backend id yet.
	tempIDPrefix = "temp-"

	unavailableTitle   = "Conversation unavailable"
	unavailableMessage = "This conversation could not be loaded. Please try again later."
)

// Backend is the subset of the API client the store needs.
type Backend interface {
	ListConversations(ctx context.Context, identity types.Identity) ([]api.ConversationRecord, error)
	GetConversation(ctx context.Context, identity types.Identity, id string) (*api.ConversationDetailRecord, error)
	DeleteConversation(ctx context.Context, identity types.Identity, id string) error
	ClearConversations(ctx context.Context, identity types.Identity) error
}

// Store holds the in-memory conversation history: summaries grouped by
// recency plus the currently open conversation. Network loads go through
// the LoadGuard.
type Store struct {
	backend Backend
	guard   *LoadGuard
	bus     *event.Bus
	now     func() time.Time
	log     zerolog.Logger

	mu        sync.Mutex
	summaries []types.ConversationSummary
	groups    types.ConversationGroups
	current   *types.ConversationDetail
}

// NewStore creates a store.
func NewStore(backend Backend, guard *LoadGuard, bus *event.Bus) *Store {
	return &Store{
		backend: backend,
		guard:   guard,
		bus:     bus,
		now:     time.Now,
		log:     logging.Component("conversations"),
	}
}

// Summaries returns the loaded conversation summaries, newest first.
func (s *Store) Summaries() []types.ConversationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.ConversationSummary, len(s.summaries))
	copy(out, s.summaries)
	return out
}

// Groups returns the summaries bucketed by recency.
func (s *Store) Groups() types.ConversationGroups {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups
}

// Current returns the currently open conversation, or nil.
func (s *Store) Current() *types.ConversationDetail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Load fetches the conversation history for the identity. A load the guard
// denies returns without side effects. On failure the store is cleared and
// the error is returned to the caller; no retry is scheduled.
func (s *Store) Load(ctx context.Context, identity types.Identity) error {
	if !s.guard.Begin(identity) {
		s.log.Debug().Str("userID", identity.UserID).Msg("history load denied by guard")
		return nil
	}

	records, err := s.backend.ListConversations(ctx, identity)
	if err != nil {
		s.mu.Lock()
		s.summaries = nil
		s.groups = types.ConversationGroups{}
		s.mu.Unlock()
		s.guard.RecordFailure(identity)
		return fmt.Errorf("failed to load conversations: %w", err)
	}

	summaries := make([]types.ConversationSummary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, mapRecord(rec))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	groups := groupByRecency(summaries, s.now())

	s.mu.Lock()
	s.summaries = summaries
	s.groups = groups
	s.mu.Unlock()

	s.guard.RecordSuccess(identity)
	s.bus.Publish(event.Event{Type: event.ConversationsLoaded, Data: len(summaries)})
	return nil
}

// Refresh is the explicit user action: it resets the guard and loads,
// bypassing cooldown and success cache but not the in-flight check.
func (s *Store) Refresh(ctx context.Context, identity types.Identity) error {
	s.guard.ForceReset(identity)
	return s.Load(ctx, identity)
}

// LoadConversation opens a conversation. It tries the backend detail
// endpoint, falls back to reconstructing a preview from the loaded summary,
// and finally to a placeholder conversation; callers never observe an
// error from this path.
func (s *Store) LoadConversation(ctx context.Context, identity types.Identity, id string) *types.ConversationDetail {
	record, err := s.backend.GetConversation(ctx, identity, id)
	if err == nil && record != nil {
		detail := mapDetail(*record)
		s.setCurrent(detail)
		return detail
	}
	if err != nil && !errors.Is(err, api.ErrNotFound) {
		s.log.Warn().Err(err).Str("conversationID", id).Msg("conversation detail fetch failed")
	}

	s.mu.Lock()
	var summary *types.ConversationSummary
	for i := range s.summaries {
		if s.summaries[i].ID == id {
			summary = &s.summaries[i]
			break
		}
	}
	s.mu.Unlock()

	if summary != nil {
		detail := detailFromSummary(*summary)
		s.setCurrent(detail)
		return detail
	}

	detail := unavailableDetail(id, s.now())
	s.setCurrent(detail)
	return detail
}

// CreateNew opens a fresh provisional conversation.
func (s *Store) CreateNew() *types.ConversationDetail {
	now := s.now()
	detail := &types.ConversationDetail{
		ConversationSummary: types.ConversationSummary{
			ID:        tempIDPrefix + ulid.Make().String(),
			Title:     placeholderTitle,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	s.setCurrent(detail)
	return detail
}

// AddMessage appends a message to the current conversation, synthesizing a
// provisional conversation when none is open. Messages are deduplicated by
// id. When the conversation is still provisional and the message carries a
// real conversation id, the conversation is rebound to that id.
func (s *Store) AddMessage(msg types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.current == nil {
		id := msg.ConversationID
		if id == "" {
			id = tempIDPrefix + ulid.Make().String()
		}
		title := placeholderTitle
		if msg.IsUser && strings.TrimSpace(msg.Content) != "" {
			title = truncate(msg.Content, maxTitleRunes)
		}
		s.current = &types.ConversationDetail{
			ConversationSummary: types.ConversationSummary{
				ID:        id,
				Title:     title,
				CreatedAt: now,
				UpdatedAt: now,
			},
		}
	}

	for _, existing := range s.current.Messages {
		if existing.ID == msg.ID {
			return
		}
	}

	if strings.HasPrefix(s.current.ID, tempIDPrefix) &&
		msg.ConversationID != "" && !strings.HasPrefix(msg.ConversationID, tempIDPrefix) {
		s.current.ID = msg.ConversationID
		for i := range s.current.Messages {
			s.current.Messages[i].ConversationID = msg.ConversationID
		}
	}

	if msg.ConversationID == "" {
		msg.ConversationID = s.current.ID
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}

	s.current.Messages = append(s.current.Messages, msg)
	s.current.MessageCount = len(s.current.Messages)
	s.current.UpdatedAt = now
}

// MessagePatch is a partial message update.
type MessagePatch struct {
	Content  *string
	Feedback *string
}

// UpdateMessage merges the patch into the matching message of the current
// conversation. Without a current conversation this is a no-op.
func (s *Store) UpdateMessage(id string, patch MessagePatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return
	}
	for i := range s.current.Messages {
		if s.current.Messages[i].ID != id {
			continue
		}
		if patch.Content != nil {
			s.current.Messages[i].Content = *patch.Content
		}
		if patch.Feedback != nil {
			s.current.Messages[i].Feedback = patch.Feedback
		}
		return
	}
}

// DeleteConversation removes the conversation locally first, then makes the
// best-effort backend call. The optimistic removal is kept even when the
// backend call fails; the error is surfaced to the caller.
func (s *Store) DeleteConversation(ctx context.Context, identity types.Identity, id string) error {
	s.mu.Lock()
	kept := s.summaries[:0]
	for _, summary := range s.summaries {
		if summary.ID != id {
			kept = append(kept, summary)
		}
	}
	s.summaries = kept
	s.groups = groupByRecency(s.summaries, s.now())
	if s.current != nil && s.current.ID == id {
		s.current = nil
	}
	s.mu.Unlock()

	s.bus.Publish(event.Event{Type: event.ConversationDeleted, Data: id})
	return s.backend.DeleteConversation(ctx, identity, id)
}

// ClearAll drops every conversation locally, resets the guard so the next
// load is not blocked by stale cooldown or success state, then makes the
// best-effort backend call.
func (s *Store) ClearAll(ctx context.Context, identity types.Identity) error {
	s.mu.Lock()
	s.summaries = nil
	s.groups = types.ConversationGroups{}
	s.current = nil
	s.mu.Unlock()

	s.guard.ForceReset(identity)
	s.bus.Publish(event.Event{Type: event.ConversationsClear})
	return s.backend.ClearConversations(ctx, identity)
}

func (s *Store) setCurrent(detail *types.ConversationDetail) {
	s.mu.Lock()
	s.current = detail
	s.mu.Unlock()
	s.bus.Publish(event.Event{Type: event.ConversationOpened, Data: detail.ID})
}

// mapRecord converts a backend record into a summary, applying the
// placeholder title and the display budgets.
func mapRecord(rec api.ConversationRecord) types.ConversationSummary {
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = placeholderTitle
	}
	return types.ConversationSummary{
		ID:                 rec.ID,
		Title:              truncate(title, maxTitleRunes),
		Preview:            truncate(rec.Preview, maxPreviewRunes),
		MessageCount:       rec.MessageCount,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
		LastMessagePreview: truncate(rec.LastMessagePreview, maxPreviewRunes),
		Feedback:           rec.Feedback,
	}
}

func mapDetail(rec api.ConversationDetailRecord) *types.ConversationDetail {
	detail := &types.ConversationDetail{
		ConversationSummary: mapRecord(rec.ConversationRecord),
	}
	for _, m := range rec.Messages {
		detail.Messages = append(detail.Messages, types.Message{
			ID:             m.ID,
			ConversationID: m.ConversationID,
			Content:        m.Content,
			IsUser:         m.IsUser,
			Timestamp:      m.Timestamp,
			Feedback:       m.Feedback,
		})
	}
	detail.MessageCount = len(detail.Messages)
	return detail
}

// detailFromSummary reconstructs an openable conversation from a summary
// when the detail transport has no data, synthesizing a two-message
// preview.
func detailFromSummary(summary types.ConversationSummary) *types.ConversationDetail {
	userContent := summary.Preview
	if userContent == "" {
		userContent = summary.Title
	}
	detail := &types.ConversationDetail{
		ConversationSummary: summary,
		Messages: []types.Message{
			{
				ID:             summary.ID + "-preview-user",
				ConversationID: summary.ID,
				Content:        userContent,
				IsUser:         true,
				Timestamp:      summary.CreatedAt,
			},
		},
	}
	if summary.LastMessagePreview != "" {
		detail.Messages = append(detail.Messages, types.Message{
			ID:             summary.ID + "-preview-assistant",
			ConversationID: summary.ID,
			Content:        summary.LastMessagePreview,
			Timestamp:      summary.UpdatedAt,
		})
	}
	detail.MessageCount = len(detail.Messages)
	return detail
}

// unavailableDetail is the terminal fallback: a synthetic conversation
// holding exactly one assistant-authored error message.
func unavailableDetail(id string, now time.Time) *types.ConversationDetail {
	return &types.ConversationDetail{
		ConversationSummary: types.ConversationSummary{
			ID:           id,
			Title:        unavailableTitle,
			MessageCount: 1,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		Messages: []types.Message{
			{
				ID:             id + "-unavailable",
				ConversationID: id,
				Content:        unavailableMessage,
				Timestamp:      now,
			},
		},
	}
}

// truncate cuts s to at most budget runes, ellipsis included.
func truncate(s string, budget int) string {
	if utf8.RuneCountInString(s) <= budget {
		return s
	}
	runes := []rune(s)
	return string(runes[:budget-1]) + ellipsis
}

// groupByRecency buckets summaries by local wall-clock midnight boundaries.
func groupByRecency(summaries []types.ConversationSummary, now time.Time) types.ConversationGroups {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := midnight.AddDate(0, 0, -1)
	weekStart := midnight.AddDate(0, 0, -7)
	monthStart := midnight.AddDate(0, 0, -30)

	var groups types.ConversationGroups
	for _, summary := range summaries {
		switch t := summary.UpdatedAt.In(now.Location()); {
		case !t.Before(midnight):
			groups.Today = append(groups.Today, summary)
		case !t.Before(yesterday):
			groups.Yesterday = append(groups.Yesterday, summary)
		case !t.Before(weekStart):
			groups.ThisWeek = append(groups.ThisWeek, summary)
		case !t.Before(monthStart):
			groups.ThisMonth = append(groups.ThisMonth, summary)
		default:
			groups.Older = append(groups.Older, summary)
		}
	}
	return groups
}
