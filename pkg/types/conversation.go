package types

import "time"

// ConversationSummary is a lightweight view of a conversation, as shown in
// the history sidebar. Summaries are replaced wholesale on each successful
// history load.
type ConversationSummary struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Preview            string    `json:"preview,omitempty"`
	MessageCount       int       `json:"messageCount"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	LastMessagePreview string    `json:"lastMessagePreview,omitempty"`
	Feedback           *string   `json:"feedback,omitempty"`
}

// Message is a single entry in a conversation. IsUser distinguishes the
// farmer's questions from the assistant's answers.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationID"`
	Content        string    `json:"content"`
	IsUser         bool      `json:"isUser"`
	Timestamp      time.Time `json:"timestamp"`
	Feedback       *string   `json:"feedback,omitempty"`
}

// ConversationDetail is a summary plus the full ordered message list.
// Exactly one detail is current at a time.
type ConversationDetail struct {
	ConversationSummary
	Messages []Message `json:"messages"`
}

// ConversationGroups buckets summaries by recency, computed from local
// wall-clock midnight boundaries.
type ConversationGroups struct {
	Today     []ConversationSummary `json:"today"`
	Yesterday []ConversationSummary `json:"yesterday"`
	ThisWeek  []ConversationSummary `json:"thisWeek"`
	ThisMonth []ConversationSummary `json:"thisMonth"`
	Older     []ConversationSummary `json:"older"`
}
