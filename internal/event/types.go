package event

// Type identifies a client lifecycle event.
type Type string

const (
	AuthSignedIn        Type = "auth.signed_in"
	AuthSignedOut       Type = "auth.signed_out"
	AuthReloaded        Type = "auth.reloaded"
	ConversationsLoaded Type = "conversations.loaded"
	ConversationOpened  Type = "conversation.opened"
	ConversationDeleted Type = "conversation.deleted"
	ConversationsClear  Type = "conversations.cleared"
	ConfigUpdated       Type = "config.updated"
)

// Event carries a lifecycle notification to UI subscribers.
type Event struct {
	Type Type `json:"type"`
	Data any  `json:"data,omitempty"`
}
