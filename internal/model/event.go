package model

import (
	"time"
)

// EventKind discriminates real-time event envelopes.
type EventKind string

const (
	EventChatMessage     EventKind = "chat_message"
	EventMessagesRead    EventKind = "messages_read"
	EventUserPresence    EventKind = "user_presence"
	EventUserActivity    EventKind = "user_activity_update"
	EventNewLike         EventKind = "new_like"
	EventNotifications   EventKind = "notifications_update"
	EventQueueUpdate     EventKind = "queue_update"
	EventLiveQueueUpdate EventKind = "live_queue_update"
	EventNewChat         EventKind = "new_chat_created"
	EventReminderUpdates EventKind = "reminder_updates"

	// EventOutgoingSent is the locally originated marker published to the
	// audit stream when an agent sends a message ahead of confirmation.
	EventOutgoingSent EventKind = "outgoing_sent"
)

// Event is the envelope delivered by the event bus. Only the fields
// relevant to Type are populated; the ingestor dispatches on Type and
// validates the payload per variant.
type Event struct {
	Type      EventKind `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`

	// chat_message
	Message *Message `json:"message,omitempty"`

	// messages_read
	ReadBy     Sender   `json:"read_by,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`

	// user_presence / user_activity_update
	CustomerID string    `json:"customer_id,omitempty"`
	Presence   *Presence `json:"presence,omitempty"`

	// new_chat_created
	Conversation *Conversation `json:"conversation,omitempty"`

	// reminder_updates
	Reminder *ReminderUpdate `json:"reminder,omitempty"`

	// new_like
	Like *Like `json:"like,omitempty"`

	// notifications_update
	Notifications []Notification `json:"notifications,omitempty"`
}

// ReminderUpdate carries reminder-subsystem fields for one conversation.
type ReminderUpdate struct {
	ReminderActive         bool    `json:"reminder_active"`
	ReminderHandled        bool    `json:"reminder_handled"`
	ReminderCount          int     `json:"reminder_count,omitempty"`
	HoursSinceLastCustomer float64 `json:"hours_since_last_customer,omitempty"`
}
