// Package model defines data structures for the agent queue service.
package model

import (
	"errors"
	"time"
)

// ErrConversationNotFound is returned when a conversation id is not in the table.
var ErrConversationNotFound = errors.New("conversation not found")

// Sender identifies which side of a conversation authored a message.
type Sender string

const (
	SenderCustomer Sender = "customer"
	SenderAgent    Sender = "agent"
)

// ChatType classifies a conversation's current queue state. The backend may
// supply it directly; the ingestor overrides it provisionally on local
// updates and the next snapshot wins unconditionally.
type ChatType string

const (
	ChatTypePanic    ChatType = "panic"
	ChatTypeQueue    ChatType = "queue"
	ChatTypeReminder ChatType = "reminder"
	ChatTypeIdle     ChatType = "idle"
)

// Message is a single chat message. Messages are append-only; a deleted
// message is flagged, never removed from the sequence.
type Message struct {
	ID             string    `json:"id"`
	Sender         Sender    `json:"sender"`
	Message        string    `json:"message"`
	MessageType    string    `json:"message_type,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ReadByAgent    bool      `json:"read_by_agent"`
	ReadByCustomer bool      `json:"read_by_customer"`
	Deleted        bool      `json:"deleted,omitempty"`
}

// AgentRef identifies the agent assigned to a conversation.
type AgentRef struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AgentCode string `json:"agent_code"`
}

// LastMessage is the denormalized summary of the tail of Messages.
type LastMessage struct {
	Message        string    `json:"message"`
	MessageType    string    `json:"message_type,omitempty"`
	Sender         Sender    `json:"sender"`
	Timestamp      time.Time `json:"timestamp"`
	ReadByAgent    bool      `json:"read_by_agent"`
	ReadByCustomer bool      `json:"read_by_customer"`
}

// Conversation is the client-side authoritative view of one chat thread.
type Conversation struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customer_id,omitempty"`
	CustomerName  string    `json:"customer_name,omitempty"`
	AssignedAgent *AgentRef `json:"assigned_agent,omitempty"`

	Messages    []Message `json:"messages,omitempty"`
	UnreadCount int       `json:"unread_count"`

	ChatType      ChatType `json:"chat_type"`
	IsInPanicRoom bool     `json:"is_in_panic_room"`

	ReminderActive         bool    `json:"reminder_active"`
	ReminderHandled        bool    `json:"reminder_handled"`
	ReminderCount          int     `json:"reminder_count,omitempty"`
	HoursSinceLastCustomer float64 `json:"hours_since_last_customer,omitempty"`

	LastMessage *LastMessage `json:"last_message,omitempty"`

	// Externally supplied tie-break hint; nil means unset.
	Priority *int `json:"priority,omitempty"`

	LastCustomerResponse *time.Time `json:"last_customer_response,omitempty"`
	LastAgentResponse    *time.Time `json:"last_agent_response,omitempty"`
	LastActive           *time.Time `json:"last_active,omitempty"`
	UpdatedAt            *time.Time `json:"updated_at,omitempty"`
	CreatedAt            *time.Time `json:"created_at,omitempty"`
}

// RecomputeUnread derives the unread count from the message sequence:
// customer-authored, unread by the agent, not soft-deleted. Idempotent.
func (c *Conversation) RecomputeUnread() int {
	n := 0
	for _, m := range c.Messages {
		if m.Sender == SenderCustomer && !m.ReadByAgent && !m.Deleted {
			n++
		}
	}
	return n
}

// SyncLastMessage refreshes the denormalized summary from the tail of Messages.
func (c *Conversation) SyncLastMessage() {
	if len(c.Messages) == 0 {
		return
	}
	tail := c.Messages[len(c.Messages)-1]
	c.LastMessage = &LastMessage{
		Message:        tail.Message,
		MessageType:    tail.MessageType,
		Sender:         tail.Sender,
		Timestamp:      tail.Timestamp,
		ReadByAgent:    tail.ReadByAgent,
		ReadByCustomer: tail.ReadByCustomer,
	}
}

// Normalize fills missing fields with safe defaults so downstream logic
// never needs fallbacks: unread count derived from messages when present,
// chat type derived from panic/unread/reminder state when absent, last
// message summary synced with the message tail.
func (c *Conversation) Normalize() {
	if len(c.Messages) > 0 {
		c.UnreadCount = c.RecomputeUnread()
		if c.LastMessage == nil {
			c.SyncLastMessage()
		}
	}
	if c.UnreadCount < 0 {
		c.UnreadCount = 0
	}
	if c.ChatType == "" {
		switch {
		case c.IsInPanicRoom:
			c.ChatType = ChatTypePanic
		case c.UnreadCount > 0:
			c.ChatType = ChatTypeQueue
		case c.ReminderActive:
			c.ChatType = ChatTypeReminder
		default:
			c.ChatType = ChatTypeIdle
		}
	}
}

// LastSender reports who authored the most recent message, preferring the
// denormalized summary over the message tail.
func (c *Conversation) LastSender() (Sender, bool) {
	if c.LastMessage != nil {
		return c.LastMessage.Sender, true
	}
	if len(c.Messages) > 0 {
		return c.Messages[len(c.Messages)-1].Sender, true
	}
	return "", false
}

// LastActivity returns the recency timestamp used as the final sort
// fallback: last message summary, message tail, updated, last active,
// created. The first defined value wins; zero if none are set.
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessage != nil && !c.LastMessage.Timestamp.IsZero() {
		return c.LastMessage.Timestamp
	}
	if len(c.Messages) > 0 && !c.Messages[len(c.Messages)-1].Timestamp.IsZero() {
		return c.Messages[len(c.Messages)-1].Timestamp
	}
	if c.UpdatedAt != nil {
		return *c.UpdatedAt
	}
	if c.LastActive != nil {
		return *c.LastActive
	}
	if c.CreatedAt != nil {
		return *c.CreatedAt
	}
	return time.Time{}
}

// Presence is a per-customer presence record. It lives outside the
// conversation table because presence is keyed by customer, not thread.
type Presence struct {
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
	Status   string     `json:"status,omitempty"`
}

// Like is one entry in the parallel likes list; likes never materialize
// conversations until the customer opens a chat.
type Like struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	CustomerName string    `json:"customer_name"`
	ProfileID    string    `json:"profile_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Notification is a lightweight record shown in the console's bell menu.
type Notification struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	CustomerID   string    `json:"customer_id,omitempty"`
	CustomerName string    `json:"customer_name,omitempty"`
	Message      string    `json:"message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
