package queue

import (
	"sync"
	"time"

	"github.com/lumichat/agent-queue/internal/model"
	"github.com/lumichat/agent-queue/pkg/logger"
	"github.com/lumichat/agent-queue/pkg/metrics"
)

// maxNotifications caps the bell-menu list; the oldest entry is dropped.
const maxNotifications = 10

// Hooks are the explicit collaborators the ingestor may call back into.
// They are injected at construction so the engine never reaches for
// ambient globals.
type Hooks struct {
	// RefreshSnapshot schedules a full conversation refetch.
	RefreshSnapshot func()
	// RefreshLikes schedules a refetch of the parallel likes list.
	RefreshLikes func()
}

// Ingestor translates inbound real-time events into table mutations.
// Dispatch is a tagged-union match on event kind with one handler per
// variant; malformed events are dropped and logged, never fatal.
type Ingestor struct {
	table  *Table
	hooks  Hooks
	logger *logger.Logger

	mu            sync.Mutex
	notifications []model.Notification
}

// NewIngestor creates an ingestor bound to a table and its callbacks.
func NewIngestor(table *Table, hooks Hooks, log *logger.Logger) *Ingestor {
	return &Ingestor{
		table:  table,
		hooks:  hooks,
		logger: log,
	}
}

// Apply routes one event to its handler. Events are applied in arrival
// order; unread recomputation is derived fresh from the message list on
// every patch, so out-of-order arrival of chat_message and messages_read
// converges to the same state either way.
func (in *Ingestor) Apply(ev model.Event) {
	switch ev.Type {
	case model.EventChatMessage:
		in.applyChatMessage(ev)
	case model.EventMessagesRead:
		in.applyMessagesRead(ev)
	case model.EventUserPresence:
		in.applyPresence(ev)
	case model.EventUserActivity:
		in.applyActivity(ev)
	case model.EventNewLike:
		in.applyNewLike(ev)
	case model.EventNotifications:
		in.applyNotifications(ev)
	case model.EventReminderUpdates:
		in.applyReminderUpdate(ev)
	case model.EventNewChat:
		in.applyNewChat(ev)
	case model.EventQueueUpdate, model.EventLiveQueueUpdate:
		in.scheduleRefresh(ev)
	case model.EventOutgoingSent:
		// Audit-stream echo of our own local marker; suppression was
		// already applied at send time.
		metrics.RecordEvent(string(ev.Type))
	default:
		in.drop(ev, "unknown_kind")
	}
}

func (in *Ingestor) applyChatMessage(ev model.Event) {
	if ev.ChatID == "" || ev.Message == nil {
		in.drop(ev, "missing_payload")
		return
	}

	msg := *ev.Message
	if msg.Timestamp.IsZero() {
		msg.Timestamp = in.eventTime(ev)
	}
	now := in.eventTime(ev)

	applied := in.table.Patch(ev.ChatID, func(c *model.Conversation) {
		c.Messages = append(c.Messages, msg)
		c.UnreadCount = c.RecomputeUnread()
		c.SyncLastMessage()

		switch msg.Sender {
		case model.SenderCustomer:
			if c.ChatType != model.ChatTypePanic && !c.IsInPanicRoom {
				c.ChatType = model.ChatTypeQueue
			}
			c.LastCustomerResponse = &now
			c.ReminderActive = false
			c.ReminderHandled = false
		case model.SenderAgent:
			if c.UnreadCount == 0 && c.ChatType != model.ChatTypePanic && !c.IsInPanicRoom {
				c.ChatType = model.ChatTypeIdle
			}
			c.LastAgentResponse = &now
			c.ReminderHandled = true
			c.ReminderActive = false
		}
	})
	if !applied {
		in.drop(ev, "unknown_conversation")
		return
	}

	// A customer-authored message restores visibility for a conversation
	// hidden by the optimistic outgoing-send suppression.
	if msg.Sender == model.SenderCustomer {
		in.table.Unsuppress(ev.ChatID)
	}

	metrics.RecordEvent(string(ev.Type))
}

func (in *Ingestor) applyMessagesRead(ev model.Event) {
	if ev.ChatID == "" || ev.ReadBy == "" {
		in.drop(ev, "missing_payload")
		return
	}

	var only map[string]struct{}
	if len(ev.MessageIDs) > 0 {
		only = make(map[string]struct{}, len(ev.MessageIDs))
		for _, id := range ev.MessageIDs {
			only[id] = struct{}{}
		}
	}

	applied := in.table.Patch(ev.ChatID, func(c *model.Conversation) {
		for i := range c.Messages {
			m := &c.Messages[i]
			if only != nil {
				if _, ok := only[m.ID]; !ok {
					continue
				}
			}
			// readBy names the reader: the agent reads customer messages
			// and vice versa.
			switch ev.ReadBy {
			case model.SenderAgent:
				if m.Sender == model.SenderCustomer {
					m.ReadByAgent = true
				}
			case model.SenderCustomer:
				if m.Sender == model.SenderAgent {
					m.ReadByCustomer = true
				}
			}
		}
		c.UnreadCount = c.RecomputeUnread()
		c.SyncLastMessage()
		// ChatType deliberately untouched: a server-confirmed
		// reclassification may be in flight and locally flipping it here
		// makes the row flicker.
	})
	if !applied {
		in.drop(ev, "unknown_conversation")
		return
	}
	metrics.RecordEvent(string(ev.Type))
}

func (in *Ingestor) applyPresence(ev model.Event) {
	if ev.CustomerID == "" || ev.Presence == nil {
		in.drop(ev, "missing_payload")
		return
	}
	in.table.SetPresence(ev.CustomerID, *ev.Presence)
	metrics.RecordEvent(string(ev.Type))
}

func (in *Ingestor) applyActivity(ev model.Event) {
	if ev.CustomerID == "" {
		in.drop(ev, "missing_payload")
		return
	}
	update := ev.Presence
	if update == nil || update.LastSeen == nil {
		now := in.eventTime(ev)
		merged := model.Presence{LastSeen: &now}
		if update != nil {
			merged.Status = update.Status
		}
		update = &merged
	}
	in.table.MergeActivity(ev.CustomerID, update)
	metrics.RecordEvent(string(ev.Type))
}

func (in *Ingestor) applyNewLike(ev model.Event) {
	if ev.Like != nil {
		in.pushNotification(model.Notification{
			ID:           ev.Like.ID,
			Kind:         "new_like",
			CustomerID:   ev.Like.CustomerID,
			CustomerName: ev.Like.CustomerName,
			CreatedAt:    in.eventTime(ev),
		})
	}
	if in.hooks.RefreshLikes != nil {
		in.hooks.RefreshLikes()
	}
	metrics.RecordEvent(string(ev.Type))
}

func (in *Ingestor) applyNotifications(ev model.Event) {
	in.mu.Lock()
	list := ev.Notifications
	if len(list) > maxNotifications {
		list = list[len(list)-maxNotifications:]
	}
	in.notifications = append([]model.Notification(nil), list...)
	in.mu.Unlock()
	metrics.RecordEvent(string(ev.Type))
}

func (in *Ingestor) applyReminderUpdate(ev model.Event) {
	if ev.ChatID == "" || ev.Reminder == nil {
		in.drop(ev, "missing_payload")
		return
	}
	upd := *ev.Reminder
	applied := in.table.Patch(ev.ChatID, func(c *model.Conversation) {
		c.ReminderActive = upd.ReminderActive
		c.ReminderHandled = upd.ReminderHandled
		if upd.ReminderCount > 0 {
			c.ReminderCount = upd.ReminderCount
		}
		if upd.HoursSinceLastCustomer > 0 {
			c.HoursSinceLastCustomer = upd.HoursSinceLastCustomer
		}
	})
	if !applied {
		in.drop(ev, "unknown_conversation")
		return
	}
	metrics.RecordEvent(string(ev.Type))
}

func (in *Ingestor) applyNewChat(ev model.Event) {
	if ev.Conversation == nil || ev.Conversation.ID == "" {
		in.drop(ev, "missing_payload")
		return
	}
	in.table.Insert(*ev.Conversation)
	metrics.RecordEvent(string(ev.Type))
}

func (in *Ingestor) scheduleRefresh(ev model.Event) {
	if in.hooks.RefreshSnapshot != nil {
		in.hooks.RefreshSnapshot()
	}
	metrics.RecordEvent(string(ev.Type))
}

// NotifyOutgoing records a locally sent agent message ahead of server
// confirmation. It only touches the suppression set; the table itself is
// corrected by the confirmed chat_message event or the next snapshot.
func (in *Ingestor) NotifyOutgoing(chatID string) {
	if chatID == "" {
		return
	}
	in.table.Suppress(chatID)
}

// Notifications returns the current bell-menu entries, newest last.
func (in *Ingestor) Notifications() []model.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]model.Notification(nil), in.notifications...)
}

func (in *Ingestor) pushNotification(n model.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.notifications = append(in.notifications, n)
	if len(in.notifications) > maxNotifications {
		in.notifications = in.notifications[len(in.notifications)-maxNotifications:]
	}
}

func (in *Ingestor) drop(ev model.Event, reason string) {
	in.logger.Warn("event dropped",
		"kind", string(ev.Type),
		"conversation_id", ev.ChatID,
		"reason", reason,
	)
	metrics.RecordDroppedEvent(string(ev.Type), reason)
}

func (in *Ingestor) eventTime(ev model.Event) time.Time {
	if !ev.Timestamp.IsZero() {
		return ev.Timestamp
	}
	return time.Now().UTC()
}
