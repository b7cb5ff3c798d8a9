// Package queue implements the live chat queue reconciliation engine:
// the conversation table, the event ingestor that patches it, and the
// pure classifier that orders conversations by urgency.
package queue

import (
	"sync"

	"github.com/lumichat/agent-queue/internal/model"
	"github.com/lumichat/agent-queue/pkg/logger"
	"github.com/lumichat/agent-queue/pkg/metrics"
)

// Table holds the current best-known state of every conversation, the
// per-customer presence map, and the suppression set that hides rows from
// views without deleting them. One mutex guards all three: every event
// application runs to completion before the next, mirroring the
// run-to-completion guarantee the console code relied on.
type Table struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	presence      map[string]model.Presence
	suppressed    map[string]struct{}
	logger        *logger.Logger
}

// NewTable creates an empty conversation table.
func NewTable(log *logger.Logger) *Table {
	return &Table{
		conversations: make(map[string]*model.Conversation),
		presence:      make(map[string]model.Presence),
		suppressed:    make(map[string]struct{}),
		logger:        log,
	}
}

// ReplaceAll atomically swaps the table contents with a freshly fetched
// snapshot, normalizing each conversation. The suppression set and
// presence map survive the swap; a snapshot is authoritative for
// conversation state only.
func (t *Table) ReplaceAll(snapshot []model.Conversation) {
	next := make(map[string]*model.Conversation, len(snapshot))
	for i := range snapshot {
		conv := snapshot[i]
		if conv.ID == "" {
			t.logger.Warn("snapshot conversation without id dropped")
			continue
		}
		conv.Normalize()
		next[conv.ID] = &conv
	}

	t.mu.Lock()
	t.conversations = next
	t.mu.Unlock()

	metrics.ConversationsTracked.Set(float64(len(next)))
}

// Patch applies a mutation to the conversation with the given id. Unknown
// ids are dropped with a warning: events legitimately race snapshot
// replacement and the next snapshot corrects any miss. Returns whether the
// patch was applied.
func (t *Table) Patch(id string, apply func(*model.Conversation)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	conv, ok := t.conversations[id]
	if !ok {
		t.logger.Warn("patch for unknown conversation dropped", "conversation_id", id)
		return false
	}
	apply(conv)
	return true
}

// Insert adds or overwrites a conversation, normalizing it first. Used by
// new_chat_created, the only event that carries a full conversation payload.
func (t *Table) Insert(conv model.Conversation) {
	if conv.ID == "" {
		t.logger.Warn("insert without conversation id dropped")
		return
	}
	conv.Normalize()

	t.mu.Lock()
	t.conversations[conv.ID] = &conv
	n := len(t.conversations)
	t.mu.Unlock()

	metrics.ConversationsTracked.Set(float64(n))
}

// Get returns a copy of the conversation with the given id.
func (t *Table) Get(id string) (model.Conversation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conv, ok := t.conversations[id]
	if !ok {
		return model.Conversation{}, false
	}
	return *conv, true
}

// All returns copies of every conversation, in unspecified order.
func (t *Table) All() []model.Conversation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]model.Conversation, 0, len(t.conversations))
	for _, conv := range t.conversations {
		out = append(out, *conv)
	}
	return out
}

// Len returns the number of tracked conversations.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conversations)
}

// Suppress hides a conversation from every view. The conversation stays in
// the table; suppression is lifted by Unsuppress when a customer-authored
// event arrives for the id.
func (t *Table) Suppress(id string) {
	t.mu.Lock()
	t.suppressed[id] = struct{}{}
	n := len(t.suppressed)
	t.mu.Unlock()

	metrics.ConversationsSuppressed.Set(float64(n))
}

// Unsuppress restores a conversation's visibility.
func (t *Table) Unsuppress(id string) {
	t.mu.Lock()
	delete(t.suppressed, id)
	n := len(t.suppressed)
	t.mu.Unlock()

	metrics.ConversationsSuppressed.Set(float64(n))
}

// IsSuppressed reports whether the id is currently hidden.
func (t *Table) IsSuppressed(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.suppressed[id]
	return ok
}

// SetPresence stores a full presence record for a customer.
func (t *Table) SetPresence(customerID string, p model.Presence) {
	t.mu.Lock()
	t.presence[customerID] = p
	t.mu.Unlock()
}

// MergeActivity marks a customer online and refreshes last-seen without
// clobbering unrelated presence fields.
func (t *Table) MergeActivity(customerID string, update *model.Presence) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.presence[customerID]
	p.IsOnline = true
	if update != nil {
		if update.LastSeen != nil {
			p.LastSeen = update.LastSeen
		}
		if update.Status != "" {
			p.Status = update.Status
		}
	}
	t.presence[customerID] = p
}

// Presence returns the presence record for a customer.
func (t *Table) Presence(customerID string) (model.Presence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.presence[customerID]
	return p, ok
}
