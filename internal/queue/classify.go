package queue

import (
	"sort"

	"github.com/lumichat/agent-queue/internal/model"
)

// Filter selects which slice of the queue a view shows.
type Filter string

const (
	FilterAll       Filter = "all"
	FilterPanic     Filter = "panic"
	FilterQueue     Filter = "queue"
	FilterUnread    Filter = "unread"
	FilterReminders Filter = "reminders"
	FilterLikes     Filter = "likes"
)

// ParseFilter maps a query-string value to a Filter, defaulting to all.
func ParseFilter(s string) Filter {
	switch Filter(s) {
	case FilterPanic, FilterQueue, FilterUnread, FilterReminders, FilterLikes:
		return Filter(s)
	default:
		return FilterAll
	}
}

// IsPanic reports whether a conversation is in the escalation state.
// Panic strictly dominates every other classification.
func IsPanic(c *model.Conversation) bool {
	return c.IsInPanicRoom || c.ChatType == model.ChatTypePanic
}

// IsLiveReminder reports whether a conversation counts as an actionable
// reminder: reminder-flagged, nothing unread, not escalated, not handled.
func IsLiveReminder(c *model.Conversation) bool {
	if c.IsInPanicRoom || c.ReminderHandled || c.UnreadCount > 0 {
		return false
	}
	return c.ChatType == model.ChatTypeReminder || c.ReminderActive
}

// NeedsResponse reports whether the last message came from the customer.
func NeedsResponse(c *model.Conversation) bool {
	sender, ok := c.LastSender()
	return ok && sender == model.SenderCustomer
}

// InQueue reports whether a conversation belongs to the queue view.
func InQueue(c *model.Conversation) bool {
	if c.ChatType != model.ChatTypeQueue || c.IsInPanicRoom {
		return false
	}
	return c.UnreadCount > 0 || NeedsResponse(c)
}

// Actionable is the single predicate behind both the default "all" view
// and the total badge count: every conversation requiring agent action,
// excluding purely idle ones.
func Actionable(c *model.Conversation) bool {
	return IsPanic(c) || c.UnreadCount > 0 || NeedsResponse(c) || IsLiveReminder(c)
}

func matches(c *model.Conversation, filter Filter) bool {
	switch filter {
	case FilterPanic:
		return IsPanic(c)
	case FilterQueue:
		return InQueue(c)
	case FilterUnread:
		return c.UnreadCount > 0
	case FilterReminders:
		return IsLiveReminder(c)
	default:
		return Actionable(c)
	}
}

// Classify filters and orders conversations for one view. It is pure:
// same inputs, same output. Suppressed ids are excluded before sorting.
// The likes filter bypasses the table entirely and is resolved by the
// caller; here it yields an empty slice.
func Classify(conversations []model.Conversation, filter Filter, suppressed func(id string) bool) []model.Conversation {
	if filter == FilterLikes {
		return nil
	}

	out := make([]model.Conversation, 0, len(conversations))
	for i := range conversations {
		c := &conversations[i]
		if suppressed != nil && suppressed(c.ID) {
			continue
		}
		if matches(c, filter) {
			out = append(out, *c)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j])
	})
	return out
}

// less implements the fixed tie-break policy: panic, then unread volume,
// then longest-waiting live reminders, then external priority, then
// recency.
func less(a, b *model.Conversation) bool {
	ap, bp := IsPanic(a), IsPanic(b)
	if ap != bp {
		return ap
	}

	au, bu := a.UnreadCount > 0, b.UnreadCount > 0
	if au != bu {
		return au
	}
	if au && bu && a.UnreadCount != b.UnreadCount {
		return a.UnreadCount > b.UnreadCount
	}

	ar, br := IsLiveReminder(a), IsLiveReminder(b)
	if ar != br {
		return ar
	}
	if ar && br && a.HoursSinceLastCustomer != b.HoursSinceLastCustomer {
		return a.HoursSinceLastCustomer > b.HoursSinceLastCustomer
	}

	if a.Priority != nil && b.Priority != nil && *a.Priority != *b.Priority {
		return *a.Priority > *b.Priority
	}

	return a.LastActivity().After(b.LastActivity())
}

// Counts are the badge numbers shown next to each view. Each is the
// cardinality of the matching filter predicate over the unfiltered,
// suppression-applied table, so badges and lists cannot diverge.
type Counts struct {
	PanicRoom       int `json:"panic_room"`
	Queue           int `json:"queue"`
	Unread          int `json:"unread"`
	Reminders       int `json:"reminders"`
	Likes           int `json:"likes"`
	TotalActionable int `json:"total_actionable"`
}

// ComputeCounts derives badge counts in one pass over the table.
func ComputeCounts(conversations []model.Conversation, suppressed func(id string) bool, likes int) Counts {
	counts := Counts{Likes: likes}
	for i := range conversations {
		c := &conversations[i]
		if suppressed != nil && suppressed(c.ID) {
			continue
		}
		if IsPanic(c) {
			counts.PanicRoom++
		}
		if InQueue(c) {
			counts.Queue++
		}
		if c.UnreadCount > 0 {
			counts.Unread++
		}
		if IsLiveReminder(c) {
			counts.Reminders++
		}
		if Actionable(c) {
			counts.TotalActionable++
		}
	}
	return counts
}
