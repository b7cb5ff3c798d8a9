package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lumichat/agent-queue/internal/model"
	"github.com/lumichat/agent-queue/internal/queue"
	"github.com/lumichat/agent-queue/internal/service"
	"github.com/lumichat/agent-queue/pkg/logger"
)

// fakeBackend serves canned snapshots and records action calls. Actions
// mutate the snapshot the way the real backend would, so the reconciling
// refetch that follows every action is consistent with the assertion.
type fakeBackend struct {
	mu            sync.Mutex
	conversations []model.Conversation
	likes         []model.Like
	fetchErr      error

	markReadCalls []string
	assignCalls   []string
	panicCalls    []string
	pushBackCalls []string
	actionErr     error
}

func (f *fakeBackend) FetchConversations(ctx context.Context) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := make([]model.Conversation, len(f.conversations))
	copy(out, f.conversations)
	return out, nil
}

func (f *fakeBackend) FetchLikes(ctx context.Context) ([]model.Like, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Like(nil), f.likes...), nil
}

func (f *fakeBackend) setConversations(convs []model.Conversation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = convs
}

func (f *fakeBackend) MarkRead(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markReadCalls = append(f.markReadCalls, chatID)
	if f.actionErr != nil {
		return f.actionErr
	}
	for i := range f.conversations {
		if f.conversations[i].ID != chatID {
			continue
		}
		for j := range f.conversations[i].Messages {
			if f.conversations[i].Messages[j].Sender == model.SenderCustomer {
				f.conversations[i].Messages[j].ReadByAgent = true
			}
		}
		f.conversations[i].UnreadCount = 0
	}
	return nil
}

func (f *fakeBackend) AssignAgent(ctx context.Context, chatID, agentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignCalls = append(f.assignCalls, chatID+":"+agentID)
	return f.actionErr
}

func (f *fakeBackend) SetPanicRoom(ctx context.Context, chatID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panicCalls = append(f.panicCalls, chatID)
	if f.actionErr != nil {
		return f.actionErr
	}
	for i := range f.conversations {
		if f.conversations[i].ID == chatID {
			f.conversations[i].IsInPanicRoom = enabled
			if enabled {
				f.conversations[i].ChatType = model.ChatTypePanic
			}
		}
	}
	return nil
}

func (f *fakeBackend) PushBack(ctx context.Context, chatID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushBackCalls = append(f.pushBackCalls, chatID)
	return f.actionErr
}

type fakeBus struct {
	handler   func(model.Event)
	published []model.Event
}

func (f *fakeBus) SubscribeEvents(handler func(model.Event)) (func(), error) {
	f.handler = handler
	return func() { f.handler = nil }, nil
}

func (f *fakeBus) PublishEvent(ctx context.Context, ev model.Event) error {
	f.published = append(f.published, ev)
	return nil
}

// deliver simulates an event arriving on the feed.
func (f *fakeBus) deliver(ev model.Event) {
	if f.handler != nil {
		f.handler(ev)
	}
}

func newService(t *testing.T, backend *fakeBackend, bus *fakeBus) *service.QueueService {
	t.Helper()
	svc := service.NewQueueService(backend, bus, logger.NewNop())
	if err := svc.Start(context.Background(), time.Hour, time.Hour); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Stop)
	return svc
}

func TestStartLoadsSnapshotAndLikes(t *testing.T) {
	backend := &fakeBackend{
		conversations: []model.Conversation{
			{ID: "c1", ChatType: model.ChatTypeQueue, UnreadCount: 2},
			{ID: "c2", ChatType: model.ChatTypeIdle},
		},
		likes: []model.Like{{ID: "l1"}},
	}
	svc := newService(t, backend, &fakeBus{})

	view := svc.View(queue.FilterAll)
	if len(view) != 1 || view[0].ID != "c1" {
		t.Fatalf("unexpected initial view: %+v", view)
	}
	if got := svc.Counts(); got.Unread != 1 || got.Likes != 1 {
		t.Fatalf("unexpected counts: %+v", got)
	}
	if len(svc.Likes()) != 1 {
		t.Fatalf("likes not loaded")
	}
}

func TestEventFeedDrivesViewAndNotifies(t *testing.T) {
	backend := &fakeBackend{
		conversations: []model.Conversation{{ID: "c1", ChatType: model.ChatTypeIdle}},
	}
	bus := &fakeBus{}
	svc := newService(t, backend, bus)

	updates, cancel := svc.Subscribe()
	defer cancel()

	bus.deliver(model.Event{
		Type:   model.EventChatMessage,
		ChatID: "c1",
		Message: &model.Message{
			ID: "m1", Sender: model.SenderCustomer, Timestamp: time.Now().UTC(),
		},
	})

	select {
	case <-updates:
	default:
		t.Fatalf("change notification not delivered")
	}

	view := svc.View(queue.FilterUnread)
	if len(view) != 1 || view[0].UnreadCount != 1 {
		t.Fatalf("event not reflected in view: %+v", view)
	}
}

func TestOutgoingHidesUntilCustomerReply(t *testing.T) {
	backend := &fakeBackend{
		conversations: []model.Conversation{{
			ID:       "c1",
			ChatType: model.ChatTypeQueue,
			Messages: []model.Message{
				{ID: "m1", Sender: model.SenderCustomer, Timestamp: time.Now().UTC()},
			},
		}},
	}
	bus := &fakeBus{}
	svc := newService(t, backend, bus)

	if err := svc.NotifyOutgoing(context.Background(), "c1"); err != nil {
		t.Fatalf("notify outgoing: %v", err)
	}
	if view := svc.View(queue.FilterAll); len(view) != 0 {
		t.Fatalf("conversation still visible after outgoing send")
	}
	if len(bus.published) != 1 || bus.published[0].Type != model.EventOutgoingSent {
		t.Fatalf("outgoing marker not published to audit stream")
	}

	bus.deliver(model.Event{
		Type:   model.EventChatMessage,
		ChatID: "c1",
		Message: &model.Message{
			ID: "m2", Sender: model.SenderCustomer, Timestamp: time.Now().UTC(),
		},
	})
	if view := svc.View(queue.FilterAll); len(view) != 1 {
		t.Fatalf("customer reply did not restore visibility")
	}
}

func TestMarkReadOptimisticThenConfirms(t *testing.T) {
	backend := &fakeBackend{
		conversations: []model.Conversation{{
			ID:       "c1",
			ChatType: model.ChatTypeQueue,
			Messages: []model.Message{
				{ID: "m1", Sender: model.SenderCustomer, Timestamp: time.Now().UTC()},
			},
		}},
	}
	svc := newService(t, backend, &fakeBus{})

	if err := svc.MarkRead(context.Background(), "c1"); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	conv, err := svc.Conversation("c1")
	if err != nil {
		t.Fatalf("conversation lookup: %v", err)
	}
	if conv.UnreadCount != 0 {
		t.Fatalf("optimistic mark-read did not clear unread, got %d", conv.UnreadCount)
	}
	if conv.ChatType != model.ChatTypeQueue {
		t.Fatalf("mark-read must preserve chat type, got %q", conv.ChatType)
	}
	backend.mu.Lock()
	calls := append([]string(nil), backend.markReadCalls...)
	backend.mu.Unlock()
	if len(calls) != 1 || calls[0] != "c1" {
		t.Fatalf("backend not confirmed: %v", calls)
	}
}

func TestActionsOnUnknownConversation(t *testing.T) {
	svc := newService(t, &fakeBackend{}, &fakeBus{})
	ctx := context.Background()

	if err := svc.MarkRead(ctx, "ghost"); !errors.Is(err, model.ErrConversationNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if err := svc.Assign(ctx, "ghost", "a1"); !errors.Is(err, model.ErrConversationNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if err := svc.SetPanicRoom(ctx, "ghost", true); !errors.Is(err, model.ErrConversationNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
	if err := svc.Remove("ghost"); !errors.Is(err, model.ErrConversationNotFound) {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestPanicToggleOptimistic(t *testing.T) {
	backend := &fakeBackend{
		conversations: []model.Conversation{{ID: "c1", ChatType: model.ChatTypeIdle}},
	}
	svc := newService(t, backend, &fakeBus{})

	if err := svc.SetPanicRoom(context.Background(), "c1", true); err != nil {
		t.Fatalf("set panic room: %v", err)
	}

	view := svc.View(queue.FilterPanic)
	if len(view) != 1 || view[0].ID != "c1" {
		t.Fatalf("escalated conversation missing from panic view")
	}
	backend.mu.Lock()
	panicCalls := len(backend.panicCalls)
	backend.mu.Unlock()
	if panicCalls != 1 {
		t.Fatalf("backend not confirmed")
	}
}

func TestActionFailureSurfaces(t *testing.T) {
	backend := &fakeBackend{
		conversations: []model.Conversation{{ID: "c1"}},
		actionErr:     errors.New("upstream down"),
	}
	svc := newService(t, backend, &fakeBus{})

	if err := svc.Assign(context.Background(), "c1", "a1"); err == nil {
		t.Fatalf("expected action error to surface")
	}
}

func TestRemoveSuppressesUntilCustomerEvent(t *testing.T) {
	backend := &fakeBackend{
		conversations: []model.Conversation{{ID: "c1", ChatType: model.ChatTypeQueue, UnreadCount: 1}},
	}
	bus := &fakeBus{}
	svc := newService(t, backend, bus)

	if err := svc.Remove("c1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if view := svc.View(queue.FilterAll); len(view) != 0 {
		t.Fatalf("removed conversation still visible")
	}
	if got := svc.Counts(); got.Unread != 0 {
		t.Fatalf("badge counts must apply suppression, got %+v", got)
	}
	// State survives; only visibility changed.
	if _, err := svc.Conversation("c1"); err != nil {
		t.Fatalf("removed conversation lost from table: %v", err)
	}

	bus.deliver(model.Event{
		Type:   model.EventChatMessage,
		ChatID: "c1",
		Message: &model.Message{
			ID: "m1", Sender: model.SenderCustomer, Timestamp: time.Now().UTC(),
		},
	})
	if view := svc.View(queue.FilterAll); len(view) != 1 {
		t.Fatalf("customer event did not restore removed conversation")
	}
}

func TestSnapshotOverridesProvisionalState(t *testing.T) {
	backend := &fakeBackend{
		conversations: []model.Conversation{{ID: "c1", ChatType: model.ChatTypeIdle}},
	}
	bus := &fakeBus{}
	svc := newService(t, backend, bus)

	bus.deliver(model.Event{
		Type:   model.EventChatMessage,
		ChatID: "c1",
		Message: &model.Message{
			ID: "m1", Sender: model.SenderCustomer, Timestamp: time.Now().UTC(),
		},
	})
	conv, _ := svc.Conversation("c1")
	if conv.ChatType != model.ChatTypeQueue {
		t.Fatalf("provisional classification not applied")
	}

	// The authoritative snapshot says the chat is actually idle again.
	backend.setConversations([]model.Conversation{{ID: "c1", ChatType: model.ChatTypeIdle}})
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	conv, _ = svc.Conversation("c1")
	if conv.ChatType != model.ChatTypeIdle {
		t.Fatalf("snapshot did not override provisional state, got %q", conv.ChatType)
	}
}

func TestRefreshErrorReturned(t *testing.T) {
	backend := &fakeBackend{fetchErr: errors.New("backend down")}
	svc := newService(t, backend, &fakeBus{})

	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
}
