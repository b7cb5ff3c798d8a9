// Package service provides business logic for the agent queue console.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumichat/agent-queue/internal/model"
	"github.com/lumichat/agent-queue/internal/queue"
	"github.com/lumichat/agent-queue/pkg/logger"
	"github.com/lumichat/agent-queue/pkg/metrics"
)

// Backend is the platform API surface the service depends on: snapshot
// fetches and the action calls an agent triggers. snapshot.Client
// implements it.
type Backend interface {
	FetchConversations(ctx context.Context) ([]model.Conversation, error)
	FetchLikes(ctx context.Context) ([]model.Like, error)
	MarkRead(ctx context.Context, chatID string) error
	AssignAgent(ctx context.Context, chatID, agentID string) error
	SetPanicRoom(ctx context.Context, chatID string, enabled bool) error
	PushBack(ctx context.Context, chatID string) error
}

// EventSource is the real-time feed the service subscribes to.
// natsbus.Bus implements it.
type EventSource interface {
	SubscribeEvents(handler func(model.Event)) (func(), error)
	PublishEvent(ctx context.Context, ev model.Event) error
}

// QueueService owns the conversation table and ingestor, wires the event
// subscription and refresh loops, and serves classified views to the
// handlers. It is the only component permitted to mutate the table.
type QueueService struct {
	table    *queue.Table
	ingestor *queue.Ingestor
	backend  Backend
	bus      EventSource
	logger   *logger.Logger

	mu    sync.RWMutex
	likes []model.Like

	subMu       sync.Mutex
	subscribers map[uint64]chan struct{}
	nextSubID   uint64

	refreshCh chan struct{}
	likesCh   chan struct{}

	unsubscribe func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewQueueService creates a queue service. The refetch hooks the ingestor
// needs are injected here rather than reached for ambiently.
func NewQueueService(backend Backend, bus EventSource, log *logger.Logger) *QueueService {
	s := &QueueService{
		table:       queue.NewTable(log),
		backend:     backend,
		bus:         bus,
		logger:      log,
		subscribers: make(map[uint64]chan struct{}),
		refreshCh:   make(chan struct{}, 1),
		likesCh:     make(chan struct{}, 1),
	}
	s.ingestor = queue.NewIngestor(s.table, queue.Hooks{
		RefreshSnapshot: s.requestRefresh,
		RefreshLikes:    s.requestLikesRefresh,
	}, log)
	return s
}

// Start performs the initial snapshot load, subscribes to the event feed,
// and launches the periodic refresh loop. Initial fetch failures are
// logged, not fatal: the loop retries on the next tick.
func (s *QueueService) Start(ctx context.Context, snapshotInterval, likesInterval time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.Refresh(ctx); err != nil {
		s.logger.Error("initial snapshot fetch failed", "error", err)
	}
	if err := s.RefreshLikes(ctx); err != nil {
		s.logger.Error("initial likes fetch failed", "error", err)
	}

	if s.bus != nil {
		unsubscribe, err := s.bus.SubscribeEvents(s.handleEvent)
		if err != nil {
			cancel()
			return fmt.Errorf("subscribe to event feed: %w", err)
		}
		s.unsubscribe = unsubscribe
	}

	s.wg.Add(1)
	go s.run(ctx, snapshotInterval, likesInterval)

	return nil
}

// Stop unsubscribes from the feed and stops the refresh loop. The
// interval timers must not outlive the service or they would keep
// patching a stale table.
func (s *QueueService) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *QueueService) run(ctx context.Context, snapshotInterval, likesInterval time.Duration) {
	defer s.wg.Done()

	snapshotTicker := time.NewTicker(snapshotInterval)
	defer snapshotTicker.Stop()
	likesTicker := time.NewTicker(likesInterval)
	defer likesTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-snapshotTicker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Error("scheduled snapshot fetch failed", "error", err)
			}
		case <-s.refreshCh:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Error("requested snapshot fetch failed", "error", err)
			}
		case <-likesTicker.C:
			if err := s.RefreshLikes(ctx); err != nil {
				s.logger.Error("scheduled likes fetch failed", "error", err)
			}
		case <-s.likesCh:
			if err := s.RefreshLikes(ctx); err != nil {
				s.logger.Error("requested likes fetch failed", "error", err)
			}
		}
	}
}

func (s *QueueService) handleEvent(ev model.Event) {
	s.ingestor.Apply(ev)
	s.notify()
}

// requestRefresh schedules a coalesced snapshot refetch: if one is
// already pending the request is absorbed.
func (s *QueueService) requestRefresh() {
	select {
	case s.refreshCh <- struct{}{}:
	default:
	}
}

func (s *QueueService) requestLikesRefresh() {
	select {
	case s.likesCh <- struct{}{}:
	default:
	}
}

// Refresh fetches the authoritative snapshot and replaces the table
// wholesale. Any provisional local classification loses to the snapshot.
func (s *QueueService) Refresh(ctx context.Context) error {
	conversations, err := s.backend.FetchConversations(ctx)
	if err != nil {
		return err
	}
	s.table.ReplaceAll(conversations)
	s.updateDepthGauges()
	s.notify()
	s.logger.Info("snapshot applied", "conversations", len(conversations))
	return nil
}

// RefreshLikes fetches the parallel likes list.
func (s *QueueService) RefreshLikes(ctx context.Context) error {
	likes, err := s.backend.FetchLikes(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.likes = likes
	s.mu.Unlock()
	s.notify()
	return nil
}

// View returns the classified, suppression-applied conversation list for
// one filter. The likes filter is resolved against the likes list by the
// handler; for conversations it yields nothing.
func (s *QueueService) View(filter queue.Filter) []model.Conversation {
	return queue.Classify(s.table.All(), filter, s.table.IsSuppressed)
}

// Counts returns badge counts derived from the same predicates as the
// filtered views.
func (s *QueueService) Counts() queue.Counts {
	s.mu.RLock()
	likes := len(s.likes)
	s.mu.RUnlock()
	return queue.ComputeCounts(s.table.All(), s.table.IsSuppressed, likes)
}

// Likes returns the current likes list.
func (s *QueueService) Likes() []model.Like {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Like(nil), s.likes...)
}

// Notifications returns the bell-menu entries.
func (s *QueueService) Notifications() []model.Notification {
	return s.ingestor.Notifications()
}

// Conversation returns one conversation by id.
func (s *QueueService) Conversation(id string) (model.Conversation, error) {
	conv, ok := s.table.Get(id)
	if !ok {
		return model.Conversation{}, model.ErrConversationNotFound
	}
	return conv, nil
}

// Presence returns the presence record for a customer.
func (s *QueueService) Presence(customerID string) (model.Presence, bool) {
	return s.table.Presence(customerID)
}

// MarkRead optimistically flags every customer message read locally, then
// confirms with the backend and schedules a reconciling refetch. The chat
// type is preserved; the snapshot decides any reclassification.
func (s *QueueService) MarkRead(ctx context.Context, chatID string) error {
	applied := s.table.Patch(chatID, func(c *model.Conversation) {
		for i := range c.Messages {
			if c.Messages[i].Sender == model.SenderCustomer {
				c.Messages[i].ReadByAgent = true
			}
		}
		c.UnreadCount = c.RecomputeUnread()
		c.SyncLastMessage()
	})
	if !applied {
		return model.ErrConversationNotFound
	}
	s.notify()

	if err := s.backend.MarkRead(ctx, chatID); err != nil {
		return err
	}
	s.requestRefresh()
	return nil
}

// Assign assigns an agent and schedules a reconciling refetch.
func (s *QueueService) Assign(ctx context.Context, chatID, agentID string) error {
	if _, ok := s.table.Get(chatID); !ok {
		return model.ErrConversationNotFound
	}
	if err := s.backend.AssignAgent(ctx, chatID, agentID); err != nil {
		return err
	}
	s.requestRefresh()
	return nil
}

// SetPanicRoom toggles escalation optimistically, then confirms with the
// backend and schedules a reconciling refetch.
func (s *QueueService) SetPanicRoom(ctx context.Context, chatID string, enabled bool) error {
	applied := s.table.Patch(chatID, func(c *model.Conversation) {
		c.IsInPanicRoom = enabled
		if enabled {
			c.ChatType = model.ChatTypePanic
		}
	})
	if !applied {
		return model.ErrConversationNotFound
	}
	s.notify()

	if err := s.backend.SetPanicRoom(ctx, chatID, enabled); err != nil {
		return err
	}
	s.requestRefresh()
	return nil
}

// PushBack returns a conversation to the shared pool.
func (s *QueueService) PushBack(ctx context.Context, chatID string) error {
	if _, ok := s.table.Get(chatID); !ok {
		return model.ErrConversationNotFound
	}
	if err := s.backend.PushBack(ctx, chatID); err != nil {
		return err
	}
	s.requestRefresh()
	return nil
}

// NotifyOutgoing records a locally sent agent message before server
// confirmation: the row disappears from every view immediately and
// reappears on the next customer reply. The marker is also published to
// the audit stream, best effort.
func (s *QueueService) NotifyOutgoing(ctx context.Context, chatID string) error {
	if _, ok := s.table.Get(chatID); !ok {
		return model.ErrConversationNotFound
	}
	s.ingestor.NotifyOutgoing(chatID)
	s.notify()

	if s.bus != nil {
		ev := model.Event{
			Type:      model.EventOutgoingSent,
			ChatID:    chatID,
			Timestamp: time.Now().UTC(),
		}
		if err := s.bus.PublishEvent(ctx, ev); err != nil {
			s.logger.Warn("audit publish failed", "conversation_id", chatID, "error", err)
		}
	}
	return nil
}

// Remove hides a conversation from the dashboard. The underlying state is
// kept; visibility returns automatically with the next customer message.
func (s *QueueService) Remove(chatID string) error {
	if _, ok := s.table.Get(chatID); !ok {
		return model.ErrConversationNotFound
	}
	s.table.Suppress(chatID)
	s.notify()
	return nil
}

// Subscribe registers for coalesced change notifications, used by the SSE
// handler. The returned channel receives at most one pending signal; the
// cancel function must be called on disconnect.
func (s *QueueService) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.subMu.Unlock()

	cancel := func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
	return ch, cancel
}

func (s *QueueService) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *QueueService) updateDepthGauges() {
	counts := s.Counts()
	metrics.SetQueueDepth("panic", counts.PanicRoom)
	metrics.SetQueueDepth("queue", counts.Queue)
	metrics.SetQueueDepth("unread", counts.Unread)
	metrics.SetQueueDepth("reminders", counts.Reminders)
	metrics.SetQueueDepth("actionable", counts.TotalActionable)
}
