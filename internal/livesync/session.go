package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"realtime-service/internal/models"
)

const defaultPageSize = 20

// API is the complete REST surface a session needs.
type API interface {
	MessageAPI
	NotificationAPI
	OrderAPI
}

// SessionOptions configures a Session. Zero values fall back to defaults.
type SessionOptions struct {
	Logger           *zap.Logger
	RefetchDebounce  time.Duration
	PageSize         int
	OnOrderChange    func(OrderChange)
	OnConnectionLost func()
}

// Session scopes every store to one logged-in user. It is created at login
// and torn down with Close at logout.
type Session struct {
	userID   int
	manager  *Manager
	api      API
	log      *zap.Logger
	pageSize int
	onLost   func()

	Presence      *Presence
	Messages      *Messages
	Notifications *Notifications
	Unread        *UnreadCounters
	Orders        *Orders

	mu   sync.Mutex
	open int
	subs []Subscription

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession builds the stores for userID and subscribes their push handlers
// on manager.
func NewSession(userID int, manager *Manager, api API, opts SessionOptions) *Session {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		userID:        userID,
		manager:       manager,
		api:           api,
		log:           log.With(zap.Int("user_id", userID)),
		pageSize:      opts.PageSize,
		onLost:        opts.OnConnectionLost,
		Presence:      NewPresence(),
		Messages:      NewMessages(userID, api, log),
		Notifications: NewNotifications(api, log),
		Unread:        NewUnreadCounters(),
		Orders:        NewOrders(api, opts.RefetchDebounce, opts.OnOrderChange, log),
		ctx:           ctx,
		cancel:        cancel,
	}

	s.subs = []Subscription{
		On(manager, models.EventOnlineUsers, s.Presence.Replace),
		On(manager, models.EventNewMessage, s.handleInboundMessage),
		On(manager, models.EventMessagesRead, func(r models.ReadReceipt) {
			s.Messages.ApplyReadReceipt(r.From)
		}),
		On(manager, models.EventNewNotification, func(raw models.RawNotification) {
			s.Notifications.Receive(raw)
		}),
		On(manager, models.EventOrderStatusUpdated, func(ev models.OrderStatusEvent) {
			s.Orders.Apply(ev)
		}),
		manager.Subscribe(EventReconnected, func(json.RawMessage) { s.handleReconnect() }),
		manager.Subscribe(EventDisconnected, func(json.RawMessage) { s.handleLost() }),
	}
	return s
}

// UserID returns the user the session belongs to.
func (s *Session) UserID() int {
	return s.userID
}

// Start opens the push connection and performs the initial REST loads.
func (s *Session) Start(ctx context.Context) error {
	if _, err := s.manager.Connect(ctx, s.userID); err != nil {
		return err
	}
	return multierr.Combine(
		s.Notifications.Refresh(ctx, 1, s.pageSize),
		s.Orders.Load(ctx),
	)
}

// OpenConversation makes counterpart the open conversation: its unread
// counter is cleared, history loaded and inbound messages marked read.
func (s *Session) OpenConversation(ctx context.Context, counterpart int) error {
	s.mu.Lock()
	s.open = counterpart
	s.mu.Unlock()
	s.Unread.Clear(counterpart)

	if err := s.Messages.Load(ctx, counterpart); err != nil {
		return err
	}
	return s.markConversationRead(ctx, counterpart)
}

// CloseConversation clears the open conversation.
func (s *Session) CloseConversation() {
	s.mu.Lock()
	s.open = 0
	s.mu.Unlock()
}

// OpenCounterpart returns the open conversation's counterpart, 0 if none.
func (s *Session) OpenCounterpart() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// UnreadTotal is the aggregate unread badge across conversations.
func (s *Session) UnreadTotal() int {
	return s.Unread.Total()
}

// Close unsubscribes every handler, disconnects and clears all stores.
func (s *Session) Close() error {
	var err error
	for _, sub := range s.subs {
		s.manager.Unsubscribe(sub)
	}
	s.subs = nil
	err = multierr.Append(err, s.manager.Disconnect())
	s.cancel()
	s.Orders.Close()
	s.wg.Wait()

	s.Presence.Reset()
	s.Messages.Reset()
	s.Notifications.Reset()
	s.Unread.Reset()
	s.Orders.Reset()
	s.CloseConversation()
	return err
}

func (s *Session) handleInboundMessage(raw models.RawMessage) {
	msg := raw.Normalize()
	if err := s.Messages.Receive(msg); err != nil {
		s.log.Warn("dropping pushed message", zap.Error(err))
		return
	}
	if msg.SenderID == s.userID {
		return
	}

	if s.OpenCounterpart() == msg.SenderID {
		s.goBackground(func(ctx context.Context) {
			if err := s.markConversationRead(ctx, msg.SenderID); err != nil {
				s.log.Warn("read-mark for open conversation failed", zap.Int("counterpart", msg.SenderID), zap.Error(err))
			}
		})
		return
	}
	s.Unread.Increment(msg.SenderID)
}

// markConversationRead flags inbound messages read locally, persists it and
// tells the server so the sender receives a read receipt.
func (s *Session) markConversationRead(ctx context.Context, counterpart int) error {
	s.Messages.MarkInboundRead(counterpart)
	err := s.Messages.MarkRead(ctx, counterpart)
	emitErr := s.manager.Emit(models.EventMarkMessagesRead, models.MarkReadRequest{CounterpartID: counterpart})
	if errors.Is(emitErr, ErrNotConnected) {
		s.log.Debug("read-mark not emitted, push connection down", zap.Int("counterpart", counterpart))
		emitErr = nil
	}
	return multierr.Append(err, emitErr)
}

func (s *Session) handleReconnect() {
	s.log.Info("push connection restored, refetching orders")
	s.goBackground(func(ctx context.Context) {
		if err := s.Orders.ForceRefetch(ctx); err != nil {
			s.log.Warn("order refetch after reconnect failed", zap.Error(err))
		}
	})
}

func (s *Session) handleLost() {
	s.log.Error("push connection lost")
	if s.onLost != nil {
		s.onLost()
	}
}

func (s *Session) goBackground(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, refetchTimeout)
		defer cancel()
		fn(ctx)
	}()
}
