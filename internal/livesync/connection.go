package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
)

// Local lifecycle events dispatched to subscribers; never sent on the wire.
const (
	EventReconnected  = "reconnect"
	EventDisconnected = "disconnect"
)

var (
	ErrNotConnected = errors.New("livesync: not connected")
	ErrUserMismatch = errors.New("livesync: manager is bound to another user")
	ErrClosed       = errors.New("livesync: connection closed during dial")
)

// State is the lifecycle state of the logical connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Connection describes the session's logical connection.
type Connection struct {
	UserID      int
	TransportID string
	State       State
	ConnectedAt time.Time
}

// Conn is a framed, bidirectional push transport. *websocket.Conn satisfies it.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// Dialer opens a transport for userID.
type Dialer interface {
	Dial(ctx context.Context, userID int) (Conn, error)
}

// WebSocketDialer dials the push server's /ws endpoint with a bearer token.
type WebSocketDialer struct {
	URL   string
	Token string
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, _ int) (Conn, error) {
	u, err := url.Parse(d.URL)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("token", d.Token)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.Token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Handler receives the raw payload of a push event.
type Handler func(data json.RawMessage)

// Subscription identifies a registered handler.
type Subscription struct {
	Event string
	id    uint64
}

type subscription struct {
	id     uint64
	fn     Handler
	active atomic.Bool
}

// ManagerOptions tunes reconnect behaviour.
type ManagerOptions struct {
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *zap.Logger
}

// Manager owns the single push connection of a session and is the only
// ingress for push events.
type Manager struct {
	dialer      Dialer
	maxAttempts int
	retryDelay  time.Duration
	log         *zap.Logger

	mu       sync.Mutex
	conn     Conn
	current  *Connection
	gen      uint64
	cancel   context.CancelFunc
	handlers map[string][]*subscription
	nextID   uint64
	// lost is set when the retry budget ran out; the next successful
	// Connect counts as a reconnect.
	lost bool

	writeMu sync.Mutex
}

// NewManager constructs a Manager.
func NewManager(dialer Dialer, opts ManagerOptions) *Manager {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		dialer:      dialer,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		log:         opts.Logger.With(zap.String("component", "connection_manager")),
		handlers:    make(map[string][]*subscription),
	}
}

// Connect opens the connection for userID. It is idempotent while a
// connection for the same user is connecting, connected or reconnecting.
func (m *Manager) Connect(ctx context.Context, userID int) (Connection, error) {
	m.mu.Lock()
	if m.current != nil {
		defer m.mu.Unlock()
		if m.current.UserID != userID {
			return Connection{}, ErrUserMismatch
		}
		return *m.current, nil
	}
	m.gen++
	gen := m.gen
	m.current = &Connection{UserID: userID, State: StateConnecting}
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, userID)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return Connection{}, ErrClosed
	}
	if err != nil {
		m.current = nil
		m.mu.Unlock()
		return Connection{}, fmt.Errorf("connect user %d: %w", userID, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.conn = conn
	m.current.State = StateConnected
	m.current.TransportID = uuid.NewString()
	m.current.ConnectedAt = time.Now()
	snapshot := *m.current
	restored := m.lost
	m.lost = false
	m.mu.Unlock()

	observability.IncSyncConnection("connected")
	m.log.Info("push connection established", zap.Int("user_id", userID), zap.String("transport_id", snapshot.TransportID))

	if restored {
		m.dispatch(EventReconnected, nil)
	}
	go m.readLoop(loopCtx, gen, conn)
	return snapshot, nil
}

// Connection returns the current connection and whether one exists.
func (m *Manager) Connection() (Connection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return Connection{}, false
	}
	return *m.current, true
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return StateDisconnected
	}
	return m.current.State
}

// Subscribe registers fn for event. Handlers for the same event run in
// registration order on the manager's read goroutine and must not block.
func (m *Manager) Subscribe(event string, fn Handler) Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	sub := &subscription{id: m.nextID, fn: fn}
	sub.active.Store(true)
	m.handlers[event] = append(m.handlers[event], sub)
	return Subscription{Event: event, id: sub.id}
}

// Unsubscribe removes a handler. It will not be invoked again.
func (m *Manager) Unsubscribe(s Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.handlers[s.Event]
	for i, sub := range subs {
		if sub.id == s.id {
			sub.active.Store(false)
			m.handlers[s.Event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(m.handlers[s.Event]) == 0 {
		delete(m.handlers, s.Event)
	}
}

// On subscribes a typed handler. Payloads that do not decode into T are
// logged and dropped.
func On[T any](m *Manager, event string, fn func(T)) Subscription {
	return m.Subscribe(event, func(data json.RawMessage) {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			m.log.Warn("dropping malformed push payload", zap.String("event", event), zap.Error(err))
			observability.IncSyncDiscard("malformed")
			return
		}
		fn(v)
	})
}

// Emit sends an event to the server. Delivery is not acknowledged.
func (m *Manager) Emit(event string, payload any) error {
	m.mu.Lock()
	conn := m.conn
	connected := m.current != nil && m.current.State == StateConnected
	m.mu.Unlock()
	if conn == nil || !connected {
		return ErrNotConnected
	}

	env, err := models.NewEnvelope(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

// Disconnect tears down the transport and drops every registered handler.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	m.gen++
	conn := m.conn
	wasConnected := m.current != nil
	m.conn = nil
	m.current = nil
	m.lost = false
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	for _, subs := range m.handlers {
		for _, sub := range subs {
			sub.active.Store(false)
		}
	}
	m.handlers = make(map[string][]*subscription)
	m.mu.Unlock()

	if wasConnected {
		observability.IncSyncConnection("disconnected")
	}
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			next, ok := m.recover(ctx, gen, conn, err)
			if !ok {
				return
			}
			conn = next
			continue
		}
		if env.Event == "" {
			m.log.Warn("dropping push frame without event name")
			observability.IncSyncDiscard("malformed")
			continue
		}
		if !m.isCurrent(gen) {
			return
		}
		m.dispatch(env.Event, env.Data)
	}
}

// recover runs the bounded reconnect loop after a transport error.
func (m *Manager) recover(ctx context.Context, gen uint64, dead Conn, cause error) (Conn, bool) {
	m.mu.Lock()
	if gen != m.gen || m.current == nil {
		m.mu.Unlock()
		return nil, false
	}
	userID := m.current.UserID
	m.current.State = StateReconnecting
	m.conn = nil
	m.mu.Unlock()
	_ = dead.Close()

	m.log.Warn("push transport lost, reconnecting", zap.Int("user_id", userID), zap.Error(cause))
	observability.IncSyncConnection("reconnecting")

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(m.retryDelay):
		}

		conn, err := m.dialer.Dial(ctx, userID)
		if err != nil {
			m.log.Warn("reconnect attempt failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		m.mu.Lock()
		if gen != m.gen || m.current == nil {
			m.mu.Unlock()
			_ = conn.Close()
			return nil, false
		}
		m.conn = conn
		m.current.State = StateConnected
		m.current.TransportID = uuid.NewString()
		m.current.ConnectedAt = time.Now()
		m.mu.Unlock()

		m.log.Info("push connection restored", zap.Int("user_id", userID), zap.Int("attempt", attempt))
		observability.IncSyncConnection("reconnected")
		m.dispatch(EventReconnected, nil)
		return conn, true
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return nil, false
	}
	m.current = nil
	m.lost = true
	m.mu.Unlock()

	m.log.Error("push connection lost, retry budget exhausted", zap.Int("user_id", userID), zap.Int("attempts", m.maxAttempts))
	observability.IncSyncConnection("exhausted")
	m.dispatch(EventDisconnected, nil)
	return nil, false
}

func (m *Manager) isCurrent(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) dispatch(event string, data json.RawMessage) {
	m.mu.Lock()
	subs := append([]*subscription(nil), m.handlers[event]...)
	m.mu.Unlock()

	for _, sub := range subs {
		if !sub.active.Load() {
			continue
		}
		sub.fn(data)
	}
}
