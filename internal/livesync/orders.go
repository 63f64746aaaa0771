package livesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
)

const (
	defaultRefetchDebounce = 2 * time.Second
	refetchTimeout         = 15 * time.Second
)

// OrderAPI is the REST surface used by the order reconciler.
type OrderAPI interface {
	ListOrders(ctx context.Context) ([]models.OrderSnapshot, error)
	GetOrder(ctx context.Context, orderID int) (models.OrderSnapshot, error)
	OrderHistory(ctx context.Context, orderID int) ([]models.OrderStatusEvent, error)
}

// OrderChange is the user-visible signal raised when a pushed status is applied.
type OrderChange struct {
	OrderID       int
	Previous      models.OrderStatus
	Current       models.OrderStatus
	PaymentStatus string
	At            time.Time
}

// Orders caches the order list and applies pushed status deltas. A delta is
// applied only when its timestamp is newer than the cached copy; every
// accepted burst schedules one debounced full refetch.
type Orders struct {
	api      OrderAPI
	log      *zap.Logger
	debounce time.Duration
	onChange func(OrderChange)

	mu     sync.Mutex
	orders map[int]models.OrderSnapshot
	order  []int
	timer  *time.Timer
	closed bool

	fetchMu sync.Mutex
}

// NewOrders builds an empty reconciler. onChange may be nil.
func NewOrders(api OrderAPI, debounce time.Duration, onChange func(OrderChange), log *zap.Logger) *Orders {
	if debounce <= 0 {
		debounce = defaultRefetchDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orders{
		api:      api,
		log:      log.With(zap.String("component", "orders")),
		debounce: debounce,
		onChange: onChange,
		orders:   make(map[int]models.OrderSnapshot),
	}
}

// Load fetches the full order list. A cached order that is newer than its
// fetched row keeps the cached copy.
func (o *Orders) Load(ctx context.Context) error {
	o.fetchMu.Lock()
	defer o.fetchMu.Unlock()

	fetched, err := o.api.ListOrders(ctx)
	if err != nil {
		return fmt.Errorf("list orders: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	next := make(map[int]models.OrderSnapshot, len(fetched))
	order := make([]int, 0, len(fetched))
	for _, row := range fetched {
		if cached, ok := o.orders[row.OrderID]; ok && cached.UpdatedAt.After(row.UpdatedAt) {
			row = cached
		}
		if _, dup := next[row.OrderID]; !dup {
			order = append(order, row.OrderID)
		}
		next[row.OrderID] = row
	}
	o.orders = next
	o.order = order
	return nil
}

// Reload refreshes a single order.
func (o *Orders) Reload(ctx context.Context, orderID int) (models.OrderSnapshot, error) {
	row, err := o.api.GetOrder(ctx, orderID)
	if err != nil {
		return models.OrderSnapshot{}, fmt.Errorf("get order %d: %w", orderID, err)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	cached, ok := o.orders[orderID]
	if ok && cached.UpdatedAt.After(row.UpdatedAt) {
		return cached, nil
	}
	if !ok {
		o.order = append(o.order, orderID)
	}
	o.orders[orderID] = row
	return row, nil
}

// Apply handles a pushed status delta and reports whether it changed the
// cached order. Stale deltas are discarded.
func (o *Orders) Apply(ev models.OrderStatusEvent) bool {
	if ev.OrderID == 0 || ev.Status == "" || ev.Timestamp.IsZero() {
		o.log.Warn("dropping malformed order status event", zap.Int("order_id", ev.OrderID))
		observability.IncSyncDiscard("malformed")
		return false
	}

	o.mu.Lock()
	cached, ok := o.orders[ev.OrderID]
	if ok && !ev.Timestamp.After(cached.UpdatedAt) {
		o.mu.Unlock()
		observability.IncSyncDiscard("stale_order_event")
		return false
	}

	var change OrderChange
	if ok {
		change = OrderChange{OrderID: ev.OrderID, Previous: cached.Status, Current: ev.Status, At: ev.Timestamp}
		cached.Status = ev.Status
		if ev.PaymentStatus != nil {
			cached.PaymentStatus = *ev.PaymentStatus
		}
		if ev.Notes != nil {
			cached.Notes = *ev.Notes
		}
		cached.UpdatedAt = ev.Timestamp
		o.orders[ev.OrderID] = cached
		change.PaymentStatus = cached.PaymentStatus
	}
	o.scheduleRefetchLocked()
	o.mu.Unlock()

	if !ok {
		o.log.Debug("status event for uncached order, waiting for refetch", zap.Int("order_id", ev.OrderID))
		return false
	}
	if o.onChange != nil {
		o.onChange(change)
	}
	return true
}

// ForceRefetch cancels any pending debounced refetch and fetches now.
func (o *Orders) ForceRefetch(ctx context.Context) error {
	o.mu.Lock()
	if o.timer != nil {
		o.timer.Stop()
	}
	o.mu.Unlock()
	observability.IncSyncRefetch("forced")
	return o.Load(ctx)
}

// Order returns one cached order.
func (o *Orders) Order(orderID int) (models.OrderSnapshot, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	row, ok := o.orders[orderID]
	return row, ok
}

// List returns the cached orders in fetch order.
func (o *Orders) List() []models.OrderSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.OrderSnapshot, 0, len(o.order))
	for _, id := range o.order {
		if row, ok := o.orders[id]; ok {
			out = append(out, row)
		}
	}
	return out
}

// History returns the status history of an order straight from REST.
func (o *Orders) History(ctx context.Context, orderID int) ([]models.OrderStatusEvent, error) {
	events, err := o.api.OrderHistory(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d history: %w", orderID, err)
	}
	return events, nil
}

// Close stops the debounce timer; later events no longer schedule refetches.
func (o *Orders) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	if o.timer != nil {
		o.timer.Stop()
	}
}

// Reset drops the cache.
func (o *Orders) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.orders = make(map[int]models.OrderSnapshot)
	o.order = nil
}

func (o *Orders) scheduleRefetchLocked() {
	if o.closed {
		return
	}
	if o.timer == nil {
		o.timer = time.AfterFunc(o.debounce, o.debouncedRefetch)
		return
	}
	o.timer.Reset(o.debounce)
}

func (o *Orders) debouncedRefetch() {
	o.mu.Lock()
	closed := o.closed
	o.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), refetchTimeout)
	defer cancel()
	observability.IncSyncRefetch("debounced")
	if err := o.Load(ctx); err != nil {
		o.log.Warn("debounced order refetch failed", zap.Error(err))
	}
}
