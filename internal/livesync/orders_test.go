package livesync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/models"
)

var orderT0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func pendingOrder(id int, updated time.Time) models.OrderSnapshot {
	return models.OrderSnapshot{
		OrderID:       id,
		UserID:        1,
		Status:        models.OrderPending,
		PaymentStatus: "unpaid",
		CreatedAt:     orderT0,
		UpdatedAt:     updated,
	}
}

func statusEvent(id int, status models.OrderStatus, at time.Time) models.OrderStatusEvent {
	return models.OrderStatusEvent{OrderID: id, Status: status, Timestamp: at}
}

func loadedOrders(t *testing.T, debounce time.Duration, onChange func(OrderChange), rows ...models.OrderSnapshot) (*Orders, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	api.setOrders(rows...)
	o := NewOrders(api, debounce, onChange, nil)
	t.Cleanup(o.Close)
	require.NoError(t, o.Load(context.Background()))
	return o, api
}

func TestApplyOnlyNewerEvents(t *testing.T) {
	var changes recorder[OrderChange]
	o, _ := loadedOrders(t, time.Hour, changes.add, pendingOrder(7, orderT0))

	assert.False(t, o.Apply(statusEvent(7, models.OrderShipped, orderT0)), "equal timestamp is stale")
	assert.False(t, o.Apply(statusEvent(7, models.OrderShipped, orderT0.Add(-time.Second))))
	row, _ := o.Order(7)
	assert.Equal(t, models.OrderPending, row.Status)
	assert.Zero(t, changes.len())

	paid := "paid"
	ev := statusEvent(7, models.OrderConfirmed, orderT0.Add(time.Minute))
	ev.PaymentStatus = &paid
	ev.Notes = strPtr("leave at door")
	require.True(t, o.Apply(ev))

	row, _ = o.Order(7)
	assert.Equal(t, models.OrderConfirmed, row.Status)
	assert.Equal(t, "paid", row.PaymentStatus)
	assert.Equal(t, "leave at door", row.Notes)
	assert.Equal(t, orderT0.Add(time.Minute), row.UpdatedAt)

	require.Equal(t, 1, changes.len())
	change := changes.values()[0]
	assert.Equal(t, models.OrderPending, change.Previous)
	assert.Equal(t, models.OrderConfirmed, change.Current)
	assert.Equal(t, "paid", change.PaymentStatus)

	assert.False(t, o.Apply(statusEvent(7, models.OrderPending, orderT0.Add(30*time.Second))), "older than the applied event")
}

func TestApplyDropsMalformedEvents(t *testing.T) {
	o, _ := loadedOrders(t, time.Hour, nil, pendingOrder(7, orderT0))

	assert.False(t, o.Apply(models.OrderStatusEvent{Status: models.OrderShipped, Timestamp: orderT0.Add(time.Hour)}))
	assert.False(t, o.Apply(models.OrderStatusEvent{OrderID: 7, Timestamp: orderT0.Add(time.Hour)}))
	assert.False(t, o.Apply(models.OrderStatusEvent{OrderID: 7, Status: models.OrderShipped}))

	row, _ := o.Order(7)
	assert.Equal(t, models.OrderPending, row.Status)
}

func TestBurstCoalescesIntoOneRefetch(t *testing.T) {
	o, api := loadedOrders(t, 20*time.Millisecond, nil, pendingOrder(7, orderT0), pendingOrder(8, orderT0))
	require.Equal(t, 1, api.listOrderCalls())

	for i := 1; i <= 5; i++ {
		id := 7 + i%2
		o.Apply(statusEvent(id, models.OrderPreparing, orderT0.Add(time.Duration(i)*time.Second)))
	}

	require.Eventually(t, func() bool { return api.listOrderCalls() == 2 }, eventually, tick)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 2, api.listOrderCalls())

	row, _ := o.Order(7)
	assert.Equal(t, models.OrderPreparing, row.Status, "refetch keeps the newer pushed state")
}

func TestLoadAdoptsNewerServerRows(t *testing.T) {
	o, api := loadedOrders(t, time.Hour, nil, pendingOrder(7, orderT0))

	shipped := pendingOrder(7, orderT0.Add(time.Hour))
	shipped.Status = models.OrderShipped
	api.setOrders(shipped, pendingOrder(9, orderT0))
	require.NoError(t, o.Load(context.Background()))

	list := o.List()
	require.Len(t, list, 2)
	assert.Equal(t, models.OrderShipped, list[0].Status)
	assert.Equal(t, 9, list[1].OrderID)
}

func TestUnknownOrderWaitsForRefetch(t *testing.T) {
	o, api := loadedOrders(t, 10*time.Millisecond, nil)

	api.setOrders(pendingOrder(99, orderT0))
	assert.False(t, o.Apply(statusEvent(99, models.OrderConfirmed, orderT0.Add(time.Minute))))

	require.Eventually(t, func() bool {
		_, ok := o.Order(99)
		return ok
	}, eventually, tick)
}

func TestForceRefetchCancelsPendingTimer(t *testing.T) {
	o, api := loadedOrders(t, 40*time.Millisecond, nil, pendingOrder(7, orderT0))

	require.True(t, o.Apply(statusEvent(7, models.OrderShipped, orderT0.Add(time.Minute))))
	require.NoError(t, o.ForceRefetch(context.Background()))
	assert.Equal(t, 2, api.listOrderCalls())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2, api.listOrderCalls())
}

func TestCloseStopsRefetches(t *testing.T) {
	o, api := loadedOrders(t, 10*time.Millisecond, nil, pendingOrder(7, orderT0))

	o.Close()
	assert.True(t, o.Apply(statusEvent(7, models.OrderShipped, orderT0.Add(time.Minute))))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, api.listOrderCalls())
}

func TestReloadAndHistory(t *testing.T) {
	o, api := loadedOrders(t, time.Hour, nil, pendingOrder(7, orderT0))

	fresh := pendingOrder(7, orderT0.Add(time.Hour))
	fresh.Status = models.OrderDelivered
	api.mu.Lock()
	api.singleOrder[7] = fresh
	api.history[7] = []models.OrderStatusEvent{statusEvent(7, models.OrderDelivered, orderT0.Add(time.Hour))}
	api.mu.Unlock()

	row, err := o.Reload(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, models.OrderDelivered, row.Status)

	history, err := o.History(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	o.Reset()
	assert.Empty(t, o.List())
}
