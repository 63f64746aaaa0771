package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"realtime-service/internal/models"
)

var errDialRefused = errors.New("dial refused")

type frame struct {
	env models.Envelope
	err error
}

type fakeConn struct {
	frames chan frame
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []models.Envelope
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan frame, 32), closed: make(chan struct{})}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case f := <-c.frames:
		if f.err != nil {
			return f.err
		}
		*(v.(*models.Envelope)) = f.env
		return nil
	case <-c.closed:
		return io.ErrClosedPipe
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, v.(models.Envelope))
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, event string, payload any) {
	t.Helper()
	env, err := models.NewEnvelope(event, payload)
	require.NoError(t, err)
	c.frames <- frame{env: env}
}

func (c *fakeConn) pushRaw(event, data string) {
	c.frames <- frame{env: models.Envelope{Event: event, Data: json.RawMessage(data)}}
}

func (c *fakeConn) drop() {
	c.frames <- frame{err: io.ErrUnexpectedEOF}
}

func (c *fakeConn) sent() []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Envelope(nil), c.written...)
}

// fakeDialer hands out queued connections in order and refuses once the
// queue is empty.
type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	dials int
}

func newFakeDialer(conns ...*fakeConn) *fakeDialer {
	return &fakeDialer{conns: conns}
}

func (d *fakeDialer) Dial(ctx context.Context, _ int) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(d.conns) == 0 {
		return nil, errDialRefused
	}
	conn := d.conns[0]
	d.conns = d.conns[1:]
	return conn, nil
}

func (d *fakeDialer) add(conn *fakeConn) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conns = append(d.conns, conn)
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// fakeAPI is an in-memory REST backend.
type fakeAPI struct {
	mu sync.Mutex

	conversations map[int][]models.Message
	nextMessageID int
	readMarks     []int
	sendErr       error

	page          models.NotificationPage
	fetchErr      error
	markedRead    []string
	markAllCalls  int
	markOneErr    error
	notifications int

	orders      []models.OrderSnapshot
	listCalls   int
	history     map[int][]models.OrderStatusEvent
	listErr     error
	singleOrder map[int]models.OrderSnapshot
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		conversations: make(map[int][]models.Message),
		nextMessageID: 100,
		history:       make(map[int][]models.OrderStatusEvent),
		singleOrder:   make(map[int]models.OrderSnapshot),
	}
}

func (a *fakeAPI) FetchConversation(_ context.Context, counterpartID int) ([]models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Message(nil), a.conversations[counterpartID]...), nil
}

func (a *fakeAPI) SendMessage(_ context.Context, counterpartID int, body string, attachment *models.Attachment) (models.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sendErr != nil {
		return models.Message{}, a.sendErr
	}
	a.nextMessageID++
	return models.Message{
		ID:         a.nextMessageID,
		SenderID:   1,
		ReceiverID: counterpartID,
		Body:       body,
		Attachment: attachment,
		CreatedAt:  time.Now(),
	}, nil
}

func (a *fakeAPI) MarkConversationRead(_ context.Context, counterpartID int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.readMarks = append(a.readMarks, counterpartID)
	return nil
}

func (a *fakeAPI) FetchNotifications(_ context.Context, _, _ int) (models.NotificationPage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifications++
	if a.fetchErr != nil {
		return models.NotificationPage{}, a.fetchErr
	}
	page := a.page
	page.Notifications = append([]models.Notification(nil), a.page.Notifications...)
	return page, nil
}

func (a *fakeAPI) MarkNotificationRead(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.markedRead = append(a.markedRead, id)
	return a.markOneErr
}

func (a *fakeAPI) MarkAllNotificationsRead(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.markAllCalls++
	return nil
}

func (a *fakeAPI) ListOrders(_ context.Context) ([]models.OrderSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls++
	if a.listErr != nil {
		return nil, a.listErr
	}
	return append([]models.OrderSnapshot(nil), a.orders...), nil
}

func (a *fakeAPI) GetOrder(_ context.Context, orderID int) (models.OrderSnapshot, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if o, ok := a.singleOrder[orderID]; ok {
		return o, nil
	}
	for _, o := range a.orders {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return models.OrderSnapshot{}, errors.New("not found")
}

func (a *fakeAPI) OrderHistory(_ context.Context, orderID int) ([]models.OrderStatusEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.history[orderID], nil
}

func (a *fakeAPI) setOrders(orders ...models.OrderSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.orders = orders
}

func (a *fakeAPI) setPage(page models.NotificationPage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.page = page
}

func (a *fakeAPI) listOrderCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listCalls
}

func (a *fakeAPI) conversationReadMarks() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.readMarks...)
}

// recorder collects values delivered on the manager's read goroutine.
type recorder[T any] struct {
	mu  sync.Mutex
	got []T
}

func (r *recorder[T]) add(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, v)
}

func (r *recorder[T]) values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.got...)
}

func (r *recorder[T]) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func sortedInts(in []int) []int {
	out := append([]int(nil), in...)
	sort.Ints(out)
	return out
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }

const eventually = time.Second

const tick = 5 * time.Millisecond
