package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"realtime-service/internal/models"
)

const defaultTimeout = 15 * time.Second

// APIError is returned for non-2xx responses. Calls are never retried.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
}

// Client talks to the push server's REST API with a bearer token.
type Client struct {
	http *resty.Client
}

// New builds a Client for baseURL.
func New(baseURL, token string) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(token).
		SetTimeout(defaultTimeout).
		SetHeader("Accept", "application/json")
	return &Client{http: rc}
}

func do[T any](ctx context.Context, c *Client, method, path string, configure func(*resty.Request)) (T, error) {
	var (
		out    envelope[T]
		failed envelope[struct{}]
		zero   T
	)
	req := c.http.R().SetContext(ctx).SetResult(&out).SetError(&failed)
	if configure != nil {
		configure(req)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := failed.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return zero, &APIError{Status: resp.StatusCode(), Message: msg}
	}
	if !out.Success {
		return zero, &APIError{Status: resp.StatusCode(), Message: out.Error}
	}
	return out.Data, nil
}

func withBody(body interface{}) func(*resty.Request) {
	return func(r *resty.Request) { r.SetBody(body) }
}

// FetchConversation returns the messages exchanged with counterpartID.
func (c *Client) FetchConversation(ctx context.Context, counterpartID int) ([]models.Message, error) {
	raw, err := do[[]models.RawMessage](ctx, c, http.MethodGet, "/messages/"+strconv.Itoa(counterpartID), nil)
	if err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(raw))
	for _, r := range raw {
		msgs = append(msgs, r.Normalize())
	}
	return msgs, nil
}

// SendMessage creates a message to counterpartID.
func (c *Client) SendMessage(ctx context.Context, counterpartID int, body string, attachment *models.Attachment) (models.Message, error) {
	payload := struct {
		Message    string             `json:"message"`
		Attachment *models.Attachment `json:"attachment,omitempty"`
	}{Message: body, Attachment: attachment}

	raw, err := do[models.RawMessage](ctx, c, http.MethodPost, "/messages/"+strconv.Itoa(counterpartID), withBody(payload))
	if err != nil {
		return models.Message{}, err
	}
	return raw.Normalize(), nil
}

// MarkConversationRead persists that the caller read everything from counterpartID.
func (c *Client) MarkConversationRead(ctx context.Context, counterpartID int) error {
	_, err := do[struct{}](ctx, c, http.MethodPut, "/messages/"+strconv.Itoa(counterpartID)+"/read", nil)
	return err
}

// FetchNotifications returns one page of persisted notifications.
func (c *Client) FetchNotifications(ctx context.Context, page, limit int) (models.NotificationPage, error) {
	return do[models.NotificationPage](ctx, c, http.MethodGet, "/notifications", func(r *resty.Request) {
		r.SetQueryParams(map[string]string{
			"page":  strconv.Itoa(page),
			"limit": strconv.Itoa(limit),
		})
	})
}

// MarkNotificationRead marks one persisted notification read.
func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := do[struct{}](ctx, c, http.MethodPut, "/notifications/"+id+"/read", nil)
	return err
}

// MarkAllNotificationsRead marks every notification of the caller read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := do[struct{}](ctx, c, http.MethodPut, "/notifications/read-all", nil)
	return err
}

// ListOrders returns the caller's orders.
func (c *Client) ListOrders(ctx context.Context) ([]models.OrderSnapshot, error) {
	return do[[]models.OrderSnapshot](ctx, c, http.MethodGet, "/orders", nil)
}

// GetOrder returns one order.
func (c *Client) GetOrder(ctx context.Context, orderID int) (models.OrderSnapshot, error) {
	return do[models.OrderSnapshot](ctx, c, http.MethodGet, "/orders/"+strconv.Itoa(orderID), nil)
}

// OrderHistory returns the status transitions of an order.
func (c *Client) OrderHistory(ctx context.Context, orderID int) ([]models.OrderStatusEvent, error) {
	return do[[]models.OrderStatusEvent](ctx, c, http.MethodGet, "/orders/"+strconv.Itoa(orderID)+"/history", nil)
}
