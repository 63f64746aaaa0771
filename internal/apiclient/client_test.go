package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/livesync"
	"realtime-service/internal/models"
)

var _ livesync.API = (*Client)(nil)

func jsonReply(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestFetchConversationNormalizesAttachments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "/messages/2", r.URL.Path)
		jsonReply(w, http.StatusOK, `{"success":true,"data":[
			{"id":1,"senderId":2,"receiverId":1,"message":"hi"},
			{"id":2,"senderId":1,"receiverId":2,"message":"","fileUrl":"https://x/y.png","fileType":"image"},
			{"id":3,"senderId":1,"receiverId":2,"message":"","fileUrl":""}
		]}`)
	}))
	defer srv.Close()

	msgs, err := New(srv.URL, "tok").FetchConversation(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Nil(t, msgs[0].Attachment)
	require.NotNil(t, msgs[1].Attachment)
	assert.Equal(t, models.AttachmentImage, msgs[1].Attachment.Kind)
	assert.Nil(t, msgs[2].Attachment)
}

func TestSendMessagePostsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["message"])
		assert.NotContains(t, body, "attachment")
		jsonReply(w, http.StatusCreated, `{"success":true,"data":{"id":5,"senderId":1,"receiverId":2,"message":"hello"}}`)
	}))
	defer srv.Close()

	msg, err := New(srv.URL, "tok").SendMessage(context.Background(), 2, "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, 5, msg.ID)
}

func TestFetchNotificationsSendsPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		jsonReply(w, http.StatusOK, `{"success":true,"data":{"notifications":[{"id":"4","type":"follow","senderId":3,"recipientId":1,"read":false}],"unreadCount":6,"page":2,"limit":10,"total":11}}`)
	}))
	defer srv.Close()

	page, err := New(srv.URL, "tok").FetchNotifications(context.Background(), 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 6, page.UnreadCount)
	require.Len(t, page.Notifications, 1)
	assert.Equal(t, models.NotificationFollow, page.Notifications[0].Type)
}

func TestErrorResponsesBecomeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/orders/9":
			jsonReply(w, http.StatusNotFound, `{"success":false,"error":"order not found"}`)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()
	client := New(srv.URL, "tok")

	_, err := client.GetOrder(context.Background(), 9)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "order not found", apiErr.Message)

	err = client.MarkAllNotificationsRead(context.Background())
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, http.StatusText(http.StatusBadGateway), apiErr.Message)
}

func TestOrderEndpoints(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls[r.Method+" "+r.URL.Path]++
		mu.Unlock()
		switch r.URL.Path {
		case "/orders":
			jsonReply(w, http.StatusOK, `{"success":true,"data":[{"orderId":1,"status":"pending","updatedAt":"2024-05-01T10:00:00Z"}]}`)
		case "/orders/1/history":
			jsonReply(w, http.StatusOK, `{"success":true,"data":[{"orderId":1,"status":"pending","timestamp":"2024-05-01T10:00:00Z"}]}`)
		case "/messages/3/read", "/notifications/abc/read":
			jsonReply(w, http.StatusOK, `{"success":true,"data":{"updated":1}}`)
		}
	}))
	defer srv.Close()
	client := New(srv.URL, "tok")
	ctx := context.Background()

	orders, err := client.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderPending, orders[0].Status)

	history, err := client.OrderHistory(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Timestamp.IsZero())

	require.NoError(t, client.MarkConversationRead(ctx, 3))
	require.NoError(t, client.MarkNotificationRead(ctx, "abc"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls["PUT /messages/3/read"])
	assert.Equal(t, 1, calls["PUT /notifications/abc/read"])
}
