package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/mocks"
	"realtime-service/internal/models"
	"realtime-service/internal/repositories"
)

func setupOrderRouter(handler *OrderHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	withCaller(r, 1)
	r.GET("/orders", handler.List)
	r.GET("/orders/:id", handler.Get)
	r.GET("/orders/:id/history", handler.History)
	r.PATCH("/orders/:id/status", handler.UpdateStatus)
	return r
}

func TestListOrders(t *testing.T) {
	repo := new(mocks.OrderRepositoryMock)
	handler := NewOrderHandler(repo, nil, nil, nil)
	router := setupOrderRouter(handler)

	repo.On("ListForUser", mock.Anything, 1).Return([]models.OrderSnapshot{{OrderID: 3, UserID: 1, Status: models.OrderPending}}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
}

func TestGetOrderHidesForeignOrders(t *testing.T) {
	repo := new(mocks.OrderRepositoryMock)
	handler := NewOrderHandler(repo, nil, nil, nil)
	router := setupOrderRouter(handler)

	repo.On("GetOrder", mock.Anything, 4).Return(models.OrderSnapshot{OrderID: 4, UserID: 9}, nil).Once()
	repo.On("GetOrder", mock.Anything, 5).Return(nil, repositories.ErrOrderNotFound).Once()

	for _, path := range []string{"/orders/4", "/orders/5"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
	repo.AssertExpectations(t)
}

func TestOrderHistory(t *testing.T) {
	repo := new(mocks.OrderRepositoryMock)
	handler := NewOrderHandler(repo, nil, nil, nil)
	router := setupOrderRouter(handler)

	repo.On("GetOrder", mock.Anything, 4).Return(models.OrderSnapshot{OrderID: 4, UserID: 1}, nil).Once()
	repo.On("History", mock.Anything, 4).Return([]models.OrderStatusEvent{
		{OrderID: 4, Status: models.OrderPending},
		{OrderID: 4, Status: models.OrderConfirmed},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/orders/4/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 2)
	repo.AssertExpectations(t)
}

func TestUpdateOrderStatusPushesToOwner(t *testing.T) {
	repo := new(mocks.OrderRepositoryMock)
	pusher := new(mocks.PusherMock)
	handler := NewOrderHandler(repo, pusher, nil, nil)
	router := setupOrderRouter(handler)

	updatedAt := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	paid := "paid"
	repo.On("UpdateStatus", mock.Anything, 4, models.OrderStatusEvent{OrderID: 4, Status: models.OrderShipped, PaymentStatus: &paid}).
		Return(models.OrderSnapshot{OrderID: 4, UserID: 7, Status: models.OrderShipped, PaymentStatus: paid, UpdatedAt: updatedAt}, nil).Once()
	pusher.On("SendToUser", 7, models.EventOrderStatusUpdated, mock.MatchedBy(func(ev models.OrderStatusEvent) bool {
		return ev.OrderID == 4 && ev.Status == models.OrderShipped && ev.Timestamp.Equal(updatedAt) &&
			ev.PaymentStatus != nil && *ev.PaymentStatus == "paid"
	})).Return(1).Once()

	req := httptest.NewRequest(http.MethodPatch, "/orders/4/status", bytes.NewBufferString(`{"status":"shipped","paymentStatus":"paid"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	repo.AssertExpectations(t)
	pusher.AssertExpectations(t)
}

func TestUpdateOrderStatusValidation(t *testing.T) {
	repo := new(mocks.OrderRepositoryMock)
	handler := NewOrderHandler(repo, new(mocks.PusherMock), nil, nil)
	router := setupOrderRouter(handler)

	repo.On("UpdateStatus", mock.Anything, 8, mock.Anything).Return(nil, repositories.ErrOrderNotFound).Once()

	req := httptest.NewRequest(http.MethodPatch, "/orders/4/status", bytes.NewBufferString(`{"status":"lost"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPatch, "/orders/8/status", bytes.NewBufferString(`{"status":"delivered"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	repo.AssertExpectations(t)
}
