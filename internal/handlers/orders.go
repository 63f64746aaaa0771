package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/repositories"
)

// OrderHandler manages order read endpoints and the status update hook.
type OrderHandler struct {
	repo     repositories.OrderRepository
	pusher   Pusher
	emitter  *observability.Emitter
	validate *validator.Validate
	log      *zap.Logger
}

// NewOrderHandler builds an OrderHandler.
func NewOrderHandler(repo repositories.OrderRepository, pusher Pusher, emitter *observability.Emitter, log *zap.Logger) *OrderHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderHandler{
		repo:     repo,
		pusher:   pusher,
		emitter:  emitter,
		validate: validator.New(),
		log:      log.With(zap.String("component", "order_handler")),
	}
}

type updateStatusRequest struct {
	Status        models.OrderStatus `json:"status" validate:"required,oneof=pending confirmed preparing shipped delivered cancelled"`
	PaymentStatus *string            `json:"paymentStatus" validate:"omitempty,oneof=pending paid failed refunded"`
	Notes         *string            `json:"notes" validate:"omitempty,max=1000"`
}

// List returns the caller's orders.
func (h *OrderHandler) List(c *gin.Context) {
	userID := callerID(c)
	orders, err := h.repo.ListForUser(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("list orders", zap.Int("user_id", userID), zap.Error(err))
		respondInternal(c, "failed to load orders")
		return
	}
	respond(c, http.StatusOK, orders)
}

// Get returns a single order owned by the caller.
func (h *OrderHandler) Get(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, order)
}

// History returns the status history of an order owned by the caller.
func (h *OrderHandler) History(c *gin.Context) {
	order, ok := h.ownedOrder(c)
	if !ok {
		return
	}
	events, err := h.repo.History(c.Request.Context(), order.OrderID)
	if err != nil {
		h.log.Error("order history", zap.Int("order_id", order.OrderID), zap.Error(err))
		respondInternal(c, "failed to load order history")
		return
	}
	respond(c, http.StatusOK, events)
}

// UpdateStatus changes an order's status and pushes the delta to its owner.
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	orderID, ok := intParam(c, "id")
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid order id")
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx, span := otel.Tracer("realtime-service/orders").Start(c.Request.Context(), "order.update_status")
	defer span.End()
	span.SetAttributes(attribute.Int("order.id", orderID), attribute.String("order.status", string(req.Status)))

	order, err := h.repo.UpdateStatus(ctx, orderID, models.OrderStatusEvent{
		OrderID:       orderID,
		Status:        req.Status,
		PaymentStatus: req.PaymentStatus,
		Notes:         req.Notes,
	})
	if errors.Is(err, repositories.ErrOrderNotFound) {
		respondError(c, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		span.RecordError(err)
		h.log.Error("update order status", zap.Int("order_id", orderID), zap.Error(err))
		respondInternal(c, "failed to update order")
		return
	}

	event := models.OrderStatusEvent{
		OrderID:       order.OrderID,
		Status:        order.Status,
		PaymentStatus: req.PaymentStatus,
		Notes:         req.Notes,
		Timestamp:     order.UpdatedAt,
	}
	observability.IncOrderStatusChange(string(order.Status))
	h.pusher.SendToUser(order.UserID, models.EventOrderStatusUpdated, event)
	h.emitter.Emit(ctx, observability.RoutingOrderStatus, requestIDFromContext(c), order.UserID, event)
	respond(c, http.StatusOK, order)
}

func (h *OrderHandler) ownedOrder(c *gin.Context) (models.OrderSnapshot, bool) {
	orderID, ok := intParam(c, "id")
	if !ok {
		respondError(c, http.StatusBadRequest, "invalid order id")
		return models.OrderSnapshot{}, false
	}
	order, err := h.repo.GetOrder(c.Request.Context(), orderID)
	if errors.Is(err, repositories.ErrOrderNotFound) || (err == nil && order.UserID != callerID(c)) {
		respondError(c, http.StatusNotFound, "order not found")
		return models.OrderSnapshot{}, false
	}
	if err != nil {
		h.log.Error("get order", zap.Int("order_id", orderID), zap.Error(err))
		respondInternal(c, "failed to load order")
		return models.OrderSnapshot{}, false
	}
	return order, true
}
