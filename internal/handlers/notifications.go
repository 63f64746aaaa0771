package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/repositories"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// NotificationHandler manages activity notification endpoints.
type NotificationHandler struct {
	repo     repositories.NotificationRepository
	pusher   Pusher
	emitter  *observability.Emitter
	validate *validator.Validate
	log      *zap.Logger
}

// NewNotificationHandler builds a NotificationHandler.
func NewNotificationHandler(repo repositories.NotificationRepository, pusher Pusher, emitter *observability.Emitter, log *zap.Logger) *NotificationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &NotificationHandler{
		repo:     repo,
		pusher:   pusher,
		emitter:  emitter,
		validate: validator.New(),
		log:      log.With(zap.String("component", "notification_handler")),
	}
}

type createNotificationRequest struct {
	Type            models.NotificationType `json:"type" validate:"required,oneof=like comment follow message"`
	RecipientID     int                     `json:"recipientId" validate:"required,gt=0"`
	RelatedEntityID *int                    `json:"relatedEntityId" validate:"omitempty,gt=0"`
	Message         string                  `json:"message" validate:"max=500"`
}

// List returns one page of the caller's notifications with the unread count.
func (h *NotificationHandler) List(c *gin.Context) {
	userID := callerID(c)
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", defaultNotificationLimit)
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	result, err := h.repo.ListForRecipient(c.Request.Context(), userID, page, limit)
	if err != nil {
		h.log.Error("list notifications", zap.Int("user_id", userID), zap.Error(err))
		respondInternal(c, "failed to load notifications")
		return
	}
	respond(c, http.StatusOK, result)
}

// MarkRead marks :id as read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID := callerID(c)
	id := c.Param("id")

	err := h.repo.MarkRead(c.Request.Context(), userID, id)
	if errors.Is(err, repositories.ErrNotificationNotFound) {
		respondError(c, http.StatusNotFound, "notification not found")
		return
	}
	if err != nil {
		h.log.Error("mark notification read", zap.Int("user_id", userID), zap.String("notification_id", id), zap.Error(err))
		respondInternal(c, "failed to mark notification read")
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "read": true})
}

// MarkAllRead marks every notification of the caller as read.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID := callerID(c)
	updated, err := h.repo.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		h.log.Error("mark all notifications read", zap.Int("user_id", userID), zap.Error(err))
		respondInternal(c, "failed to mark notifications read")
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": updated})
}

// Create persists a notification from the caller and pushes it to the
// recipient. Other services call it when a like, comment or follow happens.
func (h *NotificationHandler) Create(c *gin.Context) {
	userID := callerID(c)

	var req createNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.Type.RequiresRelatedEntity() && req.RelatedEntityID == nil {
		respondError(c, http.StatusBadRequest, "relatedEntityId required for "+string(req.Type))
		return
	}
	if req.RecipientID == userID {
		respondError(c, http.StatusBadRequest, "cannot notify yourself")
		return
	}

	text := req.Message
	if text == "" {
		text = req.Type.DefaultText()
	}
	ctx := c.Request.Context()
	saved, err := h.repo.CreateNotification(ctx, models.Notification{
		Type:            req.Type,
		SenderID:        userID,
		RecipientID:     req.RecipientID,
		RelatedEntityID: req.RelatedEntityID,
		Text:            text,
	})
	if err != nil {
		h.log.Error("create notification", zap.Int("user_id", userID), zap.Error(err))
		respondInternal(c, "failed to create notification")
		return
	}

	observability.IncNotificationCreated(string(saved.Type))
	h.pusher.SendToUser(saved.RecipientID, models.EventNewNotification, saved)
	h.emitter.Emit(ctx, observability.RoutingNotification, requestIDFromContext(c), userID, saved)
	respond(c, http.StatusCreated, saved)
}
