package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
	"realtime-service/internal/repositories"
)

// MessageHandler manages direct message endpoints.
type MessageHandler struct {
	messages      repositories.MessageRepository
	notifications repositories.NotificationRepository
	pusher        Pusher
	emitter       *observability.Emitter
	validate      *validator.Validate
	log           *zap.Logger
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(messages repositories.MessageRepository, notifications repositories.NotificationRepository, pusher Pusher, emitter *observability.Emitter, log *zap.Logger) *MessageHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageHandler{
		messages:      messages,
		notifications: notifications,
		pusher:        pusher,
		emitter:       emitter,
		validate:      validator.New(),
		log:           log.With(zap.String("component", "message_handler")),
	}
}

type attachmentRequest struct {
	Kind models.AttachmentKind `json:"kind" validate:"omitempty,oneof=image file"`
	URL  string                `json:"url" validate:"required,url"`
	Name string                `json:"name" validate:"max=255"`
}

type sendMessageRequest struct {
	Message    string             `json:"message" validate:"max=4000"`
	Attachment *attachmentRequest `json:"attachment" validate:"omitempty"`
}

// GetConversation returns the messages exchanged with :userId.
func (h *MessageHandler) GetConversation(c *gin.Context) {
	userID := callerID(c)
	counterpart, ok := intParam(c, "userId")
	if !ok || counterpart == userID {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	msgs, err := h.messages.GetConversation(c.Request.Context(), userID, counterpart)
	if err != nil {
		h.log.Error("load conversation", zap.Int("user_id", userID), zap.Int("counterpart", counterpart), zap.Error(err))
		respondInternal(c, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	respond(c, http.StatusOK, msgs)
}

// SendMessage stores a message to :userId, pushes it to both participants
// and raises a message notification for the receiver.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID := callerID(c)
	receiver, ok := intParam(c, "userId")
	if !ok || receiver == userID {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" && req.Attachment == nil {
		respondError(c, http.StatusBadRequest, "message or attachment required")
		return
	}

	var attachment *models.Attachment
	if req.Attachment != nil {
		kind := req.Attachment.Kind
		if kind != models.AttachmentImage {
			kind = models.AttachmentFile
		}
		attachment = &models.Attachment{Kind: kind, URL: req.Attachment.URL, Name: req.Attachment.Name}
	}

	ctx := c.Request.Context()
	msg, err := h.messages.CreateMessage(ctx, userID, receiver, req.Message, attachment)
	if err != nil {
		h.log.Error("create message", zap.Int("user_id", userID), zap.Error(err))
		respondInternal(c, "failed to send message")
		return
	}

	h.pusher.SendToUser(receiver, models.EventNewMessage, msg)
	h.pusher.SendToUser(userID, models.EventNewMessage, msg)
	h.emitter.Emit(ctx, observability.RoutingMessageSent, requestIDFromContext(c), userID, msg)

	note := models.Notification{
		Type:        models.NotificationMessage,
		SenderID:    userID,
		RecipientID: receiver,
		Text:        models.NotificationMessage.DefaultText(),
	}
	if saved, err := h.notifications.CreateNotification(ctx, note); err != nil {
		h.log.Warn("create message notification", zap.Int("recipient_id", receiver), zap.Error(err))
	} else {
		observability.IncNotificationCreated(string(saved.Type))
		h.pusher.SendToUser(receiver, models.EventNewNotification, saved)
	}

	respond(c, http.StatusCreated, msg)
}

// MarkRead marks every message from :userId to the caller as read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	userID := callerID(c)
	counterpart, ok := intParam(c, "userId")
	if !ok || counterpart == userID {
		respondError(c, http.StatusBadRequest, "invalid user id")
		return
	}

	updated, err := h.messages.MarkConversationRead(c.Request.Context(), userID, counterpart)
	if err != nil {
		h.log.Error("mark conversation read", zap.Int("user_id", userID), zap.Int("counterpart", counterpart), zap.Error(err))
		respondInternal(c, "failed to mark messages read")
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": updated})
}
