package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"realtime-service/internal/auth"
	"realtime-service/internal/models"
	"realtime-service/internal/observability"
)

const readMarkTimeout = 5 * time.Second

// ReadMarker persists that readerID has read everything counterpartID sent.
type ReadMarker interface {
	MarkConversationRead(ctx context.Context, readerID, counterpartID int) (int64, error)
}

// Handler upgrades authenticated requests to push connections and handles
// client-originated events.
type Handler struct {
	hub       *Hub
	validator auth.TokenValidator
	messages  ReadMarker
	emitter   *observability.Emitter
	log       *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(hub *Hub, validator auth.TokenValidator, messages ReadMarker, emitter *observability.Emitter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub:       hub,
		validator: validator,
		messages:  messages,
		emitter:   emitter,
		log:       log.With(zap.String("component", "ws_handler")),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle validates the token, upgrades the connection and registers it.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("realtime-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = c.Query("token")
	}

	userID, err := h.validator.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.Int("user_id", userID), zap.Error(err))
		return
	}

	info := NewConnInfo(c.Request, userID, span.SpanContext().TraceID().String())
	// the handshake span ends with this request; the connection outlives it
	connCtx := context.WithoutCancel(ctx)
	client := h.hub.Register(connCtx, conn, info)
	h.emitter.Emit(connCtx, observability.RoutingWSConnected, info.RequestID, userID, info.lifecycle("ws_connect", ""))

	go func() {
		err := client.ReadLoop(func(cl *Client, env models.Envelope) {
			h.dispatch(connCtx, cl, env)
		})
		reason := ""
		if err != nil {
			reason = err.Error()
		}
		if err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			h.emitter.Emit(connCtx, observability.RoutingWSDisconnected, info.RequestID, userID, info.lifecycle("ws_error", reason))
			return
		}
		h.emitter.Emit(connCtx, observability.RoutingWSDisconnected, info.RequestID, userID, info.lifecycle("ws_disconnect", reason))
	}()
}

func (h *Handler) dispatch(ctx context.Context, client *Client, env models.Envelope) {
	switch env.Event {
	case models.EventMarkMessagesRead:
		var req models.MarkReadRequest
		if err := Decode(env, &req); err != nil || req.CounterpartID <= 0 {
			h.log.Warn("dropping malformed markMessagesRead", zap.Int("user_id", client.info.UserID), zap.Error(err))
			return
		}
		h.relayReadReceipt(ctx, client.info.UserID, req.CounterpartID)
	default:
		h.log.Debug("ignoring client event", zap.String("event", env.Event), zap.Int("user_id", client.info.UserID))
	}
}

// relayReadReceipt persists the read state and tells every connection of the
// original sender that reader has caught up.
func (h *Handler) relayReadReceipt(ctx context.Context, reader, counterpart int) {
	ctx, cancel := context.WithTimeout(ctx, readMarkTimeout)
	defer cancel()

	updated, err := h.messages.MarkConversationRead(ctx, reader, counterpart)
	if err != nil {
		h.log.Error("mark conversation read", zap.Int("reader", reader), zap.Int("counterpart", counterpart), zap.Error(err))
		return
	}
	h.hub.SendToUser(counterpart, models.EventMessagesRead, models.ReadReceipt{From: reader})
	h.emitter.Emit(ctx, observability.RoutingMessagesRead, "", reader, map[string]interface{}{
		"reader":      reader,
		"counterpart": counterpart,
		"updated":     updated,
	})
}
