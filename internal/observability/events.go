package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Routing keys for exported domain events.
const (
	RoutingWSConnected     = "realtime.ws.connected"
	RoutingWSDisconnected  = "realtime.ws.disconnected"
	RoutingMessageSent     = "realtime.message.sent"
	RoutingMessagesRead    = "realtime.messages.read"
	RoutingNotification    = "realtime.notification.created"
	RoutingOrderStatus     = "realtime.order.status_changed"
	eventEnvelopeSchemaVer = 1
)

type EventEnvelope struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	OccurredAt    string      `json:"occurred_at"`
	Service       string      `json:"service"`
	RequestID     string      `json:"request_id,omitempty"`
	UserID        int         `json:"user_id,omitempty"`
	Payload       interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// Emitter wraps domain payloads in an EventEnvelope and publishes them on the
// default publisher. Publish failures are logged, never returned.
type Emitter struct {
	service string
	log     *zap.Logger
}

func NewEmitter(service string, log *zap.Logger) *Emitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Emitter{service: service, log: log}
}

func (e *Emitter) Emit(ctx context.Context, routingKey, requestID string, userID int, payload interface{}) {
	if e == nil {
		return
	}
	envelope := EventEnvelope{
		SchemaVersion: eventEnvelopeSchemaVer,
		EventType:     routingKey,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	if err := PublishEvent(ctx, routingKey, envelope, BuildHeaders(requestID, traceID)); err != nil {
		e.log.Warn("event publish failed", zap.String("routing_key", routingKey), zap.Error(err))
	}
}
