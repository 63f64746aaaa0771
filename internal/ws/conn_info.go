package ws

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"realtime-service/internal/observability"
)

// ConnInfo describes who is behind a push connection.
type ConnInfo struct {
	ConnID      string
	UserID      int
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// NewConnInfo collects connection metadata from the upgrade request.
func NewConnInfo(r *http.Request, userID int, traceID string) ConnInfo {
	meta := observability.ClientMetaFromRequest(r)
	return ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      userID,
		DeviceID:    meta.DeviceID,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
}

// LifecyclePayload is exported on the event bus for connect, disconnect and
// error transitions.
type LifecyclePayload struct {
	Event      string `json:"event"`
	ConnID     string `json:"conn_id"`
	DurationMS int64  `json:"duration_ms"`
	Reason     string `json:"reason,omitempty"`
	UserID     int    `json:"user_id"`
	DeviceID   string `json:"device_id,omitempty"`
	IP         string `json:"ip,omitempty"`
}

func (i ConnInfo) lifecycle(event, reason string) LifecyclePayload {
	var duration int64
	if event != "ws_connect" {
		duration = time.Since(i.ConnectedAt).Milliseconds()
	}
	return LifecyclePayload{
		Event:      event,
		ConnID:     i.ConnID,
		DurationMS: duration,
		Reason:     reason,
		UserID:     i.UserID,
		DeviceID:   i.DeviceID,
		IP:         i.IP,
	}
}
