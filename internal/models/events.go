package models

import "encoding/json"

// Push event names shared by the server hub and the sync client.
const (
	EventOnlineUsers        = "getOnlineUsers"
	EventNewNotification    = "newNotification"
	EventNewMessage         = "newMessage"
	EventMessagesRead       = "messagesRead"
	EventOrderStatusUpdated = "orderStatusUpdated"
	EventMarkMessagesRead   = "markMessagesRead"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}
