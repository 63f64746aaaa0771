package livesync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
)

// ErrMalformedMessage marks a pushed message missing its ids.
var ErrMalformedMessage = errors.New("livesync: malformed message")

// MessageAPI is the REST surface used by the message pipeline.
type MessageAPI interface {
	FetchConversation(ctx context.Context, counterpartID int) ([]models.Message, error)
	SendMessage(ctx context.Context, counterpartID int, body string, attachment *models.Attachment) (models.Message, error)
	MarkConversationRead(ctx context.Context, counterpartID int) error
}

// Messages merges REST-confirmed and pushed messages per conversation and
// applies read receipts.
type Messages struct {
	localUser int
	api       MessageAPI
	log       *zap.Logger

	mu    sync.Mutex
	convs map[int]map[int]models.Message
}

// NewMessages builds the pipeline for localUser.
func NewMessages(localUser int, api MessageAPI, log *zap.Logger) *Messages {
	if log == nil {
		log = zap.NewNop()
	}
	return &Messages{
		localUser: localUser,
		api:       api,
		log:       log.With(zap.String("component", "messages")),
		convs:     make(map[int]map[int]models.Message),
	}
}

// Load fetches a conversation over REST and merges it into local state.
func (m *Messages) Load(ctx context.Context, counterpart int) error {
	msgs, err := m.api.FetchConversation(ctx, counterpart)
	if err != nil {
		return fmt.Errorf("fetch conversation %d: %w", counterpart, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range msgs {
		if err := m.validate(msg); err != nil {
			m.log.Warn("skipping invalid fetched message", zap.Int("message_id", msg.ID), zap.Error(err))
			continue
		}
		m.mergeLocked(msg)
	}
	return nil
}

// Send creates a message over REST and appends the confirmed copy.
func (m *Messages) Send(ctx context.Context, counterpart int, body string, attachment *models.Attachment) (models.Message, error) {
	msg, err := m.api.SendMessage(ctx, counterpart, body, attachment)
	if err != nil {
		return models.Message{}, fmt.Errorf("send message to %d: %w", counterpart, err)
	}
	m.mu.Lock()
	m.mergeLocked(msg)
	m.mu.Unlock()
	return msg, nil
}

// Receive merges a pushed message. It returns ErrMalformedMessage when the
// message lacks ids or does not involve the local user.
func (m *Messages) Receive(msg models.Message) error {
	if err := m.validate(msg); err != nil {
		return err
	}
	m.mu.Lock()
	m.mergeLocked(msg)
	m.mu.Unlock()
	return nil
}

// ApplyReadReceipt marks every message the local user sent to from as read
// and returns how many changed.
func (m *Messages) ApplyReadReceipt(from int) int {
	return m.markRead(from, m.localUser, from)
}

// MarkInboundRead marks messages received from counterpart as read locally.
func (m *Messages) MarkInboundRead(counterpart int) int {
	return m.markRead(counterpart, counterpart, m.localUser)
}

// MarkRead persists the read state of a conversation over REST.
func (m *Messages) MarkRead(ctx context.Context, counterpart int) error {
	if err := m.api.MarkConversationRead(ctx, counterpart); err != nil {
		return fmt.Errorf("mark conversation %d read: %w", counterpart, err)
	}
	return nil
}

// Conversation returns the messages exchanged with counterpart ordered by
// creation time.
func (m *Messages) Conversation(counterpart int) []models.Message {
	m.mu.Lock()
	conv := m.convs[counterpart]
	out := make([]models.Message, 0, len(conv))
	for _, msg := range conv {
		out = append(out, msg)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Reset drops every cached conversation.
func (m *Messages) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs = make(map[int]map[int]models.Message)
}

func (m *Messages) validate(msg models.Message) error {
	if msg.ID == 0 || msg.SenderID == 0 || msg.ReceiverID == 0 {
		return ErrMalformedMessage
	}
	if msg.SenderID != m.localUser && msg.ReceiverID != m.localUser {
		return fmt.Errorf("%w: message %d does not involve user %d", ErrMalformedMessage, msg.ID, m.localUser)
	}
	return nil
}

// mergeLocked upserts msg by id. Read state is sticky.
func (m *Messages) mergeLocked(msg models.Message) {
	counterpart := msg.Counterpart(m.localUser)
	conv, ok := m.convs[counterpart]
	if !ok {
		conv = make(map[int]models.Message)
		m.convs[counterpart] = conv
	}
	if existing, ok := conv[msg.ID]; ok && existing.IsRead {
		msg.IsRead = true
	}
	conv[msg.ID] = msg
}

func (m *Messages) markRead(counterpart, sender, receiver int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := 0
	for id, msg := range m.convs[counterpart] {
		if msg.SenderID == sender && msg.ReceiverID == receiver && !msg.IsRead {
			msg.IsRead = true
			m.convs[counterpart][id] = msg
			changed++
		}
	}
	if changed > 0 {
		observability.AddSyncReadMarks(changed)
	}
	return changed
}
