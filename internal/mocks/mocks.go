package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"realtime-service/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, senderID, receiverID int, body string, attachment *models.Attachment) (models.Message, error) {
	args := m.Called(ctx, senderID, receiverID, body, attachment)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) GetConversation(ctx context.Context, userID, counterpartID int) ([]models.Message, error) {
	args := m.Called(ctx, userID, counterpartID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) MarkConversationRead(ctx context.Context, readerID, counterpartID int) (int64, error) {
	args := m.Called(ctx, readerID, counterpartID)
	return args.Get(0).(int64), args.Error(1)
}

type NotificationRepositoryMock struct {
	mock.Mock
}

func (m *NotificationRepositoryMock) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	args := m.Called(ctx, n)
	var out models.Notification
	if val := args.Get(0); val != nil {
		out = val.(models.Notification)
	}
	return out, args.Error(1)
}

func (m *NotificationRepositoryMock) ListForRecipient(ctx context.Context, recipientID, page, limit int) (models.NotificationPage, error) {
	args := m.Called(ctx, recipientID, page, limit)
	var out models.NotificationPage
	if val := args.Get(0); val != nil {
		out = val.(models.NotificationPage)
	}
	return out, args.Error(1)
}

func (m *NotificationRepositoryMock) MarkRead(ctx context.Context, recipientID int, notificationID string) error {
	args := m.Called(ctx, recipientID, notificationID)
	return args.Error(0)
}

func (m *NotificationRepositoryMock) MarkAllRead(ctx context.Context, recipientID int) (int64, error) {
	args := m.Called(ctx, recipientID)
	return args.Get(0).(int64), args.Error(1)
}

type OrderRepositoryMock struct {
	mock.Mock
}

func (m *OrderRepositoryMock) ListForUser(ctx context.Context, userID int) ([]models.OrderSnapshot, error) {
	args := m.Called(ctx, userID)
	var out []models.OrderSnapshot
	if val := args.Get(0); val != nil {
		out = val.([]models.OrderSnapshot)
	}
	return out, args.Error(1)
}

func (m *OrderRepositoryMock) GetOrder(ctx context.Context, orderID int) (models.OrderSnapshot, error) {
	args := m.Called(ctx, orderID)
	var out models.OrderSnapshot
	if val := args.Get(0); val != nil {
		out = val.(models.OrderSnapshot)
	}
	return out, args.Error(1)
}

func (m *OrderRepositoryMock) History(ctx context.Context, orderID int) ([]models.OrderStatusEvent, error) {
	args := m.Called(ctx, orderID)
	var out []models.OrderStatusEvent
	if val := args.Get(0); val != nil {
		out = val.([]models.OrderStatusEvent)
	}
	return out, args.Error(1)
}

func (m *OrderRepositoryMock) UpdateStatus(ctx context.Context, orderID int, update models.OrderStatusEvent) (models.OrderSnapshot, error) {
	args := m.Called(ctx, orderID, update)
	var out models.OrderSnapshot
	if val := args.Get(0); val != nil {
		out = val.(models.OrderSnapshot)
	}
	return out, args.Error(1)
}

type PusherMock struct {
	mock.Mock
}

func (m *PusherMock) SendToUser(userID int, event string, payload interface{}) int {
	args := m.Called(userID, event, payload)
	return args.Int(0)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (int, error) {
	args := m.Called(ctx, token)
	return args.Int(0), args.Error(1)
}
