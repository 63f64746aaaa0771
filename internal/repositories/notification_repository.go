package repositories

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/jmoiron/sqlx"

	"realtime-service/internal/models"
)

var ErrNotificationNotFound = errors.New("notification not found")

const notificationColumns = `id::text AS id, type, sender_id, recipient_id, related_entity_id, text, created_at, is_read`

// NotificationRepository defines interactions for activity notifications.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error)
	ListForRecipient(ctx context.Context, recipientID, page, limit int) (models.NotificationPage, error)
	MarkRead(ctx context.Context, recipientID int, notificationID string) error
	MarkAllRead(ctx context.Context, recipientID int) (int64, error)
}

// NotificationRepo is a sqlx-backed repository.
type NotificationRepo struct {
	db *sqlx.DB
}

// NewNotificationRepo constructs NotificationRepo.
func NewNotificationRepo(db *sqlx.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// CreateNotification stores n and returns it with its id and timestamp.
func (r *NotificationRepo) CreateNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	var out models.Notification
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO notifications (type, sender_id, recipient_id, related_entity_id, text)
        VALUES ($1, $2, $3, $4, $5) RETURNING `+notificationColumns,
		n.Type, n.SenderID, n.RecipientID, n.RelatedEntityID, n.Text).StructScan(&out)
	if err != nil {
		return models.Notification{}, err
	}
	out.Origin = models.OriginPersisted
	return out, nil
}

// ListForRecipient returns one page of notifications, newest first, with the
// recipient's total unread count.
func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID, page, limit int) (models.NotificationPage, error) {
	if page < 1 {
		page = 1
	}
	result := models.NotificationPage{Page: page, Limit: limit}

	err := r.db.SelectContext(ctx, &result.Notifications,
		`SELECT `+notificationColumns+` FROM notifications
        WHERE recipient_id=$1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`,
		recipientID, limit, (page-1)*limit)
	if err != nil {
		return models.NotificationPage{}, err
	}
	for i := range result.Notifications {
		result.Notifications[i].Origin = models.OriginPersisted
	}
	if result.Notifications == nil {
		result.Notifications = []models.Notification{}
	}

	err = r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE is_read = FALSE) FROM notifications WHERE recipient_id=$1`,
		recipientID).Scan(&result.Total, &result.UnreadCount)
	if err != nil {
		return models.NotificationPage{}, err
	}
	return result, nil
}

// MarkRead marks a notification owned by recipientID as read.
func (r *NotificationRepo) MarkRead(ctx context.Context, recipientID int, notificationID string) error {
	id, err := strconv.Atoi(notificationID)
	if err != nil {
		return ErrNotificationNotFound
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id=$1 AND recipient_id=$2`, id, recipientID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of recipientID as read.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, recipientID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE recipient_id=$1 AND is_read = FALSE`, recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
