package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"realtime-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, sender_id, receiver_id, body, file_url, file_type, file_name, created_at, is_read`

// MessageRepository defines interactions for direct messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, senderID, receiverID int, body string, attachment *models.Attachment) (models.Message, error)
	GetConversation(ctx context.Context, userID, counterpartID int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	MarkConversationRead(ctx context.Context, readerID, counterpartID int) (int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// CreateMessage stores a direct message.
func (r *MessageRepo) CreateMessage(ctx context.Context, senderID, receiverID int, body string, attachment *models.Attachment) (models.Message, error) {
	var fileURL, fileType, fileName *string
	if attachment != nil && attachment.URL != "" {
		kind := string(attachment.Kind)
		fileURL, fileType, fileName = &attachment.URL, &kind, &attachment.Name
	}

	var row models.MessageRow
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (sender_id, receiver_id, body, file_url, file_type, file_name)
        VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+messageColumns,
		senderID, receiverID, body, fileURL, fileType, fileName).StructScan(&row)
	if err != nil {
		return models.Message{}, err
	}
	return row.Message(), nil
}

// GetConversation returns messages between two users ordered by creation time.
func (r *MessageRepo) GetConversation(ctx context.Context, userID, counterpartID int) ([]models.Message, error) {
	query := `SELECT ` + messageColumns + `
        FROM messages
        WHERE (sender_id=$1 AND receiver_id=$2) OR (sender_id=$2 AND receiver_id=$1)
        ORDER BY created_at ASC, id ASC`
	var rows []models.MessageRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, counterpartID); err != nil {
		return nil, err
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.Message())
	}
	return msgs, nil
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var row models.MessageRow
	err := r.db.GetContext(ctx, &row, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, err
	}
	return row.Message(), nil
}

// MarkConversationRead flags every message counterpartID sent to readerID as
// read and returns how many rows changed.
func (r *MessageRepo) MarkConversationRead(ctx context.Context, readerID, counterpartID int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE messages SET is_read = TRUE WHERE receiver_id=$1 AND sender_id=$2 AND is_read = FALSE`,
		readerID, counterpartID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
