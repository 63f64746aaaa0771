package models

import "time"

// AttachmentKind classifies a message attachment.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is an optional file carried by a direct message.
type Attachment struct {
	Kind AttachmentKind `json:"kind"`
	URL  string         `json:"url"`
	Name string         `json:"name,omitempty"`
}

// Message represents a direct message between two users.
type Message struct {
	ID         int         `db:"id" json:"id"`
	SenderID   int         `db:"sender_id" json:"senderId"`
	ReceiverID int         `db:"receiver_id" json:"receiverId"`
	Body       string      `db:"body" json:"message"`
	Attachment *Attachment `db:"-" json:"attachment,omitempty"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
	IsRead     bool        `db:"is_read" json:"isRead"`
}

// Counterpart returns the other participant from localUser's point of view.
func (m Message) Counterpart(localUser int) int {
	if m.SenderID == localUser {
		return m.ReceiverID
	}
	return m.SenderID
}

// MessageRow is the storage shape of a message; attachment columns are nullable.
type MessageRow struct {
	ID         int       `db:"id"`
	SenderID   int       `db:"sender_id"`
	ReceiverID int       `db:"receiver_id"`
	Body       string    `db:"body"`
	FileURL    *string   `db:"file_url"`
	FileType   *string   `db:"file_type"`
	FileName   *string   `db:"file_name"`
	CreatedAt  time.Time `db:"created_at"`
	IsRead     bool      `db:"is_read"`
}

// Message converts a row into the API shape.
func (r MessageRow) Message() Message {
	return RawMessage{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Body:       r.Body,
		FileURL:    r.FileURL,
		FileType:   r.FileType,
		FileName:   r.FileName,
		CreatedAt:  r.CreatedAt,
		IsRead:     r.IsRead,
	}.Normalize()
}

// RawMessage is the loose wire form of a message as pushed by the server or
// older clients. Attachment fields may be absent.
type RawMessage struct {
	ID         int         `json:"id"`
	SenderID   int         `json:"senderId"`
	ReceiverID int         `json:"receiverId"`
	Body       string      `json:"message"`
	FileURL    *string     `json:"fileUrl,omitempty"`
	FileType   *string     `json:"fileType,omitempty"`
	FileName   *string     `json:"fileName,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	IsRead     bool        `json:"isRead"`
}

// Normalize maps the loose attachment fields onto Message. A missing or empty
// file url means no attachment.
func (r RawMessage) Normalize() Message {
	msg := Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Body:       r.Body,
		CreatedAt:  r.CreatedAt,
		IsRead:     r.IsRead,
	}
	switch {
	case r.Attachment != nil && r.Attachment.URL != "":
		att := *r.Attachment
		if att.Kind != AttachmentImage {
			att.Kind = AttachmentFile
		}
		msg.Attachment = &att
	case r.FileURL != nil && *r.FileURL != "":
		att := Attachment{Kind: AttachmentFile, URL: *r.FileURL}
		if r.FileType != nil && AttachmentKind(*r.FileType) == AttachmentImage {
			att.Kind = AttachmentImage
		}
		if r.FileName != nil {
			att.Name = *r.FileName
		}
		msg.Attachment = &att
	}
	return msg
}

// ConversationKey identifies a direct conversation regardless of direction.
type ConversationKey struct {
	UserA int
	UserB int
}

// NewConversationKey orders the pair so that (a, b) and (b, a) are equal.
func NewConversationKey(a, b int) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey{UserA: a, UserB: b}
}

// ReadReceipt is pushed to the original sender once the counterpart has read
// the conversation.
type ReadReceipt struct {
	From int `json:"from"`
}

// MarkReadRequest is emitted by a client that opened a conversation.
type MarkReadRequest struct {
	CounterpartID int `json:"counterpartId"`
}
