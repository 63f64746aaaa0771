package models

import "time"

// NotificationType enumerates the activity kinds that produce notifications.
type NotificationType string

const (
	NotificationLike    NotificationType = "like"
	NotificationComment NotificationType = "comment"
	NotificationFollow  NotificationType = "follow"
	NotificationMessage NotificationType = "message"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationLike, NotificationComment, NotificationFollow, NotificationMessage:
		return true
	}
	return false
}

// RequiresRelatedEntity reports whether notifications of this type must point at a post.
func (t NotificationType) RequiresRelatedEntity() bool {
	return t == NotificationLike || t == NotificationComment
}

// DefaultText is used when a pushed notification carries no text.
func (t NotificationType) DefaultText() string {
	switch t {
	case NotificationLike:
		return "liked your post"
	case NotificationComment:
		return "commented on your post"
	case NotificationFollow:
		return "started following you"
	case NotificationMessage:
		return "sent you a message"
	default:
		return "new notification"
	}
}

// NotificationOrigin records which source a notification came from.
type NotificationOrigin string

const (
	OriginPersisted NotificationOrigin = "persisted"
	OriginRealtime  NotificationOrigin = "realtime"
)

// Notification is an activity notification addressed to RecipientID.
type Notification struct {
	ID              string             `db:"id" json:"id"`
	Type            NotificationType   `db:"type" json:"type"`
	SenderID        int                `db:"sender_id" json:"senderId"`
	RecipientID     int                `db:"recipient_id" json:"recipientId"`
	RelatedEntityID *int               `db:"related_entity_id" json:"relatedEntityId,omitempty"`
	Text            string             `db:"text" json:"message"`
	CreatedAt       time.Time          `db:"created_at" json:"createdAt"`
	Read            bool               `db:"is_read" json:"read"`
	Origin          NotificationOrigin `db:"-" json:"origin,omitempty"`
}

// NotificationKey is the de-duplication key of a notification.
type NotificationKey struct {
	Type       NotificationType
	SenderID   int
	RelatedID  int
	HasRelated bool
}

// Key returns the de-duplication key of n.
func (n Notification) Key() NotificationKey {
	key := NotificationKey{Type: n.Type, SenderID: n.SenderID}
	if n.RelatedEntityID != nil {
		key.RelatedID = *n.RelatedEntityID
		key.HasRelated = true
	}
	return key
}

// RawNotification is the loose wire form pushed on newNotification. Older
// producers send the post reference as postId or as an embedded post object.
type RawNotification struct {
	ID          string           `json:"id,omitempty"`
	Type        NotificationType `json:"type"`
	SenderID    *int             `json:"senderId,omitempty"`
	RecipientID int              `json:"recipientId,omitempty"`
	RelatedID   *int             `json:"relatedEntityId,omitempty"`
	PostID      *int             `json:"postId,omitempty"`
	Post        *PostRef         `json:"post,omitempty"`
	Text        *string          `json:"message,omitempty"`
	CreatedAt   *time.Time       `json:"createdAt,omitempty"`
	Read        *bool            `json:"read,omitempty"`
}

// PostRef is the minimal embedded post shape some producers push.
type PostRef struct {
	ID int `json:"id"`
}

// RelatedEntity collapses relatedEntityId, postId and post.id into one value.
func (r RawNotification) RelatedEntity() *int {
	switch {
	case r.RelatedID != nil:
		return r.RelatedID
	case r.PostID != nil:
		return r.PostID
	case r.Post != nil && r.Post.ID != 0:
		id := r.Post.ID
		return &id
	}
	return nil
}

// NotificationPage is one page of persisted notifications.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
	Page          int            `json:"page"`
	Limit         int            `json:"limit"`
	Total         int            `json:"total"`
}
