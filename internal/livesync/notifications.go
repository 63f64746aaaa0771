package livesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"realtime-service/internal/models"
	"realtime-service/internal/observability"
)

var (
	ErrMalformedNotification = errors.New("livesync: malformed notification")
	ErrUnknownNotification   = errors.New("livesync: unknown notification")
)

const tempIDPrefix = "temp-"

// NotificationAPI is the REST surface used by the aggregator.
type NotificationAPI interface {
	FetchNotifications(ctx context.Context, page, limit int) (models.NotificationPage, error)
	MarkNotificationRead(ctx context.Context, id string) error
	MarkAllNotificationsRead(ctx context.Context) error
}

// Notifications merges the authoritative persisted page with provisional
// realtime notifications and keeps the unseen counter.
//
// The unseen counter is persisted-unread plus unread realtime entries that
// are not yet confirmed by a persisted fetch.
type Notifications struct {
	api NotificationAPI
	log *zap.Logger
	now func() time.Time

	mu        sync.Mutex
	persisted []models.Notification
	realtime  []models.Notification
	unseen    int
}

// NewNotifications builds an empty aggregator.
func NewNotifications(api NotificationAPI, log *zap.Logger) *Notifications {
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifications{
		api: api,
		log: log.With(zap.String("component", "notifications")),
		now: time.Now,
	}
}

// Normalize turns a raw pushed notification into a realtime Notification.
func (n *Notifications) Normalize(raw models.RawNotification) (models.Notification, error) {
	if raw.SenderID == nil || *raw.SenderID == 0 {
		return models.Notification{}, fmt.Errorf("%w: missing sender", ErrMalformedNotification)
	}
	if !raw.Type.Valid() {
		return models.Notification{}, fmt.Errorf("%w: unknown type %q", ErrMalformedNotification, raw.Type)
	}
	related := raw.RelatedEntity()
	if related == nil && raw.Type.RequiresRelatedEntity() {
		return models.Notification{}, fmt.Errorf("%w: %s without post id", ErrMalformedNotification, raw.Type)
	}

	out := models.Notification{
		ID:              raw.ID,
		Type:            raw.Type,
		SenderID:        *raw.SenderID,
		RecipientID:     raw.RecipientID,
		RelatedEntityID: related,
		Origin:          models.OriginRealtime,
	}
	if out.ID == "" {
		out.ID = tempIDPrefix + uuid.NewString()
	}
	if raw.Text != nil && *raw.Text != "" {
		out.Text = *raw.Text
	} else {
		out.Text = raw.Type.DefaultText()
	}
	if raw.Read != nil {
		out.Read = *raw.Read
	}
	if raw.CreatedAt != nil {
		out.CreatedAt = *raw.CreatedAt
	} else {
		out.CreatedAt = n.now()
	}
	return out, nil
}

// Receive handles a pushed notification. It returns true if the
// notification became visible; malformed and duplicate pushes are dropped.
func (n *Notifications) Receive(raw models.RawNotification) bool {
	note, err := n.Normalize(raw)
	if err != nil {
		n.log.Warn("dropping pushed notification", zap.Error(err))
		observability.IncSyncDiscard("malformed")
		return false
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	key := note.Key()
	if n.hasKeyLocked(key) {
		observability.IncSyncDiscard("duplicate_notification")
		return false
	}
	n.realtime = append([]models.Notification{note}, n.realtime...)
	if !note.Read {
		n.unseen++
	}
	return true
}

// Refresh replaces the persisted collection with one fetched page, drops the
// realtime entries it confirms and recomputes the unseen counter.
func (n *Notifications) Refresh(ctx context.Context, page, limit int) error {
	result, err := n.api.FetchNotifications(ctx, page, limit)
	if err != nil {
		return fmt.Errorf("fetch notifications: %w", err)
	}

	persisted := make([]models.Notification, 0, len(result.Notifications))
	seen := make(map[models.NotificationKey]struct{}, len(result.Notifications))
	localUnread := 0
	for _, note := range result.Notifications {
		key := note.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		note.Origin = models.OriginPersisted
		if !note.Read {
			localUnread++
		}
		persisted = append(persisted, note)
	}

	persistedUnread := result.UnreadCount
	if persistedUnread < localUnread {
		persistedUnread = localUnread
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	kept := n.realtime[:0:0]
	realtimeUnread := 0
	for _, note := range n.realtime {
		if _, confirmed := seen[note.Key()]; confirmed {
			continue
		}
		if !note.Read {
			realtimeUnread++
		}
		kept = append(kept, note)
	}
	n.persisted = persisted
	n.realtime = kept
	n.unseen = persistedUnread + realtimeUnread
	return nil
}

// MarkRead marks one notification read locally, then persists it when it
// has a server id. Realtime entries with a temporary id are only updated
// locally.
func (n *Notifications) MarkRead(ctx context.Context, id string) error {
	n.mu.Lock()
	note, found := n.findLocked(id)
	if !found {
		n.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	}
	transitioned := 0
	if !note.Read {
		note.Read = true
		transitioned = 1
	}
	n.decrementLocked(transitioned)
	n.mu.Unlock()

	if strings.HasPrefix(id, tempIDPrefix) {
		return nil
	}
	if err := n.api.MarkNotificationRead(ctx, id); err != nil {
		return fmt.Errorf("mark notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllRead marks every known notification read locally, then persists.
func (n *Notifications) MarkAllRead(ctx context.Context) error {
	n.mu.Lock()
	transitioned := 0
	for i := range n.persisted {
		if !n.persisted[i].Read {
			n.persisted[i].Read = true
			transitioned++
		}
	}
	for i := range n.realtime {
		if !n.realtime[i].Read {
			n.realtime[i].Read = true
			transitioned++
		}
	}
	n.decrementLocked(transitioned)
	n.mu.Unlock()

	if err := n.api.MarkAllNotificationsRead(ctx); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// Merged returns realtime entries (newest first) followed by the persisted page.
func (n *Notifications) Merged() []models.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.Notification, 0, len(n.realtime)+len(n.persisted))
	out = append(out, n.realtime...)
	out = append(out, n.persisted...)
	return out
}

// Unseen returns the unseen counter.
func (n *Notifications) Unseen() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.unseen
}

// Reset drops both collections and zeroes the counter.
func (n *Notifications) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.persisted = nil
	n.realtime = nil
	n.unseen = 0
}

func (n *Notifications) hasKeyLocked(key models.NotificationKey) bool {
	for _, note := range n.persisted {
		if note.Key() == key {
			return true
		}
	}
	for _, note := range n.realtime {
		if note.Key() == key {
			return true
		}
	}
	return false
}

func (n *Notifications) findLocked(id string) (*models.Notification, bool) {
	for i := range n.persisted {
		if n.persisted[i].ID == id {
			return &n.persisted[i], true
		}
	}
	for i := range n.realtime {
		if n.realtime[i].ID == id {
			return &n.realtime[i], true
		}
	}
	return nil, false
}

func (n *Notifications) decrementLocked(by int) {
	n.unseen -= by
	if n.unseen < 0 {
		n.unseen = 0
	}
}
