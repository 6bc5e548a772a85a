// Package queue carries notifications over RabbitMQ: the API publishes them
// and the notifications worker persists them.
package queue

import (
	"time"

	"github.com/iliyamo/groupshare/internal/model"
)

// NotificationEvent is the wire form of a notification.  The ID is assigned
// by the publisher so a redelivered message maps to the same row.
type NotificationEvent struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Type              string    `json:"type"`
	Title             string    `json:"title"`
	Content           string    `json:"content"`
	RelatedEntityType string    `json:"related_entity_type"`
	RelatedEntityID   string    `json:"related_entity_id"`
	CreatedAt         time.Time `json:"created_at"`
}

func eventFromNotification(n model.Notification) NotificationEvent {
	return NotificationEvent{
		ID:                n.ID,
		UserID:            n.UserID,
		Type:              n.Type,
		Title:             n.Title,
		Content:           n.Content,
		RelatedEntityType: n.RelatedEntityType,
		RelatedEntityID:   n.RelatedEntityID,
		CreatedAt:         n.CreatedAt,
	}
}

func (e NotificationEvent) notification() model.Notification {
	return model.Notification{
		ID:                e.ID,
		UserID:            e.UserID,
		Type:              e.Type,
		Title:             e.Title,
		Content:           e.Content,
		RelatedEntityType: e.RelatedEntityType,
		RelatedEntityID:   e.RelatedEntityID,
		CreatedAt:         e.CreatedAt,
	}
}
