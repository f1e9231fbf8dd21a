package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// WebhookEvent это журнал входящих событий от платежных провайдеров.
// Пара (provider, event_id) уникальна, событие обрабатывается не более одного раза.
type WebhookEvent struct {
	ID          string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Provider    PaymentMethod  `gorm:"column:provider;type:varchar(20);not null;index:idx_webhook_events_provider_event,unique,priority:1" json:"provider"`
	EventID     string         `gorm:"column:event_id;size:255;not null;index:idx_webhook_events_provider_event,unique,priority:2" json:"eventId"`
	EventType   string         `gorm:"column:event_type;size:100;not null" json:"eventType"`
	Payload     datatypes.JSON `gorm:"column:payload;type:jsonb" json:"-"`
	Signature   string         `gorm:"column:signature" json:"-"`
	Processed   bool           `gorm:"column:processed;not null;default:false;index" json:"processed"`
	ProcessedAt *time.Time     `gorm:"column:processed_at" json:"processedAt,omitempty"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	ReceivedAt  time.Time      `gorm:"column:received_at;not null" json:"receivedAt"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"createdAt"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}

func (e *WebhookEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
