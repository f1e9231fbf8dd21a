package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType представляет событие, о котором уведомляют
type NotificationType string

const (
	NotificationDebtCreated      NotificationType = "debt_created"
	NotificationDebtAcknowledged NotificationType = "debt_acknowledged"
	NotificationPaymentRequest   NotificationType = "payment_request"
	NotificationPaymentReminder  NotificationType = "payment_reminder"
	NotificationPaymentReceived  NotificationType = "payment_received"
	NotificationDebtSettled      NotificationType = "debt_settled"
	NotificationDebtDisputed     NotificationType = "debt_disputed"
	NotificationDebtCancelled    NotificationType = "debt_cancelled"
)

// NotificationChannel представляет канал доставки
type NotificationChannel string

const (
	ChannelEmail NotificationChannel = "email"
	ChannelSMS   NotificationChannel = "sms"
	ChannelPush  NotificationChannel = "push"
	ChannelInApp NotificationChannel = "in_app"
)

// NotificationStatus представляет статус доставки
type NotificationStatus string

const (
	NotificationStatusPending   NotificationStatus = "pending"
	NotificationStatusSent      NotificationStatus = "sent"
	NotificationStatusDelivered NotificationStatus = "delivered"
	NotificationStatusFailed    NotificationStatus = "failed"
	NotificationStatusRead      NotificationStatus = "read"
)

// Notification это запись об одной попытке уведомления по одному каналу
type Notification struct {
	ID             string              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID         *string             `gorm:"column:user_id;type:uuid;index" json:"userId,omitempty"`
	User           *User               `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	DebtID         *string             `gorm:"column:debt_id;type:uuid;index" json:"debtId,omitempty"`
	Debt           *Debt               `gorm:"foreignKey:DebtID;constraint:OnDelete:SET NULL" json:"-"`
	RecipientEmail string              `gorm:"column:recipient_email;size:255" json:"recipientEmail,omitempty"`
	RecipientPhone string              `gorm:"column:recipient_phone;size:32" json:"recipientPhone,omitempty"`
	RecipientName  string              `gorm:"column:recipient_name;size:100" json:"recipientName,omitempty"`
	Type           NotificationType    `gorm:"column:type;type:varchar(30);not null;index" json:"type"`
	Channel        NotificationChannel `gorm:"column:channel;type:varchar(10);not null" json:"channel"`
	Status         NotificationStatus  `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	Subject        string              `gorm:"column:subject;size:255" json:"subject"`
	Body           string              `gorm:"column:body;type:text" json:"body"`
	SentAt         *time.Time          `gorm:"column:sent_at;index" json:"sentAt,omitempty"`
	DeliveredAt    *time.Time          `gorm:"column:delivered_at" json:"deliveredAt,omitempty"`
	ReadAt         *time.Time          `gorm:"column:read_at" json:"readAt,omitempty"`
	FailedAt       *time.Time          `gorm:"column:failed_at" json:"failedAt,omitempty"`
	Error          string              `gorm:"column:error" json:"error,omitempty"`
	CreatedAt      time.Time           `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt      time.Time           `gorm:"column:updated_at" json:"updatedAt"`
}

func (Notification) TableName() string {
	return "notifications"
}

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
