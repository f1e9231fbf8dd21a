package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionType представляет тип транзакции
type TransactionType string

const (
	TransactionTypePayment  TransactionType = "payment"
	TransactionTypeRefund   TransactionType = "refund"
	TransactionTypeReversal TransactionType = "reversal"
)

// TransactionStatus представляет статус попытки оплаты
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusFailed     TransactionStatus = "failed"
	TransactionStatusRefunded   TransactionStatus = "refunded"
)

func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusPending, TransactionStatusProcessing, TransactionStatusCompleted,
		TransactionStatusFailed, TransactionStatusRefunded:
		return true
	}
	return false
}

// IsFinal сообщает, что транзакция больше не изменяется
func (s TransactionStatus) IsFinal() bool {
	return s == TransactionStatusCompleted || s == TransactionStatusFailed
}

// Transaction представляет одну попытку оплаты долга
type Transaction struct {
	ID                    string            `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	DebtID                string            `gorm:"column:debt_id;type:uuid;not null;index" json:"debtId"`
	Amount                decimal.Decimal   `gorm:"column:amount;type:numeric(15,2);not null;check:chk_transactions_amount,amount > 0" json:"amount"`
	Currency              string            `gorm:"column:currency;size:3;not null" json:"currency"`
	TransactionType       TransactionType   `gorm:"column:transaction_type;type:varchar(20);not null;default:'payment'" json:"transactionType"`
	ProviderType          PaymentMethod     `gorm:"column:provider_type;type:varchar(20);not null" json:"providerType"`
	ProviderTransactionID string            `gorm:"column:provider_transaction_id;size:255" json:"providerTransactionId,omitempty"`
	Reference             string            `gorm:"column:reference;uniqueIndex;size:100;not null" json:"reference"`
	Status                TransactionStatus `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	FailureReason         string            `gorm:"column:failure_reason" json:"failureReason,omitempty"`
	InitiatedAt           time.Time         `gorm:"column:initiated_at;not null" json:"initiatedAt"`
	CompletedAt           *time.Time        `gorm:"column:completed_at" json:"completedAt,omitempty"`
	FailedAt              *time.Time        `gorm:"column:failed_at" json:"failedAt,omitempty"`
	CreatedAt             time.Time         `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt             time.Time         `gorm:"column:updated_at" json:"updatedAt"`
}

func (Transaction) TableName() string {
	return "transactions"
}

func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
