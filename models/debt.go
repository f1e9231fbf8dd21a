package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DebtStatus представляет статус долга
type DebtStatus string

const (
	DebtStatusPending          DebtStatus = "pending"
	DebtStatusPaymentRequested DebtStatus = "payment_requested"
	DebtStatusPaid             DebtStatus = "paid"
	DebtStatusConfirmed        DebtStatus = "confirmed"
	DebtStatusSettled          DebtStatus = "settled"
	DebtStatusDisputed         DebtStatus = "disputed"
	DebtStatusCancelled        DebtStatus = "cancelled"
)

// debtStatusFlow описывает допустимые переходы. paid, confirmed и disputed
// объявлены в схеме, но не имеют входящих переходов.
var debtStatusFlow = map[DebtStatus][]DebtStatus{
	DebtStatusPending:          {DebtStatusPaymentRequested, DebtStatusCancelled},
	DebtStatusPaymentRequested: {DebtStatusSettled, DebtStatusCancelled},
	DebtStatusPaid:             {},
	DebtStatusConfirmed:        {},
	DebtStatusSettled:          {},
	DebtStatusDisputed:         {},
	DebtStatusCancelled:        {},
}

// IsValid проверяет, что статус входит в перечисление
func (s DebtStatus) IsValid() bool {
	_, ok := debtStatusFlow[s]
	return ok
}

// IsTerminal сообщает, что из статуса нет переходов
func (s DebtStatus) IsTerminal() bool {
	return len(debtStatusFlow[s]) == 0
}

// CanTransitionTo проверяет, разрешен ли переход from -> to
func (s DebtStatus) CanTransitionTo(to DebtStatus) bool {
	for _, next := range debtStatusFlow[s] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedTransitions возвращает копию списка допустимых следующих статусов
func (s DebtStatus) AllowedTransitions() []DebtStatus {
	next := debtStatusFlow[s]
	out := make([]DebtStatus, len(next))
	copy(out, next)
	return out
}

// PartyRole указывает сторону долга
type PartyRole string

const (
	RoleDebtor   PartyRole = "debtor"
	RoleCreditor PartyRole = "creditor"
)

// Debt представляет долговую расписку между двумя сторонами
type Debt struct {
	ID               string `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	PaymentReference string `gorm:"column:payment_reference;uniqueIndex;size:100;not null" json:"paymentReference"`

	DebtorID      *string `gorm:"column:debtor_id;type:uuid;index;check:chk_debts_parties,debtor_id IS NULL OR creditor_id IS NULL OR debtor_id <> creditor_id" json:"debtorId,omitempty"`
	Debtor        *User   `gorm:"foreignKey:DebtorID;constraint:OnDelete:CASCADE" json:"-"`
	DebtorName    string  `gorm:"column:debtor_name;size:100" json:"debtorName,omitempty"`
	DebtorEmail   string  `gorm:"column:debtor_email;size:255" json:"debtorEmail,omitempty"`
	DebtorPhone   string  `gorm:"column:debtor_phone;size:32" json:"debtorPhone,omitempty"`
	CreditorID    *string `gorm:"column:creditor_id;type:uuid;index" json:"creditorId,omitempty"`
	Creditor      *User   `gorm:"foreignKey:CreditorID;constraint:OnDelete:CASCADE" json:"-"`
	CreditorName  string  `gorm:"column:creditor_name;size:100" json:"creditorName,omitempty"`
	CreditorEmail string  `gorm:"column:creditor_email;size:255" json:"creditorEmail,omitempty"`
	CreditorPhone string  `gorm:"column:creditor_phone;size:32" json:"creditorPhone,omitempty"`

	IsPersonalReminder bool `gorm:"column:is_personal_reminder;not null;default:false" json:"isPersonalReminder"`

	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(15,2);not null;check:chk_debts_amount,amount > 0" json:"amount"`
	Currency    string          `gorm:"column:currency;size:3;not null" json:"currency"`
	Description string          `gorm:"column:description;not null" json:"description"`

	DueDate            time.Time  `gorm:"column:due_date;not null;index" json:"dueDate"`
	PaymentRequestedAt *time.Time `gorm:"column:payment_requested_at" json:"paymentRequestedAt,omitempty"`
	PaidAt             *time.Time `gorm:"column:paid_at" json:"paidAt,omitempty"`
	SettledAt          *time.Time `gorm:"column:settled_at" json:"settledAt,omitempty"`
	LastReminderAt     *time.Time `gorm:"column:last_reminder_at" json:"lastReminderAt,omitempty"`
	ReminderCount      int        `gorm:"column:reminder_count;not null;default:0" json:"reminderCount"`

	PaymentMethod PaymentMethod `gorm:"column:payment_method;type:varchar(20)" json:"paymentMethod,omitempty"`
	BankAccount   BankAccount   `gorm:"embedded" json:"bankDetails"`

	Status       DebtStatus    `gorm:"column:status;type:varchar(20);not null;default:'pending';index" json:"status"`
	Transactions []Transaction `gorm:"foreignKey:DebtID;constraint:OnDelete:CASCADE" json:"transactions,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Debt) TableName() string {
	return "debts"
}

// BeforeCreate выставляет идентификатор и статус по умолчанию
func (d *Debt) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DebtStatusPending
	}
	return nil
}

// IsParty сообщает, является ли пользователь одной из сторон долга
func (d *Debt) IsParty(userID string) bool {
	return d.IsDebtor(userID) || d.IsCreditor(userID)
}

func (d *Debt) IsDebtor(userID string) bool {
	return userID != "" && d.DebtorID != nil && *d.DebtorID == userID
}

func (d *Debt) IsCreditor(userID string) bool {
	return userID != "" && d.CreditorID != nil && *d.CreditorID == userID
}

// Party возвращает сторону долга по роли
func (d *Debt) Party(role PartyRole) Party {
	if role == RoleCreditor {
		if d.CreditorID != nil {
			return RegisteredParty{UserID: *d.CreditorID}
		}
		return UnregisteredParty{Name: d.CreditorName, Email: d.CreditorEmail, Phone: d.CreditorPhone}
	}
	if d.DebtorID != nil {
		return RegisteredParty{UserID: *d.DebtorID}
	}
	return UnregisteredParty{Name: d.DebtorName, Email: d.DebtorEmail, Phone: d.DebtorPhone}
}

// Party это либо RegisteredParty, либо UnregisteredParty
type Party interface {
	isParty()
}

// RegisteredParty ссылается на зарегистрированного пользователя
type RegisteredParty struct {
	UserID string
}

// UnregisteredParty хранит контакты человека без аккаунта
type UnregisteredParty struct {
	Name  string
	Email string
	Phone string
}

func (RegisteredParty) isParty()   {}
func (UnregisteredParty) isParty() {}

// IsEmpty сообщает, что не указано ни одного контакта
func (p UnregisteredParty) IsEmpty() bool {
	return p.Name == "" && p.Email == "" && p.Phone == ""
}

// Contact это разрешенные контактные данные получателя уведомления
type Contact struct {
	UserID *string
	Name   string
	Email  string
	Phone  string
}
