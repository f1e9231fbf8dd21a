package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NagSensitivity определяет, как часто должнику напоминают о долге
type NagSensitivity string

const (
	NagSensitivityLow    NagSensitivity = "low"
	NagSensitivityMedium NagSensitivity = "medium"
	NagSensitivityHigh   NagSensitivity = "high"
)

// IsValid проверяет, что значение входит в допустимый набор
func (n NagSensitivity) IsValid() bool {
	switch n {
	case NagSensitivityLow, NagSensitivityMedium, NagSensitivityHigh:
		return true
	}
	return false
}

// User представляет зарегистрированного пользователя. Пользователи создаются
// внешним сервисом авторизации, ядро их только читает.
type User struct {
	ID             string         `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Name           string         `gorm:"column:name;not null;size:100" json:"name"`
	Email          string         `gorm:"column:email;unique;not null;size:255;index" json:"email"`
	Phone          string         `gorm:"column:phone;size:32" json:"phone,omitempty"`
	NagSensitivity NagSensitivity `gorm:"column:nag_sensitivity;type:varchar(10);not null;default:'medium'" json:"nagSensitivity"`
	BankAccount    BankAccount    `gorm:"embedded" json:"bankDetails"`
	CreatedAt      time.Time      `gorm:"column:created_at" json:"createdAt"`
	UpdatedAt      time.Time      `gorm:"column:updated_at" json:"updatedAt"`
}

func (User) TableName() string {
	return "users"
}

// BeforeCreate хук для валидации перед созданием
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if len(u.Email) < 3 || len(u.Email) > 255 {
		return errors.New("email must be between 3 and 255 characters")
	}
	if u.NagSensitivity == "" {
		u.NagSensitivity = NagSensitivityMedium
	}
	if !u.NagSensitivity.IsValid() {
		return errors.New("nag sensitivity must be one of low, medium, high")
	}
	return nil
}
