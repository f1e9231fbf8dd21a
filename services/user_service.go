package services

import (
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

// UpdatePreferencesDTO представляет изменение настроек пользователя
type UpdatePreferencesDTO struct {
	Phone          *string                `json:"phone" validate:"omitempty,min=7,max=32"`
	NagSensitivity *models.NagSensitivity `json:"nagSensitivity" validate:"omitempty,oneof=low medium high"`
	BankName       *string                `json:"bankName" validate:"omitempty,max=100"`
	AccountName    *string                `json:"accountName" validate:"omitempty,max=100"`
	AccountNumber  *string                `json:"accountNumber" validate:"omitempty,max=34"`
}

// PaymentHistoryFilter задает фильтры истории оплат
type PaymentHistoryFilter struct {
	Status models.TransactionStatus
	Method models.PaymentMethod
	Page   int
	Limit  int
}

// PaymentHistoryItem это попытка оплаты вместе с долгом и ролью пользователя в нем
type PaymentHistoryItem struct {
	models.Transaction
	Debt     *models.Debt     `json:"debt"`
	UserRole models.PartyRole `json:"userRole"`
}

type PaymentHistoryPage struct {
	Items []PaymentHistoryItem `json:"items"`
	Total int64                `json:"total"`
	Page  int                  `json:"page"`
	Limit int                  `json:"limit"`
}

// UserService читает профиль пользователя и меняет его настройки напоминаний и реквизиты
type UserService struct {
	db        *gorm.DB
	validator *validator.Validate
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db, validator: newValidator()}
}

// findUser ищет пользователя по ID
func findUser(db *gorm.DB, id string) (*models.User, error) {
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("user")
		}
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}
	return &user, nil
}

// GetProfile возвращает профиль пользователя
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return findUser(s.db.WithContext(ctx), userID)
}

// FindByEmail ищет пользователя по email (игнорируя регистр и пробелы)
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(TRIM(email)) = LOWER(TRIM(?))", email).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("user")
		}
		return nil, fmt.Errorf("ошибка при поиске пользователя: %w", err)
	}
	return &user, nil
}

// PaymentHistory возвращает попытки оплаты по долгам, где пользователь должник или кредитор.
// Новые идут первыми.
func (s *UserService) PaymentHistory(ctx context.Context, userID string, filter PaymentHistoryFilter) (*PaymentHistoryPage, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, utils.NewValidationError(fmt.Sprintf("unknown payment status %q", filter.Status))
	}
	if filter.Method != "" && !filter.Method.IsValid() {
		return nil, utils.NewValidationError(fmt.Sprintf("unknown payment method %q", filter.Method))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}

	db := s.db.WithContext(ctx)
	userDebts := db.Model(&models.Debt{}).Select("id").Where("debtor_id = ? OR creditor_id = ?", userID, userID)
	query := db.Model(&models.Transaction{}).Where("debt_id IN (?)", userDebts)
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Method != "" {
		query = query.Where("provider_type = ?", filter.Method)
	}

	page := &PaymentHistoryPage{Page: filter.Page, Limit: filter.Limit, Items: []PaymentHistoryItem{}}
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета оплат: %w", err)
	}
	var txns []models.Transaction
	if err := query.Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&txns).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения оплат: %w", err)
	}
	if len(txns) == 0 {
		return page, nil
	}

	ids := make([]string, 0, len(txns))
	for _, txn := range txns {
		ids = append(ids, txn.DebtID)
	}
	var debts []models.Debt
	if err := db.Where("id IN ?", ids).Find(&debts).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения долгов: %w", err)
	}
	byID := make(map[string]*models.Debt, len(debts))
	for i := range debts {
		byID[debts[i].ID] = &debts[i]
	}

	for _, txn := range txns {
		item := PaymentHistoryItem{Transaction: txn, Debt: byID[txn.DebtID], UserRole: models.RoleCreditor}
		if item.Debt != nil && item.Debt.IsDebtor(userID) {
			item.UserRole = models.RoleDebtor
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// UpdatePreferences меняет телефон, чувствительность напоминаний и реквизиты
func (s *UserService) UpdatePreferences(ctx context.Context, userID string, dto UpdatePreferencesDTO) (*models.User, error) {
	if err := validateRequest(s.validator, dto); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	user, err := findUser(db, userID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if dto.Phone != nil {
		updates["phone"] = strings.TrimSpace(*dto.Phone)
	}
	if dto.NagSensitivity != nil {
		updates["nag_sensitivity"] = *dto.NagSensitivity
	}
	if dto.BankName != nil {
		updates["bank_name"] = strings.TrimSpace(*dto.BankName)
	}
	if dto.AccountName != nil {
		updates["account_name"] = strings.TrimSpace(*dto.AccountName)
	}
	if dto.AccountNumber != nil {
		updates["account_number"] = strings.TrimSpace(*dto.AccountNumber)
	}
	if len(updates) == 0 {
		return user, nil
	}

	if err := db.Model(user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("ошибка при обновлении настроек пользователя: %w", err)
	}
	return findUser(db, userID)
}
