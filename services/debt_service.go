package services

import (
	"buddiepay/config"
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreateDebtDTO представляет данные для создания долга. Вторая сторона
// задается либо CounterpartID зарегистрированного пользователя, либо контактами.
type CreateDebtDTO struct {
	CounterpartID    *string              `json:"counterpartId" validate:"omitempty,uuid"`
	CounterpartName  string               `json:"counterpartName" validate:"omitempty,max=100"`
	CounterpartEmail string               `json:"counterpartEmail" validate:"omitempty,email,max=255"`
	CounterpartPhone string               `json:"counterpartPhone" validate:"omitempty,min=7,max=32"`
	Amount           decimal.Decimal      `json:"amount"`
	Currency         string               `json:"currency" validate:"omitempty,len=3,alpha"`
	Description      string               `json:"description" validate:"required,max=500"`
	DueDate          *time.Time           `json:"dueDate"`
	PaymentMethod    models.PaymentMethod `json:"paymentMethod" validate:"omitempty,oneof=bank_transfer paystack flutterwave stripe paypal manual"`
	BankName         string               `json:"bankName" validate:"omitempty,max=100"`
	AccountName      string               `json:"accountName" validate:"omitempty,max=100"`
	AccountNumber    string               `json:"accountNumber" validate:"omitempty,max=34"`
}

// UpdateDebtDTO представляет частичное обновление долга
type UpdateDebtDTO struct {
	Amount      *decimal.Decimal   `json:"amount"`
	Description *string            `json:"description" validate:"omitempty,min=1,max=500"`
	DueDate     *time.Time         `json:"dueDate"`
	Status      *models.DebtStatus `json:"status"`
}

// DebtFilter задает фильтр списка долгов
type DebtFilter struct {
	Status    models.DebtStatus
	Direction string // owed, receivable или пусто
	Page      int
	Limit     int
}

// DebtPage представляет страницу списка долгов
type DebtPage struct {
	Items []models.Debt `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// CurrencySummary содержит непогашенные суммы в одной валюте
type CurrencySummary struct {
	Currency        string          `json:"currency"`
	Owed            decimal.Decimal `json:"owed"`
	OwedCount       int             `json:"owedCount"`
	Receivable      decimal.Decimal `json:"receivable"`
	ReceivableCount int             `json:"receivableCount"`
}

const (
	DirectionOwed       = "owed"
	DirectionReceivable = "receivable"

	defaultPageLimit = 20
	maxPageLimit     = 100
)

// DebtService предоставляет методы для работы с долгами
type DebtService struct {
	db        *gorm.DB
	validator *validator.Validate
	notifier  Notifier
	debtCfg   config.DebtConfig
	payCfg    config.PaymentConfig
	now       func() time.Time
}

// NewDebtService создает новый экземпляр DebtService
func NewDebtService(db *gorm.DB, notifier Notifier, cfg *config.Config) *DebtService {
	return &DebtService{
		db:        db,
		validator: newValidator(),
		notifier:  notifier,
		debtCfg:   cfg.Debt,
		payCfg:    cfg.Payment,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateDebt создает долг, в котором actor является должником
func (s *DebtService) CreateDebt(ctx context.Context, actorID string, dto CreateDebtDTO) (*models.Debt, error) {
	return s.create(ctx, actorID, models.RoleDebtor, dto)
}

// CreateReceivableDebt создает долг, в котором actor является кредитором
func (s *DebtService) CreateReceivableDebt(ctx context.Context, actorID string, dto CreateDebtDTO) (*models.Debt, error) {
	return s.create(ctx, actorID, models.RoleCreditor, dto)
}

func (s *DebtService) create(ctx context.Context, actorID string, actorRole models.PartyRole, dto CreateDebtDTO) (*models.Debt, error) {
	start := time.Now()

	if err := validateRequest(s.validator, dto); err != nil {
		return nil, err
	}
	if !dto.Amount.IsPositive() {
		return nil, utils.NewValidationError("amount must be greater than zero")
	}

	db := s.db.WithContext(ctx)

	var actor models.User
	if err := db.First(&actor, "id = ?", actorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("user")
		}
		return nil, fmt.Errorf("ошибка получения пользователя: %w", err)
	}

	now := s.now()
	debt := &models.Debt{
		ID:          uuid.NewString(),
		Amount:      dto.Amount,
		Currency:    strings.ToUpper(dto.Currency),
		Description: strings.TrimSpace(dto.Description),
		Status:      models.DebtStatusPending,
		BankAccount: models.BankAccount{
			BankName:      dto.BankName,
			AccountName:   dto.AccountName,
			AccountNumber: dto.AccountNumber,
		},
		PaymentMethod: dto.PaymentMethod,
	}
	if debt.Description == "" {
		return nil, utils.NewValidationError("field description is required")
	}
	if debt.Currency == "" {
		debt.Currency = strings.ToUpper(s.payCfg.DefaultCurrency)
	}
	if dto.DueDate != nil {
		debt.DueDate = dto.DueDate.UTC()
	} else {
		debt.DueDate = now.Add(time.Duration(s.debtCfg.DefaultDeadlineHours) * time.Hour)
	}
	debt.PaymentReference = utils.GeneratePaymentReference(s.payCfg.ReferencePrefix, debt.ID)

	actorKey := actor.ID
	if actorRole == models.RoleDebtor {
		debt.DebtorID = &actorKey
	} else {
		debt.CreditorID = &actorKey
	}

	if dto.CounterpartID != nil && *dto.CounterpartID != "" {
		if *dto.CounterpartID == actor.ID {
			return nil, utils.NewValidationError("debtor and creditor must be different users")
		}
		var counterpart models.User
		if err := db.First(&counterpart, "id = ?", *dto.CounterpartID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, utils.NewNotFoundError("counterpart user")
			}
			return nil, fmt.Errorf("ошибка получения второй стороны: %w", err)
		}
		counterpartKey := counterpart.ID
		if actorRole == models.RoleDebtor {
			debt.CreditorID = &counterpartKey
		} else {
			debt.DebtorID = &counterpartKey
		}
	} else {
		contact := models.UnregisteredParty{
			Name:  strings.TrimSpace(dto.CounterpartName),
			Email: strings.TrimSpace(dto.CounterpartEmail),
			Phone: strings.TrimSpace(dto.CounterpartPhone),
		}
		if contact.IsEmpty() {
			return nil, utils.NewValidationError("counterpart requires a user id, name, email or phone")
		}
		if strings.EqualFold(contact.Email, actor.Email) {
			return nil, utils.NewValidationError("debtor and creditor must be different users")
		}
		debt.IsPersonalReminder = true
		if actorRole == models.RoleDebtor {
			debt.CreditorName, debt.CreditorEmail, debt.CreditorPhone = contact.Name, contact.Email, contact.Phone
		} else {
			debt.DebtorName, debt.DebtorEmail, debt.DebtorPhone = contact.Name, contact.Email, contact.Phone
		}
	}

	if err := db.Create(debt).Error; err != nil {
		utils.LogOperation("create_debt", start, err)
		return nil, fmt.Errorf("ошибка при создании долга: %w", err)
	}
	utils.LogOperation("create_debt", start, nil)

	// Уведомляем вторую сторону
	if actorRole == models.RoleDebtor {
		s.notifier.Dispatch(ctx, debt, models.NotificationDebtAcknowledged, models.RoleCreditor)
	} else {
		s.notifier.Dispatch(ctx, debt, models.NotificationDebtCreated, models.RoleDebtor)
	}

	return debt, nil
}

// findDebt загружает долг по id
func findDebt(db *gorm.DB, debtID string) (*models.Debt, error) {
	if _, err := uuid.Parse(debtID); err != nil {
		return nil, utils.NewNotFoundError("debt")
	}
	var debt models.Debt
	if err := db.First(&debt, "id = ?", debtID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("debt")
		}
		return nil, fmt.Errorf("ошибка получения долга: %w", err)
	}
	return &debt, nil
}

// GetDebt возвращает долг вместе с попытками оплаты
func (s *DebtService) GetDebt(ctx context.Context, debtID, actorID string) (*models.Debt, error) {
	debt, err := findDebt(s.db.WithContext(ctx).Preload("Transactions", func(db *gorm.DB) *gorm.DB {
		return db.Order("initiated_at DESC")
	}), debtID)
	if err != nil {
		return nil, err
	}
	if !debt.IsParty(actorID) {
		return nil, utils.NewForbiddenError("you are not a party to this debt")
	}
	return debt, nil
}

// ListDebts возвращает страницу долгов пользователя
func (s *DebtService) ListDebts(ctx context.Context, actorID string, filter DebtFilter) (*DebtPage, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, utils.NewValidationError(fmt.Sprintf("unknown debt status %q", filter.Status))
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

	query := s.db.WithContext(ctx).Model(&models.Debt{})
	switch filter.Direction {
	case DirectionOwed:
		query = query.Where("debtor_id = ?", actorID)
	case DirectionReceivable:
		query = query.Where("creditor_id = ?", actorID)
	case "":
		query = query.Where("debtor_id = ? OR creditor_id = ?", actorID, actorID)
	default:
		return nil, utils.NewValidationError("direction must be one of: owed receivable")
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	page := &DebtPage{Page: filter.Page, Limit: filter.Limit, Items: []models.Debt{}}
	if err := query.Count(&page.Total).Error; err != nil {
		return nil, fmt.Errorf("ошибка подсчета долгов: %w", err)
	}
	if err := query.Order("created_at DESC").
		Offset((filter.Page - 1) * filter.Limit).
		Limit(filter.Limit).
		Find(&page.Items).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения долгов: %w", err)
	}
	return page, nil
}

// Summary считает непогашенные суммы пользователя по валютам
func (s *DebtService) Summary(ctx context.Context, actorID string) ([]CurrencySummary, error) {
	var debts []models.Debt
	if err := s.db.WithContext(ctx).
		Where("(debtor_id = ? OR creditor_id = ?) AND status NOT IN ?", actorID, actorID,
			[]models.DebtStatus{models.DebtStatusSettled, models.DebtStatusCancelled}).
		Find(&debts).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения долгов: %w", err)
	}

	byCurrency := make(map[string]*CurrencySummary)
	for i := range debts {
		d := &debts[i]
		sum, ok := byCurrency[d.Currency]
		if !ok {
			sum = &CurrencySummary{Currency: d.Currency, Owed: decimal.Zero, Receivable: decimal.Zero}
			byCurrency[d.Currency] = sum
		}
		if d.IsDebtor(actorID) {
			sum.Owed = sum.Owed.Add(d.Amount)
			sum.OwedCount++
		} else {
			sum.Receivable = sum.Receivable.Add(d.Amount)
			sum.ReceivableCount++
		}
	}

	result := make([]CurrencySummary, 0, len(byCurrency))
	for _, sum := range byCurrency {
		result = append(result, *sum)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Currency < result[j].Currency })
	return result, nil
}

// UpdateDebt изменяет поля и статус долга. Сумму и описание меняет только должник,
// статус меняется только по таблице переходов.
func (s *DebtService) UpdateDebt(ctx context.Context, debtID, actorID string, dto UpdateDebtDTO) (*models.Debt, error) {
	if err := validateRequest(s.validator, dto); err != nil {
		return nil, err
	}

	debt, err := findDebt(s.db.WithContext(ctx), debtID)
	if err != nil {
		return nil, err
	}
	if !debt.IsParty(actorID) {
		return nil, utils.NewForbiddenError("you are not a party to this debt")
	}

	updates := map[string]interface{}{}
	if dto.Amount != nil && !dto.Amount.Equal(debt.Amount) {
		if !debt.IsDebtor(actorID) {
			return nil, utils.NewForbiddenError("only the debtor can change the amount or description")
		}
		if !dto.Amount.IsPositive() {
			return nil, utils.NewValidationError("amount must be greater than zero")
		}
		updates["amount"] = *dto.Amount
	}
	if dto.Description != nil && strings.TrimSpace(*dto.Description) != debt.Description {
		if !debt.IsDebtor(actorID) {
			return nil, utils.NewForbiddenError("only the debtor can change the amount or description")
		}
		description := strings.TrimSpace(*dto.Description)
		if description == "" {
			return nil, utils.NewValidationError("field description is required")
		}
		updates["description"] = description
	}
	if dto.DueDate != nil && !dto.DueDate.Equal(debt.DueDate) {
		updates["due_date"] = dto.DueDate.UTC()
	}

	target := debt.Status
	if dto.Status != nil && *dto.Status != debt.Status {
		target = *dto.Status
		if !target.IsValid() {
			return nil, utils.NewValidationError(fmt.Sprintf("unknown debt status %q", target))
		}
		if !debt.Status.CanTransitionTo(target) {
			return nil, invalidTransition(debt.Status, target)
		}
	}

	if len(updates) > 0 {
		if err := checkNotTerminal(debt); err != nil {
			return nil, err
		}
	}
	if len(updates) == 0 && target == debt.Status {
		return debt, nil
	}

	now := s.now()
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}

	if len(updates) > 0 {
		updates["updated_at"] = now
		res := tx.Model(&models.Debt{}).Where("id = ? AND status = ?", debt.ID, debt.Status).Updates(updates)
		if res.Error != nil {
			tx.Rollback()
			return nil, fmt.Errorf("ошибка при обновлении долга: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			tx.Rollback()
			return nil, invalidTransition(debt.Status, target)
		}
	}

	if target != debt.Status {
		if err := transitionDebt(tx, debt, target, now); err != nil {
			tx.Rollback()
			return nil, err
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	updated, err := findDebt(s.db.WithContext(ctx), debt.ID)
	if err != nil {
		return nil, err
	}

	if target == models.DebtStatusCancelled {
		// Уведомляем вторую сторону об отмене
		role := models.RoleCreditor
		if updated.IsCreditor(actorID) {
			role = models.RoleDebtor
		}
		s.notifier.Dispatch(ctx, updated, models.NotificationDebtCancelled, role)
	}

	return updated, nil
}

// DeleteDebt удаляет долг, пока он в статусе pending
func (s *DebtService) DeleteDebt(ctx context.Context, debtID, actorID string) error {
	db := s.db.WithContext(ctx)
	debt, err := findDebt(db, debtID)
	if err != nil {
		return err
	}
	if !debt.IsParty(actorID) {
		return utils.NewForbiddenError("you are not a party to this debt")
	}
	if debt.Status != models.DebtStatusPending {
		return utils.NewConflictError("cannot delete debt with in-flight or completed payment")
	}

	res := db.Where("id = ? AND status = ?", debt.ID, models.DebtStatusPending).Delete(&models.Debt{})
	if res.Error != nil {
		return fmt.Errorf("ошибка при удалении долга: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.NewConflictError("cannot delete debt with in-flight or completed payment")
	}
	utils.LogInfo("Долг %s удален пользователем %s", debt.ID, actorID)
	return nil
}
