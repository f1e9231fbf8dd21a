package services

import (
	"buddiepay/models"
	"buddiepay/utils"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// transitionDebt переводит долг в статус to. Обновление условное по текущему
// статусу: если долг успели изменить параллельно, возвращается ошибка перехода.
func transitionDebt(db *gorm.DB, debt *models.Debt, to models.DebtStatus, now time.Time) error {
	from := debt.Status
	if !to.IsValid() {
		return utils.NewValidationError(fmt.Sprintf("unknown debt status %q", to))
	}
	if !from.CanTransitionTo(to) {
		return invalidTransition(from, to)
	}

	updates := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}
	switch to {
	case models.DebtStatusPaymentRequested:
		updates["payment_requested_at"] = now
	case models.DebtStatusSettled:
		updates["settled_at"] = now
		if debt.PaidAt == nil {
			updates["paid_at"] = now
		}
	}

	res := db.Model(&models.Debt{}).Where("id = ? AND status = ?", debt.ID, from).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("ошибка обновления статуса долга %s: %w", debt.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return invalidTransition(from, to)
	}

	debt.Status = to
	debt.UpdatedAt = now
	switch to {
	case models.DebtStatusPaymentRequested:
		debt.PaymentRequestedAt = &now
	case models.DebtStatusSettled:
		debt.SettledAt = &now
		if debt.PaidAt == nil {
			debt.PaidAt = &now
		}
	}
	return nil
}

// invalidTransition описывает запрещенный переход и перечисляет разрешенные
func invalidTransition(from, to models.DebtStatus) *utils.AppError {
	err := utils.NewInvalidTransitionError(string(from), string(to))
	if from.IsTerminal() {
		err.Details = fmt.Sprintf("%s is a final status", from)
		return err
	}
	allowed := from.AllowedTransitions()
	names := make([]string, len(allowed))
	for i, status := range allowed {
		names[i] = string(status)
	}
	err.Details = "allowed: " + strings.Join(names, ", ")
	return err
}

// settleDebt доводит долг до settled только по разрешенным переходам
func settleDebt(db *gorm.DB, debt *models.Debt, now time.Time) error {
	switch debt.Status {
	case models.DebtStatusSettled:
		return utils.NewAlreadySettledError()
	case models.DebtStatusCancelled:
		return utils.NewAlreadyCancelledError()
	case models.DebtStatusPending:
		if err := transitionDebt(db, debt, models.DebtStatusPaymentRequested, now); err != nil {
			return err
		}
	}
	return transitionDebt(db, debt, models.DebtStatusSettled, now)
}

// checkNotTerminal возвращает ошибку для погашенного или отмененного долга
func checkNotTerminal(debt *models.Debt) error {
	switch debt.Status {
	case models.DebtStatusSettled:
		return utils.NewAlreadySettledError()
	case models.DebtStatusCancelled:
		return utils.NewAlreadyCancelledError()
	}
	return nil
}
