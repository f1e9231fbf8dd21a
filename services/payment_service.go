package services

import (
	"buddiepay/config"
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventLocker выдает короткую эксклюзивную блокировку на обработку события
type EventLocker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (release func(), acquired bool, err error)
}

// PaymentResult описывает созданную попытку оплаты
type PaymentResult struct {
	Success       bool                 `json:"success"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	PaymentID     string               `json:"paymentId"`
	Reference     string               `json:"reference"`
	PaymentURL    string               `json:"paymentUrl,omitempty"`
	BankDetails   *models.BankAccount  `json:"bankDetails,omitempty"`
	Message       string               `json:"message"`
}

// ReconcileResult описывает, что сделал вебхук
type ReconcileResult struct {
	EventID   string         `json:"eventId"`
	Outcome   WebhookOutcome `json:"outcome"`
	Duplicate bool           `json:"duplicate"`
	Settled   bool           `json:"settled"`
	DebtID    string         `json:"debtId,omitempty"`
}

// PaymentService создает попытки оплаты и сверяет их с событиями провайдеров
type PaymentService struct {
	db        *gorm.DB
	providers map[models.PaymentMethod]PaymentProvider
	notifier  Notifier
	locker    EventLocker
	lockTTL   time.Duration
	payCfg    config.PaymentConfig
	app       config.AppConfig
	metrics   *utils.Metrics
	now       func() time.Time
}

// NewPaymentService создает новый экземпляр PaymentService. locker может быть nil.
func NewPaymentService(db *gorm.DB, notifier Notifier, locker EventLocker, cfg *config.Config, providers ...PaymentProvider) *PaymentService {
	registry := make(map[models.PaymentMethod]PaymentProvider, len(providers))
	for _, p := range providers {
		registry[p.Method()] = p
	}
	return &PaymentService{
		db:        db,
		providers: registry,
		notifier:  notifier,
		locker:    locker,
		lockTTL:   cfg.Redis.LockTTL,
		payCfg:    cfg.Payment,
		app:       cfg.App,
		metrics:   utils.GetMetrics(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *PaymentService) provider(method models.PaymentMethod) (PaymentProvider, error) {
	p, ok := s.providers[method]
	if !ok {
		return nil, utils.NewValidationError(fmt.Sprintf("payment provider %q is not available", method))
	}
	return p, nil
}

// Initiate создает попытку оплаты у провайдера. Если провайдер ответил ошибкой,
// состояние долга не меняется.
func (s *PaymentService) Initiate(ctx context.Context, debtID string, method models.PaymentMethod, actorID string) (*PaymentResult, error) {
	start := time.Now()

	provider, err := s.provider(method)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	debt, err := findDebt(db, debtID)
	if err != nil {
		return nil, err
	}
	if !debt.IsParty(actorID) {
		return nil, utils.NewForbiddenError("you are not a party to this debt")
	}
	if err := checkNotTerminal(debt); err != nil {
		return nil, err
	}
	if debt.Status != models.DebtStatusPending && debt.Status != models.DebtStatusPaymentRequested {
		return nil, invalidTransition(debt.Status, models.DebtStatusPaymentRequested)
	}

	payer, err := s.contactFor(db, debt.Party(models.RoleDebtor))
	if err != nil {
		return nil, err
	}
	payout := debt.BankAccount
	if debt.CreditorID != nil {
		var creditor models.User
		if err := db.First(&creditor, "id = ?", *debt.CreditorID).Error; err == nil && creditor.BankAccount.IsComplete() {
			payout = creditor.BankAccount
		}
	}

	reference := utils.GeneratePaymentReference(s.payCfg.ReferencePrefix, debt.ID)
	req := PaymentRequest{
		DebtID:      debt.ID,
		Reference:   reference,
		Amount:      debt.Amount,
		Currency:    debt.Currency,
		Description: debt.Description,
		Payer:       payer,
		Payout:      payout,
		CallbackURL: fmt.Sprintf("%s/payment/callback", s.app.FrontendURL),
	}

	providerCtx := ctx
	if s.payCfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		providerCtx, cancel = context.WithTimeout(ctx, s.payCfg.ProviderTimeout)
		defer cancel()
	}

	initiated, err := provider.Initiate(providerCtx, req)
	if err != nil {
		s.metrics.PaymentInitiations.WithLabelValues(string(method), "failed").Inc()
		utils.LogOperation("initiate_payment_"+string(method), start, err)
		var appErr *utils.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, utils.NewProviderError(string(method), err)
	}

	now := s.now()
	txn := &models.Transaction{
		DebtID:                debt.ID,
		Amount:                debt.Amount,
		Currency:              debt.Currency,
		TransactionType:       models.TransactionTypePayment,
		ProviderType:          method,
		ProviderTransactionID: initiated.ProviderTransactionID,
		Reference:             reference,
		Status:                models.TransactionStatusPending,
		InitiatedAt:           now,
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	if err := tx.Create(txn).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("ошибка при создании попытки оплаты: %w", err)
	}
	if err := tx.Model(&models.Debt{}).Where("id = ?", debt.ID).
		Updates(map[string]interface{}{"payment_method": method, "updated_at": now}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("ошибка при обновлении способа оплаты: %w", err)
	}
	if debt.Status == models.DebtStatusPending {
		if err := transitionDebt(tx, debt, models.DebtStatusPaymentRequested, now); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	s.metrics.PaymentInitiations.WithLabelValues(string(method), "initiated").Inc()
	utils.LogOperation("initiate_payment_"+string(method), start, nil)

	return &PaymentResult{
		Success:       true,
		PaymentMethod: method,
		PaymentID:     txn.ID,
		Reference:     reference,
		PaymentURL:    initiated.PaymentURL,
		BankDetails:   initiated.BankDetails,
		Message:       initiated.Message,
	}, nil
}

func (s *PaymentService) contactFor(db *gorm.DB, party models.Party) (models.Contact, error) {
	switch p := party.(type) {
	case models.RegisteredParty:
		var user models.User
		if err := db.First(&user, "id = ?", p.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Contact{}, utils.NewNotFoundError("user")
			}
			return models.Contact{}, fmt.Errorf("ошибка получения пользователя: %w", err)
		}
		id := user.ID
		return models.Contact{UserID: &id, Name: user.Name, Email: user.Email, Phone: user.Phone}, nil
	case models.UnregisteredParty:
		return models.Contact{Name: p.Name, Email: p.Email, Phone: p.Phone}, nil
	}
	return models.Contact{}, fmt.Errorf("неизвестный тип стороны %T", party)
}

// Reconcile обрабатывает вебхук провайдера. Подпись проверяется до любых
// изменений; повтор события с тем же id не дает повторного эффекта.
func (s *PaymentService) Reconcile(ctx context.Context, method models.PaymentMethod, header http.Header, body []byte) (*ReconcileResult, error) {
	provider, err := s.provider(method)
	if err != nil {
		return nil, err
	}
	verifier, ok := provider.(WebhookVerifier)
	if !ok {
		return nil, utils.NewValidationError(fmt.Sprintf("payment provider %q does not accept webhooks", method))
	}

	notice, err := verifier.ParseWebhook(ctx, header, body)
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues(string(method), "rejected").Inc()
		return nil, err
	}
	if notice.EventID == "" {
		return nil, utils.NewValidationError("webhook event has no id")
	}

	result := &ReconcileResult{EventID: notice.EventID, Outcome: notice.Outcome}

	if s.locker != nil {
		release, acquired, err := s.locker.AcquireLock(ctx, fmt.Sprintf("webhook:%s:%s", method, notice.EventID), s.lockTTL)
		if err != nil {
			// Блокировка только дополняет журнал событий, поэтому продолжаем без нее
			utils.LogError("Не удалось получить блокировку события %s: %v", notice.EventID, err)
		} else if !acquired {
			result.Duplicate = true
			s.metrics.WebhookEvents.WithLabelValues(string(method), "duplicate").Inc()
			return result, nil
		} else {
			defer release()
		}
	}

	db := s.db.WithContext(ctx)
	event := models.WebhookEvent{
		Provider:   method,
		EventID:    notice.EventID,
		EventType:  notice.EventType,
		Payload:    datatypes.JSON(body),
		Signature:  notice.Signature,
		ReceivedAt: s.now(),
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&event).Error; err != nil {
		return nil, fmt.Errorf("ошибка записи события %s: %w", notice.EventID, err)
	}

	var stored models.WebhookEvent
	if err := db.Where("provider = ? AND event_id = ?", method, notice.EventID).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("ошибка чтения события %s: %w", notice.EventID, err)
	}
	if stored.Processed {
		result.Duplicate = true
		s.metrics.WebhookEvents.WithLabelValues(string(method), "duplicate").Inc()
		return result, nil
	}

	settled, err := s.processEvent(db, &stored, method, notice, result)
	if err != nil {
		s.metrics.WebhookEvents.WithLabelValues(string(method), "error").Inc()
		s.metrics.RecordError("reconciler")
		if updErr := db.Model(&models.WebhookEvent{}).Where("id = ?", stored.ID).Update("error", err.Error()).Error; updErr != nil {
			utils.LogError("Не удалось записать ошибку события %s: %v", stored.EventID, updErr)
		}
		return nil, err
	}
	if result.Duplicate {
		s.metrics.WebhookEvents.WithLabelValues(string(method), "duplicate").Inc()
		return result, nil
	}

	s.metrics.WebhookEvents.WithLabelValues(string(method), string(notice.Outcome)).Inc()
	if settled != nil {
		result.Settled = true
		result.DebtID = settled.ID
		s.notifySettled(ctx, settled)
	}
	return result, nil
}

// processEvent захватывает событие и применяет его эффект в одной транзакции БД
func (s *PaymentService) processEvent(db *gorm.DB, event *models.WebhookEvent, method models.PaymentMethod, notice *WebhookNotice, result *ReconcileResult) (*models.Debt, error) {
	now := s.now()

	tx := db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}

	claim := tx.Model(&models.WebhookEvent{}).
		Where("id = ? AND processed = ?", event.ID, false).
		Updates(map[string]interface{}{"processed": true, "processed_at": now})
	if claim.Error != nil {
		tx.Rollback()
		return nil, fmt.Errorf("ошибка захвата события %s: %w", event.EventID, claim.Error)
	}
	if claim.RowsAffected == 0 {
		tx.Rollback()
		result.Duplicate = true
		return nil, nil
	}

	if notice.Outcome == OutcomeIgnored {
		if err := tx.Commit().Error; err != nil {
			return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
		}
		return nil, nil
	}

	var txn models.Transaction
	query := tx.Where("provider_type = ?", method)
	switch {
	case notice.Reference != "" && notice.ProviderTransactionID != "":
		query = query.Where("reference = ? OR provider_transaction_id = ?", notice.Reference, notice.ProviderTransactionID)
	case notice.Reference != "":
		query = query.Where("reference = ?", notice.Reference)
	case notice.ProviderTransactionID != "":
		query = query.Where("provider_transaction_id = ?", notice.ProviderTransactionID)
	default:
		query = nil
	}

	var lookupErr error
	if query != nil {
		lookupErr = query.First(&txn).Error
	} else {
		lookupErr = gorm.ErrRecordNotFound
	}
	if lookupErr != nil {
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			tx.Rollback()
			return nil, fmt.Errorf("ошибка поиска попытки оплаты: %w", lookupErr)
		}
		utils.LogInfo("Событие %s %s не относится к известной попытке оплаты", method, notice.EventID)
		if err := tx.Model(&models.WebhookEvent{}).Where("id = ?", event.ID).Update("error", "transaction not found").Error; err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("ошибка обновления события: %w", err)
		}
		if err := tx.Commit().Error; err != nil {
			return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
		}
		return nil, nil
	}

	settled, err := s.applyOutcome(tx, &txn, notice.Outcome, notice.FailureReason, notice.ProviderTransactionID, now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}
	return settled, nil
}

// applyOutcome применяет результат оплаты к попытке и долгу внутри tx.
// Возвращает долг, если он был погашен.
func (s *PaymentService) applyOutcome(tx *gorm.DB, txn *models.Transaction, outcome WebhookOutcome, reason, providerTxID string, now time.Time) (*models.Debt, error) {
	if txn.Status.IsFinal() {
		utils.LogInfo("Попытка оплаты %s уже в статусе %s, событие пропущено", txn.Reference, txn.Status)
		return nil, nil
	}

	updates := map[string]interface{}{"updated_at": now}
	if providerTxID != "" && txn.ProviderTransactionID == "" {
		updates["provider_transaction_id"] = providerTxID
	}

	if outcome == OutcomeFailed {
		if reason == "" {
			reason = "payment failed"
		}
		updates["status"] = models.TransactionStatusFailed
		updates["failed_at"] = now
		updates["failure_reason"] = reason
		if err := tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("ошибка обновления попытки оплаты: %w", err)
		}
		utils.LogInfo("Оплата %s не прошла: %s", txn.Reference, reason)
		return nil, nil
	}

	debt, err := findDebt(tx, txn.DebtID)
	if err != nil {
		return nil, err
	}

	if debt.Status == models.DebtStatusSettled || debt.Status == models.DebtStatusCancelled {
		// Долг уже закрыт, повторную оплату нужно вернуть вручную
		updates["status"] = models.TransactionStatusFailed
		updates["failed_at"] = now
		updates["failure_reason"] = fmt.Sprintf("debt already %s", debt.Status)
		if err := tx.Model(&models.Transaction{}).Where("id = ?", txn.ID).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("ошибка обновления попытки оплаты: %w", err)
		}
		utils.LogError("Оплата %s пришла по закрытому долгу %s (%s)", txn.Reference, debt.ID, debt.Status)
		return nil, nil
	}

	updates["status"] = models.TransactionStatusCompleted
	updates["completed_at"] = now
	if err := tx.Model(&models.Transaction{}).Where("id = ? AND status NOT IN ?", txn.ID,
		[]models.TransactionStatus{models.TransactionStatusCompleted, models.TransactionStatusFailed}).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("ошибка обновления попытки оплаты: %w", err)
	}

	if err := settleDebt(tx, debt, now); err != nil {
		return nil, err
	}

	if err := tx.Model(&models.Transaction{}).
		Where("debt_id = ? AND id <> ? AND status IN ?", debt.ID, txn.ID,
			[]models.TransactionStatus{models.TransactionStatusPending, models.TransactionStatusProcessing}).
		Updates(map[string]interface{}{
			"status":         models.TransactionStatusFailed,
			"failed_at":      now,
			"failure_reason": "superseded by " + txn.Reference,
			"updated_at":     now,
		}).Error; err != nil {
		return nil, fmt.Errorf("ошибка закрытия остальных попыток оплаты: %w", err)
	}

	utils.LogInfo("Долг %s погашен оплатой %s", debt.ID, txn.Reference)
	return debt, nil
}

// notifySettled рассылает подтверждения обеим сторонам
func (s *PaymentService) notifySettled(ctx context.Context, debt *models.Debt) {
	s.notifier.Dispatch(ctx, debt, models.NotificationDebtSettled, models.RoleDebtor)
	s.notifier.Dispatch(ctx, debt, models.NotificationPaymentReceived, models.RoleCreditor)
}

// CaptureManual фиксирует оплату вне платежных систем со слов одной из сторон
func (s *PaymentService) CaptureManual(ctx context.Context, debtID, actorID string) (*models.Transaction, error) {
	db := s.db.WithContext(ctx)
	debt, err := findDebt(db, debtID)
	if err != nil {
		return nil, err
	}
	if !debt.IsParty(actorID) {
		return nil, utils.NewForbiddenError("you are not a party to this debt")
	}
	if err := checkNotTerminal(debt); err != nil {
		return nil, err
	}

	now := s.now()
	txn := &models.Transaction{
		DebtID:          debt.ID,
		Amount:          debt.Amount,
		Currency:        debt.Currency,
		TransactionType: models.TransactionTypePayment,
		ProviderType:    models.PaymentMethodManual,
		Reference:       utils.GeneratePaymentReference(s.payCfg.ReferencePrefix, debt.ID),
		Status:          models.TransactionStatusPending,
		InitiatedAt:     now,
	}

	tx := db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	if err := tx.Create(txn).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("ошибка при создании ручной оплаты: %w", err)
	}
	if err := tx.Model(&models.Debt{}).Where("id = ?", debt.ID).
		Updates(map[string]interface{}{"payment_method": models.PaymentMethodManual, "updated_at": now}).Error; err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("ошибка при обновлении способа оплаты: %w", err)
	}
	settled, err := s.applyOutcome(tx, txn, OutcomeSucceeded, "", "", now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if settled == nil {
		tx.Rollback()
		return nil, utils.NewAlreadySettledError()
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}

	txn.Status = models.TransactionStatusCompleted
	txn.CompletedAt = &now
	utils.LogInfo("Пользователь %s подтвердил ручную оплату долга %s", actorID, debt.ID)
	s.notifySettled(ctx, settled)
	return txn, nil
}

// CapturePayPal подтверждает одобренный заказ PayPal и гасит долг
func (s *PaymentService) CapturePayPal(ctx context.Context, orderID, actorID string) (*PaymentResult, error) {
	provider, err := s.provider(models.PaymentMethodPayPal)
	if err != nil {
		return nil, err
	}
	capturer, ok := provider.(OrderCapturer)
	if !ok {
		return nil, utils.NewValidationError("paypal capture is not supported")
	}

	db := s.db.WithContext(ctx)
	var txn models.Transaction
	if err := db.Where("provider_type = ? AND provider_transaction_id = ?", models.PaymentMethodPayPal, orderID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("paypal order")
		}
		return nil, fmt.Errorf("ошибка поиска заказа: %w", err)
	}
	debt, err := findDebt(db, txn.DebtID)
	if err != nil {
		return nil, err
	}
	if !debt.IsParty(actorID) {
		return nil, utils.NewForbiddenError("you are not a party to this debt")
	}
	if err := checkNotTerminal(debt); err != nil {
		return nil, err
	}

	capture, err := capturer.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, utils.NewProviderError(string(models.PaymentMethodPayPal), err)
	}

	outcome, reason := OutcomeSucceeded, ""
	if !capture.Completed() {
		outcome, reason = OutcomeFailed, fmt.Sprintf("paypal capture status %s", capture.Status)
	}

	now := s.now()
	tx := db.Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", tx.Error)
	}
	settled, err := s.applyOutcome(tx, &txn, outcome, reason, "", now)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("ошибка при подтверждении транзакции: %w", err)
	}
	if settled != nil {
		s.notifySettled(ctx, settled)
	}

	result := &PaymentResult{
		Success:       capture.Completed(),
		PaymentMethod: models.PaymentMethodPayPal,
		PaymentID:     txn.ID,
		Reference:     txn.Reference,
		Message:       fmt.Sprintf("PayPal order %s", capture.Status),
	}
	return result, nil
}
