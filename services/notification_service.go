package services

import (
	"buddiepay/config"
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// EmailSender отправляет письмо с HTML и текстовой версией
type EmailSender interface {
	SendEmail(to, subject, html, text string) error
}

// SMSSender отправляет SMS. Enabled возвращает false, если канал не настроен.
type SMSSender interface {
	Enabled() bool
	SendSMS(ctx context.Context, to, body string) error
}

// Notifier рассылает уведомления по долгу. Никогда не возвращает ошибку.
type Notifier interface {
	Dispatch(ctx context.Context, debt *models.Debt, notificationType models.NotificationType, role models.PartyRole)
}

// NotificationService доставляет уведомления сторонам долга и ведет журнал попыток
type NotificationService struct {
	db      *gorm.DB
	email   EmailSender
	sms     SMSSender
	app     config.AppConfig
	metrics *utils.Metrics
	now     func() time.Time
}

// NewNotificationService создает новый экземпляр NotificationService
func NewNotificationService(db *gorm.DB, email EmailSender, sms SMSSender, app config.AppConfig) *NotificationService {
	return &NotificationService{
		db:      db,
		email:   email,
		sms:     sms,
		app:     app,
		metrics: utils.GetMetrics(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Dispatch отправляет уведомление стороне role. Ошибки логируются
// и записываются в журнал уведомлений, вызывающему не возвращаются.
func (s *NotificationService) Dispatch(ctx context.Context, debt *models.Debt, notificationType models.NotificationType, role models.PartyRole) {
	start := time.Now()

	recipient, err := s.resolveContact(ctx, debt.Party(role))
	if err != nil {
		utils.LogError("Не удалось определить получателя уведомления %s по долгу %s: %v", notificationType, debt.ID, err)
		s.metrics.RecordError("notification")
		return
	}

	counterpartRole := models.RoleCreditor
	if role == models.RoleCreditor {
		counterpartRole = models.RoleDebtor
	}
	counterpart, err := s.resolveContact(ctx, debt.Party(counterpartRole))
	if err != nil {
		utils.LogDebug("Контакт второй стороны долга %s не найден: %v", debt.ID, err)
		counterpart = models.Contact{}
	}

	instructions := s.paymentInstructions(ctx, debt)
	msg := buildMessage(notificationType, s.app.Name, debt, recipient, counterpart, instructions)

	attempted := 0
	if recipient.Email != "" {
		attempted++
		sendErr := s.email.SendEmail(recipient.Email, msg.Subject, msg.HTML, msg.Text)
		s.record(ctx, debt, notificationType, models.ChannelEmail, recipient, msg.Subject, msg.HTML, sendErr)
	}

	if recipient.Phone != "" && s.sms != nil && s.sms.Enabled() {
		attempted++
		sendErr := s.sms.SendSMS(ctx, recipient.Phone, msg.Text)
		s.record(ctx, debt, notificationType, models.ChannelSMS, recipient, msg.Subject, msg.Text, sendErr)
	}

	if attempted == 0 {
		utils.LogInfo("Уведомление %s по долгу %s пропущено: у получателя нет доступного канала", notificationType, debt.ID)
		return
	}
	utils.LogDebug("Уведомление %s по долгу %s обработано за %v", notificationType, debt.ID, time.Since(start))
}

// resolveContact превращает сторону долга в контактные данные
func (s *NotificationService) resolveContact(ctx context.Context, party models.Party) (models.Contact, error) {
	switch p := party.(type) {
	case models.RegisteredParty:
		var user models.User
		if err := s.db.WithContext(ctx).First(&user, "id = ?", p.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Contact{}, fmt.Errorf("пользователь %s не найден", p.UserID)
			}
			return models.Contact{}, err
		}
		userID := user.ID
		return models.Contact{UserID: &userID, Name: user.Name, Email: user.Email, Phone: user.Phone}, nil
	case models.UnregisteredParty:
		return models.Contact{Name: p.Name, Email: p.Email, Phone: p.Phone}, nil
	}
	return models.Contact{}, fmt.Errorf("неизвестный тип стороны %T", party)
}

// paymentInstructions возвращает реквизиты для перевода или ссылку на оплату
func (s *NotificationService) paymentInstructions(ctx context.Context, debt *models.Debt) paymentInstructions {
	instructions := paymentInstructions{PaymentURL: paymentPageURL(s.app.FrontendURL, debt.ID)}
	if debt.PaymentMethod != models.PaymentMethodBankTransfer {
		return instructions
	}

	account := debt.BankAccount
	if debt.CreditorID != nil {
		var creditor models.User
		if err := s.db.WithContext(ctx).First(&creditor, "id = ?", *debt.CreditorID).Error; err == nil && creditor.BankAccount.IsComplete() {
			account = creditor.BankAccount
		}
	}
	if account.IsComplete() {
		instructions.Bank = &account
	}
	return instructions
}

// record пишет одну запись о попытке доставки по каналу
func (s *NotificationService) record(ctx context.Context, debt *models.Debt, notificationType models.NotificationType, channel models.NotificationChannel, recipient models.Contact, subject, body string, sendErr error) {
	now := s.now()
	debtID := debt.ID
	notification := models.Notification{
		UserID:         recipient.UserID,
		DebtID:         &debtID,
		RecipientEmail: recipient.Email,
		RecipientPhone: recipient.Phone,
		RecipientName:  recipient.Name,
		Type:           notificationType,
		Channel:        channel,
		Subject:        subject,
		Body:           body,
	}

	if sendErr != nil {
		utils.LogError("Ошибка отправки %s уведомления %s по долгу %s: %v", channel, notificationType, debt.ID, sendErr)
		notification.Status = models.NotificationStatusFailed
		notification.FailedAt = &now
		notification.Error = sendErr.Error()
	} else {
		notification.Status = models.NotificationStatusSent
		notification.SentAt = &now
	}
	s.metrics.Notifications.WithLabelValues(string(notificationType), string(channel), string(notification.Status)).Inc()

	if err := s.db.WithContext(ctx).Create(&notification).Error; err != nil {
		utils.LogError("Ошибка сохранения уведомления %s по долгу %s: %v", notificationType, debt.ID, err)
		s.metrics.RecordError("notification")
	}
}

func paymentPageURL(frontendURL, debtID string) string {
	return fmt.Sprintf("%s/payment/%s", frontendURL, debtID)
}
