package services

import (
	"buddiepay/models"
	"buddiepay/utils"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentRequest содержит все, что нужно провайдеру для создания платежа
type PaymentRequest struct {
	DebtID      string
	Reference   string
	Amount      decimal.Decimal
	Currency    string
	Description string
	Payer       models.Contact
	Payout      models.BankAccount
	CallbackURL string
}

// InitiatedPayment это ответ провайдера на создание платежа
type InitiatedPayment struct {
	ProviderTransactionID string
	PaymentURL            string
	BankDetails           *models.BankAccount
	Message               string
}

// WebhookOutcome это бизнес-результат события провайдера
type WebhookOutcome string

const (
	OutcomeSucceeded WebhookOutcome = "succeeded"
	OutcomeFailed    WebhookOutcome = "failed"
	OutcomeIgnored   WebhookOutcome = "ignored"
)

// WebhookNotice это проверенное и разобранное событие провайдера
type WebhookNotice struct {
	EventID               string
	EventType             string
	Reference             string
	ProviderTransactionID string
	Outcome               WebhookOutcome
	FailureReason         string
	Signature             string
}

// PaymentProvider создает платеж у внешнего провайдера
type PaymentProvider interface {
	Method() models.PaymentMethod
	Initiate(ctx context.Context, req PaymentRequest) (*InitiatedPayment, error)
}

// WebhookVerifier проверяет подпись и разбирает вебхук провайдера
type WebhookVerifier interface {
	ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookNotice, error)
}

// OrderCapturer подтверждает одобренный плательщиком заказ
type OrderCapturer interface {
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)
}

// CaptureResult это результат подтверждения заказа
type CaptureResult struct {
	OrderID   string
	CaptureID string
	Status    string
	Reference string
}

// Completed сообщает, что деньги списаны
func (r *CaptureResult) Completed() bool {
	return r.Status == "COMPLETED"
}

// toMinorUnits переводит сумму в минимальные единицы валюты (копейки, kobo, центы)
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// providerAPIError это ответ провайдера с кодом ошибки
type providerAPIError struct {
	Provider   models.PaymentMethod
	StatusCode int
	Message    string
}

func (e *providerAPIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API returned %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s API returned %d", e.Provider, e.StatusCode)
}

// doJSON выполняет JSON-запрос к API провайдера и учитывает задержку в метриках
func doJSON(ctx context.Context, client *http.Client, provider models.PaymentMethod, method, url string, headers map[string]string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("ошибка кодирования запроса к %s: %w", provider, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса к %s: %w", provider, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	status := "error"
	if resp != nil {
		status = fmt.Sprintf("%d", resp.StatusCode)
	}
	utils.GetMetrics().ProviderLatency.WithLabelValues(string(provider), status).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("ошибка запроса к %s: %w", provider, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("ошибка чтения ответа %s: %w", provider, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var generic struct {
			Message string `json:"message"`
			Error   string `json:"error_description"`
		}
		_ = json.Unmarshal(raw, &generic)
		msg := generic.Message
		if msg == "" {
			msg = generic.Error
		}
		return &providerAPIError{Provider: provider, StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("ошибка разбора ответа %s: %w", provider, err)
		}
	}
	return nil
}
