package services

import (
	"buddiepay/config"
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// PaystackProvider работает с Paystack Transaction API
type PaystackProvider struct {
	secretKey string
	baseURL   string
	client    *http.Client
}

// NewPaystackProvider создает провайдера Paystack
func NewPaystackProvider(cfg config.PaystackConfig, timeout time.Duration) *PaystackProvider {
	return &PaystackProvider{
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		client:    &http.Client{Timeout: timeout},
	}
}

func (p *PaystackProvider) Method() models.PaymentMethod {
	return models.PaymentMethodPaystack
}

type paystackInitializeResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

// Initiate создает транзакцию и возвращает ссылку на оплату
func (p *PaystackProvider) Initiate(ctx context.Context, req PaymentRequest) (*InitiatedPayment, error) {
	if req.Payer.Email == "" {
		return nil, utils.NewValidationError("paystack requires the debtor's email")
	}

	payload := map[string]interface{}{
		"email":        req.Payer.Email,
		"amount":       toMinorUnits(req.Amount),
		"currency":     req.Currency,
		"reference":    req.Reference,
		"callback_url": req.CallbackURL,
		"metadata": map[string]string{
			"debtId":    req.DebtID,
			"reference": req.Reference,
		},
	}

	var resp paystackInitializeResponse
	headers := map[string]string{"Authorization": "Bearer " + p.secretKey}
	if err := doJSON(ctx, p.client, p.Method(), http.MethodPost, p.baseURL+"/transaction/initialize", headers, payload, &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("paystack initialize failed: %s", resp.Message)
	}

	return &InitiatedPayment{
		ProviderTransactionID: resp.Data.AccessCode,
		PaymentURL:            resp.Data.AuthorizationURL,
		Message:               "Complete the payment on Paystack",
	}, nil
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID              int64  `json:"id"`
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// ParseWebhook проверяет HMAC-SHA512 подпись x-paystack-signature и разбирает событие
func (p *PaystackProvider) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookNotice, error) {
	signature := header.Get("x-paystack-signature")
	if !utils.ValidateHMACSHA512(body, signature, p.secretKey) {
		return nil, utils.NewSignatureError(string(p.Method()))
	}

	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, utils.NewValidationError("malformed paystack webhook payload")
	}
	if event.Data.ID == 0 {
		return nil, utils.NewValidationError("paystack webhook event has no data id")
	}

	notice := &WebhookNotice{
		EventID:   fmt.Sprintf("%s:%d", event.Event, event.Data.ID),
		EventType: event.Event,
		Reference: event.Data.Reference,
		Signature: signature,
		Outcome:   OutcomeIgnored,
	}
	switch event.Event {
	case "charge.success":
		notice.Outcome = OutcomeSucceeded
	case "charge.failed":
		notice.Outcome = OutcomeFailed
		notice.FailureReason = event.Data.GatewayResponse
	}
	return notice, nil
}
