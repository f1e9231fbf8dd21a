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

// FlutterwaveProvider работает с Flutterwave Standard
type FlutterwaveProvider struct {
	secretKey   string
	webhookHash string
	baseURL     string
	appName     string
	client      *http.Client
}

// NewFlutterwaveProvider создает провайдера Flutterwave
func NewFlutterwaveProvider(cfg config.FlutterwaveConfig, appName string, timeout time.Duration) *FlutterwaveProvider {
	return &FlutterwaveProvider{
		secretKey:   cfg.SecretKey,
		webhookHash: cfg.WebhookHash,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		appName:     appName,
		client:      &http.Client{Timeout: timeout},
	}
}

func (p *FlutterwaveProvider) Method() models.PaymentMethod {
	return models.PaymentMethodFlutterwave
}

type flutterwavePaymentResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Link string `json:"link"`
	} `json:"data"`
}

// Initiate создает платеж и возвращает ссылку на страницу оплаты
func (p *FlutterwaveProvider) Initiate(ctx context.Context, req PaymentRequest) (*InitiatedPayment, error) {
	if req.Payer.Email == "" {
		return nil, utils.NewValidationError("flutterwave requires the debtor's email")
	}

	payload := map[string]interface{}{
		"tx_ref":       req.Reference,
		"amount":       req.Amount.StringFixed(2),
		"currency":     req.Currency,
		"redirect_url": req.CallbackURL,
		"customer": map[string]string{
			"email":       req.Payer.Email,
			"phonenumber": req.Payer.Phone,
			"name":        req.Payer.Name,
		},
		"meta": map[string]string{
			"debtId": req.DebtID,
		},
		"customizations": map[string]string{
			"title":       p.appName,
			"description": req.Description,
		},
	}

	var resp flutterwavePaymentResponse
	headers := map[string]string{"Authorization": "Bearer " + p.secretKey}
	if err := doJSON(ctx, p.client, p.Method(), http.MethodPost, p.baseURL+"/payments", headers, payload, &resp); err != nil {
		return nil, err
	}
	if resp.Status != "success" || resp.Data.Link == "" {
		return nil, fmt.Errorf("flutterwave payment failed: %s", resp.Message)
	}

	return &InitiatedPayment{
		PaymentURL: resp.Data.Link,
		Message:    "Complete the payment on Flutterwave",
	}, nil
}

type flutterwaveEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID                int64  `json:"id"`
		TxRef             string `json:"tx_ref"`
		FlwRef            string `json:"flw_ref"`
		Status            string `json:"status"`
		ProcessorResponse string `json:"processor_response"`
	} `json:"data"`
}

// ParseWebhook сверяет заголовок verif-hash с секретом и разбирает событие
func (p *FlutterwaveProvider) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookNotice, error) {
	signature := header.Get("verif-hash")
	if !utils.SecureCompare(signature, p.webhookHash) {
		return nil, utils.NewSignatureError(string(p.Method()))
	}

	var event flutterwaveEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, utils.NewValidationError("malformed flutterwave webhook payload")
	}
	if event.Data.ID == 0 {
		return nil, utils.NewValidationError("flutterwave webhook event has no data id")
	}

	notice := &WebhookNotice{
		EventID:               fmt.Sprintf("%s:%d", event.Event, event.Data.ID),
		EventType:             event.Event,
		Reference:             event.Data.TxRef,
		ProviderTransactionID: event.Data.FlwRef,
		Signature:             signature,
		Outcome:               OutcomeIgnored,
	}
	if event.Event == "charge.completed" {
		switch strings.ToLower(event.Data.Status) {
		case "successful":
			notice.Outcome = OutcomeSucceeded
		case "failed":
			notice.Outcome = OutcomeFailed
			notice.FailureReason = event.Data.ProcessorResponse
		}
	}
	return notice, nil
}
