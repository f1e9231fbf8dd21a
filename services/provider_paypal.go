package services

import (
	"buddiepay/config"
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// PayPalProvider работает с PayPal Orders v2. Токен доступа получается
// по client credentials и обновляется автоматически.
type PayPalProvider struct {
	baseURL     string
	webhookID   string
	frontendURL string
	client      *http.Client
}

// NewPayPalProvider создает провайдера PayPal
func NewPayPalProvider(cfg config.PayPalConfig, frontendURL string, timeout time.Duration) *PayPalProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	credentials := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     baseURL + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := credentials.Client(ctx)
	client.Timeout = timeout

	return &PayPalProvider{
		baseURL:     baseURL,
		webhookID:   cfg.WebhookID,
		frontendURL: frontendURL,
		client:      client,
	}
}

func (p *PayPalProvider) Method() models.PaymentMethod {
	return models.PaymentMethodPayPal
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string `json:"reference_id"`
		Payments    struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// Initiate создает заказ с intent CAPTURE и возвращает ссылку на одобрение
func (p *PayPalProvider) Initiate(ctx context.Context, req PaymentRequest) (*InitiatedPayment, error) {
	returnURL := req.CallbackURL
	payload := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": req.Reference,
			"custom_id":    req.DebtID,
			"invoice_id":   req.Reference,
			"description":  req.Description,
			"amount": map[string]string{
				"currency_code": req.Currency,
				"value":         req.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]string{
			"return_url": returnURL,
			"cancel_url": returnURL + "?cancelled=true",
		},
	}

	var order paypalOrder
	headers := map[string]string{"PayPal-Request-Id": req.Reference}
	if err := doJSON(ctx, p.client, p.Method(), http.MethodPost, p.baseURL+"/v2/checkout/orders", headers, payload, &order); err != nil {
		return nil, err
	}

	var approveURL string
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			approveURL = link.Href
			break
		}
	}
	if order.ID == "" || approveURL == "" {
		return nil, fmt.Errorf("paypal order has no approval link")
	}

	return &InitiatedPayment{
		ProviderTransactionID: order.ID,
		PaymentURL:            approveURL,
		Message:               "Approve the payment on PayPal",
	}, nil
}

// CaptureOrder списывает деньги по одобренному заказу
func (p *PayPalProvider) CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error) {
	var order paypalOrder
	endpoint := fmt.Sprintf("%s/v2/checkout/orders/%s/capture", p.baseURL, url.PathEscape(orderID))
	if err := doJSON(ctx, p.client, p.Method(), http.MethodPost, endpoint, nil, struct{}{}, &order); err != nil {
		return nil, err
	}

	result := &CaptureResult{OrderID: order.ID, Status: order.Status}
	if len(order.PurchaseUnits) > 0 {
		unit := order.PurchaseUnits[0]
		result.Reference = unit.ReferenceID
		if len(unit.Payments.Captures) > 0 {
			result.CaptureID = unit.Payments.Captures[0].ID
		}
	}
	return result, nil
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                string `json:"id"`
		Status            string `json:"status"`
		InvoiceID         string `json:"invoice_id"`
		CustomID          string `json:"custom_id"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
		StatusDetails struct {
			Reason string `json:"reason"`
		} `json:"status_details"`
	} `json:"resource"`
}

// ParseWebhook проверяет подпись через verify-webhook-signature и разбирает событие
func (p *PayPalProvider) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookNotice, error) {
	signature := header.Get("Paypal-Transmission-Sig")
	if signature == "" || p.webhookID == "" {
		return nil, utils.NewSignatureError(string(p.Method()))
	}

	verifyPayload := map[string]interface{}{
		"auth_algo":         header.Get("Paypal-Auth-Algo"),
		"cert_url":          header.Get("Paypal-Cert-Url"),
		"transmission_id":   header.Get("Paypal-Transmission-Id"),
		"transmission_sig":  signature,
		"transmission_time": header.Get("Paypal-Transmission-Time"),
		"webhook_id":        p.webhookID,
		"webhook_event":     json.RawMessage(body),
	}
	if !json.Valid(body) {
		return nil, utils.NewValidationError("malformed paypal webhook payload")
	}

	var verification struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := doJSON(ctx, p.client, p.Method(), http.MethodPost, p.baseURL+"/v1/notifications/verify-webhook-signature", nil, verifyPayload, &verification); err != nil {
		return nil, fmt.Errorf("paypal signature verification request: %w", err)
	}
	if verification.VerificationStatus != "SUCCESS" {
		return nil, utils.NewSignatureError(string(p.Method()))
	}

	var event paypalEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, utils.NewValidationError("malformed paypal webhook payload")
	}

	notice := &WebhookNotice{
		EventID:               event.ID,
		EventType:             event.EventType,
		Reference:             event.Resource.InvoiceID,
		ProviderTransactionID: event.Resource.SupplementaryData.RelatedIDs.OrderID,
		Signature:             signature,
		Outcome:               OutcomeIgnored,
	}
	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED":
		notice.Outcome = OutcomeSucceeded
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		notice.Outcome = OutcomeFailed
		notice.FailureReason = event.Resource.StatusDetails.Reason
		if notice.FailureReason == "" {
			notice.FailureReason = strings.ToLower(event.Resource.Status)
		}
	}
	return notice, nil
}
