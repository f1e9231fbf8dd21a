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

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeProvider создает PaymentIntent и проверяет вебхуки Stripe
type StripeProvider struct {
	intents       paymentintent.Client
	webhookSecret string
	frontendURL   string
}

// NewStripeProvider создает провайдера Stripe
func NewStripeProvider(cfg config.StripeConfig, frontendURL string) *StripeProvider {
	return &StripeProvider{
		intents:       paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
		webhookSecret: cfg.WebhookSecret,
		frontendURL:   frontendURL,
	}
}

func (p *StripeProvider) Method() models.PaymentMethod {
	return models.PaymentMethodStripe
}

// Initiate создает PaymentIntent. Оплата завершается на фронтенде по client_secret.
func (p *StripeProvider) Initiate(ctx context.Context, req PaymentRequest) (*InitiatedPayment, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(toMinorUnits(req.Amount)),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.Payer.Email != "" {
		params.ReceiptEmail = stripe.String(req.Payer.Email)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.Reference)
	params.AddMetadata("debtId", req.DebtID)
	params.AddMetadata("reference", req.Reference)

	intent, err := p.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe payment intent: %w", err)
	}

	return &InitiatedPayment{
		ProviderTransactionID: intent.ID,
		PaymentURL:            fmt.Sprintf("%s?client_secret=%s", paymentPageURL(p.frontendURL, req.DebtID), url.QueryEscape(intent.ClientSecret)),
		Message:               "Complete the card payment",
	}, nil
}

// ParseWebhook проверяет заголовок Stripe-Signature и разбирает событие PaymentIntent
func (p *StripeProvider) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*WebhookNotice, error) {
	signature := header.Get("Stripe-Signature")
	event, err := webhook.ConstructEventWithOptions(body, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		utils.LogDebug("Stripe webhook rejected: %v", err)
		return nil, utils.NewSignatureError(string(p.Method()))
	}

	notice := &WebhookNotice{
		EventID:   event.ID,
		EventType: string(event.Type),
		Signature: signature,
		Outcome:   OutcomeIgnored,
	}

	eventType := string(event.Type)
	if eventType != "payment_intent.succeeded" && eventType != "payment_intent.payment_failed" {
		return notice, nil
	}
	if event.Data == nil {
		return nil, utils.NewValidationError("malformed stripe webhook payload")
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, utils.NewValidationError("malformed stripe payment intent")
	}
	notice.ProviderTransactionID = intent.ID
	notice.Reference = intent.Metadata["reference"]

	if eventType == "payment_intent.succeeded" {
		notice.Outcome = OutcomeSucceeded
	} else {
		notice.Outcome = OutcomeFailed
		notice.FailureReason = "payment failed"
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			notice.FailureReason = intent.LastPaymentError.Msg
		}
	}
	return notice, nil
}
