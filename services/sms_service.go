package services

import (
	"buddiepay/config"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SMSService отправляет SMS через Twilio REST API
type SMSService struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
}

// NewSMSService создает SMSService. Без учетных данных канал считается отключенным.
func NewSMSService(cfg config.TwilioConfig) *SMSService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSService{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		from:       cfg.FromNumber,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     &http.Client{Timeout: timeout},
	}
}

// Enabled сообщает, настроен ли SMS-канал
func (s *SMSService) Enabled() bool {
	return s != nil && s.accountSID != "" && s.authToken != "" && s.from != ""
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SendSMS отправляет текстовое сообщение
func (s *SMSService) SendSMS(ctx context.Context, to, body string) error {
	if !s.Enabled() {
		return fmt.Errorf("sms канал не настроен")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса к twilio: %w", err)
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка запроса к twilio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr twilioError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("twilio вернул %d: %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("twilio вернул статус %d", resp.StatusCode)
	}
	return nil
}
