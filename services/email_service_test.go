package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureDialer struct {
	messages []*gomail.Message
	err      error
}

func (d *captureDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, m...)
	return nil
}

func TestEmailServiceSend(t *testing.T) {
	dialer := &captureDialer{}
	svc := newEmailService(dialer, "BuddiePay", "noreply@buddiepay.test")

	require.NoError(t, svc.SendEmail("alice@example.com", "Payment request: NGN 5000.00", "<p>Hi Alice</p>", "Hi Alice"))
	require.Len(t, dialer.messages, 1)

	msg := dialer.messages[0]
	assert.Equal(t, []string{`"BuddiePay" <noreply@buddiepay.test>`}, msg.GetHeader("From"))
	assert.Equal(t, []string{"alice@example.com"}, msg.GetHeader("To"))

	var raw bytes.Buffer
	_, err := msg.WriteTo(&raw)
	require.NoError(t, err)
	assert.Contains(t, raw.String(), "multipart/alternative")
	assert.Contains(t, raw.String(), "<p>Hi Alice</p>")

	body := raw.String()
	plain := strings.Index(body, "Content-Type: text/plain")
	html := strings.Index(body, "Content-Type: text/html")
	require.True(t, plain >= 0 && html >= 0, body)
	assert.Less(t, plain, html, "текстовая часть идет первой, HTML последней как предпочтительная альтернатива")
}

func TestEmailServiceErrors(t *testing.T) {
	svc := newEmailService(&captureDialer{}, "BuddiePay", "noreply@buddiepay.test")
	assert.Error(t, svc.SendEmail("not-an-address", "s", "<p>x</p>", "x"))

	failing := newEmailService(&captureDialer{err: errors.New("535 auth failed")}, "BuddiePay", "noreply@buddiepay.test")
	err := failing.SendEmail("alice@example.com", "s", "<p>x</p>", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "535 auth failed")

	disabled := newEmailService(nil, "BuddiePay", "noreply@buddiepay.test")
	assert.Error(t, disabled.SendEmail("alice@example.com", "s", "<p>x</p>", "x"))
}
