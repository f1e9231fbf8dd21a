package services

import (
	"buddiepay/models"
	"fmt"
	"html"
	"strings"
)

type paymentInstructions struct {
	PaymentURL string
	Bank       *models.BankAccount
}

type message struct {
	Subject string
	HTML    string
	Text    string
}

func formatAmount(debt *models.Debt) string {
	return fmt.Sprintf("%s %s", debt.Currency, debt.Amount.StringFixed(2))
}

func displayName(c models.Contact, fallback string) string {
	if c.Name != "" {
		return c.Name
	}
	if c.Email != "" {
		return c.Email
	}
	if c.Phone != "" {
		return c.Phone
	}
	return fallback
}

// buildMessage формирует тему, HTML и текстовую версию уведомления
func buildMessage(notificationType models.NotificationType, appName string, debt *models.Debt, recipient, counterpart models.Contact, pay paymentInstructions) message {
	amount := formatAmount(debt)
	other := displayName(counterpart, "Someone")
	due := debt.DueDate.Format("02 Jan 2006 15:04 MST")

	var subject, lead string
	withInstructions := false

	switch notificationType {
	case models.NotificationDebtCreated:
		subject = fmt.Sprintf("%s recorded a debt of %s", other, amount)
		lead = fmt.Sprintf("%s recorded that you owe %s for \"%s\". It is due on %s.", other, amount, debt.Description, due)
		withInstructions = true
	case models.NotificationDebtAcknowledged:
		subject = fmt.Sprintf("%s acknowledged owing you %s", other, amount)
		lead = fmt.Sprintf("%s acknowledged owing you %s for \"%s\". It is due on %s.", other, amount, debt.Description, due)
	case models.NotificationPaymentRequest:
		subject = fmt.Sprintf("Payment request: %s", amount)
		lead = fmt.Sprintf("Your debt of %s to %s for \"%s\" was due on %s. Please settle it.", amount, other, debt.Description, due)
		withInstructions = true
	case models.NotificationPaymentReminder:
		subject = fmt.Sprintf("Reminder: %s is still outstanding", amount)
		lead = fmt.Sprintf("This is a friendly reminder that you still owe %s %s for \"%s\".", other, amount, debt.Description)
		withInstructions = true
	case models.NotificationPaymentReceived:
		subject = fmt.Sprintf("You received %s", amount)
		lead = fmt.Sprintf("%s paid %s for \"%s\". The debt is now settled.", other, amount, debt.Description)
	case models.NotificationDebtSettled:
		subject = fmt.Sprintf("Debt of %s settled", amount)
		lead = fmt.Sprintf("Your payment of %s to %s for \"%s\" was confirmed. Thank you!", amount, other, debt.Description)
	case models.NotificationDebtDisputed:
		subject = fmt.Sprintf("Debt of %s disputed", amount)
		lead = fmt.Sprintf("%s disputed the debt of %s for \"%s\".", other, amount, debt.Description)
	case models.NotificationDebtCancelled:
		subject = fmt.Sprintf("Debt of %s cancelled", amount)
		lead = fmt.Sprintf("The debt of %s for \"%s\" between you and %s was cancelled.", amount, debt.Description, other)
	default:
		subject = fmt.Sprintf("Update on your debt of %s", amount)
		lead = fmt.Sprintf("There is an update on the debt of %s for \"%s\".", amount, debt.Description)
	}

	greeting := fmt.Sprintf("Hi %s,", displayName(recipient, "there"))
	subject = fmt.Sprintf("[%s] %s", appName, subject)

	var body, text strings.Builder
	fmt.Fprintf(&body, `
		<h2>%s</h2>
		<p>%s</p>
		<p>%s</p>
		<p>Reference: %s</p>
	`, html.EscapeString(subject), html.EscapeString(greeting), html.EscapeString(lead), html.EscapeString(debt.PaymentReference))
	fmt.Fprintf(&text, "%s %s", greeting, lead)

	if withInstructions {
		if pay.Bank != nil {
			fmt.Fprintf(&body, `
		<h3>Bank transfer details</h3>
		<p>Bank: %s<br>Account name: %s<br>Account number: %s<br>Narration: %s</p>
	`, html.EscapeString(pay.Bank.BankName), html.EscapeString(pay.Bank.AccountName), html.EscapeString(pay.Bank.AccountNumber), html.EscapeString(debt.PaymentReference))
			fmt.Fprintf(&text, " Pay to %s, %s %s (ref %s).", pay.Bank.AccountName, pay.Bank.BankName, pay.Bank.AccountNumber, debt.PaymentReference)
		} else if pay.PaymentURL != "" {
			fmt.Fprintf(&body, `
		<p><a href="%s">Pay now</a></p>
	`, html.EscapeString(pay.PaymentURL))
			fmt.Fprintf(&text, " Pay here: %s", pay.PaymentURL)
		}
	}

	fmt.Fprintf(&body, `
		<p>%s</p>
	`, html.EscapeString(appName))

	return message{Subject: subject, HTML: body.String(), Text: text.String()}
}
