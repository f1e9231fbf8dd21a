package services

import (
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"fmt"
)

// BankTransferProvider выдает реквизиты кредитора для прямого перевода.
// Подтверждение приходит вручную, вебхуков у этого способа нет.
type BankTransferProvider struct{}

func NewBankTransferProvider() *BankTransferProvider {
	return &BankTransferProvider{}
}

func (p *BankTransferProvider) Method() models.PaymentMethod {
	return models.PaymentMethodBankTransfer
}

// Initiate возвращает реквизиты для перевода
func (p *BankTransferProvider) Initiate(ctx context.Context, req PaymentRequest) (*InitiatedPayment, error) {
	if !req.Payout.IsComplete() {
		return nil, utils.NewValidationError("creditor has not set bank details for transfer")
	}
	details := req.Payout
	return &InitiatedPayment{
		BankDetails: &details,
		Message: fmt.Sprintf("Transfer %s %s to %s (%s, %s) using reference %s",
			req.Currency, req.Amount.StringFixed(2), details.AccountName, details.BankName, details.AccountNumber, req.Reference),
	}, nil
}
