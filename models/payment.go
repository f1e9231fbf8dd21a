package models

import (
	"database/sql/driver"
	"fmt"
)

// PaymentMethod представляет способ оплаты долга
type PaymentMethod string

const (
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
	PaymentMethodPaystack     PaymentMethod = "paystack"
	PaymentMethodFlutterwave  PaymentMethod = "flutterwave"
	PaymentMethodStripe       PaymentMethod = "stripe"
	PaymentMethodPayPal       PaymentMethod = "paypal"
	PaymentMethodManual       PaymentMethod = "manual"
)

// IsValid проверяет, что способ оплаты известен
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodBankTransfer, PaymentMethodPaystack, PaymentMethodFlutterwave,
		PaymentMethodStripe, PaymentMethodPayPal, PaymentMethodManual:
		return true
	}
	return false
}

// Value записывает невыбранный способ оплаты как NULL
func (m PaymentMethod) Value() (driver.Value, error) {
	if m == "" {
		return nil, nil
	}
	return string(m), nil
}

// Scan читает способ оплаты, NULL превращается в пустое значение
func (m *PaymentMethod) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = ""
	case string:
		*m = PaymentMethod(v)
	case []byte:
		*m = PaymentMethod(v)
	default:
		return fmt.Errorf("неподдерживаемый тип способа оплаты: %T", value)
	}
	return nil
}
