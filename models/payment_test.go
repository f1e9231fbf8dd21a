package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentMethodValueStoresEmptyAsNull(t *testing.T) {
	v, err := PaymentMethod("").Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = PaymentMethodPaystack.Value()
	require.NoError(t, err)
	assert.Equal(t, "paystack", v)
}

func TestPaymentMethodScan(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  PaymentMethod
	}{
		{"null", nil, ""},
		{"string", "stripe", PaymentMethodStripe},
		{"bytes", []byte("manual"), PaymentMethodManual},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := PaymentMethodPayPal
			require.NoError(t, m.Scan(tt.value))
			assert.Equal(t, tt.want, m)
		})
	}

	var m PaymentMethod
	assert.Error(t, m.Scan(42))
}
