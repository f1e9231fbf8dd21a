package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDebtStatusTransitions(t *testing.T) {
	all := []DebtStatus{
		DebtStatusPending, DebtStatusPaymentRequested, DebtStatusPaid, DebtStatusConfirmed,
		DebtStatusSettled, DebtStatusDisputed, DebtStatusCancelled,
	}
	allowed := map[DebtStatus][]DebtStatus{
		DebtStatusPending:          {DebtStatusPaymentRequested, DebtStatusCancelled},
		DebtStatusPaymentRequested: {DebtStatusSettled, DebtStatusCancelled},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equalf(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
		assert.Equal(t, len(allowed[from]) == 0, from.IsTerminal(), from)
		assert.True(t, from.IsValid())
	}

	assert.False(t, DebtStatus("ready_to_send").IsValid())
	assert.False(t, DebtStatus("ready_to_send").CanTransitionTo(DebtStatusSettled))
}

func TestAllowedTransitionsReturnsCopy(t *testing.T) {
	next := DebtStatusPending.AllowedTransitions()
	next[0] = DebtStatusSettled
	assert.Equal(t, DebtStatusPaymentRequested, DebtStatusPending.AllowedTransitions()[0])
}

func TestDebtParties(t *testing.T) {
	debtor, creditor := "u-1", "u-2"
	registered := Debt{DebtorID: &debtor, CreditorID: &creditor}

	assert.True(t, registered.IsDebtor("u-1"))
	assert.True(t, registered.IsCreditor("u-2"))
	assert.False(t, registered.IsParty("u-3"))
	assert.False(t, registered.IsParty(""))
	assert.Equal(t, RegisteredParty{UserID: "u-2"}, registered.Party(RoleCreditor))

	personal := Debt{DebtorID: &debtor, CreditorName: "Bob", CreditorPhone: "+2348000000000"}
	assert.Equal(t, UnregisteredParty{Name: "Bob", Phone: "+2348000000000"}, personal.Party(RoleCreditor))
	assert.Equal(t, RegisteredParty{UserID: "u-1"}, personal.Party(RoleDebtor))
	assert.False(t, personal.IsParty("Bob"))
}

func TestEnumsValidity(t *testing.T) {
	assert.True(t, NagSensitivityHigh.IsValid())
	assert.False(t, NagSensitivity("extreme").IsValid())
	assert.True(t, PaymentMethodBankTransfer.IsValid())
	assert.False(t, PaymentMethod("cash").IsValid())
	assert.False(t, BankAccount{BankName: "GTBank", AccountName: "Bob"}.IsComplete())
}
