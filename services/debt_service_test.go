package services

import (
	"buddiepay/models"
	"buddiepay/utils"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newDebtService(t *testing.T) (*DebtService, *gorm.DB, *recordingNotifier) {
	t.Helper()
	db := newTestDB(t)
	notifier := &recordingNotifier{}
	svc := NewDebtService(db, notifier, testConfig())
	svc.now = fixedClock(testNow)
	return svc, db, notifier
}

func TestCreateDebtWithRegisteredCreditor(t *testing.T) {
	svc, db, notifier := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	bob := createUser(t, db, "Bob", "bob@example.com")

	debt, err := svc.CreateDebt(context.Background(), alice.ID, CreateDebtDTO{
		CounterpartID: &bob.ID,
		Amount:        decimal.NewFromInt(5000),
		Description:   "  Dinner at Mama Put ",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DebtStatusPending, debt.Status)
	assert.Equal(t, alice.ID, *debt.DebtorID)
	assert.Equal(t, bob.ID, *debt.CreditorID)
	assert.False(t, debt.IsPersonalReminder)
	assert.Equal(t, "NGN", debt.Currency)
	assert.Equal(t, "Dinner at Mama Put", debt.Description)
	assert.True(t, debt.DueDate.Equal(testNow.Add(24*time.Hour)))
	assert.True(t, strings.HasPrefix(debt.PaymentReference, "MDS-"))

	assert.Equal(t, []dispatchCall{{DebtID: debt.ID, Type: models.NotificationDebtAcknowledged, Role: models.RoleCreditor}}, notifier.Calls())

	stored := reloadDebt(t, db, debt.ID)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(5000)))
}

func TestCreateDebtWithUnregisteredCreditorIsPersonalReminder(t *testing.T) {
	svc, db, _ := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	due := testNow.Add(72 * time.Hour)

	debt, err := svc.CreateDebt(context.Background(), alice.ID, CreateDebtDTO{
		CounterpartName:  "Chidi",
		CounterpartEmail: "chidi@example.com",
		Amount:           decimal.RequireFromString("1250.50"),
		Currency:         "usd",
		Description:      "Concert tickets",
		DueDate:          &due,
	})
	require.NoError(t, err)

	assert.True(t, debt.IsPersonalReminder)
	assert.Nil(t, debt.CreditorID)
	assert.Equal(t, "Chidi", debt.CreditorName)
	assert.Equal(t, "chidi@example.com", debt.CreditorEmail)
	assert.Equal(t, "USD", debt.Currency)
	assert.True(t, debt.DueDate.Equal(due))
}

func TestCreateReceivableDebtNotifiesDebtor(t *testing.T) {
	svc, db, notifier := newDebtService(t)
	bob := createUser(t, db, "Bob", "bob@example.com")

	debt, err := svc.CreateReceivableDebt(context.Background(), bob.ID, CreateDebtDTO{
		CounterpartEmail: "debtor@example.com",
		Amount:           decimal.NewFromInt(5000),
		Description:      "Fuel",
	})
	require.NoError(t, err)

	assert.Equal(t, bob.ID, *debt.CreditorID)
	assert.Nil(t, debt.DebtorID)
	assert.Equal(t, "debtor@example.com", debt.DebtorEmail)
	assert.Equal(t, []dispatchCall{{DebtID: debt.ID, Type: models.NotificationDebtCreated, Role: models.RoleDebtor}}, notifier.Calls())
}

func TestCreateDebtValidation(t *testing.T) {
	svc, db, notifier := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	missing := "7d2c1f0e-3b7a-4b8e-9a55-2f6d9c1b0a11"

	tests := []struct {
		name    string
		dto     CreateDebtDTO
		wantErr error
	}{
		{
			name:    "zero amount",
			dto:     CreateDebtDTO{CounterpartName: "Bob", Amount: decimal.Zero, Description: "x"},
			wantErr: utils.ErrValidation,
		},
		{
			name:    "negative amount",
			dto:     CreateDebtDTO{CounterpartName: "Bob", Amount: decimal.NewFromInt(-10), Description: "x"},
			wantErr: utils.ErrValidation,
		},
		{
			name:    "missing description",
			dto:     CreateDebtDTO{CounterpartName: "Bob", Amount: decimal.NewFromInt(10)},
			wantErr: utils.ErrValidation,
		},
		{
			name:    "blank description",
			dto:     CreateDebtDTO{CounterpartName: "Bob", Amount: decimal.NewFromInt(10), Description: "   "},
			wantErr: utils.ErrValidation,
		},
		{
			name:    "no counterpart",
			dto:     CreateDebtDTO{Amount: decimal.NewFromInt(10), Description: "x"},
			wantErr: utils.ErrValidation,
		},
		{
			name:    "counterpart is the actor",
			dto:     CreateDebtDTO{CounterpartID: &alice.ID, Amount: decimal.NewFromInt(10), Description: "x"},
			wantErr: utils.ErrValidation,
		},
		{
			name:    "counterpart email is the actor",
			dto:     CreateDebtDTO{CounterpartEmail: "ALICE@example.com", Amount: decimal.NewFromInt(10), Description: "x"},
			wantErr: utils.ErrValidation,
		},
		{
			name:    "invalid email",
			dto:     CreateDebtDTO{CounterpartEmail: "not-an-email", Amount: decimal.NewFromInt(10), Description: "x"},
			wantErr: utils.ErrValidation,
		},
		{
			name:    "unknown counterpart",
			dto:     CreateDebtDTO{CounterpartID: &missing, Amount: decimal.NewFromInt(10), Description: "x"},
			wantErr: utils.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateDebt(context.Background(), alice.ID, tt.dto)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.Debt{}).Count(&count).Error)
	assert.Zero(t, count)
	assert.Empty(t, notifier.Calls())
}

func TestCreateDebtSmallestPositiveAmount(t *testing.T) {
	svc, db, _ := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")

	debt, err := svc.CreateDebt(context.Background(), alice.ID, CreateDebtDTO{
		CounterpartName: "Bob",
		Amount:          decimal.RequireFromString("0.01"),
		Description:     "Gum",
	})
	require.NoError(t, err)
	assert.Equal(t, "0.01", debt.Amount.StringFixed(2))
}

func TestUpdateDebtStatusTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    models.DebtStatus
		to      models.DebtStatus
		wantErr error
	}{
		{name: "pending to payment_requested", from: models.DebtStatusPending, to: models.DebtStatusPaymentRequested},
		{name: "pending to cancelled", from: models.DebtStatusPending, to: models.DebtStatusCancelled},
		{name: "payment_requested to settled", from: models.DebtStatusPaymentRequested, to: models.DebtStatusSettled},
		{name: "payment_requested to cancelled", from: models.DebtStatusPaymentRequested, to: models.DebtStatusCancelled},
		{name: "pending to settled", from: models.DebtStatusPending, to: models.DebtStatusSettled, wantErr: utils.ErrInvalidStatusTransition},
		{name: "payment_requested to pending", from: models.DebtStatusPaymentRequested, to: models.DebtStatusPending, wantErr: utils.ErrInvalidStatusTransition},
		{name: "cancelled to pending", from: models.DebtStatusCancelled, to: models.DebtStatusPending, wantErr: utils.ErrInvalidStatusTransition},
		{name: "settled to cancelled", from: models.DebtStatusSettled, to: models.DebtStatusCancelled, wantErr: utils.ErrInvalidStatusTransition},
		{name: "pending to paid", from: models.DebtStatusPending, to: models.DebtStatusPaid, wantErr: utils.ErrInvalidStatusTransition},
		{name: "unknown status", from: models.DebtStatusPending, to: models.DebtStatus("ready_to_send"), wantErr: utils.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, db, _ := newDebtService(t)
			alice := createUser(t, db, "Alice", "alice@example.com")
			debt := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Bob", IsPersonalReminder: true})
			setStatus(t, db, debt.ID, tt.from)

			target := tt.to
			updated, err := svc.UpdateDebt(context.Background(), debt.ID, alice.ID, UpdateDebtDTO{Status: &target})
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.from, reloadDebt(t, db, debt.ID).Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, updated.Status)

			switch tt.to {
			case models.DebtStatusPaymentRequested:
				require.NotNil(t, updated.PaymentRequestedAt)
				assert.True(t, updated.PaymentRequestedAt.Equal(testNow))
			case models.DebtStatusSettled:
				require.NotNil(t, updated.SettledAt)
				require.NotNil(t, updated.PaidAt)
			}
		})
	}
}

func TestInvalidTransitionListsAllowedStatuses(t *testing.T) {
	svc, db, _ := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	debt := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Bob", IsPersonalReminder: true})

	target := models.DebtStatusSettled
	_, err := svc.UpdateDebt(context.Background(), debt.ID, alice.ID, UpdateDebtDTO{Status: &target})
	require.ErrorIs(t, err, utils.ErrInvalidStatusTransition)
	assert.Equal(t, "cannot transition debt from pending to settled: allowed: payment_requested, cancelled", err.Error())

	setStatus(t, db, debt.ID, models.DebtStatusCancelled)
	target = models.DebtStatusPending
	_, err = svc.UpdateDebt(context.Background(), debt.ID, alice.ID, UpdateDebtDTO{Status: &target})
	require.ErrorIs(t, err, utils.ErrInvalidStatusTransition)
	assert.Contains(t, err.Error(), "cancelled is a final status")
}

func TestUpdateDebtAmountRights(t *testing.T) {
	svc, db, _ := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	bob := createUser(t, db, "Bob", "bob@example.com")
	carol := createUser(t, db, "Carol", "carol@example.com")
	debt := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorID: &bob.ID})

	amount := decimal.NewFromInt(7500)

	_, err := svc.UpdateDebt(context.Background(), debt.ID, bob.ID, UpdateDebtDTO{Amount: &amount})
	assert.ErrorIs(t, err, utils.ErrForbidden)

	_, err = svc.UpdateDebt(context.Background(), debt.ID, carol.ID, UpdateDebtDTO{Amount: &amount})
	assert.ErrorIs(t, err, utils.ErrForbidden)

	zero := decimal.Zero
	_, err = svc.UpdateDebt(context.Background(), debt.ID, alice.ID, UpdateDebtDTO{Amount: &zero})
	assert.ErrorIs(t, err, utils.ErrValidation)

	updated, err := svc.UpdateDebt(context.Background(), debt.ID, alice.ID, UpdateDebtDTO{
		Amount:      &amount,
		Description: strPtr("Dinner and drinks"),
	})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(amount))
	assert.Equal(t, "Dinner and drinks", updated.Description)

	// Кредитор может менять срок
	due := testNow.Add(48 * time.Hour)
	updated, err = svc.UpdateDebt(context.Background(), debt.ID, bob.ID, UpdateDebtDTO{DueDate: &due})
	require.NoError(t, err)
	assert.True(t, updated.DueDate.Equal(due))
}

func TestUpdateTerminalDebtIsRejected(t *testing.T) {
	svc, db, _ := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")

	settled := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Bob"})
	setStatus(t, db, settled.ID, models.DebtStatusSettled)
	cancelled := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Bob"})
	setStatus(t, db, cancelled.ID, models.DebtStatusCancelled)

	amount := decimal.NewFromInt(1)
	_, err := svc.UpdateDebt(context.Background(), settled.ID, alice.ID, UpdateDebtDTO{Amount: &amount})
	assert.ErrorIs(t, err, utils.ErrAlreadySettled)

	_, err = svc.UpdateDebt(context.Background(), cancelled.ID, alice.ID, UpdateDebtDTO{Description: strPtr("new")})
	assert.ErrorIs(t, err, utils.ErrAlreadyCancelled)
}

func TestCancelDebtNotifiesCounterpart(t *testing.T) {
	svc, db, notifier := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	bob := createUser(t, db, "Bob", "bob@example.com")
	debt := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorID: &bob.ID})

	cancelled := models.DebtStatusCancelled
	_, err := svc.UpdateDebt(context.Background(), debt.ID, bob.ID, UpdateDebtDTO{Status: &cancelled})
	require.NoError(t, err)

	assert.Equal(t, []dispatchCall{{DebtID: debt.ID, Type: models.NotificationDebtCancelled, Role: models.RoleDebtor}}, notifier.Calls())
}

func TestGetDebtRequiresParty(t *testing.T) {
	svc, db, _ := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	carol := createUser(t, db, "Carol", "carol@example.com")
	debt := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Bob"})

	got, err := svc.GetDebt(context.Background(), debt.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, debt.ID, got.ID)

	_, err = svc.GetDebt(context.Background(), debt.ID, carol.ID)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	_, err = svc.GetDebt(context.Background(), "not-a-uuid", alice.ID)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestDeleteDebt(t *testing.T) {
	svc, db, _ := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	carol := createUser(t, db, "Carol", "carol@example.com")

	pending := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Bob"})
	requested := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Bob"})
	setStatus(t, db, requested.ID, models.DebtStatusPaymentRequested)

	err := svc.DeleteDebt(context.Background(), pending.ID, carol.ID)
	assert.ErrorIs(t, err, utils.ErrForbidden)

	err = svc.DeleteDebt(context.Background(), requested.ID, alice.ID)
	require.Error(t, err)
	assert.Equal(t, 409, utils.StatusCode(err))

	require.NoError(t, svc.DeleteDebt(context.Background(), pending.ID, alice.ID))
	err = svc.DeleteDebt(context.Background(), pending.ID, alice.ID)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestListDebtsAndSummary(t *testing.T) {
	svc, db, _ := newDebtService(t)
	alice := createUser(t, db, "Alice", "alice@example.com")
	bob := createUser(t, db, "Bob", "bob@example.com")

	insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorID: &bob.ID, Amount: decimal.NewFromInt(1000)})
	insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Chidi", Amount: decimal.NewFromInt(500)})
	insertDebt(t, db, &models.Debt{DebtorID: &bob.ID, CreditorID: &alice.ID, Amount: decimal.NewFromInt(300)})
	insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Dana", Amount: decimal.NewFromInt(20), Currency: "USD"})
	settled := insertDebt(t, db, &models.Debt{DebtorID: &alice.ID, CreditorName: "Eve", Amount: decimal.NewFromInt(9999)})
	setStatus(t, db, settled.ID, models.DebtStatusSettled)

	all, err := svc.ListDebts(context.Background(), alice.ID, DebtFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 5, all.Total)

	owed, err := svc.ListDebts(context.Background(), alice.ID, DebtFilter{Direction: DirectionOwed, Status: models.DebtStatusPending})
	require.NoError(t, err)
	assert.EqualValues(t, 3, owed.Total)

	page, err := svc.ListDebts(context.Background(), alice.ID, DebtFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Page)

	_, err = svc.ListDebts(context.Background(), alice.ID, DebtFilter{Direction: "sideways"})
	assert.ErrorIs(t, err, utils.ErrValidation)

	summary, err := svc.Summary(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, "NGN", summary[0].Currency)
	assert.True(t, summary[0].Owed.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, 2, summary[0].OwedCount)
	assert.True(t, summary[0].Receivable.Equal(decimal.NewFromInt(300)))
	assert.Equal(t, 1, summary[0].ReceivableCount)

	assert.Equal(t, "USD", summary[1].Currency)
	assert.True(t, summary[1].Owed.Equal(decimal.NewFromInt(20)))
}
