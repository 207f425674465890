package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

func TestLedger_Charge(t *testing.T) {
	tests := []struct {
		name        string
		credits     int64
		admin       bool
		amount      int64
		wantBalance int64
		wantKind    domain.ErrorKind
	}{
		{name: "charges", credits: 3, amount: 1, wantBalance: 2},
		{name: "exact balance", credits: 2, amount: 2, wantBalance: 0},
		{name: "insufficient", credits: 1, amount: 2, wantBalance: 1, wantKind: domain.KindInsufficientCredits},
		{name: "admin untouched", credits: 0, admin: true, amount: 5, wantBalance: 0},
		{name: "non-positive amount", credits: 3, amount: 0, wantBalance: 3, wantKind: domain.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.addUser("u1", tt.credits, tt.admin)
			ledger := NewLedger(f.store, discardLogger())

			_, err := ledger.Charge(context.Background(), "u1", tt.amount)
			if tt.wantKind != domain.KindInternal {
				require.Error(t, err)
				assert.Equal(t, tt.wantKind, domain.KindOf(err))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantBalance, f.credits(t, "u1"))
			assert.GreaterOrEqual(t, f.credits(t, "u1"), int64(0))
		})
	}
}

func TestLedger_ChargeUnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := NewLedger(f.store, discardLogger()).Charge(context.Background(), "ghost", 1)
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
}

func TestLedger_CreditAndBilling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addUser("u1", 0, false)
	ledger := NewLedger(f.store, discardLogger())

	balance, err := ledger.Credit(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), balance)

	_, err = ledger.Credit(ctx, "u1", -1)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(ledger.LinkBilling(ctx, "u1", nil, nil)))
	require.NoError(t, ledger.LinkBilling(ctx, "u1", strPtr("cus_1"), strPtr("sub_1")))

	u, err := ledger.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", *u.ExternalCustomerRef)
	assert.Equal(t, "sub_1", *u.ExternalSubscriptionRef)

	require.NoError(t, ledger.CancelSubscription(ctx, "u1"))
	u, err = ledger.Account(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", *u.ExternalCustomerRef)
	assert.Nil(t, u.ExternalSubscriptionRef)
}
