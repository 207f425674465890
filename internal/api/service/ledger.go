package service

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
)

// Ledger owns per-user credit balances and billing references.
type Ledger struct {
	users  UserStore
	logger *slog.Logger
}

func NewLedger(users UserStore, logger *slog.Logger) *Ledger {
	return &Ledger{users: users, logger: logger}
}

// Charge atomically takes amount credits from a non-admin user. Admin
// balances are never touched.
func (l *Ledger) Charge(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.NewInvalidInput("INVALID_AMOUNT", "amount must be positive")
	}
	return l.users.ChargeCredits(ctx, userID, amount)
}

// Credit adds amount credits after an external payment confirmation.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.NewInvalidInput("INVALID_AMOUNT", "amount must be positive")
	}
	balance, err := l.users.AddCredits(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	l.logger.Info("Credits granted",
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

// LinkBilling records references reported by the payment processor. Nil
// references are left unchanged.
func (l *Ledger) LinkBilling(ctx context.Context, userID string, customerRef, subscriptionRef *string) error {
	if customerRef == nil && subscriptionRef == nil {
		return domain.NewInvalidInput("INVALID_BILLING", "customerRef or subscriptionRef is required")
	}
	return l.users.SetBillingRefs(ctx, userID, customerRef, subscriptionRef)
}

// CancelSubscription forgets the user's external subscription.
func (l *Ledger) CancelSubscription(ctx context.Context, userID string) error {
	if err := l.users.ClearSubscription(ctx, userID); err != nil {
		return err
	}
	l.logger.Info("Subscription cancelled", slog.String("user_id", userID))
	return nil
}

// Account returns the user with its current balance.
func (l *Ledger) Account(ctx context.Context, userID string) (*domain.User, error) {
	return l.users.GetUser(ctx, userID)
}
