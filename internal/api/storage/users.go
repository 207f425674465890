package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/voiceover-be/internal/api/domain"
	"github.com/cuongbtq/voiceover-be/internal/api/model"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, email, is_admin, credits, external_customer_ref, external_subscription_ref, created_at, updated_at`

func (s *Storage) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var u model.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u.ToDomain(), nil
}

// EnsureUser provisions a user on first sight with an initial credit grant.
// Existing users are returned unchanged.
func (s *Storage) EnsureUser(ctx context.Context, userID, email string, initialCredits int64) (*domain.User, error) {
	query := `
		INSERT INTO users (id, email, is_admin, credits, created_at, updated_at)
		VALUES ($1, $2, FALSE, $3, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, userID, email, initialCredits); err != nil {
		return nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return s.GetUser(ctx, userID)
}

// ChargeCredits atomically decrements a non-admin balance by amount, refusing
// to go below zero. Admin balances are never mutated.
func (s *Storage) ChargeCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	return chargeCredits(ctx, s.db, userID, amount)
}

func chargeCredits(ctx context.Context, q sqlx.QueryerContext, userID string, amount int64) (int64, error) {
	query := `
		UPDATE users
		SET credits = CASE WHEN is_admin THEN credits ELSE credits - $1 END,
		    updated_at = NOW()
		WHERE id = $2
		  AND (is_admin OR credits >= $1)
		RETURNING credits
	`

	var balance int64
	err := q.QueryRowxContext(ctx, query, amount, userID).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to charge credits: %w", err)
	}

	// nothing matched: either the user is missing or the balance is too low
	var current int64
	err = sqlx.GetContext(ctx, q, &current, `SELECT credits FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, notFound("user")
		}
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return current, domain.NewInsufficientCredits(current)
}

// AddCredits increments a balance after an external payment confirmation.
func (s *Storage) AddCredits(ctx context.Context, userID string, amount int64) (int64, error) {
	query := `
		UPDATE users
		SET credits = credits + $1,
		    updated_at = NOW()
		WHERE id = $2
		RETURNING credits
	`

	var balance int64
	if err := s.db.QueryRowxContext(ctx, query, amount, userID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, notFound("user")
		}
		return 0, fmt.Errorf("failed to add credits: %w", err)
	}

	s.logger.Info("Credits added",
		slog.String("user_id", userID),
		slog.Int64("amount", amount),
		slog.Int64("balance", balance),
	)
	return balance, nil
}

// SetBillingRefs records the payment processor references of a user.
func (s *Storage) SetBillingRefs(ctx context.Context, userID string, customerRef, subscriptionRef *string) error {
	query := `
		UPDATE users
		SET external_customer_ref = COALESCE($1, external_customer_ref),
		    external_subscription_ref = COALESCE($2, external_subscription_ref),
		    updated_at = NOW()
		WHERE id = $3
	`
	res, err := s.db.ExecContext(ctx, query, model.NullString(customerRef), model.NullString(subscriptionRef), userID)
	if err != nil {
		return fmt.Errorf("failed to set billing refs: %w", err)
	}
	return requireAffected(res, "user")
}

// ClearSubscription drops the external subscription reference.
func (s *Storage) ClearSubscription(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET external_subscription_ref = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to clear subscription: %w", err)
	}
	return requireAffected(res, "user")
}

func requireAffected(res sql.Result, entity string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return notFound(entity)
	}
	return nil
}
