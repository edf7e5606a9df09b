package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// BalanceBook implements domain.BalanceBook using PostgreSQL. Every credit is
// recorded in balance_credits under its reference in the same transaction
// that bumps the balance.
type BalanceBook struct {
	pool *pgxpool.Pool
}

// NewBalanceBook creates a new BalanceBook backed by the given connection pool.
func NewBalanceBook(pool *pgxpool.Pool) *BalanceBook {
	return &BalanceBook{pool: pool}
}

// Credit adds amount to the user's balance unless reference was applied.
func (b *BalanceBook) Credit(ctx context.Context, userID string, amount domain.Amount, reference string) error {
	if amount < 0 {
		return fmt.Errorf("postgres: credit %s: %w: negative amount", userID, domain.ErrValidation)
	}
	err := withTx(ctx, b.pool, func(tx pgx.Tx) error {
		if reference != "" {
			tag, err := tx.Exec(ctx, `
				INSERT INTO balance_credits (reference, user_id, amount)
				VALUES ($1, $2, $3)
				ON CONFLICT (reference) DO NOTHING`, reference, userID, int64(amount))
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return nil
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO balances (user_id, amount) VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET
				amount     = balances.amount + EXCLUDED.amount,
				updated_at = NOW()`, userID, int64(amount))
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: credit %s: %w", userID, err)
	}
	return nil
}

// Balance returns the user's balance, zero if the user has none.
func (b *BalanceBook) Balance(ctx context.Context, userID string) (domain.Amount, error) {
	var amount int64
	err := b.pool.QueryRow(ctx, `SELECT amount FROM balances WHERE user_id = $1`, userID).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: balance %s: %w", userID, err)
	}
	return domain.Amount(amount), nil
}

var _ domain.BalanceBook = (*BalanceBook)(nil)
