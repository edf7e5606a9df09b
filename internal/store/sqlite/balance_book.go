package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// BalanceBook implements domain.BalanceBook on SQLite.
type BalanceBook struct {
	db *DB
}

// NewBalanceBook creates a BalanceBook on db.
func NewBalanceBook(db *DB) *BalanceBook {
	return &BalanceBook{db: db}
}

// Credit adds amount to the user's balance unless reference was applied.
func (b *BalanceBook) Credit(ctx context.Context, userID string, amount domain.Amount, reference string) error {
	if amount < 0 {
		return fmt.Errorf("sqlite: credit %s: %w: negative amount", userID, domain.ErrValidation)
	}
	err := b.db.withTx(ctx, func(tx *sql.Tx) error {
		if reference != "" {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO balance_credits (reference, user_id, amount, created_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (reference) DO NOTHING`,
				reference, userID, int64(amount), toNanos(time.Now()))
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO balances (user_id, amount) VALUES (?, ?)
			ON CONFLICT (user_id) DO UPDATE SET amount = amount + excluded.amount`,
			userID, int64(amount))
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: credit %s: %w", userID, err)
	}
	return nil
}

// Balance returns the user's balance, zero if unknown.
func (b *BalanceBook) Balance(ctx context.Context, userID string) (domain.Amount, error) {
	var amount int64
	err := b.db.db.QueryRowContext(ctx, `SELECT amount FROM balances WHERE user_id = ?`, userID).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: balance %s: %w", userID, err)
	}
	return domain.Amount(amount), nil
}

var _ domain.BalanceBook = (*BalanceBook)(nil)
