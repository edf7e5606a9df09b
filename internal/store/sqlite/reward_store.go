package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// RewardStore implements domain.RewardStore on SQLite.
type RewardStore struct {
	db *DB
}

// NewRewardStore creates a RewardStore on db.
func NewRewardStore(db *DB) *RewardStore {
	return &RewardStore{db: db}
}

const rewardCols = `user_id, market_id, amount, claimed, created_at, claimed_at`

func scanReward(row rowScanner) (domain.ClaimableReward, error) {
	var (
		r                 domain.ClaimableReward
		amount, createdAt int64
		claimedAt         sql.NullInt64
	)
	if err := row.Scan(&r.UserID, &r.MarketID, &amount, &r.Claimed, &createdAt, &claimedAt); err != nil {
		return domain.ClaimableReward{}, err
	}
	r.Amount = domain.Amount(amount)
	r.CreatedAt = fromNanos(createdAt)
	r.ClaimedAt = nullTime(claimedAt)
	return r, nil
}

// RecordRewards inserts missing rewards; existing rows are kept as they are.
func (s *RewardStore) RecordRewards(ctx context.Context, rewards []domain.ClaimableReward) error {
	if len(rewards) == 0 {
		return nil
	}
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rewards (user_id, market_id, amount, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (user_id, market_id) DO NOTHING`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		now := time.Now()
		for _, r := range rewards {
			if r.UserID == "" || r.MarketID == "" {
				return fmt.Errorf("%w: user and market are required", domain.ErrValidation)
			}
			created := r.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err := stmt.ExecContext(ctx, r.UserID, r.MarketID, int64(r.Amount), toNanos(created)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite: record rewards: %w", err)
	}
	return nil
}

// Claim flips an unclaimed reward with a conditional UPDATE.
func (s *RewardStore) Claim(ctx context.Context, userID, marketID string) (domain.Amount, error) {
	var amount int64
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE rewards SET claimed = 1, claimed_at = ?
			WHERE user_id = ? AND market_id = ? AND claimed = 0`,
			toNanos(time.Now()), userID, marketID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `SELECT amount FROM rewards WHERE user_id = ? AND market_id = ?`, userID, marketID).Scan(&amount)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.ErrNotFound
		case err != nil:
			return err
		case n == 0:
			return domain.ErrAlreadyClaimed
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite: claim %s/%s: %w", userID, marketID, err)
	}
	return domain.Amount(amount), nil
}

// GetReward retrieves a single reward.
func (s *RewardStore) GetReward(ctx context.Context, userID, marketID string) (domain.ClaimableReward, error) {
	r, err := scanReward(s.db.db.QueryRowContext(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE user_id = ? AND market_id = ?`, userID, marketID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ClaimableReward{}, fmt.Errorf("sqlite: reward %s/%s: %w", userID, marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ClaimableReward{}, fmt.Errorf("sqlite: get reward %s/%s: %w", userID, marketID, err)
	}
	return r, nil
}

// ListByUser returns a user's rewards, newest first.
func (s *RewardStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.ClaimableReward, error) {
	query := `SELECT ` + rewardCols + ` FROM rewards WHERE user_id = ?`
	args := []any{userID}
	if opts.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, toNanos(*opts.Since))
	}
	if opts.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, toNanos(*opts.Until))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` ORDER BY created_at DESC, market_id LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)
	return s.query(ctx, query, args...)
}

// ListByMarket returns a market's rewards ordered by user.
func (s *RewardStore) ListByMarket(ctx context.Context, marketID string) ([]domain.ClaimableReward, error) {
	return s.query(ctx, `SELECT `+rewardCols+` FROM rewards WHERE market_id = ? ORDER BY user_id`, marketID)
}

func (s *RewardStore) query(ctx context.Context, query string, args ...any) ([]domain.ClaimableReward, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list rewards: %w", err)
	}
	defer rows.Close()

	var out []domain.ClaimableReward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan reward: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list rewards rows: %w", err)
	}
	return out, nil
}

var _ domain.RewardStore = (*RewardStore)(nil)
