package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// RewardStore implements domain.RewardStore using PostgreSQL.
type RewardStore struct {
	pool *pgxpool.Pool
}

// NewRewardStore creates a new RewardStore backed by the given connection pool.
func NewRewardStore(pool *pgxpool.Pool) *RewardStore {
	return &RewardStore{pool: pool}
}

const rewardCols = `user_id, market_id, amount, claimed, created_at, claimed_at`

func scanReward(row pgx.Row) (domain.ClaimableReward, error) {
	var (
		r      domain.ClaimableReward
		amount int64
	)
	if err := row.Scan(&r.UserID, &r.MarketID, &amount, &r.Claimed, &r.CreatedAt, &r.ClaimedAt); err != nil {
		return domain.ClaimableReward{}, err
	}
	r.Amount = domain.Amount(amount)
	return r, nil
}

// RecordRewards inserts all rewards in one batch. Rows that already exist
// are skipped, so the call can be repeated after a partial failure.
func (s *RewardStore) RecordRewards(ctx context.Context, rewards []domain.ClaimableReward) error {
	if len(rewards) == 0 {
		return nil
	}

	const query = `
		INSERT INTO rewards (user_id, market_id, amount, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))
		ON CONFLICT (user_id, market_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, r := range rewards {
		if r.UserID == "" || r.MarketID == "" {
			return fmt.Errorf("postgres: record reward: %w: user and market are required", domain.ErrValidation)
		}
		var createdAt any
		if !r.CreatedAt.IsZero() {
			createdAt = r.CreatedAt
		}
		batch.Queue(query, r.UserID, r.MarketID, int64(r.Amount), createdAt)
	}

	return withTx(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := range rewards {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("postgres: record reward batch item %d: %w", i, err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("postgres: record rewards: %w", err)
		}
		return nil
	})
}

// Claim flips claimed in one conditional UPDATE. Of two racing claims only
// one sees a returned row.
func (s *RewardStore) Claim(ctx context.Context, userID, marketID string) (domain.Amount, error) {
	var amount int64
	err := s.pool.QueryRow(ctx, `
		UPDATE rewards SET claimed = TRUE, claimed_at = NOW()
		WHERE user_id = $1 AND market_id = $2 AND NOT claimed
		RETURNING amount`, userID, marketID).Scan(&amount)
	if err == nil {
		return domain.Amount(amount), nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("postgres: claim %s/%s: %w", userID, marketID, err)
	}

	if _, err := s.GetReward(ctx, userID, marketID); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("postgres: claim %s/%s: %w", userID, marketID, domain.ErrAlreadyClaimed)
}

// GetReward retrieves a single reward.
func (s *RewardStore) GetReward(ctx context.Context, userID, marketID string) (domain.ClaimableReward, error) {
	r, err := scanReward(s.pool.QueryRow(ctx,
		`SELECT `+rewardCols+` FROM rewards WHERE user_id = $1 AND market_id = $2`, userID, marketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClaimableReward{}, fmt.Errorf("postgres: reward %s/%s: %w", userID, marketID, domain.ErrNotFound)
		}
		return domain.ClaimableReward{}, fmt.Errorf("postgres: get reward %s/%s: %w", userID, marketID, err)
	}
	return r, nil
}

// ListByUser returns a user's rewards, newest first.
func (s *RewardStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.ClaimableReward, error) {
	query := `SELECT ` + rewardCols + ` FROM rewards WHERE user_id = $1`
	args := []any{userID}

	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC, market_id"
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.query(ctx, query, args...)
}

// ListByMarket returns a market's rewards ordered by user.
func (s *RewardStore) ListByMarket(ctx context.Context, marketID string) ([]domain.ClaimableReward, error) {
	return s.query(ctx, `SELECT `+rewardCols+` FROM rewards WHERE market_id = $1 ORDER BY user_id`, marketID)
}

func (s *RewardStore) query(ctx context.Context, query string, args ...any) ([]domain.ClaimableReward, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rewards: %w", err)
	}
	defer rows.Close()

	var out []domain.ClaimableReward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan reward: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list rewards rows: %w", err)
	}
	return out, nil
}

var _ domain.RewardStore = (*RewardStore)(nil)
