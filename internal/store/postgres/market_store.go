package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
//
// Bets take a row lock on their market and transitions are conditional
// updates on the same row, so the two never interleave.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketCols = `id, creator, title, description, created_at, closes_at,
	initial_pool, min_bet, max_bet, status, result, resolved_at, settled_at`

// scanMarket scans a single market row into a domain.Market.
func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m                    domain.Market
		status               string
		result               *string
		pool, minBet, maxBet int64
	)
	err := row.Scan(
		&m.ID, &m.Creator, &m.Title, &m.Description, &m.CreatedAt, &m.ClosesAt,
		&pool, &minBet, &maxBet, &status, &result, &m.ResolvedAt, &m.SettledAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.InitialPool = domain.Amount(pool)
	m.MinBet = domain.Amount(minBet)
	m.MaxBet = domain.Amount(maxBet)
	m.Status = domain.MarketStatus(status)
	if result != nil {
		side := domain.Side(*result)
		m.Result = &side
	}
	return m, nil
}

// CreateMarket inserts a market row.
func (s *MarketStore) CreateMarket(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, creator, title, description, created_at, closes_at,
			initial_pool, min_bet, max_bet, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.pool.Exec(ctx, query,
		m.ID, m.Creator, m.Title, m.Description, m.CreatedAt, m.ClosesAt,
		int64(m.InitialPool), int64(m.MinBet), int64(m.MaxBet), string(m.Status),
	)
	if err != nil {
		return fmt.Errorf("postgres: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetMarket loads a market and its bets in insertion order.
func (s *MarketStore) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx, `SELECT `+marketCols+` FROM markets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", id, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", id, err)
	}
	bets, err := s.bets(ctx, s.pool, id)
	if err != nil {
		return domain.Market{}, err
	}
	m.Bets = bets
	return m, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *MarketStore) bets(ctx context.Context, q querier, marketID string) ([]domain.Bet, error) {
	rows, err := q.Query(ctx, `
		SELECT id, market_id, user_id, amount, side, placed_at
		FROM bets WHERE market_id = $1 ORDER BY seq`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets %s: %w", marketID, err)
	}
	defer rows.Close()

	var bets []domain.Bet
	for rows.Next() {
		var (
			b      domain.Bet
			amount int64
			side   string
		)
		if err := rows.Scan(&b.ID, &b.MarketID, &b.UserID, &amount, &side, &b.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		b.Amount = domain.Amount(amount)
		b.Side = domain.Side(side)
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets rows: %w", err)
	}
	return bets, nil
}

// ListMarkets returns markets newest first without their bets.
func (s *MarketStore) ListMarkets(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	where, args := marketWhere(filter, opts)
	query := `SELECT ` + marketCols + ` FROM markets` + where + ` ORDER BY created_at DESC, id`

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	return s.queryMarkets(ctx, "list markets", query, args...)
}

// CountMarkets counts markets matching filter.
func (s *MarketStore) CountMarkets(ctx context.Context, filter domain.MarketFilter) (int64, error) {
	where, args := marketWhere(filter, domain.ListOpts{})
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

func marketWhere(filter domain.MarketFilter, opts domain.ListOpts) (string, []any) {
	where := ` WHERE 1=1`
	var args []any
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Creator != "" {
		args = append(args, filter.Creator)
		where += fmt.Sprintf(" AND creator = $%d", len(args))
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		where += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		where += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	return where, args
}

// AppendBet locks the market row, checks it is open and the amount is in
// range, then inserts the bet.
func (s *MarketStore) AppendBet(ctx context.Context, marketID string, bet domain.Bet) error {
	err := withTx(ctx, s.pool, func(tx pgx.Tx) error {
		var (
			status         string
			minBet, maxBet int64
		)
		err := tx.QueryRow(ctx,
			`SELECT status, min_bet, max_bet FROM markets WHERE id = $1 FOR UPDATE`, marketID,
		).Scan(&status, &minBet, &maxBet)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if domain.MarketStatus(status) != domain.MarketStatusOpen {
			return fmt.Errorf("%w (%s)", domain.ErrMarketNotOpen, status)
		}
		if int64(bet.Amount) < minBet || int64(bet.Amount) > maxBet {
			return fmt.Errorf("%w: %s", domain.ErrAmountOutOfRange, bet.Amount)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bets (id, market_id, user_id, amount, side, placed_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			bet.ID, marketID, bet.UserID, int64(bet.Amount), string(bet.Side), bet.Timestamp,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: append bet to %s: %w", marketID, err)
	}
	return nil
}

// ListBetsByUser joins the user's bets with their markets, newest first.
func (s *MarketStore) ListBetsByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.UserBet, error) {
	query := `
		SELECT b.id, b.market_id, b.user_id, b.amount, b.side, b.placed_at,
			m.title, m.status, m.result
		FROM bets b JOIN markets m ON m.id = b.market_id
		WHERE b.user_id = $1`
	args := []any{userID}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		query += fmt.Sprintf(" AND b.placed_at >= $%d", len(args))
	}
	if opts.Until != nil {
		args = append(args, *opts.Until)
		query += fmt.Sprintf(" AND b.placed_at <= $%d", len(args))
	}
	args = append(args, limitOrAll(opts.Limit), opts.Offset)
	query += fmt.Sprintf(" ORDER BY b.placed_at DESC, b.seq DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.UserBet
	for rows.Next() {
		var (
			b           domain.Bet
			amount      int64
			side, title string
			status      string
			result      *string
		)
		if err := rows.Scan(&b.ID, &b.MarketID, &b.UserID, &amount, &side, &b.Timestamp,
			&title, &status, &result); err != nil {
			return nil, fmt.Errorf("postgres: scan user bet: %w", err)
		}
		b.Amount = domain.Amount(amount)
		b.Side = domain.Side(side)
		var res *domain.Side
		if result != nil {
			r := domain.Side(*result)
			res = &r
		}
		out = append(out, domain.NewUserBet(b, title, domain.MarketStatus(status), res))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s rows: %w", userID, err)
	}
	return out, nil
}

// TransitionStatus is a single conditional UPDATE; the row only changes if
// its current status may move to the target.
func (s *MarketStore) TransitionStatus(ctx context.Context, marketID string, to domain.MarketStatus, result *domain.Side) (domain.Market, error) {
	if to == domain.MarketStatusResolved && result == nil {
		return domain.Market{}, fmt.Errorf("postgres: resolve %s without result: %w", marketID, domain.ErrInvalidTransition)
	}
	var from []string
	for _, st := range domain.TransitionSources(to) {
		from = append(from, string(st))
	}
	var res *string
	if result != nil && to == domain.MarketStatusResolved {
		r := string(*result)
		res = &r
	}

	query := `
		UPDATE markets SET
			status      = $2,
			result      = COALESCE($3, result),
			resolved_at = CASE WHEN $2 = 'resolved' THEN NOW() ELSE resolved_at END
		WHERE id = $1 AND status = ANY($4)
		RETURNING ` + marketCols

	m, err := scanMarket(s.pool.QueryRow(ctx, query, marketID, string(to), res, from))
	if errors.Is(err, pgx.ErrNoRows) {
		var current string
		lookupErr := s.pool.QueryRow(ctx, `SELECT status FROM markets WHERE id = $1`, marketID).Scan(&current)
		if errors.Is(lookupErr, pgx.ErrNoRows) {
			return domain.Market{}, fmt.Errorf("postgres: market %s: %w", marketID, domain.ErrNotFound)
		}
		return domain.Market{}, fmt.Errorf("postgres: market %s %s -> %s: %w", marketID, current, to, domain.ErrInvalidTransition)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: transition market %s: %w", marketID, err)
	}

	bets, err := s.bets(ctx, s.pool, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	m.Bets = bets
	return m, nil
}

// MarkSettled stamps settled_at once on a resolved market.
func (s *MarketStore) MarkSettled(ctx context.Context, marketID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE markets SET settled_at = NOW()
		WHERE id = $1 AND status = 'resolved' AND settled_at IS NULL`, marketID)
	if err != nil {
		return fmt.Errorf("postgres: mark settled %s: %w", marketID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		status  string
		settled *time.Time
	)
	err = s.pool.QueryRow(ctx, `SELECT status, settled_at FROM markets WHERE id = $1`, marketID).Scan(&status, &settled)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("postgres: market %s: %w", marketID, domain.ErrNotFound)
	case err != nil:
		return fmt.Errorf("postgres: mark settled %s: %w", marketID, err)
	case settled != nil:
		return fmt.Errorf("postgres: settle %s: %w", marketID, domain.ErrAlreadySettled)
	default:
		return fmt.Errorf("postgres: settle %s (%s): %w", marketID, status, domain.ErrInvalidState)
	}
}

// ListExpired returns open markets past their closing time.
func (s *MarketStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Market, error) {
	return s.queryMarkets(ctx, "list expired", `
		SELECT `+marketCols+` FROM markets
		WHERE status = 'open' AND closes_at <= $1
		ORDER BY closes_at LIMIT $2`, now, limitOrAll(limit))
}

// ListUnsettled returns resolved markets whose rewards were never recorded.
func (s *MarketStore) ListUnsettled(ctx context.Context, limit int) ([]domain.Market, error) {
	return s.queryMarkets(ctx, "list unsettled", `
		SELECT `+marketCols+` FROM markets
		WHERE status = 'resolved' AND settled_at IS NULL
		ORDER BY id LIMIT $1`, limitOrAll(limit))
}

func (s *MarketStore) queryMarkets(ctx context.Context, op, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return out, nil
}

// limitOrAll maps a non-positive limit to a value LIMIT treats as unbounded.
func limitOrAll(limit int) int64 {
	if limit <= 0 {
		return 1 << 62
	}
	return int64(limit)
}

var _ domain.MarketStore = (*MarketStore)(nil)
