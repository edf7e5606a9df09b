package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// MarketStore implements domain.MarketStore on SQLite.
type MarketStore struct {
	db *DB
}

// NewMarketStore creates a MarketStore on db.
func NewMarketStore(db *DB) *MarketStore {
	return &MarketStore{db: db}
}

const marketCols = `id, creator, title, description, created_at, closes_at,
	initial_pool, min_bet, max_bet, status, result, resolved_at, settled_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (domain.Market, error) {
	var (
		m                     domain.Market
		createdAt, closesAt   int64
		pool, minBet, maxBet  int64
		status                string
		result                sql.NullString
		resolvedAt, settledAt sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.Creator, &m.Title, &m.Description, &createdAt, &closesAt,
		&pool, &minBet, &maxBet, &status, &result, &resolvedAt, &settledAt)
	if err != nil {
		return domain.Market{}, err
	}
	m.CreatedAt = fromNanos(createdAt)
	m.ClosesAt = fromNanos(closesAt)
	m.InitialPool = domain.Amount(pool)
	m.MinBet = domain.Amount(minBet)
	m.MaxBet = domain.Amount(maxBet)
	m.Status = domain.MarketStatus(status)
	if result.Valid {
		side := domain.Side(result.String)
		m.Result = &side
	}
	m.ResolvedAt = nullTime(resolvedAt)
	m.SettledAt = nullTime(settledAt)
	return m, nil
}

// CreateMarket inserts a market row.
func (s *MarketStore) CreateMarket(ctx context.Context, m domain.Market) error {
	_, err := s.db.db.ExecContext(ctx, `
		INSERT INTO markets (id, creator, title, description, created_at, closes_at,
			initial_pool, min_bet, max_bet, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Creator, m.Title, m.Description, toNanos(m.CreatedAt), toNanos(m.ClosesAt),
		int64(m.InitialPool), int64(m.MinBet), int64(m.MaxBet), string(m.Status))
	if err != nil {
		return fmt.Errorf("sqlite: create market %s: %w", m.ID, err)
	}
	return nil
}

// GetMarket loads a market with its bets.
func (s *MarketStore) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	var m domain.Market
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = getMarket(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: get market %s: %w", id, err)
	}
	return m, nil
}

func getMarket(ctx context.Context, tx *sql.Tx, id string) (domain.Market, error) {
	m, err := scanMarket(tx.QueryRowContext(ctx, `SELECT `+marketCols+` FROM markets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, market_id, user_id, amount, side, placed_at
		FROM bets WHERE market_id = ? ORDER BY seq`, id)
	if err != nil {
		return domain.Market{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			b              domain.Bet
			amount, placed int64
			side           string
		)
		if err := rows.Scan(&b.ID, &b.MarketID, &b.UserID, &amount, &side, &placed); err != nil {
			return domain.Market{}, err
		}
		b.Amount = domain.Amount(amount)
		b.Side = domain.Side(side)
		b.Timestamp = fromNanos(placed)
		m.Bets = append(m.Bets, b)
	}
	return m, rows.Err()
}

// ListMarkets returns markets newest first without their bets.
func (s *MarketStore) ListMarkets(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	where, args := marketWhere(filter, opts)
	query := `SELECT ` + marketCols + ` FROM markets` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, opts.Offset)
	return s.queryMarkets(ctx, "list markets", query, args...)
}

// CountMarkets counts markets matching filter.
func (s *MarketStore) CountMarkets(ctx context.Context, filter domain.MarketFilter) (int64, error) {
	where, args := marketWhere(filter, domain.ListOpts{})
	var n int64
	if err := s.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM markets`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count markets: %w", err)
	}
	return n, nil
}

func marketWhere(filter domain.MarketFilter, opts domain.ListOpts) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Creator != "" {
		conds = append(conds, "creator = ?")
		args = append(args, filter.Creator)
	}
	if opts.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, toNanos(*opts.Since))
	}
	if opts.Until != nil {
		conds = append(conds, "created_at <= ?")
		args = append(args, toNanos(*opts.Until))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// AppendBet checks status and bounds and inserts the bet in one transaction.
func (s *MarketStore) AppendBet(ctx context.Context, marketID string, bet domain.Bet) error {
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		var (
			status         string
			minBet, maxBet int64
		)
		err := tx.QueryRowContext(ctx, `SELECT status, min_bet, max_bet FROM markets WHERE id = ?`, marketID).
			Scan(&status, &minBet, &maxBet)
		if errors.Is(err, sql.ErrNoRows) {
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
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bets (id, market_id, user_id, amount, side, placed_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			bet.ID, marketID, bet.UserID, int64(bet.Amount), string(bet.Side), toNanos(bet.Timestamp))
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: append bet to %s: %w", marketID, err)
	}
	return nil
}

// ListBetsByUser joins the user's bets with their markets, newest first.
func (s *MarketStore) ListBetsByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.UserBet, error) {
	conds := []string{"b.user_id = ?"}
	args := []any{userID}
	if opts.Since != nil {
		conds = append(conds, "b.placed_at >= ?")
		args = append(args, toNanos(*opts.Since))
	}
	if opts.Until != nil {
		conds = append(conds, "b.placed_at <= ?")
		args = append(args, toNanos(*opts.Until))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, opts.Offset)

	rows, err := s.db.db.QueryContext(ctx, `
		SELECT b.id, b.market_id, b.user_id, b.amount, b.side, b.placed_at,
			m.title, m.status, m.result
		FROM bets b JOIN markets m ON m.id = b.market_id
		WHERE `+strings.Join(conds, " AND ")+`
		ORDER BY b.placed_at DESC, b.seq DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list bets for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []domain.UserBet
	for rows.Next() {
		var (
			b              domain.Bet
			amount, placed int64
			side, title    string
			status         string
			result         sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.MarketID, &b.UserID, &amount, &side, &placed,
			&title, &status, &result); err != nil {
			return nil, fmt.Errorf("sqlite: scan user bet: %w", err)
		}
		b.Amount = domain.Amount(amount)
		b.Side = domain.Side(side)
		b.Timestamp = fromNanos(placed)
		var res *domain.Side
		if result.Valid {
			r := domain.Side(result.String)
			res = &r
		}
		out = append(out, domain.NewUserBet(b, title, domain.MarketStatus(status), res))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list bets for %s rows: %w", userID, err)
	}
	return out, nil
}

// TransitionStatus applies a conditional UPDATE and returns the new state.
func (s *MarketStore) TransitionStatus(ctx context.Context, marketID string, to domain.MarketStatus, result *domain.Side) (domain.Market, error) {
	if to == domain.MarketStatusResolved && result == nil {
		return domain.Market{}, fmt.Errorf("sqlite: resolve %s without result: %w", marketID, domain.ErrInvalidTransition)
	}
	sources := domain.TransitionSources(to)
	if len(sources) == 0 {
		return domain.Market{}, fmt.Errorf("sqlite: market %s -> %s: %w", marketID, to, domain.ErrInvalidTransition)
	}
	placeholders := make([]string, len(sources))
	args := []any{string(to), nil, nil, marketID}
	if to == domain.MarketStatusResolved {
		args[1] = string(*result)
		args[2] = toNanos(time.Now())
	}
	for i, st := range sources {
		placeholders[i] = "?"
		args = append(args, string(st))
	}

	var m domain.Market
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE markets SET
				status      = ?,
				result      = COALESCE(?, result),
				resolved_at = COALESCE(?, resolved_at)
			WHERE id = ? AND status IN (`+strings.Join(placeholders, ", ")+`)`, args...)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		current, err := getMarket(ctx, tx, marketID)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%s -> %s: %w", current.Status, to, domain.ErrInvalidTransition)
		}
		m = current
		return nil
	})
	if err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: transition market %s: %w", marketID, err)
	}
	return m, nil
}

// MarkSettled stamps settled_at once on a resolved market.
func (s *MarketStore) MarkSettled(ctx context.Context, marketID string) error {
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		var (
			status  string
			settled sql.NullInt64
		)
		err := tx.QueryRowContext(ctx, `SELECT status, settled_at FROM markets WHERE id = ?`, marketID).Scan(&status, &settled)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.ErrNotFound
		case err != nil:
			return err
		case domain.MarketStatus(status) != domain.MarketStatusResolved:
			return fmt.Errorf("%w (%s)", domain.ErrInvalidState, status)
		case settled.Valid:
			return domain.ErrAlreadySettled
		}
		_, err = tx.ExecContext(ctx, `UPDATE markets SET settled_at = ? WHERE id = ?`, toNanos(time.Now()), marketID)
		return err
	})
	if err != nil {
		return fmt.Errorf("sqlite: mark settled %s: %w", marketID, err)
	}
	return nil
}

// ListExpired returns open markets past their closing time.
func (s *MarketStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMarkets(ctx, "list expired", `
		SELECT `+marketCols+` FROM markets
		WHERE status = 'open' AND closes_at <= ?
		ORDER BY closes_at LIMIT ?`, toNanos(now), limit)
}

// ListUnsettled returns resolved markets without settled_at.
func (s *MarketStore) ListUnsettled(ctx context.Context, limit int) ([]domain.Market, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryMarkets(ctx, "list unsettled", `
		SELECT `+marketCols+` FROM markets
		WHERE status = 'resolved' AND settled_at IS NULL
		ORDER BY id LIMIT ?`, limit)
}

func (s *MarketStore) queryMarkets(ctx context.Context, op, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %s: scan: %w", op, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: %s rows: %w", op, err)
	}
	return out, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
