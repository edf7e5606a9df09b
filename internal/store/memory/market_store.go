// Package memory implements the domain store interfaces in process memory.
// It backs single-node deployments and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// marketEntry pairs a market with the mutex that linearizes its bets and
// status changes.
type marketEntry struct {
	mu     sync.Mutex
	market domain.Market
}

// MarketStore implements domain.MarketStore.
type MarketStore struct {
	mu      sync.RWMutex
	markets map[string]*marketEntry
	now     func() time.Time
}

// NewMarketStore creates an empty MarketStore.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		markets: make(map[string]*marketEntry),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MarketStore) entry(id string) (*marketEntry, error) {
	s.mu.RLock()
	e, ok := s.markets[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("memory: market %s: %w", id, domain.ErrNotFound)
	}
	return e, nil
}

// CreateMarket stores a new market. The id must be unused.
func (s *MarketStore) CreateMarket(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("memory: create market %s: %w: duplicate id", m.ID, domain.ErrValidation)
	}
	m.Bets = append([]domain.Bet(nil), m.Bets...)
	s.markets[m.ID] = &marketEntry{market: m}
	return nil
}

// GetMarket returns a copy of the market including its bets.
func (s *MarketStore) GetMarket(_ context.Context, id string) (domain.Market, error) {
	e, err := s.entry(id)
	if err != nil {
		return domain.Market{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneMarket(e.market), nil
}

// ListMarkets returns matching markets, newest first, without bets.
func (s *MarketStore) ListMarkets(_ context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, error) {
	all := s.snapshot(func(m domain.Market) bool { return matches(m, filter, opts) })
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(all) {
			return nil, nil
		}
		all = all[opts.Offset:]
	}
	if opts.Limit > 0 && len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	for i := range all {
		all[i].Bets = nil
	}
	return all, nil
}

// CountMarkets counts markets matching filter.
func (s *MarketStore) CountMarkets(_ context.Context, filter domain.MarketFilter) (int64, error) {
	return int64(len(s.snapshot(func(m domain.Market) bool { return matches(m, filter, domain.ListOpts{}) }))), nil
}

// AppendBet records a bet while holding the market's lock, so it cannot
// interleave with a status transition.
func (s *MarketStore) AppendBet(_ context.Context, marketID string, bet domain.Bet) error {
	e, err := s.entry(marketID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.market.Status != domain.MarketStatusOpen {
		return fmt.Errorf("memory: append bet to %s (%s): %w", marketID, e.market.Status, domain.ErrMarketNotOpen)
	}
	if !e.market.InBetRange(bet.Amount) {
		return fmt.Errorf("memory: append bet %s to %s: %w", bet.Amount, marketID, domain.ErrAmountOutOfRange)
	}
	bet.MarketID = marketID
	e.market.Bets = append(e.market.Bets, bet)
	return nil
}

// ListBetsByUser collects the user's bets from every market.
func (s *MarketStore) ListBetsByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.UserBet, error) {
	var out []domain.UserBet
	for _, m := range s.snapshot(func(domain.Market) bool { return true }) {
		for _, b := range m.Bets {
			if b.UserID != userID {
				continue
			}
			if opts.Since != nil && b.Timestamp.Before(*opts.Since) {
				continue
			}
			if opts.Until != nil && b.Timestamp.After(*opts.Until) {
				continue
			}
			out = append(out, domain.NewUserBet(b, m.Title, m.Status, m.Result))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// TransitionStatus moves the market forward if the state machine allows it.
func (s *MarketStore) TransitionStatus(_ context.Context, marketID string, to domain.MarketStatus, result *domain.Side) (domain.Market, error) {
	e, err := s.entry(marketID)
	if err != nil {
		return domain.Market{}, err
	}
	if to == domain.MarketStatusResolved && result == nil {
		return domain.Market{}, fmt.Errorf("memory: resolve %s without result: %w", marketID, domain.ErrInvalidTransition)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	from := e.market.Status
	if !domain.CanTransition(from, to) {
		return domain.Market{}, fmt.Errorf("memory: market %s %s -> %s: %w", marketID, from, to, domain.ErrInvalidTransition)
	}
	e.market.Status = to
	if to == domain.MarketStatusResolved {
		r := *result
		now := s.now()
		e.market.Result = &r
		e.market.ResolvedAt = &now
	}
	return cloneMarket(e.market), nil
}

// MarkSettled stamps a resolved market as settled exactly once.
func (s *MarketStore) MarkSettled(_ context.Context, marketID string) error {
	e, err := s.entry(marketID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.market.Status != domain.MarketStatusResolved:
		return fmt.Errorf("memory: settle %s (%s): %w", marketID, e.market.Status, domain.ErrInvalidState)
	case e.market.SettledAt != nil:
		return fmt.Errorf("memory: settle %s: %w", marketID, domain.ErrAlreadySettled)
	}
	now := s.now()
	e.market.SettledAt = &now
	return nil
}

// ListExpired returns open markets whose closing time has passed.
func (s *MarketStore) ListExpired(_ context.Context, now time.Time, limit int) ([]domain.Market, error) {
	out := s.snapshot(func(m domain.Market) bool {
		return m.Status == domain.MarketStatusOpen && !m.ClosesAt.After(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ClosesAt.Before(out[j].ClosesAt) })
	return truncate(out, limit), nil
}

// ListUnsettled returns resolved markets that have no recorded rewards yet.
func (s *MarketStore) ListUnsettled(_ context.Context, limit int) ([]domain.Market, error) {
	out := s.snapshot(func(m domain.Market) bool {
		return m.Status == domain.MarketStatusResolved && m.SettledAt == nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return truncate(out, limit), nil
}

func (s *MarketStore) snapshot(keep func(domain.Market) bool) []domain.Market {
	s.mu.RLock()
	entries := make([]*marketEntry, 0, len(s.markets))
	for _, e := range s.markets {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	var out []domain.Market
	for _, e := range entries {
		e.mu.Lock()
		m := cloneMarket(e.market)
		e.mu.Unlock()
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func matches(m domain.Market, f domain.MarketFilter, opts domain.ListOpts) bool {
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	if f.Creator != "" && m.Creator != f.Creator {
		return false
	}
	if opts.Since != nil && m.CreatedAt.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && m.CreatedAt.After(*opts.Until) {
		return false
	}
	return true
}

func truncate(ms []domain.Market, limit int) []domain.Market {
	if limit > 0 && len(ms) > limit {
		return ms[:limit]
	}
	return ms
}

func cloneMarket(m domain.Market) domain.Market {
	m.Bets = append([]domain.Bet(nil), m.Bets...)
	if m.Result != nil {
		r := *m.Result
		m.Result = &r
	}
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		m.ResolvedAt = &t
	}
	if m.SettledAt != nil {
		t := *m.SettledAt
		m.SettledAt = &t
	}
	return m
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
