package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/ledger"
)

// NoWinnerPolicy decides what happens to a pool nobody backed the result of.
type NoWinnerPolicy string

const (
	// NoWinnerHold leaves the pool undistributed for an operator to handle.
	NoWinnerHold NoWinnerPolicy = "hold"
	// NoWinnerRefund returns every stake and the seed through the BalanceSink.
	NoWinnerRefund NoWinnerPolicy = "refund"
)

// DefaultLockTTL bounds how long one settlement may hold its market lock.
const DefaultLockTTL = 30 * time.Second

// SettlementConfig tunes the orchestrator.
type SettlementConfig struct {
	// AutoCredit claims and credits every reward as soon as it is recorded.
	AutoCredit bool
	NoWinner   NoWinnerPolicy
	LockTTL    time.Duration
}

// SettlementDeps are the collaborators of a SettlementService. Markets,
// Rewards and Locks are required.
type SettlementDeps struct {
	Markets  domain.MarketStore
	Rewards  domain.RewardStore
	Locks    Locker
	Cache    domain.MarketCache
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Sink     BalanceSink
	Archiver Archiver
	Notifier Notifier
	Metrics  Metrics
}

// SettlementService resolves markets, records the resulting rewards and
// pays them out on claim.
type SettlementService struct {
	markets  domain.MarketStore
	rewards  domain.RewardStore
	locks    Locker
	cache    domain.MarketCache
	sink     BalanceSink
	archiver Archiver
	events   *eventPublisher
	metrics  Metrics
	cfg      SettlementConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(deps SettlementDeps, cfg SettlementConfig, logger *slog.Logger) *SettlementService {
	if cfg.NoWinner == "" {
		cfg.NoWinner = NoWinnerHold
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	m := deps.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	logger = logger.With(slog.String("component", "settlement_service"))
	return &SettlementService{
		markets:  deps.Markets,
		rewards:  deps.Rewards,
		locks:    deps.Locks,
		cache:    deps.Cache,
		sink:     deps.Sink,
		archiver: deps.Archiver,
		events: &eventPublisher{
			bus:      deps.Bus,
			audit:    deps.Audit,
			notifier: deps.Notifier,
			logger:   logger,
		},
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

func settleLockKey(marketID string) string { return "settle:" + marketID }

// ResolveAndSettle records the result of a market and turns the pool into
// claimable rewards. A market that fails after resolving stays resolved and
// unsettled; Resettle picks it up.
func (s *SettlementService) ResolveAndSettle(ctx context.Context, marketID string, result domain.Side) (st domain.Settlement, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("resolve_and_settle", err, started) }()

	if result != domain.SideYes && result != domain.SideNo {
		return domain.Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w: result %q must be yes or no",
			marketID, domain.ErrValidation, result)
	}

	unlock, err := s.lock(ctx, marketID)
	if err != nil {
		return domain.Settlement{}, err
	}
	defer unlock()

	m, err := s.markets.TransitionStatus(ctx, marketID, domain.MarketStatusResolved, &result)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: resolve %s: %w", marketID, err)
	}
	s.invalidate(ctx, marketID)
	s.logger.InfoContext(ctx, "settlement_service: market resolved",
		slog.String("market_id", marketID),
		slog.String("result", string(result)),
		slog.Int("bets", len(m.Bets)),
	)

	return s.settle(ctx, m)
}

// Resettle retries settlement of a market that resolved but never had its
// rewards recorded.
func (s *SettlementService) Resettle(ctx context.Context, marketID string) (st domain.Settlement, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("resettle", err, started) }()

	unlock, err := s.lock(ctx, marketID)
	if err != nil {
		return domain.Settlement{}, err
	}
	defer unlock()

	m, err := s.markets.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: resettle %s: %w", marketID, err)
	}
	if m.Status != domain.MarketStatusResolved {
		return domain.Settlement{}, fmt.Errorf("settlement_service: resettle %s: status %s: %w",
			marketID, m.Status, domain.ErrInvalidState)
	}
	if m.SettledAt != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: resettle %s: %w", marketID, domain.ErrAlreadySettled)
	}
	return s.settle(ctx, m)
}

func (s *SettlementService) lock(ctx context.Context, marketID string) (func(), error) {
	unlock, err := s.locks.Acquire(ctx, settleLockKey(marketID), s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("settlement_service: market %s is being settled: %w", marketID, domain.ErrInvalidTransition)
		}
		return nil, fmt.Errorf("settlement_service: lock market %s: %w", marketID, err)
	}
	return unlock, nil
}

// settle runs the payout computation on a resolved market, records the
// rewards, stamps the market and then performs the side effects.
func (s *SettlementService) settle(ctx context.Context, m domain.Market) (domain.Settlement, error) {
	st, err := ledger.ComputePayouts(m)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: compute payouts for %s: %w", m.ID, err)
	}

	rewards := st.Rewards(s.now().UTC())
	if len(rewards) > 0 {
		if err := s.rewards.RecordRewards(ctx, rewards); err != nil {
			return domain.Settlement{}, fmt.Errorf("settlement_service: record rewards for %s: %w", m.ID, err)
		}
	}
	if err := s.markets.MarkSettled(ctx, m.ID); err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: mark %s settled: %w", m.ID, err)
	}
	s.invalidate(ctx, m.ID)
	s.metrics.ObserveSettlement(st)

	s.logger.InfoContext(ctx, "settlement_service: market settled",
		slog.String("market_id", m.ID),
		slog.String("total_pool", st.TotalPool.String()),
		slog.String("winner_stake", st.WinnerStake.String()),
		slog.Int("winners", len(st.Payouts)),
	)

	switch {
	case st.NoWinner():
		s.handleNoWinner(ctx, m, st)
	case s.cfg.AutoCredit && s.sink != nil:
		for _, r := range rewards {
			s.autoCredit(ctx, r)
		}
	}

	s.events.emit(ctx, domain.ChannelSettlements, domain.LedgerEvent{
		Type:     domain.EventMarketResolved,
		MarketID: m.ID,
		Amount:   amountPtr(st.TotalPool),
		Side:     st.Result,
		Payload:  st,
	}, map[string]any{
		"market_id":     m.ID,
		"result":        string(st.Result),
		"total_pool":    st.TotalPool.String(),
		"winner_stake":  st.WinnerStake.String(),
		"winners":       len(st.Payouts),
		"undistributed": st.Undistributed.String(),
	})
	s.archive(ctx, m, st)
	return st, nil
}

func (s *SettlementService) handleNoWinner(ctx context.Context, m domain.Market, st domain.Settlement) {
	if s.cfg.NoWinner != NoWinnerRefund || s.sink == nil {
		s.logger.WarnContext(ctx, "settlement_service: no winners, pool held",
			slog.String("market_id", m.ID),
			slog.String("undistributed", st.Undistributed.String()),
		)
		return
	}

	for _, r := range ledger.ComputeRefunds(m) {
		ref := "refund:" + m.ID + ":" + r.UserID
		if r.Seed {
			ref = "refund-seed:" + m.ID
		}
		if err := s.sink.Credit(ctx, r.UserID, r.Amount, ref); err != nil {
			s.creditFailed(ctx, m.ID, r.UserID, r.Amount, ref, err)
		}
	}
	s.logger.InfoContext(ctx, "settlement_service: no winners, pool refunded",
		slog.String("market_id", m.ID),
		slog.String("amount", st.Undistributed.String()),
	)
}

func (s *SettlementService) autoCredit(ctx context.Context, r domain.ClaimableReward) {
	amount, err := s.rewards.Claim(ctx, r.UserID, r.MarketID)
	if err != nil {
		if !errors.Is(err, domain.ErrAlreadyClaimed) {
			s.logger.WarnContext(ctx, "settlement_service: auto-credit claim failed",
				slog.String("market_id", r.MarketID),
				slog.String("user_id", r.UserID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	s.payout(ctx, r.UserID, r.MarketID, amount)
}

// Claim marks a user's reward as claimed and returns its amount. When the
// sink is wired the amount is credited here, including rewards the
// auto-credit pass could not claim.
func (s *SettlementService) Claim(ctx context.Context, userID, marketID string) (amount domain.Amount, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("claim", err, started) }()

	userID = strings.TrimSpace(userID)
	if userID == "" || marketID == "" {
		return 0, fmt.Errorf("settlement_service: claim: %w: user and market are required", domain.ErrValidation)
	}

	amount, err = s.rewards.Claim(ctx, userID, marketID)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: claim %s/%s: %w", marketID, userID, err)
	}

	if s.sink != nil {
		s.payout(ctx, userID, marketID, amount)
	} else {
		s.claimed(ctx, userID, marketID, amount)
	}
	return amount, nil
}

// payout credits a freshly claimed reward. The claim stands even if the
// credit fails; the operator is alerted and can replay the reference.
func (s *SettlementService) payout(ctx context.Context, userID, marketID string, amount domain.Amount) {
	ref := "reward:" + marketID + ":" + userID
	if err := s.sink.Credit(ctx, userID, amount, ref); err != nil {
		s.creditFailed(ctx, marketID, userID, amount, ref, err)
	}
	s.claimed(ctx, userID, marketID, amount)
}

func (s *SettlementService) claimed(ctx context.Context, userID, marketID string, amount domain.Amount) {
	s.metrics.ObserveClaim(amount)
	s.logger.InfoContext(ctx, "settlement_service: reward claimed",
		slog.String("market_id", marketID),
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
	)
	s.events.emit(ctx, domain.ChannelClaims, domain.LedgerEvent{
		Type:     domain.EventRewardClaimed,
		MarketID: marketID,
		UserID:   userID,
		Amount:   amountPtr(amount),
	}, map[string]any{
		"market_id": marketID,
		"user_id":   userID,
		"amount":    amount.String(),
	})
}

func (s *SettlementService) creditFailed(ctx context.Context, marketID, userID string, amount domain.Amount, ref string, err error) {
	s.metrics.ObserveCreditFailure()
	s.logger.ErrorContext(ctx, "settlement_service: balance credit failed",
		slog.String("market_id", marketID),
		slog.String("user_id", userID),
		slog.String("amount", amount.String()),
		slog.String("reference", ref),
		slog.String("error", err.Error()),
	)
	s.events.emit(ctx, domain.ChannelClaims, domain.LedgerEvent{
		Type:     domain.EventCreditFailed,
		MarketID: marketID,
		UserID:   userID,
		Amount:   amountPtr(amount),
		Payload:  "reference " + ref + ": " + err.Error(),
	}, map[string]any{
		"market_id": marketID,
		"user_id":   userID,
		"amount":    amount.String(),
		"reference": ref,
		"error":     err.Error(),
	})
}

func (s *SettlementService) archive(ctx context.Context, m domain.Market, st domain.Settlement) {
	if s.archiver == nil {
		return
	}
	if m.SettledAt == nil {
		at := s.now().UTC()
		m.SettledAt = &at
	}
	path, err := s.archiver.ArchiveSettlement(ctx, m, st)
	if err != nil {
		s.logger.WarnContext(ctx, "settlement_service: archive settlement failed",
			slog.String("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.DebugContext(ctx, "settlement_service: settlement archived",
		slog.String("market_id", m.ID),
		slog.String("path", path),
	)
}

// ListRewards returns a user's rewards, newest first.
func (s *SettlementService) ListRewards(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.ClaimableReward, error) {
	rewards, err := s.rewards.ListByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: list rewards for %s: %w", userID, err)
	}
	return rewards, nil
}

// MarketRewards returns every reward recorded for a market.
func (s *SettlementService) MarketRewards(ctx context.Context, marketID string) ([]domain.ClaimableReward, error) {
	rewards, err := s.rewards.ListByMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: list rewards for market %s: %w", marketID, err)
	}
	return rewards, nil
}

// Balance reports what the balance book has credited to a user.
func (s *SettlementService) Balance(ctx context.Context, userID string) (domain.Amount, error) {
	book, ok := s.sink.(domain.BalanceBook)
	if !ok {
		return 0, fmt.Errorf("settlement_service: balance: %w: balances are not tracked", domain.ErrNotFound)
	}
	amount, err := book.Balance(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("settlement_service: balance for %s: %w", userID, err)
	}
	return amount, nil
}

func (s *SettlementService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}
