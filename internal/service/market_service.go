package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// MarketLimits bounds what a creator may configure.
type MarketLimits struct {
	MinInitialPool domain.Amount
	MaxInitialPool domain.Amount
	MinBetAmount   domain.Amount
	MaxBetAmount   domain.Amount
	MinDuration    time.Duration
	MaxDuration    time.Duration
}

// DefaultMarketLimits: pool 0.1..100, bets 0.001..10, lifetime 1h..1y.
func DefaultMarketLimits() MarketLimits {
	return MarketLimits{
		MinInitialPool: domain.MustAmount("0.1"),
		MaxInitialPool: domain.MustAmount("100"),
		MinBetAmount:   domain.MustAmount("0.001"),
		MaxBetAmount:   domain.MustAmount("10"),
		MinDuration:    time.Hour,
		MaxDuration:    365 * 24 * time.Hour,
	}
}

// CreateMarketInput is the request to open a new market.
type CreateMarketInput struct {
	Creator     string        `json:"creator" validate:"required,max=128"`
	Title       string        `json:"title" validate:"required,max=200"`
	Description string        `json:"description" validate:"required,max=2000"`
	ClosesAt    time.Time     `json:"closes_at" validate:"required"`
	InitialPool domain.Amount `json:"initial_pool" validate:"gt=0"`
	MinBet      domain.Amount `json:"min_bet" validate:"gt=0"`
	MaxBet      domain.Amount `json:"max_bet" validate:"gtfield=MinBet"`
}

// PlaceBetInput is the request to stake on one side of a market.
type PlaceBetInput struct {
	UserID string        `json:"user_id" validate:"required,max=128"`
	Amount domain.Amount `json:"amount" validate:"gt=0"`
	Side   domain.Side   `json:"side" validate:"oneof=yes no"`
}

// MarketDeps are the collaborators of a MarketService. Cache, Bus, Audit
// and Notifier are optional.
type MarketDeps struct {
	Markets  domain.MarketStore
	Cache    domain.MarketCache
	Bus      domain.SignalBus
	Audit    domain.AuditStore
	Notifier Notifier
	Metrics  Metrics
}

// MarketService creates markets, accepts bets and closes markets.
type MarketService struct {
	markets  domain.MarketStore
	cache    domain.MarketCache
	events   *eventPublisher
	metrics  Metrics
	limits   MarketLimits
	validate *validator.Validate
	now      func() time.Time
	logger   *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(deps MarketDeps, limits MarketLimits, logger *slog.Logger) *MarketService {
	logger = logger.With(slog.String("component", "market_service"))
	m := deps.Metrics
	if m == nil {
		m = noopMetrics{}
	}
	return &MarketService{
		markets: deps.Markets,
		cache:   deps.Cache,
		events: &eventPublisher{
			bus:      deps.Bus,
			audit:    deps.Audit,
			notifier: deps.Notifier,
			logger:   logger,
		},
		metrics:  m,
		limits:   limits,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger,
	}
}

// CreateMarket validates in against the limits and opens a new market.
func (s *MarketService) CreateMarket(ctx context.Context, in CreateMarketInput) (m domain.Market, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("create_market", err, started) }()

	in.Creator = strings.TrimSpace(in.Creator)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	now := s.now().UTC()
	if err := s.checkCreate(in, now); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	m = domain.Market{
		ID:          uuid.NewString(),
		Creator:     in.Creator,
		Title:       in.Title,
		Description: in.Description,
		CreatedAt:   now,
		ClosesAt:    in.ClosesAt.UTC(),
		InitialPool: in.InitialPool,
		MinBet:      in.MinBet,
		MaxBet:      in.MaxBet,
		Status:      domain.MarketStatusOpen,
		Bets:        []domain.Bet{},
	}
	if err := s.markets.CreateMarket(ctx, m); err != nil {
		return domain.Market{}, fmt.Errorf("market_service: create market: %w", err)
	}

	s.logger.InfoContext(ctx, "market_service: market created",
		slog.String("market_id", m.ID),
		slog.String("creator", m.Creator),
		slog.String("initial_pool", m.InitialPool.String()),
	)
	s.events.emit(ctx, domain.ChannelMarkets, domain.LedgerEvent{
		Type:     domain.EventMarketCreated,
		MarketID: m.ID,
		UserID:   m.Creator,
		Amount:   amountPtr(m.InitialPool),
		At:       now,
	}, map[string]any{
		"market_id":    m.ID,
		"creator":      m.Creator,
		"initial_pool": m.InitialPool.String(),
		"closes_at":    m.ClosesAt,
	})
	return m, nil
}

func (s *MarketService) checkCreate(in CreateMarketInput, now time.Time) error {
	if err := s.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, describe(err))
	}

	var problems []string
	l := s.limits
	if in.InitialPool < l.MinInitialPool || in.InitialPool > l.MaxInitialPool {
		problems = append(problems, fmt.Sprintf("initial pool must be between %s and %s", l.MinInitialPool, l.MaxInitialPool))
	}
	if in.MinBet < l.MinBetAmount || in.MaxBet > l.MaxBetAmount {
		problems = append(problems, fmt.Sprintf("bet bounds must be between %s and %s", l.MinBetAmount, l.MaxBetAmount))
	}
	// The minimum duration itself is allowed.
	if d := in.ClosesAt.Sub(now); d < l.MinDuration || d > l.MaxDuration {
		problems = append(problems, fmt.Sprintf("market must close between %s and %s from now", l.MinDuration, l.MaxDuration))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// PlaceBet records a stake on an open market whose closing time has not
// passed.
func (s *MarketService) PlaceBet(ctx context.Context, marketID string, in PlaceBetInput) (bet domain.Bet, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("place_bet", err, started) }()

	in.UserID = strings.TrimSpace(in.UserID)
	if err := s.validate.Struct(in); err != nil {
		return domain.Bet{}, fmt.Errorf("market_service: place bet: %w: %s", domain.ErrValidation, describe(err))
	}

	m, err := s.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Bet{}, err
	}
	now := s.now().UTC()
	if !now.Before(m.ClosesAt) {
		return domain.Bet{}, fmt.Errorf("market_service: place bet on %s: betting closed at %s: %w",
			marketID, m.ClosesAt.Format(time.RFC3339), domain.ErrMarketNotOpen)
	}

	bet = domain.Bet{
		ID:        uuid.NewString(),
		MarketID:  marketID,
		UserID:    in.UserID,
		Amount:    in.Amount,
		Side:      in.Side,
		Timestamp: now,
	}
	if err := s.markets.AppendBet(ctx, marketID, bet); err != nil {
		return domain.Bet{}, fmt.Errorf("market_service: place bet on %s: %w", marketID, err)
	}
	s.invalidate(ctx, marketID)

	s.logger.InfoContext(ctx, "market_service: bet placed",
		slog.String("market_id", marketID),
		slog.String("user_id", bet.UserID),
		slog.String("side", string(bet.Side)),
		slog.String("amount", bet.Amount.String()),
	)
	s.events.emit(ctx, domain.ChannelBets, domain.LedgerEvent{
		Type:     domain.EventBetPlaced,
		MarketID: marketID,
		UserID:   bet.UserID,
		Amount:   amountPtr(bet.Amount),
		Side:     bet.Side,
		Payload:  bet,
		At:       now,
	}, map[string]any{
		"market_id": marketID,
		"bet_id":    bet.ID,
		"user_id":   bet.UserID,
		"side":      string(bet.Side),
		"amount":    bet.Amount.String(),
	})
	return bet, nil
}

// GetMarket reads through the cache.
func (s *MarketService) GetMarket(ctx context.Context, id string) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: cache get failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	m, err := s.markets.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %s: %w", id, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, m); err != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.String("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return m, nil
}

// ListMarkets returns one page of markets and the total matching count.
func (s *MarketService) ListMarkets(ctx context.Context, filter domain.MarketFilter, opts domain.ListOpts) ([]domain.Market, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("market_service: list markets: %w: unknown status %q", domain.ErrValidation, filter.Status)
	}
	markets, err := s.markets.ListMarkets(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: list markets: %w", err)
	}
	total, err := s.markets.CountMarkets(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("market_service: count markets: %w", err)
	}
	return markets, total, nil
}

// ListUserBets returns a user's bets across markets with their outcomes,
// newest first.
func (s *MarketService) ListUserBets(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.UserBet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("market_service: list bets: %w: user is required", domain.ErrValidation)
	}
	bets, err := s.markets.ListBetsByUser(ctx, userID, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list bets for %s: %w", userID, err)
	}
	return bets, nil
}

// CloseMarket stops betting on an open market.
func (s *MarketService) CloseMarket(ctx context.Context, id string) (m domain.Market, err error) {
	started := time.Now()
	defer func() { s.metrics.ObserveOperation("close_market", err, started) }()

	m, err = s.markets.TransitionStatus(ctx, id, domain.MarketStatusClosed, nil)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: close market %s: %w", id, err)
	}
	s.invalidate(ctx, id)

	s.logger.InfoContext(ctx, "market_service: market closed",
		slog.String("market_id", id),
		slog.Int("bets", len(m.Bets)),
	)
	s.events.emit(ctx, domain.ChannelMarkets, domain.LedgerEvent{
		Type:     domain.EventMarketClosed,
		MarketID: id,
		Amount:   amountPtr(m.TotalPool()),
	}, map[string]any{
		"market_id":  id,
		"total_pool": m.TotalPool().String(),
	})
	return m, nil
}

func (s *MarketService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.String("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// describe flattens validator errors into "field: rule" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
