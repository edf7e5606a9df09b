package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketledger/internal/cache/local"
	"github.com/alanyoungcy/marketledger/internal/domain"
	"github.com/alanyoungcy/marketledger/internal/store/memory"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	markets *memory.MarketStore
	rewards *memory.RewardStore
	audit   *memory.AuditStore
	book    *memory.BalanceBook
	bus     *local.SignalBus
	cache   *local.MarketCache
	market  *MarketService
	settle  *SettlementService
}

type harnessOpt func(*SettlementDeps, *SettlementConfig)

func withSink(sink BalanceSink) harnessOpt {
	return func(d *SettlementDeps, _ *SettlementConfig) { d.Sink = sink }
}

func withConfig(cfg SettlementConfig) harnessOpt {
	return func(_ *SettlementDeps, c *SettlementConfig) { *c = cfg }
}

func withLocks(l Locker) harnessOpt {
	return func(d *SettlementDeps, _ *SettlementConfig) { d.Locks = l }
}

func withArchiver(a Archiver) harnessOpt {
	return func(d *SettlementDeps, _ *SettlementConfig) { d.Archiver = a }
}

func withMetrics(m Metrics) harnessOpt {
	return func(d *SettlementDeps, _ *SettlementConfig) { d.Metrics = m }
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()
	h := &harness{
		markets: memory.NewMarketStore(),
		rewards: memory.NewRewardStore(),
		audit:   memory.NewAuditStore(),
		book:    memory.NewBalanceBook(),
		bus:     local.NewSignalBus(),
		cache:   local.NewMarketCache(64, time.Minute),
	}
	h.market = NewMarketService(MarketDeps{
		Markets: h.markets,
		Cache:   h.cache,
		Bus:     h.bus,
		Audit:   h.audit,
	}, DefaultMarketLimits(), quietLogger())
	h.market.now = func() time.Time { return testNow }

	deps := SettlementDeps{
		Markets: h.markets,
		Rewards: h.rewards,
		Locks:   local.NewLockManager(),
		Cache:   h.cache,
		Bus:     h.bus,
		Audit:   h.audit,
	}
	var cfg SettlementConfig
	for _, o := range opts {
		o(&deps, &cfg)
	}
	h.settle = NewSettlementService(deps, cfg, quietLogger())
	h.settle.now = func() time.Time { return testNow }
	return h
}

// seed opens a market with a 1.0 pool and 0.01..10 bet bounds.
func (h *harness) seed(t *testing.T) domain.Market {
	t.Helper()
	m, err := h.market.CreateMarket(context.Background(), CreateMarketInput{
		Creator:     "creator",
		Title:       "Will it rain tomorrow?",
		Description: "Resolves yes if any rain is recorded.",
		ClosesAt:    testNow.Add(48 * time.Hour),
		InitialPool: domain.MustAmount("1"),
		MinBet:      domain.MustAmount("0.01"),
		MaxBet:      domain.MustAmount("10"),
	})
	require.NoError(t, err)
	return m
}

func (h *harness) bet(t *testing.T, marketID, user, amount string, side domain.Side) {
	t.Helper()
	_, err := h.market.PlaceBet(context.Background(), marketID, PlaceBetInput{
		UserID: user,
		Amount: domain.MustAmount(amount),
		Side:   side,
	})
	require.NoError(t, err)
}

// scenarioMarket is the reference market: 1.0 seed, alice 0.5 yes,
// bob 0.3 no, carol 0.2 yes.
func (h *harness) scenarioMarket(t *testing.T) domain.Market {
	t.Helper()
	m := h.seed(t)
	h.bet(t, m.ID, "alice", "0.5", domain.SideYes)
	h.bet(t, m.ID, "bob", "0.3", domain.SideNo)
	h.bet(t, m.ID, "carol", "0.2", domain.SideYes)
	return m
}
