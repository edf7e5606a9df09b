package ledger

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

const epsilon = 1e-6

func resolvedMarket(result domain.Side, seed string, bets ...domain.Bet) domain.Market {
	return domain.Market{
		ID:          "m1",
		Creator:     "creator",
		InitialPool: domain.MustAmount(seed),
		MinBet:      domain.MustAmount("0.01"),
		MaxBet:      domain.MustAmount("10"),
		Status:      domain.MarketStatusResolved,
		Result:      &result,
		Bets:        bets,
	}
}

func bet(user, amount string, side domain.Side) domain.Bet {
	return domain.Bet{UserID: user, Amount: domain.MustAmount(amount), Side: side}
}

func payoutFor(t *testing.T, s domain.Settlement, user string) domain.Amount {
	t.Helper()
	for _, p := range s.Payouts {
		if p.UserID == user {
			return p.Amount
		}
	}
	t.Fatalf("no payout for %s", user)
	return 0
}

func sumPayouts(s domain.Settlement) domain.Amount {
	var total domain.Amount
	for _, p := range s.Payouts {
		total += p.Amount
	}
	return total
}

func TestComputePayouts_ProportionalToStake(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(domain.SideYes, "1.0",
		bet("alice", "0.5", domain.SideYes),
		bet("bob", "0.3", domain.SideNo),
		bet("carol", "0.2", domain.SideYes),
	)

	s, err := ComputePayouts(m)
	require.NoError(t, err)

	assert.Equal(t, domain.MustAmount("2"), s.TotalPool)
	assert.Equal(t, domain.MustAmount("0.7"), s.WinnerStake)
	require.Len(t, s.Payouts, 2)
	assert.InDelta(t, 1.4286, payoutFor(t, s, "alice").Float64(), 1e-4)
	assert.InDelta(t, 0.5714, payoutFor(t, s, "carol").Float64(), 1e-4)
	assert.Equal(t, s.TotalPool, sumPayouts(s))
	assert.Zero(t, s.Undistributed)
}

func TestComputePayouts_SoleWinnerTakesPool(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(domain.SideNo, "1.0",
		bet("alice", "0.5", domain.SideYes),
		bet("bob", "0.3", domain.SideNo),
		bet("carol", "0.2", domain.SideYes),
	)

	s, err := ComputePayouts(m)
	require.NoError(t, err)
	require.Len(t, s.Payouts, 1)
	assert.Equal(t, "bob", s.Payouts[0].UserID)
	assert.Equal(t, domain.MustAmount("2"), s.Payouts[0].Amount)
}

func TestComputePayouts_NoWinner(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(domain.SideNo, "1.0",
		bet("alice", "0.5", domain.SideYes),
		bet("carol", "0.2", domain.SideYes),
	)

	s, err := ComputePayouts(m)
	require.NoError(t, err)
	assert.Empty(t, s.Payouts)
	assert.True(t, s.NoWinner())
	assert.Equal(t, domain.MustAmount("1.7"), s.Undistributed)
	assert.Empty(t, s.Rewards(time.Now()))
}

func TestComputePayouts_AggregatesPerUser(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(domain.SideYes, "1.0",
		bet("alice", "0.25", domain.SideYes),
		bet("bob", "0.3", domain.SideNo),
		bet("alice", "0.25", domain.SideYes),
		bet("carol", "0.2", domain.SideYes),
	)

	s, err := ComputePayouts(m)
	require.NoError(t, err)
	require.Len(t, s.Payouts, 2)
	assert.Equal(t, "alice", s.Payouts[0].UserID)
	assert.Equal(t, 2, s.Payouts[0].BetCount)
	assert.Equal(t, domain.MustAmount("0.5"), s.Payouts[0].Stake)
	assert.InDelta(t, 1.4286, s.Payouts[0].Amount.Float64(), 1e-4)
	assert.Equal(t, s.TotalPool, sumPayouts(s))
}

func TestComputePayouts_RequiresResolvedMarket(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(domain.SideYes, "1.0", bet("alice", "0.5", domain.SideYes))
	m.Status = domain.MarketStatusClosed
	_, err := ComputePayouts(m)
	require.ErrorIs(t, err, domain.ErrInvalidState)

	m.Status = domain.MarketStatusResolved
	m.Result = nil
	_, err = ComputePayouts(m)
	require.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestComputePayouts_Deterministic(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(domain.SideYes, "0.1",
		bet("u3", "0.1", domain.SideYes),
		bet("u1", "0.1", domain.SideYes),
		bet("u2", "0.1", domain.SideYes),
		bet("x", "0.05", domain.SideNo),
	)

	first, err := ComputePayouts(m)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := ComputePayouts(m)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	// 0.45 split three ways leaves no dust; every share is equal.
	for _, p := range first.Payouts {
		assert.Equal(t, domain.MustAmount("0.15"), p.Amount)
	}
}

func TestComputePayouts_Conservation(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		result := domain.SideYes
		if rng.Intn(2) == 0 {
			result = domain.SideNo
		}
		m := resolvedMarket(result, fmt.Sprintf("%d.%03d", rng.Intn(5), rng.Intn(1000)))
		for i := 0; i < 1+rng.Intn(40); i++ {
			side := domain.SideYes
			if rng.Intn(3) == 0 {
				side = domain.SideNo
			}
			m.Bets = append(m.Bets, domain.Bet{
				UserID: fmt.Sprintf("u%d", rng.Intn(12)),
				Amount: domain.Amount(1 + rng.Int63n(10*domain.OctasPerCoin)),
				Side:   side,
			})
		}

		s, err := ComputePayouts(m)
		require.NoError(t, err)

		if s.NoWinner() {
			assert.Empty(t, s.Payouts)
			assert.Equal(t, m.TotalPool(), s.Undistributed)
			continue
		}
		assert.Equal(t, m.TotalPool(), sumPayouts(s), "round %d", round)
		assert.InDelta(t, m.TotalPool().Float64(), sumPayouts(s).Float64(), epsilon)
		for _, p := range s.Payouts {
			ideal := p.Stake.Float64() / s.WinnerStake.Float64() * s.TotalPool.Float64()
			assert.InDelta(t, ideal, p.Amount.Float64(), 2e-8, "round %d user %s", round, p.UserID)
		}
	}
}

func TestComputeRefunds(t *testing.T) {
	t.Parallel()

	m := resolvedMarket(domain.SideNo, "1.0",
		bet("carol", "0.2", domain.SideYes),
		bet("alice", "0.5", domain.SideYes),
		bet("alice", "0.1", domain.SideYes),
	)

	refunds := ComputeRefunds(m)
	require.Len(t, refunds, 3)
	assert.Equal(t, domain.Refund{UserID: "alice", Amount: domain.MustAmount("0.6")}, refunds[0])
	assert.Equal(t, domain.Refund{UserID: "carol", Amount: domain.MustAmount("0.2")}, refunds[1])
	assert.Equal(t, domain.Refund{UserID: "creator", Amount: domain.MustAmount("1"), Seed: true}, refunds[2])

	var total domain.Amount
	for _, r := range refunds {
		total += r.Amount
	}
	assert.Equal(t, m.TotalPool(), total)
}
