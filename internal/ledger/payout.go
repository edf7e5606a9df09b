// Package ledger computes parimutuel settlements for resolved binary markets.
// Every function here is pure: the result depends only on the market value
// passed in, so a settlement can be recomputed safely after a failure.
package ledger

import (
	"fmt"
	"sort"

	"github.com/cockroachdb/apd/v3"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// divCtx carries enough precision for int64*int64 products.
var divCtx = apd.BaseContext.WithPrecision(60)

// ComputePayouts splits a resolved market's pool between the users who backed
// the result, in proportion to their stake on the winning side.
//
// Stakes are aggregated per user, so a user with several winning bets gets a
// single payout. Each share is floored to an octa and the leftover octas go
// to the largest fractional remainders (ties by user id), which keeps the sum
// of payouts equal to the total pool. Payouts are ordered by user id.
//
// When nobody backed the result no payouts are produced and the whole pool is
// reported as Undistributed.
func ComputePayouts(m domain.Market) (domain.Settlement, error) {
	if m.Status != domain.MarketStatusResolved || m.Result == nil {
		return domain.Settlement{}, fmt.Errorf("ledger: market %s is %s: %w", m.ID, m.Status, domain.ErrInvalidState)
	}
	result := *m.Result

	s := domain.Settlement{
		MarketID:  m.ID,
		Result:    result,
		TotalPool: m.TotalPool(),
	}

	stakes := make(map[string]*domain.Payout)
	for _, b := range m.Bets {
		if b.Side != result {
			continue
		}
		p, ok := stakes[b.UserID]
		if !ok {
			p = &domain.Payout{UserID: b.UserID}
			stakes[b.UserID] = p
		}
		p.Stake += b.Amount
		p.BetCount++
		s.WinnerStake += b.Amount
	}

	if s.WinnerStake == 0 {
		s.Undistributed = s.TotalPool
		return s, nil
	}

	winners := make([]*domain.Payout, 0, len(stakes))
	for _, p := range stakes {
		winners = append(winners, p)
	}
	sort.Slice(winners, func(i, j int) bool { return winners[i].UserID < winners[j].UserID })

	pool := apd.New(int64(s.TotalPool), 0)
	denom := apd.New(int64(s.WinnerStake), 0)
	remainders := make([]apd.Decimal, len(winners))

	var distributed domain.Amount
	for i, p := range winners {
		var num, quo apd.Decimal
		if _, err := divCtx.Mul(&num, apd.New(int64(p.Stake), 0), pool); err != nil {
			return domain.Settlement{}, fmt.Errorf("ledger: market %s: share numerator: %w", m.ID, err)
		}
		if _, err := divCtx.QuoInteger(&quo, &num, denom); err != nil {
			return domain.Settlement{}, fmt.Errorf("ledger: market %s: share quotient: %w", m.ID, err)
		}
		if _, err := divCtx.Rem(&remainders[i], &num, denom); err != nil {
			return domain.Settlement{}, fmt.Errorf("ledger: market %s: share remainder: %w", m.ID, err)
		}
		share, err := quo.Int64()
		if err != nil {
			return domain.Settlement{}, fmt.Errorf("ledger: market %s: share: %w", m.ID, err)
		}
		p.Amount = domain.Amount(share)
		distributed += p.Amount
	}

	// Hand out the octas lost to flooring.
	if dust := int(s.TotalPool - distributed); dust > 0 {
		order := make([]int, len(winners))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(a, b int) bool {
			return remainders[order[a]].Cmp(&remainders[order[b]]) > 0
		})
		for k := 0; k < dust; k++ {
			winners[order[k%len(order)]].Amount++
		}
	}

	s.Payouts = make([]domain.Payout, len(winners))
	for i, p := range winners {
		s.Payouts[i] = *p
	}
	return s, nil
}

// ComputeRefunds returns what each participant put into a market: every
// bettor's total stake and the creator's seed. It is used when a resolved
// market has no winners and the operator chose to refund. Refunds are ordered
// by user id with the seed entry last.
func ComputeRefunds(m domain.Market) []domain.Refund {
	stakes := make(map[string]domain.Amount)
	for _, b := range m.Bets {
		stakes[b.UserID] += b.Amount
	}

	users := make([]string, 0, len(stakes))
	for u := range stakes {
		users = append(users, u)
	}
	sort.Strings(users)

	refunds := make([]domain.Refund, 0, len(users)+1)
	for _, u := range users {
		if stakes[u] > 0 {
			refunds = append(refunds, domain.Refund{UserID: u, Amount: stakes[u]})
		}
	}
	if m.InitialPool > 0 {
		refunds = append(refunds, domain.Refund{UserID: m.Creator, Amount: m.InitialPool, Seed: true})
	}
	return refunds
}
