package domain

import "time"

// ClaimableReward is a winner's share of a resolved market. Claimed flips
// from false to true exactly once.
type ClaimableReward struct {
	UserID    string     `json:"user_id"`
	MarketID  string     `json:"market_id"`
	Amount    Amount     `json:"amount"`
	Claimed   bool       `json:"claimed"`
	CreatedAt time.Time  `json:"created_at"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// Payout is one user's computed share of a market's pool.
type Payout struct {
	UserID   string `json:"user_id"`
	Amount   Amount `json:"amount"`
	Stake    Amount `json:"stake"`
	BetCount int    `json:"bet_count"`
}

// Settlement is the outcome of running the payout computation on a resolved
// market. Undistributed is non-zero only when nobody backed the result.
type Settlement struct {
	MarketID      string   `json:"market_id"`
	Result        Side     `json:"result"`
	TotalPool     Amount   `json:"total_pool"`
	WinnerStake   Amount   `json:"winner_stake"`
	Payouts       []Payout `json:"payouts"`
	Undistributed Amount   `json:"undistributed"`
}

// NoWinner reports whether the pool could not be distributed to winners.
func (s Settlement) NoWinner() bool { return s.WinnerStake == 0 }

// Rewards converts the payouts into unclaimed reward records.
func (s Settlement) Rewards(now time.Time) []ClaimableReward {
	out := make([]ClaimableReward, 0, len(s.Payouts))
	for _, p := range s.Payouts {
		if p.Amount <= 0 {
			continue
		}
		out = append(out, ClaimableReward{
			UserID:    p.UserID,
			MarketID:  s.MarketID,
			Amount:    p.Amount,
			CreatedAt: now,
		})
	}
	return out
}

// Refund is a stake returned to a bettor or a seed returned to the creator
// when a market has no winners.
type Refund struct {
	UserID string `json:"user_id"`
	Amount Amount `json:"amount"`
	Seed   bool   `json:"seed"`
}
