package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketFilter narrows market listings. Zero values match everything.
type MarketFilter struct {
	Status  MarketStatus
	Creator string
}

// MarketStore is the canonical home of markets and their bets.
//
// AppendBet and TransitionStatus are linearized per market: a bet is never
// accepted once a transition away from open has been observed.
type MarketStore interface {
	CreateMarket(ctx context.Context, m Market) error
	GetMarket(ctx context.Context, id string) (Market, error)
	// ListMarkets returns markets without their bets.
	ListMarkets(ctx context.Context, filter MarketFilter, opts ListOpts) ([]Market, error)
	CountMarkets(ctx context.Context, filter MarketFilter) (int64, error)
	AppendBet(ctx context.Context, marketID string, bet Bet) error
	// ListBetsByUser returns a user's bets across markets, newest first.
	// Since and Until bound the placement time.
	ListBetsByUser(ctx context.Context, userID string, opts ListOpts) ([]UserBet, error)
	// TransitionStatus moves a market forward. Resolving requires a result.
	TransitionStatus(ctx context.Context, marketID string, to MarketStatus, result *Side) (Market, error)
	// MarkSettled stamps a resolved market once its rewards are recorded.
	MarkSettled(ctx context.Context, marketID string) error
	// ListExpired returns open markets whose closing time is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Market, error)
	// ListUnsettled returns resolved markets whose rewards were never recorded.
	ListUnsettled(ctx context.Context, limit int) ([]Market, error)
}

// RewardStore tracks claimable rewards and gates their disbursement.
type RewardStore interface {
	// RecordRewards is idempotent per (user, market).
	RecordRewards(ctx context.Context, rewards []ClaimableReward) error
	// Claim flips an unclaimed reward and returns its amount.
	Claim(ctx context.Context, userID, marketID string) (Amount, error)
	GetReward(ctx context.Context, userID, marketID string) (ClaimableReward, error)
	ListByUser(ctx context.Context, userID string, opts ListOpts) ([]ClaimableReward, error)
	ListByMarket(ctx context.Context, marketID string) ([]ClaimableReward, error)
}

// BalanceSink credits user balances outside the ledger. Reference identifies
// the credit so a repeated call with the same reference is a no-op.
type BalanceSink interface {
	Credit(ctx context.Context, userID string, amount Amount, reference string) error
}

// BalanceBook is a BalanceSink that can also report balances.
type BalanceBook interface {
	BalanceSink
	Balance(ctx context.Context, userID string) (Amount, error)
}

// AuditEntry is a single audit log record.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
