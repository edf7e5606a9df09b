package domain

import "time"

// Ledger event types.
const (
	EventMarketCreated  = "market_created"
	EventBetPlaced      = "bet_placed"
	EventMarketClosed   = "market_closed"
	EventMarketResolved = "market_resolved"
	EventRewardClaimed  = "reward_claimed"
	EventCreditFailed   = "credit_failed"
)

// Pub/sub channels and the durable stream every event is appended to.
const (
	ChannelMarkets     = "ledger:markets"
	ChannelBets        = "ledger:bets"
	ChannelSettlements = "ledger:settlements"
	ChannelClaims      = "ledger:claims"
	EventStream        = "ledger:events"
)

// LedgerEvent is the envelope published on the SignalBus.
type LedgerEvent struct {
	Type     string    `json:"type"`
	MarketID string    `json:"market_id"`
	UserID   string    `json:"user_id,omitempty"`
	Amount   *Amount   `json:"amount,omitempty"`
	Side     Side      `json:"side,omitempty"`
	Payload  any       `json:"payload,omitempty"`
	At       time.Time `json:"at"`
}
