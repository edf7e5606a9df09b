package domain

import (
	"fmt"
	"strings"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen     MarketStatus = "open"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// rank orders statuses; a transition must strictly increase it.
func (s MarketStatus) rank() int {
	switch s {
	case MarketStatusOpen:
		return 1
	case MarketStatusClosed:
		return 2
	case MarketStatusResolved:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is a known status.
func (s MarketStatus) Valid() bool { return s.rank() > 0 }

// CanTransition reports whether a market in status from may move to to.
// Allowed moves are open->closed, open->resolved and closed->resolved.
func CanTransition(from, to MarketStatus) bool {
	return from.Valid() && to.Valid() && to.rank() > from.rank()
}

// TransitionSources lists the statuses a market may leave to reach to.
func TransitionSources(to MarketStatus) []MarketStatus {
	var out []MarketStatus
	for _, from := range []MarketStatus{MarketStatusOpen, MarketStatusClosed, MarketStatusResolved} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Side is one of the two mutually exclusive outcomes of a binary market.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// ParseSide normalises user input into a Side.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideYes:
		return SideYes, nil
	case SideNo:
		return SideNo, nil
	default:
		return "", fmt.Errorf("%w: side %q must be yes or no", ErrValidation, s)
	}
}

// Market is a binary prediction market together with its bet history.
type Market struct {
	ID          string       `json:"id"`
	Creator     string       `json:"creator"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	CreatedAt   time.Time    `json:"created_at"`
	ClosesAt    time.Time    `json:"closes_at"`
	InitialPool Amount       `json:"initial_pool"`
	MinBet      Amount       `json:"min_bet"`
	MaxBet      Amount       `json:"max_bet"`
	Status      MarketStatus `json:"status"`
	Result      *Side        `json:"result,omitempty"`
	ResolvedAt  *time.Time   `json:"resolved_at,omitempty"`
	SettledAt   *time.Time   `json:"settled_at,omitempty"`
	Bets        []Bet        `json:"bets"`
}

// TotalPool is the seed plus every recorded stake.
func (m Market) TotalPool() Amount {
	total := m.InitialPool
	for _, b := range m.Bets {
		total += b.Amount
	}
	return total
}

// SideStake sums the stakes placed on one side.
func (m Market) SideStake(side Side) Amount {
	var total Amount
	for _, b := range m.Bets {
		if b.Side == side {
			total += b.Amount
		}
	}
	return total
}

// InBetRange reports whether amount lies in [MinBet, MaxBet].
func (m Market) InBetRange(amount Amount) bool {
	return amount >= m.MinBet && amount <= m.MaxBet
}

// Bet is an immutable stake on one side of a market.
type Bet struct {
	ID        string    `json:"id"`
	MarketID  string    `json:"market_id"`
	UserID    string    `json:"user_id"`
	Amount    Amount    `json:"amount"`
	Side      Side      `json:"side"`
	Timestamp time.Time `json:"timestamp"`
}

// BetOutcome is where a bet stands given its market's state.
type BetOutcome string

const (
	BetOpen BetOutcome = "open"
	BetWon  BetOutcome = "won"
	BetLost BetOutcome = "lost"
)

// UserBet is a bet listed in a user's history together with its market.
type UserBet struct {
	Bet
	MarketTitle  string       `json:"market_title"`
	MarketStatus MarketStatus `json:"market_status"`
	Result       *Side        `json:"result,omitempty"`
	Outcome      BetOutcome   `json:"outcome"`
}

// NewUserBet derives the outcome of b from its market. A bet stays open
// until the market resolves.
func NewUserBet(b Bet, title string, status MarketStatus, result *Side) UserBet {
	ub := UserBet{
		Bet:          b,
		MarketTitle:  title,
		MarketStatus: status,
		Outcome:      BetOpen,
	}
	if status == MarketStatusResolved && result != nil {
		r := *result
		ub.Result = &r
		ub.Outcome = BetLost
		if b.Side == r {
			ub.Outcome = BetWon
		}
	}
	return ub
}
