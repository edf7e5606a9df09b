package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to MarketStatus
		want     bool
	}{
		{MarketStatusOpen, MarketStatusClosed, true},
		{MarketStatusOpen, MarketStatusResolved, true},
		{MarketStatusClosed, MarketStatusResolved, true},
		{MarketStatusOpen, MarketStatusOpen, false},
		{MarketStatusClosed, MarketStatusOpen, false},
		{MarketStatusClosed, MarketStatusClosed, false},
		{MarketStatusResolved, MarketStatusOpen, false},
		{MarketStatusResolved, MarketStatusClosed, false},
		{MarketStatusResolved, MarketStatusResolved, false},
		{MarketStatus("bogus"), MarketStatusClosed, false},
		{MarketStatusOpen, MarketStatus("bogus"), false},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTransitionSources(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []MarketStatus{MarketStatusOpen}, TransitionSources(MarketStatusClosed))
	assert.Equal(t, []MarketStatus{MarketStatusOpen, MarketStatusClosed}, TransitionSources(MarketStatusResolved))
	assert.Empty(t, TransitionSources(MarketStatusOpen))
}

func TestMarketPoolAccounting(t *testing.T) {
	t.Parallel()

	m := Market{
		InitialPool: MustAmount("1"),
		MinBet:      MustAmount("0.01"),
		MaxBet:      MustAmount("1"),
		Bets: []Bet{
			{UserID: "a", Amount: MustAmount("0.5"), Side: SideYes},
			{UserID: "b", Amount: MustAmount("0.3"), Side: SideNo},
			{UserID: "c", Amount: MustAmount("0.2"), Side: SideYes},
		},
	}

	assert.Equal(t, MustAmount("2"), m.TotalPool())
	assert.Equal(t, MustAmount("0.7"), m.SideStake(SideYes))
	assert.Equal(t, MustAmount("0.3"), m.SideStake(SideNo))
	assert.True(t, m.InBetRange(MustAmount("0.01")))
	assert.True(t, m.InBetRange(MustAmount("1")))
	assert.False(t, m.InBetRange(MustAmount("0.0001")))
	assert.False(t, m.InBetRange(MustAmount("1.00000001")))
}

func TestParseSide(t *testing.T) {
	t.Parallel()

	s, err := ParseSide(" YES ")
	require.NoError(t, err)
	assert.Equal(t, SideYes, s)

	_, err = ParseSide("maybe")
	require.ErrorIs(t, err, ErrValidation)
}

func TestInvalidStateFamily(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrMarketNotOpen, ErrAmountOutOfRange, ErrInvalidTransition, ErrAlreadySettled} {
		assert.True(t, errors.Is(err, ErrInvalidState), err.Error())
	}
	assert.False(t, errors.Is(ErrAlreadyClaimed, ErrInvalidState))
}

func TestNewUserBet(t *testing.T) {
	t.Parallel()
	yes, no := SideYes, SideNo

	tests := []struct {
		name   string
		side   Side
		status MarketStatus
		result *Side
		want   BetOutcome
	}{
		{"open market", SideYes, MarketStatusOpen, nil, BetOpen},
		{"closed market", SideNo, MarketStatusClosed, nil, BetOpen},
		{"backed the result", SideYes, MarketStatusResolved, &yes, BetWon},
		{"backed the other side", SideYes, MarketStatusResolved, &no, BetLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ub := NewUserBet(Bet{ID: "b1", Side: tt.side}, "title", tt.status, tt.result)
			assert.Equal(t, tt.want, ub.Outcome)
			assert.Equal(t, "b1", ub.ID)
			if tt.result == nil {
				assert.Nil(t, ub.Result)
			}
		})
	}
}
