package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// BalanceBook is an in-memory domain.BalanceBook. Credits are keyed by
// reference so replays do not double-pay.
type BalanceBook struct {
	mu       sync.Mutex
	balances map[string]domain.Amount
	applied  map[string]struct{}
}

// NewBalanceBook creates an empty BalanceBook.
func NewBalanceBook() *BalanceBook {
	return &BalanceBook{
		balances: make(map[string]domain.Amount),
		applied:  make(map[string]struct{}),
	}
}

// Credit adds amount to the user's balance unless reference was seen before.
func (b *BalanceBook) Credit(_ context.Context, userID string, amount domain.Amount, reference string) error {
	if amount < 0 {
		return fmt.Errorf("memory: credit %s: %w: negative amount", userID, domain.ErrValidation)
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if reference != "" {
		if _, ok := b.applied[reference]; ok {
			return nil
		}
		b.applied[reference] = struct{}{}
	}
	b.balances[userID] += amount
	return nil
}

// Balance returns the user's balance, zero if unknown.
func (b *BalanceBook) Balance(_ context.Context, userID string) (domain.Amount, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[userID], nil
}

var _ domain.BalanceBook = (*BalanceBook)(nil)
