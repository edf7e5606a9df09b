package local

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// MarketCache is a bounded, expiring in-process domain.MarketCache.
type MarketCache struct {
	lru *expirable.LRU[string, domain.Market]
}

// NewMarketCache creates a cache holding at most size markets for ttl each.
func NewMarketCache(size int, ttl time.Duration) *MarketCache {
	if size <= 0 {
		size = 1024
	}
	return &MarketCache{lru: expirable.NewLRU[string, domain.Market](size, nil, ttl)}
}

// Set stores a copy of market.
func (c *MarketCache) Set(_ context.Context, market domain.Market) error {
	market.Bets = append([]domain.Bet(nil), market.Bets...)
	c.lru.Add(market.ID, market)
	return nil
}

// Get returns the cached market or domain.ErrNotFound.
func (c *MarketCache) Get(_ context.Context, id string) (domain.Market, error) {
	m, ok := c.lru.Get(id)
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	m.Bets = append([]domain.Bet(nil), m.Bets...)
	return m, nil
}

// Invalidate removes the market.
func (c *MarketCache) Invalidate(_ context.Context, id string) error {
	c.lru.Remove(id)
	return nil
}

var _ domain.MarketCache = (*MarketCache)(nil)
