package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

type rewardKey struct {
	user   string
	market string
}

// RewardStore implements domain.RewardStore. A single mutex serializes
// claims, which makes the claimed flip a compare-and-set.
type RewardStore struct {
	mu      sync.Mutex
	rewards map[rewardKey]*domain.ClaimableReward
	order   []rewardKey
	now     func() time.Time
}

// NewRewardStore creates an empty RewardStore.
func NewRewardStore() *RewardStore {
	return &RewardStore{
		rewards: make(map[rewardKey]*domain.ClaimableReward),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RecordRewards inserts rewards that are not present yet. Existing records,
// claimed or not, are left untouched.
func (s *RewardStore) RecordRewards(_ context.Context, rewards []domain.ClaimableReward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range rewards {
		if r.UserID == "" || r.MarketID == "" {
			return fmt.Errorf("memory: record reward: %w: user and market are required", domain.ErrValidation)
		}
		k := rewardKey{user: r.UserID, market: r.MarketID}
		if _, ok := s.rewards[k]; ok {
			continue
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = s.now()
		}
		r.Claimed = false
		r.ClaimedAt = nil
		s.rewards[k] = &r
		s.order = append(s.order, k)
	}
	return nil
}

// Claim marks the reward claimed and returns its amount.
func (s *RewardStore) Claim(_ context.Context, userID, marketID string) (domain.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rewards[rewardKey{user: userID, market: marketID}]
	if !ok {
		return 0, fmt.Errorf("memory: claim %s/%s: %w", userID, marketID, domain.ErrNotFound)
	}
	if r.Claimed {
		return 0, fmt.Errorf("memory: claim %s/%s: %w", userID, marketID, domain.ErrAlreadyClaimed)
	}
	now := s.now()
	r.Claimed = true
	r.ClaimedAt = &now
	return r.Amount, nil
}

// GetReward returns a single reward record.
func (s *RewardStore) GetReward(_ context.Context, userID, marketID string) (domain.ClaimableReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rewards[rewardKey{user: userID, market: marketID}]
	if !ok {
		return domain.ClaimableReward{}, fmt.Errorf("memory: reward %s/%s: %w", userID, marketID, domain.ErrNotFound)
	}
	return cloneReward(*r), nil
}

// ListByUser returns a user's rewards, newest first.
func (s *RewardStore) ListByUser(_ context.Context, userID string, opts domain.ListOpts) ([]domain.ClaimableReward, error) {
	s.mu.Lock()
	var out []domain.ClaimableReward
	for _, k := range s.order {
		if k.user != userID {
			continue
		}
		r := s.rewards[k]
		if opts.Since != nil && r.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && r.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, cloneReward(*r))
	}
	s.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ListByMarket returns the rewards of one market ordered by user id.
func (s *RewardStore) ListByMarket(_ context.Context, marketID string) ([]domain.ClaimableReward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ClaimableReward
	for _, k := range s.order {
		if k.market == marketID {
			out = append(out, cloneReward(*s.rewards[k]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func cloneReward(r domain.ClaimableReward) domain.ClaimableReward {
	if r.ClaimedAt != nil {
		t := *r.ClaimedAt
		r.ClaimedAt = &t
	}
	return r
}

var _ domain.RewardStore = (*RewardStore)(nil)
