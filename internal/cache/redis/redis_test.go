package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketledger/internal/domain"
)

// newTestClient connects to LEDGER_TEST_REDIS_ADDR or skips. Every test gets
// its own key prefix.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LEDGER_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, KeyPrefix: "test:" + uuid.NewString() + ":"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestLockManager(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	release, err := lm.Acquire(ctx, "settle:m1", 5*time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "settle:m1", 5*time.Second)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	release()
	release()

	again, err := lm.Acquire(ctx, "settle:m1", 5*time.Second)
	require.NoError(t, err)
	again()
}

func TestMarketCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	mc := NewMarketCache(c, time.Minute)

	_, err := mc.Get(ctx, "m1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	m := domain.Market{ID: "m1", Title: "cached", InitialPool: domain.MustAmount("1.5"), Status: domain.MarketStatusOpen}
	require.NoError(t, mc.Set(ctx, m))

	got, err := mc.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "cached", got.Title)
	assert.Equal(t, domain.MustAmount("1.5"), got.InitialPool)

	require.NoError(t, mc.Invalidate(ctx, "m1"))
	_, err = mc.Get(ctx, "m1")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRateLimiter(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignalBus_Stream(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	sb := NewSignalBus(c)
	stream := "test:" + uuid.NewString()
	t.Cleanup(func() { c.Underlying().Del(context.Background(), stream) })

	require.NoError(t, sb.StreamAppend(ctx, stream, []byte(`{"n":1}`)))
	require.NoError(t, sb.StreamAppend(ctx, stream, []byte(`{"n":2}`)))

	msgs, err := sb.StreamRead(ctx, stream, "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Payload))

	rest, err := sb.StreamRead(ctx, stream, msgs[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.JSONEq(t, `{"n":2}`, string(rest[0].Payload))
}

func TestSignalBus_PubSub(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sb := NewSignalBus(c)
	channel := "test:" + uuid.NewString()

	sub, err := sb.Subscribe(ctx, channel+":*")
	require.NoError(t, err)
	require.NoError(t, sb.Publish(ctx, channel+":markets", []byte("hello")))

	select {
	case msg := <-sub:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
