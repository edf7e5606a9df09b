package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/marketledger/internal/cache/local"
	"github.com/alanyoungcy/marketledger/internal/domain"
)

type envelope struct {
	Type     string         `json:"type"`
	MarketID string         `json:"market_id"`
	Payload  map[string]any `json:"payload"`
}

func startHub(t *testing.T) (*local.SignalBus, *httptest.Server) {
	t.Helper()
	bus := local.NewSignalBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return bus, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func event(t *testing.T, typ, marketID string) []byte {
	t.Helper()
	data, err := json.Marshal(domain.LedgerEvent{Type: typ, MarketID: marketID, At: time.Now().UTC()})
	require.NoError(t, err)
	return data
}

// publishUntil republishes until stop closes, covering the window before
// the hub's relays have subscribed.
func publishUntil(bus *local.SignalBus, channel string, payload []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		_ = bus.Publish(context.Background(), channel, payload)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func TestHub_ReplaysBacklog(t *testing.T) {
	t.Parallel()
	bus, srv := startHub(t)
	ctx := context.Background()

	require.NoError(t, bus.StreamAppend(ctx, domain.EventStream, event(t, domain.EventMarketCreated, "m1")))
	require.NoError(t, bus.StreamAppend(ctx, domain.EventStream, event(t, domain.EventBetPlaced, "m1")))

	conn := dial(t, srv, "?since=0")

	hello := read(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.EqualValues(t, 2, hello.Payload["replayed"])

	assert.Equal(t, domain.EventMarketCreated, read(t, conn).Type)
	assert.Equal(t, domain.EventBetPlaced, read(t, conn).Type)
}

func TestHub_ReplayHonoursMarketFilter(t *testing.T) {
	t.Parallel()
	bus, srv := startHub(t)
	ctx := context.Background()

	require.NoError(t, bus.StreamAppend(ctx, domain.EventStream, event(t, domain.EventMarketCreated, "m1")))
	require.NoError(t, bus.StreamAppend(ctx, domain.EventStream, event(t, domain.EventMarketCreated, "m2")))
	require.NoError(t, bus.StreamAppend(ctx, domain.EventStream, event(t, domain.EventBetPlaced, "m2")))

	conn := dial(t, srv, "?since=0&market=m2")

	hello := read(t, conn)
	assert.Equal(t, "hello", hello.Type)
	assert.EqualValues(t, 2, hello.Payload["replayed"])

	first := read(t, conn)
	assert.Equal(t, domain.EventMarketCreated, first.Type)
	assert.Equal(t, "m2", first.MarketID)
	assert.Equal(t, domain.EventBetPlaced, read(t, conn).Type)
}

func TestHub_RelaysLiveEventsForSubscribedMarket(t *testing.T) {
	t.Parallel()
	bus, srv := startHub(t)

	conn := dial(t, srv, "?market=m2")
	require.Equal(t, "hello", read(t, conn).Type)

	stop := make(chan struct{})
	defer close(stop)
	go publishUntil(bus, domain.ChannelBets, event(t, domain.EventBetPlaced, "other"), stop)
	go publishUntil(bus, domain.ChannelSettlements, event(t, domain.EventMarketResolved, "m2"), stop)

	got := read(t, conn)
	assert.Equal(t, domain.EventMarketResolved, got.Type)
	assert.Equal(t, "m2", got.MarketID)
}

func TestClientSubscriptions(t *testing.T) {
	t.Parallel()
	c := &client{subs: map[string]bool{domain.ChannelBets: true}, markets: map[string]bool{}}

	assert.True(t, c.wants(domain.ChannelBets, "any"))
	assert.False(t, c.wants(domain.ChannelClaims, "any"))

	c.apply(subscribeMsg{Action: "subscribe", Channels: []string{domain.ChannelClaims, "bogus"}, Markets: []string{"m1"}})
	assert.True(t, c.wants(domain.ChannelClaims, "m1"))
	assert.False(t, c.wants(domain.ChannelClaims, "m2"))
	assert.False(t, c.subs["bogus"])

	c.apply(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelBets}, Markets: []string{"m1"}})
	assert.False(t, c.wants(domain.ChannelBets, "m1"))
	assert.True(t, c.wants(domain.ChannelClaims, "m2"))
}
