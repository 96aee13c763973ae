package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Galaxy-KJ/galaxy-oracle/pkg/logging"
	"github.com/Galaxy-KJ/galaxy-oracle/pkg/oracle"
)

func aggregated(symbol string, price float64) oracle.AggregatedPrice {
	return oracle.AggregatedPrice{
		Symbol:      symbol,
		Price:       decimal.NewFromFloat(price),
		Timestamp:   time.Now(),
		Confidence:  0.9,
		SourcesUsed: []string{"a", "b"},
		SourceCount: 2,
	}
}

// dialTestServer starts the broadcast loop, exposes the upgrade handler
// over httptest and dials it.
func dialTestServer(t *testing.T) (*WebSocketServer, *websocket.Conn) {
	t.Helper()

	ws := NewWebSocketServer("127.0.0.1:0", logging.NewNoopLogger())
	go ws.broadcastUpdates()
	t.Cleanup(ws.Stop)

	srv := httptest.NewServer(http.HandlerFunc(ws.handleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		ws.mu.RLock()
		defer ws.mu.RUnlock()
		return len(ws.clients) == 1
	}, time.Second, 10*time.Millisecond)

	return ws, conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) PriceUpdateMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg PriceUpdateMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestWebSocketBroadcastsToSubscribedAll(t *testing.T) {
	ws, conn := dialTestServer(t)

	ws.SendUpdate(map[string]oracle.AggregatedPrice{"XLM": aggregated("XLM", 0.12)})

	msg := readUpdate(t, conn)
	assert.Equal(t, "price_update", msg.Type)
	require.Len(t, msg.Prices, 1)
	assert.Equal(t, "XLM", msg.Prices[0].Symbol)
	assert.Equal(t, "0.12", msg.Prices[0].Price)

	_, err := time.Parse(time.RFC3339, msg.Timestamp)
	assert.NoError(t, err)
}

func TestWebSocketSubscriptionFiltersBroadcasts(t *testing.T) {
	ws, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{
		Type:    "subscribe",
		Symbols: []string{"btc/usd"},
	}))

	require.Eventually(t, func() bool {
		ws.mu.RLock()
		defer ws.mu.RUnlock()
		for client := range ws.clients {
			client.mu.RLock()
			subscribed := !client.subscribedAll && client.subscribedPairs["BTC"]
			client.mu.RUnlock()
			return subscribed
		}
		return false
	}, time.Second, 10*time.Millisecond)

	// The XLM update is filtered out; only the BTC update arrives.
	ws.SendUpdate(map[string]oracle.AggregatedPrice{"XLM": aggregated("XLM", 0.12)})
	ws.SendUpdate(map[string]oracle.AggregatedPrice{"BTC": aggregated("BTC", 42500)})

	msg := readUpdate(t, conn)
	require.Len(t, msg.Prices, 1)
	assert.Equal(t, "BTC", msg.Prices[0].Symbol)
}

func TestWebSocketPing(t *testing.T) {
	_, conn := dialTestServer(t)

	require.NoError(t, conn.WriteJSON(WebSocketMessage{Type: "ping"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var pong map[string]string
	require.NoError(t, json.Unmarshal(data, &pong))
	assert.Equal(t, "pong", pong["type"])
}

func TestClientSubscriptionFiltering(t *testing.T) {
	c := &WebSocketClient{
		server:          NewWebSocketServer("127.0.0.1:0", logging.NewNoopLogger()),
		subscribedAll:   true,
		subscribedPairs: make(map[string]bool),
	}

	xlm := map[string]oracle.AggregatedPrice{"XLM": aggregated("XLM", 0.12)}
	btc := map[string]oracle.AggregatedPrice{"BTC": aggregated("BTC", 42500)}

	assert.True(t, c.shouldReceive(xlm))

	c.subscribe([]string{"btc/usd"})
	assert.False(t, c.shouldReceive(xlm))
	assert.True(t, c.shouldReceive(btc))

	c.subscribe([]string{"*"})
	assert.True(t, c.shouldReceive(xlm))

	c.unsubscribe([]string{"*"})
	assert.False(t, c.shouldReceive(xlm))
	assert.False(t, c.shouldReceive(btc))

	c.subscribe([]string{"xlm"})
	assert.True(t, c.shouldReceive(xlm))
	c.unsubscribe([]string{"XLM/USD"})
	assert.False(t, c.shouldReceive(xlm))
}
