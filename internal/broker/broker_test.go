package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/internal/market"
)

const positionsJSON = `[
  {"id": "1001", "type": "POSITION_TYPE_BUY", "symbol": "XAUUSD", "openPrice": 2300.5, "currentPrice": 2310.1, "volume": 0.01, "profit": 0, "time": "2024-06-05T08:00:00Z", "updateTime": "2024-06-05T09:00:00Z"},
  {"id": "1001", "type": "POSITION_TYPE_BUY", "symbol": "XAUUSD", "openPrice": 2300.5, "currentPrice": 2310.1, "volume": 0.01, "profit": 9.6, "time": "2024-06-05T08:00:00Z", "updateTime": "2024-06-05T08:30:00Z"},
  {"positionId": 1002, "type": "POSITION_TYPE_SELL", "symbol": "CL", "openPrice": 78.2, "currentPrice": 77.9, "volume": 0.01, "time": "2024-06-05T07:00:00Z"},
  {"id": "TRADE_RETCODE_INVALID_STOPS", "type": "POSITION_TYPE_BUY", "symbol": "XAGUSD"},
  {"type": "POSITION_TYPE_BUY", "symbol": "WHEAT", "openPrice": 600, "currentPrice": 601, "volume": 0.01}
]`

func newTestServer(t *testing.T, handler http.HandlerFunc) *MetaAPIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewMetaAPIClient(ClientConfig{
		Platform:       "MT5_LIBERTEX_DEMO",
		AccountID:      "acc-1",
		Token:          "secret",
		BaseURL:        srv.URL,
		RequestsPerSec: 1000,
	}, zerolog.Nop())
	require.NoError(t, err)
	return client
}

func TestPositionsNormalized(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("auth-token"))
		assert.Equal(t, "/users/current/accounts/acc-1/positions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(positionsJSON))
	})

	positions, err := client.Positions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	gold := positions[0]
	assert.Equal(t, "1001", gold.Ticket)
	assert.Equal(t, Buy, gold.Direction)
	require.NotNil(t, gold.Profit)
	assert.InDelta(t, 9.6, *gold.Profit, 1e-9, "duplicate with real profit wins over newer zero-profit entry")

	oil := positions[1]
	assert.Equal(t, "1002", oil.Ticket)
	assert.Equal(t, Sell, oil.Direction)
	assert.Nil(t, oil.Profit)
	assert.Equal(t, "MT5_LIBERTEX_DEMO", oil.Platform)
	assert.False(t, oil.OpenedAt.IsZero())
}

func TestDuplicateWithoutProfitPrefersNewest(t *testing.T) {
	zero := 0.0
	raw := []rawPosition{
		{ID: "7", Type: "POSITION_TYPE_BUY", Symbol: "CL", Profit: &zero, CurrentPrice: 1, UpdateTime: "2024-06-05T08:00:00Z"},
		{ID: "7", Type: "POSITION_TYPE_BUY", Symbol: "CL", Profit: &zero, CurrentPrice: 2, UpdateTime: "2024-06-05T09:00:00Z"},
	}
	out := normalizePositions("P", raw, zerolog.Nop())
	require.Len(t, out, 1)
	assert.Equal(t, 2.0, out[0].CurrentPrice)
}

func TestAccountInfo(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/current/accounts/acc-1/account-information", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"balance": 10000, "equity": 10050.5, "freeMargin": 9000, "currency": "EUR"}`))
	})

	info, err := client.Account(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.0, info.Balance)
	assert.Equal(t, "EUR", info.Currency)
}

func TestPlaceOrderSendsNoStops(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ORDER_TYPE_SELL", body["actionType"])
		assert.Equal(t, "XAUUSD", body["symbol"])
		assert.NotContains(t, body, "stopLoss")
		assert.NotContains(t, body, "takeProfit")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"numericCode": 10009, "stringCode": "TRADE_RETCODE_DONE", "message": "Request completed", "orderId": "46870472", "positionId": "46870472"}`))
	})

	res, err := client.Place(context.Background(), OrderRequest{Symbol: "XAUUSD", Direction: Sell, Volume: 0.01})
	require.NoError(t, err)
	assert.Equal(t, "46870472", res.Ticket())
}

func TestPlaceOrderRejected(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"numericCode": 10018, "stringCode": "TRADE_RETCODE_MARKET_CLOSED", "message": "Market is closed"}`))
	})

	_, err := client.Place(context.Background(), OrderRequest{Symbol: "CL", Direction: Buy, Volume: 0.01})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRejected)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "TRADE_RETCODE_MARKET_CLOSED", rejected.Code)
}

func TestClosePositionHTTPError(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "POSITION_CLOSE_ID", body["actionType"])
		assert.Equal(t, "1001", body["positionId"])
		w.WriteHeader(http.StatusInternalServerError)
	})

	err := client.Close(context.Background(), "1001")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestRouter(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	})

	router := NewRouter(zerolog.Nop())
	router.Register("MT5_ICMARKETS_DEMO", "", client)

	assert.True(t, router.Has("MT5_ICMARKETS_DEMO"))
	assert.Equal(t, market.ICMarkets, router.BrokerOf("MT5_ICMARKETS_DEMO"))
	assert.Equal(t, []string{"MT5_ICMARKETS_DEMO"}, router.Platforms())

	positions, err := router.OpenPositions(context.Background(), "MT5_ICMARKETS_DEMO")
	require.NoError(t, err)
	assert.Empty(t, positions)

	_, err = router.OpenPositions(context.Background(), "MT5_LIBERTEX_REAL")
	assert.ErrorIs(t, err, ErrUnknownPlatform)
}

func TestNewClientRequiresCredentials(t *testing.T) {
	_, err := NewMetaAPIClient(ClientConfig{Platform: "X"}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("ORDER_TYPE_SELL")
	require.NoError(t, err)
	assert.Equal(t, Sell, d)
	assert.Equal(t, -1.0, d.Sign())

	_, err = ParseDirection("HOLD")
	assert.Error(t, err)
}
