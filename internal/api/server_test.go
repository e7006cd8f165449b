package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/auth"
	"metaapi-trading-bot/internal/bot"
	"metaapi-trading-bot/internal/broker/brokertest"
	"metaapi-trading-bot/internal/database"
	"metaapi-trading-bot/internal/events"
	"metaapi-trading-bot/internal/logging"
)

type fakeBot struct {
	mu      sync.Mutex
	running bool
	err     error
}

func (b *fakeBot) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	if b.running {
		return bot.ErrAlreadyRunning
	}
	b.running = true
	return nil
}

func (b *fakeBot) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return bot.ErrNotRunning
	}
	b.running = false
	return nil
}

func (b *fakeBot) Status(ctx context.Context) bot.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bot.Status{Running: b.running}
}

type fixedUsage map[string]float64

func (u fixedUsage) CombinedUsage(ctx context.Context, platform string) (float64, error) {
	return u[platform], nil
}

type alwaysOpen struct{}

func (alwaysOpen) IsOpen(string) bool { return true }

type response struct {
	Success bool            `json:"success"`
	Error   interface{}     `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	store *database.MemoryStore
	bot   *fakeBot
	gw    *brokertest.Gateway
	bus   *events.EventBus
	srv   *Server
}

func newFixture(t *testing.T, authCfg config.AuthConfig) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authSvc, err := auth.NewService(authCfg, logging.Nop())
	require.NoError(t, err)

	f := &fixture{
		store: database.NewMemoryStore(),
		bot:   &fakeBot{},
		gw:    brokertest.NewGateway(),
		bus:   events.NewEventBus(),
	}
	f.srv, err = NewServer(config.ServerConfig{AllowedOrigins: "*"}, Deps{
		Store:    f.store,
		Bot:      f.bot,
		Accounts: f.gw,
		Usage:    fixedUsage{"MT5_LIBERTEX_DEMO": 12.5},
		Hours:    alwaysOpen{},
		Auth:     authSvc,
		Bus:      f.bus,
	}, logging.Nop())
	require.NoError(t, err)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest(method, path, &buf))

	var resp response
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealth(t *testing.T) {
	f := newFixture(t, config.AuthConfig{})
	w, _ := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, config.AuthConfig{})
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestBotStartStop(t *testing.T) {
	f := newFixture(t, config.AuthConfig{})

	w, resp := f.do(t, http.MethodPost, "/api/bot/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(resp.Data), `"running":true`)

	w, _ = f.do(t, http.MethodPost, "/api/bot/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, resp = f.do(t, http.MethodPost, "/api/bot/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(resp.Data), `"running":false`)

	w, _ = f.do(t, http.MethodPost, "/api/bot/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestBotStartPreconditionFailed(t *testing.T) {
	f := newFixture(t, config.AuthConfig{})
	f.bot.err = bot.ErrNoCredentials

	w, resp := f.do(t, http.MethodPost, "/api/bot/start", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Equal(t, true, resp.Error)
}

func TestTradesAndStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.AuthConfig{})
	require.NoError(t, f.store.CreateTrade(ctx, &database.TradeRecord{
		Commodity: "GOLD", Platform: "MT5_LIBERTEX_DEMO", Ticket: "1", Symbol: "XAUUSD",
		Strategy: "swing", Direction: "BUY", EntryPrice: 2000, Quantity: 0.1, OpenedAt: time.Now(),
	}))
	_, err := f.store.CloseTrade(ctx, database.CloseRequest{
		Platform: "MT5_ICMARKETS_DEMO", Ticket: "2", Symbol: "XAGUSD", Strategy: "day", Direction: "SELL",
		EntryPrice: 25, Quantity: 1, ExitPrice: 24, ProfitLoss: 100, Reason: database.ReasonTakeProfit,
		ClosedBy: database.ClosedByBot, ClosedAt: time.Now(),
	})
	require.NoError(t, err)

	w, resp := f.do(t, http.MethodGet, "/api/trades?status=open", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Trades []database.TradeRecord `json:"trades"`
		Count  int                    `json:"count"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "1", list.Trades[0].Ticket)

	w, _ = f.do(t, http.MethodGet, "/api/trades?status=PENDING", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp = f.do(t, http.MethodGet, "/api/trades/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats database.TradeStats
	require.NoError(t, json.Unmarshal(resp.Data, &stats))
	assert.Equal(t, 2, stats.TotalTrades)
	assert.Equal(t, 1, stats.OpenPositions)
	assert.Equal(t, 1, stats.WinningTrades)
	assert.InDelta(t, 100.0, stats.TotalProfitLoss, 1e-9)
}

func TestTradeSettingsOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, config.AuthConfig{})
	require.NoError(t, f.store.CreateTrade(ctx, &database.TradeRecord{
		Commodity: "GOLD", Platform: "MT5_LIBERTEX_DEMO", Ticket: "77", Symbol: "XAUUSD",
		Strategy: "day", Direction: "BUY", EntryPrice: 2000, Quantity: 0.1, OpenedAt: time.Now(),
	}))

	w, _ := f.do(t, http.MethodGet, "/api/trade-settings/77", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = f.do(t, http.MethodPut, "/api/trade-settings/77", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPut, "/api/trade-settings/77", map[string]interface{}{"stop_loss": 1990.0})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = f.do(t, http.MethodPut, "/api/trade-settings/77", map[string]interface{}{"take_profit": 2040.0})
	require.Equal(t, http.StatusOK, w.Code)

	ts, err := f.store.GetTradeSettings(ctx, "77")
	require.NoError(t, err)
	require.NotNil(t, ts.StopLoss)
	require.NotNil(t, ts.TakeProfit)
	assert.Equal(t, 1990.0, *ts.StopLoss)
	assert.Equal(t, 2040.0, *ts.TakeProfit)
	assert.Equal(t, database.SourceUser, ts.Source)
	assert.Equal(t, "day", ts.Strategy)
	assert.Equal(t, "MT5_LIBERTEX_DEMO", ts.Platform)
}

func TestSettingsLifecycle(t *testing.T) {
	f := newFixture(t, config.AuthConfig{})
	changed := make(chan events.Event, 4)
	f.bus.Subscribe(events.EventSettingsChanged, func(e events.Event) { changed <- e })

	w, resp := f.do(t, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var settings database.Settings
	require.NoError(t, json.Unmarshal(resp.Data, &settings))
	assert.False(t, settings.AutoTrading)

	settings.AutoTrading = true
	settings.EnabledCommodities = []string{"GOLD"}
	w, _ = f.do(t, http.MethodPut, "/api/settings", settings)
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := f.store.GetSettings(context.Background())
	require.NoError(t, err)
	assert.True(t, stored.AutoTrading)
	assert.Equal(t, []string{"GOLD"}, stored.EnabledCommodities)

	select {
	case e := <-changed:
		assert.Equal(t, "api", e.Data["source"])
	case <-time.After(time.Second):
		t.Fatal("no settings event")
	}

	bad := settings
	bad.TPSLMode = "euro"
	w, _ = f.do(t, http.MethodPut, "/api/settings", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	unknown := settings
	unknown.EnabledCommodities = []string{"LUMBER"}
	w, _ = f.do(t, http.MethodPut, "/api/settings", unknown)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	flatTarget := settings
	flatTarget.Swing.ATRMultiplierTP = 0
	w, _ = f.do(t, http.MethodPut, "/api/settings", flatTarget)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/settings/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored, err = f.store.GetSettings(context.Background())
	require.NoError(t, err)
	assert.False(t, stored.AutoTrading)
}

func TestCommoditiesAndPlatforms(t *testing.T) {
	f := newFixture(t, config.AuthConfig{})
	f.gw.SetBalance("MT5_LIBERTEX_DEMO", 10000)

	w, resp := f.do(t, http.MethodGet, "/api/commodities", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var commodities []CommodityView
	require.NoError(t, json.Unmarshal(resp.Data, &commodities))
	assert.Len(t, commodities, 15)
	assert.True(t, commodities[0].MarketOpen)

	w, resp = f.do(t, http.MethodGet, "/api/platforms", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var platforms []PlatformView
	require.NoError(t, json.Unmarshal(resp.Data, &platforms))
	require.Len(t, platforms, 2)

	byName := map[string]PlatformView{}
	for _, p := range platforms {
		byName[p.Name] = p
	}
	assert.Equal(t, 10000.0, byName["MT5_LIBERTEX_DEMO"].Balance)
	assert.Equal(t, 12.5, byName["MT5_LIBERTEX_DEMO"].CombinedUsage)
	assert.Equal(t, "ICMARKETS", byName["MT5_ICMARKETS_DEMO"].Broker)
	assert.NotEmpty(t, byName["MT5_ICMARKETS_DEMO"].Error)
}

func TestControlRoutesRequireTokenWhenAuthEnabled(t *testing.T) {
	hash, err := auth.HashPassword("operator-pass", 4)
	require.NoError(t, err)
	f := newFixture(t, config.AuthConfig{
		Enabled:             true,
		JWTSecret:           "secret",
		OperatorUser:        "admin",
		OperatorPassHash:    hash,
		AccessTokenDuration: time.Hour,
	})

	w, _ := f.do(t, http.MethodPost, "/api/bot/start", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "operator-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	var token auth.TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))

	req := httptest.NewRequest(http.MethodPost, "/api/bot/start", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	w = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoginIsRateLimited(t *testing.T) {
	f := newFixture(t, config.AuthConfig{Enabled: true, JWTSecret: "secret", OperatorUser: "admin"})

	var last int
	for i := 0; i < 11; i++ {
		w, _ := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "x"})
		last = w.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}

func TestWebSocketStreamsBusEvents(t *testing.T) {
	f := newFixture(t, config.AuthConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.srv.StartHub(ctx)

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var welcome events.Event
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, events.EventType("CONNECTED"), welcome.Type)

	// Registration completes before the welcome is written
	require.Eventually(t, func() bool { return f.srv.hub.GetClientCount() == 1 }, time.Second, 10*time.Millisecond)

	f.bus.PublishTradeOpened("MT5_LIBERTEX_DEMO", "42", "GOLD", "swing", "BUY", 2000, 0.1)

	var opened events.Event
	require.NoError(t, conn.ReadJSON(&opened))
	assert.Equal(t, events.EventTradeOpened, opened.Type)
	assert.Equal(t, "42", opened.Data["ticket"])
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}
