package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metaapi-trading-bot/config"
	"metaapi-trading-bot/internal/analysis"
	"metaapi-trading-bot/internal/logging"
)

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		reply string
		want  Verdict
	}{
		{"YES", VerdictYes},
		{"yes, the trend supports it", VerdictYes},
		{"Ja.", VerdictYes},
		{"NO", VerdictNo},
		{"**No** - RSI is overbought", VerdictNo},
		{"nein", VerdictNo},
		{"", VerdictUnclear},
		{"Maybe later", VerdictUnclear},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseVerdict(tt.reply))
		})
	}
}

type fakeCompleter struct {
	reply string
	err   error
}

func (f fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	return f.reply, f.err
}

func TestTradeConfirmer(t *testing.T) {
	res := analysis.Result{Signal: analysis.SignalBuy, Confidence: 60, Indicators: map[string]float64{"rsi": 28}}
	ctx := context.Background()

	ok, err := NewTradeConfirmer(fakeCompleter{reply: "YES"}, logging.Nop()).Confirm(ctx, "GOLD", res)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewTradeConfirmer(fakeCompleter{reply: "No."}, logging.Nop()).Confirm(ctx, "GOLD", res)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = NewTradeConfirmer(fakeCompleter{reply: "I am not sure"}, logging.Nop()).Confirm(ctx, "GOLD", res)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = NewTradeConfirmer(fakeCompleter{err: errors.New("timeout")}, logging.Nop()).Confirm(ctx, "GOLD", res)
	assert.Error(t, err)
}

func TestBuildConfirmationPrompt(t *testing.T) {
	prompt := BuildConfirmationPrompt("SILVER", analysis.Result{
		Signal:     analysis.SignalSell,
		Confidence: 52.5,
		Signals:    []string{"RSI: overbought (SELL)"},
		Indicators: map[string]float64{"rsi": 74, "atr": 0.4},
	})
	assert.Contains(t, prompt, "Instrument: SILVER")
	assert.Contains(t, prompt, "Proposed direction: SELL")
	assert.Contains(t, prompt, "RSI: overbought (SELL)")
	assert.Contains(t, prompt, "- atr: 0.4000")
}

func TestClaudeClient(t *testing.T) {
	var gotKey, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"m1","content":[{"type":"text","text":"YES"}]}`))
	}))
	defer srv.Close()

	client := NewClient(&ClientConfig{Provider: ProviderClaude, APIKey: "key", Model: "m", MaxTokens: 8, BaseURL: srv.URL})
	out, err := client.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)
	assert.Equal(t, "YES", out)
	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "/v1/messages", gotPath)
}

func TestChatClientSurfacesAPIError(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req OpenAIRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad key"}}`))
	}))
	defer srv.Close()

	client := NewClient(&ClientConfig{Provider: ProviderDeepSeek, APIKey: "k2", Model: "deepseek-chat", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "sys", "user")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.Equal(t, "Bearer k2", gotAuth)
}

func TestUnconfiguredClient(t *testing.T) {
	client := NewClient(ConfigFromAI(config.AIConfig{LLMProvider: "openai"}))
	assert.Equal(t, ProviderOpenAI, client.GetProvider())
	_, err := client.Complete(context.Background(), "s", "u")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
