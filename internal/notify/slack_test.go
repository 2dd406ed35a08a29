package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sora-lab/inga-quant/internal/watchlist"
	"github.com/sora-lab/inga-quant/pkg/httputil"
	"github.com/sora-lab/inga-quant/pkg/logger"
)

func testClient() *httputil.Client {
	return httputil.New(logger.Nop()).DisableRetry()
}

func TestBuildPayload_TradeJapanese(t *testing.T) {
	top3 := []watchlist.Entry{
		{Ticker: "72030", Name: "トヨタ自動車", Score: 0.0432, ReasonShort: "ret 20d"},
		{Ticker: "67580", Name: "ソニーグループ", Score: 0.0311, ReasonShort: "liq score"},
	}

	p := BuildPayload("2026-02-16", "TRADE", 0.031, 120, nil, top3, "ja")

	assert.Contains(t, p.Text, ":white_check_mark:")
	assert.Contains(t, p.Text, "inga-quant 日次レポート — 2026-02-16")
	assert.Contains(t, p.Text, "アクション: *TRADE*")
	assert.Contains(t, p.Text, "WF IC: 0.0310  |  対象: 120")
	assert.Contains(t, p.Text, "1. 72030 トヨタ自動車  score=0.0432  ret 20d")
	assert.Contains(t, p.Text, "NO_TRADE 理由:\n  なし")
}

func TestBuildPayload_NoTradeEnglish(t *testing.T) {
	reasons := []string{"gate:walk_forward — WF IC -0.0200 <= threshold 0.01"}

	p := BuildPayload("2026-02-16", "NO_TRADE", -0.02, 4, reasons, nil, "en")

	assert.Contains(t, p.Text, ":no_entry:")
	assert.Contains(t, p.Text, "Action: *NO_TRADE*")
	assert.Contains(t, p.Text, "WF IC: -0.0200  |  Eligible: 4")
	assert.Contains(t, p.Text, "Top 3:\n  (none)")
	assert.Contains(t, p.Text, "• gate:walk_forward")
}

func TestBuildPayload_NameMatchingTickerOmitted(t *testing.T) {
	top3 := []watchlist.Entry{{Ticker: "72030", Name: "72030", Score: 0.01, ReasonShort: "composite"}}
	p := BuildPayload("2026-02-16", "TRADE", 0.01, 10, nil, top3, "en")
	assert.Contains(t, p.Text, "1. 72030  score=0.0100")
	assert.NotContains(t, p.Text, "72030 72030")
}

func TestSend_Success(t *testing.T) {
	var received Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok := Send(context.Background(), testClient(), srv.URL, Payload{Text: "hello"}, "", logger.Nop())
	assert.True(t, ok)
	assert.Equal(t, "hello", received.Text)
}

func TestSend_FailureWritesFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	fallback := filepath.Join(t.TempDir(), "out", "slack_payload.json")
	ok := Send(context.Background(), testClient(), srv.URL, Payload{Text: "失敗テスト"}, fallback, logger.Nop())
	assert.False(t, ok)

	data, err := os.ReadFile(fallback)
	require.NoError(t, err)
	var p Payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "失敗テスト", p.Text)
}

func TestSend_NoWebhookWritesFallback(t *testing.T) {
	fallback := filepath.Join(t.TempDir(), "slack_payload.json")
	ok := Send(context.Background(), testClient(), "", Payload{Text: "オフライン"}, fallback, logger.Nop())
	assert.False(t, ok)

	_, err := os.Stat(fallback)
	assert.NoError(t, err)
}
