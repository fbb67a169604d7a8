package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermesquantum/signalbot/pkg/models"
)

func testNotifier(serverURL string) *TelegramNotifier {
	n := NewTelegramNotifier("test-token", "123")
	n.baseURL = serverURL
	return n
}

func resultSignal() *models.Signal {
	result := models.ResultWin
	open, closePrice := 1.1, 1.105
	return &models.Signal{
		ID:           1,
		Symbol:       "EUR/USD",
		Timeframe:    "1m",
		Direction:    models.DirectionBuy,
		ExecutedAt:   time.Date(2025, 6, 1, 12, 31, 0, 0, time.UTC),
		SentAt:       time.Date(2025, 6, 1, 12, 30, 52, 0, time.UTC),
		Result:       &result,
		OpenPrice:    &open,
		ClosePrice:   &closePrice,
		PostAnalysis: "Price moved up as predicted",
	}
}

func TestSendResult(t *testing.T) {
	var gotPath, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotText = r.PostFormValue("text")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := testNotifier(server.URL)
	require.NoError(t, n.SendResult(context.Background(), resultSignal()))

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Contains(t, gotText, "RESULT: ✅ WIN")
	assert.Contains(t, gotText, "EUR/USD")
	assert.Contains(t, gotText, "Price moved up as predicted")
}

func TestSendSignalWithChart(t *testing.T) {
	var gotPath, caption string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		caption = r.PostFormValue("caption")

		_, _, err := r.FormFile("photo")
		require.NoError(t, err)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	chartPath := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(chartPath, []byte("png-bytes"), 0o644))

	signal := resultSignal()
	signal.Confidence = 96
	signal.RiskLevel = models.RiskLow

	n := testNotifier(server.URL)
	require.NoError(t, n.SendSignal(context.Background(), signal, chartPath))

	assert.Equal(t, "/bottest-token/sendPhoto", gotPath)
	assert.Contains(t, caption, "HERMES QUANTUM AI MASTER")
	assert.Contains(t, caption, "EUR/USD")
	assert.Contains(t, caption, "AI POWER SCORE: 96.0%")
}

func TestSendSignalFallsBackToText(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if strings.HasSuffix(r.URL.Path, "/sendPhoto") {
			_, _ = w.Write([]byte(`{"ok":false,"description":"photo too big"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	chartPath := filepath.Join(t.TempDir(), "chart.png")
	require.NoError(t, os.WriteFile(chartPath, []byte("png-bytes"), 0o644))

	n := testNotifier(server.URL)
	require.NoError(t, n.SendSignal(context.Background(), resultSignal(), chartPath))

	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[0], "/sendPhoto"))
	assert.True(t, strings.HasSuffix(paths[1], "/sendMessage"))
}

func TestReconfigureAppliesNewCredentials(t *testing.T) {
	var paths []string
	var chatIDs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		require.NoError(t, r.ParseForm())
		chatIDs = append(chatIDs, r.PostFormValue("chat_id"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := testNotifier(server.URL)
	require.NoError(t, n.SendResult(context.Background(), resultSignal()))

	n.Reconfigure("fresh-token", "456")
	require.NoError(t, n.SendResult(context.Background(), resultSignal()))

	require.Len(t, paths, 2)
	assert.Equal(t, "/bottest-token/sendMessage", paths[0])
	assert.Equal(t, "/botfresh-token/sendMessage", paths[1])
	assert.Equal(t, []string{"123", "456"}, chatIDs)
}

func TestReconfigureClearedCredentials(t *testing.T) {
	n := NewTelegramNotifier("token", "123")
	n.Reconfigure("", "")

	assert.Error(t, n.SendResult(context.Background(), resultSignal()))
}

func TestSendWithoutCredentials(t *testing.T) {
	n := NewTelegramNotifier("", "")

	assert.Error(t, n.SendSignal(context.Background(), resultSignal(), ""))
	assert.Error(t, n.SendResult(context.Background(), resultSignal()))
}

func TestAPIRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	n := testNotifier(server.URL)
	err := n.SendResult(context.Background(), resultSignal())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
