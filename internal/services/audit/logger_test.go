package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/models"
)

func newTestLogger(t *testing.T, webhookURL string) (*Logger, string) {
	t.Helper()

	logFile := filepath.Join(t.TempDir(), "logs", "audit.jsonl")
	l, err := NewLogger(config.AuditConfig{
		LogFile:        logFile,
		SIEMWebhookURL: webhookURL,
		SIEMTimeout:    3 * time.Second,
	}, zap.NewNop())
	require.NoError(t, err)
	return l, logFile
}

func sampleEntry(requestID, status string) *models.AuditEntry {
	return &models.AuditEntry{
		Timestamp:           models.UTCTimestamp(time.Now()),
		RequestID:           requestID,
		TeamID:              "finance-team",
		ProviderRequested:   "anthropic",
		ProviderUsed:        "anthropic",
		ModelUsed:           "claude-sonnet-4-6",
		PromptTokens:        120,
		CompletionTokens:    80,
		EstimatedCostUSD:    0.0016,
		PIIEntitiesRedacted: []string{"EMAIL_ADDRESS"},
		PIIRedactionCount:   1,
		LatencyMS:           412.5,
		Status:              status,
	}
}

func TestLogger_LogAndRecent(t *testing.T) {
	l, logFile := newTestLogger(t, "")

	require.NoError(t, l.Log(sampleEntry("req-1", models.AuditStatusSuccess)))
	require.NoError(t, l.Log(sampleEntry("req-2", models.AuditStatusError)))
	require.NoError(t, l.Log(sampleEntry("req-3", models.AuditStatusSuccess)))

	t.Run("file holds one JSON object per line", func(t *testing.T) {
		data, err := os.ReadFile(logFile)
		require.NoError(t, err)

		var entry models.AuditEntry
		lines := 0
		for _, line := range splitLines(data) {
			require.NoError(t, json.Unmarshal(line, &entry))
			lines++
		}
		assert.Equal(t, 3, lines)
	})

	t.Run("recent returns newest first", func(t *testing.T) {
		entries, err := l.Recent(10)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, "req-3", entries[0].RequestID)
		assert.Equal(t, "req-1", entries[2].RequestID)
	})

	t.Run("limit truncates", func(t *testing.T) {
		entries, err := l.Recent(2)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "req-3", entries[0].RequestID)
		assert.Equal(t, "req-2", entries[1].RequestID)
	})
}

func TestLogger_RecentMissingFile(t *testing.T) {
	l, _ := newTestLogger(t, "")

	entries, err := l.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogger_RecentSkipsMalformedLines(t *testing.T) {
	l, logFile := newTestLogger(t, "")

	require.NoError(t, l.Log(sampleEntry("req-1", models.AuditStatusSuccess)))

	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, l.Log(sampleEntry("req-2", models.AuditStatusSuccess)))

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "req-2", entries[0].RequestID)
	assert.Equal(t, "req-1", entries[1].RequestID)
}

func TestLogger_SIEMForwarding(t *testing.T) {
	received := make(chan map[string]json.RawMessage, 1)
	siem := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var payload map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer siem.Close()

	l, _ := newTestLogger(t, siem.URL)
	require.NoError(t, l.Log(sampleEntry("req-1", models.AuditStatusSuccess)))

	select {
	case payload := <-received:
		var sourcetype string
		require.NoError(t, json.Unmarshal(payload["sourcetype"], &sourcetype))
		assert.Equal(t, "ai_gateway", sourcetype)

		var entry models.AuditEntry
		require.NoError(t, json.Unmarshal(payload["event"], &entry))
		assert.Equal(t, "req-1", entry.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("SIEM webhook was never called")
	}
}

func TestLogger_SIEMFailureDoesNotBlockLogging(t *testing.T) {
	siem := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer siem.Close()

	l, _ := newTestLogger(t, siem.URL)
	require.NoError(t, l.Log(sampleEntry("req-1", models.AuditStatusSuccess)))

	entries, err := l.Recent(10)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 {
			lines = append(lines, line)
		}
	}
	return lines
}
