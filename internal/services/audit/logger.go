// Package audit writes the metadata-only request trail. Every gateway
// request produces exactly one entry; prompt and completion text never
// reach this package.
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
	"github.com/amerfu/aigw/internal/models"
)

const siemSourcetype = "ai_gateway"

// Logger appends entries to a JSONL file and optionally mirrors each
// entry to a SIEM webhook. The file write is synchronous so the trail
// is durable before the response leaves; SIEM forwarding is
// fire-and-forget.
type Logger struct {
	mu         sync.Mutex
	logFile    string
	webhookURL string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewLogger(cfg config.AuditConfig, logger *zap.Logger) (*Logger, error) {
	if dir := filepath.Dir(cfg.LogFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	return &Logger{
		logFile:    cfg.LogFile,
		webhookURL: cfg.SIEMWebhookURL,
		httpClient: &http.Client{Timeout: cfg.SIEMTimeout},
		logger:     logger.Named("audit"),
	}, nil
}

// Log appends one entry. File errors are reported to the caller; SIEM
// delivery failures are logged and swallowed.
func (l *Logger) Log(entry *models.AuditEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	l.mu.Lock()
	err = l.append(line)
	l.mu.Unlock()
	if err != nil {
		return err
	}

	if l.webhookURL != "" {
		go l.forward(entry)
	}
	return nil
}

func (l *Logger) append(line []byte) error {
	f, err := os.OpenFile(l.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// forward mirrors one entry to the SIEM webhook. Failures never affect
// request handling.
func (l *Logger) forward(entry *models.AuditEntry) {
	payload, err := json.Marshal(map[string]interface{}{
		"event":      entry,
		"sourcetype": siemSourcetype,
	})
	if err != nil {
		l.logger.Warn("Failed to marshal SIEM payload", zap.Error(err))
		return
	}

	req, err := http.NewRequestWithContext(context.Background(), "POST", l.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		l.logger.Warn("Failed to create SIEM request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		l.logger.Warn("SIEM forward failed",
			zap.String("request_id", entry.RequestID),
			zap.Error(err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		l.logger.Warn("SIEM webhook rejected entry",
			zap.String("request_id", entry.RequestID),
			zap.Int("status", resp.StatusCode))
	}
}

// Recent returns up to limit entries, newest first. Lines that fail to
// parse are skipped so one corrupt record cannot hide the rest.
func (l *Logger) Recent(limit int) ([]*models.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.logFile)
	if err != nil {
		if os.IsNotExist(err) {
			return []*models.AuditEntry{}, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []*models.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry models.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			l.logger.Warn("Skipping malformed audit line", zap.Error(err))
			continue
		}
		entries = append(entries, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	// Newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []*models.AuditEntry{}
	}
	return entries, nil
}
