package redact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
)

// presidioBackend detects PII through a Presidio Analyzer instance and
// applies the replacement policy locally: each detected span becomes
// the literal <ENTITY_KIND> token, overlaps resolved longest-span-first
// then first-occurrence.
type presidioBackend struct {
	analyzerURL    string
	language       string
	entities       []string
	scoreThreshold float64
	logger         *zap.Logger
	httpClient     *http.Client
}

type analyzeRequest struct {
	Text           string   `json:"text"`
	Language       string   `json:"language"`
	Entities       []string `json:"entities,omitempty"`
	ScoreThreshold float64  `json:"score_threshold,omitempty"`
}

type analyzeEntity struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

func newPresidioBackend(cfg config.PresidioConfig, entities []string, logger *zap.Logger) *presidioBackend {
	return &presidioBackend{
		analyzerURL:    strings.TrimSuffix(cfg.AnalyzerURL, "/"),
		language:       cfg.Language,
		entities:       entities,
		scoreThreshold: cfg.ScoreThreshold,
		logger:         logger.Named("presidio"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (b *presidioBackend) Name() string {
	return "presidio"
}

func (b *presidioBackend) Redact(ctx context.Context, text string) (*Result, error) {
	detections, err := b.analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(detections) == 0 {
		return &Result{RedactedText: text, EntitiesFound: []string{}}, nil
	}

	spans := resolveOverlaps(detections)

	// Replace right to left so earlier span offsets stay valid.
	// Analyzer offsets are character positions, so work on runes.
	runes := []rune(text)
	sort.Slice(spans, func(i, j int) bool { return spans[i].Start > spans[j].Start })

	entitySet := make(map[string]bool)
	for _, s := range spans {
		if s.Start < 0 || s.End > len(runes) || s.Start >= s.End {
			continue
		}
		entitySet[s.EntityType] = true
		replacement := []rune(placeholder(s.EntityType))
		runes = append(runes[:s.Start], append(replacement, runes[s.End:]...)...)
	}

	entitiesFound := make([]string, 0, len(entitySet))
	for e := range entitySet {
		entitiesFound = append(entitiesFound, e)
	}
	sort.Strings(entitiesFound)

	return &Result{
		RedactedText:   string(runes),
		EntitiesFound:  entitiesFound,
		RedactionCount: len(spans),
	}, nil
}

func (b *presidioBackend) analyze(ctx context.Context, text string) ([]analyzeEntity, error) {
	reqBody, err := json.Marshal(analyzeRequest{
		Text:           text,
		Language:       b.language,
		Entities:       b.entities,
		ScoreThreshold: b.scoreThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", b.analyzerURL+"/analyze", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call analyzer: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}

	var entities []analyzeEntity
	if err := json.NewDecoder(resp.Body).Decode(&entities); err != nil {
		return nil, fmt.Errorf("failed to decode analyze response: %w", err)
	}
	return entities, nil
}

// resolveOverlaps keeps a non-overlapping subset of detections,
// preferring longer spans, then earlier ones.
func resolveOverlaps(detections []analyzeEntity) []analyzeEntity {
	sorted := make([]analyzeEntity, len(detections))
	copy(sorted, detections)
	sort.Slice(sorted, func(i, j int) bool {
		li, lj := sorted[i].End-sorted[i].Start, sorted[j].End-sorted[j].Start
		if li != lj {
			return li > lj
		}
		return sorted[i].Start < sorted[j].Start
	})

	var kept []analyzeEntity
	for _, d := range sorted {
		overlaps := false
		for _, k := range kept {
			if d.Start < k.End && k.Start < d.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}
	return kept
}
