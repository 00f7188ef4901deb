package redact

import (
	"context"
	"regexp"
)

// regexBackend is the lightweight fallback used when no presidio
// analyzer is deployed. It covers the most common entity kinds only;
// other configured kinds are silently unsupported.
type regexBackend struct {
	patterns []entityPattern
}

type entityPattern struct {
	entity string
	re     *regexp.Regexp
}

// Detection order matters: credit cards must be consumed before the
// SSN and phone patterns can see their digit groups.
var regexPatterns = []entityPattern{
	{"EMAIL_ADDRESS", regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`)},
	{"PHONE_NUMBER", regexp.MustCompile(`\b(\+?1?\s?)?(\(?\d{3}\)?[\s.\-]?)(\d{3}[\s.\-]?\d{4})\b`)},
	{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d{4}[\s\-]?){3}\d{4}\b`)},
	{"US_SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{"IP_ADDRESS", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
}

func newRegexBackend(entities []string) *regexBackend {
	enabled := make(map[string]bool, len(entities))
	for _, e := range entities {
		enabled[e] = true
	}

	var patterns []entityPattern
	for _, p := range regexPatterns {
		if enabled[p.entity] {
			patterns = append(patterns, p)
		}
	}
	return &regexBackend{patterns: patterns}
}

func (b *regexBackend) Name() string {
	return "regex"
}

func (b *regexBackend) Redact(_ context.Context, text string) (*Result, error) {
	redacted := text
	entitiesFound := []string{}
	total := 0

	for _, p := range b.patterns {
		matches := p.re.FindAllStringIndex(redacted, -1)
		if len(matches) == 0 {
			continue
		}
		entitiesFound = append(entitiesFound, p.entity)
		total += len(matches)
		redacted = p.re.ReplaceAllLiteralString(redacted, placeholder(p.entity))
	}

	return &Result{
		RedactedText:   redacted,
		EntitiesFound:  entitiesFound,
		RedactionCount: total,
	}, nil
}
