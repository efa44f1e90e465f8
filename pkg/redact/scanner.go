// Package redact masks secrets and personal identifiers in free text before it is
// persisted: chat turns in the session store and the event log.
package redact

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// Mask replaces every match.
const Mask = "[redacted]"

// Scanner finds and masks sensitive substrings.
type Scanner interface {
	// Scan returns the masked text and whether anything was masked.
	Scan(ctx context.Context, text string) (redacted string, hadRedactions bool, err error)
}

// PatternScanner masks regular expression matches.
type PatternScanner struct {
	patterns []*regexp.Regexp
	timeout  time.Duration
}

// NewPatternScanner compiles the default patterns plus extra. A bad extra pattern is an
// error; timeout bounds one Scan (zero means none).
func NewPatternScanner(timeout time.Duration, extra ...string) (*PatternScanner, error) {
	s := &PatternScanner{patterns: compileDefaultPatterns(), timeout: timeout}
	for _, p := range extra {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", p, err)
		}
		s.patterns = append(s.patterns, re)
	}
	return s, nil
}

func compileDefaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// Provider keys
		`sk-ant-[A-Za-z0-9_-]{20,}`,
		`sk-proj-[A-Za-z0-9_-]{20,}`,
		`sk-[A-Za-z0-9]{32,}`,
		`AIza[0-9A-Za-z_-]{35}`,
		`AKIA[0-9A-Z]{16}`,
		`Bearer\s+[A-Za-z0-9._-]{20,}`,
		`(?i)(?:api[_-]?key|secret|password)\s*[:=]\s*['"]?[^\s'"]{8,}['"]?`,
		`-----BEGIN\s+(?:RSA|DSA|EC|OPENSSH|PGP)\s+PRIVATE\s+KEY-----`,

		// Personal identifiers
		`\b\d{17}[\dXx]\b`,
		`\b1[3-9]\d{9}\b`,
		`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Scan masks every pattern match in text.
func (s *PatternScanner) Scan(ctx context.Context, text string) (string, bool, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	redacted := text
	found := false
	for _, re := range s.patterns {
		if err := ctx.Err(); err != nil {
			return "", false, fmt.Errorf("scan cancelled: %w", err)
		}
		if !re.MatchString(redacted) {
			continue
		}
		found = true
		redacted = re.ReplaceAllLiteralString(redacted, Mask)
	}
	return redacted, found, nil
}

// Text masks text with s. On scanner failure the text is dropped rather than stored
// unmasked.
func Text(ctx context.Context, s Scanner, text string) string {
	if s == nil || text == "" {
		return text
	}
	redacted, _, err := s.Scan(ctx, text)
	if err != nil {
		return Mask
	}
	return redacted
}
