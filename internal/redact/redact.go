// Package redact strips credentials from text before it leaves the
// process. Error logs routinely carry connection strings, tokens, and
// API keys; every prompt sent to the completion API passes through a
// Scrubber first so those values never reach a third party.
package redact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultReplacement substitutes matched secrets in scrubbed output.
const DefaultReplacement = "[REDACTED]"

// Rule describes a single detection pattern.
type Rule struct {
	// ID identifies the rule in findings and logs.
	ID string `koanf:"id"`

	// Pattern is the regular expression that matches the secret.
	Pattern string `koanf:"pattern"`

	// Keywords, when set, gate the rule: the pattern is only tried
	// if at least one keyword appears in the input. Keeps broad
	// patterns cheap on large inputs.
	Keywords []string `koanf:"keywords"`
}

// Config configures a Scrubber. Scrubbing is on unless explicitly
// disabled.
type Config struct {
	// Disabled turns scrubbing off. Scrub then returns input unchanged.
	Disabled bool `koanf:"disabled"`

	// Replacement substitutes each match. Defaults to DefaultReplacement.
	Replacement string `koanf:"replacement"`

	// ExtraRules are applied in addition to the built-in rule set.
	ExtraRules []Rule `koanf:"extra_rules"`
}

// DefaultConfig returns scrubbing enabled with the built-in rules.
func DefaultConfig() Config {
	return Config{
		Replacement: DefaultReplacement,
	}
}

// Finding records a single redaction. The matched text is deliberately
// not retained.
type Finding struct {
	RuleID string
	Line   int
}

type compiledRule struct {
	id       string
	pattern  *regexp.Regexp
	keywords []string
}

// Scrubber redacts secrets from text using a fixed rule set.
type Scrubber struct {
	enabled     bool
	replacement string
	rules       []compiledRule
}

// NewScrubber compiles the built-in rules plus any extras from cfg.
func NewScrubber(cfg Config) (*Scrubber, error) {
	s := &Scrubber{
		enabled:     !cfg.Disabled,
		replacement: cfg.Replacement,
	}
	if s.replacement == "" {
		s.replacement = DefaultReplacement
	}

	all := append(defaultRules(), cfg.ExtraRules...)
	for _, r := range all {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redact: rule %q: %w", r.ID, err)
		}
		lowered := make([]string, len(r.Keywords))
		for i, kw := range r.Keywords {
			lowered[i] = strings.ToLower(kw)
		}
		s.rules = append(s.rules, compiledRule{id: r.ID, pattern: re, keywords: lowered})
	}
	return s, nil
}

// Enabled reports whether scrubbing is active.
func (s *Scrubber) Enabled() bool {
	return s.enabled
}

type span struct {
	start, end int
	ruleID     string
}

// Scrub returns content with every detected secret replaced and a
// finding per match. A disabled scrubber returns the input unchanged.
func (s *Scrubber) Scrub(content string) (string, []Finding) {
	if !s.enabled || content == "" {
		return content, nil
	}

	lowered := strings.ToLower(content)
	var spans []span
	for _, rule := range s.rules {
		if !keywordsPresent(lowered, rule.keywords) {
			continue
		}
		for _, m := range rule.pattern.FindAllStringIndex(content, -1) {
			spans = append(spans, span{start: m[0], end: m[1], ruleID: rule.id})
		}
	}
	if len(spans) == 0 {
		return content, nil
	}

	merged := mergeSpans(spans)

	findings := make([]Finding, 0, len(merged))
	var b strings.Builder
	prev := 0
	for _, sp := range merged {
		findings = append(findings, Finding{
			RuleID: sp.ruleID,
			Line:   strings.Count(content[:sp.start], "\n") + 1,
		})
		b.WriteString(content[prev:sp.start])
		b.WriteString(s.replacement)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String(), findings
}

func keywordsPresent(lowered string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

// mergeSpans collapses overlapping matches so replacements never
// splice into each other. The earliest rule wins the merged span's ID.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end > spans[j].end
	})
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}
