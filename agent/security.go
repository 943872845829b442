package agent

import "regexp"

// ScanResult reports whether query text matched any injection pattern.
// Advisory only: it biases the guardrail's scoring context and feeds
// observability, it never blocks a query by itself.
type ScanResult struct {
	IsSuspicious    bool     `json:"is_suspicious"`
	MatchedPatterns []string `json:"matched_patterns,omitempty"`
}

// injectionPatterns covers instruction overrides, role reassignment,
// delimiter markers, and score-forcing phrases.
var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions?`),
	regexp.MustCompile(`(?i)disregard\s+(everything|all|prior)`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+a`),
	regexp.MustCompile(`(?i)pretend\s+(to\s+be|you'?re)`),
	regexp.MustCompile(`(?i)act\s+as\s+(a|an|if)`),
	regexp.MustCompile(`(?i)new\s+(instructions?|rules?):`),
	regexp.MustCompile(`(?i)system\s*prompt`),
	regexp.MustCompile(`(?i)<\|.*?\|>`),
	regexp.MustCompile(`(?i)\[INST\]|\[/INST\]`),
	regexp.MustCompile(`(?i)score\s*(it|this)?\s*as\s*\d+`),
	regexp.MustCompile(`(?i)(set|mark|make)\s*(is_in_scope|in_scope)\s*[=:]`),
	regexp.MustCompile(`(?i)override\s+(\w+\s+)?(safety|guardrail|filter)`),
}

// ScanForInjection runs the fixed pattern list against raw query text.
func ScanForInjection(text string) ScanResult {
	var matched []string
	for _, pattern := range injectionPatterns {
		if pattern.MatchString(text) {
			matched = append(matched, pattern.String())
		}
	}
	return ScanResult{IsSuspicious: len(matched) > 0, MatchedPatterns: matched}
}
