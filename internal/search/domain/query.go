package domain

import (
	"strings"

	"github.com/smallbiznis/quicksearch/internal/textnorm"
)

var stopwords = map[string]struct{}{
	"a": {}, "al": {}, "c": {}, "s": {}, "con": {}, "de": {}, "del": {}, "e": {}, "el": {},
	"en": {}, "la": {}, "las": {}, "lo": {}, "los": {}, "o": {}, "para": {}, "p": {},
	"por": {}, "u": {}, "un": {}, "una": {}, "unos": {}, "unas": {}, "y": {}, "x": {},
}

// IsStopword reports whether token is dropped from match tokens.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}

// Query is a parsed search request.
type Query struct {
	Raw        string
	Normalized string
	// Tokens are the deduplicated non-stopword tokens followed by synthetic
	// variant tokens.
	Tokens   []string
	Variants []VariantRule
}

// ParseQuery normalizes raw and evaluates rules against it.
func ParseQuery(raw string, rules []VariantRule) Query {
	q := Query{Raw: raw, Normalized: textnorm.Normalize(raw)}
	if q.Normalized == "" {
		return q
	}

	seen := make(map[string]struct{})
	add := func(token string) {
		if token == "" {
			return
		}
		if _, ok := seen[token]; ok {
			return
		}
		seen[token] = struct{}{}
		q.Tokens = append(q.Tokens, token)
	}

	for _, token := range strings.Fields(q.Normalized) {
		if IsStopword(token) {
			continue
		}
		add(token)
	}
	for _, rule := range rules {
		if rule.Detect(raw) {
			q.Variants = append(q.Variants, rule)
			add(rule.Token)
		}
	}
	return q
}

// Empty reports whether the query has no searchable text.
func (q Query) Empty() bool {
	return q.Normalized == ""
}

// VariantAdjustment sums every detected rule's adjustment for normalizedName.
func (q Query) VariantAdjustment(normalizedName string, bonus float64) float64 {
	var total float64
	for _, rule := range q.Variants {
		total += rule.Adjust(normalizedName, bonus)
	}
	return total
}

// CacheKey is the suggestion cache key for a raw query.
func CacheKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
