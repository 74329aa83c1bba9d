package domain

import (
	"regexp"
	"strings"

	"github.com/smallbiznis/quicksearch/internal/textnorm"
)

// VariantRule detects a mutually exclusive product variant in the raw query.
// Triggers run against the lowercased query before tokenization. Markers and
// Opposing are phrases matched on whole words of a candidate's normalized name.
//
// Token is the catalog word added to the match set and must appear in product
// names, so opposing rules may share it. Rules are told apart by Name through
// Query.Variants, never by Token.
type VariantRule struct {
	Name     string
	Triggers []*regexp.Regexp
	Token    string
	Markers  []string
	Opposing []string
}

// Detect reports whether any trigger matches the raw query.
func (r VariantRule) Detect(rawQuery string) bool {
	lowered := strings.ToLower(rawQuery)
	for _, trigger := range r.Triggers {
		if trigger.MatchString(lowered) {
			return true
		}
	}
	return false
}

// Adjust returns +bonus when normalizedName carries a marker, -bonus when it
// carries an opposing marker, else 0.
func (r VariantRule) Adjust(normalizedName string, bonus float64) float64 {
	haystack := " " + normalizedName + " "
	if containsPhrase(haystack, r.Markers) {
		return bonus
	}
	if containsPhrase(haystack, r.Opposing) {
		return -bonus
	}
	return 0
}

func containsPhrase(haystack string, phrases []string) bool {
	for _, phrase := range phrases {
		phrase = textnorm.Normalize(phrase)
		if phrase == "" {
			continue
		}
		if strings.Contains(haystack, " "+phrase+" ") {
			return true
		}
	}
	return false
}

// DefaultVariantRules covers the sealed/unsealed hose distinction.
func DefaultVariantRules() []VariantRule {
	return []VariantRule{
		{
			Name: "con_sello",
			Triggers: []*regexp.Regexp{
				regexp.MustCompile(`\bcon\s+sello\b`),
				regexp.MustCompile(`\bc\s*/\s*sello\b`),
			},
			Token:    "sello",
			Markers:  []string{"con sello", "c sello", "sello iram"},
			Opposing: []string{"sin sello", "s sello"},
		},
		{
			Name: "sin_sello",
			Triggers: []*regexp.Regexp{
				regexp.MustCompile(`\bsin\s+sello\b`),
				regexp.MustCompile(`\bs\s*/\s*sello\b`),
			},
			Token:    "sello",
			Markers:  []string{"sin sello", "s sello"},
			Opposing: []string{"con sello", "c sello", "sello iram"},
		},
	}
}
