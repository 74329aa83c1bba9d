package textnorm

import (
	"regexp"
	"strings"

	"github.com/gosimple/unidecode"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s]+`)
	whitespace      = regexp.MustCompile(`\s+`)
)

// Normalize folds value into the canonical comparison form: lowercase ASCII
// letters and digits separated by single spaces. Normalize(Normalize(x)) ==
// Normalize(x) for every input.
func Normalize(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	// Transliteration can emit uppercase (Æ -> AE), so lower again.
	value = strings.ToLower(unidecode.Unidecode(value))
	value = nonAlphanumeric.ReplaceAllString(value, " ")
	value = whitespace.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// Tokens splits the normalized form of value into its words.
func Tokens(value string) []string {
	normalized := Normalize(value)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}
