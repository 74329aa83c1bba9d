package service

import (
	"strings"

	"github.com/kljensen/snowball"
	"github.com/smallbiznis/quicksearch/internal/textnorm"
)

const minStemmedLen = 4

// keywords returns the Spanish stems of name that differ from the words
// themselves, so "extintores" also matches "extintor".
func keywords(name string) *string {
	seen := map[string]struct{}{}
	var stems []string
	for _, token := range textnorm.Tokens(name) {
		if len([]rune(token)) < minStemmedLen {
			continue
		}
		stem, err := snowball.Stem(token, "spanish", true)
		if err != nil || stem == "" || stem == token {
			continue
		}
		if _, ok := seen[stem]; ok {
			continue
		}
		seen[stem] = struct{}{}
		stems = append(stems, stem)
	}
	if len(stems) == 0 {
		return nil
	}
	joined := strings.Join(stems, " ")
	return &joined
}
