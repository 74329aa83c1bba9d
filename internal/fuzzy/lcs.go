package fuzzy

import "math/bits"

// pattern holds per-rune match masks for bit-parallel LCS against strings of
// at most 64 runes.
type pattern struct {
	size  int
	ascii [128]uint64
	other map[rune]uint64
}

func newPattern(runes []rune) *pattern {
	if len(runes) == 0 || len(runes) > 64 {
		return nil
	}
	p := &pattern{size: len(runes)}
	for i, r := range runes {
		bit := uint64(1) << uint(i)
		if r >= 0 && r < 128 {
			p.ascii[r] |= bit
			continue
		}
		if p.other == nil {
			p.other = make(map[rune]uint64)
		}
		p.other[r] |= bit
	}
	return p
}

func (p *pattern) mask(r rune) uint64 {
	if r >= 0 && r < 128 {
		return p.ascii[r]
	}
	return p.other[r]
}

// lcs computes the longest common subsequence length between the pattern and text.
func (p *pattern) lcs(text []rune) int {
	s := ^uint64(0)
	for _, r := range text {
		u := s & p.mask(r)
		s = (s + u) | (s - u)
	}
	var used uint64
	if p.size == 64 {
		used = ^uint64(0)
	} else {
		used = (uint64(1) << uint(p.size)) - 1
	}
	return bits.OnesCount64(^s & used)
}

func lcsLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	if p := newPattern(a); p != nil {
		return p.lcs(b)
	}
	return lcsTable(a, b)
}

func lcsTable(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			switch {
			case a[i-1] == b[j-1]:
				curr[j] = prev[j-1] + 1
			case prev[j] >= curr[j-1]:
				curr[j] = prev[j]
			default:
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
