package blocking

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Ratio is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// TokenSetRatio compares "shared + only-in-a" with "shared + only-in-b", each side
// sorted. Word order and duplicated words do not matter. A name that is a strict
// subset of the other does not score 1.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return Ratio(a, b)
	}
	var shared, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			shared = append(shared, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(shared)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(shared, " ")
	return Ratio(joinNonEmpty(base, strings.Join(onlyA, " ")), joinNonEmpty(base, strings.Join(onlyB, " ")))
}

// Score is the blocking similarity of two normalized names.
func Score(a, b string) float64 {
	r := Ratio(a, b)
	if ts := TokenSetRatio(a, b); ts > r {
		return ts
	}
	return r
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(s)
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + " " + b
	}
}

// trigrams returns the distinct character trigrams of a space-padded name.
func trigrams(norm string) []string {
	if norm == "" {
		return nil
	}
	runes := []rune(" " + norm + " ")
	if len(runes) < 3 {
		return []string{string(runes)}
	}
	seen := make(map[string]struct{}, len(runes))
	out := make([]string, 0, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		g := string(runes[i : i+3])
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
