// Package skills turns free-text skill lists into tokens and skill vectors.
package skills

import (
	"strings"
	"unicode"
)

// Normalize tokenizes a flat skill list. Each raw skill is lowercased and
// trimmed, every character other than ASCII letters, '+' and whitespace is
// dropped, and the result is split on whitespace. Tokens from all skills are
// concatenated in input order.
//
//	Normalize([]string{"C++", "Node.js", "Machine Learning"})
//	// => ["c++", "nodejs", "machine", "learning"]
func Normalize(skills []string) []string {
	var tokens []string
	for _, s := range skills {
		tokens = append(tokens, normalizeOne(s)...)
	}
	return tokens
}

// NormalizeSets tokenizes several skill lists at once, keeping one token
// sequence per list.
func NormalizeSets(sets [][]string) [][]string {
	out := make([][]string, len(sets))
	for i, set := range sets {
		tokens := Normalize(set)
		if tokens == nil {
			tokens = []string{}
		}
		out[i] = tokens
	}
	return out
}

func normalizeOne(skill string) []string {
	skill = strings.TrimSpace(strings.ToLower(skill))
	if skill == "" {
		return nil
	}
	return strings.Fields(strings.Map(keepRune, skill))
}

func keepRune(r rune) rune {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '+':
		return r
	case unicode.IsSpace(r):
		return r
	default:
		return -1
	}
}
