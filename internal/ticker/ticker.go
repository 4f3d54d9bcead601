// Package ticker canonicalizes and validates short exchange symbols.
package ticker

import (
	"strings"
	"unicode"
)

// MaxLen is the longest accepted symbol length.
const MaxLen = 5

// Normalize returns the canonical form of a symbol for comparison and
// uniqueness checks. The originally-cased symbol is what gets stored;
// Normalize is only used for matching.
func Normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Valid reports whether a symbol is acceptable as an entity identifier:
// 1-5 characters, alphanumeric, and not purely numeric. Callers are
// expected to reject invalid symbols before they reach the roster.
func Valid(symbol string) bool {
	symbol = strings.TrimSpace(symbol)
	if len(symbol) == 0 || len(symbol) > MaxLen {
		return false
	}
	hasLetter := false
	for _, r := range symbol {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
		default:
			return false
		}
	}
	return hasLetter
}
