package types

import "strings"

// Normalize collapses whitespace and trims the text. Used for intent keys,
// candidate identity and answer comparison; displayed text keeps its casing.
func Normalize(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeKey lowercases on top of Normalize, for map keys.
func NormalizeKey(s string) string {
	return strings.ToLower(Normalize(s))
}
