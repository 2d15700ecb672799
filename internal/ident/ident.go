// Package ident normalizes component and variable identifiers.
//
// Names arrive from three places: the system structure XML, user input, and
// result file names on disk. Some filesystems store names decomposed (NFD),
// so all comparisons go through NFC.
package ident

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Normalize returns the NFC form of name with surrounding whitespace removed.
func Normalize(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// Equal reports whether a and b name the same identifier.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
