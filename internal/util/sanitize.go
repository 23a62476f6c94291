package util

import (
	"strings"
	"unicode"
)

// ContainsSuspicious reports markup or template fragments in user input.
func ContainsSuspicious(s string) bool {
	lower := strings.ToLower(s)
	for _, c := range []string{"<", ">", "${", "{{", "javascript:", "onerror=", "onload="} {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// NormalizeTerm lowercases a search term and collapses inner whitespace.
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// IsIdentifier reports whether s is a non-empty backend identifier: digits,
// ASCII letters, '-' or '_' only.
func IsIdentifier(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
