package utils

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// NormalizePostcode upper-cases a postcode and strips every whitespace rune.
// Example:
//
//	" bh1  1aa " → "BH11AA"
func NormalizePostcode(postcode string) string {
	var b strings.Builder
	b.Grow(len(postcode))
	for _, r := range postcode {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// QueryString returns the trimmed value of key, or "" when absent.
func QueryString(q url.Values, key string) string {
	return strings.TrimSpace(q.Get(key))
}

// QueryFloat parses key as a float, returning fallback when the key is absent.
func QueryFloat(q url.Values, key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number", key)
	}
	return v, nil
}
