package pricing

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var currencyText = regexp.MustCompile(`(?i)^\s*(S/\.?|PEN|EUR|USD|KN)\s*|\s*(S/\.?|PEN|EUR|USD|KN)\s*$`)

// ParsePrice parses retailer price text into a decimal.
// Handles various formats: "12.99", "12,99", "1.299,00", "S/ 1,299.00", "€ 1 299,00"
func ParsePrice(value string) (decimal.Decimal, error) {
	if strings.TrimSpace(value) == "" {
		return decimal.Zero, fmt.Errorf("empty price value")
	}

	cleaned := currencyText.ReplaceAllString(strings.TrimSpace(value), "")
	cleaned = strings.Map(func(r rune) rune {
		if r == '€' || r == '$' || r == '£' || r == '¥' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)

	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("no numeric value found in %q", value)
	}

	cleaned = normalizeSeparators(cleaned)

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price format %q: %w", value, err)
	}
	return price, nil
}

// normalizeSeparators rewrites the text so "." is the only decimal separator.
// The right-most separator is the decimal one, unless a lone separator is
// followed by exactly three digits, which is a thousands group ("1.299", "1,299").
func normalizeSeparators(s string) string {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			// European format: 1.234,56
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 || len(s)-lastComma-1 == 3 {
			return strings.ReplaceAll(s, ",", "")
		}
		return strings.Replace(s, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
		return s
	}
	return s
}

// MustParse is ParsePrice for literals known to be valid
func MustParse(value string) decimal.Decimal {
	p, err := ParsePrice(value)
	if err != nil {
		panic(err)
	}
	return p
}

// Format renders a price with two decimals
func Format(p decimal.Decimal) string {
	return p.StringFixed(2)
}
