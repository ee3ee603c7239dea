// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from user input
// and rendering them with a currency symbol for display.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Commas
// that form thousands groups (1,000 or 1,250.50, also 1,00,000) are dropped.
// A single comma not followed by exactly three digits is a decimal comma.
// Malformed grouping is rejected. A leading plus sign is tolerated; negative values are rejected with ErrInvalidAmount
// because an expense amount can never be below zero. Zero is a valid amount.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("1,000") -> 1000, nil
//	ParseAmount("0")     -> 0, nil
//	ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.TrimPrefix(s, "+")
	s, ok := normalizeSeparators(s)
	if !ok {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	// Reject exponents and anything decimal.NewFromString would be lenient about
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

func normalizeSeparators(s string) (string, bool) {
	if !strings.Contains(s, ",") {
		return s, true
	}
	intPart, frac, hasDot := strings.Cut(s, ".")
	groups := strings.Split(intPart, ",")
	if !hasDot && len(groups) == 2 && len(groups[1]) != 3 {
		// Decimal comma
		return groups[0] + "." + groups[1], true
	}
	if !validGrouping(groups) {
		return "", false
	}
	out := strings.Join(groups, "")
	if hasDot {
		out += "." + frac
	}
	return out, true
}

// validGrouping accepts western (1,234,567) and Indian (12,34,567) digit
// grouping: the last group has three digits, inner groups two or three.
func validGrouping(groups []string) bool {
	last := len(groups) - 1
	for i, g := range groups {
		switch {
		case i == 0:
			if len(g) < 1 || len(g) > 3 {
				return false
			}
		case i == last:
			if len(g) != 3 {
				return false
			}
		default:
			if len(g) != 2 && len(g) != 3 {
				return false
			}
		}
	}
	return true
}

// FormatAmount renders an amount rounded to two places behind the currency
// symbol, e.g. "€12.50".
func FormatAmount(a decimal.Decimal, c Currency) string {
	return c.Symbol() + a.StringFixed(2)
}
