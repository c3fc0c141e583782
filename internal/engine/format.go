package engine

import (
	"fmt"
	"strings"
	"unicode"
)

// TextNA is the placeholder rendered for cells whose metric field is
// absent from the dataset.
const TextNA = "N/A"

// TextZero is the placeholder rendered for computed zeros.
const TextZero = "-"

// monetaryTokens mark fields rendered as whole-dollar amounts.
var monetaryTokens = []string{
	"actualincurred", "nominalreserves", "discountedreserves",
	"ocl", "changeinocl", "reserves", "incurred", "claim", "amount",
}

// ratioTokens mark fields rendered as percentages.
var ratioTokens = []string{"rate", "ratio", "percent"}

// integerTokens mark fields rendered as grouped whole numbers.
var integerTokens = []string{"count", "number", "quantity", "year"}

// FormatValue renders a computed numeric value using field-name
// heuristics. A computed zero always renders as the "-" placeholder so
// dense reserve tables stay readable.
func FormatValue(v float64, field string) string {
	if v == 0 {
		return TextZero
	}

	name := strings.ToLower(field)
	switch {
	case containsAny(name, monetaryTokens):
		return "$" + groupDigits(fmt.Sprintf("%.0f", v))
	case containsAny(name, ratioTokens):
		// Values at or below one are treated as proportions.
		if v <= 1 {
			return fmt.Sprintf("%.2f%%", v*100)
		}
		return fmt.Sprintf("%.2f%%", v)
	case containsAny(name, integerTokens):
		return groupDigits(fmt.Sprintf("%.0f", v))
	default:
		return groupDigits(fmt.Sprintf("%.2f", v))
	}
}

// FormatCount renders a row tally as a grouped integer. Counts are in
// units of rows, not the counted field's display unit, so the field
// heuristics never apply.
func FormatCount(v float64) string {
	if v == 0 {
		return TextZero
	}
	return groupDigits(fmt.Sprintf("%.0f", v))
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// groupDigits inserts thousands separators into the integer part of a
// plain formatted number, preserving sign and fraction.
func groupDigits(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign = "-"
		s = s[1:]
	}
	intPart, frac, hasFrac := strings.Cut(s, ".")

	n := len(intPart)
	if n > 3 {
		var b strings.Builder
		pre := n % 3
		if pre > 0 {
			b.WriteString(intPart[:pre])
		}
		for i := pre; i < n; i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(intPart[i : i+3])
		}
		intPart = b.String()
	}

	if hasFrac {
		return sign + intPart + "." + frac
	}
	return sign + intPart
}

// FormatHeader turns a raw column name into a display header:
// underscores become spaces and each word is title-cased.
func FormatHeader(field string) string {
	words := strings.Split(strings.ReplaceAll(field, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
