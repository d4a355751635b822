// Package normalize maps heterogeneous source payloads onto the canonical
// opportunity record, applying type coercion and text sanitization.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxTextLen caps every text field before persistence. Values beyond the
// cap are truncated with a marker rather than rejected.
const MaxTextLen = 32000

const truncationMarker = "... (truncated)"

var (
	nonNumericFloat = regexp.MustCompile(`[^0-9.\-]`)
	nonNumericInt   = regexp.MustCompile(`[^0-9\-]`)
)

// CleanText strips null bytes and bounds length. Truncation backs up to
// a rune boundary so a multibyte character is never split.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.TrimSpace(s)
	if len(s) > MaxTextLen {
		cut := MaxTextLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		return s[:cut] + truncationMarker
	}
	return s
}

// Money coerces a currency-formatted value ("$1,500,000", "1500000") into a
// float64. Invalid input returns the default, never an error.
func Money(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case int:
		return float64(t)
	case string:
		cleaned := nonNumericFloat.ReplaceAllString(t, "")
		if cleaned == "" || cleaned == "." || cleaned == "-" || cleaned == "-." {
			return 0
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Count coerces an integer-like value ("25", "1,000") with the same
// default-on-invalid policy as Money.
func Count(v any) int {
	switch t := v.(type) {
	case nil:
		return 0
	case int:
		return t
	case float64:
		return int(t)
	case string:
		cleaned := nonNumericInt.ReplaceAllString(t, "")
		if cleaned == "" || cleaned == "-" {
			return 0
		}
		n, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// Stringify renders any scalar payload value as a cleaned string.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return CleanText(t)
	case float64:
		// JSON numbers decode as float64; ids are integral.
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
