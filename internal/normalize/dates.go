package normalize

import (
	"strings"
	"time"
)

// CanonicalDateLayout is the single stored representation for dates.
const CanonicalDateLayout = "2006-01-02"

// dateLayouts lists the source formats observed across the four tiers:
// search hits use MM/DD/YYYY, scraped pages show "Mon DD, YYYY", the API
// occasionally returns ISO, and timestamps appear with clock components.
var dateLayouts = []string{
	"01/02/2006",
	"01-02-2006",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"01/02/2006 3:04 PM",
	"01-02-2006 3:04 PM",
	"2006-01-02 3:04 PM",
	"01/02/2006 15:04",
	"2006-01-02 15:04",
	time.RFC3339,
}

// Date normalizes a date-like string to CanonicalDateLayout. Unparseable
// input is preserved as sanitized raw text rather than dropped, so the
// reader still sees whatever the source published.
func Date(raw string) string {
	s := CleanText(raw)
	if s == "" {
		return ""
	}
	if d, ok := parseFixedWidthDate(s); ok {
		return d.Format(CanonicalDateLayout)
	}
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d.Format(CanonicalDateLayout)
		}
	}
	return s
}

// parseFixedWidthDate handles the bulk extract's 8-digit MMDDYYYY encoding
// with strict range validation. time.Parse enforces month and day ranges,
// including month lengths.
func parseFixedWidthDate(s string) (time.Time, bool) {
	if len(s) != 8 || strings.ContainsFunc(s, func(r rune) bool { return r < '0' || r > '9' }) {
		return time.Time{}, false
	}
	d, err := time.Parse("01022006", s)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
