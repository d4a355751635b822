package scrape

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DetailParser extracts label/value pairs from a detail page. It is the
// single narrow seam around the brittle HTML parsing, so pipeline tests
// can swap it for a fake.
type DetailParser interface {
	ParseDetail(html []byte) (map[string]string, error)
}

// Parser implements DetailParser over the three observed page layouts:
// two-cell table rows, labelled award/funding sections, and free-text
// label-then-value blocks.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

var sectionPatterns = []struct {
	label   string
	pattern *regexp.Regexp
}{
	{"Award Ceiling", regexp.MustCompile(`(?i)award ceiling:?\s*\$?\s*([0-9][0-9,\.]*)`)},
	{"Award Floor", regexp.MustCompile(`(?i)award floor:?\s*\$?\s*([0-9][0-9,\.]*)`)},
	{"Expected Number of Awards", regexp.MustCompile(`(?i)expected number of awards:?\s*([0-9][0-9,]*)`)},
	{"Estimated Total Program Funding", regexp.MustCompile(`(?i)estimated total program funding:?\s*\$?\s*([0-9][0-9,\.]*)`)},
	{"Posted Date", regexp.MustCompile(`(?i)posted date:?\s*([A-Za-z]{3,9} \d{1,2}, \d{4}|\d{2}/\d{2}/\d{4})`)},
	{"Close Date", regexp.MustCompile(`(?i)close date:?\s*([A-Za-z]{3,9} \d{1,2}, \d{4}|\d{2}/\d{2}/\d{4})`)},
}

// ParseDetail runs every extraction strategy and merges results; earlier
// strategies win because table cells are more precise than text scans.
func (p *Parser) ParseDetail(html []byte) (map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail html: %w", err)
	}

	out := map[string]string{}
	merge(out, p.fromTables(doc))
	merge(out, p.fromSections(doc))
	merge(out, p.fromText(doc))
	if len(out) == 0 {
		return nil, fmt.Errorf("no recognizable fields in detail page")
	}
	return out, nil
}

// fromTables reads two-cell rows as label/value pairs.
func (p *Parser) fromTables(doc *goquery.Document) map[string]string {
	data := map[string]string{}
	doc.Find("table tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.Eq(0).Text())
		value := strings.TrimSpace(cells.Eq(1).Text())
		if label == "" || value == "" {
			return
		}
		data[label] = value
	})
	return data
}

// fromSections scans award/funding sections for labelled amounts.
func (p *Parser) fromSections(doc *goquery.Document) map[string]string {
	data := map[string]string{}
	doc.Find("section, div").Each(func(_ int, sel *goquery.Selection) {
		class, _ := sel.Attr("class")
		lower := strings.ToLower(class)
		if !strings.Contains(lower, "award") && !strings.Contains(lower, "funding") &&
			!strings.Contains(lower, "detail") && !strings.Contains(lower, "info") {
			return
		}
		text := sel.Text()
		for _, sp := range sectionPatterns {
			if _, seen := data[sp.label]; seen {
				continue
			}
			if m := sp.pattern.FindStringSubmatch(text); m != nil {
				data[sp.label] = m[1]
			}
		}
	})
	return data
}

// fromText is the last-ditch strategy: a label line followed (within a few
// lines) by its value somewhere in the page text.
func (p *Parser) fromText(doc *goquery.Document) map[string]string {
	data := map[string]string{}
	text := doc.Text()
	for _, sp := range sectionPatterns {
		if _, seen := data[sp.label]; seen {
			continue
		}
		if m := sp.pattern.FindStringSubmatch(text); m != nil {
			data[sp.label] = m[1]
		}
	}
	// Label on one line, value on one of the next few.
	lines := strings.Split(text, "\n")
	labelValue := map[string]*regexp.Regexp{
		"Award Ceiling":             regexp.MustCompile(`\$?\s*([0-9][0-9,\.]*)`),
		"Award Floor":               regexp.MustCompile(`\$?\s*([0-9][0-9,\.]*)`),
		"Expected Number of Awards": regexp.MustCompile(`([0-9][0-9,]*)`),
	}
	for i, line := range lines {
		trimmed := strings.ToLower(strings.TrimSpace(line))
		for label, valPattern := range labelValue {
			if _, seen := data[label]; seen {
				continue
			}
			if !strings.Contains(trimmed, strings.ToLower(label)) {
				continue
			}
			for j := i; j < len(lines) && j < i+5; j++ {
				candidate := lines[j]
				if j == i {
					// Skip the label itself when it sits on the same line.
					candidate = strings.SplitN(strings.ToLower(candidate), strings.ToLower(label), 2)[1]
				}
				if m := valPattern.FindStringSubmatch(candidate); m != nil {
					data[label] = m[1]
					break
				}
			}
		}
	}
	return data
}

func merge(dst, src map[string]string) {
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
}
