// Package changelog turns a CHANGELOG.md document into version entries and
// renders individual release sections for display.
//
// A release section starts at a heading of the form
//
//	## [2.1.0] - 2025-01-15
//
// Brackets are optional, the separator may be a hyphen or an en dash, and
// the date may use "/" instead of "-". The section body runs until the next
// release heading or the end of the document.
package changelog

import (
	"regexp"
	"strings"
	"time"
)

// Placeholder values for the entry returned when no changelog is available.
const (
	PlaceholderVersion = "Not Available"
	PlaceholderDate    = "Add CHANGELOG.md to repository root"

	SecurityBadge = "Security"

	displayDateLayout = "January 2, 2006"
)

var headingRegex = regexp.MustCompile(`(?m)^[ \t]*##[ \t]*\[?(\d+(?:\.\d+)+)\]?[ \t]*[-–][ \t]*(\d{4}[-/]\d{2}[-/]\d{2})[^\n]*$`)

// Entry is one release in the changelog, most recent first.
type Entry struct {
	Version   string `json:"version"`
	Date      string `json:"date"`
	RawDate   string `json:"raw_date,omitempty"`
	Highlight bool   `json:"highlight"`
	Badge     string `json:"badge,omitempty"`
	Body      string `json:"body,omitempty"`
}

// IsPlaceholder reports whether e is the synthetic "no changelog" entry.
// Placeholder entries are not real versions and must not be offered for
// selection.
func (e Entry) IsPlaceholder() bool {
	return e.Version == PlaceholderVersion
}

// Fallback returns the single-entry list used when the changelog is missing,
// empty or has no release headings.
func Fallback() []Entry {
	return []Entry{{Version: PlaceholderVersion, Date: PlaceholderDate}}
}

type section struct {
	version string
	rawDate string
	body    string
}

func sections(doc string) []section {
	matches := headingRegex.FindAllStringSubmatchIndex(doc, -1)
	out := make([]section, 0, len(matches))
	for i, m := range matches {
		end := len(doc)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		out = append(out, section{
			version: doc[m[2]:m[3]],
			rawDate: strings.ReplaceAll(doc[m[4]:m[5]], "/", "-"),
			body:    strings.TrimSpace(doc[m[1]:end]),
		})
	}
	return out
}

// Parse extracts release entries in document order. It never returns an
// empty slice: documents without release headings yield Fallback().
func Parse(doc string) []Entry {
	secs := sections(doc)
	if len(secs) == 0 {
		return Fallback()
	}

	entries := make([]Entry, 0, len(secs))
	for _, s := range secs {
		e := Entry{
			Version: s.version,
			Date:    displayDate(s.rawDate),
			RawDate: s.rawDate,
			Body:    s.body,
		}
		if isSecurityRelevant(s.body) {
			e.Highlight = true
			e.Badge = SecurityBadge
		}
		entries = append(entries, e)
	}
	return entries
}

// Section returns the trimmed markdown body for version, and whether a
// heading for it exists.
func Section(doc, version string) (string, bool) {
	version = strings.TrimSpace(version)
	for _, s := range sections(doc) {
		if s.version == version {
			return s.body, true
		}
	}
	return "", false
}

func isSecurityRelevant(body string) bool {
	lower := strings.ToLower(body)
	return strings.Contains(lower, "security") || strings.Contains(lower, "critical")
}

// displayDate formats 2025-01-15 as "January 15, 2025". Dates that do not
// exist on the calendar are shown as written.
func displayDate(raw string) string {
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return raw
	}
	return t.Format(displayDateLayout)
}
