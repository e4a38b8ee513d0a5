package changelog

import (
	"testing"
)

func TestParseOrderAndHighlight(t *testing.T) {
	doc := "## [2.0.0] - 2025-01-15\nSecurity fix.\n## [1.0.0] - 2024-01-01\nInitial."

	entries := Parse(doc)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}

	if entries[0].Version != "2.0.0" {
		t.Errorf("entries[0].Version = %s, want 2.0.0", entries[0].Version)
	}
	if !entries[0].Highlight || entries[0].Badge != "Security" {
		t.Errorf("entries[0] highlight = %v badge = %q, want true/Security", entries[0].Highlight, entries[0].Badge)
	}
	if entries[0].Date != "January 15, 2025" {
		t.Errorf("entries[0].Date = %q", entries[0].Date)
	}

	if entries[1].Version != "1.0.0" {
		t.Errorf("entries[1].Version = %s, want 1.0.0", entries[1].Version)
	}
	if entries[1].Highlight || entries[1].Badge != "" {
		t.Errorf("entries[1] should not be highlighted")
	}
	if entries[1].Body != "Initial." {
		t.Errorf("entries[1].Body = %q", entries[1].Body)
	}
}

func TestParseFallback(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", ""},
		{"whitespace", "   \n\n"},
		{"no headings", "# Changelog\n\nAll notable changes are documented here."},
		{"heading without date", "## [1.0.0]\nStuff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := Parse(tt.doc)
			if len(entries) != 1 {
				t.Fatalf("len(entries) = %d, want 1", len(entries))
			}
			if !entries[0].IsPlaceholder() {
				t.Errorf("entry = %+v, want placeholder", entries[0])
			}
			if entries[0].Version != "Not Available" {
				t.Errorf("Version = %q", entries[0].Version)
			}
		})
	}
}

func TestParseHeadingVariants(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		version string
		rawDate string
	}{
		{"brackets and hyphen", "## [1.2.3] - 2025-02-03", "1.2.3", "2025-02-03"},
		{"no brackets", "## 1.2 - 2025-02-03", "1.2", "2025-02-03"},
		{"en dash", "## [3.0.0] – 2025-02-03", "3.0.0", "2025-02-03"},
		{"slash date", "## [1.0.1] - 2025/12/31", "1.0.1", "2025-12-31"},
		{"four components", "##[1.2.3.4]-2025-02-03", "1.2.3.4", "2025-02-03"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := Parse(tt.doc)
			if len(entries) != 1 || entries[0].IsPlaceholder() {
				t.Fatalf("Parse() = %+v", entries)
			}
			if entries[0].Version != tt.version {
				t.Errorf("Version = %q, want %q", entries[0].Version, tt.version)
			}
			if entries[0].RawDate != tt.rawDate {
				t.Errorf("RawDate = %q, want %q", entries[0].RawDate, tt.rawDate)
			}
		})
	}
}

func TestParseCriticalIsCaseInsensitive(t *testing.T) {
	doc := "## [1.1.0] - 2025-03-01\n- CRITICAL: fixes data loss\n"
	entries := Parse(doc)
	if !entries[0].Highlight {
		t.Error("CRITICAL should mark the entry as highlighted")
	}
}

func TestParseSectionBoundaries(t *testing.T) {
	// The keyword in the older section must not leak into the newer one.
	doc := `# Changelog

## [1.1.0] - 2025-03-01
### Added
- Dark mode

## [1.0.0] - 2025-01-01
### Security
- Escaped output
`
	entries := Parse(doc)
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Highlight {
		t.Error("1.1.0 should not be highlighted")
	}
	if !entries[1].Highlight {
		t.Error("1.0.0 should be highlighted")
	}
	if entries[0].Body != "### Added\n- Dark mode" {
		t.Errorf("entries[0].Body = %q", entries[0].Body)
	}
}

func TestParseInvalidCalendarDate(t *testing.T) {
	entries := Parse("## [1.0.0] - 2025-13-45\nx")
	if entries[0].Date != "2025-13-45" {
		t.Errorf("Date = %q, want raw date", entries[0].Date)
	}
}

func TestSection(t *testing.T) {
	doc := "## [2.0.0] - 2025-01-15\n- new\n\n## [1.0.0] - 2024-01-01\n- old\n"

	body, ok := Section(doc, "1.0.0")
	if !ok {
		t.Fatal("Section(1.0.0) not found")
	}
	if body != "- old" {
		t.Errorf("body = %q", body)
	}

	if _, ok := Section(doc, "3.0.0"); ok {
		t.Error("Section(3.0.0) should not be found")
	}
	if _, ok := Section(doc, "2.0"); ok {
		t.Error("Section() must match the exact version")
	}
}
