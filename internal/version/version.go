// Package version resolves the installed and latest available component
// versions and compares them.
package version

import (
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

// Sentinel version strings.
const (
	// NotInstalled is reported when the installation has no header file.
	NotInstalled = "Not installed"
	// Default is used when a header carries no Version token or the remote
	// header cannot be fetched.
	Default = "1.0.0"

	headerScanLimit = 8 << 10
)

var headerRegex = regexp.MustCompile(`(?i)Version:[ \t]*([^\r\n]*)`)

// ParseHeader extracts the first non-empty "Version: <token>" value.
func ParseHeader(content []byte) (string, bool) {
	for _, m := range headerRegex.FindAllSubmatch(content, -1) {
		if v := strings.TrimSpace(string(m[1])); v != "" {
			return v, true
		}
	}
	return "", false
}

// ReadHeaderFile returns the declared version in the header file at path.
// A missing file yields NotInstalled; a file without a token yields Default.
// Only the start of the file is scanned.
func ReadHeaderFile(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return NotInstalled
	}
	defer f.Close()

	head, err := io.ReadAll(io.LimitReader(f, headerScanLimit))
	if err != nil {
		return NotInstalled
	}
	if v, ok := ParseHeader(head); ok {
		return v
	}
	return Default
}

// Compare compares dotted numeric versions.
// Returns:
//
//	-1 if a < b
//	 0 if a == b
//	 1 if a > b
//
// Components are compared numerically left to right and missing trailing
// components count as zero, so "1.2" equals "1.2.0". A leading "v" is
// ignored, as is any non-numeric suffix on a component ("3-beta" is 3).
// Strings with no numeric components, such as NotInstalled, compare as 0.
func Compare(a, b string) int {
	pa, pb := components(a), components(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		if x != y {
			return compareInt(x, y)
		}
	}
	return 0
}

// NeedsUpdate reports whether latest is newer than current.
func NeedsUpdate(current, latest string) bool {
	return Compare(current, latest) < 0
}

func components(v string) []int {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(strings.TrimPrefix(v, "v"), "V")
	if v == "" {
		return nil
	}

	parts := strings.Split(v, ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		end := 0
		for end < len(p) && p[end] >= '0' && p[end] <= '9' {
			end++
		}
		n, err := strconv.Atoi(p[:end])
		if err != nil {
			n = 0
		}
		out[i] = n
	}
	return out
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
