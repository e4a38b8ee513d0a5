package changelog

import (
	"bytes"
	"html"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Messages used when a release section cannot be shown.
const (
	NoDetailsHTML = "<p>No detailed changelog available for this version.</p>"

	componentsNote = "<p><em>This is the latest version information from the repository. " +
		"Detailed changelog will be available after the next update.</em></p>"
)

// Release sections sit under a level-2 heading, so nested headings are
// pushed down one level ("### Fixed" renders as <h4>).
type headingShifter struct{}

func (headingShifter) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level < 6 {
			h.Level++
		}
		return ast.WalkContinue, nil
	})
}

var markdown = goldmark.New(
	goldmark.WithParserOptions(
		parser.WithASTTransformers(util.Prioritized(headingShifter{}, 100)),
	),
	goldmark.WithRendererOptions(
		gmhtml.WithHardWraps(),
	),
)

// MarkdownToHTML renders a release body. Raw HTML in the source is dropped.
func MarkdownToHTML(body string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(body), &buf); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// RenderSection renders the section for version as HTML. When the document
// has no usable section for it, the known component versions are listed
// instead, and failing that a fixed "no details" message is returned.
func RenderSection(doc, version string, components map[string]string) string {
	if body, ok := Section(doc, version); ok && body != "" {
		if out, err := MarkdownToHTML(body); err == nil && out != "" {
			return out
		}
	}
	if len(components) > 0 {
		return ComponentsHTML(components)
	}
	return NoDetailsHTML
}

// ComponentsHTML lists component versions sorted by component name.
func ComponentsHTML(components map[string]string) string {
	names := make([]string, 0, len(components))
	for name := range components {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("<h4>Component Versions</h4><ul>")
	for _, name := range names {
		b.WriteString("<li><strong>")
		b.WriteString(html.EscapeString(name))
		b.WriteString(":</strong> ")
		b.WriteString(html.EscapeString(components[name]))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	b.WriteString(componentsNote)
	return b.String()
}
