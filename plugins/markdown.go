package plugins

import (
	"bytes"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

// DefaultHighlightStyle is the chroma style used for chapter previews
const DefaultHighlightStyle = "monokai"

// MarkdownRenderer converts chapter markdown to HTML with highlighted code blocks
type MarkdownRenderer struct {
	markdown goldmark.Markdown
}

// NewMarkdownRenderer creates a renderer using the given chroma style
func NewMarkdownRenderer(style string) *MarkdownRenderer {
	if style == "" {
		style = DefaultHighlightStyle
	}
	markdown := goldmark.New(
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle(style),
				highlighting.WithFormatOptions(
					chromahtml.WithLineNumbers(true),
				),
			),
		),
	)
	return &MarkdownRenderer{markdown: markdown}
}

// Render implements core.MarkdownRenderer
func (r *MarkdownRenderer) Render(source []byte) ([]byte, error) {
	var html bytes.Buffer
	if err := r.markdown.Convert(source, &html); err != nil {
		return nil, err
	}
	return html.Bytes(), nil
}

var headingParser = goldmark.New().Parser()

// FirstHeading returns the raw text of the first top-level "# " heading in
// a markdown body, up to the end of its line. Setext headings and headings
// nested in quotes or lists are ignored.
func FirstHeading(source []byte) (string, bool) {
	doc := headingParser.Parse(text.NewReader(source))

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 1 || heading.Lines().Len() == 0 {
			continue
		}

		first := heading.Lines().At(0)
		lineStart := bytes.LastIndexByte(source[:first.Start], '\n') + 1
		if !bytes.HasPrefix(bytes.TrimLeft(source[lineStart:first.Start], " "), []byte("#")) {
			continue // setext
		}

		// the parser drops an ATX closing sequence; keep the line as written
		lineEnd := len(source)
		if i := bytes.IndexByte(source[first.Start:], '\n'); i >= 0 {
			lineEnd = first.Start + i
		}

		title := strings.TrimSpace(string(source[first.Start:lineEnd]))
		if title != "" {
			return title, true
		}
	}

	return "", false
}
