// Package extract recovers the source text of named JavaScript/TypeScript
// functions so that only the relevant code is sent for documentation.
//
// Recognition is textual. A span runs from the declaration keyword to the
// first line that begins with a closing brace, so nested blocks that close at
// column zero, braces inside strings and same-named overloads can produce a
// wrong span. Names that match no shape produce nothing.
package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Shape identifies the recogniser that produced a snippet.
type Shape string

const (
	ShapeAsyncFunction Shape = "async-function"
	ShapeFunction      Shape = "function"
	ShapeAsyncArrow    Shape = "async-arrow"
	ShapeArrow         Shape = "arrow"
)

// Snippet is the verbatim text of one function.
type Snippet struct {
	Name  string
	Shape Shape
	Text  string
}

type recognizer struct {
	shape  Shape
	format string
}

// Tried in order; the first match wins.
var recognizers = []recognizer{
	{ShapeAsyncFunction, `async\s+function\s+%s\s*\([^)]*\)\s*\{[\s\S]*?\n\}`},
	{ShapeFunction, `function\s+%s\s*\([^)]*\)\s*\{[\s\S]*?\n\}`},
	{ShapeAsyncArrow, `const\s+%s\s*=\s*async\s*\([^)]*\)\s*=>\s*\{[\s\S]*?\n\}`},
	{ShapeArrow, `const\s+%s\s*=\s*\([^)]*\)\s*=>\s*\{[\s\S]*?\n\}`},
}

// Snippets returns one snippet per name that matched, in request order.
func Snippets(source string, names []string) []Snippet {
	out := make([]Snippet, 0, len(names))
	for _, name := range names {
		if snippet, ok := find(source, name); ok {
			out = append(out, snippet)
		}
	}
	return out
}

// Extract joins the snippets for names with a blank line. The result is empty
// when nothing matched.
func Extract(source string, names []string) string {
	snippets := Snippets(source, names)
	texts := make([]string, len(snippets))
	for i, s := range snippets {
		texts[i] = s.Text
	}
	return strings.Join(texts, "\n\n")
}

func find(source, name string) (Snippet, bool) {
	if strings.TrimSpace(name) == "" {
		return Snippet{}, false
	}
	quoted := regexp.QuoteMeta(name)
	for _, r := range recognizers {
		pattern := regexp.MustCompile(fmt.Sprintf(r.format, quoted))
		if text := pattern.FindString(source); text != "" {
			return Snippet{Name: name, Shape: r.shape, Text: text}, true
		}
	}
	return Snippet{}, false
}
