// Package markdown holds helpers for cleaning model output that arrives
// wrapped in markdown.
package markdown

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CodeBlock is one fenced block.
type CodeBlock struct {
	Lang    string
	Content string
}

// FencedBlocks returns every fenced code block in source, in document order.
func FencedBlocks(source string) []CodeBlock {
	src := []byte(source)
	root := goldmark.DefaultParser().Parse(text.NewReader(src))

	var blocks []CodeBlock
	_ = ast.Walk(root, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		block := CodeBlock{Lang: string(fenced.Language(src))}
		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(src))
		}
		block.Content = content.String()

		blocks = append(blocks, block)
		return ast.WalkSkipChildren, nil
	})
	return blocks
}

// Unfence returns the content of the leading fenced block when s opens with
// a fence. Otherwise s is returned trimmed and ok is false.
func Unfence(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") && !strings.HasPrefix(trimmed, "~~~") {
		return trimmed, false
	}
	blocks := FencedBlocks(trimmed)
	if len(blocks) == 0 {
		return trimmed, false
	}
	return strings.TrimSpace(blocks[0].Content), true
}
