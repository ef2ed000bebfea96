package docstring

import (
	"strings"

	"github.com/theroutercompany/docsync/internal/funcsite"
)

// Apply inserts each docstring as a JSDoc block above the first declaration
// of its function, replacing a JSDoc block that already sits directly above
// it. Functions without a recognised declaration are left untouched. The
// second return value lists the names that were applied.
func Apply(source string, docs Map) (string, []string) {
	if len(docs) == 0 {
		return source, nil
	}

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines)+4*len(docs))
	done := make(map[string]struct{}, len(docs))
	var applied []string

	for _, line := range lines {
		name, _, ok := funcsite.MatchDeclaration(line)
		doc, wanted := docs[name]
		if _, seen := done[name]; !ok || !wanted || seen {
			out = append(out, line)
			continue
		}

		out = dropTrailingJSDoc(out)
		out = append(out, formatJSDoc(doc, leadingWhitespace(line))...)
		out = append(out, line)
		done[name] = struct{}{}
		applied = append(applied, name)
	}

	return strings.Join(out, "\n"), applied
}

func formatJSDoc(doc, indent string) []string {
	doc = strings.TrimSpace(doc)
	if strings.HasPrefix(doc, "/**") {
		lines := strings.Split(doc, "\n")
		for i, line := range lines {
			trimmed := strings.TrimSpace(line)
			if i > 0 && strings.HasPrefix(trimmed, "*") {
				trimmed = " " + trimmed
			}
			lines[i] = indent + trimmed
		}
		return lines
	}

	block := []string{indent + "/**"}
	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "*"))
		if trimmed == "" {
			block = append(block, indent+" *")
			continue
		}
		block = append(block, indent+" * "+trimmed)
	}
	return append(block, indent+" */")
}

func dropTrailingJSDoc(out []string) []string {
	if len(out) == 0 || !strings.HasSuffix(strings.TrimSpace(out[len(out)-1]), "*/") {
		return out
	}
	last := len(out) - 1
	for i := last; i >= 0; i-- {
		trimmed := strings.TrimSpace(out[i])
		switch {
		case strings.HasPrefix(trimmed, "/**"):
			return out[:i]
		case strings.HasPrefix(trimmed, "/*"):
			return out
		case i != last && !strings.HasPrefix(trimmed, "*"):
			return out
		}
	}
	return out
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
