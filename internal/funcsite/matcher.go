// Package funcsite locates function declaration sites in unified-diff patches
// and attributes added lines to the nearest declaration above them.
//
// Matching is pattern based. A declaration is recognised by the first shape in
// declarationShapes that matches a line once its diff marker is removed; no
// attempt is made to track scopes or braces.
package funcsite

import (
	"regexp"
	"strings"
)

// Patch is the diff text for one file. Patch is empty for binary files and
// pure renames.
type Patch struct {
	Filename string `json:"filename"`
	Patch    string `json:"patch,omitempty"`
}

// SourceSuffixes lists the file suffixes the matcher inspects.
var SourceSuffixes = []string{".js", ".ts"}

// Shape names a declaration form recognised by the matcher.
type Shape string

const (
	ShapeExportedFunction Shape = "exported-function"
	ShapeFunction         Shape = "function"
	ShapeConstArrow       Shape = "const-arrow"
	ShapeLetArrow         Shape = "let-arrow"
)

type declarationShape struct {
	shape   Shape
	pattern *regexp.Regexp
}

// Order matters: the first shape that matches wins.
var declarationShapes = []declarationShape{
	{ShapeExportedFunction, regexp.MustCompile(`export\s+function\s+([a-zA-Z0-9_]+)`)},
	{ShapeFunction, regexp.MustCompile(`function\s+([a-zA-Z0-9_]+)`)},
	{ShapeConstArrow, regexp.MustCompile(`const\s+([a-zA-Z0-9_]+)\s*=\s*\(`)},
	{ShapeLetArrow, regexp.MustCompile(`let\s+([a-zA-Z0-9_]+)\s*=\s*\(`)},
}

// Supported reports whether filename carries one of SourceSuffixes.
func Supported(filename string) bool {
	for _, suffix := range SourceSuffixes {
		if strings.HasSuffix(filename, suffix) {
			return true
		}
	}
	return false
}

// MatchDeclaration reports the function name declared on line, if any. line
// may still carry its diff marker.
func MatchDeclaration(line string) (string, Shape, bool) {
	stripped := strings.TrimSpace(stripMarker(line))
	for _, decl := range declarationShapes {
		if m := decl.pattern.FindStringSubmatch(stripped); m != nil {
			return m[1], decl.shape, true
		}
	}
	return "", "", false
}

// Scan walks each supported patch once and records, per file, the functions
// that received at least one added line. Added lines seen before any
// declaration are not attributed.
func Scan(patches []Patch) ChangeMap {
	result := make(ChangeMap)

	for _, p := range patches {
		if p.Patch == "" || !Supported(p.Filename) {
			continue
		}

		current := ""
		for _, raw := range strings.Split(p.Patch, "\n") {
			if name, _, ok := MatchDeclaration(raw); ok {
				current = name
				continue
			}
			if current != "" && strings.HasPrefix(raw, "+") {
				result.add(p.Filename, current)
			}
		}
	}

	return result
}

func stripMarker(line string) string {
	if line == "" {
		return line
	}
	switch line[0] {
	case '+', '-', ' ':
		return line[1:]
	}
	return line
}
