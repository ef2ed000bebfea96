package docstring

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/theroutercompany/docsync/internal/markdown"
)

// ErrMalformedOutput is returned when the model output is not a JSON object of
// strings. It is never retried.
var ErrMalformedOutput = errors.New("docstring: malformed model output")

var (
	fenceLine  = regexp.MustCompile("(?im)^[ \t]*```(json)?[ \t]*$")
	fenceOpen  = regexp.MustCompile("(?i)^```(json)?")
	fenceClose = regexp.MustCompile("```$")
)

// Normalize strips markdown wrappers a model may emit around its answer. When
// the answer opens with a fenced block, the block content is used verbatim.
// Otherwise stray fence lines and markers glued to either end are removed;
// backticks inside the payload are left alone.
func Normalize(raw string) string {
	if content, ok := markdown.Unfence(raw); ok {
		return content
	}
	s := strings.TrimSpace(fenceLine.ReplaceAllString(raw, ""))
	s = fenceOpen.ReplaceAllString(s, "")
	s = fenceClose.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Parse normalizes raw and decodes it as a name → docstring object. Keys not
// listed in requested are dropped.
func Parse(raw string, requested []string) (Map, error) {
	cleaned := Normalize(raw)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if decoded == nil {
		return nil, fmt.Errorf("%w: expected a JSON object", ErrMalformedOutput)
	}

	allowed := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		allowed[name] = struct{}{}
	}

	out := make(Map, len(decoded))
	for name, value := range decoded {
		if _, ok := allowed[name]; !ok {
			continue
		}
		doc, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: value for %q is %T, want string", ErrMalformedOutput, name, value)
		}
		out[name] = doc
	}
	return out, nil
}
