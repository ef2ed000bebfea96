package funcsite

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ReadUnified splits a multi-file `git diff` into per-file patches carrying
// only hunk text, the same shape the compare API returns.
func ReadUnified(r io.Reader) ([]Patch, error) {
	var (
		patches []Patch
		current *Patch
		body    strings.Builder
		inHunk  bool
	)

	flush := func() {
		if current == nil {
			return
		}
		current.Patch = strings.TrimSuffix(body.String(), "\n")
		patches = append(patches, *current)
		current = nil
		body.Reset()
		inHunk = false
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "diff --git ") {
			flush()
			current = &Patch{Filename: headerTarget(line)}
			continue
		}
		if current == nil {
			continue
		}

		if !inHunk {
			switch {
			case strings.HasPrefix(line, "+++ "):
				if target := strings.TrimPrefix(line, "+++ "); target != "/dev/null" {
					current.Filename = strings.TrimPrefix(target, "b/")
				}
				continue
			case strings.HasPrefix(line, "@@"):
				inHunk = true
			default:
				continue
			}
		}

		body.WriteString(line)
		body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read diff: %w", err)
	}
	flush()

	return patches, nil
}

func headerTarget(line string) string {
	rest := strings.TrimPrefix(line, "diff --git ")
	if idx := strings.LastIndex(rest, " b/"); idx >= 0 {
		return rest[idx+3:]
	}
	return strings.TrimPrefix(rest, "a/")
}
