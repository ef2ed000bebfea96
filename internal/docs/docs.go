// Package docs produces repository-level documentation from a push diff:
// refreshed README text and an optional Mermaid architecture diagram.
package docs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/theroutercompany/docsync/internal/config"
	"github.com/theroutercompany/docsync/internal/llm"
	"github.com/theroutercompany/docsync/internal/markdown"
)

// DiagramMarker in any commit message requests a diagram.
const DiagramMarker = "[diagram]"

const readmePrompt = `You are a documentation bot.

Your job:
- Read a git diff
- Update ONLY the relevant parts of README.md
- Keep it professional and concise
- Do NOT explain the diff
- Output pure Markdown

GIT DIFF:
`

const diagramPrompt = `You are a software architect.

Based ONLY on the git diff below, infer a HIGH-LEVEL system architecture.

Rules:
- Use Mermaid "graph TD"
- Prefer concrete components (Frontend, API, Database)
- If HTML or JS is present, include "Frontend"
- If fetch() or HTTP is present, include "API"
- Keep it simple but meaningful
- Return ONLY Mermaid code (no backticks, no explanations)

GIT DIFF:
`

// Writer asks a single model for README and diagram text.
type Writer struct {
	backend llm.Generator
	model   string
}

// NewWriter returns a Writer bound to model.
func NewWriter(backend llm.Generator, model string) (*Writer, error) {
	if backend == nil {
		return nil, errors.New("docs: backend required")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("docs: model required")
	}
	return &Writer{backend: backend, model: model}, nil
}

// Readme returns updated README markdown for patch. Blank patches produce no
// text and no backend call.
func (w *Writer) Readme(ctx context.Context, patch string) (string, error) {
	if strings.TrimSpace(patch) == "" {
		return "", nil
	}
	out, err := w.backend.Generate(ctx, w.model, readmePrompt+patch+"\n")
	if err != nil {
		return "", fmt.Errorf("docs: readme: %w", err)
	}
	text, _ := markdown.Unfence(out)
	return text, nil
}

// Diagram returns Mermaid source for patch, without fences.
func (w *Writer) Diagram(ctx context.Context, patch string) (string, error) {
	if strings.TrimSpace(patch) == "" {
		return "", nil
	}
	out, err := w.backend.Generate(ctx, w.model, diagramPrompt+patch+"\n")
	if err != nil {
		return "", fmt.Errorf("docs: diagram: %w", err)
	}
	text, _ := markdown.Unfence(out)
	return text, nil
}

// WantsDiagram reports whether cfg enables diagrams and one of messages
// carries the marker.
func WantsDiagram(cfg config.RepoConfig, messages []string) bool {
	if !cfg.GenerateDiagram || cfg.DiagramTrigger != config.DiagramTriggerCommitMessage {
		return false
	}
	for _, msg := range messages {
		if strings.Contains(strings.ToLower(msg), DiagramMarker) {
			return true
		}
	}
	return false
}

// AppendDiagram adds an Architecture section holding diagram to readme.
func AppendDiagram(readme, diagram string) string {
	diagram = strings.TrimSpace(diagram)
	if diagram == "" {
		return readme
	}
	section := "## Architecture\n\n```mermaid\n" + diagram + "\n```\n"
	if strings.TrimSpace(readme) == "" {
		return section
	}
	return readme + "\n\n" + section
}

// CombinedPatch joins the non-empty patches with newlines.
func CombinedPatch(patches []string) string {
	kept := make([]string, 0, len(patches))
	for _, p := range patches {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
