package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/theroutercompany/docsync/internal/docstring"
	"github.com/theroutercompany/docsync/internal/github"
)

const (
	readmePath          = "README.md"
	readmeCommitMessage = "docs: auto-update documentation"
	pullTitle           = "docs: sync documentation with code changes"
	pullBody            = "Automated documentation update by DocSync bot 🤖"
	suggestionsHeading  = "### 🤖 Docstring Suggestions"
)

type publication struct {
	owner      string
	repo       string
	base       string
	readme     string
	docstrings []FileDocstrings
	auto       bool
}

// BranchName returns the docsync branch for a run started at unixMillis.
func BranchName(unixMillis int64) string {
	return fmt.Sprintf("docsync-%d", unixMillis)
}

func (o *Orchestrator) publish(ctx context.Context, client RepoClient, p publication) (github.Pull, error) {
	branch := BranchName(o.now().UnixMilli())

	head, err := client.GetRef(ctx, p.owner, p.repo, p.base)
	if err != nil {
		return github.Pull{}, fmt.Errorf("resolve %s: %w", p.base, err)
	}
	if err := client.CreateRef(ctx, p.owner, p.repo, branch, head); err != nil {
		return github.Pull{}, fmt.Errorf("create branch %s: %w", branch, err)
	}

	if strings.TrimSpace(p.readme) != "" {
		if err := o.commitReadme(ctx, client, p, branch); err != nil {
			return github.Pull{}, err
		}
	}

	if p.auto {
		for _, fd := range p.docstrings {
			updated, applied := docstring.Apply(fd.Source.Text, fd.Docs)
			if len(applied) == 0 || updated == fd.Source.Text {
				continue
			}
			err := client.PutFile(ctx, p.owner, p.repo, github.FileUpdate{
				Path:    fd.File,
				Message: "docs: add docstrings to " + fd.File,
				Content: updated,
				Branch:  branch,
				SHA:     fd.Source.SHA,
			})
			if err != nil {
				return github.Pull{}, fmt.Errorf("commit docstrings to %s: %w", fd.File, err)
			}
		}
	}

	pull, err := client.CreatePull(ctx, p.owner, p.repo, github.NewPull{
		Title: pullTitle,
		Head:  branch,
		Base:  p.base,
		Body:  pullBody,
	})
	if err != nil {
		return github.Pull{}, fmt.Errorf("open pull request: %w", err)
	}

	if len(p.docstrings) > 0 {
		if err := client.CreateComment(ctx, p.owner, p.repo, pull.Number, RenderSuggestions(p.docstrings)); err != nil {
			return pull, fmt.Errorf("comment on #%d: %w", pull.Number, err)
		}
	}
	return pull, nil
}

func (o *Orchestrator) commitReadme(ctx context.Context, client RepoClient, p publication, branch string) error {
	var sha string
	existing, err := client.GetContent(ctx, p.owner, p.repo, readmePath, branch)
	switch {
	case err == nil:
		sha = existing.SHA
	case errors.Is(err, github.ErrNotFound):
		// Repository has no README yet; create it.
	default:
		return fmt.Errorf("read %s: %w", readmePath, err)
	}

	err = client.PutFile(ctx, p.owner, p.repo, github.FileUpdate{
		Path:    readmePath,
		Message: readmeCommitMessage,
		Content: p.readme,
		Branch:  branch,
		SHA:     sha,
	})
	if err != nil {
		return fmt.Errorf("commit %s: %w", readmePath, err)
	}
	return nil
}

// RenderSuggestions formats docstrings as a pull request comment, grouped by
// file then function.
func RenderSuggestions(files []FileDocstrings) string {
	lines := []string{suggestionsHeading, ""}
	for _, fd := range files {
		lines = append(lines, "#### 📄 "+fd.File, "")
		for _, name := range fd.Order {
			doc, ok := fd.Docs[name]
			if !ok {
				continue
			}
			lines = append(lines,
				"**Function:** `"+name+"`",
				"",
				"```js",
				doc,
				"```",
				"",
			)
		}
	}
	return strings.Join(lines, "\n")
}
