package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Docstring delivery modes.
const (
	DocstringModeSuggest = "suggest"
	DocstringModeAuto    = "auto"
)

// DiagramTriggerCommitMessage enables diagrams when a commit message carries [diagram].
const DiagramTriggerCommitMessage = "commit_message"

// RepoConfig is the per-repository behaviour read from the pushed tree.
type RepoConfig struct {
	UpdateReadme    bool            `yaml:"update_readme"`
	GenerateDiagram bool            `yaml:"generate_diagram"`
	DiagramTrigger  string          `yaml:"diagram_trigger"`
	Docstrings      DocstringConfig `yaml:"docstrings"`
}

// DocstringConfig toggles docstring generation.
type DocstringConfig struct {
	Enabled bool   `yaml:"enabled"`
	Mode    string `yaml:"mode"`
}

// DefaultRepoConfig is used when a repository carries no configuration file.
func DefaultRepoConfig() RepoConfig {
	return RepoConfig{
		UpdateReadme:    true,
		GenerateDiagram: false,
		DiagramTrigger:  DiagramTriggerCommitMessage,
		Docstrings: DocstringConfig{
			Enabled: true,
			Mode:    DocstringModeSuggest,
		},
	}
}

// ParseRepoConfig decodes a .docsync.yml document. Fields present under the
// top-level docsync key override the defaults; absent fields keep them.
func ParseRepoConfig(data []byte) (RepoConfig, error) {
	doc := struct {
		Docsync *RepoConfig `yaml:"docsync"`
	}{}
	cfg := DefaultRepoConfig()
	doc.Docsync = &cfg

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return DefaultRepoConfig(), fmt.Errorf("decode repo config: %w", err)
	}
	if doc.Docsync == nil {
		// An explicit `docsync:` with no body.
		return DefaultRepoConfig(), nil
	}

	out := *doc.Docsync
	out.DiagramTrigger = strings.ToLower(strings.TrimSpace(out.DiagramTrigger))
	if out.DiagramTrigger == "" {
		out.DiagramTrigger = DiagramTriggerCommitMessage
	}
	out.Docstrings.Mode = strings.ToLower(strings.TrimSpace(out.Docstrings.Mode))
	switch out.Docstrings.Mode {
	case "":
		out.Docstrings.Mode = DocstringModeSuggest
	case DocstringModeSuggest, DocstringModeAuto:
	default:
		return DefaultRepoConfig(), fmt.Errorf("repo config: unsupported docstrings.mode %q", out.Docstrings.Mode)
	}
	return out, nil
}

// AutoDocstrings reports whether generated docstrings should be committed into source.
func (c RepoConfig) AutoDocstrings() bool {
	return c.Docstrings.Enabled && c.Docstrings.Mode == DocstringModeAuto
}
