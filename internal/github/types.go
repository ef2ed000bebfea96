package github

import "strings"

// ZeroSHA is the before revision GitHub sends when a ref is created.
const ZeroSHA = "0000000000000000000000000000000000000000"

// PushEvent is the subset of the push webhook payload docsync reads.
type PushEvent struct {
	Ref          string        `json:"ref"`
	Before       string        `json:"before"`
	After        string        `json:"after"`
	Repository   Repository    `json:"repository"`
	Installation *Installation `json:"installation,omitempty"`
	Commits      []Commit      `json:"commits"`
	HeadCommit   *Commit       `json:"head_commit,omitempty"`
}

// Repository identifies the pushed repository.
type Repository struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Owner         Owner  `json:"owner"`
}

// Owner covers both the user and organisation shapes GitHub emits.
type Owner struct {
	Login string `json:"login"`
	Name  string `json:"name"`
}

// Installation carries the GitHub App installation id.
type Installation struct {
	ID int64 `json:"id"`
}

// Commit is one pushed commit.
type Commit struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// OwnerLogin returns the repository owner's login, falling back to name.
func (e PushEvent) OwnerLogin() string {
	if login := strings.TrimSpace(e.Repository.Owner.Login); login != "" {
		return login
	}
	return strings.TrimSpace(e.Repository.Owner.Name)
}

// InstallationID returns zero when the payload was not sent to an App.
func (e PushEvent) InstallationID() int64 {
	if e.Installation == nil {
		return 0
	}
	return e.Installation.ID
}

// CommitMessages lists every pushed commit message, head commit included once.
func (e PushEvent) CommitMessages() []string {
	seen := make(map[string]struct{}, len(e.Commits)+1)
	out := make([]string, 0, len(e.Commits)+1)
	add := func(c Commit) {
		if _, ok := seen[c.ID]; ok && c.ID != "" {
			return
		}
		seen[c.ID] = struct{}{}
		out = append(out, c.Message)
	}
	for _, c := range e.Commits {
		add(c)
	}
	if e.HeadCommit != nil {
		add(*e.HeadCommit)
	}
	return out
}

// ChangedFile is one file entry in a commit comparison.
type ChangedFile struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Patch    string `json:"patch"`
}

// FileContent is a decoded repository file.
type FileContent struct {
	Path string
	SHA  string
	Text string
}

// FileUpdate describes a create-or-update contents call.
type FileUpdate struct {
	Path    string
	Message string
	Content string
	Branch  string
	// SHA of the blob being replaced; empty creates the file.
	SHA string
}

// NewPull describes a pull request to open.
type NewPull struct {
	Title string `json:"title"`
	Head  string `json:"head"`
	Base  string `json:"base"`
	Body  string `json:"body,omitempty"`
}

// Pull is the created pull request.
type Pull struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}
