// Package github wraps the go-github REST client for the endpoints docsync
// uses, authenticated as a GitHub App installation.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
)

const (
	// DefaultBaseURL is the public GitHub REST API root.
	DefaultBaseURL = "https://api.github.com"

	defaultTimeout = 30 * time.Second
	userAgent      = "docsync"
)

// ErrNotFound is matched by errors.Is for 404 responses.
var ErrNotFound = errors.New("github: not found")

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("github: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, msg)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client performs authenticated calls for a single installation token.
type Client struct {
	rest *gh.Client
}

// NewClient builds a client. An empty baseURL selects DefaultBaseURL.
func NewClient(baseURL, token string, httpClient *http.Client) (*Client, error) {
	rest, err := newREST(baseURL, token, httpClient)
	if err != nil {
		return nil, err
	}
	return &Client{rest: rest}, nil
}

func newREST(baseURL, token string, httpClient *http.Client) (*gh.Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	// go-github resolves endpoints relative to BaseURL, which must end in a slash.
	base, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("github: parse base url %q: %w", baseURL, err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	rest := gh.NewClient(httpClient).WithAuthToken(token)
	rest.BaseURL = base
	rest.UserAgent = userAgent
	return rest, nil
}

// CompareCommits lists the files changed between base and head.
func (c *Client) CompareCommits(ctx context.Context, owner, repo, base, head string) ([]ChangedFile, error) {
	cmp, _, err := c.rest.Repositories.CompareCommits(ctx, owner, repo, base, head, nil)
	if err != nil {
		return nil, wrapError("compare", err)
	}
	files := make([]ChangedFile, 0, len(cmp.Files))
	for _, f := range cmp.Files {
		files = append(files, ChangedFile{
			Filename: f.GetFilename(),
			Status:   f.GetStatus(),
			Patch:    f.GetPatch(),
		})
	}
	return files, nil
}

// GetContent fetches and decodes a file at ref.
func (c *Client) GetContent(ctx context.Context, owner, repo, path, ref string) (FileContent, error) {
	var opts *gh.RepositoryContentGetOptions
	if ref != "" {
		opts = &gh.RepositoryContentGetOptions{Ref: ref}
	}
	file, _, _, err := c.rest.Repositories.GetContents(ctx, owner, repo, path, opts)
	if err != nil {
		return FileContent{}, wrapError("get content", err)
	}
	if file == nil || (file.GetType() != "" && file.GetType() != "file") {
		return FileContent{}, fmt.Errorf("github: %s is not a file", path)
	}

	text, err := file.GetContent()
	if err != nil {
		return FileContent{}, fmt.Errorf("github: decode %s: %w", path, err)
	}
	return FileContent{Path: file.GetPath(), SHA: file.GetSHA(), Text: text}, nil
}

// GetRef resolves a branch name to its head commit SHA.
func (c *Client) GetRef(ctx context.Context, owner, repo, branch string) (string, error) {
	ref, _, err := c.rest.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return "", wrapError("get ref", err)
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateRef creates refs/heads/branch pointing at sha.
func (c *Client) CreateRef(ctx context.Context, owner, repo, branch, sha string) error {
	_, _, err := c.rest.Git.CreateRef(ctx, owner, repo, &gh.Reference{
		Ref:    gh.String("refs/heads/" + branch),
		Object: &gh.GitObject{SHA: gh.String(sha)},
	})
	if err != nil {
		return wrapError("create ref", err)
	}
	return nil
}

// PutFile creates or updates a file on a branch. A non-empty SHA updates.
func (c *Client) PutFile(ctx context.Context, owner, repo string, update FileUpdate) error {
	opts := &gh.RepositoryContentFileOptions{
		Message: gh.String(update.Message),
		Content: []byte(update.Content),
	}
	if update.Branch != "" {
		opts.Branch = gh.String(update.Branch)
	}

	var err error
	if update.SHA != "" {
		opts.SHA = gh.String(update.SHA)
		_, _, err = c.rest.Repositories.UpdateFile(ctx, owner, repo, update.Path, opts)
	} else {
		_, _, err = c.rest.Repositories.CreateFile(ctx, owner, repo, update.Path, opts)
	}
	if err != nil {
		return wrapError("put file", err)
	}
	return nil
}

// CreatePull opens a pull request.
func (c *Client) CreatePull(ctx context.Context, owner, repo string, pull NewPull) (Pull, error) {
	in := &gh.NewPullRequest{
		Title: gh.String(pull.Title),
		Head:  gh.String(pull.Head),
		Base:  gh.String(pull.Base),
	}
	if pull.Body != "" {
		in.Body = gh.String(pull.Body)
	}
	pr, _, err := c.rest.PullRequests.Create(ctx, owner, repo, in)
	if err != nil {
		return Pull{}, wrapError("create pull", err)
	}
	return Pull{Number: pr.GetNumber(), HTMLURL: pr.GetHTMLURL()}, nil
}

// CreateComment posts an issue comment on a pull request.
func (c *Client) CreateComment(ctx context.Context, owner, repo string, number int, body string) error {
	_, _, err := c.rest.Issues.CreateComment(ctx, owner, repo, number, &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		return wrapError("create comment", err)
	}
	return nil
}

// wrapError turns go-github response errors into *APIError so callers can
// match ErrNotFound without importing go-github.
func wrapError(op string, err error) error {
	var (
		resp *http.Response
		msg  string
	)
	var errResp *gh.ErrorResponse
	var rateErr *gh.RateLimitError
	var abuseErr *gh.AbuseRateLimitError
	switch {
	case errors.As(err, &errResp):
		resp, msg = errResp.Response, errResp.Message
	case errors.As(err, &rateErr):
		resp, msg = rateErr.Response, rateErr.Message
	case errors.As(err, &abuseErr):
		resp, msg = abuseErr.Response, abuseErr.Message
	}
	if resp == nil {
		return fmt.Errorf("github: %s: %w", op, err)
	}

	apiErr := &APIError{StatusCode: resp.StatusCode, Message: msg}
	if resp.Request != nil {
		apiErr.Method = resp.Request.Method
		apiErr.Path = resp.Request.URL.Path
	}
	return apiErr
}
