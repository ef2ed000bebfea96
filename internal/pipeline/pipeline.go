// Package pipeline turns an admitted push into documentation proposals:
// changed-function discovery, snippet extraction, docstring generation,
// README refresh, and publication as a pull request.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/theroutercompany/docsync/internal/config"
	"github.com/theroutercompany/docsync/internal/docs"
	"github.com/theroutercompany/docsync/internal/docstring"
	"github.com/theroutercompany/docsync/internal/extract"
	"github.com/theroutercompany/docsync/internal/funcsite"
	"github.com/theroutercompany/docsync/internal/github"
	pkglog "github.com/theroutercompany/docsync/pkg/log"
)

const (
	defaultPrimaryBranch  = "main"
	defaultCooldown       = time.Minute
	defaultRepoConfigPath = ".docsync.yml"
	// Per-file generation stays sequential unless configured otherwise.
	defaultWorkers = 1
)

// RepoClient is the GitHub surface a run needs. *github.Client satisfies it.
type RepoClient interface {
	CompareCommits(ctx context.Context, owner, repo, base, head string) ([]github.ChangedFile, error)
	GetContent(ctx context.Context, owner, repo, path, ref string) (github.FileContent, error)
	GetRef(ctx context.Context, owner, repo, branch string) (string, error)
	CreateRef(ctx context.Context, owner, repo, branch, sha string) error
	PutFile(ctx context.Context, owner, repo string, update github.FileUpdate) error
	CreatePull(ctx context.Context, owner, repo string, pull github.NewPull) (github.Pull, error)
	CreateComment(ctx context.Context, owner, repo string, number int, body string) error
}

// ClientSource hands out a client authenticated for an installation.
type ClientSource interface {
	ForInstallation(ctx context.Context, installationID int64) (RepoClient, error)
}

// AppClients adapts a GitHub App to ClientSource.
func AppClients(app *github.App) ClientSource {
	return appClients{app: app}
}

type appClients struct {
	app *github.App
}

func (a appClients) ForInstallation(ctx context.Context, installationID int64) (RepoClient, error) {
	client, err := a.app.Client(ctx, installationID)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// DocstringGenerator documents one file's changed functions.
type DocstringGenerator interface {
	Generate(ctx context.Context, req docstring.Request) (docstring.Map, error)
}

// DocWriter produces repository-level documentation from a combined patch.
type DocWriter interface {
	Readme(ctx context.Context, patch string) (string, error)
	Diagram(ctx context.Context, patch string) (string, error)
}

// Options configures an Orchestrator.
type Options struct {
	Clients       ClientSource
	Docstrings    DocstringGenerator
	Docs          DocWriter
	PrimaryBranch string
	// Cooldown is the minimum spacing between admitted runs. Zero selects
	// one minute; use DisableCooldown to admit every run.
	Cooldown        time.Duration
	DisableCooldown bool
	Workers         int
	RepoConfigPath  string
	Logger          pkglog.Logger
	Metrics         *Metrics
	Now             func() time.Time
}

// Status summarises what a run did.
type Status string

const (
	StatusSkipped   Status = "skipped"
	StatusNoChanges Status = "no_changes"
	StatusPublished Status = "published"
	StatusFailed    Status = "failed"
)

// FileDocstrings holds generated docstrings for one file. Order lists the
// documented names in the order the diff introduced them.
type FileDocstrings struct {
	File   string
	Order  []string
	Docs   docstring.Map
	Source github.FileContent
}

// Outcome reports the result of HandlePush.
type Outcome struct {
	RunID      string
	Status     Status
	SkipReason SkipReason
	Changes    funcsite.ChangeSet
	Docstrings []FileDocstrings
	Readme     string
	Pull       github.Pull
}

// Orchestrator runs the pipeline for push events.
type Orchestrator struct {
	clients        ClientSource
	generator      DocstringGenerator
	docs           DocWriter
	primaryBranch  string
	cooldown       *Cooldown
	workers        int
	repoConfigPath string
	logger         pkglog.Logger
	metrics        *Metrics
	now            func() time.Time
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Clients == nil {
		return nil, errors.New("pipeline: client source required")
	}
	if opts.Docstrings == nil {
		return nil, errors.New("pipeline: docstring generator required")
	}
	if opts.Docs == nil {
		return nil, errors.New("pipeline: doc writer required")
	}

	o := &Orchestrator{
		clients:        opts.Clients,
		generator:      opts.Docstrings,
		docs:           opts.Docs,
		primaryBranch:  strings.TrimPrefix(strings.TrimSpace(opts.PrimaryBranch), "refs/heads/"),
		workers:        opts.Workers,
		repoConfigPath: strings.TrimSpace(opts.RepoConfigPath),
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		now:            opts.Now,
	}
	if o.primaryBranch == "" {
		o.primaryBranch = defaultPrimaryBranch
	}
	switch {
	case opts.DisableCooldown:
		o.cooldown = NewCooldown(0)
	case opts.Cooldown <= 0:
		o.cooldown = NewCooldown(defaultCooldown)
	default:
		o.cooldown = NewCooldown(opts.Cooldown)
	}
	if o.workers <= 0 {
		o.workers = defaultWorkers
	}
	if o.repoConfigPath == "" {
		o.repoConfigPath = defaultRepoConfigPath
	}
	if o.logger == nil {
		o.logger = pkglog.Shared()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// HandlePush runs the pipeline for ev. Admission skips return a skipped
// Outcome and no error. Per-file failures are logged and the file dropped;
// only failures that stop the whole run are returned.
func (o *Orchestrator) HandlePush(ctx context.Context, ev github.PushEvent) (Outcome, error) {
	started := o.now()
	out := Outcome{RunID: uuid.NewString()}
	owner, repo := ev.OwnerLogin(), ev.Repository.Name

	if reason, ok := o.admit(ev, started); !ok {
		o.logger.Infow("push skipped", "run", out.RunID, "reason", reason, "ref", ev.Ref, "repository", owner+"/"+repo)
		out.Status = StatusSkipped
		out.SkipReason = reason
		o.metrics.observeRun(string(StatusSkipped), started, false)
		return out, nil
	}

	out, err := o.run(ctx, ev, out)
	if err != nil {
		out.Status = StatusFailed
		o.logger.Errorw("docsync run failed", "run", out.RunID, "repository", owner+"/"+repo, "error", err)
	}
	o.metrics.observeRun(string(out.Status), started, true)
	return out, err
}

func (o *Orchestrator) run(ctx context.Context, ev github.PushEvent, out Outcome) (Outcome, error) {
	owner, repo := ev.OwnerLogin(), ev.Repository.Name
	if owner == "" || repo == "" {
		return out, errors.New("pipeline: push event missing repository owner or name")
	}
	installationID := ev.InstallationID()
	if installationID == 0 {
		return out, errors.New("pipeline: push event missing installation id")
	}

	o.logger.Infow("push detected", "run", out.RunID, "repository", owner+"/"+repo, "before", ev.Before, "after", ev.After)

	client, err := o.clients.ForInstallation(ctx, installationID)
	if err != nil {
		return out, fmt.Errorf("pipeline: installation client: %w", err)
	}

	repoCfg := o.loadRepoConfig(ctx, client, owner, repo, ev.After, out.RunID)

	files, err := client.CompareCommits(ctx, owner, repo, ev.Before, ev.After)
	if err != nil {
		return out, fmt.Errorf("pipeline: compare %s...%s: %w", ev.Before, ev.After, err)
	}

	patches := make([]funcsite.Patch, 0, len(files))
	patchText := make([]string, 0, len(files))
	for _, f := range files {
		patches = append(patches, funcsite.Patch{Filename: f.Filename, Patch: f.Patch})
		patchText = append(patchText, f.Patch)
	}
	out.Changes = funcsite.Scan(patches).Freeze()
	if out.Changes.Empty() {
		o.logger.Infow("no functions detected in diff", "run", out.RunID, "files", len(files))
	} else {
		for _, fc := range out.Changes.Files() {
			o.logger.Infow("changed functions detected", "run", out.RunID, "file", fc.File, "functions", fc.Functions)
		}
	}

	if repoCfg.Docstrings.Enabled {
		out.Docstrings = o.generateAll(ctx, client, owner, repo, out.Changes, out.RunID)
	} else {
		o.logger.Infow("docstring generation disabled via repo config", "run", out.RunID)
	}

	if repoCfg.UpdateReadme {
		out.Readme = o.buildReadme(ctx, repoCfg, ev, docs.CombinedPatch(patchText), out.RunID)
	} else {
		o.logger.Infow("readme updates disabled via repo config", "run", out.RunID)
	}

	if strings.TrimSpace(out.Readme) == "" && len(out.Docstrings) == 0 {
		o.logger.Infow("nothing to publish", "run", out.RunID)
		out.Status = StatusNoChanges
		return out, nil
	}

	pull, err := o.publish(ctx, client, publication{
		owner:      owner,
		repo:       repo,
		base:       o.primaryBranch,
		readme:     out.Readme,
		docstrings: out.Docstrings,
		auto:       repoCfg.AutoDocstrings(),
	})
	if err != nil {
		return out, fmt.Errorf("pipeline: publish: %w", err)
	}
	out.Pull = pull
	out.Status = StatusPublished
	o.logger.Infow("pull request created", "run", out.RunID, "number", pull.Number, "url", pull.HTMLURL)
	return out, nil
}

func (o *Orchestrator) loadRepoConfig(ctx context.Context, client RepoClient, owner, repo, ref, runID string) config.RepoConfig {
	content, err := client.GetContent(ctx, owner, repo, o.repoConfigPath, ref)
	if err != nil {
		if errors.Is(err, github.ErrNotFound) {
			o.logger.Debugw("repo config absent, using defaults", "run", runID, "path", o.repoConfigPath)
		} else {
			o.logger.Warnw("repo config fetch failed, using defaults", "run", runID, "path", o.repoConfigPath, "error", err)
		}
		return config.DefaultRepoConfig()
	}
	cfg, err := config.ParseRepoConfig([]byte(content.Text))
	if err != nil {
		o.logger.Warnw("repo config invalid, using defaults", "run", runID, "path", o.repoConfigPath, "error", err)
		return config.DefaultRepoConfig()
	}
	return cfg
}

// generateAll documents every changed file with at most o.workers in flight.
// A failing file never affects the others.
func (o *Orchestrator) generateAll(ctx context.Context, client RepoClient, owner, repo string, changes funcsite.ChangeSet, runID string) []FileDocstrings {
	files := changes.Files()
	results := make([]*FileDocstrings, len(files))

	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, fc := range files {
		i, fc := i, fc
		g.Go(func() error {
			res, err := o.processFile(ctx, client, owner, repo, fc)
			switch {
			case err != nil:
				o.logger.Errorw("docstring generation failed", "run", runID, "file", fc.File, "error", err)
				o.metrics.observeFile("failed")
			case res == nil:
				o.metrics.observeFile("skipped")
			default:
				o.logger.Infow("docstring suggestions generated", "run", runID, "file", fc.File, "count", len(res.Docs))
				o.metrics.observeFile("documented")
				results[i] = res
			}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]FileDocstrings, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

// processFile returns nil without error when the file yields nothing to document.
func (o *Orchestrator) processFile(ctx context.Context, client RepoClient, owner, repo string, fc funcsite.FileChanges) (*FileDocstrings, error) {
	if len(fc.Functions) == 0 {
		return nil, nil
	}
	content, err := client.GetContent(ctx, owner, repo, fc.File, o.primaryBranch)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", fc.File, err)
	}

	code := extract.Extract(content.Text, fc.Functions)
	if strings.TrimSpace(code) == "" {
		o.logger.Infow("no extractable function code", "file", fc.File, "functions", fc.Functions)
		return nil, nil
	}

	docMap, err := o.generator.Generate(ctx, docstring.Request{
		Functions: fc.Functions,
		Code:      code,
		FileName:  fc.File,
	})
	if err != nil {
		return nil, err
	}
	if len(docMap) == 0 {
		return nil, nil
	}

	order := make([]string, 0, len(docMap))
	for _, name := range fc.Functions {
		if _, ok := docMap[name]; ok {
			order = append(order, name)
		}
	}
	return &FileDocstrings{File: fc.File, Order: order, Docs: docMap, Source: content}, nil
}

func (o *Orchestrator) buildReadme(ctx context.Context, cfg config.RepoConfig, ev github.PushEvent, patch, runID string) string {
	if strings.TrimSpace(patch) == "" {
		o.logger.Infow("no meaningful diff for readme", "run", runID)
		return ""
	}

	readme, err := o.docs.Readme(ctx, patch)
	if err != nil {
		o.logger.Errorw("readme generation failed, skipping readme update", "run", runID, "error", err)
		readme = ""
	}

	if docs.WantsDiagram(cfg, ev.CommitMessages()) {
		diagram, err := o.docs.Diagram(ctx, patch)
		if err != nil {
			o.logger.Errorw("diagram generation failed, continuing", "run", runID, "error", err)
		} else {
			readme = docs.AppendDiagram(readme, diagram)
		}
	}
	return readme
}

// Runner executes pushes off the request path and tracks in-flight runs.
type Runner struct {
	orchestrator *Orchestrator
	logger       pkglog.Logger
	wg           sync.WaitGroup
}

// NewRunner wraps o for asynchronous dispatch.
func NewRunner(o *Orchestrator, logger pkglog.Logger) *Runner {
	if logger == nil {
		logger = pkglog.Shared()
	}
	return &Runner{orchestrator: o, logger: logger}
}

// Dispatch starts a run for ev and returns immediately.
func (r *Runner) Dispatch(ctx context.Context, ev github.PushEvent) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Errorw("docsync run panicked", "panic", rec, "ref", ev.Ref)
			}
		}()
		outcome, err := r.orchestrator.HandlePush(ctx, ev)
		if err == nil {
			r.logger.Debugw("docsync run finished", "run", outcome.RunID, "status", outcome.Status)
		}
	}()
}

// Wait blocks until in-flight runs finish or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
