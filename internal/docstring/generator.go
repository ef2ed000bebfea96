// Package docstring generates per-function documentation through a text
// generation backend, retrying overloaded models and falling back to the next
// candidate only after retries are used up.
package docstring

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/theroutercompany/docsync/internal/llm"
	pkglog "github.com/theroutercompany/docsync/pkg/log"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = 1500 * time.Millisecond
)

// DefaultModels is the candidate order used when none is configured: fast and
// cheap first, the conservative fallback last.
var DefaultModels = []string{"gemini-2.5-flash", "gemini-2.0-flash"}

// ErrNoCandidates is returned by New when no model is configured.
var ErrNoCandidates = errors.New("docstring: no candidate models configured")

// Map holds generated documentation keyed by function name.
type Map map[string]string

// Request describes one file's worth of functions to document.
type Request struct {
	Functions []string
	Code      string
	FileName  string
}

// Outcome classifies a single attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient"
	OutcomePermanent Outcome = "permanent"
)

// Attempt records one call to the backend.
type Attempt struct {
	Model   string
	Number  int
	Outcome Outcome
	Err     error
}

// ExhaustedError is returned when every candidate failed transiently on all
// of its attempts.
type ExhaustedError struct {
	Models   []string
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("docstring: all models exhausted (%s) after %d attempts each: %v", strings.Join(e.Models, ", "), e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Options configures a Generator.
type Options struct {
	// Models lists candidates in fallback order. Defaults to DefaultModels.
	Models []string
	// MaxAttempts per model. Defaults to 3.
	MaxAttempts int
	// BaseDelay is multiplied by the attempt number between retries.
	BaseDelay time.Duration
	// Transient decides whether an error is retry-eligible. Defaults to
	// llm.IsOverloaded.
	Transient func(error) bool
	// Sleep blocks for d or until ctx is done.
	Sleep    func(ctx context.Context, d time.Duration) error
	Observer func(Attempt)
	Logger   pkglog.Logger
}

// Generator documents functions with model fallback.
type Generator struct {
	backend     llm.Generator
	models      []string
	maxAttempts int
	baseDelay   time.Duration
	transient   func(error) bool
	sleep       func(ctx context.Context, d time.Duration) error
	observe     func(Attempt)
	logger      pkglog.Logger
}

// New constructs a Generator around backend.
func New(backend llm.Generator, opts Options) (*Generator, error) {
	if backend == nil {
		return nil, errors.New("docstring: backend required")
	}
	models := opts.Models
	if models == nil {
		models = DefaultModels
	}
	cleaned := make([]string, 0, len(models))
	for _, m := range models {
		if m = strings.TrimSpace(m); m != "" {
			cleaned = append(cleaned, m)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoCandidates
	}

	g := &Generator{
		backend:     backend,
		models:      cleaned,
		maxAttempts: opts.MaxAttempts,
		baseDelay:   opts.BaseDelay,
		transient:   opts.Transient,
		sleep:       opts.Sleep,
		observe:     opts.Observer,
		logger:      opts.Logger,
	}
	if g.maxAttempts <= 0 {
		g.maxAttempts = defaultMaxAttempts
	}
	if g.baseDelay <= 0 {
		g.baseDelay = defaultBaseDelay
	}
	if g.transient == nil {
		g.transient = llm.IsOverloaded
	}
	if g.sleep == nil {
		g.sleep = sleepContext
	}
	if g.observe == nil {
		g.observe = func(Attempt) {}
	}
	if g.logger == nil {
		g.logger = pkglog.Shared()
	}
	return g, nil
}

// Models returns the candidate order.
func (g *Generator) Models() []string {
	return append([]string(nil), g.models...)
}

type state int

const (
	stateTrying state = iota
	stateSucceeded
	stateExhaustedCandidate
	stateAborted
)

type machine struct {
	state     state
	candidate int
	attempt   int
	lastErr   error
	result    Map
}

// Generate returns documentation for req.Functions. A permanent failure on
// any attempt aborts at once; transient failures retry the same model and
// then move to the next one.
func (g *Generator) Generate(ctx context.Context, req Request) (Map, error) {
	if len(req.Functions) == 0 {
		return Map{}, nil
	}

	prompt := BuildPrompt(req)
	m := &machine{state: stateTrying, attempt: 1}

	for {
		switch m.state {
		case stateTrying:
			g.step(ctx, m, req, prompt)
		case stateExhaustedCandidate:
			m.candidate++
			if m.candidate >= len(g.models) {
				g.logger.Errorw("all docstring models exhausted", "file", req.FileName, "models", g.models, "error", m.lastErr)
				return nil, &ExhaustedError{Models: g.Models(), Attempts: g.maxAttempts, Last: m.lastErr}
			}
			g.logger.Warnw("falling back to next docstring model", "file", req.FileName, "model", g.models[m.candidate])
			m.attempt = 1
			m.state = stateTrying
		case stateSucceeded:
			return m.result, nil
		case stateAborted:
			return nil, m.lastErr
		}
	}
}

func (g *Generator) step(ctx context.Context, m *machine, req Request, prompt string) {
	model := g.models[m.candidate]

	raw, err := g.backend.Generate(ctx, model, prompt)
	if err == nil {
		docs, parseErr := Parse(raw, req.Functions)
		if parseErr == nil {
			g.observe(Attempt{Model: model, Number: m.attempt, Outcome: OutcomeSuccess})
			m.result = docs
			m.state = stateSucceeded
			return
		}
		err = parseErr
	}

	m.lastErr = err
	if !g.transient(err) {
		g.observe(Attempt{Model: model, Number: m.attempt, Outcome: OutcomePermanent, Err: err})
		m.lastErr = fmt.Errorf("docstring: model %s attempt %d: %w", model, m.attempt, err)
		m.state = stateAborted
		return
	}

	g.observe(Attempt{Model: model, Number: m.attempt, Outcome: OutcomeTransient, Err: err})
	if m.attempt >= g.maxAttempts {
		m.state = stateExhaustedCandidate
		return
	}

	wait := time.Duration(m.attempt) * g.baseDelay
	g.logger.Warnw("docstring model overloaded, retrying",
		"model", model,
		"attempt", m.attempt,
		"maxAttempts", g.maxAttempts,
		"wait", wait,
		"error", err,
	)
	if sleepErr := g.sleep(ctx, wait); sleepErr != nil {
		m.lastErr = sleepErr
		m.state = stateAborted
		return
	}
	m.attempt++
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
