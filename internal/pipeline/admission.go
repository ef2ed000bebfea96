package pipeline

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/theroutercompany/docsync/internal/github"
)

// SkipReason explains why a push was not processed.
type SkipReason string

const (
	SkipInitialPush SkipReason = "initial_push"
	SkipBranch      SkipReason = "branch"
	SkipCooldown    SkipReason = "cooldown"
)

// Cooldown admits at most one run per window, process-wide.
type Cooldown struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewCooldown returns a gate with the given window. A non-positive window
// admits every run.
func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		return &Cooldown{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Cooldown{limiter: rate.NewLimiter(rate.Every(window), 1)}
}

// TryAdmit checks the window and records now as the last run in one step.
// Rejected calls leave the window untouched.
func (c *Cooldown) TryAdmit(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limiter.AllowN(now, 1)
}

// admit applies the gates in order. The cooldown is only consumed by pushes
// that pass the cheaper checks.
func (o *Orchestrator) admit(ev github.PushEvent, now time.Time) (SkipReason, bool) {
	if strings.TrimSpace(ev.Before) == github.ZeroSHA {
		return SkipInitialPush, false
	}
	if ev.Ref != "refs/heads/"+o.primaryBranch {
		return SkipBranch, false
	}
	if !o.cooldown.TryAdmit(now) {
		return SkipCooldown, false
	}
	return "", true
}
