package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// Dependency identifies an external service to probe for readiness.
type Dependency struct {
	Name    string
	BaseURL string
	Path    string
	Header  http.Header
	// AcceptClientErrors treats 4xx as healthy, for APIs that reject
	// unauthenticated probes but are otherwise reachable.
	AcceptClientErrors bool
}

// DependencyReport captures the outcome of probing a single dependency.
type DependencyReport struct {
	Name       string    `json:"name"`
	Healthy    bool      `json:"healthy"`
	StatusCode int       `json:"statusCode,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Report aggregates readiness across dependencies.
type Report struct {
	Status       string             `json:"status"`
	CheckedAt    time.Time          `json:"checkedAt"`
	Dependencies []DependencyReport `json:"dependencies"`
}

// Checker evaluates health of external dependencies.
type Checker struct {
	client       *http.Client
	dependencies []Dependency
	timeout      time.Duration
	userAgent    string
}

// NewChecker returns a checker configured with the given dependencies.
func NewChecker(client *http.Client, dependencies []Dependency, timeout time.Duration, userAgent string) *Checker {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if userAgent == "" {
		userAgent = "docsync/readyz"
	}

	return &Checker{
		client:       client,
		dependencies: dependencies,
		timeout:      timeout,
		userAgent:    userAgent,
	}
}

// Readiness probes configured dependencies and returns an aggregated report.
func (c *Checker) Readiness(ctx context.Context) Report {
	if len(c.dependencies) == 0 {
		return Report{Status: "ready", CheckedAt: time.Now().UTC()}
	}

	results := make([]DependencyReport, len(c.dependencies))
	var wg sync.WaitGroup

	for idx, dep := range c.dependencies {
		wg.Add(1)
		go func(i int, d Dependency) {
			defer wg.Done()
			results[i] = c.probe(ctx, d)
		}(idx, dep)
	}

	wg.Wait()

	report := Report{
		Status:       "ready",
		CheckedAt:    time.Now().UTC(),
		Dependencies: results,
	}
	for _, r := range results {
		if !r.Healthy {
			report.Status = "degraded"
			break
		}
	}

	return report
}

func (c *Checker) probe(ctx context.Context, dep Dependency) DependencyReport {
	report := DependencyReport{
		Name:      dep.Name,
		CheckedAt: time.Now().UTC(),
	}

	targetURL := dep.BaseURL
	if dep.Path != "" {
		joined, err := url.JoinPath(dep.BaseURL, dep.Path)
		if err != nil {
			report.Error = fmt.Sprintf("failed to build dependency url: %v", err)
			return report
		}
		targetURL = joined
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, targetURL, nil)
	if err != nil {
		report.Error = fmt.Sprintf("failed to create request: %v", err)
		return report
	}
	for key, values := range dep.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		select {
		case <-reqCtx.Done():
			report.Error = reqCtx.Err().Error()
		default:
			report.Error = err.Error()
		}
		return report
	}
	defer resp.Body.Close()

	report.StatusCode = resp.StatusCode
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		report.Healthy = true
	case dep.AcceptClientErrors && resp.StatusCode >= 400 && resp.StatusCode < 500:
		report.Healthy = true
	default:
		report.Error = fmt.Sprintf("health check failed with status %d", resp.StatusCode)
	}

	return report
}
