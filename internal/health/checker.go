package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// CheckResult is one sub-check's outcome.
type CheckResult struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
	Latency string `json:"latency"`
}

// Report aggregates all sub-checks.
type Report struct {
	Status  string        `json:"status"`
	Version string        `json:"version"`
	Checks  []CheckResult `json:"checks"`
}

// Check is a named probe against a dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Checker runs dependency probes concurrently.
type Checker struct {
	version string
	timeout time.Duration
	checks  []Check
}

// NewChecker constructs a checker over the given probes.
func NewChecker(version string, timeout time.Duration, checks ...Check) *Checker {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Checker{version: version, timeout: timeout, checks: checks}
}

// Run executes every probe concurrently and reports ok only when all pass.
func (c *Checker) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	results := make([]CheckResult, len(c.checks))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i, check := range c.checks {
		g.Go(func() error {
			start := time.Now()
			err := check.Probe(gctx)
			result := CheckResult{
				Name:    check.Name,
				OK:      err == nil,
				Latency: time.Since(start).Round(time.Millisecond).String(),
			}
			if err != nil {
				result.Detail = err.Error()
			}
			mu.Lock()
			results[i] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	status := "ok"
	for _, result := range results {
		if !result.OK {
			status = "degraded"
			break
		}
	}
	return Report{Status: status, Version: c.version, Checks: results}
}
