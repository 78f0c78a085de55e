// Package health aggregates liveness checks for the server's backing
// services.
package health

import (
	"context"
	"sync"
	"time"
)

// Status of one checked component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Check probes one component. A nil error means healthy.
type Check func(ctx context.Context) error

// Result is the outcome of one check run.
type Result struct {
	Status    Status `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Checker runs registered checks on demand.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]Check
}

// NewChecker creates an empty Checker.
func NewChecker() *Checker {
	return &Checker{checks: map[string]Check{}}
}

// Register adds a named component check.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all checks and returns per-component results plus overall
// health.
func (c *Checker) Run(ctx context.Context) (map[string]Result, bool) {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	results := make(map[string]Result, len(checks))
	healthy := true
	for name, check := range checks {
		start := time.Now()
		err := check(ctx)
		res := Result{Status: StatusHealthy, LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			res.Status = StatusUnhealthy
			res.Error = err.Error()
			healthy = false
		}
		results[name] = res
	}
	return results, healthy
}
