// Package health provides liveness, readiness and dependency probes.
package health

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Probe is satisfied by any dependency that can report whether it is usable.
type Probe interface {
	Ready(ctx context.Context) error
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) error

// Ready calls f.
func (f ProbeFunc) Ready(ctx context.Context) error { return f(ctx) }

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult contains the result of a single probe.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the readiness response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Checker runs named probes. Readiness results are cached briefly so a
// busy load balancer does not hammer the store.
type Checker struct {
	probes  map[string]Probe
	timeout time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a checker with no probes and a 5s per-probe timeout.
func NewChecker() *Checker {
	return &Checker{
		probes:  make(map[string]Probe),
		timeout: 5 * time.Second,
	}
}

// WithTimeout sets the per-probe timeout.
func (c *Checker) WithTimeout(d time.Duration) *Checker {
	if d > 0 {
		c.timeout = d
	}
	return c
}

// Register adds a named probe. A nil probe always reports unhealthy.
func (c *Checker) Register(name string, p Probe) *Checker {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
	c.cachedReady = nil
	return c
}

// Liveness never touches dependencies.
func (c *Checker) Liveness(_ context.Context) *Response {
	return &Response{Status: StatusHealthy}
}

// Readiness reports unhealthy while shutting down or when any probe fails.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}
	if c.cachedReady != nil && time.Since(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	response := &Response{Status: StatusHealthy, Checks: make(map[string]CheckResult, len(names))}
	for _, name := range names {
		result := c.Check(ctx, name)
		response.Checks[name] = result
		if result.Status != StatusHealthy {
			response.Status = StatusUnhealthy
		}
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

// Check runs one named probe with the checker's timeout, bypassing the cache.
func (c *Checker) Check(ctx context.Context, name string) CheckResult {
	c.mu.RLock()
	p, ok := c.probes[name]
	c.mu.RUnlock()
	if !ok || p == nil {
		return CheckResult{Status: StatusUnhealthy, Message: name + " not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := p.Ready(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// SetShuttingDown flips readiness to unhealthy so load balancers stop
// routing new traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
