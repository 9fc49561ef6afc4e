// Package health provides liveness and readiness probes for the fleet
// client.
package health

import (
	"context"
	"sync"
	"time"
)

// ReadinessChecker reports whether a dependency is usable. The session
// implements it from the outcome of its latest poll.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check names in Response.Checks.
const (
	CheckRobotService = "robot-service"
	CheckShutdown     = "shutdown"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker answers liveness and readiness probes.
type Checker struct {
	robots   ReadinessChecker
	timeout  time.Duration
	cacheTTL time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a new health checker.
func NewChecker(robots ReadinessChecker) *Checker {
	return &Checker{
		robots:   robots,
		timeout:  5 * time.Second,
		cacheTTL: time.Second,
	}
}

// Liveness returns healthy while the process runs. It checks nothing
// external.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness reports unhealthy while shutting down or while the robot
// service is unreachable. Results are cached briefly.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				CheckShutdown: {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	if c.cachedReady != nil && time.Since(c.lastCheck) < c.cacheTTL {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	result := c.checkRobots(ctx)
	overall := StatusHealthy
	if result.Status != StatusHealthy {
		overall = StatusUnhealthy
	}
	response := &Response{
		Status: overall,
		Checks: map[string]CheckResult{CheckRobotService: result},
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkRobots(ctx context.Context) CheckResult {
	if c.robots == nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "robot service not configured",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.robots.Ready(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy}
}

// IsHealthy returns true if the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// SetShuttingDown makes readiness fail from now on, so traffic drains
// before the listener closes.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
