// Package health reports whether a long-running macrorec command can
// still do its job: hear the hotkey, reach the library, play.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the health of one component or of the whole process.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// DefaultTimeout bounds each check.
const DefaultTimeout = 2 * time.Second

// Check returns nil when the component is healthy.
type Check func(ctx context.Context) error

// Result is the outcome of one check.
type Result struct {
	Status   Status        `json:"status"`
	Critical bool          `json:"critical"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

type component struct {
	critical bool
	check    Check
}

// Checker runs registered checks on demand.
type Checker struct {
	mu         sync.RWMutex
	components map[string]component
	started    time.Time
	timeout    time.Duration
}

// NewChecker creates a Checker with no components.
func NewChecker() *Checker {
	return &Checker{
		components: make(map[string]component),
		started:    time.Now(),
		timeout:    DefaultTimeout,
	}
}

// Register adds or replaces a check. A failing critical check makes the
// process unhealthy; any other failure degrades it.
func (c *Checker) Register(name string, critical bool, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = component{critical: critical, check: check}
}

// Names returns the registered components in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Check runs every check concurrently.
func (c *Checker) Check(ctx context.Context) map[string]Result {
	c.mu.RLock()
	components := make(map[string]component, len(c.components))
	for name, comp := range c.components {
		components[name] = comp
	}
	timeout := c.timeout
	c.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Result, len(components))
	)
	for name, comp := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := run(ctx, comp, timeout)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

func run(ctx context.Context, comp component, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := comp.check(ctx)
	res := Result{Status: StatusHealthy, Critical: comp.critical, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
		res.Status = StatusDegraded
		if comp.critical {
			res.Status = StatusUnhealthy
		}
	}
	return res
}

// Overall aggregates results: the worst status wins.
func Overall(results map[string]Result) Status {
	status := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Response is the body served by Handler.
type Response struct {
	Status     Status            `json:"status"`
	Uptime     string            `json:"uptime"`
	Components map[string]Result `json:"components"`
	Timestamp  time.Time         `json:"timestamp"`
}

// Handler serves the health of every component as JSON. Unhealthy
// processes answer 503 so supervisors can restart them.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		results := c.Check(r.Context())
		resp := Response{
			Status:     Overall(results),
			Uptime:     time.Since(c.started).Round(time.Second).String(),
			Components: results,
			Timestamp:  time.Now(),
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(resp)
	})
}
