// health.go - Component health checks for the medproof daemon.

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status is the health of a component or of the whole system.
type Status string

const (
	Healthy   Status = "healthy"
	Degraded  Status = "degraded"
	Unhealthy Status = "unhealthy"
)

// ErrDegraded marks a check failure that leaves the component usable.
var ErrDegraded = errors.New("degraded")

// CheckFunc probes one component. Returning an error wrapping ErrDegraded reports Degraded,
// any other error reports Unhealthy.
type CheckFunc func(ctx context.Context) error

// Component is the last observed health of one component.
type Component struct {
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	LastCheck time.Time `json:"lastCheck"`
	LatencyMS int64     `json:"latencyMs"`
}

// Report is a point-in-time view of every component.
type Report struct {
	Status        Status      `json:"status"`
	Timestamp     time.Time   `json:"timestamp"`
	Components    []Component `json:"components"`
	UptimeSeconds int64       `json:"uptimeSeconds"`
	Version       string      `json:"version"`
}

// Checker runs registered checks and remembers their last result.
type Checker struct {
	mu         sync.RWMutex
	components map[string]*Component
	checks     map[string]CheckFunc
	started    time.Time
	version    string
	timeout    time.Duration
}

// NewChecker creates a checker. Each check is bounded by timeout.
func NewChecker(version string, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		components: make(map[string]*Component),
		checks:     make(map[string]CheckFunc),
		started:    time.Now(),
		version:    version,
		timeout:    timeout,
	}
}

// Register adds or replaces the check for a component.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = &Component{
		Name:      name,
		Status:    Healthy,
		Message:   "registered",
		LastCheck: time.Now(),
	}
	c.checks[name] = check
}

// Update sets a component's status directly, for components that report rather than get probed.
func (c *Checker) Update(name string, status Status, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if comp, ok := c.components[name]; ok {
		comp.Status = status
		comp.Message = message
		comp.LastCheck = time.Now()
	}
}

// Check runs every registered check and returns the resulting report.
func (c *Checker) Check(ctx context.Context) *Report {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	// Checks run without the lock so a slow probe cannot block readers.
	type result struct {
		err     error
		latency time.Duration
	}
	results := make(map[string]result, len(checks))
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for name, fn := range checks {
		if fn == nil {
			continue
		}
		wg.Add(1)
		go func(name string, fn CheckFunc) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			start := time.Now()
			err := fn(cctx)
			rmu.Lock()
			results[name] = result{err: err, latency: time.Since(start)}
			rmu.Unlock()
		}(name, fn)
	}
	wg.Wait()

	c.mu.Lock()
	now := time.Now()
	for name, r := range results {
		comp, ok := c.components[name]
		if !ok {
			continue
		}
		switch {
		case r.err == nil:
			comp.Status, comp.Message = Healthy, "OK"
		case errors.Is(r.err, ErrDegraded):
			comp.Status, comp.Message = Degraded, r.err.Error()
		default:
			comp.Status, comp.Message = Unhealthy, r.err.Error()
		}
		comp.LastCheck = now
		comp.LatencyMS = r.latency.Milliseconds()
	}
	c.mu.Unlock()

	return c.Snapshot()
}

// Snapshot returns the last observed state without running checks.
func (c *Checker) Snapshot() *Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	overall := Healthy
	comps := make([]Component, 0, len(c.components))
	for _, comp := range c.components {
		switch {
		case comp.Status == Unhealthy:
			overall = Unhealthy
		case comp.Status == Degraded && overall == Healthy:
			overall = Degraded
		}
		comps = append(comps, *comp)
	}
	sort.Slice(comps, func(i, j int) bool { return comps[i].Name < comps[j].Name })

	return &Report{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Components:    comps,
		UptimeSeconds: int64(time.Since(c.started).Seconds()),
		Version:       c.version,
	}
}

// Response is the envelope served by the health endpoint.
type Response struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Data    *Report `json:"data,omitempty"`
}

// NewResponse wraps a report in the standard envelope.
func NewResponse(r *Report) *Response {
	resp := &Response{Status: "success", Message: "System is healthy", Data: r}
	switch r.Status {
	case Unhealthy:
		resp.Status, resp.Message = "error", "System is unhealthy"
	case Degraded:
		resp.Status, resp.Message = "warning", "System is degraded"
	}
	return resp
}

// Handler runs the checks on each request. Unhealthy systems answer 503.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := c.Check(r.Context())
		code := http.StatusOK
		if report.Status == Unhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(NewResponse(report))
	})
}
