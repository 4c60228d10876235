// Package health runs readiness probes against a service's backends and
// serves the liveness and readiness endpoints.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kokuto/pkg/httpx"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Probe pings one dependency.
type Probe func(ctx context.Context) error

// Kind says what a failing probe does to the overall status.
type Kind int

const (
	// Required probes take the service down when they fail.
	Required Kind = iota
	// Optional probes only degrade it; the service still reports ready.
	Optional
)

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type registration struct {
	probe Probe
	kind  Kind
}

// Checker holds named probes and runs them in parallel, each bounded by
// its own timeout.
type Checker struct {
	mu           sync.RWMutex
	probes       map[string]registration
	probeTimeout time.Duration
	logger       *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		probes:       make(map[string]registration),
		probeTimeout: 2 * time.Second,
		logger:       slog.Default().With("component", "health"),
	}
}

// Register adds or replaces the probe called name.
func (c *Checker) Register(name string, kind Kind, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = registration{probe: probe, kind: kind}
}

// Run probes every component. The overall status is down if any required
// probe failed, degraded if only optional ones did, and up otherwise.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]registration, len(c.probes))
	for name, reg := range c.probes {
		probes[name] = reg
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(probes)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, reg := range probes {
		wg.Go(func() {
			result := c.probe(ctx, name, reg)
			mu.Lock()
			defer mu.Unlock()
			report.Components[name] = result
			switch {
			case result.Status == StatusDown:
				report.Status = StatusDown
			case result.Status == StatusDegraded && report.Status == StatusUp:
				report.Status = StatusDegraded
			}
		})
	}
	wg.Wait()
	return report
}

func (c *Checker) probe(ctx context.Context, name string, reg registration) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	start := time.Now()
	err := reg.probe(ctx)
	result := ComponentHealth{
		Status:  StatusUp,
		Latency: time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Status = StatusDown
		if reg.kind == Optional {
			result.Status = StatusDegraded
		}
		result.Message = err.Error()
		c.logger.Warn("health probe failed", "component", name, "status", result.Status, "error", err)
	}
	return result
}

// Mount registers GET /health/live and GET /health/ready on mux.
func (c *Checker) Mount(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/live", c.LiveHandler())
	mux.HandleFunc("GET /health/ready", c.ReadyHandler())
}

func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 503 only when a required probe fails.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		status := http.StatusOK
		if report.Status == StatusDown {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, status, report)
	}
}
