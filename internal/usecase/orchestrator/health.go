package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

// Probe is one component check. A nil returned error means healthy;
// anything else marks the component unreachable with the error text as
// the reason.
type Probe struct {
	Name      string
	Mandatory bool
	Check     func(ctx context.Context) error
}

// HealthChecker runs component probes concurrently and caches the
// aggregated result for a TTL so hot paths can consult health without
// re-probing every time.
type HealthChecker struct {
	probes       []Probe
	ttl          time.Duration
	probeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	cached *domain.HealthCheckResult

	now func() time.Time // test seam
}

func NewHealthChecker(probes []Probe, ttl, probeTimeout time.Duration, logger *slog.Logger) *HealthChecker {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &HealthChecker{
		probes:       probes,
		ttl:          ttl,
		probeTimeout: probeTimeout,
		logger:       logger,
		now:          time.Now,
	}
}

// Check returns the cached result while it is fresh, otherwise runs all
// probes. force bypasses the cache.
func (h *HealthChecker) Check(ctx context.Context, force bool) *domain.HealthCheckResult {
	h.mu.Lock()
	if !force && h.cached != nil && h.now().Sub(h.cached.CheckedAt) < h.ttl {
		cached := h.cached
		h.mu.Unlock()
		return cached
	}
	h.mu.Unlock()

	result := h.run(ctx)

	h.mu.Lock()
	h.cached = result
	h.mu.Unlock()
	return result
}

// Cached returns the last result without probing. Nil before the first
// Check.
func (h *HealthChecker) Cached() *domain.HealthCheckResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cached
}

func (h *HealthChecker) run(ctx context.Context) *domain.HealthCheckResult {
	components := make([]domain.ComponentHealth, len(h.probes))
	var wg sync.WaitGroup
	for i, p := range h.probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			components[i] = h.probeOne(ctx, p)
		}(i, p)
	}
	wg.Wait()

	return &domain.HealthCheckResult{
		Overall:    aggregate(components),
		Components: components,
		CheckedAt:  h.now(),
	}
}

func (h *HealthChecker) probeOne(ctx context.Context, p Probe) domain.ComponentHealth {
	probeCtx, cancel := context.WithTimeout(ctx, h.probeTimeout)
	defer cancel()

	start := h.now()
	err := p.Check(probeCtx)
	latency := h.now().Sub(start)

	c := domain.ComponentHealth{
		Name:      p.Name,
		Status:    domain.HealthHealthy,
		Mandatory: p.Mandatory,
		Latency:   latency,
		LatencyMS: latency.Milliseconds(),
	}
	if err != nil {
		c.Status = domain.HealthUnreachable
		c.Reason = err.Error()
		h.logger.Warn("health probe failed", "component", p.Name, "mandatory", p.Mandatory, "error", err)
	}
	return c
}

// aggregate folds component states into an overall level: healthy when
// every component is healthy, down when any mandatory one is not, and
// degraded when only optional components are unhealthy.
func aggregate(components []domain.ComponentHealth) domain.HealthLevel {
	overall := domain.HealthHealthy
	for _, c := range components {
		if c.Status == domain.HealthHealthy {
			continue
		}
		if c.Mandatory {
			return domain.HealthDown
		}
		overall = domain.HealthDegraded
	}
	return overall
}
