package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

func countingProbe(name string, mandatory bool, calls *atomic.Int32, err error) Probe {
	return Probe{
		Name:      name,
		Mandatory: mandatory,
		Check: func(context.Context) error {
			calls.Add(1)
			return err
		},
	}
}

func TestHealthAllHealthy(t *testing.T) {
	var calls atomic.Int32
	h := NewHealthChecker([]Probe{
		countingProbe("browser", true, &calls, nil),
		countingProbe("bridge", false, &calls, nil),
	}, 30*time.Second, time.Second, nil)

	res := h.Check(context.Background(), false)
	if res.Overall != domain.HealthHealthy {
		t.Errorf("overall = %s, want healthy", res.Overall)
	}
	if len(res.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(res.Components))
	}
	for _, c := range res.Components {
		if c.Status != domain.HealthHealthy {
			t.Errorf("%s = %s", c.Name, c.Status)
		}
	}
}

func TestHealthOptionalFailureIsDegraded(t *testing.T) {
	var calls atomic.Int32
	h := NewHealthChecker([]Probe{
		countingProbe("browser", true, &calls, nil),
		countingProbe("bridge", false, &calls, errors.New("no response")),
	}, 30*time.Second, time.Second, nil)

	res := h.Check(context.Background(), false)
	if res.Overall != domain.HealthDegraded {
		t.Errorf("overall = %s, want degraded", res.Overall)
	}
}

func TestHealthMandatoryFailureIsDown(t *testing.T) {
	var calls atomic.Int32
	h := NewHealthChecker([]Probe{
		countingProbe("browser", true, &calls, domain.ErrBrowserNotConnected),
		countingProbe("bridge", false, &calls, nil),
	}, 30*time.Second, time.Second, nil)

	res := h.Check(context.Background(), false)
	if res.Overall != domain.HealthDown {
		t.Errorf("overall = %s, want down", res.Overall)
	}
	for _, c := range res.Components {
		if c.Name == "browser" && c.Status != domain.HealthUnreachable {
			t.Errorf("browser = %s, want unreachable", c.Status)
		}
	}
}

func TestHealthCacheWithinTTL(t *testing.T) {
	var calls atomic.Int32
	h := NewHealthChecker([]Probe{
		countingProbe("browser", true, &calls, nil),
	}, 30*time.Second, time.Second, nil)

	first := h.Check(context.Background(), false)
	second := h.Check(context.Background(), false)
	if calls.Load() != 1 {
		t.Errorf("probe ran %d times, want 1", calls.Load())
	}
	if first != second {
		t.Error("expected the cached result to be returned")
	}
}

func TestHealthForceBypassesCache(t *testing.T) {
	var calls atomic.Int32
	h := NewHealthChecker([]Probe{
		countingProbe("browser", true, &calls, nil),
	}, 30*time.Second, time.Second, nil)

	h.Check(context.Background(), false)
	h.Check(context.Background(), true)
	if calls.Load() != 2 {
		t.Errorf("probe ran %d times, want 2", calls.Load())
	}
}

func TestHealthCacheExpiry(t *testing.T) {
	var calls atomic.Int32
	h := NewHealthChecker([]Probe{
		countingProbe("browser", true, &calls, nil),
	}, 30*time.Second, time.Second, nil)

	// Drive the clock manually past the TTL.
	base := time.Now()
	h.now = func() time.Time { return base }
	h.Check(context.Background(), false)

	h.now = func() time.Time { return base.Add(31 * time.Second) }
	h.Check(context.Background(), false)

	if calls.Load() != 2 {
		t.Errorf("probe ran %d times, want 2 after expiry", calls.Load())
	}
}

func TestHealthCachedBeforeFirstCheck(t *testing.T) {
	h := NewHealthChecker(nil, 30*time.Second, time.Second, nil)
	if h.Cached() != nil {
		t.Error("expected nil before the first check")
	}
	h.Check(context.Background(), false)
	if h.Cached() == nil {
		t.Error("expected a cached result after a check")
	}
}
