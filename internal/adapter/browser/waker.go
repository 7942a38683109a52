package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

// Wake techniques, in escalation order.
const (
	techniquePing   = "ping"
	techniqueReopen = "reopen"
)

// wakeBackend is the slice of Backend the waker needs.
type wakeBackend interface {
	Evaluate(ctx context.Context, expression string) (string, error)
	ListTargets(ctx context.Context) ([]TargetInfo, error)
	Navigate(ctx context.Context, url string) error
}

// Waker revives the companion extension's service worker when the browser
// has put it to sleep. Recovery is best-effort: callers proceed with their
// step whether or not the wake succeeded.
type Waker struct {
	backend     wakeBackend
	extensionID string
	settle      time.Duration
	timeout     time.Duration
	logger      *slog.Logger
}

// NewWaker creates a dormancy waker for the given extension.
func NewWaker(backend wakeBackend, extensionID string, logger *slog.Logger) *Waker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Waker{
		backend:     backend,
		extensionID: extensionID,
		settle:      500 * time.Millisecond,
		timeout:     10 * time.Second,
		logger:      logger,
	}
}

// IsAlive is a cheap positive-signal probe: the worker is alive iff its
// target is visible in the target list.
func (w *Waker) IsAlive(ctx context.Context) bool {
	if w.extensionID == "" {
		return true // nothing to watch
	}
	targets, err := w.backend.ListTargets(ctx)
	if err != nil {
		return false
	}
	prefix := "chrome-extension://" + w.extensionID
	for _, t := range targets {
		if t.Type == "service_worker" && strings.HasPrefix(t.URL, prefix) {
			return true
		}
	}
	return false
}

// Wake tries a low-cost technique, waits a short settle interval and
// re-probes; on failure it tries one more invasive technique and re-probes
// again. Both attempts race a hard timeout.
func (w *Waker) Wake(ctx context.Context) (*domain.WakeResult, error) {
	start := time.Now()
	res := &domain.WakeResult{}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	techniques := []struct {
		name string
		fn   func(context.Context) error
	}{
		{techniquePing, w.ping},
		{techniqueReopen, w.reopen},
	}

	for _, t := range techniques {
		if ctx.Err() != nil {
			break
		}
		res.Attempts++

		if err := t.fn(ctx); err != nil {
			w.logger.Debug("wake technique failed", "technique", t.name, "error", err)
		}
		if !w.sleep(ctx, w.settle) {
			break
		}
		if w.IsAlive(ctx) {
			res.Revived = true
			res.Technique = t.name
			break
		}
	}

	res.ElapsedMS = time.Since(start).Milliseconds()
	if res.Revived {
		w.logger.Info("extension worker revived",
			"technique", res.Technique, "attempts", res.Attempts, "elapsed_ms", res.ElapsedMS)
	} else {
		w.logger.Warn("extension worker not revived",
			"attempts", res.Attempts, "elapsed_ms", res.ElapsedMS)
	}
	return res, nil
}

// ping nudges the worker from the active page: dispatching a runtime
// message forces the browser to spin the worker back up.
func (w *Waker) ping(ctx context.Context) error {
	expr := fmt.Sprintf(
		`(() => { try { chrome.runtime.sendMessage(%q, {type: "ping"}); return "sent"; } catch (e) { return "unavailable"; } })()`,
		w.extensionID,
	)
	_, err := w.backend.Evaluate(ctx, expr)
	return err
}

// reopen navigates to an extension page, which always restarts the worker.
func (w *Waker) reopen(ctx context.Context) error {
	return w.backend.Navigate(ctx, "chrome-extension://"+w.extensionID+"/manifest.json")
}

func (w *Waker) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
