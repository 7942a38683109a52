package domain

import "time"

// HealthLevel is the aggregate or per-component health state.
type HealthLevel string

const (
	HealthHealthy     HealthLevel = "healthy"
	HealthDegraded    HealthLevel = "degraded"
	HealthDown        HealthLevel = "down"
	HealthUnreachable HealthLevel = "unreachable"
)

// ComponentHealth is a point-in-time probe result for one component.
type ComponentHealth struct {
	Name      string        `json:"name"`
	Status    HealthLevel   `json:"status"`
	Mandatory bool          `json:"mandatory"`
	Reason    string        `json:"reason,omitempty"`
	LatencyMS int64         `json:"latency_ms"`
	Latency   time.Duration `json:"-"`
}

// HealthCheckResult is the aggregated snapshot. It is cached with a TTL
// and may be served stale-on-read up to that TTL.
type HealthCheckResult struct {
	Overall    HealthLevel       `json:"overall"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Age reports how old the snapshot is.
func (r *HealthCheckResult) Age(now time.Time) time.Duration {
	return now.Sub(r.CheckedAt)
}

// WakeResult reports the outcome of a dormancy recovery attempt.
type WakeResult struct {
	Revived   bool   `json:"revived"`
	Technique string `json:"technique,omitempty"` // which technique succeeded, if any
	Attempts  int    `json:"attempts"`
	ElapsedMS int64  `json:"elapsed_ms"`
}
