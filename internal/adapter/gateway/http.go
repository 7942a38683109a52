package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
	"github.com/equanaut-sha-w1/comet-mcp/internal/infra/config"
	"github.com/equanaut-sha-w1/comet-mcp/internal/usecase/orchestrator"
)

// HTTPGateway exposes the orchestrator as a small REST surface for
// non-MCP callers (curl, dashboards, smoke tests).
type HTTPGateway struct {
	orch    *orchestrator.Orchestrator
	router  domain.ToolInvoker
	limiter *rate.Limiter
	logger  *slog.Logger
	server  *http.Server
}

func NewHTTPGateway(cfg config.GatewayConfig, orch *orchestrator.Orchestrator, router domain.ToolInvoker, logger *slog.Logger) *HTTPGateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &HTTPGateway{
		orch:    orch,
		router:  router,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tasks", g.handleDelegate)
	mux.HandleFunc("GET /api/tasks/{id}", g.handleTaskStatus)
	mux.HandleFunc("DELETE /api/tasks/{id}", g.handleCancel)
	mux.HandleFunc("GET /api/health", g.handleHealth)
	mux.HandleFunc("GET /api/tools", g.handleTools)

	g.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           g.throttle(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return g
}

// ListenAndServe blocks until the server stops.
func (g *HTTPGateway) ListenAndServe() error {
	g.logger.Info("http gateway listening", "addr", g.server.Addr)
	err := g.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (g *HTTPGateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}

func (g *HTTPGateway) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type delegateRequest struct {
	Description string `json:"description"`
	TargetID    string `json:"target_id,omitempty"`
	TimeoutMS   int64  `json:"timeout_ms,omitempty"`
	Async       bool   `json:"async,omitempty"`
	Template    string `json:"template,omitempty"`
}

func (g *HTTPGateway) handleDelegate(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.Description == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	result, err := g.orch.Delegate(r.Context(), req.Description, &orchestrator.DelegateOptions{
		TargetID: req.TargetID,
		Timeout:  time.Duration(req.TimeoutMS) * time.Millisecond,
		Async:    req.Async,
		Template: req.Template,
	})
	if err != nil {
		g.logger.Error("delegate failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusOK
	if result.Status == domain.StatusPendingV {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (g *HTTPGateway) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := g.orch.GetTaskStatus(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *HTTPGateway) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := g.orch.CancelTask(id); err != nil {
		status := http.StatusConflict
		if errors.Is(err, domain.ErrTaskNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "task_id": id})
}

func (g *HTTPGateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	result := g.orch.Health(r.Context(), force)
	status := http.StatusOK
	if result.Overall == domain.HealthDown {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, result)
}

func (g *HTTPGateway) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": g.router.Catalog()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
