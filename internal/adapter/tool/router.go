package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

// LocalTool declares one tool published by the in-process browser
// provider. The router lists these in the catalog but never dispatches
// them; local execution belongs to the executor.
type LocalTool struct {
	Name        string
	Category    domain.ToolCategory
	Description string
	Schema      json.RawMessage
}

// Router merges the local provider's inventory with every bridge's remote
// inventory into one addressable catalog and dispatches remote
// invocations.
type Router struct {
	localTools []LocalTool
	bridges    []*Bridge
	// winners is the static collision policy: bare tool name -> the
	// provider whose tool is canonical. Decided at build time.
	winners map[string]domain.ProviderID
	logger  *slog.Logger

	mu          sync.RWMutex
	catalog     []domain.ToolDescriptor
	validators  map[string]*jsonschema.Schema // qualified name -> schema
	initialized bool
}

// NewRouter creates a router. Initialize must be called before the remote
// catalog is usable; an uninitialized router serves only the local tools.
func NewRouter(localTools []LocalTool, bridges []*Bridge, winners map[string]domain.ProviderID, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		localTools: localTools,
		bridges:    bridges,
		winners:    winners,
		logger:     logger,
		validators: make(map[string]*jsonschema.Schema),
	}
	r.catalog = r.buildLocalCatalog()
	return r
}

// Initialize fetches every remote provider's inventory and rebuilds the
// catalog. A provider that fails discovery is skipped with a warning —
// initialization never crashes the host process, and the catalog falls
// back to whatever providers did answer.
func (r *Router) Initialize(ctx context.Context) error {
	catalog := r.buildLocalCatalog()

	for _, b := range r.bridges {
		tools, err := b.ListTools(ctx)
		if err != nil {
			r.logger.Warn("bridge discovery failed, catalog continues without it",
				"bridge", b.Name(), "error", err)
			continue
		}
		for _, t := range tools {
			schema := marshalInputSchema(t)
			catalog = append(catalog, r.describe(t.Name, domain.ProviderID(b.Name()),
				domain.CategoryAgent, t.Description, schema))
		}
	}

	validators := make(map[string]*jsonschema.Schema, len(catalog))
	for _, d := range catalog {
		compiled, err := compileSchema(d.QualifiedName, d.Schema)
		if err != nil {
			// Tool stays registered; it just runs without validation.
			r.logger.Warn("schema validation disabled for tool",
				"tool", d.QualifiedName, "error", err)
			continue
		}
		if compiled != nil {
			validators[d.QualifiedName] = compiled
		}
	}

	r.mu.Lock()
	r.catalog = catalog
	r.validators = validators
	r.initialized = true
	r.mu.Unlock()

	r.logger.Info("tool catalog built", "tools", len(catalog), "bridges", len(r.bridges))
	return nil
}

func (r *Router) buildLocalCatalog() []domain.ToolDescriptor {
	catalog := make([]domain.ToolDescriptor, 0, len(r.localTools))
	for _, lt := range r.localTools {
		catalog = append(catalog, r.describe(lt.Name, domain.ProviderLocal, lt.Category, lt.Description, lt.Schema))
	}
	return catalog
}

// describe builds one immutable descriptor, applying the collision policy:
// a tool is canonical iff its bare name is absent from the collision map,
// or present with this provider declared the winner.
func (r *Router) describe(name string, provider domain.ProviderID, category domain.ToolCategory, description string, schema json.RawMessage) domain.ToolDescriptor {
	canonical := true
	if winner, ok := r.winners[name]; ok {
		canonical = winner == provider
	}
	return domain.ToolDescriptor{
		Name:          name,
		QualifiedName: string(provider) + domain.QualifiedSeparator + name,
		Provider:      provider,
		Category:      category,
		Description:   description,
		Schema:        schema,
		Canonical:     canonical,
	}
}

// Catalog returns a snapshot of the merged catalog.
func (r *Router) Catalog() []domain.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolDescriptor, len(r.catalog))
	copy(out, r.catalog)
	return out
}

// FindTool resolves a tool name. A qualified name ("provider:tool") must
// match exactly; a bare name resolves to the canonical tool among all
// providers exposing it, falling back to the first.
func (r *Router) FindTool(name string) (*domain.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.Contains(name, domain.QualifiedSeparator) {
		for i := range r.catalog {
			if r.catalog[i].QualifiedName == name {
				d := r.catalog[i]
				return &d, nil
			}
		}
		return nil, domain.NewDomainError("Router.FindTool", domain.ErrToolNotFound, name)
	}

	var first *domain.ToolDescriptor
	for i := range r.catalog {
		if r.catalog[i].Name != name {
			continue
		}
		d := r.catalog[i]
		if d.Canonical {
			return &d, nil
		}
		if first == nil {
			first = &d
		}
	}
	if first != nil {
		return first, nil
	}
	return nil, domain.NewDomainError("Router.FindTool", domain.ErrToolNotFound, name)
}

// Invoke resolves and dispatches a tool call. Local-provider tools are
// rejected: the executor runs those itself against the browser session.
// Provider and transport failures are normalized into an unsuccessful
// ToolResult, never an unstructured error.
func (r *Router) Invoke(ctx context.Context, name string, params map[string]any) (*domain.ToolResult, error) {
	desc, err := r.FindTool(name)
	if err != nil {
		return nil, err
	}
	if desc.Provider == domain.ProviderLocal {
		return nil, domain.NewDomainError("Router.Invoke", domain.ErrLocalDispatch, desc.QualifiedName)
	}

	start := time.Now()
	result := &domain.ToolResult{
		ToolName: desc.Name,
		Provider: desc.Provider,
	}

	r.mu.RLock()
	validator := r.validators[desc.QualifiedName]
	r.mu.RUnlock()
	if err := validateParams(validator, params); err != nil {
		result.Error = "invalid params: " + err.Error()
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	bridge := r.bridgeFor(desc.Provider)
	if bridge == nil {
		result.Error = "no bridge for provider " + string(desc.Provider)
		result.DurationMS = time.Since(start).Milliseconds()
		return result, nil
	}

	data, callErr := bridge.Call(ctx, desc.Name, params)
	result.DurationMS = time.Since(start).Milliseconds()
	if callErr != nil {
		result.Error = callErr.Error()
		return result, nil
	}
	result.Success = true
	result.Data = data
	return result, nil
}

// IsServerAvailable reports provider availability: the local provider is
// always available; a remote provider answers a short inventory probe.
func (r *Router) IsServerAvailable(ctx context.Context, provider domain.ProviderID) bool {
	if provider == domain.ProviderLocal {
		return true
	}
	b := r.bridgeFor(provider)
	if b == nil {
		return false
	}
	return b.Probe(ctx)
}

// Initialized reports whether remote discovery has completed at least once.
func (r *Router) Initialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}

// Close shuts down all bridges.
func (r *Router) Close() {
	for _, b := range r.bridges {
		b.Close()
	}
}

func (r *Router) bridgeFor(provider domain.ProviderID) *Bridge {
	for _, b := range r.bridges {
		if domain.ProviderID(b.Name()) == provider {
			return b
		}
	}
	return nil
}

// marshalInputSchema converts an MCP tool's input schema to raw JSON.
func marshalInputSchema(t mcp.Tool) json.RawMessage {
	params := json.RawMessage(`{"type": "object"}`)
	if t.InputSchema.Properties != nil || t.InputSchema.Required != nil {
		if data, err := json.Marshal(t.InputSchema); err == nil {
			params = data
		}
	}
	return params
}
