package orchestrator

import (
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

// Registry holds task templates in registration order. Matching walks
// that order and returns the first template whose triggers fire, so
// more specific templates must be registered before broader ones.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*domain.TaskTemplate
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]*domain.TaskTemplate),
		logger: logger,
	}
}

// Register adds a template. Re-registering a name is an error.
func (r *Registry) Register(t *domain.TaskTemplate) error {
	if t == nil || t.Name == "" {
		return domain.NewDomainError("registry.register", domain.ErrInvalidInput, "template must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[t.Name]; ok {
		return domain.NewDomainError("registry.register", domain.ErrTemplateDuplicate, t.Name)
	}
	r.byName[t.Name] = t
	r.order = append(r.order, t.Name)
	r.logger.Debug("template registered", "name", t.Name, "triggers", len(t.TriggerPatterns))
	return nil
}

func (r *Registry) Get(name string) (*domain.TaskTemplate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// All returns the templates in registration order.
func (r *Registry) All() []*domain.TaskTemplate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.TaskTemplate, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Match returns the first registered template that fires on the
// description, or nil when none does. The caller decides how to handle
// a miss; a nil template is not an error here.
func (r *Registry) Match(description string) *domain.TaskTemplate {
	lowered := strings.ToLower(description)
	for _, t := range r.All() {
		if r.matches(t, lowered) {
			return t
		}
	}
	return nil
}

func (r *Registry) matches(t *domain.TaskTemplate, lowered string) bool {
	if t.RequiresURL && !containsURL(lowered) {
		return false
	}
	if t.RequiresExtraction && !containsExtractionVerb(lowered) {
		return false
	}
	// Positional templates match on their preconditions alone when they
	// carry no trigger patterns.
	if len(t.TriggerPatterns) == 0 {
		return t.RequiresURL || t.RequiresExtraction
	}
	for _, pattern := range t.TriggerPatterns {
		if isRegexTrigger(pattern) {
			re, err := regexp.Compile(pattern)
			if err != nil {
				r.logger.Warn("bad trigger pattern, skipping", "template", t.Name, "pattern", pattern, "error", err)
				continue
			}
			if re.MatchString(lowered) {
				return true
			}
			continue
		}
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// isRegexTrigger reports whether a trigger pattern should be compiled
// as a regular expression rather than matched as a substring. Patterns
// carrying a URL scheme fragment are the regex family.
func isRegexTrigger(pattern string) bool {
	return strings.Contains(pattern, "://") || strings.Contains(pattern, `\b`)
}

var extractionVerbs = []string{"extract", "scrape", "get content", "pull data"}

func containsExtractionVerb(lowered string) bool {
	for _, verb := range extractionVerbs {
		if strings.Contains(lowered, verb) {
			return true
		}
	}
	return false
}
