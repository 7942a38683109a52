package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

func localOnlyRouter(t *testing.T, winners map[string]domain.ProviderID) *Router {
	t.Helper()
	locals := []LocalTool{
		{Name: "navigate", Category: domain.CategoryBrowser, Description: "open a URL"},
		{Name: "screenshot", Category: domain.CategoryBrowser, Description: "capture the page"},
	}
	r := NewRouter(locals, nil, winners, nil)
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return r
}

func TestRouterCatalogLocalTools(t *testing.T) {
	r := localOnlyRouter(t, nil)
	catalog := r.Catalog()
	if len(catalog) != 2 {
		t.Fatalf("catalog size = %d", len(catalog))
	}
	for _, d := range catalog {
		if d.Provider != domain.ProviderLocal {
			t.Errorf("%s provider = %s", d.Name, d.Provider)
		}
		if d.QualifiedName != "local:"+d.Name {
			t.Errorf("qualified = %s", d.QualifiedName)
		}
		if !d.Canonical {
			t.Errorf("%s should be canonical with no collisions", d.Name)
		}
	}
}

func TestRouterFindToolQualified(t *testing.T) {
	r := localOnlyRouter(t, nil)

	d, err := r.FindTool("local:navigate")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if d.Name != "navigate" {
		t.Errorf("name = %s", d.Name)
	}

	if _, err := r.FindTool("other:navigate"); !errors.Is(err, domain.ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRouterFindToolBare(t *testing.T) {
	r := localOnlyRouter(t, nil)
	d, err := r.FindTool("screenshot")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if d.QualifiedName != "local:screenshot" {
		t.Errorf("qualified = %s", d.QualifiedName)
	}
}

func TestRouterFindToolBareFallsBackWhenNotCanonical(t *testing.T) {
	// The collision map awards "navigate" to another provider, which is
	// not present: the bare lookup still resolves to the only tool left.
	r := localOnlyRouter(t, map[string]domain.ProviderID{"navigate": "comet"})
	d, err := r.FindTool("navigate")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if d.Canonical {
		t.Error("local navigate should not be canonical here")
	}
	if d.Provider != domain.ProviderLocal {
		t.Errorf("provider = %s", d.Provider)
	}
}

func TestRouterInvokeRejectsLocalTools(t *testing.T) {
	r := localOnlyRouter(t, nil)
	_, err := r.Invoke(context.Background(), "navigate", map[string]any{"url": "https://example.com"})
	if !errors.Is(err, domain.ErrLocalDispatch) {
		t.Errorf("expected ErrLocalDispatch, got %v", err)
	}
}

func TestRouterInvokeUnknownTool(t *testing.T) {
	r := localOnlyRouter(t, nil)
	_, err := r.Invoke(context.Background(), "no_such_tool", nil)
	if !errors.Is(err, domain.ErrToolNotFound) {
		t.Errorf("expected ErrToolNotFound, got %v", err)
	}
}

func TestRouterLocalAlwaysAvailable(t *testing.T) {
	r := localOnlyRouter(t, nil)
	if !r.IsServerAvailable(context.Background(), domain.ProviderLocal) {
		t.Error("local provider must always be available")
	}
	if r.IsServerAvailable(context.Background(), "comet") {
		t.Error("unknown provider should be unavailable")
	}
}

func TestRouterInitialized(t *testing.T) {
	locals := []LocalTool{{Name: "navigate", Category: domain.CategoryBrowser}}
	r := NewRouter(locals, nil, nil, nil)
	if r.Initialized() {
		t.Error("router should not report initialized before Initialize")
	}
	if err := r.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if !r.Initialized() {
		t.Error("router should report initialized")
	}
}

func TestCompileSchemaEmpty(t *testing.T) {
	s, err := compileSchema("t", nil)
	if err != nil || s != nil {
		t.Errorf("got %v, %v", s, err)
	}
	s, err = compileSchema("t", json.RawMessage("null"))
	if err != nil || s != nil {
		t.Errorf("got %v, %v", s, err)
	}
}

func TestValidateParams(t *testing.T) {
	raw := json.RawMessage(`{
		"type": "object",
		"properties": {"url": {"type": "string"}},
		"required": ["url"]
	}`)
	schema, err := compileSchema("navigate", raw)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if err := validateParams(schema, map[string]any{"url": "https://example.com"}); err != nil {
		t.Errorf("valid params rejected: %v", err)
	}
	if err := validateParams(schema, map[string]any{}); err == nil {
		t.Error("missing required param accepted")
	}
	if err := validateParams(schema, map[string]any{"url": 7}); err == nil {
		t.Error("wrong type accepted")
	}
	// A nil schema validates anything.
	if err := validateParams(nil, map[string]any{"whatever": true}); err != nil {
		t.Errorf("nil schema rejected params: %v", err)
	}
}

func TestCompileSchemaInvalid(t *testing.T) {
	if _, err := compileSchema("t", json.RawMessage(`{"type": 12}`)); err == nil {
		t.Error("expected compile error for invalid schema")
	}
}
