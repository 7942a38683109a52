package orchestrator

import (
	"errors"
	"testing"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry(nil)
	if err := RegisterBuiltins(reg, "comet"); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return reg
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry(nil)
	tmpl := &domain.TaskTemplate{Name: "navigate"}
	if err := reg.Register(tmpl); err != nil {
		t.Fatalf("first register: %v", err)
	}
	err := reg.Register(&domain.TaskTemplate{Name: "navigate"})
	if !errors.Is(err, domain.ErrTemplateDuplicate) {
		t.Errorf("expected ErrTemplateDuplicate, got %v", err)
	}
}

func TestAllPreservesRegistrationOrder(t *testing.T) {
	reg := builtinRegistry(t)
	all := reg.All()
	if len(all) == 0 {
		t.Fatal("no builtins registered")
	}
	if all[0].Name != "research-extract" {
		t.Errorf("expected research-extract first, got %s", all[0].Name)
	}
	if all[len(all)-1].Name != "slash-command" {
		t.Errorf("expected slash-command last, got %s", all[len(all)-1].Name)
	}
}

func TestMatchFirstRegisteredWins(t *testing.T) {
	reg := NewRegistry(nil)
	// Two templates whose trigger sets overlap on "screenshot".
	first := &domain.TaskTemplate{Name: "first", TriggerPatterns: []string{"screenshot"}}
	second := &domain.TaskTemplate{Name: "second", TriggerPatterns: []string{"screenshot", "capture"}}
	reg.Register(first)
	reg.Register(second)

	got := reg.Match("take a screenshot of this")
	if got == nil || got.Name != "first" {
		t.Errorf("expected first, got %+v", got)
	}
}

func TestMatchCaseInsensitive(t *testing.T) {
	reg := builtinRegistry(t)
	got := reg.Match("TAKE A SCREENSHOT")
	if got == nil || got.Name != "screenshot" {
		t.Errorf("expected screenshot, got %+v", got)
	}
}

func TestMatchURLPreconditions(t *testing.T) {
	reg := builtinRegistry(t)

	// URL plus extraction verb: the navigate-extract template, which is
	// registered before plain navigate.
	got := reg.Match("go to https://example.com and extract the headlines")
	if got == nil || got.Name != "navigate-extract" {
		t.Errorf("expected navigate-extract, got %+v", got)
	}

	// URL without an extraction verb falls through to plain navigate.
	got = reg.Match("open https://example.com please")
	if got == nil || got.Name != "navigate" {
		t.Errorf("expected navigate, got %+v", got)
	}

	// Extraction verb without a URL acts on the current page.
	got = reg.Match("extract the table from this page")
	if got == nil || got.Name != "extract-content" {
		t.Errorf("expected extract-content, got %+v", got)
	}
}

func TestMatchResearch(t *testing.T) {
	reg := builtinRegistry(t)
	got := reg.Match("search for the population of Iceland")
	if got == nil || got.Name != "research" {
		t.Errorf("expected research, got %+v", got)
	}
}

func TestMatchTwoPhase(t *testing.T) {
	reg := builtinRegistry(t)
	got := reg.Match("search for golang release notes then extract the breaking changes")
	if got == nil || got.Name != "research-extract" {
		t.Errorf("expected research-extract, got %+v", got)
	}
}

func TestMatchMissReturnsNil(t *testing.T) {
	reg := builtinRegistry(t)
	if got := reg.Match("reticulate the splines"); got != nil {
		t.Errorf("expected nil, got %s", got.Name)
	}
}

func TestMatchSkipsBadRegexPattern(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register(&domain.TaskTemplate{
		Name:            "broken",
		TriggerPatterns: []string{`https?://(`, "fallback trigger"},
	})
	got := reg.Match("use the fallback trigger here")
	if got == nil || got.Name != "broken" {
		t.Errorf("bad regex should be skipped, not fatal; got %+v", got)
	}
}
