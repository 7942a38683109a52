package orchestrator

import (
	"testing"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

func findBuiltin(t *testing.T, name string) *domain.TaskTemplate {
	t.Helper()
	for _, tmpl := range Builtins("comet") {
		if tmpl.Name == name {
			return tmpl
		}
	}
	t.Fatalf("builtin %s not found", name)
	return nil
}

func TestExtractQueryStripsTriggers(t *testing.T) {
	tmpl := findBuiltin(t, "research")
	params := ExtractParams(tmpl, "Search for the population of Iceland")
	if got := params["query"]; got != "the population of Iceland" {
		t.Errorf("query = %q", got)
	}
}

func TestExtractQueryStripsLongestTriggerFirst(t *testing.T) {
	// "search for" must be removed as a phrase, not as "search" leaving
	// a dangling "for".
	tmpl := &domain.TaskTemplate{
		Name:            "q",
		TriggerPatterns: []string{"search", "search for"},
		ParamMode:       domain.ParamModeQuery,
	}
	params := ExtractParams(tmpl, "search for rust editions")
	if got := params["query"]; got != "rust editions" {
		t.Errorf("query = %q", got)
	}
}

func TestExtractURL(t *testing.T) {
	tmpl := findBuiltin(t, "navigate")
	params := ExtractParams(tmpl, "open https://example.com/news?page=2 please")
	if got := params["url"]; got != "https://example.com/news?page=2" {
		t.Errorf("url = %q", got)
	}
}

func TestExtractURLTrimsTrailingPunctuation(t *testing.T) {
	tmpl := findBuiltin(t, "navigate")
	params := ExtractParams(tmpl, "go to https://example.com/docs.")
	if got := params["url"]; got != "https://example.com/docs" {
		t.Errorf("url = %q", got)
	}
}

func TestExtractTwoPhase(t *testing.T) {
	tmpl := findBuiltin(t, "research-extract")
	params := ExtractParams(tmpl, "search for golang release notes then extract the breaking changes")
	if got := params["query"]; got != "golang release notes" {
		t.Errorf("query = %q", got)
	}
	if got := params["extract_hint"]; got != "extract the breaking changes" {
		t.Errorf("extract_hint = %q", got)
	}
}

func TestExtractSlashCommand(t *testing.T) {
	tmpl := findBuiltin(t, "slash-command")
	params := ExtractParams(tmpl, "run /summarize last 10 messages")
	if got := params["command"]; got != "/summarize last 10 messages" {
		t.Errorf("command = %q", got)
	}
}

func TestExtractKeepsTemplateDefaults(t *testing.T) {
	tmpl := &domain.TaskTemplate{
		Name:          "defaults",
		DefaultParams: map[string]any{"depth": 3},
		ParamMode:     domain.ParamModeURL,
	}
	params := ExtractParams(tmpl, "open https://example.com")
	if params["depth"] != 3 {
		t.Errorf("default param dropped: %+v", params)
	}
	if params["url"] != "https://example.com" {
		t.Errorf("url = %q", params["url"])
	}
}

func TestSplitCompoundSeparatorPriority(t *testing.T) {
	primary, hint := splitCompound("find the report and then extract the totals")
	if primary != "find the report" || hint != "extract the totals" {
		t.Errorf("got %q / %q", primary, hint)
	}

	primary, hint = splitCompound("no separator here")
	if primary != "no separator here" || hint != "" {
		t.Errorf("got %q / %q", primary, hint)
	}
}

func TestScoreTemplatesOverlap(t *testing.T) {
	templates := []*domain.TaskTemplate{
		{Name: "a", TriggerPatterns: []string{"capture the page"}},
		{Name: "b", TriggerPatterns: []string{"unrelated words entirely"}},
	}
	scores := ScoreTemplates(templates, "please capture the page now")
	if scores[0].Name != "a" {
		t.Fatalf("expected a ranked first, got %s", scores[0].Name)
	}
	if scores[0].Score != 1.0 {
		t.Errorf("expected full overlap, got %f", scores[0].Score)
	}
	if scores[1].Score != 0 {
		t.Errorf("expected zero overlap, got %f", scores[1].Score)
	}
}

func TestScoreTemplatesIgnoresRegexTriggers(t *testing.T) {
	templates := []*domain.TaskTemplate{
		{Name: "mixed", TriggerPatterns: []string{`https?://`, "open page"}},
	}
	scores := ScoreTemplates(templates, "open the page")
	// Only the plain trigger vocabulary counts: {open, page}, both hit.
	if scores[0].Score != 1.0 {
		t.Errorf("score = %f", scores[0].Score)
	}
}
