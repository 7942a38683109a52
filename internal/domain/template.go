package domain

// TaskTemplate is a named, reusable multi-step plan. Templates are
// registered once (builtin set at startup, extras dynamically) and are
// immutable after registration.
type TaskTemplate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// TriggerPatterns are evaluated in order against a lowercased task
	// description. A pattern containing a URL-scheme fragment is treated
	// as a regular expression; any other pattern is a case-insensitive
	// substring.
	TriggerPatterns []string           `json:"trigger_patterns"`
	DefaultParams   map[string]any     `json:"default_params,omitempty"`
	Steps           []TaskTemplateStep `json:"steps"`

	// RequiresURL gates matching on a URL being present in the text
	// (the navigate family).
	RequiresURL bool `json:"requires_url,omitempty"`
	// RequiresExtraction additionally gates matching on an extraction
	// verb (extract, scrape, get content, pull data).
	RequiresExtraction bool `json:"requires_extraction,omitempty"`
	// TwoPhase marks templates whose description splits on a compound
	// separator into a primary task and an extraction hint.
	TwoPhase bool `json:"two_phase,omitempty"`
	// ParamMode selects the parameter extraction strategy.
	ParamMode ParamMode `json:"param_mode,omitempty"`
}

// ParamMode is a template's parameter extraction strategy.
type ParamMode string

const (
	// ParamModeNone extracts nothing beyond the template defaults.
	ParamModeNone ParamMode = ""
	// ParamModeQuery strips trigger words and keeps the payload text.
	ParamModeQuery ParamMode = "query"
	// ParamModeURL pulls the first URL-looking substring.
	ParamModeURL ParamMode = "url"
	// ParamModeTwoPhase splits on a compound separator into a primary
	// query and an extraction hint.
	ParamModeTwoPhase ParamMode = "two_phase"
	// ParamModeCommand captures a slash command.
	ParamModeCommand ParamMode = "command"
)

// TaskTemplateStep is a static step prototype inside a template. Never
// mutated; concrete TaskSteps are built from it at delegation time.
type TaskTemplateStep struct {
	ToolName    string         `json:"tool_name"`
	Provider    ProviderID     `json:"provider"`
	Category    ToolCategory   `json:"category,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Description string         `json:"description,omitempty"`
	// Optional steps that fail are skipped instead of failing the task.
	Optional bool `json:"optional,omitempty"`
}

// TemplateScore is one entry of the enrichment fallback: a registered
// template scored by keyword overlap against the unmatched description.
type TemplateScore struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score"`
}
