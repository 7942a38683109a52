package orchestrator

import "github.com/equanaut-sha-w1/comet-mcp/internal/domain"

// Builtins returns the stock template set in registration order, most
// specific first. Remote steps are pinned to the given agent provider
// alias; local steps run in-process against the browser backend.
func Builtins(agent domain.ProviderID) []*domain.TaskTemplate {
	return []*domain.TaskTemplate{
		{
			Name:        "research-extract",
			Description: "Search for something, then extract specific data from the results",
			TriggerPatterns: []string{
				"then extract", "then scrape", "then get content", "then pull data",
			},
			TwoPhase:  true,
			ParamMode: domain.ParamModeTwoPhase,
			Steps: []domain.TaskTemplateStep{
				{
					ToolName:    "search",
					Provider:    agent,
					Category:    domain.CategoryAgent,
					Description: "run the primary research query",
				},
				{
					ToolName:    "get_content",
					Provider:    domain.ProviderLocal,
					Category:    domain.CategoryBrowser,
					Description: "extract page content for the hint",
					Optional:    true,
				},
			},
		},
		{
			Name:               "navigate-extract",
			Description:        "Open a URL and extract its content",
			RequiresURL:        true,
			RequiresExtraction: true,
			ParamMode:          domain.ParamModeURL,
			Steps: []domain.TaskTemplateStep{
				{
					ToolName:    "navigate",
					Provider:    domain.ProviderLocal,
					Category:    domain.CategoryBrowser,
					Description: "open the URL",
				},
				{
					ToolName:    "get_content",
					Provider:    domain.ProviderLocal,
					Category:    domain.CategoryBrowser,
					Description: "extract the page content",
				},
			},
		},
		{
			Name:        "navigate",
			Description: "Open a URL in the browser",
			RequiresURL: true,
			ParamMode:   domain.ParamModeURL,
			Steps: []domain.TaskTemplateStep{
				{
					ToolName:    "navigate",
					Provider:    domain.ProviderLocal,
					Category:    domain.CategoryBrowser,
					Description: "open the URL",
				},
			},
		},
		{
			Name:        "screenshot",
			Description: "Capture a screenshot of the current page",
			TriggerPatterns: []string{
				"take a screenshot", "screenshot", "capture the screen", "capture the page",
			},
			Steps: []domain.TaskTemplateStep{
				{
					ToolName:    "screenshot",
					Provider:    domain.ProviderLocal,
					Category:    domain.CategoryBrowser,
					Description: "capture the visible page",
					Params:      map[string]any{"full_page": false},
				},
			},
		},
		{
			Name:        "extract-content",
			Description: "Extract content from the current page",
			TriggerPatterns: []string{
				"extract", "scrape", "get content", "pull data", "read the page",
			},
			Steps: []domain.TaskTemplateStep{
				{
					ToolName:    "get_content",
					Provider:    domain.ProviderLocal,
					Category:    domain.CategoryBrowser,
					Description: "extract the page content",
				},
			},
		},
		{
			Name:            "research",
			Description:     "Research a topic with the agent",
			TriggerPatterns: queryLeadIns,
			ParamMode:       domain.ParamModeQuery,
			Steps: []domain.TaskTemplateStep{
				{
					ToolName:    "search",
					Provider:    agent,
					Category:    domain.CategoryAgent,
					Description: "run the research query",
				},
			},
		},
		{
			Name:        "slash-command",
			Description: "Run a slash command through the agent",
			TriggerPatterns: []string{
				"run /", "execute /", "slash command",
			},
			ParamMode: domain.ParamModeCommand,
			Steps: []domain.TaskTemplateStep{
				{
					ToolName:    "execute_command",
					Provider:    agent,
					Category:    domain.CategoryCommand,
					Description: "run the slash command",
				},
			},
		},
	}
}

// RegisterBuiltins installs the stock template set into a registry.
func RegisterBuiltins(reg *Registry, agent domain.ProviderID) error {
	for _, t := range Builtins(agent) {
		if err := reg.Register(t); err != nil {
			return err
		}
	}
	return nil
}
