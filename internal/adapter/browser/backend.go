package browser

import "context"

// Backend abstracts the browser-control surface the orchestrator depends
// on. Implementations must keep the three failure modes distinguishable
// through the domain sentinels: not connected, evaluation threw, and
// transport closed.
type Backend interface {
	// Navigate loads a URL in the active tab.
	Navigate(ctx context.Context, url string) error
	// GetContent extracts the page content as agent-friendly text.
	// If selector is non-empty, only that element's subtree is extracted.
	GetContent(ctx context.Context, selector string) (*PageContent, error)
	// Screenshot captures the current viewport as base64-encoded JPEG.
	Screenshot(ctx context.Context, fullPage bool) (string, error)
	// Click clicks the element matching the given CSS selector.
	Click(ctx context.Context, selector string) error
	// Type types text into the element matching the given CSS selector.
	Type(ctx context.Context, selector string, text string) error
	// Evaluate executes a JavaScript expression and returns the result as
	// a string. A thrown exception surfaces as domain.ErrEvalException.
	Evaluate(ctx context.Context, expression string) (string, error)
	// ListTargets returns all addressable targets (tabs, workers).
	ListTargets(ctx context.Context) ([]TargetInfo, error)
	// CloseTarget closes the target with the given ID.
	CloseTarget(ctx context.Context, targetID string) error
	// Status returns connection status information.
	Status(ctx context.Context) (*Status, error)
	// Close releases all browser resources.
	Close() error
	// Name returns the backend identifier (e.g. "chromedp").
	Name() string
}

// PageContent holds agent-friendly extracted page content.
type PageContent struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// TargetInfo describes one addressable browser target.
type TargetInfo struct {
	TargetID string `json:"target_id"`
	Type     string `json:"type"` // "page", "service_worker", ...
	Title    string `json:"title"`
	URL      string `json:"url"`
	Active   bool   `json:"active"`
}

// Status holds browser connection info.
type Status struct {
	Connected    bool   `json:"connected"`
	Backend      string `json:"backend"`
	TargetCount  int    `json:"target_count"`
	ActiveTabURL string `json:"active_tab_url,omitempty"`
}
