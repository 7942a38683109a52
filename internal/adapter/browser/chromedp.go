package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
)

// ChromeDPConfig holds configuration for the chromedp backend.
type ChromeDPConfig struct {
	// RemoteURL is the CDP WebSocket endpoint for connecting to a running
	// browser. If empty, a local instance is launched.
	RemoteURL string
	// Headless controls whether a locally launched browser runs headless.
	Headless bool
	// Timeout is the per-action timeout.
	Timeout time.Duration
}

// ChromeDPBackend implements Backend using chromedp.
type ChromeDPBackend struct {
	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	tabCtx        context.Context
	tabCancel     context.CancelFunc
	timeout       time.Duration
	logger        *slog.Logger
	connected     bool
}

// NewChromeDPBackend connects to (or launches) a browser and opens the
// initial tab.
func NewChromeDPBackend(cfg ChromeDPConfig, logger *slog.Logger) (*ChromeDPBackend, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	b := &ChromeDPBackend{
		timeout: cfg.Timeout,
		logger:  logger,
	}

	var allocCtx context.Context
	if cfg.RemoteURL != "" {
		allocCtx, b.allocCancel = chromedp.NewRemoteAllocator(
			context.Background(), cfg.RemoteURL,
		)
		logger.Info("chromedp connecting to remote browser", "url", cfg.RemoteURL)
	} else {
		opts := make([]chromedp.ExecAllocatorOption, len(chromedp.DefaultExecAllocatorOptions))
		copy(opts, chromedp.DefaultExecAllocatorOptions[:])
		opts = append(opts,
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.WindowSize(1280, 720),
		)
		allocCtx, b.allocCancel = chromedp.NewExecAllocator(
			context.Background(), opts...,
		)
		logger.Info("chromedp launching local browser", "headless", cfg.Headless)
	}

	b.browserCtx, b.browserCancel = chromedp.NewContext(allocCtx)
	b.tabCtx, b.tabCancel = chromedp.NewContext(b.browserCtx)

	// Start the browser with an empty action. The CDP session binds to the
	// context passed to the first Run, so the timeout is raced externally
	// instead of derived from tabCtx.
	startDone := make(chan error, 1)
	go func() { startDone <- chromedp.Run(b.tabCtx) }()
	select {
	case err := <-startDone:
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("start browser: %w", err)
		}
	case <-time.After(cfg.Timeout):
		b.Close()
		return nil, fmt.Errorf("start browser: timed out after %v", cfg.Timeout)
	}

	b.connected = true
	logger.Info("chromedp browser started")
	return b, nil
}

func (b *ChromeDPBackend) Name() string { return "chromedp" }

// run executes chromedp actions on the active tab under the per-action
// timeout, translating failures into the domain's sentinel errors.
func (b *ChromeDPBackend) run(op string, actions ...chromedp.Action) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return domain.NewDomainError(op, domain.ErrBrowserNotConnected, "")
	}

	tctx, cancel := context.WithTimeout(b.tabCtx, b.timeout)
	defer cancel()

	if err := chromedp.Run(tctx, actions...); err != nil {
		return b.translate(op, err)
	}
	return nil
}

// translate maps a chromedp error onto the domain sentinels. Caller must
// hold mu when the error may flip the connected flag.
func (b *ChromeDPBackend) translate(op string, err error) error {
	var exc *runtime.ExceptionDetails
	if errors.As(err, &exc) {
		return domain.NewDomainError(op, domain.ErrEvalException, exc.Error())
	}
	if isTransportError(err) {
		b.connected = false
		return domain.NewDomainError(op, domain.ErrTransportClosed, err.Error())
	}
	return domain.WrapOp(op, err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range []string{"websocket", "connection closed", "broken pipe", "transport"} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func (b *ChromeDPBackend) Navigate(ctx context.Context, url string) error {
	return b.run("browser.navigate",
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

// contentExtractionJS returns the page title, URL, and visible text of the
// given DOM subtree as a JSON string.
func contentExtractionJS(domTarget string) string {
	return fmt.Sprintf(`(() => {
		const root = %s;
		const text = root ? root.innerText : "";
		return JSON.stringify({
			title: document.title,
			url: location.href,
			text: text.replace(/\n{3,}/g, "\n\n").slice(0, 100000),
		});
	})()`, domTarget)
}

func (b *ChromeDPBackend) GetContent(ctx context.Context, selector string) (*PageContent, error) {
	domTarget := "document.body"
	if selector != "" {
		domTarget = fmt.Sprintf("document.querySelector(%q)", selector)
	}

	var result string
	if err := b.run("browser.get_content",
		chromedp.Evaluate(contentExtractionJS(domTarget), &result),
	); err != nil {
		return nil, err
	}

	var pc PageContent
	if err := json.Unmarshal([]byte(result), &pc); err != nil {
		// Fallback: return raw text.
		pc.Text = result
	}
	return &pc, nil
}

// screenshotQualities is the sequence of JPEG quality levels tried when a
// capture exceeds maxScreenshotBase64.
var screenshotQualities = []int{80, 60, 40, 20}

// maxScreenshotBase64 caps the base64 payload at ~200KB.
const maxScreenshotBase64 = 200000

func (b *ChromeDPBackend) captureJPEG(fullPage bool, quality int) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, quality)
	} else {
		q := int64(quality)
		action = chromedp.ActionFunc(func(actx context.Context) error {
			data, err := page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(q).
				Do(actx)
			if err != nil {
				return err
			}
			buf = data
			return nil
		})
	}
	if err := b.run("browser.screenshot", action); err != nil {
		return nil, err
	}
	return buf, nil
}

func (b *ChromeDPBackend) Screenshot(ctx context.Context, fullPage bool) (string, error) {
	var encoded string
	for _, quality := range screenshotQualities {
		buf, err := b.captureJPEG(fullPage, quality)
		if err != nil {
			return "", err
		}
		encoded = base64.StdEncoding.EncodeToString(buf)
		if len(encoded) <= maxScreenshotBase64 {
			return encoded, nil
		}
		b.logger.Debug("screenshot too large, reducing quality",
			"quality", quality, "base64_len", len(encoded))
	}
	// Every quality level exceeded the cap; the lowest-quality image is
	// still valid, so return it and let the caller decide.
	return encoded, nil
}

func (b *ChromeDPBackend) Click(ctx context.Context, selector string) error {
	return b.run("browser.click",
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (b *ChromeDPBackend) Type(ctx context.Context, selector string, text string) error {
	return b.run("browser.type",
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (b *ChromeDPBackend) Evaluate(ctx context.Context, expression string) (string, error) {
	var result any
	if err := b.run("browser.evaluate",
		chromedp.Evaluate(expression, &result),
	); err != nil {
		return "", err
	}

	switch v := result.(type) {
	case string:
		return v, nil
	case nil:
		return "undefined", nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v), nil
		}
		return string(data), nil
	}
}

func (b *ChromeDPBackend) ListTargets(ctx context.Context) ([]TargetInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return nil, domain.NewDomainError("browser.list_targets", domain.ErrBrowserNotConnected, "")
	}

	targets, err := chromedp.Targets(b.browserCtx)
	if err != nil {
		return nil, b.translate("browser.list_targets", err)
	}

	active := ""
	if ct := chromedp.FromContext(b.tabCtx); ct != nil && ct.Target != nil {
		active = string(ct.Target.TargetID)
	}

	infos := make([]TargetInfo, 0, len(targets))
	for _, t := range targets {
		infos = append(infos, TargetInfo{
			TargetID: string(t.TargetID),
			Type:     t.Type,
			Title:    t.Title,
			URL:      t.URL,
			Active:   string(t.TargetID) == active,
		})
	}
	return infos, nil
}

func (b *ChromeDPBackend) CloseTarget(ctx context.Context, targetID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return domain.NewDomainError("browser.close_target", domain.ErrBrowserNotConnected, "")
	}

	tctx, cancel := context.WithTimeout(b.browserCtx, b.timeout)
	defer cancel()

	err := chromedp.Run(tctx, chromedp.ActionFunc(func(actx context.Context) error {
		return target.CloseTarget(target.ID(targetID)).Do(actx)
	}))
	if err != nil {
		return b.translate("browser.close_target", err)
	}
	return nil
}

func (b *ChromeDPBackend) Status(ctx context.Context) (*Status, error) {
	st := &Status{Backend: b.Name()}

	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return st, nil
	}

	targets, err := b.ListTargets(ctx)
	if err != nil {
		return st, nil
	}
	st.Connected = true
	st.TargetCount = len(targets)
	for _, t := range targets {
		if t.Active {
			st.ActiveTabURL = t.URL
		}
	}
	return st, nil
}

func (b *ChromeDPBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.connected = false
	if b.tabCancel != nil {
		b.tabCancel()
	}
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
	return nil
}
