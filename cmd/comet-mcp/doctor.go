package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/equanaut-sha-w1/comet-mcp/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor(args []string) error {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// Try to load config — some checks work without it.
	cfg, cfgErr := config.Load(*cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(*cfgPath, cfgErr)},
		{Name: "Browser", Fn: checkBrowser},
		{Name: "Extension", Fn: checkExtension},
		{Name: "Bridge commands", Fn: checkBridgeCommands},
		{Name: "Gateway address", Fn: checkGatewayAddr},
	}

	fmt.Println("comet-mcp doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above before serving.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\ncomet-mcp should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! comet-mcp is ready to serve.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile returns a check that verifies the config file exists and parses correctly.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("config file not found at %s, using defaults", cfgPath),
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config file parse error: %v", cfgErr),
				Fix:     "Check the YAML syntax and duration strings in " + cfgPath,
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkBrowser verifies either the remote CDP endpoint answers or a
// launchable browser binary is on PATH.
func checkBrowser(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check — config not loaded"}
	}

	if cfg.Browser.RemoteURL != "" {
		versionURL := cdpVersionURL(cfg.Browser.RemoteURL)
		client := &http.Client{Timeout: 3 * time.Second}
		resp, err := client.Get(versionURL)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("CDP endpoint %s not reachable: %v", cfg.Browser.RemoteURL, err),
				Fix:     "Start the browser with --remote-debugging-port, or clear browser.remote_url to launch locally",
			}
		}
		resp.Body.Close()
		return CheckResult{
			Status:  StatusPass,
			Message: "CDP endpoint reachable at " + cfg.Browser.RemoteURL,
		}
	}

	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "chrome"} {
		if path, err := exec.LookPath(name); err == nil {
			return CheckResult{Status: StatusPass, Message: "browser binary found: " + path}
		}
	}
	return CheckResult{
		Status:  StatusFail,
		Message: "no browser binary found on PATH",
		Fix:     "Install Chromium/Chrome, or set browser.remote_url to an existing instance",
	}
}

// cdpVersionURL turns a ws:// CDP URL into the /json/version HTTP probe URL.
func cdpVersionURL(remoteURL string) string {
	u := strings.Replace(remoteURL, "ws://", "http://", 1)
	u = strings.Replace(u, "wss://", "https://", 1)
	if i := strings.Index(u, "/devtools"); i >= 0 {
		u = u[:i]
	}
	return strings.TrimRight(u, "/") + "/json/version"
}

func checkExtension(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check — config not loaded"}
	}
	if cfg.Browser.ExtensionID == "" {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no extension_id configured; dormancy recovery disabled",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: "watching extension " + cfg.Browser.ExtensionID,
	}
}

// checkBridgeCommands verifies every bridge command resolves on PATH.
func checkBridgeCommands(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check — config not loaded"}
	}
	if len(cfg.Bridges) == 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no bridges configured; only local browser tools will be available",
		}
	}
	var missing []string
	for _, b := range cfg.Bridges {
		if _, err := exec.LookPath(b.Command); err != nil {
			missing = append(missing, fmt.Sprintf("%s (%s)", b.Name, b.Command))
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "bridge command not found: " + strings.Join(missing, ", "),
			Fix:     "Install the missing commands or fix the bridges[].command paths",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d bridge command(s) resolved", len(cfg.Bridges)),
	}
}

// checkGatewayAddr verifies the HTTP gateway address is bindable.
func checkGatewayAddr(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check — config not loaded"}
	}
	if !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "HTTP gateway disabled"}
	}
	var lc net.ListenConfig
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	l, err := lc.Listen(ctx, "tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("cannot bind %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Pick a free port in gateway.addr, or check for an already-running instance",
		}
	}
	l.Close()
	return CheckResult{Status: StatusPass, Message: "gateway address " + cfg.Gateway.Addr + " is bindable"}
}
