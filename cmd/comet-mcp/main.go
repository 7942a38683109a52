package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/equanaut-sha-w1/comet-mcp/internal/adapter/browser"
	"github.com/equanaut-sha-w1/comet-mcp/internal/adapter/gateway"
	"github.com/equanaut-sha-w1/comet-mcp/internal/adapter/tool"
	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
	"github.com/equanaut-sha-w1/comet-mcp/internal/infra/config"
	"github.com/equanaut-sha-w1/comet-mcp/internal/infra/logger"
	"github.com/equanaut-sha-w1/comet-mcp/internal/infra/tracer"
	"github.com/equanaut-sha-w1/comet-mcp/internal/usecase/orchestrator"
)

const version = "1.0.0"

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		case "doctor":
			if err := runDoctor(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
				os.Exit(1)
			}
			return
		case "version":
			fmt.Println("comet-mcp " + version)
			return
		case "serve":
			if err := run(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`comet-mcp - browser task orchestration over MCP

USAGE:
    comet-mcp [COMMAND] [FLAGS]

COMMANDS:
    serve       Serve the MCP protocol on stdio (the default)
    doctor      Run health checks against the configured setup
    version     Print the version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)
    --http             Also serve the HTTP gateway (see gateway.addr)

EXAMPLES:
    comet-mcp                        # Serve MCP on stdio with config.yaml
    comet-mcp --config /etc/comet.yaml
    comet-mcp --http                 # Stdio plus REST on gateway.addr
    comet-mcp doctor                 # Check browser and bridge health`)
}

func run(args []string) error {
	fs := flag.NewFlagSet("comet-mcp", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "config file path")
	httpMode := fs.Bool("http", false, "also serve the HTTP gateway")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracer(shutdownCtx)
	}()

	// The browser is allowed to be absent at startup: health reports it
	// down and local steps fail with a clear error until it connects.
	var backend browser.Backend
	var waker *browser.Waker
	b, err := browser.NewChromeDPBackend(browser.ChromeDPConfig{
		RemoteURL: cfg.Browser.RemoteURL,
		Headless:  cfg.Browser.Headless,
		Timeout:   config.Duration(cfg.Browser.Timeout, 30*time.Second),
	}, log)
	if err != nil {
		log.Warn("browser backend unavailable at startup", "error", err)
	} else {
		backend = b
		defer backend.Close()
		waker = browser.NewWaker(b, cfg.Browser.ExtensionID, log)
	}

	bridges := make([]*tool.Bridge, 0, len(cfg.Bridges))
	for _, bc := range cfg.Bridges {
		bridges = append(bridges, tool.NewBridge(bc, log))
	}

	router := tool.NewRouter(localToolset(), bridges, localWinners(), log)
	if err := router.Initialize(ctx); err != nil {
		log.Warn("tool catalog incomplete", "error", err)
	}
	defer router.Close()

	registry := orchestrator.NewRegistry(log)
	if err := orchestrator.RegisterBuiltins(registry, agentProvider(cfg)); err != nil {
		return err
	}

	health := orchestrator.NewHealthChecker(
		healthProbes(backend, waker, bridges, router),
		config.Duration(cfg.Health.TTL, 30*time.Second),
		config.Duration(cfg.Health.ProbeTimeout, 5*time.Second),
		log,
	)

	orch := orchestrator.New(orchestrator.Options{
		Registry:       registry,
		Router:         router,
		Browser:        backend,
		Waker:          wakerOrNil(waker),
		Health:         health,
		Logger:         log,
		DefaultTimeout: config.Duration(cfg.Orchestrator.DefaultTimeout, 2*time.Minute),
		StepDelay:      config.Duration(cfg.Orchestrator.StepDelay, 100*time.Millisecond),
	})

	if cfg.Health.RefreshSchedule != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.Health.RefreshSchedule, func() {
			health.Check(context.Background(), true)
		}); err != nil {
			return fmt.Errorf("health.refresh_schedule: %w", err)
		}
		c.Start()
		defer c.Stop()
	}

	if *httpMode || cfg.Gateway.Enabled {
		httpGW := gateway.NewHTTPGateway(cfg.Gateway, orch, router, log)
		go func() {
			if err := httpGW.ListenAndServe(); err != nil {
				log.Error("http gateway stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = httpGW.Shutdown(shutdownCtx)
		}()
	}

	mcpGW := gateway.NewMCPGateway(version, orch, router, log)

	done := make(chan error, 1)
	go func() { done <- mcpGW.ServeStdio() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Info("shutting down on signal")
		return nil
	}
}

// wakerOrNil keeps a typed-nil *browser.Waker from sneaking into the
// orchestrator's interface field.
func wakerOrNil(w *browser.Waker) orchestrator.DormancyWaker {
	if w == nil {
		return nil
	}
	return w
}

// localToolset lists the in-process browser tools published to the
// merged catalog.
func localToolset() []tool.LocalTool {
	return []tool.LocalTool{
		{
			Name: "navigate", Category: domain.CategoryBrowser,
			Description: "Open a URL in the active browser tab",
			Schema:      objSchema(`{"url": {"type": "string"}}`, "url"),
		},
		{
			Name: "get_content", Category: domain.CategoryBrowser,
			Description: "Extract the current page content as text",
			Schema:      objSchema(`{"selector": {"type": "string"}}`),
		},
		{
			Name: "screenshot", Category: domain.CategoryBrowser,
			Description: "Capture the current page as a JPEG screenshot",
			Schema:      objSchema(`{"full_page": {"type": "boolean"}}`),
		},
		{
			Name: "click", Category: domain.CategoryBrowser,
			Description: "Click the element matching a CSS selector",
			Schema:      objSchema(`{"selector": {"type": "string"}}`, "selector"),
		},
		{
			Name: "type", Category: domain.CategoryBrowser,
			Description: "Type text into the element matching a CSS selector",
			Schema:      objSchema(`{"selector": {"type": "string"}, "text": {"type": "string"}}`, "selector"),
		},
		{
			Name: "evaluate", Category: domain.CategoryBrowser,
			Description: "Evaluate a JavaScript expression in the page",
			Schema:      objSchema(`{"expression": {"type": "string"}}`, "expression"),
		},
	}
}

// localWinners pins the local provider as canonical for its tool names
// when a bridge exposes a colliding tool.
func localWinners() map[string]domain.ProviderID {
	winners := make(map[string]domain.ProviderID)
	for _, lt := range localToolset() {
		winners[lt.Name] = domain.ProviderLocal
	}
	return winners
}

func objSchema(properties string, required ...string) json.RawMessage {
	schema := map[string]any{
		"type":       "object",
		"properties": json.RawMessage(properties),
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, _ := json.Marshal(schema)
	return data
}

// agentProvider picks the provider alias builtin templates pin their
// remote steps to: the first configured bridge, or "comet" as a
// placeholder when none is configured.
func agentProvider(cfg *config.Config) domain.ProviderID {
	if len(cfg.Bridges) > 0 {
		return domain.ProviderID(cfg.Bridges[0].Name)
	}
	return domain.ProviderID("comet")
}

func healthProbes(backend browser.Backend, waker *browser.Waker, bridges []*tool.Bridge, router *tool.Router) []orchestrator.Probe {
	probes := []orchestrator.Probe{
		{
			Name:      "browser",
			Mandatory: true,
			Check: func(ctx context.Context) error {
				if backend == nil {
					return domain.ErrBrowserNotConnected
				}
				status, err := backend.Status(ctx)
				if err != nil {
					return err
				}
				if !status.Connected {
					return domain.ErrBrowserNotConnected
				}
				return nil
			},
		},
	}
	if waker != nil {
		probes = append(probes, orchestrator.Probe{
			Name:      "extension",
			Mandatory: true,
			Check: func(ctx context.Context) error {
				if !waker.IsAlive(ctx) {
					return fmt.Errorf("extension service worker not running")
				}
				return nil
			},
		})
	}
	for _, b := range bridges {
		b := b
		probes = append(probes, orchestrator.Probe{
			Name: "bridge:" + b.Name(),
			Check: func(ctx context.Context) error {
				if !b.Probe(ctx) {
					return fmt.Errorf("bridge %s not responding", b.Name())
				}
				return nil
			},
		})
	}
	probes = append(probes, orchestrator.Probe{
		Name: "catalog",
		Check: func(context.Context) error {
			if !router.Initialized() {
				return fmt.Errorf("tool catalog not initialized")
			}
			return nil
		},
	})
	return probes
}
