package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sony/gobreaker/v2"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
	"github.com/equanaut-sha-w1/comet-mcp/internal/infra/config"
)

// probeTimeout bounds the lightweight inventory probe used for
// availability checks.
const probeTimeout = 2 * time.Second

// mcpClient abstracts the MCP client interface for testability.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Bridge talks line-delimited JSON-RPC to one long-lived external tool
// process. Transport failures trigger a bounded restart-and-retry; repeated
// failures open a circuit breaker so callers fail fast.
type Bridge struct {
	cfg         config.BridgeServer
	callTimeout time.Duration
	logger      *slog.Logger

	// newClient spawns the child process; replaced in tests.
	newClient func() (mcpClient, error)

	mu         sync.Mutex
	client     mcpClient
	toolsCache []mcp.Tool // cached after first successful discovery

	breaker *gobreaker.CircuitBreaker[*mcp.CallToolResult]
}

// NewBridge creates a bridge for the configured server. The child process
// is started lazily on first use.
func NewBridge(cfg config.BridgeServer, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bridge{
		cfg:         cfg,
		callTimeout: config.Duration(cfg.CallTimeout, 30*time.Second),
		logger:      logger,
	}
	b.newClient = func() (mcpClient, error) {
		return mcpclient.NewStdioMCPClient(cfg.Command, envSlice(cfg.Env), cfg.Args...)
	}
	b.breaker = gobreaker.NewCircuitBreaker[*mcp.CallToolResult](gobreaker.Settings{
		Name:        "bridge:" + cfg.Name,
		MaxRequests: 1, // one probe in half-open state
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("bridge circuit state change",
				"bridge", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// Name returns the provider alias this bridge serves.
func (b *Bridge) Name() string { return b.cfg.Name }

// connect starts and initializes the child process. Caller must hold mu.
func (b *Bridge) connect(ctx context.Context) error {
	if b.client != nil {
		return nil
	}

	c, err := b.newClient()
	if err != nil {
		return domain.NewDomainError("Bridge.connect", domain.ErrBridgeUnavailable, err.Error())
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "comet-mcp",
		Version: "1.0.0",
	}
	if ic, ok := c.(interface {
		Initialize(ctx context.Context, request mcp.InitializeRequest) (*mcp.InitializeResult, error)
	}); ok {
		if _, err := ic.Initialize(ctx, initReq); err != nil {
			c.Close()
			return domain.NewDomainError("Bridge.connect", domain.ErrBridgeUnavailable, err.Error())
		}
	}

	b.client = c
	b.logger.Info("bridge connected", "bridge", b.cfg.Name, "command", b.cfg.Command)
	return nil
}

// restart tears down the child and reconnects. Used as the retry
// combinator's reconnect callback.
func (b *Bridge) restart(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client != nil {
		b.client.Close()
		b.client = nil
	}
	b.logger.Warn("bridge restarting", "bridge", b.cfg.Name)
	return b.connect(ctx)
}

// ListTools discovers the remote inventory. Results are cached after the
// first success; re-initialization of the router clears nothing here — a
// fresh Bridge is built instead.
func (b *Bridge) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.toolsCache != nil {
		return b.toolsCache, nil
	}
	if err := b.connect(ctx); err != nil {
		return nil, err
	}

	result, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, domain.NewDomainError("Bridge.ListTools", domain.ErrBridgeUnavailable, err.Error())
	}

	b.toolsCache = result.Tools
	b.logger.Info("bridge tools discovered", "bridge", b.cfg.Name, "count", len(result.Tools))
	return b.toolsCache, nil
}

// Probe reports whether the remote process answers a lightweight inventory
// request within a short timeout.
func (b *Bridge) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.connect(ctx); err != nil {
		return false
	}
	_, err := b.client.ListTools(ctx, mcp.ListToolsRequest{})
	return err == nil
}

// Call invokes a remote tool. The returned data is the extracted result
// payload; a tool-level or transport-level failure comes back as an error
// for the router to normalize.
func (b *Bridge) Call(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = name
	callReq.Params.Arguments = args

	op := func(ctx context.Context) (*mcp.CallToolResult, error) {
		b.mu.Lock()
		if err := b.connect(ctx); err != nil {
			b.mu.Unlock()
			return nil, err
		}
		client := b.client
		b.mu.Unlock()

		callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
		defer cancel()

		result, err := b.breaker.Execute(func() (*mcp.CallToolResult, error) {
			return client.CallTool(callCtx, callReq)
		})
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, domain.NewDomainError("Bridge.Call", domain.ErrBridgeUnavailable,
				fmt.Sprintf("circuit open for %q", b.cfg.Name))
		}
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, domain.NewDomainError("Bridge.Call", domain.ErrBridgeCallTimeout, name)
		}
		return result, err
	}

	result, err := Retry(ctx, RetryPolicy{
		Attempts:  b.cfg.MaxRestarts + 1,
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  2 * time.Second,
		Classify:  IsTransportError,
		Reconnect: b.restart,
	}, op)
	if err != nil {
		return nil, err
	}

	text := extractContent(result)
	if result.IsError {
		msg := strings.TrimSpace(text)
		if msg == "" {
			msg = "tool reported an error"
		}
		return nil, fmt.Errorf("%s: %s", name, msg)
	}
	data, err := json.Marshal(text)
	if err != nil {
		data = json.RawMessage(`""`)
	}
	return data, nil
}

// Close shuts down the child process.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client != nil {
		if err := b.client.Close(); err != nil {
			b.logger.Warn("bridge close error", "bridge", b.cfg.Name, "error", err)
		}
		b.client = nil
	}
}

// extractContent flattens MCP result content into a string: text parts
// joined, non-text parts marshaled.
func extractContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// envSlice converts a map of env vars to KEY=VALUE slices.
func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, k+"="+v)
	}
	return result
}
