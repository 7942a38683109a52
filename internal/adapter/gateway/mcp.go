package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
	"github.com/equanaut-sha-w1/comet-mcp/internal/usecase/orchestrator"
)

// MCPGateway is the primary facade: an MCP stdio server exposing the
// orchestrator to agent hosts. Stdout carries the protocol, so nothing
// else in the process may write there.
type MCPGateway struct {
	orch   *orchestrator.Orchestrator
	router domain.ToolInvoker
	logger *slog.Logger
	server *server.MCPServer
}

func NewMCPGateway(version string, orch *orchestrator.Orchestrator, router domain.ToolInvoker, logger *slog.Logger) *MCPGateway {
	if logger == nil {
		logger = slog.Default()
	}
	g := &MCPGateway{
		orch:   orch,
		router: router,
		logger: logger,
	}

	s := server.NewMCPServer("comet-mcp", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("browser_task",
		mcp.WithDescription("Delegate a browser task described in natural language. Matches the description against task templates and runs the resulting step sequence."),
		mcp.WithString("task", mcp.Required(), mcp.Description("Natural-language task description")),
		mcp.WithString("target_id", mcp.Description("Browser target to scope the task to; omit for global")),
		mcp.WithNumber("timeout_ms", mcp.Description("Task deadline in milliseconds, measured from start of execution")),
		mcp.WithBoolean("async", mcp.Description("Return immediately and poll with task_status")),
		mcp.WithString("template", mcp.Description("Force a specific template instead of intent matching")),
	), g.handleBrowserTask)

	s.AddTool(mcp.NewTool("task_status",
		mcp.WithDescription("Get the current state and step progress of a delegated task."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID returned by browser_task")),
	), g.handleTaskStatus)

	s.AddTool(mcp.NewTool("cancel_task",
		mcp.WithDescription("Cancel a queued or running task. Running tasks stop at the next step boundary."),
		mcp.WithString("task_id", mcp.Required(), mcp.Description("Task ID returned by browser_task")),
	), g.handleCancelTask)

	s.AddTool(mcp.NewTool("health_check",
		mcp.WithDescription("Check browser, extension and bridge health. Results are cached briefly; pass force to re-probe."),
		mcp.WithBoolean("force", mcp.Description("Bypass the cached result")),
	), g.handleHealthCheck)

	s.AddTool(mcp.NewTool("list_tools",
		mcp.WithDescription("List the merged tool catalog across the local browser and all bridged providers."),
	), g.handleListTools)

	g.server = s
	return g
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (g *MCPGateway) ServeStdio() error {
	g.logger.Info("mcp gateway serving on stdio")
	return server.ServeStdio(g.server)
}

func (g *MCPGateway) handleBrowserTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	task, err := req.RequireString("task")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	opts := &orchestrator.DelegateOptions{
		TargetID: req.GetString("target_id", ""),
		Timeout:  time.Duration(req.GetFloat("timeout_ms", 0)) * time.Millisecond,
		Async:    req.GetBool("async", false),
		Template: req.GetString("template", ""),
	}
	result, err := g.orch.Delegate(ctx, task, opts)
	if err != nil {
		g.logger.Error("delegate failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (g *MCPGateway) handleTaskStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	snap, err := g.orch.GetTaskStatus(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(snap)
}

func (g *MCPGateway) handleCancelTask(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := g.orch.CancelTask(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"cancelled": true, "task_id": id})
}

func (g *MCPGateway) handleHealthCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(g.orch.Health(ctx, req.GetBool("force", false)))
}

func (g *MCPGateway) handleListTools(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{"tools": g.router.Catalog()})
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError("marshal result: " + err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
