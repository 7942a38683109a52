package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/equanaut-sha-w1/comet-mcp/internal/domain"
	"github.com/equanaut-sha-w1/comet-mcp/internal/infra/config"
)

// fakeMCPClient scripts ListTools/CallTool behavior per connection.
type fakeMCPClient struct {
	tools    []mcp.Tool
	listErr  error
	callFn   func(req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	closed   bool
	listHits int
	callHits int
}

func (f *fakeMCPClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	f.listHits++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeMCPClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.callHits++
	return f.callFn(req)
}

func (f *fakeMCPClient) Close() error {
	f.closed = true
	return nil
}

func testBridge(t *testing.T, clients ...*fakeMCPClient) *Bridge {
	t.Helper()
	b := NewBridge(config.BridgeServer{
		Name:        "comet",
		Command:     "comet-agent",
		CallTimeout: "5s",
		MaxRestarts: 2,
	}, nil)
	i := 0
	b.newClient = func() (mcpClient, error) {
		if i >= len(clients) {
			return nil, errors.New("spawn budget exhausted")
		}
		c := clients[i]
		i++
		return c, nil
	}
	return b
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: s}}}
}

func TestBridgeListToolsCaches(t *testing.T) {
	c := &fakeMCPClient{tools: []mcp.Tool{{Name: "search"}}}
	b := testBridge(t, c)

	tools, err := b.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "search" {
		t.Fatalf("tools = %+v", tools)
	}

	if _, err := b.ListTools(context.Background()); err != nil {
		t.Fatalf("second list: %v", err)
	}
	if c.listHits != 1 {
		t.Errorf("remote list hit %d times, want 1 (cached)", c.listHits)
	}
}

func TestBridgeCallSuccess(t *testing.T) {
	c := &fakeMCPClient{callFn: func(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if req.Params.Name != "search" {
			t.Errorf("tool name = %s", req.Params.Name)
		}
		return textResult("answer"), nil
	}}
	b := testBridge(t, c)

	data, err := b.Call(context.Background(), "search", map[string]any{"query": "go"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(data) != `"answer"` {
		t.Errorf("data = %s", data)
	}
}

func TestBridgeCallToolError(t *testing.T) {
	c := &fakeMCPClient{callFn: func(req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := textResult("agent rejected the request")
		res.IsError = true
		return res, nil
	}}
	b := testBridge(t, c)

	_, err := b.Call(context.Background(), "search", nil)
	if err == nil {
		t.Fatal("expected an error for IsError results")
	}
	if got := err.Error(); got != "search: agent rejected the request" {
		t.Errorf("error = %q", got)
	}
}

func TestBridgeCallRestartsOnTransportFailure(t *testing.T) {
	dead := &fakeMCPClient{callFn: func(mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errors.New("broken pipe")
	}}
	healthy := &fakeMCPClient{callFn: func(mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return textResult("back"), nil
	}}
	b := testBridge(t, dead, healthy)

	data, err := b.Call(context.Background(), "search", nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if string(data) != `"back"` {
		t.Errorf("data = %s", data)
	}
	if !dead.closed {
		t.Error("dead client should have been closed on restart")
	}
}

func TestBridgeCallDoesNotRetryToolErrors(t *testing.T) {
	c := &fakeMCPClient{callFn: func(mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errors.New("invalid arguments")
	}}
	b := testBridge(t, c)

	if _, err := b.Call(context.Background(), "search", nil); err == nil {
		t.Fatal("expected error")
	}
	if c.callHits != 1 {
		t.Errorf("call hit %d times, want 1 (not transport-shaped)", c.callHits)
	}
}

func TestBridgeProbe(t *testing.T) {
	up := &fakeMCPClient{}
	b := testBridge(t, up)
	if !b.Probe(context.Background()) {
		t.Error("expected probe to pass")
	}

	down := &fakeMCPClient{listErr: errors.New("connection refused")}
	b2 := testBridge(t, down)
	if b2.Probe(context.Background()) {
		t.Error("expected probe to fail")
	}
}

func TestBridgeConnectFailure(t *testing.T) {
	b := testBridge(t) // no clients: spawning always fails
	_, err := b.ListTools(context.Background())
	if !errors.Is(err, domain.ErrBridgeUnavailable) {
		t.Errorf("expected ErrBridgeUnavailable, got %v", err)
	}
}

func TestExtractContentJoinsTextParts(t *testing.T) {
	res := &mcp.CallToolResult{Content: []mcp.Content{
		mcp.TextContent{Type: "text", Text: "one"},
		mcp.TextContent{Type: "text", Text: "two"},
	}}
	if got := extractContent(res); got != "one\ntwo" {
		t.Errorf("got %q", got)
	}
}
