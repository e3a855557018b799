// Package mcpserver exposes the gateway as MCP tools so agent-native clients
// can search, inspect and invoke agents without the HTTP API.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	hyphae "github.com/PeterFile/hyphae-platform"
	"github.com/PeterFile/hyphae-platform/gateway"
	"github.com/PeterFile/hyphae-platform/proxy"
)

// Tool names.
const (
	ToolSearchAgents      = "search_agents"
	ToolGetAgent          = "get_agent"
	ToolCheckAvailability = "check_availability"
	ToolInvokeAgent       = "invoke_agent"
)

// Server registers the gateway tools on an MCP server.
type Server struct {
	svc    *gateway.Service
	mcp    *server.MCPServer
	logger zerolog.Logger
}

// New creates a Server with all tools registered.
func New(svc *gateway.Service, name, version string, logger zerolog.Logger) *Server {
	s := &Server{
		svc:    svc,
		mcp:    server.NewMCPServer(name, version),
		logger: logger,
	}

	s.mcp.AddTool(mcp.NewTool(ToolSearchAgents,
		mcp.WithDescription("Search agents across all providers. Returns results plus per-provider errors."),
		mcp.WithString("query", mcp.Description("Free-text query")),
		mcp.WithString("provider", mcp.Description("Comma-separated provider names")),
		mcp.WithString("category", mcp.Description("Category, case-insensitive")),
		mcp.WithNumber("min_price", mcp.Description("Minimum price in USDC cents")),
		mcp.WithNumber("max_price", mcp.Description("Maximum price in USDC cents")),
		mcp.WithString("sort", mcp.Description("relevance, price_asc, price_desc or availability")),
		mcp.WithNumber("page", mcp.Description("1-based page")),
		mcp.WithNumber("page_size", mcp.Description("Results per page, at most 100")),
	), s.searchAgents)

	s.mcp.AddTool(mcp.NewTool(ToolGetAgent,
		mcp.WithDescription("Get one agent by id (provider:originalId)"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Agent id")),
	), s.getAgent)

	s.mcp.AddTool(mcp.NewTool(ToolCheckAvailability,
		mcp.WithDescription("Probe an agent endpoint for liveness"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Agent id")),
	), s.checkAvailability)

	s.mcp.AddTool(mcp.NewTool(ToolInvokeAgent,
		mcp.WithDescription("Invoke an agent. A 402 status carries the payment requirement; sign it yourself and retry with a payment header."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Agent id")),
		mcp.WithString("input", mcp.Description("JSON object passed to the agent")),
		mcp.WithString("payment_header", mcp.Description("X-PAYMENT or PAYMENT-SIGNATURE")),
		mcp.WithString("payment_value", mcp.Description("Pre-signed payment token")),
	), s.invokeAgent)

	return s
}

// Handler returns the streamable HTTP transport for the tools.
func (s *Server) Handler() http.Handler {
	return server.NewStreamableHTTPServer(s.mcp)
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) searchAgents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	filters := hyphae.SearchFilters{
		Query:    stringArg(args, "query"),
		Category: stringArg(args, "category"),
		Sort:     hyphae.SortMode(stringArg(args, "sort")),
		Page:     int(numberArg(args, "page")),
		PageSize: int(numberArg(args, "page_size")),
	}
	for _, p := range strings.Split(stringArg(args, "provider"), ",") {
		if p = strings.TrimSpace(p); p != "" {
			filters.Providers = append(filters.Providers, p)
		}
	}
	if v, ok := args["min_price"].(float64); ok {
		n := int64(v)
		filters.MinPrice = &n
	}
	if v, ok := args["max_price"].(float64); ok {
		n := int64(v)
		filters.MaxPrice = &n
	}

	res, err := s.svc.Search(ctx, filters)
	if err != nil {
		return s.toolError(ToolSearchAgents, err), nil
	}
	return jsonResult(res)
}

func (s *Server) getAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req.GetArguments(), "id")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	agent, err := s.svc.Agent(ctx, id)
	if err != nil {
		return s.toolError(ToolGetAgent, err), nil
	}
	return jsonResult(agent)
}

func (s *Server) checkAvailability(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(req.GetArguments(), "id")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	res, err := s.svc.Availability(ctx, id)
	if err != nil {
		return s.toolError(ToolCheckAvailability, err), nil
	}
	return jsonResult(res)
}

func (s *Server) invokeAgent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	in := &proxy.InvokeRequest{ID: stringArg(args, "id")}
	if raw := stringArg(args, "input"); raw != "" {
		in.Input = json.RawMessage(raw)
	}
	if header := stringArg(args, "payment_header"); header != "" {
		in.Payment = &proxy.Payment{Header: header, Value: stringArg(args, "payment_value")}
	}

	resp, err := s.svc.Invoke(ctx, in)
	if err != nil {
		return s.toolError(ToolInvokeAgent, err), nil
	}
	return jsonResult(resp)
}

// toolError reports err to the client as a tool-level error.
func (s *Server) toolError(tool string, err error) *mcp.CallToolResult {
	var gwErr *hyphae.GatewayError
	if errors.As(err, &gwErr) {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", gwErr.Code, gwErr.Message))
	}
	s.logger.Error().Err(err).Str("tool", tool).Msg("tool failed")
	return mcp.NewToolResultError("internal error")
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(b))},
	}, nil
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

func numberArg(args map[string]any, key string) float64 {
	n, _ := args[key].(float64)
	return n
}
