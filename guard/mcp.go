package guard

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/kickguard/kit"
	"github.com/hazyhaar/kickguard/scan"
)

// MCP tool names. Every tool takes {"url": ...} except ToolListVerified,
// and answers with the matching endpoint response as JSON text.
const (
	ToolScan          = "kickguard_scan_page"
	ToolListVerified  = "kickguard_list_verified"
	ToolCheckVerified = "kickguard_check_verified"
	ToolSaveVerified  = "kickguard_save_verified"
)

// RegisterMCP registers kickguard tools on an MCP server.
func (g *Guard) RegisterMCP(srv *mcp.Server) {
	eps := g.Endpoints()

	urlSchema := kit.InputSchema(map[string]any{
		"url": map[string]any{"type": "string", "description": "Absolute page URL"},
	}, []string{"url"})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        ToolScan,
		Description: "Fetch a page and list the e-mail addresses and links it contains.",
		InputSchema: urlSchema,
	}, userMessages(eps.Scan), decodeURL)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        ToolListVerified,
		Description: "List the pages marked as verified.",
		InputSchema: kit.InputSchema(map[string]any{}, nil),
	}, eps.ListVerified, func(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{}, nil
	})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        ToolCheckVerified,
		Description: "Tell whether a page URL is in the verified list (exact match).",
		InputSchema: urlSchema,
	}, eps.CheckVerified, decodeURL)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        ToolSaveVerified,
		Description: "Add a page URL to the verified list. Saving an existing URL is a no-op.",
		InputSchema: urlSchema,
	}, eps.SaveVerified, decodeURL)
}

func decodeURL(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	var r URLRequest
	if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
		return nil, err
	}
	return &kit.MCPDecodeResult{Request: &r}, nil
}

// userMessages replaces scan failures with the text shown to a user.
func userMessages(next kit.Endpoint) kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		resp, err := next(ctx, req)
		if err != nil && !errors.Is(err, ErrInvalid) {
			return nil, errors.New(scan.Message(err))
		}
		return resp, err
	}
}
