package remote

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/quic-go/quic-go"

	"github.com/hazyhaar/kickguard/guard"
)

// ToolError is a failure reported by the remote tool itself, e.g. the
// user-readable scan message. Transport failures are plain errors.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("remote: %s: %s", e.Tool, e.Message)
}

// Client is one session with a remote kickguard.
type Client struct {
	conn    *quic.Conn
	stream  *quic.Stream
	session *mcp.ClientSession
}

// Dial connects to addr and completes the MCP handshake. A nil tlsCfg
// verifies the server certificate.
func Dial(ctx context.Context, addr string, tlsCfg *tls.Config) (*Client, error) {
	if tlsCfg == nil {
		tlsCfg = ClientTLS(false)
	}
	conn, err := quic.DialAddr(ctx, addr, tlsCfg, quicConfig())
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", addr, err)
	}
	c := &Client{conn: conn}

	c.stream, err = conn.OpenStreamSync(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("remote: open stream: %w", err)
	}
	if err := writePreamble(c.stream); err != nil {
		c.Close()
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client := mcp.NewClient(&mcp.Implementation{Name: "kickguard-remote", Version: "1"}, nil)
	c.session, err = client.Connect(hctx, &streamTransport{stream: c.stream}, nil)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("remote: mcp handshake with %s: %w", addr, err)
	}
	return c, nil
}

// Scan asks the remote instance to scan pageURL.
func (c *Client) Scan(ctx context.Context, pageURL string) (*guard.ScanResponse, error) {
	var out guard.ScanResponse
	if err := c.call(ctx, guard.ToolScan, map[string]any{"url": pageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListVerified returns the remote verified list.
func (c *Client) ListVerified(ctx context.Context) (*guard.ListResponse, error) {
	var out guard.ListResponse
	if err := c.call(ctx, guard.ToolListVerified, map[string]any{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckVerified tells whether pageURL is in the remote verified list.
func (c *Client) CheckVerified(ctx context.Context, pageURL string) (*guard.CheckResponse, error) {
	var out guard.CheckResponse
	if err := c.call(ctx, guard.ToolCheckVerified, map[string]any{"url": pageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SaveVerified adds pageURL to the remote verified list.
func (c *Client) SaveVerified(ctx context.Context, pageURL string) (*guard.SaveResponse, error) {
	var out guard.SaveResponse
	if err := c.call(ctx, guard.ToolSaveVerified, map[string]any{"url": pageURL}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close ends the session.
func (c *Client) Close() error {
	if c.session != nil {
		c.session.Close()
	}
	if c.stream != nil {
		c.stream.Close()
	}
	return c.conn.CloseWithError(codeOK, "client closing")
}

func (c *Client) call(ctx context.Context, tool string, args map[string]any, out any) error {
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return fmt.Errorf("remote: %s: %w", tool, err)
	}
	text := resultText(res)
	if res.IsError {
		return &ToolError{Tool: tool, Message: text}
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("remote: %s: decode result: %w", tool, err)
	}
	return nil
}

func resultText(res *mcp.CallToolResult) string {
	var b strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}
