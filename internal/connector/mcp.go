package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ShayCichocki/gala/internal/tools"
	"github.com/ShayCichocki/gala/internal/version"
)

// TransportFunc builds a fresh MCP transport for a connection attempt.
// Secrets are passed so command transports can expose them as environment.
type TransportFunc func(secrets map[string]string) mcp.Transport

// CommandTransport launches command as an MCP server over stdio. Secrets are
// appended to the environment with upper-cased keys.
func CommandTransport(command string, args ...string) TransportFunc {
	return func(secrets map[string]string) mcp.Transport {
		cmd := exec.Command(command, args...)
		cmd.Env = os.Environ()
		for k, v := range secrets {
			cmd.Env = append(cmd.Env, strings.ToUpper(k)+"="+v)
		}
		return &mcp.CommandTransport{Command: cmd}
	}
}

// MCPConnector exposes the tools of an MCP server.
type MCPConnector struct {
	id        string
	enabled   bool
	transport TransportFunc

	mu      sync.RWMutex
	session *mcp.ClientSession
	specs   []tools.Spec
}

var _ Connector = (*MCPConnector)(nil)

// NewMCPConnector creates a connector that talks MCP over transport.
func NewMCPConnector(id string, enabled bool, transport TransportFunc) *MCPConnector {
	return &MCPConnector{id: id, enabled: enabled, transport: transport}
}

func (c *MCPConnector) ID() string { return c.id }

func (c *MCPConnector) Enabled() bool { return c.enabled }

// Tools returns the tool list discovered by Initialize.
func (c *MCPConnector) Tools() []tools.Spec {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]tools.Spec(nil), c.specs...)
}

// Initialize connects to the server and discovers its tools.
func (c *MCPConnector) Initialize(ctx context.Context, secrets map[string]string) error {
	client := mcp.NewClient(&mcp.Implementation{Name: "gala", Version: version.Get()}, nil)
	session, err := client.Connect(ctx, c.transport(secrets), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.id, err)
	}

	listed, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		session.Close()
		return fmt.Errorf("list tools for %s: %w", c.id, err)
	}

	specs := make([]tools.Spec, 0, len(listed.Tools))
	for _, t := range listed.Tools {
		specs = append(specs, tools.Spec{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaFrom(t.InputSchema),
		})
	}

	c.mu.Lock()
	if c.session != nil {
		c.session.Close()
	}
	c.session = session
	c.specs = specs
	c.mu.Unlock()
	return nil
}

// TestConnection pings the server.
func (c *MCPConnector) TestConnection(ctx context.Context) error {
	session, err := c.currentSession()
	if err != nil {
		return err
	}
	return session.Ping(ctx, nil)
}

// ExecuteTool calls the named tool. Text content is joined and returned; a
// structured result is returned as is.
func (c *MCPConnector) ExecuteTool(ctx context.Context, name string, input json.RawMessage) (any, error) {
	session, err := c.currentSession()
	if err != nil {
		return nil, err
	}

	var args map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
	}

	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	text := joinText(res.Content)
	if res.IsError {
		if text == "" {
			text = "tool reported an error"
		}
		return nil, errors.New(text)
	}
	if res.StructuredContent != nil {
		return res.StructuredContent, nil
	}
	return text, nil
}

// Close ends the session.
func (c *MCPConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func (c *MCPConnector) currentSession() (*mcp.ClientSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, fmt.Errorf("connector %s is not initialized", c.id)
	}
	return c.session, nil
}

// schemaFrom converts whatever schema value the SDK hands back into the
// catalog's schema shape by a JSON round trip.
func schemaFrom(v any) tools.Schema {
	schema := tools.Schema{Properties: map[string]any{}}
	if v == nil {
		return schema
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return schema
	}
	var decoded struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return schema
	}
	if decoded.Properties != nil {
		schema.Properties = decoded.Properties
	}
	schema.Required = decoded.Required
	return schema
}

func joinText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
