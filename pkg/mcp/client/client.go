package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/techne-go/techne/pkg/mcp/schema"
	"github.com/techne-go/techne/pkg/mcp/wire"
)

// Info identifies either end of a connection in the initialize handshake.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type capabilities struct{}

type toolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type serverCapabilities struct {
	Tools *toolsCapability `json:"tools,omitempty"`
}

type initializeParams struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ClientInfo      Info         `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      Info               `json:"serverInfo"`
}

// Client is a connected MCP session: the initialize handshake has already
// completed and the server's declared info/capabilities are recorded.
type Client struct {
	session      *Session
	info         Info
	capabilities serverCapabilities
	log          *logrus.Entry
}

// Connect performs the initialize handshake over transport: send
// initialize, await the matching Response, verify the protocol version,
// then send the initialized Notification. Failing the version check
// returns an error; a failure to deliver the initialized notification is
// logged but does not fail the connection (a peer that never reads its
// inbox is its own problem, not this client's).
func Connect(ctx context.Context, info Info, transport Transport, log *logrus.Entry) (*Client, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	session := NewSession(transport, log)

	channel, err := session.Request(ctx, "initialize", initializeParams{
		ProtocolVersion: wire.ProtocolVersion,
		ClientInfo:      info,
	})
	if err != nil {
		return nil, err
	}

	resp, err := channel.Await(ctx, nil)
	if err != nil {
		return nil, err
	}

	var result initializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("client: invalid initialize result: %w", err)
	}

	if result.ProtocolVersion != wire.ProtocolVersion {
		return nil, fmt.Errorf("client: protocol mismatch (supported: %s, given: %s)",
			wire.ProtocolVersion, result.ProtocolVersion)
	}

	if err := session.Notify(ctx, "initialized", nil); err != nil {
		log.WithError(err).Warn("client: failed to deliver initialized notification")
	}

	return &Client{
		session:      session,
		info:         result.ServerInfo,
		capabilities: result.Capabilities,
		log:          log,
	}, nil
}

// ServerInfo returns the name/version the server reported during
// initialize.
func (c *Client) ServerInfo() Info { return c.info }

// HasTools reports whether the server advertised the tools capability.
func (c *Client) HasTools() bool { return c.capabilities.Tools != nil }

// ToolDescription mirrors one entry of a tools/list response.
type ToolDescription struct {
	Name         string        `json:"name"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description"`
	InputSchema  schema.Schema `json:"-"`
	OutputSchema schema.Schema `json:"-"`
}

type toolDescriptionWire struct {
	Name         string          `json:"name"`
	Title        string          `json:"title,omitempty"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"inputSchema"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
}

type toolsListResult struct {
	Tools []toolDescriptionWire `json:"tools"`
}

// ListTools requests "tools/list" and returns the server's advertised
// tools in the order it sent them (the server side sorts lexicographically
// by name; the client does not re-sort).
func (c *Client) ListTools(ctx context.Context) ([]ToolDescription, error) {
	channel, err := c.session.Request(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	resp, err := channel.Await(ctx, nil)
	if err != nil {
		return nil, err
	}

	var result toolsListResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("client: invalid tools/list result: %w", err)
	}

	tools := make([]ToolDescription, 0, len(result.Tools))
	for _, t := range result.Tools {
		input, err := schema.Unmarshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("client: invalid input schema for tool %q: %w", t.Name, err)
		}

		var output schema.Schema
		if len(t.OutputSchema) > 0 {
			output, err = schema.Unmarshal(t.OutputSchema)
			if err != nil {
				return nil, fmt.Errorf("client: invalid output schema for tool %q: %w", t.Name, err)
			}
		}

		tools = append(tools, ToolDescription{
			Name: t.Name, Title: t.Title, Description: t.Description,
			InputSchema: input, OutputSchema: output,
		})
	}

	return tools, nil
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Result is a tools/call outcome as seen from the client: unlike the
// server's tool.Outcome (which only ever needs to be marshaled), the
// client needs to unmarshal this shape back from the wire.
type Result struct {
	Content           []ResultContent `json:"content,omitempty"`
	StructuredContent json.RawMessage `json:"structuredContent,omitempty"`
	IsError           bool            `json:"isError"`
}

// ResultContent mirrors one unstructured content block.
type ResultContent struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`

	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Title       string `json:"title,omitempty"`
}

// CallTool invokes "tools/call" and returns the final Result once the
// server completes the call, invoking onEvent (which may be nil) for every
// Notification/Request observed on the connection while the call is in
// flight.
func (c *Client) CallTool(ctx context.Context, name string, arguments any, onEvent func(Event)) (Result, error) {
	rawArgs, err := json.Marshal(arguments)
	if err != nil {
		return Result{}, err
	}

	channel, err := c.session.Request(ctx, "tools/call", toolCallParams{Name: name, Arguments: rawArgs})
	if err != nil {
		return Result{}, err
	}

	resp, err := channel.Await(ctx, onEvent)
	if err != nil {
		return Result{}, err
	}

	var result Result
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return Result{}, fmt.Errorf("client: invalid tools/call result: %w", err)
	}

	return result, nil
}

// Ping sends "ping" and waits for the (empty) response, useful as a
// liveness check.
func (c *Client) Ping(ctx context.Context) error {
	channel, err := c.session.Request(ctx, "ping", nil)
	if err != nil {
		return err
	}
	_, err = channel.Await(ctx, nil)
	return err
}
