package client_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techne-go/techne/pkg/mcp/client"
	"github.com/techne-go/techne/pkg/mcp/wire"
)

// scriptedTransport answers each Send with a pre-scripted frame, matching
// the outbound message's method so test setup order doesn't matter.
type scriptedTransport struct {
	responses map[string][]byte
}

func (s *scriptedTransport) Send(ctx context.Context, message []byte) (<-chan []byte, func(), error) {
	var probe struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal(message, &probe)

	ch := make(chan []byte, 1)
	if raw, ok := s.responses[probe.Method]; ok {
		ch <- raw
	}
	close(ch)
	return ch, func() {}, nil
}

func encodeResponse(t *testing.T, id uint64, result any) []byte {
	t.Helper()
	raw, err := wire.EncodeResponse(wire.Id(id), result)
	require.NoError(t, err)
	return raw
}

func TestConnectPerformsHandshakeAndRecordsServerInfo(t *testing.T) {
	transport := &scriptedTransport{responses: map[string][]byte{
		"initialize": encodeResponse(t, 0, map[string]any{
			"protocolVersion": wire.ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "techne-test", "version": "1.0"},
		}),
	}}

	c, err := client.Connect(context.Background(), client.Info{Name: "test-client", Version: "0.1"}, transport, nil)
	require.NoError(t, err)

	assert.Equal(t, "techne-test", c.ServerInfo().Name)
	assert.True(t, c.HasTools())
}

func TestConnectFailsOnProtocolMismatch(t *testing.T) {
	transport := &scriptedTransport{responses: map[string][]byte{
		"initialize": encodeResponse(t, 0, map[string]any{
			"protocolVersion": "1999-01-01",
			"capabilities":    map[string]any{},
			"serverInfo":      map[string]any{"name": "old", "version": "0"},
		}),
	}}

	_, err := client.Connect(context.Background(), client.Info{Name: "c", Version: "0"}, transport, nil)
	assert.Error(t, err)
}

func connectedClient(t *testing.T) *client.Client {
	t.Helper()
	transport := &scriptedTransport{responses: map[string][]byte{
		"initialize": encodeResponse(t, 0, map[string]any{
			"protocolVersion": wire.ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "techne-test", "version": "1.0"},
		}),
		"tools/list": encodeResponse(t, 1, map[string]any{
			"tools": []map[string]any{
				{"name": "say_hello", "description": "greets", "inputSchema": map[string]any{"type": "object", "properties": map[string]any{}}},
			},
		}),
		"tools/call": encodeResponse(t, 1, map[string]any{
			"content": []map[string]any{{"type": "text", "text": "Hello, Ada!"}},
			"isError": false,
		}),
		"ping": encodeResponse(t, 1, map[string]any{}),
	}}

	c, err := client.Connect(context.Background(), client.Info{Name: "c", Version: "0"}, transport, nil)
	require.NoError(t, err)
	return c
}

func TestListToolsDecodesSchema(t *testing.T) {
	c := connectedClient(t)

	tools, err := c.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "say_hello", tools[0].Name)
}

func TestCallToolReturnsResult(t *testing.T) {
	c := connectedClient(t)

	result, err := c.CallTool(context.Background(), "say_hello", map[string]string{"name": "Ada"}, nil)
	require.NoError(t, err)
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "Hello, Ada!", result.Content[0].Text)
}

func TestPingSucceeds(t *testing.T) {
	c := connectedClient(t)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestConnectionResetWhenStreamClosesEarly(t *testing.T) {
	transport := &scriptedTransport{responses: map[string][]byte{}}

	_, err := client.Connect(context.Background(), client.Info{Name: "c", Version: "0"}, transport, nil)
	assert.ErrorIs(t, err, client.ErrConnectionReset)
}
