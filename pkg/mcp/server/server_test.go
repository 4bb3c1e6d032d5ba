package server_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techne-go/techne/pkg/mcp/server"
	"github.com/techne-go/techne/pkg/mcp/tool"
	"github.com/techne-go/techne/pkg/mcp/transport"
)

type fakeTransport struct {
	actions chan transport.Action
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{actions: make(chan transport.Action, 16)}
}

func (f *fakeTransport) Accept(ctx context.Context) (transport.Action, error) {
	select {
	case a, ok := <-f.actions:
		if !ok {
			return transport.Action{Kind: transport.ActionQuit}, nil
		}
		return a, nil
	case <-ctx.Done():
		return transport.Action{}, ctx.Err()
	}
}

func (f *fakeTransport) quit() {
	f.actions <- transport.Action{Kind: transport.ActionQuit}
}

func (f *fakeTransport) send(t *testing.T, body string) transport.Reply {
	t.Helper()

	reply := make(chan transport.Reply, 1)
	f.actions <- transport.Action{
		Kind:    transport.ActionHandle,
		Bytes:   []byte(body),
		Channel: transport.ChannelFunc(func(r transport.Reply) { reply <- r }),
	}
	return <-reply
}

func newTestServer() *server.Server {
	greet := tool.New1(
		"say_hello",
		"Says hello",
		tool.String("name", "who to greet"),
		func(ctx context.Context, name string) tool.Outcome {
			return tool.Ok(tool.Text("Hello, " + name + "!"))
		},
	)
	return server.New(server.Info{Name: "techne", Version: "test"}, []tool.Tool{greet}, nil)
}

func runServer(t *testing.T, s *server.Server, ft *fakeTransport) chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), ft) }()
	return done
}

func TestInitializeReturnsProtocolVersionAndCapabilities(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := ft.send(t, `{"jsonrpc":"2.0","id":1,"method":"initialize"}`)
	require.Equal(t, transport.ReplySend, reply.Kind)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(reply.Bytes, &decoded))

	var result map[string]any
	require.NoError(t, json.Unmarshal(decoded["result"], &result))
	assert.Equal(t, "2025-06-18", result["protocolVersion"])
	assert.Contains(t, result["capabilities"], "tools")

	ft.quit()
	require.NoError(t, <-done)
}

func TestPingRespondsWithEmptyResult(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := ft.send(t, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	require.Equal(t, transport.ReplySend, reply.Kind)
	assert.Contains(t, string(reply.Bytes), `"result":{}`)

	ft.quit()
	require.NoError(t, <-done)
}

func TestToolsListReturnsRegisteredTools(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := ft.send(t, `{"jsonrpc":"2.0","id":3,"method":"tools/list"}`)
	require.Equal(t, transport.ReplySend, reply.Kind)
	assert.Contains(t, string(reply.Bytes), `"say_hello"`)

	ft.quit()
	require.NoError(t, <-done)
}

func TestToolsCallInvokesHandlerAndReturnsOutcome(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := ft.send(t, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"say_hello","arguments":{"name":"Ada"}}}`)
	require.Equal(t, transport.ReplySend, reply.Kind)
	assert.Contains(t, string(reply.Bytes), "Hello, Ada!")
	assert.Contains(t, string(reply.Bytes), `"isError":false`)

	ft.quit()
	require.NoError(t, <-done)
}

func TestToolsCallUnknownToolYieldsInvalidParamsError(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := ft.send(t, `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"nope","arguments":{}}}`)
	require.Equal(t, transport.ReplySend, reply.Kind)
	assert.Contains(t, string(reply.Bytes), `"code":-32602`)

	ft.quit()
	require.NoError(t, <-done)
}

func TestUnknownMethodYieldsMethodNotFound(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := ft.send(t, `{"jsonrpc":"2.0","id":6,"method":"resources/list"}`)
	require.Equal(t, transport.ReplySend, reply.Kind)
	assert.Contains(t, string(reply.Bytes), `"code":-32601`)

	ft.quit()
	require.NoError(t, <-done)
}

func TestMalformedJSONYieldsParseError(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := ft.send(t, `not json`)
	require.Equal(t, transport.ReplySend, reply.Kind)
	assert.Contains(t, string(reply.Bytes), `"code":-32700`)

	ft.quit()
	require.NoError(t, <-done)
}

func TestUnsolicitedNotificationIsRejected(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := ft.send(t, `{"jsonrpc":"2.0","method":"notifications/cancelled"}`)
	assert.Equal(t, transport.ReplyReject, reply.Kind)

	ft.quit()
	require.NoError(t, <-done)
}

func TestRequestTimeoutCancelsSlowToolHandler(t *testing.T) {
	slow := tool.New0("slow", "Blocks until its context is done", func(ctx context.Context) tool.Outcome {
		<-ctx.Done()
		return tool.Failed(ctx.Err())
	})

	s := server.New(server.Info{Name: "techne", Version: "test"}, []tool.Tool{slow}, nil)
	s.RequestTimeout = 20 * time.Millisecond

	ft := newFakeTransport()
	done := runServer(t, s, ft)

	reply := ft.send(t, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"slow","arguments":{}}}`)
	require.Equal(t, transport.ReplySend, reply.Kind)
	assert.Contains(t, string(reply.Bytes), `"isError":true`)
	assert.Contains(t, string(reply.Bytes), "context deadline exceeded")

	ft.quit()
	require.NoError(t, <-done)
}

func TestSubscribeIsAlwaysRejected(t *testing.T) {
	ft := newFakeTransport()
	done := runServer(t, newTestServer(), ft)

	reply := make(chan transport.Reply, 1)
	ft.actions <- transport.Action{
		Kind:    transport.ActionSubscribe,
		Channel: transport.ChannelFunc(func(r transport.Reply) { reply <- r }),
	}
	got := <-reply
	assert.Equal(t, transport.ReplyReject, got.Kind)

	ft.quit()
	require.NoError(t, <-done)
}
