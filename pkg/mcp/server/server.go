// Package server implements the dispatch loop at the center of the MCP
// runtime: it consumes Transport events, routes Requests to the
// initialize/ping/tools-list/tools-call handlers, owns the tool registry,
// and mediates every reply through a Connection.
package server

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/techne-go/techne/pkg/mcp/schema"
	"github.com/techne-go/techne/pkg/mcp/tool"
	"github.com/techne-go/techne/pkg/mcp/transport"
	"github.com/techne-go/techne/pkg/mcp/wire"
)

// Info identifies the server in the initialize handshake.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Server owns an immutable tool registry and name/version pair. It has no
// other mutable state: every inbound Request is served by its own
// Connection, and the registry is never written after New, so registry
// lookups take no lock.
type Server struct {
	info  Info
	tools map[string]tool.Tool
	log   *logrus.Entry

	// RequestTimeout, when non-zero, bounds how long a single Request's
	// dispatch (including a tool call's handler) may run before its
	// context is cancelled. The core itself has no opinion on timeouts
	// (callers wrap operations externally when they want one); this is
	// that external wrapping, opted into by whoever constructs the Server,
	// e.g. the CLI's --timeout flag. Zero (the default) preserves the
	// no-timeout behavior.
	RequestTimeout time.Duration
}

// New builds a Server with the given tools, keyed by name (a later tool
// with a name already taken silently replaces the earlier one, matching a
// map literal's own last-write-wins semantics).
func New(info Info, tools []tool.Tool, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	registry := make(map[string]tool.Tool, len(tools))
	for _, t := range tools {
		registry[t.Name] = t
	}

	return &Server{info: info, tools: registry, log: log}
}

// Run drains t until it returns ActionQuit or an error. Each ActionHandle
// is dispatched on its own goroutine so a slow handler never blocks the
// accept loop; ActionSubscribe is always rejected, since this server has
// no long-lived server-push concept of its own (a GET is answered, not
// ignored; see the httpstream transport for why the capability exists at
// all).
func (s *Server) Run(ctx context.Context, t transport.Transport) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		action, err := t.Accept(ctx)
		if err != nil {
			return err
		}

		switch action.Kind {
		case transport.ActionQuit:
			return nil
		case transport.ActionSubscribe:
			action.Channel.Send(transport.Reply{Kind: transport.ReplyReject})
		case transport.ActionHandle:
			wg.Add(1)
			go func(bytes []byte, channel transport.Channel) {
				defer wg.Done()
				reqCtx := ctx
				if s.RequestTimeout > 0 {
					var cancel context.CancelFunc
					reqCtx, cancel = context.WithTimeout(ctx, s.RequestTimeout)
					defer cancel()
				}
				s.handle(reqCtx, bytes, channel)
			}(action.Bytes, action.Channel)
		}
	}
}

func (s *Server) handle(ctx context.Context, bytes []byte, channel transport.Channel) {
	message, err := wire.Decode(bytes)
	if err != nil {
		if decodeErr, ok := err.(wire.Error); ok {
			raw, encErr := wire.EncodeError(decodeErr.Id, decodeErr.Kind)
			if encErr == nil {
				channel.Send(transport.Reply{Kind: transport.ReplySend, Bytes: raw})
				return
			}
		}
		s.log.WithError(err).Error("server: failed to encode decode-error response")
		channel.Send(transport.Reply{Kind: transport.ReplyReject})
		return
	}

	switch message.Kind {
	case wire.KindRequest:
		s.serve(ctx, NewConnection(message.Request.Id, channel), message.Request)
	case wire.KindNotification, wire.KindResponse, wire.KindError:
		// This server never sends requests of its own to the peer during a
		// tool call in the current build (see the tool package's note on
		// ActionRequest/ActionNotify), so it has nothing to correlate an
		// inbound Notification/Response/Error against.
		NewReceipt(channel).Reject()
	}
}

func (s *Server) serve(ctx context.Context, conn *Connection, req wire.Request) {
	s.log.WithField("method", req.Method).Debug("server: serving request")

	switch req.Method {
	case "initialize":
		s.initialize(conn)
	case "ping":
		s.ping(conn)
	case "tools/list":
		s.listTools(conn)
	case "tools/call":
		s.callTool(ctx, conn, req.Params)
	default:
		s.methodNotFound(conn, req.Method)
	}
}

func (s *Server) methodNotFound(conn *Connection, method string) {
	notFound := wire.MethodNotFound(method)
	if err := conn.Error(notFound.Kind); err != nil {
		s.log.WithError(err).Error("server: failed to send method_not_found")
	}
}

type capabilities struct {
	Tools *toolsCapability `json:"tools,omitempty"`
}

type toolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      Info         `json:"serverInfo"`
}

func (s *Server) initialize(conn *Connection) {
	var caps capabilities
	if len(s.tools) > 0 {
		caps.Tools = &toolsCapability{ListChanged: false}
	}

	result := initializeResult{
		ProtocolVersion: wire.ProtocolVersion,
		Capabilities:    caps,
		ServerInfo:      s.info,
	}

	if err := conn.Finish(result); err != nil {
		s.log.WithError(err).Error("server: failed to send initialize response")
	}
}

func (s *Server) ping(conn *Connection) {
	if err := conn.Finish(struct{}{}); err != nil {
		s.log.WithError(err).Error("server: failed to send ping response")
	}
}

type toolDescription struct {
	Name         string        `json:"name"`
	Title        string        `json:"title,omitempty"`
	Description  string        `json:"description"`
	InputSchema  schema.Schema `json:"inputSchema"`
	OutputSchema schema.Schema `json:"outputSchema,omitempty"`
}

type toolsListResult struct {
	Tools []toolDescription `json:"tools"`
}

func (s *Server) listTools(conn *Connection) {
	names := make([]string, 0, len(s.tools))
	for name := range s.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	descriptions := make([]toolDescription, 0, len(names))
	for _, name := range names {
		t := s.tools[name]
		descriptions = append(descriptions, toolDescription{
			Name:         t.Name,
			Description:  t.Description,
			InputSchema:  t.InputSchema,
			OutputSchema: t.OutputSchema,
		})
	}

	if err := conn.Finish(toolsListResult{Tools: descriptions}); err != nil {
		s.log.WithError(err).Error("server: failed to send tools/list response")
	}
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) callTool(ctx context.Context, conn *Connection, params json.RawMessage) {
	var call toolCallParams
	if err := json.Unmarshal(params, &call); err != nil {
		s.invalidParams(conn, "invalid tools/call params: "+err.Error())
		return
	}

	t, ok := s.tools[call.Name]
	if !ok {
		s.invalidParams(conn, "Unknown tool: "+call.Name)
		return
	}

	actions, err := t.Call(ctx, call.Arguments)
	if err != nil {
		s.invalidParams(conn, "invalid_data: "+err.Error())
		return
	}

	for action := range actions {
		switch action.Kind {
		case tool.ActionRequest:
			if err := conn.ForwardRaw(action.Request); err != nil {
				s.log.WithError(err).Error("server: failed to forward tool request")
			}
		case tool.ActionNotify:
			if err := conn.ForwardRaw(action.Notification); err != nil {
				s.log.WithError(err).Error("server: failed to forward tool notification")
			}
		case tool.ActionFinish:
			if err := conn.Finish(action.Outcome); err != nil {
				s.log.WithError(err).Error("server: failed to send tools/call response")
			}
		}
	}
}

func (s *Server) invalidParams(conn *Connection, message string) {
	if err := conn.Error(wire.InvalidParams(message)); err != nil {
		s.log.WithError(err).Error("server: failed to send invalid_params error")
	}
}
