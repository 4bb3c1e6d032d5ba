// Package httpstream implements the streamable HTTP transport: POST (and
// optional GET) on "/", where a reply is either a single JSON body, a
// 202-accepted acknowledgement, or an upgrade to a Server-Sent Events
// stream the moment a handler emits more than one frame.
package httpstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/techne-go/techne/pkg/mcp/server"
	"github.com/techne-go/techne/pkg/mcp/transport"
	"github.com/techne-go/techne/pkg/mcp/wire"
)

// maxBodyBytes bounds an inbound POST body.
const maxBodyBytes = 10 * 1024 * 1024

// heartbeatInterval is how often an open SSE stream gets a keep-alive
// comment line so intermediaries don't time it out.
const heartbeatInterval = 30 * time.Second

// ErrClosed is returned by Accept once the listener has stopped; every
// call after the first failure also returns it.
var ErrClosed = errors.New("httpstream: transport closed")

// Authenticator gates inbound requests before they reach the server core.
// A nil Authenticator (the Options default) accepts everything.
type Authenticator interface {
	Authenticate(r *http.Request) error
}

// Options configures a Transport.
type Options struct {
	Address string

	Auth Authenticator

	// RateLimit is the sustained requests/sec allowed per remote
	// address; zero disables rate limiting.
	RateLimit rate.Limit
	Burst     int

	// CORS, when nil, allows all origins (suitable for a locally-run
	// MCP server talking to a browser-hosted client).
	CORS *cors.Options

	// Sessions, when non-nil, backs the Mcp-Session-Id header: every SSE
	// upgrade mints a session and every GET carrying an existing id has it
	// touched. A nil registry falls back to a bare per-stream uuid, same as
	// before this option existed.
	Sessions *server.SessionRegistry

	Log *logrus.Entry
}

// Transport is the server side of the streamable HTTP transport.
type Transport struct {
	listener net.Listener
	server   *http.Server
	actions  chan accepted
	log      *logrus.Entry
	sessions *server.SessionRegistry

	closeOnce sync.Once
	broken    chan struct{}
}

type accepted struct {
	action transport.Action
	err    error
}

// Bind starts listening on opts.Address and returns a Transport whose
// Accept drains inbound requests as they arrive.
func Bind(opts Options) (*Transport, error) {
	listener, err := net.Listen("tcp", opts.Address)
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	t := &Transport{
		listener: listener,
		actions:  make(chan accepted, 64),
		log:      log,
		sessions: opts.Sessions,
		broken:   make(chan struct{}),
	}

	router := mux.NewRouter()
	router.HandleFunc("/", t.handlePost).Methods(http.MethodPost)
	router.HandleFunc("/", t.handleGet).Methods(http.MethodGet)
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	var handler http.Handler = router
	if opts.RateLimit > 0 {
		handler = rateLimitMiddleware(opts.RateLimit, opts.Burst)(handler)
	}
	handler = requestIDMiddleware(handler)
	handler = recoveryMiddleware(log)(handler)

	corsOpts := cors.Options{AllowedOrigins: []string{"*"}, AllowedMethods: []string{http.MethodGet, http.MethodPost}}
	if opts.CORS != nil {
		corsOpts = *opts.CORS
	}
	handler = cors.New(corsOpts).Handler(handler)

	if opts.Auth != nil {
		handler = authMiddleware(opts.Auth)(handler)
	}

	t.server = &http.Server{Handler: handler}

	go func() {
		if err := t.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("httpstream: listener stopped")
			select {
			case t.actions <- accepted{err: err}:
			default:
			}
		}
		close(t.actions)
	}()

	return t, nil
}

// Addr reports the bound address, useful when Options.Address was ":0".
func (t *Transport) Addr() net.Addr { return t.listener.Addr() }

// Close shuts the HTTP server down, unblocking any pending Accept.
func (t *Transport) Close(ctx context.Context) error {
	return t.server.Shutdown(ctx)
}

// Accept never synthesizes ActionQuit: a streamable HTTP server keeps
// running until the operator stops it, so the equivalent of "EOF" is the
// caller cancelling ctx or calling Close.
func (t *Transport) Accept(ctx context.Context) (transport.Action, error) {
	select {
	case a, ok := <-t.actions:
		if !ok {
			return transport.Action{}, ErrClosed
		}
		if a.err != nil {
			return transport.Action{}, a.err
		}
		return a.action, nil
	case <-ctx.Done():
		return transport.Action{}, ctx.Err()
	}
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "request body too large or unreadable", http.StatusBadRequest)
		return
	}

	reply := make(chan transport.Reply, 1)
	action := transport.Action{
		Kind:    transport.ActionHandle,
		Bytes:   body,
		Channel: transport.ChannelFunc(func(r transport.Reply) { reply <- r }),
	}

	if !t.dispatch(r.Context(), w, action, reply) {
		return
	}
}

func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	if t.sessions != nil {
		if id := r.Header.Get("Mcp-Session-Id"); id != "" && !t.sessions.Touch(id) {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
	}

	reply := make(chan transport.Reply, 1)
	action := transport.Action{
		Kind:    transport.ActionSubscribe,
		Channel: transport.ChannelFunc(func(r transport.Reply) { reply <- r }),
	}

	t.dispatch(r.Context(), w, action, reply)
}

func (t *Transport) dispatch(ctx context.Context, w http.ResponseWriter, action transport.Action, reply <-chan transport.Reply) bool {
	select {
	case t.actions <- accepted{action: action}:
	case <-ctx.Done():
		http.Error(w, "client disconnected", http.StatusBadGateway)
		return false
	}

	select {
	case r := <-reply:
		t.write(w, r)
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Transport) write(w http.ResponseWriter, r transport.Reply) {
	switch r.Kind {
	case transport.ReplyAccept:
		w.WriteHeader(http.StatusAccepted)
	case transport.ReplyReject:
		http.Error(w, "rejected", http.StatusBadRequest)
	case transport.ReplyUnsupported:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	case transport.ReplySend:
		status := http.StatusOK
		if isParseError(r.Bytes) {
			status = http.StatusBadRequest
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if _, err := w.Write(r.Bytes); err != nil {
			t.log.WithError(err).Error("httpstream: write single response")
		}
	case transport.ReplyStream:
		t.writeStream(w, r.Source)
	}
}

// isParseError reports whether body is a JSON-RPC Error carrying
// wire.CodeParseError, the shape the server core sends when the inbound
// POST body failed to decode. That case answers 400, unlike a successful
// exchange (including method_not_found and invalid_params, which are
// valid JSON-RPC Responses-as-Errors) which keeps answering 200.
func isParseError(body []byte) bool {
	var probe struct {
		Error *struct {
			Code int `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Error != nil && probe.Error.Code == wire.CodeParseError
}

func (t *Transport) writeStream(w http.ResponseWriter, source <-chan []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sessionID := uuid.New().String()
	if t.sessions != nil {
		sessionID = t.sessions.Create().ID
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Mcp-Session-Id", sessionID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case frame, ok := <-source:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "data:%s\n\n", frame); err != nil {
				t.log.WithError(err).Error("httpstream: write stream frame")
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
