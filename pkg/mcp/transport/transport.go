// Package transport defines the contract between the server core's
// dispatch loop and a concrete transport (stdio, streamable HTTP): an
// inbound Action and a one-shot outbound Channel/Reply pair.
package transport

import "context"

// Transport produces one inbound Action per Accept call until it returns
// ActionQuit or an error.
type Transport interface {
	Accept(ctx context.Context) (Action, error)
}

// ActionKind discriminates Action.
type ActionKind int

const (
	// ActionSubscribe means the peer wants a long-lived server-push
	// stream (HTTP GET). The core replies Reject unless it wishes to
	// support it.
	ActionSubscribe ActionKind = iota
	// ActionHandle means the peer delivered one message to decode and
	// dispatch.
	ActionHandle
	// ActionQuit means the peer closed the input cleanly; the server
	// loop should return.
	ActionQuit
)

// Action is one event read from a Transport.
type Action struct {
	Kind    ActionKind
	Bytes   []byte  // set iff Kind == ActionHandle
	Channel Channel // set iff Kind == ActionHandle || Kind == ActionSubscribe
}

// ReplyKind discriminates Reply.
type ReplyKind int

const (
	ReplyAccept      ReplyKind = iota // 2xx acknowledgement, no body
	ReplyReject                       // 4xx / ignore
	ReplySend                        // exactly one JSON message
	ReplyStream                      // open SSE-style stream
	ReplyUnsupported                 // 405-equivalent
)

// Reply is what a Channel resolves to. Exactly one Reply must be sent per
// Channel; dropping a Channel without sending is a transport bug (a
// well-behaved transport treats a dropped Channel as "peer abandoned" and
// releases resources instead of hanging).
type Reply struct {
	Kind   ReplyKind
	Bytes  []byte     // set iff Kind == ReplySend
	Source <-chan []byte // set iff Kind == ReplyStream; closed when the stream ends
}

// Channel is a one-shot sink for exactly one Reply.
type Channel interface {
	Send(Reply)
}

// ChannelFunc adapts a plain function to Channel.
type ChannelFunc func(Reply)

func (f ChannelFunc) Send(r Reply) { f(r) }
