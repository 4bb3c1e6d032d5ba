// Package client implements the client half of the MCP runtime: the
// initialize handshake, a Session that stamps and correlates request ids,
// and the two transports (stdio child process, streamable HTTP) a Session
// can ride on.
package client

import (
	"context"
	"encoding/json"
)

// Transport sends one outbound message and returns the stream of inbound
// frames that message's reply (if any) will arrive on. For a Notification
// (no id) the returned channel closes immediately with nothing on it.
// release must be called once the caller is done consuming frames; it lets
// a multiplexing transport (stdio) stop routing frames to a channel no one
// is reading anymore.
type Transport interface {
	Send(ctx context.Context, message []byte) (frames <-chan []byte, release func(), err error)
}

// idOf extracts a JSON-RPC request's id without fully decoding it,
// returning ok=false for a Notification (no id field).
func idOf(message []byte) (uint64, bool) {
	var probe struct {
		Id *uint64 `json:"id"`
	}
	if err := json.Unmarshal(message, &probe); err != nil || probe.Id == nil {
		return 0, false
	}
	return *probe.Id, true
}
