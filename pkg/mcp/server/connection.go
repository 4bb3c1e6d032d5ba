package server

import (
	"sync"

	"github.com/techne-go/techne/pkg/mcp/transport"
	"github.com/techne-go/techne/pkg/mcp/wire"
)

// connState discriminates a Connection's two states without a heap-
// allocated "either" wrapper: Idle holds the transport's one-shot reply
// channel; once Streaming, channel has been consumed by the stream reply
// and is not used again, and sink is the write side of the open stream.
type connState int

const (
	connIdle connState = iota
	connStreaming
)

// Connection is the per-inbound-Request handle a server core hands to
// whatever serves that request. It owns the transport's reply slot and
// mediates the Idle→Streaming transition described in the transport
// contract: at most one transition, exactly one terminal finish/error,
// and no operations after either.
type Connection struct {
	id      wire.Id
	channel transport.Channel

	mu            sync.Mutex
	state         connState
	sink          chan []byte
	nextRequestID wire.Id
	terminal      bool
}

// NewConnection wraps a transport Channel for one inbound Request with the
// given id.
func NewConnection(id wire.Id, channel transport.Channel) *Connection {
	return &Connection{id: id, channel: channel, state: connIdle}
}

// Request sends a server-initiated request to the peer as an intermediate
// message. It is a no-op (but logged by the caller, not here) if called
// after a terminal operation.
func (c *Connection) Request(method string, params any) error {
	id := c.nextRequestID.Increment()
	bytes, err := wire.EncodeRequest(id, method, params)
	if err != nil {
		return err
	}
	return c.stream(bytes)
}

// Notify sends a server-initiated notification to the peer as an
// intermediate message.
func (c *Connection) Notify(method string, params any) error {
	bytes, err := wire.EncodeNotification(method, params)
	if err != nil {
		return err
	}
	return c.stream(bytes)
}

// Finish sends the terminal Response. It is the only valid terminal
// operation alongside Error; calling either a second time is a bug in the
// caller and is ignored rather than panicking, since a handler racing its
// own cleanup against a cancelled context is a normal occurrence.
func (c *Connection) Finish(result any) error {
	bytes, err := wire.EncodeResponse(c.id, result)
	if err != nil {
		return err
	}
	return c.terminate(bytes)
}

// Error sends the terminal Error in place of a Response.
func (c *Connection) Error(kind wire.ErrorKind) error {
	id := c.id
	bytes, err := wire.EncodeError(&id, kind)
	if err != nil {
		return err
	}
	return c.terminate(bytes)
}

// ForwardRaw pushes an already wire-encoded server→client message (a
// request or notification a Tool's Action produced) through the same
// Idle→Streaming machinery as Request/Notify.
func (c *Connection) ForwardRaw(bytes []byte) error {
	return c.stream(bytes)
}

func (c *Connection) stream(bytes []byte) error {
	c.mu.Lock()

	if c.terminal {
		c.mu.Unlock()
		return nil
	}

	if c.state == connStreaming {
		c.sink <- bytes
		c.mu.Unlock()
		return nil
	}

	sink := make(chan []byte, 10)
	sink <- bytes
	c.sink = sink
	c.state = connStreaming
	c.mu.Unlock()

	// Send outside the lock: a transport may block inside Send until it
	// has dealt with the stream, and nothing here may hold mu across that.
	c.channel.Send(transport.Reply{Kind: transport.ReplyStream, Source: sink})
	return nil
}

func (c *Connection) terminate(bytes []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.terminal {
		return nil
	}
	c.terminal = true

	if c.state == connIdle {
		c.channel.Send(transport.Reply{Kind: transport.ReplySend, Bytes: bytes})
		return nil
	}

	c.sink <- bytes
	close(c.sink)
	return nil
}

// Receipt is the handle given to an inbound Notification/Response/Error
// the core has no handler for: it can only ever be accepted or rejected,
// never streamed.
type Receipt struct {
	channel transport.Channel
}

// NewReceipt wraps a transport Channel for a message with no Request id.
func NewReceipt(channel transport.Channel) Receipt {
	return Receipt{channel: channel}
}

// Accept acknowledges receipt with a 202-equivalent.
func (r Receipt) Accept() {
	r.channel.Send(transport.Reply{Kind: transport.ReplyAccept})
}

// Reject answers with a 4xx-equivalent / ignore.
func (r Receipt) Reject() {
	r.channel.Send(transport.Reply{Kind: transport.ReplyReject})
}
