package client

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/techne-go/techne/pkg/mcp/wire"
)

// ErrConnectionReset is returned when the underlying frame stream closes
// before the matching Response for a request arrives.
var ErrConnectionReset = errors.New("client: connection reset: stream closed before matching response")

// EventKind discriminates Event.
type EventKind int

const (
	EventNotification EventKind = iota
	EventRequest
)

// Event is a peer message observed on a ResponseChannel before its
// matching Response arrives: a server-initiated Notification (e.g.
// progress) or Request (e.g. sampling).
type Event struct {
	Kind         EventKind
	Notification wire.Notification
	Request      wire.Request
}

// ResponseChannel surfaces one outstanding request's peer traffic until
// the matching Response arrives, per the "pull peer events until Response"
// protocol: Notification/Request frames are handed to onEvent; a Response
// with a different id is impossible on a per-request HTTP round trip and
// ignored rather than trusted on a shared stdio stream; Error frames are
// logged and skipped, since they are not fatal to the call unless the
// channel itself closes.
type ResponseChannel struct {
	id      wire.Id
	frames  <-chan []byte
	release func()
	log     *logrus.Entry
}

func newResponseChannel(id wire.Id, frames <-chan []byte, release func(), log *logrus.Entry) *ResponseChannel {
	return &ResponseChannel{id: id, frames: frames, release: release, log: log}
}

// Await pulls frames until the Response matching this channel's request id
// arrives, invoking onEvent (which may be nil) for every Notification or
// Request observed first.
func (r *ResponseChannel) Await(ctx context.Context, onEvent func(Event)) (wire.Response, error) {
	defer r.release()

	for {
		select {
		case raw, ok := <-r.frames:
			if !ok {
				return wire.Response{}, ErrConnectionReset
			}

			message, err := wire.Decode(raw)
			if err != nil {
				return wire.Response{}, err
			}

			switch message.Kind {
			case wire.KindResponse:
				if message.Response.Id == r.id {
					return message.Response, nil
				}
			case wire.KindError:
				if r.log != nil {
					r.log.WithError(message.Error).Warn("client: server reported an error")
				}
			case wire.KindNotification:
				if onEvent != nil {
					onEvent(Event{Kind: EventNotification, Notification: message.Notification})
				}
			case wire.KindRequest:
				if onEvent != nil {
					onEvent(Event{Kind: EventRequest, Request: message.Request})
				}
			}
		case <-ctx.Done():
			return wire.Response{}, ctx.Err()
		}
	}
}
