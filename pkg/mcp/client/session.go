package client

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/techne-go/techne/pkg/mcp/wire"
)

// Session owns the shared transport and the monotonically advancing
// request-id counter. It is the thing a Client drives; exported mainly so
// a caller needing raw request/notify access (outside the initialize/
// list_tools/call_tool conveniences) still has a path to it.
type Session struct {
	transport Transport
	log       *logrus.Entry

	mu          sync.Mutex
	nextRequest wire.Id
}

// NewSession wraps a Transport as a Session with a fresh id counter.
func NewSession(transport Transport, log *logrus.Entry) *Session {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Session{transport: transport, log: log}
}

// Request stamps the next id, serializes method+params as a Request, and
// returns a ResponseChannel wrapping the transport's reply stream.
func (s *Session) Request(ctx context.Context, method string, params any) (*ResponseChannel, error) {
	id := s.increment()

	bytes, err := wire.EncodeRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	frames, release, err := s.transport.Send(ctx, bytes)
	if err != nil {
		return nil, err
	}

	return newResponseChannel(id, frames, release, s.log), nil
}

// Notify stamps and sends a fire-and-forget Notification; no reply is
// expected or waited for.
func (s *Session) Notify(ctx context.Context, method string, params any) error {
	bytes, err := wire.EncodeNotification(method, params)
	if err != nil {
		return err
	}

	_, release, err := s.transport.Send(ctx, bytes)
	if release != nil {
		release()
	}
	return err
}

func (s *Session) increment() wire.Id {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextRequest.Increment()
}
