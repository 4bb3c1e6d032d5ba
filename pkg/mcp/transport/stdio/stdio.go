// Package stdio implements the server side of the newline-framed MCP
// transport over a pair of byte streams (typically os.Stdin/os.Stdout, or
// a spawned child process's pipes on the client side; see pkg/mcp/client
// for that half).
package stdio

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/techne-go/techne/pkg/mcp/transport"
)

// Transport frames one JSON-RPC message per line, terminated by 0x0A. CR
// is never stripped from input and never emitted on output. A decode
// failure on one line does not abort the loop; reading zero bytes (EOF)
// yields ActionQuit.
type Transport struct {
	reader *bufio.Reader
	writer io.Writer
	log    *logrus.Entry

	writeMu sync.Mutex
}

// New wraps an input/output byte-stream pair as a stdio Transport.
func New(r io.Reader, w io.Writer, log *logrus.Entry) *Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{reader: bufio.NewReader(r), writer: w, log: log}
}

// Accept reads the next newline-terminated line, or reports ActionQuit on
// EOF. It never synthesizes ActionSubscribe, since stdio has no
// subscription concept.
func (t *Transport) Accept(ctx context.Context) (transport.Action, error) {
	line, err := t.reader.ReadBytes('\n')
	if len(line) == 0 && err == io.EOF {
		return transport.Action{Kind: transport.ActionQuit}, nil
	}
	if err != nil && err != io.EOF {
		return transport.Action{}, err
	}

	line = bytes.TrimSuffix(line, []byte{'\n'})

	return transport.Action{
		Kind:    transport.ActionHandle,
		Bytes:   line,
		Channel: transport.ChannelFunc(t.reply),
	}, nil
}

// reply writes exactly one outbound frame per terminal Reply, and one line
// per item of a streamed Reply. Writes are serialized through writeMu so
// concurrent handlers never interleave within a single line.
func (t *Transport) reply(r transport.Reply) {
	switch r.Kind {
	case transport.ReplySend:
		if err := t.writeLine(r.Bytes); err != nil {
			t.log.WithError(err).Error("stdio: write response")
		}
	case transport.ReplyStream:
		// Drained on its own goroutine: the handler that opened the stream
		// is still running and must not block inside Send while it has
		// frames (including the terminal one) left to push. writeLine's
		// mutex keeps per-line atomicity across concurrent handlers.
		go func() {
			for frame := range r.Source {
				if err := t.writeLine(frame); err != nil {
					t.log.WithError(err).Error("stdio: write stream frame")
					return
				}
			}
		}()
	case transport.ReplyAccept, transport.ReplyReject, transport.ReplyUnsupported:
		// Nothing is written to the pipe for these.
	}
}

func (t *Transport) writeLine(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if _, err := t.writer.Write(data); err != nil {
		return err
	}
	_, err := t.writer.Write([]byte{'\n'})
	return err
}
