package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/techne-go/techne/pkg/mcp/wire"
)

// Stdio is the client-side newline-framed transport: it spawns a child
// process and speaks the same one-message-per-line protocol the server
// side's pkg/mcp/transport/stdio implements, correlating each outbound
// Request's id to the next Response line that names it. Notification/
// Request frames with no matching subscriber are broadcast to every
// request currently in flight, since on a single shared duplex stream
// there is no other way to know which call they belong to.
type Stdio struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	log   *logrus.Entry

	writeMu sync.Mutex

	mu          sync.Mutex
	subscribers map[uint64]chan []byte
	closed      bool
}

// SpawnStdio starts command as a child process and wires its stdin/stdout
// as the transport. The child's stderr is left connected to this
// process's stderr for diagnostics.
func SpawnStdio(ctx context.Context, log *logrus.Entry, name string, args ...string) (*Stdio, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	cmd := exec.CommandContext(ctx, name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	s := &Stdio{
		cmd:         cmd,
		stdin:       stdin,
		log:         log,
		subscribers: make(map[uint64]chan []byte),
	}

	go s.readLoop(bufio.NewReader(stdout))

	return s, nil
}

// Close terminates the child process and releases every pending
// subscriber with a closed channel.
func (s *Stdio) Close() error {
	err := s.stdin.Close()
	killErr := s.cmd.Process.Kill()
	if err == nil {
		err = killErr
	}
	return err
}

func (s *Stdio) readLoop(reader *bufio.Reader) {
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) == 0 && err == io.EOF {
			s.closeAll()
			return
		}
		if err != nil && err != io.EOF {
			s.log.WithError(err).Error("client stdio: read failed")
			s.closeAll()
			return
		}

		line = bytes.TrimSuffix(line, []byte{'\n'})
		s.dispatch(line)
	}
}

func (s *Stdio) dispatch(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message, err := wire.Decode(line); err == nil && message.Kind == wire.KindResponse {
		if ch, ok := s.subscribers[uint64(message.Response.Id)]; ok {
			ch <- line
			return
		}
	}

	for _, ch := range s.subscribers {
		select {
		case ch <- line:
		default:
			s.log.Warn("client stdio: dropped frame for a slow subscriber")
		}
	}
}

func (s *Stdio) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Send implements Transport.
func (s *Stdio) Send(ctx context.Context, message []byte) (<-chan []byte, func(), error) {
	id, hasID := idOf(message)

	ch := make(chan []byte, 16)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}, fmt.Errorf("client stdio: transport already closed")
	}
	if hasID {
		s.subscribers[id] = ch
	}
	s.mu.Unlock()

	release := func() {
		if !hasID {
			return
		}
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}

	s.writeMu.Lock()
	_, err := s.stdin.Write(message)
	if err == nil {
		_, err = s.stdin.Write([]byte{'\n'})
	}
	s.writeMu.Unlock()

	if err != nil {
		release()
		close(ch)
		return ch, func() {}, err
	}

	if !hasID {
		close(ch)
		return ch, func() {}, nil
	}

	return ch, release, nil
}
