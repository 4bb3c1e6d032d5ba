package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Http is the client-side streamable HTTP transport: every Send is one
// POST with a dual Accept header, branching on the response's
// Content-Type to decide whether the reply is a single JSON body or an
// SSE stream of frames.
type Http struct {
	client  *http.Client
	address string
	log     *logrus.Entry
}

// NewHttp wires a *http.Client against address (e.g. "http://host:port/").
func NewHttp(address string, log *logrus.Entry) *Http {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Http{client: &http.Client{}, address: address, log: log}
}

// Send implements Transport. release is always a no-op here: an HTTP
// round trip owns nothing beyond the response body, which the read loop
// (or the single-JSON fast path) already closes.
func (h *Http) Send(ctx context.Context, message []byte) (<-chan []byte, func(), error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.address, bytes.NewReader(message))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, nil, err
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("client http: server returned %d: %s", resp.StatusCode, string(body))
	}

	contentType := resp.Header.Get("Content-Type")

	switch {
	case resp.StatusCode == http.StatusAccepted:
		resp.Body.Close()
		ch := make(chan []byte)
		close(ch)
		return ch, func() {}, nil

	case strings.HasPrefix(contentType, "application/json"):
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, nil, err
		}
		ch := make(chan []byte, 1)
		ch <- body
		close(ch)
		return ch, func() {}, nil

	case strings.HasPrefix(contentType, "text/event-stream"):
		ch := make(chan []byte, 16)
		go func() {
			defer resp.Body.Close()
			defer close(ch)
			if err := readStream(resp.Body, ch); err != nil {
				h.log.WithError(err).Error("client http: reading SSE stream")
			}
		}()
		return ch, func() {}, nil

	default:
		resp.Body.Close()
		return nil, nil, fmt.Errorf("client http: invalid server content-type: %q", contentType)
	}
}

// readStream scans an SSE body for "data:" records, splitting on bare
// newlines and emitting the accumulated event's payload whenever a blank
// line terminates it.
func readStream(body io.Reader, out chan<- []byte) error {
	const prefix = "data:"

	reader := bufio.NewScanner(body)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var event strings.Builder

	for reader.Scan() {
		line := reader.Text()

		if line == "" {
			if event.Len() > 0 {
				out <- []byte(strings.TrimPrefix(event.String(), prefix))
				event.Reset()
			}
			continue
		}

		if strings.HasPrefix(line, ":") {
			continue // comment / heartbeat, not part of any event
		}

		event.WriteString(line)
	}

	return reader.Err()
}
