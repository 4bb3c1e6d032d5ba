package stdio_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techne-go/techne/pkg/mcp/transport"
	"github.com/techne-go/techne/pkg/mcp/transport/stdio"
)

func TestAcceptReadsOneLinePerMessage(t *testing.T) {
	input := strings.NewReader("{\"a\":1}\n{\"b\":2}\n")
	var output bytes.Buffer

	tr := stdio.New(input, &output, nil)

	action, err := tr.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, transport.ActionHandle, action.Kind)
	assert.Equal(t, `{"a":1}`, string(action.Bytes))

	action, err = tr.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"b":2}`, string(action.Bytes))
}

func TestAcceptQuitsOnEOF(t *testing.T) {
	tr := stdio.New(strings.NewReader(""), &bytes.Buffer{}, nil)

	action, err := tr.Accept(context.Background())
	require.NoError(t, err)
	assert.Equal(t, transport.ActionQuit, action.Kind)
}

func TestReplySendWritesOneLine(t *testing.T) {
	var output bytes.Buffer
	tr := stdio.New(strings.NewReader("{}\n"), &output, nil)

	action, err := tr.Accept(context.Background())
	require.NoError(t, err)

	action.Channel.Send(transport.Reply{Kind: transport.ReplySend, Bytes: []byte(`{"ok":true}`)})

	assert.Equal(t, "{\"ok\":true}\n", output.String())
}

// syncBuffer guards a bytes.Buffer for the stream case, where the
// transport writes from its own goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestReplyStreamWritesOneLinePerItem(t *testing.T) {
	var output syncBuffer
	tr := stdio.New(strings.NewReader("{}\n"), &output, nil)

	action, err := tr.Accept(context.Background())
	require.NoError(t, err)

	source := make(chan []byte, 2)
	source <- []byte(`{"n":1}`)
	source <- []byte(`{"n":2}`)
	close(source)

	action.Channel.Send(transport.Reply{Kind: transport.ReplyStream, Source: source})

	require.Eventually(t, func() bool {
		return output.String() == "{\"n\":1}\n{\"n\":2}\n"
	}, time.Second, 10*time.Millisecond)
}

func TestReplyAcceptRejectUnsupportedWriteNothing(t *testing.T) {
	for _, kind := range []transport.ReplyKind{transport.ReplyAccept, transport.ReplyReject, transport.ReplyUnsupported} {
		var output bytes.Buffer
		tr := stdio.New(strings.NewReader("{}\n"), &output, nil)

		action, err := tr.Accept(context.Background())
		require.NoError(t, err)

		action.Channel.Send(transport.Reply{Kind: kind})

		assert.Empty(t, output.String())
	}
}
