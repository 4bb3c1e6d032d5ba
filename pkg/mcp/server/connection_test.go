package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/techne-go/techne/pkg/mcp/transport"
	"github.com/techne-go/techne/pkg/mcp/wire"
)

func collectingChannel() (transport.Channel, func() []transport.Reply) {
	var replies []transport.Reply
	ch := transport.ChannelFunc(func(r transport.Reply) { replies = append(replies, r) })
	return ch, func() []transport.Reply { return replies }
}

func TestFinishFromIdleSendsSingleReply(t *testing.T) {
	channel, get := collectingChannel()
	conn := NewConnection(wire.Id(1), channel)

	require.NoError(t, conn.Finish(map[string]string{"ok": "true"}))

	replies := get()
	require.Len(t, replies, 1)
	assert.Equal(t, transport.ReplySend, replies[0].Kind)
}

func TestRequestFromIdleUpgradesToStream(t *testing.T) {
	channel, get := collectingChannel()
	conn := NewConnection(wire.Id(1), channel)

	require.NoError(t, conn.Notify("progress", map[string]int{"n": 1}))

	replies := get()
	require.Len(t, replies, 1)
	assert.Equal(t, transport.ReplyStream, replies[0].Kind)

	frame := <-replies[0].Source
	assert.Contains(t, string(frame), `"progress"`)
}

func TestFinishAfterStreamingPushesFinalFrameAndCloses(t *testing.T) {
	channel, get := collectingChannel()
	conn := NewConnection(wire.Id(1), channel)

	require.NoError(t, conn.Notify("progress", nil))
	replies := get()
	source := replies[0].Source
	<-source // drain the notify frame

	require.NoError(t, conn.Finish(map[string]string{"done": "true"}))

	frame, ok := <-source
	require.True(t, ok)
	assert.Contains(t, string(frame), "done")

	_, ok = <-source
	assert.False(t, ok, "source must close after Finish")
}

func TestOperationsAfterTerminalAreNoOps(t *testing.T) {
	channel, get := collectingChannel()
	conn := NewConnection(wire.Id(1), channel)

	require.NoError(t, conn.Finish(map[string]string{}))
	require.NoError(t, conn.Finish(map[string]string{"again": "true"}))
	require.NoError(t, conn.Notify("late", nil))

	assert.Len(t, get(), 1, "only the first terminal operation may reach the channel")
}

func TestReceiptAcceptAndReject(t *testing.T) {
	channel, get := collectingChannel()
	NewReceipt(channel).Accept()
	require.Len(t, get(), 1)
	assert.Equal(t, transport.ReplyAccept, get()[0].Kind)

	channel, get = collectingChannel()
	NewReceipt(channel).Reject()
	require.Len(t, get(), 1)
	assert.Equal(t, transport.ReplyReject, get()[0].Kind)
}
