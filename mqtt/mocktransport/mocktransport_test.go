package mocktransport

import (
	"context"
	"testing"
	"time"

	"github.com/rustyeddy/beacon/mqtt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollReturnsPushedEvent(t *testing.T) {
	tr := New()
	tr.Push(mqtt.Event{Kind: mqtt.EventConnAckOK, SessionPresent: true})

	ev, err := tr.Poll(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, mqtt.EventConnAckOK, ev.Kind)
	assert.True(t, ev.SessionPresent)
}

func TestPollTimesOutWithoutEvent(t *testing.T) {
	tr := New()
	ev, err := tr.Poll(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, mqtt.EventTimeout, ev.Kind)
}

func TestCallsAreRecorded(t *testing.T) {
	tr := New()
	require.NoError(t, tr.Publish(context.Background(), "t", []byte("p"), 1, 5, false))
	require.Len(t, tr.Calls, 1)
	assert.Equal(t, "Publish", tr.Calls[0].Method)
	assert.Equal(t, uint16(5), tr.Calls[0].PacketID)
}
