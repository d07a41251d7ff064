package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_BufferEvent_AssignsMonotonicSeq(t *testing.T) {
	store := NewMemoryStore(0)

	first := store.BufferEvent("sess-1", Event{Type: EventMessageStart}, OutputFormatDefault, nil)
	second := store.BufferEvent("sess-1", Event{Type: EventMessageStop}, OutputFormatDefault, nil)

	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.NotEmpty(t, first.EventUUID)
	assert.NotEqual(t, first.EventUUID, second.EventUUID)
}

func TestMemoryStore_BufferEvent_FillsConversationIDFromContext(t *testing.T) {
	store := NewMemoryStore(0)
	store.SetSessionContext("sess-1", SessionContext{ConversationID: "conv-1"})

	evt := store.BufferEvent("sess-1", Event{Type: EventMessageStart}, OutputFormatDefault, nil)

	require.NotNil(t, evt)
	assert.Equal(t, "conv-1", evt.ConversationID)
}

func TestMemoryStore_BufferEvent_AdapterFilter(t *testing.T) {
	store := NewMemoryStore(0)
	drop := AdapterFunc(func(evt Event) *Event { return nil })

	out := store.BufferEvent("sess-1", Event{Type: EventPing}, OutputFormatDefault, drop)

	assert.Nil(t, out)
	assert.Empty(t, store.GetLatest("sess-1", 10))
}

func TestMemoryStore_BufferEvent_AdapterTransform(t *testing.T) {
	store := NewMemoryStore(0)
	rewrite := AdapterFunc(func(evt Event) *Event {
		evt.Data = map[string]any{"rewritten": true}
		return &evt
	})

	out := store.BufferEvent("sess-1", Event{Type: EventPing}, OutputFormatDefault, rewrite)

	require.NotNil(t, out)
	assert.Equal(t, map[string]any{"rewritten": true}, out.Data)
}

func TestMemoryStore_Eviction(t *testing.T) {
	store := NewMemoryStore(10)

	for i := 0; i < 25; i++ {
		store.BufferEvent("sess-1", Event{Type: EventPing}, OutputFormatDefault, nil)
	}

	events := store.GetLatest("sess-1", 100)
	assert.LessOrEqual(t, len(events), 10)
	// The most recent event must survive eviction.
	assert.Equal(t, uint64(25), events[len(events)-1].Seq)
}

func TestMemoryStore_GetEventsSince(t *testing.T) {
	store := NewMemoryStore(0)
	for i := 0; i < 5; i++ {
		store.BufferEvent("sess-1", Event{Type: EventPing}, OutputFormatDefault, nil)
	}

	since := store.GetEventsSince("sess-1", 3)

	require.Len(t, since, 2)
	assert.Equal(t, uint64(4), since[0].Seq)
	assert.Equal(t, uint64(5), since[1].Seq)
}

func TestMemoryStore_SessionContext_MergesNonZeroFields(t *testing.T) {
	store := NewMemoryStore(0)
	store.SetSessionContext("sess-1", SessionContext{UserID: "u1", ConversationID: "c1"})
	store.SetSessionContext("sess-1", SessionContext{InstanceID: "inst-1"})

	ctx, ok := store.GetSessionContext("sess-1")

	require.True(t, ok)
	assert.Equal(t, "u1", ctx.UserID)
	assert.Equal(t, "c1", ctx.ConversationID)
	assert.Equal(t, "inst-1", ctx.InstanceID)
}

func TestMemoryStore_UpdateHeartbeat(t *testing.T) {
	store := NewMemoryStore(0)
	before := time.Now().UTC()

	store.UpdateHeartbeat("sess-1")

	ctx, ok := store.GetSessionContext("sess-1")
	require.True(t, ok)
	assert.False(t, ctx.HeartbeatAt.Before(before))
}

func TestMemoryStore_Subscribe_ReceivesLiveEvents(t *testing.T) {
	store := NewMemoryStore(0)
	ch, cancel := store.Subscribe("sess-1")
	defer cancel()

	store.BufferEvent("sess-1", Event{Type: EventPing}, OutputFormatDefault, nil)

	select {
	case evt := <-ch:
		assert.Equal(t, EventPing, evt.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}

func TestMemoryStore_CleanupSession_ClosesSubscribers(t *testing.T) {
	store := NewMemoryStore(0)
	ch, _ := store.Subscribe("sess-1")

	store.CleanupSession("sess-1")

	_, open := <-ch
	assert.False(t, open, "subscriber channel should be closed on cleanup")
}

func TestBroadcaster_ConversationStart_SetsSessionContext(t *testing.T) {
	store := NewMemoryStore(0)
	b := NewBroadcaster(store)

	b.ConversationStart("sess-1", "conv-1")
	// A later event omitting conversation_id should inherit it.
	evt := b.Ping("sess-1")

	require.NotNil(t, evt)
	assert.Equal(t, "conv-1", evt.ConversationID)
}

func TestBroadcaster_MessageDelta_EncodesKindAndContent(t *testing.T) {
	store := NewMemoryStore(0)
	b := NewBroadcaster(store)

	evt := b.MessageDelta("sess-1", "msg-1", MessageDeltaIntent, map[string]any{"complexity": "simple"})

	require.NotNil(t, evt)
	assert.Equal(t, EventMessageDelta, evt.Type)
	assert.Equal(t, "intent", evt.Data["type"])
}

func TestBroadcaster_Error_IncludesErrorTypeAndMessage(t *testing.T) {
	store := NewMemoryStore(0)
	b := NewBroadcaster(store)

	evt := b.Error("sess-1", assertErr{"boom"}, "timeout")

	require.NotNil(t, evt)
	assert.Equal(t, "boom", evt.Data["error"])
	assert.Equal(t, "timeout", evt.Data["error_type"])
}

func TestBroadcaster_Replay_ReturnsEventsAfterSeq(t *testing.T) {
	store := NewMemoryStore(0)
	b := NewBroadcaster(store)
	b.Ping("sess-1")
	b.Ping("sess-1")
	b.Ping("sess-1")

	replayed := b.Replay("sess-1", 1)

	assert.Len(t, replayed, 2)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
