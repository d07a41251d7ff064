package eventlog

import (
	"time"
)

// Broadcaster is the single API surface agent code uses to emit events.
// It stamps a fresh UUID, fills conversation_id from session context
// when absent, and delegates seq assignment entirely to the Store — there
// is no seq logic here.
type Broadcaster struct {
	store Store
}

// NewBroadcaster wraps a Store.
func NewBroadcaster(store Store) *Broadcaster {
	return &Broadcaster{store: store}
}

// Emit stamps and buffers evt, returning the sequenced copy or nil if an
// adapter filtered it.
func (b *Broadcaster) Emit(sessionID string, evt Event, adapter Adapter) *Event {
	if evt.ConversationID == "" {
		if ctx, ok := b.store.GetSessionContext(sessionID); ok {
			evt.ConversationID = ctx.ConversationID
		}
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	return b.store.BufferEvent(sessionID, evt, OutputFormatDefault, adapter)
}

func (b *Broadcaster) emitData(sessionID string, typ EventType, data map[string]any) *Event {
	return b.Emit(sessionID, Event{Type: typ, Data: data}, nil)
}

// Session-level helpers.

func (b *Broadcaster) SessionStart(sessionID string) *Event {
	b.store.SetSessionContext(sessionID, SessionContext{HeartbeatAt: time.Now().UTC()})
	return b.emitData(sessionID, EventSessionStart, nil)
}

func (b *Broadcaster) SessionStopped(sessionID, reason string) *Event {
	return b.emitData(sessionID, EventSessionStopped, map[string]any{"reason": reason})
}

func (b *Broadcaster) SessionEnd(sessionID, status string) *Event {
	return b.emitData(sessionID, EventSessionEnd, map[string]any{"status": status})
}

func (b *Broadcaster) Ping(sessionID string) *Event {
	b.store.UpdateHeartbeat(sessionID)
	return b.emitData(sessionID, EventPing, nil)
}

// Conversation-level helpers.

// ConversationDeltaField is one of the legal conversation_delta fields
//: title, metadata, compressed.
type ConversationDeltaField string

const (
	ConversationDeltaTitle      ConversationDeltaField = "title"
	ConversationDeltaMetadata   ConversationDeltaField = "metadata"
	ConversationDeltaCompressed ConversationDeltaField = "compressed"
)

func (b *Broadcaster) ConversationStart(sessionID, conversationID string) *Event {
	b.store.SetSessionContext(sessionID, SessionContext{ConversationID: conversationID})
	return b.Emit(sessionID, Event{Type: EventConversationStart, ConversationID: conversationID}, nil)
}

func (b *Broadcaster) ConversationDelta(sessionID, conversationID string, field ConversationDeltaField, value any) *Event {
	return b.Emit(sessionID, Event{
		Type:           EventConversationDelta,
		ConversationID: conversationID,
		Data:           map[string]any{"conversation_id": conversationID, string(field): value},
	}, nil)
}

func (b *Broadcaster) ConversationStop(sessionID, conversationID string) *Event {
	return b.Emit(sessionID, Event{Type: EventConversationStop, ConversationID: conversationID}, nil)
}

// Message-level helpers.

func (b *Broadcaster) MessageStart(sessionID, messageID string) *Event {
	return b.Emit(sessionID, Event{Type: EventMessageStart, MessageID: messageID}, nil)
}

// MessageDeltaKind is one of the legal message_delta kinds.
type MessageDeltaKind string

const (
	MessageDeltaUsage          MessageDeltaKind = "usage"
	MessageDeltaRecommended    MessageDeltaKind = "recommended"
	MessageDeltaSearch         MessageDeltaKind = "search"
	MessageDeltaKnowledge      MessageDeltaKind = "knowledge"
	MessageDeltaIntent         MessageDeltaKind = "intent"
	MessageDeltaBilling        MessageDeltaKind = "billing"
	MessageDeltaCloudProgress  MessageDeltaKind = "cloud_progress"
	MessageDeltaHITL           MessageDeltaKind = "hitl"
	MessageDeltaProgress       MessageDeltaKind = "progress"
)

func (b *Broadcaster) MessageDelta(sessionID, messageID string, kind MessageDeltaKind, content any) *Event {
	return b.Emit(sessionID, Event{
		Type:      EventMessageDelta,
		MessageID: messageID,
		Data:      map[string]any{"type": string(kind), "content": content},
	}, nil)
}

func (b *Broadcaster) MessageStop(sessionID, messageID string) *Event {
	return b.Emit(sessionID, Event{Type: EventMessageStop, MessageID: messageID}, nil)
}

// Content-level helpers.

func (b *Broadcaster) ContentStart(sessionID, messageID string, index int, blockType ContentBlockType) *Event {
	return b.Emit(sessionID, Event{
		Type:      EventContentStart,
		MessageID: messageID,
		Data:      map[string]any{"index": index, "content_block": map[string]any{"type": string(blockType)}},
	}, nil)
}

func (b *Broadcaster) ContentDelta(sessionID, messageID string, index int, delta string) *Event {
	return b.Emit(sessionID, Event{
		Type:      EventContentDelta,
		MessageID: messageID,
		Data:      map[string]any{"index": index, "delta": delta},
	}, nil)
}

func (b *Broadcaster) ContentStop(sessionID, messageID string, index int) *Event {
	return b.Emit(sessionID, Event{
		Type:      EventContentStop,
		MessageID: messageID,
		Data:      map[string]any{"index": index},
	}, nil)
}

// System-level helpers.

func (b *Broadcaster) Error(sessionID string, err error, errorType string) *Event {
	return b.emitData(sessionID, EventError, map[string]any{"error": err.Error(), "error_type": errorType})
}

func (b *Broadcaster) Done(sessionID string) *Event {
	return b.emitData(sessionID, EventDone, nil)
}

// Custom emits a system-level event with a caller-chosen type, for
// events outside the named taxonomy entries above.
func (b *Broadcaster) Custom(sessionID string, typ EventType, data map[string]any) *Event {
	return b.emitData(sessionID, typ, data)
}

// Subscribe exposes a session-bound channel of emitted events. Closing a
// session drains and closes the returned channel (delegated to Store).
func (b *Broadcaster) Subscribe(sessionID string) (<-chan Event, func()) {
	return b.store.Subscribe(sessionID)
}

// Replay returns events since lastSeq, for a subscriber resuming after a
// reconnect.
func (b *Broadcaster) Replay(sessionID string, lastSeq uint64) []Event {
	return b.store.GetEventsSince(sessionID, lastSeq)
}
