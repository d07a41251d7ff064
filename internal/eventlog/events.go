// Package eventlog implements the per-session event storage and sequencing
// subsystem and the single-entry-point broadcaster that sits in
// front of it.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType is a member of the closed event taxonomy the UI renders.
type EventType string

const (
	EventSessionStart   EventType = "session_start"
	EventSessionStopped EventType = "session_stopped"
	EventSessionEnd     EventType = "session_end"
	EventPing           EventType = "ping"

	EventConversationStart EventType = "conversation_start"
	EventConversationDelta EventType = "conversation_delta"
	EventConversationStop  EventType = "conversation_stop"

	EventMessageStart EventType = "message_start"
	EventMessageDelta EventType = "message_delta"
	EventMessageStop  EventType = "message_stop"

	EventContentStart EventType = "content_start"
	EventContentDelta EventType = "content_delta"
	EventContentStop  EventType = "content_stop"

	EventError EventType = "error"
	EventDone  EventType = "done"
)

// ContentBlockType enumerates the content_block.type values carried on
// content-level events.
type ContentBlockType string

const (
	ContentText      ContentBlockType = "text"
	ContentThinking  ContentBlockType = "thinking"
	ContentToolUse   ContentBlockType = "tool_use"
	ContentToolResult ContentBlockType = "tool_result"
)

// Event is the immutable record persisted by Event Storage. Seq is assigned
// by buffer_event and is never set by callers.
type Event struct {
	EventUUID      string         `json:"event_uuid"`
	Seq            uint64         `json:"seq"`
	Type           EventType      `json:"type"`
	SessionID      string         `json:"session_id"`
	ConversationID string         `json:"conversation_id,omitempty"`
	MessageID      string         `json:"message_id,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data,omitempty"`
}

// SessionContext is the per-session metadata record created on a session's
// first event and refreshed on every emission.
type SessionContext struct {
	UserID            string    `json:"user_id,omitempty"`
	ConversationID    string    `json:"conversation_id,omitempty"`
	InstanceID        string    `json:"instance_id,omitempty"`
	HeartbeatAt       time.Time `json:"heartbeat_timestamp"`
}

// Adapter optionally transforms an event before it is sequenced. Returning
// nil filters the event: no seq is burned and no subscriber is notified.
type Adapter interface {
	Transform(evt Event) *Event
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(evt Event) *Event

// Transform implements Adapter.
func (f AdapterFunc) Transform(evt Event) *Event { return f(evt) }

// OutputFormat selects how buffer_event renders subscriber notifications.
// It is opaque to Event Storage; it is threaded through for adapters and
// transport-layer fan-out that needs to know the desired wire shape.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = ""
	OutputFormatSSE     OutputFormat = "sse"
	OutputFormatWS      OutputFormat = "websocket"
)

// Store is the event storage contract: buffer_event, get_session_context,
// update_heartbeat, plus the read/cleanup paths used by the orchestrator
// and late subscribers.
type Store interface {
	GetSessionContext(sessionID string) (SessionContext, bool)
	SetSessionContext(sessionID string, partial SessionContext)
	BufferEvent(sessionID string, evt Event, format OutputFormat, adapter Adapter) *Event
	UpdateHeartbeat(sessionID string)
	GetEventsSince(sessionID string, lastSeq uint64) []Event
	GetLatest(sessionID string, n int) []Event
	CleanupSession(sessionID string)
	Subscribe(sessionID string) (<-chan Event, func())
}

// DefaultMaxEventsPerSession bounds the append-only log; the oldest 10% is
// evicted once the cap is exceeded.
const DefaultMaxEventsPerSession = 1000

type sessionLog struct {
	mu       sync.Mutex
	ctx      SessionContext
	events   []Event
	seq      uint64
	subs     map[int]chan Event
	nextSub  int
}

// MemoryStore is the in-process implementation of Store. It is the only
// event storage implementation the core ships; any persistence backend is
// a best-effort observability sink layered on top, never a blocking
// dependency of emission.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*sessionLog
	maxCap   int
}

// NewMemoryStore constructs a Store with the given per-session cap. A
// maxCap <= 0 uses DefaultMaxEventsPerSession.
func NewMemoryStore(maxCap int) *MemoryStore {
	if maxCap <= 0 {
		maxCap = DefaultMaxEventsPerSession
	}
	return &MemoryStore{
		sessions: make(map[string]*sessionLog),
		maxCap:   maxCap,
	}
}

func (s *MemoryStore) session(sessionID string) *sessionLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.sessions[sessionID]
	if !ok {
		log = &sessionLog{subs: make(map[int]chan Event)}
		s.sessions[sessionID] = log
	}
	return log
}

// GetSessionContext implements Store.
func (s *MemoryStore) GetSessionContext(sessionID string) (SessionContext, bool) {
	log := s.session(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()
	if log.ctx.HeartbeatAt.IsZero() && log.ctx == (SessionContext{}) {
		return SessionContext{}, false
	}
	return log.ctx, true
}

// SetSessionContext implements Store, merging non-zero fields of partial
// into the stored context.
func (s *MemoryStore) SetSessionContext(sessionID string, partial SessionContext) {
	log := s.session(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()
	if partial.UserID != "" {
		log.ctx.UserID = partial.UserID
	}
	if partial.ConversationID != "" {
		log.ctx.ConversationID = partial.ConversationID
	}
	if partial.InstanceID != "" {
		log.ctx.InstanceID = partial.InstanceID
	}
	if !partial.HeartbeatAt.IsZero() {
		log.ctx.HeartbeatAt = partial.HeartbeatAt
	}
}

// UpdateHeartbeat implements Store.
func (s *MemoryStore) UpdateHeartbeat(sessionID string) {
	log := s.session(sessionID)
	log.mu.Lock()
	log.ctx.HeartbeatAt = time.Now().UTC()
	log.mu.Unlock()
}

// BufferEvent is the only source of seq. If adapter is non-nil and its
// Transform returns nil, the event is filtered: no seq is assigned, no
// notification fires, and the caller sees nil.
func (s *MemoryStore) BufferEvent(sessionID string, evt Event, _ OutputFormat, adapter Adapter) *Event {
	if adapter != nil {
		transformed := adapter.Transform(evt)
		if transformed == nil {
			return nil
		}
		evt = *transformed
	}

	log := s.session(sessionID)
	log.mu.Lock()
	log.seq++
	evt.Seq = log.seq
	evt.SessionID = sessionID
	if evt.EventUUID == "" {
		evt.EventUUID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.ConversationID == "" && log.ctx.ConversationID != "" {
		evt.ConversationID = log.ctx.ConversationID
	}
	log.ctx.HeartbeatAt = evt.Timestamp
	log.events = append(log.events, evt)
	if len(log.events) > s.maxCap {
		evictOldest(log, s.maxCap)
	}
	subs := make([]chan Event, 0, len(log.subs))
	for _, ch := range log.subs {
		subs = append(subs, ch)
	}
	log.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber: drop rather than block emission. Storage
			// operations must not fail or block on a stalled reader.
		}
	}
	return &evt
}

func evictOldest(log *sessionLog, cap int) {
	evictCount := len(log.events) - cap
	if evictCount < len(log.events)/10 {
		evictCount = len(log.events) / 10
	}
	if evictCount <= 0 {
		return
	}
	if evictCount > len(log.events) {
		evictCount = len(log.events)
	}
	log.events = append([]Event(nil), log.events[evictCount:]...)
}

// GetEventsSince implements Store; used by late subscribers to resume via
// replay before switching to the live channel.
func (s *MemoryStore) GetEventsSince(sessionID string, lastSeq uint64) []Event {
	log := s.session(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()
	out := make([]Event, 0, len(log.events))
	for _, evt := range log.events {
		if evt.Seq > lastSeq {
			out = append(out, evt)
		}
	}
	return out
}

// GetLatest implements Store.
func (s *MemoryStore) GetLatest(sessionID string, n int) []Event {
	log := s.session(sessionID)
	log.mu.Lock()
	defer log.mu.Unlock()
	if n <= 0 || n > len(log.events) {
		n = len(log.events)
	}
	start := len(log.events) - n
	out := make([]Event, n)
	copy(out, log.events[start:])
	return out
}

// CleanupSession drops all state for a session, closing any live
// subscriber channels.
func (s *MemoryStore) CleanupSession(sessionID string) {
	s.mu.Lock()
	log, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	log.mu.Lock()
	for _, ch := range log.subs {
		close(ch)
	}
	log.subs = nil
	log.mu.Unlock()
}

// Subscribe returns a channel receiving events newly buffered for
// sessionID and an unsubscribe func. Closing a session (CleanupSession)
// drains and closes every subscriber channel for it.
func (s *MemoryStore) Subscribe(sessionID string) (<-chan Event, func()) {
	log := s.session(sessionID)
	log.mu.Lock()
	id := log.nextSub
	log.nextSub++
	ch := make(chan Event, 64)
	log.subs[id] = ch
	log.mu.Unlock()

	cancel := func() {
		log.mu.Lock()
		if c, ok := log.subs[id]; ok {
			delete(log.subs, id)
			close(c)
		}
		log.mu.Unlock()
	}
	return ch, cancel
}
