package service

import (
	"context"
	"sync"

	"slidedeck/internal/domain"
)

// Event names delivered through an EventEmitter.
const (
	EventDeckChanged = "deck:changed"
	EventSelection   = "deck:selection"
	EventNotify      = "notify"
	EventExported    = "export:done"

	EventApprovalRequired  = "mcp:approval-required"
	EventApprovalDismissed = "mcp:approval-dismissed"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter decouples services from the presentation layer
// ─────────────────────────────────────────────────────────────

// EventEmitter delivers fire-and-forget events to whatever renders the
// editor: the host bridge, Redis subscribers, or a MockEmitter in tests.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// Notify emits a user-facing notice on the notify event.
func Notify(ctx context.Context, e EventEmitter, typ domain.NoticeType, message string) {
	if e == nil {
		return
	}
	e.Emit(ctx, EventNotify, domain.Notice{Type: typ, Message: message})
}

// NoticeFunc adapts e to the callback shape the repair pipeline expects.
func NoticeFunc(e EventEmitter) func(context.Context, domain.Notice) {
	return func(ctx context.Context, n domain.Notice) {
		Notify(ctx, e, n.Type, n.Message)
	}
}

// MultiEmitter fans every event out to each emitter in order.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event string, data any) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event, data)
		}
	}
}

// NopEmitter drops every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// It is safe for use from export goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Snapshot returns a copy of the recorded events.
func (m *MockEmitter) Snapshot() []EmittedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]EmittedEvent(nil), m.Events...)
}

// Notices returns the recorded notices in emission order.
func (m *MockEmitter) Notices() []domain.Notice {
	var out []domain.Notice
	for _, e := range m.Snapshot() {
		if n, ok := e.Data.(domain.Notice); ok && e.Event == EventNotify {
			out = append(out, n)
		}
	}
	return out
}

// Count returns how many times event was emitted.
func (m *MockEmitter) Count(event string) int {
	n := 0
	for _, e := range m.Snapshot() {
		if e.Event == event {
			n++
		}
	}
	return n
}
