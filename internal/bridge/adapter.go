package bridge

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"

	"slidedeck/internal/domain"
	"slidedeck/internal/service"
)

// DefaultBuffer is the outbound command queue size.
const DefaultBuffer = 64

// maxEventSize bounds one inbound event; decks with inline images get large.
const maxEventSize = 64 << 20

// ErrStaleResponse is returned for a document answering a superseded AI request.
var ErrStaleResponse = errors.New("stale AI response")

// DocumentStore is the part of the deck service the adapter drives.
type DocumentStore interface {
	Load(ctx context.Context, input any, isPatch bool) (*domain.Deck, error)
	Current() *domain.Deck
	Undo(ctx context.Context) bool
	Redo(ctx context.Context) bool
}

// Exporter starts an export on a snapshot; the result comes back as an
// export:done event.
type Exporter interface {
	ExportAsync(ctx context.Context, kind service.ExportKind, d *domain.Deck) error
}

// Approver resolves pending agent actions.
type Approver interface {
	Approve(actionID string) bool
	Reject(actionID string) bool
}

// ─────────────────────────────────────────────────────────────
// Adapter: host events in, commands out
// ─────────────────────────────────────────────────────────────

// Adapter translates inbound host events into store calls and store output
// into outbound commands. It is a service.EventEmitter and a service.DeckSink
// so the core never learns about the host.
type Adapter struct {
	store    DocumentStore
	exporter Exporter
	approver Approver

	mu       sync.Mutex
	out      chan Command
	closed   bool
	attached bool
	pending  string
	dropped  int
}

func NewAdapter(store DocumentStore, exporter Exporter, buffer int) *Adapter {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Adapter{store: store, exporter: exporter, out: make(chan Command, buffer)}
}

// SetStore attaches the store after construction. The store usually needs
// the adapter as its emitter, so one of the two is built first.
func (a *Adapter) SetStore(store DocumentStore, exporter Exporter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.store, a.exporter = store, exporter
}

// SetApprover routes approval events to an.
func (a *Adapter) SetApprover(an Approver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.approver = an
}

// Commands is the outbound queue.
func (a *Adapter) Commands() <-chan Command {
	return a.out
}

// Dropped reports how many commands were discarded because the queue was full.
func (a *Adapter) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Pending returns the id of the AI request still awaiting a response.
func (a *Adapter) Pending() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// send never blocks; a full queue drops the command.
func (a *Adapter) send(cmd Command) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	select {
	case a.out <- cmd:
		return true
	default:
		a.dropped++
		log.Printf("[Bridge] outbound queue full, dropped %s", cmd.CommandType())
		return false
	}
}

// Close stops outbound delivery and closes the command channel.
func (a *Adapter) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	close(a.out)
}

// ── Outbound ──────────────────────────────────────────────

// Emit implements service.EventEmitter. Notices, finished exports and
// approval requests become commands; state events are not forwarded.
func (a *Adapter) Emit(_ context.Context, event string, data any) {
	switch event {
	case service.EventNotify:
		if n, ok := data.(domain.Notice); ok {
			a.send(NotifyCommand{Level: n.Type, Message: n.Message})
		}
	case service.EventExported:
		if res, ok := data.(*service.ExportResult); ok && res != nil {
			a.send(SaveExportCommand{
				Kind:      string(res.Kind),
				DeckID:    res.DeckID,
				Base64:    res.Base64,
				DataURIs:  res.DataURIs,
				Locations: res.Locations,
			})
		}
	case service.EventApprovalRequired:
		if action, ok := data.(domain.PendingAction); ok {
			a.send(ApprovalCommand{Action: action})
		}
	case service.EventApprovalDismissed:
		if m, ok := data.(map[string]string); ok {
			a.send(ApprovalDismissedCommand{ID: m["id"]})
		}
	}
}

// SaveDeck implements service.DeckSink by handing the deck to the host.
func (a *Adapter) SaveDeck(_ context.Context, d *domain.Deck) error {
	if !a.send(SaveDeckCommand{Deck: d}) {
		return fmt.Errorf("host queue unavailable")
	}
	return nil
}

// InvokeAI sends a prompt to the host and returns its correlation id. Only
// the latest request is awaited; answers to earlier ones are dropped.
func (a *Adapter) InvokeAI(prompt string, withContext bool) string {
	id := uuid.NewString()
	var deck *domain.Deck
	if withContext && a.store != nil {
		deck = a.store.Current()
	}

	a.mu.Lock()
	a.pending = id
	a.mu.Unlock()

	a.send(InvokeAICommand{RequestID: id, Prompt: prompt, Context: deck, Tool: DeckBuilderTool})
	return id
}

// ── Inbound ───────────────────────────────────────────────

// Handle dispatches one inbound event.
func (a *Adapter) Handle(ctx context.Context, ev Event) error {
	if a.store == nil {
		return fmt.Errorf("bridge has no document store")
	}
	switch e := ev.(type) {
	case DocumentEvent:
		return a.handleDocument(ctx, e)
	case PromptEvent:
		a.InvokeAI(e.Prompt, e.WithContext)
		return nil
	case ExportEvent:
		if a.exporter == nil {
			return fmt.Errorf("export is not configured")
		}
		return a.exporter.ExportAsync(ctx, service.ExportKind(e.Kind), a.store.Current())
	case UndoEvent:
		a.store.Undo(ctx)
		return nil
	case RedoEvent:
		a.store.Redo(ctx)
		return nil
	case ApprovalEvent:
		a.mu.Lock()
		approver := a.approver
		a.mu.Unlock()
		if approver == nil {
			return fmt.Errorf("no approvals are pending")
		}
		resolve := approver.Reject
		if e.Approved {
			resolve = approver.Approve
		}
		if !resolve(e.ID) {
			return fmt.Errorf("unknown approval %s", e.ID)
		}
		return nil
	}
	return fmt.Errorf("unhandled event %T", ev)
}

func (a *Adapter) handleDocument(ctx context.Context, e DocumentEvent) error {
	if e.RequestID != "" {
		a.mu.Lock()
		current := a.pending
		stale := e.RequestID != current
		if !stale {
			a.pending = ""
		}
		a.mu.Unlock()
		if stale {
			log.Printf("[Bridge] ignoring response %s (waiting for %q)", e.RequestID, current)
			a.send(NotifyCommand{Level: domain.NoticeInfo, Message: "ignored a response to an earlier request"})
			return ErrStaleResponse
		}
	}
	_, err := a.store.Load(ctx, e.Payload, e.IsPatch)
	return err
}

// ErrHostAttached is returned when a second host tries to drain the queue.
var ErrHostAttached = errors.New("a host is already attached")

// attach claims the outbound queue for one host connection.
func (a *Adapter) attach() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attached {
		return false
	}
	a.attached = true
	return true
}

func (a *Adapter) detach() {
	a.mu.Lock()
	a.attached = false
	a.mu.Unlock()
}

// handleRaw decodes and dispatches one wire event. Bad input is reported back
// to the host as an error notice and never ends the session.
func (a *Adapter) handleRaw(ctx context.Context, data []byte) {
	ev, err := DecodeEvent(data)
	if err != nil {
		log.Printf("[Bridge] %v", err)
		a.send(NotifyCommand{Level: domain.NoticeError, Message: err.Error()})
		return
	}
	if err := a.Handle(ctx, ev); err != nil && !errors.Is(err, ErrStaleResponse) {
		log.Printf("[Bridge] %s: %v", ev.EventType(), err)
	}
}

// Serve reads newline-delimited JSON events from r and writes commands to w
// until r is exhausted or ctx ends. Event errors are logged, not fatal.
func (a *Adapter) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	if !a.attach() {
		return ErrHostAttached
	}
	defer a.detach()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writeErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		writeErr <- a.writeCommands(ctx, w)
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		a.handleRaw(ctx, line)
		if ctx.Err() != nil {
			break
		}
	}

	cancel()
	wg.Wait()
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	if err := <-writeErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *Adapter) writeCommands(ctx context.Context, w io.Writer) error {
	bw := bufio.NewWriter(w)
	write := func(cmd Command) error {
		data, err := EncodeCommand(cmd)
		if err != nil {
			log.Printf("[Bridge] encode %s: %v", cmd.CommandType(), err)
			return nil
		}
		if _, err := bw.Write(append(data, '\n')); err != nil {
			return err
		}
		return bw.Flush()
	}
	for {
		select {
		case <-ctx.Done():
			// Flush whatever is already queued.
			for {
				select {
				case cmd, ok := <-a.out:
					if !ok {
						return nil
					}
					if err := write(cmd); err != nil {
						return err
					}
				default:
					return ctx.Err()
				}
			}
		case cmd, ok := <-a.out:
			if !ok {
				return nil
			}
			if err := write(cmd); err != nil {
				return err
			}
		}
	}
}
