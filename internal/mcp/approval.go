package mcpserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidedeck/internal/domain"
	"slidedeck/internal/service"
)

// EventEmitter allows the approval queue to notify the host.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

type actionResult struct {
	approved bool
}

// ApprovalQueue gates destructive tool calls behind a human decision. When
// disabled every request is approved immediately.
type ApprovalQueue struct {
	mu      sync.Mutex
	pending map[string]chan actionResult
	emitter EventEmitter
	timeout time.Duration
	enabled bool
}

func NewApprovalQueue(emitter EventEmitter, enabled bool) *ApprovalQueue {
	return &ApprovalQueue{
		pending: make(map[string]chan actionResult),
		emitter: emitter,
		timeout: 120 * time.Second,
		enabled: enabled,
	}
}

// Request announces the action and blocks until it is approved, rejected,
// times out, or ctx ends.
func (q *ApprovalQueue) Request(ctx context.Context, tool, description string, metadata ...string) (bool, error) {
	if !q.enabled {
		return true, nil
	}
	id := uuid.NewString()
	meta := "{}"
	if len(metadata) > 0 && metadata[0] != "" {
		meta = metadata[0]
	}

	ch := make(chan actionResult, 1)
	q.mu.Lock()
	q.pending[id] = ch
	q.mu.Unlock()
	defer q.cleanup(id)

	q.emitter.Emit(ctx, service.EventApprovalRequired, domain.PendingAction{
		ID:          id,
		Tool:        tool,
		Description: description,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Metadata:    meta,
	})

	timer := time.NewTimer(q.timeout)
	defer timer.Stop()
	select {
	case result := <-ch:
		if !result.approved {
			return false, fmt.Errorf("action rejected by user: %s", tool)
		}
		return true, nil
	case <-timer.C:
		q.emitter.Emit(ctx, service.EventApprovalDismissed, map[string]string{"id": id})
		return false, fmt.Errorf("action timed out after %s: %s", q.timeout, tool)
	case <-ctx.Done():
		q.emitter.Emit(context.WithoutCancel(ctx), service.EventApprovalDismissed, map[string]string{"id": id})
		return false, ctx.Err()
	}
}

// Approve marks a pending action as approved.
func (q *ApprovalQueue) Approve(actionID string) bool {
	return q.resolve(actionID, true)
}

// Reject marks a pending action as rejected.
func (q *ApprovalQueue) Reject(actionID string) bool {
	return q.resolve(actionID, false)
}

func (q *ApprovalQueue) resolve(actionID string, approved bool) bool {
	q.mu.Lock()
	ch, ok := q.pending[actionID]
	q.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- actionResult{approved: approved}:
		return true
	default:
		return false
	}
}

func (q *ApprovalQueue) cleanup(id string) {
	q.mu.Lock()
	delete(q.pending, id)
	q.mu.Unlock()
}
