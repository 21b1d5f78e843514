package service

import "slidedeck/internal/domain"

// DefaultHistoryLimit caps undo depth when no limit is configured.
const DefaultHistoryLimit = 50

// History keeps bounded undo and redo stacks of whole-deck snapshots.
// Snapshots are never mutated after they are pushed, so they are stored
// without copying. Not safe for concurrent use; DeckService serializes access.
type History struct {
	limit int
	undo  []*domain.Deck
	redo  []*domain.Deck
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit}
}

// Record pushes the pre-mutation deck and clears redo. The oldest snapshot is
// evicted once the limit is reached.
func (h *History) Record(prev *domain.Deck) {
	if prev == nil {
		return
	}
	h.undo = pushBounded(h.undo, prev, h.limit)
	h.redo = nil
}

// Undo pops the most recent snapshot, parking current on the redo stack.
func (h *History) Undo(current *domain.Deck) (*domain.Deck, bool) {
	if len(h.undo) == 0 {
		return nil, false
	}
	prev := h.undo[len(h.undo)-1]
	h.undo[len(h.undo)-1] = nil
	h.undo = h.undo[:len(h.undo)-1]
	if current != nil {
		h.redo = pushBounded(h.redo, current, h.limit)
	}
	return prev, true
}

// Redo reverses the last Undo.
func (h *History) Redo(current *domain.Deck) (*domain.Deck, bool) {
	if len(h.redo) == 0 {
		return nil, false
	}
	next := h.redo[len(h.redo)-1]
	h.redo[len(h.redo)-1] = nil
	h.redo = h.redo[:len(h.redo)-1]
	if current != nil {
		h.undo = pushBounded(h.undo, current, h.limit)
	}
	return next, true
}

func (h *History) CanUndo() bool { return len(h.undo) > 0 }
func (h *History) CanRedo() bool { return len(h.redo) > 0 }

// Depth is the number of undoable snapshots.
func (h *History) Depth() int { return len(h.undo) }

func (h *History) Limit() int { return h.limit }

func pushBounded(stack []*domain.Deck, d *domain.Deck, limit int) []*domain.Deck {
	if len(stack) >= limit {
		drop := len(stack) - limit + 1
		clear(stack[:drop])
		stack = append(stack[:0], stack[drop:]...)
	}
	return append(stack, d)
}
