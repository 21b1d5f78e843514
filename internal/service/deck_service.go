package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"slidedeck/internal/domain"
	"slidedeck/internal/schema"
)

var (
	ErrNoDeck        = errors.New("no deck loaded")
	ErrSlideNotFound = errors.New("slide not found")
	ErrBlockNotFound = errors.New("block not found")
	ErrNotTextBlock  = errors.New("block is not a text block")
	ErrInvalidLayout = errors.New("invalid layout")
	ErrInvalidFrame  = errors.New("invalid frame")
)

// DeckSink receives autosaved snapshots. Any domain.DeckRepository fits.
type DeckSink interface {
	SaveDeck(ctx context.Context, d *domain.Deck) error
}

// RevisionRecorder keeps a durable trail of autosaved snapshots.
type RevisionRecorder interface {
	Record(ctx context.Context, d *domain.Deck, label string) error
}

type DeckServiceOptions struct {
	HistoryLimit int
	Validator    *schema.Validator
	Sink         DeckSink
	Revisions    RevisionRecorder
}

// ─────────────────────────────────────────────────────────────
// Deck Service — the document store
// ─────────────────────────────────────────────────────────────

// DeckService owns the current deck, the selection and the undo history. It
// is the only place decks are mutated. Every mutation builds a fresh deck and
// swaps it in whole, so snapshots handed out or kept in history never change.
type DeckService struct {
	mu        sync.Mutex
	deck      *domain.Deck
	selection domain.Selection
	history   *History
	version   uint64
	saved     uint64

	repairer  *schema.Repairer
	sink      DeckSink
	revisions RevisionRecorder
	emitter   EventEmitter
	now       func() time.Time
}

// NewDeckService creates a DeckService. A nil emitter drops all events.
func NewDeckService(emitter EventEmitter, opts DeckServiceOptions) *DeckService {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &DeckService{
		history:   NewHistory(opts.HistoryLimit),
		repairer:  schema.NewRepairer(opts.Validator, NoticeFunc(emitter)),
		sink:      opts.Sink,
		revisions: opts.Revisions,
		emitter:   emitter,
		now:       time.Now,
	}
}

// Load validates input (repairing it when possible) and installs it. With
// isPatch and a deck already loaded, the input is merged by slide id;
// otherwise it replaces the current deck. Invalid input changes nothing.
func (s *DeckService) Load(ctx context.Context, input any, isPatch bool) (*domain.Deck, error) {
	incoming, err := s.repairer.CoerceAndValidate(ctx, input)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	next, msg := incoming, "deck loaded"
	if isPatch && s.deck != nil {
		next, msg = MergeDecks(s.deck, incoming), "patch applied"
	}
	s.installLocked(next)
	state := s.stateLocked()
	s.mu.Unlock()

	s.emitter.Emit(ctx, EventDeckChanged, state)
	Notify(ctx, s.emitter, domain.NoticeSuccess, msg)
	return state.Deck.Clone(), nil
}

// Validate checks input without touching the store.
func (s *DeckService) Validate(input any) (*domain.Deck, schema.Issues) {
	return s.repairer.Validator().Validate(input)
}

// Undo reinstalls the previous deck. Reports false when there is nothing to undo.
func (s *DeckService) Undo(ctx context.Context) bool {
	return s.travel(ctx, s.history.Undo)
}

// Redo reverses the last Undo. Any other mutation clears the redo stack.
func (s *DeckService) Redo(ctx context.Context) bool {
	return s.travel(ctx, s.history.Redo)
}

func (s *DeckService) travel(ctx context.Context, step func(*domain.Deck) (*domain.Deck, bool)) bool {
	s.mu.Lock()
	target, ok := step(s.deck)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.deck = target
	s.version++
	s.reconcileSelectionLocked()
	state := s.stateLocked()
	s.mu.Unlock()

	s.emitter.Emit(ctx, EventDeckChanged, state)
	return true
}

func (s *DeckService) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanUndo()
}

func (s *DeckService) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.CanRedo()
}

// HistoryDepth is the number of undoable steps.
func (s *DeckService) HistoryDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Depth()
}

// Current returns a deep copy of the current deck, or nil.
func (s *DeckService) Current() *domain.Deck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck.Clone()
}

// State returns a copy of everything the editor renders.
func (s *DeckService) State() domain.EditorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *DeckService) Selection() domain.Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// ── Selection ─────────────────────────────────────────────

// SetSelectedSlide selects slideID and clears the block selection. An empty id
// clears the selection.
func (s *DeckService) SetSelectedSlide(ctx context.Context, slideID string) error {
	s.mu.Lock()
	if slideID != "" && s.deck.SlideIndex(slideID) < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSlideNotFound, slideID)
	}
	s.selection = domain.Selection{SlideID: slideID}
	sel := s.selection
	s.mu.Unlock()

	s.emitter.Emit(ctx, EventSelection, sel)
	return nil
}

// SetSelectedBlock selects blockID within the selected slide. When no slide is
// selected, the slide holding the block is selected with it. An empty id
// clears only the block selection.
func (s *DeckService) SetSelectedBlock(ctx context.Context, blockID string) error {
	s.mu.Lock()
	if blockID == "" {
		s.selection.BlockID = ""
	} else {
		slideID, err := s.locateBlockLocked(blockID)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		s.selection = domain.Selection{SlideID: slideID, BlockID: blockID}
	}
	sel := s.selection
	s.mu.Unlock()

	s.emitter.Emit(ctx, EventSelection, sel)
	return nil
}

func (s *DeckService) locateBlockLocked(blockID string) (string, error) {
	if s.deck == nil {
		return "", ErrNoDeck
	}
	if cur := s.selection.SlideID; cur != "" {
		if i := s.deck.SlideIndex(cur); i >= 0 && s.deck.Slides[i].BlockIndex(blockID) >= 0 {
			return cur, nil
		}
		return "", fmt.Errorf("%w: %s in slide %s", ErrBlockNotFound, blockID, cur)
	}
	for _, sl := range s.deck.Slides {
		if sl.BlockIndex(blockID) >= 0 {
			return sl.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrBlockNotFound, blockID)
}

// ── Direct edits ──────────────────────────────────────────

// UpdateBlockHTML replaces the markup of a text block.
func (s *DeckService) UpdateBlockHTML(ctx context.Context, slideID, blockID, html string) error {
	return s.mutate(ctx, func(d *domain.Deck) error {
		b, err := findBlock(d, slideID, blockID)
		if err != nil {
			return err
		}
		if b.Kind != domain.BlockKindText {
			return fmt.Errorf("%w: %s is %s", ErrNotTextBlock, blockID, b.Kind)
		}
		b.Text = &domain.TextBlock{HTML: html}
		return nil
	})
}

// MoveBlockTo sets the frame origin of a block, keeping its size.
func (s *DeckService) MoveBlockTo(ctx context.Context, slideID, blockID string, x, y float64) error {
	return s.mutate(ctx, func(d *domain.Deck) error {
		b, err := findBlock(d, slideID, blockID)
		if err != nil {
			return err
		}
		b.Frame.X, b.Frame.Y = x, y
		return nil
	})
}

// ResizeBlock sets the frame size of a block, keeping its origin.
func (s *DeckService) ResizeBlock(ctx context.Context, slideID, blockID string, w, h float64) error {
	if w < 0 || h < 0 {
		return fmt.Errorf("%w: negative size %gx%g", ErrInvalidFrame, w, h)
	}
	return s.mutate(ctx, func(d *domain.Deck) error {
		b, err := findBlock(d, slideID, blockID)
		if err != nil {
			return err
		}
		b.Frame.W, b.Frame.H = w, h
		return nil
	})
}

// AddBlock appends a block to a slide, assigning an id when it has none. The
// resulting deck must still validate.
func (s *DeckService) AddBlock(ctx context.Context, slideID string, b domain.Block) (*domain.Block, error) {
	added := b.Clone()
	if added.ID == "" {
		added.ID = uuid.NewString()
	}
	err := s.mutate(ctx, func(d *domain.Deck) error {
		i := d.SlideIndex(slideID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrSlideNotFound, slideID)
		}
		d.Slides[i].Blocks = append(d.Slides[i].Blocks, added.Clone())
		if _, iss := s.repairer.Validator().Validate(d); len(iss) > 0 {
			return iss
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// DeleteBlock removes a block from a slide.
func (s *DeckService) DeleteBlock(ctx context.Context, slideID, blockID string) error {
	return s.mutate(ctx, func(d *domain.Deck) error {
		i := d.SlideIndex(slideID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrSlideNotFound, slideID)
		}
		j := d.Slides[i].BlockIndex(blockID)
		if j < 0 {
			return fmt.Errorf("%w: %s", ErrBlockNotFound, blockID)
		}
		d.Slides[i].Blocks = slices.Delete(d.Slides[i].Blocks, j, j+1)
		return nil
	})
}

// AddSlideWithLayout appends an empty slide and selects it. Without a current
// deck an empty one is created first.
func (s *DeckService) AddSlideWithLayout(ctx context.Context, layout domain.Layout) (*domain.Slide, error) {
	if !slices.Contains(domain.Layouts, layout) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLayout, layout)
	}
	slide := domain.Slide{ID: uuid.NewString(), Layout: layout, Blocks: []domain.Block{}}

	s.mu.Lock()
	next := s.deck.Clone()
	if next == nil {
		next = &domain.Deck{
			ID:        uuid.NewString(),
			Title:     "Untitled deck",
			Theme:     "default",
			CreatedAt: s.now().UnixMilli(),
			Slides:    []domain.Slide{},
		}
	}
	next.Slides = append(next.Slides, slide.Clone())
	s.installLocked(next)
	s.selection = domain.Selection{SlideID: slide.ID}
	state := s.stateLocked()
	s.mu.Unlock()

	s.emitter.Emit(ctx, EventDeckChanged, state)
	return &slide, nil
}

// DeleteSlide removes a slide; the selection is cleared if it pointed there.
func (s *DeckService) DeleteSlide(ctx context.Context, slideID string) error {
	return s.mutate(ctx, func(d *domain.Deck) error {
		i := d.SlideIndex(slideID)
		if i < 0 {
			return fmt.Errorf("%w: %s", ErrSlideNotFound, slideID)
		}
		d.Slides = slices.Delete(d.Slides, i, i+1)
		return nil
	})
}

// ── Autosave ──────────────────────────────────────────────

// Autosave hands a snapshot of the current deck to the sink. It is a no-op
// without a deck, without a sink, or when nothing changed since the last
// save. It never touches history.
func (s *DeckService) Autosave(ctx context.Context) error {
	s.mu.Lock()
	d, version := s.deck, s.version
	unchanged := version == s.saved
	s.mu.Unlock()

	if d == nil || s.sink == nil || unchanged {
		return nil
	}
	snapshot := d.Clone()
	if err := s.sink.SaveDeck(ctx, snapshot); err != nil {
		return fmt.Errorf("autosave deck %s: %w", snapshot.ID, err)
	}

	s.mu.Lock()
	if version > s.saved {
		s.saved = version
	}
	s.mu.Unlock()

	if s.revisions != nil {
		if err := s.revisions.Record(ctx, snapshot, "autosave"); err != nil {
			log.Printf("[Autosave] record revision for %s: %v", snapshot.ID, err)
		}
	}
	return nil
}

// ── internals ─────────────────────────────────────────────

// mutate applies fn to a copy of the current deck and installs the copy when
// fn succeeds.
func (s *DeckService) mutate(ctx context.Context, fn func(d *domain.Deck) error) error {
	s.mu.Lock()
	if s.deck == nil {
		s.mu.Unlock()
		return ErrNoDeck
	}
	next := s.deck.Clone()
	if err := fn(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.installLocked(next)
	state := s.stateLocked()
	s.mu.Unlock()

	s.emitter.Emit(ctx, EventDeckChanged, state)
	return nil
}

func (s *DeckService) installLocked(next *domain.Deck) {
	s.history.Record(s.deck)
	next.Patch = false
	s.deck = next
	s.version++
	s.reconcileSelectionLocked()
}

// reconcileSelectionLocked drops selection entries that no longer resolve.
func (s *DeckService) reconcileSelectionLocked() {
	if s.selection.SlideID == "" {
		return
	}
	i := s.deck.SlideIndex(s.selection.SlideID)
	if i < 0 {
		s.selection = domain.Selection{}
		return
	}
	if s.selection.BlockID != "" && s.deck.Slides[i].BlockIndex(s.selection.BlockID) < 0 {
		s.selection.BlockID = ""
	}
}

func (s *DeckService) stateLocked() domain.EditorState {
	return domain.EditorState{
		Deck:      s.deck.Clone(),
		Selection: s.selection,
		CanUndo:   s.history.CanUndo(),
		CanRedo:   s.history.CanRedo(),
	}
}

// findBlock returns a pointer into d, which must be a private copy.
func findBlock(d *domain.Deck, slideID, blockID string) (*domain.Block, error) {
	i := d.SlideIndex(slideID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrSlideNotFound, slideID)
	}
	j := d.Slides[i].BlockIndex(blockID)
	if j < 0 {
		return nil, fmt.Errorf("%w: %s in slide %s", ErrBlockNotFound, blockID, slideID)
	}
	return &d.Slides[i].Blocks[j], nil
}
