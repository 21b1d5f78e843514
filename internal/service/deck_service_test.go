package service_test

import (
	"context"
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidedeck/internal/domain"
	"slidedeck/internal/schema"
	"slidedeck/internal/service"
)

type memorySink struct {
	saved []*domain.Deck
	err   error
}

func (m *memorySink) SaveDeck(_ context.Context, d *domain.Deck) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, d)
	return nil
}

type memoryRevisions struct {
	labels []string
}

func (m *memoryRevisions) Record(_ context.Context, _ *domain.Deck, label string) error {
	m.labels = append(m.labels, label)
	return nil
}

func newDeckService(t *testing.T, opts service.DeckServiceOptions) (*service.DeckService, *service.MockEmitter) {
	t.Helper()
	em := &service.MockEmitter{}
	return service.NewDeckService(em, opts), em
}

func loadDeck(t *testing.T, svc *service.DeckService, d *domain.Deck) {
	t.Helper()
	_, err := svc.Load(context.Background(), d, false)
	require.NoError(t, err)
}

func noticesOfType(em *service.MockEmitter, typ domain.NoticeType) []domain.Notice {
	var out []domain.Notice
	for _, n := range em.Notices() {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

// ── Load ─────────────────────────────────────────────────

func TestDeckService_LoadFull(t *testing.T) {
	svc, em := newDeckService(t, service.DeckServiceOptions{})
	d := deck("d1", slide("s1", textBlock("t1", "hi")))

	got, err := svc.Load(context.Background(), d, false)
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Equal(t, d, svc.Current())
	assert.Equal(t, 0, svc.HistoryDepth())
	assert.Equal(t, 1, em.Count(service.EventDeckChanged))
	assert.Equal(t, []domain.Notice{{Type: domain.NoticeSuccess, Message: "deck loaded"}}, em.Notices())

	loadDeck(t, svc, deck("d2", slide("x")))
	assert.Equal(t, 1, svc.HistoryDepth())
	assert.Equal(t, "d2", svc.Current().ID)
}

func TestDeckService_LoadInvalidDoesNotMutate(t *testing.T) {
	svc, em := newDeckService(t, service.DeckServiceOptions{})
	loadDeck(t, svc, deck("d1", slide("s1")))
	before := svc.Current()

	bad := map[string]any{"id": "d2", "title": "x", "theme": "default", "createdAt": 1, "slides": []any{
		map[string]any{"id": "s1", "layout": "nope", "blocks": []any{}},
	}}
	_, err := svc.Load(context.Background(), bad, false)
	require.Error(t, err)
	var rerr *schema.RepairError
	require.True(t, errors.As(err, &rerr))

	assert.Equal(t, before, svc.Current())
	assert.Equal(t, 0, svc.HistoryDepth())
	assert.Len(t, noticesOfType(em, domain.NoticeError), 1)
	assert.Equal(t, 1, em.Count(service.EventDeckChanged))
}

func TestDeckService_LoadRepairsJSONString(t *testing.T) {
	svc, em := newDeckService(t, service.DeckServiceOptions{})
	raw, err := json.Marshal(deck("d1", slide("s1", textBlock("t1", "hi"))))
	require.NoError(t, err)

	got, err := svc.Load(context.Background(), string(raw), false)
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)
	assert.Len(t, noticesOfType(em, domain.NoticeSuccess), 1)
	assert.Equal(t, []domain.Notice{{Type: domain.NoticeInfo, Message: "auto-repaired invalid input"}}, noticesOfType(em, domain.NoticeInfo))
}

func TestDeckService_LoadPatch(t *testing.T) {
	svc, em := newDeckService(t, service.DeckServiceOptions{})
	loadDeck(t, svc, deck("d1", slide("A"), slide("B")))

	patch := deck("ignored", slide("B", textBlock("t", "new")), slide("C"))
	patch.Title = ""
	patch.Patch = true
	got, err := svc.Load(context.Background(), patch, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "C"}, slideIDs(got))
	assert.Equal(t, "d1", got.ID)
	assert.Equal(t, "Deck d1", got.Title)
	assert.False(t, got.Patch)
	assert.Equal(t, 1, svc.HistoryDepth())
	assert.Contains(t, em.Notices(), domain.Notice{Type: domain.NoticeSuccess, Message: "patch applied"})
}

func TestDeckService_PatchWithoutDeckIsFullLoad(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{})
	p := deck("p1", slide("A"))
	got, err := svc.Load(context.Background(), p, true)
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.False(t, svc.CanUndo())
}

// ── History ──────────────────────────────────────────────

func TestDeckService_UndoRestoresPreviousStates(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{})
	ctx := context.Background()
	loadDeck(t, svc, deck("d", slide("s1", textBlock("t", "v0"))))

	var states []*domain.Deck
	states = append(states, svc.Current())
	for _, html := range []string{"v1", "v2", "v3", "v4"} {
		require.NoError(t, svc.UpdateBlockHTML(ctx, "s1", "t", html))
		states = append(states, svc.Current())
	}

	for n := len(states) - 1; n > 0; n-- {
		require.True(t, svc.Undo(ctx))
		assert.Equal(t, states[n-1], svc.Current(), "after undoing mutation %d", n)
	}
	assert.False(t, svc.Undo(ctx))
}

func TestDeckService_Redo(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{})
	ctx := context.Background()
	loadDeck(t, svc, deck("d", slide("s1", textBlock("t", "v0"))))
	require.NoError(t, svc.UpdateBlockHTML(ctx, "s1", "t", "v1"))
	after := svc.Current()

	require.True(t, svc.Undo(ctx))
	require.True(t, svc.CanRedo())
	require.True(t, svc.Redo(ctx))
	assert.Equal(t, after, svc.Current())
	assert.False(t, svc.Redo(ctx))

	require.True(t, svc.Undo(ctx))
	require.NoError(t, svc.MoveBlockTo(ctx, "s1", "t", 1, 2))
	assert.False(t, svc.CanRedo(), "new mutation must clear redo")
}

func TestDeckService_HistoryLimit(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{HistoryLimit: 3})
	ctx := context.Background()
	loadDeck(t, svc, deck("d", slide("s1", textBlock("t", "v0"))))
	for i := 0; i < 10; i++ {
		require.NoError(t, svc.MoveBlockTo(ctx, "s1", "t", float64(i), 0))
	}
	assert.Equal(t, 3, svc.HistoryDepth())

	undone := 0
	for svc.Undo(ctx) {
		undone++
	}
	assert.Equal(t, 3, undone)
	assert.Equal(t, 6.0, svc.Current().Slides[0].Blocks[0].Frame.X)
}

// ── Direct edits ─────────────────────────────────────────

func TestDeckService_UpdateBlockHTML(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{})
	ctx := context.Background()
	loadDeck(t, svc, deck("d", slide("s1", textBlock("t", "old"), kpiBlock("k"))))

	require.NoError(t, svc.UpdateBlockHTML(ctx, "s1", "t", "<b>new</b>"))
	assert.Equal(t, "<b>new</b>", svc.Current().Slides[0].Blocks[0].Text.HTML)

	assert.ErrorIs(t, svc.UpdateBlockHTML(ctx, "s1", "k", "x"), service.ErrNotTextBlock)
	assert.ErrorIs(t, svc.UpdateBlockHTML(ctx, "s1", "missing", "x"), service.ErrBlockNotFound)
	assert.ErrorIs(t, svc.UpdateBlockHTML(ctx, "nope", "t", "x"), service.ErrSlideNotFound)
	assert.Equal(t, 1, svc.HistoryDepth(), "failed edits must not push history")
}

func TestDeckService_MoveAndResizeKeepIdentity(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{})
	ctx := context.Background()
	loadDeck(t, svc, deck("d", slide("s1", textBlock("t", "a"), kpiBlock("k"))))

	require.NoError(t, svc.MoveBlockTo(ctx, "s1", "k", 600, 400))
	require.NoError(t, svc.ResizeBlock(ctx, "s1", "k", 50, 60))
	b := svc.Current().Slides[0].Blocks[1]
	assert.Equal(t, "k", b.ID)
	assert.Equal(t, domain.Frame{X: 600, Y: 400, W: 50, H: 60}, b.Frame)

	assert.ErrorIs(t, svc.ResizeBlock(ctx, "s1", "k", -1, 10), service.ErrInvalidFrame)

	// deleting the first block leaves the other addressable by id
	require.NoError(t, svc.DeleteBlock(ctx, "s1", "t"))
	require.NoError(t, svc.MoveBlockTo(ctx, "s1", "k", 1, 1))
	assert.Equal(t, 1.0, svc.Current().Slides[0].Blocks[0].Frame.X)
}

func TestDeckService_AddBlock(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{})
	ctx := context.Background()
	loadDeck(t, svc, deck("d", slide("s1")))

	added, err := svc.AddBlock(ctx, "s1", domain.Block{Kind: domain.BlockKindQuote, Frame: domain.Frame{W: 10, H: 10}, Quote: &domain.QuoteBlock{Text: "q"}})
	require.NoError(t, err)
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, added.ID, svc.Current().Slides[0].Blocks[0].ID)

	_, err = svc.AddBlock(ctx, "s1", domain.Block{ID: added.ID, Kind: domain.BlockKindQuote, Quote: &domain.QuoteBlock{Text: "dup"}})
	_, isIssues := schema.AsIssues(err)
	assert.True(t, isIssues, "duplicate id must fail validation: %v", err)
	assert.Len(t, svc.Current().Slides[0].Blocks, 1)
}

func TestDeckService_EditsWithoutDeck(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{})
	ctx := context.Background()
	assert.ErrorIs(t, svc.UpdateBlockHTML(ctx, "s", "b", "x"), service.ErrNoDeck)
	assert.ErrorIs(t, svc.MoveBlockTo(ctx, "s", "b", 0, 0), service.ErrNoDeck)
	assert.ErrorIs(t, svc.DeleteSlide(ctx, "s"), service.ErrNoDeck)
	assert.False(t, svc.Undo(ctx))
	assert.Nil(t, svc.Current())
}

func TestDeckService_CurrentIsACopy(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{})
	loadDeck(t, svc, deck("d", slide("s1", textBlock("t", "a"))))

	c := svc.Current()
	c.Slides[0].Blocks[0].Text.HTML = "tampered"
	c.Slides = nil
	assert.Equal(t, "a", svc.Current().Slides[0].Blocks[0].Text.HTML)
}

// ── Slides & selection ───────────────────────────────────

func TestDeckService_AddSlideBootstrapsDeck(t *testing.T) {
	svc, em := newDeckService(t, service.DeckServiceOptions{})
	ctx := context.Background()

	s, err := svc.AddSlideWithLayout(ctx, domain.LayoutChart)
	require.NoError(t, err)
	d := svc.Current()
	require.NotNil(t, d)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "Untitled deck", d.Title)
	assert.Equal(t, []string{s.ID}, slideIDs(d))
	assert.Equal(t, domain.Selection{SlideID: s.ID}, svc.Selection())
	assert.Equal(t, 1, em.Count(service.EventDeckChanged))

	// the bootstrapped deck is itself valid
	_, issues := svc.Validate(d)
	assert.Empty(t, issues)

	s2, err := svc.AddSlideWithLayout(ctx, domain.LayoutQuote)
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, s2.ID)
	assert.Equal(t, 1, svc.HistoryDepth())

	_, err = svc.AddSlideWithLayout(ctx, "diagonal")
	assert.ErrorIs(t, err, service.ErrInvalidLayout)
}

func TestDeckService_Selection(t *testing.T) {
	svc, em := newDeckService(t, service.DeckServiceOptions{})
	ctx := context.Background()
	loadDeck(t, svc, deck("d", slide("s1", textBlock("t1", "a")), slide("s2", textBlock("t2", "b"))))

	require.NoError(t, svc.SetSelectedBlock(ctx, "t2"))
	assert.Equal(t, domain.Selection{SlideID: "s2", BlockID: "t2"}, svc.Selection())

	assert.ErrorIs(t, svc.SetSelectedBlock(ctx, "t1"), service.ErrBlockNotFound)

	require.NoError(t, svc.SetSelectedSlide(ctx, "s1"))
	assert.Equal(t, domain.Selection{SlideID: "s1"}, svc.Selection())

	assert.ErrorIs(t, svc.SetSelectedSlide(ctx, "zzz"), service.ErrSlideNotFound)
	assert.Equal(t, 2, em.Count(service.EventSelection))

	require.NoError(t, svc.DeleteSlide(ctx, "s1"))
	assert.Equal(t, domain.Selection{}, svc.Selection())
	assert.Equal(t, []string{"s2"}, slideIDs(svc.Current()))
}

// ── Autosave ─────────────────────────────────────────────

func TestDeckService_Autosave(t *testing.T) {
	sink := &memorySink{}
	revs := &memoryRevisions{}
	svc, _ := newDeckService(t, service.DeckServiceOptions{Sink: sink, Revisions: revs})
	ctx := context.Background()

	require.NoError(t, svc.Autosave(ctx))
	assert.Empty(t, sink.saved, "no deck loaded")

	loadDeck(t, svc, deck("d", slide("s1")))
	require.NoError(t, svc.Autosave(ctx))
	require.NoError(t, svc.Autosave(ctx))
	require.Len(t, sink.saved, 1, "unchanged deck is saved once")
	assert.Equal(t, []string{"autosave"}, revs.labels)
	assert.Equal(t, 0, svc.HistoryDepth())

	_, err := svc.AddSlideWithLayout(ctx, domain.LayoutTitle)
	require.NoError(t, err)
	require.NoError(t, svc.Autosave(ctx))
	assert.Len(t, sink.saved, 2)
	assert.Len(t, sink.saved[1].Slides, 2)
}

func TestDeckService_AutosaveError(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	svc, _ := newDeckService(t, service.DeckServiceOptions{Sink: sink})
	loadDeck(t, svc, deck("d", slide("s1")))

	err := svc.Autosave(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	sink.err = nil
	require.NoError(t, svc.Autosave(context.Background()))
	assert.Len(t, sink.saved, 1, "failed save is retried on the next tick")
}
