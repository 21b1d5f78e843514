package mcpserver

import (
	"context"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidedeck/internal/domain"
	"slidedeck/internal/export"
	"slidedeck/internal/service"
	"slidedeck/internal/storage"
)

const deckJSON = `{
	"id": "d1",
	"title": "Q3 Review",
	"theme": "default",
	"createdAt": 1700000000000,
	"slides": [
		{"id": "s1", "layout": "title", "title": "Intro", "blocks": [
			{"id": "b1", "kind": "text", "frame": {"x": 20, "y": 20, "w": 400, "h": 100}, "html": "<p>Hello</p>"}
		]},
		{"id": "s2", "layout": "chart", "blocks": []}
	]
}`

type testEnv struct {
	srv     *Server
	decks   *service.DeckService
	emitter *service.MockEmitter
	repo    *storage.DeckStore
	revs    *storage.RevisionStore
}

func newTestEnv(t *testing.T, requireApproval bool) *testEnv {
	t.Helper()
	em := &service.MockEmitter{}
	db, err := storage.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo := storage.NewDeckStore(db)
	revs := storage.NewRevisionStore(db, 0)

	decks := service.NewDeckService(em, service.DeckServiceOptions{Sink: repo, Revisions: revs})
	exports, err := service.NewExportService(em, service.ExportOptions{Raster: export.RasterOptions{Width: 320}})
	require.NoError(t, err)

	srv := New(Deps{
		Emitter:         em,
		Decks:           decks,
		Exports:         exports,
		Repository:      repo,
		Revisions:       revs,
		RequireApproval: requireApproval,
	})
	return &testEnv{srv: srv, decks: decks, emitter: em, repo: repo, revs: revs}
}

type toolHandler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

func call(t *testing.T, h toolHandler, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := h(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func callErr(t *testing.T, h toolHandler, args map[string]any) error {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	_, err := h(context.Background(), req)
	return err
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func (e *testEnv) load(t *testing.T) {
	t.Helper()
	res := call(t, e.srv.handleLoadDeck, map[string]any{"deck": deckJSON})
	require.False(t, res.IsError, text(t, res))
}

// ── Deck tools ────────────────────────────────────────────

func TestLoadDeck(t *testing.T) {
	env := newTestEnv(t, false)
	res := call(t, env.srv.handleLoadDeck, map[string]any{"deck": deckJSON})
	assert.False(t, res.IsError)
	assert.Equal(t, "Deck d1 now has 2 slides", text(t, res))

	var state domain.EditorState
	require.NoError(t, json.Unmarshal([]byte(text(t, call(t, env.srv.handleGetDeck, nil))), &state))
	assert.Equal(t, "Q3 Review", state.Deck.Title)
	assert.False(t, state.CanUndo)

	// A structured load is not a repair.
	for _, n := range env.emitter.Notices() {
		assert.NotEqual(t, domain.NoticeInfo, n.Type, n.Message)
	}
}

func TestLoadDeck_AcceptsObjectArgument(t *testing.T) {
	env := newTestEnv(t, false)
	var obj map[string]any
	require.NoError(t, json.Unmarshal([]byte(deckJSON), &obj))

	res := call(t, env.srv.handleLoadDeck, map[string]any{"deck": obj})
	assert.False(t, res.IsError, text(t, res))
	assert.Equal(t, "d1", env.decks.Current().ID)
}

func TestLoadDeck_DoubleEncodedIsRepaired(t *testing.T) {
	env := newTestEnv(t, false)
	twice, err := json.Marshal(deckJSON)
	require.NoError(t, err)

	res := call(t, env.srv.handleLoadDeck, map[string]any{"deck": string(twice)})
	require.False(t, res.IsError, text(t, res))
	assert.Equal(t, "d1", env.decks.Current().ID)
	assert.Contains(t, env.emitter.Notices(), domain.Notice{Type: domain.NoticeInfo, Message: "auto-repaired invalid input"})
}

func TestLoadDeck_InvalidChangesNothing(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)

	res := call(t, env.srv.handleLoadDeck, map[string]any{"deck": `{"id":"d2","slides":[{"layout":"nope"}]}`})
	assert.True(t, res.IsError)
	msg := text(t, res)
	assert.Contains(t, msg, "nothing was changed")
	assert.Contains(t, msg, "/slides/0/id")
	assert.Equal(t, "d1", env.decks.Current().ID)
	assert.False(t, env.decks.CanUndo())

	assert.Error(t, callErr(t, env.srv.handleLoadDeck, map[string]any{}))
}

func TestPatchDeck(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)

	patch := `{"id":"d1","title":"","theme":"","createdAt":0,"slides":[
		{"id":"s2","layout":"quote","blocks":[]},
		{"id":"s3","layout":"title","blocks":[]}
	]}`
	res := call(t, env.srv.handlePatchDeck, map[string]any{"deck": patch})
	require.False(t, res.IsError, text(t, res))

	d := env.decks.Current()
	require.Len(t, d.Slides, 3)
	assert.Equal(t, domain.LayoutQuote, d.Slides[1].Layout)
	assert.Equal(t, "s3", d.Slides[2].ID)
	assert.Equal(t, "Q3 Review", d.Title)
}

func TestValidateDeck(t *testing.T) {
	env := newTestEnv(t, false)

	var out struct {
		Valid  bool `json:"valid"`
		Issues []struct {
			Path string `json:"path"`
			Code string `json:"code"`
		} `json:"issues"`
	}
	res := call(t, env.srv.handleValidateDeck, map[string]any{"deck": `{"id":"d1","title":"t","theme":"x","createdAt":1,"slides":[{"id":"s1","layout":"title","blocks":[{"id":"b1","kind":"chart","frame":{"x":0,"y":0,"w":1,"h":1},"chartType":"donut","dataset":[]}]}]}`})
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.False(t, out.Valid)
	require.NotEmpty(t, out.Issues)
	assert.Equal(t, "/slides/0/blocks/0/chartType", out.Issues[0].Path)
	assert.Nil(t, env.decks.Current(), "validate never loads")

	res = call(t, env.srv.handleValidateDeck, map[string]any{"deck": deckJSON})
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &out))
	assert.True(t, out.Valid)
	assert.Empty(t, out.Issues)
}

func TestUndoRedo(t *testing.T) {
	env := newTestEnv(t, false)
	assert.Equal(t, "Nothing to undo", text(t, call(t, env.srv.handleUndo, nil)))

	env.load(t)
	call(t, env.srv.handleAddSlide, map[string]any{"layout": "title"})
	require.Len(t, env.decks.Current().Slides, 3)

	assert.Contains(t, text(t, call(t, env.srv.handleUndo, nil)), "Undone")
	assert.Len(t, env.decks.Current().Slides, 2)
	assert.Equal(t, "Redone", text(t, call(t, env.srv.handleRedo, nil)))
	assert.Len(t, env.decks.Current().Slides, 3)
	assert.Equal(t, "Nothing to redo", text(t, call(t, env.srv.handleRedo, nil)))
}

func TestSelectSlideAndBlock(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)

	call(t, env.srv.handleSelectBlock, map[string]any{"blockId": "b1"})
	assert.Equal(t, domain.Selection{SlideID: "s1", BlockID: "b1"}, env.decks.Selection())

	call(t, env.srv.handleSelectSlide, map[string]any{"slideId": "s2"})
	assert.Equal(t, domain.Selection{SlideID: "s2"}, env.decks.Selection())

	assert.Error(t, callErr(t, env.srv.handleSelectSlide, map[string]any{"slideId": "missing"}))
}

// ── Slide and block tools ─────────────────────────────────

func TestAddSlideBootstrapsDeck(t *testing.T) {
	env := newTestEnv(t, false)
	res := call(t, env.srv.handleAddSlide, map[string]any{"layout": "kpi-cards"})

	var slide domain.Slide
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &slide))
	assert.Equal(t, domain.LayoutKPICards, slide.Layout)
	assert.Equal(t, slide.ID, env.decks.Selection().SlideID)
	assert.Equal(t, "Untitled deck", env.decks.Current().Title)

	assert.Error(t, callErr(t, env.srv.handleAddSlide, map[string]any{"layout": "spiral"}))
}

func TestAddBlock_AutoPlacement(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)

	res := call(t, env.srv.handleAddBlock, map[string]any{
		"slideId": "s2",
		"block":   `{"kind":"kpi","label":"ARR","value":"$4M","intent":"good"}`,
	})
	require.False(t, res.IsError, text(t, res))

	var added domain.Block
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &added))
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, domain.Frame{X: Padding, Y: Padding, W: 200, H: 110}, added.Frame)

	// The next block on the same slide must not overlap the first.
	res = call(t, env.srv.handleAddBlock, map[string]any{
		"slideId": "s2",
		"block":   `{"kind":"kpi","label":"NRR","value":"120%"}`,
	})
	var second domain.Block
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &second))
	a := rect{added.Frame.X, added.Frame.Y, added.Frame.W, added.Frame.H}
	b := rect{second.Frame.X, second.Frame.Y, second.Frame.W, second.Frame.H}
	assert.False(t, a.intersects(b))
}

func TestAddBlock_ExplicitFrameAndSelectedSlide(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)
	call(t, env.srv.handleSelectSlide, map[string]any{"slideId": "s1"})

	res := call(t, env.srv.handleAddBlock, map[string]any{
		"block":  map[string]any{"kind": "bullet", "items": []any{"a", "b"}},
		"x":      500.0,
		"y":      300.0,
		"width":  300.0,
		"height": 200.0,
	})
	require.False(t, res.IsError, text(t, res))
	blocks := env.decks.Current().Slides[0].Blocks
	require.Len(t, blocks, 2)
	assert.Equal(t, domain.Frame{X: 500, Y: 300, W: 300, H: 200}, blocks[1].Frame)
	assert.Equal(t, []string{"a", "b"}, blocks[1].Bullet.Items)
}

func TestAddBlock_InvalidBlockIsRejected(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)

	res := call(t, env.srv.handleAddBlock, map[string]any{"slideId": "s2", "block": `{"kind":"chart","chartType":"bar","dataset":[]}`})
	assert.True(t, res.IsError)
	assert.Empty(t, env.decks.Current().Slides[1].Blocks)

	assert.Error(t, callErr(t, env.srv.handleAddBlock, map[string]any{"slideId": "s2", "block": `{"kind":"hologram"}`}))
	assert.Error(t, callErr(t, env.srv.handleAddBlock, map[string]any{"block": `{"kind":"text","html":""}`}), "no slide selected")
}

func TestBlockEditsLocateSlide(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)

	call(t, env.srv.handleUpdateBlockHTML, map[string]any{"blockId": "b1", "html": "<p>Bye</p>"})
	call(t, env.srv.handleMoveBlock, map[string]any{"blockId": "b1", "x": 100.0, "y": 50.0})
	call(t, env.srv.handleResizeBlock, map[string]any{"blockId": "b1", "width": 300.0, "height": 80.0})

	b := env.decks.Current().Slides[0].Blocks[0]
	assert.Equal(t, "b1", b.ID)
	assert.Equal(t, "<p>Bye</p>", b.Text.HTML)
	assert.Equal(t, domain.Frame{X: 100, Y: 50, W: 300, H: 80}, b.Frame)

	assert.Error(t, callErr(t, env.srv.handleMoveBlock, map[string]any{"blockId": "nope", "x": 1.0, "y": 1.0}))
}

func TestDeleteWithoutApproval(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)

	assert.Equal(t, "Deleted block b1", text(t, call(t, env.srv.handleDeleteBlock, map[string]any{"blockId": "b1"})))
	assert.Equal(t, "Deleted slide s2", text(t, call(t, env.srv.handleDeleteSlide, map[string]any{"slideId": "s2"})))
	d := env.decks.Current()
	require.Len(t, d.Slides, 1)
	assert.Empty(t, d.Slides[0].Blocks)
}

func pendingApproval(t *testing.T, em *service.MockEmitter) domain.PendingAction {
	t.Helper()
	var action domain.PendingAction
	require.Eventually(t, func() bool {
		for _, e := range em.Snapshot() {
			if e.Event == service.EventApprovalRequired {
				action = e.Data.(domain.PendingAction)
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	return action
}

func TestDeleteSlide_Approved(t *testing.T) {
	env := newTestEnv(t, true)
	env.load(t)

	done := make(chan *mcp.CallToolResult, 1)
	go func() {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"slideId": "s1"}
		res, _ := env.srv.handleDeleteSlide(context.Background(), req)
		done <- res
	}()

	action := pendingApproval(t, env.emitter)
	assert.Equal(t, "delete_slide", action.Tool)
	assert.Contains(t, action.Metadata, `"s1"`)
	require.True(t, env.srv.Approve(action.ID))

	select {
	case res := <-done:
		assert.Equal(t, "Deleted slide s1", text(t, res))
	case <-time.After(2 * time.Second):
		t.Fatal("delete_slide did not return")
	}
	assert.Len(t, env.decks.Current().Slides, 1)
	assert.False(t, env.srv.Approve(action.ID), "resolved actions are gone")
}

func TestDeleteBlock_Rejected(t *testing.T) {
	env := newTestEnv(t, true)
	env.load(t)

	done := make(chan *mcp.CallToolResult, 1)
	go func() {
		req := mcp.CallToolRequest{}
		req.Params.Arguments = map[string]any{"blockId": "b1"}
		res, _ := env.srv.handleDeleteBlock(context.Background(), req)
		done <- res
	}()

	action := pendingApproval(t, env.emitter)
	require.True(t, env.srv.Reject(action.ID))

	select {
	case res := <-done:
		assert.Equal(t, "Action rejected by user", text(t, res))
	case <-time.After(2 * time.Second):
		t.Fatal("delete_block did not return")
	}
	assert.Len(t, env.decks.Current().Slides[0].Blocks, 1)
}

func TestApprovalQueue_ContextCancel(t *testing.T) {
	em := &service.MockEmitter{}
	q := NewApprovalQueue(em, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := q.Request(ctx, "delete_slide", "Delete slide")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, em.Count(service.EventApprovalDismissed))
}

// ── Export and library tools ──────────────────────────────

func TestExportTools(t *testing.T) {
	env := newTestEnv(t, false)
	assert.Contains(t, text(t, call(t, env.srv.handleExport(service.ExportPPTX), nil)), "No deck loaded")

	env.load(t)
	var pptx exportSummary
	require.NoError(t, json.Unmarshal([]byte(text(t, call(t, env.srv.handleExport(service.ExportPPTX), nil))), &pptx))
	assert.Equal(t, service.ExportPPTX, pptx.Kind)
	assert.Greater(t, pptx.Bytes, 0)

	var images exportSummary
	require.NoError(t, json.Unmarshal([]byte(text(t, call(t, env.srv.handleExport(service.ExportImages), nil))), &images))
	assert.Equal(t, 2, images.Images)
}

func TestLibraryTools(t *testing.T) {
	env := newTestEnv(t, false)
	env.load(t)
	ctx := context.Background()

	assert.Equal(t, "Saved deck d1", text(t, call(t, env.srv.handleSaveDeck, nil)))
	var list []domain.DeckSummary
	require.NoError(t, json.Unmarshal([]byte(text(t, call(t, env.srv.handleListDecks, nil))), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].SlideCount)

	require.NoError(t, env.decks.Autosave(ctx))
	call(t, env.srv.handleAddSlide, map[string]any{"layout": "title"})
	require.Len(t, env.decks.Current().Slides, 3)

	var revs []storage.Revision
	require.NoError(t, json.Unmarshal([]byte(text(t, call(t, env.srv.handleListRevisions, nil))), &revs))
	require.Len(t, revs, 2)
	assert.Equal(t, "autosave", revs[0].Label)
	assert.Equal(t, "manual", revs[1].Label)

	res := call(t, env.srv.handleRestoreRevision, map[string]any{"revisionId": revs[0].ID})
	assert.Contains(t, text(t, res), "Restored revision")
	assert.Len(t, env.decks.Current().Slides, 2)

	call(t, env.srv.handleAddSlide, map[string]any{"layout": "title"})
	res = call(t, env.srv.handleOpenDeck, map[string]any{"deckId": "d1"})
	assert.Equal(t, "Opened deck d1 (2 slides)", text(t, res))

	assert.Error(t, callErr(t, env.srv.handleOpenDeck, map[string]any{"deckId": "missing"}))
}

// ── Resources and prompts ─────────────────────────────────

func readResource(t *testing.T, h func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error), uri string) string {
	t.Helper()
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	contents, err := h(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, contents, 1)
	return contents[0].(mcp.TextResourceContents).Text
}

func TestResources(t *testing.T) {
	env := newTestEnv(t, false)
	assert.Equal(t, "null", readResource(t, env.srv.handleCurrentDeckResource, currentDeckURI))

	var sch deckSchema
	require.NoError(t, json.Unmarshal([]byte(readResource(t, env.srv.handleSchemaResource, schemaURI)), &sch))
	assert.Equal(t, domain.Layouts, sch.Layouts)
	assert.Equal(t, 562.5, sch.CanvasHeight)

	env.load(t)
	var slide domain.Slide
	require.NoError(t, json.Unmarshal([]byte(readResource(t, env.srv.handleSlideResource, "deck://slides/s1")), &slide))
	assert.Equal(t, "Intro", slide.Title)

	req := mcp.ReadResourceRequest{}
	req.Params.URI = "deck://slides/zzz"
	_, err := env.srv.handleSlideResource(context.Background(), req)
	assert.Error(t, err)
}

func TestBuildDeckPrompt(t *testing.T) {
	env := newTestEnv(t, false)
	req := mcp.GetPromptRequest{}
	req.Params.Arguments = map[string]string{"topic": "Q3 results"}
	res, err := env.srv.handleBuildDeckPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	body := res.Messages[0].Content.(mcp.TextContent).Text
	assert.True(t, strings.Contains(body, `"Q3 results"`))
	assert.Contains(t, body, "general business audience")
}
