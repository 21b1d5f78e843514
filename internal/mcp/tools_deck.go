package mcpserver

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"slidedeck/internal/schema"
)

func (s *Server) registerDeckTools() {
	// ── get_deck ───────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_deck",
		mcp.WithDescription("Get the current deck, selection and undo/redo availability"),
	), s.handleGetDeck)

	// ── load_deck ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("load_deck",
		mcp.WithDescription("Replace the current deck with a complete deck document. Every block needs an id, kind and frame."),
		mcp.WithString("deck", mcp.Description("Deck JSON: {id, title, theme, createdAt, slides:[{id, layout, title?, notes?, blocks:[...]}]}"), mcp.Required()),
	), s.handleLoadDeck)

	// ── patch_deck ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("patch_deck",
		mcp.WithDescription("Merge a partial deck into the current one. Slides are matched by id and replaced whole; new ids are appended. Empty title/theme keep the current values."),
		mcp.WithString("deck", mcp.Description("Partial deck JSON containing only the slides to add or replace"), mcp.Required()),
	), s.handlePatchDeck)

	// ── validate_deck ──────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("validate_deck",
		mcp.WithDescription("Check a deck document without loading it. Returns every issue with its JSON pointer path."),
		mcp.WithString("deck", mcp.Description("Deck JSON to check"), mcp.Required()),
	), s.handleValidateDeck)

	// ── undo / redo ────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Undo the last change to the deck"),
	), s.handleUndo)
	s.mcp.AddTool(mcp.NewTool("redo",
		mcp.WithDescription("Redo the last undone change"),
	), s.handleRedo)

	// ── select_slide / select_block ────────────────────
	s.mcp.AddTool(mcp.NewTool("select_slide",
		mcp.WithDescription("Select a slide. Tools that accept slideId default to the selected slide."),
		mcp.WithString("slideId", mcp.Description("ID of the slide to select"), mcp.Required()),
	), s.handleSelectSlide)
	s.mcp.AddTool(mcp.NewTool("select_block",
		mcp.WithDescription("Select a block (and the slide holding it). An empty blockId clears the block selection."),
		mcp.WithString("blockId", mcp.Description("ID of the block to select")),
	), s.handleSelectBlock)
}

// deckArg returns the deck argument in a form the validator accepts: objects
// as sent, valid JSON text as raw JSON, anything else as text for repair.
func deckArg(req mcp.CallToolRequest) (any, error) {
	switch v := req.GetArguments()["deck"].(type) {
	case nil:
		return nil, fmt.Errorf("deck is required")
	case string:
		if json.Valid([]byte(v)) {
			return json.RawMessage(v), nil
		}
		return v, nil
	default:
		return v, nil
	}
}

// loadFailure turns a rejected document into a tool error listing the issues.
func loadFailure(err error) *mcp.CallToolResult {
	if iss, ok := schema.AsIssues(err); ok {
		return mcp.NewToolResultError("deck rejected, nothing was changed:\n" + iss.Format())
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) handleGetDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.decks.State())
}

func (s *Server) handleLoadDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.load(ctx, req, false)
}

func (s *Server) handlePatchDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.load(ctx, req, true)
}

func (s *Server) load(ctx context.Context, req mcp.CallToolRequest, isPatch bool) (*mcp.CallToolResult, error) {
	input, err := deckArg(req)
	if err != nil {
		return nil, err
	}
	d, err := s.decks.Load(ctx, input, isPatch)
	if err != nil {
		return loadFailure(err), nil
	}
	return textResult(fmt.Sprintf("Deck %s now has %d slides", d.ID, len(d.Slides))), nil
}

func (s *Server) handleValidateDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := deckArg(req)
	if err != nil {
		return nil, err
	}
	d, iss := s.decks.Validate(input)
	if iss == nil {
		iss = schema.Issues{}
	}
	return jsonResult(map[string]any{
		"valid":  d != nil,
		"issues": iss,
	})
}

func (s *Server) handleUndo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.decks.Undo(ctx) {
		return textResult("Nothing to undo"), nil
	}
	return textResult(fmt.Sprintf("Undone (%d steps left)", s.decks.HistoryDepth())), nil
}

func (s *Server) handleRedo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.decks.Redo(ctx) {
		return textResult("Nothing to redo"), nil
	}
	return textResult("Redone"), nil
}

func (s *Server) handleSelectSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, err := requireString(req, "slideId")
	if err != nil {
		return nil, err
	}
	if err := s.decks.SetSelectedSlide(ctx, slideID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Selected slide %s", slideID)), nil
}

func (s *Server) handleSelectBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	blockID := req.GetString("blockId", "")
	if err := s.decks.SetSelectedBlock(ctx, blockID); err != nil {
		return nil, err
	}
	if blockID == "" {
		return textResult("Block selection cleared"), nil
	}
	return jsonResult(s.decks.Selection())
}
