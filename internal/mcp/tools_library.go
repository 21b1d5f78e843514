package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerLibraryTools() {
	if s.repo != nil {
		// ── list_decks ─────────────────────────────────────
		s.mcp.AddTool(mcp.NewTool("list_decks",
			mcp.WithDescription("List saved decks, most recently saved first"),
		), s.handleListDecks)

		// ── open_deck ──────────────────────────────────────
		s.mcp.AddTool(mcp.NewTool("open_deck",
			mcp.WithDescription("Load a saved deck into the editor (undoable)"),
			mcp.WithString("deckId", mcp.Description("ID of the saved deck"), mcp.Required()),
		), s.handleOpenDeck)

		// ── save_deck ──────────────────────────────────────
		s.mcp.AddTool(mcp.NewTool("save_deck",
			mcp.WithDescription("Save the current deck now instead of waiting for autosave"),
		), s.handleSaveDeck)
	}

	if s.revisions != nil {
		// ── list_revisions ─────────────────────────────────
		s.mcp.AddTool(mcp.NewTool("list_revisions",
			mcp.WithDescription("List saved revisions of a deck, newest first"),
			mcp.WithString("deckId", mcp.Description("Deck ID (optional, defaults to the current deck)")),
		), s.handleListRevisions)

		// ── restore_revision ───────────────────────────────
		s.mcp.AddTool(mcp.NewTool("restore_revision",
			mcp.WithDescription("Load a saved revision into the editor (undoable)"),
			mcp.WithString("revisionId", mcp.Description("Revision ID"), mcp.Required()),
		), s.handleRestoreRevision)
	}
}

func (s *Server) handleListDecks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	decks, err := s.repo.ListDecks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	return jsonResult(decks)
}

func (s *Server) handleOpenDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deckID, err := requireString(req, "deckId")
	if err != nil {
		return nil, err
	}
	saved, err := s.repo.GetDeck(ctx, deckID)
	if err != nil {
		return nil, err
	}
	d, err := s.decks.Load(ctx, saved, false)
	if err != nil {
		return loadFailure(err), nil
	}
	return textResult(fmt.Sprintf("Opened deck %s (%d slides)", d.ID, len(d.Slides))), nil
}

func (s *Server) handleSaveDeck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	d, err := s.currentDeck()
	if err != nil {
		return nil, err
	}
	if err := s.repo.SaveDeck(ctx, d); err != nil {
		return nil, fmt.Errorf("save deck: %w", err)
	}
	if s.revisions != nil {
		if err := s.revisions.Record(ctx, d, "manual"); err != nil {
			return nil, fmt.Errorf("record revision: %w", err)
		}
	}
	return textResult(fmt.Sprintf("Saved deck %s", d.ID)), nil
}

func (s *Server) handleListRevisions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deckID := req.GetString("deckId", "")
	if deckID == "" {
		d, err := s.currentDeck()
		if err != nil {
			return nil, err
		}
		deckID = d.ID
	}
	revs, err := s.revisions.List(ctx, deckID)
	if err != nil {
		return nil, err
	}
	return jsonResult(revs)
}

func (s *Server) handleRestoreRevision(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	revID, err := requireString(req, "revisionId")
	if err != nil {
		return nil, err
	}
	rev, err := s.revisions.Get(ctx, revID)
	if err != nil {
		return nil, err
	}
	if _, err := s.decks.Load(ctx, rev.Deck, false); err != nil {
		return loadFailure(err), nil
	}
	return textResult(fmt.Sprintf("Restored revision %s (%s)", rev.ID, rev.Label)), nil
}
