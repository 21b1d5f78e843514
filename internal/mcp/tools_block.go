package mcpserver

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"slidedeck/internal/domain"
)

func (s *Server) registerBlockTools() {
	// ── add_block ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_block",
		mcp.WithDescription("Add a block to a slide. Without x/y the block is placed in the first free spot; without width/height a per-kind default size is used."),
		mcp.WithString("slideId", mcp.Description("Slide ID (optional, defaults to the selected slide)")),
		mcp.WithString("block",
			mcp.Description(`Block JSON without frame, e.g. {"kind":"text","html":"<p>Hi</p>"}, {"kind":"bullet","items":["a"]}, {"kind":"kpi","label":"ARR","value":"$4M","delta":"+12%","intent":"good"}, {"kind":"quote","text":"...","by":"..."}, {"kind":"image","dataUrl":"data:image/png;base64,..."}, {"kind":"chart","chartType":"bar","dataset":[{"name":"2024","values":[1,2]}],"xLabels":["Q1","Q2"]}`),
			mcp.Required(),
		),
		mcp.WithNumber("x", mcp.Description("X position in slide units (0-1000)")),
		mcp.WithNumber("y", mcp.Description("Y position in slide units (0-562.5)")),
		mcp.WithNumber("width", mcp.Description("Width in slide units")),
		mcp.WithNumber("height", mcp.Description("Height in slide units")),
	), s.handleAddBlock)

	// ── update_block_html ──────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_block_html",
		mcp.WithDescription("Replace the HTML of a text block"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("html", mcp.Description("New inline HTML (p, b, i, br, ul/li)"), mcp.Required()),
		mcp.WithString("slideId", mcp.Description("Slide ID (optional, looked up from the block)")),
	), s.handleUpdateBlockHTML)

	// ── move_block ─────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("move_block",
		mcp.WithDescription("Move a block to a new position on its slide"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithNumber("x", mcp.Description("New X position"), mcp.Required()),
		mcp.WithNumber("y", mcp.Description("New Y position"), mcp.Required()),
		mcp.WithString("slideId", mcp.Description("Slide ID (optional, looked up from the block)")),
	), s.handleMoveBlock)

	// ── resize_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("resize_block",
		mcp.WithDescription("Resize a block"),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithNumber("width", mcp.Description("New width"), mcp.Required()),
		mcp.WithNumber("height", mcp.Description("New height"), mcp.Required()),
		mcp.WithString("slideId", mcp.Description("Slide ID (optional, looked up from the block)")),
	), s.handleResizeBlock)

	// ── delete_block ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_block",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a block. May require user approval."),
		mcp.WithString("blockId", mcp.Description("Block ID"), mcp.Required()),
		mcp.WithString("slideId", mcp.Description("Slide ID (optional, looked up from the block)")),
	), s.handleDeleteBlock)
}

// blockArg decodes the block argument, given as JSON text or an object.
func blockArg(req mcp.CallToolRequest) (domain.Block, error) {
	var raw []byte
	switch v := req.GetArguments()["block"].(type) {
	case nil:
		return domain.Block{}, fmt.Errorf("block is required")
	case string:
		raw = []byte(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return domain.Block{}, fmt.Errorf("encode block: %w", err)
		}
		raw = data
	}
	var b domain.Block
	if err := json.Unmarshal(raw, &b); err != nil {
		return domain.Block{}, fmt.Errorf("invalid block: %w", err)
	}
	return b, nil
}

func (s *Server) handleAddBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, err := s.resolveSlideID(req)
	if err != nil {
		return nil, err
	}
	b, err := blockArg(req)
	if err != nil {
		return nil, err
	}
	d, err := s.currentDeck()
	if err != nil {
		return nil, err
	}
	i := d.SlideIndex(slideID)
	if i < 0 {
		return nil, fmt.Errorf("slide %s not found", slideID)
	}

	defW, defH := DefaultSize(b.Kind)
	if b.Frame.W > 0 && b.Frame.H > 0 {
		defW, defH = b.Frame.W, b.Frame.H
	}
	b.Frame.W = req.GetFloat("width", defW)
	b.Frame.H = req.GetFloat("height", defH)
	args := req.GetArguments()
	_, hasX := args["x"]
	_, hasY := args["y"]
	if hasX && hasY {
		b.Frame.X = req.GetFloat("x", 0)
		b.Frame.Y = req.GetFloat("y", 0)
	} else {
		b.Frame.X, b.Frame.Y, _ = s.layout.NextPosition(d.Slides[i].Blocks, b.Frame.W, b.Frame.H)
	}

	added, err := s.decks.AddBlock(ctx, slideID, b)
	if err != nil {
		return loadFailure(err), nil
	}
	return jsonResult(added)
}

func (s *Server) handleUpdateBlockHTML(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, blockID, err := s.locateBlock(req)
	if err != nil {
		return nil, err
	}
	if err := s.decks.UpdateBlockHTML(ctx, slideID, blockID, req.GetString("html", "")); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Updated block %s", blockID)), nil
}

func (s *Server) handleMoveBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, blockID, err := s.locateBlock(req)
	if err != nil {
		return nil, err
	}
	x, y := req.GetFloat("x", 0), req.GetFloat("y", 0)
	if err := s.decks.MoveBlockTo(ctx, slideID, blockID, x, y); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Moved block %s to (%.0f, %.0f)", blockID, x, y)), nil
}

func (s *Server) handleResizeBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, blockID, err := s.locateBlock(req)
	if err != nil {
		return nil, err
	}
	w, h := req.GetFloat("width", 0), req.GetFloat("height", 0)
	if err := s.decks.ResizeBlock(ctx, slideID, blockID, w, h); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Resized block %s to %.0fx%.0f", blockID, w, h)), nil
}

func (s *Server) handleDeleteBlock(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, blockID, err := s.locateBlock(req)
	if err != nil {
		return nil, err
	}

	meta := fmt.Sprintf(`{"slideId":%q,"blockIds":[%q]}`, slideID, blockID)
	approved, err := s.approval.Request(ctx, "delete_block", fmt.Sprintf("Delete block %s from slide %s", blockID, slideID), meta)
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	if err := s.decks.DeleteBlock(ctx, slideID, blockID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Deleted block %s", blockID)), nil
}
