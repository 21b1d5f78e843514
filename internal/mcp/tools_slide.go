package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"slidedeck/internal/domain"
)

func layoutNames() []string {
	out := make([]string, len(domain.Layouts))
	for i, l := range domain.Layouts {
		out[i] = string(l)
	}
	return out
}

func (s *Server) registerSlideTools() {
	// ── add_slide ──────────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("add_slide",
		mcp.WithDescription("Append an empty slide and select it. Creates an untitled deck when none is loaded. The layout is advisory only."),
		mcp.WithString("layout",
			mcp.Description("Advisory layout of the new slide"),
			mcp.Enum(layoutNames()...),
			mcp.Required(),
		),
	), s.handleAddSlide)

	// ── delete_slide ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("delete_slide",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete a slide and all its blocks. May require user approval."),
		mcp.WithString("slideId", mcp.Description("ID of the slide to delete"), mcp.Required()),
	), s.handleDeleteSlide)
}

func (s *Server) handleAddSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	layout, err := requireString(req, "layout")
	if err != nil {
		return nil, err
	}
	slide, err := s.decks.AddSlideWithLayout(ctx, domain.Layout(layout))
	if err != nil {
		return nil, err
	}
	return jsonResult(slide)
}

func (s *Server) handleDeleteSlide(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slideID, err := requireString(req, "slideId")
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

	meta := fmt.Sprintf(`{"slideIds":[%q]}`, slideID)
	desc := fmt.Sprintf("Delete slide %d (%s) with %d blocks", i+1, slideID, len(d.Slides[i].Blocks))
	approved, err := s.approval.Request(ctx, "delete_slide", desc, meta)
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	if err := s.decks.DeleteSlide(ctx, slideID); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Deleted slide %s", slideID)), nil
}
