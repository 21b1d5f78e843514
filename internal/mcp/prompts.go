package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("build_deck",
		mcp.WithPromptDescription("Guide through building a complete slide deck on a topic"),
		mcp.WithArgument("topic",
			mcp.ArgumentDescription("Topic or title of the presentation"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("audience",
			mcp.ArgumentDescription("Who the deck is for (optional)"),
		),
	), s.handleBuildDeckPrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("revise_slide",
		mcp.WithPromptDescription("Rework one slide of the current deck without touching the others"),
		mcp.WithArgument("slideId",
			mcp.ArgumentDescription("ID of the slide to revise"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("goal",
			mcp.ArgumentDescription("What the revision should achieve"),
			mcp.RequiredArgument(),
		),
	), s.handleReviseSlidePrompt)
}

func (s *Server) handleBuildDeckPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := req.Params.Arguments["topic"]
	audience := req.Params.Arguments["audience"]
	if audience == "" {
		audience = "a general business audience"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Build a deck about: %s", topic),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Build a slide deck about "%s" for %s. Follow these steps:

1. Read deck://schema for the allowed layouts, block kinds, chart types and the canvas size
2. Draft the whole deck as one document and call validate_deck until it reports no issues
3. Load it with load_deck. Give every slide and block a unique id
4. Open with a title slide, close with a summary or next-steps slide
5. Use kpi blocks for headline numbers and chart blocks (bar, line or pie) for trends
6. Keep every block frame inside the 1000 x 562.5 canvas and avoid overlaps

For later changes send only the affected slides with patch_deck; a patched slide replaces the existing slide with the same id entirely.`, topic, audience),
				},
			},
		},
	}, nil
}

func (s *Server) handleReviseSlidePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	slideID := req.Params.Arguments["slideId"]
	goal := req.Params.Arguments["goal"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Revise slide %s", slideID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Revise slide "%s" of the current deck so that it %s. Follow these steps:

1. Read deck://slides/%s to get the slide as it is now
2. Edit the slide, keeping the ids of the blocks you keep
3. Send the complete slide back with patch_deck ({"id": <deck id>, "slides": [<the slide>]})
4. Check the result with get_deck; use undo if the change went wrong`, slideID, goal, slideID),
				},
			},
		},
	}, nil
}
