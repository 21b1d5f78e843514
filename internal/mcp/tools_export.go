package mcpserver

import (
	"context"
	"encoding/base64"

	"github.com/mark3labs/mcp-go/mcp"

	"slidedeck/internal/service"
)

// exportSummary keeps tool output small; payloads go to the artifact store.
type exportSummary struct {
	Kind      service.ExportKind `json:"kind"`
	DeckID    string             `json:"deckId"`
	Bytes     int                `json:"bytes,omitempty"`
	Images    int                `json:"images,omitempty"`
	Locations []string           `json:"locations,omitempty"`
}

func (s *Server) registerExportTools() {
	s.mcp.AddTool(mcp.NewTool("export_pptx",
		mcp.WithDescription("Export the current deck as a PowerPoint file"),
	), s.handleExport(service.ExportPPTX))

	s.mcp.AddTool(mcp.NewTool("export_images",
		mcp.WithDescription("Render every slide of the current deck as a PNG image"),
	), s.handleExport(service.ExportImages))
}

func (s *Server) handleExport(kind service.ExportKind) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := s.exports.Export(ctx, kind, s.decks.Current())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res == nil {
			return textResult("No deck loaded, nothing to export"), nil
		}
		sum := exportSummary{Kind: res.Kind, DeckID: res.DeckID, Images: len(res.DataURIs), Locations: res.Locations}
		if res.Base64 != "" {
			sum.Bytes = base64.StdEncoding.DecodedLen(len(res.Base64))
		}
		return jsonResult(sum)
	}
}
