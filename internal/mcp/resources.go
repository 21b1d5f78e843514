package mcpserver

import (
	"context"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"

	"slidedeck/internal/domain"
)

const (
	currentDeckURI = "deck://current"
	schemaURI      = "deck://schema"
	slidePrefix    = "deck://slides/"
)

func (s *Server) registerResources() {
	// ── deck://current ─────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		currentDeckURI,
		"Current Deck",
		mcp.WithResourceDescription("The deck open in the editor, null when none is loaded"),
		mcp.WithMIMEType("application/json"),
	), s.handleCurrentDeckResource)

	// ── deck://schema ──────────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		schemaURI,
		"Deck Schema",
		mcp.WithResourceDescription("Layouts, block kinds, chart types, intents and canvas size"),
		mcp.WithMIMEType("application/json"),
	), s.handleSchemaResource)

	// ── deck://slides/{slideId} ────────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			slidePrefix+"{slideId}",
			"Slide of the Current Deck",
		),
		s.handleSlideResource,
	)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleCurrentDeckResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(currentDeckURI, s.decks.Current())
}

// deckSchema describes the closed vocabularies of the document.
type deckSchema struct {
	Layouts      []domain.Layout    `json:"layouts"`
	BlockKinds   []domain.BlockKind `json:"blockKinds"`
	ChartTypes   []domain.ChartType `json:"chartTypes"`
	Intents      []domain.Intent    `json:"intents"`
	CanvasWidth  float64            `json:"canvasWidth"`
	CanvasHeight float64            `json:"canvasHeight"`
}

func (s *Server) handleSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonContents(schemaURI, deckSchema{
		Layouts:      domain.Layouts,
		BlockKinds:   domain.BlockKinds,
		ChartTypes:   domain.ChartTypes,
		Intents:      domain.Intents,
		CanvasWidth:  domain.CanvasWidth,
		CanvasHeight: domain.CanvasHeight,
	})
}

func (s *Server) handleSlideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	slideID := strings.TrimPrefix(uri, slidePrefix)
	if slideID == "" || slideID == uri {
		return nil, fmt.Errorf("could not extract slideId from URI: %s", uri)
	}
	d, err := s.currentDeck()
	if err != nil {
		return nil, err
	}
	i := d.SlideIndex(slideID)
	if i < 0 {
		return nil, fmt.Errorf("slide %s not found", slideID)
	}
	return jsonContents(uri, d.Slides[i])
}
