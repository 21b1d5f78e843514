package domain

import (
	"context"
	"errors"
	"time"
)

type Layout string

const (
	LayoutTitle        Layout = "title"
	LayoutTitleBullets Layout = "title-bullets"
	LayoutTwoColumn    Layout = "two-column"
	LayoutKPICards     Layout = "kpi-cards"
	LayoutChart        Layout = "chart"
	LayoutImage        Layout = "image"
	LayoutQuote        Layout = "quote"
	LayoutGridCards    Layout = "grid-cards"
)

// Layouts is advisory only; it never constrains which block kinds a slide holds.
var Layouts = []Layout{
	LayoutTitle, LayoutTitleBullets, LayoutTwoColumn, LayoutKPICards,
	LayoutChart, LayoutImage, LayoutQuote, LayoutGridCards,
}

// Logical canvas size, 16:9. Frames are expressed in these units.
const (
	CanvasWidth  = 1000.0
	CanvasHeight = 562.5
)

type DeckMeta struct {
	Source     string `json:"source,omitempty"`
	Disclaimer string `json:"disclaimer,omitempty"`
}

type Slide struct {
	ID     string  `json:"id" validate:"required"`
	Layout Layout  `json:"layout"`
	Title  string  `json:"title,omitempty"`
	Notes  string  `json:"notes,omitempty"`
	Blocks []Block `json:"blocks" validate:"unique=ID,dive"`
}

// Deck is the root presentation document. Slide order is display order.
type Deck struct {
	ID        string    `json:"id" validate:"required"`
	Title     string    `json:"title"`
	Theme     string    `json:"theme"`
	CreatedAt int64     `json:"createdAt"` // unix milliseconds
	Slides    []Slide   `json:"slides" validate:"unique=ID,dive"`
	Meta      *DeckMeta `json:"meta,omitempty"`
	Patch     bool      `json:"patch,omitempty"`
}

func (s Slide) Clone() Slide {
	out := s
	out.Blocks = make([]Block, len(s.Blocks))
	for i, b := range s.Blocks {
		out.Blocks[i] = b.Clone()
	}
	return out
}

// BlockIndex returns the position of blockID in the slide, or -1.
func (s Slide) BlockIndex(blockID string) int {
	for i, b := range s.Blocks {
		if b.ID == blockID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy; store snapshots never share nested slices.
func (d *Deck) Clone() *Deck {
	if d == nil {
		return nil
	}
	out := *d
	out.Slides = make([]Slide, len(d.Slides))
	for i, s := range d.Slides {
		out.Slides[i] = s.Clone()
	}
	if d.Meta != nil {
		m := *d.Meta
		out.Meta = &m
	}
	return &out
}

// SlideIndex returns the position of slideID in the deck, or -1.
func (d *Deck) SlideIndex(slideID string) int {
	if d == nil {
		return -1
	}
	for i, s := range d.Slides {
		if s.ID == slideID {
			return i
		}
	}
	return -1
}

// ErrDeckNotFound is returned by repositories when no deck matches the id.
var ErrDeckNotFound = errors.New("deck not found")

// DeckSummary is a lightweight listing row.
type DeckSummary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	SlideCount int       `json:"slideCount"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DeckRepository persists whole decks keyed by deck id.
type DeckRepository interface {
	SaveDeck(ctx context.Context, d *Deck) error
	GetDeck(ctx context.Context, id string) (*Deck, error)
	ListDecks(ctx context.Context) ([]DeckSummary, error)
	DeleteDeck(ctx context.Context, id string) error
	Close() error
}
