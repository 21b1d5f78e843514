package export

import (
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"

	"slidedeck/internal/domain"
)

// Physical slide size of a 16:9 presentation, in EMU.
const (
	SlideWidthEMU  int64 = 12192000
	SlideHeightEMU int64 = 6858000
)

// EMUPerUnit converts normalized frame units to EMU.
const EMUPerUnit = float64(SlideWidthEMU) / domain.CanvasWidth

// ChartPalette colours series (or pie slices) in order, cycling.
var ChartPalette = []string{"4F46E5", "10B981", "F59E0B", "EF4444"}

var ErrNilDeck = errors.New("export: nil deck")

// Presentation is the native-document object model of a deck.
type Presentation struct {
	Title  string
	Theme  string
	Slides []NativeSlide
}

type NativeSlide struct {
	ID     string
	Title  string
	Notes  string
	Shapes []Shape
}

// Rect is a position and size in EMU.
type Rect struct {
	X, Y, W, H int64
}

func (r Rect) Bounds() Rect { return r }

// Shape is one of *TextBox, *Picture or *Chart.
type Shape interface {
	Bounds() Rect
}

type TextRun struct {
	Text   string
	Bold   bool
	Italic bool
}

type Paragraph struct {
	Runs   []TextRun
	Bullet bool
}

// Text joins the runs of the paragraph.
func (p Paragraph) Text() string {
	s := ""
	for _, r := range p.Runs {
		s += r.Text
	}
	return s
}

type TextBox struct {
	Rect
	Paragraphs []Paragraph
	Title      bool
}

type Picture struct {
	Rect
	MediaType   string
	Data        []byte
	Description string
}

type ChartSeries struct {
	Name   string
	Values []float64
}

type Chart struct {
	Rect
	Type       domain.ChartType
	Categories []string
	Series     []ChartSeries
	Palette    []string
	YLabel     string
}

// titleFrame is where slide titles go, in frame units.
var titleFrame = domain.Frame{X: 40, Y: 16, W: 920, H: 60}

// BuildPresentation projects d onto the native-document model.
func BuildPresentation(d *domain.Deck) (*Presentation, error) {
	if d == nil {
		return nil, ErrNilDeck
	}
	p := &Presentation{Title: d.Title, Theme: d.Theme, Slides: make([]NativeSlide, 0, len(d.Slides))}
	for _, s := range d.Slides {
		ns := NativeSlide{ID: s.ID, Title: s.Title, Notes: s.Notes}
		if s.Title != "" {
			ns.Shapes = append(ns.Shapes, &TextBox{
				Rect:       ToEMU(titleFrame),
				Paragraphs: []Paragraph{{Runs: []TextRun{{Text: s.Title, Bold: true}}}},
				Title:      true,
			})
		}
		for _, b := range s.Blocks {
			shape, err := blockShape(b)
			if err != nil {
				return nil, fmt.Errorf("slide %s block %s: %w", s.ID, b.ID, err)
			}
			if shape != nil {
				ns.Shapes = append(ns.Shapes, shape)
			}
		}
		p.Slides = append(p.Slides, ns)
	}
	return p, nil
}

// ToEMU rescales a frame by EMUPerUnit.
func ToEMU(f domain.Frame) Rect {
	conv := func(v float64) int64 { return int64(math.Round(v * EMUPerUnit)) }
	return Rect{X: conv(f.X), Y: conv(f.Y), W: conv(f.W), H: conv(f.H)}
}

func blockShape(b domain.Block) (Shape, error) {
	r := ToEMU(b.Frame)
	switch b.Kind {
	case domain.BlockKindText:
		if b.Text == nil {
			return nil, errMissingPayload(b.Kind)
		}
		return &TextBox{Rect: r, Paragraphs: markupToParagraphs(b.Text.HTML)}, nil

	case domain.BlockKindBullet:
		if b.Bullet == nil {
			return nil, errMissingPayload(b.Kind)
		}
		paras := make([]Paragraph, len(b.Bullet.Items))
		for i, item := range b.Bullet.Items {
			paras[i] = Paragraph{Runs: []TextRun{{Text: item}}, Bullet: true}
		}
		return &TextBox{Rect: r, Paragraphs: paras}, nil

	case domain.BlockKindKPI:
		if b.KPI == nil {
			return nil, errMissingPayload(b.Kind)
		}
		return &TextBox{Rect: r, Paragraphs: []Paragraph{{Runs: []TextRun{{Text: kpiText(b.KPI)}}}}}, nil

	case domain.BlockKindQuote:
		if b.Quote == nil {
			return nil, errMissingPayload(b.Kind)
		}
		return &TextBox{Rect: r, Paragraphs: []Paragraph{{Runs: []TextRun{{Text: quoteText(b.Quote), Italic: true}}}}}, nil

	case domain.BlockKindImage:
		if b.Image == nil {
			return nil, errMissingPayload(b.Kind)
		}
		if b.Image.DataURL == "" {
			return nil, nil
		}
		mime, data, err := parseDataURI(b.Image.DataURL)
		if err != nil {
			return nil, fmt.Errorf("image: %w", err)
		}
		if _, ok := mediaExt[mime]; !ok {
			log.Printf("[Export] skipping image block %s: unsupported media type %q", b.ID, mime)
			return nil, nil
		}
		return &Picture{Rect: r, MediaType: mime, Data: data, Description: b.Image.Caption}, nil

	case domain.BlockKindChart:
		if b.Chart == nil {
			return nil, errMissingPayload(b.Kind)
		}
		return buildChart(r, b.Chart), nil
	}
	return nil, fmt.Errorf("unknown block kind %q", b.Kind)
}

func errMissingPayload(k domain.BlockKind) error {
	return fmt.Errorf("missing %s payload", k)
}

func kpiText(k *domain.KPIBlock) string {
	s := k.Label + ": " + k.Value
	if k.Delta != "" {
		s += " (" + k.Delta + ")"
	}
	return s
}

func quoteText(q *domain.QuoteBlock) string {
	s := "“" + q.Text + "”"
	if q.By != "" {
		s += " — " + q.By
	}
	return s
}

func buildChart(r Rect, c *domain.ChartBlock) *Chart {
	ch := &Chart{
		Rect:    r,
		Type:    c.ChartType,
		Palette: append([]string{}, ChartPalette...),
		YLabel:  c.YLabel,
		Series:  make([]ChartSeries, len(c.Dataset)),
	}
	longest := 0
	for i, s := range c.Dataset {
		ch.Series[i] = ChartSeries{Name: s.Name, Values: append([]float64{}, s.Values...)}
		if len(s.Values) > longest {
			longest = len(s.Values)
		}
	}
	if len(c.XLabels) > 0 {
		ch.Categories = append([]string{}, c.XLabels...)
	} else {
		ch.Categories = make([]string, longest)
		for i := range ch.Categories {
			ch.Categories[i] = strconv.Itoa(i + 1)
		}
	}
	return ch
}
