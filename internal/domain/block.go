package domain

import (
	"fmt"

	json "github.com/goccy/go-json"
)

type BlockKind string

const (
	BlockKindText   BlockKind = "text"
	BlockKindBullet BlockKind = "bullet"
	BlockKindKPI    BlockKind = "kpi"
	BlockKindQuote  BlockKind = "quote"
	BlockKindImage  BlockKind = "image"
	BlockKindChart  BlockKind = "chart"
)

// BlockKinds lists every kind in discriminant order.
var BlockKinds = []BlockKind{
	BlockKindText, BlockKindBullet, BlockKindKPI,
	BlockKindQuote, BlockKindImage, BlockKindChart,
}

type ChartType string

const (
	ChartTypeBar  ChartType = "bar"
	ChartTypeLine ChartType = "line"
	ChartTypePie  ChartType = "pie"
)

var ChartTypes = []ChartType{ChartTypeBar, ChartTypeLine, ChartTypePie}

type Intent string

const (
	IntentGood    Intent = "good"
	IntentBad     Intent = "bad"
	IntentNeutral Intent = "neutral"
)

var Intents = []Intent{IntentGood, IntentBad, IntentNeutral}

// Frame is a rectangle in normalized slide units (see CanvasWidth/CanvasHeight).
type Frame struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w" validate:"gte=0"`
	H float64 `json:"h" validate:"gte=0"`
}

type TextBlock struct {
	HTML string `json:"html"`
}

type BulletBlock struct {
	Items []string `json:"items"`
}

type KPIBlock struct {
	Label  string `json:"label"`
	Value  string `json:"value"`
	Delta  string `json:"delta,omitempty"`
	Intent Intent `json:"intent,omitempty"`
}

type QuoteBlock struct {
	Text string `json:"text"`
	By   string `json:"by,omitempty"`
}

type ImageBlock struct {
	DataURL string `json:"dataUrl,omitempty"`
	URL     string `json:"url,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Series is one named numeric series of a chart.
type Series struct {
	Name   string    `json:"name" validate:"required"`
	Values []float64 `json:"values"`
}

type ChartBlock struct {
	ChartType ChartType `json:"chartType"`
	Dataset   []Series  `json:"dataset" validate:"dive"`
	XLabels   []string  `json:"xLabels,omitempty"`
	YLabel    string    `json:"yLabel,omitempty"`
}

// Block is a closed tagged union: exactly one variant pointer matching Kind is set.
// On the wire the variant fields are flattened next to id/kind/frame.
type Block struct {
	ID    string    `json:"id" validate:"required"`
	Kind  BlockKind `json:"kind"`
	Frame Frame     `json:"frame"`

	Text   *TextBlock   `json:"-"`
	Bullet *BulletBlock `json:"-"`
	KPI    *KPIBlock    `json:"-"`
	Quote  *QuoteBlock  `json:"-"`
	Image  *ImageBlock  `json:"-"`
	Chart  *ChartBlock  `json:"-"`
}

// variant returns the payload for the active kind, nil when unset.
func (b Block) variant() any {
	switch b.Kind {
	case BlockKindText:
		if b.Text != nil {
			return b.Text
		}
	case BlockKindBullet:
		if b.Bullet != nil {
			return b.Bullet
		}
	case BlockKindKPI:
		if b.KPI != nil {
			return b.KPI
		}
	case BlockKindQuote:
		if b.Quote != nil {
			return b.Quote
		}
	case BlockKindImage:
		if b.Image != nil {
			return b.Image
		}
	case BlockKindChart:
		if b.Chart != nil {
			return b.Chart
		}
	}
	return nil
}

func (b Block) MarshalJSON() ([]byte, error) {
	head := map[string]any{
		"id":    b.ID,
		"kind":  b.Kind,
		"frame": b.Frame,
	}
	v := b.variant()
	if v == nil {
		return nil, fmt.Errorf("block %s: no payload for kind %q", b.ID, b.Kind)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for k, val := range fields {
		head[k] = val
	}
	return json.Marshal(head)
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var head struct {
		ID    string    `json:"id"`
		Kind  BlockKind `json:"kind"`
		Frame Frame     `json:"frame"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*b = Block{ID: head.ID, Kind: head.Kind, Frame: head.Frame}

	var target any
	switch head.Kind {
	case BlockKindText:
		b.Text = &TextBlock{}
		target = b.Text
	case BlockKindBullet:
		b.Bullet = &BulletBlock{}
		target = b.Bullet
	case BlockKindKPI:
		b.KPI = &KPIBlock{}
		target = b.KPI
	case BlockKindQuote:
		b.Quote = &QuoteBlock{}
		target = b.Quote
	case BlockKindImage:
		b.Image = &ImageBlock{}
		target = b.Image
	case BlockKindChart:
		b.Chart = &ChartBlock{}
		target = b.Chart
	default:
		return fmt.Errorf("unknown block kind %q", head.Kind)
	}
	return json.Unmarshal(data, target)
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	out := Block{ID: b.ID, Kind: b.Kind, Frame: b.Frame}
	if b.Text != nil {
		t := *b.Text
		out.Text = &t
	}
	if b.Bullet != nil {
		out.Bullet = &BulletBlock{Items: cloneStrings(b.Bullet.Items)}
	}
	if b.KPI != nil {
		k := *b.KPI
		out.KPI = &k
	}
	if b.Quote != nil {
		q := *b.Quote
		out.Quote = &q
	}
	if b.Image != nil {
		img := *b.Image
		out.Image = &img
	}
	if b.Chart != nil {
		c := *b.Chart
		c.XLabels = cloneStrings(b.Chart.XLabels)
		if b.Chart.Dataset != nil {
			c.Dataset = make([]Series, len(b.Chart.Dataset))
			for i, s := range b.Chart.Dataset {
				c.Dataset[i] = Series{Name: s.Name}
				if s.Values != nil {
					c.Dataset[i].Values = append([]float64{}, s.Values...)
				}
			}
		}
		out.Chart = &c
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string{}, in...)
}
