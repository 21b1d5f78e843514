package export

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"slidedeck/internal/domain"
)

// DefaultRasterWidth is the pixel width used when RasterOptions.Width is unset.
const DefaultRasterWidth = 1280

type RasterOptions struct {
	Width int
}

func (o RasterOptions) size() (int, int) {
	w := o.Width
	if w <= 0 {
		w = DefaultRasterWidth
	}
	h := int(math.Round(float64(w) * domain.CanvasHeight / domain.CanvasWidth))
	return w, h
}

// Theme is the palette a slide is painted with.
type Theme struct {
	Background color.RGBA
	Title      color.RGBA
	Blocks     map[domain.BlockKind]color.RGBA
}

func rgb(hex uint32) color.RGBA {
	return color.RGBA{R: uint8(hex >> 16), G: uint8(hex >> 8), B: uint8(hex), A: 0xff}
}

var themes = map[string]Theme{
	"default": {
		Background: rgb(0xFFFFFF),
		Title:      rgb(0x111827),
		Blocks: map[domain.BlockKind]color.RGBA{
			domain.BlockKindText:   rgb(0xE5E7EB),
			domain.BlockKindBullet: rgb(0xDBEAFE),
			domain.BlockKindKPI:    rgb(0xD1FAE5),
			domain.BlockKindQuote:  rgb(0xFEF3C7),
			domain.BlockKindImage:  rgb(0xE0E7FF),
			domain.BlockKindChart:  rgb(0xEDE9FE),
		},
	},
	"dark": {
		Background: rgb(0x111827),
		Title:      rgb(0xF9FAFB),
		Blocks: map[domain.BlockKind]color.RGBA{
			domain.BlockKindText:   rgb(0x374151),
			domain.BlockKindBullet: rgb(0x1E3A8A),
			domain.BlockKindKPI:    rgb(0x065F46),
			domain.BlockKindQuote:  rgb(0x92400E),
			domain.BlockKindImage:  rgb(0x3730A3),
			domain.BlockKindChart:  rgb(0x5B21B6),
		},
	},
	"light": {
		Background: rgb(0xF9FAFB),
		Title:      rgb(0x1F2937),
		Blocks: map[domain.BlockKind]color.RGBA{
			domain.BlockKindText:   rgb(0xF3F4F6),
			domain.BlockKindBullet: rgb(0xEFF6FF),
			domain.BlockKindKPI:    rgb(0xECFDF5),
			domain.BlockKindQuote:  rgb(0xFFFBEB),
			domain.BlockKindImage:  rgb(0xEEF2FF),
			domain.BlockKindChart:  rgb(0xF5F3FF),
		},
	},
	"corporate": {
		Background: rgb(0xF8FAFC),
		Title:      rgb(0x0F172A),
		Blocks: map[domain.BlockKind]color.RGBA{
			domain.BlockKindText:   rgb(0xCBD5E1),
			domain.BlockKindBullet: rgb(0xBFDBFE),
			domain.BlockKindKPI:    rgb(0x93C5FD),
			domain.BlockKindQuote:  rgb(0xE2E8F0),
			domain.BlockKindImage:  rgb(0xC7D2FE),
			domain.BlockKindChart:  rgb(0x60A5FA),
		},
	},
	"vibrant": {
		Background: rgb(0xFFF7ED),
		Title:      rgb(0x7C2D12),
		Blocks: map[domain.BlockKind]color.RGBA{
			domain.BlockKindText:   rgb(0xFDBA74),
			domain.BlockKindBullet: rgb(0xF9A8D4),
			domain.BlockKindKPI:    rgb(0x86EFAC),
			domain.BlockKindQuote:  rgb(0xFDE047),
			domain.BlockKindImage:  rgb(0x93C5FD),
			domain.BlockKindChart:  rgb(0xC4B5FD),
		},
	},
}

// ThemeFor returns the named theme, falling back to "default".
func ThemeFor(name string) Theme {
	if t, ok := themes[name]; ok {
		return t
	}
	return themes["default"]
}

// RenderPNGs rasterizes every slide of d, in slide order.
func RenderPNGs(d *domain.Deck, opts RasterOptions) ([][]byte, error) {
	if d == nil {
		return nil, nil
	}
	out := make([][]byte, 0, len(d.Slides))
	for i, s := range d.Slides {
		img, err := RenderSlidePNG(s, d.Theme, opts)
		if err != nil {
			return nil, fmt.Errorf("slide %d (%s): %w", i, s.ID, err)
		}
		out = append(out, img)
	}
	return out, nil
}

// RenderSlidePNG paints one slide: theme background, block frames as filled
// rectangles, then the title. Image blocks with a decodable dataUrl are
// scaled into their frame instead of filled.
func RenderSlidePNG(s domain.Slide, theme string, opts RasterOptions) ([]byte, error) {
	w, h := opts.size()
	scale := float64(w) / domain.CanvasWidth
	th := ThemeFor(theme)

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(canvas, canvas.Bounds(), image.NewUniform(th.Background), image.Point{}, xdraw.Src)

	for _, b := range s.Blocks {
		r := frameRect(b.Frame, scale).Intersect(canvas.Bounds())
		if r.Empty() {
			continue
		}
		if b.Kind == domain.BlockKindImage && b.Image != nil && b.Image.DataURL != "" {
			if src, err := decodeDataImage(b.Image.DataURL); err == nil {
				xdraw.ApproxBiLinear.Scale(canvas, r, src, src.Bounds(), xdraw.Over, nil)
				continue
			}
		}
		fill, ok := th.Blocks[b.Kind]
		if !ok {
			fill = th.Title
		}
		xdraw.Draw(canvas, r, image.NewUniform(fill), image.Point{}, xdraw.Over)
	}

	if s.Title != "" {
		drawTitle(canvas, s.Title, th.Title, scale)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func frameRect(f domain.Frame, scale float64) image.Rectangle {
	x0 := int(math.Round(f.X * scale))
	y0 := int(math.Round(f.Y * scale))
	x1 := int(math.Round((f.X + f.W) * scale))
	y1 := int(math.Round((f.Y + f.H) * scale))
	return image.Rect(x0, y0, x1, y1)
}

func drawTitle(dst *image.RGBA, title string, c color.RGBA, scale float64) {
	face := basicfont.Face7x13
	margin := int(math.Round(24 * scale))
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(margin, margin+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(title)
}

// DataURIs wraps encoded PNGs as data URIs, preserving order.
func DataURIs(pngs [][]byte) []string {
	out := make([]string, len(pngs))
	for i, p := range pngs {
		out[i] = "data:image/png;base64," + base64.StdEncoding.EncodeToString(p)
	}
	return out
}
