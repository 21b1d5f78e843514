package mcpserver

import (
	"math"

	"slidedeck/internal/domain"
)

const (
	GridSize = 10.0
	Padding  = 20.0
)

// LayoutEngine picks a free spot on a slide for blocks created without a
// position, so agent-added blocks don't land on top of existing ones.
type LayoutEngine struct {
	gridSize float64
	padding  float64
	width    float64
	height   float64
}

func NewLayoutEngine() *LayoutEngine {
	return &LayoutEngine{
		gridSize: GridSize,
		padding:  Padding,
		width:    domain.CanvasWidth,
		height:   domain.CanvasHeight,
	}
}

// snap rounds v to the nearest grid point.
func (le *LayoutEngine) snap(v float64) float64 {
	return math.Round(v/le.gridSize) * le.gridSize
}

type rect struct {
	x, y, w, h float64
}

func (a rect) intersects(b rect) bool {
	return a.x < b.x+b.w && a.x+a.w > b.x &&
		a.y < b.y+b.h && a.y+a.h > b.y
}

// NextPosition returns the first grid position, scanning rows top to bottom,
// where a w×h frame fits on the canvas without touching the padded frames of
// existing blocks. ok is false when the slide has no room; the position is
// then the top-left padding corner.
func (le *LayoutEngine) NextPosition(existing []domain.Block, w, h float64) (x, y float64, ok bool) {
	occupied := make([]rect, len(existing))
	for i, b := range existing {
		occupied[i] = rect{
			x: b.Frame.X - le.padding,
			y: b.Frame.Y - le.padding,
			w: b.Frame.W + le.padding*2,
			h: b.Frame.H + le.padding*2,
		}
	}

	candidate := rect{w: w, h: h}
	for cy := le.padding; cy+h <= le.height-le.padding; cy += le.gridSize {
		for cx := le.padding; cx+w <= le.width-le.padding; cx += le.gridSize {
			candidate.x, candidate.y = le.snap(cx), le.snap(cy)
			free := true
			for _, occ := range occupied {
				if candidate.intersects(occ) {
					free = false
					break
				}
			}
			if free {
				return candidate.x, candidate.y, true
			}
		}
	}
	return le.padding, le.padding, false
}

// DefaultSize is the frame size used for a new block of kind k.
func DefaultSize(k domain.BlockKind) (w, h float64) {
	switch k {
	case domain.BlockKindKPI:
		return 200, 110
	case domain.BlockKindQuote:
		return 600, 140
	case domain.BlockKindImage, domain.BlockKindChart:
		return 460, 320
	case domain.BlockKindBullet:
		return 440, 260
	default:
		return 440, 120
	}
}
