package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"

	json "github.com/goccy/go-json"
	lru "github.com/hashicorp/golang-lru/v2"

	"slidedeck/internal/domain"
	"slidedeck/internal/export"
)

type ExportKind string

const (
	ExportPPTX   ExportKind = "pptx"
	ExportImages ExportKind = "images"
)

var ErrExportRunning = errors.New("export already running")

// ArtifactSink stores export payloads and returns where they ended up.
type ArtifactSink interface {
	Put(ctx context.Context, deckID, name, contentType string, data []byte) (string, error)
}

// ExportResult is what the host receives for a finished export.
type ExportResult struct {
	Kind      ExportKind `json:"kind"`
	DeckID    string     `json:"deckId"`
	Base64    string     `json:"base64,omitempty"`
	DataURIs  []string   `json:"dataUris,omitempty"`
	Locations []string   `json:"locations,omitempty"`
}

type ExportOptions struct {
	Raster    export.RasterOptions
	CacheSize int
	Sink      ArtifactSink
}

// ─────────────────────────────────────────────────────────────
// Export Service — projects deck snapshots into artifacts
// ─────────────────────────────────────────────────────────────

// ExportService runs the projectors on deck snapshots. It never reads the
// document store; callers pass the deck to export.
type ExportService struct {
	emitter EventEmitter
	sink    ArtifactSink
	raster  export.RasterOptions
	slides  *lru.Cache[string, []byte]
	running kindGuard
}

func NewExportService(emitter EventEmitter, opts ExportOptions) (*ExportService, error) {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("create slide cache: %w", err)
	}
	return &ExportService{emitter: emitter, sink: opts.Sink, raster: opts.Raster, slides: cache}, nil
}

// Export projects d synchronously. A nil deck is a silent no-op. Failures are
// also surfaced as error notices.
func (s *ExportService) Export(ctx context.Context, kind ExportKind, d *domain.Deck) (*ExportResult, error) {
	if d == nil {
		return nil, nil
	}
	if !s.running.acquire(kind) {
		return nil, fmt.Errorf("%w: %s", ErrExportRunning, kind)
	}
	defer s.running.release(kind)

	res, err := s.run(ctx, kind, d)
	if err != nil {
		Notify(ctx, s.emitter, domain.NoticeError, fmt.Sprintf("export %s failed: %v", kind, err))
		return nil, err
	}
	return res, nil
}

// ExportAsync snapshots d and exports it on a goroutine. The result is
// delivered as an export:done event.
func (s *ExportService) ExportAsync(ctx context.Context, kind ExportKind, d *domain.Deck) error {
	if d == nil {
		return nil
	}
	snapshot := d.Clone()
	if !s.running.acquire(kind) {
		return fmt.Errorf("%w: %s", ErrExportRunning, kind)
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer s.running.release(kind)
		res, err := s.run(ctx, kind, snapshot)
		if err != nil {
			log.Printf("[Export] %s for deck %s: %v", kind, snapshot.ID, err)
			Notify(ctx, s.emitter, domain.NoticeError, fmt.Sprintf("export %s failed: %v", kind, err))
			return
		}
		s.emitter.Emit(ctx, EventExported, res)
	}()
	return nil
}

// WaitRunning blocks until running exports finish or ctx is cancelled.
func (s *ExportService) WaitRunning(ctx context.Context) {
	s.running.wait(ctx)
}

// Busy reports whether an export of kind is in flight.
func (s *ExportService) Busy(kind ExportKind) bool {
	return s.running.held(kind)
}

// CachedSlides reports how many rendered slides the cache holds.
func (s *ExportService) CachedSlides() int {
	return s.slides.Len()
}

func (s *ExportService) run(ctx context.Context, kind ExportKind, d *domain.Deck) (*ExportResult, error) {
	switch kind {
	case ExportPPTX:
		return s.pptx(ctx, d)
	case ExportImages:
		return s.images(ctx, d)
	default:
		return nil, fmt.Errorf("unknown export kind %q", kind)
	}
}

func (s *ExportService) pptx(ctx context.Context, d *domain.Deck) (*ExportResult, error) {
	p, err := export.BuildPresentation(d)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := p.WritePPTX(&buf); err != nil {
		return nil, err
	}
	res := &ExportResult{Kind: ExportPPTX, DeckID: d.ID, Base64: base64.StdEncoding.EncodeToString(buf.Bytes())}
	if s.sink != nil {
		loc, err := s.sink.Put(ctx, d.ID, d.ID+".pptx", export.PPTXContentType, buf.Bytes())
		if err != nil {
			return nil, fmt.Errorf("store pptx: %w", err)
		}
		res.Locations = []string{loc}
	}
	log.Printf("[Export] pptx for deck %s (%d bytes)", d.ID, buf.Len())
	return res, nil
}

func (s *ExportService) images(ctx context.Context, d *domain.Deck) (*ExportResult, error) {
	pngs := make([][]byte, len(d.Slides))
	for i, sl := range d.Slides {
		key, err := s.slideKey(sl, d.Theme)
		if err != nil {
			return nil, err
		}
		if img, ok := s.slides.Get(key); ok {
			pngs[i] = img
			continue
		}
		img, err := export.RenderSlidePNG(sl, d.Theme, s.raster)
		if err != nil {
			return nil, fmt.Errorf("slide %d (%s): %w", i, sl.ID, err)
		}
		s.slides.Add(key, img)
		pngs[i] = img
	}

	res := &ExportResult{Kind: ExportImages, DeckID: d.ID, DataURIs: export.DataURIs(pngs)}
	if s.sink != nil {
		for i, img := range pngs {
			loc, err := s.sink.Put(ctx, d.ID, fmt.Sprintf("slide-%02d.png", i+1), "image/png", img)
			if err != nil {
				return nil, fmt.Errorf("store slide %d: %w", i+1, err)
			}
			res.Locations = append(res.Locations, loc)
		}
	}
	return res, nil
}

// slideKey identifies a rendered slide by its content, theme and size.
func (s *ExportService) slideKey(sl domain.Slide, theme string) (string, error) {
	raw, err := json.Marshal(sl)
	if err != nil {
		return "", fmt.Errorf("hash slide %s: %w", sl.ID, err)
	}
	h := sha256.New()
	h.Write(raw)
	fmt.Fprintf(h, "|%s|%d", theme, s.raster.Width)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// kindGuard gives each export kind a single slot. Every held slot is counted
// in wg so shutdown can drain exports still writing artifacts.
type kindGuard struct {
	mu   sync.Mutex
	busy map[ExportKind]bool
	wg   sync.WaitGroup
}

func (g *kindGuard) acquire(kind ExportKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy[kind] {
		return false
	}
	if g.busy == nil {
		g.busy = make(map[ExportKind]bool)
	}
	g.busy[kind] = true
	g.wg.Add(1)
	return true
}

func (g *kindGuard) release(kind ExportKind) {
	g.mu.Lock()
	delete(g.busy, kind)
	g.mu.Unlock()
	g.wg.Done()
}

func (g *kindGuard) held(kind ExportKind) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.busy[kind]
}

// wait returns once no slot is held or ctx is done.
func (g *kindGuard) wait(ctx context.Context) {
	drained := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
	}
}
