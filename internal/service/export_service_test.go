package service_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidedeck/internal/domain"
	"slidedeck/internal/export"
	"slidedeck/internal/service"
)

type memoryArtifacts struct {
	mu   sync.Mutex
	puts map[string][]byte
	err  error
}

func (m *memoryArtifacts) Put(_ context.Context, deckID, name, _ string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	if m.puts == nil {
		m.puts = make(map[string][]byte)
	}
	key := deckID + "/" + name
	m.puts[key] = data
	return "mem://" + key, nil
}

func newExportService(t *testing.T, sink service.ArtifactSink) (*service.ExportService, *service.MockEmitter) {
	t.Helper()
	em := &service.MockEmitter{}
	svc, err := service.NewExportService(em, service.ExportOptions{
		Raster: export.RasterOptions{Width: 320},
		Sink:   sink,
	})
	require.NoError(t, err)
	return svc, em
}

func TestExportService_NilDeckIsNoop(t *testing.T) {
	svc, em := newExportService(t, nil)
	res, err := svc.Export(context.Background(), service.ExportPPTX, nil)
	require.NoError(t, err)
	assert.Nil(t, res)
	require.NoError(t, svc.ExportAsync(context.Background(), service.ExportImages, nil))
	assert.Empty(t, em.Snapshot())
}

func TestExportService_PPTX(t *testing.T) {
	sink := &memoryArtifacts{}
	svc, _ := newExportService(t, sink)
	d := deck("d1", slide("s1", textBlock("t1", "<p>hello</p>")), slide("s2", kpiBlock("k1")))

	res, err := svc.Export(context.Background(), service.ExportPPTX, d)
	require.NoError(t, err)
	assert.Equal(t, service.ExportPPTX, res.Kind)
	assert.Equal(t, "d1", res.DeckID)

	raw, err := base64.StdEncoding.DecodeString(res.Base64)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "PK"), "pptx should be a zip archive")
	assert.Equal(t, []string{"mem://d1/d1.pptx"}, res.Locations)
	assert.Equal(t, raw, sink.puts["d1/d1.pptx"])
}

func TestExportService_ImagesUsesCache(t *testing.T) {
	sink := &memoryArtifacts{}
	svc, _ := newExportService(t, sink)
	d := deck("d1", slide("s1", textBlock("t1", "a")), slide("s2", kpiBlock("k1")))

	first, err := svc.Export(context.Background(), service.ExportImages, d)
	require.NoError(t, err)
	require.Len(t, first.DataURIs, 2)
	assert.Equal(t, 2, svc.CachedSlides())
	assert.Equal(t, []string{"mem://d1/slide-01.png", "mem://d1/slide-02.png"}, first.Locations)

	d.Slides[1].Title = "Changed"
	second, err := svc.Export(context.Background(), service.ExportImages, d)
	require.NoError(t, err)
	assert.Equal(t, 3, svc.CachedSlides(), "only the edited slide is rendered again")
	assert.Equal(t, first.DataURIs[0], second.DataURIs[0])
	assert.NotEqual(t, first.DataURIs[1], second.DataURIs[1])
}

func TestExportService_ThemeChangesCacheKey(t *testing.T) {
	svc, _ := newExportService(t, nil)
	d := deck("d1", slide("s1"))

	_, err := svc.Export(context.Background(), service.ExportImages, d)
	require.NoError(t, err)
	d.Theme = "dark"
	_, err = svc.Export(context.Background(), service.ExportImages, d)
	require.NoError(t, err)
	assert.Equal(t, 2, svc.CachedSlides())
}

func TestExportService_ErrorBecomesNotice(t *testing.T) {
	sink := &memoryArtifacts{err: errors.New("bucket gone")}
	svc, em := newExportService(t, sink)

	_, err := svc.Export(context.Background(), service.ExportPPTX, deck("d1", slide("s1")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket gone")

	notices := em.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, domain.NoticeError, notices[0].Type)
	assert.Contains(t, notices[0].Message, "export pptx failed")
}

func TestExportService_UnknownKind(t *testing.T) {
	svc, _ := newExportService(t, nil)
	_, err := svc.Export(context.Background(), service.ExportKind("pdf"), deck("d1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"pdf"`)
}

func TestExportService_AsyncEmitsResultOnSnapshot(t *testing.T) {
	svc, em := newExportService(t, nil)
	d := deck("d1", slide("s1"), slide("s2"))

	require.NoError(t, svc.ExportAsync(context.Background(), service.ExportImages, d))
	// Mutating the caller's deck after the call must not affect the export.
	d.Slides = append(d.Slides, slide("s3"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.WaitRunning(ctx)

	var results []*service.ExportResult
	for _, e := range em.Snapshot() {
		if e.Event == service.EventExported {
			results = append(results, e.Data.(*service.ExportResult))
		}
	}
	require.Len(t, results, 1)
	assert.Len(t, results[0].DataURIs, 2)
}

type blockingSink struct {
	release chan struct{}
}

func (b *blockingSink) Put(_ context.Context, deckID, name, _ string, _ []byte) (string, error) {
	<-b.release
	return fmt.Sprintf("blocked://%s/%s", deckID, name), nil
}

func TestExportService_OneExportPerKind(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	svc, _ := newExportService(t, sink)
	d := deck("d1", slide("s1"))

	require.NoError(t, svc.ExportAsync(context.Background(), service.ExportPPTX, d))
	assert.True(t, svc.Busy(service.ExportPPTX))
	assert.False(t, svc.Busy(service.ExportImages))
	err := svc.ExportAsync(context.Background(), service.ExportPPTX, d)
	assert.ErrorIs(t, err, service.ErrExportRunning)
	_, err = svc.Export(context.Background(), service.ExportPPTX, d)
	assert.ErrorIs(t, err, service.ErrExportRunning)

	close(sink.release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	svc.WaitRunning(ctx)

	assert.False(t, svc.Busy(service.ExportPPTX))
	_, err = svc.Export(context.Background(), service.ExportPPTX, d)
	assert.NoError(t, err)
}

func TestExportService_WaitRunningGivesUpOnContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	defer close(sink.release)
	svc, _ := newExportService(t, sink)

	require.NoError(t, svc.ExportAsync(context.Background(), service.ExportPPTX, deck("d1", slide("s1"))))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	svc.WaitRunning(ctx)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, svc.Busy(service.ExportPPTX))
}
