package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidedeck/internal/domain"
	"slidedeck/internal/service"
)

// ─────────────────────────────────────────────────────────────
// Autosaver
// ─────────────────────────────────────────────────────────────

func TestAutosaver_TickSavesChangedDeck(t *testing.T) {
	sink := &memorySink{}
	svc, _ := newDeckService(t, service.DeckServiceOptions{Sink: sink})
	loadDeck(t, svc, deck("d1", slide("s1")))

	a := service.NewAutosaver(svc, time.Hour)
	a.Tick()
	a.Tick()
	assert.Len(t, sink.saved, 1, "unchanged deck is saved once")
}

func TestAutosaver_StartStop(t *testing.T) {
	svc, _ := newDeckService(t, service.DeckServiceOptions{Sink: &memorySink{}})
	a := service.NewAutosaver(svc, 50*time.Millisecond)

	require.NoError(t, a.Start())
	require.NoError(t, a.Start())
	a.Stop()
	a.Stop()
}

// ─────────────────────────────────────────────────────────────
// InboxWatcher
// ─────────────────────────────────────────────────────────────

type loadCall struct {
	raw     string
	isPatch bool
}

type recordingLoader struct {
	mu    sync.Mutex
	calls []loadCall
}

func (r *recordingLoader) Load(_ context.Context, input any, isPatch bool) (*domain.Deck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, _ := input.(json.RawMessage)
	r.calls = append(r.calls, loadCall{raw: string(raw), isPatch: isPatch})
	return nil, nil
}

func (r *recordingLoader) snapshot() []loadCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]loadCall(nil), r.calls...)
}

func TestInboxWatcher_LoadFileDetectsPatch(t *testing.T) {
	dir := t.TempDir()
	loader := &recordingLoader{}
	w := service.NewInboxWatcher(loader, dir, 0)

	full := filepath.Join(dir, "deck.json")
	patch := filepath.Join(dir, "update.patch.json")
	require.NoError(t, os.WriteFile(full, []byte(`{"id":"d1"}`), 0644))
	require.NoError(t, os.WriteFile(patch, []byte(`{"id":"d1","isPatch":true}`), 0644))

	require.NoError(t, w.LoadFile(context.Background(), full))
	require.NoError(t, w.LoadFile(context.Background(), patch))

	calls := loader.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, loadCall{raw: `{"id":"d1"}`, isPatch: false}, calls[0])
	assert.True(t, calls[1].isPatch)
}

func TestInboxWatcher_LoadFileMissing(t *testing.T) {
	w := service.NewInboxWatcher(&recordingLoader{}, t.TempDir(), 0)
	assert.Error(t, w.LoadFile(context.Background(), filepath.Join(t.TempDir(), "nope.json")))
}

func TestInboxWatcher_DebouncesWrites(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	loader := &recordingLoader{}
	w := service.NewInboxWatcher(loader, dir, 100*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	path := filepath.Join(dir, "deck.json")
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte(`{"id":"d1"}`), 0644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	require.Eventually(t, func() bool { return len(loader.snapshot()) >= 1 }, 3*time.Second, 20*time.Millisecond)
	time.Sleep(300 * time.Millisecond)
	calls := loader.snapshot()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].isPatch)
}

type blockingLoader struct {
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingLoader) Load(context.Context, any, bool) (*domain.Deck, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return nil, nil
}

func TestInboxWatcher_StopWaitsForRunningLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	loader := &blockingLoader{started: make(chan struct{}), release: make(chan struct{})}
	w := service.NewInboxWatcher(loader, dir, 20*time.Millisecond)
	require.NoError(t, w.Start(context.Background()))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "deck.json"), []byte(`{"id":"d1"}`), 0644))
	select {
	case <-loader.started:
	case <-time.After(3 * time.Second):
		t.Fatal("load never started")
	}

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a load was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(loader.release)
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop did not return after the load finished")
	}
}

func TestInboxWatcher_StopIsIdempotent(t *testing.T) {
	w := service.NewInboxWatcher(&recordingLoader{}, t.TempDir(), 0)
	w.Stop()
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

type failingSink struct{ err error }

func (f failingSink) SaveDeck(context.Context, *domain.Deck) error { return f.err }

func TestMultiSink_TriesEverySink(t *testing.T) {
	first, last := &memorySink{}, &memorySink{}
	boom := errors.New("disk full")
	sink := service.MultiSink{first, failingSink{err: boom}, last}

	err := sink.SaveDeck(context.Background(), deck("d1"))
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.saved, 1)
	assert.Len(t, last.saved, 1)
}
