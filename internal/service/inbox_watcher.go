package service

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	json "github.com/goccy/go-json"

	"slidedeck/internal/domain"
)

// DocumentLoader is the store entry point the inbox and the bridge feed.
type DocumentLoader interface {
	Load(ctx context.Context, input any, isPatch bool) (*domain.Deck, error)
}

// PatchSuffix marks inbox files that are merged rather than loaded whole.
const PatchSuffix = ".patch.json"

// InboxWatcher loads deck documents dropped into a directory. Files ending in
// .patch.json are applied as patches, other .json files as full loads. Bursts
// of writes to one file are debounced into a single load.
type InboxWatcher struct {
	loader   DocumentLoader
	dir      string
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	timers  map[string]*time.Timer
	done    chan struct{}
	// loads counts scheduled loads that have not finished or been cancelled.
	loads sync.WaitGroup
}

func NewInboxWatcher(loader DocumentLoader, dir string, debounce time.Duration) *InboxWatcher {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &InboxWatcher{loader: loader, dir: dir, debounce: debounce}
}

// Start begins watching. The directory is created if missing.
func (w *InboxWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create inbox dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.watcher = watcher
	w.cancel = cancel
	w.timers = make(map[string]*time.Timer)
	w.done = make(chan struct{})
	go w.loop(watchCtx, watcher, w.done)

	log.Printf("[Inbox] watching %s", w.dir)
	return nil
}

func (w *InboxWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Inbox] watcher error: %v", err)
		}
	}
}

func (w *InboxWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timers == nil {
		return
	}
	if t, exists := w.timers[path]; exists && t.Stop() {
		w.loads.Done()
	}
	w.loads.Add(1)
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		defer w.loads.Done()
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := w.LoadFile(ctx, path); err != nil {
			log.Printf("[Inbox] %v", err)
		}
	})
}

// LoadFile loads one inbox document into the store.
func (w *InboxWatcher) LoadFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	isPatch := strings.HasSuffix(filepath.Base(path), PatchSuffix)
	if _, err := w.loader.Load(ctx, json.RawMessage(data), isPatch); err != nil {
		return fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	log.Printf("[Inbox] loaded %s (patch=%v)", filepath.Base(path), isPatch)
	return nil
}

// Stop closes the watcher, cancels pending loads and waits for a load that
// already started.
func (w *InboxWatcher) Stop() {
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	w.cancel()
	w.watcher.Close()
	for _, t := range w.timers {
		if t.Stop() {
			w.loads.Done()
		}
	}
	done := w.done
	w.watcher, w.cancel, w.timers, w.done = nil, nil, nil, nil
	w.mu.Unlock()
	<-done
	w.loads.Wait()
}
