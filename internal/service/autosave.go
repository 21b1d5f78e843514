package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"slidedeck/internal/domain"
)

// DefaultAutosaveInterval is used when no interval is configured.
const DefaultAutosaveInterval = 30 * time.Second

// Autosaver runs DeckService.Autosave on a fixed interval.
type Autosaver struct {
	svc      *DeckService
	interval time.Duration
	timeout  time.Duration

	mu    sync.Mutex
	sched *cron.Cron
}

func NewAutosaver(svc *DeckService, interval time.Duration) *Autosaver {
	if interval <= 0 {
		interval = DefaultAutosaveInterval
	}
	return &Autosaver{svc: svc, interval: interval, timeout: 30 * time.Second}
}

// Start schedules the periodic save. Calling Start twice is a no-op.
func (a *Autosaver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sched != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	spec := "@every " + a.interval.String()
	if _, err := c.AddFunc(spec, a.Tick); err != nil {
		return fmt.Errorf("schedule autosave %q: %w", spec, err)
	}
	c.Start()
	a.sched = c
	log.Printf("[Autosave] every %s", a.interval)
	return nil
}

// Tick performs one autosave. Errors are logged; the next tick retries.
func (a *Autosaver) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	if err := a.svc.Autosave(ctx); err != nil {
		log.Printf("[Autosave] %v", err)
	}
}

// Stop halts the schedule and waits for a tick already in progress, so no
// save runs after teardown begins.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	c := a.sched
	a.sched = nil
	a.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

// MultiSink hands every snapshot to each sink in order. All sinks are tried
// even when one fails.
type MultiSink []DeckSink

func (m MultiSink) SaveDeck(ctx context.Context, d *domain.Deck) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveDeck(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
