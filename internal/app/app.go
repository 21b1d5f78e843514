package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"slidedeck/internal/bridge"
	"slidedeck/internal/config"
	"slidedeck/internal/domain"
	"slidedeck/internal/export"
	mcpserver "slidedeck/internal/mcp"
	"slidedeck/internal/schema"
	"slidedeck/internal/service"
	"slidedeck/internal/storage"
)

// App owns every long-lived component of the editor core and their order of
// startup and teardown.
type App struct {
	cfg *config.Config

	sqlDB     *storage.DB
	repo      domain.DeckRepository
	revisions *storage.RevisionStore
	artifacts storage.ArtifactStore

	redis  *service.RedisEmitter
	bridge *bridge.Adapter

	decks    *service.DeckService
	exports  *service.ExportService
	autosave *service.Autosaver
	inbox    *service.InboxWatcher
	mcp      *mcpserver.Server
}

// Options selects how the app talks to the outside world.
type Options struct {
	// Host attaches the command/event bridge. Without it the app is driven
	// by MCP alone.
	Host bool
}

// New opens storage and builds the services. Nothing runs until Startup.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{cfg: cfg}
	if err := a.openStorage(ctx); err != nil {
		a.closeStorage()
		return nil, err
	}

	var emitters service.MultiEmitter
	if opts.Host {
		a.bridge = bridge.NewAdapter(nil, nil, bridge.DefaultBuffer)
		emitters = append(emitters, a.bridge)
	}
	if cfg.RedisAddr != "" {
		r, err := service.NewRedisEmitter(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			// The live feed is optional; the editor works without it.
			log.Printf("[App] redis disabled: %v", err)
		} else {
			a.redis = r
			emitters = append(emitters, r)
		}
	}

	var emitter service.EventEmitter = service.NopEmitter{}
	if len(emitters) > 0 {
		emitter = emitters
	}

	sink := service.MultiSink{a.repo}
	if a.bridge != nil {
		sink = append(sink, a.bridge)
	}
	a.decks = service.NewDeckService(emitter, service.DeckServiceOptions{
		HistoryLimit: cfg.HistoryLimit,
		Validator:    schema.New(schema.Options{SeriesLength: cfg.SeriesLength}),
		Sink:         sink,
		Revisions:    a.revisions,
	})

	exports, err := service.NewExportService(emitter, service.ExportOptions{
		Raster:    export.RasterOptions{Width: cfg.RasterWidth},
		CacheSize: cfg.ExportCacheSize,
		Sink:      a.artifacts,
	})
	if err != nil {
		a.closeStorage()
		return nil, err
	}
	a.exports = exports

	a.autosave = service.NewAutosaver(a.decks, cfg.AutosaveInterval)
	a.inbox = service.NewInboxWatcher(a.decks, cfg.InboxDir, 0)
	a.mcp = mcpserver.New(mcpserver.Deps{
		Emitter:         emitter,
		Decks:           a.decks,
		Exports:         a.exports,
		Repository:      a.repo,
		Revisions:       a.revisions,
		RequireApproval: cfg.RequireApproval,
	})

	if a.bridge != nil {
		a.bridge.SetStore(a.decks, a.exports)
		a.bridge.SetApprover(a.mcp)
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	cfg := a.cfg
	db, err := storage.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("open %s database: %w", cfg.DBDriver, err)
	}
	a.sqlDB = db
	a.revisions = storage.NewRevisionStore(db, cfg.RevisionLimit)

	if cfg.MongoURI != "" {
		mongo, err := storage.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return err
		}
		a.repo = mongo
	} else {
		a.repo = storage.NewDeckStore(db)
	}

	if cfg.Artifact.S3Enabled() {
		s3, err := storage.NewS3ArtifactStore(cfg.Artifact.S3())
		if err != nil {
			return fmt.Errorf("artifact store: %w", err)
		}
		a.artifacts = s3
	} else {
		fsStore, err := storage.NewFSArtifactStore(filepath.Join(cfg.DataDir, "exports"))
		if err != nil {
			return err
		}
		a.artifacts = fsStore
	}
	log.Printf("[App] storage ready (%s, revisions in %s)", repoName(a.repo), cfg.DBDriver)
	return nil
}

func repoName(r domain.DeckRepository) string {
	switch r.(type) {
	case *storage.MongoDeckStore:
		return "mongo"
	default:
		return "sql"
	}
}

// Startup starts the background jobs.
func (a *App) Startup(ctx context.Context) error {
	if err := a.autosave.Start(); err != nil {
		return err
	}
	if err := a.inbox.Start(ctx); err != nil {
		// Decks can still arrive through the bridge or MCP.
		log.Printf("[App] inbox disabled: %v", err)
	}
	return nil
}

// Shutdown stops background work first, then flushes one last autosave and
// closes storage. Exports still running get until ctx ends.
func (a *App) Shutdown(ctx context.Context) {
	a.autosave.Stop()
	a.inbox.Stop()
	a.exports.WaitRunning(ctx)

	if err := a.decks.Autosave(ctx); err != nil {
		log.Printf("[App] final autosave: %v", err)
	}
	if a.bridge != nil {
		a.bridge.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	a.closeStorage()
}

func (a *App) closeStorage() {
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			log.Printf("[App] close repository: %v", err)
		}
	}
	// A SQL repository already closed the shared handle.
	if _, sqlRepo := a.repo.(*storage.DeckStore); !sqlRepo && a.sqlDB != nil {
		a.sqlDB.Close()
	}
	a.repo, a.sqlDB = nil, nil
}

// Decks exposes the document store.
func (a *App) Decks() *service.DeckService { return a.decks }

// MCP exposes the agent-facing server.
func (a *App) MCP() *mcpserver.Server { return a.mcp }

// Bridge returns the host adapter, or nil outside host mode.
func (a *App) Bridge() *bridge.Adapter { return a.bridge }
