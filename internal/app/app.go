// Package app orchestrates all components of claude-remote.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/bus"
	"github.com/cmericli/claude-remote/internal/config"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/idle"
	"github.com/cmericli/claude-remote/internal/indexer"
	"github.com/cmericli/claude-remote/internal/mux"
	"github.com/cmericli/claude-remote/internal/notify"
	"github.com/cmericli/claude-remote/internal/procscan"
	"github.com/cmericli/claude-remote/internal/push"
	"github.com/cmericli/claude-remote/internal/query"
	"github.com/cmericli/claude-remote/internal/server"
	"github.com/cmericli/claude-remote/internal/store"
)

// App wires the store, the bus, the background loops, and the HTTP
// surface together.
type App struct {
	cfg *config.Config

	store      *store.Store
	bus        *bus.Bus
	indexer    *indexer.Indexer
	detector   *idle.Detector
	dispatcher *notify.Dispatcher
	registry   ports.ProcessRegistry
	muxCtl     *mux.Controller
	httpServer *server.Server

	mu      sync.Mutex
	running bool
}

// New builds the full component graph from configuration. Nothing starts
// until Run.
func New(cfg *config.Config) (*App, error) {
	st, err := store.Open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}

	eventBus := bus.New()
	clock := ports.SystemClock{}

	idx, err := indexer.New(cfg.Logs.Root, st, eventBus, clock, indexer.Options{
		PollInterval:      cfg.PollInterval(),
		ReconcileInterval: cfg.ReconcileInterval(),
		NotifyFastPath:    cfg.Indexer.NotifyFastPath,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create indexer: %w", err)
	}

	detector := idle.New(st, eventBus, clock, idle.Options{
		ScanInterval: cfg.IdleScanInterval(),
		Threshold:    cfg.IdleThreshold(),
		Cooldown:     cfg.IdleCooldown(),
	})

	// The mux controller and the process registry reference each other:
	// Join consults the registry, and the registry flags processes hosted
	// in mux sessions. The registry side is wired late.
	muxCtl := mux.New(nil, st, mux.Options{
		Binary:           cfg.Mux.Command,
		Prefix:           cfg.Mux.SessionPrefix,
		AssistantCommand: cfg.Claude.Command,
	})
	registry := procscan.New(muxCtl, clock, procscan.Options{
		LogsRoot:  cfg.Logs.Root,
		Command:   cfg.Claude.Command,
		MuxPrefix: cfg.Mux.SessionPrefix,
	})
	muxCtl.SetRegistry(registry)

	dispatcher := notify.New(eventBus, st, push.New(), clock, notify.Options{
		SessionCooldown: cfg.NotifyCooldown(),
		GlobalHourlyCap: cfg.Notify.GlobalHourlyCap,
		DeliveryTimeout: cfg.DeliveryTimeout(),
	})

	facade := query.New(st, registry)
	httpServer := server.New(cfg.ListenAddr(), facade, muxCtl, st, eventBus, server.Options{})

	return &App{
		cfg:        cfg,
		store:      st,
		bus:        eventBus,
		indexer:    idx,
		detector:   detector,
		dispatcher: dispatcher,
		registry:   registry,
		muxCtl:     muxCtl,
		httpServer: httpServer,
	}, nil
}

// Run starts all components and blocks until ctx is cancelled or the HTTP
// listener fails.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.mu.Unlock()

	log.Info().
		Str("logs_root", a.cfg.Logs.Root).
		Str("index", a.cfg.Index.Path).
		Str("addr", a.cfg.ListenAddr()).
		Msg("starting claude-remote")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	runLoop := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(runCtx); err != nil && runCtx.Err() == nil {
				log.Error().Err(err).Str("component", name).Msg("component stopped")
			}
		}()
	}

	runLoop("indexer", a.indexer.Run)
	runLoop("idle-detector", a.detector.Run)
	runLoop("notify-dispatcher", a.dispatcher.Run)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.httpServer.Start()
	}()

	var err error
	select {
	case <-ctx.Done():
	case err = <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}

	cancel()
	a.shutdown()
	wg.Wait()
	return err
}

// shutdown stops the HTTP server, the bus, and the store in dependency
// order.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.DeliveryTimeout())
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown failed")
	}
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("store close failed")
	}
	log.Info().Msg("claude-remote stopped")
}
