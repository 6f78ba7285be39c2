// Package app wires the service components together.
package app

import (
	"context"
	"errors"
	"log"
	"net/http"

	"adsio/internal/config"
	"adsio/internal/events"
	"adsio/internal/httpapi"
	"adsio/internal/jobs"
	"adsio/internal/llm"
	"adsio/internal/memory"
	"adsio/internal/notify"
	"adsio/internal/openfda"
	"adsio/internal/pipeline"
	"adsio/internal/report"
	"adsio/internal/store"
	"adsio/internal/watch"
)

// App holds the assembled service.
type App struct {
	cfg     config.Config
	store   *store.Store
	runner  *jobs.Runner
	watcher *watch.Watcher
	bus     *events.Bus
	mux     *http.ServeMux
}

// New builds the full service graph from configuration.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	for _, w := range cfg.Validate() {
		log.Printf("config warning: %s", w)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	var gen pipeline.Generator
	var memGen memory.Generator
	if cfg.UseGemini {
		client, err := llm.NewClient(ctx, cfg.GenAIAPIKey, cfg.GoogleModel)
		if err != nil {
			if !errors.Is(err, llm.ErrDisabled) {
				st.Close()
				return nil, err
			}
			log.Println("llm disabled: no api key")
		} else {
			gen = client
			memGen = client
			log.Printf("llm enabled: %s", client.Model())
		}
	}

	fetcher := openfda.NewClient(
		openfda.WithEndpoint(cfg.OpenFDAEndpoint),
		openfda.WithTimeout(cfg.OpenFDATimeout),
		openfda.WithMaxRetries(cfg.OpenFDAMaxRetries),
		openfda.WithMinInterval(cfg.OpenFDAMinInterval),
	)
	mem := memory.NewService(st, memGen)
	reports := report.NewWriter(cfg.ReportsDir)
	orch := pipeline.NewOrchestrator(cfg, st, fetcher, gen, mem, reports)

	bus := events.NewBus()
	runner := jobs.NewRunner(cfg, st, orch, bus)
	watcher := watch.New(cfg, runner)

	mux := http.NewServeMux()
	router := httpapi.NewRouter(cfg, st, runner, orch, mem, reports)
	router.Register(mux)

	return &App{
		cfg:     cfg,
		store:   st,
		runner:  runner,
		watcher: watcher,
		bus:     bus,
		mux:     mux,
	}, nil
}

// Run starts workers, the watcher, the webhook listener, and the HTTP
// server, then blocks until the context ends.
func (a *App) Run(ctx context.Context) error {
	a.runner.Start(ctx)
	defer a.runner.Stop()

	if a.cfg.AlertWebhookURL != "" {
		go notify.Listen(ctx, a.cfg, a.bus.Subscribe())
	}
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	if a.cfg.EnableWatcher {
		a.watcher.Bootstrap(ctx)
	}

	srv := &http.Server{Addr: ":" + a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("http listening on %s", a.cfg.HTTPPort)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases held resources.
func (a *App) Close() error { return a.store.Close() }

func (a *App) Runner() *jobs.Runner { return a.runner }
func (a *App) Store() *store.Store  { return a.store }
func (a *App) Mux() *http.ServeMux  { return a.mux }
