package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/haukened/simplefilter/internal/filter/common/clock"
	"github.com/haukened/simplefilter/internal/filter/common/log"
	"github.com/haukened/simplefilter/internal/filter/common/metrics"
	"github.com/haukened/simplefilter/internal/filter/common/notify"
	"github.com/haukened/simplefilter/internal/filter/config"
	"github.com/haukened/simplefilter/internal/filter/gateways/fetch"
	"github.com/haukened/simplefilter/internal/filter/gateways/fsys"
	"github.com/haukened/simplefilter/internal/filter/gateways/httpapi"
	"github.com/haukened/simplefilter/internal/filter/gateways/watch"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist/bloom"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist/lru"
	"github.com/haukened/simplefilter/internal/filter/repos/rulelist/parsers"
	"github.com/haukened/simplefilter/internal/filter/repos/sourcestate"
	"github.com/haukened/simplefilter/internal/filter/services/engine"
	"github.com/haukened/simplefilter/internal/filter/services/evaluator"
	"github.com/haukened/simplefilter/internal/filter/services/sources"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "simplefilterd"

	defaultShutdownTimeout = 10 * time.Second
	watchDebounce          = 250 * time.Millisecond
)

// Application holds all the components of the filter daemon
type Application struct {
	config     *config.AppConfig
	configPath string

	engine  *engine.Engine
	sources *sources.Manager
	api     *httpapi.Server
	watcher *watch.Watcher
	state   *sourcestate.Store
}

func main() {
	configPath := os.Getenv(config.PathEnv)

	// Load configuration from defaults, file and environment
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level, cfg.Log.File, cfg.Log.MaxSizeMB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":     version,
		"env":         cfg.Env,
		"log_level":   cfg.Log.Level,
		"config_file": configPath,
		"listen":      cfg.Listen,
		"profiles":    cfg.Profiles.Slots,
		"cache_dir":   cfg.Profiles.Dir,
	}, "Starting "+appName)

	app, err := buildApplication(cfg, configPath)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Filter daemon failed")
	}

	log.Info(nil, appName+" stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig, configPath string) (*Application, error) {
	logger := log.GetLogger()
	app := &Application{config: cfg, configPath: configPath}

	// Metrics are served from a private registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	repos, err := buildRepositories(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}
	app.state = repos.state

	// The watcher calls back into the engine, which does not exist yet.
	watcher, err := watch.New(func(ctx context.Context, slot int) {
		app.engine.OnFileChanged(ctx, slot)
	}, watchDebounce, logger)
	if err != nil {
		_ = repos.state.Close()
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	app.watcher = watcher

	manager := sources.NewManager(sources.ManagerOptions{
		Slots:      cfg.Profiles.Slots,
		CacheDir:   cfg.Profiles.Dir,
		Folders:    cfg.Profiles.Folders,
		Staleness:  cfg.Fetch.Staleness,
		MaxRetries: cfg.Fetch.Retries,
		Timeout:    cfg.Fetch.Timeout,
		Backoff:    cfg.Fetch.Backoff,
		Store:      repos.store,
		FS:         repos.fs,
		Downloader: fetch.New(fetch.Options{
			MaxSize:   cfg.Fetch.MaxSize,
			UserAgent: cfg.Fetch.UserAgent,
			Logger:    logger,
		}),
		State:    repos.state,
		Watcher:  watcher,
		Notifier: notify.NewLogSink(logger),
		Clock:    clock.RealClock{},
		Metrics:  m,
		Logger:   logger,
	})
	app.sources = manager

	eval := evaluator.NewEvaluator(evaluator.EvaluatorOptions{
		Source:  repos.store,
		Cache:   repos.cache,
		Metrics: m,
		Logger:  logger,
	})

	app.engine = engine.NewEngine(engine.EngineOptions{
		Sources:   manager,
		Evaluator: eval,
		Logger:    logger,
	})

	if cfg.Listen != "" {
		app.api = httpapi.New(httpapi.Options{
			Addr:     cfg.Listen,
			Engine:   app.engine,
			Gatherer: reg,
			Logger:   logger,
		})
	}

	return app, nil
}

// repositories holds all repository implementations
type repositories struct {
	store *rulelist.Store
	cache rulelist.DecisionCache
	state *sourcestate.Store
	fs    *fsys.FS
}

// buildRepositories creates and configures all repository implementations
func buildRepositories(cfg *config.AppConfig, logger log.Logger) (*repositories, error) {
	sigils, err := parsers.ParseSigils(cfg.Rules.Sigils)
	if err != nil {
		return nil, fmt.Errorf("invalid sigils: %w", err)
	}

	cache, err := lru.New(cfg.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create decision cache: %w", err)
	}
	log.Info(map[string]any{
		"type": "LRU",
		"size": cfg.Cache.Size,
	}, "Decision cache configured")

	var factory rulelist.BloomFactory
	if cfg.Rules.FPRate > 0 {
		factory = bloom.NewFactory()
	}

	store := rulelist.NewStore(rulelist.Options{
		Slots:   cfg.Profiles.Slots,
		Sigils:  sigils,
		Factory: factory,
		FPRate:  cfg.Rules.FPRate,
		Cache:   cache,
		Logger:  logger,
	})

	fs := fsys.New(cfg.Fetch.MaxSize)
	if err := fs.MkdirAll(cfg.Profiles.Dir); err != nil {
		return nil, fmt.Errorf("failed to create list directory: %w", err)
	}
	if err := fs.MkdirAll(filepath.Dir(cfg.State.DB)); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	state, err := sourcestate.Open(cfg.State.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch state: %w", err)
	}

	log.Info(map[string]any{
		"sigils":   sigils.String(),
		"slots":    cfg.Profiles.Slots,
		"state_db": cfg.State.DB,
	}, "Rule store initialized")

	return &repositories{
		store: store,
		cache: cache,
		state: state,
		fs:    fs,
	}, nil
}

// Run starts the HTTP API, loads every profile in the background and blocks
// until ctx is cancelled. Requests are answered from whatever lists have
// loaded so far; slots still fetching contribute no rules.
func (app *Application) Run(ctx context.Context) error {
	defer app.close()

	if app.api != nil {
		if err := app.api.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP API: %w", err)
		}
	}

	var g errgroup.Group
	defer func() { _ = g.Wait() }()

	g.Go(func() error {
		if err := app.watcher.Run(ctx); err != nil {
			log.Error(map[string]any{"error": err}, "File watcher stopped")
		}
		return nil
	})
	g.Go(func() error {
		return app.sources.Run(ctx, app.config.Fetch.Refresh)
	})
	g.Go(func() error {
		if err := app.engine.Start(ctx, app.config.Lists); err != nil {
			log.Warn(map[string]any{"error": err}, "Initial profile load interrupted")
			return nil
		}
		log.Info(map[string]any{"profiles": app.config.Profiles.Slots}, "Filter engine started")
		return nil
	})

	if app.configPath != "" {
		if err := config.Watch(app.configPath, app.onConfigReload(ctx)); err != nil {
			log.Warn(map[string]any{"error": err, "path": app.configPath}, "Config file will not be watched")
		}
	}

	log.Info(map[string]any{"refresh": app.config.Fetch.Refresh}, "Filter daemon running")

	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if app.api != nil {
		if err := app.api.Stop(shutdownCtx); err != nil {
			log.Warn(map[string]any{"error": err, "timeout": defaultShutdownTimeout}, "Error during HTTP API shutdown")
			return fmt.Errorf("shutdown: %w", err)
		}
	}

	log.Info(nil, "Graceful shutdown completed")
	return nil
}

// close releases the file watcher and the fetch state database.
func (app *Application) close() {
	_ = app.watcher.Close()
	if err := app.state.Close(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error closing fetch state")
	}
}

// onConfigReload applies list reference changes from a reloaded config file.
// Other settings need a restart.
func (app *Application) onConfigReload(ctx context.Context) func(*config.AppConfig, error) {
	current := app.config.Clone()
	return func(next *config.AppConfig, err error) {
		if err != nil {
			log.Error(map[string]any{"error": err}, "Config reload failed")
			return
		}
		for key, ref := range current.ListChanges(next) {
			app.engine.OnConfigChanged(ctx, key, ref)
		}
		current = next
	}
}
