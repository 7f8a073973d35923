package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/knife-inventory/internal/amp"
	"github.com/eugenenazirov/knife-inventory/internal/api"
	"github.com/eugenenazirov/knife-inventory/internal/config"
	"github.com/eugenenazirov/knife-inventory/internal/inventory"
	"github.com/eugenenazirov/knife-inventory/internal/knife"
	"github.com/eugenenazirov/knife-inventory/internal/solver"
	"github.com/eugenenazirov/knife-inventory/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	settings   knife.ClientSettings
	storage    storage.Storage
	inventory  *inventory.Service
	handler    *api.Handler
	router     http.Handler
	logger     *zap.Logger
	server     *http.Server
	appliances []string

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures dependency construction, primarily for tests.
type Option func(*options)

type options struct {
	runner solver.Runner
}

// WithRunner replaces the process runner used for knife solve.
func WithRunner(runner solver.Runner) Option {
	return func(o *options) {
		o.runner = runner
	}
}

// Inventory bundles the inventory service with the settings and storage it
// was built from.
type Inventory struct {
	Settings knife.ClientSettings
	Storage  storage.Storage
	Service  *inventory.Service
}

// NewInventory loads the knife settings named by cfg and wires the AMP
// client, solver and storage into an inventory service.
func NewInventory(cfg config.Config, logger *zap.Logger, opts ...Option) (*Inventory, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	knifeConfig, err := filepath.Abs(cfg.KnifeConfig)
	if err != nil {
		return nil, fmt.Errorf("resolve knife config path: %w", err)
	}

	settings, err := knife.Load(knifeConfig)
	if err != nil {
		return nil, fmt.Errorf("load knife settings %s: %w", knifeConfig, err)
	}
	logger.Info("knife settings loaded",
		zap.String("path", knifeConfig),
		zap.String("node_name", settings.NodeName),
		zap.String("chef_server_url", settings.ChefServerURL),
		zap.Strings("cookbook_path", settings.CookbookPath),
	)

	chefDir := cfg.ChefDirectory
	if chefDir == "" {
		chefDir = settings.BaseDir
	}

	catalogue, err := amp.New(cfg.AMPEndpoint,
		amp.WithTimeout(cfg.AMPTimeout),
		amp.WithRateLimit(cfg.AMPRateLimitRPS),
		amp.WithLogger(logger.Named("amp")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AMP client: %w", err)
	}

	slv := solver.New(solver.Options{
		Binary:        cfg.KnifeBinary,
		ConfigFile:    knifeConfig,
		Dir:           chefDir,
		OwnedPrefixes: cfg.OwnedPrefixes,
		Timeout:       cfg.KnifeTimeout,
	}, o.runner, logger.Named("solver"))

	store := storage.NewMemoryStorage()
	svc := inventory.New(catalogue, slv, store, logger.Named("inventory"),
		inventory.WithConcurrency(cfg.SolveConcurrency),
	)

	return &Inventory{Settings: settings, Storage: store, Service: svc}, nil
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	inv, err := NewInventory(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(inv.Service, inv.Storage, inv.Settings)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	server := NewServer(cfg, BuildRootHandler(apiRouter))

	ctx, cancel := context.WithCancel(context.Background())
	server.RegisterOnShutdown(cancel)

	return &App{
		settings:   inv.Settings,
		storage:    inv.Storage,
		inventory:  inv.Service,
		handler:    handler,
		router:     apiRouter,
		logger:     logger,
		server:     server,
		appliances: append([]string(nil), cfg.Appliances...),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// BuildRootHandler constructs the root HTTP handler that routes API requests
// and the legacy /appliances endpoint.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/appliances", apiHandler)
	mux.Handle("/", http.NotFoundHandler())
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
// Configured appliances are resolved in the background until shutdown.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()

	if len(a.appliances) > 0 {
		go func() {
			if err := a.inventory.ResolveAll(a.ctx, a.appliances); err != nil {
				a.logger.Warn("startup resolution incomplete", zap.Error(err))
			}
		}()
	}
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Settings returns a copy of the loaded knife client settings.
func (a *App) Settings() knife.ClientSettings {
	return a.settings.Clone()
}
