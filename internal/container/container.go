package container

import (
	"fmt"
	"net/http"

	"go-vehicle-counter/internal/assets"
	"go-vehicle-counter/internal/bridge"
	"go-vehicle-counter/internal/config"
	"go-vehicle-counter/internal/factory"
	"go-vehicle-counter/internal/logger"
	"go-vehicle-counter/internal/observer"
	"go-vehicle-counter/internal/repository"
	"go-vehicle-counter/internal/service"
	"go-vehicle-counter/internal/storage"
	"go-vehicle-counter/internal/strategy"
	"go-vehicle-counter/internal/transport"
	"go-vehicle-counter/internal/vision"
)

// Container holds all application dependencies
type Container struct {
	config          *config.Config
	workspace       repository.Workspace
	backend         vision.Backend
	runtime         *bridge.Runtime
	dispatcher      *strategy.Dispatcher
	metrics         *observer.MetricsObserver
	countingService service.CountingService
	handler         http.Handler
}

// NewContainer wires the pipeline with the default vision backend
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithBackend(cfg, factory.DefaultBackend)
}

// NewContainerWithBackend wires the pipeline with the given backend type
func NewContainerWithBackend(cfg *config.Config, backendType factory.BackendType) (*Container, error) {
	components := factory.NewComponentFactory(cfg)

	backend, err := components.BackendFactory.CreateBackend(backendType)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision backend: %w", err)
	}
	sources, err := components.Sources()
	if err != nil {
		return nil, err
	}
	strategies, err := components.Strategies()
	if err != nil {
		return nil, err
	}

	// Build dependency graph
	workspace := repository.NewDirWorkspace(cfg.DataDir)
	stager := storage.NewStager(workspace, sources...)
	runtime := bridge.NewRuntime(backend, nil)
	dispatcher := strategy.NewDispatcher(runtime, strategies...)

	metrics := observer.NewMetricsObserver()
	events := observer.NewEventPublisher()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	countingService := service.NewCountingService(
		workspace,
		stager,
		assets.NewProvisioner(assets.Cascade, assets.WithSourceFile(cfg.CascadeFile)),
		dispatcher,
		events,
	)

	kinds := dispatcher.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	handler := transport.NewHandler(countingService, transport.Options{
		Config:     cfg,
		Metrics:    metrics,
		Executor:   runtime,
		Backend:    backend.Name(),
		Strategies: names,
	})

	return &Container{
		config:          cfg,
		workspace:       workspace,
		backend:         backend,
		runtime:         runtime,
		dispatcher:      dispatcher,
		metrics:         metrics,
		countingService: countingService,
		handler:         handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Service returns the counting pipeline
func (c *Container) Service() service.CountingService {
	return c.countingService
}

// Metrics returns the pipeline metrics observer
func (c *Container) Metrics() *observer.MetricsObserver {
	return c.metrics
}

// Backend returns the vision backend in use
func (c *Container) Backend() vision.Backend {
	return c.backend
}
