package factory

import (
	"fmt"

	"go-vehicle-counter/internal/config"
	"go-vehicle-counter/internal/storage"
	"go-vehicle-counter/internal/strategy"
	"go-vehicle-counter/internal/vision"
)

// BackendType represents different vision backends
type BackendType string

const (
	// DefaultBackend is the backend selected by build tags
	DefaultBackend BackendType = "default"
	// PureBackend is the pure-Go backend, available in every build
	PureBackend BackendType = "pure"
)

// SourceType represents different image sources for staging
type SourceType string

const (
	// FileSource for local paths
	FileSource SourceType = "file"
	// HTTPSource for http(s) URLs
	HTTPSource SourceType = "http"
	// AzureSource for azblob://container/blob references
	AzureSource SourceType = "azure"
)

// BackendFactory creates vision backends
type BackendFactory interface {
	CreateBackend(backendType BackendType) (vision.Backend, error)
}

// SourceFactory creates image sources
type SourceFactory interface {
	CreateSource(sourceType SourceType) (storage.Source, error)
	// EnabledSources lists the sources the configuration allows
	EnabledSources() []SourceType
}

// StrategyFactory creates counting strategies
type StrategyFactory interface {
	CreateStrategy(kind strategy.Kind) (strategy.CountingStrategy, error)
}

type backendFactory struct{}

// NewBackendFactory creates a new backend factory
func NewBackendFactory() BackendFactory {
	return &backendFactory{}
}

// CreateBackend creates a backend of the specified type
func (f *backendFactory) CreateBackend(backendType BackendType) (vision.Backend, error) {
	switch backendType {
	case DefaultBackend, "":
		return vision.NewBackend(), nil
	case PureBackend:
		return vision.NewPureBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", backendType)
	}
}

type sourceFactory struct {
	cfg *config.Config
}

// NewSourceFactory creates a source factory driven by cfg
func NewSourceFactory(cfg *config.Config) SourceFactory {
	return &sourceFactory{cfg: cfg}
}

// CreateSource creates a source of the specified type
func (f *sourceFactory) CreateSource(sourceType SourceType) (storage.Source, error) {
	switch sourceType {
	case FileSource:
		return storage.NewFileSource(), nil
	case HTTPSource:
		return storage.NewHTTPSource(f.cfg.FetchTimeout), nil
	case AzureSource:
		if !f.cfg.AzureEnabled() {
			return nil, fmt.Errorf("azure source requires AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY")
		}
		src, err := storage.NewAzureSource(f.cfg.AzureAccountName, f.cfg.AzureAccountKey)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}

// EnabledSources lists file and http always, azure when credentials are set
func (f *sourceFactory) EnabledSources() []SourceType {
	types := []SourceType{FileSource, HTTPSource}
	if f.cfg.AzureEnabled() {
		types = append(types, AzureSource)
	}
	return types
}

type strategyFactory struct{}

// NewStrategyFactory creates a new strategy factory
func NewStrategyFactory() StrategyFactory {
	return &strategyFactory{}
}

// CreateStrategy creates the strategy for kind
func (f *strategyFactory) CreateStrategy(kind strategy.Kind) (strategy.CountingStrategy, error) {
	switch kind {
	case strategy.KindDiffConnect:
		return strategy.NewDiffConnectStrategy(), nil
	case strategy.KindHaarCascade:
		return strategy.NewHaarCascadeStrategy(), nil
	case strategy.KindEqualize:
		return strategy.NewEqualizeStrategy(), nil
	default:
		return nil, fmt.Errorf("unsupported strategy: %s", kind)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	BackendFactory  BackendFactory
	SourceFactory   SourceFactory
	StrategyFactory StrategyFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		BackendFactory:  NewBackendFactory(),
		SourceFactory:   NewSourceFactory(cfg),
		StrategyFactory: NewStrategyFactory(),
	}
}

// Sources creates every enabled source
func (c *ComponentFactory) Sources() ([]storage.Source, error) {
	var sources []storage.Source
	for _, t := range c.SourceFactory.EnabledSources() {
		src, err := c.SourceFactory.CreateSource(t)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s source: %w", t, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// Strategies creates the given strategies, all built-in ones when none are named
func (c *ComponentFactory) Strategies(kinds ...strategy.Kind) ([]strategy.CountingStrategy, error) {
	if len(kinds) == 0 {
		kinds = []strategy.Kind{strategy.KindDiffConnect, strategy.KindHaarCascade, strategy.KindEqualize}
	}
	out := make([]strategy.CountingStrategy, 0, len(kinds))
	for _, k := range kinds {
		s, err := c.StrategyFactory.CreateStrategy(k)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
