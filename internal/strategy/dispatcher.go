package strategy

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"go-vehicle-counter/internal/bridge"
	apperrors "go-vehicle-counter/internal/errors"
	"go-vehicle-counter/internal/logger"
)

// Dispatcher routes requests to registered strategies and invokes them
// through the capability port.
type Dispatcher struct {
	port       bridge.Port
	mu         sync.RWMutex
	strategies map[Kind]CountingStrategy
}

// NewDispatcher creates a dispatcher with the given strategies
func NewDispatcher(port bridge.Port, strategies ...CountingStrategy) *Dispatcher {
	d := &Dispatcher{
		port:       port,
		strategies: make(map[Kind]CountingStrategy),
	}
	for _, s := range strategies {
		d.Register(s)
	}
	return d
}

// NewDefaultDispatcher registers every built-in strategy
func NewDefaultDispatcher(port bridge.Port) *Dispatcher {
	return NewDispatcher(port,
		NewDiffConnectStrategy(),
		NewHaarCascadeStrategy(),
		NewEqualizeStrategy(),
	)
}

// Register adds or replaces a strategy
func (d *Dispatcher) Register(s CountingStrategy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strategies[s.Kind()] = s
}

// Strategy looks up a registered strategy
func (d *Dispatcher) Strategy(kind Kind) (CountingStrategy, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.strategies[kind]
	return s, ok
}

// Kinds lists registered strategy kinds in name order
func (d *Dispatcher) Kinds() []Kind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kinds := make([]Kind, 0, len(d.strategies))
	for k := range d.strategies {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch runs kind on req. A capability that cannot run yields a bridge
// error; one that runs without saving its output yields a processing error.
func (d *Dispatcher) Dispatch(kind Kind, req Request) (*CountingResult, error) {
	s, ok := d.Strategy(kind)
	if !ok {
		return nil, apperrors.NewValidationError("unknown counting strategy", nil).WithDetails(string(kind))
	}
	if err := validate(s, req); err != nil {
		return nil, err
	}

	call, err := s.Call(req)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to prepare capability call", err)
	}

	log := logger.WithFields(logrus.Fields{
		"request_id": req.RequestID,
		"strategy":   kind,
		"stage":      "dispatch",
	})

	outcome, err := d.port.Invoke(call)
	if err != nil {
		return nil, apperrors.NewBridgeError("vision capability failed", err)
	}
	if !outcome.Saved {
		log.WithField("count", outcome.Count).Warn("Capability did not save its output image")
		return nil, apperrors.NewProcessingError(outcome.Reason, nil)
	}

	log.WithFields(logrus.Fields{
		"count":  outcome.Count,
		"output": outcome.Path,
	}).Info("Counting strategy completed")

	return &CountingResult{
		Kind:       kind,
		Count:      outcome.Count,
		OutputPath: outcome.Path,
	}, nil
}

func validate(s CountingStrategy, req Request) error {
	if len(req.Images) != s.Arity() {
		return apperrors.NewValidationError(
			fmt.Sprintf("%s needs %d image(s), got %d", s.Kind(), s.Arity(), len(req.Images)), nil)
	}
	for i, img := range req.Images {
		if img == "" {
			return apperrors.NewValidationError(fmt.Sprintf("image %d is empty", i+1), nil)
		}
	}
	if s.NeedsAsset() && req.AssetPath == "" {
		return apperrors.NewValidationError(fmt.Sprintf("%s needs a cascade asset", s.Kind()), nil)
	}
	if req.OutputDir == "" {
		return apperrors.NewValidationError("output directory is not set", nil)
	}
	return nil
}
