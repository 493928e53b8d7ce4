package strategy

import (
	"fmt"

	"go-vehicle-counter/internal/bridge"
	"go-vehicle-counter/internal/vision"
)

// Kind identifies a counting strategy
type Kind string

const (
	KindDiffConnect Kind = "diff_connect"
	KindHaarCascade Kind = "haar_cascade"
	KindEqualize    Kind = "equalize"
)

// Request is the input of one counting run. Images holds staged paths in
// slot order; AssetPath is set only for strategies that need an asset.
type Request struct {
	RequestID string
	Images    []string
	Extension string
	OutputDir string
	AssetPath string
}

// CountingResult is a successful counting run
type CountingResult struct {
	Kind       Kind
	Count      int
	OutputPath string
}

// CountingStrategy turns a request into a capability call
type CountingStrategy interface {
	Kind() Kind
	Arity() int
	NeedsAsset() bool
	Call(req Request) (bridge.Call, error)
}

func moduleCall(module, entry string, shape bridge.Shape, req Request, args ...string) (bridge.Call, error) {
	src, err := vision.ModuleSource(module)
	if err != nil {
		return bridge.Call{}, fmt.Errorf("%w: %v", bridge.ErrModuleInvalid, err)
	}
	return bridge.Call{
		Module:    src,
		Entry:     entry,
		Args:      args,
		Shape:     shape,
		RequestID: req.RequestID,
	}, nil
}

// DiffConnectStrategy counts changed regions between two frames
type DiffConnectStrategy struct{}

// NewDiffConnectStrategy creates the two-image difference strategy
func NewDiffConnectStrategy() CountingStrategy {
	return &DiffConnectStrategy{}
}

func (s *DiffConnectStrategy) Kind() Kind       { return KindDiffConnect }
func (s *DiffConnectStrategy) Arity() int       { return 2 }
func (s *DiffConnectStrategy) NeedsAsset() bool { return false }

// Call invokes count_changes(first, second, ext, out_dir). The output
// extension is the first image's.
func (s *DiffConnectStrategy) Call(req Request) (bridge.Call, error) {
	return moduleCall(vision.ModuleDiffConnect, "count_changes", bridge.CountPath, req,
		req.Images[0], req.Images[1], req.Extension, req.OutputDir)
}

// HaarCascadeStrategy detects vehicles in one frame with a cascade
type HaarCascadeStrategy struct{}

// NewHaarCascadeStrategy creates the single-image cascade strategy
func NewHaarCascadeStrategy() CountingStrategy {
	return &HaarCascadeStrategy{}
}

func (s *HaarCascadeStrategy) Kind() Kind       { return KindHaarCascade }
func (s *HaarCascadeStrategy) Arity() int       { return 1 }
func (s *HaarCascadeStrategy) NeedsAsset() bool { return true }

func (s *HaarCascadeStrategy) Call(req Request) (bridge.Call, error) {
	return moduleCall(vision.ModuleHaar, "haar_cascade", bridge.CountPath, req,
		req.Images[0], req.Extension, req.OutputDir, req.AssetPath)
}

// EqualizeStrategy equalizes one frame; it counts nothing
type EqualizeStrategy struct{}

// NewEqualizeStrategy creates the single-image equalization strategy
func NewEqualizeStrategy() CountingStrategy {
	return &EqualizeStrategy{}
}

func (s *EqualizeStrategy) Kind() Kind       { return KindEqualize }
func (s *EqualizeStrategy) Arity() int       { return 1 }
func (s *EqualizeStrategy) NeedsAsset() bool { return false }

func (s *EqualizeStrategy) Call(req Request) (bridge.Call, error) {
	return moduleCall(vision.ModuleTransform, "transform", bridge.FlagPath, req,
		req.Images[0], req.OutputDir)
}
