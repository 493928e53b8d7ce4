// Package vision implements the image routines the counting modules are
// written against. Two backends exist: a pure Go one used by default and an
// OpenCV one built with -tags gocv.
package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
)

// ErrUnsupported is returned when a backend cannot perform an operation
var ErrUnsupported = errors.New("operation not supported by vision backend")

// ErrClosedFrame is returned when a closed frame is used
var ErrClosedFrame = errors.New("frame is closed")

// Frame is an image handle owned by a backend. Frames must be closed by
// whoever created them.
type Frame interface {
	Size() image.Point
	Channels() int
	Close() error
}

// MorphOp selects a morphological operation
type MorphOp string

const (
	MorphErode  MorphOp = "erode"
	MorphDilate MorphOp = "dilate"
	MorphOpen   MorphOp = "open"
	MorphClose  MorphOp = "close"
)

// KernelShape is the shape of a structuring element
type KernelShape string

const (
	KernelRect    KernelShape = "rect"
	KernelEllipse KernelShape = "ellipse"
	KernelCross   KernelShape = "cross"
)

// Kernel describes a structuring element anchored at its centre
type Kernel struct {
	Shape  KernelShape
	Width  int
	Height int
}

// Validate checks the kernel dimensions and shape
func (k Kernel) Validate() error {
	if k.Width <= 0 || k.Height <= 0 {
		return fmt.Errorf("invalid kernel size %dx%d", k.Width, k.Height)
	}
	switch k.Shape {
	case KernelRect, KernelEllipse, KernelCross:
		return nil
	}
	return fmt.Errorf("invalid kernel shape %q", k.Shape)
}

// Anchor returns the kernel centre
func (k Kernel) Anchor() image.Point {
	return image.Pt(k.Width/2, k.Height/2)
}

// Mask returns the structuring element rows, laid out the way OpenCV's
// getStructuringElement builds them.
func (k Kernel) Mask() [][]bool {
	mask := make([][]bool, k.Height)
	anchor := k.Anchor()
	r, c := k.Height/2, k.Width/2
	invR2 := 0.0
	if r > 0 {
		invR2 = 1.0 / float64(r*r)
	}

	for i := 0; i < k.Height; i++ {
		row := make([]bool, k.Width)
		j1, j2 := 0, 0
		switch {
		case k.Shape == KernelRect || (k.Shape == KernelCross && i == anchor.Y):
			j2 = k.Width
		case k.Shape == KernelCross:
			j1, j2 = anchor.X, anchor.X+1
		default:
			dy := i - r
			if abs(dy) <= r {
				dx := int(math.Round(float64(c) * math.Sqrt(float64(r*r-dy*dy)*invR2)))
				j1 = max(c-dx, 0)
				j2 = min(c+dx+1, k.Width)
			}
		}
		for j := j1; j < j2; j++ {
			row[j] = true
		}
		mask[i] = row
	}
	return mask
}

// CascadeParams holds multi-scale detection parameters
type CascadeParams struct {
	ScaleFactor  float64
	MinNeighbors int
}

// Backend is the vision contract used by module scripts. Every operation
// returning a Frame returns a new frame; inputs are never modified except
// by Draw.
type Backend interface {
	Name() string

	Read(path string) (Frame, error)
	Write(f Frame, path string) error

	Resize(f Frame, width, height int) (Frame, error)
	SwapRB(f Frame) (Frame, error)
	Gray(f Frame) (Frame, error)
	Blur(f Frame, ksize int) (Frame, error)
	Threshold(f Frame, level float64) (Frame, error)
	AbsDiff(a, b Frame) (Frame, error)
	Morph(f Frame, op MorphOp, k Kernel, iterations int) (Frame, error)
	Equalize(f Frame) (Frame, error)

	// Components returns the bounding boxes of the 8-connected foreground
	// regions of a single-channel frame, background excluded.
	Components(f Frame) ([]image.Rectangle, error)

	// Detect runs the cascade stored at cascadePath over f
	Detect(f Frame, cascadePath string, p CascadeParams) ([]image.Rectangle, error)

	// Draw outlines boxes on f in place
	Draw(f Frame, boxes []image.Rectangle, c color.RGBA, thickness int) error
}

// GaussianSigma returns the sigma OpenCV derives for a kernel size when
// none is given.
func GaussianSigma(ksize int) float64 {
	return 0.3*(float64(ksize-1)*0.5-1) + 0.8
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
