package vision

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/anthonynsimon/bild/blend"
	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/floats"

	// webp inputs
	_ "golang.org/x/image/webp"
)

type pureFrame struct {
	img image.Image
}

func (f *pureFrame) Size() image.Point {
	if f.img == nil {
		return image.Point{}
	}
	return f.img.Bounds().Size()
}

func (f *pureFrame) Channels() int {
	if _, ok := f.img.(*image.Gray); ok {
		return 1
	}
	return 3
}

func (f *pureFrame) Close() error {
	f.img = nil
	return nil
}

// PureBackend implements Backend with imaging, bild and gonum
type PureBackend struct{}

// NewPureBackend creates the pure Go backend
func NewPureBackend() *PureBackend {
	return &PureBackend{}
}

// Name returns the backend name
func (b *PureBackend) Name() string { return "pure-go" }

func (b *PureBackend) frame(f Frame) (*pureFrame, error) {
	pf, ok := f.(*pureFrame)
	if !ok {
		return nil, fmt.Errorf("frame %T does not belong to %s backend", f, b.Name())
	}
	if pf.img == nil {
		return nil, ErrClosedFrame
	}
	return pf, nil
}

func (b *PureBackend) Read(path string) (Frame, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	return &pureFrame{img: imaging.Clone(img)}, nil
}

func (b *PureBackend) Write(f Frame, path string) error {
	pf, err := b.frame(f)
	if err != nil {
		return err
	}
	return imaging.Save(pf.img, path)
}

func (b *PureBackend) Resize(f Frame, width, height int) (Frame, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid size %dx%d", width, height)
	}
	return b.like(pf, imaging.Resize(pf.img, width, height, imaging.Linear)), nil
}

func (b *PureBackend) SwapRB(f Frame) (Frame, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	if pf.Channels() == 1 {
		return &pureFrame{img: toGray(pf.img)}, nil
	}
	out := imaging.Clone(pf.img)
	for i := 0; i+3 < len(out.Pix); i += 4 {
		out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
	}
	return &pureFrame{img: out}, nil
}

func (b *PureBackend) Gray(f Frame) (Frame, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	return &pureFrame{img: toGray(pf.img)}, nil
}

func (b *PureBackend) Blur(f Frame, ksize int) (Frame, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	if ksize <= 0 || ksize%2 == 0 {
		return nil, fmt.Errorf("blur kernel size must be odd and positive, got %d", ksize)
	}
	return b.like(pf, imaging.Blur(pf.img, GaussianSigma(ksize))), nil
}

// Threshold sets pixels brighter than level to 255 and the rest to 0
// Threshold sets pixels strictly above level to 255 and the rest to 0,
// matching a binary threshold with a fractional level.
func (b *PureBackend) Threshold(f Frame, level float64) (Frame, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	gray := toGray(pf.img)
	bounds := gray.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		src := gray.Pix[gray.PixOffset(bounds.Min.X, y):][:bounds.Dx()]
		dst := out.Pix[out.PixOffset(bounds.Min.X, y):][:bounds.Dx()]
		for i, p := range src {
			if float64(p) > level {
				dst[i] = 255
			}
		}
	}
	return &pureFrame{img: out}, nil
}

func (b *PureBackend) AbsDiff(x, y Frame) (Frame, error) {
	a, err := b.frame(x)
	if err != nil {
		return nil, err
	}
	c, err := b.frame(y)
	if err != nil {
		return nil, err
	}
	if a.Size() != c.Size() {
		return nil, fmt.Errorf("absdiff size mismatch %v vs %v", a.Size(), c.Size())
	}
	diff := blend.Difference(a.img, c.img)
	if a.Channels() == 1 && c.Channels() == 1 {
		return &pureFrame{img: toGray(diff)}, nil
	}
	return &pureFrame{img: imaging.Clone(diff)}, nil
}

func (b *PureBackend) Morph(f Frame, op MorphOp, k Kernel, iterations int) (Frame, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if pf.Channels() != 1 {
		return nil, fmt.Errorf("%w: morphology on %d channels", ErrUnsupported, pf.Channels())
	}
	out := morphology(toGray(pf.img), op, k, iterations)
	if out == nil {
		return nil, fmt.Errorf("unknown morphology operation %q", op)
	}
	return &pureFrame{img: out}, nil
}

// Equalize stretches the gray histogram the way OpenCV's equalizeHist does
func (b *PureBackend) Equalize(f Frame) (Frame, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	gray := toGray(pf.img)

	hist := make([]float64, 256)
	for _, p := range gray.Pix {
		hist[p]++
	}
	total := float64(len(gray.Pix))

	first := 0
	for first < 255 && hist[first] == 0 {
		first++
	}

	var lut [256]uint8
	if hist[first] == total {
		for i := range lut {
			lut[i] = uint8(first)
		}
	} else {
		cdf := floats.CumSum(make([]float64, 256), hist)
		scale := 255 / (total - hist[first])
		for i := first + 1; i < 256; i++ {
			lut[i] = uint8(math.Min(255, math.Round((cdf[i]-hist[first])*scale)))
		}
	}

	for i, p := range gray.Pix {
		gray.Pix[i] = lut[p]
	}
	return &pureFrame{img: gray}, nil
}

func (b *PureBackend) Components(f Frame) ([]image.Rectangle, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	if pf.Channels() != 1 {
		return nil, fmt.Errorf("components need a single-channel frame")
	}
	return connectedBoxes(pf.img.(*image.Gray)), nil
}

func (b *PureBackend) Detect(f Frame, cascadePath string, p CascadeParams) ([]image.Rectangle, error) {
	pf, err := b.frame(f)
	if err != nil {
		return nil, err
	}
	cascade, err := LoadCascade(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load cascade %s: %w", cascadePath, err)
	}
	return cascade.Detect(toGray(pf.img), p), nil
}

// Draw outlines boxes whose corners are inclusive, as cv.rectangle draws
// them, with strokes centred on the edges.
func (b *PureBackend) Draw(f Frame, boxes []image.Rectangle, c color.RGBA, thickness int) error {
	pf, err := b.frame(f)
	if err != nil {
		return err
	}
	if thickness < 1 {
		thickness = 1
	}

	canvas, ok := pf.img.(*image.NRGBA)
	if !ok {
		canvas = imaging.Clone(pf.img)
		pf.img = canvas
	}

	lo := -(thickness / 2)
	hi := lo + thickness
	fill := &image.Uniform{C: c}
	for _, r := range boxes {
		x0, y0, x1, y1 := r.Min.X, r.Min.Y, r.Max.X, r.Max.Y
		strokes := []image.Rectangle{
			image.Rect(x0+lo, y0+lo, x1+hi, y0+hi),
			image.Rect(x0+lo, y1+lo, x1+hi, y1+hi),
			image.Rect(x0+lo, y0+lo, x0+hi, y1+hi),
			image.Rect(x1+lo, y0+lo, x1+hi, y1+hi),
		}
		for _, s := range strokes {
			draw.Draw(canvas, s.Intersect(canvas.Bounds()), fill, image.Point{}, draw.Src)
		}
	}
	return nil
}

// like keeps the channel layout of the source frame
func (b *PureBackend) like(src *pureFrame, img image.Image) Frame {
	if src.Channels() == 1 {
		return &pureFrame{img: toGray(img)}
	}
	return &pureFrame{img: imaging.Clone(img)}
}

// toGray converts to 8-bit luma using the BT.601 weights OpenCV uses
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	if g, ok := img.(*image.Gray); ok {
		for y := 0; y < b.Dy(); y++ {
			copy(out.Pix[y*out.Stride:y*out.Stride+b.Dx()], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return out
	}
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.SetGray(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return out
}
