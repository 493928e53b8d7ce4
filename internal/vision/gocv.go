//go:build gocv

package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

type matFrame struct {
	mat    gocv.Mat
	closed bool
}

func (f *matFrame) Size() image.Point {
	if f.closed {
		return image.Point{}
	}
	return image.Pt(f.mat.Cols(), f.mat.Rows())
}

func (f *matFrame) Channels() int {
	return f.mat.Channels()
}

func (f *matFrame) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.mat.Close()
}

// GoCVBackend implements Backend on OpenCV through gocv
type GoCVBackend struct{}

// NewGoCVBackend creates the OpenCV backend
func NewGoCVBackend() *GoCVBackend {
	return &GoCVBackend{}
}

// Name returns the backend name
func (b *GoCVBackend) Name() string { return "gocv" }

func (b *GoCVBackend) mat(f Frame) (gocv.Mat, error) {
	mf, ok := f.(*matFrame)
	if !ok {
		return gocv.Mat{}, fmt.Errorf("frame %T does not belong to %s backend", f, b.Name())
	}
	if mf.closed {
		return gocv.Mat{}, ErrClosedFrame
	}
	return mf.mat, nil
}

func (b *GoCVBackend) Read(path string) (Frame, error) {
	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("failed to read image %s", path)
	}
	return &matFrame{mat: mat}, nil
}

func (b *GoCVBackend) Write(f Frame, path string) error {
	mat, err := b.mat(f)
	if err != nil {
		return err
	}
	if !gocv.IMWrite(path, mat) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

func (b *GoCVBackend) Resize(f Frame, width, height int) (Frame, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return &matFrame{mat: dst}, nil
}

func (b *GoCVBackend) SwapRB(f Frame) (Frame, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	if src.Channels() == 1 {
		return &matFrame{mat: src.Clone()}, nil
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToRGB)
	return &matFrame{mat: dst}, nil
}

func (b *GoCVBackend) Gray(f Frame) (Frame, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	if src.Channels() == 1 {
		return &matFrame{mat: src.Clone()}, nil
	}
	dst := gocv.NewMat()
	gocv.CvtColor(src, &dst, gocv.ColorBGRToGray)
	return &matFrame{mat: dst}, nil
}

func (b *GoCVBackend) Blur(f Frame, ksize int) (Frame, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	if ksize <= 0 || ksize%2 == 0 {
		return nil, fmt.Errorf("blur kernel size must be odd and positive, got %d", ksize)
	}
	dst := gocv.NewMat()
	gocv.GaussianBlur(src, &dst, image.Pt(ksize, ksize), 0, 0, gocv.BorderDefault)
	return &matFrame{mat: dst}, nil
}

func (b *GoCVBackend) Threshold(f Frame, level float64) (Frame, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	gocv.Threshold(src, &dst, float32(level), 255, gocv.ThresholdBinary)
	return &matFrame{mat: dst}, nil
}

func (b *GoCVBackend) AbsDiff(x, y Frame) (Frame, error) {
	a, err := b.mat(x)
	if err != nil {
		return nil, err
	}
	c, err := b.mat(y)
	if err != nil {
		return nil, err
	}
	dst := gocv.NewMat()
	gocv.AbsDiff(a, c, &dst)
	return &matFrame{mat: dst}, nil
}

func (b *GoCVBackend) Morph(f Frame, op MorphOp, k Kernel, iterations int) (Frame, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	if iterations < 1 {
		iterations = 1
	}

	shape := gocv.MorphRect
	switch k.Shape {
	case KernelEllipse:
		shape = gocv.MorphEllipse
	case KernelCross:
		shape = gocv.MorphCross
	}
	kernel := gocv.GetStructuringElement(shape, image.Pt(k.Width, k.Height))
	defer kernel.Close()

	erode := func(m gocv.Mat) gocv.Mat {
		out := gocv.NewMat()
		gocv.Erode(m, &out, kernel)
		return out
	}
	dilate := func(m gocv.Mat) gocv.Mat {
		out := gocv.NewMat()
		gocv.Dilate(m, &out, kernel)
		return out
	}
	repeat := func(m gocv.Mat, fn func(gocv.Mat) gocv.Mat) gocv.Mat {
		cur := m.Clone()
		for i := 0; i < iterations; i++ {
			next := fn(cur)
			cur.Close()
			cur = next
		}
		return cur
	}

	var dst gocv.Mat
	switch op {
	case MorphErode:
		dst = repeat(src, erode)
	case MorphDilate:
		dst = repeat(src, dilate)
	case MorphOpen, MorphClose:
		if iterations == 1 {
			dst = gocv.NewMat()
			morphType := gocv.MorphOpen
			if op == MorphClose {
				morphType = gocv.MorphClose
			}
			gocv.MorphologyEx(src, &dst, morphType, kernel)
			break
		}
		first, second := erode, dilate
		if op == MorphClose {
			first, second = dilate, erode
		}
		mid := repeat(src, first)
		dst = repeat(mid, second)
		mid.Close()
	default:
		return nil, fmt.Errorf("unknown morphology operation %q", op)
	}
	return &matFrame{mat: dst}, nil
}

func (b *GoCVBackend) Equalize(f Frame) (Frame, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	gray := src
	if src.Channels() != 1 {
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}
	dst := gocv.NewMat()
	gocv.EqualizeHist(gray, &dst)
	return &matFrame{mat: dst}, nil
}

func (b *GoCVBackend) Components(f Frame) ([]image.Rectangle, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	labels := gocv.NewMat()
	defer labels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()

	n := gocv.ConnectedComponentsWithStats(src, &labels, &stats, &centroids)
	boxes := make([]image.Rectangle, 0, max(0, n-1))
	for i := 1; i < n; i++ {
		x := int(stats.GetIntAt(i, int(gocv.CCStatLeft)))
		y := int(stats.GetIntAt(i, int(gocv.CCStatTop)))
		w := int(stats.GetIntAt(i, int(gocv.CCStatWidth)))
		h := int(stats.GetIntAt(i, int(gocv.CCStatHeight)))
		boxes = append(boxes, image.Rect(x, y, x+w, y+h))
	}
	return boxes, nil
}

func (b *GoCVBackend) Detect(f Frame, cascadePath string, p CascadeParams) ([]image.Rectangle, error) {
	src, err := b.mat(f)
	if err != nil {
		return nil, err
	}
	classifier := gocv.NewCascadeClassifier()
	defer classifier.Close()
	if !classifier.Load(cascadePath) {
		return nil, fmt.Errorf("failed to load cascade %s", cascadePath)
	}
	return classifier.DetectMultiScaleWithParams(src, p.ScaleFactor, p.MinNeighbors, 0, image.Point{}, image.Point{}), nil
}

func (b *GoCVBackend) Draw(f Frame, boxes []image.Rectangle, c color.RGBA, thickness int) error {
	mf, ok := f.(*matFrame)
	if !ok || mf.closed {
		return ErrClosedFrame
	}
	if mf.mat.Channels() == 1 {
		bgr := gocv.NewMat()
		gocv.CvtColor(mf.mat, &bgr, gocv.ColorGrayToBGR)
		mf.mat.Close()
		mf.mat = bgr
	}
	for _, r := range boxes {
		// corners are inclusive
		gocv.Rectangle(&mf.mat, image.Rect(r.Min.X, r.Min.Y, r.Max.X+1, r.Max.Y+1), c, thickness)
	}
	return nil
}
