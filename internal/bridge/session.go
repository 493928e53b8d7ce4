package bridge

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/sirupsen/logrus"

	"go-vehicle-counter/internal/vision"
)

// session holds the registers of one invocation. Every frame it creates is
// closed when the invocation ends, whatever the outcome.
type session struct {
	backend vision.Backend
	regs    map[string]any
	owned   []vision.Frame
	log     *logrus.Entry
}

func newSession(backend vision.Backend, log *logrus.Entry) *session {
	return &session{
		backend: backend,
		regs:    map[string]any{},
		log:     log,
	}
}

func (s *session) close() {
	for _, f := range s.owned {
		f.Close()
	}
	s.owned = nil
}

func (s *session) setFrame(name string, f vision.Frame) {
	s.owned = append(s.owned, f)
	s.regs[name] = f
}

func (s *session) frame(name string) (vision.Frame, error) {
	v, ok := s.regs[name]
	if !ok {
		return nil, fmt.Errorf("register %q is unset", name)
	}
	f, ok := v.(vision.Frame)
	if !ok {
		return nil, fmt.Errorf("register %q holds %T, not a frame", name, v)
	}
	return f, nil
}

func (s *session) str(name string) (string, error) {
	v, ok := s.regs[name]
	if !ok {
		return "", fmt.Errorf("register %q is unset", name)
	}
	str, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("register %q holds %T, not a string", name, v)
	}
	return str, nil
}

func (s *session) boxes(name string) ([]image.Rectangle, error) {
	v, ok := s.regs[name]
	if !ok {
		return nil, fmt.Errorf("register %q is unset", name)
	}
	b, ok := v.([]image.Rectangle)
	if !ok {
		return nil, fmt.Errorf("register %q holds %T, not boxes", name, v)
	}
	return b, nil
}

// exec runs one step
func (s *session) exec(st Step) error {
	switch st.Op {
	case "const":
		s.regs[st.As] = st.Value
		return nil
	case "read":
		path, err := s.str(st.Src)
		if err != nil {
			return err
		}
		f, err := s.backend.Read(path)
		if err != nil {
			return err
		}
		s.setFrame(st.As, f)
		return nil
	case "components", "cascade":
		src, err := s.frame(st.Src)
		if err != nil {
			return err
		}
		var boxes []image.Rectangle
		if st.Op == "components" {
			boxes, err = s.backend.Components(src)
		} else {
			boxes, err = s.detect(src, st)
		}
		if err != nil {
			return err
		}
		s.regs[st.As] = boxes
		return nil
	case "count":
		boxes, err := s.boxes(st.Src)
		if err != nil {
			return err
		}
		s.regs[st.As] = len(boxes)
		return nil
	case "draw":
		return s.draw(st)
	case "write":
		return s.write(st)
	case "saved":
		path, err := s.str(st.Src)
		if err != nil {
			return err
		}
		s.regs[st.As] = path != SentinelError
		return nil
	}

	src, err := s.frame(st.Src)
	if err != nil {
		return err
	}
	out, err := s.transform(src, st)
	if err != nil {
		return err
	}
	s.setFrame(st.As, out)
	return nil
}

// transform runs the frame-to-frame operations
func (s *session) transform(src vision.Frame, st Step) (vision.Frame, error) {
	switch st.Op {
	case "resize":
		return s.backend.Resize(src, st.Width, st.Height)
	case "swap_rb":
		return s.backend.SwapRB(src)
	case "gray":
		return s.backend.Gray(src)
	case "blur":
		return s.backend.Blur(src, st.KSize)
	case "threshold":
		return s.backend.Threshold(src, st.Level)
	case "equalize":
		return s.backend.Equalize(src)
	case "absdiff":
		other, err := s.frame(st.With)
		if err != nil {
			return nil, err
		}
		return s.backend.AbsDiff(src, other)
	case "erode", "dilate", "open", "close":
		if st.Kernel == nil {
			return nil, fmt.Errorf("%s needs a kernel", st.Op)
		}
		k := vision.Kernel{
			Shape:  vision.KernelShape(st.Kernel.Shape),
			Width:  st.Kernel.Width,
			Height: st.Kernel.Height,
		}
		return s.backend.Morph(src, vision.MorphOp(st.Op), k, max(1, st.Iterations))
	}
	return nil, fmt.Errorf("unknown op %q", st.Op)
}

func (s *session) detect(src vision.Frame, st Step) ([]image.Rectangle, error) {
	model, err := s.str(st.Model)
	if err != nil {
		return nil, err
	}
	scale := st.Scale
	if scale == 0 {
		scale = 1.1
	}
	return s.backend.Detect(src, model, vision.CascadeParams{
		ScaleFactor:  scale,
		MinNeighbors: st.Neighbors,
	})
}

func (s *session) draw(st Step) error {
	f, err := s.frame(st.Src)
	if err != nil {
		return err
	}
	boxes, err := s.boxes(st.Boxes)
	if err != nil {
		return err
	}
	c, err := colorful.Hex(st.Color)
	if err != nil {
		return fmt.Errorf("invalid color %q: %w", st.Color, err)
	}
	r, g, b := c.RGB255()
	return s.backend.Draw(f, boxes, color.RGBA{R: r, G: g, B: b, A: 255}, max(1, st.Thickness))
}

// write stores the frame as <dir>/<name>.<ext>. A failed write is not an
// error: the target register receives the sentinel instead of a path.
func (s *session) write(st Step) error {
	f, err := s.frame(st.Src)
	if err != nil {
		return err
	}
	dir, err := s.str(st.Dir)
	if err != nil {
		return err
	}
	ext, err := s.str(st.Ext)
	if err != nil {
		return err
	}
	name := st.Name
	if name == "" {
		name = "img"
	}

	path := filepath.Join(dir, name+"."+ext)
	if err := s.backend.Write(f, path); err != nil {
		s.log.WithError(err).WithField("path", path).Warn("Output image not written")
		s.regs[st.As] = SentinelError
		return nil
	}
	s.regs[st.As] = path
	return nil
}
