package vision

import "image"

// morphGray applies one erosion (takeMax false) or dilation pass. Pixels
// outside the image are ignored, matching OpenCV's default border.
func morphGray(src *image.Gray, mask [][]bool, anchor image.Point, takeMax bool) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	type offset struct{ dx, dy int }
	var offsets []offset
	for ky, row := range mask {
		for kx, on := range row {
			if on {
				offsets = append(offsets, offset{kx - anchor.X, ky - anchor.Y})
			}
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			best := uint8(255)
			if takeMax {
				best = 0
			}
			for _, o := range offsets {
				sx, sy := x+o.dx, y+o.dy
				if sx < 0 || sy < 0 || sx >= w || sy >= h {
					continue
				}
				v := src.Pix[sy*src.Stride+sx]
				if takeMax && v > best || !takeMax && v < best {
					best = v
				}
			}
			dst.Pix[y*dst.Stride+x] = best
		}
	}
	return dst
}

// morphology runs op with the given kernel; iterations below one count as one
func morphology(src *image.Gray, op MorphOp, k Kernel, iterations int) *image.Gray {
	if iterations < 1 {
		iterations = 1
	}
	mask := k.Mask()
	anchor := k.Anchor()

	repeat := func(img *image.Gray, takeMax bool) *image.Gray {
		for i := 0; i < iterations; i++ {
			img = morphGray(img, mask, anchor, takeMax)
		}
		return img
	}

	switch op {
	case MorphErode:
		return repeat(src, false)
	case MorphDilate:
		return repeat(src, true)
	case MorphOpen:
		return repeat(repeat(src, false), true)
	case MorphClose:
		return repeat(repeat(src, true), false)
	}
	return nil
}

// connectedBoxes labels 8-connected non-zero regions in raster order and
// returns their bounding boxes.
func connectedBoxes(g *image.Gray) []image.Rectangle {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	seen := make([]bool, w*h)
	var boxes []image.Rectangle
	var stack []int

	for start := 0; start < w*h; start++ {
		sx, sy := start%w, start/w
		if seen[start] || g.Pix[sy*g.Stride+sx] == 0 {
			continue
		}
		box := image.Rect(sx, sy, sx+1, sy+1)
		seen[start] = true
		stack = append(stack[:0], start)

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			px, py := p%w, p/w
			box = box.Union(image.Rect(px, py, px+1, py+1))

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := px+dx, py+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					n := ny*w + nx
					if !seen[n] && g.Pix[ny*g.Stride+nx] != 0 {
						seen[n] = true
						stack = append(stack, n)
					}
				}
			}
		}
		boxes = append(boxes, box)
	}
	return boxes
}
