package vision

import (
	"encoding/xml"
	"fmt"
	"image"
	"math"
	"os"
	"strconv"
	"strings"
)

type haarRect struct {
	x, y, w, h int
	weight     float64
}

type haarFeature struct {
	rects  []haarRect
	tilted bool
}

// treeNode children above zero index nodes; zero and below index leaves
// as -child.
type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
}

type weakClassifier struct {
	nodes  []treeNode
	leaves []float64
}

type cascadeStage struct {
	threshold float64
	weak      []weakClassifier
}

// Cascade is a boosted Haar cascade loaded from an OpenCV XML document
type Cascade struct {
	Width    int
	Height   int
	stages   []cascadeStage
	features []haarFeature
}

// Stages returns the number of stages
func (c *Cascade) Stages() int {
	return len(c.stages)
}

// xmlNode is a generic element tree; OpenCV storage files use "_" for
// sequence items so fixed structs do not map well.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Text     string     `xml:",chardata"`
	Children []xmlNode  `xml:",any"`
}

func (n *xmlNode) child(name string) *xmlNode {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == name {
			return &n.Children[i]
		}
	}
	return nil
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) floats() ([]float64, error) {
	fields := strings.Fields(n.Text)
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("<%s>: %w", n.XMLName.Local, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (n *xmlNode) childFloats(name string) ([]float64, error) {
	c := n.child(name)
	if c == nil {
		return nil, fmt.Errorf("missing <%s> in <%s>", name, n.XMLName.Local)
	}
	return c.floats()
}

func (n *xmlNode) childFloat(name string) (float64, error) {
	vals, err := n.childFloats(name)
	if err != nil {
		return 0, err
	}
	if len(vals) != 1 {
		return 0, fmt.Errorf("<%s> must hold one value", name)
	}
	return vals[0], nil
}

// LoadCascade reads a cascade file
func LoadCascade(path string) (*Cascade, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCascade(data)
}

// ParseCascade parses both the current <cascade> layout and the legacy
// opencv-haar-classifier layout. Only upright Haar features are supported.
func ParseCascade(data []byte) (*Cascade, error) {
	var root xmlNode
	if err := xml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("invalid cascade document: %w", err)
	}

	var (
		c   *Cascade
		err error
	)
	if node := root.child("cascade"); node != nil {
		c, err = parseCurrentCascade(node)
	} else {
		for i := range root.Children {
			if root.Children[i].attr("type_id") == "opencv-haar-classifier" {
				c, err = parseLegacyCascade(&root.Children[i])
				break
			}
		}
		if c == nil && err == nil {
			err = fmt.Errorf("no cascade found in document")
		}
	}
	if err != nil {
		return nil, err
	}

	if c.Width <= 2 || c.Height <= 2 {
		return nil, fmt.Errorf("invalid cascade window %dx%d", c.Width, c.Height)
	}
	if len(c.stages) == 0 {
		return nil, fmt.Errorf("cascade has no stages")
	}
	for _, f := range c.features {
		if f.tilted {
			return nil, fmt.Errorf("%w: tilted haar features", ErrUnsupported)
		}
	}
	return c, nil
}

func parseCurrentCascade(node *xmlNode) (*Cascade, error) {
	if st := node.child("stageType"); st != nil && strings.TrimSpace(st.Text) != "BOOST" {
		return nil, fmt.Errorf("%w: stage type %s", ErrUnsupported, strings.TrimSpace(st.Text))
	}
	if ft := node.child("featureType"); ft != nil && strings.TrimSpace(ft.Text) != "HAAR" {
		return nil, fmt.Errorf("%w: feature type %s", ErrUnsupported, strings.TrimSpace(ft.Text))
	}

	w, err := node.childFloat("width")
	if err != nil {
		return nil, err
	}
	h, err := node.childFloat("height")
	if err != nil {
		return nil, err
	}
	c := &Cascade{Width: int(w), Height: int(h)}

	featuresNode := node.child("features")
	if featuresNode == nil {
		return nil, fmt.Errorf("missing <features>")
	}
	for i := range featuresNode.Children {
		f, err := parseFeature(&featuresNode.Children[i])
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		c.features = append(c.features, f)
	}

	stagesNode := node.child("stages")
	if stagesNode == nil {
		return nil, fmt.Errorf("missing <stages>")
	}
	for si := range stagesNode.Children {
		sn := &stagesNode.Children[si]
		threshold, err := sn.childFloat("stageThreshold")
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", si, err)
		}
		stage := cascadeStage{threshold: threshold}

		weakNode := sn.child("weakClassifiers")
		if weakNode == nil {
			return nil, fmt.Errorf("stage %d: missing <weakClassifiers>", si)
		}
		for wi := range weakNode.Children {
			wc, err := parseWeakClassifier(&weakNode.Children[wi], len(c.features))
			if err != nil {
				return nil, fmt.Errorf("stage %d classifier %d: %w", si, wi, err)
			}
			stage.weak = append(stage.weak, wc)
		}
		c.stages = append(c.stages, stage)
	}
	return c, nil
}

func parseWeakClassifier(node *xmlNode, nfeatures int) (weakClassifier, error) {
	internal, err := node.childFloats("internalNodes")
	if err != nil {
		return weakClassifier{}, err
	}
	leaves, err := node.childFloats("leafValues")
	if err != nil {
		return weakClassifier{}, err
	}
	if len(internal) == 0 || len(internal)%4 != 0 {
		return weakClassifier{}, fmt.Errorf("internalNodes must hold groups of 4 values")
	}

	wc := weakClassifier{leaves: leaves}
	for i := 0; i < len(internal); i += 4 {
		n := treeNode{
			left:      int(internal[i]),
			right:     int(internal[i+1]),
			feature:   int(internal[i+2]),
			threshold: internal[i+3],
		}
		if n.feature < 0 || n.feature >= nfeatures {
			return weakClassifier{}, fmt.Errorf("feature index %d out of range", n.feature)
		}
		wc.nodes = append(wc.nodes, n)
	}
	return wc, wc.check()
}

func parseLegacyCascade(node *xmlNode) (*Cascade, error) {
	size, err := node.childFloats("size")
	if err != nil {
		return nil, err
	}
	if len(size) != 2 {
		return nil, fmt.Errorf("<size> must hold width and height")
	}
	c := &Cascade{Width: int(size[0]), Height: int(size[1])}

	stagesNode := node.child("stages")
	if stagesNode == nil {
		return nil, fmt.Errorf("missing <stages>")
	}
	for si := range stagesNode.Children {
		sn := &stagesNode.Children[si]
		threshold, err := sn.childFloat("stage_threshold")
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", si, err)
		}
		stage := cascadeStage{threshold: threshold}

		trees := sn.child("trees")
		if trees == nil {
			return nil, fmt.Errorf("stage %d: missing <trees>", si)
		}
		for ti := range trees.Children {
			wc, err := parseLegacyTree(c, &trees.Children[ti])
			if err != nil {
				return nil, fmt.Errorf("stage %d tree %d: %w", si, ti, err)
			}
			stage.weak = append(stage.weak, wc)
		}
		c.stages = append(c.stages, stage)
	}
	return c, nil
}

// parseLegacyTree converts a legacy tree, whose nodes carry either a leaf
// value or a child node index per side, into the node/leaf layout.
func parseLegacyTree(c *Cascade, tree *xmlNode) (weakClassifier, error) {
	var wc weakClassifier
	for ni := range tree.Children {
		nn := &tree.Children[ni]
		fn := nn.child("feature")
		if fn == nil {
			return wc, fmt.Errorf("node %d: missing <feature>", ni)
		}
		f, err := parseFeature(fn)
		if err != nil {
			return wc, fmt.Errorf("node %d: %w", ni, err)
		}
		c.features = append(c.features, f)

		threshold, err := nn.childFloat("threshold")
		if err != nil {
			return wc, fmt.Errorf("node %d: %w", ni, err)
		}
		n := treeNode{feature: len(c.features) - 1, threshold: threshold}

		if n.left, err = legacyChild(nn, "left", &wc); err != nil {
			return wc, fmt.Errorf("node %d: %w", ni, err)
		}
		if n.right, err = legacyChild(nn, "right", &wc); err != nil {
			return wc, fmt.Errorf("node %d: %w", ni, err)
		}
		wc.nodes = append(wc.nodes, n)
	}
	return wc, wc.check()
}

func legacyChild(nn *xmlNode, side string, wc *weakClassifier) (int, error) {
	if nn.child(side+"_val") != nil {
		v, err := nn.childFloat(side + "_val")
		if err != nil {
			return 0, err
		}
		wc.leaves = append(wc.leaves, v)
		return -(len(wc.leaves) - 1), nil
	}
	idx, err := nn.childFloat(side + "_node")
	if err != nil {
		return 0, fmt.Errorf("missing %s_val or %s_node", side, side)
	}
	if idx <= 0 {
		return 0, fmt.Errorf("invalid %s_node %v", side, idx)
	}
	return int(idx), nil
}

func (wc weakClassifier) check() error {
	for _, n := range wc.nodes {
		for _, child := range []int{n.left, n.right} {
			if child > 0 && child >= len(wc.nodes) {
				return fmt.Errorf("node index %d out of range", child)
			}
			if child <= 0 && -child >= len(wc.leaves) {
				return fmt.Errorf("leaf index %d out of range", -child)
			}
		}
	}
	return nil
}

func parseFeature(node *xmlNode) (haarFeature, error) {
	var f haarFeature
	rects := node.child("rects")
	if rects == nil {
		return f, fmt.Errorf("missing <rects>")
	}
	for i := range rects.Children {
		vals, err := rects.Children[i].floats()
		if err != nil {
			return f, err
		}
		if len(vals) != 5 {
			return f, fmt.Errorf("rect must hold x y w h weight")
		}
		f.rects = append(f.rects, haarRect{
			x: int(vals[0]), y: int(vals[1]), w: int(vals[2]), h: int(vals[3]),
			weight: vals[4],
		})
	}
	if t := node.child("tilted"); t != nil && strings.TrimSpace(t.Text) == "1" {
		f.tilted = true
	}
	return f, nil
}

// integral holds summed-area tables with one row and column of padding
type integral struct {
	stride int
	sum    []float64
	sqsum  []float64
}

func newIntegral(g *image.Gray) *integral {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()
	ii := &integral{
		stride: w + 1,
		sum:    make([]float64, (w+1)*(h+1)),
		sqsum:  make([]float64, (w+1)*(h+1)),
	}
	for y := 0; y < h; y++ {
		var rowSum, rowSq float64
		row := g.Pix[y*g.Stride : y*g.Stride+w]
		for x, p := range row {
			v := float64(p)
			rowSum += v
			rowSq += v * v
			i := (y+1)*ii.stride + x + 1
			ii.sum[i] = ii.sum[i-ii.stride] + rowSum
			ii.sqsum[i] = ii.sqsum[i-ii.stride] + rowSq
		}
	}
	return ii
}

func (ii *integral) rect(table []float64, x, y, w, h int) float64 {
	s := ii.stride
	return table[(y+h)*s+x+w] - table[y*s+x+w] - table[(y+h)*s+x] + table[y*s+x]
}

// scaledCascade is the cascade geometry for one window size
type scaledCascade struct {
	width, height int
	inner         image.Rectangle
	invArea       float64
	features      [][]haarRect
}

func (c *Cascade) scale(factor float64) *scaledCascade {
	sc := &scaledCascade{
		width:  int(math.Round(float64(c.Width) * factor)),
		height: int(math.Round(float64(c.Height) * factor)),
	}
	ix := int(math.Round(factor))
	iw := int(math.Round(float64(c.Width-2) * factor))
	ih := int(math.Round(float64(c.Height-2) * factor))
	iw = max(1, min(iw, sc.width-ix))
	ih = max(1, min(ih, sc.height-ix))
	sc.inner = image.Rect(ix, ix, ix+iw, ix+ih)
	sc.invArea = 1 / float64(iw*ih)

	sc.features = make([][]haarRect, len(c.features))
	for i, f := range c.features {
		rects := make([]haarRect, len(f.rects))
		for j, r := range f.rects {
			x := int(math.Round(float64(r.x) * factor))
			y := int(math.Round(float64(r.y) * factor))
			w := int(math.Round(float64(r.w) * factor))
			h := int(math.Round(float64(r.h) * factor))
			x = min(x, sc.width-1)
			y = min(y, sc.height-1)
			rects[j] = haarRect{
				x: x, y: y,
				w:      max(1, min(w, sc.width-x)),
				h:      max(1, min(h, sc.height-y)),
				weight: r.weight * sc.invArea,
			}
		}
		sc.features[i] = rects
	}
	return sc
}

func (c *Cascade) passes(ii *integral, sc *scaledCascade, ox, oy int) bool {
	r := sc.inner
	mean := ii.rect(ii.sum, ox+r.Min.X, oy+r.Min.Y, r.Dx(), r.Dy()) * sc.invArea
	variance := ii.rect(ii.sqsum, ox+r.Min.X, oy+r.Min.Y, r.Dx(), r.Dy())*sc.invArea - mean*mean
	nf := 1.0
	if variance > 0 {
		nf = math.Sqrt(variance)
	}

	for _, stage := range c.stages {
		var sum float64
		for _, wc := range stage.weak {
			idx := 0
			for {
				node := wc.nodes[idx]
				var val float64
				for _, hr := range sc.features[node.feature] {
					val += hr.weight * ii.rect(ii.sum, ox+hr.x, oy+hr.y, hr.w, hr.h)
				}
				if val < node.threshold*nf {
					idx = node.left
				} else {
					idx = node.right
				}
				if idx <= 0 {
					break
				}
			}
			sum += wc.leaves[-idx]
		}
		if sum < stage.threshold {
			return false
		}
	}
	return true
}

// Detect scans g with a growing window and groups the raw hits
func (c *Cascade) Detect(g *image.Gray, p CascadeParams) []image.Rectangle {
	scaleFactor := p.ScaleFactor
	if scaleFactor <= 1 {
		scaleFactor = 1.1
	}
	size := g.Bounds().Size()
	ii := newIntegral(g)

	var hits []image.Rectangle
	for factor := 1.0; ; factor *= scaleFactor {
		sc := c.scale(factor)
		if sc.width > size.X || sc.height > size.Y {
			break
		}
		step := factor * 2
		if factor > 2 {
			step = factor
		}
		stride := max(1, int(math.Round(step)))

		for y := 0; y+sc.height <= size.Y; y += stride {
			for x := 0; x+sc.width <= size.X; x += stride {
				if c.passes(ii, sc, x, y) {
					hits = append(hits, image.Rect(x, y, x+sc.width, y+sc.height))
				}
			}
		}
	}
	return GroupRectangles(hits, p.MinNeighbors, 0.2)
}

// GroupRectangles clusters similar rectangles, keeps clusters with more
// than groupThreshold members and drops clusters nested in stronger ones.
// A threshold of zero or less returns the input unchanged.
func GroupRectangles(rects []image.Rectangle, groupThreshold int, eps float64) []image.Rectangle {
	if groupThreshold <= 0 || len(rects) == 0 {
		return rects
	}

	parent := make([]int, len(rects))
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	for i := range rects {
		for j := i + 1; j < len(rects); j++ {
			if similarRects(rects[i], rects[j], eps) {
				if ri, rj := find(i), find(j); ri != rj {
					parent[rj] = ri
				}
			}
		}
	}

	classOf := map[int]int{}
	var sums [][4]float64
	var weights []int
	for i, r := range rects {
		root := find(i)
		cls, ok := classOf[root]
		if !ok {
			cls = len(sums)
			classOf[root] = cls
			sums = append(sums, [4]float64{})
			weights = append(weights, 0)
		}
		sums[cls][0] += float64(r.Min.X)
		sums[cls][1] += float64(r.Min.Y)
		sums[cls][2] += float64(r.Dx())
		sums[cls][3] += float64(r.Dy())
		weights[cls]++
	}

	avg := make([]image.Rectangle, len(sums))
	for i, s := range sums {
		n := float64(weights[i])
		x := int(math.Round(s[0] / n))
		y := int(math.Round(s[1] / n))
		avg[i] = image.Rect(x, y, x+int(math.Round(s[2]/n)), y+int(math.Round(s[3]/n)))
	}

	var out []image.Rectangle
	for i, r1 := range avg {
		n1 := weights[i]
		if n1 <= groupThreshold {
			continue
		}
		nested := false
		for j, r2 := range avg {
			n2 := weights[j]
			if i == j || n2 <= groupThreshold {
				continue
			}
			dx := int(math.Round(float64(r2.Dx()) * eps))
			dy := int(math.Round(float64(r2.Dy()) * eps))
			if r1.Min.X >= r2.Min.X-dx && r1.Min.Y >= r2.Min.Y-dy &&
				r1.Max.X <= r2.Max.X+dx && r1.Max.Y <= r2.Max.Y+dy &&
				(n2 > max(3, n1) || n1 < 3) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, r1)
		}
	}
	return out
}

func similarRects(a, b image.Rectangle, eps float64) bool {
	delta := eps * float64(min(a.Dx(), b.Dx())+min(a.Dy(), b.Dy())) * 0.5
	return math.Abs(float64(a.Min.X-b.Min.X)) <= delta &&
		math.Abs(float64(a.Min.Y-b.Min.Y)) <= delta &&
		math.Abs(float64(a.Max.X-b.Max.X)) <= delta &&
		math.Abs(float64(a.Max.Y-b.Max.Y)) <= delta
}
