package vision

import (
	"image"
	"math"
	"sort"

	"golang.org/x/image/draw"

	"github.com/menta2k/vision-correct/pkg/types"
)

// TextDetector finds likely text blocks in a pixel buffer using Sobel edges
// and connected-component region growing
type TextDetector struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for text region detection
type DetectionConfig struct {
	MaxDimension       int     // larger inputs are downsampled to fit
	EdgeThreshold      float64 // normalised edge magnitude a pixel needs to join a region
	MaxComponentPixels int     // per-component growth cap
	MinRegionArea      int     // bounding-box area below which regions are dropped
	MergeDistance      float64 // edge-to-edge gap under which regions merge
}

// DefaultDetectionConfig returns the standard detector settings
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{
		MaxDimension:       1200,
		EdgeThreshold:      0.1,
		MaxComponentPixels: 10000,
		MinRegionArea:      100,
		MergeDistance:      20,
	}
}

// New creates a new TextDetector with default configuration
func New() *TextDetector {
	return &TextDetector{config: DefaultDetectionConfig()}
}

// NewWithConfig creates a new TextDetector with custom configuration
func NewWithConfig(config DetectionConfig) *TextDetector {
	return &TextDetector{config: config}
}

// Config returns the detector configuration
func (d *TextDetector) Config() DetectionConfig {
	return d.config
}

// component is a connected set of edge pixels
type component struct {
	box     types.Rectangle
	pixels  int
	edgeSum float64
}

// DetectTextRegions returns text regions ordered by priority, highest first.
// Degenerate buffers yield an empty slice.
func (d *TextDetector) DetectTextRegions(buf types.PixelBuffer) []types.TextRegion {
	if !buf.Valid() || buf.Width < 3 || buf.Height < 3 {
		return []types.TextRegion{}
	}

	work, factor := d.downsample(buf)

	edges := Sobel(work)
	components := d.growRegions(edges, work.Width, work.Height)

	// Thresholds are expressed in source pixels; convert into the working scale.
	minArea := float64(d.config.MinRegionArea) * factor * factor
	regions := make([]types.TextRegion, 0, len(components))
	for _, c := range components {
		if float64(c.box.Area()) < minArea {
			continue
		}
		avgEdge := c.edgeSum / float64(c.pixels)
		fill := float64(c.pixels) / float64(c.box.Area())
		regions = append(regions, types.TextRegion{
			Rectangle:  c.box,
			Confidence: math.Min(avgEdge*fill*2, 1),
		})
	}

	regions = mergeRegions(regions, d.config.MergeDistance*factor)
	assignPriority(regions)

	out := make([]types.TextRegion, 0, len(regions))
	for _, r := range regions {
		if factor != 1 {
			r.Rectangle = r.Rectangle.Scale(1 / factor)
		}
		if r.Area() < d.config.MinRegionArea {
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority > out[j].Priority
	})
	return out
}

// downsample shrinks the buffer with nearest-neighbour sampling so its longest
// side fits MaxDimension. It returns the working buffer and the scale factor.
func (d *TextDetector) downsample(buf types.PixelBuffer) (types.PixelBuffer, float64) {
	longest := max(buf.Width, buf.Height)
	if d.config.MaxDimension <= 0 || longest <= d.config.MaxDimension {
		return buf, 1
	}

	factor := float64(d.config.MaxDimension) / float64(longest)
	w := max(1, int(math.Round(float64(buf.Width)*factor)))
	h := max(1, int(math.Round(float64(buf.Height)*factor)))

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), buf.Image(), buf.Image().Bounds(), draw.Src, nil)

	return types.PixelBuffer{Width: w, Height: h, Pix: dst.Pix}, factor
}

var (
	sobelX = [3][3]float64{{-1, 0, 1}, {-2, 0, 2}, {-1, 0, 1}}
	sobelY = [3][3]float64{{-1, -2, -1}, {0, 0, 0}, {1, 2, 1}}
)

// Sobel computes the edge magnitude of every interior pixel on the RGB-average
// grayscale, divided by 255 and capped at 1. Border pixels are zero.
func Sobel(buf types.PixelBuffer) []float64 {
	w, h := buf.Width, buf.Height
	edges := make([]float64, w*h)
	if w < 3 || h < 3 {
		return edges
	}

	gray := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gray[y*w+x] = buf.Gray(x, y)
		}
	}

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				row := (y + ky) * w
				for kx := -1; kx <= 1; kx++ {
					v := gray[row+x+kx]
					gx += v * sobelX[ky+1][kx+1]
					gy += v * sobelY[ky+1][kx+1]
				}
			}
			edges[y*w+x] = math.Min(math.Sqrt(gx*gx+gy*gy)/255, 1)
		}
	}

	return edges
}

// growRegions flood-fills 4-connected edge pixels above the threshold
func (d *TextDetector) growRegions(edges []float64, w, h int) []component {
	visited := make([]bool, w*h)
	queue := make([]int, 0, 256)
	var components []component

	capPixels := d.config.MaxComponentPixels
	if capPixels <= 0 {
		capPixels = w * h
	}

	for start := range edges {
		if visited[start] || edges[start] <= d.config.EdgeThreshold {
			continue
		}

		visited[start] = true
		queue = append(queue[:0], start)
		minX, minY := start%w, start/w
		maxX, maxY := minX, minY
		c := component{}

		for len(queue) > 0 && c.pixels < capPixels {
			idx := queue[0]
			queue = queue[1:]

			x, y := idx%w, idx/w
			c.pixels++
			c.edgeSum += edges[idx]
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for _, n := range [4][2]int{{x - 1, y}, {x + 1, y}, {x, y - 1}, {x, y + 1}} {
				nx, ny := n[0], n[1]
				if nx < 0 || ny < 0 || nx >= w || ny >= h {
					continue
				}
				ni := ny*w + nx
				if visited[ni] || edges[ni] <= d.config.EdgeThreshold {
					continue
				}
				visited[ni] = true
				queue = append(queue, ni)
			}
		}

		// Pixels still queued when the cap hit are released for later components.
		for _, idx := range queue {
			visited[idx] = false
		}

		c.box = types.Rectangle{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1}
		components = append(components, c)
	}

	return components
}

// mergeRegions greedily unions regions closer than distance, averaging confidence
func mergeRegions(regions []types.TextRegion, distance float64) []types.TextRegion {
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(regions) && !merged; i++ {
			for j := i + 1; j < len(regions); j++ {
				if regions[i].GapDistance(regions[j].Rectangle) >= distance {
					continue
				}
				regions[i] = types.TextRegion{
					Rectangle:  regions[i].Union(regions[j].Rectangle),
					Confidence: (regions[i].Confidence + regions[j].Confidence) / 2,
				}
				regions = append(regions[:j], regions[j+1:]...)
				merged = true
				break
			}
		}
	}
	return regions
}

// assignPriority weights relative size against confidence equally
func assignPriority(regions []types.TextRegion) {
	largest := 0
	for _, r := range regions {
		largest = max(largest, r.Area())
	}
	if largest == 0 {
		return
	}
	for i := range regions {
		relSize := float64(regions[i].Area()) / float64(largest)
		regions[i].Priority = 0.5*relSize + 0.5*regions[i].Confidence
	}
}
