package types

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"time"
)

// PixelBuffer is a captured RGBA raster, row-major with 4 bytes per pixel.
// A buffer is treated as immutable once captured.
type PixelBuffer struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Pix    []byte `json:"-"`
}

// NewPixelBuffer wraps raw RGBA bytes, checking that the length matches the dimensions
func NewPixelBuffer(width, height int, pix []byte) (PixelBuffer, error) {
	if width < 0 || height < 0 {
		return PixelBuffer{}, fmt.Errorf("invalid buffer dimensions: %dx%d", width, height)
	}
	if len(pix) != width*height*4 {
		return PixelBuffer{}, fmt.Errorf("pixel data length %d does not match %dx%d RGBA", len(pix), width, height)
	}
	return PixelBuffer{Width: width, Height: height, Pix: pix}, nil
}

// FromImage captures an image into a new buffer
func FromImage(img image.Image) PixelBuffer {
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// Image returns an NRGBA view sharing the buffer's pixels.
func (p PixelBuffer) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    p.Pix,
		Stride: p.Width * 4,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

// Valid reports whether the buffer has a non-empty, consistent pixel array
func (p PixelBuffer) Valid() bool {
	return p.Width > 0 && p.Height > 0 && len(p.Pix) == p.Width*p.Height*4
}

// Area returns the pixel count
func (p PixelBuffer) Area() int {
	return p.Width * p.Height
}

// At returns the RGBA components at (x, y)
func (p PixelBuffer) At(x, y int) (r, g, b, a uint8) {
	i := (y*p.Width + x) * 4
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2], p.Pix[i+3]
}

// Gray returns the RGB average at (x, y) in [0,255]
func (p PixelBuffer) Gray(x, y int) float64 {
	i := (y*p.Width + x) * 4
	return (float64(p.Pix[i]) + float64(p.Pix[i+1]) + float64(p.Pix[i+2])) / 3
}

// Rectangle is an axis-aligned box in pixel coordinates
type Rectangle struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the area of the rectangle
func (r Rectangle) Area() int {
	return r.Width * r.Height
}

// Valid reports whether the rectangle is non-negative and non-empty
func (r Rectangle) Valid() bool {
	return r.X >= 0 && r.Y >= 0 && r.Width > 0 && r.Height > 0
}

// Union returns the bounding box of both rectangles
func (r Rectangle) Union(o Rectangle) Rectangle {
	x0 := min(r.X, o.X)
	y0 := min(r.Y, o.Y)
	x1 := max(r.X+r.Width, o.X+o.Width)
	y1 := max(r.Y+r.Height, o.Y+o.Height)
	return Rectangle{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// GapDistance is the Euclidean distance between the nearest edges of two
// rectangles. Overlapping or touching rectangles have a gap of zero.
func (r Rectangle) GapDistance(o Rectangle) float64 {
	dx := max(0, max(o.X-(r.X+r.Width), r.X-(o.X+o.Width)))
	dy := max(0, max(o.Y-(r.Y+r.Height), r.Y-(o.Y+o.Height)))
	return math.Hypot(float64(dx), float64(dy))
}

// Scale multiplies position and size by factor, keeping at least 1px extents
func (r Rectangle) Scale(factor float64) Rectangle {
	return Rectangle{
		X:      int(math.Round(float64(r.X) * factor)),
		Y:      int(math.Round(float64(r.Y) * factor)),
		Width:  max(1, int(math.Round(float64(r.Width)*factor))),
		Height: max(1, int(math.Round(float64(r.Height)*factor))),
	}
}

// TextRegion is a detected block of likely text
type TextRegion struct {
	Rectangle
	Confidence float64 `json:"confidence"`
	Priority   float64 `json:"priority"`
}

// ContrastData is the grid-based RMS contrast of a buffer
type ContrastData struct {
	Grid             [][]float64 `json:"grid"`
	CellSize         int         `json:"cellSize"`
	LowContrastAreas []Rectangle `json:"lowContrastAreas"`
	Mean             float64     `json:"mean"`
}

// ContentType labels the dominant kind of content in a frame
type ContentType string

const (
	ContentEmail   ContentType = "email"
	ContentArticle ContentType = "article"
	ContentUI      ContentType = "ui"
	ContentMixed   ContentType = "mixed"
)

// PhaseTimings breaks down where analysis time went
type PhaseTimings struct {
	Detection      time.Duration `json:"detection"`
	Contrast       time.Duration `json:"contrast"`
	Classification time.Duration `json:"classification"`
}

// AnalysisResult is the output of a full content analysis pass
type AnalysisResult struct {
	TextRegions    []TextRegion  `json:"textRegions"`
	ContrastMap    ContrastData  `json:"contrastMap"`
	ContentType    ContentType   `json:"contentType"`
	ProcessingTime time.Duration `json:"processingTime"`
	Phases         PhaseTimings  `json:"phases"`
	Timestamp      time.Time     `json:"timestamp"`
	Fallback       bool          `json:"fallback"`
}
