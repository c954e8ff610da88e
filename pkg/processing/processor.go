package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/vision-correct/pkg/types"
	"github.com/menta2k/vision-correct/pkg/vision"
)

// Processor handles image processing operations
type Processor struct {
	client *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Params drives the enhancement pipeline. Zero values disable a step.
type Params struct {
	Sharpen       float64 // unsharp-mask amount
	SharpenSigma  float64 // gaussian sigma of the unsharp mask
	EdgeStrength  float64 // 0..1, how much Sobel edges are darkened
	LocalContrast float64 // 0..1, blend towards a per-tile min/max stretch
	TileSize      int     // local contrast tile edge in pixels
	Contrast      float64 // percentage, -100..100
	Brightness    float64 // percentage, -100..100
	Blur          float64 // simulated defocus sigma in pixels
}

// Enhance runs the full pixel pipeline on a copy of img: unsharp mask, edge
// enhancement, local contrast stretch, brightness/contrast and finally the
// simulated blur. The input is never modified.
func (p *Processor) Enhance(img image.Image, params Params) *image.NRGBA {
	out := imaging.Clone(img)

	if params.Sharpen > 0 {
		sigma := params.SharpenSigma
		if sigma <= 0 {
			sigma = 1.0
		}
		unsharpMask(out, imaging.Blur(out, sigma), params.Sharpen)
	}

	if params.EdgeStrength > 0 {
		enhanceEdges(out, clamp(params.EdgeStrength, 0, 1))
	}

	if params.LocalContrast > 0 {
		tile := params.TileSize
		if tile <= 0 {
			tile = 32
		}
		stretchLocalContrast(out, tile, clamp(params.LocalContrast, 0, 1))
	}

	if params.Contrast != 0 {
		out = imaging.AdjustContrast(out, clamp(params.Contrast, -100, 100))
	}
	if params.Brightness != 0 {
		out = imaging.AdjustBrightness(out, clamp(params.Brightness, -100, 100))
	}

	if params.Blur > 0 {
		out = imaging.Blur(out, params.Blur)
	}

	return out
}

// unsharpMask adds amount times the difference between img and its blurred copy
func unsharpMask(img, blurred *image.NRGBA, amount float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(img.Pix[i+c])
			b := float64(blurred.Pix[i+c])
			img.Pix[i+c] = toByte(v + amount*(v-b))
		}
	}
}

// enhanceEdges darkens pixels in proportion to their Sobel magnitude
func enhanceEdges(img *image.NRGBA, strength float64) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	edges := vision.Sobel(types.PixelBuffer{Width: w, Height: h, Pix: img.Pix})

	for i, e := range edges {
		if e == 0 {
			continue
		}
		k := 1 - strength*e
		o := i * 4
		for c := 0; c < 3; c++ {
			img.Pix[o+c] = toByte(float64(img.Pix[o+c]) * k)
		}
	}
}

// stretchLocalContrast maps each tile's gray range onto 0..255 and blends the
// stretched value with the original by amount. Flat tiles are left alone.
func stretchLocalContrast(img *image.NRGBA, tile int, amount float64) {
	w, h := img.Rect.Dx(), img.Rect.Dy()

	for ty := 0; ty < h; ty += tile {
		for tx := 0; tx < w; tx += tile {
			x1, y1 := min(tx+tile, w), min(ty+tile, h)

			lo, hi := 255.0, 0.0
			for y := ty; y < y1; y++ {
				for x := tx; x < x1; x++ {
					o := y*img.Stride + x*4
					g := (float64(img.Pix[o]) + float64(img.Pix[o+1]) + float64(img.Pix[o+2])) / 3
					lo, hi = math.Min(lo, g), math.Max(hi, g)
				}
			}
			if hi-lo < 1 {
				continue
			}

			scale := 255 / (hi - lo)
			for y := ty; y < y1; y++ {
				for x := tx; x < x1; x++ {
					o := y*img.Stride + x*4
					for c := 0; c < 3; c++ {
						v := float64(img.Pix[o+c])
						stretched := (v - lo) * scale
						img.Pix[o+c] = toByte(v + amount*(stretched-v))
					}
				}
			}
		}
	}
}

// LoadImageFromURL downloads and loads an image from a URL
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	// Validate URL
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "vision-correct/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	imageData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return p.DecodeBytes(imageData)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	// Try imaging.Open (registered decoders)
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	// Fallback: explicit decode, WebP first for .webp paths
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
			return img, nil
		}
	}
	if img, err := p.DecodeBytes(data); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown format for %s", path)
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// DecodeBytes decodes an image from byte data with WebP support
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// Encode writes img to w in the given format (jpg, png or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string, quality int) error {
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	case "png":
		return png.Encode(w, img)
	case "jpg", "jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateRegionOverlay outlines detected text regions and flags low-contrast cells
func (p *Processor) CreateRegionOverlay(img image.Image, regions []types.TextRegion, lowContrast []types.Rectangle) *image.NRGBA {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255} // text regions
	red := color.NRGBA{255, 0, 0, 255}   // low-contrast cells
	stroke := max(2, int(0.004*float64(min(w, h))))

	for _, cell := range lowContrast {
		drawBox(nrgba, cell, red, 1)
	}
	for _, r := range regions {
		drawBox(nrgba, r.Rectangle, green, stroke)
	}

	return nrgba
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func toByte(v float64) uint8 {
	return uint8(clamp(math.Round(v), 0, 255))
}

func drawBox(img *image.NRGBA, r types.Rectangle, c color.NRGBA, stroke int) {
	x0, y0 := r.X, r.Y
	x1, y1 := r.X+max(r.Width, 1), r.Y+max(r.Height, 1)
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	x0 = max(x0, 0)
	x1 = min(x1, img.Bounds().Dx())
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	y0 = max(y0, 0)
	y1 = min(y1, img.Bounds().Dy())
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
