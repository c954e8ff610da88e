package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/pkg/types"
	"github.com/menta2k/vision-correct/pkg/vision"
)

// ErrInvalidBuffer is reported (and recovered) when a buffer cannot be analysed
var ErrInvalidBuffer = errors.New("invalid pixel buffer")

// Analyzer runs the detection, contrast and classification phases over a
// pixel buffer and caches results by buffer signature
type Analyzer struct {
	config  Config
	metrics *metrics.Metrics
	cache   *fifoCache

	detect   func(types.PixelBuffer) []types.TextRegion
	contrast func(types.PixelBuffer, int) (types.ContrastData, error)
	classify func([]types.TextRegion, int, int) types.ContentType
}

// Config holds configuration for the analyzer
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	CacheSize        int // maximum cached results
	SampleSize       int // pixels hashed into the cache key
	CellSize         int // contrast grid cell edge
	Detection        vision.DetectionConfig
}

// DefaultConfig returns the standard analyzer configuration
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpg", "jpeg", "png", "gif", "webp"},
		MinImageSize:     1,
		CacheSize:        10,
		SampleSize:       256,
		CellSize:         vision.DefaultCellSize,
		Detection:        vision.DefaultDetectionConfig(),
	}
}

// New creates a new Analyzer with default configuration
func New() *Analyzer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Analyzer with custom configuration
func NewWithConfig(config Config) *Analyzer {
	detector := vision.NewWithConfig(config.Detection)
	return &Analyzer{
		config:   config,
		cache:    newFIFOCache(config.CacheSize),
		detect:   detector.DetectTextRegions,
		contrast: vision.AnalyzeContrast,
		classify: vision.ClassifyContent,
	}
}

// WithMetrics attaches a metrics sink and returns the analyzer
func (a *Analyzer) WithMetrics(m *metrics.Metrics) *Analyzer {
	a.metrics = m
	return a
}

// Analyze runs the analysis in the background. The channel yields exactly one
// result and is then closed; if ctx is done before the work starts it is
// closed without a value.
func (a *Analyzer) Analyze(ctx context.Context, buf types.PixelBuffer) <-chan types.AnalysisResult {
	out := make(chan types.AnalysisResult, 1)
	go func() {
		defer close(out)
		if ctx.Err() != nil {
			return
		}
		out <- a.AnalyzeSync(buf)
	}()
	return out
}

// AnalyzeSync analyses buf on the calling goroutine. It never fails: any
// error inside the phases produces the fallback result instead.
func (a *Analyzer) AnalyzeSync(buf types.PixelBuffer) types.AnalysisResult {
	key := Signature(buf, a.config.SampleSize)
	if res, ok := a.cache.get(key); ok {
		a.metrics.CacheHit()
		return res
	}
	a.metrics.CacheMiss()

	start := time.Now()
	res, err := a.run(buf)
	if err != nil {
		log.Warn().Err(err).Int("width", buf.Width).Int("height", buf.Height).Msg("Content analysis failed, using fallback result")
		a.metrics.AnalysisFallback()
		res = Fallback(buf)
		res.ProcessingTime = time.Since(start)
		return res
	}

	res.ProcessingTime = time.Since(start)
	a.cache.put(key, res)
	return res
}

// run executes the phases in order, converting panics into errors
func (a *Analyzer) run(buf types.PixelBuffer) (res types.AnalysisResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panicked: %v", r)
		}
	}()

	if !buf.Valid() {
		return res, fmt.Errorf("%w: %dx%d with %d bytes", ErrInvalidBuffer, buf.Width, buf.Height, len(buf.Pix))
	}

	phase := time.Now()
	regions := a.detect(buf)
	res.Phases.Detection = time.Since(phase)
	a.metrics.ObservePhase("detection", res.Phases.Detection)

	phase = time.Now()
	contrast, err := a.contrast(buf, a.config.CellSize)
	if err != nil {
		return res, fmt.Errorf("contrast analysis: %w", err)
	}
	res.Phases.Contrast = time.Since(phase)
	a.metrics.ObservePhase("contrast", res.Phases.Contrast)

	phase = time.Now()
	res.ContentType = a.classify(regions, buf.Width, buf.Height)
	res.Phases.Classification = time.Since(phase)
	a.metrics.ObservePhase("classification", res.Phases.Classification)

	res.TextRegions = regions
	res.ContrastMap = contrast
	res.Timestamp = time.Now()
	return res, nil
}

// Fallback is the low-fidelity result used when analysis fails: the whole
// buffer as one region, a single mid-contrast cell, and mixed content.
func Fallback(buf types.PixelBuffer) types.AnalysisResult {
	whole := types.Rectangle{Width: max(buf.Width, 0), Height: max(buf.Height, 0)}
	return types.AnalysisResult{
		TextRegions: []types.TextRegion{{Rectangle: whole, Confidence: 0.5, Priority: 0.5}},
		ContrastMap: types.ContrastData{
			Grid:             [][]float64{{0.5}},
			CellSize:         max(buf.Width, buf.Height, 1),
			LowContrastAreas: []types.Rectangle{},
			Mean:             0.5,
		},
		ContentType: types.ContentMixed,
		Timestamp:   time.Now(),
		Fallback:    true,
	}
}

// ClearCache drops every cached result and resets the hit counters
func (a *Analyzer) ClearCache() {
	a.cache.clear()
}

// GetCacheStats reports cache occupancy and hit counts
func (a *Analyzer) GetCacheStats() CacheStats {
	return a.cache.stats()
}

// LoadImage loads an image from file
func (a *Analyzer) LoadImage(filepath string) (image.Image, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	defer file.Close()

	return a.LoadImageFromReader(file)
}

// LoadImageFromReader loads an image from an io.Reader
func (a *Analyzer) LoadImageFromReader(reader io.Reader) (image.Image, error) {
	img, format, err := image.Decode(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if !a.isFormatSupported(format) {
		return nil, fmt.Errorf("unsupported image format: %s", format)
	}

	return img, nil
}

// LoadBuffer loads and validates an image file and captures it as a pixel buffer
func (a *Analyzer) LoadBuffer(filepath string) (types.PixelBuffer, error) {
	img, err := a.LoadImage(filepath)
	if err != nil {
		return types.PixelBuffer{}, err
	}
	if err := a.ValidateImage(img); err != nil {
		return types.PixelBuffer{}, err
	}
	return types.FromImage(img), nil
}

// GetImageInfo returns basic information about an image
func (a *Analyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspectRatio"`
	Area        int     `json:"area"`
}

func (a *Analyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}

// ValidateImage checks if an image meets minimum requirements
func (a *Analyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}
