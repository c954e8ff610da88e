// Package visioncorrect simulates and corrects presbyopic blur on page content.
//
// Content is analyzed for text regions, local contrast and a coarse content
// type. A reader's calibration and chosen reading vision determine how much
// blur they see; the correction pipeline counters it with contrast, edge and
// sharpening adjustments, informed by the analysis.
//
// Basic usage:
//
//	package main
//
//	import (
//		"fmt"
//		"log"
//
//		visioncorrect "github.com/menta2k/vision-correct"
//		"github.com/menta2k/vision-correct/pkg/correction"
//	)
//
//	func main() {
//		vc := visioncorrect.New()
//
//		img, err := vc.LoadImage("page.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// Reader calibrated at 2.00D on the slider, reading at the calibrated distance
//		values, err := vc.Calibrate(2.0)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		settings := correction.DefaultSettings()
//		result, err := vc.Correct(img, settings, values.DesktopInternal)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Println(result.Filter.CSS(), result.Analysis.ContentType)
//	}
//
// The library consists of these components:
//
//  1. Scale (pkg/scale): user and internal diopter scales
//  2. Device (pkg/device): device class and calibration adjustment
//  3. Vision (pkg/vision): text detection, contrast grid and content classification
//  4. Analyzer (pkg/analyzer): cached content analysis with graceful fallback
//  5. Correction (pkg/correction): blur model and the per-element correction engine
//  6. Calibration (pkg/calibration): persisted calibration and change notifications
//  7. Media (pkg/media): frame sources for video correction
package visioncorrect

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/menta2k/vision-correct/internal/utils"
	"github.com/menta2k/vision-correct/pkg/analyzer"
	"github.com/menta2k/vision-correct/pkg/correction"
	"github.com/menta2k/vision-correct/pkg/device"
	"github.com/menta2k/vision-correct/pkg/processing"
	"github.com/menta2k/vision-correct/pkg/scale"
	"github.com/menta2k/vision-correct/pkg/types"
)

// Version of the vision correction library
const Version = "0.1.0"

// VisionCorrector provides a high-level interface for analysis and correction
type VisionCorrector struct {
	analyzer  *analyzer.Analyzer
	processor *processing.Processor
	detector  *device.Detector
	mapping   scale.Mapping
}

// New creates a new VisionCorrector with default configuration
func New() *VisionCorrector {
	return NewWithConfig(analyzer.DefaultConfig(), device.DefaultConfig(), scale.Default)
}

// NewWithConfig creates a new VisionCorrector with custom configuration
func NewWithConfig(analyzerConfig analyzer.Config, deviceConfig device.Config, mapping scale.Mapping) *VisionCorrector {
	return &VisionCorrector{
		analyzer:  analyzer.NewWithConfig(analyzerConfig),
		processor: processing.NewProcessor(),
		detector:  device.NewWithConfig(deviceConfig),
		mapping:   mapping,
	}
}

// CorrectionResult is the outcome of correcting one image
type CorrectionResult struct {
	Image    image.Image             `json:"-"`
	Filter   correction.FilterParams `json:"filter"`
	Analysis types.AnalysisResult    `json:"analysis"`
}

// LoadImage loads an image from file
func (vc *VisionCorrector) LoadImage(path string) (image.Image, error) {
	return vc.processor.LoadImage(path)
}

// SaveImage saves an image, picking the format from the extension
func (vc *VisionCorrector) SaveImage(img image.Image, path string) error {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format == "" {
		format = "png"
	}
	return vc.processor.SaveImage(img, path, format, 90, false)
}

// AnalyzeImage runs content analysis on an image
func (vc *VisionCorrector) AnalyzeImage(img image.Image) types.AnalysisResult {
	return vc.analyzer.AnalyzeSync(types.FromImage(img))
}

// GetImageInfo returns basic information about an image
func (vc *VisionCorrector) GetImageInfo(img image.Image) analyzer.ImageInfo {
	return vc.analyzer.GetImageInfo(img)
}

// Calibrate converts a slider value into desktop and mobile calibration values
func (vc *VisionCorrector) Calibrate(userDesktop float64) (scale.CalibrationValues, error) {
	return vc.mapping.CalculateCalibrationValues(userDesktop)
}

// DetectDevice classifies an environment
func (vc *VisionCorrector) DetectDevice(env device.Environment) device.Profile {
	return vc.detector.Detect(env)
}

// Correct analyzes img and applies the correction for settings at the given
// internal-scale calibration. Disabled settings return the input unchanged.
func (vc *VisionCorrector) Correct(img image.Image, settings correction.VisionSettings, calibration float64) (CorrectionResult, error) {
	if err := settings.Validate(); err != nil {
		return CorrectionResult{}, fmt.Errorf("invalid settings: %w", err)
	}
	if err := vc.analyzer.ValidateImage(img); err != nil {
		return CorrectionResult{}, err
	}

	analysis := vc.AnalyzeImage(img)
	params := correction.Decide(settings, calibration, &analysis)

	out := img
	if settings.IsEnabled {
		out = vc.processor.Enhance(img, params.Processing())
	}
	return CorrectionResult{Image: out, Filter: params, Analysis: analysis}, nil
}

// ProcessImageFile is a convenience function that loads, corrects and saves an image
func (vc *VisionCorrector) ProcessImageFile(inputPath, outputDir string, settings correction.VisionSettings, calibration float64) (string, error) {
	img, err := vc.LoadImage(inputPath)
	if err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}

	result, err := vc.Correct(img, settings, calibration)
	if err != nil {
		return "", fmt.Errorf("correction failed: %w", err)
	}

	if err := utils.EnsureDir(outputDir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(outputDir, getBaseName(inputPath)+"_corrected.png")
	if err := vc.SaveImage(result.Image, outputPath); err != nil {
		return "", fmt.Errorf("failed to save %s: %w", outputPath, err)
	}
	return outputPath, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

// getBaseName extracts the base filename without extension
func getBaseName(path string) string {
	base := path
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '/' || base[i] == '\\' {
			base = base[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			base = base[:i]
			break
		}
	}
	return base
}
