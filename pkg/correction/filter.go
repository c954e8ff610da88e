package correction

import (
	"fmt"
	"math"

	"github.com/menta2k/vision-correct/pkg/processing"
	"github.com/menta2k/vision-correct/pkg/types"
	"github.com/menta2k/vision-correct/pkg/vision"
)

const (
	// MinimumBlur is rendered when reading vision matches calibration exactly
	MinimumBlur = 0.05
	// BlurPerDiopter is the blur radius in pixels per diopter of mismatch
	BlurPerDiopter = 0.6
	// ShadowVisibilityThreshold is the blur radius at which the text-shadow
	// edge effect is dropped
	ShadowVisibilityThreshold = 1.0
)

// Blur returns the simulated defocus radius in pixels. The distance is
// two-sided: over- and under-correction by the same amount blur equally.
func Blur(readingVision, calibration float64) float64 {
	distance := math.Abs(readingVision - calibration)
	if distance == 0 {
		return MinimumBlur
	}
	return distance * BlurPerDiopter
}

// FilterParams is the correction decided for one element
type FilterParams struct {
	Blur          float64 `json:"blur"`          // px
	Contrast      float64 `json:"contrast"`      // CSS factor, 1 is neutral
	Brightness    float64 `json:"brightness"`    // CSS factor, 1 is neutral
	Sharpen       float64 `json:"sharpen"`       // unsharp-mask amount
	EdgeStrength  float64 `json:"edgeStrength"`  // 0..1
	LocalContrast float64 `json:"localContrast"` // 0..1
}

// Decide maps settings and calibration, optionally refined by a content
// analysis, to filter parameters. It has no side effects.
func Decide(settings VisionSettings, calibration float64, analysis *types.AnalysisResult) FilterParams {
	contrast := settings.ContrastBoost / 100
	edge := settings.EdgeEnhancement / 100

	if analysis != nil && !analysis.Fallback {
		switch analysis.ContentType {
		case types.ContentArticle, types.ContentEmail:
			edge = math.Min(1, edge*1.25+0.05)
		}
		if analysis.ContrastMap.Mean < vision.LowContrastThreshold {
			contrast = math.Min(1, contrast+0.1)
		}
	}

	return FilterParams{
		Blur:          Blur(settings.ReadingVision, calibration),
		Contrast:      1 + contrast,
		Brightness:    1 + contrast*0.05,
		Sharpen:       edge * 1.5,
		EdgeStrength:  edge * 0.5,
		LocalContrast: contrast * 0.5,
	}
}

// CSS renders the filter as a CSS filter declaration value
func (f FilterParams) CSS() string {
	return fmt.Sprintf("blur(%.2fpx) contrast(%.2f) brightness(%.2f)", f.Blur, f.Contrast, f.Brightness)
}

// TextShadow renders the edge-enhancing text shadow, or "" when the blur is
// strong enough that the shadow would double the glyphs
func (f FilterParams) TextShadow() string {
	if f.Blur >= ShadowVisibilityThreshold || f.EdgeStrength <= 0 {
		return ""
	}
	return fmt.Sprintf("0 0 %.2fpx rgba(0, 0, 0, %.2f)", 0.5+f.Blur, math.Min(f.EdgeStrength*1.2, 0.6))
}

// Processing converts the decision into pixel pipeline parameters
func (f FilterParams) Processing() processing.Params {
	return processing.Params{
		Sharpen:       f.Sharpen,
		SharpenSigma:  1.0,
		EdgeStrength:  f.EdgeStrength,
		LocalContrast: f.LocalContrast,
		TileSize:      32,
		Contrast:      (f.Contrast - 1) * 100,
		Brightness:    (f.Brightness - 1) * 100,
		Blur:          f.Blur,
	}
}
