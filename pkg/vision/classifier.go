package vision

import "github.com/menta2k/vision-correct/pkg/types"

// Classification thresholds. These are heuristics, not guarantees.
const (
	articleDensity = 0.4
	emailDensity   = 0.2
	uiRegionCount  = 10
)

// TextDensity is the share of the frame covered by text regions
func TextDensity(regions []types.TextRegion, width, height int) float64 {
	area := width * height
	if area <= 0 {
		return 0
	}
	covered := 0
	for _, r := range regions {
		covered += r.Area()
	}
	return float64(covered) / float64(area)
}

// ClassifyContent labels a frame from its text regions
func ClassifyContent(regions []types.TextRegion, width, height int) types.ContentType {
	density := TextDensity(regions, width, height)

	switch {
	case density > articleDensity:
		return types.ContentArticle
	case density > emailDensity:
		return types.ContentEmail
	case len(regions) > uiRegionCount:
		return types.ContentUI
	default:
		return types.ContentMixed
	}
}
