// Package device classifies the display context as mobile, tablet or desktop.
//
// Viewport size is the primary signal; the user agent is secondary because
// it is easy to spoof and frequently wrong on narrow desktop windows. Each
// class maps to a fixed viewing distance and a fixed calibration adjustment.
package device

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
)

// Type is a coarse device class
type Type string

const (
	Mobile  Type = "mobile"
	Tablet  Type = "tablet"
	Desktop Type = "desktop"
)

// Viewport is the size of the visible page area in CSS pixels
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Environment is a read-only snapshot of the ambient runtime state
type Environment struct {
	Viewport       Viewport `json:"viewport"`
	UserAgent      string   `json:"userAgent"`
	TouchStart     bool     `json:"touchStart"`
	MaxTouchPoints int      `json:"maxTouchPoints"`
	CoarsePointer  bool     `json:"coarsePointer"`
}

// ViewportInfo is the classified viewport
type ViewportInfo struct {
	Width    int  `json:"width"`
	Height   int  `json:"height"`
	IsSmall  bool `json:"isSmall"`
	IsMedium bool `json:"isMedium"`
	IsLarge  bool `json:"isLarge"`
}

// Profile is the detection result for one environment snapshot
type Profile struct {
	DeviceType            Type         `json:"deviceType"`
	ViewingDistanceInches float64      `json:"viewingDistanceInches"`
	CalibrationAdjustment float64      `json:"calibrationAdjustment"`
	HasTouch              bool         `json:"hasTouch"`
	Viewport              ViewportInfo `json:"viewport"`
}

// GetAdjustedCalibration adds this profile's device offset to a base calibration
func (p Profile) GetAdjustedCalibration(base float64) float64 {
	return base + p.CalibrationAdjustment
}

// Config holds breakpoints and per-class constants
type Config struct {
	SmallBreakpoint  int              `json:"small_breakpoint"`
	MediumBreakpoint int              `json:"medium_breakpoint"`
	TallAspectRatio  float64          `json:"tall_aspect_ratio"`
	NarrowMaxWidth   int              `json:"narrow_max_width"`
	ViewingDistance  map[Type]float64 `json:"viewing_distance"`
	Adjustment       map[Type]float64 `json:"adjustment"`
}

// DefaultConfig returns the standard breakpoints and constants
func DefaultConfig() Config {
	return Config{
		SmallBreakpoint:  768,
		MediumBreakpoint: 1024,
		TallAspectRatio:  1.4,
		NarrowMaxWidth:   500,
		ViewingDistance: map[Type]float64{
			Mobile:  12,
			Tablet:  16,
			Desktop: 24,
		},
		Adjustment: map[Type]float64{
			Mobile:  2.0,
			Tablet:  1.0,
			Desktop: 0.0,
		},
	}
}

var (
	mobilePattern = regexp.MustCompile(`(?i)iphone|ipod|android.*mobile|blackberry|iemobile|opera mini|windows phone|webos|mobile safari`)
	tabletPattern = regexp.MustCompile(`(?i)ipad|tablet|kindle|silk|playbook`)
	androidRe     = regexp.MustCompile(`(?i)android`)
	mobileWordRe  = regexp.MustCompile(`(?i)mobile`)
)

// Detector classifies environments
type Detector struct {
	config Config
}

// New creates a Detector with default configuration
func New() *Detector {
	return &Detector{config: DefaultConfig()}
}

// NewWithConfig creates a Detector with custom configuration
func NewWithConfig(config Config) *Detector {
	return &Detector{config: config}
}

// Config returns the detector configuration
func (d *Detector) Config() Config {
	return d.config
}

// IsMobileUserAgent reports whether the user agent looks like a phone
func IsMobileUserAgent(ua string) bool {
	return mobilePattern.MatchString(ua)
}

// IsTabletUserAgent reports whether the user agent looks like a tablet.
// Android without the "Mobile" token is a tablet by convention.
func IsTabletUserAgent(ua string) bool {
	if tabletPattern.MatchString(ua) {
		return true
	}
	return androidRe.MatchString(ua) && !mobileWordRe.MatchString(ua)
}

// HasTouch reports touch capability; it never influences the device class
func HasTouch(env Environment) bool {
	return env.TouchStart || env.MaxTouchPoints > 0 || env.CoarsePointer
}

// Detect classifies an environment snapshot
func (d *Detector) Detect(env Environment) Profile {
	width, height := env.Viewport.Width, env.Viewport.Height

	isMobileUA := IsMobileUserAgent(env.UserAgent)
	isTabletUA := IsTabletUserAgent(env.UserAgent)

	isSmall := width < d.config.SmallBreakpoint
	isMedium := width >= d.config.SmallBreakpoint && width <= d.config.MediumBreakpoint

	// Tall, narrow viewports are phones even when the UA claims desktop.
	mobileByDimensions := false
	if width > 0 {
		aspect := float64(height) / float64(width)
		mobileByDimensions = aspect > d.config.TallAspectRatio && width <= d.config.NarrowMaxWidth
	}

	var deviceType Type
	switch {
	case (isMobileUA || mobileByDimensions) && !(isTabletUA && !mobileByDimensions):
		deviceType = Mobile
	case isTabletUA || isMedium:
		deviceType = Tablet
	case isSmall:
		deviceType = Mobile
	default:
		deviceType = Desktop
	}

	return Profile{
		DeviceType:            deviceType,
		ViewingDistanceInches: d.config.ViewingDistance[deviceType],
		CalibrationAdjustment: d.config.Adjustment[deviceType],
		HasTouch:              HasTouch(env),
		Viewport: ViewportInfo{
			Width:    width,
			Height:   height,
			IsSmall:  isSmall,
			IsMedium: isMedium,
			IsLarge:  width > d.config.MediumBreakpoint,
		},
	}
}

// FromRequest builds an environment from an HTTP request. The user agent is
// taken from the header; viewport and touch hints come from the width,
// height, touch and pointer query parameters.
func FromRequest(r *http.Request) Environment {
	q := r.URL.Query()
	env := Environment{
		UserAgent: r.Header.Get("User-Agent"),
		Viewport: Viewport{
			Width:  queryInt(q.Get("width")),
			Height: queryInt(q.Get("height")),
		},
		MaxTouchPoints: queryInt(q.Get("touchPoints")),
		CoarsePointer:  strings.EqualFold(q.Get("pointer"), "coarse"),
	}
	env.TouchStart, _ = strconv.ParseBool(q.Get("touch"))
	return env
}

func queryInt(s string) int {
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
