package correction

import (
	"fmt"

	"github.com/menta2k/vision-correct/pkg/scale"
)

// VisionSettings are the user-facing correction controls
type VisionSettings struct {
	ReadingVision   float64 `json:"readingVision"`   // internal-scale diopters
	ContrastBoost   float64 `json:"contrastBoost"`   // percent, 0..100
	EdgeEnhancement float64 `json:"edgeEnhancement"` // percent, 0..100
	IsEnabled       bool    `json:"isEnabled"`
}

// DefaultSettings returns the settings a fresh engine starts with
func DefaultSettings() VisionSettings {
	return VisionSettings{
		ReadingVision:   0,
		ContrastBoost:   10,
		EdgeEnhancement: 20,
		IsEnabled:       true,
	}
}

// Validate checks every field is within its range
func (s VisionSettings) Validate() error {
	if !scale.IsValidInternalScale(s.ReadingVision) {
		return fmt.Errorf("reading vision %.2f outside %.2f..%.2f",
			s.ReadingVision, scale.Default.InternalMin, scale.Default.InternalMax)
	}
	if s.ContrastBoost < 0 || s.ContrastBoost > 100 {
		return fmt.Errorf("contrast boost %.1f outside 0..100", s.ContrastBoost)
	}
	if s.EdgeEnhancement < 0 || s.EdgeEnhancement > 100 {
		return fmt.Errorf("edge enhancement %.1f outside 0..100", s.EdgeEnhancement)
	}
	return nil
}

// SettingsPatch is a partial settings update; nil fields are left unchanged
type SettingsPatch struct {
	ReadingVision   *float64 `json:"readingVision,omitempty"`
	ContrastBoost   *float64 `json:"contrastBoost,omitempty"`
	EdgeEnhancement *float64 `json:"edgeEnhancement,omitempty"`
	IsEnabled       *bool    `json:"isEnabled,omitempty"`
}

// Apply returns s with the patch merged in
func (p SettingsPatch) Apply(s VisionSettings) VisionSettings {
	if p.ReadingVision != nil {
		s.ReadingVision = *p.ReadingVision
	}
	if p.ContrastBoost != nil {
		s.ContrastBoost = *p.ContrastBoost
	}
	if p.EdgeEnhancement != nil {
		s.EdgeEnhancement = *p.EdgeEnhancement
	}
	if p.IsEnabled != nil {
		s.IsEnabled = *p.IsEnabled
	}
	return s
}

// Empty reports whether the patch changes nothing
func (p SettingsPatch) Empty() bool {
	return p.ReadingVision == nil && p.ContrastBoost == nil && p.EdgeEnhancement == nil && p.IsEnabled == nil
}
