// Package scale converts between the user-facing diopter scale shown on the
// calibration slider and the internal scale used by the blur model.
//
// The two scales are related by a fixed additive offset. Mobile and tablet
// displays add a further offset on the internal scale only.
package scale

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned when a calibration input falls outside the user scale
var ErrOutOfRange = errors.New("calibration value out of range")

// RangeError describes an out-of-range calibration input
type RangeError struct {
	Value float64
	Min   float64
	Max   float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("user scale value %.2fD outside %.2fD-%.2fD", e.Value, e.Min, e.Max)
}

// Unwrap lets errors.Is match ErrOutOfRange
func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// Mapping holds one deployment's scale constants
type Mapping struct {
	Offset           float64 `json:"offset"`
	UserMin          float64 `json:"user_min"`
	UserMax          float64 `json:"user_max"`
	InternalMin      float64 `json:"internal_min"`
	InternalMax      float64 `json:"internal_max"`
	MobileAdjustment float64 `json:"mobile_adjustment"`
}

// Default is the authoritative constant set: 0.00D-7.50D user scale,
// -4.00D..+3.50D internal scale, +2.00D on mobile.
var Default = Mapping{
	Offset:           4.0,
	UserMin:          0.0,
	UserMax:          7.5,
	InternalMin:      -4.0,
	InternalMax:      3.5,
	MobileAdjustment: 2.0,
}

// Band is a named severity range on the user scale, [From, To)
type Band struct {
	From        float64
	To          float64
	Description string
}

// Bands are ordered and non-overlapping; the last band is open ended.
var Bands = []Band{
	{From: math.Inf(-1), To: 1.0, Description: "Minimal correction"},
	{From: 1.0, To: 2.5, Description: "Mild presbyopia"},
	{From: 2.5, To: 4.0, Description: "Moderate presbyopia"},
	{From: 4.0, To: 5.5, Description: "Advanced presbyopia"},
	{From: 5.5, To: math.Inf(1), Description: "Severe presbyopia"},
}

// CalibrationValues is everything a calibration screen needs to display
type CalibrationValues struct {
	DesktopUser        float64 `json:"desktopUser"`
	DesktopInternal    float64 `json:"desktopInternal"`
	MobileUser         float64 `json:"mobileUser"`
	MobileInternal     float64 `json:"mobileInternal"`
	DesktopDescription string  `json:"desktopDescription"`
	MobileDescription  string  `json:"mobileDescription"`
	MobileAdjustment   float64 `json:"mobileAdjustment"`
}

// UserToInternalScale maps a slider value onto the internal scale
func (m Mapping) UserToInternalScale(u float64) float64 {
	return u - m.Offset
}

// InternalToUserScale maps an internal value back onto the slider scale
func (m Mapping) InternalToUserScale(i float64) float64 {
	return i + m.Offset
}

// ApplyMobileAdjustment adds the mobile offset to an internal desktop value
func (m Mapping) ApplyMobileAdjustment(internalDesktop float64) float64 {
	return internalDesktop + m.MobileAdjustment
}

// IsValidUserScale reports whether x lies within the user scale, inclusive
func (m Mapping) IsValidUserScale(x float64) bool {
	return x >= m.UserMin && x <= m.UserMax
}

// IsValidInternalScale reports whether x lies within the internal scale, inclusive
func (m Mapping) IsValidInternalScale(x float64) bool {
	return x >= m.InternalMin && x <= m.InternalMax
}

// CalculateCalibrationValues validates a desktop slider value and derives
// the desktop and mobile values on both scales. Out-of-range input fails;
// it is never clamped.
func (m Mapping) CalculateCalibrationValues(userDesktop float64) (CalibrationValues, error) {
	if math.IsNaN(userDesktop) || !m.IsValidUserScale(userDesktop) {
		return CalibrationValues{}, &RangeError{Value: userDesktop, Min: m.UserMin, Max: m.UserMax}
	}

	desktopInternal := m.UserToInternalScale(userDesktop)
	mobileInternal := m.ApplyMobileAdjustment(desktopInternal)
	mobileUser := m.InternalToUserScale(mobileInternal)

	return CalibrationValues{
		DesktopUser:        userDesktop,
		DesktopInternal:    desktopInternal,
		MobileUser:         mobileUser,
		MobileInternal:     mobileInternal,
		DesktopDescription: GetUserScaleDescription(userDesktop),
		MobileDescription:  GetUserScaleDescription(mobileUser),
		MobileAdjustment:   m.MobileAdjustment,
	}, nil
}

// Validate checks the constant set for internal consistency
func (m Mapping) Validate() error {
	if m.UserMin > m.UserMax {
		return fmt.Errorf("user scale min %.2f exceeds max %.2f", m.UserMin, m.UserMax)
	}
	if m.InternalMin > m.InternalMax {
		return fmt.Errorf("internal scale min %.2f exceeds max %.2f", m.InternalMin, m.InternalMax)
	}
	if math.Abs(m.UserToInternalScale(m.UserMin)-m.InternalMin) > 1e-9 ||
		math.Abs(m.UserToInternalScale(m.UserMax)-m.InternalMax) > 1e-9 {
		return fmt.Errorf("scale bounds are not related by offset %.2f", m.Offset)
	}
	if m.MobileAdjustment < 0 {
		return fmt.Errorf("mobile adjustment must not be negative")
	}
	return nil
}

// UserToInternalScale maps a slider value using the default mapping
func UserToInternalScale(u float64) float64 { return Default.UserToInternalScale(u) }

// InternalToUserScale maps an internal value using the default mapping
func InternalToUserScale(i float64) float64 { return Default.InternalToUserScale(i) }

// ApplyMobileAdjustment uses the default mapping
func ApplyMobileAdjustment(internalDesktop float64) float64 {
	return Default.ApplyMobileAdjustment(internalDesktop)
}

// IsValidUserScale uses the default mapping
func IsValidUserScale(x float64) bool { return Default.IsValidUserScale(x) }

// IsValidInternalScale uses the default mapping
func IsValidInternalScale(x float64) bool { return Default.IsValidInternalScale(x) }

// CalculateCalibrationValues uses the default mapping
func CalculateCalibrationValues(userDesktop float64) (CalibrationValues, error) {
	return Default.CalculateCalibrationValues(userDesktop)
}

// RoundToDiopter rounds to the nearest 0.25D step
func RoundToDiopter(x float64) float64 {
	return math.Round(x*4) / 4
}

// GetUserScaleDescription names the severity band a user-scale value falls in
func GetUserScaleDescription(x float64) string {
	for _, b := range Bands {
		if x >= b.From && x < b.To {
			return b.Description
		}
	}
	return Bands[len(Bands)-1].Description
}

// FormatDiopter renders a value as a signed diopter label, e.g. "+1.25D"
func FormatDiopter(x float64) string {
	if x == 0 {
		return "0.00D"
	}
	return fmt.Sprintf("%+.2fD", x)
}
