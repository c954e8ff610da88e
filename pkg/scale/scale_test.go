package scale

import (
	"errors"
	"math"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	for x := Default.UserMin; x <= Default.UserMax; x += 0.25 {
		got := InternalToUserScale(UserToInternalScale(x))
		if math.Abs(got-x) > 1e-9 {
			t.Errorf("round trip of %.2f gave %.10f", x, got)
		}
	}
}

func TestOffsetScenario(t *testing.T) {
	if got := UserToInternalScale(0.0); got != -4.0 {
		t.Errorf("Expected UserToInternalScale(0) = -4.0, got %f", got)
	}
	if got := InternalToUserScale(-4.0); got != 0.0 {
		t.Errorf("Expected InternalToUserScale(-4) = 0.0, got %f", got)
	}
}

func TestMobileAdjustmentMonotonic(t *testing.T) {
	for _, a := range []float64{-4, -1.5, 0, 2.25, 3.5} {
		if got := ApplyMobileAdjustment(a); got < a {
			t.Errorf("ApplyMobileAdjustment(%f) = %f, should not decrease", a, got)
		}
	}

	zero := Default
	zero.MobileAdjustment = 0
	if got := zero.ApplyMobileAdjustment(1.25); got != 1.25 {
		t.Errorf("Expected no change with zero adjustment, got %f", got)
	}
}

func TestValidity(t *testing.T) {
	tests := []struct {
		value    float64
		user     bool
		internal bool
	}{
		{0, true, true},
		{7.5, true, false},
		{-4, false, true},
		{3.5, true, true},
		{7.51, false, false},
		{-0.01, false, true},
	}

	for _, test := range tests {
		if got := IsValidUserScale(test.value); got != test.user {
			t.Errorf("IsValidUserScale(%f) = %v, expected %v", test.value, got, test.user)
		}
		if got := IsValidInternalScale(test.value); got != test.internal {
			t.Errorf("IsValidInternalScale(%f) = %v, expected %v", test.value, got, test.internal)
		}
	}
}

func TestRoundToDiopter(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{1.1, 1.0},
		{1.13, 1.25},
		{-0.3, -0.25},
		{2.374, 2.25},
		{2.376, 2.5},
	}

	for _, test := range tests {
		if got := RoundToDiopter(test.input); got != test.expected {
			t.Errorf("RoundToDiopter(%f) = %f, expected %f", test.input, got, test.expected)
		}
	}
}

func TestGetUserScaleDescriptionMonotonic(t *testing.T) {
	index := func(desc string) int {
		for i, b := range Bands {
			if b.Description == desc {
				return i
			}
		}
		return -1
	}

	last := -1
	for x := 0.0; x <= 7.5; x += 0.25 {
		i := index(GetUserScaleDescription(x))
		if i < 0 {
			t.Fatalf("no band for %f", x)
		}
		if i < last {
			t.Errorf("band index decreased at %f: %d < %d", x, i, last)
		}
		last = i
	}

	if GetUserScaleDescription(0) != "Minimal correction" {
		t.Errorf("unexpected band for 0: %s", GetUserScaleDescription(0))
	}
	if GetUserScaleDescription(7.5) != "Severe presbyopia" {
		t.Errorf("unexpected band for 7.5: %s", GetUserScaleDescription(7.5))
	}
}

func TestCalculateCalibrationValues(t *testing.T) {
	values, err := CalculateCalibrationValues(2.5)
	if err != nil {
		t.Fatalf("CalculateCalibrationValues failed: %v", err)
	}

	if values.DesktopInternal != -1.5 {
		t.Errorf("Expected desktop internal -1.5, got %f", values.DesktopInternal)
	}
	if values.MobileInternal != 0.5 {
		t.Errorf("Expected mobile internal 0.5, got %f", values.MobileInternal)
	}
	if values.MobileUser != 4.5 {
		t.Errorf("Expected mobile user 4.5, got %f", values.MobileUser)
	}
	if values.MobileAdjustment != Default.MobileAdjustment {
		t.Errorf("Expected adjustment %f, got %f", Default.MobileAdjustment, values.MobileAdjustment)
	}
	if values.DesktopDescription != "Moderate presbyopia" {
		t.Errorf("Unexpected desktop description %q", values.DesktopDescription)
	}
}

func TestCalculateCalibrationValuesRejectsOutOfRange(t *testing.T) {
	for _, v := range []float64{-0.25, 7.75, math.NaN()} {
		_, err := CalculateCalibrationValues(v)
		if err == nil {
			t.Errorf("Expected error for %f", v)
			continue
		}
		if !errors.Is(err, ErrOutOfRange) {
			t.Errorf("Expected ErrOutOfRange for %f, got %v", v, err)
		}
		var rangeErr *RangeError
		if !errors.As(err, &rangeErr) {
			t.Errorf("Expected *RangeError for %f", v)
		}
	}
}

func TestMappingValidate(t *testing.T) {
	if err := Default.Validate(); err != nil {
		t.Errorf("Default mapping should be valid: %v", err)
	}

	broken := Default
	broken.InternalMax = 5
	if err := broken.Validate(); err == nil {
		t.Error("Mapping with inconsistent offset should fail validation")
	}

	negative := Default
	negative.MobileAdjustment = -1
	if err := negative.Validate(); err == nil {
		t.Error("Negative mobile adjustment should fail validation")
	}
}

func TestFormatDiopter(t *testing.T) {
	tests := map[float64]string{
		0:    "0.00D",
		1.25: "+1.25D",
		-2.5: "-2.50D",
		7.5:  "+7.50D",
	}
	for in, want := range tests {
		if got := FormatDiopter(in); got != want {
			t.Errorf("FormatDiopter(%f) = %s, expected %s", in, got, want)
		}
	}
}
