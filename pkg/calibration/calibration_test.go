package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/pkg/device"
	"github.com/menta2k/vision-correct/pkg/scale"
)

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	if _, ok := s.Get(KeyCalibrationValue); ok {
		t.Error("Expected empty store")
	}
	s.Set(KeyCalibrationValue, "-2")
	s.Set(KeyCalibrationValue, "-1.5")
	if v, _ := s.Get(KeyCalibrationValue); v != "-1.5" {
		t.Errorf("Expected last write to win, got %q", v)
	}
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "calibration.json")

	s := NewFileStore(path)
	if _, ok := s.Get(KeyCalibrationValue); ok {
		t.Error("Expected missing file to read as empty")
	}
	if err := s.Set(KeyCalibrationValue, "-2"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := s.Set(KeyPrescriptionValue, "+2.00"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// A second store over the same file sees both writes
	other := NewFileStore(path)
	if v, ok := other.Get(KeyCalibrationValue); !ok || v != "-2" {
		t.Errorf("Expected -2, got %q (%v)", v, ok)
	}
	if v, _ := other.Get(KeyPrescriptionValue); v != "+2.00" {
		t.Errorf("Expected +2.00, got %q", v)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.Get(KeyCalibrationValue); ok {
		t.Error("Expected corrupt file to read as empty")
	}
	if err := s.Set(KeyCalibrationValue, "0"); err == nil {
		t.Error("Expected Set to refuse overwriting a corrupt file")
	}
}

func TestBus(t *testing.T) {
	bus := NewBus()
	var got []Event
	unsubscribe := bus.Subscribe(func(ev Event) { got = append(got, ev) })

	store := Observe(NewMemoryStore(), bus)
	store.Set(KeyCalibrationValue, "-2")
	store.Set(KeyCalibrationEnabled, "false")

	if len(got) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(got))
	}
	if got[0].Kind != EventStorageChange || got[0].Key != KeyCalibrationValue {
		t.Errorf("Unexpected first event %+v", got[0])
	}
	if got[2].Kind != EventCalibrationToggled || got[2].Value != "false" {
		t.Errorf("Expected toggle event, got %+v", got[2])
	}
	if got[0].Time.IsZero() {
		t.Error("Expected event timestamp")
	}

	unsubscribe()
	store.Set(KeyCalibrationValue, "-1")
	if len(got) != 3 {
		t.Error("Expected no events after unsubscribe")
	}
	if bus.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers, got %d", bus.Subscribers())
	}
}

func TestManagerCalibrate(t *testing.T) {
	store := NewMemoryStore()
	mt := metrics.New()
	m := NewManager(store, nil).WithMetrics(mt)
	defer m.Close()

	if st := m.State(); st.Calibrated {
		t.Error("Fresh manager should not be calibrated")
	}
	if v := m.CalibrationValue(); v != 0 {
		t.Errorf("Expected 0 without calibration, got %f", v)
	}

	values, err := m.Calibrate(2.0)
	if err != nil {
		t.Fatalf("Calibrate failed: %v", err)
	}
	if values.DesktopInternal != -2.0 || values.MobileInternal != 0.0 {
		t.Errorf("Unexpected values %+v", values)
	}
	if raw, _ := store.Get(KeyCalibrationValue); raw != "-2" {
		t.Errorf("Expected stored value -2, got %q", raw)
	}

	st := m.State()
	if !st.Calibrated || !st.Enabled || st.UserDesktop != 2.0 || st.Description != "Mild presbyopia" {
		t.Errorf("Unexpected state %+v", st)
	}
	if mt.CalibrationChanges.Load() != 1 {
		t.Errorf("Expected 1 calibration change, got %d", mt.CalibrationChanges.Load())
	}
}

func TestManagerCalibrateOutOfRange(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	defer m.Close()

	for _, v := range []float64{-0.25, 8} {
		_, err := m.Calibrate(v)
		if !errors.Is(err, scale.ErrOutOfRange) {
			t.Errorf("Expected ErrOutOfRange for %.2f, got %v", v, err)
		}
	}
	if m.State().Calibrated {
		t.Error("Rejected input must not be persisted")
	}
}

func TestManagerEffectiveValue(t *testing.T) {
	m := NewManager(NewMemoryStore(), nil)
	defer m.Close()
	m.Calibrate(2.0)

	desktop := device.Profile{DeviceType: device.Desktop, CalibrationAdjustment: 0}
	tablet := device.Profile{DeviceType: device.Tablet, CalibrationAdjustment: 1}
	mobile := device.Profile{DeviceType: device.Mobile, CalibrationAdjustment: 2}

	if v := m.EffectiveValue(desktop); v != -2.0 {
		t.Errorf("Expected -2.0 on desktop, got %f", v)
	}
	if v := m.EffectiveValue(tablet); v != -1.0 {
		t.Errorf("Expected -1.0 on tablet, got %f", v)
	}
	if v := m.EffectiveValue(mobile); v != 0.0 {
		t.Errorf("Expected 0.0 on mobile, got %f", v)
	}

	m.SetProfile(mobile)
	if v := m.CalibrationValue(); v != 0.0 {
		t.Errorf("Expected CalibrationValue to follow the profile, got %f", v)
	}

	if err := m.SetEnabled(false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	if v := m.EffectiveValue(desktop); v != 0 {
		t.Errorf("Expected 0 while disabled, got %f", v)
	}
	if !m.State().Calibrated {
		t.Error("Disabling must keep the stored value")
	}

	m.SetEnabled(true)
	if v := m.EffectiveValue(desktop); v != -2.0 {
		t.Errorf("Expected -2.0 after re-enabling, got %f", v)
	}
}

func TestManagerSharedBus(t *testing.T) {
	store := NewMemoryStore()
	bus := NewBus()

	a := NewManager(store, bus)
	b := NewManager(store, bus)
	defer a.Close()
	defer b.Close()

	a.Calibrate(3.0)
	if st := b.State(); !st.Calibrated || st.InternalDesktop != -1.0 {
		t.Errorf("Expected peer manager to see the calibration, got %+v", st)
	}

	b.SetEnabled(false)
	if a.State().Enabled {
		t.Error("Expected peer manager to see the toggle")
	}

	a.SetPrescription("+2.25")
	if b.State().Prescription != "+2.25" {
		t.Errorf("Expected prescription to propagate, got %q", b.State().Prescription)
	}
}

func TestManagerBadStoredValues(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"unparseable", "abc"},
		{"above range", "3.75"},
		{"below range", "-4.25"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			store.Set(KeyCalibrationValue, tt.value)

			m := NewManager(store, nil)
			defer m.Close()

			if m.State().Calibrated {
				t.Errorf("Expected %q to read as not calibrated", tt.value)
			}
			if v := m.CalibrationValue(); v != 0 {
				t.Errorf("Expected 0, got %f", v)
			}
		})
	}
}

func TestManagerClose(t *testing.T) {
	bus := NewBus()
	m := NewManager(NewMemoryStore(), bus)
	if bus.Subscribers() != 1 {
		t.Fatalf("Expected 1 subscriber, got %d", bus.Subscribers())
	}
	m.Close()
	m.Close()
	if bus.Subscribers() != 0 {
		t.Errorf("Expected 0 subscribers after Close, got %d", bus.Subscribers())
	}
}
