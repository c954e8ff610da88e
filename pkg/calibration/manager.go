package calibration

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/pkg/device"
	"github.com/menta2k/vision-correct/pkg/scale"
)

// State is the calibration as currently persisted
type State struct {
	Calibrated      bool    `json:"calibrated"`
	Enabled         bool    `json:"enabled"`
	InternalDesktop float64 `json:"internalDesktop"`
	UserDesktop     float64 `json:"userDesktop"`
	Prescription    string  `json:"prescription,omitempty"`
	Description     string  `json:"description,omitempty"`
}

// Manager owns the calibration keys of a Store. It recomputes its State on
// every change event, including writes made through other managers sharing
// the same bus.
type Manager struct {
	store   Store
	bus     *Bus
	mapping scale.Mapping
	metrics *metrics.Metrics

	mu      sync.RWMutex
	state   State
	profile device.Profile

	unsubscribe func()
}

// NewManager creates a manager over store. Writes go through an
// ObservedStore on bus so every manager on the bus sees them.
func NewManager(store Store, bus *Bus) *Manager {
	if bus == nil {
		bus = NewBus()
	}
	m := &Manager{
		store:   Observe(store, bus),
		bus:     bus,
		mapping: scale.Default,
	}
	m.refresh()
	m.unsubscribe = bus.Subscribe(func(Event) { m.refresh() })
	return m
}

// WithMapping replaces the scale constants
func (m *Manager) WithMapping(mapping scale.Mapping) *Manager {
	m.mapping = mapping
	m.refresh()
	return m
}

// WithMetrics attaches a metrics sink
func (m *Manager) WithMetrics(mt *metrics.Metrics) *Manager {
	m.metrics = mt
	return m
}

// Bus returns the change bus
func (m *Manager) Bus() *Bus {
	return m.bus
}

// Calibrate validates a desktop slider value, persists its internal-scale
// equivalent and enables the calibration
func (m *Manager) Calibrate(userDesktop float64) (scale.CalibrationValues, error) {
	values, err := m.mapping.CalculateCalibrationValues(userDesktop)
	if err != nil {
		return scale.CalibrationValues{}, err
	}

	value := strconv.FormatFloat(values.DesktopInternal, 'f', -1, 64)
	if err := m.store.Set(KeyCalibrationValue, value); err != nil {
		return scale.CalibrationValues{}, fmt.Errorf("failed to save calibration: %w", err)
	}
	if err := m.store.Set(KeyCalibrationEnabled, "true"); err != nil {
		return scale.CalibrationValues{}, fmt.Errorf("failed to enable calibration: %w", err)
	}

	m.metrics.CalibrationChanged()
	log.Info().
		Float64("user", values.DesktopUser).
		Float64("internal", values.DesktopInternal).
		Msg("Calibration saved")

	return values, nil
}

// SetEnabled toggles the calibration without forgetting the stored value
func (m *Manager) SetEnabled(enabled bool) error {
	if err := m.store.Set(KeyCalibrationEnabled, strconv.FormatBool(enabled)); err != nil {
		return fmt.Errorf("failed to toggle calibration: %w", err)
	}
	m.metrics.CalibrationChanged()
	return nil
}

// SetPrescription stores the user's written prescription as entered
func (m *Manager) SetPrescription(value string) error {
	if err := m.store.Set(KeyPrescriptionValue, value); err != nil {
		return fmt.Errorf("failed to save prescription: %w", err)
	}
	return nil
}

// State returns the current derived state
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// EffectiveValue is the internal calibration for profile's device class,
// or 0 when there is no enabled calibration
func (m *Manager) EffectiveValue(profile device.Profile) float64 {
	st := m.State()
	if !st.Calibrated || !st.Enabled {
		return 0
	}
	return profile.GetAdjustedCalibration(st.InternalDesktop)
}

// SetProfile sets the device profile used by CalibrationValue
func (m *Manager) SetProfile(profile device.Profile) {
	m.mu.Lock()
	m.profile = profile
	m.mu.Unlock()
}

// CalibrationValue returns the effective value for the current profile
func (m *Manager) CalibrationValue() float64 {
	m.mu.RLock()
	profile := m.profile
	m.mu.RUnlock()
	return m.EffectiveValue(profile)
}

// Close detaches the manager from its bus
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Manager) refresh() {
	st := State{Enabled: true}

	if raw, ok := m.store.Get(KeyCalibrationValue); ok {
		v, err := strconv.ParseFloat(raw, 64)
		switch {
		case err != nil:
			log.Warn().Str("key", KeyCalibrationValue).Str("value", raw).Msg("Ignoring unparseable calibration")
		case !m.mapping.IsValidInternalScale(v):
			log.Warn().Str("key", KeyCalibrationValue).Float64("value", v).Msg("Ignoring out of range calibration")
		default:
			st.Calibrated = true
			st.InternalDesktop = v
			st.UserDesktop = m.mapping.InternalToUserScale(v)
			st.Description = scale.GetUserScaleDescription(st.UserDesktop)
		}
	}

	if raw, ok := m.store.Get(KeyCalibrationEnabled); ok {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			log.Warn().Str("key", KeyCalibrationEnabled).Str("value", raw).Msg("Ignoring unparseable flag")
		} else {
			st.Enabled = enabled
		}
	}

	if raw, ok := m.store.Get(KeyPrescriptionValue); ok {
		st.Prescription = raw
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()
}
