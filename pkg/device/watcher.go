package device

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EnvironmentSource provides the current environment and resize notifications
type EnvironmentSource interface {
	Environment() Environment
	// OnResize registers fn for resize events and returns an unsubscribe func
	OnResize(fn func()) (unsubscribe func())
}

// Watcher keeps a Profile current by re-detecting on every resize event
type Watcher struct {
	detector *Detector
	source   EnvironmentSource

	mu          sync.RWMutex
	profile     Profile
	unsubscribe func()
	listeners   []func(Profile)
}

// NewWatcher creates a watcher; call Start to subscribe
func NewWatcher(detector *Detector, source EnvironmentSource) *Watcher {
	if detector == nil {
		detector = New()
	}
	return &Watcher{detector: detector, source: source}
}

// Start computes the initial profile and subscribes to resize events.
// Calling Start on a running watcher is a no-op.
func (w *Watcher) Start() Profile {
	w.mu.Lock()
	if w.unsubscribe != nil {
		p := w.profile
		w.mu.Unlock()
		return p
	}
	w.profile = w.detector.Detect(w.source.Environment())
	w.unsubscribe = w.source.OnResize(w.refresh)
	p := w.profile
	w.mu.Unlock()
	return p
}

// Stop unsubscribes from resize events
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.unsubscribe != nil {
		w.unsubscribe()
		w.unsubscribe = nil
	}
}

// Profile returns the most recent detection result
func (w *Watcher) Profile() Profile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.profile
}

// OnChange registers fn to be called with each recomputed profile
func (w *Watcher) OnChange(fn func(Profile)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

func (w *Watcher) refresh() {
	p := w.detector.Detect(w.source.Environment())

	w.mu.Lock()
	prev := w.profile.DeviceType
	w.profile = p
	listeners := append([]func(Profile){}, w.listeners...)
	w.mu.Unlock()

	if prev != p.DeviceType {
		log.Debug().Str("from", string(prev)).Str("to", string(p.DeviceType)).
			Int("width", p.Viewport.Width).Msg("device class changed")
	}
	for _, fn := range listeners {
		fn(p)
	}
}

// StaticSource is an EnvironmentSource whose environment is set explicitly,
// firing resize listeners on each Resize call.
type StaticSource struct {
	mu        sync.Mutex
	env       Environment
	nextID    int
	listeners map[int]func()
}

// NewStaticSource creates a source with an initial environment
func NewStaticSource(env Environment) *StaticSource {
	return &StaticSource{env: env, listeners: make(map[int]func())}
}

// Environment returns the current snapshot
func (s *StaticSource) Environment() Environment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env
}

// OnResize registers a resize listener
func (s *StaticSource) OnResize(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Resize updates the viewport and notifies listeners
func (s *StaticSource) Resize(width, height int) {
	s.mu.Lock()
	s.env.Viewport = Viewport{Width: width, Height: height}
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// ListenerCount reports the number of active resize subscriptions
func (s *StaticSource) ListenerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}
