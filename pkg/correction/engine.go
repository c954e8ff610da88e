package correction

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/pkg/processing"
	"github.com/menta2k/vision-correct/pkg/types"
)

// ErrEngineClosed is returned when a video task is started after Close
var ErrEngineClosed = errors.New("correction engine closed")

// CalibrationSource supplies the internal-scale calibration value the blur is
// measured against
type CalibrationSource interface {
	CalibrationValue() float64
}

// StaticCalibration is a fixed calibration value
type StaticCalibration float64

// CalibrationValue implements CalibrationSource
func (c StaticCalibration) CalibrationValue() float64 { return float64(c) }

// ContentAnalyzer refines decisions for canvas-processed images
type ContentAnalyzer interface {
	AnalyzeSync(types.PixelBuffer) types.AnalysisResult
}

// Config holds configuration for the correction engine
type Config struct {
	PageOrigin    string         // origin the page is served from
	CORSHosts     []string       // hosts known to send CORS headers
	FrameInterval time.Duration  // video redraw period
	Settings      VisionSettings // initial settings
}

// DefaultConfig returns the standard engine configuration
func DefaultConfig() Config {
	return Config{
		FrameInterval: DefaultFrameInterval,
		Settings:      DefaultSettings(),
	}
}

// Engine applies vision correction to page elements and tracks which
// elements have been processed under the current settings
type Engine struct {
	config Config

	mu       sync.RWMutex
	settings VisionSettings

	states    *stateTable
	surface   *Surface
	processor *processing.Processor

	loader      ImageLoader
	analyzer    ContentAnalyzer
	calibration CalibrationSource
	clock       FrameClock
	metrics     *metrics.Metrics

	videoMu sync.Mutex
	videos  map[string]*videoTask
	closed  bool
}

// New creates an engine with default configuration
func New() *Engine {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an engine with custom configuration
func NewWithConfig(config Config) *Engine {
	processor := processing.NewProcessor()
	return &Engine{
		config:      config,
		settings:    config.Settings,
		states:      newStateTable(),
		surface:     &Surface{},
		processor:   processor,
		loader:      NewHTTPLoader(config.PageOrigin, processor),
		calibration: StaticCalibration(0),
		clock:       TickerClock{Interval: config.FrameInterval},
		videos:      make(map[string]*videoTask),
	}
}

// WithLoader replaces the image loader
func (e *Engine) WithLoader(loader ImageLoader) *Engine {
	e.loader = loader
	return e
}

// WithAnalyzer enables content-aware refinement of canvas processing
func (e *Engine) WithAnalyzer(analyzer ContentAnalyzer) *Engine {
	e.analyzer = analyzer
	return e
}

// WithCalibration sets where the calibration value is read from
func (e *Engine) WithCalibration(source CalibrationSource) *Engine {
	e.calibration = source
	return e
}

// WithClock replaces the video frame clock
func (e *Engine) WithClock(clock FrameClock) *Engine {
	e.clock = clock
	return e
}

// WithMetrics attaches a metrics sink
func (e *Engine) WithMetrics(m *metrics.Metrics) *Engine {
	e.metrics = m
	return e
}

// Settings returns a snapshot of the current settings
func (e *Engine) Settings() VisionSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// CurrentFilter is the decision the engine would make right now without
// content analysis
func (e *Engine) CurrentFilter() FilterParams {
	return Decide(e.Settings(), e.calibration.CalibrationValue(), nil)
}

// UpdateSettings merges patch into the settings and makes every tracked
// element eligible for processing again. An invalid result is rejected and
// nothing changes.
func (e *Engine) UpdateSettings(patch SettingsPatch) error {
	e.mu.Lock()
	next := patch.Apply(e.settings)
	if err := next.Validate(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("invalid settings: %w", err)
	}
	e.settings = next
	e.mu.Unlock()

	e.states.clear()
	log.Debug().
		Float64("readingVision", next.ReadingVision).
		Float64("contrastBoost", next.ContrastBoost).
		Float64("edgeEnhancement", next.EdgeEnhancement).
		Bool("enabled", next.IsEnabled).
		Msg("Vision settings updated")
	return nil
}

// ClearProcessingState resets the given elements, or all when none are given
func (e *Engine) ClearProcessingState(ids ...string) {
	e.states.clear(ids...)
}

// State reports an element's processing state
func (e *Engine) State(id string) State {
	return e.states.get(id)
}

// ProcessElement corrects one element and returns its resulting state. It is
// a no-op for elements already processing or processed. Failures mark the
// element as errored and are never returned.
func (e *Engine) ProcessElement(ctx context.Context, el Element) State {
	id := el.ID()
	token, ok := e.states.begin(id)
	if !ok {
		return e.states.get(id)
	}

	state := StateProcessed
	if err := e.process(ctx, el, token); err != nil {
		log.Warn().Err(err).Str("element", id).Str("kind", string(el.Kind())).Msg("Element processing failed")
		e.metrics.ElementError()
		state = StateError
	}
	return e.states.finish(id, token, state)
}

func (e *Engine) process(ctx context.Context, el Element, token uint64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processing panicked: %v", r)
		}
	}()

	settings := e.Settings()
	if !settings.IsEnabled {
		e.stopVideo(el.ID())
		if img, ok := el.(ImageElement); ok {
			img.Replace(nil)
		}
		el.SetStyle(Style{})
		e.metrics.ElementProcessed("disabled")
		return nil
	}

	calibration := e.calibration.CalibrationValue()
	params := Decide(settings, calibration, nil)

	target := e.targetFor(el, settings, calibration, token)
	err = target.Apply(ctx, params)
	if errors.Is(err, ErrTaintedCanvas) {
		log.Warn().Str("element", el.ID()).Msg("Canvas tainted by cross-origin image, falling back to CSS filters")
		e.metrics.CanvasFallbackUsed()
		target = CSSTarget{Element: el}
		err = target.Apply(ctx, params)
	}
	if err != nil {
		return err
	}

	e.metrics.ElementProcessed(target.Strategy())
	return nil
}

// targetFor selects the application strategy for an element
func (e *Engine) targetFor(el Element, settings VisionSettings, calibration float64, token uint64) Target {
	switch el.Kind() {
	case KindVideo:
		if v, ok := el.(VideoElement); ok {
			return VideoFrameTarget{Element: v, engine: e, token: token}
		}
	case KindImage:
		img, ok := el.(ImageElement)
		if !ok {
			break
		}
		if !e.corsEligible(img.Source()) {
			return CSSTarget{Element: el}
		}
		target := CanvasTarget{Element: img, engine: e}
		if e.analyzer != nil {
			target.refine = func(buf types.PixelBuffer) FilterParams {
				analysis := e.analyzer.AnalyzeSync(buf)
				return Decide(settings, calibration, &analysis)
			}
		}
		return target
	}
	return CSSTarget{Element: el, WithShadow: true}
}

// corsEligible reports whether src can be loaded for pixel access: same
// origin, inline data, or a host known to send CORS headers
func (e *Engine) corsEligible(src string) bool {
	if strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "blob:") {
		return true
	}
	u, err := url.Parse(src)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return true
	}
	if SameOrigin(src, e.config.PageOrigin) {
		return true
	}
	for _, host := range e.config.CORSHosts {
		if strings.EqualFold(u.Hostname(), host) {
			return true
		}
	}
	return false
}

// startVideo replaces any running task for the element with a new one
func (e *Engine) startVideo(el VideoElement, params FilterParams, token uint64) error {
	id := el.ID()

	e.videoMu.Lock()
	if e.closed {
		e.videoMu.Unlock()
		return ErrEngineClosed
	}
	if old, ok := e.videos[id]; ok {
		old.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &videoTask{element: el, params: params, cancel: cancel, done: make(chan struct{})}
	e.videos[id] = task
	e.videoMu.Unlock()

	e.metrics.VideoTaskStarted()
	go func() {
		defer close(task.done)
		defer e.metrics.VideoTaskStopped()
		defer cancel()

		reason := e.runVideo(ctx, task)

		e.videoMu.Lock()
		if e.videos[id] == task {
			delete(e.videos, id)
		}
		e.videoMu.Unlock()

		// A paused or finished video becomes eligible again so playback
		// resuming can restart the loop.
		if reason != stopCancelled {
			e.states.resetIf(id, token)
			log.Debug().Str("element", id).Bool("ended", reason == stopEnded).Msg("Video task stopped")
		}
	}()
	return nil
}

// stopVideo cancels the element's video task and waits for it to exit
func (e *Engine) stopVideo(id string) {
	e.videoMu.Lock()
	task, ok := e.videos[id]
	if ok {
		delete(e.videos, id)
	}
	e.videoMu.Unlock()

	if ok {
		task.cancel()
		<-task.done
	}
}

// runningVideo returns the running task for id, if any
func (e *Engine) runningVideo(id string) (*videoTask, bool) {
	e.videoMu.Lock()
	defer e.videoMu.Unlock()
	task, ok := e.videos[id]
	return task, ok
}

// Forget drops an element that left the page, cancelling its video task
func (e *Engine) Forget(id string) {
	e.stopVideo(id)
	e.states.clear(id)
}

// Close cancels every video task and waits for them to exit
func (e *Engine) Close() {
	e.videoMu.Lock()
	e.closed = true
	tasks := make([]*videoTask, 0, len(e.videos))
	for id, task := range e.videos {
		tasks = append(tasks, task)
		delete(e.videos, id)
	}
	e.videoMu.Unlock()

	for _, task := range tasks {
		task.cancel()
		<-task.done
	}
}
