package media

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/menta2k/vision-correct/pkg/correction"
)

// Player exposes a Stream as a correction.VideoElement. Presented frames go
// to the sink.
type Player struct {
	id     string
	stream Stream
	sink   func(image.Image)

	paused    atomic.Bool
	stopped   atomic.Bool
	presented atomic.Uint64

	mu    sync.Mutex
	style correction.Style

	done     chan struct{}
	doneOnce sync.Once
}

// NewPlayer creates a player for stream. A nil sink discards frames.
func NewPlayer(id string, stream Stream, sink func(image.Image)) *Player {
	if sink == nil {
		sink = func(image.Image) {}
	}
	return &Player{
		id:     id,
		stream: stream,
		sink:   sink,
		done:   make(chan struct{}),
	}
}

// Start starts the underlying stream
func (p *Player) Start(ctx context.Context) error {
	if err := p.stream.Start(ctx); err != nil {
		log.Warn().Err(err).Str("element", p.id).Msg(StatusMessage(err))
		return err
	}
	log.Debug().Str("element", p.id).Msg(StatusMessage(nil))
	return nil
}

// Stop stops the stream and marks the player ended
func (p *Player) Stop() {
	p.stream.Stop()
	p.stopped.Store(true)
	p.finish()
}

// Pause halts frame delivery; the engine stops its task on the next tick
func (p *Player) Pause() {
	p.paused.Store(true)
}

// Resume undoes Pause
func (p *Player) Resume() {
	p.paused.Store(false)
}

// Done is closed once the stream runs out of frames or is stopped
func (p *Player) Done() <-chan struct{} {
	return p.done
}

// Presented returns how many frames reached the sink
func (p *Player) Presented() uint64 {
	return p.presented.Load()
}

// Style returns the last style the engine set
func (p *Player) Style() correction.Style {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.style
}

// ID implements correction.Element
func (p *Player) ID() string { return p.id }

// Kind implements correction.Element
func (p *Player) Kind() correction.Kind { return correction.KindVideo }

// SetStyle implements correction.Element
func (p *Player) SetStyle(s correction.Style) {
	p.mu.Lock()
	p.style = s
	p.mu.Unlock()
}

// Frame implements correction.VideoElement
func (p *Player) Frame() (image.Image, bool) {
	if p.Paused() {
		return nil, false
	}
	frame, ok := p.stream.Frame()
	if !ok && p.Ended() {
		p.finish()
	}
	return frame, ok
}

// Paused implements correction.VideoElement
func (p *Player) Paused() bool {
	return p.paused.Load()
}

// Ended implements correction.VideoElement
func (p *Player) Ended() bool {
	if p.stopped.Load() {
		return true
	}
	if f, ok := p.stream.(Finite); ok {
		return f.Ended()
	}
	return false
}

// Present implements correction.VideoElement
func (p *Player) Present(img image.Image) {
	p.presented.Add(1)
	p.sink(img)
}

func (p *Player) finish() {
	p.doneOnce.Do(func() { close(p.done) })
}
