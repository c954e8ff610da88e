package correction

import (
	"context"
	"image"
	"time"

	"github.com/corona10/goimagehash"
	"github.com/rs/zerolog/log"
)

// FrameClock schedules per-frame work. The channel must be closed once ctx
// is done.
type FrameClock interface {
	Frames(ctx context.Context) <-chan time.Time
}

// TickerClock is a FrameClock backed by a time.Ticker
type TickerClock struct {
	Interval time.Duration
}

// DefaultFrameInterval approximates a 60Hz display refresh
const DefaultFrameInterval = time.Second / 60

// Frames implements FrameClock
func (c TickerClock) Frames(ctx context.Context) <-chan time.Time {
	interval := c.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}

	out := make(chan time.Time)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case out <- t:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// videoTask redraws a video element's frames through the pixel pipeline
type videoTask struct {
	element VideoElement
	params  FilterParams
	cancel  context.CancelFunc
	done    chan struct{}
}

// stopReason says why a video loop ended
type stopReason int

const (
	stopCancelled stopReason = iota
	stopPaused
	stopEnded
)

// runVideo is the frame loop. Frames whose perceptual hash matches the previous
// frame re-present the previous output instead of being processed again.
func (e *Engine) runVideo(ctx context.Context, task *videoTask) stopReason {
	var (
		prevHash *goimagehash.ImageHash
		prevOut  image.Image
	)

	frames := e.clock.Frames(ctx)
	for {
		select {
		case <-ctx.Done():
			return stopCancelled
		case _, ok := <-frames:
			if !ok {
				return stopCancelled
			}
		}

		if task.element.Ended() {
			return stopEnded
		}
		if task.element.Paused() {
			return stopPaused
		}

		frame, ok := task.element.Frame()
		if !ok {
			continue
		}

		hash, err := goimagehash.DifferenceHash(frame)
		if err == nil && prevHash != nil && prevOut != nil {
			if dist, err := hash.Distance(prevHash); err == nil && dist == 0 {
				task.element.Present(prevOut)
				e.metrics.VideoFrame(true)
				continue
			}
		}

		var out image.Image
		err = e.surface.Use(LoadedImage{Image: frame, CORSClean: true}, func(px *image.NRGBA) error {
			out = e.processor.Enhance(px, task.params.Processing())
			return nil
		})
		if err != nil {
			log.Debug().Err(err).Str("element", task.element.ID()).Msg("Skipping video frame")
			continue
		}

		task.element.Present(out)
		e.metrics.VideoFrame(false)
		prevHash, prevOut = hash, out
	}
}
