// Package media provides video sources for the correction engine's
// per-frame strategy.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/menta2k/vision-correct/internal/utils"
	"github.com/menta2k/vision-correct/pkg/processing"
)

var (
	// ErrPermissionDenied means the user refused access to the device
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNoDevice means no capture device is available
	ErrNoDevice = errors.New("no capture device")
	// ErrStreamEnded means the source has no more frames
	ErrStreamEnded = errors.New("stream ended")
)

// StatusMessage is the user-visible status line for a stream start result
func StatusMessage(err error) string {
	switch {
	case err == nil:
		return "Camera active"
	case errors.Is(err, ErrPermissionDenied):
		return "Camera access denied. Allow camera permissions and try again."
	case errors.Is(err, ErrNoDevice):
		return "No camera found on this device."
	case errors.Is(err, ErrStreamEnded):
		return "Video ended."
	default:
		return fmt.Sprintf("Unable to access camera: %v", err)
	}
}

// Stream is a source of video frames
type Stream interface {
	Start(ctx context.Context) error
	Stop()
	// Frame returns the next frame, or false when none is available
	Frame() (image.Image, bool)
}

// Finite is implemented by streams that can run out of frames
type Finite interface {
	Ended() bool
}

// SliceStream plays a fixed frame sequence, one frame per Frame call
type SliceStream struct {
	frames []image.Image
	loop   bool

	mu      sync.Mutex
	next    int
	started bool
	ended   bool
}

// NewSliceStream creates a stream over frames. With loop set the sequence
// repeats forever.
func NewSliceStream(frames []image.Image, loop bool) *SliceStream {
	return &SliceStream{frames: frames, loop: loop}
}

// LoadSliceStream reads every image in dir, in lexical order
func LoadSliceStream(dir string, processor *processing.Processor, loop bool) (*SliceStream, error) {
	if !utils.DirExists(dir) {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrNoDevice, dir)
	}

	paths, err := utils.ListImageFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}

	frames := make([]image.Image, 0, len(paths))
	for _, path := range paths {
		img, err := processor.LoadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load frame %s: %w", path, err)
		}
		frames = append(frames, img)
	}

	return NewSliceStream(frames, loop), nil
}

// Start implements Stream
func (s *SliceStream) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.frames) == 0 {
		return ErrNoDevice
	}
	s.started = true
	s.ended = false
	s.next = 0
	return nil
}

// Stop implements Stream
func (s *SliceStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.ended = true
}

// Frame implements Stream
func (s *SliceStream) Frame() (image.Image, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.ended {
		return nil, false
	}
	if s.next >= len(s.frames) {
		if !s.loop {
			s.ended = true
			return nil, false
		}
		s.next = 0
	}

	frame := s.frames[s.next]
	s.next++
	return frame, true
}

// Ended implements Finite
func (s *SliceStream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Len returns the number of frames in one pass
func (s *SliceStream) Len() int {
	return len(s.frames)
}
