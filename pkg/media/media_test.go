package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/pkg/correction"
	"github.com/menta2k/vision-correct/pkg/processing"
)

// createTestFrame draws a vertical bar whose position depends on shift
func createTestFrame(shift int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := uint8(230)
			if x >= shift && x < shift+6 {
				v = 20
			}
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestStatusMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "Camera active"},
		{ErrPermissionDenied, "Camera access denied"},
		{fmt.Errorf("open: %w", ErrNoDevice), "No camera found"},
		{ErrStreamEnded, "Video ended"},
		{errors.New("busy"), "Unable to access camera: busy"},
	}

	for _, tt := range tests {
		if got := StatusMessage(tt.err); !strings.HasPrefix(got, tt.want) {
			t.Errorf("StatusMessage(%v): expected prefix %q, got %q", tt.err, tt.want, got)
		}
	}
}

func TestSliceStream(t *testing.T) {
	s := NewSliceStream([]image.Image{createTestFrame(0), createTestFrame(8)}, false)

	if _, ok := s.Frame(); ok {
		t.Error("Expected no frames before Start")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 2; i++ {
		if _, ok := s.Frame(); !ok {
			t.Fatalf("Expected frame %d", i)
		}
	}
	if s.Ended() {
		t.Error("Stream should not end before the exhausted read")
	}
	if _, ok := s.Frame(); ok {
		t.Error("Expected exhausted stream")
	}
	if !s.Ended() {
		t.Error("Expected stream to report ended")
	}
}

func TestSliceStreamLoop(t *testing.T) {
	s := NewSliceStream([]image.Image{createTestFrame(0)}, true)
	s.Start(context.Background())

	for i := 0; i < 5; i++ {
		if _, ok := s.Frame(); !ok {
			t.Fatalf("Looping stream ran out at %d", i)
		}
	}
	s.Stop()
	if _, ok := s.Frame(); ok || !s.Ended() {
		t.Error("Expected Stop to end the stream")
	}
}

func TestSliceStreamStartErrors(t *testing.T) {
	empty := NewSliceStream(nil, false)
	if err := empty.Start(context.Background()); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewSliceStream([]image.Image{createTestFrame(0)}, false)
	if err := s.Start(ctx); err == nil {
		t.Error("Expected cancelled context to fail Start")
	}
}

func TestLoadSliceStream(t *testing.T) {
	dir := t.TempDir()
	proc := processing.NewProcessor()
	for i := 0; i < 3; i++ {
		path := filepath.Join(dir, fmt.Sprintf("frame_%03d.png", i))
		if err := proc.SaveImage(createTestFrame(i*8), path, "png", 0, false); err != nil {
			t.Fatal(err)
		}
	}
	os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0644)

	s, err := LoadSliceStream(dir, proc, false)
	if err != nil {
		t.Fatalf("LoadSliceStream failed: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Expected 3 frames, got %d", s.Len())
	}

	if _, err := LoadSliceStream(filepath.Join(dir, "missing"), proc, false); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Expected ErrNoDevice for missing dir, got %v", err)
	}
}

func TestPlayerElement(t *testing.T) {
	var _ correction.VideoElement = (*Player)(nil)

	s := NewSliceStream([]image.Image{createTestFrame(0)}, false)
	p := NewPlayer("cam", s, nil)
	if p.Kind() != correction.KindVideo || p.ID() != "cam" {
		t.Errorf("Unexpected identity %s/%s", p.ID(), p.Kind())
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	p.Pause()
	if _, ok := p.Frame(); ok {
		t.Error("Paused player should not deliver frames")
	}
	p.Resume()
	if _, ok := p.Frame(); !ok {
		t.Error("Expected frame after Resume")
	}

	p.SetStyle(correction.Style{Transition: "filter 0.3s ease"})
	if p.Style().Transition == "" {
		t.Error("Expected style to be kept")
	}

	p.Stop()
	if !p.Ended() {
		t.Error("Expected player to end after Stop")
	}
	select {
	case <-p.Done():
	default:
		t.Error("Expected Done to be closed after Stop")
	}
}

func TestPlayerWithEngine(t *testing.T) {
	frames := []image.Image{createTestFrame(0), createTestFrame(10), createTestFrame(20)}
	frames = append(frames, frames[2])
	s := NewSliceStream(frames, false)

	var (
		mu  sync.Mutex
		out []image.Image
	)
	p := NewPlayer("clip", s, func(img image.Image) {
		mu.Lock()
		out = append(out, img)
		mu.Unlock()
	})

	mt := metrics.New()
	engine := correction.New().
		WithCalibration(correction.StaticCalibration(0)).
		WithClock(correction.TickerClock{Interval: time.Millisecond}).
		WithMetrics(mt)
	defer engine.Close()

	if state := engine.ProcessElement(context.Background(), p); state != correction.StateProcessed {
		t.Fatalf("Expected processed, got %s", state)
	}

	// Frames only flow once the stream starts, after the task is running
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Player never finished")
	}

	mu.Lock()
	presented := len(out)
	mu.Unlock()
	if presented != len(frames) {
		t.Errorf("Expected %d presented frames, got %d", len(frames), presented)
	}
	if mt.VideoReused.Load() != 1 {
		t.Errorf("Expected the repeated frame to be reused, got %d", mt.VideoReused.Load())
	}

	// The finished task hands the element back to the engine
	deadline := time.Now().Add(2 * time.Second)
	for engine.State("clip") != correction.StateUnmarked {
		if time.Now().After(deadline) {
			t.Fatalf("Expected unmarked after the video ended, got %s", engine.State("clip"))
		}
		time.Sleep(time.Millisecond)
	}
}
