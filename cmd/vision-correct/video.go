package main

import (
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/internal/utils"
	"github.com/menta2k/vision-correct/pkg/correction"
	"github.com/menta2k/vision-correct/pkg/device"
	"github.com/menta2k/vision-correct/pkg/media"
	"github.com/menta2k/vision-correct/pkg/processing"
)

var (
	videoOutDir string
	videoFormat string
	videoFPS    int
)

var videoCmd = &cobra.Command{
	Use:   "video [frames-dir]",
	Short: "Correct a frame sequence through the per-frame video task",
	Long: `Play a directory of numbered frames through the correction engine's
video strategy and write every presented frame. Unchanged consecutive frames
reuse the previous corrected output.

Examples:
  vision-correct video frames/ -o corrected/
  vision-correct video frames/ --fps 30 --format jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runVideo,
}

func init() {
	rootCmd.AddCommand(videoCmd)

	videoCmd.Flags().StringVarP(&videoOutDir, "output", "o", "", "output directory (default from config)")
	videoCmd.Flags().StringVar(&videoFormat, "format", "png", "frame output format: png, jpg or webp")
	videoCmd.Flags().IntVar(&videoFPS, "fps", 60, "playback rate")
	addViewportFlags(videoCmd)
}

func runVideo(cmd *cobra.Command, args []string) error {
	outDir := videoOutDir
	if outDir == "" {
		outDir = cfg.Output.OutputDir
	}
	if err := utils.EnsureDir(outDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if videoFPS < 1 {
		return fmt.Errorf("fps must be positive")
	}

	processor := processing.NewProcessor()
	stream, err := media.LoadSliceStream(args[0], processor, false)
	if err != nil {
		return fmt.Errorf("%s: %w", media.StatusMessage(err), err)
	}

	var (
		frameNo  atomic.Int64
		written  atomic.Int64
		bytesOut atomic.Int64
	)
	player := media.NewPlayer(filepath.Base(args[0]), stream, func(img image.Image) {
		n := frameNo.Add(1)
		path := filepath.Join(outDir, fmt.Sprintf("frame_%05d.%s", n, videoFormat))
		if err := processor.SaveImage(img, path, videoFormat, cfg.Output.Quality, false); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Frame save failed")
			return
		}
		if info, err := os.Stat(path); err == nil {
			bytesOut.Add(info.Size())
		}
		written.Add(1)
	})

	mt := metrics.New()
	manager := openCalibration()
	defer manager.Close()

	engine := correction.NewWithConfig(cfg.EngineConfig()).
		WithCalibration(manager).
		WithClock(correction.TickerClock{Interval: time.Second / time.Duration(videoFPS)}).
		WithMetrics(mt)
	defer engine.Close()

	watcher, _ := viewportWatcher()
	defer watcher.Stop()
	manager.SetProfile(watcher.Profile())
	watcher.OnChange(func(p device.Profile) {
		manager.SetProfile(p)
		engine.ClearProcessingState()
	})

	if state := engine.ProcessElement(cmd.Context(), player); state != correction.StateProcessed {
		return fmt.Errorf("video task did not start (state %s)", state)
	}

	start := time.Now()
	if err := player.Start(cmd.Context()); err != nil {
		return fmt.Errorf("%s: %w", media.StatusMessage(err), err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case <-player.Done():
	case <-sig:
		log.Info().Msg("Interrupted")
		player.Stop()
	}
	engine.Forget(player.ID())

	fmt.Printf("Presented %s frames (%s reused), wrote %d (%s) in %s\n",
		humanize.Comma(int64(player.Presented())),
		humanize.Comma(int64(mt.VideoReused.Load())),
		written.Load(),
		humanize.IBytes(uint64(bytesOut.Load())),
		time.Since(start).Round(time.Millisecond))
	return nil
}
