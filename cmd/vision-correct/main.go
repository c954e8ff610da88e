package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/menta2k/vision-correct/internal/config"
	"github.com/menta2k/vision-correct/internal/logging"
	"github.com/menta2k/vision-correct/pkg/calibration"
	"github.com/menta2k/vision-correct/pkg/device"
)

var (
	configPath string
	logLevel   string
	logPretty  bool

	// viewport flags shared by correct, device and video
	viewWidth       int
	viewHeight      int
	viewUserAgent   string
	viewTouchPoints int

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "vision-correct",
	Short: "Simulate and correct presbyopic blur on page content",
	Long: `vision-correct analyzes page images for text and contrast, models the
blur a presbyopic reader sees at their calibrated reading distance, and
renders corrected output.

Commands cover one-off analysis and correction of image files, calibration
management, device classification, frame-sequence video correction and an
HTTP service with a calibration change feed.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.Logging.Level = logLevel
		}
		if cmd.Flags().Changed("pretty") {
			loaded.Logging.Pretty = logPretty
		}
		if err := logging.Setup(loaded.Logging.Level, loaded.Logging.Pretty); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.GetConfigPath(), "configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "pretty", true, "human readable log output")
}

// addViewportFlags registers the environment flags on cmd
func addViewportFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&viewWidth, "width", 1920, "viewport width in CSS pixels")
	cmd.Flags().IntVar(&viewHeight, "height", 1080, "viewport height in CSS pixels")
	cmd.Flags().StringVar(&viewUserAgent, "ua", "", "user agent string")
	cmd.Flags().IntVar(&viewTouchPoints, "touch-points", 0, "maximum touch points")
}

// viewportWatcher starts a device watcher over the flag-described environment
func viewportWatcher() (*device.Watcher, *device.StaticSource) {
	source := device.NewStaticSource(device.Environment{
		Viewport:       device.Viewport{Width: viewWidth, Height: viewHeight},
		UserAgent:      viewUserAgent,
		MaxTouchPoints: viewTouchPoints,
	})
	watcher := device.NewWatcher(device.NewWithConfig(cfg.Device), source)
	watcher.Start()
	return watcher, source
}

// openCalibration opens the persisted calibration
func openCalibration() *calibration.Manager {
	store := calibration.NewFileStore(cfg.Server.StorePath)
	return calibration.NewManager(store, calibration.NewBus()).WithMapping(cfg.Scale)
}
