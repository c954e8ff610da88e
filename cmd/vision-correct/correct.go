package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menta2k/vision-correct/internal/metrics"
	"github.com/menta2k/vision-correct/internal/utils"
	"github.com/menta2k/vision-correct/pkg/analyzer"
	"github.com/menta2k/vision-correct/pkg/correction"
	"github.com/menta2k/vision-correct/pkg/processing"
)

var (
	correctOutDir      string
	correctFormat      string
	correctReading     float64
	correctContrast    float64
	correctEdge        float64
	correctCalibration float64
)

var correctCmd = &cobra.Command{
	Use:   "correct [image|dir|url...]",
	Short: "Apply vision correction to images",
	Long: `Run the correction engine over image files, directories of images or
URLs. Same-origin and local images are corrected pixel by pixel; images the
engine cannot read back get a CSS filter, which is printed instead.

The calibration comes from --calibration when given, otherwise from the
saved calibration adjusted for the viewport flags.

Examples:
  vision-correct correct page.png --reading 0 --contrast 20 --edge 40
  vision-correct correct scans/ -o corrected/ --format webp
  vision-correct correct page.png --width 390 --height 844`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCorrect,
}

func init() {
	rootCmd.AddCommand(correctCmd)

	correctCmd.Flags().StringVarP(&correctOutDir, "output", "o", "", "output directory (default from config)")
	correctCmd.Flags().StringVar(&correctFormat, "format", "", "output format: png, jpg or webp (default from config)")
	correctCmd.Flags().Float64Var(&correctReading, "reading", 0, "reading vision on the internal scale")
	correctCmd.Flags().Float64Var(&correctContrast, "contrast", 0, "contrast boost percent (0-100)")
	correctCmd.Flags().Float64Var(&correctEdge, "edge", 0, "edge enhancement percent (0-100)")
	correctCmd.Flags().Float64Var(&correctCalibration, "calibration", 0, "calibration value on the internal scale")
	addViewportFlags(correctCmd)
}

// fileImage is an image element backed by a file path or URL
type fileImage struct {
	src string

	mu       sync.Mutex
	style    correction.Style
	replaced image.Image
}

func (f *fileImage) ID() string { return f.src }
func (f *fileImage) Kind() correction.Kind { return correction.KindImage }
func (f *fileImage) Source() string { return f.src }

func (f *fileImage) SetStyle(s correction.Style) {
	f.mu.Lock()
	f.style = s
	f.mu.Unlock()
}

func (f *fileImage) Replace(img image.Image) {
	f.mu.Lock()
	f.replaced = img
	f.mu.Unlock()
}

func runCorrect(cmd *cobra.Command, args []string) error {
	outDir := correctOutDir
	if outDir == "" {
		outDir = cfg.Output.OutputDir
	}
	format := correctFormat
	if format == "" {
		format = cfg.Output.DefaultFormat
	}
	if err := utils.EnsureDir(outDir); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	inputs, err := expandInputs(args)
	if err != nil {
		return err
	}

	settings, err := correctionSettings(cmd)
	if err != nil {
		return err
	}

	mt := metrics.New()
	engineCfg := cfg.EngineConfig()
	engineCfg.Settings = settings
	engine := correction.NewWithConfig(engineCfg).
		WithAnalyzer(analyzer.NewWithConfig(cfg.AnalyzerConfig()).WithMetrics(mt)).
		WithMetrics(mt)
	defer engine.Close()

	if cmd.Flags().Changed("calibration") {
		engine.WithCalibration(correction.StaticCalibration(correctCalibration))
	} else {
		manager := openCalibration()
		defer manager.Close()
		watcher, _ := viewportWatcher()
		defer watcher.Stop()
		manager.SetProfile(watcher.Profile())
		engine.WithCalibration(manager)
	}

	processor := processing.NewProcessor()
	filter := engine.CurrentFilter()
	log.Info().Str("filter", filter.CSS()).Int("images", len(inputs)).Msg("Correcting")

	start := time.Now()
	var written int
	var bytesOut int64
	for _, src := range inputs {
		el := &fileImage{src: src}
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		state := engine.ProcessElement(ctx, el)
		cancel()

		if state != correction.StateProcessed {
			log.Error().Str("image", src).Str("state", state.String()).Msg("Correction failed")
			continue
		}

		el.mu.Lock()
		out, style := el.replaced, el.style
		el.mu.Unlock()
		if out == nil {
			fmt.Printf("%s: filter: %s\n", src, style.Filter)
			continue
		}

		path := utils.GenerateOutputFilename(src, outDir, cfg.Output.Prefix, cfg.Output.Suffix, format)
		if err := processor.SaveImage(out, path, format, cfg.Output.Quality, false); err != nil {
			log.Error().Err(err).Str("path", path).Msg("Save failed")
			continue
		}
		if info, err := os.Stat(path); err == nil {
			bytesOut += info.Size()
		}
		written++
		log.Info().Str("path", path).Msg("Wrote")
	}

	fmt.Printf("Corrected %d of %d images (%s written) in %s\n",
		written, len(inputs), utils.FormatFileSize(bytesOut), time.Since(start).Round(time.Millisecond))
	return nil
}

// correctionSettings starts from the configured settings and applies
// whichever correction flags were set
func correctionSettings(cmd *cobra.Command) (correction.VisionSettings, error) {
	var patch correction.SettingsPatch
	if cmd.Flags().Changed("reading") {
		patch.ReadingVision = &correctReading
	}
	if cmd.Flags().Changed("contrast") {
		patch.ContrastBoost = &correctContrast
	}
	if cmd.Flags().Changed("edge") {
		patch.EdgeEnhancement = &correctEdge
	}

	settings := patch.Apply(cfg.Settings())
	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("invalid settings: %w", err)
	}
	return settings, nil
}

// expandInputs replaces directories with the images they contain
func expandInputs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		if utils.DirExists(arg) {
			files, err := utils.ListImageFiles(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", arg, err)
			}
			inputs = append(inputs, files...)
			continue
		}
		inputs = append(inputs, arg)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no images found")
	}
	return inputs, nil
}

func formatFromPath(path, def string) string {
	if ext := utils.GetFileExtension(path); ext != "" {
		return ext
	}
	return def
}
