package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/menta2k/vision-correct/pkg/analyzer"
	"github.com/menta2k/vision-correct/pkg/processing"
	"github.com/menta2k/vision-correct/pkg/types"
)

var (
	analyzeJSON    bool
	analyzeOverlay string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [image]",
	Short: "Detect text regions, contrast and content type in an image",
	Long: `Run the content analyzer on an image file or URL and report text
regions, the contrast grid summary and the content classification.

Examples:
  vision-correct analyze page.png
  vision-correct analyze https://example.com/page.jpg --json
  vision-correct analyze page.png --overlay regions.png`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the full result as JSON")
	analyzeCmd.Flags().StringVar(&analyzeOverlay, "overlay", "", "write a region overlay image to this path")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	processor := processing.NewProcessor()
	an := analyzer.NewWithConfig(cfg.AnalyzerConfig())

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	img, err := processor.LoadImageSmart(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	if err := an.ValidateImage(img); err != nil {
		return err
	}

	result := an.AnalyzeSync(types.FromImage(img))
	if result.Fallback {
		log.Warn().Str("image", args[0]).Msg("Analysis fell back to defaults")
	}

	if analyzeOverlay != "" {
		overlay := processor.CreateRegionOverlay(img, result.TextRegions, result.ContrastMap.LowContrastAreas)
		format := formatFromPath(analyzeOverlay, "png")
		if err := processor.SaveImage(overlay, analyzeOverlay, format, cfg.Output.Quality, false); err != nil {
			return fmt.Errorf("failed to save overlay: %w", err)
		}
		log.Info().Str("path", analyzeOverlay).Msg("Wrote overlay")
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	info := an.GetImageInfo(img)
	fmt.Printf("Image:          %dx%d (%s pixels)\n", info.Width, info.Height, humanize.Comma(int64(info.Width*info.Height)))
	fmt.Printf("Content type:   %s\n", result.ContentType)
	fmt.Printf("Text regions:   %d\n", len(result.TextRegions))
	fmt.Printf("Mean contrast:  %.3f\n", result.ContrastMap.Mean)
	fmt.Printf("Low contrast:   %d cells\n", len(result.ContrastMap.LowContrastAreas))
	fmt.Printf("Analysis time:  %s\n", result.ProcessingTime.Round(time.Microsecond))
	for i, r := range result.TextRegions {
		fmt.Printf("  #%-3d %4d,%-4d %4dx%-4d confidence %.2f priority %.2f\n",
			i+1, r.X, r.Y, r.Width, r.Height, r.Confidence, r.Priority)
	}
	return nil
}
