package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deviceJSON bool

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Classify a viewport and user agent",
	Long: `Report the device class, viewing distance and calibration adjustment
for a viewport, together with the saved calibration as it applies there.

Examples:
  vision-correct device --width 390 --height 844
  vision-correct device --width 820 --height 1180 --ua "Mozilla/5.0 (iPad; ...)"`,
	Args: cobra.NoArgs,
	RunE: runDevice,
}

func init() {
	rootCmd.AddCommand(deviceCmd)

	deviceCmd.Flags().BoolVar(&deviceJSON, "json", false, "print JSON")
	addViewportFlags(deviceCmd)
}

func runDevice(cmd *cobra.Command, args []string) error {
	watcher, _ := viewportWatcher()
	defer watcher.Stop()
	profile := watcher.Profile()

	manager := openCalibration()
	defer manager.Close()
	effective := manager.EffectiveValue(profile)

	if deviceJSON {
		return printJSON(map[string]any{
			"profile":     profile,
			"calibration": effective,
		})
	}

	fmt.Printf("Device:           %s\n", profile.DeviceType)
	fmt.Printf("Viewport:         %dx%d\n", profile.Viewport.Width, profile.Viewport.Height)
	fmt.Printf("Touch:            %v\n", profile.HasTouch)
	fmt.Printf("Viewing distance: %.0f in\n", profile.ViewingDistanceInches)
	fmt.Printf("Adjustment:       %+.2fD\n", profile.CalibrationAdjustment)
	if manager.State().Calibrated {
		fmt.Printf("Calibration:      %+.2fD internal\n", effective)
	}
	return nil
}
