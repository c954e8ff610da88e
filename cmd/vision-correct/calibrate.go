package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/menta2k/vision-correct/pkg/scale"
)

var (
	calibrateSave         bool
	calibrateJSON         bool
	calibrateEnable       bool
	calibrateDisable      bool
	calibratePrescription string
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate [userValue]",
	Short: "Compute, save or show the reading calibration",
	Long: `Convert a calibration slider value (0.00D to 7.50D) into the desktop and
mobile values used for correction. With --save the result is persisted and
enabled. Without a value the saved calibration is shown.

Examples:
  vision-correct calibrate 2.25
  vision-correct calibrate 2.25 --save
  vision-correct calibrate --disable
  vision-correct calibrate --prescription "+2.00"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCalibrate,
}

func init() {
	rootCmd.AddCommand(calibrateCmd)

	calibrateCmd.Flags().BoolVar(&calibrateSave, "save", false, "persist the calibration")
	calibrateCmd.Flags().BoolVar(&calibrateJSON, "json", false, "print JSON")
	calibrateCmd.Flags().BoolVar(&calibrateEnable, "enable", false, "enable the saved calibration")
	calibrateCmd.Flags().BoolVar(&calibrateDisable, "disable", false, "disable the saved calibration")
	calibrateCmd.Flags().StringVar(&calibratePrescription, "prescription", "", "record the written prescription")
	calibrateCmd.MarkFlagsMutuallyExclusive("enable", "disable")
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	manager := openCalibration()
	defer manager.Close()

	if len(args) == 1 {
		user, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid calibration value %q: %w", args[0], err)
		}

		var values scale.CalibrationValues
		if calibrateSave {
			values, err = manager.Calibrate(user)
		} else {
			values, err = cfg.Scale.CalculateCalibrationValues(user)
		}
		if err != nil {
			return err
		}

		if calibrateJSON {
			return printJSON(values)
		}
		fmt.Printf("Desktop: %s user, %s internal (%s)\n",
			scale.FormatDiopter(values.DesktopUser), scale.FormatDiopter(values.DesktopInternal), values.DesktopDescription)
		fmt.Printf("Mobile:  %s user, %s internal (%s)\n",
			scale.FormatDiopter(values.MobileUser), scale.FormatDiopter(values.MobileInternal), values.MobileDescription)
		if calibrateSave {
			fmt.Printf("Saved to %s\n", cfg.Server.StorePath)
		}
		return nil
	}

	if calibrateEnable || calibrateDisable {
		if err := manager.SetEnabled(calibrateEnable); err != nil {
			return err
		}
	}
	if calibratePrescription != "" {
		if err := manager.SetPrescription(calibratePrescription); err != nil {
			return err
		}
	}

	st := manager.State()
	if calibrateJSON {
		return printJSON(st)
	}
	if !st.Calibrated {
		fmt.Println("Not calibrated")
		return nil
	}
	enabled := "enabled"
	if !st.Enabled {
		enabled = "disabled"
	}
	fmt.Printf("Calibration: %s user, %s internal (%s), %s\n",
		scale.FormatDiopter(st.UserDesktop), scale.FormatDiopter(st.InternalDesktop), st.Description, enabled)
	if st.Prescription != "" {
		fmt.Printf("Prescription: %s\n", st.Prescription)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
