package vision

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/menta2k/vision-correct/pkg/types"
)

func createCheckerboard(width, height int) types.PixelBuffer {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if (x+y)%2 == 0 {
				img.Set(x, y, color.RGBA{0, 0, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			}
		}
	}
	return types.FromImage(img)
}

func TestAnalyzeContrastCheckerboard(t *testing.T) {
	data, err := AnalyzeContrast(createCheckerboard(10, 10), 10)
	if err != nil {
		t.Fatalf("AnalyzeContrast failed: %v", err)
	}

	if len(data.Grid) != 1 || len(data.Grid[0]) != 1 {
		t.Fatalf("Expected 1x1 grid, got %dx%d", len(data.Grid), len(data.Grid[0]))
	}
	if math.Abs(data.Grid[0][0]-0.5) > 1e-9 {
		t.Errorf("Expected contrast 0.5, got %f", data.Grid[0][0])
	}
	if len(data.LowContrastAreas) != 0 {
		t.Errorf("Expected no low-contrast areas, got %d", len(data.LowContrastAreas))
	}
}

func TestAnalyzeContrastUniform(t *testing.T) {
	data, err := AnalyzeContrast(createUniformImage(100, 100, color.RGBA{128, 128, 128, 255}), DefaultCellSize)
	if err != nil {
		t.Fatalf("AnalyzeContrast failed: %v", err)
	}

	if data.Mean != 0 {
		t.Errorf("Expected zero mean contrast, got %f", data.Mean)
	}
	if len(data.LowContrastAreas) != 4 {
		t.Errorf("Expected every cell flagged, got %d", len(data.LowContrastAreas))
	}
}

func TestAnalyzeContrastClippedCells(t *testing.T) {
	data, err := AnalyzeContrast(createCheckerboard(120, 70), 50)
	if err != nil {
		t.Fatalf("AnalyzeContrast failed: %v", err)
	}

	if len(data.Grid) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(data.Grid))
	}
	for i, row := range data.Grid {
		if len(row) != 3 {
			t.Errorf("Row %d: expected 3 columns, got %d", i, len(row))
		}
		for j, v := range row {
			if v < 0 || v > 1 {
				t.Errorf("Cell %d,%d out of range: %f", i, j, v)
			}
		}
	}
	if data.CellSize != 50 {
		t.Errorf("Expected cell size 50, got %d", data.CellSize)
	}
}

func TestAnalyzeContrastClippedAreas(t *testing.T) {
	data, err := AnalyzeContrast(createUniformImage(120, 70, color.RGBA{200, 200, 200, 255}), 50)
	if err != nil {
		t.Fatalf("AnalyzeContrast failed: %v", err)
	}

	last := data.LowContrastAreas[len(data.LowContrastAreas)-1]
	want := types.Rectangle{X: 100, Y: 50, Width: 20, Height: 20}
	if last != want {
		t.Errorf("Expected clipped corner cell %+v, got %+v", want, last)
	}
}

func TestAnalyzeContrastInvalid(t *testing.T) {
	if _, err := AnalyzeContrast(createCheckerboard(10, 10), 0); err == nil {
		t.Error("Expected error for zero cell size")
	}
	if _, err := AnalyzeContrast(types.PixelBuffer{Width: 10, Height: 10}, 5); err == nil {
		t.Error("Expected error for invalid buffer")
	}
}
