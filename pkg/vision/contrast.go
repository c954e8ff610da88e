package vision

import (
	"fmt"
	"math"

	"github.com/menta2k/vision-correct/pkg/types"
)

// LowContrastThreshold is the RMS score below which a cell is flagged
const LowContrastThreshold = 0.3

// DefaultCellSize is the grid cell edge in pixels
const DefaultCellSize = 50

// AnalyzeContrast computes per-cell RMS contrast (intensity stddev / 255).
// Cells on the right and bottom edges are clipped to the buffer.
func AnalyzeContrast(buf types.PixelBuffer, cellSize int) (types.ContrastData, error) {
	if cellSize <= 0 {
		return types.ContrastData{}, fmt.Errorf("cell size must be positive, got %d", cellSize)
	}
	if !buf.Valid() {
		return types.ContrastData{}, fmt.Errorf("invalid pixel buffer %dx%d", buf.Width, buf.Height)
	}

	cols := (buf.Width + cellSize - 1) / cellSize
	rows := (buf.Height + cellSize - 1) / cellSize

	data := types.ContrastData{
		Grid:             make([][]float64, rows),
		CellSize:         cellSize,
		LowContrastAreas: []types.Rectangle{},
	}

	var total float64
	for gy := 0; gy < rows; gy++ {
		data.Grid[gy] = make([]float64, cols)
		for gx := 0; gx < cols; gx++ {
			cell := types.Rectangle{
				X:      gx * cellSize,
				Y:      gy * cellSize,
				Width:  min(cellSize, buf.Width-gx*cellSize),
				Height: min(cellSize, buf.Height-gy*cellSize),
			}

			score := rmsContrast(buf, cell)
			data.Grid[gy][gx] = score
			total += score

			if score < LowContrastThreshold {
				data.LowContrastAreas = append(data.LowContrastAreas, cell)
			}
		}
	}

	data.Mean = total / float64(rows*cols)
	return data, nil
}

func rmsContrast(buf types.PixelBuffer, cell types.Rectangle) float64 {
	n := float64(cell.Area())
	var sum, sumSq float64
	for y := cell.Y; y < cell.Y+cell.Height; y++ {
		for x := cell.X; x < cell.X+cell.Width; x++ {
			v := buf.Gray(x, y)
			sum += v
			sumSq += v * v
		}
	}
	mean := sum / n
	variance := math.Max(sumSq/n-mean*mean, 0)
	return math.Sqrt(variance) / 255
}
