package terrain

import (
	"math"

	"github.com/pkg/errors"
)

// Heightmap is a regular grid of elevations on the XZ plane. Heights[row][col]
// is the sample at x = OriginX + col*CellSize, z = OriginZ + row*CellSize.
// Queries outside the grid read the nearest edge.
type Heightmap struct {
	originX, originZ float64
	cellSize         float64
	baseY            float64
	cols, rows       int
	heights          []float64
}

// HeightmapSpec is the declarative form of a Heightmap.
type HeightmapSpec struct {
	OriginX  float64     `json:"origin_x" yaml:"origin_x"`
	OriginZ  float64     `json:"origin_z" yaml:"origin_z"`
	CellSize float64     `json:"cell_size" yaml:"cell_size"`
	Heights  [][]float64 `json:"heights" yaml:"heights"`
}

// NewHeightmap validates spec and builds a heightmap lifted by baseY.
func NewHeightmap(spec HeightmapSpec, baseY float64) (*Heightmap, error) {
	if spec.CellSize <= 0 {
		return nil, ErrInvalidCellSize
	}
	if len(spec.Heights) == 0 || len(spec.Heights[0]) == 0 {
		return nil, ErrEmptyHeightmap
	}

	cols := len(spec.Heights[0])
	flat := make([]float64, 0, cols*len(spec.Heights))
	for i, row := range spec.Heights {
		if len(row) != cols {
			return nil, errors.Wrapf(ErrRaggedHeightmap, "row %d has %d samples, want %d", i, len(row), cols)
		}
		flat = append(flat, row...)
	}

	return &Heightmap{
		originX:  spec.OriginX,
		originZ:  spec.OriginZ,
		cellSize: spec.CellSize,
		baseY:    baseY,
		cols:     cols,
		rows:     len(spec.Heights),
		heights:  flat,
	}, nil
}

// HeightAt samples the grid bilinearly.
func (h *Heightmap) HeightAt(x, z float64) float64 {
	gx := clampIndex((x-h.originX)/h.cellSize, h.cols)
	gz := clampIndex((z-h.originZ)/h.cellSize, h.rows)

	x0, z0 := int(gx), int(gz)
	x1, z1 := min(x0+1, h.cols-1), min(z0+1, h.rows-1)
	tx, tz := gx-float64(x0), gz-float64(z0)

	top := lerp(h.at(x0, z0), h.at(x1, z0), tx)
	bottom := lerp(h.at(x0, z1), h.at(x1, z1), tx)
	return h.baseY + lerp(top, bottom, tz)
}

func (h *Heightmap) at(col, row int) float64 {
	return h.heights[row*h.cols+col]
}

// clampIndex maps a grid coordinate into [0, n-1]. NaN reads the first
// sample.
func clampIndex(g float64, n int) float64 {
	if math.IsNaN(g) {
		return 0
	}
	return math.Max(0, math.Min(g, float64(n-1)))
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
