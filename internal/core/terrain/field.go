package terrain

import (
	"github.com/pkg/errors"
	"github.com/zeusync/salvo/internal/core/ballistics"
	"github.com/zeusync/salvo/internal/core/systems/physics"
)

var _ ballistics.ClearanceQuery = (*Field)(nil)

// Spec describes a battlefield: an optional heightmap lifted by BaseY and a
// set of obstacle boxes.
type Spec struct {
	BaseY     float64        `json:"base_y" yaml:"base_y"`
	Heightmap *HeightmapSpec `json:"heightmap,omitempty" yaml:"heightmap,omitempty"`
	Obstacles []Box          `json:"obstacles,omitempty" yaml:"obstacles,omitempty"`
}

// Field is the clearance capability handed to the solver. Without a
// heightmap the ground is flat at BaseY. A Field is read-only after New and
// safe for concurrent use.
type Field struct {
	baseY     float64
	heightmap *Heightmap
	obstacles []Box
}

func New(spec Spec) (*Field, error) {
	f := &Field{baseY: spec.BaseY}
	if spec.Heightmap != nil {
		hm, err := NewHeightmap(*spec.Heightmap, spec.BaseY)
		if err != nil {
			return nil, errors.Wrap(err, "terrain heightmap")
		}
		f.heightmap = hm
	}
	for _, b := range spec.Obstacles {
		if !b.Valid() {
			return nil, errors.Wrapf(ErrInvertedBox, "obstacle %q", b.Name)
		}
	}
	f.obstacles = append(f.obstacles, spec.Obstacles...)
	return f, nil
}

// Flat returns an obstacle-free field at height y.
func Flat(y float64) *Field {
	return &Field{baseY: y}
}

func (f *Field) HeightAt(x, z float64) float64 {
	if f.heightmap == nil {
		return f.baseY
	}
	return f.heightmap.HeightAt(x, z)
}

func (f *Field) IsBlocked(from, to physics.Vec3) bool {
	_, hit := f.FirstObstacle(from, to)
	return hit
}

// FirstObstacle returns the first obstacle, in declaration order, that the
// segment crosses.
func (f *Field) FirstObstacle(from, to physics.Vec3) (Box, bool) {
	for _, b := range f.obstacles {
		if b.IntersectsSegment(from, to) {
			return b, true
		}
	}
	return Box{}, false
}

// SurfacePoint returns the terrain point below (x, z).
func (f *Field) SurfacePoint(x, z float64) physics.Vec3 {
	return physics.V3(x, f.HeightAt(x, z), z)
}

func (f *Field) Obstacles() []Box {
	out := make([]Box, len(f.obstacles))
	copy(out, f.obstacles)
	return out
}
