package terrain

import (
	"math"

	"github.com/zeusync/salvo/internal/core/systems/physics"
)

// Box is an axis-aligned obstacle volume.
type Box struct {
	Name string       `json:"name" yaml:"name"`
	Min  physics.Vec3 `json:"min" yaml:"min"`
	Max  physics.Vec3 `json:"max" yaml:"max"`
}

func (b Box) Valid() bool {
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

func (b Box) Contains(p physics.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// IntersectsSegment runs the slab test for the segment from -> to.
func (b Box) IntersectsSegment(from, to physics.Vec3) bool {
	d := to.Sub(from)
	tMin, tMax := 0.0, 1.0

	axes := [3][4]float64{
		{from.X, d.X, b.Min.X, b.Max.X},
		{from.Y, d.Y, b.Min.Y, b.Max.Y},
		{from.Z, d.Z, b.Min.Z, b.Max.Z},
	}
	for _, a := range axes {
		origin, dir, lo, hi := a[0], a[1], a[2], a[3]
		if math.Abs(dir) < 1e-12 {
			if origin < lo || origin > hi {
				return false
			}
			continue
		}
		t1 := (lo - origin) / dir
		t2 := (hi - origin) / dir
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return false
		}
	}
	return true
}
