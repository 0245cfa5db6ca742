package amr

import "fmt"

// Geometry describes a level's index domain, its physical cell size and
// which directions wrap around.
type Geometry struct {
	Domain   Box
	ProbLo   [SpaceDim]float64
	Dx       [SpaceDim]float64
	Periodic [SpaceDim]bool
}

func NewGeometry(domain Box, probLo, probHi [SpaceDim]float64, periodic [SpaceDim]bool) (g Geometry) {
	if !domain.Ok() {
		panic(fmt.Sprintf("empty domain %v", domain))
	}
	g = Geometry{Domain: domain, ProbLo: probLo, Periodic: periodic}
	for d := 0; d < SpaceDim; d++ {
		g.Dx[d] = (probHi[d] - probLo[d]) / float64(domain.Length(d))
	}
	return
}

func (g Geometry) IsPeriodic(dir int) bool { return g.Periodic[dir] }

func (g Geometry) IsAnyPeriodic() bool {
	for d := 0; d < SpaceDim; d++ {
		if g.Periodic[d] {
			return true
		}
	}
	return false
}

// Period is the domain length in dir, zero when dir does not wrap.
func (g Geometry) Period(dir int) int {
	if !g.Periodic[dir] {
		return 0
	}
	return g.Domain.Length(dir)
}

// GrowPeriodic grows the domain by n cells in the periodic directions only
func (g Geometry) GrowPeriodic(n int) Box {
	b := g.Domain
	for d := 0; d < SpaceDim; d++ {
		if g.Periodic[d] {
			b = b.GrowDir(d, n)
		}
	}
	return b
}

// PeriodicShifts enumerates every combination of -period, 0, +period over the
// periodic directions. The zero shift is always first.
func (g Geometry) PeriodicShifts() (shifts []IntVect) {
	var rng [SpaceDim][]int
	for d := 0; d < SpaceDim; d++ {
		if p := g.Period(d); p > 0 {
			rng[d] = []int{0, -p, p}
		} else {
			rng[d] = []int{0}
		}
	}
	for _, sk := range rng[2] {
		for _, sj := range rng[1] {
			for _, si := range rng[0] {
				shifts = append(shifts, IntVect{si, sj, sk})
			}
		}
	}
	return
}

// NonPeriodic is the same geometry with all wrapping switched off
func (g Geometry) NonPeriodic() Geometry {
	g.Periodic = [SpaceDim]bool{}
	return g
}

func (g Geometry) Refine(ratio IntVect) Geometry {
	f := g
	f.Domain = g.Domain.Refine(ratio)
	for d := 0; d < SpaceDim; d++ {
		f.Dx[d] = g.Dx[d] / float64(ratio[d])
	}
	return f
}

func (g Geometry) CellVolume() float64 { return g.Dx[0] * g.Dx[1] * g.Dx[2] }

// CellCenter is the physical location of the center of cell iv
func (g Geometry) CellCenter(iv IntVect) (x [SpaceDim]float64) {
	for d := 0; d < SpaceDim; d++ {
		x[d] = g.ProbLo[d] + (float64(iv[d]-g.Domain.Lo[d])+0.5)*g.Dx[d]
	}
	return
}

// InsideNonPeriodic reports whether iv lies inside the domain in every
// direction that does not wrap.
func (g Geometry) InsideNonPeriodic(iv IntVect) bool {
	for d := 0; d < SpaceDim; d++ {
		if !g.Periodic[d] && (iv[d] < g.Domain.Lo[d] || iv[d] > g.Domain.Hi[d]) {
			return false
		}
	}
	return true
}

func (g Geometry) Coarsen(ratio IntVect) Geometry {
	c := g
	c.Domain = g.Domain.Coarsen(ratio)
	for d := 0; d < SpaceDim; d++ {
		c.Dx[d] = g.Dx[d] * float64(ratio[d])
	}
	return c
}

// Is2D reports a single cell extent in z
func (g Geometry) Is2D() bool { return g.Domain.Length(2) == 1 }
