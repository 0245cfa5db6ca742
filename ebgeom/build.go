package ebgeom

import (
	"math"

	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/utils"
)

// ImplicitFunction is negative in the fluid and positive in the body
type ImplicitFunction func(x [amr.SpaceDim]float64) float64

// CircleIF is a cylinder along z through center
func CircleIF(cx, cy, radius float64, fluidInside bool) ImplicitFunction {
	sign := 1.
	if fluidInside {
		sign = -1
	}
	return func(x [amr.SpaceDim]float64) float64 {
		return sign * (radius - math.Hypot(x[0]-cx, x[1]-cy))
	}
}

// SphereIF is a ball around center
func SphereIF(center [amr.SpaceDim]float64, radius float64, fluidInside bool) ImplicitFunction {
	sign := 1.
	if fluidInside {
		sign = -1
	}
	return func(x [amr.SpaceDim]float64) float64 {
		var r2 float64
		for d := 0; d < amr.SpaceDim; d++ {
			r2 += (x[d] - center[d]) * (x[d] - center[d])
		}
		return sign * (radius - math.Sqrt(r2))
	}
}

// PeriodicBody repeats the body of fn across every periodic boundary of geom,
// so an obstacle straddling a seam shows up on both sides of it.
func PeriodicBody(fn ImplicitFunction, geom amr.Geometry) ImplicitFunction {
	var images [][amr.SpaceDim]float64
	for _, s := range geom.PeriodicShifts() {
		var off [amr.SpaceDim]float64
		for d := 0; d < amr.SpaceDim; d++ {
			off[d] = float64(s[d]) * geom.Dx[d]
		}
		images = append(images, off)
	}
	return func(x [amr.SpaceDim]float64) (v float64) {
		v = math.Inf(-1)
		for _, off := range images {
			y := x
			for d := 0; d < amr.SpaceDim; d++ {
				y[d] += off[d]
			}
			v = math.Max(v, fn(y))
		}
		return
	}
}

// PlaneIF has fluid on the side opposite to normal
func PlaneIF(point, normal [amr.SpaceDim]float64) ImplicitFunction {
	return func(x [amr.SpaceDim]float64) (dot float64) {
		for d := 0; d < amr.SpaceDim; d++ {
			dot += (x[d] - point[d]) * normal[d]
		}
		return
	}
}

// BuildLevel samples fn on an nsub^dim lattice inside every cell and face of
// each fab, ghosts included, to get volume and area fractions. Collective.
func BuildLevel(geom amr.Geometry, ba amr.BoxArray, dm amr.DistributionMapping, ng int,
	comm *utils.Comm, fn ImplicitFunction, nsub int) (l *Level) {
	if nsub < 1 {
		nsub = 1
	}
	l = allocLevel(geom, ba, dm, ng, comm)
	var (
		active [amr.SpaceDim]bool
	)
	for d := 0; d < amr.SpaceDim; d++ {
		active[d] = geom.Domain.Length(d) > 1
	}
	// fraction of sample points in the fluid; fixed direction fix sits on the low face
	sample := func(iv amr.IntVect, fix int) float64 {
		var (
			n, inside int
			lo        = geom.CellCenter(iv)
			nd        [amr.SpaceDim]int
		)
		for d := 0; d < amr.SpaceDim; d++ {
			nd[d] = 1
			if active[d] && d != fix {
				nd[d] = nsub
			}
		}
		for sk := 0; sk < nd[2]; sk++ {
			for sj := 0; sj < nd[1]; sj++ {
				for si := 0; si < nd[0]; si++ {
					var (
						x = lo
						s = [amr.SpaceDim]int{si, sj, sk}
					)
					for d := 0; d < amr.SpaceDim; d++ {
						switch {
						case d == fix:
							x[d] -= 0.5 * geom.Dx[d]
						case nd[d] > 1:
							x[d] += ((float64(s[d])+0.5)/float64(nd[d]) - 0.5) * geom.Dx[d]
						}
					}
					if fn(x) < 0 {
						inside++
					}
					n++
				}
			}
		}
		return float64(inside) / float64(n)
	}
	// ghost cells are sampled too, at their periodic image, so cells just
	// outside a box carry the geometry even where no other box covers them
	wrap := func(i, j, k int) (iv amr.IntVect) {
		iv = amr.IntVect{i, j, k}
		for d := 0; d < amr.SpaceDim; d++ {
			if p := geom.Period(d); p > 0 {
				iv[d] = geom.Domain.Lo[d] + ((iv[d]-geom.Domain.Lo[d])%p+p)%p
			}
		}
		return
	}
	for li := 0; li < l.VolFrac.LocalSize(); li++ {
		var (
			vf = l.VolFrac.Fab(li)
			af = l.AreaFracFabs(li)
		)
		vf.Box().ForEach(func(i, j, k int) {
			vf.Set(i, j, k, 0, sample(wrap(i, j, k), -1))
		})
		for d := 0; d < amr.SpaceDim; d++ {
			af[d].Box().ForEach(func(i, j, k int) {
				af[d].Set(i, j, k, 0, sample(wrap(i, j, k), d))
			})
		}
	}
	l.Finalize()
	return
}
