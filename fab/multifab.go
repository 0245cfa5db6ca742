package fab

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/fluxreg/amr"
)

// Add sets dst += src over valid cells grown by ngrow. Both arrays share a layout.
func Add(dst, src *MultiFab, scomp, dcomp, ncomp, ngrow int) {
	checkLayout(dst, src)
	for li := range dst.fabs {
		var (
			d, s = dst.fabs[li], src.fabs[li]
			bx   = dst.ValidBox(li).Grow(ngrow)
		)
		if d.Box() == bx && s.Box() == bx {
			for n := 0; n < ncomp; n++ {
				floats.Add(d.Comp(dcomp+n), s.Comp(scomp+n))
			}
			continue
		}
		d.CopyShifted(s, bx, amr.IntVect{}, scomp, dcomp, ncomp, ADD)
	}
}

// Divide sets dst /= src over valid cells for one source component applied to
// ncomp destination components. Turns accumulated extensive corrections into
// densities.
func Divide(dst, src *MultiFab, scomp, dcomp, ncomp int) {
	checkLayout(dst, src)
	for li := range dst.fabs {
		var (
			d, s = dst.fabs[li], src.fabs[li]
		)
		dst.ValidBox(li).ForEach(func(i, j, k int) {
			v := s.Get(i, j, k, scomp)
			for n := dcomp; n < dcomp+ncomp; n++ {
				d.Set(i, j, k, n, d.Get(i, j, k, n)/v)
			}
		})
	}
}

// MultiplyByMask scales every component by a one component mask of the same layout
func MultiplyByMask(dst, mask *MultiFab, dcomp, ncomp int) {
	checkLayout(dst, mask)
	for li := range dst.fabs {
		var (
			d, m = dst.fabs[li], mask.fabs[li]
		)
		if d.Box() == m.Box() {
			for n := dcomp; n < dcomp+ncomp; n++ {
				floats.Mul(d.Comp(n), m.Comp(0))
			}
			continue
		}
		dst.ValidBox(li).ForEach(func(i, j, k int) {
			for n := dcomp; n < dcomp+ncomp; n++ {
				d.Set(i, j, k, n, d.Get(i, j, k, n)*m.Get(i, j, k, 0))
			}
		})
	}
}

func Scale(mf *MultiFab, s float64) {
	for _, f := range mf.fabs {
		floats.Scale(s, f.Data())
	}
}

// Sum is the all-rank total of one component over valid cells. Collective.
func Sum(mf *MultiFab, comp int) float64 {
	return mf.comm.AllReduceSum(LocalSum(mf, comp))
}

func LocalSum(mf *MultiFab, comp int) (sum float64) {
	for li, f := range mf.fabs {
		if mf.ngrow == 0 {
			sum += floats.Sum(f.Comp(comp))
			continue
		}
		sum += f.SumBox(mf.ValidBox(li), comp)
	}
	return
}

// NormInf is the all-rank max norm of one component over valid cells. Collective.
func NormInf(mf *MultiFab, comp int) float64 {
	var mx float64
	for li, f := range mf.fabs {
		if mf.ngrow == 0 {
			mx = max(mx, floats.Norm(f.Comp(comp), math.Inf(1)))
			continue
		}
		mf.ValidBox(li).ForEach(func(i, j, k int) {
			v := f.Get(i, j, k, comp)
			mx = max(mx, v, -v)
		})
	}
	return mf.comm.AllReduceMax(mx)
}

// Saxpy sets dst += a*src over valid cells
func Saxpy(dst *MultiFab, a float64, src *MultiFab, scomp, dcomp, ncomp int) {
	checkLayout(dst, src)
	for li := range dst.fabs {
		var (
			d, s = dst.fabs[li], src.fabs[li]
		)
		if bx := dst.ValidBox(li); d.Box() == bx && s.Box() == bx {
			for n := 0; n < ncomp; n++ {
				floats.AddScaled(d.Comp(dcomp+n), a, s.Comp(scomp+n))
			}
			continue
		}
		dst.ValidBox(li).ForEach(func(i, j, k int) {
			for n := 0; n < ncomp; n++ {
				d.Plus(i, j, k, dcomp+n, a*s.Get(i, j, k, scomp+n))
			}
		})
	}
}
