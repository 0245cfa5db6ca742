package ebgeom

import (
	"fmt"

	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/fab"
)

const (
	ErrNotCoarsenable = 1 + iota
	ErrMultiValued
)

// CoarsenError reports why a level could not be coarsened, with a code
// callers can switch on.
type CoarsenError struct {
	Code int
	Msg  string
}

func (e *CoarsenError) Error() string {
	return fmt.Sprintf("eb coarsening failed (code %d): %s", e.Code, e.Msg)
}

// CoarsenRatio is two in every direction with more than one cell
func CoarsenRatio(geom amr.Geometry) (r amr.IntVect) {
	for d := 0; d < amr.SpaceDim; d++ {
		r[d] = 1
		if geom.Domain.Length(d) > 1 {
			r[d] = 2
		}
	}
	return
}

// CoarsenFromFine derives the next coarser level by averaging fractions over
// children. It fails when the fine boxes do not coarsen evenly or when a
// coarse cell would hold disconnected fluid regions. Collective.
func CoarsenFromFine(fine *Level, ng int) (crse *Level, err error) {
	var (
		r  = CoarsenRatio(fine.Geom)
		ba = fine.BoxArray()
	)
	if !ba.CoarsenableBy(r) || !fine.Geom.Domain.CoarsenableBy(r) {
		err = &CoarsenError{Code: ErrNotCoarsenable, Msg: fmt.Sprintf("boxes not coarsenable by %v", r)}
		return
	}
	crse = allocLevel(fine.Geom.Coarsen(r), ba.Coarsen(r), fine.DistributionMap(), ng, fine.VolFrac.Comm())
	var (
		badCell  amr.IntVect
		multiVal bool
		rvol     = float64(r.Product())
	)
	for li := 0; li < crse.VolFrac.LocalSize(); li++ {
		var (
			vbx = crse.VolFrac.ValidBox(li)
			cvf = crse.VolFrac.Fab(li)
			caf = crse.AreaFracFabs(li)
			fvf = fine.VolFrac.Fab(li)
			faf = fine.AreaFracFabs(li)
		)
		vbx.ForEach(func(i, j, k int) {
			var (
				c        = amr.IntVect{i, j, k}
				children = amr.NewBox(c.Mul(r), c.Mul(r).Add(r).Sub(amr.Unit(1)))
				sum      float64
			)
			children.ForEach(func(ii, jj, kk int) {
				sum += fvf.Get(ii, jj, kk, 0)
			})
			cvf.Set(i, j, k, 0, sum/rvol)
			if !multiVal && countComponents(children, fvf, faf) > 1 {
				multiVal, badCell = true, c
			}
		})
		for d := 0; d < amr.SpaceDim; d++ {
			rface := float64(r.Product() / r[d])
			vbx.SurroundingNodes(d).ForEach(func(i, j, k int) {
				var (
					f     = amr.IntVect{i, j, k}.Mul(r)
					cross = amr.NewBox(f, f.Add(r).Sub(amr.Unit(1)))
					sum   float64
				)
				cross.Hi[d] = f[d]
				cross.ForEach(func(ii, jj, kk int) {
					sum += faf[d].Get(ii, jj, kk, 0)
				})
				caf[d].Set(i, j, k, 0, sum/rface)
			})
		}
	}
	if crse.VolFrac.Comm().AllReduceOr(multiVal) {
		msg := "coarse cell with disconnected fluid regions"
		if multiVal {
			msg = fmt.Sprintf("%s at %v", msg, badCell)
		}
		return nil, &CoarsenError{Code: ErrMultiValued, Msg: msg}
	}
	crse.Finalize()
	return
}

// countComponents counts groups of uncovered children joined through open faces
func countComponents(children amr.Box, vf *fab.FArrayBox, af [amr.SpaceDim]*fab.FArrayBox) (n int) {
	var (
		seen  = make(map[amr.IntVect]bool)
		stack []amr.IntVect
	)
	children.ForEach(func(i, j, k int) {
		start := amr.IntVect{i, j, k}
		if seen[start] || vf.At(start, 0) == 0 {
			return
		}
		n++
		seen[start] = true
		stack = append(stack[:0], start)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for d := 0; d < amr.SpaceDim; d++ {
				for _, sign := range []int{-1, 1} {
					nb := cur
					nb[d] += sign
					if !children.Contains(nb) || seen[nb] || vf.At(nb, 0) == 0 {
						continue
					}
					face := cur
					if sign > 0 {
						face = nb
					}
					if af[d].At(face, 0) > 0 {
						seen[nb] = true
						stack = append(stack, nb)
					}
				}
			}
		}
	})
	return
}
