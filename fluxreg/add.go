package fluxreg

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/fab"
)

func (fr *FluxRegister) allComps() Comps { return Comps{Src: 0, Dest: 0, Num: fr.lay.NComp} }

// CrseAdd accumulates the coarse fluxes of coarse local box li, unscaled
func (fr *FluxRegister) CrseAdd(li int, flux Fluxes, dx [amr.SpaceDim]float64, dt float64) {
	fr.CrseAddComps(li, flux, dx, dt, fr.allComps())
}

// CrseAddComps is CrseAdd reading flux components from c.Src into register
// components from c.Dest.
func (fr *FluxRegister) CrseAddComps(li int, flux Fluxes, dx [amr.SpaceDim]float64, dt float64, c Comps) {
	if !fr.crseHasWork[li] {
		return
	}
	var (
		bx   = fr.crseData.ValidBox(li)
		d    = fr.crseData.Fab(li)
		flag = fr.crseFlag.Fab(li)
		dtdx = fr.crseScale(dx, dt)
	)
	fr.checkComps(c, fr.lay.NComp)
	fr.checkFluxes(flux, bx, c, fr.lay.CrseGeom)
	fr.exec.ParallelFor(bx, func(i, j, k int) {
		crseAddCell(i, j, k, d, flag, flux, dtdx, c)
	})
}

func (fr *FluxRegister) crseScale(dx [amr.SpaceDim]float64, dt float64) (dtdx [amr.SpaceDim]float64) {
	for d := 0; d < amr.SpaceDim; d++ {
		dtdx[d] = dt / dx[d]
		if fr.cvol != nil {
			dtdx[d] = dt
		}
	}
	return
}

// crseAddCell subtracts the flux on every face separating a boundary cell
// from the fine region; low faces leave the cell, high faces enter it.
func crseAddCell(i, j, k int, d *fab.FArrayBox, flag *fab.IArrayBox, flux Fluxes,
	dtdx [amr.SpaceDim]float64, c Comps) {
	var (
		iv = amr.IntVect{i, j, k}
	)
	if CellType(flag.At(iv, 0)) != Boundary {
		return
	}
	for dir := 0; dir < amr.SpaceDim; dir++ {
		if flux[dir] == nil {
			continue
		}
		lo, hi := iv, iv
		lo[dir]--
		hi[dir]++
		if CellType(flag.At(lo, 0)) == Covered {
			for n := 0; n < c.Num; n++ {
				d.Plus(i, j, k, c.Dest+n, -dtdx[dir]*flux[dir].At(iv, c.Src+n))
			}
		}
		if CellType(flag.At(hi, 0)) == Covered {
			for n := 0; n < c.Num; n++ {
				d.Plus(i, j, k, c.Dest+n, dtdx[dir]*flux[dir].At(hi, c.Src+n))
			}
		}
	}
}

// FineAdd accumulates the fluxes of fine local box li for one fine sub-step
func (fr *FluxRegister) FineAdd(li int, flux Fluxes, dx [amr.SpaceDim]float64, dt float64) {
	fr.FineAddComps(li, flux, dx, dt, fr.allComps())
}

func (fr *FluxRegister) FineAddComps(li int, flux Fluxes, dx [amr.SpaceDim]float64, dt float64, c Comps) {
	fr.FineAddTile(li, fr.fineValidBox(li), flux, dx, dt, c)
}

// FineAddTile restricts FineAdd to a tile of the fine box. The tile must be
// made of whole coarse cells.
func (fr *FluxRegister) FineAddTile(li int, tile amr.Box, flux Fluxes, dx [amr.SpaceDim]float64, dt float64, c Comps) {
	if !fr.FineHasWork(li) {
		return
	}
	cbx := fr.checkTile(li, tile)
	fr.checkComps(c, fr.lay.NComp)
	fr.checkFluxes(flux, tile, c, fr.lay.FineGeom)
	var (
		dtdx = fr.fineScale(dx, dt)
	)
	for dir := 0; dir < amr.SpaceDim; dir++ {
		if flux[dir] == nil {
			continue
		}
		for side, adj := range [2]amr.Box{cbx.AdjCellLo(dir), cbx.AdjCellHi(dir)} {
			for _, pli := range fr.cfpFabs[li] {
				is := adj.Intersect(fr.cfPatch.ValidBox(pli))
				if !is.Ok() {
					continue
				}
				var (
					d = fr.cfPatch.Fab(pli)
					f = flux[dir]
				)
				fr.exec.ParallelFor(is, func(i, j, k int) {
					fineAddCell(i, j, k, d, f, dtdx[dir], dir, side, fr.lay.Ratio, c)
				})
			}
		}
	}
}

func (fr *FluxRegister) fineScale(dx [amr.SpaceDim]float64, dt float64) (dtdx [amr.SpaceDim]float64) {
	rprod := float64(fr.lay.Ratio.Product())
	for d := 0; d < amr.SpaceDim; d++ {
		dtdx[d] = dt / (dx[d] * rprod)
		if fr.cvol != nil {
			dtdx[d] = dt
		}
	}
	return
}

// childFaces is the box of fine faces covering the coarse face between ring
// cell (i,j,k) and the fine box. Side 0 rings sit below the box and share
// their high face, side 1 rings sit above and share their low face.
func childFaces(i, j, k, dir, side int, ratio amr.IntVect) amr.Box {
	lo := amr.IntVect{i, j, k}.Mul(ratio)
	if side == 0 {
		lo[dir] += ratio[dir]
	}
	hi := lo.Add(ratio).Sub(amr.Unit(1))
	hi[dir] = lo[dir]
	return amr.NewBox(lo, hi)
}

// fineAddCell moves the summed child fluxes into a ring cell: a ring cell
// below the fine box loses what leaves through its high face, one above
// gains what enters through its low face.
func fineAddCell(i, j, k int, d, f *fab.FArrayBox, dtdx float64, dir, side int,
	ratio amr.IntVect, c Comps) {
	faces := childFaces(i, j, k, dir, side, ratio)
	for n := 0; n < c.Num; n++ {
		sum := f.SumBox(faces, c.Src+n)
		if side == 0 {
			d.Plus(i, j, k, c.Dest+n, -dtdx*sum)
		} else {
			d.Plus(i, j, k, c.Dest+n, dtdx*sum)
		}
	}
}

// Reflux applies the accumulated correction to the coarse state. Collective.
func (fr *FluxRegister) Reflux(state *fab.MultiFab) {
	fr.RefluxComps(state, fr.allComps())
}

// RefluxComps reads register components from c.Src and adds them to state
// components from c.Dest.
func (fr *FluxRegister) RefluxComps(state *fab.MultiFab, c Comps) {
	fr.checkRefluxComps(state, c)
	fr.drainPatches(c)
	fr.addToState(state, fr.crseData, c)
	fr.log.WithFields(logrus.Fields{
		"fine_level": fr.lay.FineLevel,
		"rank":       fr.comm.Rank(),
	}).Trace("reflux applied")
}

func (fr *FluxRegister) checkRefluxComps(state *fab.MultiFab, c Comps) {
	if c.Num < 1 || c.Src < 0 || c.Src+c.Num > fr.lay.NComp {
		panic(fmt.Sprintf("component range %+v invalid for %d register components", c, fr.lay.NComp))
	}
	if c.Dest < 0 || c.Dest+c.Num > state.NComp() {
		panic(fmt.Sprintf("state has %d components, reflux writes [%d,%d)", state.NComp(), c.Dest, c.Dest+c.Num))
	}
	if !state.SameLayout(fr.lay.CrseBA, fr.lay.CrseDM) {
		panic("state does not match the coarse layout")
	}
}

// drainPatches masks periodic duplicates and sums the ring fragments into
// the coarse buffer across all periodic images.
func (fr *FluxRegister) drainPatches(c Comps) {
	if fr.cfpMask != nil {
		fab.MultiplyByMask(fr.cfPatch, fr.cfpMask, c.Src, c.Num)
	}
	fr.crseData.ParallelCopy(fr.cfPatch, c.Src, c.Src, c.Num, fr.lay.CrseGeom, fab.ADD)
}

// addToState adds src to state, first dividing it by the coarse volume when
// the register holds extensive values. src is overwritten in that case.
func (fr *FluxRegister) addToState(state, src *fab.MultiFab, c Comps) {
	if fr.cvol != nil {
		fab.Divide(src, fr.cvol, 0, c.Src, c.Num)
	}
	fab.Add(state, src, c.Src, c.Dest, c.Num, 0)
}

func (fr *FluxRegister) fineValidBox(li int) amr.Box { return fr.lay.FineBA.Get(fr.fineIndex[li]) }

func (fr *FluxRegister) checkTile(li int, tile amr.Box) (cbx amr.Box) {
	if !fr.fineValidBox(li).ContainsBox(tile) {
		panic(fmt.Sprintf("tile %v is outside fine box %v", tile, fr.fineValidBox(li)))
	}
	if !tile.CoarsenableBy(fr.lay.Ratio) {
		panic(fmt.Sprintf("tile %v is not aligned to ratio %v", tile, fr.lay.Ratio))
	}
	return tile.Coarsen(fr.lay.Ratio)
}

func (fr *FluxRegister) checkComps(c Comps, ncomp int) {
	if c.Num < 1 || c.Dest < 0 || c.Src < 0 || c.Dest+c.Num > ncomp {
		panic(fmt.Sprintf("component range %+v invalid for %d register components", c, ncomp))
	}
}

// checkFluxes requires a flux array for every direction with extent, covering
// all faces of bx and holding the requested components.
func (fr *FluxRegister) checkFluxes(flux Fluxes, bx amr.Box, c Comps, geom amr.Geometry) {
	for d := 0; d < amr.SpaceDim; d++ {
		if flux[d] == nil {
			if geom.Domain.Length(d) > 1 {
				panic(fmt.Sprintf("missing flux in direction %d", d))
			}
			continue
		}
		if !flux[d].Box().ContainsBox(bx.SurroundingNodes(d)) {
			panic(fmt.Sprintf("flux box %v does not hold the faces of %v in direction %d", flux[d].Box(), bx, d))
		}
		if c.Src+c.Num > flux[d].NComp() {
			panic(fmt.Sprintf("flux has %d components, requested [%d,%d)", flux[d].NComp(), c.Src, c.Src+c.Num))
		}
	}
}
