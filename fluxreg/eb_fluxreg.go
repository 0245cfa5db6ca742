package fluxreg

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/ebgeom"
	"github.com/notargets/fluxreg/fab"
	"github.com/notargets/fluxreg/utils"
)

const smallVolFrac = 1.e-14

// EBConfig carries the tunables of the cut-cell register
type EBConfig struct {
	// ReredistributionThreshold is the per fine cell volume fraction below
	// which fine redistribution deficits are not carried to the coarse level.
	ReredistributionThreshold float64
}

func DefaultEBConfig() EBConfig { return EBConfig{ReredistributionThreshold: 1.e-14} }

// DisableReredistribution raises the threshold beyond any reachable child volume
func (cfg EBConfig) DisableReredistribution() EBConfig {
	cfg.ReredistributionThreshold = 1.e10
	return cfg
}

// FracFabs are the per-box embedded boundary fractions passed to CrseAdd and
// FineAdd: one volume fraction fab and one area fraction fab per direction.
type FracFabs struct {
	VolFrac  *fab.FArrayBox
	AreaFrac [amr.SpaceDim]*fab.FArrayBox
}

func LevelFracs(lev *ebgeom.Level, li int) FracFabs {
	return FracFabs{VolFrac: lev.VolFracFab(li), AreaFrac: lev.AreaFracFabs(li)}
}

// EBFluxRegister is a FluxRegister for levels cut by an embedded boundary.
// Fluxes are weighted by area fractions and normalised by volume fractions,
// and corrections landing on small cut cells are spread over their connected
// neighbours before they reach the state.
type EBFluxRegister struct {
	reg        *FluxRegister
	cfg        EBConfig
	insideMask *fab.IMultiFab // covered coarse cells next to a ring fragment
}

func NewEBFluxRegister(lay Layout, comm *utils.Comm, cfg EBConfig, opts ...Option) (eb *EBFluxRegister) {
	eb = &EBFluxRegister{
		reg: NewFluxRegister(lay, comm, opts...),
		cfg: cfg,
	}
	eb.defineInsideMask()
	return
}

// Define rebuilds the register and its inside mask for lay. Collective.
func (eb *EBFluxRegister) Define(lay Layout) {
	eb.reg.Define(lay)
	eb.defineInsideMask()
}

func (eb *EBFluxRegister) Reset() { eb.reg.Reset() }

func (eb *EBFluxRegister) CrseHasWork(li int) bool { return eb.reg.CrseHasWork(li) }

func (eb *EBFluxRegister) FineHasWork(li int) bool { return eb.reg.FineHasWork(li) }

func (eb *EBFluxRegister) CrseData() *fab.MultiFab { return eb.reg.CrseData() }

func (eb *EBFluxRegister) FineData() *fab.MultiFab { return eb.reg.FineData() }

func (eb *EBFluxRegister) CrseFlag() *fab.IMultiFab { return eb.reg.CrseFlag() }

func (eb *EBFluxRegister) PatchMask() *fab.MultiFab { return eb.reg.PatchMask() }

func (eb *EBFluxRegister) NComp() int { return eb.reg.NComp() }

func (eb *EBFluxRegister) Ratio() amr.IntVect { return eb.reg.Ratio() }

func (eb *EBFluxRegister) Layout() Layout { return eb.reg.Layout() }

func (eb *EBFluxRegister) Comm() *utils.Comm { return eb.reg.Comm() }

func (eb *EBFluxRegister) defineInsideMask() {
	var (
		lay  = eb.reg.lay
		cfba = lay.FineBA.Coarsen(lay.Ratio)
	)
	eb.insideMask = fab.NewIMultiFab(cfba, lay.FineDM, 1, 0, eb.reg.comm)
	eb.insideMask.SetVal(0)
	var (
		marked int
		shifts = lay.CrseGeom.PeriodicShifts()
	)
	for li := 0; li < eb.insideMask.LocalSize(); li++ {
		m := eb.insideMask.Fab(li)
		for _, pli := range eb.reg.cfpFabs[li] {
			// a fragment past the domain edge borders its box through the periodic image too
			for _, s := range shifts {
				m.SetValBox(1, eb.reg.cfPatch.ValidBox(pli).Grow(1).Shift(s).Intersect(m.Box()), 0, 1)
			}
		}
		marked += m.SumBox(m.Box(), 0)
	}
	eb.reg.log.WithFields(logrus.Fields{
		"fine_level": lay.FineLevel,
		"rank":       eb.reg.comm.Rank(),
		"inside":     marked,
		"threshold":  eb.cfg.ReredistributionThreshold,
	}).Debug("eb inside mask defined")
}

// SetCrseVolume is not available on cut-cell levels, volume fractions take its place
func (eb *EBFluxRegister) SetCrseVolume(cvol *fab.MultiFab) {
	panic("EBFluxRegister works with volume fractions and does not accept a coarse volume")
}

// InsideMask marks the fine-covered coarse cells that border the ring
func (eb *EBFluxRegister) InsideMask() *fab.IMultiFab { return eb.insideMask }

func (eb *EBFluxRegister) Config() EBConfig { return eb.cfg }

func (eb *EBFluxRegister) CrseAdd(li int, flux Fluxes, dx [amr.SpaceDim]float64, dt float64, fracs FracFabs) {
	eb.CrseAddComps(li, flux, dx, dt, fracs, eb.reg.allComps())
}

// CrseAddComps weights each seam face flux by its area fraction and divides
// by the volume fraction of the boundary cell. Cells with a vanishing volume
// fraction receive nothing.
func (eb *EBFluxRegister) CrseAddComps(li int, flux Fluxes, dx [amr.SpaceDim]float64, dt float64,
	fracs FracFabs, c Comps) {
	if !eb.reg.crseHasWork[li] {
		return
	}
	var (
		bx   = eb.reg.crseData.ValidBox(li)
		d    = eb.reg.crseData.Fab(li)
		flag = eb.reg.crseFlag.Fab(li)
	)
	eb.reg.checkComps(c, eb.reg.lay.NComp)
	eb.reg.checkFluxes(flux, bx, c, eb.reg.lay.CrseGeom)
	checkFracs(fracs, flux, bx)
	var dtdx [amr.SpaceDim]float64
	for dir := range dtdx {
		dtdx[dir] = dt / dx[dir]
	}
	eb.reg.exec.ParallelFor(bx, func(i, j, k int) {
		ebCrseAddCell(i, j, k, d, flag, flux, fracs, dtdx, c)
	})
}

func ebCrseAddCell(i, j, k int, d *fab.FArrayBox, flag *fab.IArrayBox, flux Fluxes, fracs FracFabs,
	dtdx [amr.SpaceDim]float64, c Comps) {
	iv := amr.IntVect{i, j, k}
	if CellType(flag.At(iv, 0)) != Boundary {
		return
	}
	vf := fracs.VolFrac.At(iv, 0)
	if vf <= smallVolFrac {
		return
	}
	for dir := 0; dir < amr.SpaceDim; dir++ {
		if flux[dir] == nil {
			continue
		}
		var (
			lo, hi = iv, iv
			ap     = fracs.AreaFrac[dir]
		)
		lo[dir]--
		hi[dir]++
		if CellType(flag.At(lo, 0)) == Covered {
			s := -dtdx[dir] * ap.At(iv, 0) / vf
			for n := 0; n < c.Num; n++ {
				d.Plus(i, j, k, c.Dest+n, s*flux[dir].At(iv, c.Src+n))
			}
		}
		if CellType(flag.At(hi, 0)) == Covered {
			s := dtdx[dir] * ap.At(hi, 0) / vf
			for n := 0; n < c.Num; n++ {
				d.Plus(i, j, k, c.Dest+n, s*flux[dir].At(hi, c.Src+n))
			}
		}
	}
}

// FineAdd accumulates area weighted fine fluxes for one sub-step. dm, when
// not nil, is the fine redistribution deficit; it is read on the tile grown by
// one and carried to the ring cells it overlaps.
func (eb *EBFluxRegister) FineAdd(li int, flux Fluxes, dx [amr.SpaceDim]float64, dt float64,
	fracs FracFabs, dm *fab.FArrayBox) {
	eb.FineAddComps(li, flux, dx, dt, fracs, dm, eb.reg.allComps())
}

func (eb *EBFluxRegister) FineAddComps(li int, flux Fluxes, dx [amr.SpaceDim]float64, dt float64,
	fracs FracFabs, dm *fab.FArrayBox, c Comps) {
	eb.FineAddTile(li, eb.reg.fineValidBox(li), flux, dx, dt, fracs, dm, c)
}

// FineAddTile is FineAdd over one ratio aligned tile of the fine box. The
// volume fractions must reach ratio cells past the tile, so the ring cells'
// children are available.
func (eb *EBFluxRegister) FineAddTile(li int, tile amr.Box, flux Fluxes, dx [amr.SpaceDim]float64,
	dt float64, fracs FracFabs, dm *fab.FArrayBox, c Comps) {
	if !eb.FineHasWork(li) {
		return
	}
	var (
		cbx   = eb.reg.checkTile(li, tile)
		ratio = eb.reg.lay.Ratio
	)
	eb.reg.checkComps(c, eb.reg.lay.NComp)
	eb.reg.checkFluxes(flux, tile, c, eb.reg.lay.FineGeom)
	checkFracs(fracs, flux, tile)
	for dir := 0; dir < amr.SpaceDim; dir++ {
		if flux[dir] == nil {
			continue
		}
		fac := dt / dx[dir]
		for side, adj := range [2]amr.Box{cbx.AdjCellLo(dir), cbx.AdjCellHi(dir)} {
			for _, pli := range eb.reg.cfpFabs[li] {
				is := adj.Intersect(eb.reg.cfPatch.ValidBox(pli))
				if !is.Ok() {
					continue
				}
				checkChildren(fracs.VolFrac, is, ratio)
				var (
					d = eb.reg.cfPatch.Fab(pli)
					f = flux[dir]
				)
				eb.reg.exec.ParallelFor(is, func(i, j, k int) {
					ebFineAddCell(i, j, k, d, f, fracs, fac, dir, side, ratio, c)
				})
			}
		}
	}
	if dm == nil {
		return
	}
	var (
		tbxg1     = tile.Grow(1)
		cbxg1     = cbx.Grow(1)
		threshold = eb.cfg.ReredistributionThreshold * float64(ratio.Product())
	)
	if c.Src+c.Num > dm.NComp() {
		panic(fmt.Sprintf("dm has %d components, requested [%d,%d)", dm.NComp(), c.Src, c.Src+c.Num))
	}
	for _, pli := range eb.reg.cfpFabs[li] {
		wbx := cbxg1.Intersect(eb.reg.cfPatch.ValidBox(pli))
		if !wbx.Ok() {
			continue
		}
		checkChildren(fracs.VolFrac, wbx, ratio)
		if inner := wbx.Refine(ratio).Intersect(tbxg1); !dm.Box().ContainsBox(inner) {
			panic(fmt.Sprintf("dm box %v does not hold %v", dm.Box(), inner))
		}
		d := eb.reg.cfPatch.Fab(pli)
		eb.reg.exec.ParallelFor(wbx, func(i, j, k int) {
			ebFineAddDMCell(i, j, k, d, dm, fracs.VolFrac, tbxg1, ratio, threshold, c)
		})
	}
}

func childCells(iv, ratio amr.IntVect) amr.Box {
	lo := iv.Mul(ratio)
	return amr.NewBox(lo, lo.Add(ratio).Sub(amr.Unit(1)))
}

// ebFineAddCell normalises the area weighted child face fluxes by the fluid
// volume of the ring cell's children.
func ebFineAddCell(i, j, k int, d, f *fab.FArrayBox, fracs FracFabs, fac float64, dir, side int,
	ratio amr.IntVect, c Comps) {
	var (
		iv    = amr.IntVect{i, j, k}
		faces = childFaces(i, j, k, dir, side, ratio)
		ap    = fracs.AreaFrac[dir]
		fv    = fracs.VolFrac.SumBox(childCells(iv, ratio), 0)
	)
	if fv <= smallVolFrac {
		return
	}
	for n := 0; n < c.Num; n++ {
		var fa float64
		faces.ForEach(func(ii, jj, kk int) {
			fa += f.Get(ii, jj, kk, c.Src+n) * ap.Get(ii, jj, kk, 0)
		})
		if side == 0 {
			d.Plus(i, j, k, c.Dest+n, -fa*fac/fv)
		} else {
			d.Plus(i, j, k, c.Dest+n, fa*fac/fv)
		}
	}
}

// ebFineAddDMCell adds the deficit of the children inside the grown tile,
// converted to a density over all children.
func ebFineAddDMCell(i, j, k int, d, dm, vf *fab.FArrayBox, tbxg1 amr.Box, ratio amr.IntVect,
	threshold float64, c Comps) {
	var (
		children = childCells(amr.IntVect{i, j, k}, ratio)
		vtot     = vf.SumBox(children, 0)
		inner    = children.Intersect(tbxg1)
	)
	if vtot <= threshold || !inner.Ok() {
		return
	}
	for n := 0; n < c.Num; n++ {
		d.Plus(i, j, k, c.Dest+n, dm.SumBox(inner, c.Src+n)/vtot)
	}
}

// checkFracs requires volume fractions over bx and area fractions over its
// faces in every direction carrying a flux.
func checkFracs(fracs FracFabs, flux Fluxes, bx amr.Box) {
	if fracs.VolFrac == nil || !fracs.VolFrac.Box().ContainsBox(bx) {
		panic(fmt.Sprintf("volume fractions do not cover %v", bx))
	}
	for d := 0; d < amr.SpaceDim; d++ {
		if flux[d] == nil {
			continue
		}
		if fracs.AreaFrac[d] == nil || !fracs.AreaFrac[d].Box().ContainsBox(bx.SurroundingNodes(d)) {
			panic(fmt.Sprintf("area fractions in direction %d do not cover the faces of %v", d, bx))
		}
	}
}

func checkChildren(vf *fab.FArrayBox, crse amr.Box, ratio amr.IntVect) {
	if fine := crse.Refine(ratio); !vf.Box().ContainsBox(fine) {
		panic(fmt.Sprintf("volume fraction box %v does not hold the children %v of ring cells %v",
			vf.Box(), fine, crse))
	}
}

func (eb *EBFluxRegister) Reflux(crseState *fab.MultiFab, crseEB *ebgeom.Level,
	fineState *fab.MultiFab, fineEB *ebgeom.Level) {
	eb.RefluxComps(crseState, crseEB, fineState, fineEB, eb.reg.allComps())
}

// RefluxComps drains the ring into the coarse buffer, spreads the correction
// of every cut boundary cell over its connected neighbours, adds the result to
// crseState and, when fineState is given, passes the part that landed under
// the fine level down to it. fineEB may be nil for a fine level with no cut
// cells. Collective.
func (eb *EBFluxRegister) RefluxComps(crseState *fab.MultiFab, crseEB *ebgeom.Level,
	fineState *fab.MultiFab, fineEB *ebgeom.Level, c Comps) {
	eb.reg.checkRefluxComps(crseState, c)
	if crseEB == nil || !crseEB.VolFrac.SameLayout(eb.reg.lay.CrseBA, eb.reg.lay.CrseDM) {
		panic("coarse EB level does not match the coarse layout")
	}
	if crseEB.NGrow() < 2 {
		panic(fmt.Sprintf("coarse EB level needs 2 ghost cells, has %d", crseEB.NGrow()))
	}
	eb.reg.drainPatches(c)

	grown := fab.NewMultiFab(eb.reg.lay.CrseBA, eb.reg.lay.CrseDM, c.Num, 1, eb.reg.comm)
	fab.Copy(grown, eb.reg.crseData, c.Src, 0, c.Num, 0)
	grown.FillBoundary(eb.reg.lay.CrseGeom)
	eb.reg.crseData.SetValComps(0, c.Src, c.Num, 0)

	gdomain := eb.reg.lay.CrseGeom.GrowPeriodic(1)
	for li := 0; li < eb.reg.crseData.LocalSize(); li++ {
		if !eb.reg.crseNearWork[li] {
			continue
		}
		bx := eb.reg.crseData.ValidBox(li)
		if crseEB.FabType(li, bx) == ebgeom.FabCovered {
			continue
		}
		var (
			bxg1 = bx.Grow(1).Intersect(gdomain)
			d    = eb.reg.crseData.Fab(li)
			s    = grown.Fab(li)
		)
		if crseEB.FabType(li, bxg1) == ebgeom.FabRegular {
			eb.reg.exec.ParallelFor(bx, func(i, j, k int) {
				for n := 0; n < c.Num; n++ {
					d.Plus(i, j, k, c.Src+n, s.Get(i, j, k, n))
				}
			})
			continue
		}
		eb.rereflux(li, bx, bxg1, s, crseEB, c)
	}

	fab.Add(crseState, eb.reg.crseData, c.Src, c.Dest, c.Num, 0)
	if fineState != nil {
		eb.scatterToFine(fineState, fineEB, c)
	}
	eb.reg.log.WithFields(logrus.Fields{
		"fine_level": eb.reg.lay.FineLevel,
		"rank":       eb.reg.comm.Rank(),
		"fine":       fineState != nil,
	}).Trace("eb reflux applied")
}

// rereflux spreads the correction of each cut boundary cell s of bxg1, as the
// mass s*vf(s), uniformly in density over s and its connected neighbours.
// Every cell of bx gathers what its sources send it, so each destination cell
// is written once.
func (eb *EBFluxRegister) rereflux(li int, bx, bxg1 amr.Box, s *fab.FArrayBox, lev *ebgeom.Level, c Comps) {
	var (
		d       = eb.reg.crseData.Fab(li)
		amrflag = eb.reg.crseFlag.Fab(li)
		flags   = lev.FlagFab(li)
		vf      = lev.VolFracFab(li)
		scale   = fab.NewFArrayBox(bxg1, 1) // vf/wtot of each spreading source, zero elsewhere
	)
	eb.reg.exec.ParallelFor(bxg1, func(i, j, k int) {
		if CellType(amrflag.Get(i, j, k, 0)) != Boundary {
			return
		}
		f := ebgeom.CellFlag(flags.Get(i, j, k, 0))
		if !f.IsSingleValued() {
			return
		}
		var wtot float64
		forNeighbours(func(ii, jj, kk int) {
			if f.IsConnected(ii, jj, kk) {
				wtot += vf.Get(i+ii, j+jj, k+kk, 0)
			}
		})
		scale.Set(i, j, k, 0, vf.Get(i, j, k, 0)/(wtot+1.e-80))
	})
	eb.reg.exec.ParallelFor(bx, func(i, j, k int) {
		if ebgeom.CellFlag(flags.Get(i, j, k, 0)).IsCovered() {
			return
		}
		forNeighbours(func(ii, jj, kk int) {
			var (
				si, sj, sk = i - ii, j - jj, k - kk
			)
			if !bxg1.ContainsCell(si, sj, sk) {
				return
			}
			w := scale.Get(si, sj, sk, 0)
			if w == 0 {
				if ii == 0 && jj == 0 && kk == 0 {
					for n := 0; n < c.Num; n++ {
						d.Plus(i, j, k, c.Src+n, s.Get(i, j, k, n))
					}
				}
				return
			}
			if !ebgeom.CellFlag(flags.Get(si, sj, sk, 0)).IsConnected(ii, jj, kk) {
				return
			}
			for n := 0; n < c.Num; n++ {
				d.Plus(i, j, k, c.Src+n, w*s.Get(si, sj, sk, n))
			}
		})
	})
}

func forNeighbours(fn func(ii, jj, kk int)) {
	for kk := -1; kk <= 1; kk++ {
		for jj := -1; jj <= 1; jj++ {
			for ii := -1; ii <= 1; ii++ {
				fn(ii, jj, kk)
			}
		}
	}
}

// scatterToFine adds the coarse density increment of every fine-covered cell
// flagged by the inside mask to all of its children.
func (eb *EBFluxRegister) scatterToFine(fineState *fab.MultiFab, fineEB *ebgeom.Level, c Comps) {
	if !fineState.SameLayout(eb.reg.lay.FineBA, eb.reg.lay.FineDM) {
		panic("fine state does not match the fine layout")
	}
	if c.Dest+c.Num > fineState.NComp() {
		panic(fmt.Sprintf("fine state has %d components, reflux writes [%d,%d)",
			fineState.NComp(), c.Dest, c.Dest+c.Num))
	}
	var (
		ratio = eb.reg.lay.Ratio
		cf    = fab.NewMultiFab(eb.insideMask.BoxArray(), eb.reg.lay.FineDM, c.Num, 0, eb.reg.comm)
	)
	cf.ParallelCopy(eb.reg.crseData, c.Src, 0, c.Num, eb.reg.lay.CrseGeom, fab.COPY)
	for li := 0; li < cf.LocalSize(); li++ {
		fbx := fineState.ValidBox(li)
		if fineEB != nil && fineEB.FabType(li, fbx) == ebgeom.FabCovered {
			continue
		}
		var (
			d = fineState.Fab(li)
			s = cf.Fab(li)
			m = eb.insideMask.Fab(li)
		)
		eb.reg.exec.ParallelFor(fbx, func(i, j, k int) {
			p := amr.IntVect{i, j, k}.Coarsen(ratio)
			if m.At(p, 0) == 0 {
				return
			}
			for n := 0; n < c.Num; n++ {
				d.Plus(i, j, k, c.Dest+n, s.At(p, n))
			}
		})
	}
}
