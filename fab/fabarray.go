package fab

import (
	"fmt"
	"sort"

	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/utils"
)

type CopyOp uint8

const (
	COPY CopyOp = iota
	ADD
)

// FabArray is a field distributed over the boxes of a BoxArray. Each rank
// allocates only the fabs it owns; local index li walks them in increasing
// global index order.
type FabArray[T Number] struct {
	ba           amr.BoxArray
	dm           amr.DistributionMapping
	ncomp, ngrow int
	comm         *utils.Comm
	index        []int
	local        map[int]int
	fabs         []*BaseFab[T]
}

type MultiFab = FabArray[float64]

type IMultiFab = FabArray[int]

func NewFabArray[T Number](ba amr.BoxArray, dm amr.DistributionMapping, ncomp, ngrow int,
	comm *utils.Comm) (fa *FabArray[T]) {
	if ba.Size() != dm.Size() {
		panic(fmt.Sprintf("BoxArray has %d boxes but DistributionMapping has %d", ba.Size(), dm.Size()))
	}
	fa = &FabArray[T]{
		ba:    ba,
		dm:    dm,
		ncomp: ncomp,
		ngrow: ngrow,
		comm:  comm,
		index: dm.LocalIndices(comm.Rank()),
		local: make(map[int]int),
	}
	fa.fabs = make([]*BaseFab[T], len(fa.index))
	for li, gi := range fa.index {
		fa.local[gi] = li
		fa.fabs[li] = NewBaseFab[T](ba.Get(gi).Grow(ngrow), ncomp)
	}
	return
}

func NewMultiFab(ba amr.BoxArray, dm amr.DistributionMapping, ncomp, ngrow int, comm *utils.Comm) *MultiFab {
	return NewFabArray[float64](ba, dm, ncomp, ngrow, comm)
}

func NewIMultiFab(ba amr.BoxArray, dm amr.DistributionMapping, ncomp, ngrow int, comm *utils.Comm) *IMultiFab {
	return NewFabArray[int](ba, dm, ncomp, ngrow, comm)
}

func (fa *FabArray[T]) BoxArray() amr.BoxArray { return fa.ba }

func (fa *FabArray[T]) DistributionMap() amr.DistributionMapping { return fa.dm }

func (fa *FabArray[T]) NComp() int { return fa.ncomp }

func (fa *FabArray[T]) NGrow() int { return fa.ngrow }

func (fa *FabArray[T]) Comm() *utils.Comm { return fa.comm }

func (fa *FabArray[T]) LocalSize() int { return len(fa.fabs) }

func (fa *FabArray[T]) GlobalIndex(li int) int { return fa.index[li] }

// LocalIndex maps a global box index to this rank's fab, ok is false for a box owned elsewhere
func (fa *FabArray[T]) LocalIndex(gi int) (li int, ok bool) {
	li, ok = fa.local[gi]
	return
}

func (fa *FabArray[T]) Fab(li int) *BaseFab[T] { return fa.fabs[li] }

func (fa *FabArray[T]) ValidBox(li int) amr.Box { return fa.ba.Get(fa.index[li]) }

func (fa *FabArray[T]) FabBox(li int) amr.Box { return fa.fabs[li].Box() }

// SameLayout reports whether both arrays share boxes and owners
func (fa *FabArray[T]) SameLayout(ba amr.BoxArray, dm amr.DistributionMapping) bool {
	if !fa.ba.Equal(ba) {
		return false
	}
	for i := 0; i < dm.Size(); i++ {
		if dm.Owner(i) != fa.dm.Owner(i) {
			return false
		}
	}
	return true
}

func (fa *FabArray[T]) SetVal(v T) {
	for _, f := range fa.fabs {
		f.SetVal(v)
	}
}

func (fa *FabArray[T]) SetValComps(v T, comp, ncomp, ngrow int) {
	for li, f := range fa.fabs {
		f.SetValBox(v, fa.ValidBox(li).Grow(ngrow), comp, ncomp)
	}
}

type fabMsg[T Number] struct {
	Dst, Src, Shift int
	Box             amr.Box // destination coordinates
	Data            []T
}

// ParallelCopy fills the valid cells of fa from the valid cells of src, over
// all periodic images of src in geom. With ADD overlapping contributions are
// summed. Collective.
func (fa *FabArray[T]) ParallelCopy(src *FabArray[T], scomp, dcomp, ncomp int, geom amr.Geometry, op CopyOp) {
	fa.ParallelCopyGrow(src, scomp, dcomp, ncomp, 0, 0, geom, op)
}

// ParallelCopyGrow is ParallelCopy reading srcNG ghost cells of src and
// writing dstNG ghost cells of fa.
func (fa *FabArray[T]) ParallelCopyGrow(src *FabArray[T], scomp, dcomp, ncomp, srcNG, dstNG int,
	geom amr.Geometry, op CopyOp) {
	if scomp < 0 || scomp+ncomp > src.ncomp || dcomp < 0 || dcomp+ncomp > fa.ncomp {
		panic(fmt.Sprintf("component range src [%d,%d) of %d, dst [%d,%d) of %d",
			scomp, scomp+ncomp, src.ncomp, dcomp, dcomp+ncomp, fa.ncomp))
	}
	if srcNG > src.ngrow || dstNG > fa.ngrow {
		panic(fmt.Sprintf("ghost request src %d of %d, dst %d of %d", srcNG, src.ngrow, dstNG, fa.ngrow))
	}
	fa.exchange(src.copyPlan(fa, srcNG, dstNG, geom, scomp, ncomp, false), dcomp, ncomp, op)
}

// FillBoundary fills ghost cells from the valid cells of neighbouring boxes,
// including periodic images. Collective.
func (fa *FabArray[T]) FillBoundary(geom amr.Geometry) {
	fa.FillBoundaryComps(0, fa.ncomp, geom)
}

func (fa *FabArray[T]) FillBoundaryComps(comp, ncomp int, geom amr.Geometry) {
	if fa.ngrow == 0 {
		return
	}
	fa.exchange(fa.copyPlan(fa, 0, fa.ngrow, geom, comp, ncomp, true), comp, ncomp, COPY)
}

// copyPlan packs, on the source side, every piece of src that lands in dst
func (fa *FabArray[T]) copyPlan(dst *FabArray[T], srcNG, dstNG int, geom amr.Geometry,
	scomp, ncomp int, skipSelf bool) (out []utils.Envelope[fabMsg[T]]) {
	var (
		shifts = geom.PeriodicShifts()
	)
	for li, gi := range fa.index {
		srcRegion := fa.ba.Get(gi).Grow(srcNG)
		for si, s := range shifts {
			shifted := srcRegion.Shift(s)
			for gj := 0; gj < dst.ba.Size(); gj++ {
				if skipSelf && gj == gi && s.IsZero() {
					continue
				}
				is := dst.ba.Get(gj).Grow(dstNG).Intersect(shifted)
				if !is.Ok() {
					continue
				}
				out = append(out, utils.Envelope[fabMsg[T]]{
					To: dst.dm.Owner(gj),
					Msg: fabMsg[T]{
						Dst: gj, Src: gi, Shift: si, Box: is,
						Data: fa.fabs[li].Pack(is.Shift(amr.IntVect{}.Sub(s)), scomp, ncomp),
					},
				})
			}
		}
	}
	return
}

// exchange delivers packed pieces and applies them in (destination, source,
// shift) order, which keeps results independent of the rank count.
func (fa *FabArray[T]) exchange(out []utils.Envelope[fabMsg[T]], dcomp, ncomp int, op CopyOp) {
	in := utils.Exchange(fa.comm, out)
	sort.Slice(in, func(a, b int) bool {
		switch {
		case in[a].Dst != in[b].Dst:
			return in[a].Dst < in[b].Dst
		case in[a].Src != in[b].Src:
			return in[a].Src < in[b].Src
		default:
			return in[a].Shift < in[b].Shift
		}
	})
	for _, msg := range in {
		li, ok := fa.LocalIndex(msg.Dst)
		if !ok {
			panic(fmt.Sprintf("rank %d received data for box %d it does not own", fa.comm.Rank(), msg.Dst))
		}
		fa.fabs[li].Unpack(msg.Data, msg.Box, dcomp, ncomp, op)
	}
}

// Copy copies between arrays of identical layout over valid cells grown by ngrow
func Copy[T Number](dst, src *FabArray[T], scomp, dcomp, ncomp, ngrow int) {
	checkLayout(dst, src)
	for li := range dst.fabs {
		bx := dst.ValidBox(li).Grow(ngrow)
		dst.fabs[li].CopyShifted(src.fabs[li], bx, amr.IntVect{}, scomp, dcomp, ncomp, COPY)
	}
}

func checkLayout[T Number](dst, src *FabArray[T]) {
	if !dst.SameLayout(src.ba, src.dm) {
		panic("arrays do not share a BoxArray and DistributionMapping")
	}
}
