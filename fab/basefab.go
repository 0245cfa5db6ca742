package fab

import (
	"fmt"

	"github.com/notargets/fluxreg/amr"
)

type Number interface {
	~int | ~float64
}

// BaseFab holds ncomp values for every cell of a box. Storage is i fastest
// and component slowest, so each component is one contiguous slice.
type BaseFab[T Number] struct {
	box                       amr.Box
	ncomp                     int
	data                      []T
	jstride, kstride, nstride int
}

type FArrayBox = BaseFab[float64]

type IArrayBox = BaseFab[int]

func NewBaseFab[T Number](bx amr.Box, ncomp int) *BaseFab[T] {
	if !bx.Ok() || ncomp < 1 {
		panic(fmt.Sprintf("cannot allocate fab on %v with %d components", bx, ncomp))
	}
	f := &BaseFab[T]{
		box:     bx,
		ncomp:   ncomp,
		jstride: bx.Length(0),
		kstride: bx.Length(0) * bx.Length(1),
		nstride: bx.NumPts(),
	}
	f.data = make([]T, f.nstride*ncomp)
	return f
}

func NewFArrayBox(bx amr.Box, ncomp int) *FArrayBox { return NewBaseFab[float64](bx, ncomp) }

func NewIArrayBox(bx amr.Box, ncomp int) *IArrayBox { return NewBaseFab[int](bx, ncomp) }

func (f *BaseFab[T]) Box() amr.Box { return f.box }

func (f *BaseFab[T]) NComp() int { return f.ncomp }

func (f *BaseFab[T]) Data() []T { return f.data }

// Comp is the storage of component n
func (f *BaseFab[T]) Comp(n int) []T {
	return f.data[n*f.nstride : (n+1)*f.nstride]
}

func (f *BaseFab[T]) Index(i, j, k, n int) int {
	var (
		lo, hi = f.box.Lo, f.box.Hi
	)
	if i < lo[0] || i > hi[0] || j < lo[1] || j > hi[1] || k < lo[2] || k > hi[2] ||
		n < 0 || n >= f.ncomp {
		panic(fmt.Sprintf("index (%d,%d,%d) component %d outside fab %v with %d components",
			i, j, k, n, f.box, f.ncomp))
	}
	return (i - lo[0]) + (j-lo[1])*f.jstride + (k-lo[2])*f.kstride + n*f.nstride
}

func (f *BaseFab[T]) Get(i, j, k, n int) T { return f.data[f.Index(i, j, k, n)] }

func (f *BaseFab[T]) At(iv amr.IntVect, n int) T { return f.Get(iv[0], iv[1], iv[2], n) }

func (f *BaseFab[T]) Set(i, j, k, n int, v T) { f.data[f.Index(i, j, k, n)] = v }

func (f *BaseFab[T]) Plus(i, j, k, n int, v T) { f.data[f.Index(i, j, k, n)] += v }

func (f *BaseFab[T]) SetVal(v T) {
	for i := range f.data {
		f.data[i] = v
	}
}

// SetValBox sets components [comp,comp+ncomp) over the part of bx inside the fab
func (f *BaseFab[T]) SetValBox(v T, bx amr.Box, comp, ncomp int) {
	bx = bx.Intersect(f.box)
	if !bx.Ok() {
		return
	}
	for n := comp; n < comp+ncomp; n++ {
		bx.ForEach(func(i, j, k int) {
			f.Set(i, j, k, n, v)
		})
	}
}

// Pack gathers components [comp,comp+ncomp) over bx into a flat buffer
func (f *BaseFab[T]) Pack(bx amr.Box, comp, ncomp int) (buf []T) {
	buf = make([]T, 0, bx.NumPts()*ncomp)
	for n := comp; n < comp+ncomp; n++ {
		bx.ForEach(func(i, j, k int) {
			buf = append(buf, f.Get(i, j, k, n))
		})
	}
	return
}

// Unpack is the inverse of Pack, writing or accumulating into the fab
func (f *BaseFab[T]) Unpack(buf []T, bx amr.Box, comp, ncomp int, op CopyOp) {
	var (
		p int
	)
	if len(buf) != bx.NumPts()*ncomp {
		panic(fmt.Sprintf("buffer length %d does not match %v x %d", len(buf), bx, ncomp))
	}
	for n := comp; n < comp+ncomp; n++ {
		bx.ForEach(func(i, j, k int) {
			switch op {
			case ADD:
				f.Plus(i, j, k, n, buf[p])
			default:
				f.Set(i, j, k, n, buf[p])
			}
			p++
		})
	}
}

// CopyShifted sets f(iv) op= src(iv - shift) for iv in bx
func (f *BaseFab[T]) CopyShifted(src *BaseFab[T], bx amr.Box, shift amr.IntVect,
	scomp, dcomp, ncomp int, op CopyOp) {
	f.Unpack(src.Pack(bx.Shift(amr.IntVect{}.Sub(shift)), scomp, ncomp), bx, dcomp, ncomp, op)
}

func (f *BaseFab[T]) SumBox(bx amr.Box, comp int) (sum T) {
	bx.Intersect(f.box).ForEach(func(i, j, k int) {
		sum += f.Get(i, j, k, comp)
	})
	return
}
