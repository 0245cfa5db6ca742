package amr

import "fmt"

// SpaceDim is fixed at three; two dimensional problems use a unit extent in z.
const SpaceDim = 3

type IntVect [SpaceDim]int

func NewIntVect(i, j, k int) IntVect { return IntVect{i, j, k} }

func Unit(n int) IntVect { return IntVect{n, n, n} }

// BaseVect is the unit vector along dir
func BaseVect(dir int) (iv IntVect) {
	iv[dir] = 1
	return
}

func (iv IntVect) Add(b IntVect) (r IntVect) {
	for d := 0; d < SpaceDim; d++ {
		r[d] = iv[d] + b[d]
	}
	return
}

func (iv IntVect) Sub(b IntVect) (r IntVect) {
	for d := 0; d < SpaceDim; d++ {
		r[d] = iv[d] - b[d]
	}
	return
}

func (iv IntVect) Mul(b IntVect) (r IntVect) {
	for d := 0; d < SpaceDim; d++ {
		r[d] = iv[d] * b[d]
	}
	return
}

func (iv IntVect) Scale(s int) (r IntVect) {
	for d := 0; d < SpaceDim; d++ {
		r[d] = iv[d] * s
	}
	return
}

// Coarsen divides by ratio rounding toward negative infinity
func (iv IntVect) Coarsen(ratio IntVect) (r IntVect) {
	for d := 0; d < SpaceDim; d++ {
		r[d] = coarsenIndex(iv[d], ratio[d])
	}
	return
}

func (iv IntVect) Product() (p int) {
	p = 1
	for d := 0; d < SpaceDim; d++ {
		p *= iv[d]
	}
	return
}

func (iv IntVect) AllGE(b IntVect) bool {
	for d := 0; d < SpaceDim; d++ {
		if iv[d] < b[d] {
			return false
		}
	}
	return true
}

func (iv IntVect) AllLE(b IntVect) bool {
	for d := 0; d < SpaceDim; d++ {
		if iv[d] > b[d] {
			return false
		}
	}
	return true
}

func (iv IntVect) AllPositive() bool { return iv.AllGE(Unit(1)) }

func (iv IntVect) IsZero() bool { return iv == IntVect{} }

func (iv IntVect) Min(b IntVect) (r IntVect) {
	for d := 0; d < SpaceDim; d++ {
		r[d] = min(iv[d], b[d])
	}
	return
}

func (iv IntVect) Max(b IntVect) (r IntVect) {
	for d := 0; d < SpaceDim; d++ {
		r[d] = max(iv[d], b[d])
	}
	return
}

func (iv IntVect) String() string {
	return fmt.Sprintf("(%d,%d,%d)", iv[0], iv[1], iv[2])
}

func coarsenIndex(i, r int) int {
	if r == 1 {
		return i
	}
	if i < 0 {
		return -((-i - 1) / r) - 1
	}
	return i / r
}
