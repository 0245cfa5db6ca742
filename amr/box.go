package amr

import "fmt"

// Box is an inclusive range of cell indices, Lo through Hi in every direction.
// A box with Hi < Lo in any direction is empty.
type Box struct {
	Lo, Hi IntVect
}

func NewBox(lo, hi IntVect) Box { return Box{Lo: lo, Hi: hi} }

func (b Box) Ok() bool { return b.Hi.AllGE(b.Lo) }

func (b Box) IsEmpty() bool { return !b.Ok() }

func (b Box) Length(dir int) int { return b.Hi[dir] - b.Lo[dir] + 1 }

func (b Box) Size() (sz IntVect) {
	for d := 0; d < SpaceDim; d++ {
		sz[d] = b.Length(d)
	}
	return
}

func (b Box) NumPts() int {
	if !b.Ok() {
		return 0
	}
	return b.Size().Product()
}

func (b Box) Contains(iv IntVect) bool { return iv.AllGE(b.Lo) && iv.AllLE(b.Hi) }

func (b Box) ContainsCell(i, j, k int) bool { return b.Contains(IntVect{i, j, k}) }

func (b Box) ContainsBox(o Box) bool {
	if !o.Ok() {
		return true
	}
	return b.Contains(o.Lo) && b.Contains(o.Hi)
}

func (b Box) Intersect(o Box) Box {
	return Box{Lo: b.Lo.Max(o.Lo), Hi: b.Hi.Min(o.Hi)}
}

func (b Box) Intersects(o Box) bool { return b.Intersect(o).Ok() }

func (b Box) Grow(n int) Box { return b.GrowVect(Unit(n)) }

func (b Box) GrowVect(n IntVect) Box {
	return Box{Lo: b.Lo.Sub(n), Hi: b.Hi.Add(n)}
}

func (b Box) GrowDir(dir, n int) Box {
	b.Lo[dir] -= n
	b.Hi[dir] += n
	return b
}

func (b Box) Shift(s IntVect) Box {
	return Box{Lo: b.Lo.Add(s), Hi: b.Hi.Add(s)}
}

func (b Box) Coarsen(ratio IntVect) Box {
	return Box{Lo: b.Lo.Coarsen(ratio), Hi: b.Hi.Coarsen(ratio)}
}

func (b Box) Refine(ratio IntVect) Box {
	return Box{Lo: b.Lo.Mul(ratio), Hi: b.Hi.Add(Unit(1)).Mul(ratio).Sub(Unit(1))}
}

// CoarsenableBy reports whether coarsening then refining reproduces the box
func (b Box) CoarsenableBy(ratio IntVect) bool {
	return b.Coarsen(ratio).Refine(ratio) == b
}

// SurroundingNodes is the box of faces normal to dir bounding the cells of b.
func (b Box) SurroundingNodes(dir int) Box {
	b.Hi[dir]++
	return b
}

// AdjCellLo is the one cell thick slab just below b in dir
func (b Box) AdjCellLo(dir int) Box {
	b.Hi[dir] = b.Lo[dir] - 1
	b.Lo[dir] = b.Hi[dir]
	return b
}

// AdjCellHi is the one cell thick slab just above b in dir
func (b Box) AdjCellHi(dir int) Box {
	b.Lo[dir] = b.Hi[dir] + 1
	b.Hi[dir] = b.Lo[dir]
	return b
}

// ForEach visits every cell with i fastest.
func (b Box) ForEach(fn func(i, j, k int)) {
	for k := b.Lo[2]; k <= b.Hi[2]; k++ {
		for j := b.Lo[1]; j <= b.Hi[1]; j++ {
			for i := b.Lo[0]; i <= b.Hi[0]; i++ {
				fn(i, j, k)
			}
		}
	}
}

// CellAt maps a flat offset in [0,NumPts) to a cell, i fastest
func (b Box) CellAt(n int) (i, j, k int) {
	var (
		nx = b.Length(0)
		ny = b.Length(1)
	)
	i = b.Lo[0] + n%nx
	n /= nx
	j = b.Lo[1] + n%ny
	k = b.Lo[2] + n/ny
	return
}

// Tiles splits b into pieces of at most tile cells per direction.
func (b Box) Tiles(tile IntVect) (tiles []Box) {
	if !b.Ok() {
		return
	}
	for d := 0; d < SpaceDim; d++ {
		if tile[d] <= 0 {
			tile[d] = b.Length(d)
		}
	}
	for klo := b.Lo[2]; klo <= b.Hi[2]; klo += tile[2] {
		for jlo := b.Lo[1]; jlo <= b.Hi[1]; jlo += tile[1] {
			for ilo := b.Lo[0]; ilo <= b.Hi[0]; ilo += tile[0] {
				lo := IntVect{ilo, jlo, klo}
				hi := lo.Add(tile).Sub(Unit(1)).Min(b.Hi)
				tiles = append(tiles, Box{Lo: lo, Hi: hi})
			}
		}
	}
	return
}

// Diff returns b minus o as a list of disjoint boxes.
func (b Box) Diff(o Box) (bl []Box) {
	isect := b.Intersect(o)
	if !isect.Ok() {
		return []Box{b}
	}
	rem := b
	for d := 0; d < SpaceDim; d++ {
		if rem.Lo[d] < isect.Lo[d] {
			lo := rem
			lo.Hi[d] = isect.Lo[d] - 1
			bl = append(bl, lo)
			rem.Lo[d] = isect.Lo[d]
		}
		if rem.Hi[d] > isect.Hi[d] {
			hi := rem
			hi.Lo[d] = isect.Hi[d] + 1
			bl = append(bl, hi)
			rem.Hi[d] = isect.Hi[d]
		}
	}
	return
}

func (b Box) String() string {
	return fmt.Sprintf("[%v,%v]", b.Lo, b.Hi)
}
