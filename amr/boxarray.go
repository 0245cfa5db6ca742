package amr

import "fmt"

// BoxArray is an ordered, immutable collection of disjoint boxes on one level.
type BoxArray struct {
	boxes []Box
}

type Intersection struct {
	Index int
	Box   Box
}

func NewBoxArray(boxes ...Box) BoxArray {
	ba := BoxArray{boxes: make([]Box, len(boxes))}
	copy(ba.boxes, boxes)
	return ba
}

// NewBoxArrayFromDomain chops the domain into boxes no larger than maxSize
func NewBoxArrayFromDomain(domain Box, maxSize IntVect) BoxArray {
	return BoxArray{boxes: domain.Tiles(maxSize)}
}

func (ba BoxArray) Size() int { return len(ba.boxes) }

func (ba BoxArray) Get(i int) Box { return ba.boxes[i] }

func (ba BoxArray) Boxes() []Box {
	bl := make([]Box, len(ba.boxes))
	copy(bl, ba.boxes)
	return bl
}

func (ba BoxArray) Coarsen(ratio IntVect) BoxArray {
	r := BoxArray{boxes: make([]Box, len(ba.boxes))}
	for i, b := range ba.boxes {
		r.boxes[i] = b.Coarsen(ratio)
	}
	return r
}

func (ba BoxArray) Refine(ratio IntVect) BoxArray {
	r := BoxArray{boxes: make([]Box, len(ba.boxes))}
	for i, b := range ba.boxes {
		r.boxes[i] = b.Refine(ratio)
	}
	return r
}

func (ba BoxArray) CoarsenableBy(ratio IntVect) bool {
	for _, b := range ba.boxes {
		if !b.CoarsenableBy(ratio) {
			return false
		}
	}
	return true
}

func (ba BoxArray) Equal(o BoxArray) bool {
	if len(ba.boxes) != len(o.boxes) {
		return false
	}
	for i := range ba.boxes {
		if ba.boxes[i] != o.boxes[i] {
			return false
		}
	}
	return true
}

// Intersections lists every box overlapping bx, in index order
func (ba BoxArray) Intersections(bx Box) (isects []Intersection) {
	if !bx.Ok() {
		return
	}
	for i, b := range ba.boxes {
		if is := b.Intersect(bx); is.Ok() {
			isects = append(isects, Intersection{Index: i, Box: is})
		}
	}
	return
}

func (ba BoxArray) Intersects(bx Box) bool {
	for _, b := range ba.boxes {
		if b.Intersects(bx) {
			return true
		}
	}
	return false
}

func (ba BoxArray) Contains(iv IntVect) bool {
	for _, b := range ba.boxes {
		if b.Contains(iv) {
			return true
		}
	}
	return false
}

func (ba BoxArray) MinimalBox() (mb Box) {
	if len(ba.boxes) == 0 {
		return Box{Lo: Unit(0), Hi: Unit(-1)}
	}
	mb = ba.boxes[0]
	for _, b := range ba.boxes[1:] {
		mb.Lo = mb.Lo.Min(b.Lo)
		mb.Hi = mb.Hi.Max(b.Hi)
	}
	return
}

func (ba BoxArray) NumPts() (n int) {
	for _, b := range ba.boxes {
		n += b.NumPts()
	}
	return
}

// ComplementIn returns the part of region not covered by the array.
func (ba BoxArray) ComplementIn(region Box) (bl []Box) {
	if !region.Ok() {
		return
	}
	bl = []Box{region}
	for _, isect := range ba.Intersections(region) {
		var next []Box
		for _, b := range bl {
			next = append(next, b.Diff(isect.Box)...)
		}
		bl = next
		if len(bl) == 0 {
			return
		}
	}
	return Simplify(bl)
}

// Simplify merges boxes that share a full face, repeating until no merge applies.
func Simplify(bl []Box) []Box {
	var merged bool
	for {
		merged = false
	search:
		for a := 0; a < len(bl); a++ {
			for b := a + 1; b < len(bl); b++ {
				if m, ok := join(bl[a], bl[b]); ok {
					bl[a] = m
					bl = append(bl[:b], bl[b+1:]...)
					merged = true
					break search
				}
			}
		}
		if !merged {
			return bl
		}
	}
}

func join(a, b Box) (m Box, ok bool) {
	var dir = -1
	for d := 0; d < SpaceDim; d++ {
		if a.Lo[d] == b.Lo[d] && a.Hi[d] == b.Hi[d] {
			continue
		}
		if dir != -1 {
			return
		}
		dir = d
	}
	if dir == -1 {
		return a, true
	}
	switch {
	case a.Hi[dir]+1 == b.Lo[dir]:
		m = a
		m.Hi[dir] = b.Hi[dir]
	case b.Hi[dir]+1 == a.Lo[dir]:
		m = b
		m.Hi[dir] = a.Hi[dir]
	default:
		return
	}
	return m, true
}

func (ba BoxArray) String() string {
	return fmt.Sprintf("BoxArray%v", ba.boxes)
}
