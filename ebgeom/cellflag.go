package ebgeom

// CellFlag packs a cell's embedded-boundary type in the low two bits and its
// connectivity to each of the 27 cells of its 3x3x3 neighbourhood above them.
type CellFlag uint32

const (
	typeRegular uint32 = iota
	typeSingleValued
	typeCovered
	typeMask uint32 = 3
	connShift       = 2
)

func connBit(ii, jj, kk int) CellFlag {
	return CellFlag(1) << (connShift + (ii + 1) + 3*(jj+1) + 9*(kk+1))
}

const allConnected = CellFlag(((1 << 27) - 1) << connShift)

func RegularFlag() CellFlag { return CellFlag(typeRegular) | allConnected }

func CoveredFlag() CellFlag { return CellFlag(typeCovered) }

func SingleValuedFlag() CellFlag { return CellFlag(typeSingleValued) | connBit(0, 0, 0) }

func (f CellFlag) IsRegular() bool { return uint32(f)&typeMask == typeRegular }

func (f CellFlag) IsSingleValued() bool { return uint32(f)&typeMask == typeSingleValued }

func (f CellFlag) IsCovered() bool { return uint32(f)&typeMask == typeCovered }

func (f CellFlag) IsConnected(ii, jj, kk int) bool { return f&connBit(ii, jj, kk) != 0 }

func (f CellFlag) SetConnected(ii, jj, kk int) CellFlag { return f | connBit(ii, jj, kk) }

func (f CellFlag) SetDisconnected(ii, jj, kk int) CellFlag { return f &^ connBit(ii, jj, kk) }

// NumConnected counts connected neighbours, not including the cell itself
func (f CellFlag) NumConnected() (n int) {
	for kk := -1; kk <= 1; kk++ {
		for jj := -1; jj <= 1; jj++ {
			for ii := -1; ii <= 1; ii++ {
				if (ii != 0 || jj != 0 || kk != 0) && f.IsConnected(ii, jj, kk) {
					n++
				}
			}
		}
	}
	return
}

func (f CellFlag) String() string {
	switch {
	case f.IsRegular():
		return "regular"
	case f.IsCovered():
		return "covered"
	default:
		return "single-valued"
	}
}

type FabType uint8

const (
	FabRegular FabType = iota
	FabSingleValued
	FabCovered
)

func (ft FabType) String() string {
	return [...]string{"regular", "singlevalued", "covered"}[ft]
}
