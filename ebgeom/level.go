package ebgeom

import (
	"fmt"

	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/fab"
	"github.com/notargets/fluxreg/utils"
)

// Level is the embedded-boundary description of one AMR level: a cell flag,
// a volume fraction per cell and an area fraction per face, all carried with
// the same number of ghost cells.
type Level struct {
	Geom     amr.Geometry
	Flags    *fab.IMultiFab
	VolFrac  *fab.MultiFab
	AreaFrac [amr.SpaceDim]*fab.MultiFab
	nGrow    int
}

func faceBoxArray(ba amr.BoxArray, dir int) amr.BoxArray {
	boxes := ba.Boxes()
	for i := range boxes {
		boxes[i] = boxes[i].SurroundingNodes(dir)
	}
	return amr.NewBoxArray(boxes...)
}

func allocLevel(geom amr.Geometry, ba amr.BoxArray, dm amr.DistributionMapping, ng int,
	comm *utils.Comm) (l *Level) {
	l = &Level{
		Geom:    geom,
		Flags:   fab.NewIMultiFab(ba, dm, 1, ng, comm),
		VolFrac: fab.NewMultiFab(ba, dm, 1, ng, comm),
		nGrow:   ng,
	}
	for d := 0; d < amr.SpaceDim; d++ {
		l.AreaFrac[d] = fab.NewMultiFab(faceBoxArray(ba, d), dm, 1, ng, comm)
	}
	return
}

// NewLevel is an all-regular level, the geometry of a problem with no embedded boundary.
func NewLevel(geom amr.Geometry, ba amr.BoxArray, dm amr.DistributionMapping, ng int,
	comm *utils.Comm) (l *Level) {
	l = allocLevel(geom, ba, dm, ng, comm)
	l.VolFrac.SetVal(1)
	for d := 0; d < amr.SpaceDim; d++ {
		l.AreaFrac[d].SetVal(1)
	}
	l.Finalize()
	return
}

func (l *Level) NGrow() int { return l.nGrow }

func (l *Level) BoxArray() amr.BoxArray { return l.VolFrac.BoxArray() }

func (l *Level) DistributionMap() amr.DistributionMapping { return l.VolFrac.DistributionMap() }

func (l *Level) FlagFab(li int) *fab.IArrayBox { return l.Flags.Fab(li) }

func (l *Level) VolFracFab(li int) *fab.FArrayBox { return l.VolFrac.Fab(li) }

func (l *Level) AreaFracFabs(li int) (af [amr.SpaceDim]*fab.FArrayBox) {
	for d := 0; d < amr.SpaceDim; d++ {
		af[d] = l.AreaFrac[d].Fab(li)
	}
	return
}

func (l *Level) Flag(li, i, j, k int) CellFlag { return CellFlag(l.Flags.Fab(li).Get(i, j, k, 0)) }

// FabType classifies the cells of bx, clipped to the fab and the periodically
// grown domain.
func (l *Level) FabType(li int, bx amr.Box) FabType {
	var (
		nReg, nCov int
		flags      = l.Flags.Fab(li)
	)
	bx = bx.Intersect(flags.Box()).Intersect(l.Geom.GrowPeriodic(l.nGrow))
	bx.ForEach(func(i, j, k int) {
		f := CellFlag(flags.Get(i, j, k, 0))
		switch {
		case f.IsRegular():
			nReg++
		case f.IsCovered():
			nCov++
		}
	})
	switch bx.NumPts() {
	case nReg:
		return FabRegular
	case nCov:
		return FabCovered
	}
	return FabSingleValued
}

// Finalize completes a level whose volume and area fractions are set on valid
// cells and faces: it fills ghost cells, covers everything outside the domain
// and derives every cell flag and its connectivity. Collective.
func (l *Level) Finalize() {
	l.VolFrac.FillBoundary(l.Geom)
	for d := 0; d < amr.SpaceDim; d++ {
		l.AreaFrac[d].FillBoundary(l.Geom)
	}
	for li := 0; li < l.VolFrac.LocalSize(); li++ {
		vf := l.VolFrac.Fab(li)
		vf.Box().ForEach(func(i, j, k int) {
			if !l.Geom.InsideNonPeriodic(amr.IntVect{i, j, k}) {
				vf.Set(i, j, k, 0, 0)
			}
		})
		l.closeCoveredFaces(li)
		l.setFlags(li)
	}
}

// closeCoveredFaces zeroes the area fraction of every face that borders a
// covered cell inside the domain. Sampling may leave fluid on such a face,
// and a flux through it would land in a cell that holds no volume.
func (l *Level) closeCoveredFaces(li int) {
	var (
		vf = l.VolFrac.Fab(li)
		af = l.AreaFracFabs(li)
	)
	body := func(iv amr.IntVect) bool {
		return vf.Box().Contains(iv) && l.Geom.InsideNonPeriodic(iv) && vf.At(iv, 0) == 0
	}
	for d := 0; d < amr.SpaceDim; d++ {
		af[d].Box().ForEach(func(i, j, k int) {
			var (
				hi = amr.IntVect{i, j, k}
				lo = hi
			)
			lo[d]--
			if body(lo) || body(hi) {
				af[d].Set(i, j, k, 0, 0)
			}
		})
	}
}

func (l *Level) setFlags(li int) {
	var (
		vf    = l.VolFrac.Fab(li)
		af    = l.AreaFracFabs(li)
		flags = l.Flags.Fab(li)
		fbx   = flags.Box()
	)
	covered := func(iv amr.IntVect) bool {
		return !fbx.Contains(iv) || vf.At(iv, 0) == 0
	}
	// open reports whether the face between iv and iv+sign*e_dir passes fluid
	open := func(iv amr.IntVect, dir, sign int) bool {
		face := iv
		if sign > 0 {
			face[dir]++
		}
		if !af[dir].Box().Contains(face) {
			return false
		}
		return af[dir].At(face, 0) > 0
	}
	fbx.ForEach(func(i, j, k int) {
		iv := amr.IntVect{i, j, k}
		if covered(iv) {
			flags.Set(i, j, k, 0, int(CoveredFlag()))
			return
		}
		regular := vf.At(iv, 0) == 1
		for d := 0; d < amr.SpaceDim && regular; d++ {
			for _, sign := range []int{-1, 1} {
				face := iv
				if sign > 0 {
					face[d]++
				}
				if !af[d].Box().Contains(face) || af[d].At(face, 0) != 1 {
					regular = false
				}
			}
		}
		f := SingleValuedFlag() | allConnected
		if regular {
			f = RegularFlag()
		}
		for kk := -1; kk <= 1; kk++ {
			for jj := -1; jj <= 1; jj++ {
				for ii := -1; ii <= 1; ii++ {
					off := amr.IntVect{ii, jj, kk}
					if !off.IsZero() && !connected(iv, off, covered, open) {
						f = f.SetDisconnected(ii, jj, kk)
					}
				}
			}
		}
		flags.Set(i, j, k, 0, int(f))
	})
}

// connected looks for a path from iv to iv+off that moves one direction at a
// time through open faces and uncovered cells.
func connected(iv, off amr.IntVect, covered func(amr.IntVect) bool,
	open func(amr.IntVect, int, int) bool) bool {
	if covered(iv.Add(off)) {
		return false
	}
	var dirs []int
	for d := 0; d < amr.SpaceDim; d++ {
		if off[d] != 0 {
			dirs = append(dirs, d)
		}
	}
	for _, order := range permutations(dirs) {
		var (
			cur = iv
			ok  = true
		)
		for _, d := range order {
			if !open(cur, d, off[d]) {
				ok = false
				break
			}
			cur[d] += off[d]
			if covered(cur) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func permutations(dirs []int) (perms [][]int) {
	if len(dirs) <= 1 {
		return [][]int{dirs}
	}
	for i := range dirs {
		rest := make([]int, 0, len(dirs)-1)
		rest = append(rest, dirs[:i]...)
		rest = append(rest, dirs[i+1:]...)
		for _, p := range permutations(rest) {
			perms = append(perms, append([]int{dirs[i]}, p...))
		}
	}
	return
}

func (l *Level) String() string {
	return fmt.Sprintf("EB level on %v with %d ghost cells", l.Geom.Domain, l.nGrow)
}
