package fluxreg

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/fab"
	"github.com/notargets/fluxreg/utils"
)

// CellType classifies coarse cells relative to the coarsened fine region
type CellType int

const (
	Interior CellType = iota // no fine cell among its neighbours
	Boundary                 // uncovered, touches the fine region
	Covered                  // underneath the fine region
)

// Fluxes holds one face centred flux array per direction. A direction with a
// single cell domain extent may be left nil.
type Fluxes [amr.SpaceDim]*fab.FArrayBox

// Comps selects Num components starting at Src in the source and Dest in the destination
type Comps struct {
	Src, Dest, Num int
}

// Layout is everything a register needs to know about the two levels
type Layout struct {
	FineBA, CrseBA     amr.BoxArray
	FineDM, CrseDM     amr.DistributionMapping
	FineGeom, CrseGeom amr.Geometry
	Ratio              amr.IntVect
	FineLevel, NComp   int
}

// Option configures a FluxRegister at construction
type Option func(fr *FluxRegister)

// WithLogger routes the register's diagnostics to log
func WithLogger(log logrus.FieldLogger) Option {
	return func(fr *FluxRegister) { fr.log = log }
}

// WithExecutor runs the per-cell kernels with exec instead of serially
func WithExecutor(exec Executor) Option {
	return func(fr *FluxRegister) { fr.exec = exec }
}

// FluxRegister accumulates the mismatch between coarse fluxes and time and
// area averaged fine fluxes on the coarse cells bordering a fine level, then
// applies it to the coarse state.
//
// Per coarse step: Reset, CrseAdd for each coarse box, FineAdd for each fine
// box and sub-step, Reflux. Define, Reflux and the constructors are
// collective over the communicator; CrseAdd and FineAdd are local.
type FluxRegister struct {
	comm *utils.Comm
	log  logrus.FieldLogger
	exec Executor
	lay  Layout

	crseData     *fab.MultiFab
	crseFlag     *fab.IMultiFab
	crseHasWork  []bool
	crseNearWork []bool

	cfpBA   amr.BoxArray
	cfpDM   amr.DistributionMapping
	cfpFine []int // fine box index of each ring fragment
	cfPatch *fab.MultiFab
	cfpMask *fab.MultiFab
	cfpFabs [][]int // fine local index -> local fragment indices

	fineIndex []int
	cvol      *fab.MultiFab
}

// NewFluxRegister defines a register for lay. Collective.
func NewFluxRegister(lay Layout, comm *utils.Comm, opts ...Option) (fr *FluxRegister) {
	fr = &FluxRegister{
		comm: comm,
		log:  logrus.StandardLogger(),
		exec: SerialExecutor{},
	}
	for _, opt := range opts {
		opt(fr)
	}
	fr.Define(lay)
	return
}

// Define classifies the coarse cells and builds the ring fragments for a new
// pair of levels. All accumulated data is discarded.
func (fr *FluxRegister) Define(lay Layout) {
	if lay.NComp < 1 {
		panic(fmt.Sprintf("flux register needs at least one component, got %d", lay.NComp))
	}
	if !lay.Ratio.AllPositive() {
		panic(fmt.Sprintf("invalid refinement ratio %v", lay.Ratio))
	}
	if !lay.FineBA.CoarsenableBy(lay.Ratio) {
		panic(fmt.Sprintf("fine boxes are not coarsenable by %v", lay.Ratio))
	}
	if lay.FineGeom.Domain.Coarsen(lay.Ratio) != lay.CrseGeom.Domain {
		panic(fmt.Sprintf("fine domain %v does not coarsen to %v", lay.FineGeom.Domain, lay.CrseGeom.Domain))
	}
	fr.lay = lay
	fr.cvol = nil
	var (
		cfba   = lay.FineBA.Coarsen(lay.Ratio)
		shifts = lay.CrseGeom.PeriodicShifts()
	)
	fr.crseData = fab.NewMultiFab(lay.CrseBA, lay.CrseDM, lay.NComp, 0, fr.comm)
	fr.crseFlag = fab.NewIMultiFab(lay.CrseBA, lay.CrseDM, 1, 1, fr.comm)
	fr.crseHasWork = make([]bool, fr.crseFlag.LocalSize())
	fr.crseNearWork = make([]bool, fr.crseFlag.LocalSize())
	for li := 0; li < fr.crseFlag.LocalSize(); li++ {
		fr.classify(li, cfba, shifts)
	}

	cdomain := lay.CrseGeom.GrowPeriodic(1)
	var (
		boxes  []amr.Box
		owners []int
	)
	fr.cfpFine = nil
	for i := 0; i < cfba.Size(); i++ {
		bx := cfba.Get(i).Grow(1).Intersect(cdomain)
		for _, b := range cfba.ComplementIn(bx) {
			boxes = append(boxes, b)
			owners = append(owners, lay.FineDM.Owner(i))
			fr.cfpFine = append(fr.cfpFine, i)
		}
	}
	if cfba.Size() > 0 && len(boxes) == 0 {
		panic(fmt.Sprintf("fine level %d has %d boxes but no coarse/fine boundary", lay.FineLevel, cfba.Size()))
	}
	fr.cfpBA = amr.NewBoxArray(boxes...)
	fr.cfpDM = amr.NewDistributionMapping(owners...)
	fr.cfPatch = fab.NewMultiFab(fr.cfpBA, fr.cfpDM, lay.NComp, 0, fr.comm)

	fr.fineIndex = lay.FineDM.LocalIndices(fr.comm.Rank())
	fineLocal := make(map[int]int, len(fr.fineIndex))
	for li, gi := range fr.fineIndex {
		fineLocal[gi] = li
	}
	fr.cfpFabs = make([][]int, len(fr.fineIndex))
	for li := 0; li < fr.cfPatch.LocalSize(); li++ {
		fli := fineLocal[fr.cfpFine[fr.cfPatch.GlobalIndex(li)]]
		fr.cfpFabs[fli] = append(fr.cfpFabs[fli], li)
	}

	fr.cfpMask = nil
	if lay.CrseGeom.IsAnyPeriodic() {
		fr.cfpMask = fab.NewMultiFab(fr.cfpBA, fr.cfpDM, 1, 0, fr.comm)
		fr.cfpMask.SetVal(1)
		for li := 0; li < fr.cfpMask.LocalSize(); li++ {
			bx := fr.cfpMask.ValidBox(li)
			if lay.CrseGeom.Domain.ContainsBox(bx) {
				continue
			}
			for _, s := range shifts {
				if s.IsZero() {
					continue
				}
				for _, isect := range cfba.Intersections(bx.Shift(s)) {
					fr.cfpMask.Fab(li).SetValBox(0, isect.Box.Shift(amr.IntVect{}.Sub(s)), 0, 1)
				}
			}
		}
	}

	fr.log.WithFields(logrus.Fields{
		"fine_level": lay.FineLevel,
		"rank":       fr.comm.Rank(),
		"extent":     cfba.MinimalBox(),
		"patches":    fr.cfpBA.Size(),
		"local":      fr.cfPatch.LocalSize(),
		"periodic":   fr.cfpMask != nil,
	}).Debug("flux register defined")
}

// classify marks boundary and covered cells of one coarse fab, halo included
func (fr *FluxRegister) classify(li int, cfba amr.BoxArray, shifts []amr.IntVect) {
	var (
		flag = fr.crseFlag.Fab(li)
		fbx  = flag.Box()
	)
	flag.SetVal(int(Interior))
	for _, s := range shifts {
		for i := 0; i < cfba.Size(); i++ {
			flag.SetValBox(int(Boundary), cfba.Get(i).Grow(1).Shift(s).Intersect(fbx), 0, 1)
		}
	}
	for _, s := range shifts {
		for i := 0; i < cfba.Size(); i++ {
			flag.SetValBox(int(Covered), cfba.Get(i).Shift(s).Intersect(fbx), 0, 1)
		}
	}
	valid := fr.crseFlag.ValidBox(li)
	fbx.ForEach(func(i, j, k int) {
		if CellType(flag.Get(i, j, k, 0)) != Boundary {
			return
		}
		fr.crseNearWork[li] = true
		if valid.ContainsCell(i, j, k) {
			fr.crseHasWork[li] = true
		}
	})
}

// Reset zeroes all accumulated data
func (fr *FluxRegister) Reset() {
	fr.crseData.SetVal(0)
	fr.cfPatch.SetVal(0)
}

// SetCrseVolume switches to area weighted fluxes: accumulated values are
// extensive and Reflux divides them by the coarse cell volume. The volume
// array must share the coarse layout and outlive the register's use of it.
func (fr *FluxRegister) SetCrseVolume(cvol *fab.MultiFab) {
	if cvol != nil && !cvol.SameLayout(fr.lay.CrseBA, fr.lay.CrseDM) {
		panic("coarse volume does not match the coarse layout")
	}
	fr.cvol = cvol
}

// CrseHasWork reports whether coarse local box li holds any boundary cell
func (fr *FluxRegister) CrseHasWork(li int) bool { return fr.crseHasWork[li] }

// FineHasWork reports whether fine local box li owns any ring fragment
func (fr *FluxRegister) FineHasWork(li int) bool { return len(fr.cfpFabs[li]) != 0 }

// CrseData is the coarse accumulation buffer, exposed for diagnostics
func (fr *FluxRegister) CrseData() *fab.MultiFab { return fr.crseData }

// FineData is the ring fragment buffer, exposed for diagnostics
func (fr *FluxRegister) FineData() *fab.MultiFab { return fr.cfPatch }

func (fr *FluxRegister) CrseFlag() *fab.IMultiFab { return fr.crseFlag }

// PatchMask is the periodic duplication mask, nil without periodicity
func (fr *FluxRegister) PatchMask() *fab.MultiFab { return fr.cfpMask }

func (fr *FluxRegister) NComp() int { return fr.lay.NComp }

func (fr *FluxRegister) Ratio() amr.IntVect { return fr.lay.Ratio }

func (fr *FluxRegister) Layout() Layout { return fr.lay }

func (fr *FluxRegister) Comm() *utils.Comm { return fr.comm }
