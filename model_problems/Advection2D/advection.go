package Advection2D

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/notargets/fluxreg/InputParameters"
	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/ebgeom"
	"github.com/notargets/fluxreg/fab"
	"github.com/notargets/fluxreg/fluxreg"
	"github.com/notargets/fluxreg/utils"
)

/*
	Two level, subcycled, first order upwind advection of a passive scalar
	with a constant velocity. The coarse level covers the whole domain, the
	fine level covers FineBoxes refined by RefRatio. An optional circular
	obstacle is cut out of both levels as an embedded boundary.

	Each coarse step:
		- advance the coarse level by dt, adding the coarse face fluxes to the register
		- advance the fine level RefRatio times by dt/RefRatio, ghost cells from
		  coarse data interpolated in time, adding the fine fluxes to the register
		- reflux the coarse level
		- average the fine level down onto the covered coarse cells
*/
type Advection struct {
	Params     *InputParameters.AMRParameters
	Crse, Fine *Level
	Ratio      amr.IntVect
	Dt, Time   float64
	Steps      int
	NumSteps   int // Steps to reach FinalTime, capped by MaxSteps
	velocity   [amr.SpaceDim]float64
	comm       *utils.Comm
	log        logrus.FieldLogger
	exec       fluxreg.Executor
	reg        register
	fr         *fluxreg.FluxRegister   // Nil when an obstacle is present
	ebfr       *fluxreg.EBFluxRegister // Non nil when an obstacle is present
}

// register is what the step loop needs from either kind of flux register
type register interface {
	Reset()
	CrseFlag() *fab.IMultiFab
}

// Level is the state and geometry of one AMR level on this rank
type Level struct {
	Geom  amr.Geometry
	BA    amr.BoxArray
	DM    amr.DistributionMapping
	State *fab.MultiFab
	EB    *ebgeom.Level
}

// Summary is what a run reports back
type Summary struct {
	Steps                  int
	Time                   float64
	InitialMass, FinalMass float64
	RelativeMassChange     float64
	ElapsedTime            time.Duration
	CrseBoxes, FineBoxes   int
	CoarseCells, FineCells int
}

// samples per cell edge when the fine level cuts the obstacle
const ebSamples = 4

func NewAdvection(ip *InputParameters.AMRParameters, comm *utils.Comm, log logrus.FieldLogger) (c *Advection, err error) {
	if err = ip.Validate(); err != nil {
		return
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	c = &Advection{
		Params: ip,
		Ratio:  amr.IntVect{ip.RefRatio, ip.RefRatio, 1},
		comm:   comm,
		log:    log.WithField("rank", comm.Rank()),
		exec: fluxreg.NewExecutor(ip.Executor,
			amr.IntVect{ip.TileSize[0], ip.TileSize[1], 1}, ip.ParallelDegree),
	}
	c.velocity = [amr.SpaceDim]float64{ip.Velocity[0], ip.Velocity[1], 0}
	var (
		nx, ny   = ip.CoarseCells[0], ip.CoarseCells[1]
		domain   = amr.NewBox(amr.IntVect{0, 0, 0}, amr.IntVect{nx - 1, ny - 1, 0})
		dz       = ip.DomainLength[0] / float64(nx)
		periodic = [amr.SpaceDim]bool{ip.Periodic[0], ip.Periodic[1], false}
		cgeom    = amr.NewGeometry(domain, [amr.SpaceDim]float64{},
			[amr.SpaceDim]float64{ip.DomainLength[0], ip.DomainLength[1], dz}, periodic)
		cba = amr.NewBoxArrayFromDomain(domain, amr.IntVect{ip.MaxGridSize, ip.MaxGridSize, 1})
		fba amr.BoxArray
	)
	if fba, err = c.fineBoxes(); err != nil {
		return nil, err
	}
	ng := ip.RefRatio
	if ng < 2 {
		ng = 2
	}
	c.Crse = c.newLevel(cgeom, cba)
	c.Fine = c.newLevel(cgeom.Refine(c.Ratio), fba)
	if ob := ip.Circle; ob != nil {
		body := ebgeom.PeriodicBody(ebgeom.CircleIF(ob.Center[0], ob.Center[1], ob.Radius, false), cgeom)
		c.Fine.EB = ebgeom.BuildLevel(c.Fine.Geom, fba, c.Fine.DM, ng, comm, body, ebSamples)
		c.Crse.EB = c.crseGeometry(ng, body)
	} else {
		c.Crse.EB = ebgeom.NewLevel(cgeom, cba, c.Crse.DM, ng, comm)
		c.Fine.EB = ebgeom.NewLevel(c.Fine.Geom, fba, c.Fine.DM, ng, comm)
	}

	lay := fluxreg.Layout{
		FineBA:    c.Fine.BA,
		CrseBA:    c.Crse.BA,
		FineDM:    c.Fine.DM,
		CrseDM:    c.Crse.DM,
		FineGeom:  c.Fine.Geom,
		CrseGeom:  c.Crse.Geom,
		Ratio:     c.Ratio,
		FineLevel: 1,
		NComp:     1,
	}
	opts := []fluxreg.Option{fluxreg.WithLogger(c.log), fluxreg.WithExecutor(c.exec)}
	if ip.Circle != nil {
		cfg := fluxreg.EBConfig{ReredistributionThreshold: ip.ReredistributionThreshold}
		c.ebfr = fluxreg.NewEBFluxRegister(lay, comm, cfg, opts...)
		c.reg = c.ebfr
	} else {
		c.fr = fluxreg.NewFluxRegister(lay, comm, opts...)
		c.reg = c.fr
	}
	c.setTimeStep()
	c.initialize()
	return
}

// fineBoxes refines the input boxes and chops them at MaxGridSize coarse cells
func (c *Advection) fineBoxes() (fba amr.BoxArray, err error) {
	var (
		ip    = c.Params
		boxes []amr.Box
		crse  []amr.Box
		tile  = amr.IntVect{ip.MaxGridSize, ip.MaxGridSize, 1}.Mul(c.Ratio)
	)
	for _, fb := range ip.FineBoxes {
		cb := amr.NewBox(amr.IntVect{fb[0], fb[1], 0}, amr.IntVect{fb[2], fb[3], 0})
		for _, o := range crse {
			if o.Intersects(cb) {
				return fba, fmt.Errorf("fine boxes %v and %v overlap", o, cb)
			}
		}
		crse = append(crse, cb)
		boxes = append(boxes, cb.Refine(c.Ratio).Tiles(tile)...)
	}
	return amr.NewBoxArray(boxes...), nil
}

func (c *Advection) newLevel(geom amr.Geometry, ba amr.BoxArray) (lev *Level) {
	lev = &Level{
		Geom: geom,
		BA:   ba,
		DM:   amr.RoundRobin(ba.Size(), c.comm.Size()),
	}
	lev.State = fab.NewMultiFab(ba, lev.DM, 1, 1, c.comm)
	return
}

// crseGeometry samples the body over the whole domain at the fine resolution
// and coarsens it down to the coarse level, so the volume of every coarse cell
// is the sum of its children's. Ratios that are not a power of two, and bodies
// that would leave disconnected fluid inside a coarse cell, fall back to
// sampling on the coarse cells directly. Collective.
func (c *Advection) crseGeometry(ng int, body ebgeom.ImplicitFunction) *ebgeom.Level {
	var (
		lev = c.Crse
		r   = c.Params.RefRatio
	)
	if r&(r-1) == 0 {
		eb := ebgeom.BuildLevel(lev.Geom.Refine(c.Ratio), lev.BA.Refine(c.Ratio), lev.DM, ng, c.comm,
			body, ebSamples)
		var err error
		for err == nil && eb.Geom.Domain != lev.Geom.Domain {
			eb, err = ebgeom.CoarsenFromFine(eb, ng)
		}
		if err == nil {
			return eb
		}
		var cerr *ebgeom.CoarsenError
		if errors.As(err, &cerr) && cerr.Code == ebgeom.ErrMultiValued {
			c.log.WithError(err).Warn("sampling the coarse geometry directly")
		} else {
			c.log.WithError(err).Error("sampling the coarse geometry directly")
		}
	}
	return ebgeom.BuildLevel(lev.Geom, lev.BA, lev.DM, ng, c.comm, body, ebSamples*r)
}

// setTimeStep picks dt from the coarse CFL condition, then shrinks it so an
// integer number of steps lands on FinalTime
func (c *Advection) setTimeStep() {
	var (
		ip   = c.Params
		rate float64
	)
	for d := 0; d < 2; d++ {
		rate += math.Abs(c.velocity[d]) / c.Crse.Geom.Dx[d]
	}
	if rate == 0 {
		rate = 1 / c.Crse.Geom.Dx[0]
	}
	c.Dt = ip.CFL / rate
	switch {
	case ip.FinalTime > 0:
		c.NumSteps = int(math.Ceil(ip.FinalTime / c.Dt))
		c.Dt = ip.FinalTime / float64(c.NumSteps)
		if ip.MaxSteps > 0 && ip.MaxSteps < c.NumSteps {
			c.NumSteps = ip.MaxSteps
		}
	default:
		c.NumSteps = ip.MaxSteps
	}
}

// initialize sets the Gaussian pulse on both levels, zero inside the obstacle
func (c *Advection) initialize() {
	var (
		p = c.Params.InitialPulse
	)
	for _, lev := range []*Level{c.Crse, c.Fine} {
		for li := 0; li < lev.State.LocalSize(); li++ {
			var (
				st = lev.State.Fab(li)
				vf = lev.EB.VolFracFab(li)
			)
			st.SetVal(0)
			lev.State.ValidBox(li).ForEach(func(i, j, k int) {
				if vf.Get(i, j, k, 0) == 0 {
					return
				}
				x := lev.Geom.CellCenter(amr.IntVect{i, j, k})
				dx, dy := x[0]-p.Center[0], x[1]-p.Center[1]
				st.Set(i, j, k, 0, math.Exp(-(dx*dx+dy*dy)/(p.Width*p.Width)))
			})
		}
	}
	c.averageDown()
}

// Step advances both levels by one coarse time step. Collective.
func (c *Advection) Step() {
	var (
		dt  = c.Dt
		old = fab.NewMultiFab(c.Crse.BA, c.Crse.DM, 1, 0, c.comm)
	)
	fab.Copy(old, c.Crse.State, 0, 0, 1, 0)
	c.reg.Reset()

	c.Crse.State.FillBoundary(c.Crse.Geom)
	c.advance(c.Crse, dt, func(li int, flux fluxreg.Fluxes) {
		if c.ebfr != nil {
			c.ebfr.CrseAdd(li, flux, c.Crse.Geom.Dx, dt, fluxreg.LevelFracs(c.Crse.EB, li))
			return
		}
		c.fr.CrseAdd(li, flux, c.Crse.Geom.Dx, dt)
	})

	var (
		r   = c.Params.RefRatio
		dtf = dt / float64(r)
	)
	for sub := 0; sub < r; sub++ {
		c.fillFineGhosts(old, float64(sub)/float64(r))
		c.advance(c.Fine, dtf, func(li int, flux fluxreg.Fluxes) {
			if c.ebfr != nil {
				c.ebfr.FineAdd(li, flux, c.Fine.Geom.Dx, dtf, fluxreg.LevelFracs(c.Fine.EB, li), nil)
				return
			}
			c.fr.FineAdd(li, flux, c.Fine.Geom.Dx, dtf)
		})
	}

	if !c.Params.NoReflux {
		if c.ebfr != nil {
			c.ebfr.Reflux(c.Crse.State, c.Crse.EB, c.Fine.State, c.Fine.EB)
		} else {
			c.fr.Reflux(c.Crse.State)
		}
	}
	c.averageDown()
	c.Time += dt
	c.Steps++
}

// advance updates every local box of lev by dt in flux form. Ghost cells must
// be filled. The face fluxes of each box are handed to add before the next box.
func (c *Advection) advance(lev *Level, dt float64, add func(li int, flux fluxreg.Fluxes)) {
	for li := 0; li < lev.State.LocalSize(); li++ {
		var (
			bx   = lev.State.ValidBox(li)
			st   = lev.State.Fab(li)
			vf   = lev.EB.VolFracFab(li)
			af   = lev.EB.AreaFracFabs(li)
			flux fluxreg.Fluxes
		)
		for d := 0; d < 2; d++ {
			var (
				fb = bx.SurroundingNodes(d)
				f  = fab.NewFArrayBox(fb, 1)
			)
			c.exec.ParallelFor(fb, func(i, j, k int) {
				f.Set(i, j, k, 0, c.faceFlux(lev, st, vf, af, d, amr.IntVect{i, j, k}, dt))
			})
			flux[d] = f
		}
		c.exec.ParallelFor(bx, func(i, j, k int) {
			v := vf.Get(i, j, k, 0)
			if v == 0 {
				return
			}
			var (
				iv  = amr.IntVect{i, j, k}
				div float64
			)
			for d := 0; d < 2; d++ {
				hi := iv.Add(amr.BaseVect(d))
				div += (af[d].At(hi, 0)*flux[d].At(hi, 0) - af[d].At(iv, 0)*flux[d].At(iv, 0)) / lev.Geom.Dx[d]
			}
			st.Plus(i, j, k, 0, -dt*div/v)
		})
		add(li, flux)
	}
}

// faceFlux is the upwind flux through the low face of cell face in direction
// d, per unit open area
func (c *Advection) faceFlux(lev *Level, st, vf *fab.FArrayBox, af [amr.SpaceDim]*fab.FArrayBox,
	d int, face amr.IntVect, dt float64) float64 {
	var (
		u  = c.velocity[d]
		up = face
	)
	if u == 0 {
		return 0
	}
	if u > 0 {
		up[d]--
	}
	return u * st.At(up, 0) * c.limiter(lev, vf, af, up, dt)
}

// limiter scales the outflow of cell iv so it never exceeds its content
func (c *Advection) limiter(lev *Level, vf *fab.FArrayBox, af [amr.SpaceDim]*fab.FArrayBox,
	iv amr.IntVect, dt float64) float64 {
	v := vf.At(iv, 0)
	if v == 0 {
		return 0
	}
	var out float64
	for d := 0; d < 2; d++ {
		u := c.velocity[d]
		face := iv
		if u > 0 {
			face[d]++
		}
		out += dt * math.Abs(u) * af[d].At(face, 0) / lev.Geom.Dx[d]
	}
	if out > v {
		return v / out
	}
	return 1
}

// fillFineGhosts sets fine ghost cells from the coarse level at the fraction
// alpha of the coarse step, then overwrites those that lie in another fine box.
func (c *Advection) fillFineGhosts(old *fab.MultiFab, alpha float64) {
	if c.Fine.BA.Size() == 0 {
		return
	}
	interp := fab.NewMultiFab(c.Crse.BA, c.Crse.DM, 1, 0, c.comm)
	fab.Copy(interp, old, 0, 0, 1, 0)
	fab.Scale(interp, 1-alpha)
	fab.Saxpy(interp, alpha, c.Crse.State, 0, 0, 1)

	var (
		cfba = c.Fine.BA.Coarsen(c.Ratio)
		cf   = fab.NewMultiFab(cfba, c.Fine.DM, 1, 1, c.comm)
	)
	cf.SetVal(0)
	cf.ParallelCopyGrow(interp, 0, 0, 1, 0, 1, c.Crse.Geom, fab.COPY)
	for li := 0; li < c.Fine.State.LocalSize(); li++ {
		var (
			st    = c.Fine.State.Fab(li)
			valid = c.Fine.State.ValidBox(li)
			src   = cf.Fab(li)
		)
		st.Box().ForEach(func(i, j, k int) {
			iv := amr.IntVect{i, j, k}
			if valid.Contains(iv) {
				return
			}
			st.Set(i, j, k, 0, src.At(iv.Coarsen(c.Ratio), 0))
		})
	}
	c.Fine.State.FillBoundary(c.Fine.Geom)
}

// averageDown replaces covered coarse cells by the volume weighted mean of
// their children
func (c *Advection) averageDown() {
	if c.Fine.BA.Size() == 0 {
		return
	}
	var (
		cfba = c.Fine.BA.Coarsen(c.Ratio)
		cf   = fab.NewMultiFab(cfba, c.Fine.DM, 1, 0, c.comm)
	)
	for li := 0; li < cf.LocalSize(); li++ {
		var (
			fine = c.Fine.State.Fab(li)
			fvf  = c.Fine.EB.VolFracFab(li)
			dst  = cf.Fab(li)
		)
		c.exec.ParallelFor(cf.ValidBox(li), func(i, j, k int) {
			var (
				m, v     float64
				children = amr.NewBox(amr.IntVect{i, j, k}.Mul(c.Ratio),
					amr.IntVect{i + 1, j + 1, k + 1}.Mul(c.Ratio).Sub(amr.Unit(1)))
			)
			children.ForEach(func(ii, jj, kk int) {
				w := fvf.Get(ii, jj, kk, 0)
				m += w * fine.Get(ii, jj, kk, 0)
				v += w
			})
			if v > 0 {
				m /= v
			}
			dst.Set(i, j, k, 0, m)
		})
	}
	c.Crse.State.ParallelCopy(cf, 0, 0, 1, c.Crse.Geom.NonPeriodic(), fab.COPY)
}

// CompositeMass integrates the scalar over the uncovered coarse cells and the
// fine level. Collective.
func (c *Advection) CompositeMass() float64 {
	var (
		m     float64
		flags = c.reg.CrseFlag()
	)
	for _, lev := range []*Level{c.Crse, c.Fine} {
		vol := lev.Geom.Dx[0] * lev.Geom.Dx[1]
		for li := 0; li < lev.State.LocalSize(); li++ {
			var (
				st = lev.State.Fab(li)
				vf = lev.EB.VolFracFab(li)
			)
			lev.State.ValidBox(li).ForEach(func(i, j, k int) {
				if lev == c.Crse && fluxreg.CellType(flags.Fab(li).Get(i, j, k, 0)) == fluxreg.Covered {
					return
				}
				m += vf.Get(i, j, k, 0) * st.Get(i, j, k, 0) * vol
			})
		}
	}
	return c.comm.AllReduceSum(m)
}

// Run steps to the end time, logging the composite mass every LogFrequency
// steps on rank 0. Collective.
func (c *Advection) Run() (s Summary) {
	var (
		start = time.Now()
		freq  = c.Params.LogFrequency
	)
	s.InitialMass = c.CompositeMass()
	for c.Steps < c.NumSteps {
		c.Step()
		mass := c.CompositeMass()
		if utils.IsNan(mass) {
			// every rank sees the same reduced mass and stops together
			if c.comm.Rank() == 0 {
				c.log.WithFields(logrus.Fields{"step": c.Steps, "time": c.Time}).Error("composite mass is NaN, stopping")
			}
			break
		}
		if freq > 0 && (c.Steps%freq == 0 || c.Steps == c.NumSteps) {
			if c.comm.Rank() == 0 {
				c.log.WithFields(logrus.Fields{
					"step": c.Steps,
					"time": c.Time,
					"mass": mass,
				}).Info("advection step")
			}
		}
	}
	s.FinalMass = c.CompositeMass()
	s.Steps, s.Time = c.Steps, c.Time
	s.ElapsedTime = time.Since(start)
	s.CrseBoxes, s.FineBoxes = c.Crse.BA.Size(), c.Fine.BA.Size()
	s.CoarseCells, s.FineCells = c.Crse.BA.NumPts(), c.Fine.BA.NumPts()
	if s.InitialMass != 0 {
		s.RelativeMassChange = (s.FinalMass - s.InitialMass) / s.InitialMass
	}
	return
}

// RunParallel runs the problem on ip.NumRanks in-process ranks and returns
// the summary seen by rank 0.
func RunParallel(ip *InputParameters.AMRParameters, log logrus.FieldLogger) (s Summary, err error) {
	var (
		errs = make([]error, ip.NumRanks)
		sums = make([]Summary, ip.NumRanks)
	)
	if err = ip.Validate(); err != nil {
		return
	}
	utils.RunRanks(ip.NumRanks, func(comm *utils.Comm) {
		c, err := NewAdvection(ip, comm, log)
		if err != nil {
			errs[comm.Rank()] = err
			return
		}
		sums[comm.Rank()] = c.Run()
	})
	return sums[0], errs[0]
}
