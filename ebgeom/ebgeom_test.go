package ebgeom

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/fab"
	"github.com/notargets/fluxreg/utils"
)

func box2D(ilo, jlo, ihi, jhi int) amr.Box {
	return amr.NewBox(amr.IntVect{ilo, jlo, 0}, amr.IntVect{ihi, jhi, 0})
}

func unitGeom(n int, periodic bool) amr.Geometry {
	return amr.NewGeometry(box2D(0, 0, n-1, n-1), [3]float64{}, [3]float64{1, 1, 1},
		[3]bool{periodic, periodic, false})
}

func TestCellFlag(t *testing.T) {
	f := RegularFlag()
	assert.True(t, f.IsRegular())
	assert.Equal(t, 26, f.NumConnected())
	f = f.SetDisconnected(1, 0, -1)
	assert.False(t, f.IsConnected(1, 0, -1))
	assert.True(t, f.IsConnected(-1, 0, 1))
	assert.True(t, CoveredFlag().IsCovered())
	assert.Equal(t, 0, CoveredFlag().NumConnected())
	sv := SingleValuedFlag().SetConnected(0, 1, 0)
	assert.True(t, sv.IsSingleValued())
	assert.True(t, sv.IsConnected(0, 0, 0))
	assert.Equal(t, 1, sv.NumConnected())
	assert.Equal(t, "covered", CoveredFlag().String())
	assert.Equal(t, "singlevalued", FabSingleValued.String())
}

func TestRegularLevel(t *testing.T) {
	var (
		c    = utils.SerialComm()
		geom = unitGeom(8, false)
		ba   = amr.NewBoxArray(box2D(0, 0, 3, 7), box2D(4, 0, 7, 7))
	)
	l := NewLevel(geom, ba, amr.RoundRobin(2, 1), 2, c)
	assert.Equal(t, 2, l.NGrow())
	assert.Equal(t, FabRegular, l.FabType(0, box2D(0, 0, 3, 7)))
	// Neighbour box cells arrive through the halo fill
	assert.Equal(t, FabRegular, l.FabType(0, box2D(0, 0, 5, 7)))
	assert.True(t, l.Flag(0, -1, 3, 0).IsCovered())
	assert.True(t, l.Flag(0, 2, 3, 1).IsCovered())
	f := l.Flag(0, 2, 3, 0)
	assert.True(t, f.IsRegular())
	assert.Equal(t, 8, f.NumConnected())
	assert.False(t, f.IsConnected(0, 0, 1))
	assert.Equal(t, 5, l.Flag(0, 0, 3, 0).NumConnected())
}

func TestBuildLevelPlane(t *testing.T) {
	var (
		c    = utils.SerialComm()
		geom = unitGeom(8, false)
		ba   = amr.NewBoxArray(box2D(0, 0, 7, 7))
		fn   = PlaneIF([3]float64{0.3, 0, 0}, [3]float64{1, 0, 0})
	)
	l := BuildLevel(geom, ba, amr.RoundRobin(1, 1), 2, c, fn, 4)
	vf := l.VolFracFab(0)
	af := l.AreaFracFabs(0)
	assert.Equal(t, 1., vf.Get(1, 4, 0, 0))
	assert.Equal(t, 0.5, vf.Get(2, 4, 0, 0))
	assert.Equal(t, 0., vf.Get(3, 4, 0, 0))
	assert.Equal(t, 1., af[0].Get(2, 4, 0, 0))
	assert.Equal(t, 0., af[0].Get(3, 4, 0, 0))
	assert.Equal(t, 0.5, af[1].Get(2, 4, 0, 0))

	cut := l.Flag(0, 2, 4, 0)
	assert.True(t, cut.IsSingleValued())
	assert.True(t, cut.IsConnected(-1, 0, 0))
	assert.False(t, cut.IsConnected(1, 0, 0))
	assert.True(t, cut.IsConnected(0, 1, 0))
	assert.True(t, cut.IsConnected(-1, 1, 0))
	assert.True(t, l.Flag(0, 1, 4, 0).IsRegular())
	assert.True(t, l.Flag(0, 5, 4, 0).IsCovered())

	assert.Equal(t, FabRegular, l.FabType(0, box2D(0, 0, 1, 7)))
	assert.Equal(t, FabSingleValued, l.FabType(0, box2D(0, 0, 2, 7)))
	assert.Equal(t, FabCovered, l.FabType(0, box2D(4, 0, 7, 7)))
}

func TestCoarsenFromFine(t *testing.T) {
	var (
		c = utils.SerialComm()
	)
	{ // Volume is conserved by averaging
		var (
			geom = unitGeom(16, true)
			ba   = amr.NewBoxArray(box2D(0, 0, 7, 15), box2D(8, 0, 15, 15))
			fn   = CircleIF(0.5, 0.5, 0.2, false)
		)
		fine := BuildLevel(geom, ba, amr.RoundRobin(2, 1), 2, c, fn, 4)
		crse, err := CoarsenFromFine(fine, 2)
		require.NoError(t, err)
		assert.Equal(t, amr.IntVect{2, 2, 1}, CoarsenRatio(geom))
		assert.Equal(t, box2D(0, 0, 7, 7), crse.Geom.Domain)
		fineVol := fab.LocalSum(fine.VolFrac, 0)
		crseVol := fab.LocalSum(crse.VolFrac, 0)
		assert.InDelta(t, fineVol, 4*crseVol, 1e-12)
		assert.True(t, crse.Flag(0, 3, 3, 0).IsCovered())
		assert.True(t, crse.Flag(0, 0, 0, 0).IsRegular())
	}
	{ // Odd sized boxes
		var (
			geom = unitGeom(6, false)
			ba   = amr.NewBoxArray(box2D(0, 0, 2, 5), box2D(3, 0, 5, 5))
		)
		fine := NewLevel(geom, ba, amr.RoundRobin(2, 1), 2, c)
		_, err := CoarsenFromFine(fine, 2)
		var cerr *CoarsenError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, ErrNotCoarsenable, cerr.Code)
	}
	{ // Fluid touching only across a corner makes a multi-valued coarse cell
		var (
			geom = unitGeom(4, false)
			ba   = amr.NewBoxArray(box2D(0, 0, 3, 3))
		)
		fine := NewLevel(geom, ba, amr.RoundRobin(1, 1), 2, c)
		fine.VolFracFab(0).Set(1, 0, 0, 0, 0)
		fine.VolFracFab(0).Set(0, 1, 0, 0, 0)
		fine.Finalize()
		_, err := CoarsenFromFine(fine, 2)
		var cerr *CoarsenError
		require.True(t, errors.As(err, &cerr))
		assert.Equal(t, ErrMultiValued, cerr.Code)
		assert.Contains(t, err.Error(), "code 2")
	}
}

func TestCloseCoveredFaces(t *testing.T) {
	var (
		c    = utils.SerialComm()
		geom = unitGeom(4, false)
	)
	l := NewLevel(geom, amr.NewBoxArray(box2D(0, 0, 3, 3)), amr.RoundRobin(1, 1), 2, c)
	// only the volume is cleared, the faces around the cell still read open
	l.VolFracFab(0).Set(1, 1, 0, 0, 0)
	l.Finalize()
	af := l.AreaFracFabs(0)
	assert.Equal(t, 0., af[0].Get(1, 1, 0, 0))
	assert.Equal(t, 0., af[0].Get(2, 1, 0, 0))
	assert.Equal(t, 0., af[1].Get(1, 1, 0, 0))
	assert.Equal(t, 0., af[1].Get(1, 2, 0, 0))
	assert.Equal(t, 1., af[0].Get(3, 1, 0, 0))

	f := l.Flag(0, 0, 1, 0)
	assert.True(t, f.IsSingleValued())
	assert.False(t, f.IsConnected(1, 0, 0))
	assert.True(t, f.IsConnected(0, 1, 0))
	assert.False(t, l.Flag(0, 0, 0, 0).IsConnected(1, 1, 0))
	assert.True(t, l.Flag(0, 0, 0, 0).IsConnected(1, 0, 0))
	assert.True(t, l.Flag(0, 1, 1, 0).IsCovered())
}

func TestPeriodicBody(t *testing.T) {
	var (
		c    = utils.SerialComm()
		geom = unitGeom(16, true)
		ba   = amr.NewBoxArray(box2D(0, 0, 15, 15))
		fn   = CircleIF(0.98, 0.4, 0.12, false)
		body = PeriodicBody(fn, geom)
	)
	assert.Equal(t, fn([3]float64{1.03, 0.4, 0}), body([3]float64{0.03, 0.4, 0}))
	assert.Equal(t, fn([3]float64{0.5, 0.5, 0}), body([3]float64{0.5, 0.5, 0}))

	plain := BuildLevel(geom, ba, amr.RoundRobin(1, 1), 2, c, fn, 4)
	wrapped := BuildLevel(geom, ba, amr.RoundRobin(1, 1), 2, c, body, 4)
	// the part of the cylinder past x=1 cuts the first column
	assert.Equal(t, 1., plain.VolFracFab(0).Get(0, 6, 0, 0))
	vf := wrapped.VolFracFab(0)
	assert.Less(t, vf.Get(0, 6, 0, 0), 1.)
	assert.Equal(t, vf.Get(0, 6, 0, 0), vf.Get(16, 6, 0, 0))
	assert.Equal(t, vf.Get(15, 6, 0, 0), vf.Get(-1, 6, 0, 0))
	assert.Equal(t, plain.VolFracFab(0).Get(14, 6, 0, 0), vf.Get(14, 6, 0, 0))
}

func TestSphere3D(t *testing.T) {
	var (
		c      = utils.SerialComm()
		domain = amr.NewBox(amr.IntVect{0, 0, 0}, amr.IntVect{7, 7, 7})
		geom   = amr.NewGeometry(domain, [3]float64{}, [3]float64{1, 1, 1}, [3]bool{})
		ba     = amr.NewBoxArray(domain)
		fn     = SphereIF([3]float64{0.5, 0.5, 0.5}, 0.3, false)
	)
	l := BuildLevel(geom, ba, amr.RoundRobin(1, 1), 2, c, fn, 4)
	assert.True(t, l.Flag(0, 3, 3, 3).IsCovered())
	assert.True(t, l.Flag(0, 4, 4, 4).IsCovered())
	assert.True(t, l.Flag(0, 0, 0, 0).IsRegular())
	assert.Equal(t, 26, l.Flag(0, 1, 1, 1).NumConnected())
	assert.Equal(t, FabSingleValued, l.FabType(0, domain))

	fluid := fab.LocalSum(l.VolFrac, 0) * geom.CellVolume()
	assert.InDelta(t, 1-4./3.*math.Pi*0.027, fluid, 0.01)

	crse, err := CoarsenFromFine(l, 2)
	require.NoError(t, err)
	assert.Equal(t, amr.IntVect{2, 2, 2}, CoarsenRatio(geom))
	assert.InDelta(t, fab.LocalSum(l.VolFrac, 0), 8*fab.LocalSum(crse.VolFrac, 0), 1.e-12)
	assert.True(t, crse.Flag(0, 0, 0, 0).IsRegular())
}
