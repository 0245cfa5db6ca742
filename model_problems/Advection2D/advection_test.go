package Advection2D

import (
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/fluxreg/InputParameters"
	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/utils"
)

func quietLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

func testParams() (ip *InputParameters.AMRParameters) {
	ip = InputParameters.NewAMRParameters()
	ip.CoarseCells = [2]int{16, 16}
	ip.MaxGridSize = 8
	ip.FineBoxes = [][4]int{{4, 4, 9, 9}}
	ip.MaxSteps = 6
	ip.LogFrequency = 0
	return
}

func relativeChange(s Summary) float64 {
	return math.Abs(s.FinalMass-s.InitialMass) / s.InitialMass
}

func TestCompositeMassConserved(t *testing.T) {
	ip := testParams()
	s, err := RunParallel(ip, quietLog())
	require.NoError(t, err)
	assert.Equal(t, 6, s.Steps)
	assert.Greater(t, s.InitialMass, 0.)
	assert.Less(t, relativeChange(s), 1.e-11)
	assert.Equal(t, 4, s.CrseBoxes)
	assert.Equal(t, 1, s.FineBoxes)
	assert.Equal(t, 144, s.FineCells)

	// the same run without the correction loses or gains mass at the coarse fine interface
	ip.NoReflux = true
	s, err = RunParallel(ip, quietLog())
	require.NoError(t, err)
	assert.Greater(t, relativeChange(s), 1.e-8)
}

func TestRanksAndExecutorsAgree(t *testing.T) {
	serial, err := RunParallel(testParams(), quietLog())
	require.NoError(t, err)
	for _, tc := range []struct {
		ranks    int
		executor string
	}{
		{3, "serial"},
		{2, "tiled"},
		{1, "batched"},
	} {
		ip := testParams()
		ip.NumRanks = tc.ranks
		ip.Executor = tc.executor
		ip.TileSize = [2]int{4, 4}
		ip.ParallelDegree = 2
		s, err := RunParallel(ip, quietLog())
		require.NoError(t, err)
		assert.InDelta(t, serial.FinalMass, s.FinalMass, 1.e-14, "%d ranks, %s", tc.ranks, tc.executor)
		assert.Less(t, relativeChange(s), 1.e-11)
	}
}

func TestObstacleMassConserved(t *testing.T) {
	for _, ranks := range []int{1, 2} {
		ip := testParams()
		ip.NumRanks = ranks
		// the cylinder straddles the right edge of the fine region
		ip.Circle = &InputParameters.Obstacle{Center: [2]float64{0.65, 0.45}, Radius: 0.1}
		s, err := RunParallel(ip, quietLog())
		require.NoError(t, err)
		assert.Less(t, relativeChange(s), 1.e-11, "%d ranks", ranks)
	}
}

func TestSingleLevel(t *testing.T) {
	var (
		ip   = testParams()
		comm = utils.SerialComm()
	)
	ip.FineBoxes = nil
	ip.MaxSteps = 0
	ip.FinalTime = 0.1
	c, err := NewAdvection(ip, comm, quietLog())
	require.NoError(t, err)
	s := c.Run()
	assert.Equal(t, c.NumSteps, s.Steps)
	assert.InDelta(t, 0.1, s.Time, 1.e-14)
	assert.Equal(t, 0, s.FineCells)
	assert.Less(t, relativeChange(s), 1.e-12)
	// upwind with CFL below one keeps the pulse bounded
	for li := 0; li < c.Crse.State.LocalSize(); li++ {
		st := c.Crse.State.Fab(li)
		c.Crse.State.ValidBox(li).ForEach(func(i, j, k int) {
			v := st.Get(i, j, k, 0)
			assert.True(t, v >= 0 && v <= 1, "cell (%d,%d) = %g", i, j, v)
		})
	}
}

func TestNewAdvectionErrors(t *testing.T) {
	ip := testParams()
	ip.FineBoxes = [][4]int{{2, 2, 5, 5}, {5, 5, 7, 7}}
	_, err := RunParallel(ip, quietLog())
	assert.Error(t, err)

	ip = testParams()
	ip.CFL = 2
	_, err = NewAdvection(ip, utils.SerialComm(), nil)
	assert.Error(t, err)
}

func TestSeamObstacleMassConserved(t *testing.T) {
	// the cylinder crosses the periodic x seam, and the fine boxes sit on
	// one or both sides of it
	for _, tc := range []struct {
		fine  [][4]int
		ranks int
	}{
		{[][4]int{{12, 4, 15, 9}}, 1},
		{[][4]int{{12, 4, 15, 9}}, 3},
		{[][4]int{{0, 4, 3, 9}, {12, 4, 15, 9}}, 1},
		{[][4]int{{0, 4, 3, 9}, {12, 4, 15, 9}}, 3},
	} {
		ip := testParams()
		ip.NumRanks = tc.ranks
		ip.FineBoxes = tc.fine
		ip.MaxSteps = 10
		ip.Circle = &InputParameters.Obstacle{Center: [2]float64{0.98, 0.4}, Radius: 0.12}
		s, err := RunParallel(ip, quietLog())
		require.NoError(t, err)
		assert.Equal(t, 10, s.Steps)
		assert.Less(t, relativeChange(s), 1.e-11, "fine %v, %d ranks", tc.fine, tc.ranks)
	}
}

func TestCoarseVolumeMatchesFine(t *testing.T) {
	ip := testParams()
	ip.FineBoxes = [][4]int{{12, 4, 15, 9}}
	ip.Circle = &InputParameters.Obstacle{Center: [2]float64{0.98, 0.4}, Radius: 0.12}
	c, err := NewAdvection(ip, utils.SerialComm(), quietLog())
	require.NoError(t, err)
	sums := make(map[[2]int]float64)
	for li := 0; li < c.Fine.State.LocalSize(); li++ {
		vf := c.Fine.EB.VolFracFab(li)
		c.Fine.State.ValidBox(li).ForEach(func(i, j, k int) {
			sums[[2]int{i >> 1, j >> 1}] += 0.25 * vf.Get(i, j, k, 0)
		})
	}
	require.Len(t, sums, 24)
	var cut int
	for li := 0; li < c.Crse.State.LocalSize(); li++ {
		vf := c.Crse.EB.VolFracFab(li)
		c.Crse.State.ValidBox(li).ForEach(func(i, j, k int) {
			want, ok := sums[[2]int{i, j}]
			if !ok {
				return
			}
			got := vf.Get(i, j, k, 0)
			assert.InDelta(t, want, got, 1.e-14, "cell (%d,%d)", i, j)
			if got > 0 && got < 1 {
				cut++
			}
		})
	}
	assert.Greater(t, cut, 0)
}

func TestNaNStopsRun(t *testing.T) {
	ip := testParams()
	c, err := NewAdvection(ip, utils.SerialComm(), quietLog())
	require.NoError(t, err)
	for li := 0; li < c.Crse.State.LocalSize(); li++ {
		if c.Crse.State.ValidBox(li).Contains(amr.IntVect{}) {
			c.Crse.State.Fab(li).Set(0, 0, 0, 0, math.NaN())
		}
	}
	s := c.Run()
	assert.Equal(t, 1, s.Steps)
	assert.Less(t, s.Steps, c.NumSteps)
	assert.True(t, math.IsNaN(s.FinalMass))
}
