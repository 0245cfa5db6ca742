package InputParameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := []byte(`
########################################
Title: "Reflux around a cylinder"
CoarseCells: [16, 8]
DomainLength: [2, 1]
FineBoxes:
  - [4, 2, 7, 5]
  - [10, 0, 11, 1]
RefRatio: 2
MaxGridSize: 8
Velocity: [1.0, -0.25]
CFL: 0.8
FinalTime: 1
NumRanks: 2
Periodic: [true, false]
Obstacle:
  Center: [1.2, 0.5]
  Radius: 0.1
Executor: tiled
TileSize: [4, 4]
########################################
`)
	ip := NewAMRParameters()
	require.NoError(t, ip.Parse(input))
	assert.Equal(t, "Reflux around a cylinder", ip.Title)
	assert.Equal(t, [2]int{16, 8}, ip.CoarseCells)
	assert.Equal(t, []float64{2, 1}, ip.DomainLength)
	assert.Equal(t, [][4]int{{4, 2, 7, 5}, {10, 0, 11, 1}}, ip.FineBoxes)
	assert.Equal(t, [2]float64{1, -0.25}, ip.Velocity)
	assert.Equal(t, [2]bool{true, false}, ip.Periodic)
	require.NotNil(t, ip.Circle)
	assert.Equal(t, 0.1, ip.Circle.Radius)
	assert.Equal(t, "tiled", ip.Executor)
	assert.Equal(t, [2]int{4, 4}, ip.TileSize)
	// untouched keys keep their defaults
	assert.Equal(t, 1.e-14, ip.ReredistributionThreshold)
	assert.Equal(t, 0.3, ip.InitialPulse.Center[0])
	assert.False(t, ip.NoReflux)
}

func TestParseErrors(t *testing.T) {
	for name, input := range map[string]string{
		"syntax":    "CoarseCells: [16, 8",
		"box":       "FineBoxes: [[4, 2, 40, 5]]",
		"cfl":       "CFL: 1.5",
		"executor":  "Executor: gpu",
		"ranks":     "NumRanks: 0",
		"obstacle":  "Obstacle: {Center: [0.5, 0.5], Radius: 0}",
		"no length": "DomainLength: [1]",
	} {
		ip := NewAMRParameters()
		assert.Error(t, ip.Parse([]byte(input)), name)
	}
	assert.NoError(t, NewAMRParameters().Validate())
}
