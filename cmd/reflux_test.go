package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeInput(t *testing.T) string {
	fileName := filepath.Join(t.TempDir(), "input.yaml")
	require.NoError(t, os.WriteFile(fileName, []byte(`
Title: "Test Case"
CoarseCells: [8, 8]
MaxGridSize: 4
FineBoxes:
  - [2, 2, 4, 5]
MaxSteps: 2
LogFrequency: 0
`), 0644))
	return fileName
}

func TestLoadInput(t *testing.T) {
	ip, err := loadInput(writeInput(t))
	require.NoError(t, err)
	assert.Equal(t, [2]int{8, 8}, ip.CoarseCells)
	assert.Equal(t, 2, ip.MaxSteps)

	defer func() {
		Cfg.Set("ranks", 0)
		Cfg.Set("executor", "")
	}()
	Cfg.Set("ranks", "3")
	Cfg.Set("executor", "batched")
	require.NoError(t, applyOverrides(ip))
	assert.Equal(t, 3, ip.NumRanks)
	assert.Equal(t, "batched", ip.Executor)

	Cfg.Set("ranks", "three")
	assert.Error(t, applyOverrides(ip))

	_, err = loadInput(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
	ip, err = loadInput("")
	require.NoError(t, err)
	assert.Equal(t, 1, ip.NumRanks)
}

func TestRefluxCommand(t *testing.T) {
	defer func() {
		Cfg.Set("ranks", 0)
		Cfg.Set("profile", "")
	}()
	rootCmd.SetArgs([]string{"reflux", "-I", writeInput(t), "-n", "2",
		"--config", filepath.Join(t.TempDir(), "none.yaml")})
	assert.Error(t, rootCmd.Execute(), "missing config file")

	rootCmd.SetArgs([]string{"reflux", "-I", writeInput(t), "-n", "2", "--config", "", "--log-level", "warn"})
	require.NoError(t, rootCmd.Execute())

	rootCmd.SetArgs([]string{"reflux", "-I", writeInput(t), "--profile", "disk"})
	assert.Error(t, rootCmd.Execute())
}
