//go:build linux

package cmd

import (
	perf "github.com/hodgesds/perf-utils"
	"github.com/sirupsen/logrus"
)

// countInstructions runs f under a hardware instruction counter. When the
// kernel refuses the counter f still runs and the count is zero.
func countInstructions(f func() error) (n uint64, err error) {
	var (
		ran bool
		pv  *perf.ProfileValue
	)
	pv, err = perf.CPUInstructions(func() error {
		ran = true
		return f()
	})
	if ran || err == nil {
		if pv != nil {
			n = pv.Value
		}
		return
	}
	logrus.WithError(err).Warn("perf counters unavailable")
	return 0, f()
}
