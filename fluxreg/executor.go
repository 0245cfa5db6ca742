package fluxreg

import (
	"github.com/notargets/fluxreg/amr"
	"github.com/notargets/fluxreg/utils"
)

// Executor runs a per-cell body over every cell of a box. Bodies passed in by
// the register write only the cell they are invoked for, so any split of the
// box gives identical results.
type Executor interface {
	ParallelFor(bx amr.Box, fn func(i, j, k int))
}

// SerialExecutor walks the box in order on the calling goroutine
type SerialExecutor struct{}

func (SerialExecutor) ParallelFor(bx amr.Box, fn func(i, j, k int)) { bx.ForEach(fn) }

// TiledExecutor splits the box into tiles and hands groups of tiles to
// goroutines. A zero tile extent means the whole box in that direction.
type TiledExecutor struct {
	Tile           amr.IntVect
	ParallelDegree int
}

func NewTiledExecutor(tile amr.IntVect, parallelDegree int) TiledExecutor {
	return TiledExecutor{Tile: tile, ParallelDegree: parallelDegree}
}

func (te TiledExecutor) ParallelFor(bx amr.Box, fn func(i, j, k int)) {
	var (
		tiles = bx.Tiles(te.Tile)
		pm    = utils.NewPartitionMap(utils.SetParallelDegree(te.ParallelDegree, len(tiles)), len(tiles))
	)
	pm.ForEachBucket(func(bn, kMin, kMax int) {
		for t := kMin; t < kMax; t++ {
			tiles[t].ForEach(fn)
		}
	})
}

// BatchedExecutor treats the box as one flat index space, split in contiguous
// chunks, the way a device launch covers a whole box at once.
type BatchedExecutor struct {
	ParallelDegree int
}

func NewBatchedExecutor(parallelDegree int) BatchedExecutor {
	return BatchedExecutor{ParallelDegree: parallelDegree}
}

func (be BatchedExecutor) ParallelFor(bx amr.Box, fn func(i, j, k int)) {
	var (
		n  = bx.NumPts()
		pm = utils.NewPartitionMap(utils.SetParallelDegree(be.ParallelDegree, n), n)
	)
	pm.ForEachBucket(func(bn, kMin, kMax int) {
		for p := kMin; p < kMax; p++ {
			fn(bx.CellAt(p))
		}
	})
}

// NewExecutor maps a configuration name to a strategy
func NewExecutor(name string, tile amr.IntVect, parallelDegree int) Executor {
	switch name {
	case "tiled":
		return NewTiledExecutor(tile, parallelDegree)
	case "batched":
		return NewBatchedExecutor(parallelDegree)
	case "serial", "":
		return SerialExecutor{}
	}
	panic("unknown executor " + name)
}
