package amr

import "fmt"

// DistributionMapping assigns an owning rank to each box of a BoxArray by index.
type DistributionMapping struct {
	owners []int
}

func NewDistributionMapping(owners ...int) DistributionMapping {
	dm := DistributionMapping{owners: make([]int, len(owners))}
	copy(dm.owners, owners)
	return dm
}

// RoundRobin deals nBoxes over nRanks in turn
func RoundRobin(nBoxes, nRanks int) DistributionMapping {
	if nRanks < 1 {
		panic(fmt.Sprintf("invalid rank count %d", nRanks))
	}
	dm := DistributionMapping{owners: make([]int, nBoxes)}
	for i := range dm.owners {
		dm.owners[i] = i % nRanks
	}
	return dm
}

func (dm DistributionMapping) Size() int { return len(dm.owners) }

func (dm DistributionMapping) Owner(i int) int { return dm.owners[i] }

// LocalIndices lists, in increasing order, the box indices owned by rank.
// Position in this list is the local index used by field arrays.
func (dm DistributionMapping) LocalIndices(rank int) (idx []int) {
	for i, o := range dm.owners {
		if o == rank {
			idx = append(idx, i)
		}
	}
	return
}
