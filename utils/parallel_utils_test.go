package utils

import (
	"math"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPartitionMap(t *testing.T) {
	{
		getHisto := func(K, Np int) (histo map[int]int) {
			pm := NewPartitionMap(Np, K)
			histo = make(map[int]int)
			for np := 0; np < pm.ParallelDegree; np++ {
				maxK := pm.GetBucketDimension(np)
				histo[maxK]++
			}
			return
		}
		getTotal := func(histo map[int]int) (total int) {
			for key, count := range histo {
				total += key * count
			}
			return
		}
		assert.Equal(t, map[int]int{0: 30, 1: 2}, getHisto(2, 32))
		assert.Equal(t, map[int]int{1: 32}, getHisto(32, 32))
		assert.Equal(t, map[int]int{8: 32}, getHisto(256, 32))
		assert.Equal(t, map[int]int{8: 1, 9: 31}, getHisto(287, 32))
		assert.Equal(t, 287, getTotal(getHisto(287, 32)))
		for n := 64; n < 2000; n++ {
			var (
				keys   [2]float64
				keyNum int
			)
			histo := getHisto(n, 32)
			for key := range histo {
				keys[keyNum] = float64(key)
				keyNum++
			}
			if keyNum == 2 {
				assert.Equal(t, 1., math.Abs(keys[0]-keys[1])) // Maximum imbalance of 1
			}
			assert.Equal(t, n, getTotal(histo))
		}
	}
	{ // Inverted bucket lookup
		for maxIndex := 10; maxIndex < 300; maxIndex++ {
			pm := NewPartitionMap(5, maxIndex)
			for k := 0; k < maxIndex; k++ {
				tryCount, bn, min, max := pm.getBucketWithTryCount(k)
				mmin, mmax := pm.GetBucketRange(bn)
				assert.True(t, k >= min && k < max && min == mmin && max == mmax && tryCount <= 1)
			}
		}
	}
	{ // Every index visited exactly once
		pm := NewPartitionMap(7, 1000)
		var (
			visits = make([]int32, 1000)
		)
		pm.ForEachBucket(func(bn, kMin, kMax int) {
			for k := kMin; k < kMax; k++ {
				atomic.AddInt32(&visits[k], 1)
			}
		})
		for k := range visits {
			assert.Equal(t, int32(1), visits[k])
		}
	}
}

func TestComm(t *testing.T) {
	{ // Serial world exchanges with itself
		c := SerialComm()
		in := Exchange(c, []Envelope[int]{{To: 0, Msg: 3}, {To: 0, Msg: 4}})
		sort.Ints(in)
		assert.Equal(t, []int{3, 4}, in)
		assert.Equal(t, 2.5, c.AllReduceSum(2.5))
		assert.True(t, c.IsSerial())
	}
	{ // All-to-all over several rounds
		var (
			NP       = 4
			received = make([][]int, NP)
			sums     = make([]float64, NP)
			ors      = make([]bool, NP)
		)
		RunRanks(NP, func(c *Comm) {
			for round := 0; round < 3; round++ {
				var out []Envelope[int]
				for np := 0; np < c.Size(); np++ {
					out = append(out, Envelope[int]{To: np, Msg: 100*round + 10*c.Rank() + np})
				}
				in := Exchange(c, out)
				sort.Ints(in)
				if round == 2 {
					received[c.Rank()] = in
				}
			}
			sums[c.Rank()] = c.AllReduceSum(float64(c.Rank() + 1))
			ors[c.Rank()] = c.AllReduceOr(c.Rank() == 2)
			c.Barrier()
		})
		for np := 0; np < NP; np++ {
			require.Len(t, received[np], NP)
			for from := 0; from < NP; from++ {
				assert.Equal(t, 200+10*from+np, received[np][from])
			}
			assert.Equal(t, 10., sums[np])
			assert.True(t, ors[np])
		}
	}
	{ // Ranks that send nothing still complete the round
		var got = make([]int, 3)
		RunRanks(3, func(c *Comm) {
			var out []Envelope[string]
			if c.Rank() == 0 {
				out = append(out, Envelope[string]{To: 2, Msg: "hello"})
			}
			got[c.Rank()] = len(Exchange(c, out))
		})
		assert.Equal(t, []int{0, 0, 1}, got)
	}
}

func TestSetParallelDegree(t *testing.T) {
	assert.Equal(t, 3, SetParallelDegree(3, 100))
	assert.Equal(t, 2, SetParallelDegree(8, 2))
	assert.Equal(t, 1, SetParallelDegree(4, 0))
	assert.True(t, SetParallelDegree(0, 1<<20) >= 1)
	assert.False(t, IsNan([]float64{1, 2}))
	assert.True(t, IsNan(math.NaN()))
}

func TestAllGather(t *testing.T) {
	var (
		NP  = 4
		all = make([][]int, NP)
		mx  = make([]float64, NP)
	)
	RunRanks(NP, func(c *Comm) {
		all[c.Rank()] = AllGather(c, c.Rank()*c.Rank())
		mx[c.Rank()] = c.AllReduceMax(float64(3 - c.Rank()))
	})
	for np := 0; np < NP; np++ {
		assert.Equal(t, []int{0, 1, 4, 9}, all[np])
		assert.Equal(t, 3., mx[np])
	}
	assert.Equal(t, []string{"one"}, AllGather(SerialComm(), "one"))
}
