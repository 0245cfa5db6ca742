package amr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box2D(ilo, jlo, ihi, jhi int) Box {
	return NewBox(IntVect{ilo, jlo, 0}, IntVect{ihi, jhi, 0})
}

func TestIntVect(t *testing.T) {
	r := IntVect{2, 2, 1}
	assert.Equal(t, IntVect{-1, -1, -3}, IntVect{-1, -2, -3}.Coarsen(r))
	assert.Equal(t, IntVect{-2, 0, 5}, IntVect{-3, 1, 5}.Coarsen(r))
	assert.Equal(t, 4, r.Product())
	assert.Equal(t, IntVect{0, 1, 0}, BaseVect(1))
	assert.True(t, IntVect{1, 1, 1}.AllPositive())
	assert.False(t, IntVect{1, 0, 1}.AllPositive())
}

func TestBox(t *testing.T) {
	r := IntVect{2, 2, 1}
	{ // Coarsen / refine
		b := box2D(-4, 2, 7, 9)
		assert.Equal(t, box2D(-2, 1, 3, 4), b.Coarsen(r))
		assert.Equal(t, b, b.Coarsen(r).Refine(r))
		assert.True(t, b.CoarsenableBy(r))
		assert.False(t, box2D(-3, 2, 7, 9).CoarsenableBy(r))
		assert.False(t, box2D(0, 0, 6, 9).CoarsenableBy(r))
	}
	{ // Adjacent cells and faces
		b := box2D(2, 3, 5, 6)
		assert.Equal(t, box2D(1, 3, 1, 6), b.AdjCellLo(0))
		assert.Equal(t, box2D(2, 7, 5, 7), b.AdjCellHi(1))
		assert.Equal(t, box2D(2, 3, 6, 6), b.SurroundingNodes(0))
		assert.Equal(t, 16, b.NumPts())
	}
	{ // Difference covers exactly the remainder
		a := box2D(0, 0, 9, 9)
		b := box2D(3, 4, 12, 5)
		diff := a.Diff(b)
		var n int
		for _, d := range diff {
			assert.False(t, d.Intersects(b))
			assert.True(t, a.ContainsBox(d))
			n += d.NumPts()
		}
		assert.Equal(t, a.NumPts()-a.Intersect(b).NumPts(), n)
		assert.Equal(t, []Box{a}, a.Diff(box2D(20, 20, 21, 21)))
		assert.Empty(t, b.Diff(box2D(-5, -5, 50, 50)))
	}
	{ // Flat indexing and tiling
		b := box2D(1, 2, 3, 4)
		var count int
		b.ForEach(func(i, j, k int) {
			ii, jj, kk := b.CellAt(count)
			assert.Equal(t, [3]int{i, j, k}, [3]int{ii, jj, kk})
			count++
		})
		assert.Equal(t, b.NumPts(), count)
		tiles := box2D(0, 0, 9, 6).Tiles(IntVect{4, 4, 4})
		require.Len(t, tiles, 6)
		var n int
		for _, tl := range tiles {
			n += tl.NumPts()
		}
		assert.Equal(t, 70, n)
	}
}

func TestBoxArray(t *testing.T) {
	{ // The ring around a box is the grown box minus the box
		ba := NewBoxArray(box2D(4, 4, 7, 7))
		domain := box2D(0, 0, 15, 15)
		region := ba.Get(0).Grow(1).Intersect(domain)
		ring := ba.ComplementIn(region)
		var n int
		for _, b := range ring {
			assert.False(t, ba.Intersects(b))
			n += b.NumPts()
		}
		assert.Equal(t, 36-16, n)
		assert.LessOrEqual(t, len(ring), 4)
	}
	{ // Two touching boxes leave only the outer ring
		ba := NewBoxArray(box2D(0, 0, 3, 3), box2D(4, 0, 7, 3))
		ring := ba.ComplementIn(ba.Get(0).Grow(1).Intersect(box2D(-10, -10, 10, 10)))
		var n int
		for _, b := range ring {
			n += b.NumPts()
		}
		assert.Equal(t, 36-16-4, n)
		isects := ba.Intersections(box2D(3, 1, 4, 1))
		require.Len(t, isects, 2)
		assert.Equal(t, 0, isects[0].Index)
		assert.Equal(t, box2D(4, 1, 4, 1), isects[1].Box)
	}
	{
		ba := NewBoxArrayFromDomain(box2D(0, 0, 31, 15), IntVect{16, 16, 16})
		assert.Equal(t, 2, ba.Size())
		assert.Equal(t, box2D(0, 0, 31, 15), ba.MinimalBox())
		assert.True(t, ba.CoarsenableBy(IntVect{4, 4, 1}))
		assert.Equal(t, box2D(0, 0, 3, 3), ba.Coarsen(IntVect{4, 4, 1}).Get(0))
	}
	{
		assert.Equal(t, []Box{box2D(0, 0, 5, 1)},
			Simplify([]Box{box2D(0, 0, 1, 1), box2D(4, 0, 5, 1), box2D(2, 0, 3, 1)}))
	}
}

func TestDistributionAndGeometry(t *testing.T) {
	dm := RoundRobin(5, 2)
	assert.Equal(t, []int{0, 2, 4}, dm.LocalIndices(0))
	assert.Equal(t, []int{1, 3}, dm.LocalIndices(1))
	assert.Equal(t, 1, dm.Owner(3))

	g := NewGeometry(box2D(0, 0, 7, 3), [3]float64{0, 0, 0}, [3]float64{1, 0.5, 1}, [3]bool{true, false, false})
	assert.InDelta(t, 0.125, g.Dx[0], 1e-15)
	assert.InDelta(t, 0.125, g.Dx[1], 1e-15)
	assert.Equal(t, 8, g.Period(0))
	assert.Equal(t, 0, g.Period(1))
	assert.Equal(t, []IntVect{{0, 0, 0}, {-8, 0, 0}, {8, 0, 0}}, g.PeriodicShifts())
	assert.Equal(t, box2D(-1, 0, 8, 3), g.GrowPeriodic(1))
	f := g.Refine(IntVect{2, 2, 1})
	assert.Equal(t, box2D(0, 0, 15, 7), f.Domain)
	assert.InDelta(t, 0.0625, f.Dx[0], 1e-15)
	assert.False(t, g.NonPeriodic().IsAnyPeriodic())
}

func TestGeometryCells(t *testing.T) {
	g := NewGeometry(box2D(0, 0, 3, 3), [3]float64{-1, 0, 0}, [3]float64{1, 2, 1}, [3]bool{true, false, false})
	c := g.CellCenter(IntVect{1, 2, 0})
	assert.InDelta(t, -0.25, c[0], 1e-15)
	assert.InDelta(t, 1.25, c[1], 1e-15)
	assert.True(t, g.InsideNonPeriodic(IntVect{-1, 0, 0}))
	assert.False(t, g.InsideNonPeriodic(IntVect{0, 4, 0}))
	assert.False(t, g.InsideNonPeriodic(IntVect{0, 0, 1}))
	assert.True(t, g.Is2D())
	cg := g.Refine(IntVect{2, 2, 1}).Coarsen(IntVect{2, 2, 1})
	assert.Equal(t, g.Domain, cg.Domain)
	assert.InDelta(t, g.Dx[0], cg.Dx[0], 1e-15)
}
