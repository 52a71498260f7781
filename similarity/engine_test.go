// Copyright 2026 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package similarity

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/gorse-io/icf/config"
	"github.com/gorse-io/icf/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndex(ratings map[string]map[string]float64) *dataset.Index {
	index := dataset.NewIndex()
	for user, items := range ratings {
		for item, value := range items {
			index.Upsert(user, item, value)
		}
	}
	return index
}

func randomIndex(seed uint64, nUsers, nItems, nRatings int) *dataset.Index {
	rng := rand.New(rand.NewPCG(seed, seed))
	index := dataset.NewIndex()
	for i := 0; i < nRatings; i++ {
		user := fmt.Sprintf("u%d", rng.IntN(nUsers))
		item := fmt.Sprintf("i%d", rng.IntN(nItems))
		index.Upsert(user, item, float64(1+rng.IntN(5)))
	}
	return index
}

func newTestEngine(t *testing.T, minCoRaters int) *Engine {
	engine, err := NewEngine(minCoRaters, 4)
	require.NoError(t, err)
	return engine
}

func TestNewEngine(t *testing.T) {
	_, err := NewEngine(0, 1)
	assert.True(t, errors.Is(err, config.ErrConfiguration))
	_, err = NewEngine(1, 0)
	assert.True(t, errors.Is(err, config.ErrConfiguration))
	engine, err := NewEngine(3, 1)
	assert.NoError(t, err)
	assert.Equal(t, 3, engine.MinCoRaters())
}

func TestComputePerfectCorrelation(t *testing.T) {
	index := newIndex(map[string]map[string]float64{
		"U1": {"A": 5, "B": 5},
		"U2": {"A": 3, "B": 3},
		"U3": {"A": 1, "B": 1},
	})
	engine := newTestEngine(t, 1)
	entry := engine.Compute(index, "A", "B")
	require.NotNil(t, entry)
	assert.InDelta(t, 1.0, entry.Similarity, 1e-12)
	assert.Equal(t, 3, entry.CoRaters)
	assert.Equal(t, "A", entry.ItemA)
	assert.Equal(t, "B", entry.ItemB)
	// symmetric
	assert.Equal(t, entry, engine.Compute(index, "B", "A"))
	// never compared with itself
	assert.Nil(t, engine.Compute(index, "A", "A"))
}

func TestComputeNegativeCorrelation(t *testing.T) {
	index := newIndex(map[string]map[string]float64{
		"U1": {"A": 5, "B": 1},
		"U2": {"A": 1, "B": 5},
	})
	entry := newTestEngine(t, 1).Compute(index, "A", "B")
	require.NotNil(t, entry)
	assert.InDelta(t, -1.0, entry.Similarity, 1e-12)
}

func TestComputeExtremeRatings(t *testing.T) {
	index := newIndex(map[string]map[string]float64{
		"U1": {"A": 1e300, "B": 1e300, "C": -1e300},
		"U2": {"A": -1e300, "B": -1e300, "C": 1e300},
	})
	engine := newTestEngine(t, 1)
	entry := engine.Compute(index, "A", "B")
	require.NotNil(t, entry)
	assert.False(t, math.IsNaN(entry.Similarity))
	assert.InDelta(t, 1.0, entry.Similarity, 1e-12)
	entry = engine.Compute(index, "A", "C")
	require.NotNil(t, entry)
	assert.InDelta(t, -1.0, entry.Similarity, 1e-12)

	// the sum of ratings overflows, so the mean is infinite
	index = newIndex(map[string]map[string]float64{
		"U1": {"A": math.MaxFloat64, "B": 1},
		"U2": {"A": math.MaxFloat64, "B": 2},
	})
	entry = engine.Compute(index, "A", "B")
	require.NotNil(t, entry)
	assert.Zero(t, entry.Similarity)

	table, err := engine.Rebuild(context.Background(), index.Freeze(), 1)
	require.NoError(t, err)
	for _, e := range table.Entries() {
		assert.False(t, math.IsNaN(e.Similarity))
	}
}

func TestComputeNoCoRaters(t *testing.T) {
	index := newIndex(map[string]map[string]float64{
		"U1": {"A": 5, "B": 4},
		"U2": {"A": 3},
		"U4": {"C": 2},
	})
	engine := newTestEngine(t, 1)
	assert.Nil(t, engine.Compute(index, "C", "A"))
	assert.Nil(t, engine.Compute(index, "C", "B"))
	assert.Nil(t, engine.Compute(index, "C", "unknown"))
	assert.Nil(t, engine.Compute(index, "unknown", "A"))
}

func TestComputeZeroNorm(t *testing.T) {
	// a single co-rater centers to zero on the uniform item
	index := newIndex(map[string]map[string]float64{
		"U1": {"A": 5, "B": 2},
		"U2": {"A": 3, "B": 2},
		"U3": {"A": 1},
	})
	entry := newTestEngine(t, 1).Compute(index, "A", "B")
	require.NotNil(t, entry)
	assert.Zero(t, entry.Similarity)
	assert.Equal(t, 2, entry.CoRaters)
}

func TestComputeMinCoRaters(t *testing.T) {
	index := newIndex(map[string]map[string]float64{
		"U1": {"A": 5, "B": 4},
		"U2": {"A": 3, "B": 1},
		"U3": {"A": 1, "C": 1},
		"U4": {"A": 2, "C": 5},
		"U5": {"C": 3},
	})
	engine := newTestEngine(t, 3)
	assert.Nil(t, engine.Compute(index, "A", "B"))
	engine = newTestEngine(t, 2)
	assert.NotNil(t, engine.Compute(index, "A", "B"))
	assert.NotNil(t, engine.Compute(index, "A", "C"))
}

func TestRebuild(t *testing.T) {
	index := randomIndex(1, 50, 40, 600).Freeze()
	engine := newTestEngine(t, 1)
	table, err := engine.Rebuild(context.Background(), index, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), table.Version())
	assert.NotZero(t, table.CountEntries())

	// brute force over all pairs
	items := index.Items()
	count := 0
	for i, a := range items {
		assert.Empty(t, lo.Filter(table.Neighbors(a), func(n Neighbor, _ int) bool { return n.ItemId == a }))
		for _, b := range items[i+1:] {
			expected := engine.Compute(index, a, b)
			ab, okAB := table.Similarity(a, b)
			ba, okBA := table.Similarity(b, a)
			assert.Equal(t, okAB, okBA)
			assert.Equal(t, ab, ba)
			if expected == nil {
				assert.False(t, okAB)
			} else {
				count++
				assert.True(t, okAB)
				assert.Equal(t, expected.Similarity, ab)
				assert.GreaterOrEqual(t, ab, -1.0)
				assert.LessOrEqual(t, ab, 1.0)
			}
		}
		// sorted by descending similarity then ascending id
		neighbors := table.Neighbors(a)
		for j := 1; j < len(neighbors); j++ {
			assert.False(t, neighborLess(neighbors[j], neighbors[j-1]))
		}
	}
	assert.Equal(t, count, table.CountEntries())
	assert.Len(t, table.Entries(), count)

	// deterministic
	other, err := newTestEngine(t, 1).Rebuild(context.Background(), randomIndex(1, 50, 40, 600).Freeze(), 8)
	require.NoError(t, err)
	assert.Equal(t, table.Entries(), other.Entries())
}

func TestRebuildMinCoRaters(t *testing.T) {
	index := randomIndex(2, 30, 20, 200).Freeze()
	table, err := newTestEngine(t, 3).Rebuild(context.Background(), index, 1)
	require.NoError(t, err)
	for _, entry := range table.Entries() {
		assert.GreaterOrEqual(t, entry.CoRaters, 3)
	}
}

func TestRebuildCancel(t *testing.T) {
	index := randomIndex(3, 50, 40, 600).Freeze()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	table, err := newTestEngine(t, 1).Rebuild(ctx, index, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, table)
}

func TestRebuildEmpty(t *testing.T) {
	table, err := newTestEngine(t, 1).Rebuild(context.Background(), dataset.NewIndex().Freeze(), 1)
	require.NoError(t, err)
	assert.Zero(t, table.CountItems())
	assert.Zero(t, table.CountEntries())
	assert.Empty(t, table.Entries())
}

func TestRefresh(t *testing.T) {
	index := randomIndex(4, 40, 30, 400)
	engine := newTestEngine(t, 2)
	table, err := engine.Rebuild(context.Background(), index.Freeze(), 1)
	require.NoError(t, err)
	before := table.Entries()

	rng := rand.New(rand.NewPCG(5, 5))
	for step := 0; step < 50; step++ {
		user := fmt.Sprintf("u%d", rng.IntN(40))
		item := fmt.Sprintf("i%d", rng.IntN(30))
		if rng.IntN(3) == 0 {
			index.Remove(user, item)
		} else {
			index.Upsert(user, item, float64(1+rng.IntN(5)))
		}
		table = engine.Refresh(index, table, item, uint64(step+2))
		assert.Equal(t, uint64(step+2), table.Version())
	}
	expected, err := engine.Rebuild(context.Background(), index.Freeze(), 100)
	require.NoError(t, err)
	assert.Equal(t, expected.Entries(), table.Entries())
	assert.Equal(t, expected.CountEntries(), table.CountEntries())
	assert.Equal(t, expected.Items(), table.Items())
	for _, item := range expected.Items() {
		assert.Equal(t, expected.Neighbors(item), table.Neighbors(item))
	}
	assert.NotEqual(t, before, table.Entries())
}

func TestRefreshKeepsOldTable(t *testing.T) {
	index := newIndex(map[string]map[string]float64{
		"U1": {"A": 5, "B": 5, "C": 1},
		"U2": {"A": 3, "B": 3, "C": 3},
		"U3": {"A": 1, "B": 1, "C": 5},
	})
	engine := newTestEngine(t, 1)
	table, err := engine.Rebuild(context.Background(), index.Freeze(), 1)
	require.NoError(t, err)
	neighbors := table.Neighbors("B")
	require.Len(t, neighbors, 2)
	assert.Equal(t, "A", neighbors[0].ItemId)
	assert.InDelta(t, 1, neighbors[0].Similarity, 1e-12)
	assert.Equal(t, "C", neighbors[1].ItemId)
	assert.InDelta(t, -1, neighbors[1].Similarity, 1e-12)

	index.Remove("U1", "C")
	index.Remove("U2", "C")
	index.Remove("U3", "C")
	refreshed := engine.Refresh(index, table, "C", 2)
	assert.False(t, refreshed.Contains("C"))
	assert.Equal(t, neighbors[:1], refreshed.Neighbors("B"))
	assert.Equal(t, 1, refreshed.CountEntries())
	// the previous version is unchanged
	assert.True(t, table.Contains("C"))
	assert.Len(t, table.Neighbors("B"), 2)
	assert.Equal(t, 3, table.CountEntries())
}

func TestRefreshItems(t *testing.T) {
	index := randomIndex(6, 40, 30, 400)
	engine := newTestEngine(t, 1)
	table, err := engine.Rebuild(context.Background(), index.Freeze(), 1)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(7, 7))
	changed := make(map[string]struct{})
	for step := 0; step < 30; step++ {
		user := fmt.Sprintf("u%d", rng.IntN(40))
		item := fmt.Sprintf("i%d", rng.IntN(30))
		if rng.IntN(3) == 0 {
			if index.Remove(user, item) {
				changed[item] = struct{}{}
			}
		} else if index.Upsert(user, item, float64(1+rng.IntN(5))) {
			changed[item] = struct{}{}
		}
	}
	items := lo.Keys(changed)
	require.Greater(t, len(items), 1)

	batch := engine.RefreshItems(index, table, items, 2)
	assert.Equal(t, uint64(2), batch.Version())
	assert.Equal(t, uint64(1), table.Version())
	sequential := table
	for _, item := range items {
		sequential = engine.Refresh(index, sequential, item, 2)
	}
	assert.Equal(t, sequential.Entries(), batch.Entries())
	expected, err := engine.Rebuild(context.Background(), index.Freeze(), 2)
	require.NoError(t, err)
	assert.Equal(t, expected.Entries(), batch.Entries())
	assert.Equal(t, expected.CountEntries(), batch.CountEntries())
	for _, item := range expected.Items() {
		assert.Equal(t, expected.Neighbors(item), batch.Neighbors(item))
	}
}
