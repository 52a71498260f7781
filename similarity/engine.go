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
	"maps"
	"math"
	"sort"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/icf/base/log"
	"github.com/gorse-io/icf/common/parallel"
	"github.com/gorse-io/icf/config"
	"github.com/gorse-io/icf/dataset"
	"github.com/juju/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Engine computes adjusted cosine similarities between items. Ratings are centered by
// the mean of their item before the cosine is taken over co-raters.
type Engine struct {
	minCoRaters int
	numJobs     int
}

// NewEngine creates a similarity engine. Pairs with fewer than minCoRaters co-raters are
// not stored. Rebuilding runs on numJobs workers.
func NewEngine(minCoRaters, numJobs int) (*Engine, error) {
	if minCoRaters < 1 {
		return nil, errors.Annotatef(config.ErrConfiguration, "min co-raters must be positive, got %d", minCoRaters)
	}
	if numJobs < 1 {
		return nil, errors.Annotatef(config.ErrConfiguration, "number of jobs must be positive, got %d", numJobs)
	}
	return &Engine{minCoRaters: minCoRaters, numJobs: numJobs}, nil
}

func (e *Engine) MinCoRaters() int {
	return e.minCoRaters
}

// Compute returns the similarity between two items or nil if they are not comparable:
// the same item, too few co-raters or an item without ratings.
func (e *Engine) Compute(index *dataset.Index, a, b string) *Entry {
	if a == b {
		return nil
	}
	meanA, err := index.MeanOf(a)
	if err != nil {
		return nil
	}
	meanB, err := index.MeanOf(b)
	if err != nil {
		return nil
	}
	return e.compute(index, a, b, meanA, meanB)
}

func (e *Engine) compute(index *dataset.Index, a, b string, meanA, meanB float64) *Entry {
	usersA, usersB := index.UsersOf(a), index.UsersOf(b)
	coRaters := intersect(usersA, usersB)
	if len(coRaters) == 0 || len(coRaters) < e.minCoRaters {
		return nil
	}
	centeredA := make([]float64, len(coRaters))
	centeredB := make([]float64, len(coRaters))
	for i, user := range coRaters {
		centeredA[i] = usersA[user] - meanA
		centeredB[i] = usersB[user] - meanB
	}
	similarity := 0.0
	normA, normB := floats.Norm(centeredA, 2), floats.Norm(centeredB, 2)
	if normA != 0 && normB != 0 {
		// scale to unit vectors first so that large ratings cannot overflow the dot product
		floats.Scale(1/normA, centeredA)
		floats.Scale(1/normB, centeredB)
		similarity = floats.Dot(centeredA, centeredB)
		if math.IsNaN(similarity) {
			similarity = 0
		}
		similarity = math.Max(-1, math.Min(1, similarity))
	}
	if a > b {
		a, b = b, a
	}
	return &Entry{ItemA: a, ItemB: b, Similarity: similarity, CoRaters: len(coRaters)}
}

// Rebuild computes the similarity table of all items. Candidate pairs are found through
// users shared by items, so the cost grows with co-occurrences rather than the square of
// items. The index should be frozen by the caller. Rebuild stops between pairs once ctx is
// done and returns ctx.Err() without a table.
func (e *Engine) Rebuild(ctx context.Context, index *dataset.Index, version uint64) (*Table, error) {
	start := time.Now()
	items := index.Items()
	means := make(map[string]float64, len(items))
	for _, item := range items {
		mean, err := index.MeanOf(item)
		if err != nil {
			return nil, errors.Trace(err)
		}
		means[item] = mean
	}
	log.Logger().Info("start rebuilding similarity table",
		zap.Uint64("version", version),
		zap.Int("n_items", len(items)),
		zap.Int("n_users", index.CountUsers()),
		zap.Int("n_ratings", index.Count()),
		zap.Int("n_jobs", e.numJobs))
	results := make([][]Entry, len(items))
	err := parallel.Parallel(ctx, len(items), e.numJobs, func(_, jobId int) error {
		item := items[jobId]
		for _, candidate := range coRatedItems(index, item, true) {
			if err := ctx.Err(); err != nil {
				return err
			}
			if entry := e.compute(index, item, candidate, means[item], means[candidate]); entry != nil {
				results[jobId] = append(results[jobId], *entry)
			}
		}
		return nil
	})
	if err != nil {
		log.Logger().Warn("rebuilding similarity table aborted", zap.Uint64("version", version), zap.Error(err))
		return nil, errors.Trace(err)
	}
	var entries []Entry
	for _, result := range results {
		entries = append(entries, result...)
	}
	table := NewTable(version, entries)
	log.Logger().Info("complete rebuilding similarity table",
		zap.Uint64("version", version),
		zap.Int("n_entries", table.CountEntries()),
		zap.Duration("elapsed", time.Since(start)))
	return table, nil
}

// Refresh recomputes the entries involving one item and returns them in a new table. The
// neighbor list of the item is sorted again and its entry is patched into the lists of
// its old and new neighbors. The given table is left untouched.
func (e *Engine) Refresh(index *dataset.Index, table *Table, item string, version uint64) *Table {
	return e.RefreshItems(index, table, []string{item}, version)
}

// RefreshItems is Refresh for a batch of items. All items are patched into a single new
// table version.
func (e *Engine) RefreshItems(index *dataset.Index, table *Table, items []string, version uint64) *Table {
	neighbors := maps.Clone(table.neighbors)
	entries := table.entries
	for _, item := range items {
		entries += e.refresh(index, neighbors, item)
	}
	return &Table{
		version:   version,
		neighbors: neighbors,
		entries:   entries,
	}
}

// refresh patches the entries of item into neighbors, a map owned by the caller whose lists
// may be shared with other tables. Lists are replaced, never modified. It returns the change
// in the number of entries.
func (e *Engine) refresh(index *dataset.Index, neighbors map[string][]Neighbor, item string) int {
	oldList := neighbors[item]
	candidates := mapset.NewThreadUnsafeSet(coRatedItems(index, item, false)...)
	for _, neighbor := range oldList {
		candidates.Add(neighbor.ItemId)
	}

	var newList []Neighbor
	for _, candidate := range candidates.ToSlice() {
		if entry := e.Compute(index, item, candidate); entry != nil {
			newList = append(newList, Neighbor{ItemId: candidate, Similarity: entry.Similarity, CoRaters: entry.CoRaters})
		}
	}
	sort.Slice(newList, func(i, j int) bool {
		return neighborLess(newList[i], newList[j])
	})
	updates := make(map[string]Neighbor, len(newList))
	for _, neighbor := range newList {
		updates[neighbor.ItemId] = Neighbor{ItemId: item, Similarity: neighbor.Similarity, CoRaters: neighbor.CoRaters}
	}

	if len(newList) > 0 {
		neighbors[item] = newList
	} else {
		delete(neighbors, item)
	}
	for _, candidate := range candidates.ToSlice() {
		list := withoutItem(neighbors[candidate], item)
		if update, exist := updates[candidate]; exist {
			list = insertNeighbor(list, update)
		}
		if len(list) > 0 {
			neighbors[candidate] = list
		} else {
			delete(neighbors, candidate)
		}
	}
	return len(newList) - len(oldList)
}

// coRatedItems returns items sharing at least one rater with the given item. If greater is
// set, only items ordered after the given item are returned so that each pair is visited once.
func coRatedItems(index *dataset.Index, item string, greater bool) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for user := range index.UsersOf(item) {
		for other := range index.ItemsOf(user) {
			if other != item && (!greater || other > item) {
				set.Add(other)
			}
		}
	}
	candidates := set.ToSlice()
	sort.Strings(candidates)
	return candidates
}

// intersect returns the sorted keys present in both maps.
func intersect(a, b map[string]float64) []string {
	if len(a) > len(b) {
		a, b = b, a
	}
	var keys []string
	for key := range a {
		if _, exist := b[key]; exist {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// withoutItem copies a neighbor list without one item.
func withoutItem(list []Neighbor, item string) []Neighbor {
	result := make([]Neighbor, 0, len(list)+1)
	for _, neighbor := range list {
		if neighbor.ItemId != item {
			result = append(result, neighbor)
		}
	}
	return result
}

// insertNeighbor inserts into a sorted list owned by the caller.
func insertNeighbor(list []Neighbor, neighbor Neighbor) []Neighbor {
	i := sort.Search(len(list), func(i int) bool {
		return !neighborLess(list[i], neighbor)
	})
	list = append(list, Neighbor{})
	copy(list[i+1:], list[i:])
	list[i] = neighbor
	return list
}
