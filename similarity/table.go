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
	"sort"

	"github.com/samber/lo"
)

// Entry is the similarity between two different items. ItemA is always less than ItemB.
type Entry struct {
	ItemA      string
	ItemB      string
	Similarity float64
	CoRaters   int
}

// Neighbor is an entry seen from one of its items.
type Neighbor struct {
	ItemId     string
	Similarity float64
	CoRaters   int
}

// neighborLess orders neighbors by descending similarity, then ascending item id.
func neighborLess(a, b Neighbor) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	return a.ItemId < b.ItemId
}

// Table maps each item to its neighbors ordered by descending similarity. A table is never
// modified after creation: rebuilding or refreshing produces a new version.
type Table struct {
	version   uint64
	neighbors map[string][]Neighbor
	entries   int
}

// NewTable creates a table from entries of distinct unordered pairs.
func NewTable(version uint64, entries []Entry) *Table {
	neighbors := make(map[string][]Neighbor)
	for _, entry := range entries {
		neighbors[entry.ItemA] = append(neighbors[entry.ItemA], Neighbor{
			ItemId:     entry.ItemB,
			Similarity: entry.Similarity,
			CoRaters:   entry.CoRaters,
		})
		neighbors[entry.ItemB] = append(neighbors[entry.ItemB], Neighbor{
			ItemId:     entry.ItemA,
			Similarity: entry.Similarity,
			CoRaters:   entry.CoRaters,
		})
	}
	for _, list := range neighbors {
		sort.Slice(list, func(i, j int) bool {
			return neighborLess(list[i], list[j])
		})
	}
	return &Table{
		version:   version,
		neighbors: neighbors,
		entries:   len(entries),
	}
}

// EmptyTable creates a table without entries.
func EmptyTable() *Table {
	return &Table{neighbors: make(map[string][]Neighbor)}
}

func (t *Table) Version() uint64 {
	return t.version
}

// Neighbors returns the neighbors of an item. The result must not be modified.
func (t *Table) Neighbors(item string) []Neighbor {
	return t.neighbors[item]
}

// Similarity returns the stored similarity between two items.
func (t *Table) Similarity(a, b string) (float64, bool) {
	// scan the shorter list
	list, target := t.neighbors[a], b
	if other := t.neighbors[b]; len(other) < len(list) {
		list, target = other, a
	}
	for _, neighbor := range list {
		if neighbor.ItemId == target {
			return neighbor.Similarity, true
		}
	}
	return 0, false
}

// Items returns items with at least one entry in ascending order.
func (t *Table) Items() []string {
	items := lo.Keys(t.neighbors)
	sort.Strings(items)
	return items
}

// Contains reports whether an item has at least one entry.
func (t *Table) Contains(item string) bool {
	_, exist := t.neighbors[item]
	return exist
}

func (t *Table) CountItems() int {
	return len(t.neighbors)
}

// CountEntries returns the number of unordered pairs.
func (t *Table) CountEntries() int {
	return t.entries
}

// Entries returns all entries ordered by ItemA then ItemB.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, t.entries)
	for _, item := range t.Items() {
		for _, neighbor := range t.neighbors[item] {
			if item < neighbor.ItemId {
				entries = append(entries, Entry{
					ItemA:      item,
					ItemB:      neighbor.ItemId,
					Similarity: neighbor.Similarity,
					CoRaters:   neighbor.CoRaters,
				})
			}
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ItemA != entries[j].ItemA {
			return entries[i].ItemA < entries[j].ItemA
		}
		return entries[i].ItemB < entries[j].ItemB
	})
	return entries
}
