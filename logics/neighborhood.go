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

package logics

import (
	"math"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/icf/config"
	"github.com/gorse-io/icf/similarity"
	"github.com/juju/errors"
)

// Selector picks the most similar neighbors of an item from a similarity table.
type Selector struct {
	table     *similarity.Table
	threshold float64
}

// NewSelector creates a selector ignoring neighbors whose similarity is below threshold.
func NewSelector(table *similarity.Table, threshold float64) (*Selector, error) {
	if table == nil {
		return nil, errors.Annotate(config.ErrConfiguration, "similarity table is nil")
	}
	if math.IsNaN(threshold) || threshold < -1 || threshold > 1 {
		return nil, errors.Annotatef(config.ErrConfiguration, "similarity threshold must be in [-1, 1], got %v", threshold)
	}
	return &Selector{table: table, threshold: threshold}, nil
}

func (s *Selector) Table() *similarity.Table {
	return s.table
}

// TopK returns up to k neighbors of item with the highest similarities, skipping items in
// exclude. Equal similarities are ordered by ascending item id.
func (s *Selector) TopK(item string, k int, exclude mapset.Set[string]) []similarity.Neighbor {
	return s.topK(item, k, func(neighbor string) bool {
		return exclude == nil || !exclude.Contains(neighbor)
	})
}

// TopKWithin is TopK restricted to neighbors that are keys of include.
func (s *Selector) TopKWithin(item string, k int, include map[string]float64) []similarity.Neighbor {
	return s.topK(item, k, func(neighbor string) bool {
		_, exist := include[neighbor]
		return exist
	})
}

func (s *Selector) topK(item string, k int, accept func(string) bool) []similarity.Neighbor {
	if k <= 0 {
		return nil
	}
	var result []similarity.Neighbor
	// neighbor lists are sorted, so the walk stops at the first similarity below threshold
	for _, neighbor := range s.table.Neighbors(item) {
		if neighbor.Similarity < s.threshold {
			break
		}
		if accept(neighbor.ItemId) {
			result = append(result, neighbor)
			if len(result) == k {
				break
			}
		}
	}
	return result
}
