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
	"math"
	"sort"

	"github.com/gorse-io/icf/common/heap"
	"github.com/gorse-io/icf/common/parallel"
	"github.com/gorse-io/icf/dataset"
	"github.com/juju/errors"
)

// Association scores the statement "users who rated Item also rated Related" by comparing
// the number of users who rated both items with the number expected if ratings were
// independent.
type Association struct {
	ItemId   string
	Related  string
	Actual   int
	Expected float64
	Score    float64
}

// Cooccurrence scores items co-rated with the given item and returns the n most related,
// or all of them if n is not positive. Rating values are ignored, which suits implicit
// feedback.
//
// For a user u of the item who rated m(u) other items, the chance of u having rated the
// related item r is 1 - (1 - p(r))^m(u) where p(r) is the fraction of users who rated r.
// The expected count is the sum of these chances and
//
//	score = (actual - expected) * ln(actual + 0.1) / sqrt(expected)
func Cooccurrence(index *dataset.Index, item string, n int) []Association {
	totalUsers := float64(index.CountUsers())
	users := index.UsersOf(item)
	if len(users) == 0 {
		return nil
	}
	actual := make(map[string]int)
	interactions := make([]float64, 0, len(users))
	for user := range users {
		rated := index.ItemsOf(user)
		interactions = append(interactions, float64(len(rated)-1))
		for other := range rated {
			if other != item {
				actual[other]++
			}
		}
	}
	sort.Float64s(interactions)

	if n <= 0 || n > len(actual) {
		n = len(actual)
	}
	associations := make(map[string]Association, len(actual))
	filter := heap.NewTopKFilter[string, float64](n)
	for related, count := range actual {
		probability := float64(len(index.UsersOf(related))) / totalUsers
		expected := 0.0
		for _, others := range interactions {
			expected += 1 - math.Pow(1-probability, others)
		}
		score := 0.0
		if expected > 0 {
			score = (float64(count) - expected) * math.Log(float64(count)+0.1) / math.Sqrt(expected)
		}
		associations[related] = Association{
			ItemId:   item,
			Related:  related,
			Actual:   count,
			Expected: expected,
			Score:    score,
		}
		filter.Push(related, score)
	}
	result := make([]Association, 0, n)
	for _, related := range filter.PopAllValues() {
		result = append(result, associations[related])
	}
	return result
}

// Cooccurrences scores the n most related items of every item, splitting items across the
// workers of the engine. Items without co-rated items are absent from the result. The index
// must not change while scoring.
func (e *Engine) Cooccurrences(ctx context.Context, index *dataset.Index, n int) (map[string][]Association, error) {
	items := index.Items()
	results := make([][]Association, len(items))
	err := parallel.Parallel(ctx, len(items), e.numJobs, func(_, jobId int) error {
		results[jobId] = Cooccurrence(index, items[jobId], n)
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	associations := make(map[string][]Association, len(items))
	for i, item := range items {
		if len(results[i]) > 0 {
			associations[item] = results[i]
		}
	}
	return associations, nil
}
