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
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gorse-io/icf/base/log"
	"github.com/gorse-io/icf/common/heap"
	"github.com/juju/errors"
	"go.uber.org/zap"
)

// Ranker recommends the items with the highest predicted ratings.
type Ranker struct {
	predictor *Predictor
}

func NewRanker(predictor *Predictor) *Ranker {
	return &Ranker{predictor: predictor}
}

// Candidates returns unrated items that may be predicted for a user. Only neighbors of rated
// items qualify: any other item in the table has no rated neighbor and cannot be predicted.
func (r *Ranker) Candidates(user string) []string {
	rated := r.predictor.index.ItemsOf(user)
	selector := r.predictor.selector
	candidates := mapset.NewThreadUnsafeSet[string]()
	for item := range rated {
		for _, neighbor := range selector.table.Neighbors(item) {
			if neighbor.Similarity < selector.threshold {
				break
			}
			if _, exist := rated[neighbor.ItemId]; !exist {
				candidates.Add(neighbor.ItemId)
			}
		}
	}
	return candidates.ToSlice()
}

// Recommend returns up to n predictions for items the user has not rated, ordered by
// descending value, then descending confidence, then ascending item id. Items without
// enough data are skipped.
func (r *Ranker) Recommend(user string, n int) []Prediction {
	if n <= 0 {
		return nil
	}
	topK := heap.NewTopK(n, predictionLess)
	skipped := 0
	for _, item := range r.Candidates(user) {
		prediction, err := r.predictor.Predict(user, item)
		if errors.Is(err, ErrInsufficientData) {
			skipped++
			continue
		} else if err != nil {
			log.Logger().Error("failed to predict", zap.String("user_id", user), zap.String("item_id", item), zap.Error(err))
			continue
		}
		topK.Push(prediction)
	}
	predictions := topK.PopAll()
	log.Logger().Debug("rank candidates",
		zap.String("user_id", user),
		zap.Int("n_recommend", len(predictions)),
		zap.Int("n_skipped", skipped))
	return predictions
}

// predictionLess reports whether a ranks below b.
func predictionLess(a, b Prediction) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	if a.Confidence != b.Confidence {
		return a.Confidence < b.Confidence
	}
	return a.ItemId > b.ItemId
}
