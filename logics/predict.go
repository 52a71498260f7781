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

	"github.com/gorse-io/icf/config"
	"github.com/gorse-io/icf/dataset"
	"github.com/juju/errors"
)

// ErrInsufficientData means there is no usable neighborhood to predict from. It differs
// from a low predicted value.
const ErrInsufficientData = errors.ConstError("insufficient data")

// Prediction is the estimated rating of a user on an item. Confidence is the number of
// neighbors used.
type Prediction struct {
	UserId     string
	ItemId     string
	Value      float64
	Confidence int
}

// Predictor estimates ratings by the similarity weighted sum of ratings on neighbors.
type Predictor struct {
	index    *dataset.Index
	selector *Selector
	k        int
}

// NewPredictor creates a predictor using up to k neighbors.
func NewPredictor(index *dataset.Index, selector *Selector, k int) (*Predictor, error) {
	if index == nil || selector == nil {
		return nil, errors.Annotate(config.ErrConfiguration, "index and selector are required")
	}
	if k < 1 {
		return nil, errors.Annotatef(config.ErrConfiguration, "neighborhood size must be positive, got %d", k)
	}
	return &Predictor{index: index, selector: selector, k: k}, nil
}

// Predict estimates the rating of user on item from the k most similar items the user has
// rated:
//
//	value = Σ sim(item, n) * rating(user, n) / Σ |sim(item, n)|
//
// It fails with ErrInsufficientData if there is no such neighbor or all similarities are zero.
func (p *Predictor) Predict(user, item string) (Prediction, error) {
	rated := p.index.ItemsOf(user)
	neighbors := p.selector.TopKWithin(item, p.k, rated)
	if len(neighbors) == 0 {
		return Prediction{}, errors.Annotatef(ErrInsufficientData, "no rated neighbor of item %s for user %s", item, user)
	}
	var sum, weight float64
	for _, neighbor := range neighbors {
		sum += neighbor.Similarity * rated[neighbor.ItemId]
		weight += math.Abs(neighbor.Similarity)
	}
	if weight == 0 {
		return Prediction{}, errors.Annotatef(ErrInsufficientData, "zero similarities to item %s for user %s", item, user)
	}
	return Prediction{
		UserId:     user,
		ItemId:     item,
		Value:      sum / weight,
		Confidence: len(neighbors),
	}, nil
}
