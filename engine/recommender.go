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

package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gorse-io/icf/base/log"
	"github.com/gorse-io/icf/config"
	"github.com/gorse-io/icf/dataset"
	"github.com/gorse-io/icf/logics"
	"github.com/gorse-io/icf/similarity"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Snapshot is an immutable state of ratings and similarities. All reads of one request
// should go through the same snapshot.
type Snapshot struct {
	version   uint64
	topN      int
	index     *dataset.Index
	table     *similarity.Table
	selector  *logics.Selector
	predictor *logics.Predictor
	ranker    *logics.Ranker
}

func newSnapshot(cfg *config.Config, version uint64, index *dataset.Index, table *similarity.Table) (*Snapshot, error) {
	selector, err := logics.NewSelector(table, cfg.Neighborhood.Threshold)
	if err != nil {
		return nil, errors.Trace(err)
	}
	predictor, err := logics.NewPredictor(index, selector, cfg.Neighborhood.Size)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Snapshot{
		version:   version,
		topN:      cfg.Recommend.TopN,
		index:     index,
		table:     table,
		selector:  selector,
		predictor: predictor,
		ranker:    logics.NewRanker(predictor),
	}, nil
}

func (s *Snapshot) Version() uint64 {
	return s.version
}

// Index returns the frozen rating index.
func (s *Snapshot) Index() *dataset.Index {
	return s.index
}

func (s *Snapshot) Table() *similarity.Table {
	return s.table
}

// Neighbors returns up to k most similar items above the similarity threshold.
func (s *Snapshot) Neighbors(item string, k int) []similarity.Neighbor {
	return s.selector.TopK(item, k, nil)
}

// Predict estimates the rating of user on item. It fails with logics.ErrInsufficientData
// when there is no usable neighbor.
func (s *Snapshot) Predict(user, item string) (logics.Prediction, error) {
	prediction, err := s.predictor.Predict(user, item)
	if err != nil {
		if errors.Is(err, logics.ErrInsufficientData) {
			PredictionsTotal.WithLabelValues(ResultInsufficientData).Inc()
		}
		return logics.Prediction{}, errors.Trace(err)
	}
	PredictionsTotal.WithLabelValues(ResultSuccess).Inc()
	return prediction, nil
}

// Recommend returns up to n items for user. A non-positive n means the configured top-N.
func (s *Snapshot) Recommend(user string, n int) []logics.Prediction {
	if n <= 0 {
		n = s.topN
	}
	return s.ranker.Recommend(user, n)
}

// Related returns up to n items most often rated together with item, ignoring rating
// values. A non-positive n means the configured top-N.
func (s *Snapshot) Related(item string, n int) []similarity.Association {
	if n <= 0 {
		n = s.topN
	}
	return similarity.Cooccurrence(s.index, item, n)
}

// Recommender owns the ratings and the similarity table. Writes are serialized while reads
// go through snapshots published atomically after every write.
type Recommender struct {
	config *config.Config
	engine *similarity.Engine

	mu       sync.Mutex
	index    *dataset.Index
	table    *similarity.Table
	version  atomic.Uint64
	snapshot atomic.Pointer[Snapshot]
}

// NewRecommender creates an empty recommender. It fails with config.ErrConfiguration if
// the configuration is invalid.
func NewRecommender(cfg *config.Config) (*Recommender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	engine, err := similarity.NewEngine(cfg.Similarity.MinCoRaters, cfg.Similarity.NumJobs)
	if err != nil {
		return nil, errors.Trace(err)
	}
	r := &Recommender{
		config: cfg,
		engine: engine,
		index:  dataset.NewIndex(),
		table:  similarity.EmptyTable(),
	}
	if err = r.publish(); err != nil {
		return nil, errors.Trace(err)
	}
	return r, nil
}

// Snapshot returns the latest published state. It never blocks.
func (r *Recommender) Snapshot() *Snapshot {
	return r.snapshot.Load()
}

// Upsert inserts or overwrites ratings. Invalid ratings are rejected before anything is
// written. If refreshing on write is enabled, similarities of changed items are recomputed
// before the new snapshot is published.
func (r *Recommender) Upsert(ratings ...dataset.Rating) error {
	for _, rating := range ratings {
		if err := rating.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := make(map[string]struct{})
	for _, rating := range ratings {
		if r.index.Upsert(rating.UserId, rating.ItemId, rating.Value) {
			changed[rating.ItemId] = struct{}{}
		}
	}
	if len(changed) == 0 {
		return nil
	}
	r.refresh(lo.Keys(changed))
	return r.publish()
}

// Remove deletes the rating of user on item. It returns false if there is no such rating.
func (r *Recommender) Remove(user, item string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.index.Remove(user, item) {
		return false, nil
	}
	r.refresh([]string{item})
	return true, r.publish()
}

// Load inserts ratings in bulk and rebuilds the similarity table once, without refreshing
// items one by one. If the rebuild fails, the ratings are published with the previous table.
func (r *Recommender) Load(ctx context.Context, ratings ...dataset.Rating) error {
	for _, rating := range ratings {
		if err := rating.Validate(); err != nil {
			return errors.Trace(err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rating := range ratings {
		r.index.Upsert(rating.UserId, rating.ItemId, rating.Value)
	}
	if err := r.rebuild(ctx); err != nil {
		if publishErr := r.publish(); publishErr != nil {
			log.Logger().Error("failed to publish snapshot", zap.Error(publishErr))
		}
		return errors.Trace(err)
	}
	return nil
}

// Rebuild recomputes the whole similarity table and swaps it in. Writes wait until the
// rebuild completes. On cancellation the previous table stays in use.
func (r *Recommender) Rebuild(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuild(ctx)
}

// RelatedAll scores the n most related items of every item in the latest snapshot. A
// non-positive n means the configured top-N.
func (r *Recommender) RelatedAll(ctx context.Context, n int) (map[string][]similarity.Association, error) {
	if n <= 0 {
		n = r.config.Recommend.TopN
	}
	return r.engine.Cooccurrences(ctx, r.Snapshot().Index(), n)
}

func (r *Recommender) rebuild(ctx context.Context) error {
	start := time.Now()
	view := r.index.Freeze()
	table, err := r.engine.Rebuild(ctx, view, r.version.Load()+1)
	if err != nil {
		return errors.Trace(err)
	}
	RebuildSeconds.Set(time.Since(start).Seconds())
	r.table = table
	return r.publishView(view)
}

func (r *Recommender) refresh(items []string) {
	if !r.config.Similarity.RefreshOnWrite {
		return
	}
	sort.Strings(items)
	start := time.Now()
	r.table = r.engine.RefreshItems(r.index, r.table, items, r.version.Load()+1)
	RefreshSeconds.Observe(time.Since(start).Seconds())
}

// publish must be called with mu held.
func (r *Recommender) publish() error {
	return r.publishView(r.index.Freeze())
}

func (r *Recommender) publishView(view *dataset.Index) error {
	version := r.version.Load() + 1
	snapshot, err := newSnapshot(r.config, version, view, r.table)
	if err != nil {
		return errors.Trace(err)
	}
	r.snapshot.Store(snapshot)
	r.version.Store(version)
	SnapshotVersion.Set(float64(version))
	SimilarityItems.Set(float64(r.table.CountItems()))
	SimilarityEntries.Set(float64(r.table.CountEntries()))
	RatingsTotal.Set(float64(snapshot.index.Count()))
	log.Logger().Debug("publish snapshot",
		zap.Uint64("version", version),
		zap.Uint64("table_version", r.table.Version()),
		zap.Int("n_ratings", snapshot.index.Count()))
	return nil
}
