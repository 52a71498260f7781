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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelResult = "result"

	ResultSuccess          = "success"
	ResultInsufficientData = "insufficient_data"
)

var (
	RebuildSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "icf",
		Subsystem: "engine",
		Name:      "rebuild_seconds",
	})
	RefreshSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "icf",
		Subsystem: "engine",
		Name:      "refresh_seconds",
		Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
	})
	SimilarityItems = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "icf",
		Subsystem: "engine",
		Name:      "similarity_items",
	})
	SimilarityEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "icf",
		Subsystem: "engine",
		Name:      "similarity_entries",
	})
	SnapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "icf",
		Subsystem: "engine",
		Name:      "snapshot_version",
	})
	RatingsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "icf",
		Subsystem: "engine",
		Name:      "ratings_total",
	})
	PredictionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "icf",
		Subsystem: "engine",
		Name:      "predictions_total",
	}, []string{LabelResult})
)
