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

package heap

import (
	"container/heap"

	"golang.org/x/exp/constraints"
)

// TopK keeps the k best elements pushed into it. The order is given by less, where
// less(a, b) reports whether a ranks below b.
type TopK[T any] struct {
	_heap[T]
	k int
}

// NewTopK creates a bounded top k collector.
func NewTopK[T any](k int, less func(a, b T) bool) *TopK[T] {
	return &TopK[T]{_heap: _heap[T]{less: less}, k: k}
}

// Push pushes the element x onto the heap.
// The complexity is O(log k).
func (h *TopK[T]) Push(x T) {
	if h.k <= 0 {
		return
	}
	if h.Len() < h.k {
		heap.Push(&h._heap, x)
	} else if h.less(h.elems[0], x) {
		h.elems[0] = x
		heap.Fix(&h._heap, 0)
	}
}

// PopAll pops all elements, the best one first.
func (h *TopK[T]) PopAll() []T {
	elems := make([]T, h.Len())
	for i := len(elems) - 1; i >= 0; i-- {
		elems[i] = heap.Pop(&h._heap).(T)
	}
	return elems
}

type Elem[T any, W constraints.Ordered] struct {
	Value  T
	Weight W
}

// TopKFilter filters out top k items with maximum weights. Equal weights are ordered by
// ascending value.
type TopKFilter[T constraints.Ordered, W constraints.Ordered] struct {
	*TopK[Elem[T, W]]
}

// NewTopKFilter creates a top k filter.
func NewTopKFilter[T constraints.Ordered, W constraints.Ordered](k int) *TopKFilter[T, W] {
	return &TopKFilter[T, W]{NewTopK(k, func(a, b Elem[T, W]) bool {
		if a.Weight != b.Weight {
			return a.Weight < b.Weight
		}
		return a.Value > b.Value
	})}
}

// Push adds an item with its weight.
func (filter *TopKFilter[T, W]) Push(item T, weight W) {
	filter.TopK.Push(Elem[T, W]{Value: item, Weight: weight})
}

// PopAllValues pops all items in decreasing order of weight.
func (filter *TopKFilter[T, W]) PopAllValues() []T {
	elems := filter.PopAll()
	values := make([]T, len(elems))
	for i, e := range elems {
		values[i] = e.Value
	}
	return values
}

type _heap[T any] struct {
	elems []T
	less  func(a, b T) bool
}

func (h *_heap[T]) Len() int {
	return len(h.elems)
}

func (h *_heap[T]) Less(i, j int) bool {
	return h.less(h.elems[i], h.elems[j])
}

func (h *_heap[T]) Swap(i, j int) {
	h.elems[i], h.elems[j] = h.elems[j], h.elems[i]
}

func (h *_heap[T]) Push(x any) {
	h.elems = append(h.elems, x.(T))
}

func (h *_heap[T]) Pop() any {
	n := len(h.elems)
	x := h.elems[n-1]
	h.elems = h.elems[:n-1]
	return x
}
