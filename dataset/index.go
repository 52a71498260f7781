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

package dataset

import (
	"maps"
	"math"
	"sort"
	"time"

	"github.com/juju/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// ErrEmptyItem is returned when the mean of an item without ratings is requested.
const ErrEmptyItem = errors.ConstError("item has no ratings")

// Rating is a value given by a user to an item.
type Rating struct {
	UserId    string
	ItemId    string
	Value     float64
	Timestamp time.Time
}

// Validate checks a rating at the ingestion boundary.
func (r Rating) Validate() error {
	if r.UserId == "" {
		return errors.NotValidf("empty user id")
	}
	if r.ItemId == "" {
		return errors.NotValidf("empty item id")
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return errors.NotValidf("rating %v of user %s on item %s", r.Value, r.UserId, r.ItemId)
	}
	return nil
}

var emptyRatings = map[string]float64{}

type row struct {
	gen     uint64
	ratings map[string]float64
	mean    float64
	stale   bool
}

func (r *row) clone(gen uint64) *row {
	return &row{
		gen:     gen,
		ratings: maps.Clone(r.ratings),
		mean:    r.mean,
		stale:   r.stale,
	}
}

// Index is the sparse rating matrix kept in two directions: item -> {user: rating} and
// user -> {item: rating}. Both directions always hold the same set of ratings.
//
// An Index is either writable or frozen. Freeze publishes an immutable view which shares
// rows with the writable index; a shared row is copied by the writer before it changes.
type Index struct {
	gen    uint64
	frozen bool
	items  map[string]*row
	users  map[string]*row
	stale  map[string]struct{}
	count  int
}

// NewIndex creates an empty writable index.
func NewIndex() *Index {
	return &Index{
		items: make(map[string]*row),
		users: make(map[string]*row),
		stale: make(map[string]struct{}),
	}
}

// Upsert inserts or overwrites the rating of user on item. It returns false if the same
// rating exists already or the value is NaN or infinite, in which case nothing changes.
func (idx *Index) Upsert(user, item string, value float64) bool {
	idx.checkWritable()
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return false
	}
	if r, exist := idx.items[item]; exist {
		if v, rated := r.ratings[user]; rated && v == value {
			return false
		}
	}
	itemRow := idx.writableRow(idx.items, item)
	if _, rated := itemRow.ratings[user]; !rated {
		idx.count++
	}
	itemRow.ratings[user] = value
	itemRow.stale = true
	idx.stale[item] = struct{}{}
	userRow := idx.writableRow(idx.users, user)
	userRow.ratings[item] = value
	return true
}

// Remove deletes the rating of user on item. It returns false if there is no such rating.
func (idx *Index) Remove(user, item string) bool {
	idx.checkWritable()
	r, exist := idx.items[item]
	if !exist {
		return false
	}
	if _, rated := r.ratings[user]; !rated {
		return false
	}
	itemRow := idx.writableRow(idx.items, item)
	delete(itemRow.ratings, user)
	if len(itemRow.ratings) == 0 {
		delete(idx.items, item)
		delete(idx.stale, item)
	} else {
		itemRow.stale = true
		idx.stale[item] = struct{}{}
	}
	userRow := idx.writableRow(idx.users, user)
	delete(userRow.ratings, item)
	if len(userRow.ratings) == 0 {
		delete(idx.users, user)
	}
	idx.count--
	return true
}

// UsersOf returns the ratings on an item keyed by user. The result must not be modified.
func (idx *Index) UsersOf(item string) map[string]float64 {
	if r, exist := idx.items[item]; exist {
		return r.ratings
	}
	return emptyRatings
}

// ItemsOf returns the ratings of a user keyed by item. The result must not be modified.
func (idx *Index) ItemsOf(user string) map[string]float64 {
	if r, exist := idx.users[user]; exist {
		return r.ratings
	}
	return emptyRatings
}

// Rating returns the rating of user on item.
func (idx *Index) Rating(user, item string) (float64, bool) {
	v, exist := idx.ItemsOf(user)[item]
	return v, exist
}

// MeanOf returns the average rating of an item. The mean overflows to infinity if the sum
// of ratings exceeds the float64 range.
func (idx *Index) MeanOf(item string) (float64, error) {
	r, exist := idx.items[item]
	if !exist || len(r.ratings) == 0 {
		return 0, errors.Annotatef(ErrEmptyItem, "item %s", item)
	}
	if !r.stale {
		return r.mean, nil
	}
	mean := meanOf(r.ratings)
	if !idx.frozen {
		// stale rows are always owned by the writer
		r.mean, r.stale = mean, false
		delete(idx.stale, item)
	}
	return mean, nil
}

// Freeze computes every stale mean and returns an immutable view of the current ratings.
// The index stays writable and its later changes are invisible to the view.
func (idx *Index) Freeze() *Index {
	if idx.frozen {
		return idx
	}
	for item := range idx.stale {
		r := idx.items[item]
		r.mean, r.stale = meanOf(r.ratings), false
	}
	clear(idx.stale)
	view := &Index{
		gen:    idx.gen,
		frozen: true,
		items:  idx.items,
		users:  idx.users,
		count:  idx.count,
	}
	idx.gen++
	idx.items = maps.Clone(idx.items)
	idx.users = maps.Clone(idx.users)
	return view
}

// Frozen reports whether the index is an immutable view.
func (idx *Index) Frozen() bool {
	return idx.frozen
}

// Items returns identifiers of rated items in ascending order.
func (idx *Index) Items() []string {
	items := lo.Keys(idx.items)
	sort.Strings(items)
	return items
}

// Users returns identifiers of users with ratings in ascending order.
func (idx *Index) Users() []string {
	users := lo.Keys(idx.users)
	sort.Strings(users)
	return users
}

func (idx *Index) CountItems() int {
	return len(idx.items)
}

func (idx *Index) CountUsers() int {
	return len(idx.users)
}

// Count returns the number of ratings.
func (idx *Index) Count() int {
	return idx.count
}

func (idx *Index) writableRow(rows map[string]*row, key string) *row {
	r, exist := rows[key]
	if !exist {
		r = &row{gen: idx.gen, ratings: make(map[string]float64)}
		rows[key] = r
	} else if r.gen != idx.gen {
		r = r.clone(idx.gen)
		rows[key] = r
	}
	return r
}

func (idx *Index) checkWritable() {
	if idx.frozen {
		panic("write to frozen rating index")
	}
}

// meanOf sums in key order so that equal ratings always give identical means.
func meanOf(ratings map[string]float64) float64 {
	keys := lo.Keys(ratings)
	sort.Strings(keys)
	values := make([]float64, len(keys))
	for i, key := range keys {
		values[i] = ratings[key]
	}
	return stat.Mean(values, nil)
}
