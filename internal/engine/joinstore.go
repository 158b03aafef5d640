package engine

import (
	"math"
	"slices"

	"healthatlas/internal/models"
)

type indexedDataset struct {
	data *Dataset
	idx  *Index
}

// JoinStore owns the loaded datasets, one per category, and answers point,
// range and aggregate queries over them. It has no mutation API: build a
// new store to change its contents.
type JoinStore struct {
	sets  map[models.Category]*indexedDataset
	order []models.Category
}

// NewJoinStore indexes the given datasets. Datasets sharing a category are
// merged in argument order. Calling it with no datasets yields an empty,
// usable store.
func NewJoinStore(datasets ...*Dataset) *JoinStore {
	grouped := make(map[models.Category][]*Dataset)
	var order []models.Category
	for _, d := range datasets {
		if d == nil {
			continue
		}
		if _, seen := grouped[d.category]; !seen {
			order = append(order, d.category)
		}
		grouped[d.category] = append(grouped[d.category], d)
	}

	s := &JoinStore{sets: make(map[models.Category]*indexedDataset, len(order)), order: order}
	for _, c := range order {
		merged := mergeDatasets(c, grouped[c])
		s.sets[c] = &indexedDataset{data: merged, idx: buildIndex(merged)}
	}
	return s
}

// Categories returns the categories holding a dataset, in load order.
func (s *JoinStore) Categories() []models.Category {
	return slices.Clone(s.order)
}

// Dataset returns the (merged) dataset of a category.
func (s *JoinStore) Dataset(category models.Category) (*Dataset, bool) {
	set, ok := s.sets[category]
	if !ok {
		return nil, false
	}
	return set.data, true
}

// Records returns a copy of a category's observations.
func (s *JoinStore) Records(category models.Category) []models.Record {
	set, ok := s.sets[category]
	if !ok {
		return nil
	}
	return set.data.Records()
}

// Countries lists the country codes present in a category, sorted.
func (s *JoinStore) Countries(category models.Category) []string {
	set, ok := s.sets[category]
	if !ok {
		return nil
	}
	out := slices.Clone(set.data.countryDict)
	slices.Sort(out)
	return out
}

// ValueAt returns the first value recorded for (country, year). A missing
// observation reports false; it is not an error.
func (s *JoinStore) ValueAt(category models.Category, country string, year int) (float64, bool) {
	vals := s.ValuesAt(category, country, year)
	if len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// ValuesAt returns every value recorded for (country, year) in source order.
func (s *JoinStore) ValuesAt(category models.Category, country string, year int) []float64 {
	set, ok := s.sets[category]
	if !ok || !inYearRange(year) {
		return nil
	}
	cid, ok := set.data.countryID(country)
	if !ok {
		return nil
	}
	rows := set.idx.lookup(cid, int32(year))
	if len(rows) == 0 {
		return nil
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = set.data.values[r]
	}
	return out
}

// YearsFor returns the ascending, duplicate-free years available for a
// country. Unknown countries and categories yield an empty slice.
func (s *JoinStore) YearsFor(category models.Category, country string) []int {
	set, ok := s.sets[category]
	if !ok {
		return []int{}
	}
	cid, ok := set.data.countryID(country)
	if !ok {
		return []int{}
	}
	years := set.idx.years[cid]
	out := make([]int, len(years))
	for i, y := range years {
		out[i] = int(y)
	}
	return out
}

// UnionYears is the sorted union of two year lists, used when two series
// share an x axis.
func (s *JoinStore) UnionYears(categoryA models.Category, countryA string, categoryB models.Category, countryB string) []int {
	return mergeSorted(s.YearsFor(categoryA, countryA), s.YearsFor(categoryB, countryB))
}

// MeanAcrossYears is the arithmetic mean of every value of a country in a
// category. It reports false when the country has no records.
func (s *JoinStore) MeanAcrossYears(category models.Category, country string) (float64, bool) {
	set, ok := s.sets[category]
	if !ok {
		return 0, false
	}
	cid, ok := set.data.countryID(country)
	if !ok {
		return 0, false
	}
	var sum float64
	var n int
	for _, y := range set.idx.years[cid] {
		for _, r := range set.idx.lookup(cid, y) {
			sum += set.data.values[r]
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Extent returns the global min and max value across the given categories.
// With no categories it covers every loaded category. An empty scope
// yields (0, 0).
func (s *JoinStore) Extent(categories ...models.Category) (float64, float64) {
	if len(categories) == 0 {
		categories = s.order
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range categories {
		set, ok := s.sets[c]
		if !ok {
			continue
		}
		for _, v := range set.data.values {
			lo = min(lo, v)
			hi = max(hi, v)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 0
	}
	return lo, hi
}

// Sum adds up every value of a category.
func (s *JoinStore) Sum(category models.Category) float64 {
	set, ok := s.sets[category]
	if !ok {
		return 0
	}
	var total float64
	for _, v := range set.data.values {
		total += v
	}
	return total
}

// YearRange returns the earliest and latest year of a category.
func (s *JoinStore) YearRange(category models.Category) (int, int, bool) {
	set, ok := s.sets[category]
	if !ok || set.data.Len() == 0 {
		return 0, 0, false
	}
	lo, hi := set.data.years[0], set.data.years[0]
	for _, y := range set.data.years[1:] {
		lo = min(lo, y)
		hi = max(hi, y)
	}
	return int(lo), int(hi), true
}

// NormalizeAcrossScales rescales value from a [0, sourceMax] scale onto a
// [0, targetMax] one so two differently scaled metrics can share an axis.
func NormalizeAcrossScales(value, sourceMax, targetMax float64) (float64, error) {
	if sourceMax == 0 || math.IsNaN(sourceMax) || math.IsInf(sourceMax, 0) {
		return 0, &DomainError{Op: "normalize", Msg: "source maximum must be a finite non-zero number"}
	}
	if sourceMax == targetMax {
		return value, nil
	}
	return value * targetMax / sourceMax, nil
}
