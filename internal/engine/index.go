package engine

import (
	"slices"

	"golang.org/x/exp/constraints"
)

type rowKey struct {
	country int32
	year    int32
}

// Index maps (country, year) to the rows holding it, and each country to
// its ascending, deduplicated list of years.
type Index struct {
	rows  map[rowKey][]int32
	years [][]int32 // indexed by country ID
}

func buildIndex(d *Dataset) *Index {
	idx := &Index{
		rows:  make(map[rowKey][]int32, d.Len()),
		years: make([][]int32, len(d.countryDict)),
	}
	for i := range d.values {
		k := rowKey{country: d.countryIDs[i], year: d.years[i]}
		idx.rows[k] = append(idx.rows[k], int32(i))
		idx.years[k.country] = append(idx.years[k.country], k.year)
	}
	for c := range idx.years {
		idx.years[c] = sortedUnique(idx.years[c])
	}
	return idx
}

func (idx *Index) lookup(country, year int32) []int32 {
	return idx.rows[rowKey{country: country, year: year}]
}

// sortedUnique sorts s in place and collapses duplicates.
func sortedUnique[T constraints.Ordered](s []T) []T {
	slices.Sort(s)
	return slices.Compact(s)
}

// mergeSorted returns the sorted union of two ascending, duplicate-free
// slices.
func mergeSorted[T constraints.Ordered](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
