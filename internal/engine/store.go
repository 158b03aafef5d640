package engine

import (
	"encoding/binary"
	"math"
	"strings"

	"healthatlas/internal/models"

	"github.com/zeebo/xxh3"
)

// LoadStats counts what happened to the data rows of one source.
type LoadStats struct {
	Rows     int // data rows read (header excluded, filtered rows excluded)
	Retained int
	Dropped  int // rows whose year or value failed coercion
}

// Dataset holds one category's observations in Struct-of-Arrays format.
// Country codes are dictionary encoded. A Dataset is never modified after
// it has been built.
type Dataset struct {
	name     string
	category models.Category

	// Data Columns (Flat Arrays)
	years      []int32
	values     []float64
	countryIDs []int32

	// Dictionary (ID -> Code) and its reverse
	countryDict []string
	countryMap  map[string]int32

	stats       LoadStats
	fingerprint uint64
}

func (d *Dataset) Name() string              { return d.name }
func (d *Dataset) Category() models.Category { return d.category }
func (d *Dataset) Len() int                  { return len(d.values) }
func (d *Dataset) Stats() LoadStats          { return d.stats }

// Fingerprint is a content hash of the dataset, stable across loads of the
// same rows in the same order.
func (d *Dataset) Fingerprint() uint64 { return d.fingerprint }

// Record returns the i-th observation in source order.
func (d *Dataset) Record(i int) models.Record {
	return models.Record{
		CountryCode: d.countryDict[d.countryIDs[i]],
		Year:        int(d.years[i]),
		Value:       d.values[i],
		Category:    d.category,
	}
}

// Records returns a copy of every observation in source order.
func (d *Dataset) Records() []models.Record {
	out := make([]models.Record, d.Len())
	for i := range out {
		out[i] = d.Record(i)
	}
	return out
}

func (d *Dataset) countryID(code string) (int32, bool) {
	id, ok := d.countryMap[normalizeCode(code)]
	return id, ok
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// datasetBuilder appends rows and dictionary-encodes countries on the fly.
type datasetBuilder struct {
	ds *Dataset
}

func newDatasetBuilder(name string, category models.Category, sizeHint int) *datasetBuilder {
	return &datasetBuilder{ds: &Dataset{
		name:       name,
		category:   category,
		years:      make([]int32, 0, sizeHint),
		values:     make([]float64, 0, sizeHint),
		countryIDs: make([]int32, 0, sizeHint),
		countryMap: make(map[string]int32),
	}}
}

func (b *datasetBuilder) add(code string, year int32, value float64) {
	id, ok := b.ds.countryMap[code]
	if !ok {
		id = int32(len(b.ds.countryDict))
		b.ds.countryDict = append(b.ds.countryDict, code)
		b.ds.countryMap[code] = id
	}
	b.ds.countryIDs = append(b.ds.countryIDs, id)
	b.ds.years = append(b.ds.years, year)
	b.ds.values = append(b.ds.values, value)
}

func (b *datasetBuilder) build(stats LoadStats) *Dataset {
	stats.Retained = len(b.ds.values)
	b.ds.stats = stats
	b.ds.fingerprint = fingerprint(b.ds)
	return b.ds
}

func fingerprint(d *Dataset) uint64 {
	h := xxh3.New()
	h.WriteString(string(d.category))
	buf := make([]byte, 0, 16)
	for i := range d.values {
		h.WriteString(d.countryDict[d.countryIDs[i]])
		buf = binary.LittleEndian.AppendUint32(buf[:0], uint32(d.years[i]))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(d.values[i]))
		h.Write(buf)
	}
	return h.Sum64()
}

// mergeDatasets concatenates several datasets of the same category in the
// given order, re-encoding the country dictionary.
func mergeDatasets(category models.Category, sets []*Dataset) *Dataset {
	if len(sets) == 1 {
		return sets[0]
	}
	total := 0
	names := make([]string, 0, len(sets))
	var stats LoadStats
	for _, s := range sets {
		total += s.Len()
		names = append(names, s.name)
		stats.Rows += s.stats.Rows
		stats.Dropped += s.stats.Dropped
	}
	b := newDatasetBuilder(strings.Join(names, "+"), category, total)
	for _, s := range sets {
		for i := range s.values {
			b.add(s.countryDict[s.countryIDs[i]], s.years[i], s.values[i])
		}
	}
	return b.build(stats)
}

// NewDataset builds a dataset directly from records, which is handy for
// callers that already hold typed observations. Records with a negative or
// non-finite value, or a year outside int32, are dropped and counted.
func NewDataset(name string, category models.Category, records []models.Record) *Dataset {
	b := newDatasetBuilder(name, category, len(records))
	stats := LoadStats{Rows: len(records)}
	for _, r := range records {
		code := normalizeCode(r.CountryCode)
		if code == "" || !inYearRange(r.Year) || !validValue(r.Value) {
			stats.Dropped++
			continue
		}
		b.add(code, int32(r.Year), r.Value)
	}
	return b.build(stats)
}

// inYearRange reports whether year fits the int32 year column.
func inYearRange(year int) bool {
	return year >= math.MinInt32 && year <= math.MaxInt32
}

func validValue(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
