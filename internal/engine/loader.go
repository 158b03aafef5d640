package engine

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"runtime"
	"strconv"
	"strings"
	"time"

	"healthatlas/internal/models"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Schema names the columns of one source table. Column names vary between
// files (COU vs Code, Value vs Total), so every source declares its own.
type Schema struct {
	CountryColumn string
	YearColumn    string
	ValueColumn   string

	// Optional discriminant: when FilterColumn is set, rows whose value in
	// that column differs from FilterValue are skipped without counting as
	// dropped.
	FilterColumn string
	FilterValue  string
}

// Source is one named table to load.
type Source struct {
	Name     string
	Locator  string
	Category models.Category
	Schema   Schema
}

// Result is the outcome of loading one source. On failure Dataset is empty
// and Err is a *LoadError.
type Result struct {
	Source  Source
	Dataset *Dataset
	Err     error
}

// Results holds one Result per source, in source order.
type Results []Result

// ByName indexes the results by source name.
func (rs Results) ByName() map[string]Result {
	out := make(map[string]Result, len(rs))
	for _, r := range rs {
		out[r.Source.Name] = r
	}
	return out
}

// Datasets returns the successfully loaded datasets in source order.
func (rs Results) Datasets() []*Dataset {
	out := make([]*Dataset, 0, len(rs))
	for _, r := range rs {
		if r.Err == nil {
			out = append(out, r.Dataset)
		}
	}
	return out
}

// Err combines every per-source failure, or returns nil.
func (rs Results) Err() error {
	var err error
	for _, r := range rs {
		err = multierr.Append(err, r.Err)
	}
	return err
}

// Status reports one line per source for the status endpoint.
func (rs Results) Status() []models.SourceStatus {
	out := make([]models.SourceStatus, 0, len(rs))
	for _, r := range rs {
		st := models.SourceStatus{Name: r.Source.Name, Category: r.Source.Category}
		if r.Dataset != nil {
			stats := r.Dataset.Stats()
			st.Rows, st.Retained, st.Dropped = stats.Rows, stats.Retained, stats.Dropped
		}
		if r.Err != nil {
			st.Error = r.Err.Error()
		}
		out = append(out, st)
	}
	return out
}

// Loader fetches and parses several sources concurrently.
type Loader struct {
	fetcher *Fetcher
	log     *zap.Logger
	workers int
	timeout time.Duration
}

type LoaderOption func(*Loader)

// WithWorkers bounds how many sources load at once.
func WithWorkers(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.workers = n
		}
	}
}

// WithTimeout bounds each individual source; zero disables the bound.
func WithTimeout(d time.Duration) LoaderOption {
	return func(l *Loader) { l.timeout = d }
}

func NewLoader(fetcher *Fetcher, log *zap.Logger, opts ...LoaderOption) *Loader {
	l := &Loader{
		fetcher: fetcher,
		log:     log,
		workers: runtime.NumCPU(),
		timeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load returns once every source has either loaded or failed. A failing
// source never cancels its siblings.
func (l *Loader) Load(ctx context.Context, sources []Source) Results {
	start := time.Now()
	results := make(Results, len(sources))

	seen := make(map[string]bool, len(sources))
	var g errgroup.Group
	g.SetLimit(l.workers)
	for i, src := range sources {
		if seen[src.Name] {
			results[i] = failed(src, errors.New("duplicate source name"))
			continue
		}
		seen[src.Name] = true
		i, src := i, src
		g.Go(func() error {
			results[i] = l.loadOne(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	if err := results.Err(); err != nil {
		l.log.Warn("some sources failed to load", zap.Error(err))
	}
	l.log.Info("load complete",
		zap.Int("sources", len(sources)),
		zap.Int("loaded", len(results.Datasets())),
		zap.Duration("took", time.Since(start)))
	return results
}

func (l *Loader) loadOne(ctx context.Context, src Source) Result {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	rc, err := l.fetcher.Open(ctx, src.Locator)
	if err != nil {
		return failed(src, err)
	}
	defer rc.Close()

	ds, err := ParseDataset(ctx, src.Name, src.Category, rc, src.Schema)
	if err != nil {
		return failed(src, err)
	}

	stats := ds.Stats()
	l.log.Info("source loaded",
		zap.String("source", src.Name),
		zap.String("category", string(src.Category)),
		zap.String("retained", fmt.Sprintf("%d of %d rows", stats.Retained, stats.Rows)),
		zap.Int("dropped", stats.Dropped))
	return Result{Source: src, Dataset: ds}
}

func failed(src Source, err error) Result {
	return Result{
		Source:  src,
		Dataset: NewDataset(src.Name, src.Category, nil),
		Err:     &LoadError{Source: src.Name, Err: err},
	}
}

// ParseDataset reads a CSV table with a header row. Structural problems
// (missing column, malformed row) fail the whole table; rows whose year or
// value cannot be coerced are dropped and counted.
func ParseDataset(ctx context.Context, name string, category models.Category, r io.Reader, schema Schema) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	countryIdx, err := columnIndex(header, schema.CountryColumn)
	if err != nil {
		return nil, err
	}
	yearIdx, err := columnIndex(header, schema.YearColumn)
	if err != nil {
		return nil, err
	}
	valueIdx, err := columnIndex(header, schema.ValueColumn)
	if err != nil {
		return nil, err
	}
	filterIdx := -1
	if schema.FilterColumn != "" {
		if filterIdx, err = columnIndex(header, schema.FilterColumn); err != nil {
			return nil, err
		}
	}

	b := newDatasetBuilder(name, category, 256)
	var stats LoadStats
	for line := 2; ; line++ {
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed row %d: %w", line, err)
		}

		if filterIdx >= 0 && strings.TrimSpace(rec[filterIdx]) != schema.FilterValue {
			continue
		}
		stats.Rows++

		code := normalizeCode(rec[countryIdx])
		year, yok := parseYear(rec[yearIdx])
		value, vok := parseValue(rec[valueIdx])
		if code == "" || !yok || !vok {
			stats.Dropped++
			continue
		}
		b.add(code, year, value)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.build(stats), nil
}

func columnIndex(header []string, column string) (int, error) {
	if column == "" {
		return -1, fmt.Errorf("%w: no column name configured", ErrMissingColumn)
	}
	for i, h := range header {
		if cleanHeader(h) == column {
			return i, nil
		}
	}
	for i, h := range header {
		if strings.EqualFold(cleanHeader(h), column) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrMissingColumn, column)
}

func cleanHeader(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}

// parseYear accepts a plain integer calendar year.
func parseYear(s string) (int32, bool) {
	y, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, false
	}
	return int32(y), true
}

// parseValue rejects empty, non-numeric, non-finite and negative values.
// An empty string means "absent", never zero.
func parseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
