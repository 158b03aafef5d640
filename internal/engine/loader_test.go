package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"healthatlas/internal/models"

	"go.uber.org/zap"
)

var oecdSchema = Schema{CountryColumn: "COU", YearColumn: "Year", ValueColumn: "Value"}

func TestParseDatasetDropsEmptyValue(t *testing.T) {
	csvContent := `COU,Year,Value
AUS,1999,3.2
AUS,1999,
`
	ds, err := ParseDataset(context.Background(), "aus_doc", models.Doctors, strings.NewReader(csvContent), oecdSchema)
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}

	if ds.Len() != 1 {
		t.Fatalf("Expected 1 retained record, got %d", ds.Len())
	}
	stats := ds.Stats()
	if stats.Rows != 2 || stats.Retained != 1 || stats.Dropped != 1 {
		t.Errorf("Expected 1 of 2 rows retained and 1 dropped, got %+v", stats)
	}
	rec := ds.Record(0)
	if rec.CountryCode != "AUS" || rec.Year != 1999 || rec.Value != 3.2 {
		t.Errorf("Unexpected record: %+v", rec)
	}
}

func TestParseDatasetCoercion(t *testing.T) {
	csvContent := `Code,Year,Total
GBR,2001,10
GBR,abc,11
GBR,2002,n/a
GBR,2003,-4
GBR,2004,NaN
GBR,2005,+Inf
,2006,7
 gbr , 2007 , 12.5
`
	schema := Schema{CountryColumn: "Code", YearColumn: "Year", ValueColumn: "Total"}
	ds, err := ParseDataset(context.Background(), "death", models.DeathRate, strings.NewReader(csvContent), schema)
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}

	stats := ds.Stats()
	if stats.Rows != 8 || stats.Retained != 2 || stats.Dropped != 6 {
		t.Fatalf("Expected 2 of 8 rows retained, got %+v", stats)
	}
	last := ds.Record(1)
	if last.CountryCode != "GBR" || last.Year != 2007 || last.Value != 12.5 {
		t.Errorf("Whitespace not trimmed: %+v", last)
	}
}

func TestParseDatasetFilterColumn(t *testing.T) {
	csvContent := `COU,Variable,Year,Value
AUS,Doctors,2010,5
AUS,Nurses,2010,50
AUS,Doctors,2011,
`
	schema := oecdSchema
	schema.FilterColumn = "Variable"
	schema.FilterValue = "Doctors"

	ds, err := ParseDataset(context.Background(), "all", models.Doctors, strings.NewReader(csvContent), schema)
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	stats := ds.Stats()
	if stats.Rows != 2 || stats.Retained != 1 || stats.Dropped != 1 {
		t.Errorf("Filtered rows must not count as dropped, got %+v", stats)
	}
}

func TestParseDatasetStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"missing column", "COU,Year\nAUS,2000\n", ErrMissingColumn},
		{"empty", "", ErrEmptySource},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataset(context.Background(), "x", models.Nurses, strings.NewReader(tt.content), oecdSchema)
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	_, err := ParseDataset(context.Background(), "x", models.Nurses, strings.NewReader("COU,Year,Value\nAUS,2000\n"), oecdSchema)
	if err == nil {
		t.Error("Expected an error for a short row")
	}
}

func TestParseDatasetHeaderBOM(t *testing.T) {
	csvContent := "\ufeffCOU,Year,Value\nCAN,2015,2.7\n"
	ds, err := ParseDataset(context.Background(), "bom", models.Doctors, strings.NewReader(csvContent), oecdSchema)
	if err != nil {
		t.Fatalf("ParseDataset: %v", err)
	}
	if ds.Len() != 1 {
		t.Errorf("Expected 1 record, got %d", ds.Len())
	}
}

func writeTemp(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoaderPartialFailure(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "aus_doc.csv", "COU,Year,Value\nAUS,2010,5.0\nAUS,2011,6.0\n")
	writeTemp(t, dir, "broken.csv", "COU,Value\nAUS,1\n")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/can_doc.csv" {
			w.Write([]byte("COU,Year,Value\nCAN,2011,7.0\n"))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	loader := NewLoader(NewFetcher(dir, 100, 10), zap.NewNop(), WithWorkers(2))
	results := loader.Load(context.Background(), []Source{
		{Name: "AUS_DOC", Locator: "aus_doc.csv", Category: models.Doctors, Schema: oecdSchema},
		{Name: "CAN_DOC", Locator: srv.URL + "/can_doc.csv", Category: models.Doctors, Schema: oecdSchema},
		{Name: "BROKEN", Locator: "broken.csv", Category: models.Nurses, Schema: oecdSchema},
		{Name: "MISSING", Locator: "nope.csv", Category: models.Nurses, Schema: oecdSchema},
		{Name: "REMOTE_404", Locator: srv.URL + "/gone.csv", Category: models.Nurses, Schema: oecdSchema},
	})

	if len(results) != 5 {
		t.Fatalf("Expected 5 results, got %d", len(results))
	}
	byName := results.ByName()
	for _, name := range []string{"AUS_DOC", "CAN_DOC"} {
		if byName[name].Err != nil {
			t.Errorf("%s: unexpected error %v", name, byName[name].Err)
		}
	}
	for _, name := range []string{"BROKEN", "MISSING", "REMOTE_404"} {
		r := byName[name]
		var le *LoadError
		if !errors.As(r.Err, &le) || le.Source != name {
			t.Errorf("%s: expected LoadError, got %v", name, r.Err)
		}
		if r.Dataset == nil || r.Dataset.Len() != 0 {
			t.Errorf("%s: failed source must leave an empty dataset", name)
		}
	}
	if !errors.Is(byName["BROKEN"].Err, ErrMissingColumn) {
		t.Errorf("BROKEN: expected ErrMissingColumn, got %v", byName["BROKEN"].Err)
	}

	if got := len(results.Datasets()); got != 2 {
		t.Errorf("Expected 2 datasets, got %d", got)
	}
	if results.Err() == nil {
		t.Error("Expected combined error")
	}

	store := NewJoinStore(results.Datasets()...)
	if v, ok := store.ValueAt(models.Doctors, "CAN", 2011); !ok || v != 7.0 {
		t.Errorf("Expected CAN 2011 = 7.0, got %v %v", v, ok)
	}
}

func TestLoaderTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	dir := t.TempDir()
	writeTemp(t, dir, "ok.csv", "COU,Year,Value\nAUS,2010,1\n")

	loader := NewLoader(NewFetcher(dir, 100, 10), zap.NewNop(), WithTimeout(50*time.Millisecond))
	start := time.Now()
	results := loader.Load(context.Background(), []Source{
		{Name: "SLOW", Locator: srv.URL + "/slow.csv", Category: models.Doctors, Schema: oecdSchema},
		{Name: "OK", Locator: "ok.csv", Category: models.Doctors, Schema: oecdSchema},
	})
	if time.Since(start) > 5*time.Second {
		t.Fatal("Load blocked on a slow source")
	}

	byName := results.ByName()
	if !errors.Is(byName["SLOW"].Err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", byName["SLOW"].Err)
	}
	if byName["OK"].Err != nil {
		t.Errorf("OK: %v", byName["OK"].Err)
	}
}

func TestFetcherBoundedByContextOnly(t *testing.T) {
	f := NewFetcher(t.TempDir(), 100, 1)
	if f.HTTP.Timeout != 0 {
		t.Errorf("Expected no client timeout, got %v", f.HTTP.Timeout)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := f.Open(ctx, srv.URL+"/slow.csv"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestLoaderDuplicateName(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.csv", "COU,Year,Value\nAUS,2010,1\n")

	loader := NewLoader(NewFetcher(dir, 100, 10), zap.NewNop())
	results := loader.Load(context.Background(), []Source{
		{Name: "A", Locator: "a.csv", Category: models.Doctors, Schema: oecdSchema},
		{Name: "A", Locator: "a.csv", Category: models.Doctors, Schema: oecdSchema},
	})
	if results[0].Err != nil || results[1].Err == nil {
		t.Errorf("Expected only the second duplicate to fail, got %v / %v", results[0].Err, results[1].Err)
	}

	status := results.Status()
	if status[0].Retained != 1 || status[1].Error == "" {
		t.Errorf("Unexpected status: %+v", status)
	}
}
