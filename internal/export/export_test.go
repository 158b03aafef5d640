package export

import (
	"bytes"
	"testing"

	"healthatlas/internal/models"

	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/xuri/excelize/v2"
)

var sample = []models.Record{
	{CountryCode: "AUS", Year: 2010, Value: 5, Category: models.Doctors},
	{CountryCode: "CAN", Year: 2011, Value: 7.5, Category: models.Doctors},
}

func TestToArrow(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	rec := ToArrow(mem, sample)
	defer rec.Release()

	if rec.NumRows() != 2 || rec.NumCols() != 3 {
		t.Fatalf("Expected 2x3 record, got %dx%d", rec.NumRows(), rec.NumCols())
	}
	if got := rec.Column(0).(*array.String).Value(1); got != "CAN" {
		t.Errorf("Expected CAN, got %s", got)
	}
	if got := rec.Column(1).(*array.Int32).Value(0); got != 2010 {
		t.Errorf("Expected 2010, got %d", got)
	}
	if got := rec.Column(2).(*array.Float64).Value(1); got != 7.5 {
		t.Errorf("Expected 7.5, got %v", got)
	}
}

func TestWriteArrowStream(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteArrow(&buf, sample); err != nil {
		t.Fatalf("WriteArrow: %v", err)
	}

	r, err := ipc.NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Release()

	rows := int64(0)
	for r.Next() {
		rows += r.Record().NumRows()
	}
	if rows != 2 {
		t.Errorf("Expected 2 rows, got %d", rows)
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, models.Doctors, sample); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(string(models.Doctors))
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header + 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Country" || rows[2][0] != "CAN" || rows[2][1] != "2011" || rows[2][2] != "7.5" {
		t.Errorf("Unexpected rows %v", rows)
	}
}
