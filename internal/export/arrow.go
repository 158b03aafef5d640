package export

import (
	"fmt"
	"io"

	"healthatlas/internal/models"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

// RecordSchema is the columnar layout of an exported category.
var RecordSchema = arrow.NewSchema([]arrow.Field{
	{Name: "country", Type: arrow.BinaryTypes.String},
	{Name: "year", Type: arrow.PrimitiveTypes.Int32},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// ToArrow packs records into a single Arrow record batch. The caller must
// Release it.
func ToArrow(mem memory.Allocator, records []models.Record) arrow.Record {
	b := array.NewRecordBuilder(mem, RecordSchema)
	defer b.Release()

	countries := b.Field(0).(*array.StringBuilder)
	years := b.Field(1).(*array.Int32Builder)
	values := b.Field(2).(*array.Float64Builder)
	countries.Reserve(len(records))
	years.Reserve(len(records))
	values.Reserve(len(records))

	for _, r := range records {
		countries.Append(r.CountryCode)
		years.Append(int32(r.Year))
		values.Append(r.Value)
	}
	return b.NewRecord()
}

// WriteArrow streams records to w in the Arrow IPC stream format.
func WriteArrow(w io.Writer, records []models.Record) error {
	mem := memory.NewGoAllocator()
	rec := ToArrow(mem, records)
	defer rec.Release()

	wr := ipc.NewWriter(w, ipc.WithSchema(RecordSchema), ipc.WithAllocator(mem))
	if err := wr.Write(rec); err != nil {
		wr.Close()
		return fmt.Errorf("write arrow batch: %w", err)
	}
	if err := wr.Close(); err != nil {
		return fmt.Errorf("close arrow stream: %w", err)
	}
	return nil
}
