package pipeline

import (
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"

	"trialsnap/internal"
	"trialsnap/internal/temporal"
)

// ReconciledSchema is the column layout of the Arrow export.
var ReconciledSchema = arrow.NewSchema([]arrow.Field{
	{Name: "site", Type: arrow.BinaryTypes.String},
	{Name: "subject", Type: arrow.BinaryTypes.String},
	{Name: "visit", Type: arrow.BinaryTypes.String},
	{Name: "assessment", Type: arrow.BinaryTypes.String},
	{Name: "assessment_id", Type: arrow.BinaryTypes.String},
	{Name: "scheduled_date", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
	{Name: "status", Type: arrow.BinaryTypes.String},
	{Name: "upload_count", Type: arrow.PrimitiveTypes.Int64},
	{Name: "first_upload", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
	{Name: "max_upload_delay", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "form_matched", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "form_submitted", Type: arrow.FixedWidthTypes.Date32, Nullable: true},
	{Name: "task_delay", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "form_delay", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
}, nil)

// ExportArrow writes the reconciled table as an Arrow IPC file. Undefined
// dates and delays are written as nulls.
func ExportArrow(records []internal.ReconciledRecord, outputPath string) error {
	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, ReconciledSchema)
	defer b.Release()

	for _, r := range records {
		b.Field(0).(*array.StringBuilder).Append(r.Site)
		b.Field(1).(*array.StringBuilder).Append(r.Subject)
		b.Field(2).(*array.StringBuilder).Append(r.Visit)
		b.Field(3).(*array.StringBuilder).Append(r.Assessment)
		b.Field(4).(*array.StringBuilder).Append(r.AssessmentID)
		appendDate(b.Field(5).(*array.Date32Builder), r.ScheduledDate)
		b.Field(6).(*array.StringBuilder).Append(r.Status)
		b.Field(7).(*array.Int64Builder).Append(int64(r.UploadCount))
		appendDate(b.Field(8).(*array.Date32Builder), r.FirstUpload)
		appendDelay(b.Field(9).(*array.Int64Builder), r.MaxUploadDelay)
		b.Field(10).(*array.BooleanBuilder).Append(r.FormMatched)
		appendDate(b.Field(11).(*array.Date32Builder), r.FormSubmitted)
		appendDelay(b.Field(12).(*array.Int64Builder), r.TaskDelay)
		appendDelay(b.Field(13).(*array.Int64Builder), r.FormDelay)
	}

	rec := b.NewRecord()
	defer rec.Release()

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	w, err := ipc.NewFileWriter(out, ipc.WithSchema(ReconciledSchema), ipc.WithAllocator(pool))
	if err != nil {
		return err
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return out.Close()
}

func appendDate(b *array.Date32Builder, d temporal.Date) {
	if !d.Valid {
		b.AppendNull()
		return
	}
	b.Append(arrow.Date32FromTime(d.Time))
}

func appendDelay(b *array.Int64Builder, v *int) {
	if v == nil {
		b.AppendNull()
		return
	}
	b.Append(int64(*v))
}
