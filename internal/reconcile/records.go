package reconcile

import (
	"trialsnap/internal"
	"trialsnap/internal/loader"
	"trialsnap/internal/schema"
	"trialsnap/internal/temporal"
	"trialsnap/internal/util"
)

// source bundles a loaded table with its resolutions and coerced dates.
type source struct {
	table   *loader.Table
	mapping schema.Mapping
	dates   temporal.Columns
}

func (s source) text(field string, row int) string {
	col, ok := s.mapping.Resolution(field).Name()
	if !ok {
		return ""
	}
	return util.NormalizeSpaces(s.table.Value(row, col))
}

func (s source) date(field string, row int) temporal.Date {
	col, ok := s.mapping.Resolution(field).Name()
	if !ok {
		return temporal.Missing()
	}
	return s.dates.At(col, row)
}

// BuildSchedule types every schedule row. Rows keep their table order.
func BuildSchedule(table *loader.Table, mapping schema.Mapping, dates temporal.Columns) []internal.ScheduleRecord {
	src := source{table: table, mapping: mapping, dates: dates}
	taskCols := mapping.Columns(schema.FieldTaskDates)

	out := make([]internal.ScheduleRecord, 0, table.Len())
	for i := range table.Rows {
		tasks := make([]temporal.Date, 0, len(taskCols))
		for _, col := range taskCols {
			tasks = append(tasks, dates.At(col, i))
		}
		out = append(out, internal.ScheduleRecord{
			SourceRow:      i,
			Site:           src.text(schema.FieldSite, i),
			Subject:        src.text(schema.FieldSubject, i),
			Visit:          src.text(schema.FieldVisit, i),
			Assessment:     src.text(schema.FieldAssessment, i),
			AssessmentID:   src.text(schema.FieldAssessmentID, i),
			ScheduledDate:  src.date(schema.FieldScheduledDate, i),
			Status:         src.text(schema.FieldStatus, i),
			StatusDate:     src.date(schema.FieldStatusDate, i),
			TaskDates:      tasks,
			ActionRaised:   src.date(schema.FieldActionRaised, i),
			ActionResolved: src.date(schema.FieldActionResolved, i),
		})
	}
	return out
}

// BuildAssets types every asset row and computes its upload delay.
func BuildAssets(table *loader.Table, mapping schema.Mapping, dates temporal.Columns) []internal.AssetRecord {
	src := source{table: table, mapping: mapping, dates: dates}

	out := make([]internal.AssetRecord, 0, table.Len())
	for i := range table.Rows {
		rec := internal.AssetRecord{
			SourceRow:     i,
			Site:          src.text(schema.FieldSite, i),
			Subject:       src.text(schema.FieldSubject, i),
			Visit:         src.text(schema.FieldVisit, i),
			Assessment:    src.text(schema.FieldAssessment, i),
			AssessmentID:  src.text(schema.FieldAssessmentID, i),
			ProcedureDate: src.date(schema.FieldProcedureDate, i),
			UploadDate:    src.date(schema.FieldUploadDate, i),
		}
		if days, ok := temporal.DaysBetween(rec.UploadDate, rec.ProcedureDate); ok {
			rec.UploadDelay = util.IntPtr(days)
		}
		out = append(out, rec)
	}
	return out
}

func BuildForms(table *loader.Table, mapping schema.Mapping, dates temporal.Columns) []internal.FormRecord {
	src := source{table: table, mapping: mapping, dates: dates}

	out := make([]internal.FormRecord, 0, table.Len())
	for i := range table.Rows {
		out = append(out, internal.FormRecord{
			SourceRow:     i,
			AssessmentID:  src.text(schema.FieldAssessmentID, i),
			CreatedDate:   src.date(schema.FieldCreatedDate, i),
			SubmittedDate: src.date(schema.FieldSubmittedDate, i),
			Comment:       src.text(schema.FieldComment, i),
		})
	}
	return out
}
