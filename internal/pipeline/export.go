package pipeline

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/xuri/excelize/v2"

	"trialsnap/internal/temporal"
)

const (
	SheetReconciled   = "Reconciled"
	SheetSites        = "Sites"
	SheetSummary      = "Summary"
	SheetLateUploads  = "Late Uploads"
	SheetMissingForms = "Missing Forms"
)

// ExportXLSX writes the reconciled table, site metrics, headline metrics and
// the follow-up lists of one run into a workbook.
func ExportXLSX(result *Result, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetReconciled); err != nil {
		return err
	}
	for _, name := range []string{SheetSites, SheetSummary, SheetLateUploads, SheetMissingForms} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	records := result.Snapshot.Records
	rows := result.Report.Rows

	reconciled := make([][]any, 0, len(records))
	for i, r := range records {
		k := rows[i]
		reconciled = append(reconciled, []any{
			r.Site, r.Subject, r.Visit, r.Assessment, r.AssessmentID,
			dateCell(r.ScheduledDate), r.Status,
			r.UploadCount, dateCell(r.FirstUpload), derefInt(r.MaxUploadDelay),
			r.FormMatched, dateCell(r.FormSubmitted), r.FormComment,
			derefInt(r.TaskDelay), derefInt(r.FormDelay),
			derefBool(k.UploadLate), derefBool(k.TaskLate), derefBool(k.FormLate), derefBool(k.OpenAction),
			derefInt(k.DaysFromBaseline), k.OutOfWindow,
		})
	}
	if err := writeSheet(f, SheetReconciled, []string{
		"site", "subject", "visit", "assessment", "assessment_id",
		"scheduled_date", "status",
		"upload_count", "first_upload", "max_upload_delay",
		"form_matched", "form_submitted", "form_comment",
		"task_delay", "form_delay",
		"upload_late", "task_late", "form_late", "open_action",
		"days_from_baseline", "out_of_window",
	}, reconciled); err != nil {
		return err
	}

	sites := make([][]any, 0, len(result.Report.Sites))
	for _, m := range result.Report.Sites {
		sites = append(sites, []any{
			m.Site, m.Rows,
			m.LateAssets, m.LateTasks, m.LateForms, m.OpenActions, m.MissingForms, m.OutOfWindow,
			derefFloat(m.UploadLateRate), derefFloat(m.TaskLateRate), derefFloat(m.FormLateRate),
			derefFloat(m.OpenActionRate), derefFloat(m.MissingVisitRate), derefFloat(m.OutOfWindowRate),
			derefFloat(m.RiskScore), derefFloat(m.DataQualityIndex),
		})
	}
	if err := writeSheet(f, SheetSites, []string{
		"site", "rows",
		"late_assets", "late_tasks", "late_forms", "open_actions", "missing_forms", "out_of_window",
		"upload_late_rate", "task_late_rate", "form_late_rate",
		"open_action_rate", "missing_visit_rate", "out_of_window_rate",
		"risk_score", "data_quality_index",
	}, sites); err != nil {
		return err
	}

	metrics := result.Report.Metrics()
	keys := make([]string, 0, len(metrics))
	for k := range metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	summary := [][]any{{"run_id", result.RunID}, {"identity", result.Identity}}
	for _, k := range keys {
		summary = append(summary, []any{k, metrics[k]})
	}
	if err := writeSheet(f, SheetSummary, []string{"metric", "value"}, summary); err != nil {
		return err
	}

	late := make([][]any, 0, len(result.Report.Summary.LateUploads))
	for _, a := range result.Report.Summary.LateUploads {
		late = append(late, []any{
			a.Site, a.Subject, a.Visit, a.Assessment,
			dateCell(a.ProcedureDate), dateCell(a.UploadDate), derefInt(a.UploadDelay),
		})
	}
	if err := writeSheet(f, SheetLateUploads, []string{
		"site", "subject", "visit", "assessment", "procedure_date", "upload_date", "upload_delay",
	}, late); err != nil {
		return err
	}

	missing := make([][]any, 0, len(result.Report.Summary.MissingFormRows))
	for _, i := range result.Report.Summary.MissingFormRows {
		r := records[i]
		missing = append(missing, []any{
			r.Site, r.Subject, r.Visit, r.Assessment, r.AssessmentID, dateCell(r.FirstUpload), r.FormMatched,
		})
	}
	if err := writeSheet(f, SheetMissingForms, []string{
		"site", "subject", "visit", "assessment", "assessment_id", "first_upload", "form_matched",
	}, missing); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

func writeSheet(f *excelize.File, sheet string, headers []string, rows [][]any) error {
	header := make([]any, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func dateCell(d temporal.Date) string {
	if !d.Valid {
		return ""
	}
	return d.String()
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefBool(v *bool) any {
	if v == nil {
		return ""
	}
	return *v
}
