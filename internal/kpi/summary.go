package kpi

import (
	"fmt"
	"strings"

	"trialsnap/internal"
	"trialsnap/internal/util"
)

// Summary carries the trial-wide headline figures.
type Summary struct {
	TotalAssessments     int      `json:"total_assessments"`
	CompletedAssessments *int     `json:"completed_assessments"`
	PctCompleted         *float64 `json:"pct_completed"`

	AssetRows        int      `json:"asset_rows"`
	LateUploadRows   int      `json:"late_upload_rows"`
	OnTimeUploadRate *float64 `json:"on_time_upload_rate"`

	FormsSubmitted int `json:"forms_submitted"`
	LateForms      int `json:"late_forms"`
	MissingForms   int `json:"missing_forms"`
	OpenActions    int `json:"open_actions"`
	OutOfWindow    int `json:"out_of_window"`

	// LateUploads lists asset rows whose own upload delay exceeds the threshold.
	LateUploads []internal.AssetRecord `json:"-"`
	// LateFormRows and MissingFormRows index into the reconciled records.
	LateFormRows    []int `json:"-"`
	MissingFormRows []int `json:"-"`
}

func summarize(in Input, rows []RowKPI, cfg Config) Summary {
	s := Summary{AssetRows: len(in.Assets)}

	seen := map[int]struct{}{}
	completed := 0
	for i, r := range in.Records {
		if _, ok := seen[r.SourceRow]; !ok {
			seen[r.SourceRow] = struct{}{}
			if strings.Contains(strings.ToLower(r.Status), "complete") {
				completed++
			}
		}

		k := rows[i]
		if r.FormSubmitted.Valid {
			s.FormsSubmitted++
		} else {
			s.MissingForms++
			s.MissingFormRows = append(s.MissingFormRows, i)
		}
		if k.FormLate != nil && *k.FormLate {
			s.LateForms++
			s.LateFormRows = append(s.LateFormRows, i)
		}
		if k.OpenAction != nil && *k.OpenAction {
			s.OpenActions++
		}
		if k.OutOfWindow {
			s.OutOfWindow++
		}
	}
	s.TotalAssessments = len(seen)

	if in.HasStatus {
		s.CompletedAssessments = util.IntPtr(completed)
		if s.TotalAssessments > 0 {
			s.PctCompleted = util.FloatPtr(100 * float64(completed) / float64(s.TotalAssessments))
		}
	}

	for _, a := range in.Assets {
		if a.UploadDelay != nil && *a.UploadDelay > cfg.Thresholds.Upload {
			s.LateUploadRows++
			s.LateUploads = append(s.LateUploads, a)
		}
	}
	if s.AssetRows > 0 {
		s.OnTimeUploadRate = util.FloatPtr(100 - 100*float64(s.LateUploadRows)/float64(s.AssetRows))
	}
	return s
}

// Metrics flattens the report into named values for the presentation layer.
// Undefined values are left out rather than reported as zero.
func (r Report) Metrics() map[string]float64 {
	out := map[string]float64{}
	put := func(key string, v *float64) {
		if v != nil {
			out[key] = *v
		}
	}
	putInt := func(key string, v int) {
		out[key] = float64(v)
	}

	s := r.Summary
	putInt("total_assessments", s.TotalAssessments)
	if s.CompletedAssessments != nil {
		putInt("completed_assessments", *s.CompletedAssessments)
	}
	put("pct_completed", s.PctCompleted)
	putInt("asset_rows", s.AssetRows)
	putInt("late_upload_rows", s.LateUploadRows)
	put("on_time_upload_rate", s.OnTimeUploadRate)
	putInt("forms_submitted", s.FormsSubmitted)
	putInt("late_forms", s.LateForms)
	putInt("missing_forms", s.MissingForms)
	putInt("open_actions", s.OpenActions)
	putInt("out_of_window", s.OutOfWindow)

	for _, m := range r.Sites {
		prefix := fmt.Sprintf("site[%s].", m.Site)
		putInt(prefix+"rows", m.Rows)
		putInt(prefix+"late_assets", m.LateAssets)
		putInt(prefix+"late_tasks", m.LateTasks)
		putInt(prefix+"late_forms", m.LateForms)
		putInt(prefix+"open_actions", m.OpenActions)
		putInt(prefix+"missing_forms", m.MissingForms)
		putInt(prefix+"out_of_window", m.OutOfWindow)
		put(prefix+"upload_late_rate", m.UploadLateRate)
		put(prefix+"task_late_rate", m.TaskLateRate)
		put(prefix+"form_late_rate", m.FormLateRate)
		put(prefix+"open_action_rate", m.OpenActionRate)
		put(prefix+"missing_visit_rate", m.MissingVisitRate)
		put(prefix+"out_of_window_rate", m.OutOfWindowRate)
		put(prefix+"risk_score", m.RiskScore)
		put(prefix+"data_quality_index", m.DataQualityIndex)
	}
	return out
}

// Site returns the metrics of one site.
func (r Report) Site(name string) (SiteMetrics, bool) {
	for _, m := range r.Sites {
		if m.Site == name {
			return m, true
		}
	}
	return SiteMetrics{}, false
}
