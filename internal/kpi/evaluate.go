package kpi

import (
	"trialsnap/internal"
	"trialsnap/internal/util"
)

// RowKPI holds the threshold-dependent flags of one reconciled record. A nil
// flag means the record is not eligible for that category.
type RowKPI struct {
	UploadLate *bool
	TaskLate   *bool
	FormLate   *bool
	// OpenAction is nil when no action was raised.
	OpenAction *bool

	DaysFromBaseline *int
	WindowChecked    bool
	OutOfWindow      bool
}

// Input is everything the engine reads. HasStatus reports whether the schedule
// exposed a status column at all.
type Input struct {
	Records   []internal.ReconciledRecord
	Assets    []internal.AssetRecord
	HasStatus bool
}

type Report struct {
	Config  Config
	Rows    []RowKPI
	Sites   []SiteMetrics
	Summary Summary
}

// Evaluate derives row flags, site aggregates and the overall summary. It is a
// pure function of its arguments.
func Evaluate(in Input, cfg Config) Report {
	rows := make([]RowKPI, len(in.Records))
	windows := visitWindows(in.Records, cfg)

	for i, r := range in.Records {
		row := RowKPI{
			UploadLate:       lateFlag(r.MaxUploadDelay, cfg.Thresholds.Upload),
			TaskLate:         lateFlag(r.TaskDelay, cfg.Thresholds.Task),
			FormLate:         lateFlag(r.FormDelay, cfg.Thresholds.Form),
			DaysFromBaseline: windows[i].daysFromBaseline,
			WindowChecked:    windows[i].checked,
			OutOfWindow:      windows[i].outOfWindow,
		}
		if r.ActionRaised.Valid {
			row.OpenAction = util.BoolPtr(!r.ActionResolved.Valid)
		}
		rows[i] = row
	}

	return Report{
		Config:  cfg,
		Rows:    rows,
		Sites:   siteMetrics(in.Records, rows, cfg),
		Summary: summarize(in, rows, cfg),
	}
}

func lateFlag(delay *int, threshold int) *bool {
	if delay == nil {
		return nil
	}
	return util.BoolPtr(*delay > threshold)
}
