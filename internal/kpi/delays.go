package kpi

import (
	"trialsnap/internal"
	"trialsnap/internal/temporal"
	"trialsnap/internal/util"
)

// WithDelays returns copies of the records with task_delay and form_delay
// filled in. Neither depends on thresholds.
func WithDelays(records []internal.ReconciledRecord) []internal.ReconciledRecord {
	out := make([]internal.ReconciledRecord, len(records))
	for i, r := range records {
		r.TaskDates = append([]temporal.Date(nil), r.TaskDates...)
		r.TaskDelay = TaskDelay(r.ScheduleRecord)
		r.FormDelay = FormDelay(r)
		out[i] = r
	}
	return out
}

// TaskDelay is the largest (task date - scheduled date) over the row's task
// dates; nil when no task date or no scheduled date is present.
func TaskDelay(r internal.ScheduleRecord) *int {
	var best *int
	for _, task := range r.TaskDates {
		days, ok := temporal.DaysBetween(task, r.ScheduledDate)
		if !ok {
			continue
		}
		if best == nil || days > *best {
			best = util.IntPtr(days)
		}
	}
	return best
}

// FormDelay is form_submitted - first_upload; nil unless both are present.
func FormDelay(r internal.ReconciledRecord) *int {
	days, ok := temporal.DaysBetween(r.FormSubmitted, r.FirstUpload)
	if !ok {
		return nil
	}
	return util.IntPtr(days)
}
