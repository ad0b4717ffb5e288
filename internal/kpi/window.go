package kpi

import (
	"trialsnap/internal"
	"trialsnap/internal/schema"
	"trialsnap/internal/temporal"
)

type subjectKey struct {
	site    string
	subject string
}

type windowCheck struct {
	daysFromBaseline *int
	checked          bool
	outOfWindow      bool
}

// visitWindows computes, per record, the distance from the subject's baseline
// and whether a windowed visit falls outside its band. Visits missing from the
// window table are never flagged; subjects without a dated baseline row get no
// distance at all.
func visitWindows(records []internal.ReconciledRecord, cfg Config) []windowCheck {
	windows := make(map[string]VisitWindow, len(cfg.Windows))
	for _, w := range cfg.Windows {
		windows[schema.Normalize(w.Name)] = w
	}
	baselineName := schema.Normalize(cfg.BaselineAssessment)

	baselines := map[subjectKey]temporal.Date{}
	for _, r := range records {
		if schema.Normalize(r.Assessment) != baselineName || !r.ScheduledDate.Valid {
			continue
		}
		key := subjectKey{site: r.Site, subject: r.Subject}
		if _, ok := baselines[key]; !ok {
			baselines[key] = r.ScheduledDate
		}
	}

	out := make([]windowCheck, len(records))
	for i, r := range records {
		if schema.Normalize(r.Assessment) == baselineName {
			continue
		}
		base, ok := baselines[subjectKey{site: r.Site, subject: r.Subject}]
		if !ok {
			continue
		}
		days, ok := temporal.DaysBetween(r.ScheduledDate, base)
		if !ok {
			continue
		}
		d := days
		out[i].daysFromBaseline = &d

		w, ok := windows[schema.Normalize(r.Visit)]
		if !ok {
			w, ok = windows[schema.Normalize(r.Assessment)]
		}
		if !ok {
			continue
		}
		out[i].checked = true
		out[i].outOfWindow = abs(days-w.OffsetDays) > w.ToleranceDays
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
