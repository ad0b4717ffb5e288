package reconcile

import (
	"strconv"

	"trialsnap/internal"
	"trialsnap/internal/temporal"
	"trialsnap/internal/util"
)

// Options carries reconciliation policy.
type Options struct {
	// UnmatchedUploadDelay is the max_upload_delay given to schedule rows with no
	// asset group. nil leaves it undefined.
	UnmatchedUploadDelay *int
}

// DefaultOptions treats an assessment without uploads as on time (delay 0).
func DefaultOptions() Options {
	return Options{UnmatchedUploadDelay: util.IntPtr(0)}
}

// Key identifies the policy for cache keys.
func (o Options) Key() string {
	if o.UnmatchedUploadDelay == nil {
		return "unmatched=missing"
	}
	return "unmatched=" + strconv.Itoa(*o.UnmatchedUploadDelay)
}

// AssetGroup aggregates the uploads of one (site, subject, visit, assessment).
type AssetGroup struct {
	Count          int
	FirstUpload    temporal.Date
	MaxUploadDelay *int
}

// AggregateAssets groups uploads by assessment key. Rows with an incomplete key
// are left out since they can never match a schedule row.
func AggregateAssets(assets []internal.AssetRecord) map[internal.AssessmentKey]AssetGroup {
	groups := map[internal.AssessmentKey]AssetGroup{}
	for _, a := range assets {
		key := a.Key()
		if !key.Complete() {
			continue
		}
		g := groups[key]
		g.Count++
		if a.UploadDate.Valid && (!g.FirstUpload.Valid || a.UploadDate.Before(g.FirstUpload)) {
			g.FirstUpload = a.UploadDate
		}
		if a.UploadDelay != nil && (g.MaxUploadDelay == nil || *a.UploadDelay > *g.MaxUploadDelay) {
			g.MaxUploadDelay = util.IntPtr(*a.UploadDelay)
		}
		groups[key] = g
	}
	return groups
}

// Reconcile left-joins asset groups (by assessment key) and forms (by
// assessment id) onto the schedule. Each schedule row yields one output row per
// matching form, or exactly one when no form matches. Inputs are not modified.
func Reconcile(schedule []internal.ScheduleRecord, assets []internal.AssetRecord, forms []internal.FormRecord, opts Options) []internal.ReconciledRecord {
	groups := AggregateAssets(assets)

	formsByID := map[string][]internal.FormRecord{}
	for _, f := range forms {
		if f.AssessmentID == "" {
			continue
		}
		formsByID[f.AssessmentID] = append(formsByID[f.AssessmentID], f)
	}

	out := make([]internal.ReconciledRecord, 0, len(schedule))
	for _, s := range schedule {
		base := internal.ReconciledRecord{ScheduleRecord: s}
		base.TaskDates = append([]temporal.Date(nil), s.TaskDates...)

		if g, ok := groups[s.Key()]; ok && s.Key().Complete() {
			base.AssetMatched = true
			base.UploadCount = g.Count
			base.FirstUpload = g.FirstUpload
			if g.MaxUploadDelay != nil {
				base.MaxUploadDelay = util.IntPtr(*g.MaxUploadDelay)
			}
		} else if opts.UnmatchedUploadDelay != nil {
			base.MaxUploadDelay = util.IntPtr(*opts.UnmatchedUploadDelay)
		}

		matched := formsByID[s.AssessmentID]
		if s.AssessmentID == "" || len(matched) == 0 {
			out = append(out, base)
			continue
		}
		for _, f := range matched {
			row := base
			row.TaskDates = append([]temporal.Date(nil), base.TaskDates...)
			if base.MaxUploadDelay != nil {
				row.MaxUploadDelay = util.IntPtr(*base.MaxUploadDelay)
			}
			row.FormMatched = true
			row.FormCreated = f.CreatedDate
			row.FormSubmitted = f.SubmittedDate
			row.FormComment = f.Comment
			out = append(out, row)
		}
	}
	return out
}
