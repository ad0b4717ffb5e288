package kpi

import (
	"sort"

	"trialsnap/internal"
	"trialsnap/internal/util"
)

type SiteMetrics struct {
	Site string `json:"site"`
	Rows int    `json:"rows"`

	LateAssets     int `json:"late_assets"`
	UploadEligible int `json:"upload_eligible"`
	LateTasks      int `json:"late_tasks"`
	TaskEligible   int `json:"task_eligible"`
	LateForms      int `json:"late_forms"`
	FormEligible   int `json:"form_eligible"`
	OpenActions    int `json:"open_actions"`
	ActionsRaised  int `json:"actions_raised"`
	MissingForms   int `json:"missing_forms"`

	VisitGroups      int `json:"visit_groups"`
	IncompleteVisits int `json:"incomplete_visits"`
	WindowChecked    int `json:"window_checked"`
	OutOfWindow      int `json:"out_of_window"`

	UploadLateRate   *float64 `json:"upload_late_rate"`
	TaskLateRate     *float64 `json:"task_late_rate"`
	FormLateRate     *float64 `json:"form_late_rate"`
	OpenActionRate   *float64 `json:"open_action_rate"`
	MissingVisitRate *float64 `json:"missing_visit_rate"`
	OutOfWindowRate  *float64 `json:"out_of_window_rate"`

	// RiskScore is 100 x mean of the defined late/open-action rates.
	RiskScore *float64 `json:"risk_score"`
	// DataQualityIndex is 100 x (1 - mean of every defined rate, missing visits included).
	DataQualityIndex *float64 `json:"data_quality_index"`
}

type visitKey struct {
	site, subject, visit string
}

func siteMetrics(records []internal.ReconciledRecord, rows []RowKPI, cfg Config) []SiteMetrics {
	bySite := map[string]*SiteMetrics{}
	visitRows := map[visitKey]map[int]struct{}{}

	get := func(site string) *SiteMetrics {
		m, ok := bySite[site]
		if !ok {
			m = &SiteMetrics{Site: site}
			bySite[site] = m
		}
		return m
	}

	for i, r := range records {
		m := get(r.Site)
		k := rows[i]
		m.Rows++

		count(k.UploadLate, &m.UploadEligible, &m.LateAssets)
		count(k.TaskLate, &m.TaskEligible, &m.LateTasks)
		count(k.FormLate, &m.FormEligible, &m.LateForms)
		count(k.OpenAction, &m.ActionsRaised, &m.OpenActions)
		if !r.FormSubmitted.Valid {
			m.MissingForms++
		}
		if k.WindowChecked {
			m.WindowChecked++
			if k.OutOfWindow {
				m.OutOfWindow++
			}
		}

		// Distinct schedule rows, so a form-join fan-out does not inflate a visit.
		vk := visitKey{site: r.Site, subject: r.Subject, visit: r.Visit}
		if visitRows[vk] == nil {
			visitRows[vk] = map[int]struct{}{}
		}
		visitRows[vk][r.SourceRow] = struct{}{}
	}

	for vk, set := range visitRows {
		m := bySite[vk.site]
		m.VisitGroups++
		if len(set) < cfg.ExpectedVisitRows {
			m.IncompleteVisits++
		}
	}

	sites := make([]string, 0, len(bySite))
	for s := range bySite {
		sites = append(sites, s)
	}
	sort.Strings(sites)

	out := make([]SiteMetrics, 0, len(sites))
	for _, s := range sites {
		m := bySite[s]
		m.UploadLateRate = rate(m.LateAssets, m.UploadEligible)
		m.TaskLateRate = rate(m.LateTasks, m.TaskEligible)
		m.FormLateRate = rate(m.LateForms, m.FormEligible)
		m.OpenActionRate = rate(m.OpenActions, m.ActionsRaised)
		m.MissingVisitRate = rate(m.IncompleteVisits, m.VisitGroups)
		m.OutOfWindowRate = rate(m.OutOfWindow, m.WindowChecked)

		if risk := mean(m.UploadLateRate, m.TaskLateRate, m.FormLateRate, m.OpenActionRate); risk != nil {
			m.RiskScore = util.FloatPtr(100 * *risk)
		}
		if all := mean(m.UploadLateRate, m.TaskLateRate, m.FormLateRate, m.OpenActionRate, m.MissingVisitRate); all != nil {
			m.DataQualityIndex = util.FloatPtr(100 * (1 - *all))
		}
		out = append(out, *m)
	}
	return out
}

func count(flag *bool, eligible, hits *int) {
	if flag == nil {
		return
	}
	*eligible++
	if *flag {
		*hits++
	}
}

// rate is nil when there is nothing to divide by.
func rate(hits, eligible int) *float64 {
	if eligible == 0 {
		return nil
	}
	return util.FloatPtr(float64(hits) / float64(eligible))
}

// mean averages the defined values and is nil when none is defined.
func mean(values ...*float64) *float64 {
	sum, n := 0.0, 0
	for _, v := range values {
		if v == nil {
			continue
		}
		sum += *v
		n++
	}
	if n == 0 {
		return nil
	}
	return util.FloatPtr(sum / float64(n))
}
