package schema

import "trialsnap/internal/loader"

const (
	TableSchedule = "schedule"
	TableAssets   = "assets"
	TableForms    = "forms"
)

const (
	FieldSite           = "site"
	FieldSubject        = "subject"
	FieldVisit          = "visit"
	FieldAssessment     = "assessment"
	FieldAssessmentID   = "assessment_id"
	FieldScheduledDate  = "scheduled_date"
	FieldStatus         = "status"
	FieldStatusDate     = "status_date"
	FieldTaskDates      = "task_dates"
	FieldActionRaised   = "action_raised"
	FieldActionResolved = "action_resolved"

	FieldProcedureDate = "procedure_date"
	FieldUploadDate    = "upload_date"

	FieldCreatedDate   = "created_date"
	FieldSubmittedDate = "submitted_date"
	FieldComment       = "comment"
)

// CanonicalField is a semantic slot plus the literal column names accepted for
// it, in priority order. Multi fields collect every column between Prefix and
// Suffix instead of picking one.
type CanonicalField struct {
	Name       string
	Candidates []string
	Required   bool
	Date       bool

	Multi  bool
	Prefix string
	Suffix string
}

var (
	siteCandidates       = []string{"Site", "Site Name", "Site Number", "Site ID"}
	subjectCandidates    = []string{"Subject", "Subject Number", "Subject ID", "Screening Number"}
	visitCandidates      = []string{"Visit", "Visit Name", "Event"}
	assessmentCandidates = []string{"Assessment Name", "Assessment", "Study Procedure Name", "Study Procedure", "Procedure"}
)

var ScheduleFields = []CanonicalField{
	{Name: FieldSite, Candidates: siteCandidates, Required: true},
	{Name: FieldSubject, Candidates: subjectCandidates, Required: true},
	{Name: FieldVisit, Candidates: visitCandidates, Required: true},
	{Name: FieldAssessment, Candidates: assessmentCandidates, Required: true},
	{Name: FieldAssessmentID, Candidates: []string{"Assessment ID", "Study Procedure ID", "Procedure ID"}, Required: true},
	{Name: FieldScheduledDate, Candidates: []string{"Assessment Date", "Study Procedure Date", "Scheduled Date", "Procedure Date"}, Required: true, Date: true},
	{Name: FieldStatus, Candidates: []string{"Assessment Status", "Status"}},
	{Name: FieldStatusDate, Candidates: []string{"Assessment Status Date", "Status Date"}, Date: true},
	{Name: FieldTaskDates, Multi: true, Prefix: "task", Suffix: "date", Date: true},
	{Name: FieldActionRaised, Candidates: []string{"Action Raised Date", "Action Raised", "Query Raised Date"}, Date: true},
	{Name: FieldActionResolved, Candidates: []string{"Action Resolved Date", "Action Resolved", "Query Resolved Date"}, Date: true},
}

var AssetFields = []CanonicalField{
	{Name: FieldSite, Candidates: siteCandidates, Required: true},
	{Name: FieldSubject, Candidates: subjectCandidates, Required: true},
	{Name: FieldVisit, Candidates: visitCandidates, Required: true},
	{Name: FieldAssessment, Candidates: assessmentCandidates, Required: true},
	{Name: FieldProcedureDate, Candidates: []string{"Study Procedure Date", "Assessment Date", "Procedure Date"}, Required: true, Date: true},
	{Name: FieldUploadDate, Candidates: []string{"Upload Date", "Uploaded Date", "Upload Timestamp", "Uploaded On"}, Required: true, Date: true},
	{Name: FieldAssessmentID, Candidates: []string{"Assessment ID", "Study Procedure ID"}},
}

var FormFields = []CanonicalField{
	{Name: FieldAssessmentID, Candidates: []string{"Study Procedure ID", "Assessment ID", "Procedure ID"}, Required: true},
	{Name: FieldCreatedDate, Candidates: []string{"Date Created", "Created Date", "Created On"}, Required: true, Date: true},
	{Name: FieldSubmittedDate, Candidates: []string{"Submitted Date", "Date Submitted", "Submitted On"}, Required: true, Date: true},
	{Name: FieldComment, Candidates: []string{"Review Comment", "QC Comment", "Comment", "Comments"}},
}

// FieldsFor returns the vocabulary of one of the three source tables.
func FieldsFor(table string) []CanonicalField {
	switch table {
	case TableSchedule:
		return ScheduleFields
	case TableAssets:
		return AssetFields
	case TableForms:
		return FormFields
	default:
		return nil
	}
}

// Mapping holds the resolutions of a vocabulary against one table instance.
type Mapping struct {
	Table    string
	Fields   []CanonicalField
	resolved map[string]Resolution
	multi    map[string][]string
}

// ResolveTable resolves every field of the vocabulary against the table's
// column names. It depends on nothing but those names.
func ResolveTable(table *loader.Table, fields []CanonicalField) Mapping {
	m := Mapping{
		Table:    table.Name,
		Fields:   fields,
		resolved: map[string]Resolution{},
		multi:    map[string][]string{},
	}
	for _, f := range fields {
		if f.Multi {
			m.multi[f.Name] = ResolveAll(table.Columns, f.Prefix, f.Suffix)
			continue
		}
		m.resolved[f.Name] = Resolve(table.Columns, f.Candidates)
	}
	return m
}

func (m Mapping) Resolution(field string) Resolution {
	return m.resolved[field]
}

// Columns returns the columns bound to a multi field.
func (m Mapping) Columns(field string) []string {
	return m.multi[field]
}

// DateColumns lists every resolved column that holds dates, in field order.
func (m Mapping) DateColumns() []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(c string) {
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	for _, f := range m.Fields {
		if !f.Date {
			continue
		}
		if f.Multi {
			for _, c := range m.multi[f.Name] {
				add(c)
			}
			continue
		}
		if c, ok := m.resolved[f.Name].Name(); ok {
			add(c)
		}
	}
	return out
}

// Unresolved lists required fields that found no column, in vocabulary order.
func (m Mapping) Unresolved() []string {
	var out []string
	for _, f := range m.Fields {
		if !f.Required {
			continue
		}
		if f.Multi {
			if len(m.multi[f.Name]) == 0 {
				out = append(out, f.Name)
			}
			continue
		}
		if !m.resolved[f.Name].IsResolved() {
			out = append(out, f.Name)
		}
	}
	return out
}
