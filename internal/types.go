package internal

import "trialsnap/internal/temporal"

type ReportKind string

const (
	ReportSchedule ReportKind = "schedule"
	ReportAssets   ReportKind = "assets"
	ReportForms    ReportKind = "forms"
	ReportUnknown  ReportKind = "unknown"
)

// AssessmentKey identifies an assessment across the schedule and asset reports.
type AssessmentKey struct {
	Site       string
	Subject    string
	Visit      string
	Assessment string
}

func (k AssessmentKey) Complete() bool {
	return k.Site != "" && k.Subject != "" && k.Visit != "" && k.Assessment != ""
}

// ScheduleRecord is one planned assessment. It anchors every KPI.
type ScheduleRecord struct {
	SourceRow      int
	Site           string
	Subject        string
	Visit          string
	Assessment     string
	AssessmentID   string
	ScheduledDate  temporal.Date
	Status         string
	StatusDate     temporal.Date
	TaskDates      []temporal.Date
	ActionRaised   temporal.Date
	ActionResolved temporal.Date
}

func (r ScheduleRecord) Key() AssessmentKey {
	return AssessmentKey{Site: r.Site, Subject: r.Subject, Visit: r.Visit, Assessment: r.Assessment}
}

// AssetRecord is one uploaded source document.
type AssetRecord struct {
	SourceRow     int
	Site          string
	Subject       string
	Visit         string
	Assessment    string
	AssessmentID  string
	ProcedureDate temporal.Date
	UploadDate    temporal.Date
	// UploadDelay is nil when either date is missing.
	UploadDelay *int
}

func (r AssetRecord) Key() AssessmentKey {
	return AssessmentKey{Site: r.Site, Subject: r.Subject, Visit: r.Visit, Assessment: r.Assessment}
}

// FormRecord is one submitted electronic form.
type FormRecord struct {
	SourceRow     int
	AssessmentID  string
	CreatedDate   temporal.Date
	SubmittedDate temporal.Date
	Comment       string
}

// ReconciledRecord is a schedule row joined with its asset group and form.
// Pointers are nil when the value is undefined.
type ReconciledRecord struct {
	ScheduleRecord

	AssetMatched   bool
	UploadCount    int
	FirstUpload    temporal.Date
	MaxUploadDelay *int

	FormMatched   bool
	FormCreated   temporal.Date
	FormSubmitted temporal.Date
	FormComment   string

	TaskDelay *int
	FormDelay *int
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type RunStatus string

const (
	RunOK          RunStatus = "ok"
	RunFormatError RunStatus = "format_error"
	RunSchemaError RunStatus = "schema_error"
	RunFailed      RunStatus = "failed"
)

type RunRow struct {
	ID        string
	Identity  string
	Source    string
	Status    RunStatus
	CacheHit  bool
	Counts    map[string]int
	Timings   map[string]float64
	Report    string
	CreatedAt string
}
