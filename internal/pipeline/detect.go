package pipeline

import (
	"strings"

	"trialsnap/internal"
	"trialsnap/internal/loader"
	"trialsnap/internal/schema"
)

var kindKeywords = map[internal.ReportKind][]string{
	internal.ReportSchedule: {"schedule", "visit", "calendar", "planned"},
	internal.ReportAssets:   {"asset", "upload", "document", "image"},
	internal.ReportForms:    {"form", "ecrf", "crf", "submission"},
}

// DetectReportKind classifies one export, first by keywords in its file name,
// then by which vocabulary its header resolves completely.
func DetectReportKind(fileName string, blob []byte, opts loader.Options) internal.ReportKind {
	if kind := kindFromName(fileName); kind != internal.ReportUnknown {
		return kind
	}
	return kindFromHeader(fileName, blob, opts)
}

func kindFromName(fileName string) internal.ReportKind {
	tokens := map[string]bool{}
	for _, token := range strings.Fields(schema.Normalize(fileName)) {
		tokens[strings.TrimSuffix(token, "s")] = true
	}
	best, bestScore, tie := internal.ReportUnknown, 0, false
	for _, kind := range []internal.ReportKind{internal.ReportSchedule, internal.ReportAssets, internal.ReportForms} {
		score := 0
		for _, kw := range kindKeywords[kind] {
			if tokens[kw] {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tie = kind, score, false
		case score == bestScore && score > 0:
			tie = true
		}
	}
	if tie {
		return internal.ReportUnknown
	}
	return best
}

// Forms and assets each require a column the schedule vocabulary never
// accepts, so they are tried first.
func kindFromHeader(fileName string, blob []byte, opts loader.Options) internal.ReportKind {
	table, err := loader.Load(fileName, blob, opts)
	if err != nil {
		return internal.ReportUnknown
	}
	for _, c := range []struct {
		kind  internal.ReportKind
		table string
	}{
		{internal.ReportForms, schema.TableForms},
		{internal.ReportAssets, schema.TableAssets},
		{internal.ReportSchedule, schema.TableSchedule},
	} {
		if len(schema.ResolveTable(table, schema.FieldsFor(c.table)).Unresolved()) == 0 {
			return c.kind
		}
	}
	return internal.ReportUnknown
}
