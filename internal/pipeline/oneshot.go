package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"trialsnap/internal"
	"trialsnap/internal/connectors"
	"trialsnap/internal/loader"
)

// Source is one raw report export.
type Source struct {
	Name string
	Data []byte
}

// Inputs is a complete report bundle. Origin and EmailID only label the run.
type Inputs struct {
	Schedule Source
	Assets   Source
	Forms    Source

	Origin  string
	EmailID int
}

func InputsFromFiles(schedulePath, assetsPath, formsPath string) (Inputs, error) {
	in := Inputs{Origin: "files"}
	for _, f := range []struct {
		path string
		dst  *Source
	}{
		{schedulePath, &in.Schedule},
		{assetsPath, &in.Assets},
		{formsPath, &in.Forms},
	} {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return Inputs{}, err
		}
		*f.dst = Source{Name: filepath.Base(f.path), Data: data}
	}
	return in, nil
}

// BundleError reports a message whose attachments do not form a complete
// schedule/assets/forms set.
type BundleError struct {
	Missing      []internal.ReportKind
	Duplicate    []internal.ReportKind
	Unclassified []string
}

func (e *BundleError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+joinKinds(e.Missing))
	}
	if len(e.Duplicate) > 0 {
		parts = append(parts, "more than one "+joinKinds(e.Duplicate))
	}
	if len(e.Unclassified) > 0 {
		parts = append(parts, "unclassified "+strings.Join(e.Unclassified, ", "))
	}
	return "incomplete report bundle: " + strings.Join(parts, "; ")
}

func joinKinds(kinds []internal.ReportKind) string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return strings.Join(out, ", ")
}

// InputsFromEmail classifies the report attachments of a raw message into a
// bundle.
func InputsFromEmail(raw []byte, opts loader.Options) (Inputs, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Inputs{}, fmt.Errorf("read email: %w", err)
	}

	found := map[internal.ReportKind]Source{}
	bundleErr := &BundleError{}
	for _, part := range append(env.Attachments, env.Inlines...) {
		if !connectors.IsReportAttachment(part.FileName) {
			continue
		}
		kind := DetectReportKind(part.FileName, part.Content, opts)
		if kind == internal.ReportUnknown {
			bundleErr.Unclassified = append(bundleErr.Unclassified, part.FileName)
			continue
		}
		if _, ok := found[kind]; ok {
			bundleErr.Duplicate = append(bundleErr.Duplicate, kind)
			continue
		}
		found[kind] = Source{Name: part.FileName, Data: part.Content}
	}

	for _, kind := range []internal.ReportKind{internal.ReportSchedule, internal.ReportAssets, internal.ReportForms} {
		if _, ok := found[kind]; !ok {
			bundleErr.Missing = append(bundleErr.Missing, kind)
		}
	}
	if len(bundleErr.Missing) > 0 || len(bundleErr.Duplicate) > 0 {
		return Inputs{}, bundleErr
	}

	return Inputs{
		Schedule: found[internal.ReportSchedule],
		Assets:   found[internal.ReportAssets],
		Forms:    found[internal.ReportForms],
		Origin:   "email",
	}, nil
}
