package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  Assessment   Date ": "assessment date",
		"Study-Procedure_ID":   "study procedure id",
		"Upload Date (UTC)":    "upload date utc",
		"***":                  "",
		"Subject Number #":     "subject number",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"", " A--B ", "Date Créé", "Task 1 / Date", "__x__", "ÄÖ ü", "Week 4!!"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

func TestResolveExactOutranksSubstring(t *testing.T) {
	cands := []string{"Assessment Date", "Study Procedure Date"}

	r := Resolve([]string{"Study Procedure Date", "Assessment Date"}, cands)
	name, ok := r.Name()
	assert.True(t, ok)
	assert.Equal(t, "Assessment Date", name)

	r = Resolve([]string{"Assessment Date", "Study Procedure Date"}, cands)
	name, _ = r.Name()
	assert.Equal(t, "Assessment Date", name)
}

func TestResolveExactLaterCandidateBeatsSubstringEarlierCandidate(t *testing.T) {
	r := Resolve([]string{"Planned Assessment Date", "Study Procedure Date"}, []string{"Assessment Date", "Study Procedure Date"})
	assert.Equal(t, "Study Procedure Date", r.String())
}

func TestResolveSubstringLeftMostColumn(t *testing.T) {
	r := Resolve([]string{"Notes", "Upload Date (UTC)", "Upload Date Local"}, []string{"Upload Date"})
	assert.Equal(t, "Upload Date (UTC)", r.String())
}

func TestResolveUnresolved(t *testing.T) {
	r := Resolve([]string{"Foo", "Bar"}, []string{"Upload Date"})
	_, ok := r.Name()
	assert.False(t, ok)
	assert.Equal(t, Unresolved(), r)
}

func TestResolveIsStable(t *testing.T) {
	cols := []string{"Site Name", "Subject Number", "Visit"}
	first := Resolve(cols, siteCandidates)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Resolve(cols, siteCandidates))
	}
}

func TestResolveAll(t *testing.T) {
	cols := []string{"Task 1 Date", "Assessment Date", "Task Completed Date", "Task Owner", "task-2-date"}
	assert.Equal(t, []string{"Task 1 Date", "Task Completed Date", "task-2-date"}, ResolveAll(cols, "task", "date"))
	assert.Empty(t, ResolveAll([]string{"Site"}, "task", "date"))
}
