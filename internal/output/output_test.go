package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/submit"
)

func init() {
	color.NoColor = true
}

func sampleRun() *RunReport {
	results := []submit.Result{
		{Change: &change.Info{Project: "org/a", Number: 1, Title: "Bump x"}, Status: submit.StatusSubmitted},
		{Change: &change.Info{Project: "org/b", Number: 2, Title: "Bump x"}, Status: submit.StatusBlocked, Error: "change is not submittable"},
		{Change: &change.Info{Project: "org/c", Number: 3, Title: "Bump x"}, Status: submit.StatusFailed, Error: "submit: merge refused"},
	}
	return &RunReport{
		Source:  &change.Info{Project: "org/src", Number: 9, Title: "Bump x"},
		Results: results,
		Summary: Summarize(results),
	}
}

func TestSummarize(t *testing.T) {
	results := []submit.Result{
		{Status: submit.StatusSubmitted},
		{Status: submit.StatusSubmitted},
		{Status: submit.StatusBlocked},
		{Status: submit.StatusFailed},
		{Status: submit.StatusPending},
	}
	s := Summarize(results)
	if s.Submitted != 2 || s.Blocked != 1 || s.Failed != 1 || s.Pending != 1 {
		t.Errorf("summary = %+v, want 2/1/1/1", s)
	}
}

func TestParseFormat(t *testing.T) {
	for _, ok := range []string{"text", "JSON", " yaml "} {
		if _, err := ParseFormat(ok); err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", ok, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("ParseFormat(xml) should fail")
	}
}

func TestWriteRunJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRun(&buf, sampleRun(), FormatJSON); err != nil {
		t.Fatalf("WriteRun failed: %v", err)
	}

	var decoded RunReport
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if decoded.Summary.Submitted != 1 || decoded.Summary.Blocked != 1 || decoded.Summary.Failed != 1 {
		t.Errorf("decoded summary = %+v", decoded.Summary)
	}
	if len(decoded.Results) != 3 {
		t.Errorf("decoded %d results, want 3", len(decoded.Results))
	}
}

func TestWriteRunYAMLIsValid(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRun(&buf, sampleRun(), FormatYAML); err != nil {
		t.Fatalf("WriteRun failed: %v", err)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if _, ok := decoded["summary"]; !ok {
		t.Error("yaml output missing summary")
	}
}

func TestWriteRunTextShowsSummaryAndErrors(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteRun(&buf, sampleRun(), FormatText); err != nil {
		t.Fatalf("WriteRun failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"org/a#1", "org/c#3", "merge refused", "1 submitted", "1 blocked", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteScanTextListsMatches(t *testing.T) {
	report := &ScanReport{
		Source:     &change.Info{Project: "org/src", Number: 9, Title: "Bump x"},
		Considered: 12,
		Similar: []Candidate{
			{
				Change: &change.Info{Project: "org/a", Number: 1, Title: "Bump x"},
				Comparison: change.ComparisonResult{
					IsSimilar:       true,
					ConfidenceScore: 0.97,
					Reasons:         []string{"similar titles (score: 1.00)"},
				},
			},
		},
	}

	var buf bytes.Buffer
	if err := WriteScan(&buf, report, FormatText); err != nil {
		t.Fatalf("WriteScan failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"org/src#9", "org/a#1", "0.97", "similar titles"} {
		if !strings.Contains(out, want) {
			t.Errorf("scan output missing %q:\n%s", want, out)
		}
	}
}
