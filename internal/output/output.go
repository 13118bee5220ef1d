// Package output renders scan and merge results for the terminal or for
// machine consumption. The text renderer is for humans; json and yaml emit
// the same report structures verbatim.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/errkind"
	"github.com/everstacklabs/depmerge/internal/submit"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", errkind.New(errkind.Validation, fmt.Sprintf("unknown output format %q (want text, json, or yaml)", s))
	}
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// Candidate pairs a change with its similarity verdict.
type Candidate struct {
	Change     *change.Info            `json:"change" yaml:"change"`
	Comparison change.ComparisonResult `json:"comparison" yaml:"comparison"`
}

// ScanReport is the result of a scan: the source change and every open
// change that was considered, similar or not.
type ScanReport struct {
	Source     *change.Info `json:"source" yaml:"source"`
	Considered int          `json:"considered" yaml:"considered"`
	Similar    []Candidate  `json:"similar" yaml:"similar"`
}

// Summary aggregates terminal statuses of a run.
type Summary struct {
	Submitted int `json:"submitted" yaml:"submitted"`
	Blocked   int `json:"blocked" yaml:"blocked"`
	Failed    int `json:"failed" yaml:"failed"`
	Pending   int `json:"pending" yaml:"pending"`
}

// RunReport is the result of a merge run.
type RunReport struct {
	Source  *change.Info    `json:"source" yaml:"source"`
	DryRun  bool            `json:"dry_run" yaml:"dry_run"`
	Results []submit.Result `json:"results" yaml:"results"`
	Summary Summary         `json:"summary" yaml:"summary"`
}

// Summarize tallies results into a Summary.
func Summarize(results []submit.Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case submit.StatusSubmitted:
			s.Submitted++
		case submit.StatusBlocked:
			s.Blocked++
		case submit.StatusFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// WriteScan renders a ScanReport.
func WriteScan(w io.Writer, report *ScanReport, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatYAML:
		return writeYAML(w, report)
	default:
		writeScanText(w, report)
		return nil
	}
}

// WriteRun renders a RunReport.
func WriteRun(w io.Writer, report *RunReport, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, report)
	case FormatYAML:
		return writeYAML(w, report)
	default:
		writeRunText(w, report)
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}

func writeScanText(w io.Writer, report *ScanReport) {
	src := report.Source
	fmt.Fprintf(w, "%s %s\n", bold("Source:"), describeChange(src))
	fmt.Fprintf(w, "%s %d open changes considered, %d similar\n\n",
		bold("Scan:"), report.Considered, len(report.Similar))

	if len(report.Similar) == 0 {
		fmt.Fprintln(w, faint("no similar changes found"))
		return
	}

	for _, cand := range report.Similar {
		fmt.Fprintf(w, "  %s %s\n", green("match"), describeChange(cand.Change))
		fmt.Fprintf(w, "        confidence %.2f", cand.Comparison.ConfidenceScore)
		if len(cand.Comparison.Reasons) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(cand.Comparison.Reasons, "; "))
		}
		fmt.Fprintln(w)
	}
}

func writeRunText(w io.Writer, report *RunReport) {
	fmt.Fprintf(w, "%s %s\n", bold("Source:"), describeChange(report.Source))
	if report.DryRun {
		fmt.Fprintln(w, yellow("dry run: no reviews or submits were performed"))
	}
	fmt.Fprintln(w)

	for _, r := range report.Results {
		fmt.Fprintf(w, "  %s %s", statusLabel(r.Status), describeChange(r.Change))
		if r.Error != "" {
			fmt.Fprintf(w, "\n        %s", faint(r.Error))
		}
		fmt.Fprintln(w)
	}

	s := report.Summary
	fmt.Fprintf(w, "\n%s %s submitted, %s blocked, %s failed",
		bold("Summary:"),
		green(fmt.Sprintf("%d", s.Submitted)),
		yellow(fmt.Sprintf("%d", s.Blocked)),
		red(fmt.Sprintf("%d", s.Failed)))
	if s.Pending > 0 {
		fmt.Fprintf(w, ", %s pending", faint(fmt.Sprintf("%d", s.Pending)))
	}
	fmt.Fprintln(w)
}

func statusLabel(st submit.Status) string {
	switch st {
	case submit.StatusSubmitted:
		return green("submitted")
	case submit.StatusBlocked:
		return yellow("blocked  ")
	case submit.StatusFailed:
		return red("failed   ")
	default:
		return faint(string(st))
	}
}

func describeChange(c *change.Info) string {
	if c == nil {
		return faint("(unknown)")
	}
	title := c.Title
	if len(title) > 70 {
		title = title[:67] + "..."
	}
	return fmt.Sprintf("%s %s", cyan(fmt.Sprintf("%s#%d", c.Project, c.Number)), title)
}
