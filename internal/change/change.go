// Package change defines the platform-neutral representation of a pending
// code-review change. GitHub pull requests and Gerrit changes are both
// projected onto Info by the platform clients; everything downstream
// (comparison, submission) operates on this shape and never branches on the
// source platform.
package change

import "time"

// Source identifies the review platform a change came from.
type Source string

const (
	SourceGitHub Source = "github"
	SourceGerrit Source = "gerrit"
)

// FileStatus describes what happened to a file in a change.
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileModified FileStatus = "modified"
	FileDeleted  FileStatus = "deleted"
	FileRenamed  FileStatus = "renamed"
)

// FileDelta is one changed file within a change.
type FileDelta struct {
	Path          string     `json:"path" yaml:"path"`
	Status        FileStatus `json:"status" yaml:"status"`
	LinesInserted int        `json:"lines_inserted" yaml:"lines_inserted"`
	LinesDeleted  int        `json:"lines_deleted" yaml:"lines_deleted"`
}

// Info is an immutable snapshot of a pending change. It is fetched once per
// comparison pass and never mutated; callers re-fetch to refresh.
type Info struct {
	Source Source `json:"source" yaml:"source"`

	// Number is the platform-local change identifier (PR number or Gerrit
	// change number). Key is the globally-stable content key (PR node ID or
	// Gerrit Change-Id).
	Number int    `json:"number" yaml:"number"`
	Key    string `json:"key,omitempty" yaml:"key,omitempty"`

	// Project is the repository or Gerrit project the change targets,
	// e.g. "org/repo" or "releng/builder".
	Project string `json:"project" yaml:"project"`

	Title  string `json:"title" yaml:"title"`
	Body   string `json:"body,omitempty" yaml:"body,omitempty"`
	Author string `json:"author" yaml:"author"`

	// CommitSubject is the first line of the change's first commit message.
	// Override tokens bind to it; empty when the platform snapshot carries
	// no commit data.
	CommitSubject string `json:"commit_subject,omitempty" yaml:"commit_subject,omitempty"`

	TargetBranch string `json:"target_branch" yaml:"target_branch"`
	Revision     string `json:"revision,omitempty" yaml:"revision,omitempty"`

	Files []FileDelta `json:"files,omitempty" yaml:"files,omitempty"`

	// Submittable is the platform's own readiness signal (mergeable PR,
	// Gerrit submit requirements satisfied). The orchestrator never submits
	// a change with Submittable false.
	Submittable bool `json:"submittable" yaml:"submittable"`
	Mergeable   bool `json:"mergeable" yaml:"mergeable"`

	Created time.Time `json:"created,omitempty" yaml:"created,omitempty"`
	Updated time.Time `json:"updated,omitempty" yaml:"updated,omitempty"`

	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// SameChange reports whether two snapshots refer to the same underlying
// change. Used by callers to exclude the source change from its own
// candidate set; the comparator itself performs no self-exclusion.
func (c *Info) SameChange(other *Info) bool {
	if c.Key != "" && other.Key != "" {
		return c.Key == other.Key
	}
	return c.Project == other.Project && c.Number == other.Number
}

// OverrideSubject is the line an override token binds to: the first commit's
// subject when known, the title otherwise.
func (c *Info) OverrideSubject() string {
	if c.CommitSubject != "" {
		return c.CommitSubject
	}
	return c.Title
}

// FilePaths returns the set of changed file paths.
func (c *Info) FilePaths() []string {
	paths := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		paths = append(paths, f.Path)
	}
	return paths
}

// TotalLinesChanged sums inserted and deleted lines across all files.
func (c *Info) TotalLinesChanged() int {
	total := 0
	for _, f := range c.Files {
		total += f.LinesInserted + f.LinesDeleted
	}
	return total
}

// ComparisonResult is the outcome of scoring one candidate against a source
// change. Derived and stateless; recomputed on demand, never persisted.
type ComparisonResult struct {
	IsSimilar       bool     `json:"is_similar" yaml:"is_similar"`
	ConfidenceScore float64  `json:"confidence_score" yaml:"confidence_score"`
	Reasons         []string `json:"reasons,omitempty" yaml:"reasons,omitempty"`
}

// NotSimilar builds a zero-confidence result with an optional reason.
func NotSimilar(reason string) ComparisonResult {
	r := ComparisonResult{}
	if reason != "" {
		r.Reasons = []string{reason}
	}
	return r
}
