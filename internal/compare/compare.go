// Package compare scores pairs of changes for similarity. The score drives
// batch membership: candidates above the caller's threshold are handed to the
// submission runner.
//
// Scoring combines four signals (title, file set, body, author) as a
// weighted sum, with automation status acting as a gate rather than a signal:
// when only-automation filtering is requested and either side is not
// automation-authored, the result is zero-confidence regardless of the other
// signals, unless an override authorization applies.
package compare

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/everstacklabs/depmerge/internal/change"
)

// automationIndicators match known bot identities and tool signatures in
// author, title, or body text.
var automationIndicators = []string{
	"dependabot",
	"pre-commit",
	"renovate",
	"github-actions",
	"auto-update",
	"automated",
	"bot",
	"pre-commit-ci",
	"greenkeeper",
	"snyk",
}

var automationSubjectRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^chore\(deps\):`),
	regexp.MustCompile(`(?i)^build\(deps\):`),
	regexp.MustCompile(`(?i)^chore: bump`),
	regexp.MustCompile(`(?i)^chore: update`),
	regexp.MustCompile(`(?i)^bump\s+\S+\s+from\s+\S+\s+to\s+`),
	regexp.MustCompile(`(?i)^update\s+\S+\s+from\s+\S+\s+to\s+`),
	regexp.MustCompile(`(?i)\[bot\]$`),
}

// Weights control the contribution of each signal. They need not sum to 1;
// the aggregate is normalized by the total. Exact values are tuning, not
// contract: title dominates, files second, body third, author last.
type Weights struct {
	Title  float64
	Files  float64
	Body   float64
	Author float64
}

// DefaultWeights returns the shipped tuning.
func DefaultWeights() Weights {
	return Weights{Title: 0.4, Files: 0.3, Body: 0.2, Author: 0.1}
}

func (w Weights) total() float64 {
	return w.Title + w.Files + w.Body + w.Author
}

// Options configure a comparison.
type Options struct {
	// Threshold is the minimum confidence for IsSimilar.
	Threshold float64

	// OnlyAutomation gates out pairs where either side is not
	// automation-authored. OverrideAuthorized applies once the operator has
	// validated an override token for a non-automation source change; it
	// admits only non-automation candidates by the same author, never
	// automation changes or other authors' changes.
	OnlyAutomation     bool
	OverrideAuthorized bool

	// Weights default to DefaultWeights when zero.
	Weights Weights
}

// strongTitleMatch is the title score above which two changes with no
// declared files (or no bodies) are still allowed to count those signals as
// matching. Prevents two unrelated empty changes from scoring high.
const strongTitleMatch = 0.8

// Per-signal minimums for inclusion in Reasons.
const (
	titleReasonMin = 0.7
	bodyReasonMin  = 0.6
	filesReasonMin = 0.5
)

// IsAutomationChange reports whether a change looks authored by a known
// automation tool, based on author identity and content markers.
func IsAutomationChange(c *change.Info) bool {
	text := strings.ToLower(c.Title + " " + c.Body + " " + c.Author)
	for _, ind := range automationIndicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	for _, re := range automationSubjectRes {
		if re.MatchString(c.Title) {
			return true
		}
	}
	return false
}

// Compare scores candidate against source. Pure and total: well-formed
// inputs never fail, and the same inputs always produce the same result.
func Compare(source, candidate *change.Info, opts Options) change.ComparisonResult {
	w := opts.Weights
	if w.total() == 0 {
		w = DefaultWeights()
	}

	if opts.OnlyAutomation {
		srcAuto := IsAutomationChange(source)
		candAuto := IsAutomationChange(candidate)
		switch {
		case srcAuto && candAuto:
		case opts.OverrideAuthorized && !srcAuto:
			// An override token is minted for one author's change. It never
			// extends to automation changes or to other authors' changes.
			if candAuto || candidate.Author != source.Author {
				return change.NotSimilar("override covers only the source author's changes")
			}
		default:
			return change.NotSimilar("not automation-authored")
		}
	}

	titleScore := compareTitles(source.Title, candidate.Title)
	fileScore := compareFiles(source.FilePaths(), candidate.FilePaths(), titleScore)
	bodyScore := compareBodies(source.Body, candidate.Body, titleScore)
	authorScore := 0.0
	if normalizeAuthor(source.Author) == normalizeAuthor(candidate.Author) {
		authorScore = 1.0
	}

	confidence := (titleScore*w.Title + fileScore*w.Files + bodyScore*w.Body + authorScore*w.Author) / w.total()

	type signal struct {
		reason       string
		contribution float64
	}
	var signals []signal
	if titleScore > titleReasonMin {
		signals = append(signals, signal{
			fmt.Sprintf("similar titles (score: %.2f)", titleScore), titleScore * w.Title})
	}
	if fileScore > filesReasonMin {
		signals = append(signals, signal{
			fmt.Sprintf("similar file changes (score: %.2f)", fileScore), fileScore * w.Files})
	}
	if bodyScore > bodyReasonMin {
		signals = append(signals, signal{
			fmt.Sprintf("similar descriptions (score: %.2f)", bodyScore), bodyScore * w.Body})
	}
	if authorScore == 1.0 {
		signals = append(signals, signal{"same author", authorScore * w.Author})
	}
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].contribution > signals[j].contribution
	})

	reasons := make([]string, 0, len(signals))
	for _, s := range signals {
		reasons = append(reasons, s.reason)
	}

	return change.ComparisonResult{
		IsSimilar:       confidence >= opts.Threshold,
		ConfidenceScore: confidence,
		Reasons:         reasons,
	}
}

// compareTitles scores two subjects. Dependency-update subjects are matched
// by package name: same package scores 1 regardless of versions, different
// packages score 0. Everything else falls back to token overlap of the
// normalized text.
func compareTitles(a, b string) float64 {
	pkgA, pkgB := extractPackage(a), extractPackage(b)
	if pkgA != "" && pkgB != "" {
		if pkgA == pkgB {
			return 1
		}
		return 0
	}
	return tokenOverlap(normalizeTitle(a), normalizeTitle(b))
}

// compareFiles computes the Jaccard ratio over normalized paths. Two empty
// file sets count as a match only when the titles already match strongly.
// Line-count deltas are deliberately ignored.
func compareFiles(a, b []string, titleScore float64) float64 {
	if len(a) == 0 && len(b) == 0 {
		if titleScore >= strongTitleMatch {
			return 1
		}
		return 0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(a))
	for _, p := range a {
		setA[normalizePath(p)] = true
	}
	setB := make(map[string]bool, len(b))
	for _, p := range b {
		setB[normalizePath(p)] = true
	}

	intersection := 0
	for p := range setA {
		if setB[p] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	base := float64(intersection) / float64(union)

	// Both touching CI workflow files is a meaningful partial match even
	// when the specific workflows differ.
	if containsWorkflow(setA) && containsWorkflow(setB) && base < 0.5 {
		return 0.5
	}
	return base
}

func containsWorkflow(paths map[string]bool) bool {
	for p := range paths {
		if strings.Contains(p, ".github/workflows/") {
			return true
		}
	}
	return false
}

// compareBodies scores the full descriptions. Known automation boilerplate
// (Dependabot, pre-commit) is matched by tool-specific structure before
// falling back to token overlap. Two empty bodies mirror the file-set edge
// rule: they match only under a strong title match.
func compareBodies(a, b string, titleScore float64) float64 {
	if a == "" && b == "" {
		if titleScore >= strongTitleMatch {
			return 1
		}
		return 0
	}
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	if isDependabotBody(a) && isDependabotBody(b) {
		pkgA, pkgB := extractDependabotPackage(a), extractDependabotPackage(b)
		if pkgA != "" && pkgB != "" {
			if pkgA == pkgB {
				return 0.95
			}
			return 0.1
		}
	}
	if isPrecommitBody(a) && isPrecommitBody(b) {
		return 0.9
	}

	na, nb := normalizeBody(a), normalizeBody(b)
	// Short descriptions carry too few tokens for overlap to mean much.
	if len(na) < 50 || len(nb) < 50 {
		if na == nb {
			return 1
		}
		return 0
	}
	return tokenOverlap(na, nb)
}

func isDependabotBody(body string) bool {
	indicators := []string{"dependabot", "bumps", "release notes", "changelog", "dependency-name:"}
	s := strings.ToLower(body)
	matches := 0
	for _, ind := range indicators {
		if strings.Contains(s, ind) {
			matches++
		}
	}
	return matches >= 2
}

func extractDependabotPackage(body string) string {
	if m := dependencyNameRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := bumpsBracketRe.FindStringSubmatch(body); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func isPrecommitBody(body string) bool {
	s := strings.ToLower(body)
	for _, ind := range []string{"pre-commit", "autoupdate", ".pre-commit-config.yaml"} {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}
