package compare

import (
	"regexp"
	"strings"
)

var (
	versionRe = regexp.MustCompile(`v?\d+\.\d+\.\d+(?:\.\d+)?(?:-[a-zA-Z0-9.-]+)?`)
	hashRe    = regexp.MustCompile(`\b[a-f0-9]{7,40}\b`)
	dateRe    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	urlRe     = regexp.MustCompile(`https?://\S+`)
	punctRe   = regexp.MustCompile(`[^\w\s]`)

	// Dependency-bump subjects name the package between the verb and "from".
	packageRe = regexp.MustCompile(`(?i)(?:chore:\s*|build\(deps(?:-dev)?\):\s*)?\b(?:bump|update|upgrade)\s+(\S+)\s+from\s+`)

	dependencyNameRe = regexp.MustCompile(`(?i)dependency-name:\s*(\S+)`)
	bumpsBracketRe   = regexp.MustCompile(`(?i)bumps\s+\[([^\]]+)\]`)
)

// normalizeTitle strips version-specific noise so that two bumps of the same
// package normalize to the same text.
func normalizeTitle(title string) string {
	s := versionRe.ReplaceAllString(title, "")
	s = hashRe.ReplaceAllString(s, "")
	s = dateRe.ReplaceAllString(s, "")
	s = punctRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// normalizeBody replaces volatile segments with placeholders instead of
// deleting them, so boilerplate structure still contributes to overlap.
func normalizeBody(body string) string {
	s := strings.ToLower(body)
	s = urlRe.ReplaceAllString(s, "")
	s = versionRe.ReplaceAllString(s, "VERSION")
	s = hashRe.ReplaceAllString(s, "COMMIT")
	s = dateRe.ReplaceAllString(s, "DATE")
	return strings.Join(strings.Fields(s), " ")
}

// normalizePath lower-cases a file path and drops embedded version segments.
func normalizePath(path string) string {
	return strings.ToLower(versionRe.ReplaceAllString(path, ""))
}

// normalizeAuthor folds bot-identity variants ("dependabot[bot]",
// "renovate-bot") onto their base name.
func normalizeAuthor(author string) string {
	s := strings.ToLower(strings.TrimSpace(author))
	s = strings.TrimSuffix(s, "[bot]")
	for _, suffix := range []string{"-bot", "_bot", ".bot"} {
		if strings.HasSuffix(s, suffix) {
			s = strings.TrimSuffix(s, suffix)
			break
		}
	}
	return s
}

// extractPackage pulls the package name out of a dependency-update subject,
// or returns "" when the subject does not look like one.
func extractPackage(title string) string {
	m := packageRe.FindStringSubmatch(strings.ToLower(title))
	if m == nil {
		return ""
	}
	return strings.Trim(m[1], `"'`)
}

// tokenOverlap scores two normalized strings by Dice coefficient over their
// word sets. Symmetric, 0 for disjoint, 1 for identical sets.
func tokenOverlap(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 && len(tb) == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	seen := make(map[string]bool, len(ta))
	for _, t := range ta {
		seen[t] = true
	}
	shared := 0
	counted := make(map[string]bool, len(tb))
	for _, t := range tb {
		if seen[t] && !counted[t] {
			shared++
			counted[t] = true
		}
	}
	setA := len(seen)
	setB := 0
	dedup := make(map[string]bool, len(tb))
	for _, t := range tb {
		if !dedup[t] {
			dedup[t] = true
			setB++
		}
	}
	return 2 * float64(shared) / float64(setA+setB)
}
