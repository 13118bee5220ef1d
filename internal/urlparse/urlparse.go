// Package urlparse detects and parses change URLs for the supported review
// platforms: GitHub pull request URLs and Gerrit (polygerrit) change URLs.
package urlparse

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/errkind"
)

// Target is a parsed change URL.
type Target struct {
	Source change.Source

	Host string

	// BasePath is the optional Gerrit server prefix before /c/
	// (e.g. "infra" in https://host/infra/c/project/+/123).
	BasePath string

	// Project is "owner/repo" for GitHub, the Gerrit project path otherwise.
	Project string

	Number int

	// Original preserves the input URL for display.
	Original string
}

var (
	githubPathRe = regexp.MustCompile(`^/([^/]+)/([^/]+)/pull/(\d+)(?:/.*)?$`)
	gerritPathRe = regexp.MustCompile(`^(?:/([^/]+))?/c/(.+)/\+/(\d+)(?:/.*)?$`)
)

// Parse extracts a Target from a GitHub PR URL or Gerrit change URL.
func Parse(raw string) (*Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errkind.New(errkind.Validation, "URL cannot be empty")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, errkind.Wrap(errkind.Validation, "invalid URL", err)
	}
	if u.Host == "" {
		return nil, errkind.New(errkind.Validation, "URL must include a hostname")
	}

	host := strings.ToLower(u.Host)
	path := strings.TrimRight(u.Path, "/")

	switch {
	case isGitHub(host, path):
		return parseGitHub(host, path, raw)
	case isGerrit(host, path):
		return parseGerrit(host, path, raw)
	default:
		return nil, errkind.New(errkind.Validation, fmt.Sprintf(
			"cannot determine platform for URL %q: expected a GitHub PR URL (/pull/) or a Gerrit change URL (/c/.../+/)", raw))
	}
}

func isGitHub(host, path string) bool {
	if strings.Contains(host, "github") {
		return true
	}
	return strings.Contains(path, "/pull/")
}

func isGerrit(host, path string) bool {
	if strings.Contains(path, "/c/") && strings.Contains(path, "/+/") {
		return true
	}
	if strings.Contains(host, "gerrit") {
		return strings.Contains(path, "/c/") || strings.HasPrefix(path, "/changes/")
	}
	return false
}

func parseGitHub(host, path, original string) (*Target, error) {
	m := githubPathRe.FindStringSubmatch(path)
	if m == nil {
		return nil, errkind.New(errkind.Validation, fmt.Sprintf(
			"invalid GitHub PR URL: expected https://%s/owner/repo/pull/123", host))
	}
	number, _ := strconv.Atoi(m[3])
	return &Target{
		Source:   change.SourceGitHub,
		Host:     host,
		Project:  m[1] + "/" + m[2],
		Number:   number,
		Original: original,
	}, nil
}

func parseGerrit(host, path, original string) (*Target, error) {
	m := gerritPathRe.FindStringSubmatch(path)
	if m == nil {
		return nil, errkind.New(errkind.Validation, fmt.Sprintf(
			"invalid Gerrit change URL: expected https://%s/c/project/+/12345 or https://%s/base/c/project/+/12345", host, host))
	}
	number, _ := strconv.Atoi(m[3])
	if number <= 0 {
		return nil, errkind.New(errkind.Validation, "Gerrit change number must be positive")
	}
	if m[2] == "" {
		return nil, errkind.New(errkind.Validation, "Gerrit URL must include a project name")
	}
	return &Target{
		Source:   change.SourceGerrit,
		Host:     host,
		BasePath: m[1],
		Project:  m[2],
		Number:   number,
		Original: original,
	}, nil
}

// Owner splits a GitHub project into its owner component. Returns "" for
// Gerrit targets.
func (t *Target) Owner() string {
	if t.Source != change.SourceGitHub {
		return ""
	}
	owner, _, _ := strings.Cut(t.Project, "/")
	return owner
}

// Repo splits a GitHub project into its repository component.
func (t *Target) Repo() string {
	if t.Source != change.SourceGitHub {
		return ""
	}
	_, repo, _ := strings.Cut(t.Project, "/")
	return repo
}
