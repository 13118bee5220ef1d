package urlparse

import (
	"testing"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/errkind"
)

func TestParseGitHubPR(t *testing.T) {
	target, err := Parse("https://github.com/acme/widgets/pull/123")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if target.Source != change.SourceGitHub {
		t.Errorf("source = %s, want github", target.Source)
	}
	if target.Project != "acme/widgets" {
		t.Errorf("project = %s, want acme/widgets", target.Project)
	}
	if target.Number != 123 {
		t.Errorf("number = %d, want 123", target.Number)
	}
	if target.Owner() != "acme" || target.Repo() != "widgets" {
		t.Errorf("owner/repo = %s/%s, want acme/widgets", target.Owner(), target.Repo())
	}
}

func TestParseGitHubPRWithTrailingPath(t *testing.T) {
	target, err := Parse("https://github.com/acme/widgets/pull/123/files")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if target.Number != 123 {
		t.Errorf("number = %d, want 123", target.Number)
	}
}

func TestParseSchemelessURL(t *testing.T) {
	target, err := Parse("github.com/acme/widgets/pull/7")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if target.Number != 7 {
		t.Errorf("number = %d, want 7", target.Number)
	}
}

func TestParseGerritChange(t *testing.T) {
	target, err := Parse("https://gerrit.example.org/c/releng/builder/+/45678")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if target.Source != change.SourceGerrit {
		t.Errorf("source = %s, want gerrit", target.Source)
	}
	if target.Project != "releng/builder" {
		t.Errorf("project = %s, want releng/builder", target.Project)
	}
	if target.Number != 45678 {
		t.Errorf("number = %d, want 45678", target.Number)
	}
	if target.BasePath != "" {
		t.Errorf("base path = %q, want empty", target.BasePath)
	}
}

func TestParseGerritChangeWithBasePath(t *testing.T) {
	target, err := Parse("https://review.example.org/infra/c/tools/ci/+/991")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if target.BasePath != "infra" {
		t.Errorf("base path = %q, want infra", target.BasePath)
	}
	if target.Project != "tools/ci" {
		t.Errorf("project = %s, want tools/ci", target.Project)
	}
	if target.Number != 991 {
		t.Errorf("number = %d, want 991", target.Number)
	}
}

func TestParseGerritChangeWithPatchset(t *testing.T) {
	target, err := Parse("https://gerrit.example.org/c/releng/builder/+/45678/3")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if target.Number != 45678 {
		t.Errorf("number = %d, want 45678", target.Number)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"https://example.org/some/random/page",
		"https://github.com/acme/widgets",
		"https://github.com/acme/widgets/issues/5",
	}
	for _, raw := range tests {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q) should fail", raw)
		} else if errkind.KindOf(err) != errkind.Validation {
			t.Errorf("Parse(%q) error kind = %v, want Validation", raw, errkind.KindOf(err))
		}
	}
}

func TestOwnerRepoEmptyForGerrit(t *testing.T) {
	target, err := Parse("https://gerrit.example.org/c/releng/builder/+/45678")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if target.Owner() != "" || target.Repo() != "" {
		t.Errorf("gerrit targets have no owner/repo, got %q/%q", target.Owner(), target.Repo())
	}
}
