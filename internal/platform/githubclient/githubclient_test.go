package githubclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/google/go-github/v60/github"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/errkind"
)

func TestSplitProject(t *testing.T) {
	owner, repo, err := splitProject("acme/widgets")
	if err != nil {
		t.Fatalf("splitProject failed: %v", err)
	}
	if owner != "acme" || repo != "widgets" {
		t.Errorf("got %s/%s, want acme/widgets", owner, repo)
	}

	for _, bad := range []string{"", "acme", "/widgets", "acme/"} {
		if _, _, err := splitProject(bad); err == nil {
			t.Errorf("splitProject(%q) should fail", bad)
		}
	}
}

func TestFileStatusMapping(t *testing.T) {
	tests := []struct {
		in   string
		want change.FileStatus
	}{
		{"added", change.FileAdded},
		{"removed", change.FileDeleted},
		{"renamed", change.FileRenamed},
		{"modified", change.FileModified},
		{"changed", change.FileModified},
	}
	for _, tt := range tests {
		if got := fileStatus(tt.in); got != tt.want {
			t.Errorf("fileStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func respWithStatus(code int) *github.Response {
	return &github.Response{Response: &http.Response{StatusCode: code}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   errkind.Kind
	}{
		{"unauthorized", 401, errors.New("bad credentials"), errkind.APIAccess},
		{"forbidden", 403, errors.New("forbidden"), errkind.APIAccess},
		{"rate limited 403", 403, errors.New("API rate limit exceeded"), errkind.Network},
		{"not found", 404, errors.New("not found"), errkind.Repository},
		{"not mergeable", 405, errors.New("pull request is not mergeable"), errkind.ChangeState},
		{"head changed", 409, errors.New("head branch was modified"), errkind.ChangeState},
		{"too many requests", 429, errors.New("too many requests"), errkind.Network},
		{"server error", 502, errors.New("bad gateway"), errkind.Network},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(respWithStatus(tt.status), "op", tt.err)
			if errkind.KindOf(got) != tt.want {
				t.Errorf("classify(%d) kind = %v, want %v", tt.status, errkind.KindOf(got), tt.want)
			}
		})
	}
}

func TestClassifyWithoutResponse(t *testing.T) {
	got := classify(nil, "op", errors.New("dial tcp: connection refused"))
	if errkind.KindOf(got) != errkind.Network {
		t.Errorf("connection errors should classify as Network, got %v", errkind.KindOf(got))
	}
}

func TestToInfoSubmittability(t *testing.T) {
	open, draft := "open", true
	mergeableFalse := false

	pr := &github.PullRequest{State: &open}
	if info := toInfo(pr, "acme/widgets"); !info.Submittable {
		t.Error("open non-draft PR with unknown mergeability should be submittable")
	}

	pr = &github.PullRequest{State: &open, Draft: &draft}
	if info := toInfo(pr, "acme/widgets"); info.Submittable {
		t.Error("draft PR must not be submittable")
	}

	pr = &github.PullRequest{State: &open, Mergeable: &mergeableFalse}
	if info := toInfo(pr, "acme/widgets"); info.Submittable {
		t.Error("conflicted PR must not be submittable")
	}

	closed := "closed"
	pr = &github.PullRequest{State: &closed}
	if info := toInfo(pr, "acme/widgets"); info.Submittable {
		t.Error("closed PR must not be submittable")
	}
}
