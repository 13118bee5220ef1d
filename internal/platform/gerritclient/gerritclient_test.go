package gerritclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/errkind"
	"github.com/everstacklabs/depmerge/internal/platform"
)

const changeJSON = `)]}'
{
  "id": "releng%2Fbuilder~master~Iabc123",
  "change_id": "Iabc123",
  "project": "releng/builder",
  "branch": "master",
  "_number": 45678,
  "subject": "Bump lftools from 0.37.0 to 0.37.1",
  "status": "NEW",
  "created": "2026-08-01 10:00:00.000000000",
  "updated": "2026-08-02 11:30:00.000000000",
  "submittable": true,
  "work_in_progress": false,
  "current_revision": "deadbeefcafe",
  "owner": {"name": "LF Releng Bot", "username": "releng-bot"},
  "revisions": {
    "deadbeefcafe": {
      "commit": {"message": "Bump lftools from 0.37.0 to 0.37.1\n\nSigned-off-by: bot\n"},
      "files": {
        "/COMMIT_MSG": {"status": "M"},
        "requirements.txt": {"status": "M", "lines_inserted": 1, "lines_deleted": 1},
        "tox.ini": {"lines_inserted": 2, "lines_deleted": 2}
      }
    }
  }
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	opts = append(opts, WithHTTPClient(srv.Client()), WithRateLimit(1000))
	c, err := New(srv.URL, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func TestFetchChangeStripsXSSIPrefixAndMapsFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/changes/releng%2Fbuilder~45678" && r.URL.Path != "/changes/releng/builder~45678" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(changeJSON))
	})

	info, err := c.FetchChange(context.Background(), "releng/builder", 45678)
	if err != nil {
		t.Fatalf("FetchChange failed: %v", err)
	}

	if info.Source != change.SourceGerrit {
		t.Errorf("source = %s, want gerrit", info.Source)
	}
	if info.Number != 45678 || info.Key != "Iabc123" {
		t.Errorf("identity = %d/%s, want 45678/Iabc123", info.Number, info.Key)
	}
	if info.Title != "Bump lftools from 0.37.0 to 0.37.1" {
		t.Errorf("title = %q", info.Title)
	}
	if info.Body != "Signed-off-by: bot" {
		t.Errorf("body = %q, want commit message after subject", info.Body)
	}
	if info.CommitSubject != "Bump lftools from 0.37.0 to 0.37.1" {
		t.Errorf("commit subject = %q, want the commit message first line", info.CommitSubject)
	}
	if info.Author != "releng-bot" {
		t.Errorf("author = %q, want releng-bot", info.Author)
	}
	if !info.Submittable {
		t.Error("change should be submittable")
	}
	if len(info.Files) != 2 {
		t.Fatalf("files = %d, want 2 (magic paths excluded)", len(info.Files))
	}
	for _, f := range info.Files {
		if f.Path == "/COMMIT_MSG" {
			t.Error("magic commit-message path should be excluded")
		}
	}
}

func TestListOpenChangesBuildsQuery(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(")]}'\n[]"))
	})

	_, err := c.ListOpenChanges(context.Background(), platform.Scope{Project: "releng/builder"}, 50)
	if err != nil {
		t.Fatalf("ListOpenChanges failed: %v", err)
	}

	want := "q=status%3Aopen+project%3Areleng%2Fbuilder"
	if !strings.Contains(gotQuery, want) {
		t.Errorf("query = %q, want it to contain %q", gotQuery, want)
	}
	if !strings.Contains(gotQuery, "o=CURRENT_FILES") {
		t.Errorf("query = %q, want CURRENT_FILES option", gotQuery)
	}
}

func TestReviewPostsLabels(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method == http.MethodPost {
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
		}
		w.Write([]byte(")]}'\n{}"))
	})

	info := &change.Info{Project: "releng/builder", Number: 45678}
	if err := c.Review(context.Background(), info, platform.Labels{"Code-Review": 2}); err != nil {
		t.Fatalf("Review failed: %v", err)
	}

	wantPath := "/changes/releng%2Fbuilder~45678/revisions/current/review"
	if gotPath != wantPath && gotPath != "/changes/releng/builder~45678/revisions/current/review" {
		t.Errorf("path = %s, want %s", gotPath, wantPath)
	}
	labels, ok := gotBody["labels"].(map[string]any)
	if !ok || labels["Code-Review"] != float64(2) {
		t.Errorf("labels = %v, want Code-Review: 2", gotBody["labels"])
	}
}

func TestSubmitConflictIsChangeStateError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "change is merged", http.StatusConflict)
	})

	info := &change.Info{Project: "releng/builder", Number: 45678}
	err := c.Submit(context.Background(), info)
	if err == nil {
		t.Fatal("expected an error for 409")
	}
	if errkind.KindOf(err) != errkind.ChangeState {
		t.Errorf("error kind = %v, want ChangeState", errkind.KindOf(err))
	}
}

func TestUnauthorizedIsAPIAccessError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})

	_, err := c.FetchChange(context.Background(), "releng/builder", 1)
	if err == nil {
		t.Fatal("expected an error for 401")
	}
	if errkind.KindOf(err) != errkind.APIAccess {
		t.Errorf("error kind = %v, want APIAccess", errkind.KindOf(err))
	}
}

func TestCredentialsUseAuthenticatedPrefix(t *testing.T) {
	var gotPath string
	var gotUser string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, _, _ = r.BasicAuth()
		w.Write([]byte(changeJSON))
	}, WithCredentials("releng-bot", "secret"))

	if _, err := c.FetchChange(context.Background(), "releng/builder", 45678); err != nil {
		t.Fatalf("FetchChange failed: %v", err)
	}
	if gotUser != "releng-bot" {
		t.Errorf("basic auth user = %q, want releng-bot", gotUser)
	}
	if !strings.HasPrefix(gotPath, "/a/") {
		t.Errorf("path = %s, want /a/ prefix for authenticated requests", gotPath)
	}
}
