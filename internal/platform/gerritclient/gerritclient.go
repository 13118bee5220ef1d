// Package gerritclient implements the platform client for Gerrit changes
// over the Gerrit REST API. Authenticated endpoints live under /a/; responses
// carry the XSSI guard prefix which is stripped before decoding.
package gerritclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/errkind"
	"github.com/everstacklabs/depmerge/internal/platform"
)

// xssiPrefix guards Gerrit JSON responses against cross-site inclusion.
const xssiPrefix = ")]}'"

// Client talks to one Gerrit server.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	username string
	password string
}

// Option configures the Client.
type Option func(*Client)

// WithCredentials sets HTTP basic auth (Gerrit HTTP password, not the
// account password). Without credentials only anonymous reads work.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithRateLimit sets requests per second. Default is 5.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithHTTPClient replaces the underlying HTTP client, mainly for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// New builds a Client for the server at baseURL, e.g.
// "https://gerrit.example.org" or "https://example.org/infra" when the
// server is mounted under a path prefix.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errkind.New(errkind.Config, "Gerrit base URL is required")
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// changeInfo mirrors the subset of Gerrit's ChangeInfo entity we consume.
type changeInfo struct {
	ID              string                  `json:"id"`
	ChangeID        string                  `json:"change_id"`
	Project         string                  `json:"project"`
	Branch          string                  `json:"branch"`
	Number          int                     `json:"_number"`
	Subject         string                  `json:"subject"`
	Status          string                  `json:"status"`
	Created         string                  `json:"created"`
	Updated         string                  `json:"updated"`
	Submittable     bool                    `json:"submittable"`
	Mergeable       *bool                   `json:"mergeable"`
	WorkInProgress  bool                    `json:"work_in_progress"`
	CurrentRevision string                  `json:"current_revision"`
	Owner           accountInfo             `json:"owner"`
	Revisions       map[string]revisionInfo `json:"revisions"`
}

type accountInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
}

type revisionInfo struct {
	Commit commitInfo          `json:"commit"`
	Files  map[string]fileInfo `json:"files"`
}

type commitInfo struct {
	Message string `json:"message"`
}

type fileInfo struct {
	Status        string `json:"status"`
	LinesInserted int    `json:"lines_inserted"`
	LinesDeleted  int    `json:"lines_deleted"`
}

// FetchChange resolves one change with its current revision and file list.
func (c *Client) FetchChange(ctx context.Context, project string, number int) (*change.Info, error) {
	path := fmt.Sprintf("/changes/%s~%d", url.PathEscape(project), number)
	query := "o=CURRENT_REVISION&o=CURRENT_COMMIT&o=CURRENT_FILES&o=SUBMITTABLE&o=DETAILED_ACCOUNTS"

	body, err := c.get(ctx, path+"?"+query)
	if err != nil {
		return nil, err
	}

	var ci changeInfo
	if err := json.Unmarshal(body, &ci); err != nil {
		return nil, errkind.Wrap(errkind.General, "decoding change", err)
	}
	return c.toInfo(&ci), nil
}

// ListOpenChanges queries open changes. With a project in scope the query is
// restricted to it; otherwise every open change on the server is eligible.
func (c *Client) ListOpenChanges(ctx context.Context, scope platform.Scope, limit int) ([]*change.Info, error) {
	q := "status:open"
	if scope.Project != "" {
		q += " project:" + scope.Project
	}
	if limit <= 0 {
		limit = 100
	}

	path := fmt.Sprintf("/changes/?q=%s&n=%d&o=CURRENT_REVISION&o=CURRENT_COMMIT&o=CURRENT_FILES&o=SUBMITTABLE&o=DETAILED_ACCOUNTS",
		url.QueryEscape(q), limit)

	body, err := c.get(ctx, path)
	if err != nil {
		return nil, err
	}

	var infos []changeInfo
	if err := json.Unmarshal(body, &infos); err != nil {
		return nil, errkind.Wrap(errkind.General, "decoding change list", err)
	}

	out := make([]*change.Info, 0, len(infos))
	for i := range infos {
		out = append(out, c.toInfo(&infos[i]))
	}
	return out, nil
}

// Review applies label votes to the current revision. Voting the same value
// twice is accepted by Gerrit, so the call is idempotent.
func (c *Client) Review(ctx context.Context, ci *change.Info, labels platform.Labels) error {
	if len(labels) == 0 {
		labels = platform.DefaultLabels()
	}
	path := fmt.Sprintf("/changes/%s~%d/revisions/current/review", url.PathEscape(ci.Project), ci.Number)

	payload := map[string]any{
		"labels":  labels,
		"message": "Bulk-approved: matched an authorized source change.",
	}
	_, err := c.post(ctx, path, payload)
	return err
}

// Submit submits the change. Gerrit rejects submission of unsubmittable
// changes with 409, which is surfaced as a change-state error.
func (c *Client) Submit(ctx context.Context, ci *change.Info) error {
	path := fmt.Sprintf("/changes/%s~%d/submit", url.PathEscape(ci.Project), ci.Number)
	_, err := c.post(ctx, path, struct{}{})
	return err
}

func (c *Client) toInfo(ci *changeInfo) *change.Info {
	info := &change.Info{
		Source:       change.SourceGerrit,
		Number:       ci.Number,
		Key:          ci.ChangeID,
		Project:      ci.Project,
		Title:        ci.Subject,
		Author:       authorOf(ci.Owner),
		TargetBranch: ci.Branch,
		Revision:     ci.CurrentRevision,
		Submittable:  ci.Submittable && !ci.WorkInProgress && strings.EqualFold(ci.Status, "NEW"),
		Mergeable:    ci.Mergeable == nil || *ci.Mergeable,
		Created:      parseGerritTime(ci.Created),
		Updated:      parseGerritTime(ci.Updated),
		URL:          fmt.Sprintf("%s/c/%s/+/%d", c.baseURL, ci.Project, ci.Number),
	}

	if rev, ok := ci.Revisions[ci.CurrentRevision]; ok {
		// The commit message body is everything after the subject line.
		subject, rest, _ := strings.Cut(rev.Commit.Message, "\n")
		info.CommitSubject = strings.TrimSpace(subject)
		info.Body = strings.TrimSpace(rest)
		for path, f := range rev.Files {
			// Magic paths like /COMMIT_MSG are not part of the change.
			if strings.HasPrefix(path, "/") {
				continue
			}
			info.Files = append(info.Files, change.FileDelta{
				Path:          path,
				Status:        fileStatus(f.Status),
				LinesInserted: f.LinesInserted,
				LinesDeleted:  f.LinesDeleted,
			})
		}
	}
	return info
}

func authorOf(a accountInfo) string {
	if a.Username != "" {
		return a.Username
	}
	if a.Email != "" {
		return a.Email
	}
	return a.Name
}

func fileStatus(s string) change.FileStatus {
	switch s {
	case "A":
		return change.FileAdded
	case "D":
		return change.FileDeleted
	case "R":
		return change.FileRenamed
	default:
		return change.FileModified
	}
}

// parseGerritTime handles Gerrit's "2006-01-02 15:04:05.000000000" format.
func parseGerritTime(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05.000000000", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errkind.Wrap(errkind.General, "encoding request", err)
	}
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errkind.Wrap(errkind.Network, "rate limit wait", err)
	}

	endpoint := c.baseURL + path
	if c.username != "" {
		endpoint = c.baseURL + "/a" + path
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, errkind.Wrap(errkind.General, "creating request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Network, "reading response", err)
	}

	if resp.StatusCode >= 400 {
		return nil, classify(resp.StatusCode, method, path, strings.TrimSpace(string(raw)))
	}

	return bytes.TrimPrefix(raw, []byte(xssiPrefix)), nil
}

// classify maps a Gerrit HTTP failure to an error kind. Gerrit error bodies
// are plain text, included verbatim for the operator.
func classify(status int, method, path, body string) error {
	msg := fmt.Sprintf("%s %s: status %d: %s", method, path, status, body)
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errkind.New(errkind.APIAccess, msg)
	case http.StatusNotFound:
		return errkind.New(errkind.Repository, msg)
	case http.StatusConflict:
		// "change is merged", "needs Code-Review", "Failed to submit".
		return errkind.New(errkind.ChangeState, msg)
	case http.StatusTooManyRequests:
		return errkind.New(errkind.Network, msg)
	}
	if status >= 500 {
		return errkind.New(errkind.Network, msg)
	}
	return errkind.New(errkind.SubmitOp, msg)
}
