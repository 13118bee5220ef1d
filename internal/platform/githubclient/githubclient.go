// Package githubclient implements the platform client for GitHub pull
// requests on top of the go-github REST client. One Client is safe for
// concurrent use; all calls share a single rate limiter so a batch cannot
// stampede the API.
package githubclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v60/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/errkind"
	"github.com/everstacklabs/depmerge/internal/platform"
)

// Client talks to the GitHub REST API.
type Client struct {
	gh          *github.Client
	limiter     *rate.Limiter
	mergeMethod string
}

// Option configures the Client.
type Option func(*Client)

// WithRateLimit sets requests per second. Default is 5.
func WithRateLimit(rps float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithMergeMethod selects merge, squash, or rebase. Default is merge.
func WithMergeMethod(method string) Option {
	return func(c *Client) { c.mergeMethod = method }
}

// WithBaseURL points the client at a GitHub Enterprise or test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if u, err := c.gh.BaseURL.Parse(baseURL); err == nil {
			c.gh.BaseURL = u
		}
	}
}

// New builds a Client authenticated with token.
func New(ctx context.Context, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errkind.New(errkind.Config, "GitHub token is required (set GITHUB_TOKEN)")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)

	c := &Client{
		gh:          github.NewClient(tc),
		limiter:     rate.NewLimiter(rate.Limit(5), 1),
		mergeMethod: "merge",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errkind.Wrap(errkind.Network, "rate limit wait", err)
	}
	return nil
}

// FetchChange returns the full snapshot of one pull request, including its
// changed files.
func (c *Client) FetchChange(ctx context.Context, project string, number int) (*change.Info, error) {
	owner, repo, err := splitProject(project)
	if err != nil {
		return nil, err
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, classify(resp, fmt.Sprintf("fetching PR %s#%d", project, number), err)
	}

	files, err := c.listFiles(ctx, owner, repo, number)
	if err != nil {
		return nil, err
	}

	info := toInfo(pr, project)
	info.Files = files
	// Best effort: override tokens fall back to the title without it.
	if subject, err := c.firstCommitSubject(ctx, owner, repo, number); err == nil {
		info.CommitSubject = subject
	}
	return info, nil
}

// firstCommitSubject returns the first line of the PR's first commit message,
// which is what override tokens bind to.
func (c *Client) firstCommitSubject(ctx context.Context, owner, repo string, number int) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	commits, resp, err := c.gh.PullRequests.ListCommits(ctx, owner, repo, number, &github.ListOptions{PerPage: 1})
	if err != nil {
		return "", classify(resp, fmt.Sprintf("listing commits of %s/%s#%d", owner, repo, number), err)
	}
	if len(commits) == 0 {
		return "", nil
	}
	msg := commits[0].GetCommit().GetMessage()
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		msg = msg[:i]
	}
	return strings.TrimSpace(msg), nil
}

// ListOpenChanges returns open PRs in scope. With a project set it lists one
// repository; otherwise it walks every repository in the organization. File
// lists are fetched per PR so the comparator has the file-set signal.
func (c *Client) ListOpenChanges(ctx context.Context, scope platform.Scope, limit int) ([]*change.Info, error) {
	var projects []string
	if scope.Project != "" {
		projects = []string{scope.Project}
	} else {
		repos, err := c.listOrgRepos(ctx, scope.Org)
		if err != nil {
			return nil, err
		}
		projects = repos
	}

	var out []*change.Info
	for _, project := range projects {
		if limit > 0 && len(out) >= limit {
			break
		}
		owner, repo, err := splitProject(project)
		if err != nil {
			return nil, err
		}

		prs, err := c.listOpenPRs(ctx, owner, repo, limit-len(out))
		if err != nil {
			// One unreadable repository should not abort an org scan.
			slog.Warn("skipping repository", "project", project, "error", err)
			continue
		}

		for _, pr := range prs {
			info := toInfo(pr, project)
			files, err := c.listFiles(ctx, owner, repo, pr.GetNumber())
			if err == nil {
				info.Files = files
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Review posts an approving review. Re-approving an already-approved PR
// succeeds, so the call is idempotent from the runner's point of view.
func (c *Client) Review(ctx context.Context, ci *change.Info, labels platform.Labels) error {
	owner, repo, err := splitProject(ci.Project)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	event := "APPROVE"
	body := "Bulk-approved: matched an authorized source change."
	_, resp, err := c.gh.PullRequests.CreateReview(ctx, owner, repo, ci.Number, &github.PullRequestReviewRequest{
		Event: &event,
		Body:  &body,
	})
	if err != nil {
		return classify(resp, fmt.Sprintf("approving PR %s#%d", ci.Project, ci.Number), err)
	}
	return nil
}

// Submit merges the pull request.
func (c *Client) Submit(ctx context.Context, ci *change.Info) error {
	owner, repo, err := splitProject(ci.Project)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	result, resp, err := c.gh.PullRequests.Merge(ctx, owner, repo, ci.Number, "", &github.PullRequestOptions{
		MergeMethod: c.mergeMethod,
	})
	if err != nil {
		return classify(resp, fmt.Sprintf("merging PR %s#%d", ci.Project, ci.Number), err)
	}
	if !result.GetMerged() {
		return errkind.New(errkind.SubmitOp, fmt.Sprintf("PR %s#%d was not merged: %s", ci.Project, ci.Number, result.GetMessage()))
	}
	return nil
}

// UpdateBranch brings a behind PR up to date with its base branch.
func (c *Client) UpdateBranch(ctx context.Context, ci *change.Info) error {
	owner, repo, err := splitProject(ci.Project)
	if err != nil {
		return err
	}
	if err := c.wait(ctx); err != nil {
		return err
	}

	_, resp, err := c.gh.PullRequests.UpdateBranch(ctx, owner, repo, ci.Number, nil)
	if err != nil {
		// 202 Accepted surfaces as AcceptedError; the update is queued.
		if _, ok := err.(*github.AcceptedError); ok {
			return nil
		}
		return classify(resp, fmt.Sprintf("updating branch of PR %s#%d", ci.Project, ci.Number), err)
	}
	return nil
}

func (c *Client) listOpenPRs(ctx context.Context, owner, repo string, limit int) ([]*github.PullRequest, error) {
	var out []*github.PullRequest
	opts := &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(resp, fmt.Sprintf("listing PRs in %s/%s", owner, repo), err)
		}
		out = append(out, prs...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) listOrgRepos(ctx context.Context, org string) ([]string, error) {
	var out []string
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, classify(resp, fmt.Sprintf("listing repositories in %s", org), err)
		}
		for _, r := range repos {
			if r.GetArchived() {
				continue
			}
			out = append(out, r.GetFullName())
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) listFiles(ctx context.Context, owner, repo string, number int) ([]change.FileDelta, error) {
	var out []change.FileDelta
	opts := &github.ListOptions{PerPage: 100}
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		files, resp, err := c.gh.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, classify(resp, fmt.Sprintf("listing files of %s/%s#%d", owner, repo, number), err)
		}
		for _, f := range files {
			out = append(out, change.FileDelta{
				Path:          f.GetFilename(),
				Status:        fileStatus(f.GetStatus()),
				LinesInserted: f.GetAdditions(),
				LinesDeleted:  f.GetDeletions(),
			})
		}
		if resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

func toInfo(pr *github.PullRequest, project string) *change.Info {
	open := pr.GetState() == "open"
	mergeable := pr.Mergeable == nil || pr.GetMergeable()

	return &change.Info{
		Source:       change.SourceGitHub,
		Number:       pr.GetNumber(),
		Key:          pr.GetNodeID(),
		Project:      project,
		Title:        pr.GetTitle(),
		Body:         pr.GetBody(),
		Author:       pr.GetUser().GetLogin(),
		TargetBranch: pr.GetBase().GetRef(),
		Revision:     pr.GetHead().GetSHA(),
		Submittable:  open && !pr.GetDraft() && mergeable,
		Mergeable:    mergeable,
		Created:      pr.GetCreatedAt().Time,
		Updated:      pr.GetUpdatedAt().Time,
		URL:          pr.GetHTMLURL(),
	}
}

func fileStatus(s string) change.FileStatus {
	switch s {
	case "added":
		return change.FileAdded
	case "removed", "deleted":
		return change.FileDeleted
	case "renamed":
		return change.FileRenamed
	default:
		return change.FileModified
	}
}

func splitProject(project string) (string, string, error) {
	owner, repo, ok := strings.Cut(project, "/")
	if !ok || owner == "" || repo == "" {
		return "", "", errkind.New(errkind.Validation, fmt.Sprintf("invalid GitHub project %q: want owner/repo", project))
	}
	return owner, repo, nil
}

// classify maps a GitHub API failure to an error kind the runner can act on.
func classify(resp *github.Response, msg string, err error) error {
	if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
				return errkind.Wrap(errkind.Network, msg, err)
			}
			return errkind.Wrap(errkind.APIAccess, msg, err)
		case http.StatusNotFound:
			return errkind.Wrap(errkind.Repository, msg, err)
		case http.StatusMethodNotAllowed, http.StatusConflict:
			// 405 "Pull Request is not mergeable" and 409 head-changed races.
			return errkind.Wrap(errkind.ChangeState, msg, err)
		case http.StatusTooManyRequests:
			return errkind.Wrap(errkind.Network, msg, err)
		}
		if resp.StatusCode >= 500 {
			return errkind.Wrap(errkind.Network, msg, err)
		}
	}
	if errkind.IsNetworkError(err) {
		return errkind.Wrap(errkind.Network, msg, err)
	}
	return errkind.Wrap(errkind.APIAccess, msg, err)
}
