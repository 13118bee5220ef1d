// Package submit drives concurrent review+submit operations over a batch of
// matched changes. Each item walks a small state machine; one item's failure
// never aborts its siblings, and the caller always gets exactly one result
// per input item, in input order.
package submit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/everstacklabs/depmerge/internal/change"
	"github.com/everstacklabs/depmerge/internal/errkind"
	"github.com/everstacklabs/depmerge/internal/platform"
)

// Status is the per-item state. Terminal states are Submitted, Failed,
// Blocked; Pending is also reported terminally for items the runner never
// started (cancellation), distinguishing "not attempted" from "attempted and
// failed".
type Status string

const (
	StatusPending    Status = "pending"
	StatusReviewing  Status = "reviewing"
	StatusReviewed   Status = "reviewed"
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	StatusFailed     Status = "failed"
	StatusBlocked    Status = "blocked"
)

// Item pairs a change with the comparison that selected it. RequiresOverride
// marks items that may only proceed once an override token was validated.
type Item struct {
	Change            *change.Info
	Comparison        *change.ComparisonResult
	RequiresOverride  bool
	OverrideValidated bool
}

// Result is the terminal outcome for one item.
type Result struct {
	Change   *change.Info  `json:"change" yaml:"change"`
	Status   Status        `json:"status" yaml:"status"`
	Error    string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// Options configure a run.
type Options struct {
	// MaxConcurrency bounds simultaneous in-flight review/submit calls.
	// Must be positive; an invalid bound aborts the whole batch.
	MaxConcurrency int

	// MaxAttempts is the per-operation attempt budget for transient
	// failures. Values below 1 are treated as 1.
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Labels platform.Labels

	// DryRun skips the network calls and reports items as submitted.
	DryRun bool
}

// DefaultOptions returns the standard run configuration.
func DefaultOptions() Options {
	return Options{
		MaxConcurrency: 5,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Labels:         platform.DefaultLabels(),
	}
}

// Runner executes batches against one shared platform client. The client is
// assumed safe for concurrent use; items share nothing else.
type Runner struct {
	client platform.Client
	opts   Options
}

// NewRunner builds a Runner. Zero-valued retry options fall back to defaults.
func NewRunner(client platform.Client, opts Options) *Runner {
	def := DefaultOptions()
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if opts.Labels == nil {
		opts.Labels = platform.DefaultLabels()
	}
	return &Runner{client: client, opts: opts}
}

// Run processes all items with bounded concurrency and returns one result
// per item, index-correlated with the input regardless of completion order.
// Cancellation stops new items from starting; items never started are
// reported as pending, not failed. The only batch-aborting failure is an
// invalid concurrency bound.
func (r *Runner) Run(ctx context.Context, items []Item) ([]Result, error) {
	if r.opts.MaxConcurrency < 1 {
		return nil, errkind.New(errkind.Config, "max concurrency must be positive")
	}

	results := make([]Result, len(items))
	sem := semaphore.NewWeighted(int64(r.opts.MaxConcurrency))
	var wg sync.WaitGroup

	for i := range items {
		item := items[i]

		if err := sem.Acquire(ctx, 1); err != nil {
			// Canceled before this item started.
			results[i] = Result{Change: item.Change, Status: StatusPending}
			continue
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = r.runOne(ctx, item)
		}(i)
	}

	wg.Wait()
	return results, nil
}

// runOne walks a single item through the state machine.
func (r *Runner) runOne(ctx context.Context, item Item) Result {
	start := time.Now()
	c := item.Change
	res := Result{Change: c, Status: StatusPending}

	finish := func(st Status, errMsg string) Result {
		res.Status = st
		res.Error = errMsg
		res.Duration = time.Since(start)
		return res
	}

	// Blocked items are decided up front, with no network call.
	if !c.Submittable {
		return finish(StatusBlocked, "change is not submittable")
	}
	if item.RequiresOverride && !item.OverrideValidated {
		return finish(StatusBlocked, "override authorization required")
	}

	if ctx.Err() != nil {
		res.Duration = time.Since(start)
		return res
	}

	if r.opts.DryRun {
		slog.Info("dry run: would review and submit",
			"project", c.Project, "number", c.Number)
		return finish(StatusSubmitted, "")
	}

	res.Status = StatusReviewing
	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.client.Review(ctx, c, r.opts.Labels)
	}); err != nil {
		slog.Warn("review failed", "project", c.Project, "number", c.Number, "error", err)
		return finish(StatusFailed, "review: "+err.Error())
	}
	res.Status = StatusReviewed
	slog.Debug("review applied", "project", c.Project, "number", c.Number)

	res.Status = StatusSubmitting
	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.client.Submit(ctx, c)
	}); err != nil {
		slog.Warn("submit failed", "project", c.Project, "number", c.Number, "error", err)
		return finish(StatusFailed, "submit: "+err.Error())
	}

	slog.Info("change submitted", "project", c.Project, "number", c.Number)
	return finish(StatusSubmitted, "")
}

// withRetry runs fn with exponential backoff on transient errors. Fatal
// classifications (auth, validation, change-state) return immediately.
func (r *Runner) withRetry(ctx context.Context, fn func(context.Context) error) error {
	backoff := r.opts.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !errkind.IsTransient(lastErr) {
			return lastErr
		}
		if attempt == r.opts.MaxAttempts {
			break
		}

		slog.Debug("transient failure, backing off",
			"attempt", attempt, "max", r.opts.MaxAttempts,
			"backoff", backoff, "error", lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > r.opts.MaxBackoff {
			backoff = r.opts.MaxBackoff
		}
	}
	return lastErr
}
