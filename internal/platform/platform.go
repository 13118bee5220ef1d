// Package platform defines the narrow client capability the core consumes.
// Each backend (GitHub, Gerrit) implements Client; the comparator and
// submission runner never see anything platform-specific beyond it.
package platform

import (
	"context"

	"github.com/everstacklabs/depmerge/internal/change"
)

// Scope selects where ListOpenChanges looks: a GitHub organization or
// owner/repo, or a Gerrit project. Empty Project means the whole org/server.
type Scope struct {
	Org     string
	Project string
}

// Labels are the review votes to apply. GitHub ignores the values and posts
// an approving review; Gerrit applies them verbatim (e.g. Code-Review: 2).
type Labels map[string]int

// DefaultLabels is the standard approval vote.
func DefaultLabels() Labels {
	return Labels{"Code-Review": 2}
}

// Client is the minimal platform capability. Implementations must be safe
// for concurrent use: the submission runner shares one handle across
// in-flight items.
type Client interface {
	// FetchChange resolves one change to its current snapshot. Fails with
	// an api-access kinded error when the identifier does not resolve.
	FetchChange(ctx context.Context, project string, number int) (*change.Info, error)

	// ListOpenChanges returns up to limit open changes in scope. May return
	// fewer; pagination is the implementation's concern.
	ListOpenChanges(ctx context.Context, scope Scope, limit int) ([]*change.Info, error)

	// Review applies an approving review. Idempotent: re-approving an
	// already-approved change is not an error.
	Review(ctx context.Context, c *change.Info, labels Labels) error

	// Submit merges/submits the change. Fails with a change-state kinded
	// error when the change is not submittable at call time; races with
	// concurrent external activity are expected and non-fatal to a batch.
	Submit(ctx context.Context, c *change.Info) error
}
