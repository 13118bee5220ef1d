// Package override implements the confirmation token that gates bulk
// operations on changes from non-automation authors.
//
// The token is a deterministic digest of (author, first commit-message line).
// The CLI prints it on a first dry pass and requires the identical value on
// the second pass, proving the operator has seen the exact author/message
// pair being bulk-approved. It is a two-step confirmation, not a credential:
// the only guarantee is that a token minted for one author's change never
// validates for a different author or a different message.
package override

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// tokenLen keeps tokens short enough to retype from terminal output.
const tokenLen = 16

// Generate derives the override token for an author and commit message.
// Only the first line of the message participates, matching what review
// platforms display as the change subject.
func Generate(author, commitMessage string) string {
	firstLine := commitMessage
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}
	sum := sha256.Sum256([]byte(author + ":" + strings.TrimSpace(firstLine)))
	return hex.EncodeToString(sum[:])[:tokenLen]
}

// Validate recomputes the token for (author, commitMessage) and compares it
// against the supplied value.
func Validate(author, commitMessage, supplied string) bool {
	return supplied != "" && supplied == Generate(author, commitMessage)
}
