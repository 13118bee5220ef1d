// Package errkind classifies failures into a fixed set of kinds with stable
// exit codes. The submission runner uses the transient classifiers to decide
// retry-vs-fail; the CLI performs the sole translation to a process exit
// status.
package errkind

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Kind is the category of a failure.
type Kind int

const (
	General Kind = iota
	Config
	APIAccess
	Network
	Repository
	ChangeState
	SubmitOp
	Validation
)

// Exit codes are part of the CLI contract; do not renumber.
func (k Kind) ExitCode() int {
	switch k {
	case Config:
		return 2
	case APIAccess:
		return 3
	case Network:
		return 4
	case Repository:
		return 5
	case ChangeState:
		return 6
	case SubmitOp:
		return 7
	case Validation:
		return 8
	default:
		return 1
	}
}

func (k Kind) String() string {
	switch k {
	case Config:
		return "config"
	case APIAccess:
		return "api-access"
	case Network:
		return "network"
	case Repository:
		return "repository"
	case ChangeState:
		return "change-state"
	case SubmitOp:
		return "submit"
	case Validation:
		return "validation"
	default:
		return "general"
	}
}

// Error carries a kind, a short message, and an optional underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can use errors.Is with a bare-kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

// New builds a kinded error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap builds a kinded error around a cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from an error chain, defaulting to General.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return General
}

// httpStatusRe matches an HTTP status code only where the text introduces it
// as one: "status 401", "http 403", or the ": 401 message" form REST clients
// produce. Bare three-digit numbers (change numbers, byte counts) never match.
var httpStatusRe = regexp.MustCompile(`(?i)(?:\bstatus(?:\s+code)?|\bhttp|:)\s*([1-5]\d\d)\b`)

func hasStatus(s string, codes ...string) bool {
	for _, m := range httpStatusRe.FindAllStringSubmatch(s, -1) {
		for _, code := range codes {
			if m[1] == code {
				return true
			}
		}
	}
	return false
}

// IsPermissionError recognizes auth/permission failures from the error kind
// or raw error text. These are never retried.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == APIAccess {
		return true
	}
	s := strings.ToLower(err.Error())
	return hasStatus(s, "401", "403") ||
		strings.Contains(s, "unauthorized") ||
		strings.Contains(s, "forbidden") ||
		strings.Contains(s, "permission denied") ||
		strings.Contains(s, "bad credentials")
}

// IsNetworkError recognizes transient network failures.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err) == Network {
		return true
	}
	s := strings.ToLower(err.Error())
	return hasStatus(s, "502", "503", "504") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "no such host") ||
		strings.Contains(s, "timeout") ||
		strings.Contains(s, "timed out") ||
		strings.Contains(s, "temporary failure") ||
		strings.Contains(s, "bad gateway") ||
		strings.Contains(s, "service unavailable") ||
		strings.Contains(s, "gateway timeout")
}

// IsRateLimitError recognizes rate-limit responses.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return hasStatus(s, "429") ||
		strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "abuse detection") ||
		strings.Contains(s, "secondary rate")
}

// IsTransient reports whether an error is worth retrying. Permission and
// validation failures are final; rate limits and network hiccups are not.
// Rate limits win over the permission check: GitHub reports primary rate
// limits as 403.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimitError(err) {
		return true
	}
	if IsPermissionError(err) {
		return false
	}
	switch KindOf(err) {
	case Validation, Config, ChangeState:
		return false
	}
	return IsNetworkError(err)
}
