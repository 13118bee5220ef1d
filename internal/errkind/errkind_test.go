package errkind

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{General, 1},
		{Config, 2},
		{APIAccess, 3},
		{Network, 4},
		{Repository, 5},
		{ChangeState, 6},
		{SubmitOp, 7},
		{Validation, 8},
	}
	for _, tt := range tests {
		if got := tt.kind.ExitCode(); got != tt.want {
			t.Errorf("%s.ExitCode() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestKindOfUnwrapsChains(t *testing.T) {
	inner := New(ChangeState, "change is merged")
	wrapped := fmt.Errorf("submitting: %w", inner)

	if got := KindOf(wrapped); got != ChangeState {
		t.Errorf("KindOf(wrapped) = %v, want ChangeState", got)
	}
	if got := KindOf(errors.New("plain")); got != General {
		t.Errorf("KindOf(plain) = %v, want General", got)
	}
}

func TestErrorsIsMatchesOnKind(t *testing.T) {
	err := Wrap(Network, "fetching change", errors.New("connection refused"))
	if !errors.Is(err, &Error{Kind: Network}) {
		t.Error("errors.Is should match a bare-kind sentinel")
	}
	if errors.Is(err, &Error{Kind: Config}) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(SubmitOp, "merging", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit text", errors.New("403 API rate limit exceeded"), true},
		{"429", errors.New("429 too many requests"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"bad gateway", errors.New("502 bad gateway"), true},
		{"unauthorized", errors.New("401 unauthorized"), false},
		{"bad credentials", errors.New("bad credentials"), false},
		{"not found kind", New(Repository, "repo not found"), false},
		{"network kind", New(Network, "socket closed"), true},
		{"change state kind", New(ChangeState, "needs code-review"), false},
		{"validation kind", New(Validation, "bad URL"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestQuotedNumbersDoNotClassify(t *testing.T) {
	if IsPermissionError(errors.New("approving change 401 in org/repo")) {
		t.Error("a change numbered 401 is not a permission failure")
	}
	if IsNetworkError(errors.New("read 503 bytes from response")) {
		t.Error("a 503-byte read is not a network failure")
	}
	if IsRateLimitError(errors.New("change 429 updated")) {
		t.Error("a change numbered 429 is not a rate limit")
	}
}

func TestStatusPhrasesClassify(t *testing.T) {
	if !IsPermissionError(errors.New("POST /changes/tools~12/submit: status 401: authentication required")) {
		t.Error("status 401 phrase should classify as permission failure")
	}
	if !IsNetworkError(errors.New("GET /changes/: status 503: try again later")) {
		t.Error("status 503 phrase should classify as network failure")
	}
	if !IsRateLimitError(errors.New("GET https://api.example.org/repos: 429 slow down")) {
		t.Error("colon-introduced 429 should classify as rate limit")
	}
}

func TestIsPermissionError(t *testing.T) {
	if !IsPermissionError(New(APIAccess, "token rejected")) {
		t.Error("api-access kind should classify as permission error")
	}
	if !IsPermissionError(errors.New("403 forbidden")) {
		t.Error("403 text should classify as permission error")
	}
	if IsPermissionError(errors.New("connection reset by peer")) {
		t.Error("network text should not classify as permission error")
	}
}
