package lserror

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("expression", "must be a string"), KindValidation},
		{"not found", NotFound("tool nonexistent"), KindNotFound},
		{"timeout", Timeout(5 * time.Second), KindTimeout},
		{"cancelled", Cancelled(), KindCancelled},
		{"wrapped", fmt.Errorf("dispatch: %w", NotFound("agent x")), KindNotFound},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{Validation("k", "bad"), ExitValidation},
		{NotFound("template t"), ExitNotFound},
		{Timeout(time.Second), ExitTimeout},
		{Cancelled(), ExitCancelled},
		{Backend(errors.New("disk full")), ExitError},
	}

	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", Timeout(2*time.Second))
	if !errors.Is(err, Timeout(0)) {
		t.Error("errors.Is should match timeout errors regardless of duration")
	}
	if errors.Is(err, Cancelled()) {
		t.Error("errors.Is must not match a different kind")
	}
}

func TestUserMessageProduction(t *testing.T) {
	// Verbatim kinds pass through.
	v := Validation("params", "expected object")
	if got := UserMessage(v, true); got != v.Error() {
		t.Errorf("validation message changed: %q", got)
	}

	// Sandbox violations redact the resource.
	sv := SandboxViolation(ViolationFileAccess, "/etc/shadow")
	got := UserMessage(sv, true)
	if strings.Contains(got, "/etc/shadow") {
		t.Errorf("production message leaked resource: %q", got)
	}

	// Internal errors collapse to a correlation id.
	in := Internal(errors.New("panic in /srv/app/kernel.go:42"))
	got = UserMessage(in, true)
	if strings.Contains(got, "/srv") {
		t.Errorf("production message leaked path: %q", got)
	}
	if !strings.Contains(got, in.CorrelationID) {
		t.Errorf("production message missing correlation id: %q", got)
	}

	// Development mode keeps the full detail.
	if got := UserMessage(in, false); !strings.Contains(got, "kernel.go") {
		t.Errorf("development message lost detail: %q", got)
	}
}

func TestSanitize(t *testing.T) {
	in := `open "/home/user/.llmspell/state.db": permission denied`
	out := Sanitize(in)
	if strings.Contains(out, "/home") {
		t.Errorf("Sanitize left absolute path: %q", out)
	}
}
