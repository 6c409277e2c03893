// Package lserror defines the typed error kinds shared by every kernel
// subsystem, together with the disclosure policy for user-visible messages
// and the exit-code mapping used by the CLI.
package lserror

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an error for propagation and disclosure decisions.
type Kind int

const (
	// KindInternal is the fallback for unclassified failures. Sanitized
	// externally, logged fully with a correlation id.
	KindInternal Kind = iota
	// KindValidation reports a malformed input; surfaced verbatim.
	KindValidation
	// KindNotFound reports a missing named entity; surfaced verbatim.
	KindNotFound
	// KindTimeout reports an exceeded deadline; retriable by the caller.
	KindTimeout
	// KindCancelled reports a cancelled execution; never retried by the kernel.
	KindCancelled
	// KindSandboxViolation reports a denied resource access from a tool.
	KindSandboxViolation
	// KindResourceLimit reports an exceeded resource budget.
	KindResourceLimit
	// KindCircuitOpen reports a skipped hook; logged, never surfaced to scripts.
	KindCircuitOpen
	// KindTransport reports a connection-level failure; closes the client session.
	KindTransport
	// KindMalformedFrame reports an undecodable wire frame.
	KindMalformedFrame
	// KindBackend reports a state or vector backend failure.
	KindBackend
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindSandboxViolation:
		return "sandbox_violation"
	case KindResourceLimit:
		return "resource_limit"
	case KindCircuitOpen:
		return "circuit_open"
	case KindTransport:
		return "transport"
	case KindMalformedFrame:
		return "malformed_frame"
	case KindBackend:
		return "backend"
	default:
		return "internal"
	}
}

// ViolationKind names the resource class of a sandbox violation.
type ViolationKind string

const (
	ViolationFileAccess        ViolationKind = "file_access"
	ViolationNetworkAccess     ViolationKind = "network_access"
	ViolationEnvironmentAccess ViolationKind = "environment_access"
)

// Error is the concrete error type carried across subsystem boundaries.
type Error struct {
	Kind Kind

	// Field and Message describe validation failures.
	Field   string
	Message string

	// What names the missing entity for not-found errors.
	What string

	// Duration is the exceeded deadline for timeouts.
	Duration time.Duration

	// Violation and Detail describe sandbox violations.
	Violation ViolationKind

	// Resource, Limit and Actual describe resource-limit errors.
	Resource string
	Limit    int64
	Actual   int64

	// Hook names the hook whose breaker is open.
	Hook string

	// Detail carries free-form context for transport/backend/internal errors.
	Detail string

	// CorrelationID joins a sanitized user message with the full log record.
	CorrelationID string

	// Err is the wrapped cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindValidation:
		if e.Field != "" {
			return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
		}
		return fmt.Sprintf("validation failed: %s", e.Message)
	case KindNotFound:
		return fmt.Sprintf("%s not found", e.What)
	case KindTimeout:
		return fmt.Sprintf("execution timed out after %v", e.Duration)
	case KindCancelled:
		return "execution cancelled"
	case KindSandboxViolation:
		return fmt.Sprintf("sandbox violation (%s): %s", e.Violation, e.Detail)
	case KindResourceLimit:
		return fmt.Sprintf("resource limit exceeded: %s (limit %d, actual %d)", e.Resource, e.Limit, e.Actual)
	case KindCircuitOpen:
		return fmt.Sprintf("circuit open for hook %s", e.Hook)
	case KindTransport:
		return fmt.Sprintf("transport error: %s", e.Detail)
	case KindMalformedFrame:
		if e.Detail != "" {
			return fmt.Sprintf("malformed frame: %s", e.Detail)
		}
		return "malformed frame"
	case KindBackend:
		if e.Err != nil {
			return fmt.Sprintf("backend error: %v", e.Err)
		}
		return fmt.Sprintf("backend error: %s", e.Detail)
	default:
		if e.Err != nil {
			return fmt.Sprintf("internal error: %v", e.Err)
		}
		return fmt.Sprintf("internal error: %s", e.Detail)
	}
}

// Unwrap exposes the wrapped cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so callers can compare against the
// sentinel constructors without caring about payload fields.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Kind == other.Kind
}

// Validation reports a schema or parameter violation.
func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

// NotFound reports a missing named entity, e.g. NotFound("tool calculator").
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, What: what}
}

// Timeout reports an exceeded deadline.
func Timeout(d time.Duration) *Error {
	return &Error{Kind: KindTimeout, Duration: d}
}

// Cancelled reports a cancelled execution.
func Cancelled() *Error {
	return &Error{Kind: KindCancelled}
}

// SandboxViolation reports a denied resource access.
func SandboxViolation(kind ViolationKind, detail string) *Error {
	return &Error{Kind: KindSandboxViolation, Violation: kind, Detail: detail}
}

// ResourceLimit reports an exceeded resource budget.
func ResourceLimit(resource string, limit, actual int64) *Error {
	return &Error{Kind: KindResourceLimit, Resource: resource, Limit: limit, Actual: actual}
}

// CircuitOpen reports a hook skipped by its breaker.
func CircuitOpen(hook string) *Error {
	return &Error{Kind: KindCircuitOpen, Hook: hook}
}

// Transport reports a connection-level failure.
func Transport(detail string) *Error {
	return &Error{Kind: KindTransport, Detail: detail}
}

// MalformedFrame reports an undecodable wire frame.
func MalformedFrame(detail string) *Error {
	return &Error{Kind: KindMalformedFrame, Detail: detail}
}

// Backend wraps a storage failure.
func Backend(err error) *Error {
	return &Error{Kind: KindBackend, Err: err}
}

// Internal wraps an unclassified failure and assigns a correlation id.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Err: err, CorrelationID: uuid.New().String()}
}

// KindOf extracts the kind from any error chain. Plain errors map to
// KindInternal; context cancellation maps to KindCancelled.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Exit codes for the CLI surface.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitValidation = 2
	ExitNotFound   = 3
	ExitTimeout    = 4
	ExitCancelled  = 5
)

// ExitCode maps an error to the CLI exit code contract.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch KindOf(err) {
	case KindValidation:
		return ExitValidation
	case KindNotFound:
		return ExitNotFound
	case KindTimeout:
		return ExitTimeout
	case KindCancelled:
		return ExitCancelled
	default:
		return ExitError
	}
}

// absPathPattern matches absolute unix paths in error text.
var absPathPattern = regexp.MustCompile(`(^|[\s"'(])/[^\s"')]+`)

// UserMessage renders an error for external consumption. In production mode
// validation, not-found, timeout and cancellation errors pass through
// verbatim; sandbox violations have the resource redacted; everything else
// collapses to a generic message carrying the correlation id.
func UserMessage(err error, production bool) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		e = Internal(err)
	}
	if !production {
		return e.Error()
	}
	switch e.Kind {
	case KindValidation, KindNotFound, KindTimeout, KindCancelled:
		return e.Error()
	case KindSandboxViolation:
		return fmt.Sprintf("sandbox violation (%s): access denied", e.Violation)
	case KindResourceLimit:
		return e.Error()
	default:
		id := e.CorrelationID
		if id == "" {
			id = uuid.New().String()
		}
		return fmt.Sprintf("internal error (correlation id %s)", id)
	}
}

// Sanitize strips absolute paths from a message so backend errors can be
// logged verbatim but surfaced safely.
func Sanitize(msg string) string {
	out := absPathPattern.ReplaceAllStringFunc(msg, func(m string) string {
		i := strings.IndexByte(m, '/')
		return m[:i] + "<path>"
	})
	return out
}
