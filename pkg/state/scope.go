// Package state provides hierarchical scoped key/value persistence with
// pluggable backends, write versioning and bi-temporal timestamps.
package state

import (
	"fmt"
	"strings"

	"github.com/llmspell-dev/llmspell/pkg/lserror"
)

// Kind tags the region of state a scope addresses.
type Kind string

const (
	KindGlobal   Kind = "global"
	KindUser     Kind = "user"
	KindSession  Kind = "session"
	KindAgent    Kind = "agent"
	KindTool     Kind = "tool"
	KindWorkflow Kind = "workflow"
	KindHook     Kind = "hook"
	KindCustom   Kind = "custom"
)

// Scope is a tagged identifier for a region of state. The zero value is not
// valid; use GlobalScope or one of the constructors.
type Scope struct {
	Kind Kind
	ID   string
}

// GlobalScope addresses state readable by every other scope.
func GlobalScope() Scope { return Scope{Kind: KindGlobal} }

// UserScope addresses state owned by a user.
func UserScope(id string) Scope { return Scope{Kind: KindUser, ID: id} }

// SessionScope addresses state owned by a session.
func SessionScope(id string) Scope { return Scope{Kind: KindSession, ID: id} }

// AgentScope addresses state owned by an agent instance.
func AgentScope(id string) Scope { return Scope{Kind: KindAgent, ID: id} }

// ToolScope addresses state owned by a tool.
func ToolScope(id string) Scope { return Scope{Kind: KindTool, ID: id} }

// WorkflowScope addresses state owned by a workflow instance.
func WorkflowScope(id string) Scope { return Scope{Kind: KindWorkflow, ID: id} }

// HookScope addresses state owned by a hook.
func HookScope(id string) Scope { return Scope{Kind: KindHook, ID: id} }

// CustomScope addresses an application-defined region.
func CustomScope(id string) Scope { return Scope{Kind: KindCustom, ID: id} }

// Validate checks that the scope is well-formed. Scope ids must not contain
// ':' so that StorageKey stays a bijection without escaping.
func (s Scope) Validate() error {
	switch s.Kind {
	case KindGlobal:
		if s.ID != "" {
			return lserror.Validation("scope", "global scope must not carry an id")
		}
		return nil
	case KindUser, KindSession, KindAgent, KindTool, KindWorkflow, KindHook, KindCustom:
		if s.ID == "" {
			return lserror.Validation("scope", fmt.Sprintf("%s scope requires an id", s.Kind))
		}
		if strings.ContainsRune(s.ID, ':') {
			return lserror.Validation("scope", "scope id must not contain ':'")
		}
		return nil
	default:
		return lserror.Validation("scope", fmt.Sprintf("unknown scope kind %q", s.Kind))
	}
}

// StorageKey maps (scope, key) to the flat backend key. The mapping is a
// bijection for valid scopes: ParseStorageKey recovers both parts.
func (s Scope) StorageKey(key string) string {
	if s.Kind == KindGlobal {
		return string(KindGlobal) + ":" + key
	}
	return string(s.Kind) + ":" + s.ID + ":" + key
}

// Prefix returns the storage-key prefix covering every key in the scope.
func (s Scope) Prefix() string {
	return s.StorageKey("")
}

// String renders the scope for logs and error messages.
func (s Scope) String() string {
	if s.Kind == KindGlobal {
		return string(KindGlobal)
	}
	return string(s.Kind) + ":" + s.ID
}

// ParseStorageKey inverts StorageKey.
func ParseStorageKey(storageKey string) (Scope, string, error) {
	kind, rest, ok := strings.Cut(storageKey, ":")
	if !ok {
		return Scope{}, "", lserror.Validation("storage_key", "missing scope separator")
	}
	if Kind(kind) == KindGlobal {
		return GlobalScope(), rest, nil
	}
	id, key, ok := strings.Cut(rest, ":")
	if !ok {
		return Scope{}, "", lserror.Validation("storage_key", "missing scope id separator")
	}
	scope := Scope{Kind: Kind(kind), ID: id}
	if err := scope.Validate(); err != nil {
		return Scope{}, "", err
	}
	return scope, key, nil
}

// CanAccess implements the scope access lattice: any scope reads Global, a
// scope always reaches itself, and a user reaches sessions whose id carries
// the user id as prefix. Everything else is denied unless the caller
// delegates explicitly at a higher layer.
func (s Scope) CanAccess(target Scope) bool {
	if target.Kind == KindGlobal {
		return true
	}
	if s.Kind == KindGlobal {
		return true
	}
	if s == target {
		return true
	}
	if s.Kind == KindUser && target.Kind == KindSession {
		return strings.HasPrefix(target.ID, s.ID)
	}
	return false
}
