// Package events provides the kernel event bus: pattern-matched pub/sub
// with bounded subscriber queues and cross-language payload adaptation.
package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Language tags the runtime that produced or will consume an event. It is
// used only for data-shape adaptation, never for routing.
type Language string

const (
	LanguageGo         Language = "go"
	LanguageLua        Language = "lua"
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
)

// Event is one message on the bus. Type is a dotted name such as
// "agent.lifecycle.created"; subscriptions match it by pattern.
type Event struct {
	// ID is a v4 UUID assigned at creation.
	ID string `json:"id"`
	// Type is the dotted event name.
	Type string `json:"type"`
	// Data is the JSON-compatible payload.
	Data any `json:"data"`
	// Language tags the producing runtime.
	Language Language `json:"language"`
	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`
	// Sequence is assigned by the bus at publish, monotone per bus.
	Sequence uint64 `json:"sequence"`
	// CorrelationID joins related events across components.
	CorrelationID string `json:"correlation_id,omitempty"`
	// TTL bounds delivery; zero means no expiry.
	TTL time.Duration `json:"ttl,omitempty"`
}

// New creates an event with a fresh id and timestamp.
func New(eventType string, data any, lang Language) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Data:      data,
		Language:  lang,
		Timestamp: time.Now().UTC(),
	}
}

// Expired reports whether the event's TTL has elapsed at now.
func (e Event) Expired(now time.Time) bool {
	return e.TTL > 0 && now.After(e.Timestamp.Add(e.TTL))
}

// MatchPattern reports whether a dotted event name matches a subscription
// pattern. A `*` segment matches exactly one name segment; a trailing `*`
// matches one or more remaining segments; the bare pattern `*` matches
// every event.
func MatchPattern(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	pSegs := strings.Split(pattern, ".")
	nSegs := strings.Split(name, ".")

	for i, p := range pSegs {
		last := i == len(pSegs)-1
		if i >= len(nSegs) {
			return false
		}
		if p == "*" {
			if last {
				return true
			}
			continue
		}
		if p != nSegs[i] {
			return false
		}
	}
	return len(pSegs) == len(nSegs)
}
