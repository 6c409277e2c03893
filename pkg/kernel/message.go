// Package kernel implements the five-channel message protocol that fronts
// the executor: Jupyter-style multipart frames on shell/iopub/stdin/control
// plus a heartbeat echo. The kernel translates wire messages into executor
// calls and broadcasts side effects on iopub.
package kernel

import (
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the wire protocol the kernel speaks.
const ProtocolVersion = "5.3"

// Implementation names this kernel in kernel_info replies.
const Implementation = "llmspell"

// Version is the kernel implementation version.
const Version = "0.11.0"

// Channel is one of the five logical channels.
type Channel string

const (
	ChannelShell     Channel = "shell"
	ChannelIOPub     Channel = "iopub"
	ChannelStdin     Channel = "stdin"
	ChannelControl   Channel = "control"
	ChannelHeartbeat Channel = "heartbeat"
)

// Header identifies a message and its session.
type Header struct {
	MsgID    string `json:"msg_id"`
	MsgType  string `json:"msg_type"`
	Session  string `json:"session"`
	Username string `json:"username,omitempty"`
	Date     string `json:"date"`
	Version  string `json:"version"`
}

// Message is one decoded protocol message. Identities carry the transport
// routing envelope and travel back unchanged on replies.
type Message struct {
	Identities   [][]byte       `json:"-"`
	Header       Header         `json:"header"`
	ParentHeader Header         `json:"parent_header"`
	Metadata     map[string]any `json:"metadata"`
	Content      map[string]any `json:"content"`
}

// NewMessage creates a message with a fresh v4 id.
func NewMessage(msgType, session string) *Message {
	return &Message{
		Header: Header{
			MsgID:   uuid.New().String(),
			MsgType: msgType,
			Session: session,
			Date:    time.Now().UTC().Format(time.RFC3339Nano),
			Version: ProtocolVersion,
		},
		Metadata: map[string]any{},
		Content:  map[string]any{},
	}
}

// Reply creates a response to parent: same session and identities, parent
// linkage in parent_header.
func Reply(parent *Message, msgType string, content map[string]any) *Message {
	msg := NewMessage(msgType, parent.Header.Session)
	msg.Identities = parent.Identities
	msg.ParentHeader = parent.Header
	if content != nil {
		msg.Content = content
	}
	return msg
}

// ErrorContent is the canonical status=error reply body.
func ErrorContent(err error) map[string]any {
	return map[string]any{
		"status": "error",
		"error":  err.Error(),
	}
}
