// Package types provides core types used across the procurement group chat.
// This package has ZERO dependencies on other packages of this module to avoid circular imports.
package types

import (
	"encoding/json"
	"strings"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// SenderUser is the sender recorded for task and instruction messages from the driver.
const SenderUser = "user"

// ToolInvocation records one tool call made during a participant turn.
// Exactly one of Result and Error is meaningful.
type ToolInvocation struct {
	CallID    string          `json:"call_id"`
	Tool      string          `json:"tool"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  time.Duration   `json:"duration,omitempty"`
}

// Failed returns true if the invocation produced an error instead of a result.
func (ti ToolInvocation) Failed() bool {
	return ti.Error != ""
}

// Message is one immutable transcript entry.
// Seq is assigned by the transcript store at append time and starts at 1.
type Message struct {
	ID              string            `json:"id"`
	Seq             int64             `json:"seq"`
	RunID           string            `json:"run_id,omitempty"`
	Sender          string            `json:"sender"`
	Role            Role              `json:"role"`
	Content         string            `json:"content"`
	ToolInvocations []ToolInvocation  `json:"tool_invocations,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// NewMessage creates a new message with the given sender, role and content.
func NewMessage(sender string, role Role, content string) Message {
	return Message{
		Sender:    sender,
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a task or instruction message from the driver.
func NewUserMessage(content string) Message {
	return NewMessage(SenderUser, RoleUser, content)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (m Message) Clone() Message {
	out := m
	if m.ToolInvocations != nil {
		out.ToolInvocations = make([]ToolInvocation, len(m.ToolInvocations))
		for i, ti := range m.ToolInvocations {
			ti.Arguments = cloneRaw(ti.Arguments)
			ti.Result = cloneRaw(ti.Result)
			out.ToolInvocations[i] = ti
		}
	}
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// Render formats the message as "sender: content" plus one line per tool invocation.
func (m Message) Render() string {
	var b strings.Builder
	b.WriteString(m.Sender)
	b.WriteString(": ")
	b.WriteString(m.Content)
	for _, ti := range m.ToolInvocations {
		b.WriteString("\n  [tool ")
		b.WriteString(ti.Tool)
		b.WriteString("] ")
		if ti.Failed() {
			b.WriteString("error: ")
			b.WriteString(ti.Error)
		} else {
			b.Write(ti.Result)
		}
	}
	return b.String()
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
