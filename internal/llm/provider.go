package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/dahshury/clinic-whatsapp-bot/internal/tools"
)

// Message roles inside a provider exchange.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one provider-agnostic conversation turn. Exactly one of Text,
// ToolCalls or ToolResult is meaningful per turn.
type Message struct {
	Role       string
	Text       string
	ToolCalls  []ToolCall
	ToolResult *ToolResult
}

// ToolCall is the model asking for one tool invocation.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult carries a tool's outcome back to the model.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// Response is one model reply: either plain text or tool calls to satisfy.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Provider is one LLM backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system string, messages []Message, catalog []tools.Descriptor) (Response, error)
}

// TransientError marks a provider failure worth retrying: throttling,
// timeouts, connection drops and 5xx replies.
type TransientError struct {
	Kind string // rate_limit, timeout, connection, server_error
	Err  error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("llm: transient %s: %v", e.Kind, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// transientKind extracts the retry classification, or "" for permanent
// failures.
func transientKind(err error) string {
	var te *TransientError
	if errors.As(err, &te) {
		return te.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return ""
}
