package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dahshury/clinic-whatsapp-bot/internal/tools"
)

const (
	anthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider drives Claude models through the Messages API.
type AnthropicProvider struct {
	http      *resty.Client
	model     string
	maxTokens int
}

func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	http := resty.New().
		SetBaseURL(anthropicBaseURL).
		SetTimeout(30 * time.Second).
		SetHeader("x-api-key", apiKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetHeader("content-type", "application/json")
	return &AnthropicProvider{http: http, model: model, maxTokens: 1024}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

// SetBaseURL points the provider at a test server.
func (p *AnthropicProvider) SetBaseURL(url string) { p.http.SetBaseURL(url) }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []anthropicBlock `json:"content"`
}

type anthropicBlock struct {
	Type string `json:"type"`

	Text string `json:"text,omitempty"`

	// tool_use
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// tool_result
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicResponse struct {
	Content    []anthropicBlock `json:"content"`
	StopReason string           `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *AnthropicProvider) Complete(ctx context.Context, system string, messages []Message, catalog []tools.Descriptor) (Response, error) {
	req := anthropicRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		System:    system,
		Messages:  toAnthropicMessages(messages),
		Tools:     toAnthropicTools(catalog),
	}

	var out anthropicResponse
	resp, err := p.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post("/v1/messages")
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Response{}, &TransientError{Kind: "timeout", Err: err}
		}
		return Response{}, &TransientError{Kind: "connection", Err: err}
	}
	if resp.IsError() {
		msg := fmt.Errorf("llm: anthropic status %d", resp.StatusCode())
		if out.Error != nil {
			msg = fmt.Errorf("llm: anthropic %s: %s", out.Error.Type, out.Error.Message)
		}
		switch {
		case resp.StatusCode() == 429 || (out.Error != nil && out.Error.Type == "rate_limit_error"):
			return Response{}, &TransientError{Kind: "rate_limit", Err: msg}
		case resp.StatusCode() >= 500:
			return Response{}, &TransientError{Kind: "server_error", Err: msg}
		}
		return Response{}, msg
	}

	var result Response
	for _, block := range out.Content {
		switch block.Type {
		case "text":
			result.Text += block.Text
		case "tool_use":
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   block.ID,
				Name: block.Name,
				Args: block.Input,
			})
		}
	}
	return result, nil
}

func toAnthropicMessages(messages []Message) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, anthropicMessage{
				Role:    "user",
				Content: []anthropicBlock{{Type: "text", Text: m.Text}},
			})
		case RoleAssistant:
			var blocks []anthropicBlock
			if m.Text != "" {
				blocks = append(blocks, anthropicBlock{Type: "text", Text: m.Text})
			}
			for _, tc := range m.ToolCalls {
				args := tc.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropicBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: args})
			}
			if len(blocks) > 0 {
				out = append(out, anthropicMessage{Role: "assistant", Content: blocks})
			}
		case RoleTool:
			if m.ToolResult == nil {
				continue
			}
			out = append(out, anthropicMessage{
				Role: "user",
				Content: []anthropicBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolResult.CallID,
					Content:   m.ToolResult.Content,
					IsError:   m.ToolResult.IsError,
				}},
			})
		}
	}
	return out
}

func toAnthropicTools(catalog []tools.Descriptor) []anthropicTool {
	out := make([]anthropicTool, 0, len(catalog))
	for _, d := range catalog {
		schema := d.Schema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, anthropicTool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: schema,
		})
	}
	return out
}
