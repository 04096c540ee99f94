package llm

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dahshury/clinic-whatsapp-bot/internal/tools"
)

// GeminiProvider drives Gemini models with function calling.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	if model == "" {
		model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

// Close releases the underlying gRPC connection.
func (p *GeminiProvider) Close() error { return p.client.Close() }

func (p *GeminiProvider) Complete(ctx context.Context, system string, messages []Message, catalog []tools.Descriptor) (Response, error) {
	model := p.client.GenerativeModel(p.model)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if decls := toGeminiDeclarations(catalog); len(decls) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return Response{}, errors.New("llm: gemini needs at least one message")
	}

	session := model.StartChat()
	session.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	resp, err := session.SendMessage(ctx, last.Parts...)
	if err != nil {
		return Response{}, classifyGeminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{}, errors.New("llm: gemini returned no candidates")
	}

	var result Response
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			result.Text += string(v)
		case genai.FunctionCall:
			result.ToolCalls = append(result.ToolCalls, ToolCall{
				ID:   v.Name,
				Name: v.Name,
				Args: v.Args,
			})
		}
	}
	return result, nil
}

func toGeminiContents(messages []Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleUser:
			out = append(out, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Text)}})
		case RoleAssistant:
			var parts []genai.Part
			if m.Text != "" {
				parts = append(parts, genai.Text(m.Text))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) > 0 {
				out = append(out, &genai.Content{Role: "model", Parts: parts})
			}
		case RoleTool:
			if m.ToolResult == nil {
				continue
			}
			response := map[string]any{"content": m.ToolResult.Content}
			if m.ToolResult.IsError {
				response["error"] = true
			}
			out = append(out, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.FunctionResponse{Name: m.ToolResult.Name, Response: response}},
			})
		}
	}
	return out
}

func toGeminiDeclarations(catalog []tools.Descriptor) []*genai.FunctionDeclaration {
	out := make([]*genai.FunctionDeclaration, 0, len(catalog))
	for _, d := range catalog {
		out = append(out, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  toGeminiSchema(d.Schema),
		})
	}
	return out
}

// toGeminiSchema converts a JSON schema map into the SDK's typed schema.
// Only the subset the tool catalog uses is covered.
func toGeminiSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return &genai.Schema{Type: genai.TypeObject}
	}
	out := &genai.Schema{}
	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	switch schema["type"] {
	case "object":
		out.Type = genai.TypeObject
		if props, ok := schema["properties"].(map[string]any); ok {
			out.Properties = make(map[string]*genai.Schema, len(props))
			for name, raw := range props {
				if sub, ok := raw.(map[string]any); ok {
					out.Properties[name] = toGeminiSchema(sub)
				}
			}
		}
		if required, ok := schema["required"].([]string); ok {
			out.Required = required
		} else if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					out.Required = append(out.Required, s)
				}
			}
		}
	case "array":
		out.Type = genai.TypeArray
		if items, ok := schema["items"].(map[string]any); ok {
			out.Items = toGeminiSchema(items)
		}
	case "integer":
		out.Type = genai.TypeInteger
	case "number":
		out.Type = genai.TypeNumber
	case "boolean":
		out.Type = genai.TypeBoolean
	default:
		out.Type = genai.TypeString
	}
	return out
}

func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return &TransientError{Kind: "rate_limit", Err: err}
		case apiErr.Code >= 500:
			return &TransientError{Kind: "server_error", Err: err}
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &TransientError{Kind: "timeout", Err: err}
		}
		return &TransientError{Kind: "connection", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Kind: "timeout", Err: err}
	}
	return err
}
