package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dahshury/clinic-whatsapp-bot/internal/conversation"
	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/internal/store"
	"github.com/dahshury/clinic-whatsapp-bot/internal/tools"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

const defaultMaxTurns = 10

// Dispatcher runs tool calls on behalf of the model.
type Dispatcher interface {
	Invoke(ctx context.Context, name string, args map[string]any, callerWaID string) (any, error)
	List() []tools.Descriptor
}

// Transcript is the conversation log slice the driver reads and writes.
type Transcript interface {
	History(ctx context.Context, waID string) ([]store.ConversationMessage, error)
	Append(ctx context.Context, waID, role, message string) error
	UserLock(waID string) *sync.Mutex
}

// Reply is the driver's final answer with its clinic-local timestamps.
type Reply struct {
	Text string
	Date string // YYYY-MM-DD
	Time string // HH:MM:SS
}

// Driver runs the tool-dispatch loop against one provider.
type Driver struct {
	provider   Provider
	dispatcher Dispatcher
	transcript Transcript
	retry      *RetryPolicy
	location   *time.Location
	system     string
	maxTurns   int
	metrics    *metrics.Metrics
	logger     *logging.Logger
}

// DriverOption customizes driver construction.
type DriverOption func(*Driver)

// WithMaxTurns bounds the tool-dispatch loop.
func WithMaxTurns(n int) DriverOption {
	return func(d *Driver) {
		if n > 0 {
			d.maxTurns = n
		}
	}
}

func NewDriver(provider Provider, dispatcher Dispatcher, transcript Transcript, retry *RetryPolicy, loc *time.Location, systemPrompt string, m *metrics.Metrics, logger *logging.Logger, opts ...DriverOption) *Driver {
	if loc == nil {
		loc = time.UTC
	}
	if retry == nil {
		retry = DefaultRetryPolicy(0, m, logger)
	}
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}
	d := &Driver{
		provider:   provider,
		dispatcher: dispatcher,
		transcript: transcript,
		retry:      retry,
		location:   loc,
		system:     systemPrompt,
		maxTurns:   defaultMaxTurns,
		metrics:    m,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Respond handles one inbound customer message: it serializes per wa_id,
// records the turn, loops the model over the tool registry and returns the
// final text with its clinic-local timestamps.
func (d *Driver) Respond(ctx context.Context, waID, displayName, userText string) (Reply, error) {
	lock := d.transcript.UserLock(waID)
	lock.Lock()
	defer lock.Unlock()

	if err := d.transcript.Append(ctx, waID, conversation.RoleUser, userText); err != nil {
		return Reply{}, err
	}

	history, err := d.transcript.History(ctx, waID)
	if err != nil {
		return Reply{}, err
	}
	messages := translateHistory(history)
	system := d.system
	if displayName != "" {
		system = fmt.Sprintf("%s\n\nThe customer's WhatsApp number is %s and their name is %s.", d.system, waID, displayName)
	}

	catalog := d.dispatcher.List()

	for turn := 0; turn < d.maxTurns; turn++ {
		var resp Response
		err := d.retry.Do(ctx, "complete", func() error {
			var cerr error
			resp, cerr = d.provider.Complete(ctx, system, messages, catalog)
			if cerr != nil {
				if kind := transientKind(cerr); kind != "" {
					d.metrics.LLMAPIErrors.WithLabelValues(d.provider.Name(), kind).Inc()
				} else {
					d.metrics.LLMAPIErrors.WithLabelValues(d.provider.Name(), "permanent").Inc()
				}
			}
			return cerr
		})
		if err != nil {
			return Reply{}, err
		}

		if len(resp.ToolCalls) == 0 {
			if resp.Text == "" {
				d.metrics.LLMEmptyResponses.WithLabelValues(d.provider.Name(), "text").Inc()
				return Reply{}, fmt.Errorf("llm: empty response from %s", d.provider.Name())
			}
			if err := d.transcript.Append(ctx, waID, conversation.RoleAssistant, resp.Text); err != nil {
				return Reply{}, err
			}
			now := time.Now().In(d.location)
			return Reply{
				Text: resp.Text,
				Date: now.Format("2006-01-02"),
				Time: now.Format("15:04:05"),
			}, nil
		}

		messages = append(messages, Message{Role: RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			content, isErr := d.runTool(ctx, waID, call)
			messages = append(messages, Message{
				Role: RoleTool,
				ToolResult: &ToolResult{
					CallID:  call.ID,
					Name:    call.Name,
					Content: content,
					IsError: isErr,
				},
			})
			logLine := fmt.Sprintf("%s => %s", call.Name, content)
			if err := d.transcript.Append(ctx, waID, conversation.RoleTool, logLine); err != nil {
				return Reply{}, err
			}
		}
	}

	d.metrics.LLMEmptyResponses.WithLabelValues(d.provider.Name(), "max_turns").Inc()
	return Reply{}, fmt.Errorf("llm: no final answer after %d turns", d.maxTurns)
}

// runTool dispatches one call; failures become an error string the model
// can recover from instead of aborting the whole turn.
func (d *Driver) runTool(ctx context.Context, waID string, call ToolCall) (content string, isError bool) {
	out, err := d.dispatcher.Invoke(ctx, call.Name, call.Args, waID)
	if err != nil {
		d.metrics.LLMToolErrors.WithLabelValues(call.Name, d.provider.Name()).Inc()
		return fmt.Sprintf("Error: %v", err), true
	}
	encoded, err := json.Marshal(out)
	if err != nil {
		d.metrics.LLMToolErrors.WithLabelValues(call.Name, d.provider.Name()).Inc()
		return fmt.Sprintf("Error: %v", err), true
	}
	return string(encoded), false
}

// translateHistory maps stored turns onto provider roles. Secretary turns
// read as assistant turns; logged tool output reads as an assistant aside so
// providers that demand call ids for tool turns are not confused by history
// from earlier sessions.
func translateHistory(history []store.ConversationMessage) []Message {
	out := make([]Message, 0, len(history))
	for _, h := range history {
		switch h.Role {
		case conversation.RoleUser:
			out = append(out, Message{Role: RoleUser, Text: h.Message})
		case conversation.RoleAssistant, conversation.RoleSecretary:
			out = append(out, Message{Role: RoleAssistant, Text: h.Message})
		case conversation.RoleTool:
			out = append(out, Message{Role: RoleAssistant, Text: "[tool] " + h.Message})
		}
	}
	return out
}
