package tools

import (
	"context"
	"fmt"
	"sort"

	"github.com/dahshury/clinic-whatsapp-bot/internal/observability/metrics"
	"github.com/dahshury/clinic-whatsapp-bot/pkg/logging"
)

// Handler executes one tool call with already-decoded JSON arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Descriptor is one tool as advertised to the model: a name, a human
// description, a JSON schema for the arguments and the handler behind it.
type Descriptor struct {
	Name        string
	Description string
	Schema      map[string]any
	Handler     Handler
}

// wantsWaID reports whether the tool's schema declares a wa_id parameter.
func (d Descriptor) wantsWaID() bool {
	props, ok := d.Schema["properties"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = props["wa_id"]
	return ok
}

// Registry is a named, static catalog of tools.
type Registry struct {
	name    string
	tools   map[string]Descriptor
	metrics *metrics.Metrics
	logger  *logging.Logger
}

func NewRegistry(name string, m *metrics.Metrics, logger *logging.Logger) *Registry {
	if m == nil {
		m = metrics.NewForTest()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		name:    name,
		tools:   make(map[string]Descriptor),
		metrics: m,
		logger:  logger,
	}
}

// Name identifies the registry ("default" or "system_agent").
func (r *Registry) Name() string { return r.name }

// Register adds a descriptor; a duplicate name panics at wiring time.
func (r *Registry) Register(d Descriptor) {
	if _, exists := r.tools[d.Name]; exists {
		panic(fmt.Sprintf("tools: duplicate tool %q in registry %q", d.Name, r.name))
	}
	r.tools[d.Name] = d
}

// List returns every descriptor sorted by name, for advertising to providers.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.tools))
	for _, d := range r.tools {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get looks up one descriptor.
func (r *Registry) Get(name string) (Descriptor, bool) {
	d, ok := r.tools[name]
	return d, ok
}

// Invoke dispatches a tool call. callerWaID is injected only when the tool
// declares a wa_id parameter and the model did not supply one, so a model
// cannot act on behalf of another customer.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any, callerWaID string) (any, error) {
	d, ok := r.tools[name]
	if !ok {
		r.metrics.FunctionErrors.WithLabelValues(name).Inc()
		return nil, fmt.Errorf("tools: unknown tool %q", name)
	}
	if args == nil {
		args = make(map[string]any)
	}
	if d.wantsWaID() && callerWaID != "" {
		if v, present := args["wa_id"]; !present || v == "" {
			args["wa_id"] = callerWaID
		}
	}

	out, err := d.Handler(ctx, args)
	if err != nil {
		r.metrics.FunctionErrors.WithLabelValues(name).Inc()
		r.logger.Error("tool invocation failed", "tool", name, "registry", r.name, "error", err)
		return nil, err
	}
	return out, nil
}
