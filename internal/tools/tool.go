package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rahul/uipilot/internal/device"
	"github.com/tmc/langchaingo/llms"
)

var (
	ErrToolUnregistered = errors.New("tool is not registered")
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Tool defines one capability the model can call.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema for the tool's inputs
	// ReadOnly tools are offered to verification objectives.
	ReadOnly() bool
	Decode(args string) (Invocation, error)
}

// Invocation is a decoded tool call. The set of implementations is closed:
// StatusReport, Primitive and Delegation.
type Invocation interface {
	ToolName() string
	invocation()
}

// ReportedStatus is the value of a report_status call.
type ReportedStatus string

const (
	ReportInProgress ReportedStatus = "in_progress"
	ReportCompleted  ReportedStatus = "completed"
	ReportFailed     ReportedStatus = "failed"
)

// StatusReport is the model declaring the state of the current objective.
type StatusReport struct {
	Tool        string
	Status      ReportedStatus
	Explanation string
}

// Primitive maps one-to-one onto a device action.
type Primitive struct {
	Tool   string
	Action device.Action
}

// ExpandFunc resolves a delegating call against the current screen.
type ExpandFunc func(snap device.Snapshot) ([]device.Action, error)

// Delegation resolves to zero or more primitive actions at execution time.
type Delegation struct {
	Tool   string
	Expand ExpandFunc
}

func (s StatusReport) ToolName() string { return s.Tool }
func (p Primitive) ToolName() string    { return p.Tool }
func (d Delegation) ToolName() string   { return d.Tool }

func (StatusReport) invocation() {}
func (Primitive) invocation()    {}
func (Delegation) invocation()   {}

// Registry manages the set of available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Resolve looks up a tool by name and decodes its serialized arguments.
func (r *Registry) Resolve(name, args string) (Invocation, error) {
	t := r.Get(name)
	if t == nil {
		return nil, fmt.Errorf("%w: %q", ErrToolUnregistered, name)
	}
	inv, err := t.Decode(args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return inv, nil
}

// Definitions returns the LLM tool descriptors in registration order.
// With readOnly set only read-only tools are included.
func (r *Registry) Definitions(readOnly bool) []llms.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		if readOnly && !t.ReadOnly() {
			continue
		}
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// NewDefaultRegistry registers the built-in tools for a device platform.
func NewDefaultRegistry(platform string) *Registry {
	r := NewRegistry()
	for _, t := range primitiveTools(platform) {
		r.Register(t)
	}
	if platform != "desktop" {
		r.Register(TapElementTool{})
		r.Register(ClickTextTool{})
		r.Register(FillFormTool{})
	}
	r.Register(StatusTool{})
	return r
}

func decodeArgs(args string, v any) error {
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	if err := json.Unmarshal([]byte(args), v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
