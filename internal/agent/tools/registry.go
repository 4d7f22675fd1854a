// Package tools implements the assistant's capabilities beyond plain
// conversation: clock, document reading, camera description, UI control.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/voxaid/voxaid/internal/agent/ai"
	"github.com/voxaid/voxaid/internal/logging"
)

// Status classifies a tool outcome so the orchestrator can phrase the spoken
// response appropriately.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusUnavailable
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

// Result is the outcome of one tool execution. Content is already phrased for
// speech synthesis.
type Result struct {
	Status  Status `json:"status"`
	Content string `json:"content"`
}

// Tool is a discrete capability dispatched by the router.
type Tool interface {
	// Name returns the tool's unique name.
	Name() string

	// Description returns a short human-readable description.
	Description() string

	// Execute runs the tool with the given JSON input.
	Execute(ctx context.Context, input json.RawMessage) (*Result, error)
}

// Registry manages available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute runs a tool and normalizes errors into Results. A downstream AI
// failure becomes StatusUnavailable so the caller can retry once; everything
// else becomes StatusError. Execute never returns a nil result.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) *Result {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()

	if !ok {
		logging.Warnf("[tools] unknown tool: %s", name)
		return &Result{
			Status:  StatusError,
			Content: fmt.Sprintf("Unknown tool: %s", name),
		}
	}

	logging.Debugf("[tools] executing %s", name)
	result, err := tool.Execute(ctx, input)
	if err != nil {
		if errors.Is(err, ai.ErrUnavailable) {
			return &Result{
				Status:  StatusUnavailable,
				Content: "The assistant service is temporarily unavailable.",
			}
		}
		logging.Errorf("[tools] %s failed: %v", name, err)
		return &Result{
			Status:  StatusError,
			Content: fmt.Sprintf("Tool error: %v", err),
		}
	}
	if result == nil {
		return &Result{Status: StatusError, Content: "Tool returned no result"}
	}
	return result
}
