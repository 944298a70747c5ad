// Package tools holds the functions a model may call mid-generation.
package tools

import (
	"context"
	"errors"
	"fmt"
	"math"

	"chat_gateway/internal/providers"
)

var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
)

// Parameter describes one argument of a tool.
type Parameter struct {
	Name        string
	Type        string // "string", "number", "integer" or "boolean"
	Description string
	Required    bool
	Default     any
}

// Tool is a callable function with a declared argument schema.
// Execute receives arguments that already passed validation, with defaults applied.
type Tool struct {
	Name        string
	Description string
	Parameters  []Parameter
	Execute     func(ctx context.Context, args map[string]any) (map[string]any, error)
}

// Schema renders the parameters as a JSON schema object.
func (t *Tool) Schema() map[string]any {
	props := make(map[string]any, len(t.Parameters))
	required := []string{}
	for _, p := range t.Parameters {
		prop := map[string]any{"type": p.Type}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// ValidationError reports a bad argument.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArguments
}

// ValidateArgs checks args against the tool's parameters and returns a copy
// with defaults filled in. Unknown arguments are dropped.
func (t *Tool) ValidateArgs(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(t.Parameters))
	for _, p := range t.Parameters {
		val, ok := args[p.Name]
		if !ok || val == nil {
			if p.Required {
				return nil, &ValidationError{Param: p.Name, Message: "missing required argument"}
			}
			if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		normalized, err := checkType(p, val)
		if err != nil {
			return nil, err
		}
		out[p.Name] = normalized
	}
	return out, nil
}

func checkType(p Parameter, val any) (any, error) {
	switch p.Type {
	case "string":
		if s, ok := val.(string); ok {
			return s, nil
		}
	case "boolean":
		if b, ok := val.(bool); ok {
			return b, nil
		}
	case "number":
		if f, ok := toFloat(val); ok {
			return f, nil
		}
	case "integer":
		if f, ok := toFloat(val); ok && f == math.Trunc(f) {
			return int(f), nil
		}
	default:
		return val, nil
	}
	return nil, &ValidationError{Param: p.Name, Message: fmt.Sprintf("expected %s, got %T", p.Type, val)}
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Registry is an immutable set of tools, keyed by name.
type Registry struct {
	tools map[string]*Tool
	order []string
}

// NewRegistry builds a registry from tools. Later duplicates replace earlier ones.
func NewRegistry(tools ...*Tool) *Registry {
	r := &Registry{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if _, exists := r.tools[t.Name]; !exists {
			r.order = append(r.order, t.Name)
		}
		r.tools[t.Name] = t
	}
	return r
}

// Default returns the built-in tool set.
func Default() *Registry {
	return NewRegistry(CurrentTime(nil), Calculate(), WebSearch())
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Specs returns the tool declarations handed to providers.
func (r *Registry) Specs() []providers.ToolSpec {
	specs := make([]providers.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, providers.ToolSpec{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Schema(),
		})
	}
	return specs
}

// Execute runs the named tool. Failures never escape as panics: the returned
// result is always usable as a tool result, error-shaped ({"error": ...})
// when err is non-nil.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result map[string]any, err error) {
	t, ok := r.tools[name]
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTool, name)
		return map[string]any{"error": err.Error()}, err
	}

	validated, err := t.ValidateArgs(args)
	if err != nil {
		err = fmt.Errorf("%s: %w", name, err)
		return map[string]any{"error": err.Error()}, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool %s panicked: %v", name, rec)
			result = map[string]any{"error": err.Error()}
		}
	}()

	result, err = t.Execute(ctx, validated)
	if err != nil {
		return map[string]any{"error": err.Error()}, err
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}
