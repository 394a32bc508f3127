// Package tool exposes engine operations to the language model as named
// functions with JSON schema validated arguments.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	ErrUnknownTool  = errors.New("unknown tool")
	ErrInvalidInput = errors.New("invalid tool input")
)

// Tool is a named operation the model may call. Run returns the text that is
// handed back to the model verbatim.
type Tool interface {
	Name() string
	Description() string
	Schema() (*jsonschema.Schema, error)
	Run(ctx context.Context, input json.RawMessage) (string, error)
}

// Toolkit is a collection of tools with unique names.
type Toolkit struct {
	tools map[string]Tool
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

func NewToolkit(tools ...Tool) (*Toolkit, error) {
	tk := &Toolkit{tools: make(map[string]Tool)}
	if err := tk.Register(tools...); err != nil {
		return nil, err
	}
	return tk, nil
}

// Register adds tools, rejecting invalid or duplicate names.
func (tk *Toolkit) Register(tools ...Tool) error {
	for _, t := range tools {
		name := t.Name()
		if !identifier.MatchString(name) {
			return fmt.Errorf("invalid tool name %q", name)
		}
		if _, exists := tk.tools[name]; exists {
			return fmt.Errorf("duplicate tool name %q", name)
		}
		tk.tools[name] = t
	}
	return nil
}

// Tools returns the registered tools ordered by name.
func (tk *Toolkit) Tools() []Tool {
	out := make([]Tool, 0, len(tk.tools))
	for _, t := range tk.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (tk *Toolkit) Lookup(name string) Tool {
	return tk.tools[name]
}

// Run validates input against the tool schema and executes it.
func (tk *Toolkit) Run(ctx context.Context, name string, input any) (string, error) {
	t := tk.Lookup(name)
	if t == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	raw, err := rawInput(input)
	if err != nil {
		return "", err
	}
	if err := validate(t, raw); err != nil {
		return "", err
	}
	return t.Run(ctx, raw)
}

// Call is Run with failures folded into the result text, so a failing tool
// never aborts the conversation.
func (tk *Toolkit) Call(ctx context.Context, name string, input any) string {
	out, err := tk.Run(ctx, name, input)
	if err != nil {
		return "Error: " + err.Error()
	}
	return out
}

func rawInput(input any) (json.RawMessage, error) {
	switch v := input.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return v, nil
	case []byte:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return json.RawMessage(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return data, nil
	}
}

func validate(t Tool, raw json.RawMessage) error {
	schema, err := t.Schema()
	if err != nil {
		return fmt.Errorf("schema for %s: %w", t.Name(), err)
	}
	if schema == nil {
		return nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return fmt.Errorf("%w: arguments must be a JSON object: %v", ErrInvalidInput, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", t.Name(), err)
	}
	if err := resolved.Validate(args); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// decode unmarshals validated input into a request struct.
func decode[T any](input json.RawMessage) (T, error) {
	var req T
	if len(input) == 0 {
		return req, nil
	}
	if err := json.Unmarshal(input, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return req, nil
}
