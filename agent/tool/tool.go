package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

// Tool is one registry entry: a name, a JSON schema reflected from the
// argument struct, and a typed handler.
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema

	compiled *gojsonschema.Schema
	decode   func(args map[string]any) (any, error)
	run      func(ctx context.Context, args any) (any, error)
}

// NewTool builds a Tool whose arguments decode into A. check runs after the
// schema passes and may reject values the schema cannot express (dates,
// practitioner formats).
func NewTool[A any, R any](name, description string, check func(*A) error, fn func(context.Context, A) (R, error)) (*Tool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tool name is required")
	}
	if fn == nil {
		return nil, fmt.Errorf("tool=%s has no handler", name)
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	var zero A
	schema := reflector.Reflect(&zero)
	schema.Version = ""
	schema.ID = ""
	if schema.Type == "" {
		schema.Type = "object"
	}
	schema.Description = description

	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema for tool=%s: %w", name, err)
	}
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema for tool=%s: %w", name, err)
	}

	return &Tool{
		Name:        name,
		Description: description,
		Schema:      schema,
		compiled:    compiled,
		decode: func(args map[string]any) (any, error) {
			var out A
			if err := decodeArgs(args, &out); err != nil {
				return nil, err
			}
			if check != nil {
				if err := check(&out); err != nil {
					return nil, err
				}
			}
			return out, nil
		},
		run: func(ctx context.Context, args any) (any, error) {
			typed, ok := args.(A)
			if !ok {
				return nil, fmt.Errorf("%w: tool=%s got %T", contractx.ErrInvalidToolArgs, name, args)
			}
			return fn(ctx, typed)
		},
	}, nil
}

// Check validates args against the schema and the typed check.
func (t *Tool) Check(args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	result, err := t.compiled.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return nil, fmt.Errorf("%w: tool=%s: %v", contractx.ErrInvalidToolArgs, t.Name, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, fmt.Errorf("%w: tool=%s: %s", contractx.ErrInvalidToolArgs, t.Name, strings.Join(msgs, "; "))
	}
	typed, err := t.decode(args)
	if err != nil {
		return nil, fmt.Errorf("%w: tool=%s: %v", contractx.ErrInvalidToolArgs, t.Name, err)
	}
	return typed, nil
}

func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}
