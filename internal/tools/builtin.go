package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegisterBuiltins declares the stock utility tools on r.
func RegisterBuiltins(r *Registry) error {
	builtins := []struct {
		spec    Spec
		handler Handler
	}{
		{
			Spec{
				Name:        "get_current_time",
				Description: "Returns the current date and time in UTC",
				Category:    "utilities",
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				return time.Now().UTC().Format("2006-01-02 15:04:05 UTC"), nil
			},
		},
		{
			Spec{
				Name:        "calculate",
				Description: "Evaluates a simple arithmetic expression",
				Category:    "math",
				Dangerous:   true,
				Params: []Param{
					{Name: "expression", Type: TypeString, Description: "Arithmetic expression, e.g. (2 + 3) * 4", Required: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				expr, _ := args["expression"].(string)
				return evalExpression(expr)
			},
		},
		{
			Spec{
				Name:        "echo",
				Description: "Repeats the given text, useful for testing",
				Category:    "utilities",
				Params: []Param{
					{Name: "text", Type: TypeString, Description: "Text to echo", Required: true},
					{Name: "repeat", Type: TypeNumber, Description: "Repetition count, 1 to 10", Required: false, Default: 1},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				text, _ := args["text"].(string)
				repeat := 1
				if n, ok := asNumber(args["repeat"]); ok {
					repeat = int(n)
				}
				if repeat < 1 || repeat > 10 {
					return nil, fmt.Errorf("repeat must be between 1 and 10")
				}
				parts := make([]string, repeat)
				for i := range parts {
					parts[i] = text
				}
				return strings.Join(parts, " | "), nil
			},
		},
		{
			Spec{
				Name:        "count_words",
				Description: "Counts words, characters, and lines in a text",
				Category:    "text_processing",
				Params: []Param{
					{Name: "text", Type: TypeString, Description: "Text to analyze", Required: true},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				text, _ := args["text"].(string)
				return map[string]any{
					"word_count":                len(strings.Fields(text)),
					"character_count":           len(text),
					"character_count_no_spaces": len(strings.ReplaceAll(text, " ", "")),
					"line_count":                len(strings.Split(text, "\n")),
				}, nil
			},
		},
		{
			Spec{
				Name:        "format_json",
				Description: "Pretty-prints a JSON string",
				Category:    "utilities",
				Params: []Param{
					{Name: "json_string", Type: TypeString, Description: "JSON document to format", Required: true},
					{Name: "indent", Type: TypeNumber, Description: "Indent width", Required: false, Default: 2},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				raw, _ := args["json_string"].(string)
				indent := 2
				if n, ok := asNumber(args["indent"]); ok {
					indent = int(n)
				}
				var parsed any
				if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
					return nil, fmt.Errorf("invalid JSON: %w", err)
				}
				out, err := json.MarshalIndent(parsed, "", strings.Repeat(" ", indent))
				if err != nil {
					return nil, err
				}
				return string(out), nil
			},
		},
		{
			Spec{
				Name:        "generate_uuid",
				Description: "Generates a unique identifier",
				Category:    "utilities",
				Params: []Param{
					{Name: "version", Type: TypeNumber, Description: "UUID version", Required: false, Enum: []any{1, 4}, Default: 4},
				},
			},
			func(ctx context.Context, args map[string]any) (any, error) {
				version := 4
				if n, ok := asNumber(args["version"]); ok {
					version = int(n)
				}
				switch version {
				case 1:
					id, err := uuid.NewUUID()
					if err != nil {
						return nil, err
					}
					return id.String(), nil
				case 4:
					return uuid.NewString(), nil
				}
				return nil, fmt.Errorf("unsupported UUID version %d", version)
			},
		},
	}

	for _, b := range builtins {
		if err := r.Register(b.spec, b.handler); err != nil {
			return err
		}
	}
	return nil
}
