// Package tools declares, validates, and executes the side-effecting
// operations the remote model may request. Tools are registered with an
// explicit schema value; there is no reflection over handler signatures.
package tools

import (
	"fmt"
	"strings"
	"time"
)

// Parameter types understood by the validator, matching the JSON schema
// vocabulary the remote model sees.
const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Param describes one tool parameter.
type Param struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Enum        []any  `yaml:"enum,omitempty"`
	Default     any    `yaml:"default,omitempty"`
}

// Spec is the declared interface and execution policy of a tool.
type Spec struct {
	Name                 string
	Description          string
	Params               []Param
	Category             string
	RequiresConfirmation bool
	Dangerous            bool
	MaxRetries           int
	Timeout              time.Duration
}

// DefaultMaxRetries bounds handler attempts when a spec does not set its own.
const DefaultMaxRetries = 3

// DefaultTimeout bounds a single handler call when a spec does not set its own.
const DefaultTimeout = 30 * time.Second

// ValidationError collects every problem found in one argument set. All
// issues are reported together rather than failing on the first.
type ValidationError struct {
	Tool   string
	Issues []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("tool %s: invalid arguments: %s", e.Tool, strings.Join(e.Issues, "; "))
}

// Validate checks args against the spec's parameters: missing required
// parameters, unknown parameters, and per-parameter type and enum
// mismatches are all collected into a single ValidationError.
func (s Spec) Validate(args map[string]any) error {
	var issues []string

	byName := make(map[string]Param, len(s.Params))
	for _, p := range s.Params {
		byName[p.Name] = p
		if p.Required {
			if _, ok := args[p.Name]; !ok {
				issues = append(issues, fmt.Sprintf("missing required parameter %q", p.Name))
			}
		}
	}

	for name, value := range args {
		p, ok := byName[name]
		if !ok {
			issues = append(issues, fmt.Sprintf("unknown parameter %q", name))
			continue
		}
		if msg := checkValue(p, value); msg != "" {
			issues = append(issues, fmt.Sprintf("parameter %q %s", name, msg))
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Tool: s.Name, Issues: issues}
	}
	return nil
}

func checkValue(p Param, value any) string {
	switch p.Type {
	case TypeString:
		if _, ok := value.(string); !ok {
			return "must be a string"
		}
	case TypeNumber:
		if _, ok := asNumber(value); !ok {
			return "must be a number"
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}
	case TypeArray:
		if _, ok := value.([]any); !ok {
			return "must be an array"
		}
	case TypeObject:
		if _, ok := value.(map[string]any); !ok {
			return "must be an object"
		}
	}

	if len(p.Enum) > 0 && !enumMatch(p.Enum, value) {
		return fmt.Sprintf("must be one of %v", p.Enum)
	}
	return ""
}

// asNumber normalizes the numeric types JSON decoding and Go callers
// produce.
func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func enumMatch(enum []any, value any) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
		ea, eok := asNumber(e)
		va, vok := asNumber(value)
		if eok && vok && ea == va {
			return true
		}
	}
	return false
}

// Descriptor is the schema shape sent to the remote model, following the
// OpenAI function-calling format.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Describe renders the spec as a model-facing descriptor.
func (s Spec) Describe() Descriptor {
	properties := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return Descriptor{
		Name:        s.Name,
		Description: s.Description,
		Parameters: map[string]any{
			"type":       "object",
			"properties": properties,
			"required":   required,
		},
	}
}
