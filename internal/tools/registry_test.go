package tools

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noopHandler(ctx context.Context, args map[string]any) (any, error) {
	return "ok", nil
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry(testLogger())

	first := Spec{Name: "calculate", Description: "first registration"}
	if err := r.Register(first, func(ctx context.Context, args map[string]any) (any, error) {
		return "from first", nil
	}); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := r.Register(Spec{Name: "calculate", Description: "imposter"}, noopHandler)
	var regErr *RegistrationError
	if !errors.As(err, &regErr) {
		t.Fatalf("err = %v, want RegistrationError", err)
	}
	if regErr.Name != "calculate" {
		t.Errorf("conflict name = %q, want calculate", regErr.Name)
	}

	// First registration stays active.
	spec, handler, ok := r.Lookup("calculate")
	if !ok {
		t.Fatal("calculate disappeared")
	}
	if spec.Description != "first registration" {
		t.Errorf("description = %q, first registration replaced", spec.Description)
	}
	got, _ := handler(context.Background(), nil)
	if got != "from first" {
		t.Errorf("handler result = %v, want from first", got)
	}
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(Spec{Name: "echo"}, noopHandler); err != nil {
		t.Fatalf("register: %v", err)
	}
	spec, _, _ := r.Lookup("echo")
	if spec.MaxRetries != DefaultMaxRetries {
		t.Errorf("max retries = %d, want %d", spec.MaxRetries, DefaultMaxRetries)
	}
	if spec.Timeout != DefaultTimeout {
		t.Errorf("timeout = %v, want %v", spec.Timeout, DefaultTimeout)
	}
}

func TestDescribeAll(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(Spec{
		Name:        "zeta",
		Description: "last alphabetically",
	}, noopHandler)
	r.Register(Spec{
		Name:        "alpha",
		Description: "first alphabetically",
		Params: []Param{
			{Name: "query", Type: TypeString, Description: "what to look for", Required: true},
			{Name: "limit", Type: TypeNumber, Description: "max results", Default: 10},
		},
	}, noopHandler)

	descs := r.DescribeAll()
	if len(descs) != 2 {
		t.Fatalf("got %d descriptors, want 2", len(descs))
	}
	if descs[0].Name != "alpha" || descs[1].Name != "zeta" {
		t.Errorf("order = %s,%s want alpha,zeta", descs[0].Name, descs[1].Name)
	}

	params := descs[0].Parameters
	props, ok := params["properties"].(map[string]any)
	if !ok {
		t.Fatalf("properties missing: %v", params)
	}
	if _, ok := props["query"]; !ok {
		t.Error("query property missing")
	}
	required, _ := params["required"].([]string)
	if len(required) != 1 || required[0] != "query" {
		t.Errorf("required = %v, want [query]", required)
	}
	limit, _ := props["limit"].(map[string]any)
	if limit["default"] != 10 {
		t.Errorf("limit default = %v, want 10", limit["default"])
	}
}
