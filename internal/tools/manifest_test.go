package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

const echoManifest = `
name: shout
description: Upper-cases its input
category: text_processing
command: printf '%s' "$PARLEY_ARG_TEXT" | tr '[:lower:]' '[:upper:]'
params:
  - name: text
    type: string
    description: text to shout
    required: true
`

func writeManifest(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, "shout.yaml", echoManifest)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if m.Name != "shout" {
		t.Errorf("name = %q", m.Name)
	}
	spec := m.Spec()
	if spec.Category != "text_processing" {
		t.Errorf("category = %q", spec.Category)
	}
	if len(spec.Params) != 1 || spec.Params[0].Name != "text" {
		t.Errorf("params = %+v", spec.Params)
	}
}

func TestLoadDeployManifest(t *testing.T) {
	m, err := LoadManifest("testdata/deploy.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	spec := m.Spec()
	if spec.Name != "deploy_service" {
		t.Errorf("name = %q", spec.Name)
	}
	if !spec.RequiresConfirmation || !spec.Dangerous {
		t.Errorf("deploy must require confirmation and be marked dangerous: %+v", spec)
	}
	if spec.Timeout != 120*time.Second {
		t.Errorf("timeout = %v", spec.Timeout)
	}

	err = spec.Validate(map[string]any{"service": "api", "environment": "qa"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected enum violation, got %v", err)
	}
	if err := spec.Validate(map[string]any{"service": "api", "environment": "staging"}); err != nil {
		t.Errorf("valid arguments rejected: %v", err)
	}
}

func TestLoadManifestRejectsIncomplete(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"no name", "command: echo hi\n"},
		{"no command", "name: quiet\n"},
		{"bad yaml", "name: [unclosed\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, dir, "bad.yaml", tt.content)
			if _, err := LoadManifest(path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestManifestExecution(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("manifest commands run through sh")
	}
	dir := t.TempDir()
	path := writeManifest(t, dir, "shout.yaml", echoManifest)

	r := NewRegistry(testLogger())
	if err := RegisterManifest(r, path); err != nil {
		t.Fatalf("register: %v", err)
	}
	d := NewDispatcher(r, testLogger(), nil)

	inv := d.Execute(context.Background(), Request{
		Name:      "shout",
		Arguments: map[string]any{"text": "hello"},
	})
	if inv.Status != "success" {
		t.Fatalf("status = %q (%s)", inv.Status, inv.Error)
	}
	if inv.Result != "HELLO" {
		t.Errorf("result = %v, want HELLO", inv.Result)
	}
}

func TestWatcherInitialScan(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "shout.yaml", echoManifest)
	writeManifest(t, dir, "notes.txt", "not a manifest")

	r := NewRegistry(testLogger())
	w, err := NewWatcher(dir, r, testLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	if _, _, ok := r.Lookup("shout"); !ok {
		t.Error("manifest from initial scan not registered")
	}
	if r.Len() != 1 {
		t.Errorf("registry has %d tools, want 1", r.Len())
	}
}

func TestWatcherSkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "shout.yaml", echoManifest)

	r := NewRegistry(testLogger())
	if err := r.Register(Spec{Name: "shout", Description: "compiled in"}, noopHandler); err != nil {
		t.Fatalf("register: %v", err)
	}

	w, err := NewWatcher(dir, r, testLogger())
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Close()

	spec, _, _ := r.Lookup("shout")
	if spec.Description != "compiled in" {
		t.Error("watcher replaced an existing registration")
	}
}
