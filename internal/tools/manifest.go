package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Manifest is a tool declared in a YAML file rather than compiled in. The
// manifest's command runs through the shell with the validated arguments
// exported as PARLEY_ARG_<NAME> environment variables, so argument values
// never get interpolated into the command line.
type Manifest struct {
	Name                 string  `yaml:"name"`
	Description          string  `yaml:"description"`
	Category             string  `yaml:"category"`
	Command              string  `yaml:"command"`
	RequiresConfirmation bool    `yaml:"requires_confirmation"`
	Dangerous            bool    `yaml:"dangerous"`
	MaxRetries           int     `yaml:"max_retries"`
	TimeoutSeconds       int     `yaml:"timeout_seconds"`
	Params               []Param `yaml:"params"`
}

// LoadManifest reads and checks one manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest %s: missing name", path)
	}
	if m.Command == "" {
		return nil, fmt.Errorf("manifest %s: missing command", path)
	}
	for i, p := range m.Params {
		if p.Name == "" {
			return nil, fmt.Errorf("manifest %s: param %d missing name", path, i)
		}
		if p.Type == "" {
			m.Params[i].Type = TypeString
		}
	}
	return &m, nil
}

// Spec returns the registry spec for the manifest.
func (m *Manifest) Spec() Spec {
	category := m.Category
	if category == "" {
		category = "manifest"
	}
	return Spec{
		Name:                 m.Name,
		Description:          m.Description,
		Params:               m.Params,
		Category:             category,
		RequiresConfirmation: m.RequiresConfirmation,
		Dangerous:            m.Dangerous,
		MaxRetries:           m.MaxRetries,
		Timeout:              time.Duration(m.TimeoutSeconds) * time.Second,
	}
}

// Handler returns the shell-executing handler for the manifest.
func (m *Manifest) Handler() Handler {
	command := m.Command
	return func(ctx context.Context, args map[string]any) (any, error) {
		cmd := exec.CommandContext(ctx, "sh", "-c", command)
		cmd.Env = append(os.Environ(), argEnv(args)...)
		output, err := cmd.CombinedOutput()
		trimmed := strings.TrimSpace(string(output))
		if err != nil {
			if trimmed != "" {
				return nil, fmt.Errorf("%w: %s", err, trimmed)
			}
			return nil, err
		}
		return trimmed, nil
	}
}

func argEnv(args map[string]any) []string {
	env := make([]string, 0, len(args))
	for name, value := range args {
		key := "PARLEY_ARG_" + strings.ToUpper(name)
		env = append(env, fmt.Sprintf("%s=%v", key, value))
	}
	return env
}

// RegisterManifest loads path and registers it on r.
func RegisterManifest(r *Registry, path string) error {
	m, err := LoadManifest(path)
	if err != nil {
		return err
	}
	return r.Register(m.Spec(), m.Handler())
}
