// Package persona loads persona definitions from YAML files. A persona binds
// a prompt template to an execution provider plus optional, strongly typed
// provider settings that are validated once at load time.
package persona

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// JulesSettings carries the optional per-persona overrides for the Jules
// provider. Empty or nil fields mean "not set"; the provider layers these
// over environment values and config defaults.
type JulesSettings struct {
	Source              string  `yaml:"source"`
	StartingBranch      string  `yaml:"starting_branch"`
	BaseURL             string  `yaml:"base_url"`
	RequirePlanApproval *bool   `yaml:"require_plan_approval"`
	AutomationMode      string  `yaml:"automation_mode"`
	TimeoutSeconds      float64 `yaml:"timeout_s"`
	PollIntervalSeconds float64 `yaml:"poll_interval_s"`
}

func (s *JulesSettings) validate() error {
	if s == nil {
		return nil
	}
	if s.TimeoutSeconds < 0 {
		return fmt.Errorf("jules.timeout_s must be >= 0")
	}
	if s.PollIntervalSeconds < 0 {
		return fmt.Errorf("jules.poll_interval_s must be >= 0")
	}
	return nil
}

// Settings groups the provider-specific blocks a persona may declare.
type Settings struct {
	Jules *JulesSettings `yaml:"jules"`
}

// Persona models one personas/<name>.yaml file.
type Persona struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Provider    string `yaml:"provider"`
	Enabled     *bool  `yaml:"enabled"`
	Prompt      string `yaml:"prompt"`

	// ProviderSettings is the preferred home for provider blocks; a
	// top-level block with the provider name is accepted as shorthand.
	ProviderSettings Settings       `yaml:"provider_settings"`
	Jules            *JulesSettings `yaml:"jules"`
}

// IsEnabled reports whether the persona should run. Absent means enabled.
func (p Persona) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// JulesOverrides returns the effective Jules settings block, preferring
// provider_settings.jules over the top-level shorthand. May be nil.
func (p Persona) JulesOverrides() *JulesSettings {
	if p.ProviderSettings.Jules != nil {
		return p.ProviderSettings.Jules
	}
	return p.Jules
}

// Title returns the display name, falling back to the persona name.
func (p Persona) Title() string {
	if strings.TrimSpace(p.DisplayName) != "" {
		return p.DisplayName
	}
	return p.Name
}

// Parse decodes and validates a single persona payload.
func Parse(data []byte) (Persona, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Persona{}, fmt.Errorf("persona: definition payload is empty")
	}
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("persona: decode definition: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Persona{}, err
	}
	return p.normalized(), nil
}

// Load reads personas/<name>.yaml from the given directory.
func Load(dir, name string) (Persona, error) {
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return Persona{}, fmt.Errorf("persona: read %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return Persona{}, fmt.Errorf("persona: %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return p, nil
}

// List returns the names of all enabled personas in the directory, sorted.
// A directory with no persona files yields an empty slice, not an error.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("persona: read %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".yaml")
		p, err := Load(dir, name)
		if err != nil {
			return nil, err
		}
		if p.IsEnabled() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Validate ensures required fields are present and settings are sane.
func (p Persona) Validate() error {
	if strings.TrimSpace(p.Prompt) == "" {
		return fmt.Errorf("persona: prompt is required")
	}
	if err := p.ProviderSettings.Jules.validate(); err != nil {
		return fmt.Errorf("persona: provider_settings: %w", err)
	}
	if err := p.Jules.validate(); err != nil {
		return fmt.Errorf("persona: %w", err)
	}
	return nil
}

func (p Persona) normalized() Persona {
	p.Name = strings.TrimSpace(p.Name)
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.Provider = strings.ToLower(strings.TrimSpace(p.Provider))
	if p.Provider == "" {
		p.Provider = "stub"
	}
	return p
}
