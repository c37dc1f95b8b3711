// Package module implements the module lifecycle controller: manifest
// loading, settings binding, and per-module job registration for process
// lifetime (spec.md §3 "Module manifest", §4's module host share).
package module

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// SettingType enumerates the declared types a manifest setting may have.
type SettingType string

const (
	SettingString  SettingType = "string"
	SettingNumber  SettingType = "number"
	SettingBoolean SettingType = "boolean"
	SettingSecret  SettingType = "secret"
)

// SettingSpec is one manifest-declared setting.
type SettingSpec struct {
	Key      string      `yaml:"key"`
	Type     SettingType `yaml:"type"`
	Default  string      `yaml:"default"`
	Required bool        `yaml:"required"`
}

// JobSpec is one manifest-declared job: a named unit of scheduled or
// manually triggered work.
type JobSpec struct {
	Name          string `yaml:"name"`
	Queue         string `yaml:"queue"`
	Schedule      string `yaml:"schedule,omitempty"`
	TriggerClass  string `yaml:"triggerClass,omitempty"`
	Description   string `yaml:"description,omitempty"`
	BudgetSeconds int    `yaml:"budgetSeconds,omitempty"`
}

// CardHint carries free-form UI display metadata; FeedEater itself never
// interprets these fields beyond passing them through to the operational
// HTTP surface.
type CardHint struct {
	Title string `yaml:"title,omitempty"`
	Icon  string `yaml:"icon,omitempty"`
	Color string `yaml:"color,omitempty"`
}

// Manifest is the immutable description of a module, loaded once at
// process start (spec.md §3).
type Manifest struct {
	Name     string        `yaml:"name"`
	Version  string        `yaml:"version"`
	Queues   []string      `yaml:"queues"`
	Jobs     []JobSpec     `yaml:"jobs"`
	Settings []SettingSpec `yaml:"settings"`
	Card     CardHint      `yaml:"card,omitempty"`
}

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks the manifest's structural invariants: a dotted-namespace-
// safe name, at least one queue, and jobs/queues referencing each other
// consistently.
func (m Manifest) Validate() error {
	if !namePattern.MatchString(m.Name) {
		return fmt.Errorf("module: invalid manifest name %q (must match %s)", m.Name, namePattern.String())
	}
	if m.Version == "" {
		return fmt.Errorf("module %s: version is required", m.Name)
	}
	if len(m.Queues) == 0 {
		return fmt.Errorf("module %s: at least one queue is required", m.Name)
	}
	queueSet := make(map[string]bool, len(m.Queues))
	for _, q := range m.Queues {
		queueSet[q] = true
	}
	for _, j := range m.Jobs {
		if j.Name == "" {
			return fmt.Errorf("module %s: job with empty name", m.Name)
		}
		if !queueSet[j.Queue] {
			return fmt.Errorf("module %s: job %s references undeclared queue %q", m.Name, j.Name, j.Queue)
		}
	}
	for _, s := range m.Settings {
		switch s.Type {
		case SettingString, SettingNumber, SettingBoolean, SettingSecret:
		default:
			return fmt.Errorf("module %s: setting %s has unknown type %q", m.Name, s.Key, s.Type)
		}
	}
	return nil
}

// LoadManifest parses a manifest YAML file from path.
func LoadManifest(path string) (Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("module: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("module: parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// LoadManifestDir loads one manifest per module under dir. A module is
// either a "manifest.{yaml,yml}" file directly inside a subdirectory of
// dir (the pluggable-module layout, "modules/<name>/manifest.yaml"), or a
// bare *.yaml/*.yml file directly under dir. Manifests are read once per
// process lifetime; changes require a process restart (spec.md §3
// "Lifecycle").
func LoadManifestDir(dir string) ([]Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("module: read manifest dir %s: %w", dir, err)
	}
	var out []Manifest
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			sub := dir + "/" + name
			path, found := findManifestFile(sub)
			if !found {
				continue
			}
			m, err := LoadManifest(path)
			if err != nil {
				return nil, err
			}
			out = append(out, m)
			continue
		}
		if !yamlExt(name) {
			continue
		}
		m, err := LoadManifest(dir + "/" + name)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func findManifestFile(dir string) (string, bool) {
	for _, candidate := range []string{"manifest.yaml", "manifest.yml"} {
		path := dir + "/" + candidate
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	return "", false
}

func yamlExt(name string) bool {
	for _, suf := range []string{".yaml", ".yml"} {
		if len(name) >= len(suf) && name[len(name)-len(suf):] == suf {
			return true
		}
	}
	return false
}
