// Package settings holds the user-facing rendering options and their
// persistence. The GFM master switch overrides the per-feature switches
// without clearing their stored values; the projection to parser options
// happens in MarkdownOptions.
package settings

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/dgallion1/docrender/internal/markdown"
)

// Settings is the full recognized option surface.
type Settings struct {
	Gfm           bool `yaml:"gfm" json:"gfm" mapstructure:"gfm"`
	Tables        bool `yaml:"tables" json:"tables" mapstructure:"tables"`
	TaskLists     bool `yaml:"task_lists" json:"task_lists" mapstructure:"task_lists"`
	Strikethrough bool `yaml:"strikethrough" json:"strikethrough" mapstructure:"strikethrough"`
	Autolinks     bool `yaml:"autolinks" json:"autolinks" mapstructure:"autolinks"`
	Footnotes     bool `yaml:"footnotes" json:"footnotes" mapstructure:"footnotes"`

	HeadingAnchors bool `yaml:"heading_anchors" json:"heading_anchors" mapstructure:"heading_anchors"`
	Directives     bool `yaml:"directives" json:"directives" mapstructure:"directives"`
	AIContext      bool `yaml:"ai_context" json:"ai_context" mapstructure:"ai_context"`

	Scripts             bool   `yaml:"scripts" json:"scripts" mapstructure:"scripts"`
	ScriptSecurityLevel string `yaml:"script_security_level" json:"script_security_level" mapstructure:"script_security_level"`

	EnabledPlugins []string                  `yaml:"enabled_plugins" json:"enabled_plugins" mapstructure:"enabled_plugins"`
	Plugins        map[string]map[string]any `yaml:"plugins" json:"plugins" mapstructure:"plugins"`
}

// Default returns the settings used when no file exists. Scripts start
// disabled and the security level starts at strict.
func Default() Settings {
	return Settings{
		Gfm:                 true,
		Tables:              true,
		TaskLists:           true,
		Strikethrough:       true,
		Autolinks:           true,
		Footnotes:           true,
		HeadingAnchors:      true,
		Directives:          true,
		AIContext:           true,
		Scripts:             false,
		ScriptSecurityLevel: "strict",
		EnabledPlugins:      []string{"callouts", "mermaid", "math", "toc"},
		Plugins:             map[string]map[string]any{},
	}
}

// Validate checks the settings surface.
func (s Settings) Validate() error {
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.ScriptSecurityLevel,
			validation.Required,
			validation.In("strict", "standard", "permissive")),
		validation.Field(&s.EnabledPlugins,
			validation.Each(validation.Required)),
	); err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	seen := make(map[string]bool, len(s.EnabledPlugins))
	for _, id := range s.EnabledPlugins {
		if seen[id] {
			return fmt.Errorf("settings: plugin %q enabled twice", id)
		}
		seen[id] = true
	}
	return nil
}

// MarkdownOptions projects the settings onto parser options. Sub-features
// are effective only while the GFM master switch is on; their stored values
// are untouched either way.
func (s Settings) MarkdownOptions() markdown.Options {
	return markdown.Options{
		Tables:         s.Gfm && s.Tables,
		TaskLists:      s.Gfm && s.TaskLists,
		Strikethrough:  s.Gfm && s.Strikethrough,
		Autolinks:      s.Gfm && s.Autolinks,
		Footnotes:      s.Gfm && s.Footnotes,
		HeadingAnchors: s.HeadingAnchors,
		Directives:     s.Directives,
	}
}

// PluginSettings returns the stored overrides for one plugin, or nil.
func (s Settings) PluginSettings(id string) map[string]any {
	return s.Plugins[id]
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := s
	out.EnabledPlugins = append([]string(nil), s.EnabledPlugins...)
	if s.Plugins != nil {
		plugins := make(map[string]map[string]any, len(s.Plugins))
		for id, cfg := range s.Plugins {
			inner := make(map[string]any, len(cfg))
			for k, v := range cfg {
				inner[k] = v
			}
			plugins[id] = inner
		}
		out.Plugins = plugins
	}
	return out
}

// Merge applies a partial update (PATCH body, map keys matching the
// mapstructure tags) over a copy and validates the result. Absent keys keep
// their current values; plugin maps merge per key.
func (s Settings) Merge(partial map[string]any) (Settings, error) {
	merged := s.Clone()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result: &merged,
	})
	if err != nil {
		return Settings{}, fmt.Errorf("settings: build decoder: %w", err)
	}
	if err := dec.Decode(partial); err != nil {
		return Settings{}, fmt.Errorf("settings: merge: %w", err)
	}
	if err := merged.Validate(); err != nil {
		return Settings{}, err
	}
	return merged, nil
}

// Fingerprint returns a stable hash of the whole settings surface, used as
// part of the render cache key. JSON key ordering makes it deterministic
// regardless of map insertion order.
func (s Settings) Fingerprint() string {
	data, _ := json.Marshal(s)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Load reads settings from a YAML file with environment variable expansion.
// Keys absent from the file keep their defaults.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", path, err)
	}
	s := Default()
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &s); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// LoadOrDefault behaves like Load but returns the defaults when the file
// does not exist yet.
func LoadOrDefault(path string) (Settings, error) {
	s, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return s, err
}

// Save writes the settings atomically (temp file + rename) so a watcher
// never observes a half-written file.
func (s Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("settings: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("settings: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("settings: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("settings: replace %s: %w", path, err)
	}
	return nil
}
