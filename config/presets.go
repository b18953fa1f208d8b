package config

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultPreset is the server preset used when none is configured.
const DefaultPreset = "lmstudio"

// Preset describes the defaults for one kind of local inference server.
type Preset struct {
	Name    string `toml:"name"`
	Title   string `toml:"title"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
	Stream  bool   `toml:"stream"`
	Timeout string `toml:"timeout"`
	Notes   string `toml:"notes"`
}

//go:embed presets/*.toml
var presetConfigs embed.FS

// LoadPreset returns the embedded preset with the given name.
func LoadPreset(name string) (*Preset, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	data, err := presetConfigs.ReadFile("presets/" + name + ".toml")
	if err != nil {
		return nil, fmt.Errorf("unknown preset %q (available: %s)", name, strings.Join(PresetNames(), ", "))
	}

	var p Preset
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing preset %s: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

// PresetNames lists the embedded presets, default first.
func PresetNames() []string {
	entries, err := presetConfigs.ReadDir("presets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		n := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		if n != DefaultPreset {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return append([]string{DefaultPreset}, names...)
}

// Presets loads every embedded preset, default first.
func Presets() ([]*Preset, error) {
	var out []*Preset
	for _, n := range PresetNames() {
		p, err := LoadPreset(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
