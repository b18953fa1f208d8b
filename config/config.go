// Package config resolves the effective llm-translator settings from
// built-in defaults, an embedded server preset, the YAML config file and
// LLMTR_* environment variables. Command-line flags are applied on top by
// the caller.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the config.yaml structure. Unset fields keep the value from the
// layer below.
type File struct {
	// Preset selects the server preset (default "lmstudio").
	Preset string `yaml:"preset,omitempty"`
	// ServerURL is the inference server root, e.g. http://localhost:1234.
	ServerURL string `yaml:"server_url,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
	// Model is the model id; empty lets the server choose.
	Model       string   `yaml:"model,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize  int    `yaml:"chunk_size,omitempty"`
	SourceLang string `yaml:"source_lang,omitempty"`
	TargetLang string `yaml:"target_lang,omitempty"`
	Stream     *bool  `yaml:"stream,omitempty"`
	// Timeout is the inactivity timeout, as a Go duration ("120s", "5m").
	Timeout string `yaml:"timeout,omitempty"`
	Proxy   string `yaml:"proxy,omitempty"`
	// RequestDelay is a pause between chunk requests ("500ms").
	RequestDelay string `yaml:"request_delay,omitempty"`
	// InlinePrompt sends instructions and text as a single user message.
	InlinePrompt *bool `yaml:"inline_prompt,omitempty"`
	// PromptsFile overrides the prompts.json location.
	PromptsFile string `yaml:"prompts_file,omitempty"`
}

// Settings are the resolved values.
type Settings struct {
	Preset       string
	ServerURL    string
	APIKey       string
	Model        string
	Temperature  float64
	ChunkSize    int
	SourceLang   string
	TargetLang   string
	Stream       bool
	Timeout      time.Duration
	Proxy        string
	RequestDelay time.Duration
	InlinePrompt bool
	PromptsFile  string
}

// Defaults for a fresh install.
const (
	DefaultServerURL   = "http://localhost:1234"
	DefaultChunkSize   = 1500
	DefaultTemperature = 0.3
	DefaultSourceLang  = "auto"
	DefaultTargetLang  = "ko"
	DefaultTimeout     = 120 * time.Second
	MaxTemperature     = 2.0
)

// Defaults returns the built-in settings, before any preset is applied.
func Defaults() Settings {
	return Settings{
		Preset:      DefaultPreset,
		ServerURL:   DefaultServerURL,
		Temperature: DefaultTemperature,
		ChunkSize:   DefaultChunkSize,
		SourceLang:  DefaultSourceLang,
		TargetLang:  DefaultTargetLang,
		Stream:      true,
		Timeout:     DefaultTimeout,
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadFile reads and validates a config file. A missing file returns nil.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Validate checks field values without applying them.
func (f *File) Validate() error {
	if f.Preset != "" {
		if _, err := LoadPreset(f.Preset); err != nil {
			return err
		}
	}
	if f.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", f.ChunkSize)
	}
	if f.Temperature != nil {
		if err := checkTemperature(*f.Temperature); err != nil {
			return err
		}
	}
	if f.Timeout != "" {
		if _, err := time.ParseDuration(f.Timeout); err != nil {
			return fmt.Errorf("invalid timeout %q: %w", f.Timeout, err)
		}
	}
	if f.RequestDelay != "" {
		if _, err := time.ParseDuration(f.RequestDelay); err != nil {
			return fmt.Errorf("invalid request_delay %q: %w", f.RequestDelay, err)
		}
	}
	return nil
}

func checkTemperature(t float64) error {
	if math.IsNaN(t) || t < 0 || t > MaxTemperature {
		return fmt.Errorf("temperature must be between 0 and %g, got %g", MaxTemperature, t)
	}
	return nil
}

// Save writes f as YAML, creating the parent directory.
func (f *File) Save(path string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Starter returns a config file populated with the defaults, for
// "config init".
func Starter() *File {
	d := Defaults()
	temp := d.Temperature
	stream := d.Stream
	return &File{
		Preset:      d.Preset,
		ServerURL:   d.ServerURL,
		Temperature: &temp,
		ChunkSize:   d.ChunkSize,
		SourceLang:  d.SourceLang,
		TargetLang:  d.TargetLang,
		Stream:      &stream,
		Timeout:     d.Timeout.String(),
	}
}

// AsFile renders resolved settings in the config file schema, for
// "config show".
func (s Settings) AsFile() *File {
	temp := s.Temperature
	stream := s.Stream
	inline := s.InlinePrompt
	f := &File{
		Preset:       s.Preset,
		ServerURL:    s.ServerURL,
		APIKey:       s.APIKey,
		Model:        s.Model,
		Temperature:  &temp,
		ChunkSize:    s.ChunkSize,
		SourceLang:   s.SourceLang,
		TargetLang:   s.TargetLang,
		Stream:       &stream,
		Timeout:      s.Timeout.String(),
		Proxy:        s.Proxy,
		InlinePrompt: &inline,
		PromptsFile:  s.PromptsFile,
	}
	if s.RequestDelay > 0 {
		f.RequestDelay = s.RequestDelay.String()
	}
	return f
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

// Environment variables read by Resolve.
const (
	EnvPreset      = "LLMTR_PRESET"
	EnvServerURL   = "LLMTR_SERVER_URL"
	EnvAPIKey      = "LLMTR_API_KEY"
	EnvModel       = "LLMTR_MODEL"
	EnvChunkSize   = "LLMTR_CHUNK_SIZE"
	EnvTemperature = "LLMTR_TEMPERATURE"
	EnvTargetLang  = "LLMTR_TARGET_LANG"
)

// ResolveOptions tune Resolve.
type ResolveOptions struct {
	// Preset, when set, is applied after the file and environment, so that an
	// explicit --preset wins over stored server settings.
	Preset string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Resolve layers defaults < preset < file < environment. f may be nil.
func Resolve(f *File, opts ResolveOptions) (Settings, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if f == nil {
		f = &File{}
	}

	s := Defaults()

	presetName := DefaultPreset
	if f.Preset != "" {
		presetName = f.Preset
	}
	if v := getenv(EnvPreset); v != "" {
		presetName = v
	}
	if opts.Preset == "" {
		if err := s.applyPreset(presetName); err != nil {
			return s, err
		}
	}

	if err := f.Validate(); err != nil {
		return s, err
	}
	s.applyFile(f)

	if err := s.applyEnv(getenv); err != nil {
		return s, err
	}

	if opts.Preset != "" {
		if err := s.applyPreset(opts.Preset); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (s *Settings) applyPreset(name string) error {
	p, err := LoadPreset(name)
	if err != nil {
		return err
	}
	s.Preset = p.Name
	s.ServerURL = p.BaseURL
	if p.APIKey != "" {
		s.APIKey = p.APIKey
	}
	if p.Model != "" {
		s.Model = p.Model
	}
	s.Stream = p.Stream
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return fmt.Errorf("preset %s: invalid timeout %q: %w", p.Name, p.Timeout, err)
		}
		s.Timeout = d
	}
	return nil
}

func (s *Settings) applyFile(f *File) {
	if f.ServerURL != "" {
		s.ServerURL = f.ServerURL
	}
	if f.APIKey != "" {
		s.APIKey = f.APIKey
	}
	if f.Model != "" {
		s.Model = f.Model
	}
	if f.Temperature != nil {
		s.Temperature = *f.Temperature
	}
	if f.ChunkSize > 0 {
		s.ChunkSize = f.ChunkSize
	}
	if f.SourceLang != "" {
		s.SourceLang = f.SourceLang
	}
	if f.TargetLang != "" {
		s.TargetLang = f.TargetLang
	}
	if f.Stream != nil {
		s.Stream = *f.Stream
	}
	// Durations were checked by Validate.
	if f.Timeout != "" {
		s.Timeout, _ = time.ParseDuration(f.Timeout)
	}
	if f.Proxy != "" {
		s.Proxy = f.Proxy
	}
	if f.RequestDelay != "" {
		s.RequestDelay, _ = time.ParseDuration(f.RequestDelay)
	}
	if f.InlinePrompt != nil {
		s.InlinePrompt = *f.InlinePrompt
	}
	if f.PromptsFile != "" {
		s.PromptsFile = f.PromptsFile
	}
}

func (s *Settings) applyEnv(getenv func(string) string) error {
	if v := getenv(EnvServerURL); v != "" {
		s.ServerURL = v
	}
	if v := getenv(EnvAPIKey); v != "" {
		s.APIKey = v
	}
	if v := getenv(EnvModel); v != "" {
		s.Model = v
	}
	if v := getenv(EnvTargetLang); v != "" {
		s.TargetLang = v
	}
	if v := strings.TrimSpace(getenv(EnvChunkSize)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s: chunk size must be a positive integer, got %q", EnvChunkSize, v)
		}
		s.ChunkSize = n
	}
	if v := strings.TrimSpace(getenv(EnvTemperature)); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%s: invalid temperature %q", EnvTemperature, v)
		}
		if err := checkTemperature(t); err != nil {
			return fmt.Errorf("%s: %w", EnvTemperature, err)
		}
		s.Temperature = t
	}
	return nil
}
