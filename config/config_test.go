package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

// ---------------------------------------------------------------------------
// Presets
// ---------------------------------------------------------------------------

func TestPresetNames(t *testing.T) {
	names := PresetNames()
	if len(names) != 6 {
		t.Fatalf("PresetNames() = %v, want 6 presets", names)
	}
	if names[0] != DefaultPreset {
		t.Fatalf("first preset = %q, want %q", names[0], DefaultPreset)
	}
	for _, want := range []string{"ollama", "llamacpp", "vllm", "jan", "localai"} {
		found := false
		for _, n := range names {
			if n == want {
				found = true
			}
		}
		if !found {
			t.Errorf("preset %q missing from %v", want, names)
		}
	}
}

func TestPresetsParse(t *testing.T) {
	presets, err := Presets()
	if err != nil {
		t.Fatalf("Presets() error: %v", err)
	}
	for _, p := range presets {
		if p.Title == "" || !strings.HasPrefix(p.BaseURL, "http://localhost:") {
			t.Errorf("preset %s incomplete: %+v", p.Name, p)
		}
		if _, err := time.ParseDuration(p.Timeout); err != nil {
			t.Errorf("preset %s timeout: %v", p.Name, err)
		}
	}
}

func TestLoadPreset(t *testing.T) {
	p, err := LoadPreset("LMStudio")
	if err != nil {
		t.Fatalf("LoadPreset error: %v", err)
	}
	if p.BaseURL != "http://localhost:1234" || p.APIKey != "lm-studio" {
		t.Fatalf("lmstudio preset = %+v", p)
	}

	if _, err := LoadPreset("nope"); err == nil || !strings.Contains(err.Error(), "lmstudio") {
		t.Fatalf("unknown preset error = %v", err)
	}
}

// ---------------------------------------------------------------------------
// Loading and validation
// ---------------------------------------------------------------------------

func TestLoadFile_Missing(t *testing.T) {
	f, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil || f != nil {
		t.Fatalf("LoadFile(missing) = %v, %v; want nil, nil", f, err)
	}
}

func TestLoadFile_Valid(t *testing.T) {
	path := writeConfig(t, `
preset: ollama
model: gemma3:12b
temperature: 0.7
chunk_size: 800
target_lang: ja
stream: false
timeout: 5m
request_delay: 250ms
inline_prompt: true
`)
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if f.Preset != "ollama" || f.Model != "gemma3:12b" || *f.Temperature != 0.7 || f.ChunkSize != 800 {
		t.Fatalf("parsed = %+v", f)
	}
	if f.Stream == nil || *f.Stream {
		t.Fatal("stream: false not parsed")
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "bad yaml", content: "chunk_size: [", wantErr: "parsing"},
		{name: "unknown preset", content: "preset: koboldcpp", wantErr: "unknown preset"},
		{name: "negative chunk", content: "chunk_size: -1", wantErr: "chunk_size"},
		{name: "hot temperature", content: "temperature: 2.5", wantErr: "temperature"},
		{name: "bad timeout", content: "timeout: forever", wantErr: "timeout"},
		{name: "bad delay", content: "request_delay: soon", wantErr: "request_delay"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tc.content))
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestSaveStarterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Starter().Save(path); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	s, err := Resolve(f, ResolveOptions{Getenv: envMap(nil)})
	if err != nil {
		t.Fatal(err)
	}
	d, _ := Resolve(nil, ResolveOptions{Getenv: envMap(nil)})
	if s != d {
		t.Fatalf("starter config resolves to %+v, want %+v", s, d)
	}
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

func TestResolve_Defaults(t *testing.T) {
	s, err := Resolve(nil, ResolveOptions{Getenv: envMap(nil)})
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if s.ServerURL != "http://localhost:1234" || s.ChunkSize != 1500 || s.Temperature != 0.3 {
		t.Fatalf("defaults = %+v", s)
	}
	if s.SourceLang != "auto" || s.TargetLang != "ko" || !s.Stream || s.Timeout != 120*time.Second {
		t.Fatalf("defaults = %+v", s)
	}
	if s.APIKey != "lm-studio" || s.Preset != "lmstudio" {
		t.Fatalf("lmstudio preset not applied: %+v", s)
	}
}

func TestResolve_Precedence(t *testing.T) {
	temp := 0.9
	f := &File{
		Preset:      "ollama",
		ServerURL:   "http://gpu-box:11434",
		Model:       "file-model",
		Temperature: &temp,
		ChunkSize:   900,
	}

	t.Run("file over preset", func(t *testing.T) {
		s, err := Resolve(f, ResolveOptions{Getenv: envMap(nil)})
		if err != nil {
			t.Fatal(err)
		}
		if s.ServerURL != "http://gpu-box:11434" || s.Model != "file-model" || s.ChunkSize != 900 || s.Temperature != 0.9 {
			t.Fatalf("settings = %+v", s)
		}
		if s.APIKey != "ollama" || s.Timeout != 300*time.Second {
			t.Fatalf("preset values lost: %+v", s)
		}
	})

	t.Run("env over file", func(t *testing.T) {
		s, err := Resolve(f, ResolveOptions{Getenv: envMap(map[string]string{
			EnvServerURL:   "http://env:1",
			EnvModel:       "env-model",
			EnvChunkSize:   "400",
			EnvTemperature: "0",
			EnvTargetLang:  "de",
			EnvAPIKey:      "env-key",
		})})
		if err != nil {
			t.Fatal(err)
		}
		if s.ServerURL != "http://env:1" || s.Model != "env-model" || s.ChunkSize != 400 || s.Temperature != 0 || s.TargetLang != "de" || s.APIKey != "env-key" {
			t.Fatalf("settings = %+v", s)
		}
	})

	t.Run("explicit preset over file", func(t *testing.T) {
		s, err := Resolve(f, ResolveOptions{Preset: "vllm", Getenv: envMap(nil)})
		if err != nil {
			t.Fatal(err)
		}
		if s.ServerURL != "http://localhost:8000" || s.Preset != "vllm" {
			t.Fatalf("settings = %+v", s)
		}
		if s.Model != "file-model" {
			t.Fatalf("model should survive an explicit preset without one: %q", s.Model)
		}
	})
}

func TestResolve_BadEnv(t *testing.T) {
	cases := map[string]string{
		EnvChunkSize:   "zero",
		EnvTemperature: "3",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			_, err := Resolve(nil, ResolveOptions{Getenv: envMap(map[string]string{k: v})})
			if err == nil || !strings.Contains(err.Error(), k) {
				t.Fatalf("err = %v, want mention of %s", err, k)
			}
		})
	}
}

func TestResolve_UnknownPreset(t *testing.T) {
	if _, err := Resolve(nil, ResolveOptions{Preset: "nope", Getenv: envMap(nil)}); err == nil {
		t.Fatal("expected error for unknown explicit preset")
	}
	if _, err := Resolve(nil, ResolveOptions{Getenv: envMap(map[string]string{EnvPreset: "nope"})}); err == nil {
		t.Fatal("expected error for unknown preset in environment")
	}
}

func TestSettingsAsFileRoundTrip(t *testing.T) {
	env := envMap(map[string]string{EnvModel: "qwen2.5", EnvChunkSize: "700"})
	s, err := Resolve(nil, ResolveOptions{Getenv: env})
	if err != nil {
		t.Fatal(err)
	}
	s.RequestDelay = 250 * time.Millisecond

	again, err := Resolve(s.AsFile(), ResolveOptions{Getenv: envMap(nil)})
	if err != nil {
		t.Fatal(err)
	}
	if again != s {
		t.Errorf("round trip changed settings:\n got %+v\nwant %+v", again, s)
	}
}
