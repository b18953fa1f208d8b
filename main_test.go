package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/kirinonakar/llm-translator/config"
	"github.com/kirinonakar/llm-translator/settings"
	"github.com/kirinonakar/llm-translator/translate"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		width   int
		want    string
	}{
		{
			name:    "clamps below zero",
			percent: -10,
			width:   4,
			want:    colorRed + "░░░░" + colorReset + "   0%",
		},
		{
			name:    "mid range uses yellow",
			percent: 50,
			width:   4,
			want:    colorYellow + "██░░" + colorReset + "  50%",
		},
		{
			name:    "clamps above hundred",
			percent: 120,
			width:   4,
			want:    colorGreen + "████" + colorReset + " 100%",
		},
	}

	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

// isolate points every config and data lookup at a temp dir.
func isolate(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("XDG_DATA_HOME", dir)
	for _, env := range []string{
		config.EnvPreset, config.EnvServerURL, config.EnvAPIKey, config.EnvModel,
		config.EnvChunkSize, config.EnvTemperature, config.EnvTargetLang,
	} {
		t.Setenv(env, "")
	}
	configPath = ""
}

func parseFlags(t *testing.T, translation bool, args ...string) (*settingsFlags, *cobra.Command) {
	t.Helper()
	var f settingsFlags
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd.Flags(), translation)
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse(%v) error: %v", args, err)
	}
	return &f, cmd
}

func TestResolveDefaults(t *testing.T) {
	isolate(t)
	f, cmd := parseFlags(t, true)

	st, err := f.resolve(cmd.Flags())
	if err != nil {
		t.Fatalf("resolve() error: %v", err)
	}
	want, err := config.Resolve(nil, config.ResolveOptions{Getenv: func(string) string { return "" }})
	if err != nil {
		t.Fatalf("config.Resolve() error: %v", err)
	}
	if st != want {
		t.Fatalf("resolve() = %+v, want %+v", st, want)
	}
}

func TestResolveOnlyChangedFlagsOverride(t *testing.T) {
	isolate(t)
	t.Setenv(config.EnvTargetLang, "ja")
	f, cmd := parseFlags(t, true,
		"--server", "http://gpu:8000",
		"--chunk-size", "800",
		"--temperature", "0.7",
		"--stream=false",
		"--request-delay", "1s",
		"-s", "en",
	)

	st, err := f.resolve(cmd.Flags())
	if err != nil {
		t.Fatalf("resolve() error: %v", err)
	}
	if st.ServerURL != "http://gpu:8000" || st.ChunkSize != 800 || st.Temperature != 0.7 {
		t.Fatalf("resolve() = %+v, want flag values", st)
	}
	if st.Stream || st.RequestDelay != time.Second || st.SourceLang != "en" {
		t.Fatalf("resolve() = %+v, want stream off, 1s delay, source en", st)
	}
	// Not passed on the command line, so the environment wins.
	if st.TargetLang != "ja" {
		t.Fatalf("TargetLang = %q, want ja", st.TargetLang)
	}
}

func TestResolveStoredKey(t *testing.T) {
	isolate(t)
	if err := settings.SetAPIKey("http://gpu:8000", "sk-stored", ""); err != nil {
		t.Fatalf("SetAPIKey() error: %v", err)
	}

	f, cmd := parseFlags(t, false, "--server", "http://gpu:8000")
	st, err := f.resolve(cmd.Flags())
	if err != nil {
		t.Fatalf("resolve() error: %v", err)
	}
	if st.APIKey != "sk-stored" {
		t.Fatalf("APIKey = %q, want stored key", st.APIKey)
	}

	f, cmd = parseFlags(t, false, "--server", "http://gpu:8000", "--api-key", "sk-flag")
	st, err = f.resolve(cmd.Flags())
	if err != nil {
		t.Fatalf("resolve() error: %v", err)
	}
	if st.APIKey != "sk-flag" {
		t.Fatalf("APIKey = %q, want flag key", st.APIKey)
	}
}

func TestResolveConfigFile(t *testing.T) {
	isolate(t)
	path := t.TempDir() + "/config.yaml"
	file := config.Starter()
	file.TargetLang = "de"
	file.Model = "qwen3-8b"
	if err := file.Save(path); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	configPath = path
	t.Cleanup(func() { configPath = "" })

	f, cmd := parseFlags(t, true, "--model", "gemma-3")
	st, err := f.resolve(cmd.Flags())
	if err != nil {
		t.Fatalf("resolve() error: %v", err)
	}
	if st.TargetLang != "de" {
		t.Fatalf("TargetLang = %q, want de from file", st.TargetLang)
	}
	if st.Model != "gemma-3" {
		t.Fatalf("Model = %q, want gemma-3 from flag", st.Model)
	}
}

func TestReadInput(t *testing.T) {
	tests := []struct {
		name    string
		args    translateArgs
		argv    []string
		stdin   string
		want    string
		wantErr bool
	}{
		{name: "arguments joined", argv: []string{"hello", "world"}, want: "hello world"},
		{name: "dash reads stdin", argv: []string{"-"}, stdin: "\ufeffpiped\n", want: "piped\n"},
		{name: "stdin flag", args: translateArgs{stdin: true}, stdin: "text", want: "text"},
		{name: "no input", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readInput(&tc.args, tc.argv, strings.NewReader(tc.stdin))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("readInput() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("readInput() error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("readInput() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestStreamPrinter(t *testing.T) {
	t.Run("buffered prints finished chunks", func(t *testing.T) {
		var buf bytes.Buffer
		p := &streamPrinter{w: &buf}
		p.chunkDone("Hallo. ")
		p.chunkDone("Welt.")
		p.finish()
		if got := buf.String(); got != "Hallo. Welt.\n" {
			t.Fatalf("output = %q", got)
		}
	})

	t.Run("live restores trailing whitespace", func(t *testing.T) {
		var buf bytes.Buffer
		p := &streamPrinter{w: &buf, live: true}
		p.fragment("Hal")
		p.fragment("lo.")
		p.chunkDone("Hallo.\n\n")
		p.fragment("Welt.\n")
		p.chunkDone("Welt.\n")
		p.finish()
		if got := buf.String(); got != "Hallo.\n\nWelt.\n" {
			t.Fatalf("output = %q", got)
		}
	})

	t.Run("live chunk without fragments", func(t *testing.T) {
		var buf bytes.Buffer
		p := &streamPrinter{w: &buf, live: true}
		p.chunkDone("\n\n")
		p.fragment("Ende")
		p.chunkDone("Ende")
		p.finish()
		if got := buf.String(); got != "\n\nEnde\n" {
			t.Fatalf("output = %q", got)
		}
	})
}

type nopTranslator struct{ translate.Translator }

func TestPrintPlan(t *testing.T) {
	p, err := translate.New(nopTranslator{}, translate.Config{TargetLang: "ko", ChunkSize: 6})
	if err != nil {
		t.Fatalf("translate.New() error: %v", err)
	}

	var buf bytes.Buffer
	if err := printPlan(&buf, p, "aaaa. bbbb. cccc."); err != nil {
		t.Fatalf("printPlan() error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "3 chunk(s), 17 characters") {
		t.Fatalf("printPlan() = %q, want summary line", out)
	}
	if lines := strings.Count(out, "\n"); lines != 6 {
		t.Fatalf("printPlan() printed %d lines, want 6:\n%s", lines, out)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("one\ntwo   three", 20); got != "one two three" {
		t.Fatalf("preview() = %q", got)
	}
	if got := preview("abcdefgh", 5); got != "abcd…" {
		t.Fatalf("preview() = %q, want abcd…", got)
	}
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"translate", "models", "presets", "languages", "config", "auth", "serve", "gui", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("Find(%s) = %v, %v", name, cmd, err)
		}
	}
}
