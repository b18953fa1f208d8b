// llm-translator: translate text and files with a local OpenAI-compatible LLM server.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kirinonakar/llm-translator/chunk"
	"github.com/kirinonakar/llm-translator/clipboard"
	"github.com/kirinonakar/llm-translator/config"
	"github.com/kirinonakar/llm-translator/gui"
	"github.com/kirinonakar/llm-translator/i18n"
	"github.com/kirinonakar/llm-translator/langmeta"
	"github.com/kirinonakar/llm-translator/llm"
	"github.com/kirinonakar/llm-translator/settings"
	"github.com/kirinonakar/llm-translator/textfile"
	"github.com/kirinonakar/llm-translator/translate"
	"github.com/kirinonakar/llm-translator/webui"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ANSI colors
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[0;31m"
	colorGreen  = "\033[0;32m"
	colorYellow = "\033[1;33m"
	colorBlue   = "\033[0;34m"
)

func logInfo(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorBlue+"[INFO]"+colorReset+" "+format+"\n", args...)
}

func logSuccess(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorGreen+"[OK]"+colorReset+" "+format+"\n", args...)
}

func logWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorYellow+"[WARN]"+colorReset+" "+format+"\n", args...)
}

func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, colorRed+"[ERROR]"+colorReset+" "+format+"\n", args...)
}

// progressBar renders a colored bar of width cells followed by the percentage.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100

	color := colorGreen
	switch {
	case percent < 40:
		color = colorRed
	case percent < 80:
		color = colorYellow
	}
	return color + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + colorReset +
		fmt.Sprintf(" %3d%%", percent)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	configPath string
	uiLang     string
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "llm-translator",
		Short: "Translate text and files with a local LLM server",
		Long: `llm-translator translates text and files with a locally hosted,
OpenAI-compatible inference server (LM Studio, Ollama, llama.cpp, vLLM, ...).

Long inputs are split into chunks that fit the model's context window and
translated strictly in order; partial results are kept when a chunk fails
or the run is interrupted.

Commands:
  translate   Translate text, a file, stdin or the clipboard
  models      List the models offered by the server
  presets     List built-in server presets
  languages   List supported languages
  config      Show or create the configuration file
  auth        Manage stored API keys
  serve       Start the browser interface
  gui         Open the desktop window`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			i18n.Init(uiLang)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: $XDG_CONFIG_HOME/llm-translator/config.yaml)")
	root.PersistentFlags().StringVar(&uiLang, "ui-lang", "", "Interface language (default: from LANGUAGE/LC_ALL/LANG)")

	root.AddCommand(
		newTranslateCmd(),
		newModelsCmd(),
		newPresetsCmd(),
		newLanguagesCmd(),
		newConfigCmd(),
		newAuthCmd(),
		newServeCmd(),
		newGUICmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version (display version information)
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("llm-translator version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}

	return cmd
}

// ---------------------------------------------------------------------------
// Settings flags shared by translate, models, serve and gui
// ---------------------------------------------------------------------------

type settingsFlags struct {
	preset     string
	server     string
	apiKey     string
	model      string
	timeout    time.Duration
	proxy      string
	promptFile string

	// Translation parameters
	source       string
	target       string
	temperature  float64
	chunkSize    int
	stream       bool
	inlinePrompt bool
	requestDelay time.Duration
}

// register adds the server flags, and with translation also the
// per-run translation flags.
func (f *settingsFlags) register(fs *pflag.FlagSet, translation bool) {
	fs.StringVar(&f.preset, "preset", "", "Server preset: "+strings.Join(config.PresetNames(), ", "))
	fs.StringVar(&f.server, "server", "", "Server URL (default "+config.DefaultServerURL+")")
	fs.StringVar(&f.apiKey, "api-key", "", "API key (or LLMTR_API_KEY env var)")
	fs.StringVarP(&f.model, "model", "m", "", "Model id (default: the server's loaded model)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Inactivity timeout (default from preset)")
	fs.StringVar(&f.proxy, "proxy", "", "HTTP/HTTPS proxy URL")

	if !translation {
		return
	}
	fs.StringVarP(&f.source, "source", "s", "", "Source language code or name, or auto")
	fs.StringVarP(&f.target, "target", "t", "", "Target language code or name (default ko)")
	fs.Float64Var(&f.temperature, "temperature", config.DefaultTemperature, "Sampling temperature, 0 to 2")
	fs.IntVar(&f.chunkSize, "chunk-size", config.DefaultChunkSize, "Maximum chunk length in characters")
	fs.BoolVar(&f.stream, "stream", true, "Stream tokens as they are generated")
	fs.BoolVar(&f.inlinePrompt, "inline-prompt", false, "Send instructions inside the user message (for models without system prompts)")
	fs.DurationVar(&f.requestDelay, "request-delay", 0, "Pause between chunk requests")
	fs.StringVar(&f.promptFile, "prompt-file", "", "Prompts JSON file (default: prompts.json in the data directory)")
}

// resolve layers the flags the user set over the config file, environment
// and preset.
func (f *settingsFlags) resolve(fs *pflag.FlagSet) (config.Settings, error) {
	path := configPath
	if path == "" {
		p, err := settings.ConfigFilePath()
		if err != nil {
			return config.Settings{}, err
		}
		path = p
	}
	file, err := config.LoadFile(path)
	if err != nil {
		return config.Settings{}, err
	}

	st, err := config.Resolve(file, config.ResolveOptions{Preset: f.preset})
	if err != nil {
		return st, err
	}

	if fs.Changed("server") {
		st.ServerURL = f.server
	}
	if fs.Changed("api-key") {
		st.APIKey = f.apiKey
	}
	if fs.Changed("model") {
		st.Model = f.model
	}
	if fs.Changed("timeout") {
		st.Timeout = f.timeout
	}
	if fs.Changed("proxy") {
		st.Proxy = f.proxy
	}
	if fs.Changed("source") {
		st.SourceLang = f.source
	}
	if fs.Changed("target") {
		st.TargetLang = f.target
	}
	if fs.Changed("temperature") {
		st.Temperature = f.temperature
	}
	if fs.Changed("chunk-size") {
		st.ChunkSize = f.chunkSize
	}
	if fs.Changed("stream") {
		st.Stream = f.stream
	}
	if fs.Changed("inline-prompt") {
		st.InlinePrompt = f.inlinePrompt
	}
	if fs.Changed("request-delay") {
		st.RequestDelay = f.requestDelay
	}
	if fs.Changed("prompt-file") {
		st.PromptsFile = f.promptFile
	}

	// Fall back to the key stored with "auth set".
	if st.APIKey == "" || (fs.Changed("server") && !fs.Changed("api-key")) {
		if key := settings.GetAPIKey(st.ServerURL); key != "" {
			st.APIKey = key
		}
	}
	return st, nil
}

func newClient(st config.Settings) *llm.Client {
	return llm.New(llm.Config{
		BaseURL: st.ServerURL,
		APIKey:  st.APIKey,
		Model:   st.Model,
		Timeout: st.Timeout,
		Proxy:   st.Proxy,
	})
}

func loadPrompts(st config.Settings) (translate.Prompts, error) {
	if st.PromptsFile != "" {
		return translate.LoadPromptsFile(st.PromptsFile)
	}
	p, _, err := translate.LoadPromptsFromDefaultLocation()
	return p, err
}

func pipelineConfig(st config.Settings, prompts translate.Prompts) translate.Config {
	return translate.Config{
		SourceLang:   st.SourceLang,
		TargetLang:   st.TargetLang,
		Temperature:  st.Temperature,
		ChunkSize:    st.ChunkSize,
		Stream:       st.Stream,
		Prompts:      prompts,
		InlinePrompt: st.InlinePrompt,
		RequestDelay: st.RequestDelay,
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	settingsFlags

	file    string
	stdin   bool
	paste   bool
	copy    bool
	output  string
	raw     bool
	dryRun  bool
	verbose bool
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate [TEXT...]",
		Short: "Translate text, a file, stdin or the clipboard",
		Long: `Translate text with the configured LLM server.

Input comes from the arguments, --file, --stdin (or "-") or --paste. Text
translations are printed to stdout; a file translation is written next to
the source as translated_<name> unless --output is given.

Press Ctrl-C to stop: chunks finished so far are kept.

Examples:
  # Translate a sentence to Korean (the default target)
  llm-translator translate "The quick brown fox jumps over the lazy dog."

  # Translate a Markdown file from Japanese to English
  llm-translator translate --file notes.md --source ja --target en

  # Translate the clipboard and copy the result back
  llm-translator translate --paste --copy --target de

  # Show how a file would be chunked without calling the server
  llm-translator translate --file book.txt --chunk-size 2000 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args, &a)
		},
	}

	fs := cmd.Flags()
	a.register(fs, true)
	fs.StringVarP(&a.file, "file", "f", "", "Translate this text file")
	fs.BoolVar(&a.stdin, "stdin", false, "Read the text from standard input")
	fs.BoolVar(&a.paste, "paste", false, "Read the text from the clipboard")
	fs.BoolVar(&a.copy, "copy", false, "Copy the translation to the clipboard")
	fs.StringVarP(&a.output, "output", "o", "", "Write the translation to this file")
	fs.BoolVar(&a.raw, "raw", false, "Keep model replies as returned (no fence stripping or whitespace repair)")
	fs.BoolVar(&a.dryRun, "dry-run", false, "Print the chunk plan without calling the server")
	fs.BoolVarP(&a.verbose, "verbose", "v", false, "Enable detailed logging")

	cmd.MarkFlagsMutuallyExclusive("file", "stdin", "paste")

	_ = cmd.RegisterFlagCompletionFunc("preset", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return config.PresetNames(), cobra.ShellCompDirectiveNoFileComp
	})
	langCompletion := func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var out []string
		for _, code := range langmeta.Codes() {
			out = append(out, code+"\t"+langmeta.Resolve(code).English)
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
	_ = cmd.RegisterFlagCompletionFunc("source", langCompletion)
	_ = cmd.RegisterFlagCompletionFunc("target", langCompletion)

	return cmd
}

// readInput returns the text to translate.
func readInput(a *translateArgs, args []string, stdin io.Reader) (string, error) {
	switch {
	case a.file != "":
		if !textfile.IsSupported(a.file) {
			logWarning("%s does not look like a text file; translating anyway", a.file)
		}
		return textfile.Read(a.file)
	case a.paste:
		return clipboard.Read()
	case a.stdin || (len(args) == 1 && args[0] == "-"):
		text, err := textfile.ReadFrom(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return text, nil
	case len(args) > 0:
		return strings.Join(args, " "), nil
	default:
		return "", errors.New(i18n.T("no input: pass TEXT, --file, --stdin or --paste"))
	}
}

func runTranslate(cmd *cobra.Command, args []string, a *translateArgs) error {
	st, err := a.resolve(cmd.Flags())
	if err != nil {
		return err
	}
	input, err := readInput(a, args, os.Stdin)
	if err != nil {
		return err
	}

	prompts, err := loadPrompts(st)
	if err != nil {
		return err
	}
	cfg := pipelineConfig(st, prompts)
	cfg.KeepRaw = a.raw
	if a.verbose {
		cfg.OnLog = func(format string, args ...any) { logInfo(format, args...) }
	}

	client := newClient(st)
	p, err := translate.New(client, cfg)
	if err != nil {
		return err
	}

	if a.dryRun {
		return printPlan(os.Stdout, p, input)
	}

	outPath := a.output
	if outPath == "" && a.file != "" {
		outPath = textfile.OutputPath(a.file)
	}
	toStdout := outPath == ""

	if a.verbose {
		logInfo("Server: %s (model: %s)", st.ServerURL, orDefault(client.Model(), "server default"))
		logInfo("Language: %s -> %s", orDefault(p.SourceLang(), "auto"), langmeta.Label(p.TargetLang()))
	}

	if !toStdout {
		n, err := chunk.Count(input, st.ChunkSize)
		if err != nil {
			return err
		}
		logInfo("Translating %d characters in %d chunk(s) to %s", utf8.RuneCountInString(input), n, langmeta.Label(p.TargetLang()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := &streamPrinter{w: os.Stdout, live: st.Stream}
	obs := translate.Observer{
		OnProgress: func(e translate.ProgressEvent) {
			if toStdout {
				printer.chunkDone(e.Latest)
				return
			}
			logInfo("%s %d/%d", progressBar(e.Completed*100/e.Total, 30), e.Completed, e.Total)
		},
	}
	if toStdout && st.Stream {
		obs.OnFragment = func(f translate.Fragment) { printer.fragment(f.Delta) }
	}

	start := time.Now()
	res, err := p.Run(ctx, input, obs)

	var pf *translate.PartialFailure
	var text string
	switch {
	case err == nil:
		text = res.FullText
	case errors.As(err, &pf):
		text = pf.Partial
	default:
		return err
	}
	if toStdout {
		printer.finish()
	}

	if outPath != "" && (text != "" || pf == nil) {
		if err := textfile.Write(outPath, text); err != nil {
			return err
		}
		logSuccess(i18n.T("Wrote %s"), outPath)
	}
	if a.copy && text != "" {
		if err := clipboard.Write(text); err != nil {
			logWarning("Copy to clipboard failed: %v", err)
		} else {
			logSuccess("%s", i18n.T("Copied to clipboard"))
		}
	}

	if pf != nil {
		if errors.Is(err, context.Canceled) {
			logWarning(i18n.T("Interrupted: kept %d of %d chunks"), pf.Completed, pf.Total)
		} else if pf.Completed > 0 {
			logWarning(i18n.T("Stopped at chunk %d of %d: partial output kept"), pf.ChunkIndex+1, pf.Total)
		}
		return err
	}

	logSuccess(i18n.N("Translated %d chunk in %s", "Translated %d chunks in %s", len(res.Chunks)),
		len(res.Chunks), time.Since(start).Round(100*time.Millisecond))
	return nil
}

// streamPrinter writes a translation to stdout as it arrives. With live
// set, raw fragments are printed and each finished chunk only contributes
// the trailing whitespace that post-processing restored.
type streamPrinter struct {
	w        io.Writer
	live     bool
	chunkRaw strings.Builder
	last     string
}

func (p *streamPrinter) fragment(delta string) {
	p.chunkRaw.WriteString(delta)
	p.write(delta)
}

func (p *streamPrinter) chunkDone(text string) {
	raw := p.chunkRaw.String()
	p.chunkRaw.Reset()
	if !p.live || raw == "" {
		p.write(text)
		return
	}
	want := trailingSpace(text)
	if have := trailingSpace(raw); len(want) > len(have) {
		p.write(want[len(have):])
	}
}

func trailingSpace(s string) string {
	return s[len(strings.TrimRightFunc(s, unicode.IsSpace)):]
}

func (p *streamPrinter) write(s string) {
	if s == "" {
		return
	}
	io.WriteString(p.w, s)
	p.last = s
}

// finish ends the output with a newline.
func (p *streamPrinter) finish() {
	if p.last != "" && !strings.HasSuffix(p.last, "\n") {
		io.WriteString(p.w, "\n")
	}
}

// printPlan prints the chunk table for --dry-run.
func printPlan(w io.Writer, p *translate.Pipeline, text string) error {
	chunks, err := p.Plan(text)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%-6s %-7s %s\n", "CHUNK", "CHARS", "PREVIEW")
	for _, c := range chunks {
		fmt.Fprintf(w, "%-6d %-7d %s\n", c.Index+1, c.Len(), preview(c.Text, 60))
	}
	fmt.Fprintf(w, "\n%d chunk(s), %d characters, target %s\n",
		len(chunks), utf8.RuneCountInString(text), langmeta.Label(p.TargetLang()))
	return nil
}

// preview returns the first n runes of s on one line.
func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ---------------------------------------------------------------------------
// models / presets / languages
// ---------------------------------------------------------------------------

func newModelsCmd() *cobra.Command {
	var f settingsFlags

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := f.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			ids, err := newClient(st).Models(ctx)
			if err != nil {
				return err
			}
			logInfo("Server: %s", st.ServerURL)
			if len(ids) == 0 {
				logWarning("The server reports no models; load one first")
				return nil
			}
			for _, id := range ids {
				marker := " "
				if id == st.Model {
					marker = "*"
				}
				fmt.Printf("%s %s\n", marker, id)
			}
			return nil
		},
	}
	f.register(cmd.Flags(), false)
	return cmd
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List built-in server presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := config.Presets()
			if err != nil {
				return err
			}
			for _, p := range presets {
				name := p.Name
				if name == config.DefaultPreset {
					name += " *"
				}
				fmt.Printf("%s%-12s%s %-24s %s\n", colorGreen, name, colorReset, p.Title, p.BaseURL)
				if p.Notes != "" {
					fmt.Printf("  %s\n", strings.TrimSpace(p.Notes))
				}
			}
			return nil
		},
	}
}

func newLanguagesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "languages",
		Aliases: []string{"langs"},
		Short:   "List supported languages",
		Run: func(cmd *cobra.Command, args []string) {
			base := make(map[string]bool)
			for _, c := range langmeta.Base {
				base[c] = true
			}
			for _, code := range langmeta.Codes() {
				marker := " "
				if base[code] {
					marker = "*"
				}
				fmt.Printf("%s %-6s %s\n", marker, code, langmeta.Label(code))
			}
		},
	}
}

// ---------------------------------------------------------------------------
// config
// ---------------------------------------------------------------------------

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	var f settingsFlags
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := f.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			if st.APIKey != "" {
				st.APIKey = settings.MaskKey(st.APIKey)
			}
			data, err := yaml.Marshal(st.AsFile())
			if err != nil {
				return fmt.Errorf("marshaling settings: %w", err)
			}
			fmt.Print(string(data))
			return nil
		},
	}
	f.register(show.Flags(), true)

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := resolvedConfigPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Starter().Save(path); err != nil {
				return err
			}
			logSuccess("Wrote %s", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	var data bool
	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			resolve := resolvedConfigPath
			if data {
				resolve = settings.DataDir
			}
			p, err := resolve()
			if err != nil {
				return err
			}
			fmt.Println(p)
			return nil
		},
	}

	path.Flags().BoolVar(&data, "data", false, "Print the data directory (API keys, prompts.json) instead")

	cmd.AddCommand(show, initCmd, path)
	return cmd
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return settings.ConfigFilePath()
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored API keys",
		Long: `Manage API keys stored per server URL.

Local servers usually accept any key; store one for servers behind an
authenticating proxy. Keys are kept in auth.json (mode 0600) in the data
directory. LLMTR_API_KEY and --api-key take precedence.

Examples:
  llm-translator auth set http://gpu-box:8000          Prompt for the key
  llm-translator auth set http://gpu-box:8000 sk-...   Store a key
  llm-translator auth remove http://gpu-box:8000       Remove one key
  llm-translator auth remove --all                     Remove all keys
  llm-translator auth list                             Show stored keys`,
	}

	cmd.AddCommand(
		newAuthSetCmd(),
		newAuthRemoveCmd(),
		newAuthListCmd(),
	)

	return cmd
}

func newAuthSetCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "set SERVER [KEY]",
		Short: "Store an API key for a server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			server := args[0]
			key := ""
			if len(args) == 2 {
				key = strings.TrimSpace(args[1])
			} else {
				existing := settings.GetAPIKey(server)
				if existing != "" {
					fmt.Fprintf(os.Stderr, "  Current key: %s%s%s\n", colorYellow, settings.MaskKey(existing), colorReset)
					fmt.Fprintf(os.Stderr, "  Enter new key to replace, or press Enter to keep: ")
				} else {
					fmt.Fprintf(os.Stderr, "  Enter API key: ")
				}

				scanner := bufio.NewScanner(os.Stdin)
				if !scanner.Scan() {
					return errors.New("no input received")
				}
				key = strings.TrimSpace(scanner.Text())
				if key == "" && existing != "" {
					logInfo("Keeping existing key")
					return nil
				}
			}
			if key == "" {
				return errors.New("no API key provided")
			}

			if err := settings.SetAPIKey(server, key, note); err != nil {
				return fmt.Errorf("saving API key: %w", err)
			}
			logSuccess("API key saved for %s", settings.ServerKey(server))
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Free-form note shown by 'auth list'")
	return cmd
}

func newAuthRemoveCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:     "remove [SERVER]",
		Aliases: []string{"rm"},
		Short:   "Remove stored API keys",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case all:
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("All stored API keys removed")
			case len(args) == 1:
				if err := settings.Remove(args[0]); err != nil {
					return err
				}
				logSuccess("API key for %s removed", settings.ServerKey(args[0]))
			default:
				return errors.New("pass a SERVER or --all")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Remove every stored key")
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored API keys",
		Run: func(cmd *cobra.Command, args []string) {
			store := settings.Load()

			fmt.Fprintf(os.Stderr, "\n%sStored API Keys%s\n", colorBlue, colorReset)
			fmt.Fprintln(os.Stderr, strings.Repeat("─", 60))
			if len(store) == 0 {
				fmt.Fprintf(os.Stderr, "  %snone%s\n", colorRed, colorReset)
			}
			for _, server := range store.Servers() {
				entry := store[server]
				line := fmt.Sprintf("  %-32s %s%s%s", server, colorGreen, settings.MaskKey(entry.Key), colorReset)
				if entry.Note != "" {
					line += "  " + entry.Note
				}
				fmt.Fprintln(os.Stderr, line)
			}

			fmt.Fprintf(os.Stderr, "\n  %sEnvironment Variables%s\n", colorYellow, colorReset)
			if envKey := os.Getenv(config.EnvAPIKey); envKey != "" {
				fmt.Fprintf(os.Stderr, "  %s: %s%s%s (overrides stored keys)\n", config.EnvAPIKey, colorGreen, settings.MaskKey(envKey), colorReset)
			} else {
				fmt.Fprintf(os.Stderr, "  %s: %snot set%s\n", config.EnvAPIKey, colorRed, colorReset)
			}
			fmt.Fprintf(os.Stderr, "\n  File: %s\n\n", settings.FilePath())
		},
	}
}

// ---------------------------------------------------------------------------
// serve / gui
// ---------------------------------------------------------------------------

func newServeCmd() *cobra.Command {
	var (
		f       settingsFlags
		addr    string
		open    bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browser interface",
		Long: `Serve the browser interface and its JSON/SSE API on a local address.

Examples:
  llm-translator serve
  llm-translator serve --addr 127.0.0.1:8080 --open`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := f.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			prompts, err := loadPrompts(st)
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listening on %s: %w", addr, err)
			}
			if open {
				if err := openBrowser("http://" + ln.Addr().String()); err != nil {
					logWarning("Could not open a browser: %v", err)
				}
			}

			srv := webui.New(webui.Options{Settings: st, Prompts: prompts, Logger: logger})
			return srv.Serve(ctx, ln)
		},
	}

	f.register(cmd.Flags(), true)
	cmd.Flags().StringVar(&addr, "addr", webui.DefaultAddr, "Listen address")
	cmd.Flags().BoolVar(&open, "open", false, "Open the page in the default browser")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline details")
	return cmd
}

func newGUICmd() *cobra.Command {
	var (
		f       settingsFlags
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "gui",
		Short: "Open the desktop window",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := f.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			prompts, err := loadPrompts(st)
			if err != nil {
				return err
			}
			opts := gui.Options{Settings: st, Prompts: prompts}
			if verbose {
				opts.OnLog = func(format string, args ...any) { logInfo(format, args...) }
			}
			gui.Run(opts)
			return nil
		},
	}

	f.register(cmd.Flags(), true)
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline details")
	return cmd
}

// openBrowser opens url with the platform's default handler.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
