package gui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/kirinonakar/llm-translator/config"
	"github.com/kirinonakar/llm-translator/langmeta"
	"github.com/kirinonakar/llm-translator/settings"
	"github.com/kirinonakar/llm-translator/translate"
)

// runner allows one translation at a time and cancels it on request.
type runner struct {
	mu     sync.Mutex
	cancel context.CancelFunc
}

// start claims the slot. It returns false if a run is in progress.
func (r *runner) start(parent context.Context) (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	return ctx, true
}

// stop cancels the current run, if any.
func (r *runner) stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

func (r *runner) done() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *runner) running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

// ---------------------------------------------------------------------------
// Language choices
// ---------------------------------------------------------------------------

// languageChoices maps select labels to codes in both directions.
type languageChoices struct {
	labels []string
	codes  map[string]string
	byCode map[string]string
}

func newLanguageChoices(withAuto bool, autoLabel string) languageChoices {
	c := languageChoices{codes: make(map[string]string), byCode: make(map[string]string)}
	if withAuto {
		c.add(autoLabel, langmeta.Auto)
	}
	for _, code := range langmeta.Codes() {
		c.add(langmeta.Label(code), code)
	}
	return c
}

func (c *languageChoices) add(label, code string) {
	c.labels = append(c.labels, label)
	c.codes[label] = code
	c.byCode[code] = label
}

// label returns the select label for a code or name, falling back to the
// first entry.
func (c languageChoices) label(lang string) string {
	if langmeta.IsAuto(lang) {
		if l, ok := c.byCode[langmeta.Auto]; ok {
			return l
		}
	}
	if code, _, ok := langmeta.Lookup(lang); ok {
		if l, ok := c.byCode[code]; ok {
			return l
		}
	}
	return c.labels[0]
}

func (c languageChoices) code(label string) string {
	return c.codes[label]
}

// ---------------------------------------------------------------------------
// Settings form
// ---------------------------------------------------------------------------

// formValues is what the settings column holds.
type formValues struct {
	ServerURL   string
	Model       string
	Temperature float64
	SourceLang  string
	TargetLang  string
	ChunkSize   string
	Stream      bool
}

// apply overlays the form on base. A changed server URL picks up the key
// stored for it.
func (v formValues) apply(base config.Settings) (config.Settings, error) {
	st := base
	server := strings.TrimSpace(v.ServerURL)
	if server == "" {
		server = config.DefaultServerURL
	}
	if server != base.ServerURL {
		st.ServerURL = server
		st.APIKey = settings.GetAPIKey(server)
	}
	st.Model = strings.TrimSpace(v.Model)
	st.Temperature = v.Temperature
	st.SourceLang = v.SourceLang
	st.TargetLang = v.TargetLang
	st.Stream = v.Stream

	n, err := strconv.Atoi(strings.TrimSpace(v.ChunkSize))
	if err != nil || n <= 0 {
		return st, fmt.Errorf("%w: chunk size must be a positive number, got %q",
			translate.ErrInvalidConfiguration, v.ChunkSize)
	}
	st.ChunkSize = n
	return st, nil
}

func pipelineConfig(st config.Settings, prompts translate.Prompts, onLog func(string, ...any)) translate.Config {
	return translate.Config{
		SourceLang:   st.SourceLang,
		TargetLang:   st.TargetLang,
		Temperature:  st.Temperature,
		ChunkSize:    st.ChunkSize,
		Stream:       st.Stream,
		Prompts:      prompts,
		InlinePrompt: st.InlinePrompt,
		RequestDelay: st.RequestDelay,
		OnLog:        onLog,
	}
}
