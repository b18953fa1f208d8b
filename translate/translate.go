// Package translate runs the sequential translation pipeline: split the
// input into chunks, translate each chunk in order through an
// OpenAI-compatible server, and report states, progress and streamed
// fragments to an observer while assembling the result.
package translate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kirinonakar/llm-translator/chunk"
	"github.com/kirinonakar/llm-translator/langmeta"
	"github.com/kirinonakar/llm-translator/llm"
)

// ErrInvalidConfiguration is returned by New for unusable parameters. It is
// the same sentinel chunk.Split uses.
var ErrInvalidConfiguration = chunk.ErrInvalidConfiguration

// Translator sends one prompt to a model. *llm.Client implements it.
type Translator interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	Stream(ctx context.Context, req llm.Request) iter.Seq2[string, error]
}

// MaxTemperature is the upper bound accepted for Config.Temperature.
const MaxTemperature = 2.0

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds the per-run translation parameters.
type Config struct {
	// SourceLang is a language code or name, or "auto" (also the default).
	SourceLang string
	// TargetLang is a language code or name.
	TargetLang string
	// Temperature is passed to the server, in [0, 2].
	Temperature float64
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize int
	// Stream requests token streaming and reports fragments.
	Stream bool
	// Prompts overrides the instruction templates; empty fields use defaults.
	Prompts Prompts
	// InlinePrompt sends instructions and text as one user message instead
	// of a system message plus a user message.
	InlinePrompt bool
	// RequestDelay is a pause between chunk requests.
	RequestDelay time.Duration
	// KeepRaw disables reply post-processing.
	KeepRaw bool
	// OnLog receives diagnostic messages.
	OnLog func(format string, args ...any)
}

func (c *Config) log(format string, args ...any) {
	if c.OnLog != nil {
		c.OnLog(format, args...)
	}
}

// ---------------------------------------------------------------------------
// States and events
// ---------------------------------------------------------------------------

// State is the pipeline lifecycle state.
type State int

const (
	Idle State = iota
	Splitting
	Translating
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Splitting:
		return "splitting"
	case Translating:
		return "translating"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a state plus chunk counters. Completed and Total are meaningful
// from Translating on.
type Status struct {
	State     State
	Completed int
	Total     int
}

func (s Status) String() string {
	switch s.State {
	case Translating, Completed, Failed:
		return fmt.Sprintf("%s(%d/%d)", s.State, s.Completed, s.Total)
	default:
		return s.State.String()
	}
}

// ProgressEvent is emitted after each chunk is translated.
type ProgressEvent struct {
	Completed int
	Total     int
	// Latest is the translation of the chunk just finished.
	Latest string
}

// Fragment is one streamed piece of a chunk's translation.
type Fragment struct {
	ChunkIndex int
	Delta      string
	// Partial is the finished chunks plus the current chunk so far.
	Partial string
}

// Observer receives pipeline notifications. All callbacks are optional and
// run synchronously on the goroutine that called Run.
type Observer struct {
	OnState    func(Status)
	OnProgress func(ProgressEvent)
	OnFragment func(Fragment)
}

// ChunkResult is the translation of one chunk.
type ChunkResult struct {
	Index  int
	Source string
	Text   string
}

// Result is the outcome of a run. On failure it holds the completed prefix.
type Result struct {
	Chunks   []ChunkResult
	FullText string
}

// PartialFailure reports a run halted at chunk ChunkIndex. Partial is the
// concatenated translation of the chunks before it.
type PartialFailure struct {
	ChunkIndex int
	Completed  int
	Total      int
	Partial    string
	Chunks     []ChunkResult
	Err        error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("translating chunk %d/%d (%d completed): %v", e.ChunkIndex+1, e.Total, e.Completed, e.Err)
}

func (e *PartialFailure) Unwrap() error {
	return e.Err
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

// Pipeline translates texts chunk by chunk. A Pipeline may be reused for
// several runs; runs on the same Pipeline must not overlap.
type Pipeline struct {
	t       Translator
	cfg     Config
	source  string // registry code or "" for auto
	target  string
	prompts Prompts

	mu     sync.Mutex
	status Status
}

// New validates cfg and returns a pipeline. It fails with
// ErrInvalidConfiguration before any request is made.
func New(t Translator, cfg Config) (*Pipeline, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: no translator", ErrInvalidConfiguration)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, cfg.ChunkSize)
	}
	if math.IsNaN(cfg.Temperature) || cfg.Temperature < 0 || cfg.Temperature > MaxTemperature {
		return nil, fmt.Errorf("%w: temperature must be between 0 and %g, got %g", ErrInvalidConfiguration, MaxTemperature, cfg.Temperature)
	}

	if langmeta.IsAuto(cfg.TargetLang) {
		return nil, fmt.Errorf("%w: target language is required", ErrInvalidConfiguration)
	}
	target, _, ok := langmeta.Lookup(cfg.TargetLang)
	if !ok {
		return nil, fmt.Errorf("%w: unknown target language %q", ErrInvalidConfiguration, cfg.TargetLang)
	}

	var source string
	if !langmeta.IsAuto(cfg.SourceLang) {
		source, _, ok = langmeta.Lookup(cfg.SourceLang)
		if !ok {
			return nil, fmt.Errorf("%w: unknown source language %q", ErrInvalidConfiguration, cfg.SourceLang)
		}
	}

	return &Pipeline{
		t:       t,
		cfg:     cfg,
		source:  source,
		target:  target,
		prompts: cfg.Prompts.withDefaults(),
		status:  Status{State: Idle},
	}, nil
}

// TargetLang returns the resolved target language code.
func (p *Pipeline) TargetLang() string { return p.target }

// SourceLang returns the resolved source language code, or "auto".
func (p *Pipeline) SourceLang() string {
	if p.source == "" {
		return langmeta.Auto
	}
	return p.source
}

// Status returns the state of the current or most recent run.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *Pipeline) setStatus(obs Observer, st Status) {
	p.mu.Lock()
	p.status = st
	p.mu.Unlock()
	if obs.OnState != nil {
		obs.OnState(st)
	}
}

// Plan splits text the way Run would, without translating.
func (p *Pipeline) Plan(text string) ([]chunk.Chunk, error) {
	return chunk.Split(text, p.cfg.ChunkSize)
}

// Translate runs the pipeline without an observer.
func (p *Pipeline) Translate(ctx context.Context, text string) (*Result, error) {
	return p.Run(ctx, text, Observer{})
}

// Run translates text. Chunks are sent strictly one after another; the first
// failure halts the run with a *PartialFailure, and the returned Result then
// holds the chunks completed before it. Cancelling ctx stops the run before
// the next chunk (or aborts the request in flight) the same way.
func (p *Pipeline) Run(ctx context.Context, text string, obs Observer) (*Result, error) {
	p.setStatus(obs, Status{State: Splitting})

	chunks, err := chunk.Split(text, p.cfg.ChunkSize)
	if err != nil {
		p.setStatus(obs, Status{State: Failed})
		return nil, err
	}
	total := len(chunks)
	p.cfg.log("Split %d characters into %d chunk(s) of at most %d", utf8.RuneCountInString(text), total, p.cfg.ChunkSize)

	res := &Result{Chunks: make([]ChunkResult, 0, total)}
	var full strings.Builder

	p.setStatus(obs, Status{State: Translating, Total: total})

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return p.fail(obs, res, i, total, err)
		}

		p.cfg.log("Chunk %d/%d (%d chars)", i+1, total, c.Len())
		out, err := p.translateChunk(ctx, c, full.String(), obs)
		if err != nil {
			return p.fail(obs, res, i, total, err)
		}

		full.WriteString(out)
		res.Chunks = append(res.Chunks, ChunkResult{Index: c.Index, Source: c.Text, Text: out})
		res.FullText = full.String()

		if obs.OnProgress != nil {
			obs.OnProgress(ProgressEvent{Completed: i + 1, Total: total, Latest: out})
		}
		p.setStatus(obs, Status{State: Translating, Completed: i + 1, Total: total})

		if i < total-1 && p.cfg.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return p.fail(obs, res, i+1, total, ctx.Err())
			case <-time.After(p.cfg.RequestDelay):
			}
		}
	}

	p.setStatus(obs, Status{State: Completed, Completed: total, Total: total})
	return res, nil
}

func (p *Pipeline) fail(obs Observer, res *Result, index, total int, err error) (*Result, error) {
	done := len(res.Chunks)
	p.setStatus(obs, Status{State: Failed, Completed: done, Total: total})
	if errors.Is(err, context.Canceled) {
		p.cfg.log("Cancelled after %d/%d chunk(s)", done, total)
	} else {
		p.cfg.log("Chunk %d/%d failed: %v", index+1, total, err)
	}
	chunks := make([]ChunkResult, len(res.Chunks))
	copy(chunks, res.Chunks)
	return res, &PartialFailure{
		ChunkIndex: index,
		Completed:  done,
		Total:      total,
		Partial:    res.FullText,
		Chunks:     chunks,
		Err:        err,
	}
}

// translateChunk obtains the translation of one chunk. prefix is the text of
// the chunks already finished, used for Fragment.Partial.
func (p *Pipeline) translateChunk(ctx context.Context, c chunk.Chunk, prefix string, obs Observer) (string, error) {
	// Nothing to translate: keep layout whitespace as is.
	if strings.TrimSpace(c.Text) == "" {
		return c.Text, nil
	}

	req := p.buildRequest(c)

	var raw string
	if p.cfg.Stream {
		var sb strings.Builder
		for delta, err := range p.t.Stream(ctx, req) {
			if err != nil {
				return "", err
			}
			sb.WriteString(delta)
			if obs.OnFragment != nil {
				obs.OnFragment(Fragment{ChunkIndex: c.Index, Delta: delta, Partial: prefix + sb.String()})
			}
		}
		raw = sb.String()
	} else {
		out, err := p.t.Complete(ctx, req)
		if err != nil {
			return "", err
		}
		raw = out
	}

	if p.cfg.KeepRaw {
		return raw, nil
	}
	return postProcess(c.Text, raw), nil
}

// buildRequest renders the prompt for one chunk. With an auto source the
// chunk language is detected; the Auto template is used when detection is
// not reliable.
func (p *Pipeline) buildRequest(c chunk.Chunk) llm.Request {
	source := p.source
	tmpl := p.prompts.Pair
	if source == "" {
		if code, ok := langmeta.Detect(c.Text); ok {
			source = code
			p.cfg.log("Chunk %d: detected %s", c.Index+1, langmeta.Resolve(code).English)
		} else {
			tmpl = p.prompts.Auto
		}
	}

	instructions := render(tmpl, source, p.target)
	if p.cfg.InlinePrompt {
		return llm.Request{User: instructions + "\n\n" + c.Text, Temperature: p.cfg.Temperature}
	}
	return llm.Request{System: instructions, User: c.Text, Temperature: p.cfg.Temperature}
}

// ---------------------------------------------------------------------------
// Reply post-processing
// ---------------------------------------------------------------------------

var wrappingFence = regexp.MustCompile("(?s)^\\s*(?:```|~~~)[^\\n]*\\n(.*?)\\n?[ \\t]*(?:```|~~~)\\s*$")

// postProcess removes a code fence wrapping the whole reply (unless the
// source was itself fenced), trims the reply and restores the source
// chunk's leading and trailing whitespace.
func postProcess(source, reply string) string {
	out := reply
	trimmedSrc := strings.TrimSpace(source)
	if !strings.HasPrefix(trimmedSrc, "```") && !strings.HasPrefix(trimmedSrc, "~~~") {
		if m := wrappingFence.FindStringSubmatch(out); m != nil && !strings.Contains(m[1], "```") && !strings.Contains(m[1], "~~~") {
			out = m[1]
		}
	}
	out = strings.TrimSpace(out)

	lead := source[:len(source)-len(strings.TrimLeftFunc(source, unicode.IsSpace))]
	trail := source[len(strings.TrimRightFunc(source, unicode.IsSpace)):]
	return lead + out + trail
}
