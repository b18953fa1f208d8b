package webui

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/kirinonakar/llm-translator/config"
	"github.com/kirinonakar/llm-translator/i18n"
	"github.com/kirinonakar/llm-translator/langmeta"
	"github.com/kirinonakar/llm-translator/settings"
	"github.com/kirinonakar/llm-translator/textfile"
	"github.com/kirinonakar/llm-translator/translate"
)

//go:embed www/*
var wwwFS embed.FS

var pageTemplate = template.Must(template.New("index.html.tmpl").
	Funcs(template.FuncMap{"T": i18n.T}).
	ParseFS(wwwFS, "www/index.html.tmpl"))

// maxChunkSize bounds the chunk size accepted from the browser.
const maxChunkSize = 100_000

// TemplateData is passed to the page template.
type TemplateData struct {
	Lang      string
	Languages []LanguageOption
	Settings  config.Settings
	Accept    string
}

// LanguageOption is one entry of the language selects.
type LanguageOption struct {
	Code  string `json:"code"`
	Label string `json:"label"`
	Base  bool   `json:"base"`
}

func languageOptions() []LanguageOption {
	base := make(map[string]bool, len(langmeta.Base))
	for _, c := range langmeta.Base {
		base[c] = true
	}
	codes := langmeta.Codes()
	opts := make([]LanguageOption, 0, len(codes))
	for _, c := range codes {
		opts = append(opts, LanguageOption{Code: c, Label: langmeta.Label(c), Base: base[c]})
	}
	return opts
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	data := TemplateData{
		Lang:      i18n.Lang(),
		Languages: languageOptions(),
		Settings:  s.opts.Settings,
		Accept:    strings.Join(textfile.SupportedExtensions, ","),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.log.Error("Rendering page", "err", err)
	}
}

func (s *Server) languagesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": languageOptions(),
		"source":    s.opts.Settings.SourceLang,
		"target":    s.opts.Settings.TargetLang,
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	busy := s.active != nil
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": busy})
}

func (s *Server) artifactHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	a, ok := s.artifacts.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Name))
	fmt.Fprint(w, a.text)
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil || !s.cancelSession(id) {
		writeError(w, http.StatusNotFound, errNotFound)
		return
	}
	s.log.Info("Cancel requested", "session", id)
	w.WriteHeader(http.StatusAccepted)
}

// ---------------------------------------------------------------------------
// Translation
// ---------------------------------------------------------------------------

// TranslateRequest is the body of POST /api/translate. The same fields are
// accepted as form values by POST /api/translate/file. Empty fields keep the
// server defaults.
type TranslateRequest struct {
	Text        string   `json:"text"`
	SourceLang  string   `json:"source_lang"`
	TargetLang  string   `json:"target_lang"`
	Temperature *float64 `json:"temperature"`
	ChunkSize   int      `json:"chunk_size"`
	Stream      *bool    `json:"stream"`
	ServerURL   string   `json:"server_url"`
	Model       string   `json:"model"`
	APIKey      string   `json:"api_key"`
}

func requestFromForm(r *http.Request) (TranslateRequest, error) {
	req := TranslateRequest{
		SourceLang: r.FormValue("source_lang"),
		TargetLang: r.FormValue("target_lang"),
		ServerURL:  r.FormValue("server_url"),
		Model:      r.FormValue("model"),
		APIKey:     r.FormValue("api_key"),
	}
	if v := r.FormValue("temperature"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return req, fmt.Errorf("%w: temperature %q", translate.ErrInvalidConfiguration, v)
		}
		req.Temperature = &t
	}
	if v := r.FormValue("chunk_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return req, fmt.Errorf("%w: chunk size %q", translate.ErrInvalidConfiguration, v)
		}
		req.ChunkSize = n
	}
	if v := r.FormValue("stream"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("%w: stream %q", translate.ErrInvalidConfiguration, v)
		}
		req.Stream = &b
	}
	return req, nil
}

// apply overlays the request on the server defaults.
func (req TranslateRequest) apply(base config.Settings) (config.Settings, error) {
	st := base
	if req.SourceLang != "" {
		st.SourceLang = req.SourceLang
	}
	if req.TargetLang != "" {
		st.TargetLang = req.TargetLang
	}
	if req.Temperature != nil {
		st.Temperature = *req.Temperature
	}
	if req.ChunkSize != 0 {
		st.ChunkSize = req.ChunkSize
	}
	if req.Stream != nil {
		st.Stream = *req.Stream
	}
	if req.ServerURL != "" && req.ServerURL != st.ServerURL {
		st.ServerURL = strings.TrimSpace(req.ServerURL)
		st.APIKey = settings.GetAPIKey(st.ServerURL)
	}
	if req.Model != "" {
		st.Model = req.Model
	}
	if req.APIKey != "" {
		st.APIKey = req.APIKey
	}

	if err := validateRange(st.ChunkSize, 1, maxChunkSize, "chunk size"); err != nil {
		return st, err
	}
	if err := validateRange(st.Temperature, 0, translate.MaxTemperature, "temperature"); err != nil {
		return st, err
	}
	return st, nil
}

func (s *Server) pipeline(st config.Settings, log *slog.Logger) (*translate.Pipeline, error) {
	return translate.New(s.opts.NewTranslator(st), translate.Config{
		SourceLang:   st.SourceLang,
		TargetLang:   st.TargetLang,
		Temperature:  st.Temperature,
		ChunkSize:    st.ChunkSize,
		Stream:       st.Stream,
		Prompts:      s.opts.Prompts,
		InlinePrompt: st.InlinePrompt,
		RequestDelay: st.RequestDelay,
		OnLog: func(format string, args ...any) {
			log.Debug(fmt.Sprintf(format, args...))
		},
	})
}

func (s *Server) translateHandler(w http.ResponseWriter, r *http.Request) {
	var req TranslateRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxFormSize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: decoding request: %v", translate.ErrInvalidConfiguration, err))
		return
	}
	s.run(w, r, req, "")
}

func (s *Server) translateFileHandler(w http.ResponseWriter, r *http.Request) {
	name, text, err := readUpload(w, r)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	req, err := requestFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Text = text
	s.run(w, r, req, name)
}

// stateEvent is the payload of "state" events.
type stateEvent struct {
	State     string `json:"state"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
}

// doneEvent is the payload of the final "done" event, and of the partial
// result attached to an "error" event.
type doneEvent struct {
	Text     string    `json:"text"`
	Chunks   int       `json:"chunks"`
	Artifact *artifact `json:"artifact,omitempty"`
}

type errorEvent struct {
	ErrorResponse
	Completed int        `json:"completed"`
	Total     int        `json:"total"`
	Partial   *doneEvent `json:"partial,omitempty"`
}

// run validates the request, claims the single session slot and streams
// the pipeline's events. fileName is set for uploads; the result is then
// registered as a downloadable artifact.
func (s *Server) run(w http.ResponseWriter, r *http.Request, req TranslateRequest, fileName string) {
	st, err := req.apply(s.opts.Settings)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, ctx, err := s.begin(r.Context())
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	defer s.end(sess)

	log := s.log.With("session", sess.id)
	p, err := s.pipeline(st, log)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	log.Info("Translation started",
		"server", st.ServerURL, "source", p.SourceLang(), "target", p.TargetLang(),
		"chars", len([]rune(req.Text)), "file", fileName)

	ev := newEventWriter(w)
	ev.send("session", map[string]string{"id": sess.id.String()})

	res, err := p.Run(ctx, req.Text, translate.Observer{
		OnState: func(status translate.Status) {
			ev.send("state", stateEvent{State: status.State.String(), Completed: status.Completed, Total: status.Total})
		},
		OnProgress: func(e translate.ProgressEvent) {
			ev.send("progress", map[string]any{"completed": e.Completed, "total": e.Total, "latest": e.Latest})
		},
		OnFragment: func(f translate.Fragment) {
			ev.send("fragment", map[string]any{"chunk": f.ChunkIndex, "delta": f.Delta})
		},
	})

	if err != nil {
		var pf *translate.PartialFailure
		out := errorEvent{ErrorResponse: CategorizeError(err)}
		if errors.As(err, &pf) {
			out.Completed, out.Total = pf.Completed, pf.Total
			if pf.Completed > 0 {
				out.Partial = &doneEvent{Text: pf.Partial, Chunks: pf.Completed}
				if fileName != "" {
					out.Partial.Artifact = s.artifacts.put(textfile.OutputName(fileName), pf.Partial, true)
				}
			}
		}
		log.Warn("Translation failed", "err", err, "completed", out.Completed, "total", out.Total)
		ev.send("error", out)
		return
	}

	done := doneEvent{Text: res.FullText, Chunks: len(res.Chunks)}
	if fileName != "" {
		done.Artifact = s.artifacts.put(textfile.OutputName(fileName), res.FullText, false)
	}
	log.Info("Translation finished", "chunks", len(res.Chunks))
	ev.send("done", done)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
