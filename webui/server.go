// Package webui serves a local browser interface and a small JSON/SSE API
// over the translation pipeline. It is meant to listen on localhost for a
// single user: one translation runs at a time.
package webui

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirinonakar/llm-translator/config"
	"github.com/kirinonakar/llm-translator/llm"
	"github.com/kirinonakar/llm-translator/translate"
)

// DefaultAddr is the listen address used by "serve".
const DefaultAddr = "127.0.0.1:7860"

// TranslatorFactory builds the client for one run from the effective
// settings.
type TranslatorFactory func(s config.Settings) translate.Translator

// Options configure a Server.
type Options struct {
	// Settings are the defaults for requests that leave fields empty.
	Settings config.Settings
	// Prompts are the instruction templates.
	Prompts translate.Prompts
	// NewTranslator defaults to an llm.Client for the request's server.
	NewTranslator TranslatorFactory
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server holds the web UI state.
type Server struct {
	opts      Options
	log       *slog.Logger
	artifacts *artifactStore

	mu     sync.Mutex
	active *session
}

type session struct {
	id     uuid.UUID
	cancel context.CancelFunc
}

// New creates a server.
func New(opts Options) *Server {
	if opts.NewTranslator == nil {
		opts.NewTranslator = clientFor
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Server{
		opts:      opts,
		log:       opts.Logger,
		artifacts: newArtifactStore(maxArtifacts),
	}
}

func clientFor(s config.Settings) translate.Translator {
	return llm.New(llm.Config{
		BaseURL: s.ServerURL,
		APIKey:  s.APIKey,
		Model:   s.Model,
		Timeout: s.Timeout,
		Proxy:   s.Proxy,
	})
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /{$}", CompressionMiddleware(http.HandlerFunc(s.homeHandler)))
	mux.Handle("GET /api/languages", CompressionMiddleware(http.HandlerFunc(s.languagesHandler)))
	mux.Handle("GET /api/artifacts/{id}", CompressionMiddleware(http.HandlerFunc(s.artifactHandler)))
	mux.HandleFunc("GET /healthz", s.healthHandler)

	// Streaming routes are never compressed.
	mux.HandleFunc("POST /api/translate", s.translateHandler)
	mux.HandleFunc("POST /api/translate/file", s.translateFileHandler)
	mux.HandleFunc("POST /api/sessions/{id}/cancel", s.cancelHandler)

	return SecurityHeaders(SameOrigin(mux))
}

// Serve handles requests on ln until ctx is cancelled, then shuts down
// gracefully and stops any running translation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Web UI listening", "addr", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.cancelActive()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ---------------------------------------------------------------------------
// Single active session
// ---------------------------------------------------------------------------

var errBusy = errors.New("a translation is already running")

// begin registers a new session, or fails with errBusy.
func (s *Server) begin(parent context.Context) (*session, context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return nil, nil, errBusy
	}
	ctx, cancel := context.WithCancel(parent)
	sess := &session{id: uuid.New(), cancel: cancel}
	s.active = sess
	return sess, ctx, nil
}

func (s *Server) end(sess *session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.cancel()
	if s.active == sess {
		s.active = nil
	}
}

// cancelSession cancels the active session if it has the given id.
func (s *Server) cancelSession(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.id != id {
		return false
	}
	s.active.cancel()
	return true
}

func (s *Server) cancelActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.cancel()
	}
}
