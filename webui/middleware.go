package webui

import (
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type compressResponseWriter struct {
	http.ResponseWriter
	writer io.Writer
}

func (w *compressResponseWriter) Write(b []byte) (int, error) {
	return w.writer.Write(b)
}

// negotiateEncoding picks zstd, br or gzip from an Accept-Encoding header,
// in that order of preference.
func negotiateEncoding(acceptEncoding string) string {
	offered := make(map[string]bool)
	for _, part := range strings.Split(acceptEncoding, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.ReplaceAll(strings.TrimSpace(params), " ", "") == "q=0" {
			continue
		}
		offered[strings.ToLower(strings.TrimSpace(name))] = true
	}
	for _, enc := range []string{"zstd", "br", "gzip"} {
		if offered[enc] {
			return enc
		}
	}
	return ""
}

// CompressionMiddleware compresses responses for clients that accept it.
// It must not wrap streaming handlers.
func CompressionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")

		var writer io.WriteCloser
		switch negotiateEncoding(r.Header.Get("Accept-Encoding")) {
		case "zstd":
			encoder, err := zstd.NewWriter(w,
				zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
				zstd.WithWindowSize(1<<23))
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Content-Encoding", "zstd")
			writer = encoder
		case "br":
			w.Header().Set("Content-Encoding", "br")
			writer = brotli.NewWriterLevel(w, brotli.DefaultCompression)
		case "gzip":
			w.Header().Set("Content-Encoding", "gzip")
			writer = gzip.NewWriter(w)
		default:
			next.ServeHTTP(w, r)
			return
		}
		defer writer.Close()

		w.Header().Del("Content-Length") // Can't know compressed size
		next.ServeHTTP(&compressResponseWriter{ResponseWriter: w, writer: writer}, r)
	})
}

// SecurityHeaders sets conservative headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy",
			"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'")
		next.ServeHTTP(w, r)
	})
}

// SameOrigin rejects state-changing requests whose Origin header names
// another host, so other web pages cannot drive the local server.
func SameOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			if origin := r.Header.Get("Origin"); origin != "" {
				u, err := url.Parse(origin)
				if err != nil || !strings.EqualFold(u.Host, r.Host) {
					writeError(w, http.StatusForbidden, errForeignOrigin)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}
