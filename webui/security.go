package webui

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/kirinonakar/llm-translator/textfile"
	"github.com/kirinonakar/llm-translator/translate"
)

// MaxFormSize bounds a multipart upload including the form fields.
const MaxFormSize = textfile.MaxSize + 1<<20

var errBadUpload = errors.New("invalid upload")

// readUpload returns the sanitized name and decoded text of the "file"
// form field.
func readUpload(w http.ResponseWriter, r *http.Request) (string, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxFormSize)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", "", fmt.Errorf("%w (limit %d bytes)", textfile.ErrTooLarge, textfile.MaxSize)
		}
		return "", "", fmt.Errorf("%w: %v", errBadUpload, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", "", fmt.Errorf("%w: missing file field", errBadUpload)
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		return "", "", fmt.Errorf("%w: filename cannot be empty", errBadUpload)
	}
	if header.Size > textfile.MaxSize {
		return "", "", fmt.Errorf("%w: %d bytes (limit %d)", textfile.ErrTooLarge, header.Size, textfile.MaxSize)
	}

	text, err := textfile.ReadFrom(file)
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", header.Filename, err)
	}
	return SanitizeFilename(header.Filename), text, nil
}

// SanitizeFilename strips directories and characters that are unsafe in
// a download name.
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "\\", "/")
	filename = filepath.Base(filename)
	filename = strings.Map(func(r rune) rune {
		switch {
		case r < 0x20, r == 0x7f:
			return -1
		case strings.ContainsRune(`:*?"<>|/`, r):
			return -1
		}
		return r
	}, filename)
	filename = strings.TrimSpace(strings.ReplaceAll(filename, "..", ""))

	if filename == "" || filename == "." {
		filename = "upload.txt"
	}
	return filename
}

// validateRange reports a field outside [lo, hi].
func validateRange[T int | float64](value, lo, hi T, field string) error {
	if value < lo || value > hi {
		return fmt.Errorf("%w: %s must be between %v and %v, got %v",
			translate.ErrInvalidConfiguration, field, lo, hi, value)
	}
	return nil
}
