// Package textfile reads source documents for translation and writes the
// translated_<name> output next to them.
package textfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"
)

// MaxSize is the largest file accepted for translation.
const MaxSize = 20 << 20

// OutputPrefix is prepended to the source file name for the output file.
const OutputPrefix = "translated_"

// SupportedExtensions are the extensions offered by file pickers. Other text
// files are accepted too.
var SupportedExtensions = []string{".txt", ".md", ".py", ".js", ".html", ".json", ".csv"}

var (
	// ErrTooLarge is returned for inputs over MaxSize.
	ErrTooLarge = errors.New("file too large")
	// ErrNotText is returned for inputs that are not valid UTF-8.
	ErrNotText = errors.New("file is not UTF-8 text")
)

var bom = []byte{0xEF, 0xBB, 0xBF}

// Read loads a UTF-8 text file, stripping a byte order mark.
func Read(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("reading %s: is a directory", path)
	}
	if info.Size() > MaxSize {
		return "", fmt.Errorf("reading %s: %w (%d bytes, limit %d)", path, ErrTooLarge, info.Size(), MaxSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	text, err := ReadFrom(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return text, nil
}

// ReadFrom applies the same checks as Read to a stream, e.g. an upload.
func ReadFrom(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return "", err
	}
	if len(data) > MaxSize {
		return "", fmt.Errorf("%w (limit %d bytes)", ErrTooLarge, MaxSize)
	}
	data = bytes.TrimPrefix(data, bom)
	if !utf8.Valid(data) {
		return "", ErrNotText
	}
	return string(data), nil
}

// IsSupported reports whether path has one of SupportedExtensions.
func IsSupported(path string) bool {
	return slices.Contains(SupportedExtensions, strings.ToLower(filepath.Ext(path)))
}

// OutputName returns translated_<base> for a source file name.
func OutputName(src string) string {
	return OutputPrefix + filepath.Base(src)
}

// OutputPath returns the default output path: translated_<base> in the
// source file's directory.
func OutputPath(src string) string {
	return filepath.Join(filepath.Dir(src), OutputName(src))
}

// Write saves text to path, creating parent directories.
func Write(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// WriteTemp saves text to a new translated_*.txt file in the system temp
// directory and returns its path.
func WriteTemp(text string) (string, error) {
	f, err := os.CreateTemp("", OutputPrefix+"*.txt")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing %s: %w", f.Name(), err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing %s: %w", f.Name(), err)
	}
	return f.Name(), nil
}
