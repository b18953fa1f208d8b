// Package clipboard reads and writes the system clipboard for the CLI.
// The desktop window uses fyne's clipboard instead.
package clipboard

import (
	"errors"
	"fmt"

	sysclip "github.com/atotto/clipboard"
)

// ErrUnavailable is returned when no clipboard tool is installed.
var ErrUnavailable = errors.New("no clipboard tool found")

// Backend hooks, swapped in tests.
var (
	unsupported = func() bool { return sysclip.Unsupported }
	readAll     = sysclip.ReadAll
	writeAll    = sysclip.WriteAll
)

func check() error {
	if unsupported() {
		return fmt.Errorf("%w; install wl-clipboard, xclip or xsel", ErrUnavailable)
	}
	return nil
}

// Read returns the clipboard text.
func Read() (string, error) {
	if err := check(); err != nil {
		return "", err
	}
	text, err := readAll()
	if err != nil {
		return "", fmt.Errorf("reading clipboard: %w", err)
	}
	return text, nil
}

// Write replaces the clipboard content with text.
func Write(text string) error {
	if err := check(); err != nil {
		return err
	}
	if err := writeAll(text); err != nil {
		return fmt.Errorf("writing clipboard: %w", err)
	}
	return nil
}
