package clipboard

import (
	"errors"
	"testing"
)

// fakeBackend replaces the system clipboard with an in-memory one.
func fakeBackend(t *testing.T, available bool) *string {
	t.Helper()
	var store string
	origUnsupported, origRead, origWrite := unsupported, readAll, writeAll
	t.Cleanup(func() { unsupported, readAll, writeAll = origUnsupported, origRead, origWrite })

	unsupported = func() bool { return !available }
	readAll = func() (string, error) { return store, nil }
	writeAll = func(text string) error {
		store = text
		return nil
	}
	return &store
}

func TestWriteRead(t *testing.T) {
	store := fakeBackend(t, true)

	if err := Write("클립보드 text"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if *store != "클립보드 text" {
		t.Fatalf("backend holds %q", *store)
	}
	got, err := Read()
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if got != "클립보드 text" {
		t.Fatalf("Read() = %q", got)
	}
}

func TestUnavailable(t *testing.T) {
	store := fakeBackend(t, false)

	if _, err := Read(); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Read() err = %v, want ErrUnavailable", err)
	}
	if err := Write("x"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Write() err = %v, want ErrUnavailable", err)
	}
	if *store != "" {
		t.Fatalf("backend written while unavailable: %q", *store)
	}
}

func TestBackendErrorsAreWrapped(t *testing.T) {
	fakeBackend(t, true)
	boom := errors.New("exit status 1")
	readAll = func() (string, error) { return "", boom }
	writeAll = func(string) error { return boom }

	if _, err := Read(); !errors.Is(err, boom) || errors.Is(err, ErrUnavailable) {
		t.Fatalf("Read() err = %v", err)
	}
	if err := Write("x"); !errors.Is(err, boom) {
		t.Fatalf("Write() err = %v", err)
	}
}
