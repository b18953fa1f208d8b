package textfile

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	dir := t.TempDir()

	t.Run("plain", func(t *testing.T) {
		path := filepath.Join(dir, "a.txt")
		os.WriteFile(path, []byte("안녕하세요\nhello"), 0644)
		got, err := Read(path)
		if err != nil || got != "안녕하세요\nhello" {
			t.Fatalf("Read() = %q, %v", got, err)
		}
	})

	t.Run("strips BOM", func(t *testing.T) {
		path := filepath.Join(dir, "bom.md")
		os.WriteFile(path, append([]byte{0xEF, 0xBB, 0xBF}, "# Title"...), 0644)
		got, err := Read(path)
		if err != nil || got != "# Title" {
			t.Fatalf("Read() = %q, %v", got, err)
		}
	})

	t.Run("rejects binary", func(t *testing.T) {
		path := filepath.Join(dir, "bin.dat")
		os.WriteFile(path, []byte{0xff, 0xfe, 0x00, 0x80}, 0644)
		if _, err := Read(path); !errors.Is(err, ErrNotText) {
			t.Fatalf("err = %v, want ErrNotText", err)
		}
	})

	t.Run("rejects directory", func(t *testing.T) {
		if _, err := Read(dir); err == nil {
			t.Fatal("expected error for directory")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Read(filepath.Join(dir, "nope.txt"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Fatalf("err = %v, want ErrNotExist", err)
		}
	})
}

func TestReadFromTooLarge(t *testing.T) {
	r := strings.NewReader(strings.Repeat("a", MaxSize+1))
	if _, err := ReadFrom(r); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, want ErrTooLarge", err)
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{in: filepath.Join("docs", "guide.md"), want: filepath.Join("docs", "translated_guide.md")},
		{in: "notes.txt", want: "translated_notes.txt"},
		{in: filepath.Join("/tmp", "data.csv"), want: filepath.Join("/tmp", "translated_data.csv")},
	}
	for _, tc := range cases {
		if got := OutputPath(tc.in); got != tc.want {
			t.Errorf("OutputPath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsSupported(t *testing.T) {
	for _, p := range []string{"a.txt", "b.MD", "c.py", "d.js", "e.html", "f.json", "g.csv"} {
		if !IsSupported(p) {
			t.Errorf("IsSupported(%q) = false", p)
		}
	}
	if IsSupported("image.png") {
		t.Error("IsSupported(image.png) = true")
	}
}

func TestWriteAndTemp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "translated_a.txt")
	if err := Write(path, "번역"); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if got, _ := os.ReadFile(path); string(got) != "번역" {
		t.Fatalf("written = %q", got)
	}

	tmp, err := WriteTemp("temp text")
	if err != nil {
		t.Fatalf("WriteTemp() error: %v", err)
	}
	t.Cleanup(func() { os.Remove(tmp) })
	if !strings.HasPrefix(filepath.Base(tmp), "translated_") || filepath.Ext(tmp) != ".txt" {
		t.Fatalf("temp name = %q", tmp)
	}
	if got, _ := os.ReadFile(tmp); string(got) != "temp text" {
		t.Fatalf("temp content = %q", got)
	}
}
