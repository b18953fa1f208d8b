// Package chunk splits long text into ordered, bounded pieces that fit the
// context window of a local inference server.
//
// Split is lossless: joining the returned chunks in order reproduces the input
// byte for byte. Sizes are counted in runes, not bytes.
//
// Boundaries are chosen in two passes. The text is first decomposed top-down
// into atoms no longer than the limit, trying paragraph breaks, line breaks,
// sentence ends and finally spaces, and only then cutting at the rune limit.
// The atoms are then merged back greedily, left to right, into chunks as large
// as the limit allows. Fenced code blocks (``` or ~~~) are kept whole when they
// fit in a single chunk.
package chunk

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrInvalidConfiguration is returned when the chunk size is not positive.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// Chunk is one contiguous piece of the source text.
type Chunk struct {
	// Index is the 0-based position of the chunk in the source.
	Index int
	// Text is the chunk content. Never empty.
	Text string
}

// Len returns the chunk length in runes.
func (c Chunk) Len() int {
	return utf8.RuneCountInString(c.Text)
}

// separators are tried in order; each one is only applied to pieces that are
// still longer than the limit.
var separators = []string{
	"\n\n",
	"\n",
	". ", "? ", "! ",
	"。", "？", "！",
	" ",
}

// codeSeparators is used inside fenced code blocks that do not fit.
var codeSeparators = []string{"\n"}

// codeFence matches fenced code blocks that start and end at a line start.
var codeFence = regexp.MustCompile("(?ms)^```[^\n]*\n.*?^```[ \t]*$|^~~~[^\n]*\n.*?^~~~[ \t]*$")

// Split divides text into chunks of at most size runes. An empty text yields
// no chunks. It fails with ErrInvalidConfiguration when size is not positive.
func Split(text string, size int) ([]Chunk, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, size)
	}
	if text == "" {
		return nil, nil
	}

	var atoms []string
	for _, b := range blocks(text) {
		if b.code && runeLen(b.text) <= size {
			atoms = append(atoms, b.text)
			continue
		}
		seps := separators
		if b.code {
			seps = codeSeparators
		}
		atoms = append(atoms, decompose(b.text, size, seps)...)
	}

	return merge(atoms, size), nil
}

// Join concatenates chunk texts in slice order.
func Join(chunks []Chunk) string {
	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

// Count returns how many chunks Split would produce.
func Count(text string, size int) (int, error) {
	chunks, err := Split(text, size)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// ---------------------------------------------------------------------------
// Decomposition
// ---------------------------------------------------------------------------

type block struct {
	text string
	code bool
}

// blocks cuts text into alternating prose and fenced-code blocks.
func blocks(text string) []block {
	ranges := codeFence.FindAllStringIndex(text, -1)
	if len(ranges) == 0 {
		return []block{{text: text}}
	}

	var out []block
	pos := 0
	for _, r := range ranges {
		if r[0] > pos {
			out = append(out, block{text: text[pos:r[0]]})
		}
		out = append(out, block{text: text[r[0]:r[1]], code: true})
		pos = r[1]
	}
	if pos < len(text) {
		out = append(out, block{text: text[pos:]})
	}
	return out
}

// decompose breaks text into atoms of at most size runes, applying seps in
// order and hard-splitting whatever is left over.
func decompose(text string, size int, seps []string) []string {
	segments := []string{text}
	for _, sep := range seps {
		var next []string
		for _, seg := range segments {
			if runeLen(seg) <= size {
				next = append(next, seg)
				continue
			}
			// SplitAfter keeps the separator attached to the left part.
			for _, part := range strings.SplitAfter(seg, sep) {
				if part != "" {
					next = append(next, part)
				}
			}
		}
		segments = next
	}

	var atoms []string
	for _, seg := range segments {
		atoms = append(atoms, hardSplit(seg, size)...)
	}
	return atoms
}

// hardSplit cuts s every size runes.
func hardSplit(s string, size int) []string {
	if runeLen(s) <= size {
		return []string{s}
	}
	var parts []string
	start, n := 0, 0
	for i := range s {
		if n == size {
			parts = append(parts, s[start:i])
			start, n = i, 0
		}
		n++
	}
	return append(parts, s[start:])
}

// merge packs atoms greedily into chunks of at most size runes.
func merge(atoms []string, size int) []Chunk {
	var chunks []Chunk
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen == 0 {
			return
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Text: cur.String()})
		cur.Reset()
		curLen = 0
	}

	for _, a := range atoms {
		n := runeLen(a)
		if curLen > 0 && curLen+n > size {
			flush()
		}
		cur.WriteString(a)
		curLen += n
	}
	flush()

	return chunks
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
