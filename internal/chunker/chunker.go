package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxLength = 2000
	DefaultMinLength = 50
)

// Splitter packs sentence segments into chunks of at most maxLength
// characters, greedily and without backtracking. Sentence-terminal
// punctuation and newlines stay attached to their segment, so concatenating
// the chunks reproduces the input's sentence sequence. Chunks shorter than
// minLength after trimming are dropped: too short to carry standalone
// meaning.
type Splitter struct {
	maxLength int
	minLength int
}

func NewSplitter(maxLength, minLength int) *Splitter {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if minLength < 0 {
		minLength = DefaultMinLength
	}
	return &Splitter{maxLength: maxLength, minLength: minLength}
}

func (s *Splitter) Split(text string) []string {
	var raw []string
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		chunk := strings.TrimSpace(buf.String())
		buf.Reset()
		bufLen = 0
		if chunk != "" {
			raw = append(raw, chunk)
		}
	}

	for _, seg := range splitSegments(text) {
		segLen := utf8.RuneCountInString(seg)
		// A single over-long segment is kept intact, never truncated.
		if bufLen > 0 && bufLen+segLen > s.maxLength {
			flush()
		}
		buf.WriteString(seg)
		bufLen += segLen
	}
	flush()

	chunks := make([]string, 0, len(raw))
	for _, chunk := range raw {
		if utf8.RuneCountInString(chunk) < s.minLength {
			continue
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// splitSegments cuts text after each sentence terminator or newline, keeping
// the delimiter on its segment.
func splitSegments(text string) []string {
	var segs []string
	start := 0
	for i, r := range text {
		switch r {
		case '.', '!', '?', '\n':
			end := i + utf8.RuneLen(r)
			segs = append(segs, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		segs = append(segs, text[start:])
	}
	return segs
}

const densifyPrompt = `Analyze the following text and repartition it into self-contained fragments (dense, coherent paragraphs) that keep their meaning on their own.
Each fragment must:
- Be clear and understandable without depending on the others.
- Run roughly 200 to 500 words where possible (adjust to the content).
- Keep complete sentences, without cutting important ideas short.
- Be suitable as embedding context for semantic search.

Text:
%s`

// Generator produces text from a single prompt.
type Generator interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Densifier rewrites raw extracted text into dense self-contained paragraphs
// before splitting. A generation failure fails the whole document: partial,
// un-densified chunking is not attempted.
type Densifier struct {
	model Generator
}

func NewDensifier(model Generator) *Densifier {
	return &Densifier{model: model}
}

func (d *Densifier) Densify(ctx context.Context, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("densify input is empty")
	}
	dense, err := d.model.Invoke(ctx, fmt.Sprintf(densifyPrompt, raw))
	if err != nil {
		return "", fmt.Errorf("densify pass failed: %w", err)
	}
	return dense, nil
}
