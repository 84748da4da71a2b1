// Package chunker splits syllabus text into overlapping windows.
package chunker

import (
	"fmt"

	"study-planner/internal/models"

	"github.com/tmc/langchaingo/textsplitter"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
)

// DefaultSeparators are tried coarsest first: paragraph, line, sentence, word.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " "}

// Splitter turns text into ordered chunks.
type Splitter interface {
	Split(text string) ([]models.Chunk, error)
}

// Window is a sliding-window splitter measured in runes. Every chunk is at most size runes
// and consecutive chunks share exactly overlap runes.
type Window struct {
	size       int
	overlap    int
	separators [][]rune
}

// Option configures a splitter.
type Option func(*options)

type options struct {
	size       int
	overlap    int
	separators []string
}

func WithChunkSize(size int) Option {
	return func(o *options) {
		if size > 0 {
			o.size = size
		}
	}
}

func WithOverlap(overlap int) Option {
	return func(o *options) {
		if overlap >= 0 {
			o.overlap = overlap
		}
	}
}

func WithSeparators(seps []string) Option {
	return func(o *options) {
		if len(seps) > 0 {
			o.separators = seps
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		size:       DefaultChunkSize,
		overlap:    DefaultChunkOverlap,
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.overlap >= o.size {
		o.overlap = o.size / 4
	}
	return o
}

// New returns the splitter selected by kind: "window" (default) or "recursive".
func New(kind string, opts ...Option) (Splitter, error) {
	switch kind {
	case "", "window":
		return NewWindow(opts...), nil
	case "recursive":
		return NewRecursive(opts...), nil
	default:
		return nil, fmt.Errorf("unsupported splitter: %s", kind)
	}
}

func NewWindow(opts ...Option) *Window {
	o := buildOptions(opts)
	w := &Window{size: o.size, overlap: o.overlap}
	for _, sep := range o.separators {
		if sep != "" {
			w.separators = append(w.separators, []rune(sep))
		}
	}
	return w
}

func (w *Window) Split(text string) ([]models.Chunk, error) {
	r := []rune(text)
	n := len(r)
	if n == 0 {
		return nil, nil
	}

	var chunks []models.Chunk
	start := 0
	for {
		end := start + w.size
		if end >= n {
			chunks = append(chunks, models.Chunk{Text: string(r[start:n]), Position: len(chunks)})
			return chunks, nil
		}
		cut := w.cutPoint(r, start, end)
		chunks = append(chunks, models.Chunk{Text: string(r[start:cut]), Position: len(chunks)})
		start = cut - w.overlap
	}
}

// cutPoint finds where the window [start, end) should end. The cut always lands past
// start+overlap so the next window makes progress.
func (w *Window) cutPoint(r []rune, start, end int) int {
	floor := start + w.overlap
	for _, sep := range w.separators {
		for i := end - len(sep); i >= start; i-- {
			cut := i + len(sep)
			if cut <= floor {
				break
			}
			if hasRunes(r, i, sep) {
				return cut
			}
		}
	}
	return end
}

func hasRunes(r []rune, at int, sep []rune) bool {
	if at+len(sep) > len(r) {
		return false
	}
	for j, c := range sep {
		if r[at+j] != c {
			return false
		}
	}
	return true
}

// Recursive wraps the langchaingo recursive character splitter. It bounds chunk size but
// does not guarantee an exact overlap.
type Recursive struct {
	splitter textsplitter.RecursiveCharacter
}

func NewRecursive(opts ...Option) *Recursive {
	o := buildOptions(opts)
	return &Recursive{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(o.size),
			textsplitter.WithChunkOverlap(o.overlap),
			textsplitter.WithSeparators(append(append([]string{}, o.separators...), "")),
		),
	}
}

func (s *Recursive) Split(text string) ([]models.Chunk, error) {
	parts, err := s.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %v", err)
	}
	chunks := make([]models.Chunk, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		chunks = append(chunks, models.Chunk{Text: p, Position: len(chunks)})
	}
	return chunks, nil
}
