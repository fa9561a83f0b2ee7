package annotation

import (
	"context"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Options sizes the windows text is cut into before it is sent to the
// annotation service.
type Options struct {
	EntityWindow   int // bytes per entity-extraction call
	EntityLimit    int // entity extraction stops after this many bytes
	SentenceWindow int // bytes per sentence-segmentation call
	SentenceLimit  int // sentence segmentation stops after this many bytes
	ClassifyLimit  int // classification input is cut to this many bytes
}

// DefaultOptions returns the window sizes the annotation models accept.
func DefaultOptions() Options {
	return Options{
		EntityWindow:   450,
		EntityLimit:    10000,
		SentenceWindow: 10000,
		SentenceLimit:  15000,
		ClassifyLimit:  1000,
	}
}

// Evidence wraps an Annotator for the extraction pipeline. Text is processed
// in sequential windows and offsets are rebased onto the caller's text. A
// failed call is logged and contributes no evidence; Evidence never returns
// an error.
//
// A nil *Evidence, or one built from a nil Annotator, reports nothing.
type Evidence struct {
	annotator Annotator
	opts      Options
	logger    *slog.Logger
}

// NewEvidence wraps a. Zero option fields take their defaults.
func NewEvidence(a Annotator, opts Options, logger *slog.Logger) *Evidence {
	def := DefaultOptions()
	if opts.EntityWindow <= 0 {
		opts.EntityWindow = def.EntityWindow
	}
	if opts.EntityLimit <= 0 {
		opts.EntityLimit = def.EntityLimit
	}
	if opts.SentenceWindow <= 0 {
		opts.SentenceWindow = def.SentenceWindow
	}
	if opts.SentenceLimit <= 0 {
		opts.SentenceLimit = def.SentenceLimit
	}
	if opts.ClassifyLimit <= 0 {
		opts.ClassifyLimit = def.ClassifyLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Evidence{annotator: a, opts: opts, logger: logger}
}

// Enabled reports whether an annotation backend is attached.
func (e *Evidence) Enabled() bool {
	return e != nil && e.annotator != nil
}

// Options returns the window sizes in use.
func (e *Evidence) Options() Options {
	if e == nil {
		return DefaultOptions()
	}
	return e.opts
}

// Entities returns the entities found in the first EntityLimit bytes of
// text, in order of appearance.
func (e *Evidence) Entities(ctx context.Context, text string) []Entity {
	if !e.Enabled() || text == "" {
		return nil
	}
	var out []Entity
	for _, c := range Chunks(text, e.opts.EntityWindow, e.opts.EntityLimit) {
		ents, err := e.annotator.ExtractEntities(ctx, c.Text)
		if err != nil {
			e.logger.Warn("annotation.entities.failed", "offset", c.Offset, "error", err)
			continue
		}
		for _, ent := range ents {
			ent.Start += c.Offset
			ent.End += c.Offset
			out = append(out, ent)
		}
	}
	return out
}

// EntitiesOfType filters Entities by type.
func (e *Evidence) EntitiesOfType(ctx context.Context, text, typ string) []Entity {
	var out []Entity
	for _, ent := range e.Entities(ctx, text) {
		if ent.Type == typ {
			out = append(out, ent)
		}
	}
	return out
}

// Sentences returns the sentences of the first SentenceLimit bytes of text.
func (e *Evidence) Sentences(ctx context.Context, text string) []Sentence {
	if !e.Enabled() || text == "" {
		return nil
	}
	var out []Sentence
	for _, c := range Chunks(text, e.opts.SentenceWindow, e.opts.SentenceLimit) {
		sents, err := e.annotator.SegmentSentences(ctx, c.Text)
		if err != nil {
			e.logger.Warn("annotation.sentences.failed", "offset", c.Offset, "error", err)
			continue
		}
		for _, s := range sents {
			s.Start += c.Offset
			s.End += c.Offset
			out = append(out, s)
		}
	}
	return out
}

// Classify labels the first ClassifyLimit bytes of text. The boolean is false
// when no backend is attached or the call failed.
func (e *Evidence) Classify(ctx context.Context, text string) (Classification, bool) {
	if !e.Enabled() || strings.TrimSpace(text) == "" {
		return Classification{}, false
	}
	text = cut(text, e.opts.ClassifyLimit)
	res, err := e.annotator.Classify(ctx, text)
	if err != nil {
		e.logger.Warn("annotation.classify.failed", "error", err)
		return Classification{}, false
	}
	return res, true
}

// Chunk is a window of a larger text.
type Chunk struct {
	Text   string
	Offset int
}

// Chunks cuts the first limit bytes of text into consecutive windows of at
// most size bytes. Windows end on a rune boundary and, where one is close,
// on whitespace so words are not split.
func Chunks(text string, size, limit int) []Chunk {
	if limit > 0 && len(text) > limit {
		text = cut(text, limit)
	}
	if size <= 0 {
		size = len(text)
	}
	var out []Chunk
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			out = append(out, Chunk{Text: text[start:], Offset: start})
			break
		}
		end = boundary(text, start, end)
		out = append(out, Chunk{Text: text[start:end], Offset: start})
		start = end
	}
	return out
}

// boundary moves end back to whitespace within the last fifth of the
// window, or at least onto a rune start.
func boundary(text string, start, end int) int {
	floor := end - (end-start)/5
	for i := end; i > floor; i-- {
		r, _ := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			return i
		}
	}
	for end > start+1 && !utf8.RuneStart(text[end]) {
		end--
	}
	return end
}

func cut(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n]
}
