// Package annotationtest provides a scripted annotation.Annotator for tests.
package annotationtest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/AnTengye/contractgraph/annotation"
)

// Scripted answers from fixed tables. Entities are reported wherever their
// surface text occurs in the annotated text; sentences are the non-blank
// lines of the text.
type Scripted struct {
	// Entities maps surface text to entity type.
	Entities map[string]string
	// Label and Confidence are returned by Classify unless ClassifyFunc is set.
	Label        string
	Confidence   float64
	ClassifyFunc func(text string) annotation.Classification
	// Err, when set, fails every call.
	Err error

	mu    sync.Mutex
	calls map[string]int
}

var _ annotation.Annotator = (*Scripted)(nil)

// Calls returns how many times method was invoked.
func (s *Scripted) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *Scripted) record(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[method]++
}

func (s *Scripted) ExtractEntities(_ context.Context, text string) ([]annotation.Entity, error) {
	s.record("entities")
	if s.Err != nil {
		return nil, s.Err
	}
	surfaces := make([]string, 0, len(s.Entities))
	for surface := range s.Entities {
		surfaces = append(surfaces, surface)
	}
	sort.Strings(surfaces)

	var out []annotation.Entity
	for _, surface := range surfaces {
		for from := 0; ; {
			i := strings.Index(text[from:], surface)
			if i < 0 {
				break
			}
			start := from + i
			out = append(out, annotation.Entity{
				Type:  s.Entities[surface],
				Text:  surface,
				Start: start,
				End:   start + len(surface),
			})
			from = start + len(surface)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func (s *Scripted) SegmentSentences(_ context.Context, text string) ([]annotation.Sentence, error) {
	s.record("sentences")
	if s.Err != nil {
		return nil, s.Err
	}
	var out []annotation.Sentence
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lead := strings.Index(line, trimmed)
			out = append(out, annotation.Sentence{
				Text:  trimmed,
				Start: offset + lead,
				End:   offset + lead + len(trimmed),
			})
		}
		offset += len(line)
	}
	return out, nil
}

func (s *Scripted) Classify(_ context.Context, text string) (annotation.Classification, error) {
	s.record("classify")
	if s.Err != nil {
		return annotation.Classification{}, s.Err
	}
	if s.ClassifyFunc != nil {
		return s.ClassifyFunc(text), nil
	}
	return annotation.Classification{Label: s.Label, Confidence: s.Confidence}, nil
}
