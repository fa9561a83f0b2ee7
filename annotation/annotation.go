// Package annotation is the boundary to the external NLP service that tags
// entities, splits sentences and classifies passages of contract text.
package annotation

import (
	"context"
)

// Entity types reported by the annotation service.
const (
	TypePerson = "PERSON"
	TypeOrg    = "ORG"
	TypeDate   = "DATE"
	TypeMoney  = "MONEY"
	TypeLaw    = "LAW"
	TypeGPE    = "GPE"
)

// Entity is a tagged span. Start and End are byte offsets into the text that
// was annotated.
type Entity struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Sentence is a sentence span with byte offsets.
type Sentence struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Classification is a single label with its confidence in [0, 1].
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Annotator is implemented by annotation backends.
type Annotator interface {
	ExtractEntities(ctx context.Context, text string) ([]Entity, error)
	SegmentSentences(ctx context.Context, text string) ([]Sentence, error)
	Classify(ctx context.Context, text string) (Classification, error)
}

// Nop is an Annotator that finds nothing.
type Nop struct{}

func (Nop) ExtractEntities(context.Context, string) ([]Entity, error)   { return nil, nil }
func (Nop) SegmentSentences(context.Context, string) ([]Sentence, error) { return nil, nil }
func (Nop) Classify(context.Context, string) (Classification, error)     { return Classification{}, nil }
