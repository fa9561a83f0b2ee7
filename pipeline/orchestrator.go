// Package pipeline resolves a contract from its structured page source and,
// when that source is unusable or incomplete, from a plain-text fallback.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AnTengye/contractgraph/annotation"
	"github.com/AnTengye/contractgraph/extract"
	"github.com/AnTengye/contractgraph/model"
)

// ErrUnrecoverable reports that neither the structured source nor the
// fallback text produced a usable extraction.
var ErrUnrecoverable = errors.New("unrecoverable extraction")

// ExtractionError carries the reasons both sources were rejected.
type ExtractionError struct {
	Structured string
	Fallback   string
	Err        error // cause of the fallback failure, if any
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("%s: structured: %s; fallback: %s", ErrUnrecoverable, e.Structured, e.Fallback)
}

func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnrecoverable}
	}
	return []error{ErrUnrecoverable, e.Err}
}

// State is a stage of resolution.
type State string

const (
	StateStructuredOnly   State = "structured-only"
	StateUnstructuredOnly State = "unstructured-only"
	StateHybrid           State = "hybrid"
	StateResolved         State = "resolved"
)

// Input names one document and its sources. Fallback may be nil.
type Input struct {
	DocumentID     string
	SourceDocument string
	Structured     DocumentSource
	Fallback       TextSource
}

// Config configures an Orchestrator.
type Config struct {
	// Evidence backs extraction from the structured source. The fallback
	// text is always processed with patterns only.
	Evidence   *annotation.Evidence
	Language   extract.LanguageDetector
	FirstPages int
	LastPages  int
	Logger     *slog.Logger
}

// Orchestrator chooses between the structured and fallback sources.
type Orchestrator struct {
	structured *extract.Extractor
	textOnly   *extract.Extractor
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		structured: extract.NewExtractor(extract.Config{
			Evidence:   cfg.Evidence,
			Language:   cfg.Language,
			FirstPages: cfg.FirstPages,
			LastPages:  cfg.LastPages,
			Logger:     cfg.Logger,
		}),
		textOnly: extract.NewExtractor(extract.Config{
			Language:   cfg.Language,
			FirstPages: cfg.FirstPages,
			LastPages:  cfg.LastPages,
			Logger:     cfg.Logger,
		}),
		logger: cfg.Logger,
		now:    time.Now,
	}
}

type run struct {
	o     *Orchestrator
	in    Input
	state State
}

func (r *run) transition(to State, reason string) {
	r.o.logger.Info("pipeline.state",
		"document_id", r.in.DocumentID,
		"from", string(r.state),
		"to", string(to),
		"reason", reason,
	)
	r.state = to
}

// Run resolves one document. The structured source is tried first. If it or
// its extraction is rejected, the fallback text is extracted instead. If the
// structured extraction is usable but incomplete, the fallback fills only
// the missing fields. Run returns an *ExtractionError when no source yields
// a usable extraction.
func (o *Orchestrator) Run(ctx context.Context, in Input) (*model.ExtractionResult, error) {
	if in.DocumentID == "" {
		in.DocumentID = uuid.NewString()
	}
	r := &run{o: o, in: in, state: StateStructuredOnly}
	o.logger.Info("pipeline.start", "document_id", in.DocumentID, "source", in.SourceDocument)

	ext, verdict := r.structured(ctx)
	provenance := model.ProvenanceJSON

	if !verdict.OK {
		if in.Fallback == nil {
			o.logger.Error("pipeline.unrecoverable", "document_id", in.DocumentID, "reason", verdict.Reason)
			return nil, &ExtractionError{Structured: verdict.Reason, Fallback: ErrMissingSource.Error(), Err: ErrMissingSource}
		}
		r.transition(StateUnstructuredOnly, verdict.Reason)
		fallback, err := r.fallback(ctx)
		if err != nil {
			o.logger.Error("pipeline.unrecoverable", "document_id", in.DocumentID, "reason", verdict.Reason, "error", err)
			return nil, &ExtractionError{Structured: verdict.Reason, Fallback: err.Error(), Err: err}
		}
		if v := ValidateExtraction(fallback.Articles); !v.OK {
			o.logger.Error("pipeline.unrecoverable", "document_id", in.DocumentID, "reason", v.Reason)
			return nil, &ExtractionError{Structured: verdict.Reason, Fallback: v.Reason}
		}
		ext = fallback
		provenance = model.ProvenanceText
	} else if missing := missingFields(ext); len(missing) > 0 && in.Fallback != nil {
		r.transition(StateHybrid, fmt.Sprintf("missing %v", missing))
		fallback, err := r.fallback(ctx)
		if err != nil {
			o.logger.Warn("pipeline.hybrid.failed", "document_id", in.DocumentID, "error", err)
		} else {
			supplement(&ext, fallback)
			provenance = model.ProvenanceHybrid
		}
	}

	r.transition(StateResolved, string(provenance))
	return &model.ExtractionResult{
		DocumentID:     in.DocumentID,
		SourceDocument: in.SourceDocument,
		Metadata:       ext.Metadata,
		Articles:       ext.Articles,
		Parties:        ext.Parties,
		Insights:       ext.Insights,
		Provenance:     provenance,
		ResolvedAt:     o.now(),
	}, nil
}

func (r *run) structured(ctx context.Context) (extract.Extraction, Verdict) {
	if r.in.Structured == nil {
		return extract.Extraction{}, fail("no structured source")
	}
	doc, err := r.in.Structured.Document(ctx)
	if err != nil {
		return extract.Extraction{}, fail(fmt.Sprintf("failed to load structured source: %v", err))
	}
	if v := ValidateSource(doc); !v.OK {
		return extract.Extraction{}, v
	}
	ext := r.o.structured.Extract(ctx, doc)
	return ext, ValidateExtraction(ext.Articles)
}

func (r *run) fallback(ctx context.Context) (extract.Extraction, error) {
	text, err := r.in.Fallback.ReadText(ctx)
	if err != nil {
		return extract.Extraction{}, err
	}
	return r.o.textOnly.Extract(ctx, model.DocumentFromText(text)), nil
}

// missingFields lists the parts of a structured extraction the fallback may
// fill in.
func missingFields(ext extract.Extraction) []string {
	var missing []string
	if len(ext.Articles) == 0 {
		missing = append(missing, "articles")
	}
	if ext.Metadata.Title == "" {
		missing = append(missing, "title")
	}
	if ext.Metadata.EffectiveDate == "" {
		missing = append(missing, "effective_date")
	}
	if ext.Metadata.DocumentType == "" {
		missing = append(missing, "document_type")
	}
	return missing
}

// supplement copies fields from fallback into ext where ext has none.
func supplement(ext *extract.Extraction, fallback extract.Extraction) {
	if len(ext.Articles) == 0 {
		ext.Articles = fallback.Articles
	}
	md, fb := &ext.Metadata, fallback.Metadata
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&md.Title, fb.Title)
	fill(&md.EffectiveDate, fb.EffectiveDate)
	fill(&md.ExecutionDate, fb.ExecutionDate)
	fill(&md.DocumentType, fb.DocumentType)
	fill(&md.Language, fb.Language)
	if len(md.Parties) == 0 {
		md.Parties = fb.Parties
	}
	if len(ext.Parties) == 0 {
		ext.Parties = fallback.Parties
	}
}
