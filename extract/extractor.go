// Package extract turns contract text into an article tree, document
// metadata, parties with signatories and secondary insights.
package extract

import (
	"context"
	"log/slog"

	"github.com/AnTengye/contractgraph/annotation"
	"github.com/AnTengye/contractgraph/model"
)

// Page windows used for party and signature search.
const (
	DefaultFirstPages = 3
	DefaultLastPages  = 2
)

// Extraction is everything extracted from one document.
type Extraction struct {
	Metadata model.ContractMetadata
	Articles []model.Article
	Parties  []model.Party
	Insights model.Insights
}

// Extractor runs every extraction component over a document.
type Extractor struct {
	segmenter  *Segmenter
	metadata   *MetadataResolver
	parties    *PartyResolver
	insights   *InsightExtractor
	firstPages int
	lastPages  int
}

// Config configures an Extractor. A nil Evidence yields the text-only
// variant that relies on patterns alone.
type Config struct {
	Evidence   *annotation.Evidence
	Language   LanguageDetector
	FirstPages int
	LastPages  int
	Logger     *slog.Logger
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.FirstPages <= 0 {
		cfg.FirstPages = DefaultFirstPages
	}
	if cfg.LastPages <= 0 {
		cfg.LastPages = DefaultLastPages
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Extractor{
		segmenter:  NewSegmenter(cfg.Evidence, cfg.Logger),
		metadata:   NewMetadataResolver(cfg.Evidence, cfg.Language, cfg.Logger),
		parties:    NewPartyResolver(cfg.Evidence, cfg.Logger),
		insights:   NewInsightExtractor(cfg.Evidence, cfg.Logger),
		firstPages: cfg.FirstPages,
		lastPages:  cfg.LastPages,
	}
}

// Extract runs the segmenter and resolvers over doc. Metadata comes from the
// first page, parties from the first pages and signatories from the last
// pages.
func (x *Extractor) Extract(ctx context.Context, doc *model.Document) Extraction {
	if doc == nil || len(doc.Pages) == 0 {
		return Extraction{
			Metadata: model.NewContractMetadata(),
			Articles: x.segmenter.Segment(ctx, ""),
		}
	}
	full := doc.FullText()
	articles := x.segmenter.Segment(ctx, full)
	return Extraction{
		Metadata: x.metadata.ResolveMetadata(ctx, doc.Pages[0].Text),
		Articles: articles,
		Parties:  x.parties.ResolveParties(ctx, doc.FirstPages(x.firstPages), doc.LastPages(x.lastPages)),
		Insights: x.insights.Extract(ctx, full, articles),
	}
}
