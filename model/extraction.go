package model

import (
	"strings"
	"time"
)

// DefaultDocumentType is used when no evidence identifies the kind of contract.
const DefaultDocumentType = "Contract"

// DefaultSignatoryTitle is used when a signatory's role is unknown.
const DefaultSignatoryTitle = "Signatory"

// DefaultPartyType is used when no legal suffix identifies the party.
const DefaultPartyType = "Organization"

// Page is the text of one page of a converted source document.
type Page struct {
	Text string `json:"text"`
}

// Document is an ordered list of pages. It is not modified after loading.
type Document struct {
	Pages []Page `json:"pages"`
}

// FullText joins every page with a newline.
func (d *Document) FullText() string {
	return joinPages(d.Pages)
}

// FirstPages returns the joined text of the first n pages.
func (d *Document) FirstPages(n int) string {
	if n > len(d.Pages) {
		n = len(d.Pages)
	}
	return joinPages(d.Pages[:n])
}

// LastPages returns the joined text of the last n pages.
func (d *Document) LastPages(n int) string {
	if n > len(d.Pages) {
		n = len(d.Pages)
	}
	return joinPages(d.Pages[len(d.Pages)-n:])
}

// HasText reports whether any page carries non-blank text.
func (d *Document) HasText() bool {
	for _, p := range d.Pages {
		if strings.TrimSpace(p.Text) != "" {
			return true
		}
	}
	return false
}

// DocumentFromText builds a document from plain text. Form feeds separate
// pages; text without them is a single page.
func DocumentFromText(text string) *Document {
	parts := strings.Split(text, "\f")
	doc := &Document{Pages: make([]Page, 0, len(parts))}
	for _, p := range parts {
		doc.Pages = append(doc.Pages, Page{Text: p})
	}
	return doc
}

func joinPages(pages []Page) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = p.Text
	}
	return strings.Join(parts, "\n")
}

// Signatory is a person who signs on behalf of a party.
type Signatory struct {
	Name  string `json:"name"`
	Title string `json:"title"`
}

// NewSignatory returns a signatory, defaulting an empty title.
func NewSignatory(name, title string) Signatory {
	if strings.TrimSpace(title) == "" {
		title = DefaultSignatoryTitle
	}
	return Signatory{Name: name, Title: title}
}

// Party is a contracting organization or person.
type Party struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Signatories []Signatory `json:"signatories"`
}

// NewParty returns a party with an empty signatory list.
func NewParty(name, partyType string) Party {
	if partyType == "" {
		partyType = DefaultPartyType
	}
	return Party{Name: name, Type: partyType, Signatories: []Signatory{}}
}

// AddSignatory appends s unless an equal signatory is already attached.
// It reports whether s was added.
func (p *Party) AddSignatory(s Signatory) bool {
	for _, existing := range p.Signatories {
		if existing == s {
			return false
		}
	}
	p.Signatories = append(p.Signatories, s)
	return true
}

// Section is a numbered subdivision of an article.
type Section struct {
	Number  string `json:"number"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Article is a top-level division of a contract. Content holds the raw span
// only when no sections were found.
type Article struct {
	Number    string    `json:"number"`
	NumericID string    `json:"numeric_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Sections  []Section `json:"sections"`
}

// HasContent reports whether the article or any of its sections has text.
func (a *Article) HasContent() bool {
	if strings.TrimSpace(a.Content) != "" {
		return true
	}
	for _, s := range a.Sections {
		if strings.TrimSpace(s.Content) != "" {
			return true
		}
	}
	return false
}

// ContractMetadata describes the document as a whole.
type ContractMetadata struct {
	Title         string  `json:"title"`
	EffectiveDate string  `json:"effective_date"`
	ExecutionDate string  `json:"execution_date,omitempty"`
	DocumentType  string  `json:"document_type"`
	Language      string  `json:"language,omitempty"`
	Parties       []Party `json:"parties"`
}

// NewContractMetadata returns metadata with the default document type.
func NewContractMetadata() ContractMetadata {
	return ContractMetadata{DocumentType: DefaultDocumentType, Parties: []Party{}}
}

// Provenance records which source produced an extraction result.
type Provenance string

const (
	ProvenanceJSON   Provenance = "json"
	ProvenanceText   Provenance = "text"
	ProvenanceHybrid Provenance = "hybrid"
)

// ExtractionResult is the resolved contract model for one document.
type ExtractionResult struct {
	DocumentID     string           `json:"document_id"`
	SourceDocument string           `json:"source_document"`
	Metadata       ContractMetadata `json:"metadata"`
	Articles       []Article        `json:"articles"`
	Parties        []Party          `json:"parties"`
	Insights       Insights         `json:"insights"`
	Provenance     Provenance       `json:"provenance"`
	ResolvedAt     time.Time        `json:"resolved_at"`
}

// KeyProvision is an article flagged as important, with one-sentence
// summaries of its sections.
type KeyProvision struct {
	ArticleNumber string   `json:"article_number"`
	Title         string   `json:"title"`
	Summary       []string `json:"summary"`
}

// Financial is a monetary amount found in the text together with its
// surrounding context.
type Financial struct {
	Amount  string `json:"amount"`
	Context string `json:"context"`
}

// KeyDate is a date mention with surrounding context.
type KeyDate struct {
	Date    string `json:"date"`
	Context string `json:"context"`
}

// KeyTerm is a contract term recognized by the classifier.
type KeyTerm struct {
	Term     string   `json:"term"`
	Contexts []string `json:"contexts"`
}

// EntityGroup lists the distinct mentions of one entity type.
type EntityGroup struct {
	Type  string   `json:"type"`
	Texts []string `json:"texts"`
}

// Insights holds secondary findings that do not belong to the article tree.
type Insights struct {
	KeyProvisions []KeyProvision `json:"key_provisions"`
	Financials    []Financial    `json:"financials"`
	KeyDates      []KeyDate      `json:"key_dates"`
	KeyTerms      []KeyTerm      `json:"key_terms"`
	Entities      []EntityGroup  `json:"entities"`
}
