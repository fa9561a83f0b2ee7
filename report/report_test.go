package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/AnTengye/contractgraph/model"
)

func sampleResult() *model.ExtractionResult {
	acme := model.NewParty("Acme Corp.", "Corporation")
	acme.AddSignatory(model.NewSignatory("John Smith", "CEO"))
	return &model.ExtractionResult{
		DocumentID:     "msa-1",
		SourceDocument: "msa.json",
		Metadata: model.ContractMetadata{
			Title:         "MASTER SERVICES AGREEMENT",
			EffectiveDate: "April 1, 2024",
			DocumentType:  "Services Agreement",
			Language:      "en",
		},
		Parties: []model.Party{acme, model.NewParty("Beta Systems LLC", "Limited Liability Company")},
		Articles: []model.Article{
			{Number: "I", NumericID: "1", Title: "SCOPE", Sections: []model.Section{{Number: "1.1", Title: "Services", Content: "Acme provides services."}}},
			{Number: "II", NumericID: "2", Title: "FEES", Content: "Fees are due monthly."},
		},
		Insights: model.Insights{
			KeyProvisions: []model.KeyProvision{{ArticleNumber: "I", Title: "SCOPE", Summary: []string{"1.1: Acme provides services."}}},
			Financials:    []model.Financial{{Amount: "$1,000", Context: "fees of $1,000"}},
			KeyDates:      []model.KeyDate{{Date: "April 1, 2024", Context: "effective April 1, 2024"}},
			KeyTerms:      []model.KeyTerm{{Term: "termination", Contexts: []string{"may terminate on notice"}}},
			Entities:      []model.EntityGroup{{Type: "ORG", Texts: []string{"Acme Corp.", "Beta Systems LLC"}}},
		},
		Provenance: model.ProvenanceHybrid,
		ResolvedAt: time.Date(2025, 4, 29, 10, 0, 0, 0, time.UTC),
	}
}

func TestDisplayTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"JOINT TECHNOLOGY DEVELOPMENT AGREEMENT", "Joint Technology Development Agreement"},
		{`Foo Agreement (the "Agreement")`, "Foo Agreement"},
		{"MASTER SERVICES AGREEMENT Between Acme and Beta", "Master Services Agreement"},
		{"LICENSE AGREEMENT ARTICLE I DEFINITIONS", "License Agreement"},
		{"Supply Agreement:\nThis agreement is made", "Supply Agreement"},
		{"Lease Agreement.", "Lease Agreement"},
		{"", UntitledContract},
		{"  \n", UntitledContract},
		{"(the Agreement)", "(the Agreement)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DisplayTitle(tt.in), "input %q", tt.in)
	}
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b c", excerpt("a\n b\t\tc "))

	long := strings.Repeat("word ", 100)
	got := excerpt(long)
	assert.True(t, strings.HasSuffix(got, "word..."))
	assert.LessOrEqual(t, len(got), excerptLen+3)

	runes := excerpt(strings.Repeat("é", excerptLen))
	assert.True(t, strings.HasSuffix(runes, "..."))
	assert.True(t, strings.HasPrefix(runes, "éé"))
	assert.NotContains(t, runes, "�")
	assert.Equal(t, excerptLen/2, strings.Count(runes, "é"))
}

func TestRenderMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, sampleResult()))
	out := buf.String()

	for _, want := range []string{
		"# Master Services Agreement\n",
		"| Document type | Services Agreement |",
		"| Effective date | April 1, 2024 |",
		"| Language | en |",
		"| Extracted from | hybrid |",
		"| Resolved at | 2025-04-29 10:00:00 UTC |",
		"- **Acme Corp.** (Corporation)",
		"  - Signed by John Smith, CEO",
		"- **Beta Systems LLC** (Limited Liability Company)",
		"### Article I: SCOPE",
		"- 1.1 Services",
		"### Article II: FEES",
		"Fees are due monthly.",
		"## Key Provisions",
		"- 1.1: Acme provides services.",
		"- **$1,000**: fees of $1,000",
		"- **April 1, 2024**: effective April 1, 2024",
		"### termination",
		"- **ORG**: Acme Corp., Beta Systems LLC",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "Execution date")
	assert.NotContains(t, out, "No parties identified.")
}

func TestRenderMarkdownSparse(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderMarkdown(&buf, &model.ExtractionResult{DocumentID: "x", Provenance: model.ProvenanceText}))
	out := buf.String()

	assert.Contains(t, out, "# Untitled Contract")
	assert.Contains(t, out, "| Effective date | Not specified |")
	assert.Contains(t, out, "No parties identified.")
	assert.NotContains(t, out, "## Key Provisions")
	assert.NotContains(t, out, "## Financial Terms")

	assert.Error(t, RenderMarkdown(&buf, nil))
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleResult()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetSummary, SheetParties, SheetArticles, SheetInsights}, f.GetSheetList())

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Field", "Value"}, summary[0])
	assert.Contains(t, summary, []string{"Title", "Master Services Agreement"})
	assert.Contains(t, summary, []string{"Provenance", "hybrid"})

	parties, err := f.GetRows(SheetParties)
	require.NoError(t, err)
	require.Len(t, parties, 3)
	assert.Equal(t, []string{"Acme Corp.", "Corporation", "John Smith", "CEO"}, parties[1])
	assert.Equal(t, []string{"Beta Systems LLC", "Limited Liability Company"}, parties[2])

	articles, err := f.GetRows(SheetArticles)
	require.NoError(t, err)
	require.Len(t, articles, 3)
	assert.Equal(t, []string{"I", "SCOPE", "1.1", "Services", "Acme provides services."}, articles[1])
	assert.Equal(t, []string{"II", "FEES", "", "", "Fees are due monthly."}, articles[2])

	insights, err := f.GetRows(SheetInsights)
	require.NoError(t, err)
	require.Len(t, insights, 6)
	assert.Equal(t, []string{"Key provision", "I SCOPE", "1.1: Acme provides services."}, insights[1])
	assert.Equal(t, []string{"Entity", "ORG", "Acme Corp., Beta Systems LLC"}, insights[5])
}

func TestWriteXLSXNil(t *testing.T) {
	assert.Error(t, WriteXLSX(&bytes.Buffer{}, nil))
}
