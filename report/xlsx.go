package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/AnTengye/contractgraph/model"
)

// Sheet names of the exported workbook.
const (
	SheetSummary  = "Summary"
	SheetParties  = "Parties"
	SheetArticles = "Articles"
	SheetInsights = "Insights"
)

// maxCellLen keeps long article text inside the limit Excel accepts per cell.
const maxCellLen = 32000

type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
}

func (s *sheetWriter) writeRow(values ...any) {
	s.row++
	for i, v := range values {
		if str, ok := v.(string); ok && len(str) > maxCellLen {
			v = str[:maxCellLen]
		}
		cell, _ := excelize.CoordinatesToCellName(i+1, s.row)
		_ = s.f.SetCellValue(s.sheet, cell, v)
	}
}

func newSheet(f *excelize.File, name string, headers ...string) (*sheetWriter, error) {
	if index, _ := f.GetSheetIndex(name); index == -1 {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}
	s := &sheetWriter{f: f, sheet: name}
	if len(headers) > 0 {
		values := make([]any, len(headers))
		for i, h := range headers {
			values[i] = h
		}
		s.writeRow(values...)
	}
	return s, nil
}

// WriteXLSX writes res as a workbook with one sheet each for the summary,
// parties, articles and insights.
func WriteXLSX(w io.Writer, res *model.ExtractionResult) error {
	if res == nil {
		return fmt.Errorf("no extraction result to export")
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	summary, err := newSheet(f, SheetSummary, "Field", "Value")
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	md := res.Metadata
	summary.writeRow("Title", DisplayTitle(md.Title))
	summary.writeRow("Document type", md.DocumentType)
	summary.writeRow("Effective date", md.EffectiveDate)
	summary.writeRow("Execution date", md.ExecutionDate)
	summary.writeRow("Language", md.Language)
	summary.writeRow("Source document", res.SourceDocument)
	summary.writeRow("Document ID", res.DocumentID)
	summary.writeRow("Provenance", string(res.Provenance))
	if !res.ResolvedAt.IsZero() {
		summary.writeRow("Resolved at", res.ResolvedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	_ = f.SetColWidth(SheetSummary, "A", "A", 18)
	_ = f.SetColWidth(SheetSummary, "B", "B", 60)

	parties, err := newSheet(f, SheetParties, "Party", "Type", "Signatory", "Title")
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	for _, p := range res.Parties {
		if len(p.Signatories) == 0 {
			parties.writeRow(p.Name, p.Type, "", "")
			continue
		}
		for _, s := range p.Signatories {
			parties.writeRow(p.Name, p.Type, s.Name, s.Title)
		}
	}
	_ = f.SetColWidth(SheetParties, "A", "A", 36)
	_ = f.SetColWidth(SheetParties, "B", "D", 28)

	articles, err := newSheet(f, SheetArticles, "Article", "Article Title", "Section", "Section Title", "Content")
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	for _, a := range res.Articles {
		if len(a.Sections) == 0 {
			articles.writeRow(a.Number, a.Title, "", "", a.Content)
			continue
		}
		for _, s := range a.Sections {
			articles.writeRow(a.Number, a.Title, s.Number, s.Title, s.Content)
		}
	}
	_ = f.SetColWidth(SheetArticles, "A", "A", 10)
	_ = f.SetColWidth(SheetArticles, "B", "B", 28)
	_ = f.SetColWidth(SheetArticles, "C", "C", 10)
	_ = f.SetColWidth(SheetArticles, "D", "D", 28)
	_ = f.SetColWidth(SheetArticles, "E", "E", 80)

	insights, err := newSheet(f, SheetInsights, "Kind", "Value", "Context")
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	ins := res.Insights
	for _, kp := range ins.KeyProvisions {
		insights.writeRow("Key provision", strings.TrimSpace(kp.ArticleNumber+" "+kp.Title), strings.Join(kp.Summary, "\n"))
	}
	for _, fin := range ins.Financials {
		insights.writeRow("Financial", fin.Amount, fin.Context)
	}
	for _, d := range ins.KeyDates {
		insights.writeRow("Date", d.Date, d.Context)
	}
	for _, t := range ins.KeyTerms {
		insights.writeRow("Term", t.Term, strings.Join(t.Contexts, "\n"))
	}
	for _, e := range ins.Entities {
		insights.writeRow("Entity", e.Type, strings.Join(e.Texts, ", "))
	}
	_ = f.SetColWidth(SheetInsights, "A", "A", 16)
	_ = f.SetColWidth(SheetInsights, "B", "B", 28)
	_ = f.SetColWidth(SheetInsights, "C", "C", 80)

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
