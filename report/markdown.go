// Package report renders resolved contracts for people: a Markdown summary
// and an XLSX workbook.
package report

import (
	"embed"
	"fmt"
	"io"
	"strings"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/AnTengye/contractgraph/model"
)

// UntitledContract is shown when no title was resolved.
const UntitledContract = "Untitled Contract"

const excerptLen = 400

//go:embed templates/summary.md.tmpl
var templates embed.FS

var summaryTemplate = template.Must(template.New("summary.md.tmpl").Funcs(template.FuncMap{
	"displayTitle": DisplayTitle,
	"excerpt":      excerpt,
	"join":         strings.Join,
}).ParseFS(templates, "templates/summary.md.tmpl"))

var titleCaser = cases.Title(language.English)

// DisplayTitle cleans a resolved title for display: only its first line,
// nothing from an "ARTICLE" or "Between" onwards, no parenthetical and no
// trailing period or colon. All-caps titles are title-cased.
func DisplayTitle(title string) string {
	title, _, _ = strings.Cut(title, "\n")
	for _, sep := range []string{"ARTICLE", "Between", "("} {
		if i := strings.Index(title, sep); i > 0 {
			title = title[:i]
		}
	}
	title = strings.TrimSpace(title)
	title = strings.TrimSpace(strings.TrimRight(title, ".:"))
	if title == "" {
		return UntitledContract
	}
	if strings.ToUpper(title) == title && strings.ToLower(title) != title {
		title = titleCaser.String(strings.ToLower(title))
	}
	return title
}

func excerpt(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= excerptLen {
		return s
	}
	cut := strings.LastIndex(s[:excerptLen], " ")
	if cut <= 0 {
		cut = excerptLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
	}
	return s[:cut] + "..."
}

// RenderMarkdown writes the summary of res to w.
func RenderMarkdown(w io.Writer, res *model.ExtractionResult) error {
	if res == nil {
		return fmt.Errorf("no extraction result to render")
	}
	if err := summaryTemplate.Execute(w, res); err != nil {
		return fmt.Errorf("failed to render summary: %w", err)
	}
	return nil
}
