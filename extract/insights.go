package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/AnTengye/contractgraph/annotation"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pattern"
)

const (
	provisionSummaryLen   = 300
	provisionClassifyLen  = 2000
	mentionContext        = 50
	maxMentions           = 15
	maxTermContexts       = 3
	termScanLen           = 25000
	termChunkLen          = 450
	termMinChunkLen       = 20
	provisionThreshold    = 0.7
	keyTermThreshold      = 0.6
	patternMentionScanLen = 25000
)

// EntityGroupTypes are the entity types reported in insights, in order.
var EntityGroupTypes = []string{
	annotation.TypePerson,
	annotation.TypeOrg,
	annotation.TypeDate,
	annotation.TypeMoney,
	annotation.TypeLaw,
	annotation.TypeGPE,
}

// InsightExtractor collects key provisions, monetary amounts, dates, legal
// terms and named entities.
type InsightExtractor struct {
	evidence *annotation.Evidence
	logger   *slog.Logger
}

func NewInsightExtractor(ev *annotation.Evidence, logger *slog.Logger) *InsightExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightExtractor{evidence: ev, logger: logger}
}

// Extract returns the insights of fullText given its article tree.
func (x *InsightExtractor) Extract(ctx context.Context, fullText string, articles []model.Article) model.Insights {
	entities := x.evidence.Entities(ctx, fullText)
	ins := model.Insights{
		KeyProvisions: x.keyProvisions(ctx, articles),
		Financials:    financials(fullText, entities),
		KeyDates:      keyDates(fullText, entities),
		KeyTerms:      x.keyTerms(ctx, fullText),
		Entities:      entityGroups(fullText, entities),
	}
	x.logger.Debug("insights.extracted",
		"provisions", len(ins.KeyProvisions),
		"financials", len(ins.Financials),
		"dates", len(ins.KeyDates),
		"terms", len(ins.KeyTerms),
	)
	return ins
}

func (x *InsightExtractor) keyProvisions(ctx context.Context, articles []model.Article) []model.KeyProvision {
	out := []model.KeyProvision{}
	for _, a := range articles {
		if !hasImportantKeyword(a.Title) && !x.classifiedImportant(ctx, a.Content) {
			continue
		}
		out = append(out, model.KeyProvision{
			ArticleNumber: a.Number,
			Title:         a.Title,
			Summary:       summarize(a),
		})
	}
	return out
}

func hasImportantKeyword(s string) bool {
	s = strings.ToLower(s)
	for _, kw := range pattern.ImportantProvisionKeywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

func (x *InsightExtractor) classifiedImportant(ctx context.Context, content string) bool {
	if !x.evidence.Enabled() || strings.TrimSpace(content) == "" {
		return false
	}
	for _, c := range annotation.Chunks(content, termChunkLen, provisionClassifyLen) {
		res, ok := x.evidence.Classify(ctx, c.Text)
		if ok && res.Confidence > provisionThreshold && hasImportantKeyword(res.Label) {
			return true
		}
	}
	return false
}

// summarize joins the first sentence of each section, stopping once the
// summary passes provisionSummaryLen.
func summarize(a model.Article) []string {
	var out []string
	total := 0
	add := func(s string) bool {
		if total+len(s) > provisionSummaryLen {
			out = append(out, truncate(s, provisionSummaryLen-total)+"...")
			return false
		}
		out = append(out, s)
		total += len(s)
		return true
	}
	if len(a.Sections) == 0 {
		if s := firstSentence(a.Content); s != "" {
			add(s)
		}
		return out
	}
	for _, sec := range a.Sections {
		s := firstSentence(sec.Content)
		if s == "" {
			continue
		}
		if !add(fmt.Sprintf("%s: %s", sec.Number, s)) {
			break
		}
	}
	return out
}

func firstSentence(s string) string {
	s = collapseSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}

type mention struct {
	text  string
	start int
	end   int
}

func financials(text string, entities []annotation.Entity) []model.Financial {
	out := []model.Financial{}
	for _, m := range mentions(text, entities, annotation.TypeMoney, []*regexp.Regexp{pattern.MoneyPattern}) {
		out = append(out, model.Financial{Amount: m.text, Context: contextAround(text, m.start, m.end)})
	}
	return out
}

func keyDates(text string, entities []annotation.Entity) []model.KeyDate {
	out := []model.KeyDate{}
	for _, m := range mentions(text, entities, annotation.TypeDate, pattern.DatePatterns) {
		out = append(out, model.KeyDate{Date: m.text, Context: contextAround(text, m.start, m.end)})
	}
	return out
}

// mentions lists annotated entities of typ followed by pattern matches not
// already seen, capped at maxMentions.
func mentions(text string, entities []annotation.Entity, typ string, patterns []*regexp.Regexp) []mention {
	var out []mention
	seen := make(map[string]bool)
	add := func(m mention) {
		key := collapseSpace(m.text)
		if key == "" || seen[key] || len(out) >= maxMentions {
			return
		}
		seen[key] = true
		m.text = key
		out = append(out, m)
	}
	for _, e := range entities {
		if e.Type == typ && e.Start >= 0 && e.End <= len(text) {
			add(mention{text: e.Text, start: e.Start, end: e.End})
		}
	}
	scan := truncate(text, patternMentionScanLen)
	var found []mention
	for _, re := range patterns {
		for _, loc := range re.FindAllStringIndex(scan, -1) {
			found = append(found, mention{text: scan[loc[0]:loc[1]], start: loc[0], end: loc[1]})
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].start < found[j].start })
	for _, m := range found {
		add(m)
	}
	return out
}

func contextAround(text string, start, end int) string {
	from := start - mentionContext
	if from < 0 {
		from = 0
	}
	to := end + mentionContext
	if to > len(text) {
		to = len(text)
	}
	for from > 0 && !isBoundary(text, from) {
		from--
	}
	for to < len(text) && !isBoundary(text, to) {
		to++
	}
	return collapseSpace(text[from:to])
}

func isBoundary(s string, i int) bool {
	return i <= 0 || i >= len(s) || utf8.RuneStart(s[i])
}

func (x *InsightExtractor) keyTerms(ctx context.Context, text string) []model.KeyTerm {
	contexts := make(map[string][]string)
	for _, c := range annotation.Chunks(text, termChunkLen, termScanLen) {
		if len(strings.TrimSpace(c.Text)) < termMinChunkLen {
			continue
		}
		term := x.termOf(ctx, c.Text)
		if term == "" || len(contexts[term]) >= maxTermContexts {
			continue
		}
		contexts[term] = append(contexts[term], collapseSpace(c.Text))
	}
	out := []model.KeyTerm{}
	for _, term := range pattern.KeyTermNames {
		if cs := contexts[term]; len(cs) > 0 {
			out = append(out, model.KeyTerm{Term: term, Contexts: cs})
		}
	}
	return out
}

// termOf names the key term a chunk is about. With an annotator the
// classifier label decides; without one the term must appear verbatim.
func (x *InsightExtractor) termOf(ctx context.Context, chunk string) string {
	if !x.evidence.Enabled() {
		lower := strings.ToLower(chunk)
		for _, term := range pattern.KeyTermNames {
			if strings.Contains(lower, term) {
				return term
			}
		}
		return ""
	}
	res, ok := x.evidence.Classify(ctx, chunk)
	if !ok || res.Confidence <= keyTermThreshold {
		return ""
	}
	label := strings.ToLower(res.Label)
	for _, term := range pattern.KeyTermNames {
		if strings.Contains(label, term) {
			return term
		}
		for _, word := range strings.Fields(term) {
			if strings.Contains(label, word) {
				return term
			}
		}
	}
	return ""
}

func entityGroups(text string, entities []annotation.Entity) []model.EntityGroup {
	byType := make(map[string][]string)
	seen := make(map[string]bool)
	add := func(typ, s string) {
		s = collapseSpace(s)
		key := typ + "\x00" + s
		if s == "" || seen[key] {
			return
		}
		seen[key] = true
		byType[typ] = append(byType[typ], s)
	}
	if len(entities) > 0 {
		for _, e := range entities {
			add(e.Type, e.Text)
		}
	} else {
		scan := truncate(text, patternMentionScanLen)
		for _, n := range nounPhraseOrgs(scan) {
			add(annotation.TypeOrg, n)
		}
		for _, re := range pattern.DatePatterns {
			for _, d := range re.FindAllString(scan, -1) {
				add(annotation.TypeDate, d)
			}
		}
		for _, m := range pattern.MoneyPattern.FindAllString(scan, -1) {
			add(annotation.TypeMoney, m)
		}
	}
	out := []model.EntityGroup{}
	for _, typ := range EntityGroupTypes {
		if texts := byType[typ]; len(texts) > 0 {
			out = append(out, model.EntityGroup{Type: typ, Texts: texts})
		}
	}
	return out
}
