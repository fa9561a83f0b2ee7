package extract

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/AnTengye/contractgraph/annotation"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pattern"
)

// Synthetic article used when a document has no recognizable headers.
const (
	wholeDocumentNumber = "1"
	wholeDocumentTitle  = "CONTRACT TEXT"
)

// maxSyntheticHeaderWords bounds upper-case sentences promoted to article
// headers.
const maxSyntheticHeaderWords = 8

// Segmenter splits contract text into articles and sections.
type Segmenter struct {
	evidence *annotation.Evidence
	logger   *slog.Logger
}

// NewSegmenter returns a Segmenter. A nil or disabled evidence source limits
// it to pattern matching.
func NewSegmenter(ev *annotation.Evidence, logger *slog.Logger) *Segmenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{evidence: ev, logger: logger}
}

type articleHeader struct {
	number    string
	numericID string
	title     string
	line      string // header text as it appears in the document
	whole     bool
	// counted headers are numbered by discovery order, so their number
	// does not appear in the text.
	counted bool
}

// Segment returns the article tree of text. It never returns an empty slice.
func (s *Segmenter) Segment(ctx context.Context, text string) []model.Article {
	headers := s.patternHeaders(text)
	source := "patterns"
	if len(headers) == 0 {
		headers = s.sentenceHeaders(ctx, text)
		source = "sentences"
	}
	if len(headers) == 0 {
		headers = []articleHeader{{
			number:    wholeDocumentNumber,
			numericID: wholeDocumentNumber,
			title:     wholeDocumentTitle,
			whole:     true,
		}}
		source = "whole-document"
	}
	sortHeaders(headers)

	articles := make([]model.Article, 0, len(headers))
	prevStart := -1
	for i, h := range headers {
		start, end := s.span(text, headers, i, prevStart)
		prevStart = start

		a := model.Article{
			Number:    h.number,
			NumericID: h.numericID,
			Title:     h.title,
			Sections:  []model.Section{},
		}
		if start >= 0 && start < end {
			body := text[start:end]
			if !h.whole {
				body = stripHeader(body, h)
			}
			a.Sections = s.sections(ctx, body)
			if len(a.Sections) == 0 {
				a.Content = strings.TrimSpace(body)
			}
		}
		articles = append(articles, a)
	}

	s.logger.Debug("segmenter.done", "source", source, "articles", len(articles))
	return articles
}

func (s *Segmenter) patternHeaders(text string) []articleHeader {
	matches := pattern.ArticleRules.FirstMatch(text)
	headers := make([]articleHeader, 0, len(matches))
	for _, m := range matches {
		number := strings.TrimSpace(m.Group(1))
		numericID := number
		if m.Rule == "article-roman" {
			numericID = pattern.RomanToNumber(number)
		}
		headers = append(headers, articleHeader{
			number:    number,
			numericID: numericID,
			title:     collapseSpace(m.Group(2)),
			line:      strings.TrimSpace(text[m.Start:m.End]),
		})
	}
	return headers
}

func (s *Segmenter) sentenceHeaders(ctx context.Context, text string) []articleHeader {
	var headers []articleHeader
	for _, sent := range s.evidence.Sentences(ctx, text) {
		t := collapseSpace(sent.Text)
		if !isAllUpper(t) || wordCount(t) >= maxSyntheticHeaderWords {
			continue
		}
		n := strconv.Itoa(len(headers) + 1)
		headers = append(headers, articleHeader{number: n, numericID: n, title: t, line: t, counted: true})
	}
	return headers
}

// sortHeaders orders headers by numeric id when every id is an integer and
// keeps discovery order otherwise.
func sortHeaders(headers []articleHeader) {
	ids := make([]int, len(headers))
	for i, h := range headers {
		n, err := strconv.Atoi(h.numericID)
		if err != nil {
			return
		}
		ids[i] = n
	}
	idx := make([]int, len(headers))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return ids[idx[a]] < ids[idx[b]] })
	sorted := make([]articleHeader, len(headers))
	for i, j := range idx {
		sorted[i] = headers[j]
	}
	copy(headers, sorted)
}

// span resolves the text range of headers[i]. The start is -1 when the
// article cannot be placed.
func (s *Segmenter) span(text string, headers []articleHeader, i, prevStart int) (int, int) {
	h := headers[i]
	if h.whole {
		return 0, len(text)
	}

	start := locateHeader(text, h)
	if start < 0 {
		switch {
		case i == 0:
			start = 0
		case prevStart >= 0:
			prev := headers[i-1]
			start = prevStart
			if prev.title != "" {
				if j := strings.Index(text[prevStart:], prev.title); j >= 0 {
					start = prevStart + j + len(prev.title)
				}
			}
		}
	}
	if start < 0 {
		return -1, -1
	}

	end := len(text)
	if i+1 < len(headers) {
		if j := locateHeader(text[start:], headers[i+1]); j > 0 {
			end = start + j
		}
	}
	return start, end
}

// locateHeader finds the first occurrence of h in text. It tries, in order,
// "ARTICLE n", "Article n", the header line and the bare title.
func locateHeader(text string, h articleHeader) int {
	if h.number != "" && !h.counted {
		for _, word := range []string{"ARTICLE", "Article"} {
			re := regexp.MustCompile(word + `\s+` + regexp.QuoteMeta(h.number) + `\b`)
			if loc := re.FindStringIndex(text); loc != nil {
				return loc[0]
			}
		}
	}
	for _, needle := range []string{h.line, h.title} {
		if needle == "" {
			continue
		}
		if j := strings.Index(text, needle); j >= 0 {
			return j
		}
	}
	return -1
}

// stripHeader drops the article's own header from the front of its span.
func stripHeader(body string, h articleHeader) string {
	for _, r := range pattern.ArticleRules {
		if loc := r.Re.FindStringIndex(body); loc != nil && strings.TrimSpace(body[:loc[0]]) == "" {
			return body[loc[1]:]
		}
	}
	trimmed := strings.TrimLeft(body, " \t\r\n")
	for _, prefix := range []string{h.line, h.title} {
		if prefix != "" && strings.HasPrefix(trimmed, prefix) {
			return trimmed[len(prefix):]
		}
	}
	return body
}

type sectionHeader struct {
	number string
	title  string
	start  int // header start in the article body
	end    int // content start in the article body
}

func (s *Segmenter) sections(ctx context.Context, body string) []model.Section {
	headers := patternSections(body)
	if len(headers) == 0 {
		headers = s.sentenceSections(ctx, body)
	}
	out := make([]model.Section, 0, len(headers))
	for i, h := range headers {
		end := len(body)
		if i+1 < len(headers) {
			end = headers[i+1].start
		}
		content := ""
		if h.end < end {
			content = strings.TrimSpace(body[h.end:end])
		}
		out = append(out, model.Section{Number: h.number, Title: h.title, Content: content})
	}
	return out
}

func patternSections(body string) []sectionHeader {
	matches := pattern.SectionRules.FirstMatch(body)
	headers := make([]sectionHeader, 0, len(matches))
	for _, m := range matches {
		h := sectionHeader{number: m.Group(1), title: m.Group(2), start: m.Start, end: m.End}
		if title, rest, ok := splitInlineHeading(h.title); ok {
			h.title = title
			h.end = m.Spans[2][0] + (len(m.Group(2)) - len(rest))
		}
		h.title = collapseSpace(h.title)
		headers = append(headers, h)
	}
	return headers
}

func (s *Segmenter) sentenceSections(ctx context.Context, body string) []sectionHeader {
	var headers []sectionHeader
	for _, sent := range s.evidence.Sentences(ctx, body) {
		m := pattern.SectionSentenceCue.FindStringSubmatch(strings.TrimSpace(sent.Text))
		if m == nil || sent.Start < 0 || sent.End > len(body) {
			continue
		}
		headers = append(headers, sectionHeader{
			number: m[1],
			title:  collapseSpace(m[2]),
			start:  sent.Start,
			end:    sent.End,
		})
	}
	return headers
}

// maxInlineHeadingWords bounds a heading that runs into its first sentence
// on the same line, as in "1.1 Term. The Term means ...".
const maxInlineHeadingWords = 8

func splitInlineHeading(line string) (title, rest string, ok bool) {
	i := strings.Index(line, ". ")
	if i <= 0 {
		return line, "", false
	}
	title = line[:i]
	if wordCount(title) > maxInlineHeadingWords {
		return line, "", false
	}
	return title, line[i+2:], true
}
