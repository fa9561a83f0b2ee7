package extract

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/AnTengye/contractgraph/annotation"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pattern"
)

// LanguageDetector identifies the language of a text sample and returns its
// ISO 639-1 code.
type LanguageDetector interface {
	Detect(text string) (string, bool)
}

const (
	docTypeSampleLen   = 1000
	languageSampleLen  = 2000
	titleSentenceCount = 5
	titleLineCount     = 15
	betweenHalfMaxLen  = 300
)

type docTypeMatcher struct {
	name     string
	keywords []*regexp.Regexp
}

var docTypeMatchers = func() []docTypeMatcher {
	out := make([]docTypeMatcher, 0, len(pattern.DocTypes))
	for _, dt := range pattern.DocTypes {
		m := docTypeMatcher{name: dt.Name}
		for _, kw := range dt.Keywords {
			m.keywords = append(m.keywords, pattern.KeywordPattern(kw))
		}
		out = append(out, m)
	}
	return out
}()

var (
	titleKeywordRe     = regexp.MustCompile(`(?i)\b(?:AGREEMENT|CONTRACT)\b`)
	titleLineKeywordRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(pattern.TitleKeywords, "|") + `)\b`)
	typedAgreementRe   = regexp.MustCompile(`(?i)^[A-Za-z-]+(?:\s+[A-Za-z-]+){0,4}\s+agreement$`)
	searchPunct        = strings.NewReplacer(".", " ", ":", " ", ",", " ", ";", " ")
)

// MetadataResolver derives title, dates, document type and parties from the
// first page of a contract.
type MetadataResolver struct {
	evidence *annotation.Evidence
	language LanguageDetector
	logger   *slog.Logger
}

// NewMetadataResolver returns a resolver. With a disabled evidence source it
// runs the text-only strategies. lang may be nil.
func NewMetadataResolver(ev *annotation.Evidence, lang LanguageDetector, logger *slog.Logger) *MetadataResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MetadataResolver{evidence: ev, language: lang, logger: logger}
}

// ResolveMetadata resolves metadata from firstPage. Each field is taken from
// the first strategy that produces a value.
func (r *MetadataResolver) ResolveMetadata(ctx context.Context, firstPage string) model.ContractMetadata {
	md := model.NewContractMetadata()
	if strings.TrimSpace(firstPage) == "" {
		return md
	}

	entities := r.evidence.Entities(ctx, firstPage)
	var dates, orgs []annotation.Entity
	for _, e := range entities {
		switch e.Type {
		case annotation.TypeDate:
			dates = append(dates, e)
		case annotation.TypeOrg:
			orgs = append(orgs, e)
		}
	}

	md.DocumentType = r.documentType(ctx, firstPage)
	setOnce(&md.EffectiveDate, effectiveDate(firstPage, dates))
	setOnce(&md.ExecutionDate, executionDate(firstPage))
	setOnce(&md.Title, r.title(ctx, firstPage))
	if r.language != nil {
		if code, ok := r.language.Detect(truncate(firstPage, languageSampleLen)); ok {
			setOnce(&md.Language, code)
		}
	}
	md.Parties = metadataParties(firstPage, orgs)

	r.logger.Debug("metadata.resolved",
		"title", md.Title,
		"effective_date", md.EffectiveDate,
		"document_type", md.DocumentType,
		"parties", len(md.Parties),
	)
	return md
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = strings.TrimSpace(v)
	}
}

func (r *MetadataResolver) documentType(ctx context.Context, text string) string {
	if c, ok := r.evidence.Classify(ctx, truncate(text, docTypeSampleLen)); ok && c.Confidence > pattern.ClassifierThreshold {
		if name, known := pattern.ClassifierLabels[c.Label]; known {
			return name
		}
		if c.Label != "" {
			return c.Label
		}
	}
	return ScoreDocumentType(text)
}

// ScoreDocumentType counts keyword hits per document type. The highest score
// wins, ties go to the type declared first and no hits yield the default.
func ScoreDocumentType(text string) string {
	best, bestScore := model.DefaultDocumentType, 0
	for _, m := range docTypeMatchers {
		score := 0
		for _, kw := range m.keywords {
			score += len(kw.FindAllStringIndex(text, -1))
		}
		if score > bestScore {
			best, bestScore = m.name, score
		}
	}
	return best
}

func effectiveDate(text string, dates []annotation.Entity) string {
	if m, ok := pattern.EffectiveDateRules.FirstSingle(text); ok {
		return m.Group(1)
	}
	if d := dateNearContext(text, dateCandidates(text, dates)); d != "" {
		return d
	}
	if m := pattern.MonthDayYear.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if len(dates) > 0 {
		return dates[0].Text
	}
	return ""
}

func executionDate(text string) string {
	if m := pattern.ExecutionDate.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

type dateMention struct {
	text  string
	start int
}

// dateCandidates merges annotated dates with pattern matches, ordered by
// position and without repeats.
func dateCandidates(text string, dates []annotation.Entity) []string {
	var mentions []dateMention
	for _, d := range dates {
		mentions = append(mentions, dateMention{text: d.Text, start: d.Start})
	}
	for _, re := range pattern.DatePatterns {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			mentions = append(mentions, dateMention{text: text[loc[0]:loc[1]], start: loc[0]})
		}
	}
	sort.SliceStable(mentions, func(i, j int) bool { return mentions[i].start < mentions[j].start })

	seen := make(map[string]bool, len(mentions))
	out := make([]string, 0, len(mentions))
	for _, m := range mentions {
		if m.text == "" || seen[m.text] {
			continue
		}
		seen[m.text] = true
		out = append(out, m.text)
	}
	return out
}

// dateNearContext returns the candidate closest after the first date context
// phrase that has one within DateContextWindow.
func dateNearContext(text string, candidates []string) string {
	normalized := normalizeForSearch(text)
	for _, phrase := range pattern.DateContexts {
		at := strings.Index(normalized, phrase)
		if at < 0 {
			continue
		}
		best, bestDist := "", pattern.DateContextWindow+1
		for _, c := range candidates {
			nc := normalizeForSearch(c)
			j := strings.Index(normalized[at+1:], nc)
			if j < 0 {
				continue
			}
			dist := j + 1
			if dist <= pattern.DateContextWindow && dist < bestDist {
				best, bestDist = c, dist
			}
		}
		if best != "" {
			return best
		}
	}
	return ""
}

func normalizeForSearch(s string) string {
	return searchPunct.Replace(strings.ToLower(s))
}

func (r *MetadataResolver) title(ctx context.Context, text string) string {
	if r.evidence.Enabled() {
		if t := r.sentenceTitle(ctx, text); t != "" {
			return t
		}
	} else if t := scoredTitleLine(text); t != "" {
		return t
	}
	for _, rule := range pattern.TitleRules {
		m, ok := rule.Find(text)
		if !ok {
			continue
		}
		t := collapseSpace(m.Group(1))
		if t != "" && wordCount(t) <= pattern.MaxTitleWords {
			return t
		}
	}
	if !r.evidence.Enabled() {
		return firstLine(text)
	}
	return ""
}

func (r *MetadataResolver) sentenceTitle(ctx context.Context, text string) string {
	sentences := r.evidence.Sentences(ctx, text)
	if len(sentences) > titleSentenceCount {
		sentences = sentences[:titleSentenceCount]
	}
	var candidates []string
	for _, s := range sentences {
		for _, line := range strings.Split(s.Text, "\n") {
			line = collapseSpace(line)
			if line == "" {
				continue
			}
			words := wordCount(line)
			if (isAllUpper(line) && words >= 3 && words <= pattern.MaxTitleWords) || titleKeywordRe.MatchString(line) {
				candidates = append(candidates, line)
			}
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	for _, c := range candidates {
		if titleKeywordRe.MatchString(c) && wordCount(c) < pattern.MaxTitleWords {
			return c
		}
	}
	return candidates[0]
}

// scoredTitleLine picks the most title-like of the first lines of text.
func scoredTitleLine(text string) string {
	best, bestScore := "", 0
	for _, line := range leadingLines(text, titleLineCount) {
		if s := titleLineScore(line); s > bestScore {
			best, bestScore = line, s
		}
	}
	return best
}

func titleLineScore(line string) int {
	words := wordCount(line)
	keyword := titleLineKeywordRe.MatchString(line)
	switch {
	case isAllUpper(line) && words >= 2 && words <= pattern.MaxTitleWords:
		if keyword {
			return 10
		}
		return 5
	case typedAgreementRe.MatchString(line):
		return 9
	case keyword && words <= 10:
		return 8
	}
	return 0
}

func leadingLines(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = collapseSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

func firstLine(text string) string {
	if lines := leadingLines(text, 1); len(lines) > 0 {
		return lines[0]
	}
	return ""
}

func metadataParties(text string, orgs []annotation.Entity) []model.Party {
	var names []string
	for _, e := range orgs {
		n := NormalizeName(e.Text)
		if isOrgEntityName(n) && acceptName(n) {
			names = append(names, n)
		}
	}
	names = DedupeNames(names)
	if len(names) == 0 {
		names = betweenParties(text, orgs)
	}
	if len(names) > pattern.MaxMetadataParties {
		names = names[:pattern.MaxMetadataParties]
	}
	parties := make([]model.Party, 0, len(names))
	for _, n := range names {
		parties = append(parties, model.NewParty(n, pattern.ClassifyOrg(n)))
	}
	return parties
}

// isOrgEntityName filters annotated organizations down to names that look
// like a contracting entity.
func isOrgEntityName(name string) bool {
	return wordCount(name) > 1 && (pattern.LegalSuffix.MatchString(name) || pattern.OrgWords.MatchString(name))
}

// betweenParties splits a "Between X and Y" clause and extracts an
// organization name from each half.
func betweenParties(text string, orgs []annotation.Entity) []string {
	loc := pattern.BetweenClause.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	var names []string
	for g := 1; g <= 2; g++ {
		start, end := loc[2*g], loc[2*g+1]
		if start < 0 {
			continue
		}
		if end-start > betweenHalfMaxLen {
			end = start + len(truncate(text[start:], betweenHalfMaxLen))
		}
		names = append(names, halfNames(text[start:end], start, orgs)...)
	}
	return DedupeNames(names)
}

func halfNames(half string, offset int, orgs []annotation.Entity) []string {
	var names []string
	for _, e := range orgs {
		if e.Start >= offset && e.End <= offset+len(half) {
			if n := NormalizeName(e.Text); acceptName(n) {
				names = append(names, n)
			}
		}
	}
	for _, re := range pattern.OrgNamePatterns {
		for _, m := range re.FindAllStringSubmatch(half, -1) {
			if n := NormalizeName(m[1]); acceptName(n) && wordCount(n) > 1 {
				names = append(names, n)
			}
		}
	}
	if len(names) > 0 {
		return names
	}
	raw := NormalizeName(cutAtAny(firstLine(half), ",(\""))
	if wordCount(raw) > 1 && acceptName(raw) {
		return []string{raw}
	}
	return nil
}

func cutAtAny(s, chars string) string {
	if i := strings.IndexAny(s, chars); i >= 0 {
		return s[:i]
	}
	return s
}
