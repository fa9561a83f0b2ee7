package pattern

import (
	"regexp"
	"strings"
)

const months = `January|February|March|April|May|June|July|August|September|October|November|December`

// ArticleRules recognize top-level headers. Group 1 is the number, group 2
// the title.
var ArticleRules = Cascade{
	rule("article-roman", `(?m)^[ \t]*(?:ARTICLE|Article)[ \t]+([IVXLCivxlc]+)[ \t]*[-–—.:][ \t]*(.*?)[ \t]*$`),
	rule("article-arabic", `(?m)^[ \t]*(?:ARTICLE|Article)[ \t]+(\d+)[ \t]*[-–—.:][ \t]*(.*?)[ \t]*$`),
	rule("section-heading", `(?m)^[ \t]*(?:SECTION|Section)[ \t]+(\d+)[.:](?:[ \t]+(.*?))?[ \t]*$`),
	rule("numbered-heading", `(?m)^[ \t]*(\d+)\.[ \t]+([A-Z][A-Za-z&'-]*(?:[ \t]+[A-Za-z&'-]+){0,5})[ \t]*$`),
}

// SectionRules recognize subdivisions inside an article span. Group 1 is the
// number, group 2 the rest of the header line.
var SectionRules = Cascade{
	rule("numbered", `(?m)^[ \t]*(\d+\.\d+)\.?[ \t]+(.*?)[ \t]*$`),
	rule("numbered-deep", `(?m)^[ \t]*(\d+\.\d+\.\d+)\.?[ \t]+(.*?)[ \t]*$`),
	rule("numbered-lettered", `(?m)^[ \t]*(\d+\.\d+[a-z])[.)]?[ \t]+(.*?)[ \t]*$`),
	rule("lettered", `(?m)^[ \t]*([A-Za-z])\.[ \t]+(.*?)[ \t]*$`),
	rule("parenthetical", `(?m)^[ \t]*\(([a-z])\)[ \t]+(.*?)[ \t]*$`),
	rule("close-paren", `(?m)^[ \t]*([a-z]\))[ \t]+(.*?)[ \t]*$`),
}

// SectionSentenceCue matches annotation sentences shaped like a section
// header.
var SectionSentenceCue = regexp.MustCompile(`^(\d+\.\d+|[a-z]\))\s+([A-Z].*)$`)

// TitleRules locate a document title on the first page. Group 1 is the title.
var TitleRules = Cascade{
	rule("agreement-line", `(?i)(.*?(?:AGREEMENT|CONTRACT))`),
	rule("before-between", `(?m)^[ \t]*(\S.*?)[ \t]*\n\s*(?:BETWEEN|Between|between)\b`),
	rule("caps-line", `(?m)^([A-Z][A-Z \t]+(?:[ \t]*[-–—][ \t]*[A-Z][A-Z \t]+)?)$`),
}

// MaxTitleWords bounds titles found by TitleRules.
const MaxTitleWords = 15

// EffectiveDateRules are the explicit effective-date statements. Group 1 is
// the date.
var EffectiveDateRules = Cascade{
	rule("effective-date-literal", `Effective\s+Date:\s*([A-Za-z]+\s+\d{1,2},\s*\d{4})`),
	rule("effective-as-of", `(?i)effective\s+(?:as\s+of\s+)?(?:date\s*)?[:;]?\s*((?:`+months+`)\s+\d{1,2}(?:st|nd|rd|th)?[\s,]+\d{4}|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4})`),
}

// MonthDayYear is the generic "Month DD, YYYY" date shape.
var MonthDayYear = regexp.MustCompile(`\b((?:` + months + `)\s+\d{1,2},\s*\d{4})\b`)

// ExecutionDate finds when the agreement was executed. Group 1 is the date.
var ExecutionDate = regexp.MustCompile(`(?i)\b(?:executed|signed|dated)(?:\s+(?:on|as\s+of))?\s*[:;,]?\s*((?:` + months + `)\s+\d{1,2}(?:st|nd|rd|th)?[\s,]+\d{4}|\d{1,2}[/.-]\d{1,2}[/.-]\d{2,4})`)

// DatePatterns are the date shapes searched for as candidate dates.
var DatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(?:` + months + `)\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)\s+day\s+of\s+(?:` + months + `),?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)?\s+(?:` + months + `),?\s+\d{4}\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}[/.]\d{1,2}[/.]\d{2,4}\b`),
}

// DateContexts are phrases that introduce the effective date, in priority
// order.
var DateContexts = []string{
	"effective date",
	"dated as of",
	"agreement date",
	"executed on",
	"entered into on",
}

// DateContextWindow is how far after a context phrase a date may start.
const DateContextWindow = 100

// MoneyPattern matches currency amounts.
var MoneyPattern = regexp.MustCompile(`(?:[$€£]\s?\d[\d,]*(?:\.\d{1,2})?(?:\s?(?:million|billion|thousand))?|\b\d[\d,]*(?:\.\d{1,2})?\s?(?:USD|EUR|GBP|dollars|euros)\b)`)

// DocType associates a document type with indicative keywords.
type DocType struct {
	Name     string
	Keywords []string
}

// DocTypes is ordered; ties in keyword scoring go to the earlier entry.
var DocTypes = []DocType{
	{Name: "Non-Disclosure Agreement", Keywords: []string{"confidential", "disclose", "NDA", "non-disclosure"}},
	{Name: "Employment Contract", Keywords: []string{"employ", "salary", "position", "hire", "job", "work"}},
	{Name: "Lease Agreement", Keywords: []string{"lease", "rent", "landlord", "tenant", "property"}},
	{Name: "License Agreement", Keywords: []string{"license", "royalty", "intellectual property", "patent"}},
	{Name: "Services Agreement", Keywords: []string{"service", "perform", "deliverable"}},
	{Name: "Purchase Agreement", Keywords: []string{"purchase", "buy", "acquire", "sale"}},
	{Name: "Merger Agreement", Keywords: []string{"merger", "acquire", "acquisition", "combine"}},
}

// KeywordPattern matches keyword at the start of a word, case-insensitively.
func KeywordPattern(keyword string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword))
}

// ClassifierLabels maps raw classifier labels to document types.
var ClassifierLabels = map[string]string{
	"LABEL_0": "Contract Agreement",
	"LABEL_1": "License",
	"LABEL_2": "Service",
	"LABEL_3": "Employment",
	"LABEL_4": "Non-Disclosure",
	"LABEL_5": "Sales",
	"LABEL_6": "Lease",
	"LABEL_7": "Financial Agreement",
}

// ClassifierThreshold is the confidence above which the classifier's
// document type is trusted.
const ClassifierThreshold = 0.7

// OrgType maps a legal-form suffix to a party type.
type OrgType struct {
	Re   *regexp.Regexp
	Type string
}

// OrgTypes is ordered; the first matching suffix decides the type.
var OrgTypes = []OrgType{
	{regexp.MustCompile(`\b(?:Inc|Incorporated|Corporation|Corp)\b`), "Corporation"},
	{regexp.MustCompile(`\bL\.?L\.?C\b`), "Limited Liability Company"},
	{regexp.MustCompile(`\b(?:Ltd|Limited)\b`), "Limited Company"},
	{regexp.MustCompile(`\bB\.V\.`), "Dutch Private Limited Company"},
	{regexp.MustCompile(`\bGmbH\b`), "German Limited Liability Company"},
	{regexp.MustCompile(`\bS\.A\.`), "Anonymous Society"},
	{regexp.MustCompile(`\bLLP\b`), "Limited Liability Partnership"},
	{regexp.MustCompile(`\bAG\b`), "German Public Company"},
	{regexp.MustCompile(`\bApS\b`), "Danish Private Limited Company"},
	{regexp.MustCompile(`\bOYJ?\b`), "Finnish Company"},
	{regexp.MustCompile(`\b(?:PLC|P\.L\.C\.)`), "Public Limited Company"},
}

// ClassifyOrg returns the party type implied by name's legal suffix.
func ClassifyOrg(name string) string {
	for _, o := range OrgTypes {
		if o.Re.MatchString(name) {
			return o.Type
		}
	}
	return "Organization"
}

// LegalSuffix marks an organization name with a recognizable legal form.
var LegalSuffix = regexp.MustCompile(`(?:\b(?:Inc|LLC|Ltd|Limited|Corp|Corporation|GmbH)\b|\bB\.V\.)`)

// OrgWords mark an organization name without a legal suffix.
var OrgWords = regexp.MustCompile(`(?i)\b(?:company|corporation|technologies|systems)\b`)

// orgSuffix lists capitalized legal-entity words; lower-case forms such as
// "a Delaware corporation" describe a party rather than name one.
const orgSuffix = `(?:Inc|INC|Ltd|LTD|Corp|CORP)\.|(?:L\.L\.C|B\.V)\.|` +
	`(?:Inc|INC|Incorporated|INCORPORATED|LLC|Ltd|LTD|Limited|LIMITED|Corp|CORP|Corporation|CORPORATION|` +
	`Company|COMPANY|Technologies|TECHNOLOGIES|Systems|SYSTEMS|Associates|ASSOCIATES|Partners|PARTNERS|GmbH|GMBH|LLP|PLC)\b`

// OrgNamePatterns find organization-like noun phrases in free text.
var OrgNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b((?:[A-Z][A-Za-z0-9&'.-]*,?[ \t]+){1,6}(?:` + orgSuffix + `))`),
	regexp.MustCompile(`\b((?:[A-Z][A-Za-z0-9&'.-]*[ \t]+){1,6}(?:S\.A\.|(?:AG|ApS|OYJ?)\b))`),
}

// LeadingNoise is stripped from the front of candidate names.
var LeadingNoise = regexp.MustCompile(`(?i)^(?:between|among|and|by|with|for|the|this)\s+`)

// PartyStopWords disqualify a candidate party name.
var PartyStopWords = []string{
	"article",
	"section",
	"agreement",
	"contract",
	"date",
	"herein",
	"hereof",
	"hereto",
	"hereinafter",
	"effective date",
}

var stopWordRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join(PartyStopWords, "|") + `)\b`)

// IsStopListed reports whether name contains a stop word.
func IsStopListed(name string) bool {
	return stopWordRe.MatchString(name)
}

// MinPartyNameLen is the minimum length of an accepted party name.
const MinPartyNameLen = 6

// MaxMetadataParties caps the parties recorded on metadata.
const MaxMetadataParties = 5

// BetweenClause splits "Between X and Y" into its two halves.
var BetweenClause = regexp.MustCompile(`(?is)\bBetween\s+(.+?)\s+and\s+(.+?)(?:\s+(?:Effective\s+Date|WITNESSETH|WHEREAS|NOW,\s+THEREFORE)|\n\s*\n|$)`)

// SignatureRules recognize signature blocks. Groups are company, person and
// title.
var SignatureRules = Cascade{
	rule("labelled", `(?i)(?:For|By):[ \t]*([A-Za-z0-9][A-Za-z0-9 ,.&'-]*?)[\s_-]*(?:By:[ \t_-]*\s*)?(?:Name|Signature):[ \t]*([A-Za-z][A-Za-z .'-]*?)\s*(?:Title|Position):[ \t]*([A-Za-z][A-Za-z .,&'-]*)`),
	rule("block", `(?m)^[ \t]*([A-Za-z0-9][A-Za-z0-9 ,.&'-]*?)[ \t]*\n\s*By:[ \t_/s-]*\n[ \t]*Name:[ \t]*([A-Za-z][A-Za-z .'-]*?)[ \t]*\n[ \t]*Title:[ \t]*([A-Za-z][A-Za-z .,&'-]*?)[ \t]*$`),
}

// ProximityWindow is the maximum token distance between a person and the
// organization they sign for.
const ProximityWindow = 50

// ImportantProvisionKeywords mark an article as a key provision.
var ImportantProvisionKeywords = []string{
	"scope", "purpose", "term", "payment", "confidential", "intellectual property",
	"termination", "governing law", "indemnification", "warranty", "liability",
	"obligations", "representations", "warranties", "compliance", "assignment",
}

// KeyTermNames are the legal terms matched against classifier labels.
var KeyTermNames = []string{
	"effective date",
	"termination",
	"confidentiality",
	"intellectual property",
	"payment terms",
	"dispute resolution",
	"governing law",
	"force majeure",
	"indemnification",
	"limitation of liability",
	"warranty",
}

// TitleKeywords score lines as title candidates in plain text.
var TitleKeywords = []string{"AGREEMENT", "CONTRACT", "LICENSE", "LEASE"}

var romanToNumber = map[string]string{
	"I": "1", "II": "2", "III": "3", "IV": "4", "V": "5",
	"VI": "6", "VII": "7", "VIII": "8", "IX": "9", "X": "10",
	"XI": "11", "XII": "12", "XIII": "13", "XIV": "14", "XV": "15",
	"XVI": "16", "XVII": "17", "XVIII": "18", "XIX": "19", "XX": "20",
}

// RomanToNumber converts I through XX to decimal. Other numerals, and
// non-numerals, are returned unchanged.
func RomanToNumber(s string) string {
	if n, ok := romanToNumber[strings.ToUpper(s)]; ok {
		return n
	}
	return s
}
