package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRomanToNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"I", "1"},
		{"iv", "4"},
		{"XIV", "14"},
		{"XX", "20"},
		// Beyond the table the numeral is kept as written.
		{"XXI", "XXI"},
		{"XL", "XL"},
		{"7", "7"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, RomanToNumber(tt.in))
		})
	}
}

func TestArticleRulesFirstRuleWins(t *testing.T) {
	text := "ARTICLE I - DEFINITIONS\nSECTION 4. NOTICES\nARTICLE II - PAYMENT\n"

	ms := ArticleRules.FirstMatch(text)
	require.Len(t, ms, 2)
	assert.Equal(t, "article-roman", ms[0].Rule)
	assert.Equal(t, "I", ms[0].Group(1))
	assert.Equal(t, "DEFINITIONS", ms[0].Group(2))
	assert.Equal(t, "II", ms[1].Group(1))
	assert.Equal(t, "PAYMENT", ms[1].Group(2))
}

func TestArticleRulesFallThrough(t *testing.T) {
	ms := ArticleRules.FirstMatch("Preamble\n1. Definitions\nText\n2. Payment Terms\nMore")
	require.Len(t, ms, 2)
	assert.Equal(t, "numbered-heading", ms[0].Rule)
	assert.Equal(t, "Payment Terms", ms[1].Group(2))

	ms = ArticleRules.FirstMatch("SECTION 3. TERM\nbody")
	require.Len(t, ms, 1)
	assert.Equal(t, "section-heading", ms[0].Rule)
	assert.Equal(t, "3", ms[0].Group(1))
	assert.Equal(t, "TERM", ms[0].Group(2))
}

func TestSectionRules(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		rule   string
		number string
	}{
		{"numbered", "1.1 Term\nbody", "numbered", "1.1"},
		{"deep", "1.1.1 Term\nbody", "numbered-deep", "1.1.1"},
		{"lettered suffix", "2.1a Fees\nbody", "numbered-lettered", "2.1a"},
		{"lettered", "a. First\nbody", "lettered", "a"},
		{"parenthetical", "(b) Second\nbody", "parenthetical", "b"},
		{"close paren", "c) Third\nbody", "close-paren", "c)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := SectionRules.FirstMatch(tt.text)
			require.NotEmpty(t, ms)
			assert.Equal(t, tt.rule, ms[0].Rule)
			assert.Equal(t, tt.number, ms[0].Group(1))
		})
	}
}

func TestClassifyOrg(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Acme Inc.", "Corporation"},
		{"Widget Corporation", "Corporation"},
		{"Beta Holdings LLC", "Limited Liability Company"},
		{"Gamma Ltd.", "Limited Company"},
		{"Delta B.V.", "Dutch Private Limited Company"},
		{"Epsilon GmbH", "German Limited Liability Company"},
		{"Zeta Partners LLP", "Limited Liability Partnership"},
		{"Siemens AG", "German Public Company"},
		{"Nordic ApS", "Danish Private Limited Company"},
		{"Nokia Oyj", "Organization"},
		{"Nokia OYJ", "Finnish Company"},
		{"Barclays PLC", "Public Limited Company"},
		{"AGREEMENT HOLDERS", "Organization"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyOrg(tt.name))
		})
	}
}

func TestOrgNamePatterns(t *testing.T) {
	text := "This agreement is made between Acme Technologies Inc. and Beta Systems LLC, a Delaware corporation, and Acme Income Fund."
	var found []string
	for _, re := range OrgNamePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			found = append(found, m[1])
		}
	}
	assert.Contains(t, found, "Acme Technologies Inc.")
	assert.Contains(t, found, "Beta Systems LLC")
	for _, f := range found {
		assert.NotContains(t, f, "Income")
		assert.NotContains(t, f, "Delaware")
	}
}

func TestIsStopListed(t *testing.T) {
	assert.True(t, IsStopListed("This Agreement"))
	assert.True(t, IsStopListed("the Effective Date"))
	assert.False(t, IsStopListed("Update Systems Inc."))
	assert.False(t, IsStopListed("Acme Inc."))
}

func TestBetweenClause(t *testing.T) {
	m := BetweenClause.FindStringSubmatch("Between Acme Corp. and Beta LLC\nEffective Date: April 1, 2024")
	require.NotNil(t, m)
	assert.Equal(t, "Acme Corp.", m[1])
	assert.Equal(t, "Beta LLC", m[2])
}

func TestSignatureRules(t *testing.T) {
	text := "IN WITNESS WHEREOF\nFor: Acme Inc.\nName: John Smith\nTitle: Chief Executive Officer\n"
	ms := SignatureRules.FirstMatch(text)
	require.Len(t, ms, 1)
	assert.Equal(t, "Acme Inc.", ms[0].Group(1))
	assert.Equal(t, "John Smith", ms[0].Group(2))
	assert.Equal(t, "Chief Executive Officer", ms[0].Group(3))

	block := "BETA LLC\nBy: ________\nName: Jane Doe\nTitle: Manager\n"
	ms = SignatureRules.FirstMatch(block)
	require.Len(t, ms, 1)
	assert.Equal(t, "block", ms[0].Rule)
	assert.Equal(t, "BETA LLC", ms[0].Group(1))
	assert.Equal(t, "Jane Doe", ms[0].Group(2))
	assert.Equal(t, "Manager", ms[0].Group(3))
}

func TestKeywordPattern(t *testing.T) {
	re := KeywordPattern("employ")
	assert.True(t, re.MatchString("The Employee shall"))
	assert.False(t, re.MatchString("unemployed"))
	assert.False(t, KeywordPattern("NDA").MatchString("agenda"))
}
