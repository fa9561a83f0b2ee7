package extract

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/AnTengye/contractgraph/pattern"
)

var quoteReplacer = strings.NewReplacer(
	"‘", "'", "’", "'",
	"“", `"`, "”", `"`,
)

// NormalizeName canonicalizes a candidate party or person name: NFKC,
// straight quotes, single spaces, no leading conjunctions and no dangling
// punctuation.
func NormalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = quoteReplacer.Replace(s)
	s = strings.Join(strings.Fields(s), " ")
	for {
		trimmed := pattern.LeadingNoise.ReplaceAllString(s, "")
		if trimmed == s {
			break
		}
		s = trimmed
	}
	return strings.Trim(s, ` ,;:"'()_-`)
}

// acceptName reports whether a normalized candidate can name a party.
func acceptName(name string) bool {
	return len(name) >= pattern.MinPartyNameLen && !pattern.IsStopListed(name)
}

// DedupeNames removes names contained in a longer name. The surviving name
// takes the position of the first name it absorbed. Comparison ignores
// case; exact repeats keep their first spelling.
func DedupeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		ln := strings.ToLower(n)
		absorbed := false
		for _, kept := range out {
			if strings.Contains(strings.ToLower(kept), ln) {
				absorbed = true
				break
			}
		}
		if absorbed {
			continue
		}

		pos := -1
		next := out[:0:0]
		for _, kept := range out {
			if strings.Contains(ln, strings.ToLower(kept)) {
				if pos < 0 {
					pos = len(next)
					next = append(next, n)
				}
				continue
			}
			next = append(next, kept)
		}
		if pos < 0 {
			next = append(next, n)
		}
		out = next
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// isAllUpper reports whether s has letters and none of them are lower case.
func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
