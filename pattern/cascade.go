// Package pattern holds the ordered rule sets used to recognize contract
// structure and metadata in plain text.
//
// Rule sets are data: their order is significant and is part of the
// behavior. For every concern the first rule that yields any match is used
// and later rules are not consulted.
package pattern

import (
	"regexp"
)

// Rule is a named regular expression.
type Rule struct {
	Name string
	Re   *regexp.Regexp
}

// Match is one regular expression match.
type Match struct {
	Rule   string
	Start  int
	End    int
	Groups []string
	// Spans holds [start, end) offsets per capture group, -1 when the group
	// did not participate.
	Spans [][2]int
}

// Group returns capture group i, or "" when absent.
func (m Match) Group(i int) string {
	if i < 0 || i >= len(m.Groups) {
		return ""
	}
	return m.Groups[i]
}

// Cascade is an ordered list of rules.
type Cascade []Rule

// FirstMatch returns every match of the first rule that matches text at all.
func (c Cascade) FirstMatch(text string) []Match {
	for _, r := range c {
		if ms := r.FindAll(text); len(ms) > 0 {
			return ms
		}
	}
	return nil
}

// FirstSingle returns the leftmost match of the first rule that matches.
func (c Cascade) FirstSingle(text string) (Match, bool) {
	for _, r := range c {
		if m, ok := r.Find(text); ok {
			return m, true
		}
	}
	return Match{}, false
}

// Find returns the leftmost match of r in text.
func (r Rule) Find(text string) (Match, bool) {
	loc := r.Re.FindStringSubmatchIndex(text)
	if loc == nil {
		return Match{}, false
	}
	return r.build(text, loc), true
}

// FindAll returns all non-overlapping matches of r in text.
func (r Rule) FindAll(text string) []Match {
	locs := r.Re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		out = append(out, r.build(text, loc))
	}
	return out
}

func (r Rule) build(text string, loc []int) Match {
	n := len(loc) / 2
	m := Match{
		Rule:   r.Name,
		Start:  loc[0],
		End:    loc[1],
		Groups: make([]string, n),
		Spans:  make([][2]int, n),
	}
	for i := 0; i < n; i++ {
		s, e := loc[2*i], loc[2*i+1]
		m.Spans[i] = [2]int{s, e}
		if s >= 0 {
			m.Groups[i] = text[s:e]
		}
	}
	return m
}

func rule(name, expr string) Rule {
	return Rule{Name: name, Re: regexp.MustCompile(expr)}
}
