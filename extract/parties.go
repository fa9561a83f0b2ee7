package extract

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/AnTengye/contractgraph/annotation"
	"github.com/AnTengye/contractgraph/model"
	"github.com/AnTengye/contractgraph/pattern"
)

// PartyResolver finds the contracting parties and the people who sign for
// them.
type PartyResolver struct {
	evidence *annotation.Evidence
	logger   *slog.Logger
}

func NewPartyResolver(ev *annotation.Evidence, logger *slog.Logger) *PartyResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &PartyResolver{evidence: ev, logger: logger}
}

// ResolveParties identifies parties in firstPages and attaches signatories
// found in lastPages. No returned name is a substring of another.
func (r *PartyResolver) ResolveParties(ctx context.Context, firstPages, lastPages string) []model.Party {
	orgs := r.evidence.EntitiesOfType(ctx, firstPages, annotation.TypeOrg)

	var names []string
	for _, e := range orgs {
		n := NormalizeName(e.Text)
		if isOrgEntityName(n) {
			names = append(names, n)
		}
	}
	names = append(names, betweenParties(firstPages, orgs)...)
	names = append(names, nounPhraseOrgs(truncate(firstPages, r.evidence.Options().EntityLimit))...)

	accepted := names[:0:0]
	for _, n := range names {
		if acceptName(n) {
			accepted = append(accepted, n)
		}
	}
	accepted = orderByFirstMention(DedupeNames(accepted), firstPages)

	parties := make([]model.Party, 0, len(accepted))
	for _, n := range accepted {
		parties = append(parties, model.NewParty(n, pattern.ClassifyOrg(n)))
	}
	r.attachSignatories(ctx, parties, lastPages)

	r.logger.Debug("parties.resolved", "parties", len(parties), "signatories", countSignatories(parties))
	return parties
}

// orderByFirstMention sorts names by where they first occur in text, so
// parties come out in the order the document introduces them whichever
// strategy found them. Names that cannot be located keep their relative
// order after the located ones.
func orderByFirstMention(names []string, text string) []string {
	haystack := strings.ToLower(collapseSpace(quoteReplacer.Replace(norm.NFKC.String(text))))
	offset := make(map[string]int, len(names))
	for _, n := range names {
		i := strings.Index(haystack, strings.ToLower(n))
		if i < 0 {
			i = len(haystack)
		}
		offset[n] = i
	}
	sort.SliceStable(names, func(i, j int) bool {
		return offset[names[i]] < offset[names[j]]
	})
	return names
}

func nounPhraseOrgs(text string) []string {
	var names []string
	for _, re := range pattern.OrgNamePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			if n := NormalizeName(m[1]); wordCount(n) > 1 {
				names = append(names, n)
			}
		}
	}
	return names
}

func (r *PartyResolver) attachSignatories(ctx context.Context, parties []model.Party, text string) {
	if len(parties) == 0 || strings.TrimSpace(text) == "" {
		return
	}

	for _, m := range pattern.SignatureRules.FirstMatch(text) {
		person := NormalizeName(m.Group(2))
		if person == "" {
			continue
		}
		if i := matchParty(parties, NormalizeName(m.Group(1))); i >= 0 {
			parties[i].AddSignatory(model.NewSignatory(person, NormalizeName(m.Group(3))))
		}
	}
	if countSignatories(parties) > 0 {
		return
	}

	var people, orgs []annotation.Entity
	for _, e := range r.evidence.Entities(ctx, text) {
		switch e.Type {
		case annotation.TypePerson:
			people = append(people, e)
		case annotation.TypeOrg:
			orgs = append(orgs, e)
		}
	}
	if len(people) == 0 {
		return
	}

	tokens := tokenStarts(text)
	for _, p := range people {
		org, ok := nearestOrg(tokens, p, orgs)
		if !ok {
			continue
		}
		if i := matchParty(parties, NormalizeName(org.Text)); i >= 0 {
			parties[i].AddSignatory(model.NewSignatory(NormalizeName(p.Text), ""))
		}
	}
	if countSignatories(parties) > 0 {
		return
	}

	names := distinctNames(people)
	for i := 0; i < len(names) && i < len(parties); i++ {
		parties[i].AddSignatory(model.NewSignatory(names[i], ""))
	}
}

// matchParty returns the index of the party whose name equals or overlaps
// name by substring in either direction, preferring an exact match.
func matchParty(parties []model.Party, name string) int {
	if name == "" {
		return -1
	}
	for i := range parties {
		if strings.EqualFold(parties[i].Name, name) {
			return i
		}
	}
	for i := range parties {
		if containsFold(parties[i].Name, name) || containsFold(name, parties[i].Name) {
			return i
		}
	}
	return -1
}

// tokenStarts returns the byte offset of every whitespace-separated token.
func tokenStarts(text string) []int {
	var starts []int
	inToken := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inToken = false
			continue
		}
		if !inToken {
			starts = append(starts, i)
			inToken = true
		}
	}
	return starts
}

// tokenIndex returns the index of the token containing offset.
func tokenIndex(starts []int, offset int) int {
	i := sort.SearchInts(starts, offset+1) - 1
	if i < 0 {
		return 0
	}
	return i
}

func nearestOrg(tokens []int, person annotation.Entity, orgs []annotation.Entity) (annotation.Entity, bool) {
	pt := tokenIndex(tokens, person.Start)
	best, bestDist := annotation.Entity{}, pattern.ProximityWindow+1
	for _, o := range orgs {
		d := tokenIndex(tokens, o.Start) - pt
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			best, bestDist = o, d
		}
	}
	return best, bestDist <= pattern.ProximityWindow
}

func distinctNames(entities []annotation.Entity) []string {
	seen := make(map[string]bool, len(entities))
	var out []string
	for _, e := range entities {
		n := NormalizeName(e.Text)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

func countSignatories(parties []model.Party) int {
	n := 0
	for _, p := range parties {
		n += len(p.Signatories)
	}
	return n
}
