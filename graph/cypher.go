// Package graph converts resolved contracts into Cypher and moves them in
// and out of Neo4j.
package graph

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AnTengye/contractgraph/model"
)

// MaxValueLen is the longest string embedded in a statement. Longer values
// are cut and end in "...".
const MaxValueLen = 500

const ellipsis = "..."

var escaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// Quote renders s as a single-quoted Cypher string literal.
func Quote(s string) string {
	if utf8.RuneCountInString(s) > MaxValueLen {
		runes := []rune(s)
		s = string(runes[:MaxValueLen-len(ellipsis)]) + ellipsis
	}
	return "'" + escaper.Replace(s) + "'"
}

// Script is the Cypher that imports one contract. Statements run in order
// inside a single transaction.
type Script struct {
	DocumentID     string
	SourceDocument string
	Statements     []string
}

// prop is one node property; order is preserved in the output.
type prop struct {
	key   string
	value any
}

type builder struct {
	lines  []string
	source string
	docID  string
}

func (b *builder) node(variable, label string, props ...prop) {
	props = append(props, prop{"sourceDocument", b.source}, prop{"documentId", b.docID})
	parts := make([]string, 0, len(props))
	for _, p := range props {
		parts = append(parts, p.key+": "+literal(p.value))
	}
	b.lines = append(b.lines, fmt.Sprintf("CREATE (%s:%s {%s})", variable, label, strings.Join(parts, ", ")))
}

func (b *builder) rel(from, relType, to string) {
	b.lines = append(b.lines, fmt.Sprintf("CREATE (%s)-[:%s]->(%s)", from, relType, to))
}

func literal(v any) string {
	switch v := v.(type) {
	case int:
		return fmt.Sprint(v)
	case string:
		return Quote(v)
	default:
		return Quote(fmt.Sprint(v))
	}
}

// bullets joins values as a bulleted list.
func bullets(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return "• " + strings.Join(values, "\n• ")
}

// Build returns the import script for res. The first statement removes any
// nodes left by an earlier import of the same document.
func Build(res *model.ExtractionResult, importedAt time.Time) *Script {
	b := &builder{source: res.SourceDocument, docID: res.DocumentID}
	md := res.Metadata

	b.node("c", "Contract",
		prop{"title", md.Title},
		prop{"effectiveDate", md.EffectiveDate},
		prop{"executionDate", md.ExecutionDate},
		prop{"documentType", md.DocumentType},
		prop{"language", md.Language},
		prop{"provenance", string(res.Provenance)},
		prop{"importTimestamp", importedAt.UTC().Format(time.RFC3339)},
	)

	for i, p := range res.Parties {
		pv := fmt.Sprintf("p%d", i)
		b.node(pv, "Party", prop{"ordinal", i}, prop{"name", p.Name}, prop{"type", p.Type})
		b.rel(pv, "PARTY_TO", "c")
		for j, s := range p.Signatories {
			sv := fmt.Sprintf("sig%d_%d", i, j)
			b.node(sv, "Person", prop{"ordinal", j}, prop{"name", s.Name}, prop{"title", s.Title})
			b.rel(sv, "REPRESENTS", pv)
		}
	}

	for i, a := range res.Articles {
		av := fmt.Sprintf("a%d", i)
		b.node(av, "Article",
			prop{"ordinal", i},
			prop{"number", a.Number},
			prop{"numericId", a.NumericID},
			prop{"title", a.Title},
			prop{"content", a.Content},
		)
		b.rel("c", "CONTAINS", av)
		for j, s := range a.Sections {
			sv := fmt.Sprintf("sec%d_%d", i, j)
			b.node(sv, "Section", prop{"ordinal", j}, prop{"number", s.Number}, prop{"title", s.Title}, prop{"content", s.Content})
			b.rel(av, "HAS_SECTION", sv)
		}
	}

	ins := res.Insights
	for i, kp := range ins.KeyProvisions {
		v := fmt.Sprintf("kp%d", i)
		b.node(v, "KeyProvision", prop{"ordinal", i}, prop{"number", kp.ArticleNumber}, prop{"title", kp.Title}, prop{"summary", strings.Join(kp.Summary, "\n")})
		b.rel("c", "HAS_KEY_PROVISION", v)
	}
	for i, f := range ins.Financials {
		v := fmt.Sprintf("f%d", i)
		b.node(v, "Financial", prop{"ordinal", i}, prop{"amount", f.Amount}, prop{"context", f.Context})
		b.rel("c", "HAS_FINANCIAL", v)
	}
	for i, d := range ins.KeyDates {
		v := fmt.Sprintf("d%d", i)
		b.node(v, "Date", prop{"ordinal", i}, prop{"value", d.Date}, prop{"context", d.Context})
		b.rel("c", "HAS_DATE", v)
	}
	for i, t := range ins.KeyTerms {
		v := fmt.Sprintf("t%d", i)
		b.node(v, "Term", prop{"ordinal", i}, prop{"name", t.Term}, prop{"contexts", bullets(t.Contexts)})
		b.rel("c", "HAS_TERM", v)
	}
	for i, e := range ins.Entities {
		v := fmt.Sprintf("e%d", i)
		b.node(v, "Entity", prop{"ordinal", i}, prop{"type", e.Type}, prop{"values", bullets(e.Texts)})
		b.rel("c", "HAS_ENTITY", v)
	}

	return &Script{
		DocumentID:     res.DocumentID,
		SourceDocument: res.SourceDocument,
		Statements: []string{
			"MATCH (n {documentId: " + Quote(res.DocumentID) + "}) DETACH DELETE n",
			strings.Join(b.lines, "\n"),
		},
	}
}

// WriteTo writes the script in cypher-shell format.
func (s *Script) WriteTo(w io.Writer) (int64, error) {
	var sb strings.Builder
	sb.WriteString("// Contract graph import\n")
	fmt.Fprintf(&sb, "// Source: %s (%s)\n\n", s.SourceDocument, s.DocumentID)
	sb.WriteString(":begin\n\n")
	for _, stmt := range s.Statements {
		sb.WriteString(stmt)
		sb.WriteString(";\n\n")
	}
	sb.WriteString(":commit\n")
	n, err := io.WriteString(w, sb.String())
	return int64(n), err
}
