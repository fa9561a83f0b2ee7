package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/AnTengye/contractgraph/model"
)

// ErrNotFound reports that no contract with the requested document id exists.
var ErrNotFound = errors.New("contract not found in graph")

const (
	contractQuery = `MATCH (c:Contract {documentId: $id}) RETURN c {.*} AS props LIMIT 1`

	partiesQuery = `MATCH (p:Party {documentId: $id})-[:PARTY_TO]->(:Contract {documentId: $id})
OPTIONAL MATCH (s:Person)-[:REPRESENTS]->(p)
WITH p, s ORDER BY s.ordinal
RETURN p {.*} AS props, collect(s {.*}) AS children, p.ordinal AS ordinal
ORDER BY ordinal`

	articlesQuery = `MATCH (:Contract {documentId: $id})-[:CONTAINS]->(a:Article)
OPTIONAL MATCH (a)-[:HAS_SECTION]->(s:Section)
WITH a, s ORDER BY s.ordinal
RETURN a {.*} AS props, collect(s {.*}) AS children, a.ordinal AS ordinal
ORDER BY ordinal`

	insightQuery = `MATCH (:Contract {documentId: $id})-[:%s]->(n:%s)
RETURN n {.*} AS props ORDER BY n.ordinal`
)

// Neo4jReader projects a stored contract graph back into an extraction
// result.
type Neo4jReader struct {
	client *Client
}

func (r *Neo4jReader) query(ctx context.Context, cypher, documentID string) ([]*neo4j.Record, error) {
	res, err := neo4j.ExecuteQuery(ctx, r.client.driver, cypher,
		map[string]any{"id": documentID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(r.client.database),
		neo4j.ExecuteQueryWithReadersRouting(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query neo4j: %w", err)
	}
	return res.Records, nil
}

// ReadContract loads the contract imported under documentID.
func (r *Neo4jReader) ReadContract(ctx context.Context, documentID string) (*model.ExtractionResult, error) {
	records, err := r.query(ctx, contractQuery, documentID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}
	res := contractFromProps(propsOf(records[0], "props"))
	res.DocumentID = documentID

	if records, err = r.query(ctx, partiesQuery, documentID); err != nil {
		return nil, err
	}
	res.Parties = partiesFromRecords(records)
	res.Metadata.Parties = res.Parties

	if records, err = r.query(ctx, articlesQuery, documentID); err != nil {
		return nil, err
	}
	res.Articles = articlesFromRecords(records)

	insight := func(rel, label string) ([]map[string]any, error) {
		records, err := r.query(ctx, fmt.Sprintf(insightQuery, rel, label), documentID)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			out = append(out, propsOf(rec, "props"))
		}
		return out, nil
	}
	var groups [5][]map[string]any
	for i, q := range [][2]string{
		{"HAS_KEY_PROVISION", "KeyProvision"},
		{"HAS_FINANCIAL", "Financial"},
		{"HAS_DATE", "Date"},
		{"HAS_TERM", "Term"},
		{"HAS_ENTITY", "Entity"},
	} {
		if groups[i], err = insight(q[0], q[1]); err != nil {
			return nil, err
		}
	}
	res.Insights = insightsFromProps(groups[0], groups[1], groups[2], groups[3], groups[4])
	return res, nil
}

func contractFromProps(p map[string]any) *model.ExtractionResult {
	res := &model.ExtractionResult{
		SourceDocument: str(p, "sourceDocument"),
		Metadata: model.ContractMetadata{
			Title:         str(p, "title"),
			EffectiveDate: str(p, "effectiveDate"),
			ExecutionDate: str(p, "executionDate"),
			DocumentType:  str(p, "documentType"),
			Language:      str(p, "language"),
			Parties:       []model.Party{},
		},
		Provenance: model.Provenance(str(p, "provenance")),
	}
	if ts, err := time.Parse(time.RFC3339, str(p, "importTimestamp")); err == nil {
		res.ResolvedAt = ts
	}
	return res
}

func partiesFromRecords(records []*neo4j.Record) []model.Party {
	parties := make([]model.Party, 0, len(records))
	for _, rec := range records {
		p := propsOf(rec, "props")
		party := model.NewParty(str(p, "name"), str(p, "type"))
		for _, child := range children(rec) {
			party.AddSignatory(model.NewSignatory(str(child, "name"), str(child, "title")))
		}
		parties = append(parties, party)
	}
	return parties
}

func articlesFromRecords(records []*neo4j.Record) []model.Article {
	articles := make([]model.Article, 0, len(records))
	for _, rec := range records {
		p := propsOf(rec, "props")
		a := model.Article{
			Number:    str(p, "number"),
			NumericID: str(p, "numericId"),
			Title:     str(p, "title"),
			Content:   str(p, "content"),
			Sections:  []model.Section{},
		}
		for _, child := range children(rec) {
			a.Sections = append(a.Sections, model.Section{
				Number:  str(child, "number"),
				Title:   str(child, "title"),
				Content: str(child, "content"),
			})
		}
		articles = append(articles, a)
	}
	return articles
}

func insightsFromProps(provisions, financials, dates, terms, entities []map[string]any) model.Insights {
	ins := model.Insights{
		KeyProvisions: []model.KeyProvision{},
		Financials:    []model.Financial{},
		KeyDates:      []model.KeyDate{},
		KeyTerms:      []model.KeyTerm{},
		Entities:      []model.EntityGroup{},
	}
	for _, p := range provisions {
		kp := model.KeyProvision{ArticleNumber: str(p, "number"), Title: str(p, "title")}
		if s := str(p, "summary"); s != "" {
			kp.Summary = strings.Split(s, "\n")
		}
		ins.KeyProvisions = append(ins.KeyProvisions, kp)
	}
	for _, p := range financials {
		ins.Financials = append(ins.Financials, model.Financial{Amount: str(p, "amount"), Context: str(p, "context")})
	}
	for _, p := range dates {
		ins.KeyDates = append(ins.KeyDates, model.KeyDate{Date: str(p, "value"), Context: str(p, "context")})
	}
	for _, p := range terms {
		ins.KeyTerms = append(ins.KeyTerms, model.KeyTerm{Term: str(p, "name"), Contexts: unbullet(str(p, "contexts"))})
	}
	for _, p := range entities {
		ins.Entities = append(ins.Entities, model.EntityGroup{Type: str(p, "type"), Texts: unbullet(str(p, "values"))})
	}
	return ins
}

func unbullet(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\n• ")
	parts[0] = strings.TrimPrefix(parts[0], "• ")
	return parts
}

func propsOf(rec *neo4j.Record, key string) map[string]any {
	v, _ := rec.Get(key)
	m, _ := v.(map[string]any)
	return m
}

func children(rec *neo4j.Record) []map[string]any {
	v, _ := rec.Get("children")
	list, _ := v.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func str(m map[string]any, key string) string {
	if v, ok := m[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}
