package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

// SenderHistoryAdapter keeps (:Sender)-[:CLASSIFIED_AS]->(:Slug) edges per
// account. Each edge carries a count and the last time it was seen.
type SenderHistoryAdapter struct {
	driver neo4j.DriverWithContext
	dbName string
}

var _ out.SenderHistory = (*SenderHistoryAdapter)(nil)

func NewSenderHistoryAdapter(driver neo4j.DriverWithContext, dbName string) *SenderHistoryAdapter {
	return &SenderHistoryAdapter{driver: driver, dbName: dbName}
}

// EnsureIndexes creates the lookup constraints. Failures for existing
// constraints are ignored.
func (a *SenderHistoryAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT sender_unique IF NOT EXISTS FOR (s:Sender) REQUIRE (s.account_id, s.address) IS UNIQUE`,
		`CREATE CONSTRAINT slug_unique IF NOT EXISTS FOR (g:Slug) REQUIRE (g.account_id, g.name) IS UNIQUE`,
	}
	for _, query := range queries {
		if _, err := session.Run(ctx, query, nil); err != nil {
			continue
		}
	}
	return nil
}

const recordQuery = `
	MERGE (s:Sender {account_id: $accountID, address: $sender})
	MERGE (g:Slug {account_id: $accountID, name: $slug})
	MERGE (s)-[r:CLASSIFIED_AS]->(g)
	ON CREATE SET r.count = 1, r.first_seen = $at, r.last_seen = $at
	ON MATCH SET r.count = r.count + 1,
		r.last_seen = CASE WHEN r.last_seen < $at THEN $at ELSE r.last_seen END
`

const recentSlugsQuery = `
	MATCH (:Sender {account_id: $accountID, address: $sender})-[r:CLASSIFIED_AS]->(g:Slug)
	RETURN g.name AS slug
	ORDER BY r.last_seen DESC
	LIMIT $limit
`

func (a *SenderHistoryAdapter) Record(ctx context.Context, accountID int64, sender, slug string, at time.Time) error {
	if sender == "" || slug == "" {
		return nil
	}
	_, err := neo4j.ExecuteQuery(ctx, a.driver, recordQuery, map[string]any{
		"accountID": accountID,
		"sender":    normalizeSender(sender),
		"slug":      slug,
		"at":        at.Unix(),
	}, neo4j.EagerResultTransformer, neo4j.ExecuteQueryWithDatabase(a.dbName))
	if err != nil {
		return fmt.Errorf("failed to record sender slug: %w", err)
	}
	return nil
}

func (a *SenderHistoryAdapter) RecentSlugs(ctx context.Context, accountID int64, sender string, limit int) ([]string, error) {
	result, err := neo4j.ExecuteQuery(ctx, a.driver, recentSlugsQuery, map[string]any{
		"accountID": accountID,
		"sender":    normalizeSender(sender),
		"limit":     limit,
	}, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(a.dbName),
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, fmt.Errorf("failed to read sender slugs: %w", err)
	}

	slugs := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		if v, ok := record.Get("slug"); ok {
			if s, ok := v.(string); ok && s != "" {
				slugs = append(slugs, s)
			}
		}
	}
	return slugs, nil
}

func normalizeSender(sender string) string {
	return strings.ToLower(strings.TrimSpace(sender))
}
