package services

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/pkg/models"
)

// InteractionProvider supplies the complete current set of weighted
// interaction triples per content type, treated as a point-in-time snapshot
// for one training run, plus a popular-items query used for cold-start
// display when no artifact exists at all.
type InteractionProvider interface {
	Interactions(ctx context.Context, contentType models.ContentType) ([]models.Interaction, error)
	PopularItems(ctx context.Context, contentType models.ContentType, limit int) ([]models.ScoredItem, error)
}

// Implicit-feedback weights per signal. A strong explicit like outranks a
// watch, which outranks a watchlist add.
const (
	weightLiked       = 5.0
	weightWatched     = 3.0
	weightWatchlisted = 2.0
	weightTopList     = 5.0
)

// GraphInteractionProvider extracts interactions from the Neo4j content
// graph.
type GraphInteractionProvider struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewGraphInteractionProvider(driver neo4j.DriverWithContext, logger *logrus.Logger) *GraphInteractionProvider {
	return &GraphInteractionProvider{
		driver: driver,
		logger: logger,
	}
}

func (p *GraphInteractionProvider) Interactions(
	ctx context.Context,
	contentType models.ContentType,
) ([]models.Interaction, error) {
	query, params, err := interactionQuery(contentType)
	if err != nil {
		return nil, err
	}

	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("interaction query for %s failed: %w", contentType, err)
	}

	var interactions []models.Interaction
	for result.Next(ctx) {
		record := result.Record()
		userID, ok1 := record.Values[0].(string)
		itemID, ok2 := record.Values[1].(string)
		weight, ok3 := record.Values[2].(float64)
		if !ok1 || !ok2 || !ok3 {
			p.logger.WithField("content_type", contentType).
				Warn("Skipping malformed interaction record")
			continue
		}
		interactions = append(interactions, models.Interaction{
			UserID: userID,
			ItemID: itemID,
			Weight: weight,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("interaction result for %s failed: %w", contentType, err)
	}

	p.logger.WithFields(logrus.Fields{
		"content_type": contentType,
		"interactions": len(interactions),
	}).Info("Extracted interactions")

	return interactions, nil
}

func (p *GraphInteractionProvider) PopularItems(
	ctx context.Context,
	contentType models.ContentType,
	limit int,
) ([]models.ScoredItem, error) {
	query, params, err := interactionQuery(contentType)
	if err != nil {
		return nil, err
	}

	// Aggregate the same weighted triples per item, most interacted first.
	popularQuery := fmt.Sprintf(`
		CALL { %s }
		RETURN item_id, sum(weight) AS score
		ORDER BY score DESC, item_id ASC
		LIMIT $limit`, query)
	params["limit"] = limit

	session := p.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, popularQuery, params)
	if err != nil {
		return nil, fmt.Errorf("popular items query for %s failed: %w", contentType, err)
	}

	var items []models.ScoredItem
	for result.Next(ctx) {
		record := result.Record()
		itemID, ok1 := record.Values[0].(string)
		score, ok2 := record.Values[1].(float64)
		if !ok1 || !ok2 {
			continue
		}
		items = append(items, models.ScoredItem{ItemID: itemID, Score: score})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("popular items result for %s failed: %w", contentType, err)
	}

	return items, nil
}

func interactionQuery(contentType models.ContentType) (string, map[string]interface{}, error) {
	params := map[string]interface{}{
		"liked":       weightLiked,
		"watched":     weightWatched,
		"watchlisted": weightWatchlisted,
		"topList":     weightTopList,
	}

	switch contentType {
	case models.ContentTypeMovie:
		return `
			MATCH (u:ImdbUser)-[r:LIKES|WATCHED|WATCHLISTED]->(m:ImdbMovie)
			RETURN u.user_id AS user_id, m.imdb_id AS item_id,
				CASE type(r)
					WHEN 'LIKES' THEN $liked
					WHEN 'WATCHED' THEN $watched
					ELSE $watchlisted
				END AS weight`, params, nil
	case models.ContentTypeManga:
		return `
			MATCH (u:MalUser)-[:TOP_MANGA]->(m:Manga)
			RETURN u.user_id AS user_id, m.manga_id AS item_id, $topList AS weight`, params, nil
	case models.ContentTypeAnime:
		// Score-bearing source: the list entry's own score is the weight.
		return `
			MATCH (u:MalUser)-[r:TOP_ANIME]->(a:Anime)
			RETURN u.user_id AS user_id, a.anime_id AS item_id,
				coalesce(toFloat(r.score), $topList) AS weight`, params, nil
	default:
		return "", nil, fmt.Errorf("%w: %q", models.ErrInvalidContentType, contentType)
	}
}
