package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"

	"github.com/mediabud/recsys/pkg/models"
)

// ModelStoreDB is the slice of pgx used by the store. Satisfied by
// *pgxpool.Pool and by pgxmock in tests.
type ModelStoreDB interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// ModelStore persists one artifact blob per content type and keeps the
// current artifact of each type resident in memory. Publish replaces the
// durable row in a single upsert and swaps the in-memory reference under
// lock; readers hold whichever artifact pointer was current when they loaded
// it and are unaffected by an in-flight retrain.
type ModelStore struct {
	db     ModelStoreDB
	logger *logrus.Logger

	mu      sync.RWMutex
	current map[models.ContentType]*models.Artifact
}

func NewModelStore(db ModelStoreDB, logger *logrus.Logger) *ModelStore {
	return &ModelStore{
		db:      db,
		logger:  logger,
		current: make(map[models.ContentType]*models.Artifact),
	}
}

// Load returns the current artifact for a content type, or (nil, nil) when
// none has been published yet. The first successful load per type is
// memoized until a Publish supersedes it.
func (s *ModelStore) Load(ctx context.Context, contentType models.ContentType) (*models.Artifact, error) {
	s.mu.RLock()
	if artifact, ok := s.current[contentType]; ok {
		s.mu.RUnlock()
		return artifact, nil
	}
	s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRow(ctx,
		`SELECT artifact FROM model_artifacts WHERE content_type = $1`,
		string(contentType),
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact for %s: %w", contentType, err)
	}

	var artifact models.Artifact
	if err := json.Unmarshal(blob, &artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact for %s: %w", contentType, err)
	}

	s.mu.Lock()
	// Another loader or a concurrent publish may have won the race; the
	// resident artifact stays authoritative.
	if existing, ok := s.current[contentType]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.current[contentType] = &artifact
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"content_type": contentType,
		"training_id":  artifact.TrainingID,
		"mode":         artifact.Mode,
	}).Info("Model artifact loaded")

	return &artifact, nil
}

// Publish durably stores a fully built artifact and makes it the current one
// for its content type. The single-statement upsert keeps the index-map and
// factor pairing atomic from a reader's perspective.
func (s *ModelStore) Publish(ctx context.Context, artifact *models.Artifact) error {
	blob, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to encode artifact for %s: %w", artifact.ContentType, err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO model_artifacts (content_type, training_id, artifact, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (content_type) DO UPDATE SET
			training_id = EXCLUDED.training_id,
			artifact = EXCLUDED.artifact,
			created_at = EXCLUDED.created_at`,
		string(artifact.ContentType), artifact.TrainingID, blob, artifact.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to publish artifact for %s: %w", artifact.ContentType, err)
	}

	s.mu.Lock()
	s.current[artifact.ContentType] = artifact
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"content_type": artifact.ContentType,
		"training_id":  artifact.TrainingID,
		"mode":         artifact.Mode,
		"users":        len(artifact.Users),
		"items":        len(artifact.Items),
	}).Info("Model artifact published")

	return nil
}
