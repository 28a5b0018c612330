package models

import (
	"fmt"
	"time"
)

// ContentType identifies an independent recommendation domain. Each type has
// its own index space, model artifact and cache scope.
type ContentType string

const (
	ContentTypeMovie ContentType = "movie"
	ContentTypeManga ContentType = "manga"
	ContentTypeAnime ContentType = "anime"
)

// AllContentTypes lists every domain the engine trains and serves.
var AllContentTypes = []ContentType{ContentTypeMovie, ContentTypeManga, ContentTypeAnime}

func ParseContentType(s string) (ContentType, error) {
	switch ContentType(s) {
	case ContentTypeMovie, ContentTypeManga, ContentTypeAnime:
		return ContentType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidContentType, s)
	}
}

// Interaction is one weighted implicit-feedback signal between a user and an
// item, as supplied by the interaction provider. Weight encodes signal
// strength (like > watched > watchlisted, or a raw score for score-bearing
// sources).
type Interaction struct {
	UserID string  `json:"user_id"`
	ItemID string  `json:"item_id"`
	Weight float64 `json:"weight"`
}

type ScoredItem struct {
	ItemID string  `json:"item_id"`
	Score  float64 `json:"score"`
}

type RecommendationResponse struct {
	UserID      string       `json:"user_id"`
	ContentType ContentType  `json:"content_type"`
	Items       []ScoredItem `json:"items"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type SimilarItemsResponse struct {
	ItemID      string       `json:"item_id"`
	ContentType ContentType  `json:"content_type"`
	Items       []ScoredItem `json:"items"`
	GeneratedAt time.Time    `json:"generated_at"`
}

type TrainResponse struct {
	Results     map[ContentType]bool `json:"results"`
	CompletedAt time.Time            `json:"completed_at"`
}
