package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
)

// ModelMode tags which scoring strategy an artifact carries.
type ModelMode string

const (
	// ModeFactorization scores with learned latent factors and item biases.
	ModeFactorization ModelMode = "factorization"
	// ModePopularity ranks by aggregate interaction strength. Used when the
	// training data is too sparse for factorization or factorization is
	// disabled.
	ModePopularity ModelMode = "popularity"
)

// Artifact is the immutable output of one training run for one content type.
// Index mappings, factors and the popularity table always originate from the
// same run; an artifact is never mutated after publish, a retrain produces a
// brand-new one that replaces it wholesale.
type Artifact struct {
	TrainingID  uuid.UUID   `json:"training_id"`
	ContentType ContentType `json:"content_type"`
	Mode        ModelMode   `json:"mode"`

	// Dense index space built from the training snapshot. Users[i] and
	// Items[j] invert UserIndex and ItemIndex.
	Users     []string         `json:"users"`
	Items     []string         `json:"items"`
	UserIndex map[string]int32 `json:"user_index"`
	ItemIndex map[string]int32 `json:"item_index"`

	// Factorization state; nil in popularity mode.
	UserFactors [][]float64 `json:"user_factors,omitempty"`
	ItemFactors [][]float64 `json:"item_factors,omitempty"`
	ItemBias    []float64   `json:"item_bias,omitempty"`

	// Popularity carries the aggregate interaction strength per item index.
	// Populated in both modes so cold-start serving never needs a second
	// data source.
	Popularity []float64 `json:"popularity"`

	// Seen holds, per user index, the sorted item indices that user
	// interacted with during training. Drives already-seen exclusion.
	Seen [][]int32 `json:"seen"`

	CreatedAt time.Time `json:"created_at"`
}

// SupportsSimilarity reports whether the artifact carries latent item vectors
// to compare. Popularity-mode artifacts have no item representation, so
// similarity queries against them are an explicitly unsupported capability,
// not a "no neighbors found" result.
func (a *Artifact) SupportsSimilarity() bool {
	return a.Mode == ModeFactorization && len(a.ItemFactors) > 0
}

// Score returns the model score of item index i for user index u.
func (a *Artifact) Score(u, i int32) float64 {
	if a.Mode == ModeFactorization {
		return floats.Dot(a.UserFactors[u], a.ItemFactors[i]) + a.ItemBias[i]
	}
	return a.Popularity[i]
}

// HasSeen reports whether user index u interacted with item index i during
// training.
func (a *Artifact) HasSeen(u, i int32) bool {
	seen := a.Seen[u]
	k := sort.Search(len(seen), func(n int) bool { return seen[n] >= i })
	return k < len(seen) && seen[k] == i
}

// TopPopular returns the n most popular items, ties broken by item id
// ascending.
func (a *Artifact) TopPopular(n int) []ScoredItem {
	ranked := make([]ScoredItem, 0, len(a.Items))
	for i, id := range a.Items {
		ranked = append(ranked, ScoredItem{ItemID: id, Score: a.Popularity[i]})
	}
	SortScored(ranked)
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// SortScored orders items by score descending, ties broken by item id
// ascending, so repeated calls over the same artifact are reproducible.
func SortScored(items []ScoredItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ItemID < items[j].ItemID
	})
}
