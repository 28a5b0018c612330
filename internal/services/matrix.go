package services

import (
	"fmt"
	"sort"

	"github.com/mediabud/recsys/pkg/models"
)

// WeightPolicy resolves duplicate (user, item) interactions into a single
// weight. The choice between strongest-signal-wins and accumulation is a
// named, swappable policy rather than a hardcoded rule.
type WeightPolicy func(existing, incoming float64) float64

// MaxWeight keeps the strongest signal. A user who both watchlisted and liked
// an item counts as a like, not a like-and-a-half.
func MaxWeight(existing, incoming float64) float64 {
	if incoming > existing {
		return incoming
	}
	return existing
}

// SumWeight accumulates every signal.
func SumWeight(existing, incoming float64) float64 {
	return existing + incoming
}

func WeightPolicyFromName(name string) (WeightPolicy, error) {
	switch name {
	case "", "max":
		return MaxWeight, nil
	case "sum":
		return SumWeight, nil
	default:
		return nil, fmt.Errorf("unknown weight policy: %q", name)
	}
}

// DatasetEntry is one deduplicated interaction in dense index space.
type DatasetEntry struct {
	Item   int32
	Weight float64
}

// Dataset is the sparse user-item interaction matrix for one content type,
// together with the id↔dense-index bijections built from the same snapshot.
// Index assignment is first-seen order, which is stable for the lifetime of
// the artifact built from it.
type Dataset struct {
	Users     []string
	Items     []string
	UserIndex map[string]int32
	ItemIndex map[string]int32
	// Rows holds, per user index, that user's interactions sorted by item
	// index ascending.
	Rows [][]DatasetEntry
}

// BuildDataset converts raw interaction triples into a dense 0-based index
// space and a sparse matrix, applying the weight policy to duplicates. Zero
// triples yield an empty dataset; that is not an error, it signals the
// trainer to skip factorization.
func BuildDataset(interactions []models.Interaction, policy WeightPolicy) *Dataset {
	ds := &Dataset{
		UserIndex: make(map[string]int32),
		ItemIndex: make(map[string]int32),
	}

	rows := make([]map[int32]float64, 0)
	for _, in := range interactions {
		u, ok := ds.UserIndex[in.UserID]
		if !ok {
			u = int32(len(ds.Users))
			ds.UserIndex[in.UserID] = u
			ds.Users = append(ds.Users, in.UserID)
			rows = append(rows, make(map[int32]float64))
		}
		i, ok := ds.ItemIndex[in.ItemID]
		if !ok {
			i = int32(len(ds.Items))
			ds.ItemIndex[in.ItemID] = i
			ds.Items = append(ds.Items, in.ItemID)
		}
		if existing, ok := rows[u][i]; ok {
			rows[u][i] = policy(existing, in.Weight)
		} else {
			rows[u][i] = in.Weight
		}
	}

	ds.Rows = make([][]DatasetEntry, len(rows))
	for u, row := range rows {
		entries := make([]DatasetEntry, 0, len(row))
		for i, w := range row {
			entries = append(entries, DatasetEntry{Item: i, Weight: w})
		}
		sort.Slice(entries, func(a, b int) bool { return entries[a].Item < entries[b].Item })
		ds.Rows[u] = entries
	}

	return ds
}

// CountUsers returns the number of distinct users in the snapshot.
func (ds *Dataset) CountUsers() int { return len(ds.Users) }

// CountItems returns the number of distinct items in the snapshot.
func (ds *Dataset) CountItems() int { return len(ds.Items) }

// CountInteractions returns the number of deduplicated interactions.
func (ds *Dataset) CountInteractions() int {
	n := 0
	for _, row := range ds.Rows {
		n += len(row)
	}
	return n
}

// SeenSets returns, per user index, the sorted item indices that user
// interacted with. This is what the serving layer excludes.
func (ds *Dataset) SeenSets() [][]int32 {
	seen := make([][]int32, len(ds.Rows))
	for u, row := range ds.Rows {
		items := make([]int32, len(row))
		for k, e := range row {
			items[k] = e.Item
		}
		seen[u] = items
	}
	return seen
}

// PopularityTable aggregates interaction strength per item index. Metric
// "weight_sum" sums deduplicated weights, "user_count" counts distinct
// interacting users.
func (ds *Dataset) PopularityTable(metric string) []float64 {
	table := make([]float64, len(ds.Items))
	for _, row := range ds.Rows {
		for _, e := range row {
			if metric == "user_count" {
				table[e.Item]++
			} else {
				table[e.Item] += e.Weight
			}
		}
	}
	return table
}
