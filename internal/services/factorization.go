package services

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/mediabud/recsys/internal/config"
)

// factorizationModel holds the learned latent state of one training run.
type factorizationModel struct {
	UserFactors [][]float64
	ItemFactors [][]float64
	ItemBias    []float64
}

// fitFactorization learns latent factors with a WARP-style pairwise ranking
// loss: for each observed positive, sample negatives until one ranks above
// the positive (within the margin), then apply an SGD update weighted by the
// estimated rank of the violation. Steps are distributed across workers, each
// with its own RNG and scratch buffers.
func fitFactorization(
	ctx context.Context,
	ds *Dataset,
	cfg *config.FactorizationConfig,
	logger *logrus.Logger,
) (*factorizationModel, error) {
	nUsers := ds.CountUsers()
	nItems := ds.CountItems()
	nInteractions := ds.CountInteractions()

	logger.WithFields(logrus.Fields{
		"users":        nUsers,
		"items":        nItems,
		"interactions": nInteractions,
		"factors":      cfg.Factors,
		"epochs":       cfg.Epochs,
		"workers":      cfg.Workers,
	}).Info("Fitting factorization model")

	master := rand.New(rand.NewSource(cfg.Seed))
	model := &factorizationModel{
		UserFactors: randomMatrix(master, nUsers, cfg.Factors),
		ItemFactors: randomMatrix(master, nItems, cfg.Factors),
		ItemBias:    make([]float64, nItems),
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	rngs := make([]*rand.Rand, workers)
	for w := range rngs {
		rngs[w] = rand.New(rand.NewSource(master.Int63()))
	}

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("factorization cancelled at epoch %d: %w", epoch, err)
		}

		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				steps := nInteractions / workers
				if w < nInteractions%workers {
					steps++
				}
				worker := &warpWorker{
					ds:    ds,
					cfg:   cfg,
					model: model,
					rng:   rngs[w],
					grad:  make([]float64, cfg.Factors),
					user:  make([]float64, cfg.Factors),
				}
				for s := 0; s < steps; s++ {
					worker.step()
				}
			}(w)
		}
		wg.Wait()
	}

	for u := 0; u < nUsers; u++ {
		if hasNaN(model.UserFactors[u]) {
			return nil, fmt.Errorf("factorization diverged: NaN in user factors")
		}
	}
	for i := 0; i < nItems; i++ {
		if hasNaN(model.ItemFactors[i]) || math.IsNaN(model.ItemBias[i]) {
			return nil, fmt.Errorf("factorization diverged: NaN in item factors")
		}
	}

	return model, nil
}

type warpWorker struct {
	ds    *Dataset
	cfg   *config.FactorizationConfig
	model *factorizationModel

	rng *rand.Rand
	// scratch buffers reused across steps
	grad []float64
	user []float64
}

func (w *warpWorker) step() {
	nUsers := w.ds.CountUsers()
	nItems := w.ds.CountItems()

	// Select a user with feedback.
	var u int32
	var row []DatasetEntry
	for {
		u = int32(w.rng.Intn(nUsers))
		row = w.ds.Rows[u]
		if len(row) > 0 {
			break
		}
	}
	if len(row) >= nItems {
		// Every item is a positive for this user, nothing to rank against.
		return
	}
	pos := row[w.rng.Intn(len(row))].Item
	posScore := w.score(u, pos)

	// Rejection-sample negatives until one violates the unit margin or the
	// sample budget runs out.
	var neg int32
	sampled := 0
	found := false
	for sampled < w.cfg.MaxSampled {
		candidate := int32(w.rng.Intn(nItems))
		if w.seen(u, candidate) {
			continue
		}
		sampled++
		if w.score(u, candidate) > posScore-1 {
			neg = candidate
			found = true
			break
		}
	}
	if !found {
		return
	}

	// Rank-estimate weight: a violation found quickly means the positive
	// ranks low, so the update is heavier.
	rank := (nItems - 1) / sampled
	weight := math.Log(float64(rank) + 1)

	lr := w.cfg.LearningRate
	reg := w.cfg.Regularization
	userF := w.model.UserFactors[u]
	posF := w.model.ItemFactors[pos]
	negF := w.model.ItemFactors[neg]

	copy(w.user, userF)

	// User factor moves toward the positive and away from the negative.
	floats.SubTo(w.grad, posF, negF)
	floats.Scale(weight, w.grad)
	floats.AddScaled(w.grad, -reg, userF)
	floats.AddScaled(userF, lr, w.grad)

	// Positive item factor: +weight * user
	copy(w.grad, w.user)
	floats.Scale(weight, w.grad)
	floats.AddScaled(w.grad, -reg, posF)
	floats.AddScaled(posF, lr, w.grad)

	// Negative item factor: -weight * user
	copy(w.grad, w.user)
	floats.Scale(-weight, w.grad)
	floats.AddScaled(w.grad, -reg, negF)
	floats.AddScaled(negF, lr, w.grad)

	w.model.ItemBias[pos] += lr * (weight - reg*w.model.ItemBias[pos])
	w.model.ItemBias[neg] += lr * (-weight - reg*w.model.ItemBias[neg])
}

func (w *warpWorker) score(u, i int32) float64 {
	return floats.Dot(w.model.UserFactors[u], w.model.ItemFactors[i]) + w.model.ItemBias[i]
}

func (w *warpWorker) seen(u, i int32) bool {
	row := w.ds.Rows[u]
	lo, hi := 0, len(row)
	for lo < hi {
		mid := (lo + hi) / 2
		if row[mid].Item < i {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo < len(row) && row[lo].Item == i
}

func randomMatrix(rng *rand.Rand, rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	scale := 1.0 / float64(cols)
	for r := range m {
		m[r] = make([]float64, cols)
		for c := range m[r] {
			m[r][c] = (rng.Float64() - 0.5) * scale
		}
	}
	return m
}

func hasNaN(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) {
			return true
		}
	}
	return false
}
