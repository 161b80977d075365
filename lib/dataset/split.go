package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// DefaultTrainFraction is the share of messages going to the train subset
const DefaultTrainFraction = 0.75

// ErrInvalidSplit is returned when split parameters can't produce two non-empty subsets
var ErrInvalidSplit = errors.New("invalid split")

// Split is a partition of a dataset into disjoint train and test subsets
type Split struct {
	Train Dataset
	Test  Dataset
}

// SplitDataset partitions messages into train and test subsets with a seeded permutation.
// The same dataset, fraction and seed always give the same partition. Test size is
// ceil((1-trainFraction)*N), no stratification applied.
func SplitDataset(ds Dataset, trainFraction float64, seed uint64) (Split, error) {
	if trainFraction <= 0 || trainFraction >= 1 || math.IsNaN(trainFraction) {
		return Split{}, fmt.Errorf("%w: train fraction %v not in (0,1)", ErrInvalidSplit, trainFraction)
	}

	// round to avoid float drift, i.e. (1-0.7)*10 = 3.0000000000000004
	testFraction := math.Round((1-trainFraction)*1e9) / 1e9
	nTest := int(math.Ceil(testFraction * float64(len(ds))))
	nTrain := len(ds) - nTest
	if nTest <= 0 || nTrain <= 0 {
		return Split{}, fmt.Errorf("%w: %d messages can't be split with train fraction %v", ErrInvalidSplit, len(ds), trainFraction)
	}

	rnd := rand.New(rand.NewPCG(seed, seed)) //nolint:gosec // reproducible split, not security sensitive
	perm := rnd.Perm(len(ds))

	res := Split{Train: make(Dataset, 0, nTrain), Test: make(Dataset, 0, nTest)}
	for i, idx := range perm {
		if i < nTrain {
			res.Train = append(res.Train, ds[idx])
			continue
		}
		res.Test = append(res.Test, ds[idx])
	}
	return res, nil
}
