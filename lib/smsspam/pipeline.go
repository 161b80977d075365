package smsspam

import (
	"fmt"
	"log"

	"github.com/umputun/sms-spam/lib/dataset"
)

// Result of a full pipeline run
type Result struct {
	Classifier *Classifier
	Stats      dataset.Stats // full dataset summary
	Split      dataset.Split
	Evaluation Evaluation // scores on the test subset
}

// Run loads the dataset file, splits it, trains a classifier on the train subset
// and evaluates it on the test subset.
func Run(path string, p Params) (*Result, error) {
	ds, err := dataset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return RunDataset(ds, p)
}

// RunDataset splits already loaded messages, trains and evaluates a classifier
func RunDataset(ds dataset.Dataset, p Params) (*Result, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	res := &Result{Stats: ds.Stats()}
	log.Printf("[INFO] dataset: %s", res.Stats)

	var err error
	if res.Split, err = dataset.SplitDataset(ds, p.TrainFraction, p.Seed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	log.Printf("[DEBUG] split with seed %d, train:%d, test:%d", p.Seed, len(res.Split.Train), len(res.Split.Test))

	if res.Classifier, err = Train(res.Split.Train, p); err != nil {
		return nil, err
	}

	if res.Evaluation, err = res.Classifier.Evaluate(res.Split.Test); err != nil {
		return nil, fmt.Errorf("failed to evaluate on %d test messages: %w", len(res.Split.Test), err)
	}
	log.Printf("[INFO] evaluation: %s", res.Evaluation)
	return res, nil
}
