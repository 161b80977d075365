// Package smsspam trains and applies a logistic regression spam classifier for short text messages.
//
// The workflow is linear: load labeled messages, split them into train and test subsets,
// fit a vectorizer (counts or tf-idf) on the train subset, fit logistic regression on the
// vectorized train subset, score it with ROC AUC on the test subset. A trained Classifier
// is immutable and safe for concurrent use.
package smsspam

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/umputun/sms-spam/lib/dataset"
	"github.com/umputun/sms-spam/lib/logreg"
	"github.com/umputun/sms-spam/lib/metrics"
	"github.com/umputun/sms-spam/lib/sparse"
	"github.com/umputun/sms-spam/lib/vectorizer"
)

// ErrConfig is returned for invalid pipeline parameters
var ErrConfig = errors.New("configuration error")

// Params of the whole pipeline. Zero values replaced by defaults.
type Params struct {
	Vectorizer        vectorizer.Kind   `json:"vectorizer"`     // vectorization strategy, default count
	Tokens            vectorizer.Params `json:"tokens"`         // tokenization and vocabulary pruning
	LogReg            logreg.Params     `json:"logreg"`         // solver params
	TrainFraction     float64           `json:"train_fraction"` // share of train subset, default 0.75
	Seed              uint64            `json:"seed"`           // split seed
	StrictConvergence bool              `json:"strict"`         // fail if the solver didn't converge
}

// WithDefaults returns params with zero values replaced by defaults
func (p Params) WithDefaults() Params {
	res := p
	if res.Vectorizer == "" {
		res.Vectorizer = vectorizer.KindCount
	}
	if res.TrainFraction == 0 {
		res.TrainFraction = dataset.DefaultTrainFraction
	}
	res.LogReg = res.LogReg.WithDefaults()
	return res
}

// Validate checks params, all problems reported together
func (p Params) Validate() error {
	errs := new(multierror.Error)
	if p.Vectorizer != vectorizer.KindCount && p.Vectorizer != vectorizer.KindTfidf {
		errs = multierror.Append(errs, fmt.Errorf("unknown vectorizer %q", p.Vectorizer))
	}
	if p.TrainFraction <= 0 || p.TrainFraction >= 1 || math.IsNaN(p.TrainFraction) {
		errs = multierror.Append(errs, fmt.Errorf("train fraction %v not in (0,1)", p.TrainFraction))
	}
	if err := p.LogReg.Validate(); err != nil {
		errs = multierror.Append(errs, err)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return nil
}

// Prediction is a result of classifying a single message
type Prediction struct {
	Class       dataset.Class `json:"class"`
	Probability float64       `json:"probability"` // spam probability
}

// Spam returns true for spam class
func (p Prediction) Spam() bool { return p.Class == dataset.ClassSpam }

func (p Prediction) String() string { return fmt.Sprintf("%s (%.4f)", p.Class, p.Probability) }

// Feature is a vocabulary token with its model coefficient
type Feature struct {
	Token  string  `json:"token"`
	Weight float64 `json:"weight"`
	Index  int     `json:"index"`
}

// Evaluation holds test subset scores
type Evaluation struct {
	Samples   int               `json:"samples"`
	AUC       float64           `json:"auc"`        // area under ROC curve on spam probabilities
	AUCLabels float64           `json:"auc_labels"` // area under ROC curve on hard 0/1 predictions
	Confusion metrics.Confusion `json:"confusion"`
	Accuracy  float64           `json:"accuracy"`
	Precision float64           `json:"precision"`
	Recall    float64           `json:"recall"`
	F1        float64           `json:"f1"`
}

func (e Evaluation) String() string {
	return fmt.Sprintf("samples:%d, auc:%.4f, auc-labels:%.4f, accuracy:%.4f, precision:%.4f, recall:%.4f, f1:%.4f, {%s}",
		e.Samples, e.AUC, e.AUCLabels, e.Accuracy, e.Precision, e.Recall, e.F1, e.Confusion)
}

// Classifier is a fitted vectorizer and logistic regression model, read-only after creation
type Classifier struct {
	params  Params
	vec     vectorizer.Vectorizer
	model   *logreg.Model
	warning error // convergence warning, nil if the solver converged
}

// Train fits a classifier on the train subset. A convergence problem is logged and kept as
// Warning, unless Params.StrictConvergence is set, in which case it is returned as an error.
func Train(train dataset.Dataset, p Params) (*Classifier, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	vec, err := vectorizer.New(p.Vectorizer, p.Tokens)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if err = vec.Fit(train.Texts()); err != nil {
		return nil, fmt.Errorf("failed to fit %s vectorizer: %w", p.Vectorizer, err)
	}
	log.Printf("[DEBUG] %s vectorizer fitted on %d messages, vocabulary size %d",
		p.Vectorizer, len(train), vec.Vocabulary().Len())

	x, err := vec.Transform(train.Texts()...)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize train messages: %w", err)
	}

	res := &Classifier{params: p, vec: vec}
	res.model, err = logreg.Fit(x, train.Labels(), p.LogReg)
	switch {
	case errors.Is(err, logreg.ErrNotConverged) && !p.StrictConvergence:
		log.Printf("[WARN] %v, using best-effort model", err)
		res.warning = err
	case err != nil:
		return nil, fmt.Errorf("failed to fit logistic regression: %w", err)
	}
	log.Printf("[DEBUG] logistic regression fitted, iterations %d, status %s, loss %.6f",
		res.model.Iterations, res.model.Status, res.model.Loss)
	return res, nil
}

// Params returns effective params the classifier was trained with
func (c *Classifier) Params() Params { return c.params }

// Warning returns convergence warning, nil if the solver converged
func (c *Classifier) Warning() error { return c.warning }

// Vocabulary returns the fitted vocabulary
func (c *Classifier) Vocabulary() vectorizer.Vocabulary { return c.vec.Vocabulary() }

// Model returns a copy of the fitted model
func (c *Classifier) Model() logreg.Model {
	res := *c.model
	res.Weights = append([]float64(nil), c.model.Weights...)
	return res
}

// Predict classifies a single message
func (c *Classifier) Predict(text string) (Prediction, error) {
	res, err := c.PredictAll(text)
	if err != nil {
		return Prediction{}, err
	}
	return res[0], nil
}

// PredictAll classifies messages, result order matches input
func (c *Classifier) PredictAll(texts ...string) ([]Prediction, error) {
	x, err := c.vec.Transform(texts...)
	if err != nil {
		return nil, fmt.Errorf("failed to vectorize messages: %w", err)
	}
	probs := c.model.Probabilities(x)
	res := make([]Prediction, len(probs))
	for i, p := range probs {
		res[i] = Prediction{Class: dataset.ClassOf(p > logreg.Threshold), Probability: p}
	}
	return res, nil
}

// Evaluate scores the classifier on the test subset. AUC is computed on spam probabilities,
// AUCLabels on hard predictions. Test subset must contain both classes.
func (c *Classifier) Evaluate(test dataset.Dataset) (Evaluation, error) {
	preds, err := c.PredictAll(test.Texts()...)
	if err != nil {
		return Evaluation{}, err
	}
	labels := test.Labels()
	probs := make([]float64, len(preds))
	hard := make([]bool, len(preds))
	for i, p := range preds {
		probs[i], hard[i] = p.Probability, p.Spam()
	}

	res := Evaluation{Samples: len(test)}
	if res.AUC, err = metrics.AUC(probs, labels); err != nil {
		return Evaluation{}, fmt.Errorf("failed to calculate auc: %w", err)
	}
	if res.AUCLabels, err = metrics.AUC(metrics.BoolScores(hard), labels); err != nil {
		return Evaluation{}, fmt.Errorf("failed to calculate auc on labels: %w", err)
	}
	res.Confusion = metrics.NewConfusion(hard, labels)
	res.Accuracy = res.Confusion.Accuracy()
	res.Precision = res.Confusion.Precision()
	res.Recall = res.Confusion.Recall()
	res.F1 = res.Confusion.F1()
	return res, nil
}

// TopFeatures returns n tokens with the most negative (ham) and n with the most positive (spam)
// coefficients. Both lists start from the largest magnitude, equal weights ordered by feature index.
func (c *Classifier) TopFeatures(n int) (negative, positive []Feature) {
	w := c.model.Weights
	if n <= 0 || len(w) == 0 {
		return []Feature{}, []Feature{}
	}
	n = min(n, len(w))

	idx := make([]int, len(w))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return w[idx[a]] < w[idx[b]] })

	vocab := c.vec.Vocabulary()
	mkFeature := func(i int) Feature { return Feature{Token: vocab.Term(i), Weight: w[i], Index: i} }

	negative = make([]Feature, 0, n)
	for _, i := range idx[:n] {
		negative = append(negative, mkFeature(i))
	}

	sort.SliceStable(idx, func(a, b int) bool { return w[idx[a]] > w[idx[b]] })
	positive = make([]Feature, 0, n)
	for _, i := range idx[:n] {
		positive = append(positive, mkFeature(i))
	}
	return negative, positive
}

// features returns vectorized rows, used by tests and snapshot checks
func (c *Classifier) features(texts ...string) (sparse.Matrix, error) {
	return c.vec.Transform(texts...)
}
