// Package logreg implements L2-regularized binary logistic regression over sparse features.
//
// The model minimizes 0.5*|w|^2 + C*sum(logloss) with the intercept excluded from the penalty.
// Optimization is done by L-BFGS from gonum. A model that didn't converge within MaxIter
// is still returned together with an error wrapping ErrNotConverged, so callers can decide
// whether the best-effort model is acceptable.
package logreg

import (
	"errors"
	"fmt"
	"math"

	"github.com/hashicorp/go-multierror"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"

	"github.com/umputun/sms-spam/lib/sparse"
)

// ErrNotConverged is returned with a best-effort model when the solver stopped before convergence
var ErrNotConverged = errors.New("solver did not converge")

// ErrInvalidInput is returned for empty, mismatched or single-class training data
var ErrInvalidInput = errors.New("invalid training input")

// default parameters, match common logistic regression defaults
const (
	DefaultC         = 1.0
	DefaultMaxIter   = 1500
	DefaultTolerance = 1e-4
)

// Threshold is the probability above which a sample is classified as positive,
// exactly Threshold (zero decision value) is negative
const Threshold = 0.5

// Params of the solver
type Params struct {
	C         float64 `json:"c"`         // inverse regularization strength, default 1.0
	MaxIter   int     `json:"max_iter"`  // maximum solver iterations, default 1500
	Tolerance float64 `json:"tolerance"` // gradient max-norm threshold to stop, default 1e-4
}

// WithDefaults returns params with zero values replaced by defaults
func (p Params) WithDefaults() Params {
	res := p
	if res.C == 0 {
		res.C = DefaultC
	}
	if res.MaxIter == 0 {
		res.MaxIter = DefaultMaxIter
	}
	if res.Tolerance == 0 {
		res.Tolerance = DefaultTolerance
	}
	return res
}

// Validate checks params, should be called after WithDefaults
func (p Params) Validate() error {
	errs := new(multierror.Error)
	if p.C <= 0 || math.IsNaN(p.C) || math.IsInf(p.C, 0) {
		errs = multierror.Append(errs, fmt.Errorf("regularization C %v should be positive", p.C))
	}
	if p.MaxIter <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("max iterations %d should be positive", p.MaxIter))
	}
	if p.Tolerance <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("tolerance %v should be positive", p.Tolerance))
	}
	return errs.ErrorOrNil()
}

// Model is a fitted logistic regression, read-only after Fit
type Model struct {
	Weights    []float64 `json:"weights"`
	Bias       float64   `json:"bias"`
	Converged  bool      `json:"converged"`
	Iterations int       `json:"iterations"`
	Status     string    `json:"status"` // solver termination status
	Loss       float64   `json:"loss"`   // final value of the objective
}

// Fit trains the model on rows of x with labels y (true is the positive class).
// If the solver didn't converge, a usable model is returned along with ErrNotConverged.
func Fit(x sparse.Matrix, y []bool, p Params) (*Model, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if err := checkInput(x, y); err != nil {
		return nil, err
	}

	obj := objective{x: x, y: y, c: p.C, dim: x.Cols}
	problem := optimize.Problem{Func: obj.loss, Grad: obj.grad}
	settings := &optimize.Settings{
		GradientThreshold: p.Tolerance,
		MajorIterations:   p.MaxIter,
	}

	// last element of the optimized vector is the bias
	x0 := make([]float64, x.Cols+1)
	res, err := optimize.Minimize(problem, x0, settings, &optimize.LBFGS{})
	if res == nil {
		return nil, fmt.Errorf("failed to minimize: %w", err)
	}

	m := &Model{
		Weights:    append([]float64(nil), res.X[:x.Cols]...),
		Bias:       res.X[x.Cols],
		Iterations: res.MajorIterations,
		Status:     res.Status.String(),
		Loss:       res.F,
		Converged:  err == nil && converged(res.Status),
	}
	if !m.Converged {
		if err != nil {
			return m, fmt.Errorf("%w after %d iterations, status %s: %w", ErrNotConverged, m.Iterations, m.Status, err)
		}
		return m, fmt.Errorf("%w after %d iterations, status %s", ErrNotConverged, m.Iterations, m.Status)
	}
	return m, nil
}

func checkInput(x sparse.Matrix, y []bool) error {
	if x.NumRows() == 0 {
		return fmt.Errorf("%w: no samples", ErrInvalidInput)
	}
	if x.NumRows() != len(y) {
		return fmt.Errorf("%w: %d rows, %d labels", ErrInvalidInput, x.NumRows(), len(y))
	}
	if x.Cols == 0 {
		return fmt.Errorf("%w: no features", ErrInvalidInput)
	}
	pos := 0
	for _, v := range y {
		if v {
			pos++
		}
	}
	if pos == 0 || pos == len(y) {
		return fmt.Errorf("%w: single class in labels, %d of %d positive", ErrInvalidInput, pos, len(y))
	}
	return nil
}

func converged(s optimize.Status) bool {
	switch s {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.FunctionThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	default:
		return false
	}
}

// Dim returns number of features the model was trained on
func (m *Model) Dim() int { return len(m.Weights) }

// DecisionValue returns w*x+b for the feature row
func (m *Model) DecisionValue(v sparse.Vector) float64 {
	return v.Dot(m.Weights) + m.Bias
}

// Probability returns the positive class probability for the feature row
func (m *Model) Probability(v sparse.Vector) float64 {
	return sigmoid(m.DecisionValue(v))
}

// Predict returns true if positive class probability is above Threshold
func (m *Model) Predict(v sparse.Vector) bool {
	return m.DecisionValue(v) > 0
}

// Probabilities returns the positive class probability for every row
func (m *Model) Probabilities(x sparse.Matrix) []float64 {
	res := x.MulVec(m.Weights, m.Bias)
	for i, z := range res {
		res[i] = sigmoid(z)
	}
	return res
}

// PredictAll returns predicted labels for every row
func (m *Model) PredictAll(x sparse.Matrix) []bool {
	probs := m.Probabilities(x)
	res := make([]bool, len(probs))
	for i, p := range probs {
		res[i] = p > Threshold
	}
	return res
}

// WeightNorm returns L2 norm of the weights, bias excluded
func (m *Model) WeightNorm() float64 {
	return floats.Norm(m.Weights, 2)
}

// objective is the regularized negative log-likelihood, params vector is weights followed by bias
type objective struct {
	x   sparse.Matrix
	y   []bool
	c   float64
	dim int
}

func (o objective) loss(params []float64) float64 {
	w, b := params[:o.dim], params[o.dim]
	res := 0.5 * floats.Dot(w, w)
	for i, row := range o.x.Rows {
		z := row.Dot(w) + b
		res += o.c * logLoss(z, o.y[i])
	}
	return res
}

func (o objective) grad(grad, params []float64) {
	w, b := params[:o.dim], params[o.dim]
	copy(grad[:o.dim], w)
	grad[o.dim] = 0
	for i, row := range o.x.Rows {
		z := row.Dot(w) + b
		diff := sigmoid(z)
		if o.y[i] {
			diff -= 1
		}
		row.AddTo(grad[:o.dim], o.c*diff)
		grad[o.dim] += o.c * diff
	}
}

// logLoss returns -log(p) for positive and -log(1-p) for negative sample, p = sigmoid(z)
func logLoss(z float64, positive bool) float64 {
	if positive {
		return log1pExp(-z)
	}
	return log1pExp(z)
}

// log1pExp returns log(1+exp(z)) without overflow
func log1pExp(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
