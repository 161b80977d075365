package logreg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"

	"github.com/umputun/sms-spam/lib/sparse"
)

func row(kv ...float64) sparse.Vector {
	m := map[int]float64{}
	for i := 0; i+1 < len(kv); i += 2 {
		m[int(kv[i])] = kv[i+1]
	}
	return sparse.FromMap(m)
}

// separable set: feature 0 marks positives, feature 1 marks negatives, feature 2 is noise
func separable() (sparse.Matrix, []bool) {
	x := sparse.Matrix{Cols: 3, Rows: []sparse.Vector{
		row(0, 1, 2, 1),
		row(0, 2),
		row(0, 1),
		row(1, 1, 2, 1),
		row(1, 1),
		row(1, 2, 2, 1),
		row(1, 1),
	}}
	return x, []bool{true, true, true, false, false, false, false}
}

func TestFit_Separable(t *testing.T) {
	x, y := separable()
	m, err := Fit(x, y, Params{})
	require.NoError(t, err)
	assert.True(t, m.Converged)
	assert.Equal(t, 3, m.Dim())
	assert.Positive(t, m.Iterations)
	t.Logf("model: %+v", m)

	assert.Positive(t, m.Weights[0])
	assert.Negative(t, m.Weights[1])
	assert.Equal(t, y, m.PredictAll(x))

	for i, r := range x.Rows {
		p := m.Probability(r)
		assert.Equal(t, y[i], m.Predict(r))
		assert.InDelta(t, p, m.Probabilities(x)[i], 1e-12)
		assert.InDelta(t, sigmoid(m.DecisionValue(r)), p, 1e-12)
	}
	assert.Greater(t, m.WeightNorm(), 0.0)
}

func TestFit_GradientAtOptimum(t *testing.T) {
	x, y := separable()
	m, err := Fit(x, y, Params{C: 2})
	require.NoError(t, err)

	obj := objective{x: x, y: y, c: 2, dim: x.Cols}
	params := append(append([]float64(nil), m.Weights...), m.Bias)
	grad := make([]float64, len(params))
	obj.grad(grad, params)
	for i, g := range grad {
		assert.InDelta(t, 0, g, DefaultTolerance, "grad[%d]", i)
	}
}

func TestObjective_GradMatchesFiniteDifference(t *testing.T) {
	x, y := separable()
	obj := objective{x: x, y: y, c: 1.5, dim: x.Cols}
	params := []float64{0.3, -0.7, 0.1, 0.25}

	got := make([]float64, len(params))
	obj.grad(got, params)
	want := fd.Gradient(nil, obj.loss, params, &fd.Settings{Formula: fd.Central})
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-6, "grad[%d]", i)
	}
}

func TestFit_ImbalancedPrior(t *testing.T) {
	// one positive, five negatives; zero row falls back to the bias which favors the majority
	x := sparse.Matrix{Cols: 2, Rows: []sparse.Vector{
		row(0, 1), row(1, 1), row(1, 1), row(1, 1), row(1, 1), row(1, 1),
	}}
	y := []bool{true, false, false, false, false, false}
	m, err := Fit(x, y, Params{})
	require.NoError(t, err)

	assert.Negative(t, m.Bias)
	zero := sparse.Vector{}
	assert.False(t, m.Predict(zero))
	assert.InDelta(t, sigmoid(m.Bias), m.Probability(zero), 1e-12)
	for range 10 {
		assert.False(t, m.Predict(zero), "same answer on repeated calls")
	}
}

func TestFit_NotConverged(t *testing.T) {
	x, y := separable()
	m, err := Fit(x, y, Params{C: 100, MaxIter: 1, Tolerance: 1e-12})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotConverged)
	require.NotNil(t, m, "best-effort model returned")
	assert.False(t, m.Converged)
	assert.Len(t, m.Weights, 3)
	t.Logf("err: %v", err)
}

func TestFit_InvalidInput(t *testing.T) {
	x, y := separable()
	tests := []struct {
		name string
		x    sparse.Matrix
		y    []bool
	}{
		{name: "no rows", x: sparse.Matrix{Cols: 3}, y: nil},
		{name: "labels mismatch", x: x, y: y[:3]},
		{name: "no features", x: sparse.Matrix{Rows: []sparse.Vector{{}, {}}}, y: []bool{true, false}},
		{name: "all positive", x: x, y: []bool{true, true, true, true, true, true, true}},
		{name: "all negative", x: x, y: make([]bool, 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Fit(tt.x, tt.y, Params{})
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, m)
		})
	}

	_, err := Fit(x, y, Params{C: -1})
	assert.Error(t, err)
}

func TestParams(t *testing.T) {
	p := Params{}.WithDefaults()
	assert.Equal(t, Params{C: 1, MaxIter: 1500, Tolerance: 1e-4}, p)
	assert.NoError(t, p.Validate())

	err := Params{C: math.NaN(), MaxIter: -1, Tolerance: -1}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regularization C NaN should be positive")
	assert.Contains(t, err.Error(), "max iterations -1 should be positive")
	assert.Contains(t, err.Error(), "tolerance -1 should be positive")
}

func TestSigmoidAndLoss(t *testing.T) {
	assert.InDelta(t, 0.5, sigmoid(0), 1e-15)
	assert.InDelta(t, 1, sigmoid(1000), 1e-15)
	assert.InDelta(t, 0, sigmoid(-1000), 1e-15)
	assert.InDelta(t, 1/(1+math.Exp(-2)), sigmoid(2), 1e-15)

	assert.InDelta(t, math.Log(2), logLoss(0, true), 1e-15)
	assert.InDelta(t, 1000, logLoss(-1000, true), 1e-9, "no overflow")
	assert.InDelta(t, -math.Log(sigmoid(3)), logLoss(3, true), 1e-12)
	assert.InDelta(t, -math.Log(1-sigmoid(3)), logLoss(3, false), 1e-12)
}

func TestModel_PredictAtThreshold(t *testing.T) {
	tests := []struct {
		name string
		bias float64
		want bool
	}{
		{name: "zero decision value is negative", bias: 0, want: false},
		{name: "slightly positive", bias: 1e-9, want: true},
		{name: "slightly negative", bias: -1e-9, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Model{Weights: []float64{2, -2}, Bias: tt.bias}
			x := sparse.Matrix{Rows: []sparse.Vector{row(), row(0, 1, 1, 1)}, Cols: 2}
			for i := range x.Rows {
				assert.Equal(t, tt.want, m.Predict(x.Row(i)), "row %d", i)
			}
			assert.Equal(t, []bool{tt.want, tt.want}, m.PredictAll(x))
		})
	}
}
