// Package metrics provides evaluation metrics for binary classifiers.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// ErrSingleClass is returned when AUC requested for labels of one class only
var ErrSingleClass = errors.New("both classes required")

// AUC returns area under ROC curve for scores and true labels.
// Curve points are taken at every unique score, so ties form a single threshold,
// and the area is integrated with the trapezoidal rule. Only the ranking of scores matters.
func AUC(scores []float64, labels []bool) (float64, error) {
	if len(scores) != len(labels) {
		return 0, fmt.Errorf("scores and labels size mismatch, %d != %d", len(scores), len(labels))
	}
	pos := 0
	for i, l := range labels {
		if math.IsNaN(scores[i]) {
			return 0, fmt.Errorf("score %d is NaN", i)
		}
		if l {
			pos++
		}
	}
	if pos == 0 || pos == len(labels) {
		return 0, fmt.Errorf("%w, got %d positive of %d", ErrSingleClass, pos, len(labels))
	}

	// stat.ROC wants scores sorted in increasing order with classes aligned
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] < scores[idx[b]] })
	y := make([]float64, len(idx))
	classes := make([]bool, len(idx))
	for i, j := range idx {
		y[i], classes[i] = scores[j], labels[j]
	}

	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// BoolScores converts hard predictions to 0/1 scores
func BoolScores(pred []bool) []float64 {
	res := make([]float64, len(pred))
	for i, p := range pred {
		if p {
			res[i] = 1
		}
	}
	return res
}

// Confusion is a confusion matrix for the positive (spam) class
type Confusion struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	TN int `json:"tn"`
	FN int `json:"fn"`
}

// NewConfusion counts predictions against true labels, extra elements of the longer slice ignored
func NewConfusion(pred, labels []bool) Confusion {
	res := Confusion{}
	for i := 0; i < len(pred) && i < len(labels); i++ {
		switch {
		case pred[i] && labels[i]:
			res.TP++
		case pred[i] && !labels[i]:
			res.FP++
		case !pred[i] && !labels[i]:
			res.TN++
		default:
			res.FN++
		}
	}
	return res
}

// Total returns number of counted samples
func (c Confusion) Total() int { return c.TP + c.FP + c.TN + c.FN }

// Accuracy returns share of correct predictions
func (c Confusion) Accuracy() float64 { return ratio(c.TP+c.TN, c.Total()) }

// Precision returns TP/(TP+FP)
func (c Confusion) Precision() float64 { return ratio(c.TP, c.TP+c.FP) }

// Recall returns TP/(TP+FN)
func (c Confusion) Recall() float64 { return ratio(c.TP, c.TP+c.FN) }

// F1 returns harmonic mean of precision and recall
func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func (c Confusion) String() string {
	return fmt.Sprintf("tp:%d, fp:%d, tn:%d, fn:%d", c.TP, c.FP, c.TN, c.FN)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
