// Package scoring compares voted instance classes against ground truth.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrLengthMismatch is returned when the predicted and truth vectors differ in length.
var ErrLengthMismatch = errors.New("predicted and truth vectors differ in length")

// Report holds the agreement metrics of one run
type Report struct {
	// Agreement is the fraction of instances whose predicted class equals the truth class
	Agreement float64

	// Labels is the ordered class set indexing Confusion
	Labels []int

	// Confusion counts instances: rows are truth, columns are predicted
	Confusion *mat.Dense

	// Skipped counts instances whose truth or predicted class is not in Labels
	Skipped int

	// Recall and Precision per entry of Labels; NaN where undefined
	Recall    []float64
	Precision []float64

	// BalancedAccuracy is the mean recall over classes present in the truth
	BalancedAccuracy float64
}

// Score computes the agreement rate and the confusion matrix over labels.
// Counts are raw, with no normalization.
func Score(predicted, truth []int, labels []int) (*Report, error) {
	if len(predicted) != len(truth) {
		return nil, fmt.Errorf("%d predicted vs %d truth: %w", len(predicted), len(truth), ErrLengthMismatch)
	}
	if len(labels) == 0 {
		return nil, errors.New("confusion matrix needs at least one label")
	}

	pos := make(map[int]int, len(labels))
	for i, l := range labels {
		pos[l] = i
	}

	k := len(labels)
	r := &Report{
		Labels:    append([]int(nil), labels...),
		Confusion: mat.NewDense(k, k, nil),
	}

	matches := 0
	for i := range predicted {
		if predicted[i] == truth[i] {
			matches++
		}
		ti, okT := pos[truth[i]]
		pi, okP := pos[predicted[i]]
		if !okT || !okP {
			r.Skipped++
			continue
		}
		r.Confusion.Set(ti, pi, r.Confusion.At(ti, pi)+1)
	}
	if len(predicted) > 0 {
		r.Agreement = float64(matches) / float64(len(predicted))
	}

	r.Recall = make([]float64, k)
	r.Precision = make([]float64, k)
	var supported []float64
	for c := 0; c < k; c++ {
		tp := r.Confusion.At(c, c)
		rowSum := mat.Sum(r.Confusion.RowView(c))
		colSum := mat.Sum(r.Confusion.ColView(c))
		r.Recall[c] = ratio(tp, rowSum)
		r.Precision[c] = ratio(tp, colSum)
		if rowSum > 0 {
			supported = append(supported, r.Recall[c])
		}
	}
	if len(supported) > 0 {
		r.BalancedAccuracy = stat.Mean(supported, nil)
	}

	return r, nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// Count returns the confusion count for a (truth, predicted) class pair, 0 for
// classes outside the label set.
func (r *Report) Count(truthClass, predictedClass int) int {
	ti, tp := -1, -1
	for i, l := range r.Labels {
		if l == truthClass {
			ti = i
		}
		if l == predictedClass {
			tp = i
		}
	}
	if ti < 0 || tp < 0 {
		return 0
	}
	return int(r.Confusion.At(ti, tp))
}

// FormatConfusion renders the matrix with truth rows and predicted columns.
func (r *Report) FormatConfusion() string {
	var b strings.Builder
	b.WriteString("truth\\pred")
	for _, l := range r.Labels {
		fmt.Fprintf(&b, " %4d", l)
	}
	b.WriteByte('\n')
	for i, l := range r.Labels {
		fmt.Fprintf(&b, "%10d", l)
		for j := range r.Labels {
			fmt.Fprintf(&b, " %4d", int(r.Confusion.At(i, j)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}
