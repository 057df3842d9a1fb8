package scoring

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func labels017() []int {
	l := make([]int, 17)
	for i := range l {
		l[i] = i
	}
	return l
}

func TestScorePerfectAgreement(t *testing.T) {
	r, err := Score([]int{3, 7}, []int{3, 7}, labels017())
	require.NoError(t, err)

	assert.Equal(t, 1.0, r.Agreement)
	rows, cols := r.Confusion.Dims()
	assert.Equal(t, 17, rows)
	assert.Equal(t, 17, cols)
	assert.Equal(t, 2.0, mat.Sum(r.Confusion))
	assert.Equal(t, 1, r.Count(3, 3))
	assert.Equal(t, 1, r.Count(7, 7))
	assert.Equal(t, 1.0, r.BalancedAccuracy)
}

func TestScoreRowsAreTruth(t *testing.T) {
	pred := []int{1, 1, 2, 0}
	truth := []int{1, 2, 2, 2}
	r, err := Score(pred, truth, []int{0, 1, 2})
	require.NoError(t, err)

	assert.Equal(t, 0.5, r.Agreement)
	assert.Equal(t, 1, r.Count(2, 1))
	assert.Equal(t, 0, r.Count(1, 2))
	assert.Equal(t, 1, r.Count(2, 0))

	assert.True(t, math.IsNaN(r.Recall[0]))
	assert.Equal(t, 1.0, r.Recall[1])
	assert.InDelta(t, 1.0/3, r.Recall[2], 1e-12)
	assert.Equal(t, 0.5, r.Precision[1])
	assert.InDelta(t, (1.0+1.0/3)/2, r.BalancedAccuracy, 1e-12)
}

func TestScoreSkipsUnknownLabels(t *testing.T) {
	r, err := Score([]int{20, 1}, []int{20, 1}, []int{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Skipped)
	assert.Equal(t, 1.0, r.Agreement)
	assert.Equal(t, 1.0, mat.Sum(r.Confusion))
}

func TestScoreErrors(t *testing.T) {
	_, err := Score([]int{1}, []int{1, 2}, labels017())
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = Score(nil, nil, nil)
	assert.Error(t, err)
}

func TestScoreEmpty(t *testing.T) {
	r, err := Score(nil, nil, labels017())
	require.NoError(t, err)
	assert.Zero(t, r.Agreement)
	assert.Zero(t, mat.Sum(r.Confusion))
}

func TestFormatConfusion(t *testing.T) {
	r, err := Score([]int{0, 1}, []int{0, 0}, []int{0, 1})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(r.FormatConfusion()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"0", "1", "1"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"1", "0", "0"}, strings.Fields(lines[2]))
}
