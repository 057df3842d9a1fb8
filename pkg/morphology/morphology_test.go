package morphology

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellwatershed/internal/models"
	"cellwatershed/pkg/labeling"
)

func fullMask(w, h int) *models.Mask {
	m := models.NewMask(w, h)
	for i := range m.Data {
		m.Data[i] = true
	}
	return m
}

func TestDilateConstrainedGrowsCross(t *testing.T) {
	l := models.NewLabelRaster(5, 5)
	l.Set(2, 2, 4)

	require.NoError(t, DilateConstrained(l, fullMask(5, 5), 1))

	want := []int32{
		0, 0, 0, 0, 0,
		0, 0, 4, 0, 0,
		0, 4, 4, 4, 0,
		0, 0, 4, 0, 0,
		0, 0, 0, 0, 0,
	}
	assert.Equal(t, want, l.Data)
}

func TestDilateConstrainedStaysInMask(t *testing.T) {
	l := models.NewLabelRaster(5, 1)
	l.Data[0] = 1
	mask := models.NewMask(5, 1)
	mask.Data[0], mask.Data[1], mask.Data[2] = true, true, true

	require.NoError(t, DilateConstrained(l, mask, 10))
	assert.Equal(t, []int32{1, 1, 1, 0, 0}, l.Data)
}

func TestDilateNeverOverwritesClaimedPixel(t *testing.T) {
	l := models.NewLabelRaster(4, 1)
	l.Data[0], l.Data[2] = 1, 2

	DilateUnconstrained(l, 1)
	// The gap pixel goes to the larger neighbour; claimed pixels are untouched.
	assert.Equal(t, []int32{1, 2, 2, 2}, l.Data)

	DilateUnconstrained(l, 5)
	assert.Equal(t, []int32{1, 2, 2, 2}, l.Data)
}

func TestDilateShapeMismatch(t *testing.T) {
	err := DilateConstrained(models.NewLabelRaster(3, 3), models.NewMask(3, 4), 1)
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}

func TestErodeStripsBoundary(t *testing.T) {
	l := models.NewLabelRaster(5, 5)
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			l.Set(x, y, 7)
		}
	}
	Erode(l, 1)

	assert.EqualValues(t, 7, l.At(2, 2))
	l.Set(2, 2, 0)
	for _, v := range l.Data {
		assert.Zero(t, v)
	}
}

func TestErodeIgnoresOutOfBounds(t *testing.T) {
	l := models.NewLabelRaster(3, 3)
	for i := range l.Data {
		l.Data[i] = 2
	}
	Erode(l, 3)
	for _, v := range l.Data {
		assert.EqualValues(t, 2, v)
	}
}

func TestErodeBetweenLabels(t *testing.T) {
	l := &models.LabelRaster{Data: []int32{3, 3, 5, 5}, Width: 4, Height: 1}
	Erode(l, 1)
	// The larger label gives way where the two touch.
	assert.Equal(t, []int32{3, 3, 0, 5}, l.Data)
}

func TestStrategyByName(t *testing.T) {
	old, err := StrategyByName(StrategyOld, 3)
	require.NoError(t, err)
	require.Len(t, old.Steps, 21)

	for i := 0; i < 16; i += 2 {
		assert.Equal(t, Step{OpDilateConstrained, 2}, old.Steps[i])
		assert.Equal(t, Step{OpErode, 1}, old.Steps[i+1])
	}
	assert.Equal(t, Step{OpDilateConstrained, 2}, old.Steps[16])
	assert.Equal(t, []Step{
		{OpDilateUnconstrained, 1},
		{OpErode, 2},
		{OpDilateUnconstrained, 2},
		{OpErode, 3},
	}, old.Steps[17:])

	newer, err := StrategyByName(StrategyNew, 1)
	require.NoError(t, err)
	assert.Equal(t, old.Steps[:17], newer.Steps[:17])
	assert.Equal(t, []Step{
		{OpDilateUnconstrained, 1},
		{OpErode, 1},
		{OpDilateUnconstrained, 1},
		{OpErode, 1},
	}, newer.Steps[17:])

	_, err = StrategyByName("watershed", 1)
	assert.ErrorIs(t, err, ErrUnknownStrategy)
	_, err = StrategyByName(StrategyOld, -1)
	assert.Error(t, err)
}

// blobs scatters random filled rectangles and labels them.
func blobs(t *testing.T, w, h int, seed int64) (*models.LabelRaster, *models.Mask) {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	fg := models.NewMask(w, h)
	interior := models.NewMask(w, h)
	for n := 0; n < 12; n++ {
		x0, y0 := r.Intn(w-6), r.Intn(h-6)
		bw, bh := 2+r.Intn(4), 2+r.Intn(4)
		for y := y0; y < y0+bh; y++ {
			for x := x0; x < x0+bw; x++ {
				fg.Set(x, y, true)
			}
		}
		// interior extends past the seed
		for y := max(0, y0-2); y < min(h, y0+bh+2); y++ {
			for x := max(0, x0-2); x < min(w, x0+bw+2); x++ {
				interior.Set(x, y, true)
			}
		}
	}
	return labeling.Label(fg, labeling.Conn8), interior
}

func TestRefineNeverMergesLabels(t *testing.T) {
	for _, name := range []string{StrategyOld, StrategyNew} {
		t.Run(name, func(t *testing.T) {
			labels, interior := blobs(t, 40, 40, 7)
			initial := labels.Clone()

			s, err := StrategyByName(name, DefaultFinalErosions)
			require.NoError(t, err)
			ref := NewRefiner(s)

			prev := labels.Clone()
			steps := 0
			ref.OnStep = func(i int, step Step, cur *models.LabelRaster) {
				steps++
				for p := range cur.Data {
					if prev.Data[p] != 0 && cur.Data[p] != 0 {
						require.Equal(t, prev.Data[p], cur.Data[p], "step %d %s overwrote pixel %d", i, step, p)
					}
				}
				copy(prev.Data, cur.Data)
			}
			require.NoError(t, ref.Refine(labels, interior))
			assert.Equal(t, len(s.Steps), steps)

			// no label is invented
			maxInitial := initial.Max()
			for _, v := range labels.Data {
				assert.LessOrEqual(t, v, maxInitial)
				assert.GreaterOrEqual(t, v, int32(0))
			}
		})
	}
}

func TestRefineKeepsSeparateSquaresSeparate(t *testing.T) {
	fg := models.NewMask(20, 10)
	for y := 2; y < 8; y++ {
		for x := 2; x < 8; x++ {
			fg.Set(x, y, true)
			fg.Set(x+10, y, true)
		}
	}
	labels := labeling.Label(fg, labeling.Conn8)
	s, err := StrategyByName(StrategyOld, 1)
	require.NoError(t, err)

	require.NoError(t, NewRefiner(s).Refine(labels, fullMask(20, 10)))

	assert.EqualValues(t, 1, labels.At(4, 4))
	assert.EqualValues(t, 2, labels.At(14, 4))
}

func TestRefineShapeMismatch(t *testing.T) {
	s, err := StrategyByName(StrategyNew, 1)
	require.NoError(t, err)
	err = NewRefiner(s).Refine(models.NewLabelRaster(4, 4), models.NewMask(5, 4))
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}
