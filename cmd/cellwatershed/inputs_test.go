package main

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cellwatershed/internal/models"
	"cellwatershed/pkg/morphology"
	"cellwatershed/pkg/rasterio"
)

func TestArgmaxFromFiles(t *testing.T) {
	dir := t.TempDir()
	probs := [][]float64{
		{0.8, 0.1, 0.3},
		{0.1, 0.7, 0.3},
		{0.1, 0.2, 0.4},
	}
	for c, p := range probs {
		path := filepath.Join(dir, fmt.Sprintf("class_%02d.tif", c))
		require.NoError(t, rasterio.WriteFloat(path, &models.FloatRaster{Data: p, Width: 3, Height: 1}))
	}

	classes, err := argmaxFromFiles(filepath.Join(dir, "class_*.tif"))
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 1, 2}, classes.Data)

	_, err = argmaxFromFiles(filepath.Join(dir, "none_*.tif"))
	assert.Error(t, err)
}

func TestArgmaxFromFilesUnpaddedClassNumbers(t *testing.T) {
	dir := t.TempDir()
	const classes = 12
	for c := 0; c < classes; c++ {
		r := models.NewFloatRaster(classes, 1)
		for i := range r.Data {
			r.Data[i] = 0.1
		}
		r.Data[c] = 0.9
		path := filepath.Join(dir, fmt.Sprintf("feature_%d.tif", c))
		require.NoError(t, rasterio.WriteFloat(path, r))
	}

	got, err := argmaxFromFiles(filepath.Join(dir, "feature_*.tif"))
	require.NoError(t, err)

	want := make([]int32, classes)
	for c := range want {
		want[c] = int32(c)
	}
	assert.Equal(t, want, got.Data)
}

func TestSortByClass(t *testing.T) {
	files := []string{"p/feature_10.tif", "p/feature_2.tif", "p/feature_0.tif", "p/feature_1.tif"}
	sortByClass(files)
	assert.Equal(t, []string{"p/feature_0.tif", "p/feature_1.tif", "p/feature_2.tif", "p/feature_10.tif"}, files)

	mixed := []string{"b.tif", "a_1.tif", "c_0.tif"}
	sortByClass(mixed)
	assert.Equal(t, []string{"a_1.tif", "b.tif", "c_0.tif"}, mixed)
}

func TestLoadInputs(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, v float64) string {
		path := filepath.Join(dir, name)
		r := models.NewFloatRaster(4, 4)
		for i := range r.Data {
			r.Data[i] = v
		}
		require.NoError(t, rasterio.WriteFloat(path, r))
		return path
	}
	classes := filepath.Join(dir, "classes.tif")
	require.NoError(t, rasterio.WriteClasses(classes, models.NewClassRaster(4, 4)))

	in, err := loadInputs(inputPaths{
		edge:     write("edge.tif", 0),
		interior: write("interior.tif", 1),
		cell:     write("cell.tif", 1),
		classes:  classes,
		truth:    classes,
	})
	require.NoError(t, err)
	s, err := in.Probabilities.Shape()
	require.NoError(t, err)
	assert.Equal(t, models.Shape{Width: 4, Height: 4}, s)

	_, err = loadInputs(inputPaths{edge: filepath.Join(dir, "missing.tif")})
	assert.Error(t, err)
}

func TestLoadConfigPrecedence(t *testing.T) {
	cfg, err := loadConfig("", "new-dilation")
	require.NoError(t, err)
	assert.Equal(t, morphology.StrategyNew, cfg.Segmentation.Strategy)

	cfg, err = loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, morphology.StrategyOld, cfg.Segmentation.Strategy)

	_, err = loadConfig("", "nope")
	assert.Error(t, err)
}
