package main

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"cellwatershed/internal/models"
	"cellwatershed/pkg/pipeline"
	"cellwatershed/pkg/rasterio"
)

type inputPaths struct {
	edge, interior, cell string
	classes, classProbs  string
	truth                string
}

// loadInputs reads every raster of one image from disk.
func loadInputs(paths inputPaths) (*pipeline.Inputs, error) {
	edge, err := rasterio.ReadFloat(paths.edge)
	if err != nil {
		return nil, fmt.Errorf("edge probabilities: %w", err)
	}
	interior, err := rasterio.ReadFloat(paths.interior)
	if err != nil {
		return nil, fmt.Errorf("interior probabilities: %w", err)
	}
	cell, err := rasterio.ReadFloat(paths.cell)
	if err != nil {
		return nil, fmt.Errorf("cell probabilities: %w", err)
	}

	var classes *models.ClassRaster
	if paths.classes != "" {
		classes, err = rasterio.ReadClasses(paths.classes)
	} else {
		classes, err = argmaxFromFiles(paths.classProbs)
	}
	if err != nil {
		return nil, fmt.Errorf("classification: %w", err)
	}

	truth, err := rasterio.ReadClasses(paths.truth)
	if err != nil {
		return nil, fmt.Errorf("ground truth: %w", err)
	}

	return &pipeline.Inputs{
		Probabilities: &models.ProbabilityVolume{Edge: edge, Interior: interior, Cell: cell},
		Classes:       classes,
		Truth:         truth,
	}, nil
}

var classSuffix = regexp.MustCompile(`(\d+)$`)

// sortByClass orders per-class files by the number ending their base name,
// so feature_2 comes before feature_10. Names without a number fall back to
// lexical order for the whole set.
func sortByClass(files []string) {
	ids := make(map[string]int, len(files))
	for _, f := range files {
		base := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		m := classSuffix.FindString(base)
		if m == "" {
			sort.Strings(files)
			return
		}
		id, err := strconv.Atoi(m)
		if err != nil {
			sort.Strings(files)
			return
		}
		ids[f] = id
	}
	sort.Slice(files, func(i, j int) bool {
		if ids[files[i]] != ids[files[j]] {
			return ids[files[i]] < ids[files[j]]
		}
		return files[i] < files[j]
	})
}

// argmaxFromFiles stacks one probability TIFF per class, ordered by class
// number, and takes the per-pixel argmax.
func argmaxFromFiles(pattern string) (*models.ClassRaster, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no class probability files match %q", pattern)
	}
	sortByClass(files)

	var vol *models.ClassVolume
	for c, f := range files {
		r, err := rasterio.ReadFloat(f)
		if err != nil {
			return nil, err
		}
		if vol == nil {
			vol = &models.ClassVolume{
				Data:    make([]float64, r.Width*r.Height*len(files)),
				Width:   r.Width,
				Height:  r.Height,
				Classes: len(files),
			}
		}
		if err := models.CheckShapes(f, vol.Shape(), r.Shape()); err != nil {
			return nil, err
		}
		for i, v := range r.Data {
			vol.Data[i*vol.Classes+c] = v
		}
	}
	return vol.Argmax()
}
