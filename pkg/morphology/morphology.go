// Package morphology grows connected-component labels out to full cell extent.
//
// All operations use the 4-neighbour cross as structuring element and ignore
// neighbours that fall outside the raster. Every iteration reads a snapshot of
// the previous one, so a label advances at most one pixel per iteration.
package morphology

import (
	"fmt"

	"cellwatershed/internal/models"
)

// crossMax returns the largest label among (x, y) and its in-bounds 4-neighbours.
func crossMax(src []int32, w, h, x, y int) int32 {
	i := y*w + x
	m := src[i]
	if x > 0 && src[i-1] > m {
		m = src[i-1]
	}
	if x < w-1 && src[i+1] > m {
		m = src[i+1]
	}
	if y > 0 && src[i-w] > m {
		m = src[i-w]
	}
	if y < h-1 && src[i+w] > m {
		m = src[i+w]
	}
	return m
}

// crossMin returns the smallest label among (x, y) and its in-bounds 4-neighbours.
func crossMin(src []int32, w, h, x, y int) int32 {
	i := y*w + x
	m := src[i]
	if x > 0 && src[i-1] < m {
		m = src[i-1]
	}
	if x < w-1 && src[i+1] < m {
		m = src[i+1]
	}
	if y > 0 && src[i-w] < m {
		m = src[i-w]
	}
	if y < h-1 && src[i+w] < m {
		m = src[i+w]
	}
	return m
}

// dilate runs n iterations of growth into unclaimed pixels. A nil mask lets
// growth reach any pixel.
func dilate(labels *models.LabelRaster, mask *models.Mask, n int) {
	w, h := labels.Width, labels.Height
	prev := make([]int32, len(labels.Data))
	for iter := 0; iter < n; iter++ {
		copy(prev, labels.Data)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				if prev[i] != 0 {
					continue
				}
				if mask != nil && !mask.Data[i] {
					continue
				}
				if d := crossMax(prev, w, h, x, y); d != prev[i] {
					labels.Data[i] = d
				}
			}
		}
	}
}

// DilateConstrained grows labels n times into pixels that are unclaimed and
// inside mask. A claimed pixel is never overwritten.
func DilateConstrained(labels *models.LabelRaster, mask *models.Mask, n int) error {
	if err := models.CheckShapes("dilation mask", labels.Shape(), mask.Shape()); err != nil {
		return err
	}
	dilate(labels, mask, n)
	return nil
}

// DilateUnconstrained grows labels n times into any unclaimed pixel.
func DilateUnconstrained(labels *models.LabelRaster, n int) {
	dilate(labels, nil, n)
}

// Erode runs n erosion iterations; a pixel whose eroded value differs from its
// label is reset to background.
func Erode(labels *models.LabelRaster, n int) {
	w, h := labels.Width, labels.Height
	prev := make([]int32, len(labels.Data))
	for iter := 0; iter < n; iter++ {
		copy(prev, labels.Data)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				if prev[i] == 0 {
					continue
				}
				if crossMin(prev, w, h, x, y) != prev[i] {
					labels.Data[i] = 0
				}
			}
		}
	}
}

// Apply runs a single step on labels in place.
func (s Step) Apply(labels *models.LabelRaster, interior *models.Mask) error {
	switch s.Op {
	case OpDilateConstrained:
		return DilateConstrained(labels, interior, s.Iterations)
	case OpDilateUnconstrained:
		DilateUnconstrained(labels, s.Iterations)
	case OpErode:
		Erode(labels, s.Iterations)
	default:
		return fmt.Errorf("unknown morphology op %d", s.Op)
	}
	return nil
}
