// Package threshold turns the three segmentation probability channels into a
// foreground mask.
//
// Every channel uses the same tie rule: a pixel is active when its value is
// greater than or equal to the channel threshold. The foreground is the set of
// pixels whose interior channel is active and whose edge channel is not, so a
// pixel with edge exactly at the edge threshold is an edge pixel and never
// foreground, and a pixel with interior exactly at the interior threshold is
// interior.
package threshold

import (
	"errors"
	"fmt"

	"cellwatershed/internal/models"
	"cellwatershed/pkg/labeling"
)

// ErrInvalidThreshold is returned for a threshold outside [0, 1].
var ErrInvalidThreshold = errors.New("threshold outside [0, 1]")

// DefaultMinSize is the smallest foreground component kept, in pixels.
const DefaultMinSize = 50

// Thresholds holds one cut-off per probability channel
type Thresholds struct {
	Edge     float64
	Interior float64
	Cell     float64
}

// DefaultThresholds returns 0.25 for every channel
func DefaultThresholds() Thresholds {
	return Thresholds{Edge: 0.25, Interior: 0.25, Cell: 0.25}
}

// Validate reports ErrInvalidThreshold naming the offending channel.
func (t Thresholds) Validate() error {
	for _, c := range []struct {
		name string
		v    float64
	}{{"edge", t.Edge}, {"interior", t.Interior}, {"cell", t.Cell}} {
		// NaN fails both comparisons
		if !(c.v >= 0 && c.v <= 1) {
			return fmt.Errorf("%s threshold %v: %w", c.name, c.v, ErrInvalidThreshold)
		}
	}
	return nil
}

// Result holds the foreground mask and the binarized channels it came from.
type Result struct {
	// Foreground is interior AND NOT edge, with small components removed
	Foreground *models.Mask

	// Interior is the binarized interior channel; it bounds constrained dilation
	Interior *models.Mask

	// Edge is the binarized edge channel
	Edge *models.Mask

	// CellNotCell is 1-cell binarized; it does not take part in the foreground
	CellNotCell *models.Mask

	// Removed counts the small components cleared from the foreground
	Removed int
}

// Binarize marks every pixel whose value is >= t.
func Binarize(r *models.FloatRaster, t float64) *models.Mask {
	m := models.NewMask(r.Width, r.Height)
	for i, v := range r.Data {
		m.Data[i] = v >= t
	}
	return m
}

// Apply thresholds the probability volume and removes foreground components
// smaller than minSize pixels (4-connected).
func Apply(p *models.ProbabilityVolume, t Thresholds, minSize int) (*Result, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.Shape(); err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}

	edge := Binarize(p.Edge, t.Edge)
	interior := Binarize(p.Interior, t.Interior)

	notCell := models.NewMask(p.Cell.Width, p.Cell.Height)
	for i, v := range p.Cell.Data {
		notCell.Data[i] = 1-v >= t.Cell
	}

	fg := models.NewMask(edge.Width, edge.Height)
	for i := range fg.Data {
		fg.Data[i] = interior.Data[i] && !edge.Data[i]
	}
	removed := RemoveSmallObjects(fg, minSize)

	return &Result{
		Foreground:  fg,
		Interior:    interior,
		Edge:        edge,
		CellNotCell: notCell,
		Removed:     removed,
	}, nil
}

// RemoveSmallObjects clears, in place, every 4-connected component with fewer
// than minSize pixels and returns how many were cleared.
func RemoveSmallObjects(m *models.Mask, minSize int) int {
	removed := 0
	for _, comp := range labeling.Components(m, labeling.Conn4) {
		if len(comp) >= minSize {
			continue
		}
		for _, idx := range comp {
			m.Data[idx] = false
		}
		removed++
	}
	return removed
}
