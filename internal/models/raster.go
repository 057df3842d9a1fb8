package models

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrShapeMismatch is returned whenever two rasters expected to share a grid do not.
var ErrShapeMismatch = errors.New("raster shape mismatch")

// ErrLabelOverflow is returned when a label does not fit the exported integer width.
var ErrLabelOverflow = errors.New("label exceeds uint16 range")

// Shape is the width and height of a raster grid
type Shape struct {
	Width  int
	Height int
}

// Len returns the number of pixels in the grid
func (s Shape) Len() int { return s.Width * s.Height }

func (s Shape) String() string { return fmt.Sprintf("%dx%d", s.Width, s.Height) }

// CheckShapes returns ErrShapeMismatch, naming both shapes, when a and b differ.
func CheckShapes(what string, a, b Shape) error {
	if a != b {
		return fmt.Errorf("%s: %s vs %s: %w", what, a, b, ErrShapeMismatch)
	}
	return nil
}

// FloatRaster is a dense 2D grid of probabilities stored in row-major order
type FloatRaster struct {
	// Data holds Width*Height values, index y*Width+x
	Data []float64

	Width  int
	Height int
}

// NewFloatRaster allocates a zeroed float raster
func NewFloatRaster(width, height int) *FloatRaster {
	return &FloatRaster{Data: make([]float64, width*height), Width: width, Height: height}
}

func (r *FloatRaster) Shape() Shape { return Shape{r.Width, r.Height} }

// At returns the value at (x, y)
func (r *FloatRaster) At(x, y int) float64 { return r.Data[y*r.Width+x] }

// Set stores v at (x, y)
func (r *FloatRaster) Set(x, y int, v float64) { r.Data[y*r.Width+x] = v }

// Range returns the smallest and largest value in the raster.
func (r *FloatRaster) Range() (lo, hi float64) {
	if len(r.Data) == 0 {
		return 0, 0
	}
	return floats.Min(r.Data), floats.Max(r.Data)
}

// Mask is a binary raster
type Mask struct {
	Data   []bool
	Width  int
	Height int
}

// NewMask allocates an all-false mask
func NewMask(width, height int) *Mask {
	return &Mask{Data: make([]bool, width*height), Width: width, Height: height}
}

func (m *Mask) Shape() Shape { return Shape{m.Width, m.Height} }

func (m *Mask) At(x, y int) bool { return m.Data[y*m.Width+x] }

func (m *Mask) Set(x, y int, v bool) { m.Data[y*m.Width+x] = v }

// Count returns the number of true pixels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the mask
func (m *Mask) Clone() *Mask {
	out := NewMask(m.Width, m.Height)
	copy(out.Data, m.Data)
	return out
}

// LabelRaster holds one instance id per pixel. 0 is background.
type LabelRaster struct {
	Data   []int32
	Width  int
	Height int
}

// NewLabelRaster allocates an all-background label raster
func NewLabelRaster(width, height int) *LabelRaster {
	return &LabelRaster{Data: make([]int32, width*height), Width: width, Height: height}
}

func (l *LabelRaster) Shape() Shape { return Shape{l.Width, l.Height} }

func (l *LabelRaster) At(x, y int) int32 { return l.Data[y*l.Width+x] }

func (l *LabelRaster) Set(x, y int, v int32) { l.Data[y*l.Width+x] = v }

// Max returns the largest label present, 0 for an empty raster
func (l *LabelRaster) Max() int32 {
	var max int32
	for _, v := range l.Data {
		if v > max {
			max = v
		}
	}
	return max
}

// Clone returns a deep copy of the raster
func (l *LabelRaster) Clone() *LabelRaster {
	out := NewLabelRaster(l.Width, l.Height)
	copy(out.Data, l.Data)
	return out
}

// ToUint16 converts the labels to the 16-bit form written to disk.
func (l *LabelRaster) ToUint16() ([]uint16, error) {
	out := make([]uint16, len(l.Data))
	for i, v := range l.Data {
		if v < 0 || v > math.MaxUint16 {
			return nil, fmt.Errorf("pixel %d holds label %d: %w", i, v, ErrLabelOverflow)
		}
		out[i] = uint16(v)
	}
	return out, nil
}

// ClassRaster holds a class index per pixel. Negative values mean "no vote".
type ClassRaster struct {
	Data   []int32
	Width  int
	Height int
}

// NewClassRaster allocates a raster filled with class 0
func NewClassRaster(width, height int) *ClassRaster {
	return &ClassRaster{Data: make([]int32, width*height), Width: width, Height: height}
}

func (c *ClassRaster) Shape() Shape { return Shape{c.Width, c.Height} }

func (c *ClassRaster) At(x, y int) int32 { return c.Data[y*c.Width+x] }

func (c *ClassRaster) Set(x, y int, v int32) { c.Data[y*c.Width+x] = v }

// ProbabilityVolume is the three-channel segmentation network output.
type ProbabilityVolume struct {
	// Edge is the probability that a pixel lies on a cell boundary
	Edge *FloatRaster

	// Interior is the probability that a pixel lies inside a cell
	Interior *FloatRaster

	// Cell is the cell / not-cell probability
	Cell *FloatRaster
}

// Shape returns the common grid shape, or ErrShapeMismatch if the channels disagree.
func (p *ProbabilityVolume) Shape() (Shape, error) {
	if p.Edge == nil || p.Interior == nil || p.Cell == nil {
		return Shape{}, errors.New("probability volume is missing a channel")
	}
	s := p.Edge.Shape()
	if err := CheckShapes("interior channel", s, p.Interior.Shape()); err != nil {
		return Shape{}, err
	}
	if err := CheckShapes("cell channel", s, p.Cell.Shape()); err != nil {
		return Shape{}, err
	}
	return s, nil
}

// ClassVolume is a per-pixel class probability volume in row-major order,
// with the class axis innermost: index (y*Width+x)*Classes + c.
type ClassVolume struct {
	Data    []float64
	Width   int
	Height  int
	Classes int
}

func (v *ClassVolume) Shape() Shape { return Shape{v.Width, v.Height} }

// Argmax collapses the class axis, picking the most probable class per pixel.
// Ties go to the lowest class index.
func (v *ClassVolume) Argmax() (*ClassRaster, error) {
	if v.Classes <= 0 {
		return nil, fmt.Errorf("class volume has %d classes", v.Classes)
	}
	if len(v.Data) != v.Width*v.Height*v.Classes {
		return nil, fmt.Errorf("class volume holds %d values, want %d: %w",
			len(v.Data), v.Width*v.Height*v.Classes, ErrShapeMismatch)
	}
	out := NewClassRaster(v.Width, v.Height)
	for i := range out.Data {
		probs := v.Data[i*v.Classes : (i+1)*v.Classes]
		out.Data[i] = int32(floats.MaxIdx(probs))
	}
	return out, nil
}
