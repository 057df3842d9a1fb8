package models

import "fmt"

// trim crops border pixels from every side of a row-major grid.
func trim[T any](data []T, w, h, border int) ([]T, int, int, error) {
	if border == 0 {
		return data, w, h, nil
	}
	if border < 0 || 2*border >= w || 2*border >= h {
		return nil, 0, 0, fmt.Errorf("cannot trim %d pixels from a %dx%d raster", border, w, h)
	}
	nw, nh := w-2*border, h-2*border
	out := make([]T, 0, nw*nh)
	for y := border; y < h-border; y++ {
		row := y * w
		out = append(out, data[row+border:row+w-border]...)
	}
	return out, nw, nh, nil
}

// Trim returns a copy without border pixels on each side.
func (r *FloatRaster) Trim(border int) (*FloatRaster, error) {
	data, w, h, err := trim(r.Data, r.Width, r.Height, border)
	if err != nil {
		return nil, err
	}
	return &FloatRaster{Data: data, Width: w, Height: h}, nil
}

// Trim returns a copy without border pixels on each side.
func (l *LabelRaster) Trim(border int) (*LabelRaster, error) {
	data, w, h, err := trim(l.Data, l.Width, l.Height, border)
	if err != nil {
		return nil, err
	}
	return &LabelRaster{Data: data, Width: w, Height: h}, nil
}

// Trim returns a copy without border pixels on each side.
func (c *ClassRaster) Trim(border int) (*ClassRaster, error) {
	data, w, h, err := trim(c.Data, c.Width, c.Height, border)
	if err != nil {
		return nil, err
	}
	return &ClassRaster{Data: data, Width: w, Height: h}, nil
}
