// Package rasterio reads and writes pipeline rasters as single-channel TIFF files.
package rasterio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/tiff"

	"cellwatershed/internal/models"
)

// decode reads a TIFF image from path
func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, err := tiff.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// ReadFloat loads a probability map. 32- and 64-bit float samples are read
// as stored; 8- and 16-bit samples are scaled to [0, 1].
func ReadFloat(path string) (*models.FloatRaster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if d, err := readIFD(data); err == nil && d.isFloat() {
		r, err := decodeFloat(data, d)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return r, nil
	}

	img, err := tiff.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	b := img.Bounds()
	out := models.NewFloatRaster(b.Dx(), b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v float64
			switch im := img.(type) {
			case *image.Gray:
				v = float64(im.GrayAt(x, y).Y) / math.MaxUint8
			case *image.Gray16:
				v = float64(im.Gray16At(x, y).Y) / math.MaxUint16
			default:
				v = float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y) / math.MaxUint16
			}
			out.Set(x-b.Min.X, y-b.Min.Y, v)
		}
	}
	return out, nil
}

// readInts returns the raw integer sample of every pixel.
func readInts(path string) ([]int32, int, int, error) {
	img, err := decode(path)
	if err != nil {
		return nil, 0, 0, err
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	data := make([]int32, w*h)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			var v int32
			switch im := img.(type) {
			case *image.Gray:
				v = int32(im.GrayAt(x, y).Y)
			case *image.Gray16:
				v = int32(im.Gray16At(x, y).Y)
			default:
				return nil, 0, 0, fmt.Errorf("%s: %T is not a single-channel integer raster", path, img)
			}
			data[(y-b.Min.Y)*w+(x-b.Min.X)] = v
		}
	}
	return data, w, h, nil
}

// ReadClasses loads a classification raster (predicted or ground truth).
func ReadClasses(path string) (*models.ClassRaster, error) {
	data, w, h, err := readInts(path)
	if err != nil {
		return nil, err
	}
	return &models.ClassRaster{Data: data, Width: w, Height: h}, nil
}

// ReadLabels loads an instance label raster.
func ReadLabels(path string) (*models.LabelRaster, error) {
	data, w, h, err := readInts(path)
	if err != nil {
		return nil, err
	}
	return &models.LabelRaster{Data: data, Width: w, Height: h}, nil
}

func encodeGray16(w io.Writer, width, height int, pix func(i int) uint16) error {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		img.SetGray16(i%width, i/width, color.Gray16{Y: pix(i)})
	}
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

func create(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// WriteLabels writes an instance label raster as 16-bit TIFF.
func WriteLabels(path string, l *models.LabelRaster) error {
	pix, err := l.ToUint16()
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return create(path, func(w io.Writer) error {
		return encodeGray16(w, l.Width, l.Height, func(i int) uint16 { return pix[i] })
	})
}

// WriteClasses writes a class raster as 16-bit TIFF. Negative classes are rejected.
func WriteClasses(path string, c *models.ClassRaster) error {
	for i, v := range c.Data {
		if v < 0 || v > math.MaxUint16 {
			return fmt.Errorf("write %s: pixel %d holds class %d outside uint16", path, i, v)
		}
	}
	return create(path, func(w io.Writer) error {
		return encodeGray16(w, c.Width, c.Height, func(i int) uint16 { return uint16(c.Data[i]) })
	})
}

// WriteMask writes a binary mask with foreground at full scale.
func WriteMask(path string, m *models.Mask) error {
	return create(path, func(w io.Writer) error {
		return encodeGray16(w, m.Width, m.Height, func(i int) uint16 {
			if m.Data[i] {
				return math.MaxUint16
			}
			return 0
		})
	})
}

// WriteFloat writes a probability map scaled to 16 bits.
func WriteFloat(path string, r *models.FloatRaster) error {
	return create(path, func(w io.Writer) error {
		return encodeGray16(w, r.Width, r.Height, func(i int) uint16 {
			v := math.Max(0, math.Min(1, r.Data[i]))
			return uint16(math.Round(v * math.MaxUint16))
		})
	})
}
