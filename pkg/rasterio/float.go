package rasterio

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/image/tiff/lzw"

	"cellwatershed/internal/models"
)

// ErrUnsupported reports a TIFF layout the float reader does not handle.
var ErrUnsupported = errors.New("unsupported tiff layout")

// TIFF tags and field values read by the float decoder
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPredictor       = 317
	tagTileWidth       = 322
	tagSampleFormat    = 339

	fieldShort = 3
	fieldLong  = 4

	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionOldDeflate = 32946

	sampleFormatFloat = 3
)

// ifd holds the first image directory of a TIFF file.
type ifd struct {
	order   binary.ByteOrder
	entries map[uint16][]uint32
}

// value returns the first value of tag, or def when the tag is absent.
func (d *ifd) value(tag uint16, def uint32) uint32 {
	if v := d.entries[tag]; len(v) > 0 {
		return v[0]
	}
	return def
}

// readIFD parses the header and first directory, keeping SHORT and LONG fields.
func readIFD(data []byte) (*ifd, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("not a valid TIFF file")
	}
	var order binary.ByteOrder
	switch {
	case data[0] == 'I' && data[1] == 'I':
		order = binary.LittleEndian
	case data[0] == 'M' && data[1] == 'M':
		order = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a valid TIFF file")
	}
	if order.Uint16(data[2:4]) != 42 {
		return nil, fmt.Errorf("not a classic TIFF file: %w", ErrUnsupported)
	}

	off := int(order.Uint32(data[4:8]))
	if off+2 > len(data) {
		return nil, fmt.Errorf("directory offset %d past end of file", off)
	}
	n := int(order.Uint16(data[off : off+2]))
	d := &ifd{order: order, entries: make(map[uint16][]uint32, n)}

	for i := 0; i < n; i++ {
		e := off + 2 + i*12
		if e+12 > len(data) {
			return nil, fmt.Errorf("directory entry %d past end of file", i)
		}
		tag := order.Uint16(data[e : e+2])
		fieldType := order.Uint16(data[e+2 : e+4])
		count := int(order.Uint32(data[e+4 : e+8]))

		var size int
		switch fieldType {
		case fieldShort:
			size = 2
		case fieldLong:
			size = 4
		default:
			continue
		}
		raw := data[e+8 : e+12]
		if count*size > 4 {
			at := int(order.Uint32(raw))
			if count < 0 || at+count*size > len(data) {
				return nil, fmt.Errorf("tag %d values past end of file", tag)
			}
			raw = data[at : at+count*size]
		}
		vals := make([]uint32, count)
		for j := range vals {
			if size == 2 {
				vals[j] = uint32(order.Uint16(raw[j*2:]))
			} else {
				vals[j] = order.Uint32(raw[j*4:])
			}
		}
		d.entries[tag] = vals
	}
	return d, nil
}

// isFloat reports whether the directory describes IEEE floating point samples.
func (d *ifd) isFloat() bool {
	return d.value(tagSampleFormat, 1) == sampleFormatFloat
}

func inflate(compression uint32, strip []byte) ([]byte, error) {
	switch compression {
	case compressionNone:
		return strip, nil
	case compressionDeflate, compressionOldDeflate:
		r, err := zlib.NewReader(bytes.NewReader(strip))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(strip), lzw.MSB, 8)
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("compression %d: %w", compression, ErrUnsupported)
	}
}

// decodeFloat reads a single-channel, stripped, 32- or 64-bit float raster.
func decodeFloat(data []byte, d *ifd) (*models.FloatRaster, error) {
	if _, tiled := d.entries[tagTileWidth]; tiled {
		return nil, fmt.Errorf("tiled float raster: %w", ErrUnsupported)
	}
	if spp := d.value(tagSamplesPerPixel, 1); spp != 1 {
		return nil, fmt.Errorf("%d samples per pixel: %w", spp, ErrUnsupported)
	}
	if p := d.value(tagPredictor, 1); p != 1 {
		return nil, fmt.Errorf("predictor %d: %w", p, ErrUnsupported)
	}
	bits := d.value(tagBitsPerSample, 0)
	if bits != 32 && bits != 64 {
		return nil, fmt.Errorf("%d-bit float samples: %w", bits, ErrUnsupported)
	}

	w, h := int(d.value(tagImageWidth, 0)), int(d.value(tagImageLength, 0))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", w, h)
	}
	offsets, counts := d.entries[tagStripOffsets], d.entries[tagStripByteCounts]
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, fmt.Errorf("strip offsets and byte counts disagree")
	}

	compression := d.value(tagCompression, compressionNone)
	pix := make([]byte, 0, w*h*int(bits/8))
	for i, off := range offsets {
		end := int(off) + int(counts[i])
		if end > len(data) {
			return nil, fmt.Errorf("strip %d past end of file", i)
		}
		strip, err := inflate(compression, data[off:end])
		if err != nil {
			return nil, fmt.Errorf("strip %d: %w", i, err)
		}
		pix = append(pix, strip...)
	}

	out := models.NewFloatRaster(w, h)
	step := int(bits / 8)
	if len(pix) < len(out.Data)*step {
		return nil, fmt.Errorf("got %d sample bytes, want %d", len(pix), len(out.Data)*step)
	}
	for i := range out.Data {
		if bits == 32 {
			out.Data[i] = float64(math.Float32frombits(d.order.Uint32(pix[i*4:])))
		} else {
			out.Data[i] = math.Float64frombits(d.order.Uint64(pix[i*8:]))
		}
	}
	return out, nil
}
