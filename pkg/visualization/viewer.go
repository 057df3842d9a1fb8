package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"cellwatershed/internal/models"
)

// Viewer renders instance segmentations as color previews for inspection.
type Viewer struct {
	// labels holds the instance segmentation being rendered
	labels *models.LabelRaster

	// background, if set, is drawn in gray under unlabeled pixels
	background *models.FloatRaster
}

// NewViewer creates a viewer over labels. background may be nil.
func NewViewer(labels *models.LabelRaster, background *models.FloatRaster) (*Viewer, error) {
	if background != nil {
		if err := models.CheckShapes("viewer background", labels.Shape(), background.Shape()); err != nil {
			return nil, err
		}
	}
	return &Viewer{labels: labels, background: background}, nil
}

// LabelColor maps a label to a stable, well-spread color. Label 0 is black.
func LabelColor(label int32) color.RGBA {
	if label <= 0 {
		return color.RGBA{A: 255}
	}
	// golden-ratio hue walk keeps neighbouring ids apart
	h := math.Mod(float64(label)*0.618033988749895, 1)
	r, g, b := hsvToRGB(h, 0.65, 0.95)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func hsvToRGB(h, s, v float64) (uint8, uint8, uint8) {
	i := math.Floor(h * 6)
	f := h*6 - i
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)
	var r, g, b float64
	switch int(i) % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return uint8(r * 255), uint8(g * 255), uint8(b * 255)
}

func (v *Viewer) backgroundAt(i int) color.RGBA {
	if v.background == nil {
		return color.RGBA{A: 255}
	}
	g := uint8(math.Max(0, math.Min(1, v.background.Data[i])) * 255)
	return color.RGBA{R: g, G: g, B: g, A: 255}
}

// Colorize paints each instance in its label color over the background.
func (v *Viewer) Colorize() image.Image {
	w, h := v.labels.Width, v.labels.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i, l := range v.labels.Data {
		c := v.backgroundAt(i)
		if l > 0 {
			c = LabelColor(l)
		}
		img.SetRGBA(i%w, i/w, c)
	}
	return img
}

// IsBoundary reports whether (x, y) is labeled and touches a pixel with a
// different label, or the raster edge, along the 4-neighbour cross.
func (v *Viewer) IsBoundary(x, y int) bool {
	l := v.labels.At(x, y)
	if l == 0 {
		return false
	}
	for _, d := range [][2]int{{0, -1}, {1, 0}, {0, 1}, {-1, 0}} {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= v.labels.Width || ny >= v.labels.Height {
			return true
		}
		if v.labels.At(nx, ny) != l {
			return true
		}
	}
	return false
}

// Outlines draws instance boundaries in their label color over the background.
func (v *Viewer) Outlines() image.Image {
	w, h := v.labels.Width, v.labels.Height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := v.backgroundAt(y*w + x)
			if v.IsBoundary(x, y) {
				c = LabelColor(v.labels.At(x, y))
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

// ExtractRegion crops a rectangle out of the colorized segmentation
func (v *Viewer) ExtractRegion(startX, startY, sizeX, sizeY int) (image.Image, error) {
	if startX < 0 || startY < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}

	if sizeX <= 0 || sizeY <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}

	if startX+sizeX > v.labels.Width || startY+sizeY > v.labels.Height {
		return nil, fmt.Errorf("region extends beyond raster boundaries")
	}

	full := v.Colorize().(*image.RGBA)
	return full.SubImage(image.Rect(startX, startY, startX+sizeX, startY+sizeY)), nil
}

// classPalette colors the 17 cell-type classes; class 0 is black.
var classPalette = []color.RGBA{
	{0, 0, 0, 255},
	{230, 25, 75, 255}, {60, 180, 75, 255}, {255, 225, 25, 255}, {0, 130, 200, 255},
	{245, 130, 48, 255}, {145, 30, 180, 255}, {70, 240, 240, 255}, {240, 50, 230, 255},
	{210, 245, 60, 255}, {250, 190, 212, 255}, {0, 128, 128, 255}, {220, 190, 255, 255},
	{170, 110, 40, 255}, {255, 250, 200, 255}, {128, 0, 0, 255}, {170, 255, 195, 255},
}

// ClassColor returns the palette color of a cell-type class. Classes outside
// the palette are drawn white.
func ClassColor(class int32) color.RGBA {
	if class < 0 || int(class) >= len(classPalette) {
		return color.RGBA{255, 255, 255, 255}
	}
	return classPalette[class]
}

// RenderTypes colors an instance type raster by class.
func RenderTypes(types *models.ClassRaster) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, types.Width, types.Height))
	for i, c := range types.Data {
		img.SetRGBA(i%types.Width, i/types.Width, ClassColor(c))
	}
	return img
}

// SavePNG writes img to filename, creating parent directories.
func SavePNG(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}
