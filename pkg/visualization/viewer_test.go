package visualization

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"cellwatershed/internal/models"
)

// testLabels returns a 7x4 raster with label 1 on the left half and 2 on the right,
// and one unlabeled column in the middle.
func testLabels() *models.LabelRaster {
	l := models.NewLabelRaster(7, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 3; x++ {
			l.Set(x, y, 1)
			l.Set(x+4, y, 2)
		}
	}
	return l
}

// TestNewViewer verifies shape checking of the background raster
func TestNewViewer(t *testing.T) {
	if _, err := NewViewer(testLabels(), nil); err != nil {
		t.Fatalf("Unexpected error without background: %v", err)
	}

	if _, err := NewViewer(testLabels(), models.NewFloatRaster(7, 4)); err != nil {
		t.Fatalf("Unexpected error with matching background: %v", err)
	}

	if _, err := NewViewer(testLabels(), models.NewFloatRaster(4, 7)); err == nil {
		t.Errorf("Expected error for mismatched background")
	}
}

// TestLabelColor checks that background is black and labels get distinct colors
func TestLabelColor(t *testing.T) {
	if c := LabelColor(0); c != (color.RGBA{A: 255}) {
		t.Errorf("Expected black for background, got %v", c)
	}

	seen := make(map[color.RGBA]int32)
	for l := int32(1); l <= 20; l++ {
		c := LabelColor(l)
		if prev, ok := seen[c]; ok {
			t.Errorf("Labels %d and %d share color %v", prev, l, c)
		}
		seen[c] = l
		if LabelColor(l) != c {
			t.Errorf("Color of label %d is not stable", l)
		}
	}
}

// TestColorize verifies labeled pixels take their label color and the gap keeps the background
func TestColorize(t *testing.T) {
	bg := models.NewFloatRaster(7, 4)
	for i := range bg.Data {
		bg.Data[i] = 1
	}
	viewer, err := NewViewer(testLabels(), bg)
	if err != nil {
		t.Fatalf("NewViewer failed: %v", err)
	}

	img := viewer.Colorize().(*image.RGBA)
	if got := img.RGBAAt(0, 0); got != LabelColor(1) {
		t.Errorf("Expected label 1 color at (0,0), got %v", got)
	}
	if got := img.RGBAAt(5, 2); got != LabelColor(2) {
		t.Errorf("Expected label 2 color at (5,2), got %v", got)
	}
	if got := img.RGBAAt(3, 1); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected white background at (3,1), got %v", got)
	}
}

// TestIsBoundary checks edge, gap and interior pixels
func TestIsBoundary(t *testing.T) {
	viewer, _ := NewViewer(testLabels(), nil)

	cases := []struct {
		x, y int
		want bool
	}{
		{0, 1, true},  // raster edge
		{2, 1, true},  // next to the gap
		{1, 1, false}, // inside label 1
		{3, 1, false}, // unlabeled
		{5, 2, false}, // inside label 2
	}
	for _, c := range cases {
		if got := viewer.IsBoundary(c.x, c.y); got != c.want {
			t.Errorf("IsBoundary(%d,%d) = %v, want %v", c.x, c.y, got, c.want)
		}
	}
}

// TestExtractRegion verifies bounds checking and the cropped size
func TestExtractRegion(t *testing.T) {
	viewer, _ := NewViewer(testLabels(), nil)

	region, err := viewer.ExtractRegion(1, 1, 3, 2)
	if err != nil {
		t.Fatalf("ExtractRegion failed: %v", err)
	}
	if b := region.Bounds(); b.Dx() != 3 || b.Dy() != 2 {
		t.Errorf("Expected 3x2 region, got %dx%d", b.Dx(), b.Dy())
	}

	for _, args := range [][4]int{{-1, 0, 2, 2}, {0, 0, 0, 2}, {5, 0, 3, 2}} {
		if _, err := viewer.ExtractRegion(args[0], args[1], args[2], args[3]); err == nil {
			t.Errorf("Expected error for region %v", args)
		}
	}
}

// TestSavePNG writes both renderings to disk
func TestSavePNG(t *testing.T) {
	dir := t.TempDir()
	viewer, _ := NewViewer(testLabels(), nil)

	types := models.NewClassRaster(7, 4)
	types.Set(0, 0, 3)
	types.Set(6, 3, 42)

	for name, img := range map[string]image.Image{
		"outlines.png": viewer.Outlines(),
		"types.png":    RenderTypes(types),
	} {
		path := filepath.Join(dir, "preview", name)
		if err := SavePNG(img, path); err != nil {
			t.Fatalf("SavePNG %s failed: %v", name, err)
		}
		if info, err := os.Stat(path); err != nil || info.Size() == 0 {
			t.Errorf("Expected non-empty file %s", path)
		}
	}

	if ClassColor(42) != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("Expected white for out-of-palette class")
	}
}
