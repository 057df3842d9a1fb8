package pipeline

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"cellwatershed/internal/models"
	"cellwatershed/pkg/rasterio"
	"cellwatershed/pkg/visualization"
)

// Output file names
const (
	InstanceSegFile     = "instance_seg.tif"
	TypePredictionFile  = "instance_type_prediction.tif"
	TypeTruthFile       = "instance_type_truth.tif"
	SegmentationPreview = "instance_seg_preview.png"
	TypePreview         = "instance_type_prediction_preview.png"
	RegionPreview       = "instance_seg_region.png"
)

type pendingResult struct {
	stage string
	data  interface{}
}

// queue records an intermediary result; nothing touches disk until the run succeeds.
func (p *Pipeline) queue(stage string, data interface{}) {
	if !p.params.SaveIntermediaryResults {
		return
	}
	p.pending = append(p.pending, pendingResult{stage: stage, data: data})
}

func (p *Pipeline) flushIntermediary() error {
	var errs []error
	for _, r := range p.pending {
		if err := saveResult(filepath.Join(p.params.IntermediaryDir, r.stage), r.data); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.stage, err))
		}
	}
	if len(p.pending) > 0 {
		p.log.Info("pipeline", "intermediary results saved", map[string]interface{}{
			"dir":   p.params.IntermediaryDir,
			"files": len(p.pending) - len(errs),
		})
	}
	p.pending = nil
	return errors.Join(errs...)
}

// saveResult writes one raster, choosing the encoder from its type
func saveResult(path string, data interface{}) error {
	switch v := data.(type) {
	case *models.Mask:
		return rasterio.WriteMask(path, v)
	case *models.LabelRaster:
		return rasterio.WriteLabels(path, v)
	case *models.ClassRaster:
		return rasterio.WriteClasses(path, v)
	case *models.FloatRaster:
		return rasterio.WriteFloat(path, v)
	case image.Image:
		return visualization.SavePNG(v, path)
	default:
		return fmt.Errorf("no writer for %T", data)
	}
}

// WriteOutputs writes the instance segmentation, both instance type rasters
// and color previews of the last run into dir.
func (p *Pipeline) WriteOutputs(dir string) error {
	out := p.outputs
	if out == nil || out.InstanceSeg == nil || out.Aggregation == nil {
		return errors.New("no completed run to write")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	viewer, err := visualization.NewViewer(out.InstanceSeg, out.Background)
	if err != nil {
		return err
	}

	files := []pendingResult{
		{InstanceSegFile, out.InstanceSeg},
		{TypePredictionFile, out.Aggregation.PredictedTypes},
		{TypeTruthFile, out.Aggregation.TruthTypes},
		{SegmentationPreview, viewer.Outlines()},
		{TypePreview, visualization.RenderTypes(out.Aggregation.PredictedTypes)},
	}
	if r := p.params.Config.Output.PreviewRegion; r.Width > 0 && r.Height > 0 {
		region, err := viewer.ExtractRegion(r.X, r.Y, r.Width, r.Height)
		if err != nil {
			return fmt.Errorf("preview region: %w", err)
		}
		files = append(files, pendingResult{RegionPreview, region})
	}
	for _, f := range files {
		if err := saveResult(filepath.Join(dir, f.stage), f.data); err != nil {
			return fmt.Errorf("write %s: %w", f.stage, err)
		}
	}
	p.log.Info("pipeline", "outputs written", map[string]interface{}{"dir": dir, "files": len(files)})
	return nil
}
