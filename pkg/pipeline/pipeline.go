package pipeline

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/stat"

	"cellwatershed/internal/logger"
	"cellwatershed/internal/models"
	"cellwatershed/pkg/aggregation"
	"cellwatershed/pkg/config"
	"cellwatershed/pkg/labeling"
	"cellwatershed/pkg/morphology"
	"cellwatershed/pkg/scoring"
	"cellwatershed/pkg/threshold"
)

// Metrics summarizes one pipeline run.
type Metrics struct {
	// InteriorMean is the mean interior probability over the input grid
	InteriorMean float64

	// InteriorMin and InteriorMax bound the interior probabilities
	InteriorMin, InteriorMax float64

	// ForegroundPixels is the mask size after small-object removal
	ForegroundPixels int

	// RemovedObjects counts components cleared by small-object removal
	RemovedObjects int

	// InitialInstances is the number of connected components labeled
	InitialInstances int

	// FinalInstances counts labels that still own pixels after refinement
	FinalInstances int

	// DegenerateLabels counts labels voted class 0 for lack of votes
	DegenerateLabels int

	// Agreement is the fraction of instances whose predicted type matches the truth
	Agreement float64

	// BalancedAccuracy is the mean per-class recall
	BalancedAccuracy float64

	// SegmentationTime and ClassificationTime are wall-clock stage durations
	SegmentationTime   time.Duration
	ClassificationTime time.Duration
}

// Params holds the pipeline parameters.
type Params struct {
	// Config carries thresholds, refinement strategy and label set
	Config *config.Config

	// SaveIntermediaryResults determines whether to save every stage's raster.
	// Files are written only once the whole run has succeeded.
	SaveIntermediaryResults bool

	// IntermediaryDir is the directory where intermediary results will be saved
	IntermediaryDir string
}

// Inputs are the network outputs and ground truth of one image.
type Inputs struct {
	// Probabilities are the edge / interior / cell maps of the segmentation net
	Probabilities *models.ProbabilityVolume

	// Classes is the per-pixel argmax of the classification net
	Classes *models.ClassRaster

	// Truth is the ground-truth cell-type raster
	Truth *models.ClassRaster
}

// Outputs holds every raster produced by a run.
type Outputs struct {
	Threshold     *threshold.Result
	InitialLabels *models.LabelRaster

	// InstanceSeg is the refined instance segmentation, on the common grid
	InstanceSeg *models.LabelRaster

	// Background is the interior probability map on the same grid, drawn
	// under unlabeled pixels of the previews
	Background *models.FloatRaster

	Aggregation *aggregation.Result
	Report      *scoring.Report
}

// Pipeline runs thresholding, labeling, refinement, aggregation and scoring.
type Pipeline struct {
	params  *Params
	log     *logger.Logger
	refiner *morphology.Refiner
	outputs *Outputs
	metrics Metrics
	pending []pendingResult
}

// NewPipeline validates params and prepares the refinement strategy. A nil
// logger discards diagnostics.
func NewPipeline(params *Params, log *logger.Logger) (*Pipeline, error) {
	if params == nil || params.Config == nil {
		return nil, fmt.Errorf("pipeline needs a configuration")
	}
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	seg := params.Config.Segmentation
	strategy, err := morphology.StrategyByName(seg.Strategy, seg.FinalErosions)
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		params:  params,
		log:     log,
		refiner: morphology.NewRefiner(strategy),
	}, nil
}

// checkGrids verifies that the three inputs share a grid once trimmed, so that
// no stage runs on inputs that would fail later.
func (p *Pipeline) checkGrids(in *Inputs) (models.Shape, error) {
	if in.Probabilities == nil || in.Classes == nil || in.Truth == nil {
		return models.Shape{}, fmt.Errorf("inputs are incomplete")
	}
	probShape, err := in.Probabilities.Shape()
	if err != nil {
		return models.Shape{}, fmt.Errorf("segmentation: %w", err)
	}
	trimmed := func(s models.Shape, border int) models.Shape {
		return models.Shape{Width: s.Width - 2*border, Height: s.Height - 2*border}
	}
	cfg := p.params.Config.Input
	seg := trimmed(probShape, cfg.TrimSegmentation)
	if seg.Width <= 0 || seg.Height <= 0 {
		return models.Shape{}, fmt.Errorf("segmentation grid %s is smaller than its trim margin %d", probShape, cfg.TrimSegmentation)
	}
	if err := models.CheckShapes("classification grid", seg, trimmed(in.Classes.Shape(), cfg.TrimClassification)); err != nil {
		return models.Shape{}, err
	}
	if err := models.CheckShapes("truth grid", seg, trimmed(in.Truth.Shape(), cfg.TrimTruth)); err != nil {
		return models.Shape{}, err
	}
	return seg, nil
}

// Segment thresholds the probability maps, labels the foreground and refines
// the labels into the instance segmentation.
func (p *Pipeline) Segment(probs *models.ProbabilityVolume) (*models.LabelRaster, error) {
	seg := p.params.Config.Segmentation
	res, err := threshold.Apply(probs, p.params.Config.Thresholds(), seg.MinSize)
	if err != nil {
		return nil, fmt.Errorf("threshold: %w", err)
	}
	p.metrics.InteriorMean = stat.Mean(probs.Interior.Data, nil)
	p.metrics.InteriorMin, p.metrics.InteriorMax = probs.Interior.Range()
	p.metrics.ForegroundPixels = res.Foreground.Count()
	p.metrics.RemovedObjects = res.Removed
	p.log.Info("threshold", "foreground mask built", map[string]interface{}{
		"foreground_pixels": p.metrics.ForegroundPixels,
		"removed_objects":   res.Removed,
		"interior_mean":     p.metrics.InteriorMean,
		"interior_min":      p.metrics.InteriorMin,
		"interior_max":      p.metrics.InteriorMax,
	})

	initial := labeling.Label(res.Foreground, labeling.Conn8)
	p.metrics.InitialInstances = int(initial.Max())
	p.log.Info("labeling", "connected components labeled", map[string]interface{}{
		"instances": p.metrics.InitialInstances,
	})

	labels := initial.Clone()
	if err := p.refiner.Refine(labels, res.Interior); err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	if _, err := labels.ToUint16(); err != nil {
		return nil, fmt.Errorf("refine: %w", err)
	}
	p.metrics.FinalInstances = countLabels(labels)
	p.log.Info("morphology", "labels refined", map[string]interface{}{
		"strategy":  p.refiner.Strategy().Name,
		"steps":     len(p.refiner.Strategy().Steps),
		"instances": p.metrics.FinalInstances,
	})

	if p.outputs == nil {
		p.outputs = &Outputs{}
	}
	p.outputs.Threshold = res
	p.outputs.InitialLabels = initial
	p.outputs.InstanceSeg = labels

	p.queue("01_threshold/interior_bound.tif", res.Interior)
	p.queue("01_threshold/edge_bound.tif", res.Edge)
	p.queue("01_threshold/cell_notcell.tif", res.CellNotCell)
	p.queue("01_threshold/foreground.tif", res.Foreground)
	p.queue("02_labels/initial_instance_seg.tif", initial)
	p.queue("03_refined/instance_seg.tif", labels)

	return labels, nil
}

// Classify votes one type per instance and scores it against the truth.
func (p *Pipeline) Classify(instances *models.LabelRaster, classes, truth *models.ClassRaster) (*aggregation.Result, *scoring.Report, error) {
	agg, err := aggregation.NewAggregator(p.params.Config.Classification.NumCores, p.log).
		Aggregate(instances, classes, truth)
	if err != nil {
		return nil, nil, fmt.Errorf("aggregate: %w", err)
	}
	report, err := scoring.Score(agg.Vectors.Predicted, agg.Vectors.Truth, p.params.Config.Classification.Labels)
	if err != nil {
		return nil, nil, fmt.Errorf("score: %w", err)
	}

	p.metrics.DegenerateLabels = len(agg.Degenerate)
	p.metrics.Agreement = report.Agreement
	p.metrics.BalancedAccuracy = report.BalancedAccuracy
	p.log.Info("scoring", "instances classified", map[string]interface{}{
		"instances":         len(agg.Vectors.Predicted),
		"agreement":         report.Agreement,
		"balanced_accuracy": report.BalancedAccuracy,
		"skipped":           report.Skipped,
	})

	if p.outputs == nil {
		p.outputs = &Outputs{}
	}
	p.outputs.Aggregation = agg
	p.outputs.Report = report

	p.queue("04_classification/instance_type_prediction.tif", agg.PredictedTypes)
	p.queue("04_classification/instance_type_truth.tif", agg.TruthTypes)

	return agg, report, nil
}

// Process runs the complete pipeline on one image.
func (p *Pipeline) Process(in *Inputs) error {
	p.outputs = &Outputs{}
	p.metrics = Metrics{}
	p.pending = nil

	grid, err := p.checkGrids(in)
	if err != nil {
		return err
	}
	p.log.Debug("pipeline", "inputs validated", map[string]interface{}{"grid": grid.String()})

	trim := p.params.Config.Input

	start := time.Now()
	labels, err := p.Segment(in.Probabilities)
	if err != nil {
		return err
	}
	if labels, err = labels.Trim(trim.TrimSegmentation); err != nil {
		return fmt.Errorf("trim segmentation: %w", err)
	}
	p.outputs.InstanceSeg = labels
	if p.outputs.Background, err = in.Probabilities.Interior.Trim(trim.TrimSegmentation); err != nil {
		return fmt.Errorf("trim segmentation: %w", err)
	}
	p.metrics.SegmentationTime = time.Since(start)

	classes, err := in.Classes.Trim(trim.TrimClassification)
	if err != nil {
		return fmt.Errorf("trim classification: %w", err)
	}
	truth, err := in.Truth.Trim(trim.TrimTruth)
	if err != nil {
		return fmt.Errorf("trim truth: %w", err)
	}

	start = time.Now()
	if _, _, err := p.Classify(labels, classes, truth); err != nil {
		return err
	}
	p.metrics.ClassificationTime = time.Since(start)

	if err := p.flushIntermediary(); err != nil {
		p.log.Warning("pipeline", "failed to save intermediary results", map[string]interface{}{"error": err.Error()})
	}
	return nil
}

// GetMetrics returns the metrics of the last run
func (p *Pipeline) GetMetrics() Metrics {
	return p.metrics
}

// Outputs returns the rasters of the last run, nil before any run
func (p *Pipeline) Outputs() *Outputs {
	return p.outputs
}

// countLabels returns the number of distinct positive labels present
func countLabels(l *models.LabelRaster) int {
	n := 0
	for id, size := range labeling.Sizes(l) {
		if id > 0 && size > 0 {
			n++
		}
	}
	return n
}
