// Package aggregation merges a dense per-pixel classification into one class
// per segmented instance by majority vote.
package aggregation

import (
	"fmt"
	"sort"
	"sync"

	"cellwatershed/internal/logger"
	"cellwatershed/internal/models"
)

// Vectors holds the voted class of every instance label 1..max, in label order.
type Vectors struct {
	Predicted []int
	Truth     []int
}

// Result is the output of Aggregate
type Result struct {
	// PredictedTypes and TruthTypes carry each instance's voted class on every
	// pixel of the instance; pixels outside any instance are 0
	PredictedTypes *models.ClassRaster
	TruthTypes     *models.ClassRaster

	Vectors Vectors

	// Degenerate lists, in ascending order, labels that had no valid vote on
	// the predicted or the truth side and were assigned class 0
	Degenerate []int32

	// EmptyLabels counts labels in 1..max with no pixels at all
	EmptyLabels int
}

// Aggregator votes instance classes using a pool of workers.
type Aggregator struct {
	numCores int
	log      *logger.Logger
}

// NewAggregator creates an aggregator running numCores workers. A nil logger
// discards diagnostics.
func NewAggregator(numCores int, log *logger.Logger) *Aggregator {
	if numCores < 1 {
		numCores = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Aggregator{numCores: numCores, log: log}
}

// buckets groups pixel indices by label in one pass. Pixels of label L are
// idx[start[L]:start[L+1]], in row-major order.
func buckets(labels *models.LabelRaster, maxLabel int32) (start []int, idx []int) {
	start = make([]int, int(maxLabel)+2)
	for _, v := range labels.Data {
		if v > 0 {
			start[v+1]++
		}
	}
	for l := 1; l < len(start); l++ {
		start[l] += start[l-1]
	}
	idx = make([]int, start[len(start)-1])
	fill := make([]int, len(start))
	copy(fill, start)
	for i, v := range labels.Data {
		if v > 0 {
			idx[fill[v]] = i
			fill[v]++
		}
	}
	return start, idx
}

// Mode returns the most frequent non-negative value in votes, the smallest
// one on ties. ok is false when there is no non-negative vote.
func Mode(votes []int32) (mode int32, ok bool) {
	counts := make(map[int32]int)
	for _, v := range votes {
		if v >= 0 {
			counts[v]++
		}
	}
	best := -1
	for v, n := range counts {
		if n > best || (n == best && v < mode) {
			mode, best = v, n
		}
	}
	return mode, best > 0
}

// voteAt is Mode over the pixels of one instance. scratch is reused between calls.
func voteAt(classes []int32, pixels []int, scratch *[]int32) (int32, bool) {
	votes := (*scratch)[:0]
	for _, p := range pixels {
		votes = append(votes, classes[p])
	}
	*scratch = votes
	return Mode(votes)
}

// Aggregate votes the predicted and truth class of every label 1..max(labels)
// and paints it back over the label's pixels.
func (a *Aggregator) Aggregate(labels *models.LabelRaster, predicted, truth *models.ClassRaster) (*Result, error) {
	if err := models.CheckShapes("aggregate predicted classes", labels.Shape(), predicted.Shape()); err != nil {
		return nil, err
	}
	if err := models.CheckShapes("aggregate truth classes", labels.Shape(), truth.Shape()); err != nil {
		return nil, err
	}

	maxLabel := labels.Max()
	start, idx := buckets(labels, maxLabel)
	n := int(maxLabel)

	res := &Result{
		PredictedTypes: models.NewClassRaster(labels.Width, labels.Height),
		TruthTypes:     models.NewClassRaster(labels.Width, labels.Height),
		Vectors: Vectors{
			Predicted: make([]int, n),
			Truth:     make([]int, n),
		},
	}

	// Labels own disjoint pixel sets, so workers never write the same pixel.
	workers := a.numCores
	if workers > n {
		workers = n
	}
	perWorker := 0
	if workers > 0 {
		perWorker = (n + workers - 1) / workers
	}
	degenerate := make([][]int32, workers)
	empty := make([]int, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			first := workerID*perWorker + 1
			last := min((workerID+1)*perWorker, n)
			var scratch []int32

			for l := first; l <= last; l++ {
				pixels := idx[start[l]:start[l+1]]
				if len(pixels) == 0 {
					empty[workerID]++
				}

				pred, okPred := voteAt(predicted.Data, pixels, &scratch)
				tru, okTruth := voteAt(truth.Data, pixels, &scratch)
				if !okPred || !okTruth {
					degenerate[workerID] = append(degenerate[workerID], int32(l))
				}

				res.Vectors.Predicted[l-1] = int(pred)
				res.Vectors.Truth[l-1] = int(tru)
				for _, p := range pixels {
					res.PredictedTypes.Data[p] = pred
					res.TruthTypes.Data[p] = tru
				}
			}
		}(w)
	}
	wg.Wait()

	for w := range degenerate {
		res.Degenerate = append(res.Degenerate, degenerate[w]...)
		res.EmptyLabels += empty[w]
	}
	sort.Slice(res.Degenerate, func(i, j int) bool { return res.Degenerate[i] < res.Degenerate[j] })

	if len(res.Degenerate) > 0 {
		a.log.Warning("aggregation", "labels without class votes set to class 0", map[string]interface{}{
			"degenerate":   len(res.Degenerate),
			"empty_labels": res.EmptyLabels,
			"first_label":  res.Degenerate[0],
		})
	}
	a.log.Debug("aggregation", "instances voted", map[string]interface{}{
		"labels":  n,
		"workers": workers,
	})

	return res, nil
}

// String summarizes a result for logs
func (r *Result) String() string {
	return fmt.Sprintf("%d instances, %d degenerate, %d empty",
		len(r.Vectors.Predicted), len(r.Degenerate), r.EmptyLabels)
}
