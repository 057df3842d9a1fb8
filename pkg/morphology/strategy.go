package morphology

import (
	"errors"
	"fmt"

	"cellwatershed/internal/models"
)

// ErrUnknownStrategy is returned for a refinement strategy name that is not registered.
var ErrUnknownStrategy = errors.New("unknown refinement strategy")

// Strategy names
const (
	StrategyOld = "old"
	StrategyNew = "new"
)

// DefaultFinalErosions is the iteration count of the closing erosion.
const DefaultFinalErosions = 1

// Op is a refinement primitive
type Op int

const (
	OpDilateConstrained Op = iota
	OpDilateUnconstrained
	OpErode
)

func (o Op) String() string {
	switch o {
	case OpDilateConstrained:
		return "dilate-constrained"
	case OpDilateUnconstrained:
		return "dilate-unconstrained"
	case OpErode:
		return "erode"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Step is one primitive with its iteration count
type Step struct {
	Op         Op
	Iterations int
}

func (s Step) String() string { return fmt.Sprintf("%s(%d)", s.Op, s.Iterations) }

// Strategy is a named, ordered pass sequence
type Strategy struct {
	Name  string
	Steps []Step
}

// growthSteps dilates gradually into the interior mask: eight dilate/erode
// pairs followed by one more constrained dilation.
func growthSteps() []Step {
	steps := make([]Step, 0, 17)
	for i := 0; i < 8; i++ {
		steps = append(steps,
			Step{OpDilateConstrained, 2},
			Step{OpErode, 1},
		)
	}
	return append(steps, Step{OpDilateConstrained, 2})
}

// StrategyByName builds the pass sequence for name. finalErosions sets the
// iteration count of the last erosion.
func StrategyByName(name string, finalErosions int) (Strategy, error) {
	if finalErosions < 0 {
		return Strategy{}, fmt.Errorf("final erosions must be non-negative, got %d", finalErosions)
	}
	steps := growthSteps()
	switch name {
	case StrategyOld:
		steps = append(steps,
			Step{OpDilateUnconstrained, 1},
			Step{OpErode, 2},
			Step{OpDilateUnconstrained, 2},
			Step{OpErode, finalErosions},
		)
	case StrategyNew:
		steps = append(steps,
			Step{OpDilateUnconstrained, 1},
			Step{OpErode, 1},
			Step{OpDilateUnconstrained, 1},
			Step{OpErode, finalErosions},
		)
	default:
		return Strategy{}, fmt.Errorf("%q: %w", name, ErrUnknownStrategy)
	}
	return Strategy{Name: name, Steps: steps}, nil
}

// Refiner runs a strategy over a label raster.
type Refiner struct {
	strategy Strategy

	// OnStep, if set, is called after every step with the step index and the
	// raster in its current state. The raster must not be retained.
	OnStep func(i int, step Step, labels *models.LabelRaster)
}

// NewRefiner creates a refiner for strategy
func NewRefiner(strategy Strategy) *Refiner {
	return &Refiner{strategy: strategy}
}

// Strategy returns the pass sequence the refiner runs
func (r *Refiner) Strategy() Strategy { return r.strategy }

// Refine mutates labels in place through every step of the strategy.
// interior bounds the constrained dilations.
func (r *Refiner) Refine(labels *models.LabelRaster, interior *models.Mask) error {
	if err := models.CheckShapes("refine interior mask", labels.Shape(), interior.Shape()); err != nil {
		return err
	}
	for i, step := range r.strategy.Steps {
		if err := step.Apply(labels, interior); err != nil {
			return fmt.Errorf("step %d %s: %w", i, step, err)
		}
		if r.OnStep != nil {
			r.OnStep(i, step, labels)
		}
	}
	return nil
}
