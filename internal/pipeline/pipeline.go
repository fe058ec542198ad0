package pipeline

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/legend"
	"github.com/veldscape/landcover-cli/internal/model"
	"github.com/veldscape/landcover-cli/internal/raster"
)

// Inputs carries the classification raster and every auxiliary layer, all
// already aligned to the classification's frame. The runner handles
// resampling and mask construction; by the time a grid lands here it matches
// the target lattice exactly.
type Inputs struct {
	Classified *raster.Grid[uint8]   // original predicted classes
	HAND       *raster.Grid[float64] // height above nearest drainage
	Buildings  *raster.Grid[uint8]   // building footprints, binary
	Settlement *raster.Grid[uint8]   // settlement footprint layer
	WaterIndex *raster.Grid[float64] // spectral water index
	River      *raster.Grid[uint8]   // rasterized river centerlines
	Roads      *raster.Grid[uint8]   // rasterized buffered road corridors
	Coast      *raster.Grid[uint8]   // rasterized buffered coastline strip
}

func (in Inputs) validate() error {
	if in.Classified == nil {
		return eris.New("pipeline: classified raster is required")
	}
	target := in.Classified.Box

	if err := checkLayer("hand", in.HAND, target); err != nil {
		return err
	}
	if err := checkLayer("buildings", in.Buildings, target); err != nil {
		return err
	}
	if err := checkLayer("settlement", in.Settlement, target); err != nil {
		return err
	}
	if err := checkLayer("water_index", in.WaterIndex, target); err != nil {
		return err
	}
	if err := checkLayer("river", in.River, target); err != nil {
		return err
	}
	if err := checkLayer("roads", in.Roads, target); err != nil {
		return err
	}
	return checkLayer("coast", in.Coast, target)
}

// checkLayer rejects missing layers, CRS drift, and lattice drift. CRS gets
// its own error type so callers can tell projection trouble from wiring
// mistakes.
func checkLayer[T raster.Value](name string, g *raster.Grid[T], target raster.GeoBox) error {
	if g == nil {
		return eris.Errorf("pipeline: layer %q is required", name)
	}
	if !g.Box.SameCRS(target) {
		return &raster.CRSMismatchError{Layer: name, Have: g.Box.CRS, Want: target.CRS}
	}
	if !g.Box.SameGrid(target) {
		return eris.Errorf("pipeline: layer %q frame (%s) does not match target (%s)", name, g.Box.String(), target.String())
	}
	return nil
}

// Result is the outcome of one pipeline run.
type Result struct {
	Output     *raster.Grid[uint8]
	Rules      []model.RuleResult
	Validation legend.Validation
}

// TotalChanged sums the per-rule change counts. Cells rewritten by several
// rules count once per rewrite.
func (r *Result) TotalChanged() int {
	total := 0
	for _, rr := range r.Rules {
		total += rr.Changed
	}
	return total
}

// Run executes the rule sequence over aligned inputs and returns the
// corrected grid. The inputs are not modified; the output owns its data.
// A non-nil legend triggers an advisory scan for unknown class codes.
func Run(ctx context.Context, in Inputs, cls Classes, p Params, leg *legend.Legend) (*Result, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "pipeline"))

	var val legend.Validation
	if leg != nil {
		val = leg.Validate(in.Classified)
		if !val.OK() {
			log.Warn("classification holds codes outside the legend",
				zap.Int("cells", val.Cells),
				zap.Any("codes", val.UnknownCodes()),
			)
		}
	}

	work := in.Classified.Clone()
	rules := BuildRules(in, cls, p)
	results := make([]model.RuleResult, 0, len(rules))

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "pipeline: canceled before rule %s", r.Name)
		}
		n := r.Apply(in.Classified, work)
		results = append(results, model.RuleResult{Name: r.Name, Changed: n})
		log.Debug("rule applied", zap.String("rule", r.Name), zap.Int("changed", n))
	}

	return &Result{Output: work, Rules: results, Validation: val}, nil
}
