// Package pipeline applies the ordered land-cover reclassification sequence:
// majority smoothing followed by hydrology, spectral, built-up, road,
// flooded-vegetation, and mangrove corrections. Rules run over in-memory
// grids; file I/O and mask construction happen in the runner.
package pipeline

import (
	"github.com/rotisserie/eris"

	"github.com/veldscape/landcover-cli/internal/legend"
	"github.com/veldscape/landcover-cli/internal/raster"
)

// Default rule parameters. All of them are plain config values; these are
// the fallbacks the workflow was calibrated with.
const (
	DefaultModeRadius       = 2
	DefaultHANDMax          = 45.0
	DefaultIndexMin         = 0.0
	DefaultBuiltSentinel    = 255
	DefaultSettlementDilate = 5
	DefaultRoadBufferM      = 10.0
	DefaultCoastBufferM     = 50000.0
)

// Classes holds the resolved class codes the rules dispatch on.
type Classes struct {
	Water             uint8
	Settlements       uint8
	HerbaceousFlooded uint8
	FieldCrops        uint8
	Mangrove          uint8
	ForestPlantations uint8
}

// ResolveClasses looks up the rule classes by name in a legend.
func ResolveClasses(l *legend.Legend) (Classes, error) {
	var c Classes
	for _, b := range []struct {
		name string
		dst  *uint8
	}{
		{"water", &c.Water},
		{"settlements", &c.Settlements},
		{"herbaceous_flooded", &c.HerbaceousFlooded},
		{"field_crops", &c.FieldCrops},
		{"mangrove", &c.Mangrove},
		{"forest_plantations", &c.ForestPlantations},
	} {
		code, ok := l.Code(b.name)
		if !ok {
			return Classes{}, eris.Errorf("pipeline: legend is missing class %q", b.name)
		}
		*b.dst = code
	}
	return c, nil
}

// Params are the tunable thresholds of the rule sequence.
type Params struct {
	ModeRadius       int     // smoothing window radius, cells
	HANDMax          float64 // max elevation above drainage for water retention
	IndexMin         float64 // min spectral water index
	BuiltSentinel    uint8   // settlement-footprint value meaning built
	SettlementDilate int     // settlement proximity radius, cells
}

// DefaultParams returns the calibrated defaults.
func DefaultParams() Params {
	return Params{
		ModeRadius:       DefaultModeRadius,
		HANDMax:          DefaultHANDMax,
		IndexMin:         DefaultIndexMin,
		BuiltSentinel:    DefaultBuiltSentinel,
		SettlementDilate: DefaultSettlementDilate,
	}
}

// Rule is one step of the sequence. Apply reads the original classification
// and the aligned auxiliary layers, mutates the working grid in place, and
// returns how many cells it changed. Later rules overwrite earlier ones.
type Rule struct {
	Name  string
	Apply func(orig, work *raster.Grid[uint8]) int
}

// BuildRules assembles the fixed rule sequence over aligned inputs.
// The order is part of the workflow's contract and never reshuffled.
func BuildRules(in Inputs, cls Classes, p Params) []Rule {
	return []Rule{
		smoothRule(p.ModeRadius),
		hydrologyWaterRule(in.HAND, in.River, cls, p.HANDMax),
		spectralWaterRule(in.WaterIndex, cls, p.IndexMin),
		builtFootprintRule(in.Buildings, in.Settlement, cls, p.BuiltSentinel),
		roadRule(in.Roads, cls),
		floodedVegetationRule(cls, p.SettlementDilate),
		mangroveRule(in.Coast, cls),
	}
}

// smoothRule replaces the working grid with the majority-filtered original.
// It always runs first; every later rule corrects the smoothed surface.
func smoothRule(radius int) Rule {
	return Rule{
		Name: "smooth",
		Apply: func(orig, work *raster.Grid[uint8]) int {
			filtered := raster.ModeFilter(orig, radius)
			changed := 0
			for i, v := range filtered.Data {
				if work.Data[i] != v {
					work.Data[i] = v
					changed++
				}
			}
			return changed
		},
	}
}

// hydrologyWaterRule keeps original water where the terrain stays close to
// the drainage network and asserts water along the river mask.
func hydrologyWaterRule(hand *raster.Grid[float64], river *raster.Grid[uint8], cls Classes, handMax float64) Rule {
	return Rule{
		Name: "hydrology_water",
		Apply: func(orig, work *raster.Grid[uint8]) int {
			changed := 0
			for i, o := range orig.Data {
				if o == raster.NoData {
					continue
				}
				if (o == cls.Water && hand.Data[i] <= handMax) || river.Data[i] == 1 {
					changed += assign(work, i, cls.Water)
				}
			}
			return changed
		},
	}
}

// spectralWaterRule asserts water wherever the spectral index clears the
// threshold, regardless of the current class.
func spectralWaterRule(index *raster.Grid[float64], cls Classes, indexMin float64) Rule {
	return Rule{
		Name: "spectral_water",
		Apply: func(orig, work *raster.Grid[uint8]) int {
			changed := 0
			for i, o := range orig.Data {
				if o == raster.NoData {
					continue
				}
				if index.Data[i] >= indexMin {
					changed += assign(work, i, cls.Water)
				}
			}
			return changed
		},
	}
}

// builtFootprintRule asserts settlements on building footprints and built
// settlement-layer cells.
func builtFootprintRule(buildings, settlement *raster.Grid[uint8], cls Classes, builtSentinel uint8) Rule {
	return Rule{
		Name: "built_footprint",
		Apply: func(orig, work *raster.Grid[uint8]) int {
			changed := 0
			for i, o := range orig.Data {
				if o == raster.NoData {
					continue
				}
				if buildings.Data[i] == 1 || settlement.Data[i] == builtSentinel {
					changed += assign(work, i, cls.Settlements)
				}
			}
			return changed
		},
	}
}

// roadRule asserts settlements along the buffered road mask. Surface
// filtering and buffering happen when the mask is built.
func roadRule(roads *raster.Grid[uint8], cls Classes) Rule {
	return Rule{
		Name: "road_corridor",
		Apply: func(orig, work *raster.Grid[uint8]) int {
			changed := 0
			for i, o := range orig.Data {
				if o == raster.NoData {
					continue
				}
				if roads.Data[i] == 1 {
					changed += assign(work, i, cls.Settlements)
				}
			}
			return changed
		},
	}
}

// floodedVegetationRule reinterprets regularly flooded herbaceous cover
// near original settlements as field crops: flooded vegetation that close
// to inhabited land is, in practice, cropland.
func floodedVegetationRule(cls Classes, dilateRadius int) Rule {
	return Rule{
		Name: "flooded_vegetation",
		Apply: func(orig, work *raster.Grid[uint8]) int {
			near := raster.Dilate(raster.MaskEqual(orig, cls.Settlements), dilateRadius)
			changed := 0
			for i, o := range orig.Data {
				if o == raster.NoData {
					continue
				}
				if near.Data[i] == 1 && o == cls.HerbaceousFlooded {
					changed += assign(work, i, cls.FieldCrops)
				}
			}
			return changed
		},
	}
}

// mangroveRule reclassifies mangrove away from the coastal strip as forest
// plantations: true mangrove only exists near the shoreline. It reads the
// working grid so cells already corrected to water stay water.
func mangroveRule(coast *raster.Grid[uint8], cls Classes) Rule {
	return Rule{
		Name: "mangrove_inland",
		Apply: func(orig, work *raster.Grid[uint8]) int {
			changed := 0
			for i, o := range orig.Data {
				if o == raster.NoData {
					continue
				}
				if work.Data[i] == cls.Mangrove && coast.Data[i] == 0 {
					changed += assign(work, i, cls.ForestPlantations)
				}
			}
			return changed
		},
	}
}

// assign writes code at index i and reports 1 when the cell changed.
func assign(work *raster.Grid[uint8], i int, code uint8) int {
	if work.Data[i] == code {
		return 0
	}
	work.Data[i] = code
	return 1
}
