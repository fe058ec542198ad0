// Package legend maps land-cover class names to raster codes. A legend is
// built once, from the built-in table or a YAML file, and passed to whatever
// needs to translate between the two; it never changes afterwards.
package legend

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/veldscape/landcover-cli/internal/raster"
)

// Legend is an immutable bijection between class names and codes.
// Code 0 is reserved for no-data and never appears in a legend.
type Legend struct {
	byName map[string]uint8
	byCode map[uint8]string
}

// Default returns the legend the workflow ships with.
func Default() *Legend {
	l, err := FromMap(map[string]uint8{
		"field_crops":        12,
		"forest_plantations": 21,
		"closed_forest":      31,
		"open_forest":        32,
		"thicket":            34,
		"shrubland":          36,
		"grassland":          41,
		"herbaceous_flooded": 42,
		"water":              44,
		"settlements":        51,
		"bare_soil":          61,
		"mangrove":           70,
	})
	if err != nil {
		panic(err) // the built-in table is static
	}
	return l
}

// Load reads a YAML legend file: a flat mapping of class name to code.
func Load(path string) (*Legend, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "legend: read file")
	}

	var classes map[string]uint8
	if err := yaml.Unmarshal(data, &classes); err != nil {
		return nil, eris.Wrap(err, "legend: parse yaml")
	}

	l, err := FromMap(classes)
	if err != nil {
		return nil, eris.Wrapf(err, "legend: %s", path)
	}
	return l, nil
}

// FromMap builds a legend from a name->code mapping, rejecting empty maps,
// the reserved code 0, and duplicate codes.
func FromMap(classes map[string]uint8) (*Legend, error) {
	if len(classes) == 0 {
		return nil, eris.New("legend: no classes defined")
	}

	l := &Legend{
		byName: make(map[string]uint8, len(classes)),
		byCode: make(map[uint8]string, len(classes)),
	}
	for name, code := range classes {
		if name == "" {
			return nil, eris.New("legend: empty class name")
		}
		if code == raster.NoData {
			return nil, eris.Errorf("legend: class %q uses reserved no-data code 0", name)
		}
		if other, dup := l.byCode[code]; dup {
			return nil, eris.Errorf("legend: classes %q and %q share code %d", other, name, code)
		}
		l.byName[name] = code
		l.byCode[code] = name
	}
	return l, nil
}

// Code returns the code for a class name.
func (l *Legend) Code(name string) (uint8, bool) {
	c, ok := l.byName[name]
	return c, ok
}

// Name returns the class name for a code.
func (l *Legend) Name(code uint8) (string, bool) {
	n, ok := l.byCode[code]
	return n, ok
}

// Contains reports whether code belongs to the legend.
func (l *Legend) Contains(code uint8) bool {
	_, ok := l.byCode[code]
	return ok
}

// Codes returns all class codes in ascending order.
func (l *Legend) Codes() []uint8 {
	codes := make([]uint8, 0, len(l.byCode))
	for c := range l.byCode {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// Len returns the number of classes.
func (l *Legend) Len() int { return len(l.byName) }

// Validate scans a class grid for codes outside the legend. No-data cells
// are exempt. The result is advisory; unknown codes are reported, never
// rewritten.
func (l *Legend) Validate(g *raster.Grid[uint8]) Validation {
	v := Validation{Unknown: map[uint8]int{}}
	for _, c := range g.Data {
		if c == raster.NoData {
			continue
		}
		if !l.Contains(c) {
			v.Unknown[c]++
			v.Cells++
		}
	}
	return v
}

// Validation summarizes the unknown codes found in a grid.
type Validation struct {
	Unknown map[uint8]int // code -> cell count
	Cells   int
}

// OK reports whether every populated cell held a legend code.
func (v Validation) OK() bool { return v.Cells == 0 }

// UnknownCodes returns the distinct offending codes in ascending order.
func (v Validation) UnknownCodes() []uint8 {
	codes := make([]uint8, 0, len(v.Unknown))
	for c := range v.Unknown {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
