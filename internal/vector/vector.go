// Package vector loads and filters the vector layers the pipeline's masks
// are built from: river centerlines, road networks, and coastline strips.
// Sources normalize every format down to go-geom geometries with flat string
// attributes; geometry keys are matched case-insensitively.
package vector

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Feature is one vector record: a geometry plus its attributes. Attribute
// keys are lower-cased by every source so lookups are case-insensitive.
type Feature struct {
	Geom  geom.T
	Attrs map[string]string
}

// Attr returns the named attribute, tolerating any key casing.
func (f Feature) Attr(key string) (string, bool) {
	v, ok := f.Attrs[strings.ToLower(key)]
	return v, ok
}

// Layer is a set of features sharing a CRS.
type Layer struct {
	CRS      string
	Features []Feature
}

// Len returns the feature count.
func (l *Layer) Len() int { return len(l.Features) }

// Geoms returns the bare geometries, for rasterization.
func (l *Layer) Geoms() []geom.T {
	gs := make([]geom.T, 0, len(l.Features))
	for _, f := range l.Features {
		if f.Geom != nil {
			gs = append(gs, f.Geom)
		}
	}
	return gs
}

// FilterValue keeps the features whose attribute equals any of the allowed
// values, compared case-folded. Features without the attribute are dropped.
// An empty result is a legitimate layer, not an error.
func (l *Layer) FilterValue(key string, allowed ...string) *Layer {
	out := &Layer{CRS: l.CRS}
	for _, f := range l.Features {
		v, ok := f.Attr(key)
		if !ok {
			continue
		}
		for _, a := range allowed {
			if strings.EqualFold(v, a) {
				out.Features = append(out.Features, f)
				break
			}
		}
	}
	return out
}

// Source yields a vector layer. File sources read lazily so construction is
// cheap and errors surface where a context is available.
type Source interface {
	Read(ctx context.Context) (*Layer, error)
}

// Static serves an in-memory layer. Tests and the offline coastline path
// use it.
type Static struct {
	Layer *Layer
}

func (s Static) Read(context.Context) (*Layer, error) {
	if s.Layer == nil {
		return &Layer{}, nil
	}
	return s.Layer, nil
}

// OpenPath returns a file-backed source chosen by extension. crs declares
// the coordinate system the file's coordinates are in; sources that carry
// their own CRS metadata override it.
func OpenPath(path, crs string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return &ShapefileSource{Path: path, CRS: crs}, nil
	case ".geojson", ".json":
		return &GeoJSONSource{Path: path, CRS: crs}, nil
	case ".fgb":
		return &FlatGeobufSource{Path: path, CRS: crs}, nil
	default:
		return nil, eris.Errorf("vector: unsupported format %q", filepath.Ext(path))
	}
}
