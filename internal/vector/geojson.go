package vector

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// GeoJSONSource reads a GeoJSON FeatureCollection.
type GeoJSONSource struct {
	Path string
	CRS  string // GeoJSON is nominally EPSG:4326; reprojected files declare their actual CRS here
}

func (s *GeoJSONSource) Read(ctx context.Context) (*Layer, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "vector: read geojson")
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: read geojson %s", s.Path)
	}

	layer, skipped, err := DecodeGeoJSON(data, s.CRS)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: parse geojson %s", s.Path)
	}
	if skipped > 0 {
		zap.L().Debug("vector: skipped geojson features",
			zap.String("path", s.Path),
			zap.Int("skipped", skipped),
		)
	}
	return layer, nil
}

// DecodeGeoJSON parses a FeatureCollection out of raw bytes. It also reports
// how many features were dropped for null or unsupported geometry, so
// callers close to the data can log it with their own context.
func DecodeGeoJSON(data []byte, crs string) (*Layer, int, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, eris.Wrap(err, "vector: parse feature collection")
	}

	layer := &Layer{CRS: crs}
	skipped := 0

	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			skipped++
			continue
		}
		g := orbToGeom(f.Geometry)
		if g == nil {
			skipped++
			continue
		}
		layer.Features = append(layer.Features, Feature{Geom: g, Attrs: stringifyProperties(f.Properties)})
	}
	return layer, skipped, nil
}

// stringifyProperties flattens GeoJSON properties to strings with
// lower-cased keys. Nested objects and arrays are dropped; the filters only
// ever match scalars.
func stringifyProperties(props geojson.Properties) map[string]string {
	attrs := make(map[string]string, len(props))
	for k, v := range props {
		s, ok := scalarString(v)
		if !ok {
			continue
		}
		attrs[strings.ToLower(k)] = s
	}
	return attrs
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case bool:
		return strconv.FormatBool(x), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case fmt.Stringer:
		return x.String(), true
	default:
		return "", false
	}
}
