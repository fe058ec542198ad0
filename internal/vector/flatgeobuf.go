package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FlatGeobufSource reads a FlatGeobuf file through its spatial index.
type FlatGeobufSource struct {
	Path string
	CRS  string // fallback when the file carries no CRS record
}

func (s *FlatGeobufSource) Read(ctx context.Context) (*Layer, error) {
	fgb, err := flatgeobuf.New(s.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: open flatgeobuf %s", s.Path)
	}

	h := fgb.Header()
	if h == nil {
		return nil, eris.Errorf("vector: flatgeobuf %s has no header", s.Path)
	}

	crs := s.CRS
	var fileCRS flattypes.Crs
	if h.Crs(&fileCRS) != nil && fileCRS.Code() != 0 {
		crs = fmt.Sprintf("EPSG:%d", fileCRS.Code())
	}

	layer := &Layer{CRS: crs}
	if h.FeaturesCount() == 0 {
		return layer, nil
	}
	if h.IndexNodeSize() == 0 || h.EnvelopeLength() < 4 {
		return nil, eris.Errorf("vector: flatgeobuf %s lacks the spatial index needed for scanning", s.Path)
	}

	feats, err := fgb.Search(h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3))
	if err != nil {
		return nil, eris.Wrapf(err, "vector: scan flatgeobuf %s", s.Path)
	}

	var skipped int
	for _, ff := range feats {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "vector: read flatgeobuf")
		}
		if ff == nil {
			skipped++
			continue
		}

		var geomObj flattypes.Geometry
		fg := ff.Geometry(&geomObj)
		if fg == nil {
			skipped++
			continue
		}

		gt := fg.Type()
		if gt == flattypes.GeometryTypeUnknown {
			gt = h.GeometryType()
		}

		g := orbToGeom(fgbGeometry(fg, gt))
		if g == nil {
			skipped++
			continue
		}

		layer.Features = append(layer.Features, Feature{Geom: g, Attrs: fgbAttributes(ff, h)})
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped flatgeobuf features",
			zap.String("path", s.Path),
			zap.Int("skipped", skipped),
		)
	}

	return layer, nil
}

// fgbGeometry decodes a FlatGeobuf geometry into orb form. Coordinates are
// a flat XY array; multipart types carry end offsets or nested parts.
func fgbGeometry(fg *flattypes.Geometry, gt flattypes.GeometryType) orb.Geometry {
	switch gt {
	case flattypes.GeometryTypePoint:
		if fg.XyLength() < 2 {
			return nil
		}
		return orb.Point{fg.Xy(0), fg.Xy(1)}

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(fgbPoints(fg))

	case flattypes.GeometryTypeLineString:
		pts := fgbPoints(fg)
		if len(pts) < 2 {
			return nil
		}
		return orb.LineString(pts)

	case flattypes.GeometryTypeMultiLineString:
		parts := fgbEndsSplit(fg)
		mls := make(orb.MultiLineString, 0, len(parts))
		for _, p := range parts {
			if len(p) >= 2 {
				mls = append(mls, orb.LineString(p))
			}
		}
		if len(mls) == 0 {
			return nil
		}
		return mls

	case flattypes.GeometryTypePolygon:
		parts := fgbEndsSplit(fg)
		poly := make(orb.Polygon, 0, len(parts))
		for _, p := range parts {
			if len(p) >= 4 {
				poly = append(poly, orb.Ring(p))
			}
		}
		if len(poly) == 0 {
			return nil
		}
		return poly

	case flattypes.GeometryTypeMultiPolygon:
		mp := make(orb.MultiPolygon, 0, fg.PartsLength())
		for i := 0; i < fg.PartsLength(); i++ {
			var part flattypes.Geometry
			if !fg.Parts(&part, i) {
				continue
			}
			sub := fgbGeometry(&part, flattypes.GeometryTypePolygon)
			if poly, ok := sub.(orb.Polygon); ok {
				mp = append(mp, poly)
			}
		}
		if len(mp) == 0 {
			return nil
		}
		return mp

	default:
		return nil
	}
}

func fgbPoints(fg *flattypes.Geometry) []orb.Point {
	n := fg.XyLength()
	pts := make([]orb.Point, 0, n/2)
	for i := 0; i+1 < n; i += 2 {
		pts = append(pts, orb.Point{fg.Xy(i), fg.Xy(i + 1)})
	}
	return pts
}

// fgbEndsSplit splits the flat coordinates at the geometry's end offsets,
// which count points, not floats. No ends means one part.
func fgbEndsSplit(fg *flattypes.Geometry) [][]orb.Point {
	pts := fgbPoints(fg)
	if fg.EndsLength() == 0 {
		if len(pts) == 0 {
			return nil
		}
		return [][]orb.Point{pts}
	}

	parts := make([][]orb.Point, 0, fg.EndsLength())
	start := uint32(0)
	for i := 0; i < fg.EndsLength(); i++ {
		end := fg.Ends(i)
		if end > uint32(len(pts)) || end < start {
			break
		}
		parts = append(parts, pts[start:end])
		start = end
	}
	return parts
}

// fgbAttributes decodes the packed property bytes against the header's
// column schema into the flat string form the filters use.
func fgbAttributes(ff *flattypes.Feature, h *flattypes.Header) map[string]string {
	n := ff.PropertiesLength()
	if n == 0 || h.ColumnsLength() == 0 {
		return map[string]string{}
	}

	data := make([]byte, n)
	for i := 0; i < n; i++ {
		data[i] = byte(ff.Properties(i))
	}

	attrs := make(map[string]string)
	offset := 0
	for offset+2 <= len(data) {
		colIdx := int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
		if colIdx >= h.ColumnsLength() {
			break
		}

		var col flattypes.Column
		if !h.Columns(&col, colIdx) {
			break
		}

		val, read := fgbValue(data[offset:], col.Type())
		if read == 0 {
			break
		}
		offset += read
		if val != "" {
			attrs[strings.ToLower(string(col.Name()))] = val
		}
	}
	return attrs
}

// fgbValue reads one property value, returning its string form and the
// bytes consumed. Zero consumed means the buffer is truncated.
func fgbValue(data []byte, t flattypes.ColumnType) (string, int) {
	switch t {
	case flattypes.ColumnTypeBool:
		if len(data) < 1 {
			return "", 0
		}
		return strconv.FormatBool(data[0] != 0), 1
	case flattypes.ColumnTypeByte:
		if len(data) < 1 {
			return "", 0
		}
		return strconv.Itoa(int(int8(data[0]))), 1
	case flattypes.ColumnTypeUByte:
		if len(data) < 1 {
			return "", 0
		}
		return strconv.Itoa(int(data[0])), 1
	case flattypes.ColumnTypeShort:
		if len(data) < 2 {
			return "", 0
		}
		return strconv.Itoa(int(int16(binary.LittleEndian.Uint16(data)))), 2
	case flattypes.ColumnTypeUShort:
		if len(data) < 2 {
			return "", 0
		}
		return strconv.Itoa(int(binary.LittleEndian.Uint16(data))), 2
	case flattypes.ColumnTypeInt:
		if len(data) < 4 {
			return "", 0
		}
		return strconv.Itoa(int(int32(binary.LittleEndian.Uint32(data)))), 4
	case flattypes.ColumnTypeUInt:
		if len(data) < 4 {
			return "", 0
		}
		return strconv.FormatUint(uint64(binary.LittleEndian.Uint32(data)), 10), 4
	case flattypes.ColumnTypeLong:
		if len(data) < 8 {
			return "", 0
		}
		return strconv.FormatInt(int64(binary.LittleEndian.Uint64(data)), 10), 8
	case flattypes.ColumnTypeULong:
		if len(data) < 8 {
			return "", 0
		}
		return strconv.FormatUint(binary.LittleEndian.Uint64(data), 10), 8
	case flattypes.ColumnTypeFloat:
		if len(data) < 4 {
			return "", 0
		}
		f := math.Float32frombits(binary.LittleEndian.Uint32(data))
		return strconv.FormatFloat(float64(f), 'f', -1, 32), 4
	case flattypes.ColumnTypeDouble:
		if len(data) < 8 {
			return "", 0
		}
		f := math.Float64frombits(binary.LittleEndian.Uint64(data))
		return strconv.FormatFloat(f, 'f', -1, 64), 8
	case flattypes.ColumnTypeString, flattypes.ColumnTypeJson, flattypes.ColumnTypeDateTime:
		if len(data) < 4 {
			return "", 0
		}
		strLen := int(binary.LittleEndian.Uint32(data))
		if len(data) < 4+strLen {
			return "", 0
		}
		return string(data[4 : 4+strLen]), 4 + strLen
	default:
		return "", 0
	}
}
