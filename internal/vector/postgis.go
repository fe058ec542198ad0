package vector

import (
	"fmt"
	"regexp"
	"strings"

	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/wkb"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/db"
)

// allowedTables is the allowlist of PostGIS tables the generic reader may
// be pointed at. The table name is interpolated into SQL, so anything not
// listed here is rejected outright.
var allowedTables = map[string]bool{
	"vectors.rivers":      true,
	"vectors.roads":       true,
	"vectors.coastline":   true,
	"vectors.buildings":   true,
	"vectors.settlements": true,
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// PostGISSource reads a geometry table through a pgx pool.
type PostGISSource struct {
	Pool     db.Pool
	Table    string   // schema-qualified, must be allowlisted
	GeomCol  string   // geometry column, default "geom"
	AttrCols []string // attribute columns fetched alongside the geometry
	CRS      string   // CRS the table's geometries are stored in
}

func (s *PostGISSource) Read(ctx context.Context) (*Layer, error) {
	if !allowedTables[s.Table] {
		return nil, eris.Errorf("vector: table %q is not allowlisted", s.Table)
	}

	geomCol := s.GeomCol
	if geomCol == "" {
		geomCol = "geom"
	}
	if !identPattern.MatchString(geomCol) {
		return nil, eris.Errorf("vector: invalid geometry column %q", geomCol)
	}

	cols := make([]string, 0, len(s.AttrCols)+1)
	cols = append(cols, fmt.Sprintf("ST_AsBinary(%s)", geomCol))
	for _, c := range s.AttrCols {
		if !identPattern.MatchString(c) {
			return nil, eris.Errorf("vector: invalid attribute column %q", c)
		}
		cols = append(cols, c+"::text")
	}

	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), s.Table)

	rows, err := s.Pool.Query(ctx, sql)
	if err != nil {
		return nil, eris.Wrapf(err, "vector: query %s", s.Table)
	}
	defer rows.Close()

	layer := &Layer{CRS: s.CRS}
	var skipped int

	for rows.Next() {
		var raw []byte
		attrPtrs := make([]*string, len(s.AttrCols))

		targets := make([]any, 0, len(s.AttrCols)+1)
		targets = append(targets, &raw)
		for i := range attrPtrs {
			targets = append(targets, &attrPtrs[i])
		}

		if err := rows.Scan(targets...); err != nil {
			return nil, eris.Wrapf(err, "vector: scan %s", s.Table)
		}

		g, err := wkb.Unmarshal(raw)
		if err != nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(s.AttrCols))
		for i, c := range s.AttrCols {
			if attrPtrs[i] != nil {
				attrs[strings.ToLower(c)] = *attrPtrs[i]
			}
		}

		layer.Features = append(layer.Features, Feature{Geom: g, Attrs: attrs})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "vector: iterate %s", s.Table)
	}

	if skipped > 0 {
		zap.L().Debug("vector: skipped undecodable postgis geometries",
			zap.String("table", s.Table),
			zap.Int("skipped", skipped),
		)
	}

	return layer, nil
}
