package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/db"
)

const loadBatchSize = 50000

// LoadJob describes one layer load into an allowlisted PostGIS mask table.
type LoadJob struct {
	Table    string   // schema-qualified, must be allowlisted
	GeomCol  string   // geometry column, default "geom"
	AttrCols []string // attribute columns loaded alongside the geometry
	SRID     int      // SRID stamped on every geometry
	Replace  bool     // truncate the table before loading
}

// LoadPostGIS copies a layer's features into a mask table using the COPY
// protocol, batched so arbitrarily large layers stream through a bounded
// buffer. Features without a geometry are skipped. Returns the number of
// rows written.
func LoadPostGIS(ctx context.Context, pool db.Pool, layer *Layer, job LoadJob) (int64, error) {
	if !allowedTables[job.Table] {
		return 0, eris.Errorf("vector: table %q is not allowlisted", job.Table)
	}

	geomCol := job.GeomCol
	if geomCol == "" {
		geomCol = "geom"
	}
	if !identPattern.MatchString(geomCol) {
		return 0, eris.Errorf("vector: invalid geometry column %q", geomCol)
	}
	for _, c := range job.AttrCols {
		if !identPattern.MatchString(c) {
			return 0, eris.Errorf("vector: invalid attribute column %q", c)
		}
	}

	parts := strings.SplitN(job.Table, ".", 2)
	ident := pgx.Identifier{parts[0], parts[1]}

	if job.Replace {
		sql := fmt.Sprintf("TRUNCATE %s", ident.Sanitize())
		if _, err := pool.Exec(ctx, sql); err != nil {
			return 0, eris.Wrapf(err, "vector: truncate %s", job.Table)
		}
	}

	rows, skipped := buildLoadRows(layer, job.AttrCols, job.SRID)
	if len(rows) == 0 {
		return 0, nil
	}

	columns := make([]string, 0, len(job.AttrCols)+1)
	columns = append(columns, job.AttrCols...)
	columns = append(columns, geomCol)

	log := zap.L().With(
		zap.String("component", "vector.load"),
		zap.String("table", job.Table),
		zap.Int("total_rows", len(rows)),
	)

	var total int64
	for i := 0; i < len(rows); i += loadBatchSize {
		end := i + loadBatchSize
		if end > len(rows) {
			end = len(rows)
		}

		n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows[i:end]))
		if err != nil {
			return total, eris.Wrapf(err, "vector: COPY into %s (batch %d-%d)", job.Table, i, end)
		}
		total += n

		log.Debug("batch loaded",
			zap.Int("batch_start", i),
			zap.Int("batch_end", end),
			zap.Int64("batch_rows", n),
		)
	}

	if skipped > 0 {
		log.Warn("features without encodable geometry were skipped", zap.Int("skipped", skipped))
	}

	return total, nil
}

// buildLoadRows turns features into COPY rows: attribute values in declared
// order, EWKB geometry last. Missing attributes become NULLs.
func buildLoadRows(layer *Layer, attrCols []string, srid int) ([][]any, int) {
	if layer == nil {
		return nil, 0
	}

	rows := make([][]any, 0, len(layer.Features))
	skipped := 0

	for _, f := range layer.Features {
		if f.Geom == nil {
			skipped++
			continue
		}
		raw, err := ewkb.Marshal(setSRID(f.Geom, srid), ewkb.NDR)
		if err != nil {
			skipped++
			continue
		}

		row := make([]any, 0, len(attrCols)+1)
		for _, c := range attrCols {
			if v, ok := f.Attr(c); ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		row = append(row, raw)
		rows = append(rows, row)
	}

	return rows, skipped
}

// setSRID stamps the SRID on a geometry. go-geom defines SetSRID per
// concrete type, hence the switch.
func setSRID(g geom.T, srid int) geom.T {
	switch g := g.(type) {
	case *geom.Point:
		return g.SetSRID(srid)
	case *geom.MultiPoint:
		return g.SetSRID(srid)
	case *geom.LineString:
		return g.SetSRID(srid)
	case *geom.MultiLineString:
		return g.SetSRID(srid)
	case *geom.Polygon:
		return g.SetSRID(srid)
	case *geom.MultiPolygon:
		return g.SetSRID(srid)
	case *geom.GeometryCollection:
		return g.SetSRID(srid)
	default:
		return g
	}
}
