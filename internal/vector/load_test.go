package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

func lineLayer(attrs ...map[string]string) *Layer {
	layer := &Layer{CRS: "EPSG:4326"}
	for i, a := range attrs {
		layer.Features = append(layer.Features, Feature{
			Geom:  geom.NewLineStringFlat(geom.XY, []float64{float64(i), 0, float64(i), 10}),
			Attrs: a,
		})
	}
	return layer
}

func TestLoadPostGIS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	mock.ExpectCopyFrom(pgx.Identifier{"vectors", "roads"}, []string{"surface", "geom"}).
		WillReturnResult(2)

	layer := lineLayer(
		map[string]string{"surface": "asphalt"},
		map[string]string{"surface": "gravel"},
	)

	n, err := LoadPostGIS(context.Background(), mock, layer, LoadJob{
		Table:    "vectors.roads",
		AttrCols: []string{"surface"},
		SRID:     4326,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPostGISReplace(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	mock.ExpectExec(`TRUNCATE "vectors"\."rivers"`).
		WillReturnResult(pgxmock.NewResult("TRUNCATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"vectors", "rivers"}, []string{"geom"}).
		WillReturnResult(1)

	n, err := LoadPostGIS(context.Background(), mock, lineLayer(nil), LoadJob{
		Table:   "vectors.rivers",
		SRID:    32736,
		Replace: true,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPostGISEmptyLayer(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	n, err := LoadPostGIS(context.Background(), mock, &Layer{}, LoadJob{
		Table: "vectors.coastline",
		SRID:  4326,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadPostGISRejectsUnknownTable(t *testing.T) {
	_, err := LoadPostGIS(context.Background(), nil, lineLayer(nil), LoadJob{
		Table: "public.users; DROP TABLE runs",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowlisted")
}

func TestLoadPostGISRejectsBadColumns(t *testing.T) {
	tests := []struct {
		name string
		job  LoadJob
	}{
		{"geometry column", LoadJob{Table: "vectors.rivers", GeomCol: `geom"; --`}},
		{"attribute column", LoadJob{Table: "vectors.rivers", AttrCols: []string{"surface, secret"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPostGIS(context.Background(), nil, lineLayer(nil), tt.job)
			assert.Error(t, err)
		})
	}
}

func TestLoadPostGISCopyError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	mock.ExpectCopyFrom(pgx.Identifier{"vectors", "buildings"}, []string{"geom"}).
		WillReturnError(errors.New("permission denied"))

	_, err = LoadPostGIS(context.Background(), mock, lineLayer(nil), LoadJob{
		Table: "vectors.buildings",
		SRID:  4326,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY into vectors.buildings")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildLoadRows(t *testing.T) {
	layer := &Layer{
		Features: []Feature{
			{
				Geom:  geom.NewLineStringFlat(geom.XY, []float64{0, 0, 10, 0}),
				Attrs: map[string]string{"surface": "asphalt", "name": "N2"},
			},
			{Geom: nil, Attrs: map[string]string{"surface": "gravel"}},
			{Geom: geom.NewPointFlat(geom.XY, []float64{5, 5})},
		},
	}

	rows, skipped := buildLoadRows(layer, []string{"surface"}, 32736)
	require.Len(t, rows, 2)
	assert.Equal(t, 1, skipped, "nil geometry is skipped")

	require.Len(t, rows[0], 2)
	assert.Equal(t, "asphalt", rows[0][0])

	g, err := ewkb.Unmarshal(rows[0][1].([]byte))
	require.NoError(t, err)
	assert.Equal(t, 32736, g.SRID())
	ls, ok := g.(*geom.LineString)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0, 10, 0}, ls.FlatCoords())

	assert.Nil(t, rows[1][0], "missing attribute becomes NULL")
}

func TestBuildLoadRowsNilLayer(t *testing.T) {
	rows, skipped := buildLoadRows(nil, nil, 4326)
	assert.Empty(t, rows)
	assert.Zero(t, skipped)
}
