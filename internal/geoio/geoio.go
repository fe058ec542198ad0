// Package geoio reads and writes georeferenced rasters through GDAL. Files
// are warped to the configured target CRS at load; grid snapping and
// coverage checks stay in the raster package so the in-memory path enforces
// the same rules.
package geoio

import (
	"context"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/veldscape/landcover-cli/internal/raster"
)

var registerOnce sync.Once

// Register loads the GDAL drivers. Safe to call more than once.
func Register() {
	registerOnce.Do(godal.RegisterAll)
}

// GDAL adapts the package functions to the pipeline's raster IO interface.
// The zero value is ready to use once Register has run.
type GDAL struct{}

func (GDAL) ReadClass(ctx context.Context, path, targetCRS string) (*raster.Grid[uint8], error) {
	return ReadClass(ctx, path, targetCRS)
}

func (GDAL) ReadContinuous(ctx context.Context, path, targetCRS string) (*raster.Grid[float64], error) {
	return ReadContinuous(ctx, path, targetCRS)
}

func (GDAL) WriteClass(ctx context.Context, path string, g *raster.Grid[uint8]) error {
	return WriteClass(ctx, path, g)
}

// ReadClass loads a single-band class raster as uint8, warped to targetCRS
// when the file's CRS differs. Class 0 is the no-data value by convention.
func ReadClass(ctx context.Context, path, targetCRS string) (*raster.Grid[uint8], error) {
	ds, done, err := openWarped(ctx, path, targetCRS, "near")
	if err != nil {
		return nil, err
	}
	defer done()

	box, band, err := frameAndBand(ds, path, targetCRS, 1)
	if err != nil {
		return nil, err
	}

	data := make([]uint8, box.Cells())
	if err := band.Read(0, 0, data, box.Width, box.Height); err != nil {
		return nil, eris.Wrapf(err, "geoio: read %s", path)
	}

	return raster.NewGridFrom(box, data)
}

// ReadContinuous loads a single-band measurement raster as float64, warped
// to targetCRS when the file's CRS differs. Declared no-data cells come back
// as NaN so threshold comparisons never match them.
func ReadContinuous(ctx context.Context, path, targetCRS string) (*raster.Grid[float64], error) {
	return ReadBand(ctx, path, 1, targetCRS)
}

// ReadBand loads one band of a multi-band raster as float64. Bands are
// numbered from 1, GDAL style. No-data handling matches ReadContinuous.
func ReadBand(ctx context.Context, path string, bandNum int, targetCRS string) (*raster.Grid[float64], error) {
	ds, done, err := openWarped(ctx, path, targetCRS, "bilinear")
	if err != nil {
		return nil, err
	}
	defer done()

	box, band, err := frameAndBand(ds, path, targetCRS, bandNum)
	if err != nil {
		return nil, err
	}

	data := make([]float64, box.Cells())
	if err := band.Read(0, 0, data, box.Width, box.Height); err != nil {
		return nil, eris.Wrapf(err, "geoio: read %s", path)
	}

	if nd, ok := band.NoData(); ok && !math.IsNaN(nd) {
		for i, v := range data {
			if v == nd {
				data[i] = math.NaN()
			}
		}
	}

	return raster.NewGridFrom(box, data)
}

// WriteClass writes a class grid as a tiled, DEFLATE-compressed GeoTIFF with
// no-data 0 and downsampled overviews.
func WriteClass(ctx context.Context, path string, g *raster.Grid[uint8]) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "geoio: write class raster")
	}
	Register()

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Byte, g.Box.Width, g.Box.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return eris.Wrapf(err, "geoio: create %s", path)
	}
	defer func() { _ = ds.Close() }()

	if err := georeference(ds, g.Box); err != nil {
		return eris.Wrapf(err, "geoio: georeference %s", path)
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(float64(raster.NoData)); err != nil {
		return eris.Wrapf(err, "geoio: set nodata on %s", path)
	}
	if err := band.Write(0, 0, g.Data, g.Box.Width, g.Box.Height); err != nil {
		return eris.Wrapf(err, "geoio: write %s", path)
	}

	if err := ds.BuildOverviews(godal.MinSize(256)); err != nil {
		return eris.Wrapf(err, "geoio: build overviews for %s", path)
	}
	return nil
}

const continuousNoData = -9999

// WriteContinuous writes a measurement grid as a Float32 GeoTIFF. NaN cells
// are stored as the no-data value.
func WriteContinuous(ctx context.Context, path string, g *raster.Grid[float64]) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "geoio: write continuous raster")
	}
	Register()

	ds, err := godal.Create(godal.GTiff, path, 1, godal.Float32, g.Box.Width, g.Box.Height,
		godal.CreationOption("TILED=YES", "COMPRESS=DEFLATE"))
	if err != nil {
		return eris.Wrapf(err, "geoio: create %s", path)
	}
	defer func() { _ = ds.Close() }()

	if err := georeference(ds, g.Box); err != nil {
		return eris.Wrapf(err, "geoio: georeference %s", path)
	}

	band := ds.Bands()[0]
	if err := band.SetNoData(continuousNoData); err != nil {
		return eris.Wrapf(err, "geoio: set nodata on %s", path)
	}

	data := make([]float32, len(g.Data))
	for i, v := range g.Data {
		if math.IsNaN(v) {
			data[i] = continuousNoData
			continue
		}
		data[i] = float32(v)
	}
	if err := band.Write(0, 0, data, g.Box.Width, g.Box.Height); err != nil {
		return eris.Wrapf(err, "geoio: write %s", path)
	}
	return nil
}

// ReprojectVector rewrites a vector file in the target CRS. The output
// format follows the destination extension.
func ReprojectVector(ctx context.Context, src, dst, targetCRS string) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "geoio: reproject vector")
	}
	Register()

	format, err := vectorDriver(dst)
	if err != nil {
		return err
	}

	ds, err := godal.Open(src)
	if err != nil {
		return eris.Wrapf(err, "geoio: open %s", src)
	}
	defer func() { _ = ds.Close() }()

	out, err := ds.VectorTranslate(dst, []string{"-f", format, "-t_srs", targetCRS})
	if err != nil {
		return eris.Wrapf(err, "geoio: reproject %s", src)
	}
	return eris.Wrapf(out.Close(), "geoio: finalize %s", dst)
}

// openWarped opens a raster and, when it is not already in the target CRS,
// warps it into an in-memory dataset. The returned closer releases whichever
// datasets were created.
func openWarped(ctx context.Context, path, targetCRS, resampling string) (*godal.Dataset, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, eris.Wrap(err, "geoio: open raster")
	}
	Register()

	ds, err := godal.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "geoio: open %s", path)
	}

	code, ok := epsgCode(targetCRS)
	if !ok {
		return ds, func() { _ = ds.Close() }, nil
	}

	target, err := godal.NewSpatialRefFromEPSG(code)
	if err != nil {
		_ = ds.Close()
		return nil, nil, eris.Wrapf(err, "geoio: parse target crs %s", targetCRS)
	}

	if sr := ds.SpatialRef(); sr != nil && sr.IsSame(target) {
		return ds, func() { _ = ds.Close() }, nil
	}

	zap.L().Debug("geoio: warping raster to target crs",
		zap.String("path", path),
		zap.String("crs", targetCRS),
		zap.String("resampling", resampling),
	)

	warped, err := ds.Warp("", []string{"-of", "MEM", "-t_srs", targetCRS, "-r", resampling})
	if err != nil {
		_ = ds.Close()
		return nil, nil, eris.Wrapf(err, "geoio: warp %s to %s", path, targetCRS)
	}

	return warped, func() {
		_ = warped.Close()
		_ = ds.Close()
	}, nil
}

// frameAndBand extracts the georeferenced frame and one band, numbered
// from 1.
func frameAndBand(ds *godal.Dataset, path, targetCRS string, bandNum int) (raster.GeoBox, godal.Band, error) {
	bands := ds.Bands()
	if bandNum < 1 || bandNum > len(bands) {
		return raster.GeoBox{}, godal.Band{}, eris.Errorf("geoio: %s has no band %d (%d present)", path, bandNum, len(bands))
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return raster.GeoBox{}, godal.Band{}, eris.Wrapf(err, "geoio: geotransform of %s", path)
	}

	st := ds.Structure()
	box, err := frameFromTransform(gt, st.SizeX, st.SizeY, targetCRS)
	if err != nil {
		return raster.GeoBox{}, godal.Band{}, eris.Wrapf(err, "geoio: frame of %s", path)
	}

	return box, bands[bandNum-1], nil
}

// frameFromTransform converts a GDAL geotransform into a GeoBox. Only
// north-up, unrotated rasters are supported.
func frameFromTransform(gt [6]float64, width, height int, crs string) (raster.GeoBox, error) {
	if gt[2] != 0 || gt[4] != 0 {
		return raster.GeoBox{}, eris.New("rotated rasters are not supported")
	}
	if gt[1] <= 0 || gt[5] >= 0 {
		return raster.GeoBox{}, eris.New("raster must be north-up with positive resolution")
	}
	if width <= 0 || height <= 0 {
		return raster.GeoBox{}, eris.Errorf("invalid raster size %dx%d", width, height)
	}

	return raster.GeoBox{
		Width:   width,
		Height:  height,
		OriginX: gt[0],
		OriginY: gt[3],
		ResX:    gt[1],
		ResY:    -gt[5],
		CRS:     raster.NormalizeCRS(crs),
	}, nil
}

// georeference stamps the grid's frame and CRS onto a dataset.
func georeference(ds *godal.Dataset, box raster.GeoBox) error {
	if err := ds.SetGeoTransform(transformFromFrame(box)); err != nil {
		return err
	}

	code, ok := epsgCode(box.CRS)
	if !ok {
		return nil
	}
	sr, err := godal.NewSpatialRefFromEPSG(code)
	if err != nil {
		return err
	}
	return ds.SetSpatialRef(sr)
}

func transformFromFrame(box raster.GeoBox) [6]float64 {
	return [6]float64{box.OriginX, box.ResX, 0, box.OriginY, 0, -box.ResY}
}

// epsgCode extracts the numeric code from an "EPSG:NNNN" CRS string.
func epsgCode(crs string) (int, bool) {
	norm := raster.NormalizeCRS(crs)
	const prefix = "EPSG:"
	if len(norm) <= len(prefix) || norm[:len(prefix)] != prefix {
		return 0, false
	}
	code, err := strconv.Atoi(norm[len(prefix):])
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}

// vectorDriver maps a destination extension to the GDAL vector driver name.
func vectorDriver(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".shp":
		return "ESRI Shapefile", nil
	case ".geojson", ".json":
		return "GeoJSON", nil
	case ".fgb":
		return "FlatGeobuf", nil
	case ".gpkg":
		return "GPKG", nil
	default:
		return "", eris.Errorf("geoio: no vector driver for %q", ext)
	}
}
