package coastline

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/veldscape/landcover-cli/internal/vector"
)

// FileProvider serves a coastline from a local vector file, for offline
// runs or pinned inputs. The file is expected to already cover the region
// of interest; only the year filter applies.
type FileProvider struct {
	Path string
	CRS  string
}

// Name implements Provider.
func (p *FileProvider) Name() string { return "file" }

// Coastline implements Provider.
func (p *FileProvider) Coastline(ctx context.Context, q Query) (*vector.Layer, error) {
	src, err := vector.OpenPath(p.Path, p.CRS)
	if err != nil {
		return nil, eris.Wrap(err, "coastline: open file")
	}
	layer, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}
	return FilterYear(layer, q.Year), nil
}
