package raster

import "fmt"

// CoverageError reports an auxiliary layer whose extent does not fully cover
// the target frame. Processing of the affected raster cannot continue: the
// uncovered cells would silently read as zero.
type CoverageError struct {
	Layer  string
	Have   GeoBox
	Target GeoBox
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("layer %q covers %s, short of target %s", e.Layer, e.Have.String(), e.Target.String())
}

// CRSMismatchError reports a layer declaring a different CRS than the frame
// it is combined with. Cross-CRS math is never attempted; inputs are
// reprojected up front or rejected.
type CRSMismatchError struct {
	Layer string
	Have  string
	Want  string
}

func (e *CRSMismatchError) Error() string {
	return fmt.Sprintf("layer %q is in %s, want %s", e.Layer, e.Have, e.Want)
}
