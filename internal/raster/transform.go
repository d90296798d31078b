package raster

import (
	"github.com/mohammed-shakir/raster-intake/internal/errkind"
)

// GeoTransform uses the GDAL coefficient order:
//
//	X = gt[0] + col*gt[1] + row*gt[2]
//	Y = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

func (gt GeoTransform) Apply(col, row float64) (x, y float64) {
	return gt[0] + col*gt[1] + row*gt[2], gt[3] + col*gt[4] + row*gt[5]
}

// Affine returns the six coefficients in the row-major order used by proj:transform.
func (gt GeoTransform) Affine() []float64 {
	return []float64{gt[1], gt[2], gt[0], gt[4], gt[5], gt[3]}
}

// GeoTransformFromHeader prefers ModelTransformation and falls back to
// ModelTiepoint + ModelPixelScale. PixelIsPoint rasters are shifted half a pixel so
// the transform addresses pixel corners.
func GeoTransformFromHeader(h Header) (GeoTransform, error) {
	var gt GeoTransform
	switch {
	case len(h.Transformation) >= 16:
		m := h.Transformation
		gt = GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}
	case len(h.Tiepoints) >= 6 && len(h.PixelScale) >= 2:
		i, j := h.Tiepoints[0], h.Tiepoints[1]
		x, y := h.Tiepoints[3], h.Tiepoints[4]
		sx, sy := h.PixelScale[0], h.PixelScale[1]
		gt = GeoTransform{x - i*sx, sx, 0, y + j*sy, 0, -sy}
	default:
		return GeoTransform{}, errkind.MissingProjection.New("no model transformation or tiepoint/pixel scale")
	}

	if h.PixelIsPoint() {
		gt[0] -= 0.5*gt[1] + 0.5*gt[2]
		gt[3] -= 0.5*gt[4] + 0.5*gt[5]
	}
	return gt, nil
}
