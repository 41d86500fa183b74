// Package derive computes per-voxel quantity maps from assembled volumes.
// All functions share one division policy: a zero denominator, NaN or Inf
// result is replaced with 0 before clipping, so background/air voxels read as
// zero rather than a clip boundary.
package derive

import (
	"math"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/volume"
)

// PorosityIndex computes (numerator/denominator)*100 per voxel, clipped to
// [0,100]. The output inherits the numerator's geometry.
func PorosityIndex(num, den *models.Volume) (*models.Volume, error) {
	return ratio(num, den, 100, 0, 100)
}

// Ratio computes numerator/denominator per voxel, clipped to [clipMin,
// clipMax]. Used for suppression-ratio maps, conventionally [0,1000].
func Ratio(num, den *models.Volume, clipMin, clipMax float64) (*models.Volume, error) {
	return ratio(num, den, 1, clipMin, clipMax)
}

// Magnitude computes sqrt(real^2 + imag^2) per voxel, unclipped.
func Magnitude(real, imag *models.Volume) (*models.Volume, error) {
	if !real.SameShape(imag) {
		return nil, &volume.ShapeMismatchError{
			Want: [3]int{real.Width, real.Height, real.Depth},
			Got:  [3]int{imag.Width, imag.Height, imag.Depth},
		}
	}
	out := real.Clone()
	for i := range out.Data {
		out.Data[i] = math.Hypot(real.Data[i], imag.Data[i])
	}
	return out, nil
}

// Magnitude4D recombines magnitude frames from real and imaginary 4D
// composites in memory, frame by frame.
func Magnitude4D(real, imag *models.Volume4D) (*models.Volume4D, error) {
	if real.Width != imag.Width || real.Height != imag.Height ||
		real.Depth != imag.Depth || real.Frames != imag.Frames {
		return nil, &volume.ShapeMismatchError{
			Want: [3]int{real.Width, real.Height, real.Depth},
			Got:  [3]int{imag.Width, imag.Height, imag.Depth},
		}
	}
	out := &models.Volume4D{
		Data:       make([]float64, len(real.Data)),
		Width:      real.Width,
		Height:     real.Height,
		Depth:      real.Depth,
		Frames:     real.Frames,
		Geom:       real.Geom,
		Direction4: real.Direction4,
		EchoTimes:  append([]float64(nil), real.EchoTimes...),
	}
	for i := range out.Data {
		out.Data[i] = math.Hypot(real.Data[i], imag.Data[i])
	}
	return out, nil
}

func ratio(num, den *models.Volume, scale, clipMin, clipMax float64) (*models.Volume, error) {
	if !num.SameShape(den) {
		return nil, &volume.ShapeMismatchError{
			Want: [3]int{num.Width, num.Height, num.Depth},
			Got:  [3]int{den.Width, den.Height, den.Depth},
		}
	}
	out := num.Clone()
	for i := range out.Data {
		v := num.Data[i] / den.Data[i] * scale
		// Zero the invalid result first; clipping afterwards must not turn a
		// zero-denominator voxel into a clip bound.
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		if v < clipMin {
			v = clipMin
		}
		if v > clipMax {
			v = clipMax
		}
		out.Data[i] = v
	}
	return out, nil
}
