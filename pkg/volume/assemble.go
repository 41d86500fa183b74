// Package volume assembles spatially sorted slice stacks into 3D volumes
// with corrected geometry, and joins per-echo volumes into 4D composites.
package volume

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
)

// ShapeMismatchError reports volumes of differing extent being joined.
type ShapeMismatchError struct {
	Want, Got [3]int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("shape mismatch: expected %dx%dx%d, got %dx%dx%d",
		e.Want[0], e.Want[1], e.Want[2], e.Got[0], e.Got[1], e.Got[2])
}

// AttachGeometry derives the physical geometry of a loaded stack from its
// first slice's metadata and writes it onto the volume.
//
// The through-plane spacing is never taken from the pixel-spacing tag: GE
// exports misreport in-plane acquisition gaps there. It is overridden with
// the slice thickness, falling back to the spacing-between-slices tag and
// finally to defaultSpacing, each fallback producing a warning.
//
// When ref is non-nil (registration case) origin and direction are copied
// from it instead of the stack's native geometry, guaranteeing voxel-to-voxel
// alignment across registered volumes.
func AttachGeometry(vol *models.Volume, records []*models.InstanceRecord, defaultSpacing float64, ref *models.Volume) []string {
	var warnings []string
	if len(records) == 0 {
		return warnings
	}
	first := records[0]

	// In-plane spacing. PixelSpacing is (row, column), i.e. (y, x).
	if first.PixelSpacing != nil {
		vol.Geom.Spacing[0] = first.PixelSpacing[1]
		vol.Geom.Spacing[1] = first.PixelSpacing[0]
	} else {
		vol.Geom.Spacing[0] = 1
		vol.Geom.Spacing[1] = 1
		warnings = append(warnings, "missing pixel spacing, assuming 1.0 mm in-plane")
	}

	thickness, warn := sliceSpacing(first, defaultSpacing)
	if warn != "" {
		warnings = append(warnings, warn)
	}
	vol.Geom.Spacing[2] = thickness

	if ref != nil {
		vol.Geom.Origin = ref.Geom.Origin
		vol.Geom.Direction = ref.Geom.Direction
		return warnings
	}

	if first.Position != nil {
		vol.Geom.Origin = *first.Position
	}
	if n, ok := first.SliceNormal(); ok {
		o := *first.Orientation
		// Column i of the direction matrix is the cosine of voxel axis i.
		vol.Geom.Direction = [9]float64{
			o[0], o[3], n[0],
			o[1], o[4], n[1],
			o[2], o[5], n[2],
		}
	} else {
		vol.Geom.Direction = models.IdentityDirection()
		warnings = append(warnings, "missing orientation, assuming identity direction")
	}

	return warnings
}

// sliceSpacing resolves the through-plane spacing with the documented
// fallback chain.
func sliceSpacing(rec *models.InstanceRecord, fallback float64) (float64, string) {
	if rec.SliceThickness != nil && *rec.SliceThickness > 0 {
		return *rec.SliceThickness, ""
	}
	if rec.SpacingBetweenSlices != nil && *rec.SpacingBetweenSlices > 0 {
		return *rec.SpacingBetweenSlices,
			"missing slice thickness, using spacing between slices"
	}
	return fallback, fmt.Sprintf(
		"missing slice thickness and slice spacing, using %.1f mm", fallback)
}

// ConformGeometry forcibly overwrites a volume's geometry with the
// reference's, eliminating floating-point drift introduced by resampling.
func ConformGeometry(vol, ref *models.Volume) {
	vol.Geom = ref.Geom
}

// Join4D joins same-shape 3D volumes (already ordered ascending by echo time)
// along a new trailing axis. The shared 3D geometry is carried over; the echo
// times are recorded per frame.
func Join4D(vols []*models.Volume, echoTimes []float64) (*models.Volume4D, error) {
	if len(vols) == 0 {
		return nil, fmt.Errorf("join: no volumes to join")
	}
	base := vols[0]
	out := &models.Volume4D{
		Data:       make([]float64, len(base.Data)*len(vols)),
		Width:      base.Width,
		Height:     base.Height,
		Depth:      base.Depth,
		Frames:     len(vols),
		Geom:       base.Geom,
		Direction4: ExtendDirection(base.Geom.Direction),
		EchoTimes:  append([]float64(nil), echoTimes...),
	}
	for t, v := range vols {
		if !v.SameShape(base) {
			return nil, &ShapeMismatchError{
				Want: [3]int{base.Width, base.Height, base.Depth},
				Got:  [3]int{v.Width, v.Height, v.Depth},
			}
		}
		copy(out.Data[t*len(base.Data):], v.Data)
	}
	return out, nil
}

// ExtendDirection embeds a 3x3 direction cosine matrix into the top-left
// block of a 4x4 identity matrix. The trailing (echo) axis carries no spatial
// direction, so its row and column stay those of the identity.
func ExtendDirection(d [9]float64) [16]float64 {
	d3 := mat.NewDense(3, 3, append([]float64(nil), d[:]...))
	d4 := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		d4.Set(i, i, 1)
	}
	d4.Slice(0, 3, 0, 3).(*mat.Dense).Copy(d3)

	var out [16]float64
	copy(out[:], d4.RawMatrix().Data)
	return out
}
