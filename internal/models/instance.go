package models

// InstanceRecord holds the per-slice metadata extracted from one DICOM
// instance. Records are immutable once extracted; the file path back-reference
// allows the pixel buffer to be loaded lazily when the stack is assembled.
type InstanceRecord struct {
	// Path is the file the record was extracted from.
	Path string

	// EchoTime is the echo time in milliseconds, or nil if the tag is absent.
	EchoTime *float64

	// EchoNumber is the echo index reported by the scanner, or nil if absent.
	EchoNumber *int

	// InstanceNumber is the instance index within the series, or nil if absent.
	InstanceNumber *int

	// AcquisitionNumber identifies the acquisition this slice belongs to.
	AcquisitionNumber *int

	// SeriesNumber identifies the scanner series this slice belongs to.
	SeriesNumber *int

	// Orientation holds the two ImageOrientationPatient row vectors
	// (direction cosines of the in-plane axes), or nil if the tag is absent.
	Orientation *[6]float64

	// Position is the ImagePositionPatient 3-vector, or nil if absent.
	Position *[3]float64

	// PixelSpacing is the in-plane spacing in mm (row, column), or nil if absent.
	PixelSpacing *[2]float64

	// SliceThickness is the reported through-plane thickness in mm, or nil.
	SliceThickness *float64

	// SpacingBetweenSlices is the reported slice-to-slice distance in mm, or nil.
	SpacingBetweenSlices *float64

	// ImagingFrequency is the scanner center frequency in MHz, or nil.
	ImagingFrequency *float64

	// Rows and Columns are the in-plane matrix dimensions.
	Rows    int
	Columns int
}

// HasGeometry reports whether the record carries both orientation and
// position, which is the precondition for spatial sorting.
func (r *InstanceRecord) HasGeometry() bool {
	return r.Orientation != nil && r.Position != nil
}

// EchoTimeOr returns the echo time or the given fallback when the tag is absent.
func (r *InstanceRecord) EchoTimeOr(fallback float64) float64 {
	if r.EchoTime == nil {
		return fallback
	}
	return *r.EchoTime
}

// SliceNormal computes the slice-plane normal as the cross product of the two
// orientation row vectors. The second return value is false when the
// orientation tag is absent.
func (r *InstanceRecord) SliceNormal() ([3]float64, bool) {
	if r.Orientation == nil {
		return [3]float64{}, false
	}
	o := *r.Orientation
	return [3]float64{
		o[1]*o[5] - o[2]*o[4],
		o[2]*o[3] - o[0]*o[5],
		o[0]*o[4] - o[1]*o[3],
	}, true
}

// SliceDepth projects the instance position onto the slice normal, yielding
// the scalar used to order slices along the through-plane axis. The second
// return value is false when orientation or position is missing.
func (r *InstanceRecord) SliceDepth() (float64, bool) {
	n, ok := r.SliceNormal()
	if !ok || r.Position == nil {
		return 0, false
	}
	p := *r.Position
	return p[0]*n[0] + p[1]*n[1] + p[2]*n[2], true
}
