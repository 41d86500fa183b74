package models

// Geometry describes how a voxel grid maps into physical scanner space.
type Geometry struct {
	// Spacing is the voxel size in mm along (x, y, z).
	Spacing [3]float64

	// Origin is the physical position of the first voxel in mm.
	Origin [3]float64

	// Direction is the row-major 3x3 direction cosine matrix. Column i holds
	// the physical direction of voxel axis i.
	Direction [9]float64
}

// IdentityDirection returns the identity direction cosine matrix.
func IdentityDirection() [9]float64 {
	return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Volume is a 3D voxel grid with physical geometry.
type Volume struct {
	// Data is the voxel data as a flat array in x-fastest order:
	// index = (z*Height + y)*Width + x.
	Data []float64

	// Width, Height and Depth are the grid dimensions in voxels.
	Width  int
	Height int
	Depth  int

	// Geom maps the grid into physical space.
	Geom Geometry
}

// NewVolume allocates a zero-filled volume of the given extent with
// identity direction.
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
		Geom: Geometry{
			Spacing:   [3]float64{1, 1, 1},
			Direction: IdentityDirection(),
		},
	}
}

// At returns the voxel value at (x, y, z). Bounds are not checked.
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[(z*v.Height+y)*v.Width+x]
}

// Set stores the voxel value at (x, y, z). Bounds are not checked.
func (v *Volume) Set(x, y, z int, val float64) {
	v.Data[(z*v.Height+y)*v.Width+x] = val
}

// SameShape reports whether two volumes have identical extents.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Width == o.Width && v.Height == o.Height && v.Depth == o.Depth
}

// Clone returns a deep copy of the volume.
func (v *Volume) Clone() *Volume {
	out := &Volume{
		Data:   make([]float64, len(v.Data)),
		Width:  v.Width,
		Height: v.Height,
		Depth:  v.Depth,
		Geom:   v.Geom,
	}
	copy(out.Data, v.Data)
	return out
}

// Volume4D is an ordered join of same-shape 3D volumes along a trailing
// non-spatial axis (one frame per echo, ascending by echo time).
type Volume4D struct {
	// Data is the voxel data in x-fastest order:
	// index = ((t*Depth + z)*Height + y)*Width + x.
	Data []float64

	Width  int
	Height int
	Depth  int
	Frames int

	// Geom is the shared 3D geometry of every frame.
	Geom Geometry

	// Direction4 is the 4x4 row-major direction matrix: the 3x3 spatial block
	// embedded in an identity, since the echo axis carries no spatial
	// direction. Filled by the assembler when frames are joined.
	Direction4 [16]float64

	// EchoTimes are the per-frame echo times in ms, ascending.
	EchoTimes []float64
}

// VolumeSet is the assembled output of one conversion call. It is handed to
// the persistence layer and not mutated after assembly completes.
type VolumeSet struct {
	// Volumes holds the per-echo (or per-component-echo) 3D volumes in the
	// order they were assembled.
	Volumes []*Volume

	// Labels names each entry of Volumes, e.g. "magnitude echo 1".
	Labels []string

	// Series holds one optional 4D composite per component label.
	Series map[string]*Volume4D

	// EchoTimes are the unique echo times of the conversion, ascending, in ms.
	EchoTimes []float64

	// Spacing is the corrected voxel spacing shared by the set.
	Spacing [3]float64

	// CenterFrequency is the scanner center frequency in MHz, 0 when unknown.
	CenterFrequency float64
}
