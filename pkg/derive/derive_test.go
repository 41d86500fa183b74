package derive

import (
	"errors"
	"math"
	"testing"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/volume"
)

func vol(data ...float64) *models.Volume {
	v := models.NewVolume(len(data), 1, 1)
	copy(v.Data, data)
	return v
}

// TestPorosityIndex verifies the percentage scaling and the [0,100] clip.
func TestPorosityIndex(t *testing.T) {
	num := vol(50, 30, 200)
	den := vol(100, 100, 100)

	pi, err := PorosityIndex(num, den)
	if err != nil {
		t.Fatalf("PorosityIndex: %v", err)
	}
	want := []float64{50, 30, 100} // 200% clips to 100
	for i, v := range pi.Data {
		if v != want[i] {
			t.Errorf("Expected PI[%d]=%.0f, got %.2f", i, want[i], v)
		}
	}
}

// TestRatioZeroDenominator verifies that invalid divisions become exactly
// zero, not a clip boundary.
func TestRatioZeroDenominator(t *testing.T) {
	num := vol(5, 0, -3)
	den := vol(0, 0, 0)

	r, err := Ratio(num, den, 0, 1000)
	if err != nil {
		t.Fatalf("Ratio: %v", err)
	}
	for i, v := range r.Data {
		if v != 0 {
			t.Errorf("Expected zero at voxel %d, got %v", i, v)
		}
	}
}

// TestRatioClipping verifies the caller-supplied clip range.
func TestRatioClipping(t *testing.T) {
	num := vol(5000, 500, -10)
	den := vol(1, 1, 1)

	r, err := Ratio(num, den, 0, 1000)
	if err != nil {
		t.Fatalf("Ratio: %v", err)
	}
	want := []float64{1000, 500, 0}
	for i, v := range r.Data {
		if v != want[i] {
			t.Errorf("Expected ratio[%d]=%.0f, got %.2f", i, want[i], v)
		}
	}
}

// TestRatioShapeMismatch verifies that differing extents are fatal.
func TestRatioShapeMismatch(t *testing.T) {
	_, err := Ratio(vol(1, 2), vol(1), 0, 100)
	var mismatch *volume.ShapeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Expected ShapeMismatchError, got %v", err)
	}
}

// TestMagnitude verifies per-voxel recombination.
func TestMagnitude(t *testing.T) {
	re := vol(3, 0, -3)
	im := vol(4, 0, 4)

	m, err := Magnitude(re, im)
	if err != nil {
		t.Fatalf("Magnitude: %v", err)
	}
	want := []float64{5, 0, 5}
	for i, v := range m.Data {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("Expected |z|[%d]=%.0f, got %v", i, want[i], v)
		}
	}

	// Inputs must be untouched.
	if re.Data[0] != 3 || im.Data[0] != 4 {
		t.Errorf("Expected inputs to be preserved")
	}
}

// TestMagnitude4D verifies frame-wise recombination plus echo-time and
// affine carry-over.
func TestMagnitude4D(t *testing.T) {
	re := &models.Volume4D{
		Data: []float64{3, 0, 6, 0}, Width: 1, Height: 1, Depth: 2, Frames: 2,
		Direction4: volume.ExtendDirection(models.IdentityDirection()),
		EchoTimes:  []float64{1.2, 2.4},
	}
	im := &models.Volume4D{
		Data: []float64{4, 0, 8, 0}, Width: 1, Height: 1, Depth: 2, Frames: 2,
	}

	m, err := Magnitude4D(re, im)
	if err != nil {
		t.Fatalf("Magnitude4D: %v", err)
	}
	want := []float64{5, 0, 10, 0}
	for i, v := range m.Data {
		if math.Abs(v-want[i]) > 1e-12 {
			t.Errorf("Expected |z|[%d]=%.0f, got %v", i, want[i], v)
		}
	}
	if len(m.EchoTimes) != 2 || m.EchoTimes[0] != 1.2 {
		t.Errorf("Expected echo times from the real composite, got %v", m.EchoTimes)
	}
	// The recombined composite must keep the inputs' affine, or the written
	// file ends up with a zeroed direction block.
	if m.Direction4 != re.Direction4 {
		t.Errorf("Expected Direction4 %v, got %v", re.Direction4, m.Direction4)
	}
}
