package dicomio

import (
	"testing"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
)

func axialAt(z float64) *models.InstanceRecord {
	return &models.InstanceRecord{
		Orientation: &[6]float64{1, 0, 0, 0, 1, 0},
		Position:    &[3]float64{0, 0, z},
	}
}

// TestSortByPosition verifies ascending depth order along the slice normal.
func TestSortByPosition(t *testing.T) {
	records := []*models.InstanceRecord{
		axialAt(30), axialAt(10), axialAt(40), axialAt(20),
	}

	sorted := SortByPosition(records)

	want := []float64{10, 20, 30, 40}
	for i, rec := range sorted {
		if (*rec.Position)[2] != want[i] {
			t.Errorf("Expected slice at z=%.0f at index %d, got z=%.0f",
				want[i], i, (*rec.Position)[2])
		}
	}

	// The input order must be untouched.
	if (*records[0].Position)[2] != 30 {
		t.Errorf("Expected the input slice order to be preserved")
	}
}

// TestSortByPositionObliqueNormal verifies that depth is projected along the
// actual slice normal, not a coordinate axis.
func TestSortByPositionObliqueNormal(t *testing.T) {
	// Sagittal orientation: rows along y, columns along z, normal along +x.
	sagittal := func(x float64) *models.InstanceRecord {
		return &models.InstanceRecord{
			Orientation: &[6]float64{0, 1, 0, 0, 0, 1},
			Position:    &[3]float64{x, 100, -50},
		}
	}
	records := []*models.InstanceRecord{sagittal(5), sagittal(-5), sagittal(0)}

	sorted := SortByPosition(records)

	want := []float64{-5, 0, 5}
	for i, rec := range sorted {
		if (*rec.Position)[0] != want[i] {
			t.Errorf("Expected slice at x=%.0f at index %d, got x=%.0f",
				want[i], i, (*rec.Position)[0])
		}
	}
}

// TestSortByPositionMissingGeometry verifies the whole-list fallback: one
// record without geometry keeps the entire stack in file order.
func TestSortByPositionMissingGeometry(t *testing.T) {
	records := []*models.InstanceRecord{
		axialAt(30), {Path: "no-geometry.dcm"}, axialAt(10),
	}

	sorted := SortByPosition(records)

	for i := range records {
		if sorted[i] != records[i] {
			t.Fatalf("Expected file order to be preserved when geometry is missing")
		}
	}
}

// TestSortByPositionStable verifies that equal depths keep their relative
// file order.
func TestSortByPositionStable(t *testing.T) {
	a := axialAt(10)
	a.Path = "a"
	b := axialAt(10)
	b.Path = "b"

	sorted := SortByPosition([]*models.InstanceRecord{a, b})
	if sorted[0].Path != "a" || sorted[1].Path != "b" {
		t.Errorf("Expected stable order a,b, got %s,%s", sorted[0].Path, sorted[1].Path)
	}
}

// TestReverse verifies reversal without mutation.
func TestReverse(t *testing.T) {
	records := []*models.InstanceRecord{axialAt(1), axialAt(2), axialAt(3)}

	rev := Reverse(records)

	if (*rev[0].Position)[2] != 3 || (*rev[2].Position)[2] != 1 {
		t.Errorf("Expected reversed order 3,2,1")
	}
	if (*records[0].Position)[2] != 1 {
		t.Errorf("Expected the input order to be preserved")
	}
}
