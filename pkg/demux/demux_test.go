package demux

import (
	"errors"
	"fmt"
	"testing"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/seqplan"
)

// instance builds a record carrying only an echo time and an identifying path.
func instance(path string, te float64) *models.InstanceRecord {
	return &models.InstanceRecord{Path: path, EchoTime: &te}
}

// stridedBatch simulates the acquisition order of a strided export: the
// hardware writes slice by slice, echoes within the slice, components within
// the echo. Paths encode slice/component/echo so tests can verify membership.
func stridedBatch(slices, components, echoes int) []*models.InstanceRecord {
	var out []*models.InstanceRecord
	for s := 0; s < slices; s++ {
		for e := 0; e < echoes; e++ {
			for c := 0; c < components; c++ {
				te := float64((e + 1) * 10)
				out = append(out, instance(fmt.Sprintf("s%d_c%d_e%d", s, c, e), te))
			}
		}
	}
	return out
}

// TestSplitStridedSingleComponent verifies the MESE-style echo stride.
func TestSplitStridedSingleComponent(t *testing.T) {
	records := stridedBatch(10, 1, 3)
	plan := seqplan.Plan{Layout: seqplan.EchoStrided}

	groups, err := Split(records, plan, []string{"magnitude"}, 3)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("Expected 3 groups, got %d", len(groups))
	}

	for e, g := range groups {
		if g.Component != "magnitude" {
			t.Errorf("Expected magnitude component, got %q", g.Component)
		}
		if g.EchoIndex != e {
			t.Errorf("Expected echo index %d, got %d", e, g.EchoIndex)
		}
		if g.EchoTime != float64((e+1)*10) {
			t.Errorf("Expected echo time %.0f, got %.1f", float64((e+1)*10), g.EchoTime)
		}
		if len(g.Records) != 10 {
			t.Fatalf("Expected 10 slices per echo, got %d", len(g.Records))
		}
		for s, rec := range g.Records {
			want := fmt.Sprintf("s%d_c0_e%d", s, e)
			if rec.Path != want {
				t.Errorf("Expected %s, got %s", want, rec.Path)
			}
		}
	}
}

// TestSplitStridedComplexComponents verifies the two-level stride of a CV=29
// complex export: component stride first, echo stride within each component.
func TestSplitStridedComplexComponents(t *testing.T) {
	records := stridedBatch(4, 3, 2)
	plan := seqplan.Plan{Layout: seqplan.EchoStrided}
	components := []string{"magnitude", "real", "imaginary"}

	groups, err := Split(records, plan, components, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(groups) != 6 {
		t.Fatalf("Expected 6 groups (3 components x 2 echoes), got %d", len(groups))
	}

	// Groups are component-major, echoes ascending within each component.
	for gi, g := range groups {
		c := gi / 2
		e := gi % 2
		if g.Component != components[c] {
			t.Errorf("Group %d: expected component %q, got %q", gi, components[c], g.Component)
		}
		if len(g.Records) != 4 {
			t.Fatalf("Group %d: expected 4 slices, got %d", gi, len(g.Records))
		}
		for s, rec := range g.Records {
			want := fmt.Sprintf("s%d_c%d_e%d", s, c, e)
			if rec.Path != want {
				t.Errorf("Group %d slice %d: expected %s, got %s", gi, s, want, rec.Path)
			}
		}
	}
}

// TestSplitBlocked verifies the UTE-style contiguous echo blocks.
func TestSplitBlocked(t *testing.T) {
	var records []*models.InstanceRecord
	for e := 0; e < 2; e++ {
		for s := 0; s < 5; s++ {
			te := float64(e + 1)
			records = append(records, instance(fmt.Sprintf("e%d_s%d", e, s), te))
		}
	}
	plan := seqplan.Plan{Layout: seqplan.EchoBlocked}

	groups, err := Split(records, plan, []string{"magnitude"}, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	for e, g := range groups {
		for s, rec := range g.Records {
			want := fmt.Sprintf("e%d_s%d", e, s)
			if rec.Path != want {
				t.Errorf("Expected %s, got %s", want, rec.Path)
			}
		}
	}
}

// TestSplitSliceInterleaved verifies the DESS convention: the stack is
// spatially sorted first, then even/odd positions separate the echoes.
func TestSplitSliceInterleaved(t *testing.T) {
	// Echo pairs share a spatial location; file order is scrambled.
	var records []*models.InstanceRecord
	for _, z := range []float64{20, 0, 10} {
		for e := 0; e < 2; e++ {
			te := float64((e + 1) * 5)
			rec := instance(fmt.Sprintf("z%.0f_e%d", z, e), te)
			rec.Orientation = &[6]float64{1, 0, 0, 0, 1, 0}
			rec.Position = &[3]float64{0, 0, z}
			records = append(records, rec)
		}
	}
	plan := seqplan.Plan{Layout: seqplan.EchoSliceInterleaved}

	groups, err := Split(records, plan, []string{"magnitude"}, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("Expected 2 groups, got %d", len(groups))
	}
	for e, g := range groups {
		wantZ := []float64{0, 10, 20}
		for i, rec := range g.Records {
			want := fmt.Sprintf("z%.0f_e%d", wantZ[i], e)
			if rec.Path != want {
				t.Errorf("Echo %d slice %d: expected %s, got %s", e, i, want, rec.Path)
			}
		}
	}
}

// TestSplitMismatch verifies that uneven stride arithmetic is fatal.
func TestSplitMismatch(t *testing.T) {
	records := stridedBatch(3, 1, 3) // 9 records
	records = records[:8]
	plan := seqplan.Plan{Layout: seqplan.EchoStrided}

	_, err := Split(records, plan, []string{"magnitude"}, 3)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Expected MismatchError, got %v", err)
	}
	if mismatch.Instances != 8 || mismatch.Echoes != 3 {
		t.Errorf("Expected 8 instances / 3 echoes in error, got %d / %d",
			mismatch.Instances, mismatch.Echoes)
	}
}

// TestSplitByEchoTime verifies the general fallback grouping.
func TestSplitByEchoTime(t *testing.T) {
	records := []*models.InstanceRecord{
		instance("a", 30), instance("b", 10), instance("c", 10),
		{Path: "d"}, // no echo time: 0 ms group
	}
	plan := seqplan.Plan{Layout: seqplan.EchoByTime}

	groups, err := Split(records, plan, []string{"magnitude"}, 0)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("Expected 3 echo-time groups, got %d", len(groups))
	}
	if groups[0].EchoTime != 0 || len(groups[0].Records) != 1 {
		t.Errorf("Expected the 0 ms group first with 1 record")
	}
	if groups[1].EchoTime != 10 || len(groups[1].Records) != 2 {
		t.Errorf("Expected the 10 ms group with 2 records")
	}
	if groups[2].EchoTime != 30 {
		t.Errorf("Expected the 30 ms group last, got %.1f", groups[2].EchoTime)
	}
}
