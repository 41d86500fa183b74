package registration

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
)

// fakeEngine records registration calls and optionally fails specific series.
// It populates each working directory the way elastix would, so tests can
// check the directories are cleaned up afterwards.
type fakeEngine struct {
	registerCalls int
	applyCalls    int
	failRegister  bool
	failApply     bool
}

func (f *fakeEngine) Register(ctx context.Context, fixed, moving *models.Volume, rigid bool, workDir string) (Transform, error) {
	f.registerCalls++
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, err
	}
	if f.failRegister {
		return nil, &Error{Stage: "registration", Err: fmt.Errorf("forced failure")}
	}
	return "transform", nil
}

func (f *fakeEngine) Apply(ctx context.Context, tr Transform, moving *models.Volume, workDir string) (*models.Volume, error) {
	f.applyCalls++
	if f.failApply {
		return nil, &Error{Stage: "apply", Err: fmt.Errorf("forced failure")}
	}
	out := moving.Clone()
	// Simulate resampler drift that ConformGeometry must erase.
	out.Geom.Origin[0] += 1e-9
	return out, nil
}

func series(n, echoes int) [][]*models.Volume {
	out := make([][]*models.Volume, n)
	for i := range out {
		out[i] = make([]*models.Volume, echoes)
		for j := range out[i] {
			v := models.NewVolume(2, 2, 2)
			v.Geom.Origin = [3]float64{float64(i), 0, 0}
			out[i][j] = v
		}
	}
	return out
}

// TestReferenceIndex verifies the central-series choice.
func TestReferenceIndex(t *testing.T) {
	tests := []struct{ n, want int }{
		{1, 0}, {2, 1}, {3, 1}, {4, 2}, {5, 2},
	}
	for _, tt := range tests {
		if got := ReferenceIndex(tt.n); got != tt.want {
			t.Errorf("ReferenceIndex(%d): expected %d, got %d", tt.n, tt.want, got)
		}
	}
}

// TestAlignSeries verifies one transform per series applied to every echo,
// with the reference left untouched.
func TestAlignSeries(t *testing.T) {
	engine := &fakeEngine{}
	o := NewOrchestrator(engine, true, t.TempDir())

	in := series(3, 4)
	aligned, refIdx, warnings := o.AlignSeries(context.Background(), in)

	if refIdx != 1 {
		t.Fatalf("Expected reference index 1, got %d", refIdx)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
	if engine.registerCalls != 2 {
		t.Errorf("Expected one registration per non-reference series, got %d", engine.registerCalls)
	}
	if engine.applyCalls != 8 {
		t.Errorf("Expected the transform applied to all 8 non-reference echoes, got %d", engine.applyCalls)
	}

	// The reference series passes through untouched.
	for j, v := range aligned[1] {
		if v != in[1][j] {
			t.Errorf("Expected reference echo %d unchanged", j)
		}
	}

	// Registered volumes conform to the reference geometry exactly.
	refGeom := in[1][0].Geom
	for i, echoes := range aligned {
		for j, v := range echoes {
			if v.Geom != refGeom {
				t.Errorf("Series %d echo %d: expected reference geometry, got %v", i, j, v.Geom)
			}
		}
	}
}

// TestAlignSeriesCleansWorkDirs verifies the temporary registration
// directories are removed on success and on both failure paths.
func TestAlignSeriesCleansWorkDirs(t *testing.T) {
	cases := []struct {
		name   string
		engine *fakeEngine
	}{
		{"success", &fakeEngine{}},
		{"register failure", &fakeEngine{failRegister: true}},
		{"apply failure", &fakeEngine{failApply: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			workRoot := t.TempDir()
			o := NewOrchestrator(tc.engine, true, workRoot)

			o.AlignSeries(context.Background(), series(3, 2))

			entries, err := os.ReadDir(workRoot)
			if err != nil {
				t.Fatalf("ReadDir: %v", err)
			}
			if len(entries) != 0 {
				t.Errorf("Expected an empty work root, found %d leftover entries", len(entries))
			}
		})
	}
}

// TestAlignSeriesSingleSeries verifies the no-op path.
func TestAlignSeriesSingleSeries(t *testing.T) {
	engine := &fakeEngine{}
	o := NewOrchestrator(engine, true, t.TempDir())

	in := series(1, 2)
	aligned, refIdx, _ := o.AlignSeries(context.Background(), in)

	if refIdx != 0 {
		t.Errorf("Expected reference index 0, got %d", refIdx)
	}
	if engine.registerCalls != 0 {
		t.Errorf("Expected no registrations for a single series, got %d", engine.registerCalls)
	}
	if aligned[0][0] != in[0][0] {
		t.Errorf("Expected the single series to pass through")
	}
}

// TestAlignSeriesRegisterFailure verifies the recoverable fallback: the
// failed series keeps its volumes, conformed to the reference geometry.
func TestAlignSeriesRegisterFailure(t *testing.T) {
	engine := &fakeEngine{failRegister: true}
	o := NewOrchestrator(engine, true, t.TempDir())

	in := series(2, 2)
	aligned, refIdx, warnings := o.AlignSeries(context.Background(), in)

	if len(warnings) != 1 {
		t.Fatalf("Expected one warning, got %v", warnings)
	}
	if engine.applyCalls != 0 {
		t.Errorf("Expected no transform applications after a failed registration")
	}
	refGeom := in[refIdx][0].Geom
	for j, v := range aligned[0] {
		if v.Geom != refGeom {
			t.Errorf("Fallback echo %d: expected conformed geometry, got %v", j, v.Geom)
		}
		if v == in[0][j] {
			t.Errorf("Fallback echo %d: expected a clone, got the input volume", j)
		}
	}
}

// TestAlignSeriesApplyFailure verifies that a mid-series apply failure
// reverts the whole series to the unregistered fallback.
func TestAlignSeriesApplyFailure(t *testing.T) {
	engine := &fakeEngine{failApply: true}
	o := NewOrchestrator(engine, true, t.TempDir())

	in := series(2, 3)
	aligned, refIdx, warnings := o.AlignSeries(context.Background(), in)

	if len(warnings) != 1 {
		t.Fatalf("Expected one warning, got %v", warnings)
	}
	if len(aligned[0]) != len(in[0]) {
		t.Fatalf("Expected the full fallback series, got %d echoes", len(aligned[0]))
	}
	refGeom := in[refIdx][0].Geom
	for j, v := range aligned[0] {
		if v == nil {
			t.Fatalf("Fallback echo %d is nil", j)
		}
		if v.Geom != refGeom {
			t.Errorf("Fallback echo %d: expected conformed geometry", j)
		}
	}
}
