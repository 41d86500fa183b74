// Package registration aligns volumes from different series onto a common
// reference. The numerical optimizer and resampler live in an external engine
// behind the Engine contract; this package owns reference selection, contrast
// whitening, transform propagation and geometry conformance.
package registration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/nifti"
)

// Transform is an engine-specific spatial transform handle. It is opaque to
// the orchestrator, which only forwards it between Register and Apply.
type Transform interface{}

// Error reports a failed registration or transform application. It is
// recoverable per series: the orchestrator logs it and falls back to the
// untransformed volume.
type Error struct {
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("registration %s failed: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Engine is the external registration collaborator. workDir must be unique
// per series pair so concurrent registrations cannot cross-talk.
type Engine interface {
	// Register estimates the transform mapping moving onto fixed.
	Register(ctx context.Context, fixed, moving *models.Volume, rigid bool, workDir string) (Transform, error)

	// Apply resamples moving through a previously estimated transform.
	Apply(ctx context.Context, t Transform, moving *models.Volume, workDir string) (*models.Volume, error)
}

// ElastixEngine drives the elastix/transformix command-line tools.
type ElastixEngine struct {
	// ElastixPath and TransformixPath are the executables to invoke.
	ElastixPath     string
	TransformixPath string
}

// NewElastixEngine returns an engine using the given executables, defaulting
// to "elastix" and "transformix" on PATH.
func NewElastixEngine(elastixPath, transformixPath string) *ElastixEngine {
	if elastixPath == "" {
		elastixPath = "elastix"
	}
	if transformixPath == "" {
		transformixPath = "transformix"
	}
	return &ElastixEngine{ElastixPath: elastixPath, TransformixPath: transformixPath}
}

// Register writes both volumes into workDir, runs elastix, and returns the
// path of the resulting transform parameter file.
func (e *ElastixEngine) Register(ctx context.Context, fixed, moving *models.Volume, rigid bool, workDir string) (Transform, error) {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, &Error{Stage: "setup", Err: err}
	}

	fixedPath := filepath.Join(workDir, "fixed.nii.gz")
	movingPath := filepath.Join(workDir, "moving.nii.gz")
	if err := nifti.WriteVolume(fixed, fixedPath); err != nil {
		return nil, &Error{Stage: "setup", Err: err}
	}
	if err := nifti.WriteVolume(moving, movingPath); err != nil {
		return nil, &Error{Stage: "setup", Err: err}
	}

	paramPath := filepath.Join(workDir, "params.txt")
	if err := os.WriteFile(paramPath, []byte(parameterFile(rigid)), 0644); err != nil {
		return nil, &Error{Stage: "setup", Err: err}
	}

	cmd := exec.CommandContext(ctx, e.ElastixPath,
		"-f", fixedPath, "-m", movingPath, "-p", paramPath, "-out", workDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, &Error{Stage: "estimate", Err: fmt.Errorf("%w: %s", err, tail(out))}
	}

	return filepath.Join(workDir, "TransformParameters.0.txt"), nil
}

// Apply resamples moving through transformix and reads the result back.
func (e *ElastixEngine) Apply(ctx context.Context, t Transform, moving *models.Volume, workDir string) (*models.Volume, error) {
	paramPath, ok := t.(string)
	if !ok {
		return nil, &Error{Stage: "apply", Err: fmt.Errorf("transform is not an elastix parameter file")}
	}

	applyDir := filepath.Join(workDir, "apply")
	if err := os.MkdirAll(applyDir, 0755); err != nil {
		return nil, &Error{Stage: "apply", Err: err}
	}

	movingPath := filepath.Join(applyDir, "moving.nii.gz")
	if err := nifti.WriteVolume(moving, movingPath); err != nil {
		return nil, &Error{Stage: "apply", Err: err}
	}

	cmd := exec.CommandContext(ctx, e.TransformixPath,
		"-in", movingPath, "-tp", paramPath, "-out", applyDir)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, &Error{Stage: "apply", Err: fmt.Errorf("%w: %s", err, tail(out))}
	}

	result, err := nifti.ReadVolume(filepath.Join(applyDir, "result.nii"))
	if err != nil {
		return nil, &Error{Stage: "apply", Err: err}
	}
	return result, nil
}

// parameterFile renders a minimal elastix parameter map for the requested
// transform model, mirroring the tool's defaults.
func parameterFile(rigid bool) string {
	transform := "EulerTransform"
	if !rigid {
		transform = "AffineTransform"
	}
	return fmt.Sprintf(`(Transform "%s")
(Registration "MultiResolutionRegistration")
(Metric "AdvancedMattesMutualInformation")
(Optimizer "AdaptiveStochasticGradientDescent")
(Interpolator "LinearInterpolator")
(ResampleInterpolator "FinalBSplineInterpolator")
(Resampler "DefaultResampler")
(FixedImagePyramid "FixedSmoothingImagePyramid")
(MovingImagePyramid "MovingSmoothingImagePyramid")
(NumberOfResolutions 3)
(MaximumNumberOfIterations 500)
(AutomaticTransformInitialization "true")
(ResultImageFormat "nii")
(WriteResultImage "true")
`, transform)
}

// tail keeps the last part of a tool's combined output for error messages.
func tail(out []byte) string {
	const max = 400
	if len(out) <= max {
		return string(out)
	}
	return "..." + string(out[len(out)-max:])
}
