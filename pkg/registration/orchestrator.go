package registration

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/volume"
)

// Orchestrator co-registers the volumes of multiple series onto a single
// reference series.
type Orchestrator struct {
	// Engine performs the actual estimation and resampling.
	Engine Engine

	// Rigid selects the transform model handed to the engine.
	Rigid bool

	// WorkRoot is the parent of the per-series temporary directories; empty
	// selects the system temp directory.
	WorkRoot string
}

// NewOrchestrator returns an orchestrator using the given engine.
func NewOrchestrator(engine Engine, rigid bool, workRoot string) *Orchestrator {
	if workRoot == "" {
		workRoot = os.TempDir()
	}
	return &Orchestrator{Engine: engine, Rigid: rigid, WorkRoot: workRoot}
}

// ReferenceIndex selects the structurally central series as the alignment
// reference. Boundary series are more likely to carry partial motion
// artifacts, so the first series is deliberately not used.
func ReferenceIndex(seriesCount int) int {
	return seriesCount / 2
}

// AlignSeries registers every non-reference series onto the reference and
// returns the aligned per-series volume lists plus the reference index and
// any warnings produced along the way.
//
// One transform is estimated per series, from the whitened first echoes, and
// that same transform is applied to every echo of the series. A failed
// registration is recoverable: the series keeps its unregistered volumes,
// geometry-conformed to the reference where shapes allow, and conversion
// continues.
func (o *Orchestrator) AlignSeries(ctx context.Context, series [][]*models.Volume) ([][]*models.Volume, int, []string) {
	refIdx := ReferenceIndex(len(series))
	var warnings []string

	if len(series) < 2 {
		return series, refIdx, warnings
	}

	refVol := series[refIdx][0]
	fixed := Whiten(refVol)

	aligned := make([][]*models.Volume, len(series))
	for i, echoes := range series {
		if i == refIdx {
			aligned[i] = echoes
			continue
		}
		var ws []string
		aligned[i], ws = o.alignOne(ctx, i, echoes, fixed, refVol)
		warnings = append(warnings, ws...)
	}

	return aligned, refIdx, warnings
}

// alignOne registers a single series onto the reference. Its working
// directory is removed on every exit path, failed registrations included.
func (o *Orchestrator) alignOne(ctx context.Context, idx int, echoes []*models.Volume, fixed, refVol *models.Volume) ([]*models.Volume, []string) {
	// Unique working directory per series pair, so concurrent
	// registrations cannot cross-talk.
	workDir := filepath.Join(o.WorkRoot, "reg-"+uuid.NewString())
	defer os.RemoveAll(workDir)

	moving := Whiten(echoes[0])
	transform, err := o.Engine.Register(ctx, fixed, moving, o.Rigid, workDir)
	if err != nil {
		log.Warn().Int("series", idx).Err(err).
			Msg("Registration failed, keeping unregistered volumes")
		return conformAll(echoes, refVol), []string{err.Error()}
	}

	out := make([]*models.Volume, len(echoes))
	for j, echo := range echoes {
		transformed, err := o.Engine.Apply(ctx, transform, echo, workDir)
		if err != nil {
			log.Warn().Int("series", idx).Int("echo", j).Err(err).
				Msg("Transform application failed, keeping unregistered series")
			return conformAll(echoes, refVol), []string{err.Error()}
		}
		// The resampler can introduce floating-point drift in the output
		// geometry; overwrite it with the reference's.
		volume.ConformGeometry(transformed, refVol)
		out[j] = transformed
	}
	return out, nil
}

// conformAll copies the reference geometry onto each same-shape volume of a
// series that could not be registered.
func conformAll(echoes []*models.Volume, ref *models.Volume) []*models.Volume {
	out := make([]*models.Volume, len(echoes))
	for i, echo := range echoes {
		v := echo.Clone()
		if v.SameShape(ref) {
			volume.ConformGeometry(v, ref)
		}
		out[i] = v
	}
	return out
}
