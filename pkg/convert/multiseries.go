package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/derive"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/registration"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/seqplan"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/volume"
)

// Default series subfolders of a suppression-ratio acquisition, in
// numerator/denominator order.
var suppressionSeries = []string{"uTE", "IRuTE"}

// convertMultiSeries handles sequences whose echoes are split across series
// subfolders of the input directory.
func (c *Converter) convertMultiSeries(ctx context.Context, plan seqplan.Plan, p Params) (*Result, error) {
	if plan.Derived == seqplan.DerivedSuppressionRatio {
		return c.convertSuppressionRatio(plan, p)
	}
	return c.convertUte(ctx, plan, p)
}

// convertUte assembles every series, optionally co-registers them onto the
// central series, merges all echoes ascending by time into one composite and
// computes the porosity-index map.
func (c *Converter) convertUte(ctx context.Context, plan seqplan.Plan, p Params) (*Result, error) {
	if len(p.SeriesNumbers) == 0 {
		return nil, fmt.Errorf("sequence %q needs the series subfolder names", plan.Name)
	}

	// Composites are joined here across all series, not per series.
	perSeries := plan
	perSeries.Produce4D = false

	res := &Result{Sequence: plan.Name}
	seriesVols := make([][]*models.Volume, 0, len(p.SeriesNumbers))
	seriesTimes := make([][]float64, 0, len(p.SeriesNumbers))
	centerFreq := 0.0

	for _, series := range p.SeriesNumbers {
		stacks, set, warnings, err := c.assembleDirectory(perSeries, p, seriesDir(p.InputDir, series), nil)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", series, err)
		}
		res.Warnings = append(res.Warnings, warnings...)

		label := stacks.order[0]
		seriesVols = append(seriesVols, stacks.echoes[label])
		seriesTimes = append(seriesTimes, stacks.times[label])
		if centerFreq == 0 {
			centerFreq = set.CenterFrequency
		}
	}

	refIdx := registration.ReferenceIndex(len(seriesVols))
	if p.Coregister && plan.Coregister {
		orch := registration.NewOrchestrator(c.engine, c.cfg.Registration.Rigid,
			c.cfg.Registration.WorkDir)
		var warnings []string
		seriesVols, refIdx, warnings = orch.AlignSeries(ctx, seriesVols)
		res.Warnings = append(res.Warnings, warnings...)
	} else {
		// Unregistered series still share one geometry, so the composite's
		// affine is well defined.
		ref := seriesVols[refIdx][0]
		for i, echoes := range seriesVols {
			if i == refIdx {
				continue
			}
			for _, echo := range echoes {
				if echo.SameShape(ref) {
					volume.ConformGeometry(echo, ref)
				}
			}
		}
	}

	var vols []*models.Volume
	var times []float64
	for i, echoes := range seriesVols {
		vols = append(vols, echoes...)
		times = append(times, seriesTimes[i]...)
	}
	vols, times = sortVolumesByEchoTime(vols, times)

	v4, err := volume.Join4D(vols, times)
	if err != nil {
		return nil, err
	}

	res.Set = &models.VolumeSet{
		Volumes:         vols,
		Series:          map[string]*models.Volume4D{"magnitude": v4},
		EchoTimes:       times,
		Spacing:         vols[0].Geom.Spacing,
		CenterFrequency: centerFreq,
	}
	for e := range vols {
		res.Set.Labels = append(res.Set.Labels, fmt.Sprintf("magnitude echo %d", e+1))
	}

	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(p.OutputDir, "4d_array.nii.gz")
	if err := c.writer.WriteVolume4D(v4, path); err != nil {
		return nil, err
	}
	res.Artifacts = append(res.Artifacts, path)

	if plan.Derived == seqplan.DerivedPorosity {
		if err := c.writePorosity(p, vols, times, res); err != nil {
			return nil, err
		}
	}

	return res, c.writeSidecars(plan, p, res)
}

// writePorosity divides the echo nearest the configured target time by the
// shortest echo and writes the clipped percentage map.
func (c *Converter) writePorosity(p Params, vols []*models.Volume, times []float64, res *Result) error {
	numIdx := nearestEchoIndex(times, c.cfg.Conversion.PorosityEchoTime)
	if numIdx == 0 {
		msg := "no echo beyond the shortest available, skipping porosity index"
		log.Warn().Msg(msg)
		res.Warnings = append(res.Warnings, msg)
		return nil
	}

	log.Debug().Float64("numeratorTE", times[numIdx]).Float64("denominatorTE", times[0]).
		Msg("Computing porosity index")

	pi, err := derive.PorosityIndex(vols[numIdx], vols[0])
	if err != nil {
		return err
	}
	path := filepath.Join(p.OutputDir, "PI.nii.gz")
	if err := c.writer.WriteVolume(pi, path); err != nil {
		return err
	}
	res.Artifacts = append(res.Artifacts, path)
	return nil
}

// convertSuppressionRatio assembles the unsuppressed and the
// inversion-recovery-suppressed series and writes their first-echo ratio map.
func (c *Converter) convertSuppressionRatio(plan seqplan.Plan, p Params) (*Result, error) {
	series := p.SeriesNumbers
	if len(series) == 0 {
		series = suppressionSeries
	}
	if len(series) != 2 {
		return nil, fmt.Errorf("sequence %q needs exactly two series (numerator, denominator), got %d",
			plan.Name, len(series))
	}

	res := &Result{Sequence: plan.Name}
	firstEchoes := make([]*models.Volume, 2)
	var times []float64

	for i, s := range series {
		stacks, _, warnings, err := c.assembleDirectory(plan, p, seriesDir(p.InputDir, s), nil)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s, err)
		}
		res.Warnings = append(res.Warnings, warnings...)

		label := stacks.order[0]
		firstEchoes[i] = stacks.echoes[label][0]
		if i == 0 {
			times = stacks.times[label]
		}
	}

	sr, err := derive.Ratio(firstEchoes[0], firstEchoes[1], 0, c.cfg.Conversion.SuppressionClipMax)
	if err != nil {
		return nil, err
	}

	res.Set = &models.VolumeSet{
		Volumes:   []*models.Volume{sr},
		Labels:    []string{"suppression ratio"},
		Series:    map[string]*models.Volume4D{},
		EchoTimes: times,
		Spacing:   sr.Geom.Spacing,
	}

	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(p.OutputDir, "SR_index.nii.gz")
	if err := c.writer.WriteVolume(sr, path); err != nil {
		return nil, err
	}
	res.Artifacts = append(res.Artifacts, path)

	return res, c.writeSidecars(plan, p, res)
}
