// Package convert orchestrates one DICOM-to-NIfTI conversion call: plan
// lookup, metadata extraction, structure analysis, demultiplexing, spatial
// sorting, volume assembly, derived-quantity computation, optional
// cross-series registration, and artifact writing.
package convert

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/analysis"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/config"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/demux"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/dicomio"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/nifti"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/registration"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/seqplan"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/volume"
)

// Params configures one conversion call.
type Params struct {
	// InputDir contains the DICOM instances, or the series subfolders for
	// multi-series sequences.
	InputDir string

	// OutputDir receives the NIfTI volumes and metadata sidecars.
	OutputDir string

	// Sequence is the sequence-type tag resolved against the plan registry.
	Sequence string

	// SeriesNumbers names the series subfolders for multi-series sequences.
	SeriesNumbers []string

	// Coregister enables cross-series registration when the plan supports it.
	Coregister bool

	// Complex selects the complex-reconstruction variant of plans that have one.
	Complex bool

	// Invert reverses each echo's sorted slice order before assembly, for
	// hardware that writes slices in descending spatial order.
	Invert bool

	// NoSort disables spatial sorting, keeping the original file order.
	NoSort bool
}

// Result is the outcome of a successful conversion.
type Result struct {
	// Sequence is the plan tag that was applied.
	Sequence string

	// Set holds the assembled volumes.
	Set *models.VolumeSet

	// Artifacts lists every file written, in write order.
	Artifacts []string

	// Warnings collects the non-fatal findings of all stages.
	Warnings []string
}

// Extractor supplies per-instance metadata. Satisfied by pkg/dicomio.
type Extractor interface {
	ListInstances(dir string) ([]string, error)
	ExtractBatch(paths []string) ([]*models.InstanceRecord, []string)
}

// StackLoader reads the pixel buffers of an ordered stack.
type StackLoader interface {
	LoadStack(records []*models.InstanceRecord) (*models.Volume, error)
}

// Writer persists assembled volumes. Satisfied by pkg/nifti.
type Writer interface {
	WriteVolume(v *models.Volume, path string) error
	WriteVolume4D(v *models.Volume4D, path string) error
}

// Converter runs conversions against a fixed plan registry and collaborator
// set. It holds no per-conversion state, so independent calls may run
// concurrently as long as each uses its own output directory.
type Converter struct {
	cfg      *config.Config
	registry *seqplan.Registry

	extractor Extractor
	loader    StackLoader
	writer    Writer
	engine    registration.Engine
}

// NewConverter builds a converter with the production collaborators: DICOM
// metadata extraction, native pixel loading, NIfTI output and the elastix
// registration engine.
func NewConverter(cfg *config.Config) *Converter {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &Converter{
		cfg:       cfg,
		registry:  seqplan.NewRegistry(),
		extractor: dicomExtractor{},
		loader:    stackLoaderFunc(dicomio.LoadStack),
		writer:    niftiWriter{},
		engine: registration.NewElastixEngine(
			cfg.Registration.ElastixPath, cfg.Registration.TransformixPath),
	}
}

// Registry exposes the plan registry, e.g. for listing supported sequences.
func (c *Converter) Registry() *seqplan.Registry { return c.registry }

// Convert runs the full pipeline for one sequence. Fatal errors abort the
// call; recoverable ones are absorbed into Result.Warnings.
func (c *Converter) Convert(ctx context.Context, p Params) (*Result, error) {
	plan, err := c.registry.Lookup(p.Sequence)
	if err != nil {
		return nil, err
	}

	log.Info().Str("sequence", plan.Name).Str("input", p.InputDir).
		Str("output", p.OutputDir).Msg("Starting conversion")

	var res *Result
	if plan.MultiSeries {
		res, err = c.convertMultiSeries(ctx, plan, p)
	} else {
		res, err = c.convertSingle(plan, p)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("sequence", plan.Name).Int("artifacts", len(res.Artifacts)).
		Int("warnings", len(res.Warnings)).Msg("Conversion complete")
	return res, nil
}

// convertSingle handles single-directory sequences (MESE, DESS, MEGRE, IDEAL,
// general).
func (c *Converter) convertSingle(plan seqplan.Plan, p Params) (*Result, error) {
	stacks, set, warnings, err := c.assembleDirectory(plan, p, p.InputDir, nil)
	if err != nil {
		return nil, err
	}

	res := &Result{Sequence: plan.Name, Set: set, Warnings: warnings}
	if err := c.writeArtifacts(plan, p, stacks, res); err != nil {
		return nil, err
	}
	return res, nil
}

// componentStacks groups the assembled per-echo volumes by component label,
// echoes ascending.
type componentStacks struct {
	order  []string
	echoes map[string][]*models.Volume
	times  map[string][]float64
}

// assembleDirectory extracts, analyzes, demultiplexes and assembles one
// directory of instances. When ref is non-nil its geometry is inherited by
// every assembled volume.
func (c *Converter) assembleDirectory(plan seqplan.Plan, p Params, dir string, ref *models.Volume) (*componentStacks, *models.VolumeSet, []string, error) {
	paths, err := c.extractor.ListInstances(dir)
	if err != nil {
		return nil, nil, nil, err
	}
	if len(paths) == 0 {
		return nil, nil, nil, &analysis.InsufficientDataError{Got: 0}
	}

	records, warnings := c.extractor.ExtractBatch(paths)
	if len(records) == 0 {
		return nil, nil, nil, &analysis.InsufficientDataError{Got: 0}
	}

	components := plan.ComponentsFor(p.Complex)

	structure, err := analysis.Analyze(records, len(components))
	if err != nil {
		return nil, nil, nil, err
	}
	warnings = append(warnings, structure.Warnings...)

	// Sequence-specific expectations are enforced here, against the plan,
	// keeping the analyzer policy-free.
	if err := structure.CheckEchoes(plan.MinEchoes, plan.ExactEchoes); err != nil {
		return nil, nil, nil, err
	}

	log.Debug().Int("echoes", structure.EchoCount).
		Int("slicesPerEcho", structure.SlicesPerEcho).
		Int("components", structure.ComponentCount).
		Msg("Inferred acquisition structure")

	groups, err := demux.Split(records, plan, components, structure.EchoCount)
	if err != nil {
		return nil, nil, nil, err
	}

	stacks := &componentStacks{
		order:  components,
		echoes: map[string][]*models.Volume{},
		times:  map[string][]float64{},
	}

	for _, g := range groups {
		recs := g.Records
		if c.cfg.Conversion.SortByPosition && !p.NoSort {
			recs = dicomio.SortByPosition(recs)
		}
		if plan.InvertSlices || p.Invert {
			recs = dicomio.Reverse(recs)
		}

		vol, err := c.loader.LoadStack(recs)
		if err != nil {
			if plan.Layout == seqplan.EchoByTime {
				// The general plan tolerates a broken echo group.
				msg := fmt.Sprintf("skipping echo %.2f ms: %v", g.EchoTime, err)
				log.Warn().Msg(msg)
				warnings = append(warnings, msg)
				continue
			}
			return nil, nil, nil, err
		}
		warnings = append(warnings, volume.AttachGeometry(vol, recs,
			c.cfg.Conversion.DefaultSliceSpacing, ref)...)

		stacks.echoes[g.Component] = append(stacks.echoes[g.Component], vol)
		stacks.times[g.Component] = append(stacks.times[g.Component], g.EchoTime)
	}
	if len(stacks.echoes) == 0 {
		return nil, nil, nil, &analysis.InsufficientDataError{Got: 0}
	}

	set := &models.VolumeSet{
		Series:    map[string]*models.Volume4D{},
		EchoTimes: stacks.times[components[0]],
	}
	for _, label := range components {
		for e, v := range stacks.echoes[label] {
			set.Volumes = append(set.Volumes, v)
			set.Labels = append(set.Labels, fmt.Sprintf("%s echo %d", label, e+1))
		}
	}
	if len(set.Volumes) > 0 {
		set.Spacing = set.Volumes[0].Geom.Spacing
	}
	if records[0].ImagingFrequency != nil {
		set.CenterFrequency = *records[0].ImagingFrequency
	}

	if plan.Produce4D {
		for _, label := range components {
			if len(stacks.echoes[label]) < 2 {
				continue
			}
			v4, err := volume.Join4D(stacks.echoes[label], stacks.times[label])
			if err != nil {
				return nil, nil, nil, err
			}
			set.Series[label] = v4
		}
	}

	return stacks, set, warnings, nil
}

// sortVolumesByEchoTime orders parallel volume/time slices ascending by time.
func sortVolumesByEchoTime(vols []*models.Volume, times []float64) ([]*models.Volume, []float64) {
	idx := make([]int, len(vols))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]] < times[idx[b]] })

	outV := make([]*models.Volume, len(vols))
	outT := make([]float64, len(times))
	for i, j := range idx {
		outV[i] = vols[j]
		outT[i] = times[j]
	}
	return outV, outT
}

// nearestEchoIndex returns the index of the echo time closest to target.
func nearestEchoIndex(times []float64, target float64) int {
	best := 0
	for i, t := range times {
		if abs(t-target) < abs(times[best]-target) {
			best = i
		}
	}
	return best
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Production collaborator adapters.

type dicomExtractor struct{}

func (dicomExtractor) ListInstances(dir string) ([]string, error) {
	return dicomio.ListInstances(dir)
}

func (dicomExtractor) ExtractBatch(paths []string) ([]*models.InstanceRecord, []string) {
	return dicomio.ExtractBatch(paths)
}

type stackLoaderFunc func(records []*models.InstanceRecord) (*models.Volume, error)

func (f stackLoaderFunc) LoadStack(records []*models.InstanceRecord) (*models.Volume, error) {
	return f(records)
}

type niftiWriter struct{}

func (niftiWriter) WriteVolume(v *models.Volume, path string) error {
	return nifti.WriteVolume(v, path)
}

func (niftiWriter) WriteVolume4D(v *models.Volume4D, path string) error {
	return nifti.WriteVolume4D(v, path)
}

// seriesDir resolves one series subfolder of a multi-series input.
func seriesDir(inputDir, series string) string {
	return filepath.Join(inputDir, series)
}
