package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/barma7/dcm2nifti-converter-GE/pkg/derive"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/seqplan"
)

// Component labels map to short file-name suffixes for complex outputs.
var componentSuffix = map[string]string{
	"magnitude": "mag",
	"real":      "real",
	"imaginary": "imag",
}

// writeArtifacts persists the outputs of a single-directory conversion:
// the NIfTI volumes named by the plan's conventions plus the metadata
// sidecars. Every written path is appended to res.Artifacts.
func (c *Converter) writeArtifacts(plan seqplan.Plan, p Params, stacks *componentStacks, res *Result) error {
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	switch {
	case plan.Layout == seqplan.EchoByTime:
		if err := c.writeByTime(p, stacks, res); err != nil {
			return err
		}
	case !plan.Produce4D:
		// Per-echo volumes only (DESS).
		for e, vol := range stacks.echoes[stacks.order[0]] {
			path := filepath.Join(p.OutputDir, fmt.Sprintf("echo_%d.nii.gz", e+1))
			if err := c.writer.WriteVolume(vol, path); err != nil {
				return err
			}
			res.Artifacts = append(res.Artifacts, path)
		}
	case len(stacks.order) > 1:
		if err := c.writeComplex(plan, p, stacks, res); err != nil {
			return err
		}
	default:
		v4, ok := res.Set.Series[stacks.order[0]]
		if !ok {
			return fmt.Errorf("no composite assembled for component %q", stacks.order[0])
		}
		path := filepath.Join(p.OutputDir, "4d_array.nii.gz")
		if err := c.writer.WriteVolume4D(v4, path); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, path)
	}

	return c.writeSidecars(plan, p, res)
}

// writeComplex writes one composite per component, suffixed _mag/_real/_imag.
// When the plan recombines magnitude from real and imaginary parts, the
// derived composite is computed in memory and written alongside.
func (c *Converter) writeComplex(plan seqplan.Plan, p Params, stacks *componentStacks, res *Result) error {
	for _, label := range stacks.order {
		v4, ok := res.Set.Series[label]
		if !ok {
			return fmt.Errorf("no composite assembled for component %q", label)
		}
		path := filepath.Join(p.OutputDir,
			fmt.Sprintf("4d_array_%s.nii.gz", componentSuffix[label]))
		if err := c.writer.WriteVolume4D(v4, path); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, path)
	}

	if plan.Derived == seqplan.DerivedMagnitude {
		re, reOK := res.Set.Series["real"]
		im, imOK := res.Set.Series["imaginary"]
		if _, haveMag := res.Set.Series["magnitude"]; !haveMag && reOK && imOK {
			mag, err := derive.Magnitude4D(re, im)
			if err != nil {
				return err
			}
			path := filepath.Join(p.OutputDir, "4d_array_mag.nii.gz")
			if err := c.writer.WriteVolume4D(mag, path); err != nil {
				return err
			}
			res.Artifacts = append(res.Artifacts, path)
		}
	}
	return nil
}

// writeByTime writes each echo individually with its echo time in the file
// name, plus the joined composite when more than one echo survived loading.
func (c *Converter) writeByTime(p Params, stacks *componentStacks, res *Result) error {
	label := stacks.order[0]
	for e, vol := range stacks.echoes[label] {
		path := filepath.Join(p.OutputDir,
			fmt.Sprintf("echo_%02d_TE_%.2fms.nii.gz", e+1, stacks.times[label][e]))
		if err := c.writer.WriteVolume(vol, path); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, path)
	}

	if v4, ok := res.Set.Series[label]; ok {
		path := filepath.Join(p.OutputDir, "4d_multiecho.nii.gz")
		if err := c.writer.WriteVolume4D(v4, path); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, path)
	}
	return nil
}

// writeSidecars writes the plain-text metadata files: echo times always, the
// corrected through-plane spacing and the center frequency when the plan
// asks for them.
func (c *Converter) writeSidecars(plan seqplan.Plan, p Params, res *Result) error {
	if len(res.Set.EchoTimes) > 0 {
		path := filepath.Join(p.OutputDir, "echo_times.txt")
		if err := writeValues(path, res.Set.EchoTimes); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, path)
	}

	if plan.SpacingSidecar {
		path := filepath.Join(p.OutputDir, "spacing_wo_gap.txt")
		if err := writeValues(path, []float64{res.Set.Spacing[2]}); err != nil {
			return err
		}
		res.Artifacts = append(res.Artifacts, path)
	}

	if plan.CenterFreqSidecar {
		if res.Set.CenterFrequency == 0 {
			log.Warn().Msg("Imaging frequency missing, skipping center_freq.txt")
			res.Warnings = append(res.Warnings,
				"imaging frequency missing, center_freq.txt not written")
		} else {
			path := filepath.Join(p.OutputDir, "center_freq.txt")
			if err := writeValues(path, []float64{res.Set.CenterFrequency}); err != nil {
				return err
			}
			res.Artifacts = append(res.Artifacts, path)
		}
	}
	return nil
}

// writeValues writes one value per line in plain text.
func writeValues(path string, values []float64) error {
	var b strings.Builder
	for _, v := range values {
		fmt.Fprintf(&b, "%.6f\n", v)
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}
