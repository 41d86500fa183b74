// Package analysis infers the acquisition structure of a flat instance batch
// from metadata alone: how many echoes and components the batch holds and how
// many slices belong to each echo.
package analysis

import (
	"fmt"
	"sort"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
)

// InsufficientDataError reports an empty or too-small instance batch.
type InsufficientDataError struct {
	Got int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: batch holds %d instances", e.Got)
}

// StructureMismatchError reports an acquisition structure that violates a
// sequence policy's expectations. It is raised by Check, never by Analyze:
// the analyzer stays policy-free so it composes across sequences.
type StructureMismatchError struct {
	Reason string
}

func (e *StructureMismatchError) Error() string {
	return "structure mismatch: " + e.Reason
}

// Structure is the inferred acquisition structure of one batch. It is
// computed fresh per conversion and never mutated after creation.
type Structure struct {
	// EchoCount is the number of distinct echo times, at least 1.
	EchoCount int

	// SlicesPerEcho is the slice count of one echo of one component.
	SlicesPerEcho int

	// ComponentCount is 1 (magnitude), 2 (real/imag) or 3 (mag/real/imag);
	// it is dictated by the sequence policy, not inferred from tags.
	ComponentCount int

	// EchoTimes holds the unique echo times in ms, ascending.
	EchoTimes []float64

	// Warnings collects non-fatal consistency findings.
	Warnings []string
}

// Analyze infers the structure of a batch. componentCount comes from the
// sequence policy and defaults to 1 when zero. The only fatal condition is an
// empty batch; every other inconsistency degrades to a warning.
func Analyze(records []*models.InstanceRecord, componentCount int) (*Structure, error) {
	if len(records) == 0 {
		return nil, &InsufficientDataError{Got: 0}
	}
	if componentCount < 1 {
		componentCount = 1
	}

	s := &Structure{ComponentCount: componentCount}

	echoTimes := map[float64]bool{}
	instances := map[int]bool{}
	seriesNumbers := map[int]bool{}
	missingGeometry := 0

	for _, rec := range records {
		if rec.EchoTime != nil {
			echoTimes[*rec.EchoTime] = true
		}
		if rec.InstanceNumber != nil {
			instances[*rec.InstanceNumber] = true
		}
		if rec.SeriesNumber != nil {
			seriesNumbers[*rec.SeriesNumber] = true
		}
		if !rec.HasGeometry() {
			missingGeometry++
		}
	}

	s.EchoCount = len(echoTimes)
	if s.EchoCount == 0 {
		// No echo-time metadata anywhere: treat the batch as single-echo.
		s.EchoCount = 1
		s.Warnings = append(s.Warnings, "no echo time metadata found, assuming single echo")
	}
	for te := range echoTimes {
		s.EchoTimes = append(s.EchoTimes, te)
	}
	sort.Float64s(s.EchoTimes)

	uniqueInstances := len(instances)
	if uniqueInstances == 0 {
		uniqueInstances = len(records)
		s.Warnings = append(s.Warnings, "no instance numbers found, counting files instead")
	}

	div := s.EchoCount * componentCount
	s.SlicesPerEcho = uniqueInstances / div
	if uniqueInstances%div != 0 {
		s.Warnings = append(s.Warnings, fmt.Sprintf(
			"instance count %d is not divisible by %d echoes x %d components",
			uniqueInstances, s.EchoCount, componentCount))
	}

	if len(seriesNumbers) > 1 {
		s.Warnings = append(s.Warnings, fmt.Sprintf(
			"batch mixes %d series numbers", len(seriesNumbers)))
	}
	if missingGeometry > 0 {
		s.Warnings = append(s.Warnings, fmt.Sprintf(
			"%d instances lack orientation/position, spatial sorting degrades to file order",
			missingGeometry))
	}

	return s, nil
}

// CheckEchoes enforces a policy's echo-count expectations against the
// structure. exact takes precedence when non-zero; otherwise min applies.
func (s *Structure) CheckEchoes(min, exact int) error {
	if exact > 0 && s.EchoCount != exact {
		return &StructureMismatchError{Reason: fmt.Sprintf(
			"sequence requires exactly %d echoes, found %d", exact, s.EchoCount)}
	}
	if min > 0 && s.EchoCount < min {
		return &StructureMismatchError{Reason: fmt.Sprintf(
			"sequence requires at least %d echoes, found %d", min, s.EchoCount)}
	}
	return nil
}
