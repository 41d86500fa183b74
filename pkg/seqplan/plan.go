// Package seqplan holds the declarative policies that drive sequence-specific
// conversion. A plan states how a flat instance stream is interleaved and
// what the assembler and orchestrator must do with the groups; the rest of
// the pipeline is generic. Supporting a new sequence means adding a table
// row, not a type.
package seqplan

import (
	"fmt"
	"sort"
	"strings"
)

// EchoLayout names the interleave convention used to recover one echo's
// slices from a flat, file-ordered instance list.
type EchoLayout int

const (
	// EchoStrided: echo e is every echo_count-th instance starting at offset
	// e. Used by MESE, MEGRE and IDEAL, whose hardware nests the echo loop
	// innermost.
	EchoStrided EchoLayout = iota

	// EchoBlocked: each echo occupies a contiguous run of slices_per_echo
	// instances. Used by UTE.
	EchoBlocked

	// EchoSliceInterleaved: echoes alternate per spatial slice, so the whole
	// stack is spatially sorted first and then split by stride. Used by DESS.
	EchoSliceInterleaved

	// EchoByTime: instances are grouped by their echo-time value with no
	// positional assumption. Used by the general fallback plan.
	EchoByTime
)

// DerivedKind selects the derived quantity a plan produces after assembly.
type DerivedKind int

const (
	DerivedNone DerivedKind = iota

	// DerivedPorosity: ratio of the echo nearest a target TE over the first
	// echo, x100, clipped to [0,100].
	DerivedPorosity

	// DerivedSuppressionRatio: first-series over second-series first-echo
	// ratio, clipped to a configured range.
	DerivedSuppressionRatio

	// DerivedMagnitude: per-voxel sqrt(real^2+imag^2) recombined from the
	// real and imaginary component volumes.
	DerivedMagnitude
)

// Plan is an immutable sequence policy consumed by the demultiplexer,
// assembler and registration orchestrator.
type Plan struct {
	// Name is the registry tag, lower case.
	Name string

	// Components are the component labels in interleave order; their count is
	// the component stride. A magnitude-only plan holds {"magnitude"}.
	Components []string

	// ComplexComponents, when non-nil, replace Components if the caller
	// requests complex reconstruction.
	ComplexComponents []string

	// Layout is the echo interleave convention.
	Layout EchoLayout

	// InvertSlices reverses each echo's sorted slice order before assembly
	// (hardware that writes slices in descending spatial order).
	InvertSlices bool

	// MinEchoes / ExactEchoes constrain the inferred echo count. Zero means
	// unconstrained; ExactEchoes wins when both are set.
	MinEchoes   int
	ExactEchoes int

	// Produce4D controls whether a 4D composite is assembled per component.
	Produce4D bool

	// MultiSeries marks plans whose input is a set of series folders rather
	// than one flat directory.
	MultiSeries bool

	// Coregister marks multi-series plans that support cross-series rigid
	// registration onto a reference series.
	Coregister bool

	// Derived selects the quantity map computed from the assembled volumes.
	Derived DerivedKind

	// SpacingSidecar writes the corrected spacing to spacing_wo_gap.txt.
	SpacingSidecar bool

	// CenterFreqSidecar writes the imaging frequency to center_freq.txt.
	CenterFreqSidecar bool
}

// ComponentsFor returns the component labels for the requested mode. Plans
// without a complex variant ignore the flag.
func (p Plan) ComponentsFor(complexMode bool) []string {
	if complexMode && p.ComplexComponents != nil {
		return p.ComplexComponents
	}
	return p.Components
}

// SupportsComplex reports whether the plan has a complex-reconstruction variant.
func (p Plan) SupportsComplex() bool { return p.ComplexComponents != nil }

// UnsupportedSequenceError is raised on lookup of an unregistered tag. It
// enumerates the known tags so the caller can report them.
type UnsupportedSequenceError struct {
	Tag   string
	Known []string
}

func (e *UnsupportedSequenceError) Error() string {
	return fmt.Sprintf("unsupported sequence type %q, supported types: %s",
		e.Tag, strings.Join(e.Known, ", "))
}

// Registry maps sequence tags to plans. It is an explicit constructed object,
// not a process-wide singleton, so concurrent conversions stay isolated.
type Registry struct {
	plans map[string]Plan
}

// NewRegistry returns a registry preloaded with the built-in sequence plans.
func NewRegistry() *Registry {
	r := &Registry{plans: map[string]Plan{}}
	for _, p := range builtinPlans() {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a plan under its (lower-cased) name.
func (r *Registry) Register(p Plan) {
	p.Name = strings.ToLower(p.Name)
	r.plans[p.Name] = p
}

// Lookup resolves a sequence tag case-insensitively.
func (r *Registry) Lookup(tag string) (Plan, error) {
	p, ok := r.plans[strings.ToLower(tag)]
	if !ok {
		return Plan{}, &UnsupportedSequenceError{Tag: tag, Known: r.Names()}
	}
	return p, nil
}

// Names returns the registered tags, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.plans))
	for n := range r.plans {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// builtinPlans is the fixed table of supported GE sequence families.
func builtinPlans() []Plan {
	magnitude := []string{"magnitude"}

	return []Plan{
		{
			Name:           "mese",
			Components:     magnitude,
			Layout:         EchoStrided,
			MinEchoes:      2,
			Produce4D:      true,
			SpacingSidecar: true,
		},
		{
			Name:        "dess",
			Components:  magnitude,
			Layout:      EchoSliceInterleaved,
			ExactEchoes: 2,
		},
		{
			// Magnitude-only MEGRE behaves like MESE; CV=29 acquisitions
			// interleave magnitude/real/imaginary per slice-echo.
			Name:              "megre",
			Components:        magnitude,
			ComplexComponents: []string{"magnitude", "real", "imaginary"},
			Layout:            EchoStrided,
			MinEchoes:         2,
			Produce4D:         true,
			CenterFreqSidecar: true,
		},
		{
			Name:              "ideal",
			Components:        magnitude,
			ComplexComponents: []string{"real", "imaginary"},
			Layout:            EchoStrided,
			MinEchoes:         2,
			Produce4D:         true,
			Derived:           DerivedMagnitude,
			CenterFreqSidecar: true,
		},
		{
			Name:              "ute",
			Components:        magnitude,
			Layout:            EchoBlocked,
			Produce4D:         true,
			MultiSeries:       true,
			Coregister:        true,
			Derived:           DerivedPorosity,
			CenterFreqSidecar: true,
		},
		{
			Name:        "ute_sr",
			Components:  magnitude,
			Layout:      EchoBlocked,
			MultiSeries: true,
			Derived:     DerivedSuppressionRatio,
		},
		{
			Name:       "general",
			Components: magnitude,
			Layout:     EchoByTime,
			Produce4D:  true,
		},
	}
}
