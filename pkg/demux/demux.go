// Package demux splits a flat, file-ordered instance list into per-component,
// per-echo groups according to a sequence plan's interleave convention.
package demux

import (
	"fmt"
	"sort"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/dicomio"
	"github.com/barma7/dcm2nifti-converter-GE/pkg/seqplan"
)

// MismatchError reports stride arithmetic that does not partition the batch
// evenly. It is fatal: partial volumes are never silently produced.
type MismatchError struct {
	Instances  int
	Components int
	Echoes     int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("demux mismatch: %d instances cannot be split into %d components x %d echoes",
		e.Instances, e.Components, e.Echoes)
}

// Group is one echo of one component, still in acquisition order (except for
// slice-interleaved layouts, where records arrive spatially sorted by
// construction).
type Group struct {
	// Component labels the group, e.g. "magnitude" or "real".
	Component string

	// EchoIndex is the echo position within the component, 0-based.
	EchoIndex int

	// EchoTime is the group's echo time in ms (from the first record carrying
	// the tag; 0 when absent).
	EchoTime float64

	// Records are the group's instances.
	Records []*models.InstanceRecord
}

// Split applies a plan's two-level striding to the batch: component stride
// first, then echo stride within each component. Acquisition hardware nests
// echo loops inside component loops for every supported family, so the order
// of the two levels is fixed.
//
// echoCount comes from the structure analyzer. The groups are returned
// component-major, echoes ascending within each component.
func Split(records []*models.InstanceRecord, plan seqplan.Plan, components []string, echoCount int) ([]Group, error) {
	if plan.Layout == seqplan.EchoByTime {
		return splitByEchoTime(records, components[0]), nil
	}

	nc := len(components)
	if echoCount < 1 {
		echoCount = 1
	}
	if len(records)%(nc*echoCount) != 0 {
		return nil, &MismatchError{Instances: len(records), Components: nc, Echoes: echoCount}
	}

	source := records
	if plan.Layout == seqplan.EchoSliceInterleaved {
		// Echoes alternate per spatial slice: order the whole stack first so
		// the echo stride below separates them cleanly.
		source = dicomio.SortByPosition(records)
	}

	var groups []Group
	for c, label := range components {
		componentRecs := stride(source, c, nc)
		for e := 0; e < echoCount; e++ {
			var echoRecs []*models.InstanceRecord
			switch plan.Layout {
			case seqplan.EchoBlocked:
				per := len(componentRecs) / echoCount
				echoRecs = componentRecs[e*per : (e+1)*per]
			default:
				echoRecs = stride(componentRecs, e, echoCount)
			}
			groups = append(groups, Group{
				Component: label,
				EchoIndex: e,
				EchoTime:  firstEchoTime(echoRecs),
				Records:   echoRecs,
			})
		}
	}
	return groups, nil
}

// splitByEchoTime groups records by their echo-time value, echoes ascending.
// Records without an echo time fall into a 0 ms group.
func splitByEchoTime(records []*models.InstanceRecord, label string) []Group {
	byTime := map[float64][]*models.InstanceRecord{}
	for _, rec := range records {
		te := rec.EchoTimeOr(0)
		byTime[te] = append(byTime[te], rec)
	}

	times := make([]float64, 0, len(byTime))
	for te := range byTime {
		times = append(times, te)
	}
	sort.Float64s(times)

	groups := make([]Group, 0, len(times))
	for i, te := range times {
		groups = append(groups, Group{
			Component: label,
			EchoIndex: i,
			EchoTime:  te,
			Records:   byTime[te],
		})
	}
	return groups
}

// stride returns every n-th record starting at offset.
func stride(records []*models.InstanceRecord, offset, n int) []*models.InstanceRecord {
	var out []*models.InstanceRecord
	for i := offset; i < len(records); i += n {
		out = append(out, records[i])
	}
	return out
}

func firstEchoTime(records []*models.InstanceRecord) float64 {
	for _, rec := range records {
		if rec.EchoTime != nil {
			return *rec.EchoTime
		}
	}
	return 0
}
