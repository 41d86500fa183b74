package dicomio

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
)

// SortByPosition orders the records of one echo/component stack by their
// projected position along the slice normal, ascending. The sort is stable:
// records with identical projections keep their original relative order.
//
// If any record lacks orientation or position, the whole list falls back to
// its original order; a partially sorted stack would be ambiguous.
// The input is never mutated, only a permuted copy is returned.
func SortByPosition(records []*models.InstanceRecord) []*models.InstanceRecord {
	out := make([]*models.InstanceRecord, len(records))
	copy(out, records)

	depths := make([]float64, len(records))
	for i, rec := range records {
		d, ok := rec.SliceDepth()
		if !ok {
			log.Warn().Str("path", rec.Path).
				Msg("Missing orientation/position, keeping file order for the stack")
			return out
		}
		depths[i] = d
	}

	idx := make([]int, len(records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return depths[idx[a]] < depths[idx[b]]
	})

	for i, j := range idx {
		out[i] = records[j]
	}
	return out
}

// Reverse returns the records in reverse order without mutating the input.
// It is applied when a sequence policy declares that the hardware wrote
// slices in descending spatial order.
func Reverse(records []*models.InstanceRecord) []*models.InstanceRecord {
	out := make([]*models.InstanceRecord, len(records))
	for i, rec := range records {
		out[len(records)-1-i] = rec
	}
	return out
}
