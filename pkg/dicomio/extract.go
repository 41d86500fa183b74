// Package dicomio wraps DICOM instance access for the converter: per-instance
// metadata extraction, spatial sorting, and pixel stack loading. Byte-level
// parsing is delegated to github.com/suyashkumar/dicom.
package dicomio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
)

// UnreadableInstanceError reports a DICOM file that could not be parsed.
// It is recoverable at batch level: the instance is dropped with a warning.
type UnreadableInstanceError struct {
	Path string
	Err  error
}

func (e *UnreadableInstanceError) Error() string {
	return fmt.Sprintf("unreadable instance %s: %v", e.Path, e.Err)
}

func (e *UnreadableInstanceError) Unwrap() error { return e.Err }

// Extract reads the metadata of a single instance. Absent tags yield nil
// fields on the record; only an unparseable file is an error.
func Extract(path string) (*models.InstanceRecord, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return nil, &UnreadableInstanceError{Path: path, Err: err}
	}

	rec := &models.InstanceRecord{Path: path}
	rec.EchoTime = floatTag(&ds, tag.EchoTime)
	rec.EchoNumber = intTag(&ds, tag.EchoNumbers)
	rec.InstanceNumber = intTag(&ds, tag.InstanceNumber)
	rec.AcquisitionNumber = intTag(&ds, tag.AcquisitionNumber)
	rec.SeriesNumber = intTag(&ds, tag.SeriesNumber)
	rec.SliceThickness = floatTag(&ds, tag.SliceThickness)
	rec.SpacingBetweenSlices = floatTag(&ds, tag.SpacingBetweenSlices)
	rec.ImagingFrequency = floatTag(&ds, tag.ImagingFrequency)

	if v := floatsTag(&ds, tag.ImageOrientationPatient); len(v) == 6 {
		var o [6]float64
		copy(o[:], v)
		rec.Orientation = &o
	}
	if v := floatsTag(&ds, tag.ImagePositionPatient); len(v) == 3 {
		var p [3]float64
		copy(p[:], v)
		rec.Position = &p
	}
	if v := floatsTag(&ds, tag.PixelSpacing); len(v) == 2 {
		var s [2]float64
		copy(s[:], v)
		rec.PixelSpacing = &s
	}
	if v := intTag(&ds, tag.Rows); v != nil {
		rec.Rows = *v
	}
	if v := intTag(&ds, tag.Columns); v != nil {
		rec.Columns = *v
	}

	return rec, nil
}

// ExtractBatch extracts metadata from every path, dropping unreadable
// instances. It returns the successfully extracted records in input order and
// one warning per dropped instance, so the recoverable/fatal distinction
// stays visible to the caller.
func ExtractBatch(paths []string) ([]*models.InstanceRecord, []string) {
	records := make([]*models.InstanceRecord, 0, len(paths))
	var warnings []string

	for _, p := range paths {
		rec, err := Extract(p)
		if err != nil {
			log.Warn().Str("path", p).Err(err).Msg("Dropping unreadable instance")
			warnings = append(warnings, err.Error())
			continue
		}
		records = append(records, rec)
	}

	return records, warnings
}

// ListInstances collects the DICOM files under dir. Files with .dcm or .IMA
// extensions are preferred; when none are found every regular file is taken,
// since scanner exports are often extensionless. The result is sorted by name
// so the file order is deterministic.
func ListInstances(dir string) ([]string, error) {
	var dicomFiles, allFiles []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		allFiles = append(allFiles, path)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".dcm", ".ima":
			dicomFiles = append(dicomFiles, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	files := dicomFiles
	if len(files) == 0 {
		files = allFiles
	}
	sort.Strings(files)
	return files, nil
}

// floatTag returns the first value of a numeric tag as a float, or nil when
// the tag is absent or unparseable.
func floatTag(ds *dicom.Dataset, t tag.Tag) *float64 {
	v := floatsTag(ds, t)
	if len(v) == 0 {
		return nil
	}
	return &v[0]
}

// intTag returns the first value of a numeric tag as an int, or nil.
func intTag(ds *dicom.Dataset, t tag.Tag) *int {
	v := floatsTag(ds, t)
	if len(v) == 0 {
		return nil
	}
	i := int(v[0])
	return &i
}

// floatsTag reads a tag's values as floats. DICOM decimal and integer strings
// arrive as []string, binary VRs as []int; both are handled.
func floatsTag(ds *dicom.Dataset, t tag.Tag) []float64 {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return nil
	}

	switch raw := el.Value.GetValue().(type) {
	case []string:
		out := make([]float64, 0, len(raw))
		for _, s := range raw {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil
			}
			out = append(out, f)
		}
		return out
	case []int:
		out := make([]float64, 0, len(raw))
		for _, n := range raw {
			out = append(out, float64(n))
		}
		return out
	case []float64:
		return raw
	default:
		return nil
	}
}
