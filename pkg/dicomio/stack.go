package dicomio

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
)

// LoadStack reads the pixel buffers of an ordered slice stack and returns the
// raw voxel grid in slice-ascending order. Geometry is not attached here; the
// assembler owns spacing correction and origin/direction decisions.
func LoadStack(records []*models.InstanceRecord) (*models.Volume, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("load stack: empty record list")
	}

	var vol *models.Volume
	for z, rec := range records {
		rows, cols, pixels, err := readPixels(rec.Path)
		if err != nil {
			return nil, err
		}

		if vol == nil {
			vol = models.NewVolume(cols, rows, len(records))
		} else if cols != vol.Width || rows != vol.Height {
			return nil, fmt.Errorf("load stack: slice %s is %dx%d, expected %dx%d",
				rec.Path, cols, rows, vol.Width, vol.Height)
		}

		copy(vol.Data[z*vol.Width*vol.Height:], pixels)
	}

	return vol, nil
}

// readPixels decodes the first frame of one instance into a row-major
// float slice.
func readPixels(path string) (rows, cols int, pixels []float64, err error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return 0, 0, nil, &UnreadableInstanceError{Path: path, Err: err}
	}

	el, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("no pixel data in %s: %w", path, err)
	}

	info := dicom.MustGetPixelDataInfo(el.Value)
	if len(info.Frames) == 0 {
		return 0, 0, nil, fmt.Errorf("no frames in %s", path)
	}

	native, err := info.Frames[0].GetNativeFrame()
	if err != nil {
		return 0, 0, nil, fmt.Errorf("decoding frame of %s: %w", path, err)
	}

	pixels, err = flattenFrame(native)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("reading pixels of %s: %w", path, err)
	}
	return native.Rows(), native.Cols(), pixels, nil
}

// flattenFrame converts a native frame into a row-major float slice, keeping
// only the first sample of each pixel. The raw data slice is flattened in row
// order with samples unrolled per pixel; the type depends on the stored bits
// per sample.
func flattenFrame(native frame.INativeFrame) ([]float64, error) {
	rows, cols := native.Rows(), native.Cols()
	spp := native.SamplesPerPixel()
	pixels := make([]float64, rows*cols)

	switch raw := native.RawDataSlice().(type) {
	case []uint8:
		for i := range pixels {
			pixels[i] = float64(raw[i*spp])
		}
	case []uint16:
		for i := range pixels {
			pixels[i] = float64(raw[i*spp])
		}
	case []uint32:
		for i := range pixels {
			pixels[i] = float64(raw[i*spp])
		}
	case []int:
		for i := range pixels {
			pixels[i] = float64(raw[i*spp])
		}
	default:
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				vals, err := native.GetPixel(x, y)
				if err != nil {
					return nil, err
				}
				pixels[y*cols+x] = float64(vals[0])
			}
		}
	}

	return pixels, nil
}
