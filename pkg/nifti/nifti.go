// Package nifti reads and writes NIfTI-1 volumes. Only the subset the
// converter produces is covered: single-file .nii / .nii.gz images with an
// sform affine, stored as float32.
//
// Header layout follows the official nifti1.h definition.
package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/barma7/dcm2nifti-converter-GE/internal/models"
)

const (
	headerSize = 348
	voxOffset  = 352

	dtFloat32 = 16
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat64 = 64

	unitsMM   = 2
	unitsMsec = 16

	xformScannerAnat = 1
)

// header is the fixed 348-byte NIfTI-1 header.
type header struct {
	SizeofHdr    int32
	DataType     [10]byte
	DBName       [18]byte
	Extents      int32
	SessionError int16
	Regular      byte
	DimInfo      byte

	Dim        [8]int16
	IntentP1   float32
	IntentP2   float32
	IntentP3   float32
	IntentCode int16
	Datatype   int16
	Bitpix     int16
	SliceStart int16
	Pixdim     [8]float32
	VoxOffset  float32
	SclSlope   float32
	SclInter   float32
	SliceEnd   int16
	SliceCode  byte
	XyztUnits  byte
	CalMax     float32
	CalMin     float32
	SliceDur   float32
	Toffset    float32
	Glmax      int32
	Glmin      int32

	Descrip [80]byte
	AuxFile [24]byte

	QformCode int16
	SformCode int16
	QuaternB  float32
	QuaternC  float32
	QuaternD  float32
	QoffsetX  float32
	QoffsetY  float32
	QoffsetZ  float32
	SrowX     [4]float32
	SrowY     [4]float32
	SrowZ     [4]float32

	IntentName [16]byte
	Magic      [4]byte
}

// WriteVolume saves a 3D volume. A .gz suffix selects gzip compression.
func WriteVolume(v *models.Volume, path string) error {
	hdr := baseHeader(v.Geom)
	hdr.Dim = [8]int16{3, int16(v.Width), int16(v.Height), int16(v.Depth), 1, 1, 1, 1}
	hdr.Pixdim = [8]float32{1,
		float32(v.Geom.Spacing[0]), float32(v.Geom.Spacing[1]), float32(v.Geom.Spacing[2]),
		1, 1, 1, 1}
	hdr.XyztUnits = unitsMM
	return writeFile(path, hdr, v.Data)
}

// WriteVolume4D saves a 4D composite. The direction matrix is extended to
// 4x4 when deriving the affine, so the echo axis stays non-spatial.
func WriteVolume4D(v *models.Volume4D, path string) error {
	hdr := baseHeader(v.Geom)
	hdr.Dim = [8]int16{4, int16(v.Width), int16(v.Height), int16(v.Depth), int16(v.Frames), 1, 1, 1}

	dt := float32(1)
	if len(v.EchoTimes) > 1 {
		dt = float32(v.EchoTimes[1] - v.EchoTimes[0])
	}
	hdr.Pixdim = [8]float32{1,
		float32(v.Geom.Spacing[0]), float32(v.Geom.Spacing[1]), float32(v.Geom.Spacing[2]),
		dt, 1, 1, 1}
	hdr.XyztUnits = unitsMM | unitsMsec

	// The affine comes from the spatial block of the extended matrix; its
	// last row and column belong to the non-spatial echo axis.
	d4 := v.Direction4
	for col := 0; col < 3; col++ {
		sp := float32(v.Geom.Spacing[col])
		hdr.SrowX[col] = -float32(d4[0*4+col]) * sp
		hdr.SrowY[col] = -float32(d4[1*4+col]) * sp
		hdr.SrowZ[col] = float32(d4[2*4+col]) * sp
	}

	return writeFile(path, hdr, v.Data)
}

// baseHeader fills the fields shared by 3D and 4D writes, including the
// DICOM-LPS to NIfTI-RAS flip of the first two affine rows.
func baseHeader(g models.Geometry) header {
	hdr := header{
		SizeofHdr: headerSize,
		Datatype:  dtFloat32,
		Bitpix:    32,
		VoxOffset: voxOffset,
		SclSlope:  1,
		SformCode: xformScannerAnat,
		Magic:     [4]byte{'n', '+', '1', 0},
	}
	copy(hdr.Descrip[:], "dcm2nifti-converter-GE")

	d := g.Direction
	for col := 0; col < 3; col++ {
		sp := float32(g.Spacing[col])
		hdr.SrowX[col] = -float32(d[0+col]) * sp
		hdr.SrowY[col] = -float32(d[3+col]) * sp
		hdr.SrowZ[col] = float32(d[6+col]) * sp
	}
	hdr.SrowX[3] = -float32(g.Origin[0])
	hdr.SrowY[3] = -float32(g.Origin[1])
	hdr.SrowZ[3] = float32(g.Origin[2])

	return hdr
}

func writeFile(path string, hdr header, data []float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if err := binary.Write(w, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	// Pad the header out to the voxel offset.
	if _, err := w.Write(make([]byte, voxOffset-headerSize)); err != nil {
		return err
	}

	buf := make([]float32, len(data))
	for i, v := range data {
		buf[i] = float32(v)
	}
	if err := binary.Write(w, binary.LittleEndian, buf); err != nil {
		return fmt.Errorf("writing voxels: %w", err)
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			return err
		}
	}
	return f.Close()
}

// ReadVolume loads a 3D NIfTI-1 file, as produced by this package or by the
// external registration engine's resampler.
func ReadVolume(path string) (*models.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening gzip stream of %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	var hdr header
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if hdr.SizeofHdr != headerSize {
		return nil, fmt.Errorf("%s: not a NIfTI-1 file (sizeof_hdr=%d)", path, hdr.SizeofHdr)
	}
	if hdr.Dim[0] < 3 {
		return nil, fmt.Errorf("%s: expected a 3D image, dim[0]=%d", path, hdr.Dim[0])
	}

	// Skip from the end of the header to the voxel data.
	if skip := int64(hdr.VoxOffset) - headerSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, r, skip); err != nil {
			return nil, err
		}
	}

	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	vol := models.NewVolume(nx, ny, nz)
	if err := readVoxels(r, hdr.Datatype, vol.Data); err != nil {
		return nil, fmt.Errorf("reading voxels of %s: %w", path, err)
	}

	slope := float64(hdr.SclSlope)
	if slope == 0 {
		slope = 1
	}
	for i := range vol.Data {
		vol.Data[i] = vol.Data[i]*slope + float64(hdr.SclInter)
	}

	vol.Geom = geometryFromHeader(hdr)
	return vol, nil
}

func readVoxels(r io.Reader, datatype int16, out []float64) error {
	switch datatype {
	case dtFloat32:
		buf := make([]float32, len(out))
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case dtFloat64:
		return binary.Read(r, binary.LittleEndian, out)
	case dtInt16:
		buf := make([]int16, len(out))
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case dtInt32:
		buf := make([]int32, len(out))
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case dtUint8:
		buf := make([]uint8, len(out))
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return err
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	default:
		return fmt.Errorf("unsupported datatype %d", datatype)
	}
	return nil
}

// geometryFromHeader rebuilds LPS geometry from the sform rows, undoing the
// RAS flip applied at write time.
func geometryFromHeader(hdr header) models.Geometry {
	g := models.Geometry{
		Spacing: [3]float64{
			float64(hdr.Pixdim[1]), float64(hdr.Pixdim[2]), float64(hdr.Pixdim[3]),
		},
		Direction: models.IdentityDirection(),
	}
	if hdr.SformCode == 0 {
		return g
	}

	rows := [3][4]float32{hdr.SrowX, hdr.SrowY, hdr.SrowZ}
	sign := [3]float64{-1, -1, 1}
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			sp := g.Spacing[col]
			if sp == 0 {
				sp = 1
			}
			g.Direction[row*3+col] = sign[row] * float64(rows[row][col]) / sp
		}
		g.Origin[row] = sign[row] * float64(rows[row][3])
	}
	return g
}
