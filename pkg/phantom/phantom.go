// Package phantom writes synthetic DICOM files: a bright disk on a dark
// background, with noise taken from a simulated detector. It is used to
// produce fixtures for tests and demo series for the CLI.
package phantom

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"

	"ximed/internal/models"
)

const (
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
	secondaryCaptureSOP    = "1.2.840.10008.5.1.4.1.1.7"
)

// Patient holds the optional patient attributes. Empty fields are omitted.
type Patient struct {
	Name string
	ID   string
	Age  string
	Sex  string
}

// Options describe every slice written by WriteFile and WriteSeries.
type Options struct {
	Width  int
	Height int

	// BitsAllocated is 8 or 16.
	BitsAllocated int
	Signed        bool

	// Modality defaults to "CT"; set to "-" to omit the attribute.
	Modality string

	// SliceThickness and PixelSpacing are omitted when zero.
	SliceThickness float64
	PixelSpacing   [2]float64

	Rescale *models.Rescale
	Patient Patient

	// Extra string attributes, e.g. tag.StudyDate.
	Extra map[tag.Tag]string

	// TransferSyntaxUID defaults to explicit VR little endian.
	TransferSyntaxUID string

	// OmitPixelData writes a file whose attributes parse but that has no
	// pixel payload.
	OmitPixelData bool

	// Detector adds noise; nil writes a noiseless phantom.
	Detector *Detector
}

// Slice holds the per-file attributes. Nil pointers omit the attribute.
type Slice struct {
	InstanceNumber *int
	SliceLocation  *float64

	// Pixels overrides the generated phantom. Values are stored as given.
	Pixels []int
}

// Int returns a pointer to v, for Slice literals.
func Int(v int) *int { return &v }

// Float returns a pointer to v, for Slice literals.
func Float(v float64) *float64 { return &v }

func (o Options) withDefaults() Options {
	if o.Width == 0 {
		o.Width = 64
	}
	if o.Height == 0 {
		o.Height = 64
	}
	if o.BitsAllocated == 0 {
		o.BitsAllocated = 16
	}
	if o.Modality == "" {
		o.Modality = "CT"
	}
	if o.TransferSyntaxUID == "" {
		o.TransferSyntaxUID = explicitVRLittleEndian
	}
	return o
}

// Pixels generates the phantom samples for one slice: a disk whose radius
// grows with index, drawn at roughly 60% of the dtype range over a
// background at roughly 5%.
func Pixels(o Options, index int) []int {
	o = o.withDefaults()
	lo, hi := models.DType{Bits: o.BitsAllocated, Signed: o.Signed}.Range()
	span := float64(hi - lo)
	background := float64(lo) + 0.05*span
	foreground := float64(lo) + 0.6*span

	cx, cy := float64(o.Width)/2, float64(o.Height)/2
	radius := math.Min(cx, cy) * (0.3 + 0.05*float64(index%8))

	out := make([]int, o.Width*o.Height)
	for y := 0; y < o.Height; y++ {
		for x := 0; x < o.Width; x++ {
			v := background
			if math.Hypot(float64(x)-cx, float64(y)-cy) <= radius {
				v = foreground
			}
			if o.Detector != nil {
				// Readings hover around 100; use the deviation as noise.
				v += (o.Detector.Reading() - 100) * span / 2000
			}
			out[y*o.Width+x] = int(math.Max(float64(lo), math.Min(float64(hi), math.Round(v))))
		}
	}
	return out
}

// WriteFile writes a single slice to path.
func WriteFile(path string, o Options, s Slice) error {
	o = o.withDefaults()

	elements, err := metadataElements(o, s, filepath.Base(path))
	if err != nil {
		return err
	}

	if !o.OmitPixelData {
		pixels := s.Pixels
		if pixels == nil {
			pixels = Pixels(o, 0)
		}
		pixelElem, err := pixelDataElement(o, pixels)
		if err != nil {
			return err
		}
		elements = append(elements, pixelElem)
	}

	sort.Slice(elements, func(i, j int) bool {
		a, b := elements[i].Tag, elements[j].Tag
		if a.Group != b.Group {
			return a.Group < b.Group
		}
		return a.Element < b.Element
	})

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return f.Close()
}

// WriteSeries writes n slices named slice_001.dcm... with instance numbers
// 1..n and slice locations spaced by SliceThickness (or 1.0).
func WriteSeries(dir string, o Options, n int) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	step := o.SliceThickness
	if step == 0 {
		step = 1
	}

	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("slice_%03d.dcm", i+1))
		s := Slice{
			InstanceNumber: Int(i + 1),
			SliceLocation:  Float(float64(i) * step),
			Pixels:         Pixels(o, i),
		}
		if err := WriteFile(path, o, s); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func metadataElements(o Options, s Slice, name string) ([]*dicom.Element, error) {
	repr := 0
	if o.Signed {
		repr = 1
	}

	fields := []struct {
		t    tag.Tag
		data any
	}{
		{tag.TransferSyntaxUID, []string{o.TransferSyntaxUID}},
		{tag.SOPClassUID, []string{secondaryCaptureSOP}},
		{tag.SOPInstanceUID, []string{instanceUID(name)}},
		{tag.Rows, []int{o.Height}},
		{tag.Columns, []int{o.Width}},
		{tag.SamplesPerPixel, []int{1}},
		{tag.PhotometricInterpretation, []string{"MONOCHROME2"}},
		{tag.BitsAllocated, []int{o.BitsAllocated}},
		{tag.BitsStored, []int{o.BitsAllocated}},
		{tag.HighBit, []int{o.BitsAllocated - 1}},
		{tag.PixelRepresentation, []int{repr}},
	}

	add := func(t tag.Tag, data any) {
		fields = append(fields, struct {
			t    tag.Tag
			data any
		}{t, data})
	}
	if o.Modality != "-" {
		add(tag.Modality, []string{o.Modality})
	}
	if o.Patient.Name != "" {
		add(tag.PatientName, []string{o.Patient.Name})
	}
	if o.Patient.ID != "" {
		add(tag.PatientID, []string{o.Patient.ID})
	}
	if o.Patient.Age != "" {
		add(tag.PatientAge, []string{o.Patient.Age})
	}
	if o.Patient.Sex != "" {
		add(tag.PatientSex, []string{o.Patient.Sex})
	}
	if o.SliceThickness != 0 {
		add(tag.SliceThickness, []string{formatDS(o.SliceThickness)})
	}
	if o.PixelSpacing != [2]float64{} {
		add(tag.PixelSpacing, []string{formatDS(o.PixelSpacing[0]), formatDS(o.PixelSpacing[1])})
	}
	if o.Rescale != nil {
		add(tag.RescaleIntercept, []string{formatDS(o.Rescale.Intercept)})
		add(tag.RescaleSlope, []string{formatDS(o.Rescale.Slope)})
	}
	if s.InstanceNumber != nil {
		add(tag.InstanceNumber, []string{fmt.Sprintf("%d", *s.InstanceNumber)})
	}
	if s.SliceLocation != nil {
		add(tag.SliceLocation, []string{formatDS(*s.SliceLocation)})
	}
	for t, v := range o.Extra {
		add(t, []string{v})
	}

	elements := make([]*dicom.Element, 0, len(fields))
	for _, e := range fields {
		elem, err := dicom.NewElement(e.t, e.data)
		if err != nil {
			return nil, errors.Wrapf(err, "build element %v", e.t)
		}
		elements = append(elements, elem)
	}
	return elements, nil
}

func pixelDataElement(o Options, pixels []int) (*dicom.Element, error) {
	if len(pixels) != o.Width*o.Height {
		return nil, fmt.Errorf("got %d pixels for a %dx%d slice", len(pixels), o.Width, o.Height)
	}

	fr := &frame.Frame{Encapsulated: false}
	switch o.BitsAllocated {
	case 8:
		nf := frame.NewNativeFrame[uint8](8, o.Height, o.Width, len(pixels), 1)
		for i, p := range pixels {
			nf.RawData[i] = uint8(p)
		}
		fr.NativeData = nf
	case 16:
		nf := frame.NewNativeFrame[uint16](16, o.Height, o.Width, len(pixels), 1)
		for i, p := range pixels {
			// Signed samples keep their two's complement bit pattern.
			nf.RawData[i] = uint16(p)
		}
		fr.NativeData = nf
	default:
		return nil, fmt.Errorf("unsupported bits allocated %d", o.BitsAllocated)
	}

	info := dicom.PixelDataInfo{Frames: []*frame.Frame{fr}}
	return dicom.NewElement(tag.PixelData, info)
}

func formatDS(v float64) string {
	return fmt.Sprintf("%g", v)
}

// instanceUID derives a stable UID from the file name.
func instanceUID(name string) string {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return fmt.Sprintf("1.2.826.0.1.3680043.10.1.%d", h)
}
