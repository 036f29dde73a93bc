// Package dicomio decodes single DICOM files into records holding a typed
// pixel buffer and every parsed attribute.
//
// Parsing is delegated to github.com/suyashkumar/dicom. Compressed
// (encapsulated) pixel data is reported as UnsupportedTransferSyntax rather
// than decoded here.
package dicomio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"ximed/internal/log"
	"ximed/internal/models"
)

// Transfer syntaxes whose pixel data is stored natively.
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
)

var nativeTransferSyntaxes = map[string]bool{
	ImplicitVRLittleEndian:         true,
	ExplicitVRLittleEndian:         true,
	DeflatedExplicitVRLittleEndian: true,
	ExplicitVRBigEndian:            true,
}

// Decode reads one file. The file handle is released before returning on
// every path.
func Decode(path string) (*models.DicomRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newDecodeError(NotDicom, path, err)
	}
	defer f.Close()

	return DecodeReader(path, f)
}

// DecodeReader decodes everything readable from r. name is recorded as the
// record path.
func DecodeReader(name string, r io.Reader) (*models.DicomRecord, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, newDecodeError(NotDicom, name, errors.Wrap(err, "read file"))
	}
	return DecodeBytes(name, data)
}

// DecodeBytes decodes an in-memory DICOM file.
func DecodeBytes(name string, data []byte) (*models.DicomRecord, error) {
	ok, _, err := Sniff(bytes.NewReader(data))
	if err != nil {
		return nil, newDecodeError(NotDicom, name, errors.Wrap(err, "read header"))
	}
	if !ok {
		return nil, newDecodeError(NotDicom, name, errors.New("missing DICM preamble"))
	}

	ds, err := safelyParse(data)
	if err == nil {
		return recordFromDataset(name, ds)
	}

	// Tell a damaged header apart from a payload the parser cannot handle.
	if _, headerErr := safelyParse(data, dicom.SkipPixelData()); headerErr != nil {
		return nil, newDecodeError(NotDicom, name, errors.Wrap(err, "parse dataset"))
	}
	return nil, newDecodeError(UnsupportedTransferSyntax, name, errors.Wrap(err, "parse pixel data"))
}

// safelyParse recovers from panics inside the parser, which malformed
// files are able to trigger.
func safelyParse(data []byte, opts ...dicom.ParseOption) (ds dicom.Dataset, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	return dicom.Parse(bytes.NewReader(data), int64(len(data)), nil, opts...)
}

func recordFromDataset(name string, ds dicom.Dataset) (*models.DicomRecord, error) {
	tags := make(map[models.Tag]models.TagValue, len(ds.Elements))
	for _, elem := range ds.Elements {
		if elem == nil || elem.Tag == tag.PixelData {
			continue
		}
		if v, ok := tagValue(elem); ok {
			tags[models.Tag{Group: elem.Tag.Group, Element: elem.Tag.Element}] = v
		}
	}

	ts := ImplicitVRLittleEndian
	if v, ok := tags[models.TagTransferSyntaxUID]; ok && len(v.Strings) > 0 {
		ts = cleanUID(v.Strings[0])
	}
	if !nativeTransferSyntaxes[ts] {
		return nil, newDecodeError(UnsupportedTransferSyntax, name, fmt.Errorf("transfer syntax %s", ts))
	}

	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, newDecodeError(MissingPixelData, name, errors.New("no PixelData element"))
	}

	buffer, err := pixelBuffer(pixelElem, tags)
	if err != nil {
		var de *DecodeError
		if errors.As(err, &de) {
			de.Path = name
			return nil, de
		}
		return nil, newDecodeError(UnsupportedTransferSyntax, name, err)
	}

	log.Debugw("decoded dicom file",
		"path", name,
		"rows", buffer.Height,
		"columns", buffer.Width,
		"dtype", buffer.DType().String(),
	)

	return models.NewDicomRecord(name, buffer, tags), nil
}

// pixelBuffer builds the buffer from the first native frame. Shape and
// sample type come from the Rows/Columns/BitsAllocated/PixelRepresentation
// attributes and are checked against the decoded frame.
func pixelBuffer(elem *dicom.Element, tags map[models.Tag]models.TagValue) (*models.PixelBuffer, error) {
	var info dicom.PixelDataInfo
	switch v := elem.Value.GetValue().(type) {
	case dicom.PixelDataInfo:
		info = v
	case *dicom.PixelDataInfo:
		if v == nil {
			return nil, &DecodeError{Reason: MissingPixelData, Err: errors.New("empty pixel data")}
		}
		info = *v
	default:
		return nil, &DecodeError{Reason: MissingPixelData, Err: fmt.Errorf("unexpected pixel data value %T", v)}
	}

	if len(info.Frames) == 0 || info.Frames[0] == nil {
		return nil, &DecodeError{Reason: MissingPixelData, Err: errors.New("pixel data holds no frames")}
	}
	if len(info.Frames) > 1 {
		log.Debugf("pixel data holds %d frames, using the first", len(info.Frames))
	}

	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return nil, &DecodeError{Reason: UnsupportedTransferSyntax, Err: errors.New("encapsulated pixel data")}
	}

	rows, okRows := intTag(tags, models.TagRows)
	cols, okCols := intTag(tags, models.TagColumns)
	if !okRows || !okCols {
		return nil, &DecodeError{Reason: MissingPixelData, Err: errors.New("Rows/Columns attributes missing")}
	}

	native := fr.NativeData
	if native.Rows() != rows || native.Cols() != cols {
		return nil, &DecodeError{Reason: MissingPixelData, Err: fmt.Errorf(
			"frame is %dx%d, attributes declare %dx%d", native.Cols(), native.Rows(), cols, rows)}
	}

	bits, ok := intTag(tags, models.TagBitsAllocated)
	if !ok {
		bits = native.BitsPerSample()
	}
	repr, _ := intTag(tags, models.TagPixelRepresentation)
	signed := repr == 1

	spp := native.SamplesPerPixel()
	if spp < 1 {
		spp = 1
	}
	if spp > 1 {
		log.Warnf("pixel data has %d samples per pixel, keeping the first channel", spp)
	}

	raw, err := rawSamples(native.RawDataSlice())
	if err != nil {
		return nil, err
	}
	if len(raw) < rows*cols*spp {
		return nil, &DecodeError{Reason: MissingPixelData, Err: fmt.Errorf(
			"frame holds %d samples, want %d", len(raw), rows*cols*spp)}
	}

	data := make([]int, rows*cols)
	for i := range data {
		v := raw[i*spp]
		if signed {
			v = signExtend(v, bits)
		}
		data[i] = v
	}

	buffer, err := models.NewPixelBuffer(cols, rows, bits, signed, data)
	if err != nil {
		return nil, err
	}
	buffer.Rescale = rescaleFromTags(tags)
	return buffer, nil
}

func rawSamples(raw any) ([]int, error) {
	switch d := raw.(type) {
	case []uint8:
		return widen(d), nil
	case []uint16:
		return widen(d), nil
	case []uint32:
		return widen(d), nil
	case []int8:
		return widen(d), nil
	case []int16:
		return widen(d), nil
	case []int32:
		return widen(d), nil
	case []int:
		return append([]int(nil), d...), nil
	default:
		return nil, fmt.Errorf("unsupported native sample type %T", raw)
	}
}

func widen[T uint8 | uint16 | uint32 | int8 | int16 | int32](in []T) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func signExtend(v, bits int) int {
	switch bits {
	case 8:
		return int(int8(uint8(v)))
	case 16:
		return int(int16(uint16(v)))
	case 32:
		return int(int32(uint32(v)))
	}
	return v
}

// rescaleFromTags returns nil when neither attribute is present.
func rescaleFromTags(tags map[models.Tag]models.TagValue) *models.Rescale {
	slope, okSlope := floatTag(tags, models.TagRescaleSlope)
	intercept, okIntercept := floatTag(tags, models.TagRescaleIntercept)
	if !okSlope && !okIntercept {
		return nil
	}
	if !okSlope {
		slope = 1
	}
	return &models.Rescale{Slope: slope, Intercept: intercept}
}

func intTag(tags map[models.Tag]models.TagValue, t models.Tag) (int, bool) {
	v, ok := tags[t]
	if !ok {
		return 0, false
	}
	return v.Int()
}

func floatTag(tags map[models.Tag]models.TagValue, t models.Tag) (float64, bool) {
	v, ok := tags[t]
	if !ok {
		return 0, false
	}
	return v.Float()
}

// tagValue converts an element's value. Binary and sequence values are not
// kept.
func tagValue(elem *dicom.Element) (models.TagValue, bool) {
	if elem.Value == nil {
		return models.TagValue{}, false
	}
	switch v := elem.Value.GetValue().(type) {
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = strings.TrimRight(s, " \x00")
		}
		return models.TagValue{Strings: out}, true
	case []int:
		return models.TagValue{Ints: append([]int(nil), v...)}, true
	case []float64:
		return models.TagValue{Floats: append([]float64(nil), v...)}, true
	}
	return models.TagValue{}, false
}

func cleanUID(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), "\x00")
}
