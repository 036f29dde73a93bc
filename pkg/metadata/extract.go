// Package metadata maps the raw attributes of decoded records to a fixed
// set of human-readable keys. A missing attribute is never an error: its
// key holds Unknown. A present attribute is reported even when blank.
package metadata

import (
	"fmt"
	"strings"

	"ximed/internal/log"
	"ximed/internal/models"
	"ximed/pkg/dicomio"
	"ximed/pkg/series"
)

// Keys produced for every record.
const (
	KeyPatientName      = "Patient Name"
	KeyPatientID        = "Patient ID"
	KeyPatientAge       = "Patient Age"
	KeyPatientSex       = "Patient Sex"
	KeyStudyDate        = "Study Date"
	KeyStudyTime        = "Study Time"
	KeyModality         = "Modality"
	KeyStudyDescription = "Study Description"
	KeyInstitution      = "Institution"
	KeyManufacturer     = "Manufacturer"
	KeyRows             = "Rows"
	KeyColumns          = "Columns"
	KeyPixelSpacing     = "Pixel Spacing"
	KeyBitsAllocated    = "Bits Allocated"
	KeyBitsStored       = "Bits Stored"
	KeyHighBit          = "High Bit"
	KeyRescaleIntercept = "Rescale Intercept"
	KeyRescaleSlope     = "Rescale Slope"
)

// Keys added per slice by ExtractSeries.
const (
	KeyFileName       = "File Name"
	KeyInstanceNumber = "Instance Number"
	KeySliceLocation  = "Slice Location"
	KeySliceThickness = "Slice Thickness"
)

type kind int

const (
	asString kind = iota
	asInt
	asFloat
)

type field struct {
	key  string
	tag  models.Tag
	kind kind
}

var fileFields = []field{
	{KeyPatientName, models.TagPatientName, asString},
	{KeyPatientID, models.TagPatientID, asString},
	{KeyPatientAge, models.TagPatientAge, asString},
	{KeyPatientSex, models.TagPatientSex, asString},
	{KeyStudyDate, models.TagStudyDate, asString},
	{KeyStudyTime, models.TagStudyTime, asString},
	{KeyModality, models.TagModality, asString},
	{KeyStudyDescription, models.TagStudyDescription, asString},
	{KeyInstitution, models.TagInstitutionName, asString},
	{KeyManufacturer, models.TagManufacturer, asString},
	{KeyRows, models.TagRows, asInt},
	{KeyColumns, models.TagColumns, asInt},
	{KeyPixelSpacing, models.TagPixelSpacing, asString},
	{KeyBitsAllocated, models.TagBitsAllocated, asInt},
	{KeyBitsStored, models.TagBitsStored, asInt},
	{KeyHighBit, models.TagHighBit, asInt},
	{KeyRescaleIntercept, models.TagRescaleIntercept, asFloat},
	{KeyRescaleSlope, models.TagRescaleSlope, asFloat},
}

var seriesFields = []field{
	{KeyInstanceNumber, models.TagInstanceNumber, asInt},
	{KeySliceLocation, models.TagSliceLocation, asFloat},
	{KeySliceThickness, models.TagSliceThickness, asFloat},
}

// FileKeys lists the keys of Extract in output order.
func FileKeys() []string {
	return keysOf(fileFields)
}

// SeriesKeys lists the keys of each ExtractSeries entry in output order.
func SeriesKeys() []string {
	return append(append([]string{KeyFileName}, keysOf(seriesFields)...), FileKeys()...)
}

func keysOf(fields []field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.key
	}
	return out
}

// Extract builds the file-level record.
func Extract(rec *models.DicomRecord) Record {
	out := make(Record, 0, len(fileFields))
	for _, f := range fileFields {
		out = append(out, Field{Key: f.key, Value: lookup(rec, f)})
	}
	return out
}

// ExtractSeries returns one record per slice in index order. Each entry is
// built independently of its neighbours.
func ExtractSeries(index *models.SeriesIndex) []Record {
	if index == nil {
		return nil
	}
	out := make([]Record, 0, len(index.Records))
	for _, rec := range index.Records {
		r := make(Record, 0, 1+len(seriesFields)+len(fileFields))
		r = append(r, Field{Key: KeyFileName, Value: StringValue(rec.FileName())})
		for _, f := range seriesFields {
			r = append(r, Field{Key: f.key, Value: lookup(rec, f)})
		}
		out = append(out, append(r, Extract(rec)...))
	}
	return out
}

// ExtractFile decodes path and extracts its record.
func ExtractFile(path string) (Record, error) {
	rec, err := dicomio.Decode(path)
	if err != nil {
		return nil, err
	}
	return Extract(rec), nil
}

// ExtractDir loads the series in dir and extracts every slice.
func ExtractDir(dir string) ([]Record, *models.SeriesIndex, error) {
	index, err := series.Load(dir)
	if err != nil {
		return nil, nil, err
	}
	return ExtractSeries(index), index, nil
}

// lookup resolves one key. Only an absent attribute yields Unknown; a present
// value that does not parse as the key's type is kept as text. A panic while
// reading one attribute affects only that key.
func lookup(rec *models.DicomRecord, f field) (v Value) {
	defer func() {
		if r := recover(); r != nil {
			log.Warnw("metadata lookup panicked", "key", f.key, "panic", fmt.Sprint(r))
			v = Unknown
		}
	}()

	if rec == nil {
		return Unknown
	}
	raw, present := rec.Raw(f.tag)
	if !present {
		return Unknown
	}
	switch f.kind {
	case asInt:
		if i, ok := rec.Int(f.tag); ok {
			return IntValue(i)
		}
	case asFloat:
		if x, ok := rec.Float(f.tag); ok {
			return FloatValue(x)
		}
	default:
		if s, ok := rec.String(f.tag); ok {
			return StringValue(s)
		}
	}
	text := strings.TrimSpace(raw.String())
	if f.kind != asString && text != "" {
		log.Debugw("non-numeric attribute kept as text", "key", f.key, "tag", f.tag.String())
	}
	return StringValue(text)
}
