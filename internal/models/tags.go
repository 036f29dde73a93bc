package models

import (
	"strconv"
	"strings"
)

// Tag identifies a DICOM attribute by group and element.
type Tag struct {
	Group   uint16
	Element uint16
}

func (t Tag) String() string {
	return "(" + hex4(t.Group) + "," + hex4(t.Element) + ")"
}

func hex4(v uint16) string {
	s := strconv.FormatUint(uint64(v), 16)
	return strings.Repeat("0", 4-len(s)) + s
}

// Attributes the pipeline reads directly.
var (
	TagPatientName         = Tag{0x0010, 0x0010}
	TagPatientID           = Tag{0x0010, 0x0020}
	TagPatientAge          = Tag{0x0010, 0x1010}
	TagPatientSex          = Tag{0x0010, 0x0040}
	TagStudyDate           = Tag{0x0008, 0x0020}
	TagStudyTime           = Tag{0x0008, 0x0030}
	TagModality            = Tag{0x0008, 0x0060}
	TagStudyDescription    = Tag{0x0008, 0x1030}
	TagInstitutionName     = Tag{0x0008, 0x0080}
	TagManufacturer        = Tag{0x0008, 0x0070}
	TagTransferSyntaxUID   = Tag{0x0002, 0x0010}
	TagSliceThickness      = Tag{0x0018, 0x0050}
	TagInstanceNumber      = Tag{0x0020, 0x0013}
	TagSliceLocation       = Tag{0x0020, 0x1041}
	TagSamplesPerPixel     = Tag{0x0028, 0x0002}
	TagRows                = Tag{0x0028, 0x0010}
	TagColumns             = Tag{0x0028, 0x0011}
	TagPixelSpacing        = Tag{0x0028, 0x0030}
	TagBitsAllocated       = Tag{0x0028, 0x0100}
	TagBitsStored          = Tag{0x0028, 0x0101}
	TagHighBit             = Tag{0x0028, 0x0102}
	TagPixelRepresentation = Tag{0x0028, 0x0103}
	TagRescaleIntercept    = Tag{0x0028, 0x1052}
	TagRescaleSlope        = Tag{0x0028, 0x1053}
	TagPixelData           = Tag{0x7fe0, 0x0010}
)

// TagValue holds the decoded values of one element. Exactly one of the
// slices is populated, depending on the element's VR.
type TagValue struct {
	Strings []string
	Ints    []int
	Floats  []float64
}

// Len returns the value multiplicity.
func (v TagValue) Len() int {
	return len(v.Strings) + len(v.Ints) + len(v.Floats)
}

// String renders all values joined with the DICOM multi-value separator.
func (v TagValue) String() string {
	parts := make([]string, 0, v.Len())
	for _, s := range v.Strings {
		parts = append(parts, strings.TrimSpace(s))
	}
	for _, i := range v.Ints {
		parts = append(parts, strconv.Itoa(i))
	}
	for _, f := range v.Floats {
		parts = append(parts, strconv.FormatFloat(f, 'g', -1, 64))
	}
	return strings.Join(parts, `\`)
}

// Int returns the first value as an integer. IS strings are parsed; a
// decimal string is accepted only when it holds an integral value.
func (v TagValue) Int() (int, bool) {
	switch {
	case len(v.Ints) > 0:
		return v.Ints[0], true
	case len(v.Floats) > 0:
		f := v.Floats[0]
		if f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	case len(v.Strings) > 0:
		s := strings.TrimSpace(v.Strings[0])
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	}
	return 0, false
}

// FloatAt returns the i-th value as a float.
func (v TagValue) FloatAt(i int) (float64, bool) {
	switch {
	case len(v.Floats) > 0:
		if i >= len(v.Floats) {
			return 0, false
		}
		return v.Floats[i], true
	case len(v.Ints) > 0:
		if i >= len(v.Ints) {
			return 0, false
		}
		return float64(v.Ints[i]), true
	}

	var parts []string
	for _, s := range v.Strings {
		// DS values sometimes arrive as a single backslash-joined string.
		parts = append(parts, strings.Split(s, `\`)...)
	}
	if i >= len(parts) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Float returns the first value as a float.
func (v TagValue) Float() (float64, bool) {
	return v.FloatAt(0)
}
