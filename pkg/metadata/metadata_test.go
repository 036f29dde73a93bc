package metadata

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/suyashkumar/dicom/pkg/tag"

	"ximed/internal/models"
	"ximed/pkg/phantom"
)

func recordWith(tags map[models.Tag]models.TagValue) *models.DicomRecord {
	buf, _ := models.NewPixelBuffer(1, 1, 8, false, []int{0})
	return models.NewDicomRecord("/data/IM0001.dcm", buf, tags)
}

// TestExtractAllKeysPresent verifies every key exists even with no attributes
func TestExtractAllKeysPresent(t *testing.T) {
	rec := Extract(recordWith(nil))

	keys := FileKeys()
	if len(rec) != len(keys) {
		t.Fatalf("Expected %d fields, got %d", len(keys), len(rec))
	}
	for i, key := range keys {
		if rec[i].Key != key {
			t.Errorf("Field %d: expected key %q, got %q", i, key, rec[i].Key)
		}
		if !rec[i].Value.IsUnknown() {
			t.Errorf("Expected %q to be Unknown, got %v", key, rec[i].Value)
		}
		if rec[i].Value.String() != "Unknown" {
			t.Errorf("Expected Unknown text, got %q", rec[i].Value.String())
		}
	}
}

// TestExtractUnknownOnlyWhenAbsent verifies present attributes are resolved
func TestExtractUnknownOnlyWhenAbsent(t *testing.T) {
	rec := Extract(recordWith(map[models.Tag]models.TagValue{
		models.TagPatientName:      {Strings: []string{"Doe^John"}},
		models.TagModality:         {Strings: []string{"MR "}},
		models.TagRows:             {Ints: []int{512}},
		models.TagPixelSpacing:     {Strings: []string{"0.5", "0.5"}},
		models.TagRescaleIntercept: {Strings: []string{"-1024"}},
	}))

	tests := []struct {
		key  string
		want string
	}{
		{KeyPatientName, "Doe^John"},
		{KeyModality, "MR"},
		{KeyRows, "512"},
		{KeyPixelSpacing, `0.5\0.5`},
		{KeyRescaleIntercept, "-1024"},
		{KeyColumns, "Unknown"},
		{KeyPatientAge, "Unknown"},
		{KeyRescaleSlope, "Unknown"},
	}
	for _, tt := range tests {
		v, ok := rec.Get(tt.key)
		if !ok {
			t.Errorf("Key %q missing", tt.key)
			continue
		}
		if v.String() != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.key, tt.want, v.String())
		}
	}

	if v, _ := rec.Get(KeyRows); v.Kind != KindInt {
		t.Errorf("Expected Rows to be an int, got %s", v.Kind)
	}
	if v, _ := rec.Get(KeyRescaleIntercept); v.Kind != KindFloat || v.Float != -1024 {
		t.Errorf("Expected Rescale Intercept -1024.0, got %+v", v)
	}
}

// TestExtractMalformedValue verifies a bad numeric string is kept as text
// and affects one key only
func TestExtractMalformedValue(t *testing.T) {
	rec := Extract(recordWith(map[models.Tag]models.TagValue{
		models.TagRescaleSlope: {Strings: []string{"abc"}},
		models.TagBitsStored:   {Ints: []int{12}},
	}))

	if v, _ := rec.Get(KeyRescaleSlope); v.Kind != KindString || v.Str != "abc" {
		t.Errorf("Expected malformed slope to keep \"abc\", got %+v", v)
	}
	if v, _ := rec.Get(KeyBitsStored); v.Int != 12 {
		t.Errorf("Expected Bits Stored 12, got %v", v)
	}
}

// TestExtractBlankValue verifies blank attributes are present, not Unknown
func TestExtractBlankValue(t *testing.T) {
	rec := Extract(recordWith(map[models.Tag]models.TagValue{
		models.TagStudyDescription: {Strings: []string{" "}},
		models.TagPatientName:      {Strings: []string{}},
		models.TagRows:             {Strings: []string{""}},
	}))

	for _, key := range []string{KeyStudyDescription, KeyPatientName, KeyRows} {
		v, _ := rec.Get(key)
		if v.IsUnknown() {
			t.Errorf("%s: expected a present blank value, got Unknown", key)
			continue
		}
		if v.Kind != KindString || v.Str != "" {
			t.Errorf("%s: expected empty string, got %+v", key, v)
		}
	}
	if v, _ := rec.Get(KeyPatientAge); !v.IsUnknown() {
		t.Errorf("Expected absent Patient Age to be Unknown, got %+v", v)
	}
}

// TestExtractBlankValueFromFile verifies a blank attribute written to disk
// survives decoding as an empty value
func TestExtractBlankValueFromFile(t *testing.T) {
	dir := t.TempDir()
	o := phantom.Options{Width: 4, Height: 4, Extra: map[tag.Tag]string{tag.StudyDescription: " "}}
	paths, err := phantom.WriteSeries(dir, o, 1)
	if err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	rec, err := ExtractFile(paths[0])
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}
	v, _ := rec.Get(KeyStudyDescription)
	if v.IsUnknown() || v.String() != "" {
		t.Errorf("Expected empty Study Description, got %q (%s)", v.String(), v.Kind)
	}
}

// TestExtractSeriesOrderAndKeys verifies one independent entry per slice
func TestExtractSeriesOrderAndKeys(t *testing.T) {
	dir := t.TempDir()
	o := phantom.Options{Width: 8, Height: 8, SliceThickness: 2, Patient: phantom.Patient{Name: "Roe^Ann"}}
	if _, err := phantom.WriteSeries(dir, o, 3); err != nil {
		t.Fatalf("Failed to write series: %v", err)
	}

	recs, index, err := ExtractDir(dir)
	if err != nil {
		t.Fatalf("Failed to extract series: %v", err)
	}
	if len(recs) != index.Len() || len(recs) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(recs))
	}

	keys := SeriesKeys()
	for i, rec := range recs {
		if len(rec) != len(keys) {
			t.Fatalf("Entry %d: expected %d fields, got %d", i, len(keys), len(rec))
		}
		if v, _ := rec.Get(KeyInstanceNumber); v.Int != i+1 {
			t.Errorf("Entry %d: expected instance %d, got %v", i, i+1, v)
		}
		if v, _ := rec.Get(KeySliceLocation); v.Float != float64(i)*2 {
			t.Errorf("Entry %d: expected location %v, got %v", i, float64(i)*2, v)
		}
		if v, _ := rec.Get(KeyFileName); v.String() != filepath.Base(index.Records[i].Path()) {
			t.Errorf("Entry %d: unexpected file name %v", i, v)
		}
		if v, _ := rec.Get(KeyPatientName); v.String() != "Roe^Ann" {
			t.Errorf("Entry %d: expected patient name, got %v", i, v)
		}
	}
}

// TestExtractFile verifies the single-file convenience path
func TestExtractFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.dcm")
	o := phantom.Options{
		Width: 6, Height: 4,
		Extra: map[tag.Tag]string{tag.Manufacturer: "ACME", tag.InstitutionName: "General"},
	}
	if err := phantom.WriteFile(path, o, phantom.Slice{}); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	rec, err := ExtractFile(path)
	if err != nil {
		t.Fatalf("Failed to extract: %v", err)
	}
	want := map[string]string{
		KeyManufacturer:  "ACME",
		KeyInstitution:   "General",
		KeyRows:          "4",
		KeyColumns:       "6",
		KeyBitsAllocated: "16",
		KeyModality:      "CT",
		KeyStudyDate:     "Unknown",
	}
	m := rec.Map()
	for k, v := range want {
		if m[k] != v {
			t.Errorf("%s: expected %q, got %q", k, v, m[k])
		}
	}
}

func TestWriteText(t *testing.T) {
	rec := Record{
		{Key: KeyPatientName, Value: StringValue("Doe^John")},
		{Key: KeyRows, Value: IntValue(2)},
		{Key: KeyPatientAge, Value: Unknown},
	}
	var buf bytes.Buffer
	if err := WriteText(&buf, rec); err != nil {
		t.Fatalf("WriteText failed: %v", err)
	}
	want := "Patient Name: Doe^John\nRows: 2\nPatient Age: Unknown\n"
	if buf.String() != want {
		t.Errorf("Expected %q, got %q", want, buf.String())
	}

	buf.Reset()
	if err := WriteSeriesText(&buf, []Record{rec, rec}); err != nil {
		t.Fatalf("WriteSeriesText failed: %v", err)
	}
	if strings.Count(buf.String(), "Rows: 2") != 2 {
		t.Errorf("Expected two records, got %q", buf.String())
	}
}

// TestMsgpackKeepsKinds verifies the structured form preserves order and kinds
func TestMsgpackKeepsKinds(t *testing.T) {
	rec := Record{
		{Key: KeyPatientName, Value: StringValue("Doe^John")},
		{Key: KeyRows, Value: IntValue(512)},
		{Key: KeyRescaleSlope, Value: FloatValue(1.5)},
		{Key: KeyPatientSex, Value: Unknown},
	}

	data, err := MarshalMsgpack(rec)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got, err := UnmarshalMsgpack(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(got) != len(rec) {
		t.Fatalf("Expected %d fields, got %d", len(rec), len(got))
	}
	for i := range rec {
		if got[i] != rec[i] {
			t.Errorf("Field %d: expected %+v, got %+v", i, rec[i], got[i])
		}
	}

	series, err := MarshalSeriesMsgpack([]Record{rec, rec[:1]})
	if err != nil {
		t.Fatalf("Marshal series failed: %v", err)
	}
	back, err := UnmarshalSeriesMsgpack(series)
	if err != nil {
		t.Fatalf("Unmarshal series failed: %v", err)
	}
	if len(back) != 2 || len(back[1]) != 1 {
		t.Errorf("Unexpected series shape: %d entries", len(back))
	}
}

func TestUnmarshalMsgpackRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalMsgpack([]byte{0xc1}); err == nil {
		t.Error("Expected an error for invalid msgpack")
	}
}
