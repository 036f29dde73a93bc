package volume

import (
	"errors"
	"fmt"
	"testing"

	"ximed/internal/models"
	"ximed/pkg/phantom"
	"ximed/pkg/series"
)

func record(t *testing.T, name string, w, h int, tags map[models.Tag]models.TagValue) *models.DicomRecord {
	t.Helper()
	data := make([]int, w*h)
	for i := range data {
		data[i] = i % 7
	}
	buf, err := models.NewPixelBuffer(w, h, 16, false, data)
	if err != nil {
		t.Fatal(err)
	}
	return models.NewDicomRecord(name, buf, tags)
}

func locations(t *testing.T, locs ...string) *models.SeriesIndex {
	index := &models.SeriesIndex{}
	for i, loc := range locs {
		index.Records = append(index.Records, record(t, fmt.Sprintf("%d.dcm", i), 4, 4,
			map[models.Tag]models.TagValue{models.TagSliceLocation: {Strings: []string{loc}}}))
	}
	return index
}

// TestBuildSpacingFromSliceLocation verifies the 5x512x512 scenario end to end
func TestBuildSpacingFromSliceLocation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 512x512 series in short mode")
	}
	dir := t.TempDir()
	if _, err := phantom.WriteSeries(dir, phantom.Options{Width: 512, Height: 512}, 5); err != nil {
		t.Fatalf("Failed to write series: %v", err)
	}
	index, err := series.Load(dir)
	if err != nil {
		t.Fatalf("Failed to load series: %v", err)
	}

	v, err := Build(index)
	if err != nil {
		t.Fatalf("Failed to build volume: %v", err)
	}
	if v.Width != 512 || v.Height != 512 || v.Depth != 5 {
		t.Errorf("Expected 512x512x5, got %dx%dx%d", v.Width, v.Height, v.Depth)
	}
	if v.Spacing.Slice != 1.0 {
		t.Errorf("Expected slice spacing 1.0, got %v", v.Spacing.Slice)
	}
	if v.SliceSpacingSource != models.SpacingFromSliceLocation {
		t.Errorf("Expected spacing from SliceLocation, got %s", v.SliceSpacingSource)
	}
	if v.ID == "" {
		t.Error("Expected a volume ID")
	}
}

func TestBuildSliceSpacingSources(t *testing.T) {
	thick := map[models.Tag]models.TagValue{models.TagSliceThickness: {Strings: []string{"2.5"}}}

	tests := []struct {
		name    string
		index   *models.SeriesIndex
		spacing float64
		source  models.SpacingSource
	}{
		{"descending locations", locations(t, "10", "8", "6"), 2, models.SpacingFromSliceLocation},
		{"uneven locations", locations(t, "0", "1", "3"), 1.5, models.SpacingFromSliceLocation},
		{"single slice", &models.SeriesIndex{Records: []*models.DicomRecord{record(t, "a.dcm", 4, 4, thick)}}, 2.5, models.SpacingFromSliceThickness},
		{"missing location", &models.SeriesIndex{Records: []*models.DicomRecord{
			record(t, "a.dcm", 4, 4, thick),
			record(t, "b.dcm", 4, 4, nil),
		}}, 2.5, models.SpacingFromSliceThickness},
		{"identical locations", locations(t, "5", "5"), 1, models.SpacingDefault},
		{"nothing", &models.SeriesIndex{Records: []*models.DicomRecord{record(t, "a.dcm", 4, 4, nil)}}, 1, models.SpacingDefault},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Build(tt.index)
			if err != nil {
				t.Fatalf("Failed to build volume: %v", err)
			}
			if v.Spacing.Slice != tt.spacing {
				t.Errorf("Expected slice spacing %v, got %v", tt.spacing, v.Spacing.Slice)
			}
			if v.SliceSpacingSource != tt.source {
				t.Errorf("Expected source %s, got %s", tt.source, v.SliceSpacingSource)
			}
		})
	}
}

func TestBuildCustomDefaultSpacing(t *testing.T) {
	index := &models.SeriesIndex{Records: []*models.DicomRecord{record(t, "a.dcm", 2, 2, nil)}}
	v, err := (&Builder{DefaultSpacing: 0.7}).Build(index)
	if err != nil {
		t.Fatal(err)
	}
	if v.Spacing.Slice != 0.7 || v.Spacing.Row != 0.7 || v.Spacing.Column != 0.7 {
		t.Errorf("Expected default spacing 0.7 on every axis, got %+v", v.Spacing)
	}
}

func TestBuildPixelSpacing(t *testing.T) {
	tags := map[models.Tag]models.TagValue{models.TagPixelSpacing: {Strings: []string{"0.5", "0.75"}}}
	index := &models.SeriesIndex{Records: []*models.DicomRecord{record(t, "a.dcm", 4, 2, tags)}}

	v, err := Build(index)
	if err != nil {
		t.Fatal(err)
	}
	if v.Spacing.Row != 0.5 || v.Spacing.Column != 0.75 {
		t.Errorf("Expected row 0.5 column 0.75, got %+v", v.Spacing)
	}
	x, y, _ := v.Extent()
	if x != 3 || y != 1 {
		t.Errorf("Expected extent 3x1, got %vx%v", x, y)
	}
}

// TestBuildInconsistentShape verifies mismatched slices produce no volume
func TestBuildInconsistentShape(t *testing.T) {
	index := &models.SeriesIndex{Records: []*models.DicomRecord{
		record(t, "a.dcm", 4, 4, nil),
		record(t, "b.dcm", 4, 4, nil),
		record(t, "c.dcm", 5, 4, nil),
	}}

	v, err := Build(index)
	if v != nil {
		t.Error("Expected no volume")
	}
	var ve *VolumeError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected a VolumeError, got %v", err)
	}
	if ve.Reason != InconsistentSliceShape || ve.FileName != "c.dcm" {
		t.Errorf("Expected InconsistentSliceShape on c.dcm, got %v", ve)
	}
	if !errors.Is(err, ErrInconsistentSliceShape) {
		t.Error("Expected errors.Is to match the sentinel")
	}
}

func TestBuildEmptySeries(t *testing.T) {
	for _, index := range []*models.SeriesIndex{nil, {}} {
		if _, err := Build(index); !errors.Is(err, ErrEmptySeries) {
			t.Errorf("Expected EmptySeries, got %v", err)
		}
	}
}

// TestBuildCopiesSlices verifies the volume owns its samples
func TestBuildCopiesSlices(t *testing.T) {
	index := locations(t, "0", "1")
	v, err := Build(index)
	if err != nil {
		t.Fatal(err)
	}

	index.Records[0].Buffer().Data[0] = 999
	if v.Slices[0].Data[0] == 999 {
		t.Error("Volume shares memory with the series")
	}
}

func TestComputeStats(t *testing.T) {
	a, _ := models.NewPixelBuffer(2, 1, 16, false, []int{0, 10})
	b, _ := models.NewPixelBuffer(2, 1, 16, false, []int{20, 30})
	b.Rescale = &models.Rescale{Slope: 1, Intercept: 100}
	v := &models.Volume{Width: 2, Height: 1, Depth: 2, Slices: []*models.PixelBuffer{a, b}}

	s := ComputeStats(v)
	if s.Min != 0 || s.Max != 130 {
		t.Errorf("Expected range [0,130], got [%v,%v]", s.Min, s.Max)
	}
	if s.Mean != 65 {
		t.Errorf("Expected mean 65, got %v", s.Mean)
	}
	if got := v.Voxel(1, 0, 1); got != 130 {
		t.Errorf("Expected voxel 130, got %v", got)
	}
}
