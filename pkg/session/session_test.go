package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ximed/internal/models"
	"ximed/pkg/dicomio"
	"ximed/pkg/phantom"
	"ximed/pkg/segmentation"
	"ximed/pkg/series"
	"ximed/pkg/volume"
)

func expectStateError(t *testing.T, err error, op string, state State) {
	t.Helper()
	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("Expected a StateError, got %v", err)
	}
	if se.Op != op || se.State != state {
		t.Errorf("Expected %s in %s, got %s in %s", op, state, se.Op, se.State)
	}
}

// TestImageSessionTransitions walks NoImage -> ImageLoaded -> Segmented
func TestImageSessionTransitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "img.dcm")
	if err := phantom.WriteFile(path, phantom.Options{Width: 32, Height: 32}, phantom.Slice{}); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}

	s := NewImageSession()
	if s.ID == "" {
		t.Error("Expected a session ID")
	}
	if s.State() != NoImage {
		t.Fatalf("Expected NoImage, got %s", s.State())
	}

	_, err := s.Segment(models.Region{Width: 4, Height: 4})
	expectStateError(t, err, "Segment", NoImage)
	_, _, err = s.Mask()
	expectStateError(t, err, "Mask", NoImage)

	if err := s.Load(path); err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if s.State() != ImageLoaded {
		t.Fatalf("Expected ImageLoaded, got %s", s.State())
	}
	_, _, err = s.Mask()
	expectStateError(t, err, "Mask", ImageLoaded)

	region := models.Region{X: 8, Y: 8, Width: 16, Height: 16}
	mask, err := s.Segment(region)
	if err != nil {
		t.Fatalf("Failed to segment: %v", err)
	}
	if s.State() != Segmented {
		t.Fatalf("Expected Segmented, got %s", s.State())
	}
	got, gotRegion, err := s.Mask()
	if err != nil || got != mask || gotRegion != region {
		t.Errorf("Expected the stored mask and region, got %v %v %v", got, gotRegion, err)
	}

	// An out-of-bounds region keeps the previous mask.
	if _, err := s.Segment(models.Region{X: 30, Y: 0, Width: 8, Height: 8}); !errors.Is(err, segmentation.ErrRegionOutOfBounds) {
		t.Errorf("Expected RegionOutOfBounds, got %v", err)
	}
	if got, _, _ := s.Mask(); got != mask {
		t.Error("Expected the previous mask to survive a failed segmentation")
	}

	// Reloading resets to ImageLoaded.
	if err := s.Load(path); err != nil {
		t.Fatal(err)
	}
	if s.State() != ImageLoaded {
		t.Errorf("Expected ImageLoaded after reload, got %s", s.State())
	}
}

// TestImageSessionFailedLoad verifies a bad file leaves the session intact
func TestImageSessionFailedLoad(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.dcm")
	bad := filepath.Join(dir, "bad.dcm")
	if err := phantom.WriteFile(good, phantom.Options{Width: 8, Height: 8}, phantom.Slice{}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("nope"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewImageSession()
	if err := s.Load(bad); !errors.Is(err, dicomio.ErrNotDicom) {
		t.Errorf("Expected NotDicom, got %v", err)
	}
	if s.State() != NoImage {
		t.Errorf("Expected NoImage, got %s", s.State())
	}

	if err := s.Load(good); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Segment(models.Region{Width: 8, Height: 8}); err != nil {
		t.Fatal(err)
	}
	if err := s.Load(bad); err == nil {
		t.Fatal("Expected an error")
	}
	if s.State() != Segmented {
		t.Errorf("Expected Segmented to survive a failed load, got %s", s.State())
	}
	rec, err := s.Record()
	if err != nil || rec.FileName() != "good.dcm" {
		t.Errorf("Expected good.dcm to remain loaded, got %v %v", rec, err)
	}
}

// TestSeriesSessionTransitions walks NoSeries -> SeriesLoaded -> VolumeBuilt
func TestSeriesSessionTransitions(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "first")
	second := filepath.Join(root, "second")
	if _, err := phantom.WriteSeries(first, phantom.Options{Width: 8, Height: 8}, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := phantom.WriteSeries(second, phantom.Options{Width: 4, Height: 4, SliceThickness: 2}, 2); err != nil {
		t.Fatal(err)
	}

	s := NewSeriesSession(series.NewLoader(2, series.MatchEither), &volume.Builder{})
	if s.State() != NoSeries {
		t.Fatalf("Expected NoSeries, got %s", s.State())
	}
	_, err := s.BuildVolume()
	expectStateError(t, err, "BuildVolume", NoSeries)
	_, err = s.Volume()
	expectStateError(t, err, "Volume", NoSeries)

	if _, err := s.Load(first); err != nil {
		t.Fatalf("Failed to load series: %v", err)
	}
	_, err = s.Volume()
	expectStateError(t, err, "Volume", SeriesLoaded)

	v, err := s.BuildVolume()
	if err != nil {
		t.Fatalf("Failed to build volume: %v", err)
	}
	if v.Depth != 3 || s.State() != VolumeBuilt {
		t.Errorf("Expected a 3-slice volume in VolumeBuilt, got %d in %s", v.Depth, s.State())
	}

	// Loading another series discards the volume.
	if _, err := s.Load(second); err != nil {
		t.Fatal(err)
	}
	if s.State() != SeriesLoaded {
		t.Errorf("Expected SeriesLoaded, got %s", s.State())
	}
	if _, err := s.Volume(); err == nil {
		t.Error("Expected the previous volume to be discarded")
	}

	v2, err := s.BuildVolume()
	if err != nil {
		t.Fatal(err)
	}
	if v2.ID == v.ID || v2.Spacing.Slice != 2 {
		t.Errorf("Expected a new volume with spacing 2, got %s %v", v2.ID, v2.Spacing.Slice)
	}

	// A failed load keeps the current series and volume.
	if _, err := s.Load(filepath.Join(root, "missing")); err == nil {
		t.Fatal("Expected an error")
	}
	if got, err := s.Volume(); err != nil || got != v2 {
		t.Errorf("Expected the volume to survive a failed load, got %v", err)
	}
}

// TestSeriesSessionFailedBuild verifies a failed build leaves no volume
func TestSeriesSessionFailedBuild(t *testing.T) {
	dir := t.TempDir()
	if err := phantom.WriteFile(filepath.Join(dir, "a.dcm"), phantom.Options{Width: 8, Height: 8}, phantom.Slice{InstanceNumber: phantom.Int(1)}); err != nil {
		t.Fatal(err)
	}
	if err := phantom.WriteFile(filepath.Join(dir, "b.dcm"), phantom.Options{Width: 6, Height: 8}, phantom.Slice{InstanceNumber: phantom.Int(2)}); err != nil {
		t.Fatal(err)
	}

	s := NewSeriesSession(nil, nil)
	index, err := s.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if index.Consistent() {
		t.Error("Expected the loader to flag the shape mismatch")
	}

	if _, err := s.BuildVolume(); !errors.Is(err, volume.ErrInconsistentSliceShape) {
		t.Errorf("Expected InconsistentSliceShape, got %v", err)
	}
	if s.State() != SeriesLoaded {
		t.Errorf("Expected SeriesLoaded, got %s", s.State())
	}
	if _, err := s.Volume(); err == nil {
		t.Error("Expected no volume after a failed build")
	}
}

// TestSessionsIndependent verifies the two handles do not share state
func TestSessionsIndependent(t *testing.T) {
	img := NewImageSession()
	ser := NewSeriesSession(nil, nil)
	if img.ID == ser.ID {
		t.Error("Expected distinct session IDs")
	}

	dir := t.TempDir()
	if _, err := phantom.WriteSeries(dir, phantom.Options{Width: 4, Height: 4}, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := ser.Load(dir); err != nil {
		t.Fatal(err)
	}
	if img.State() != NoImage {
		t.Errorf("Expected image session untouched, got %s", img.State())
	}
}
