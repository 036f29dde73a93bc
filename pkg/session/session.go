// Package session tracks what a user has loaded and derived so far. Each
// session is an explicit state machine: operations are only valid in the
// states that admit them, and an invalid call returns a *StateError
// instead of acting on missing data.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ximed/internal/log"
	"ximed/internal/models"
	"ximed/pkg/dicomio"
	"ximed/pkg/segmentation"
	"ximed/pkg/series"
	"ximed/pkg/volume"
)

// State is the state of a session.
type State int

const (
	NoImage State = iota
	ImageLoaded
	Segmented

	NoSeries
	SeriesLoaded
	VolumeBuilt
)

func (s State) String() string {
	switch s {
	case NoImage:
		return "NoImage"
	case ImageLoaded:
		return "ImageLoaded"
	case Segmented:
		return "Segmented"
	case NoSeries:
		return "NoSeries"
	case SeriesLoaded:
		return "SeriesLoaded"
	case VolumeBuilt:
		return "VolumeBuilt"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateError reports an operation attempted in a state that does not
// admit it.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

// ImageSession holds one image and, once segmented, its mask.
// NoImage -> ImageLoaded -> Segmented.
type ImageSession struct {
	ID string

	mu     sync.Mutex
	state  State
	record *models.DicomRecord
	region models.Region
	mask   *models.SegmentedMask

	// Decode and Segmenter default to dicomio.Decode and segmentation.New().
	Decode    func(path string) (*models.DicomRecord, error)
	Segmenter *segmentation.Segmenter
}

// NewImageSession returns a session in NoImage.
func NewImageSession() *ImageSession {
	return &ImageSession{ID: uuid.NewString(), state: NoImage}
}

// State returns the current state.
func (s *ImageSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load decodes path, replacing any previous image and mask. On failure the
// session is left as it was.
func (s *ImageSession) Load(path string) error {
	decode := s.Decode
	if decode == nil {
		decode = dicomio.Decode
	}
	rec, err := decode(path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = rec
	s.mask = nil
	s.region = models.Region{}
	s.state = ImageLoaded
	log.Debugw("image loaded", "session", s.ID, "path", path)
	return nil
}

// Record returns the loaded image.
func (s *ImageSession) Record() (*models.DicomRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == NoImage {
		return nil, &StateError{Op: "Record", State: s.state}
	}
	return s.record, nil
}

// Segment segments region of the loaded image, replacing any previous
// mask. A failed segmentation keeps the previous state and mask.
func (s *ImageSession) Segment(region models.Region) (*models.SegmentedMask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != ImageLoaded && s.state != Segmented {
		return nil, &StateError{Op: "Segment", State: s.state}
	}

	seg := s.Segmenter
	if seg == nil {
		seg = segmentation.New()
	}
	mask, err := seg.Segment(s.record.Buffer(), region)
	if err != nil {
		return nil, err
	}
	s.mask = mask
	s.region = region
	s.state = Segmented
	return mask, nil
}

// Mask returns the last mask and the region it was taken from.
func (s *ImageSession) Mask() (*models.SegmentedMask, models.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Segmented {
		return nil, models.Region{}, &StateError{Op: "Mask", State: s.state}
	}
	return s.mask, s.region, nil
}

// SeriesSession holds one series and, once built, its volume.
// NoSeries -> SeriesLoaded -> VolumeBuilt.
type SeriesSession struct {
	ID string

	mu     sync.Mutex
	state  State
	index  *models.SeriesIndex
	volume *models.Volume

	Loader  *series.Loader
	Builder *volume.Builder
}

// NewSeriesSession returns a session in NoSeries.
func NewSeriesSession(loader *series.Loader, builder *volume.Builder) *SeriesSession {
	if loader == nil {
		loader = &series.Loader{}
	}
	if builder == nil {
		builder = &volume.Builder{}
	}
	return &SeriesSession{ID: uuid.NewString(), state: NoSeries, Loader: loader, Builder: builder}
}

// State returns the current state.
func (s *SeriesSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Load loads dir, discarding any previous series and volume. On failure the
// session is left as it was.
func (s *SeriesSession) Load(dir string) (*models.SeriesIndex, error) {
	return s.LoadContext(context.Background(), dir)
}

// LoadContext is Load with a caller-supplied deadline or cancellation.
func (s *SeriesSession) LoadContext(ctx context.Context, dir string) (*models.SeriesIndex, error) {
	index, err := s.Loader.LoadContext(ctx, dir)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
	s.volume = nil
	s.state = SeriesLoaded
	log.Debugw("series loaded", "session", s.ID, "dir", dir, "records", index.Len())
	return index, nil
}

// Index returns the loaded series.
func (s *SeriesSession) Index() (*models.SeriesIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == NoSeries {
		return nil, &StateError{Op: "Index", State: s.state}
	}
	return s.index, nil
}

// BuildVolume builds the volume of the loaded series. If the build fails
// the session falls back to SeriesLoaded with no volume.
func (s *SeriesSession) BuildVolume() (*models.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != SeriesLoaded && s.state != VolumeBuilt {
		return nil, &StateError{Op: "BuildVolume", State: s.state}
	}

	v, err := s.Builder.Build(s.index)
	if err != nil {
		s.volume = nil
		s.state = SeriesLoaded
		return nil, err
	}
	s.volume = v
	s.state = VolumeBuilt
	return v, nil
}

// Volume returns the built volume.
func (s *SeriesSession) Volume() (*models.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != VolumeBuilt {
		return nil, &StateError{Op: "Volume", State: s.state}
	}
	return s.volume, nil
}
