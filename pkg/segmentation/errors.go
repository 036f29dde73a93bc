package segmentation

import (
	"fmt"
	"image"

	"ximed/internal/models"
)

// Reason classifies a segmentation failure.
type Reason int

const (
	// RegionOutOfBounds means the region does not lie inside the image.
	RegionOutOfBounds Reason = iota + 1

	// EmptyRegion means the region has zero width or height.
	EmptyRegion
)

func (r Reason) String() string {
	switch r {
	case RegionOutOfBounds:
		return "RegionOutOfBounds"
	case EmptyRegion:
		return "EmptyRegion"
	default:
		return fmt.Sprintf("Reason(%d)", int(r))
	}
}

// SegmentError reports a region the segmenter refused.
type SegmentError struct {
	Reason Reason
	Region models.Region
	Bounds image.Rectangle
}

var (
	ErrRegionOutOfBounds error = &SegmentError{Reason: RegionOutOfBounds}
	ErrEmptyRegion       error = &SegmentError{Reason: EmptyRegion}
)

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment: %s: region %s, image %dx%d",
		e.Reason, e.Region, e.Bounds.Dx(), e.Bounds.Dy())
}

// Is matches on Reason alone.
func (e *SegmentError) Is(target error) bool {
	t, ok := target.(*SegmentError)
	return ok && t.Reason == e.Reason
}
