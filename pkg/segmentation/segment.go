// Package segmentation extracts a binary mask from a rectangular region of
// a pixel buffer: normalize to 8 bits, crop, threshold, then close small
// gaps with a square structuring element.
package segmentation

import (
	"fmt"
	"image"
	"math"

	"ximed/internal/log"
	"ximed/internal/models"
)

// The cut value and structuring element are fixed so masks are
// reproducible across runs.
const (
	DefaultThreshold  = 100
	DefaultKernelSize = 5
)

// Segmenter holds the threshold and the side of the square structuring
// element. Use New for the fixed defaults.
type Segmenter struct {
	Threshold  int
	KernelSize int
}

// New returns a segmenter using DefaultThreshold and DefaultKernelSize.
func New() *Segmenter {
	return &Segmenter{Threshold: DefaultThreshold, KernelSize: DefaultKernelSize}
}

// Segment runs New().Segment.
func Segment(buf *models.PixelBuffer, region models.Region) (*models.SegmentedMask, error) {
	return New().Segment(buf, region)
}

// Segment returns a mask sized to region. The source buffer is not
// modified.
func (s *Segmenter) Segment(buf *models.PixelBuffer, region models.Region) (*models.SegmentedMask, error) {
	if buf == nil {
		return nil, fmt.Errorf("segment: nil buffer")
	}
	if s.KernelSize < 1 || s.KernelSize%2 == 0 {
		return nil, fmt.Errorf("segment: kernel size must be odd and positive, got %d", s.KernelSize)
	}

	normalized := Normalize(buf)

	bounds := image.Rect(0, 0, buf.Width, buf.Height)
	if region.Empty() {
		return nil, &SegmentError{Reason: EmptyRegion, Region: region, Bounds: bounds}
	}
	if !region.Within(buf.Width, buf.Height) {
		return nil, &SegmentError{Reason: RegionOutOfBounds, Region: region, Bounds: bounds}
	}

	mask := models.NewSegmentedMask(region.Width, region.Height)
	for y := 0; y < region.Height; y++ {
		row := (region.Y + y) * buf.Width
		for x := 0; x < region.Width; x++ {
			if int(normalized[row+region.X+x]) > s.Threshold {
				mask.Data[y*region.Width+x] = 255
			}
		}
	}

	Close(mask, s.KernelSize)

	log.Debugw("segmented region",
		"region", region.String(),
		"foreground", mask.Count(),
		"pixels", len(mask.Data),
	)
	return mask, nil
}

// Normalize maps the buffer onto [0,255]. A canonical 8-bit unsigned buffer
// is copied unchanged. Otherwise the stored minimum maps to 0 and the
// maximum to 255, rounding half away from zero; a constant buffer maps to 0.
func Normalize(buf *models.PixelBuffer) []uint8 {
	out := make([]uint8, len(buf.Data))
	if buf.IsCanonical8() {
		for i, v := range buf.Data {
			out[i] = uint8(v)
		}
		return out
	}

	lo, hi := buf.MinMax()
	if lo == hi {
		return out
	}
	scale := 255 / float64(hi-lo)
	for i, v := range buf.Data {
		out[i] = uint8(math.Round(float64(v-lo) * scale))
	}
	return out
}

// NormalizedBuffer wraps Normalize in a canonical 8-bit buffer.
func NormalizedBuffer(buf *models.PixelBuffer) *models.PixelBuffer {
	px := Normalize(buf)
	data := make([]int, len(px))
	for i, v := range px {
		data[i] = int(v)
	}
	return &models.PixelBuffer{Width: buf.Width, Height: buf.Height, BitsAllocated: 8, Data: data}
}
