package models

import (
	"fmt"
	"math"
)

// DType describes how the samples of a PixelBuffer are stored.
type DType struct {
	Bits   int
	Signed bool
}

// Uint8 is the canonical form the segmenter works on.
var Uint8 = DType{Bits: 8}

func (d DType) String() string {
	if d.Signed {
		return fmt.Sprintf("int%d", d.Bits)
	}
	return fmt.Sprintf("uint%d", d.Bits)
}

// Range returns the smallest and largest value representable by the dtype.
func (d DType) Range() (lo, hi int) {
	if d.Bits <= 0 || d.Bits > 32 {
		return 0, 0
	}
	if d.Signed {
		return -(1 << (d.Bits - 1)), 1<<(d.Bits-1) - 1
	}
	return 0, 1<<d.Bits - 1
}

// Rescale is the modality LUT declared by RescaleSlope/RescaleIntercept.
type Rescale struct {
	Slope     float64
	Intercept float64
}

// Apply maps a stored value to an output value.
func (r *Rescale) Apply(v int) float64 {
	if r == nil {
		return float64(v)
	}
	return float64(v)*r.Slope + r.Intercept
}

// PixelBuffer is a single-channel 2D image with the sample type declared by
// the source tags. Data is row-major, len(Data) == Width*Height.
type PixelBuffer struct {
	Width         int
	Height        int
	BitsAllocated int
	Signed        bool
	Data          []int

	// Rescale is nil when the source declared no slope/intercept.
	Rescale *Rescale
}

// NewPixelBuffer builds a buffer and checks the shape invariant.
func NewPixelBuffer(width, height, bitsAllocated int, signed bool, data []int) (*PixelBuffer, error) {
	b := &PixelBuffer{
		Width:         width,
		Height:        height,
		BitsAllocated: bitsAllocated,
		Signed:        signed,
		Data:          data,
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the shape and dtype invariants.
func (b *PixelBuffer) Validate() error {
	if b.Width <= 0 || b.Height <= 0 {
		return fmt.Errorf("invalid buffer dimensions %dx%d", b.Width, b.Height)
	}
	if b.Width*b.Height != len(b.Data) {
		return fmt.Errorf("buffer holds %d samples, want %dx%d=%d", len(b.Data), b.Width, b.Height, b.Width*b.Height)
	}
	switch b.BitsAllocated {
	case 8, 16, 32:
	default:
		return fmt.Errorf("unsupported bits allocated: %d", b.BitsAllocated)
	}
	return nil
}

// DType returns the declared sample type.
func (b *PixelBuffer) DType() DType {
	return DType{Bits: b.BitsAllocated, Signed: b.Signed}
}

// IsCanonical8 reports whether the buffer is already 8-bit unsigned.
func (b *PixelBuffer) IsCanonical8() bool {
	return b.DType() == Uint8
}

// Shape returns (rows, columns).
func (b *PixelBuffer) Shape() (rows, cols int) {
	return b.Height, b.Width
}

// At returns the stored sample at column x, row y.
func (b *PixelBuffer) At(x, y int) int {
	return b.Data[y*b.Width+x]
}

// Value returns the sample at (x, y) with the rescale applied.
func (b *PixelBuffer) Value(x, y int) float64 {
	return b.Rescale.Apply(b.At(x, y))
}

// MinMax returns the smallest and largest stored sample.
func (b *PixelBuffer) MinMax() (min, max int) {
	if len(b.Data) == 0 {
		return 0, 0
	}
	min, max = math.MaxInt, math.MinInt
	for _, v := range b.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// Clone returns a deep copy.
func (b *PixelBuffer) Clone() *PixelBuffer {
	out := *b
	out.Data = append([]int(nil), b.Data...)
	if b.Rescale != nil {
		r := *b.Rescale
		out.Rescale = &r
	}
	return &out
}
