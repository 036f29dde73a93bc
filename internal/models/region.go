package models

import (
	"fmt"
	"image"
)

// Region is a caller-supplied rectangle in pixel coordinates.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

func (r Region) String() string {
	return fmt.Sprintf("x=%d y=%d w=%d h=%d", r.X, r.Y, r.Width, r.Height)
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.Width == 0 || r.Height == 0
}

// Within reports whether the region lies entirely inside a width x height image.
func (r Region) Within(width, height int) bool {
	if r.X < 0 || r.Y < 0 || r.Width < 0 || r.Height < 0 {
		return false
	}
	// Subtract instead of add so huge origins cannot overflow.
	return r.Width <= width && r.Height <= height &&
		r.X <= width-r.Width && r.Y <= height-r.Height
}

// Rect converts the region to an image.Rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// SegmentedMask is a binary (0/255) image sized to the segmented region.
type SegmentedMask struct {
	Width  int
	Height int
	Data   []uint8
}

// NewSegmentedMask allocates an all-zero mask.
func NewSegmentedMask(width, height int) *SegmentedMask {
	return &SegmentedMask{Width: width, Height: height, Data: make([]uint8, width*height)}
}

// Shape returns (rows, columns).
func (m *SegmentedMask) Shape() (rows, cols int) {
	return m.Height, m.Width
}

// At returns the mask value at column x, row y.
func (m *SegmentedMask) At(x, y int) uint8 {
	return m.Data[y*m.Width+x]
}

// Count returns the number of foreground (255) pixels.
func (m *SegmentedMask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v != 0 {
			n++
		}
	}
	return n
}

// Image exposes the mask as an 8-bit gray image sharing no memory with the mask.
func (m *SegmentedMask) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	copy(img.Pix, m.Data)
	return img
}

// Buffer converts the mask to a canonical 8-bit pixel buffer.
func (m *SegmentedMask) Buffer() *PixelBuffer {
	data := make([]int, len(m.Data))
	for i, v := range m.Data {
		data[i] = int(v)
	}
	return &PixelBuffer{Width: m.Width, Height: m.Height, BitsAllocated: 8, Data: data}
}
