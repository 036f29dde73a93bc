package models

// SpacingSource records where the slice-axis spacing of a Volume came from.
type SpacingSource int

const (
	SpacingFromSliceLocation SpacingSource = iota
	SpacingFromSliceThickness
	SpacingDefault
)

func (s SpacingSource) String() string {
	switch s {
	case SpacingFromSliceLocation:
		return "SliceLocation"
	case SpacingFromSliceThickness:
		return "SliceThickness"
	default:
		return "Default"
	}
}

// Spacing is the physical size of one voxel in mm.
type Spacing struct {
	Row    float64
	Column float64
	Slice  float64
}

// Volume is a 3D scalar grid built from an ordered slice stack. It is the
// handle passed to a volumetric renderer.
type Volume struct {
	ID string

	// Width, Height, Depth are the dimensions of the volume in voxels
	Width  int
	Height int
	Depth  int

	// Slices are ordered along the slice axis and owned by the volume.
	Slices []*PixelBuffer

	Spacing            Spacing
	SliceSpacingSource SpacingSource
}

// Voxel returns the rescaled value at (x, y, z).
func (v *Volume) Voxel(x, y, z int) float64 {
	return v.Slices[z].Value(x, y)
}

// Scalars flattens the volume in z-major, row-major order with the rescale
// applied, the layout volumetric renderers expect.
func (v *Volume) Scalars() []float64 {
	out := make([]float64, 0, v.Width*v.Height*v.Depth)
	for _, s := range v.Slices {
		for _, d := range s.Data {
			out = append(out, s.Rescale.Apply(d))
		}
	}
	return out
}

// Extent returns the physical size of the volume in mm.
func (v *Volume) Extent() (x, y, z float64) {
	return float64(v.Width) * v.Spacing.Column, float64(v.Height) * v.Spacing.Row, float64(v.Depth) * v.Spacing.Slice
}
