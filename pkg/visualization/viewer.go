package visualization

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"ximed/internal/log"
	"ximed/internal/models"
	"ximed/pkg/volume"
)

// Viewer extracts 2D sections from a built volume. Intensities are
// windowed linearly from the volume's minimum to its maximum.
type Viewer struct {
	vol *models.Volume

	// window bounds in rescaled units
	low  float64
	high float64
}

// NewViewer creates a viewer over vol, windowed on its full value range.
func NewViewer(vol *models.Volume) *Viewer {
	stats := volume.ComputeStats(vol)
	return &Viewer{vol: vol, low: stats.Min, high: stats.Max}
}

// SetWindow overrides the intensity window.
func (v *Viewer) SetWindow(low, high float64) error {
	if high <= low {
		return fmt.Errorf("window high %v must exceed low %v", high, low)
	}
	v.low, v.high = low, high
	return nil
}

// Window returns the intensity window.
func (v *Viewer) Window() (low, high float64) {
	return v.low, v.high
}

func (v *Viewer) gray(value float64) color.Gray16 {
	if v.high <= v.low {
		return color.Gray16{}
	}
	t := (value - v.low) / (v.high - v.low)
	return color.Gray16{Y: uint16(math.Round(math.Max(0, math.Min(1, t)) * 65535))}
}

// ExtractSlice extracts a 2D section along the given axis. An x section is
// depth wide and height tall, a y section is width wide and depth tall.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	vol := v.vol

	var img *image.Gray16
	switch axis {
	case "x", "X":
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetGray16(z, y, v.gray(vol.Voxel(position, y, z)))
			}
		}

	case "y", "Y":
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, z, v.gray(vol.Voxel(x, position, z)))
			}
		}

	case "z", "Z":
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewGray16(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetGray16(x, y, v.gray(vol.Voxel(x, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// ExtractRegion copies the rescaled voxels of a box, z-major.
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) ([]float64, error) {
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	if sizeX > v.vol.Width || sizeY > v.vol.Height || sizeZ > v.vol.Depth ||
		startX > v.vol.Width-sizeX || startY > v.vol.Height-sizeY || startZ > v.vol.Depth-sizeZ {
		return nil, fmt.Errorf("region extends beyond volume boundaries")
	}

	region := make([]float64, 0, sizeX*sizeY*sizeZ)
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				region = append(region, v.vol.Voxel(startX+x, startY+y, startZ+z))
			}
		}
	}
	return region, nil
}

// Thumbnail extracts a section and scales it to the given width, keeping
// the physical aspect ratio of the section.
func (v *Viewer) Thumbnail(axis string, position, width int) (image.Image, error) {
	img, err := v.ExtractSlice(axis, position)
	if err != nil {
		return nil, err
	}
	pw, ph := v.physicalSize(axis)
	height := int(math.Round(float64(width) * ph / pw))
	if height < 1 {
		height = 1
	}
	return imaging.Resize(img, width, height, imaging.Lanczos), nil
}

// physicalSize returns the extent in mm of a section along axis.
func (v *Viewer) physicalSize(axis string) (w, h float64) {
	ex, ey, ez := v.vol.Extent()
	switch axis {
	case "x", "X":
		return ez, ey
	case "y", "Y":
		return ex, ez
	default:
		return ex, ey
	}
}

// SaveSlice saves an extracted section; the format follows the extension.
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	if err := imaging.Save(img, filename); err != nil {
		return errors.Wrapf(err, "save slice %s", filename)
	}
	return nil
}

// SaveSliceSequence extracts every section along axis into outputDir as
// slice_<axis>_NNN.png and returns the number written.
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.vol.Width
	case "y", "Y":
		maxPos = v.vol.Height
	case "z", "Z":
		maxPos = v.vol.Depth
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return pos, err
		}
	}

	log.Debugw("saved slice sequence", "axis", axis, "dir", outputDir, "count", maxPos)
	return maxPos, nil
}
