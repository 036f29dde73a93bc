package segmentation

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ximed/internal/models"
)

// SaveMask writes the mask as a single-channel 8-bit image. The format is
// chosen from the file extension; use .png for a lossless mask.
func SaveMask(mask *models.SegmentedMask, path string) error {
	if err := imaging.Save(mask.Image(), path); err != nil {
		return errors.Wrapf(err, "save mask %s", path)
	}
	return nil
}

// LoadMask reads an image written by SaveMask. Any non-zero luminance is
// foreground.
func LoadMask(path string) (*models.SegmentedMask, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open mask %s", path)
	}
	gray := imaging.Grayscale(img)
	b := gray.Bounds()
	mask := models.NewSegmentedMask(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			if gray.Pix[y*gray.Stride+x*4] != 0 {
				mask.Data[y*mask.Width+x] = 255
			}
		}
	}
	return mask, nil
}

// EnhanceContrast equalizes the histogram of the normalized image. Output
// level of a sample is 255 times the fraction of samples at or below it, so
// a constant image becomes all 255.
func EnhanceContrast(buf *models.PixelBuffer) *models.PixelBuffer {
	px := Normalize(buf)

	var hist [256]int
	for _, v := range px {
		hist[v]++
	}
	var lut [256]int
	cum := 0
	for i, n := range hist {
		cum += n
		lut[i] = int(float64(cum)*255/float64(len(px)) + 0.5)
	}

	data := make([]int, len(px))
	for i, v := range px {
		data[i] = lut[v]
	}
	return &models.PixelBuffer{Width: buf.Width, Height: buf.Height, BitsAllocated: 8, Data: data}
}

// Stats summarizes the rescaled samples of a buffer.
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// BufferStats computes Stats over the rescaled samples.
func BufferStats(buf *models.PixelBuffer) Stats {
	if len(buf.Data) == 0 {
		return Stats{}
	}
	values := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		values[i] = buf.Rescale.Apply(v)
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Stats{
		Min:    floats.Min(values),
		Max:    floats.Max(values),
		Mean:   mean,
		StdDev: std,
	}
}

// Image returns the normalized buffer as an 8-bit gray image.
func Image(buf *models.PixelBuffer) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, buf.Width, buf.Height))
	copy(img.Pix, Normalize(buf))
	return img
}
