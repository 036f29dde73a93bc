package visualization

import (
	"context"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"ximed/internal/log"
	"ximed/internal/models"
)

// ProjectionRenderer composites the volume front to back along the slice
// axis and writes the result as a single RGBA image. It is a minimal
// Renderer for previews and tests, not an interactive ray caster.
type ProjectionRenderer struct {
	// OutputPath receives the rendered image; the format follows the
	// extension.
	OutputPath string

	// Image holds the last rendered image.
	Image *image.NRGBA
}

// Render validates tf, composites vol and saves the image.
func (p *ProjectionRenderer) Render(ctx context.Context, vol *models.Volume, tf TransferFunction) error {
	if vol == nil || vol.Depth == 0 {
		return errors.New("render: empty volume")
	}
	if err := tf.Validate(); err != nil {
		return errors.Wrap(err, "render")
	}

	img := image.NewNRGBA(image.Rect(0, 0, vol.Width, vol.Height))
	for y := 0; y < vol.Height; y++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for x := 0; x < vol.Width; x++ {
			var r, g, b, a float64
			for z := 0; z < vol.Depth && a < 0.999; z++ {
				value := vol.Voxel(x, y, z)
				alpha := tf.OpacityAt(value)
				if alpha == 0 {
					continue
				}
				cr, cg, cb := tf.ColorAt(value)
				w := (1 - a) * alpha
				r += w * cr
				g += w * cg
				b += w * cb
				a += w
			}
			img.SetNRGBA(x, y, premultipliedToNRGBA(r, g, b, a))
		}
	}
	p.Image = img

	if p.OutputPath != "" {
		if err := imaging.Save(img, p.OutputPath); err != nil {
			return errors.Wrapf(err, "save render %s", p.OutputPath)
		}
		log.Debugw("rendered volume", "id", vol.ID, "path", p.OutputPath)
	}
	return nil
}

func premultipliedToNRGBA(r, g, b, a float64) color.NRGBA {
	if a <= 0 {
		return color.NRGBA{}
	}
	to8 := func(v float64) uint8 {
		return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
	}
	return color.NRGBA{R: to8(r / a), G: to8(g / a), B: to8(b / a), A: to8(a)}
}
