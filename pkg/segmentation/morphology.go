package segmentation

import "ximed/internal/models"

// Close applies one morphological closing (dilate then erode) with a
// size x size square element, in place. Pixels outside the mask are
// ignored: they never turn a pixel on during dilation and never turn one
// off during erosion.
func Close(mask *models.SegmentedMask, size int) {
	if size <= 1 {
		return
	}
	r := size / 2
	dilate(mask, r)
	erode(mask, r)
}

func dilate(mask *models.SegmentedMask, r int) {
	sweep(mask, r, func(a, b uint8) uint8 {
		if b > a {
			return b
		}
		return a
	}, 0)
}

func erode(mask *models.SegmentedMask, r int) {
	sweep(mask, r, func(a, b uint8) uint8 {
		if b < a {
			return b
		}
		return a
	}, 255)
}

// sweep applies a separable square filter: a horizontal pass then a
// vertical pass, each reducing a window of 2r+1 pixels with op. The
// window is clipped at the borders; init is the identity of op.
func sweep(mask *models.SegmentedMask, r int, op func(a, b uint8) uint8, init uint8) {
	w, h := mask.Width, mask.Height
	tmp := make([]uint8, len(mask.Data))

	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			acc := init
			for k := max(0, x-r); k <= min(w-1, x+r); k++ {
				acc = op(acc, mask.Data[row+k])
			}
			tmp[row+x] = acc
		}
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			acc := init
			for k := max(0, y-r); k <= min(h-1, y+r); k++ {
				acc = op(acc, tmp[k*w+x])
			}
			mask.Data[y*w+x] = acc
		}
	}
}
