// Package volume stacks the ordered slices of a series into a 3D scalar
// grid with per-axis spacing, ready to hand to a volumetric renderer.
package volume

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"ximed/internal/log"
	"ximed/internal/models"
)

// DefaultSpacing is used on any axis whose spacing cannot be derived.
const DefaultSpacing = 1.0

// Builder builds volumes. The zero value uses DefaultSpacing.
type Builder struct {
	DefaultSpacing float64
}

// Build runs a zero Builder.
func Build(index *models.SeriesIndex) (*models.Volume, error) {
	return (&Builder{}).Build(index)
}

// Build stacks the records of index in order. Either a complete volume or
// an error is returned; slices are copied so the volume shares no memory
// with the index.
func (b *Builder) Build(index *models.SeriesIndex) (*models.Volume, error) {
	if index == nil || len(index.Records) == 0 {
		return nil, &VolumeError{Reason: EmptySeries}
	}

	records := index.Records
	width, height := records[0].Columns(), records[0].Rows()
	for _, rec := range records {
		if rec.Buffer() == nil {
			return nil, &VolumeError{Reason: InconsistentSliceShape, FileName: rec.FileName(), Detail: "no pixel data"}
		}
		if rec.Columns() != width || rec.Rows() != height {
			return nil, &VolumeError{
				Reason:   InconsistentSliceShape,
				FileName: rec.FileName(),
				Detail:   fmt.Sprintf("slice is %dx%d, expected %dx%d", rec.Columns(), rec.Rows(), width, height),
			}
		}
	}

	def := b.DefaultSpacing
	if def <= 0 {
		def = DefaultSpacing
	}

	sliceSpacing, source := b.sliceSpacing(records, def)
	rowSpacing, colSpacing := pixelSpacing(records[0], def)

	slices := make([]*models.PixelBuffer, len(records))
	for i, rec := range records {
		slices[i] = rec.Buffer().Clone()
	}

	v := &models.Volume{
		ID:                 uuid.NewString(),
		Width:              width,
		Height:             height,
		Depth:              len(slices),
		Slices:             slices,
		Spacing:            models.Spacing{Row: rowSpacing, Column: colSpacing, Slice: sliceSpacing},
		SliceSpacingSource: source,
	}

	log.Infow("built volume",
		"id", v.ID,
		"dims", fmt.Sprintf("%dx%dx%d", v.Width, v.Height, v.Depth),
		"spacing", fmt.Sprintf("%g/%g/%g", rowSpacing, colSpacing, sliceSpacing),
		"sliceSpacingSource", source.String(),
	)
	return v, nil
}

// sliceSpacing prefers the mean gap between consecutive slice locations,
// then the first slice's thickness, then def.
func (b *Builder) sliceSpacing(records []*models.DicomRecord, def float64) (float64, models.SpacingSource) {
	if len(records) > 1 {
		locations := make([]float64, 0, len(records))
		for _, rec := range records {
			loc, ok := rec.Float(models.TagSliceLocation)
			if !ok {
				break
			}
			locations = append(locations, loc)
		}
		if len(locations) == len(records) {
			gaps := make([]float64, len(locations)-1)
			for i := 1; i < len(locations); i++ {
				gaps[i-1] = math.Abs(locations[i] - locations[i-1])
			}
			if mean := stat.Mean(gaps, nil); mean > 0 {
				if spread := floats.Max(gaps) - floats.Min(gaps); spread > 1e-3*mean {
					log.Warnw("slice locations are unevenly spaced, using the mean gap",
						"mean", mean, "min", floats.Min(gaps), "max", floats.Max(gaps))
				}
				return mean, models.SpacingFromSliceLocation
			}
		}
	}

	if thickness, ok := records[0].Float(models.TagSliceThickness); ok && thickness > 0 {
		return thickness, models.SpacingFromSliceThickness
	}

	log.Warnw("no slice location or thickness, slice spacing is approximated",
		"spacing", def, "file", records[0].FileName())
	return def, models.SpacingDefault
}

// pixelSpacing reads PixelSpacing as (row, column).
func pixelSpacing(rec *models.DicomRecord, def float64) (row, col float64) {
	row, col = def, def
	v, ok := rec.Tag(models.TagPixelSpacing)
	if !ok {
		return row, col
	}
	if r, ok := v.FloatAt(0); ok && r > 0 {
		row = r
		col = r
	}
	if c, ok := v.FloatAt(1); ok && c > 0 {
		col = c
	}
	return row, col
}

// Stats summarizes the rescaled voxel values of a volume.
type Stats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// ComputeStats scans every voxel.
func ComputeStats(v *models.Volume) Stats {
	scalars := v.Scalars()
	if len(scalars) == 0 {
		return Stats{}
	}
	mean, std := stat.MeanStdDev(scalars, nil)
	return Stats{
		Min:    floats.Min(scalars),
		Max:    floats.Max(scalars),
		Mean:   mean,
		StdDev: std,
	}
}
