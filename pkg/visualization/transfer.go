// Package visualization holds the contract between a built volume and a
// volumetric renderer, plus tools to inspect a volume as 2D sections.
//
// Transfer functions are always supplied by the caller; this package never
// picks a default window or palette.
package visualization

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"ximed/internal/models"
)

// ColorPoint maps a sample value to an RGB colour with channels in [0,1].
type ColorPoint struct {
	Value float64 `yaml:"value"`
	R     float64 `yaml:"r"`
	G     float64 `yaml:"g"`
	B     float64 `yaml:"b"`
}

// OpacityPoint maps a sample value to an opacity in [0,1].
type OpacityPoint struct {
	Value   float64 `yaml:"value"`
	Opacity float64 `yaml:"opacity"`
}

// TransferFunction is a pair of piecewise-linear colour and opacity ramps.
// Outside the first and last control points the end values are held.
type TransferFunction struct {
	Color   []ColorPoint   `yaml:"color"`
	Opacity []OpacityPoint `yaml:"opacity"`
}

// Validate checks that both ramps are non-empty, strictly ascending and
// inside [0,1].
func (tf TransferFunction) Validate() error {
	if len(tf.Color) == 0 {
		return fmt.Errorf("transfer function has no colour points")
	}
	if len(tf.Opacity) == 0 {
		return fmt.Errorf("transfer function has no opacity points")
	}
	for i, p := range tf.Color {
		if i > 0 && p.Value <= tf.Color[i-1].Value {
			return fmt.Errorf("colour point %d: value %v is not above %v", i, p.Value, tf.Color[i-1].Value)
		}
		for _, c := range []float64{p.R, p.G, p.B} {
			if c < 0 || c > 1 {
				return fmt.Errorf("colour point %d: channel %v outside [0,1]", i, c)
			}
		}
	}
	for i, p := range tf.Opacity {
		if i > 0 && p.Value <= tf.Opacity[i-1].Value {
			return fmt.Errorf("opacity point %d: value %v is not above %v", i, p.Value, tf.Opacity[i-1].Value)
		}
		if p.Opacity < 0 || p.Opacity > 1 {
			return fmt.Errorf("opacity point %d: opacity %v outside [0,1]", i, p.Opacity)
		}
	}
	return nil
}

// ColorAt evaluates the colour ramp at value.
func (tf TransferFunction) ColorAt(value float64) (r, g, b float64) {
	pts := tf.Color
	if len(pts) == 0 {
		return 0, 0, 0
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Value >= value })
	switch {
	case i == 0:
		return pts[0].R, pts[0].G, pts[0].B
	case i == len(pts):
		last := pts[len(pts)-1]
		return last.R, last.G, last.B
	}
	lo, hi := pts[i-1], pts[i]
	t := (value - lo.Value) / (hi.Value - lo.Value)
	return lerp(lo.R, hi.R, t), lerp(lo.G, hi.G, t), lerp(lo.B, hi.B, t)
}

// OpacityAt evaluates the opacity ramp at value.
func (tf TransferFunction) OpacityAt(value float64) float64 {
	pts := tf.Opacity
	if len(pts) == 0 {
		return 0
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Value >= value })
	switch {
	case i == 0:
		return pts[0].Opacity
	case i == len(pts):
		return pts[len(pts)-1].Opacity
	}
	lo, hi := pts[i-1], pts[i]
	return lerp(lo.Opacity, hi.Opacity, (value-lo.Value)/(hi.Value-lo.Value))
}

// LoadTransferFunction reads a YAML transfer function and validates it.
func LoadTransferFunction(path string) (TransferFunction, error) {
	var tf TransferFunction
	data, err := os.ReadFile(path)
	if err != nil {
		return tf, fmt.Errorf("error reading transfer function: %w", err)
	}
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return tf, fmt.Errorf("error parsing transfer function: %w", err)
	}
	if err := tf.Validate(); err != nil {
		return tf, fmt.Errorf("invalid transfer function %s: %w", path, err)
	}
	return tf, nil
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Renderer consumes a built volume. Implementations own the camera,
// interaction and output surface.
type Renderer interface {
	Render(ctx context.Context, vol *models.Volume, tf TransferFunction) error
}
