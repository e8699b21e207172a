package domain

import (
	"errors"
	"fmt"
)

// ScalingMode selects how the foreground image is sized on the canvas.
type ScalingMode string

const (
	// ScaleFraction scales the foreground to a fixed fraction of the canvas width.
	ScaleFraction ScalingMode = "fraction"
	// ScaleBox bounds the foreground within a maximum box, downscaling only.
	ScaleBox ScalingMode = "box"
)

// Static errors for layout configuration.
var (
	// ErrInvalidCanvas is returned when the canvas dimensions are not positive.
	ErrInvalidCanvas = errors.New("invalid canvas: width and height must be positive")
	// ErrInvalidScaling is returned when the foreground scaling policy is unusable.
	ErrInvalidScaling = errors.New("invalid foreground scaling policy")
)

// ScalingPolicy describes the foreground sizing rule.
type ScalingPolicy struct {
	Mode ScalingMode
	// Fraction of the canvas width used in ScaleFraction mode, in (0, 1].
	Fraction float64
	// MaxWidth and MaxHeight bound the foreground in ScaleBox mode.
	MaxWidth  int
	MaxHeight int
}

// CompositionSpec is the fixed layout policy for the canvas.
// The foreground is always anchored at the canvas center.
type CompositionSpec struct {
	CanvasWidth  int
	CanvasHeight int
	Foreground   ScalingPolicy
}

// DefaultCompositionSpec returns a 1080x1080 canvas with the foreground at 70% of its width.
func DefaultCompositionSpec() CompositionSpec {
	return CompositionSpec{
		CanvasWidth:  1080,
		CanvasHeight: 1080,
		Foreground: ScalingPolicy{
			Mode:      ScaleFraction,
			Fraction:  0.7,
			MaxWidth:  800,
			MaxHeight: 800,
		},
	}
}

// Validate checks the layout can produce a frame.
func (s CompositionSpec) Validate() error {
	if s.CanvasWidth <= 0 || s.CanvasHeight <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidCanvas, s.CanvasWidth, s.CanvasHeight)
	}
	switch s.Foreground.Mode {
	case ScaleFraction:
		if s.Foreground.Fraction <= 0 || s.Foreground.Fraction > 1 {
			return fmt.Errorf("%w: fraction %.3f not in (0, 1]", ErrInvalidScaling, s.Foreground.Fraction)
		}
	case ScaleBox:
		if s.Foreground.MaxWidth <= 0 || s.Foreground.MaxHeight <= 0 {
			return fmt.Errorf("%w: box %dx%d", ErrInvalidScaling, s.Foreground.MaxWidth, s.Foreground.MaxHeight)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidScaling, s.Foreground.Mode)
	}
	return nil
}
