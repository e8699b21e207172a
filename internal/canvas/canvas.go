// Package canvas composes the background and foreground images onto the
// fixed-size frame that every video frame shows.
package canvas

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"
	"os"

	"github.com/disintegration/imaging"
	// imaging registers png, jpeg, gif, bmp and tiff; webp is added here.
	_ "golang.org/x/image/webp"

	"github.com/maauso/audiogram-api/internal/domain"
	"github.com/maauso/audiogram-api/internal/storage"
)

// ErrImageTooLarge is returned when an image exceeds the pixel limit.
var ErrImageTooLarge = errors.New("image exceeds pixel limit")

// Frame is the single rendered image shown for the whole video.
type Frame struct {
	Image *image.NRGBA
	// Width and Height always equal the canvas dimensions.
	Width  int
	Height int
	// Foreground is where the foreground layer landed on the canvas.
	Foreground image.Rectangle
}

// Compositor layers a foreground image over a background on a fixed canvas.
type Compositor struct {
	spec      domain.CompositionSpec
	maxPixels int
	logger    *slog.Logger
}

// Option configures a Compositor.
type Option func(*Compositor)

// WithMaxPixels rejects images with more than n pixels before decoding them.
// Zero disables the check.
func WithMaxPixels(n int) Option {
	return func(c *Compositor) {
		c.maxPixels = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Compositor) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCompositor creates a compositor for spec.
func NewCompositor(spec domain.CompositionSpec, opts ...Option) (*Compositor, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	c := &Compositor{
		spec:      spec,
		maxPixels: 50_000_000,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Spec returns the composition spec.
func (c *Compositor) Spec() domain.CompositionSpec {
	return c.spec
}

// Compose decodes both assets and renders the canvas frame.
// Decoding failures are *domain.DecodeError.
func (c *Compositor) Compose(ctx context.Context, background, foreground storage.Asset) (*Frame, error) {
	bg, err := c.decode(background.Path)
	if err != nil {
		return nil, &domain.DecodeError{Which: string(domain.AssetBackground), Err: err}
	}
	fg, err := c.decode(foreground.Path)
	if err != nil {
		return nil, &domain.DecodeError{Which: string(domain.AssetForeground), Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compose cancelled: %w", err)
	}

	return c.ComposeImages(bg, fg), nil
}

// ComposeImages renders already decoded images onto the canvas.
func (c *Compositor) ComposeImages(bg, fg image.Image) *Frame {
	w, h := c.spec.CanvasWidth, c.spec.CanvasHeight

	// Fill: the background's aspect ratio is discarded.
	base := imaging.Resize(bg, w, h, imaging.Lanczos)

	fw, fh := ForegroundSize(c.spec, fg.Bounds().Dx(), fg.Bounds().Dy())
	layer := fg
	if fw != fg.Bounds().Dx() || fh != fg.Bounds().Dy() {
		layer = imaging.Resize(fg, fw, fh, imaging.Lanczos)
	}

	x, y := CenterOffset(w, h, fw, fh)
	out := imaging.Overlay(base, layer, image.Pt(x, y), 1.0)

	c.logger.Debug("frame composed",
		slog.Int("canvas_width", w),
		slog.Int("canvas_height", h),
		slog.Int("fg_width", fw),
		slog.Int("fg_height", fh),
		slog.Int("offset_x", x),
		slog.Int("offset_y", y),
	)

	return &Frame{
		Image:      out,
		Width:      out.Bounds().Dx(),
		Height:     out.Bounds().Dy(),
		Foreground: image.Rect(x, y, x+fw, y+fh),
	}
}

// WritePNG encodes the frame into a new PNG file owned by scope.
func (c *Compositor) WritePNG(ctx context.Context, scope *storage.Scope, frame *Frame) (storage.Asset, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, frame.Image); err != nil {
		return storage.Asset{}, fmt.Errorf("encode frame: %w", err)
	}
	asset, err := scope.Save(ctx, domain.AssetFrame, ".png", &buf)
	if err != nil {
		return storage.Asset{}, fmt.Errorf("save frame: %w", err)
	}
	return asset, nil
}

// decode checks the image header against the pixel limit, then decodes it.
func (c *Compositor) decode(path string) (image.Image, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the render scope
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("read image header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("image has no pixels: %dx%d", cfg.Width, cfg.Height)
	}
	if c.maxPixels > 0 && cfg.Width*cfg.Height > c.maxPixels {
		return nil, fmt.Errorf("%w: %dx%d %s", ErrImageTooLarge, cfg.Width, cfg.Height, format)
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("rewind image: %w", err)
	}
	// AutoOrientation applies EXIF rotation so phone photos are upright.
	img, err := imaging.Decode(f, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %s image: %w", format, err)
	}
	return img, nil
}

// ForegroundSize returns the foreground layer size for a w x h source
// under the composition's scaling policy. Aspect ratio is preserved.
func ForegroundSize(spec domain.CompositionSpec, w, h int) (int, int) {
	p := spec.Foreground
	switch p.Mode {
	case domain.ScaleBox:
		if w <= p.MaxWidth && h <= p.MaxHeight {
			return w, h
		}
		// Same ratio selection as imaging.Fit.
		srcAspect := float64(w) / float64(h)
		maxAspect := float64(p.MaxWidth) / float64(p.MaxHeight)
		if srcAspect > maxAspect {
			return p.MaxWidth, scaleSide(h, p.MaxWidth, w)
		}
		return scaleSide(w, p.MaxHeight, h), p.MaxHeight
	default:
		tw := int(float64(spec.CanvasWidth) * p.Fraction)
		if tw < 1 {
			tw = 1
		}
		return tw, scaleSide(h, tw, w)
	}
}

// scaleSide returns side * num / den rounded, never below 1.
func scaleSide(side, num, den int) int {
	v := int(math.Floor(float64(side)*float64(num)/float64(den) + 0.5))
	if v < 1 {
		return 1
	}
	return v
}

// CenterOffset returns the top-left point that centers a fw x fh layer on
// a w x h canvas. Halves are floored, also when the layer is larger than
// the canvas and the offset goes negative.
func CenterOffset(w, h, fw, fh int) (int, int) {
	return floorHalf(w - fw), floorHalf(h - fh)
}

func floorHalf(n int) int {
	if n < 0 && n%2 != 0 {
		return n/2 - 1
	}
	return n / 2
}
