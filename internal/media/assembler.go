package media

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/audiogram-api/internal/canvas"
	"github.com/maauso/audiogram-api/internal/domain"
	"github.com/maauso/audiogram-api/internal/storage"
)

// Assembler pairs the composed frame with the audio timeline.
type Assembler struct {
	frames FrameWriter
	prober DurationProber
	logger *slog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(frames FrameWriter, prober DurationProber, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{frames: frames, prober: prober, logger: logger}
}

// Assemble writes frame into scope and computes how many copies of it the
// video needs to span the audio. Unreadable audio is reported as a
// DecodeError for "audio".
func (a *Assembler) Assemble(ctx context.Context, scope *storage.Scope, frame *canvas.Frame, audio storage.Asset, profile domain.EncodingProfile) (VisualTrack, error) {
	if err := profile.Validate(); err != nil {
		return VisualTrack{}, err
	}

	duration, err := a.prober.Duration(ctx, audio.Path)
	if err != nil {
		if ctx.Err() != nil {
			return VisualTrack{}, fmt.Errorf("probe audio: %w", ctx.Err())
		}
		return VisualTrack{}, &domain.DecodeError{Which: "audio", Err: err}
	}
	if duration <= 0 {
		return VisualTrack{}, &domain.DecodeError{Which: "audio", Err: fmt.Errorf("non-positive duration %.3f", duration)}
	}

	img, err := a.frames.WritePNG(ctx, scope, frame)
	if err != nil {
		return VisualTrack{}, fmt.Errorf("write frame: %w", err)
	}

	track := VisualTrack{
		FramePath:  img.Path,
		Duration:   duration,
		FrameRate:  profile.FrameRate,
		FrameCount: FrameCount(duration, profile.FrameRate),
	}

	a.logger.Debug("visual track assembled",
		slog.Float64("audio_duration", duration),
		slog.Int("frames", track.FrameCount),
		slog.Int("fps", track.FrameRate),
	)

	return track, nil
}
