// Package media turns a composed frame and an audio track into a video file.
package media

import (
	"context"
	"math"

	"github.com/maauso/audiogram-api/internal/canvas"
	"github.com/maauso/audiogram-api/internal/domain"
	"github.com/maauso/audiogram-api/internal/storage"
)

// VisualTrack instructs the encoder to show one still frame for the
// whole soundtrack.
type VisualTrack struct {
	FramePath string
	// Duration is the audio duration in seconds.
	Duration   float64
	FrameRate  int
	FrameCount int
}

// VideoDuration returns the length of the video stream in seconds.
func (t VisualTrack) VideoDuration() float64 {
	if t.FrameRate <= 0 {
		return 0
	}
	return float64(t.FrameCount) / float64(t.FrameRate)
}

// DurationProber reports the audio duration of a media file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// FrameWriter persists a composed frame as an image file.
type FrameWriter interface {
	WritePNG(ctx context.Context, scope *storage.Scope, frame *canvas.Frame) (storage.Asset, error)
}

// Encoder muxes a visual track and an audio file into a container.
type Encoder interface {
	Encode(ctx context.Context, scope *storage.Scope, track VisualTrack, audio storage.Asset, profile domain.EncodingProfile) (domain.VideoArtifact, error)
}

// FrameCount returns the number of frames needed to cover duration seconds
// at fps. The video is never shorter than the audio and at most one frame
// longer.
func FrameCount(duration float64, fps int) int {
	if fps <= 0 || duration <= 0 {
		return 1
	}
	// Tolerate float noise such as 2.0000000001 * 24.
	n := int(math.Ceil(duration*float64(fps) - 1e-9))
	return max(n, 1)
}
