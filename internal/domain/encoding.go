package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProfile is returned when an EncodingProfile cannot be used.
var ErrInvalidProfile = errors.New("invalid encoding profile")

// containerTypes maps supported container formats to their content types.
var containerTypes = map[string]string{
	"mp4":      "video/mp4",
	"mov":      "video/quicktime",
	"matroska": "video/x-matroska",
	"webm":     "video/webm",
}

// containerExt maps container formats to file extensions.
var containerExt = map[string]string{
	"mp4":      "mp4",
	"mov":      "mov",
	"matroska": "mkv",
	"webm":     "webm",
}

// EncodingProfile holds the output encoding parameters.
type EncodingProfile struct {
	FrameRate    int
	VideoCodec   string
	AudioCodec   string
	AudioBitrate string
	Container    string
	PixelFormat  string
	Preset       string
}

// DefaultEncodingProfile returns 24 fps H.264 + AAC in MP4.
func DefaultEncodingProfile() EncodingProfile {
	return EncodingProfile{
		FrameRate:    24,
		VideoCodec:   "libx264",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		Container:    "mp4",
		PixelFormat:  "yuv420p",
		Preset:       "medium",
	}
}

// NormalizeContainer maps aliases such as "mkv" onto the ffmpeg muxer name.
func NormalizeContainer(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if c == "mkv" {
		return "matroska"
	}
	return c
}

// Validate checks the profile describes a supported encoding.
func (p EncodingProfile) Validate() error {
	if p.FrameRate <= 0 {
		return fmt.Errorf("%w: frame rate must be positive, got %d", ErrInvalidProfile, p.FrameRate)
	}
	if p.VideoCodec == "" || p.AudioCodec == "" {
		return fmt.Errorf("%w: video and audio codecs are required", ErrInvalidProfile)
	}
	if _, ok := containerTypes[NormalizeContainer(p.Container)]; !ok {
		return fmt.Errorf("%w: unsupported container %q", ErrInvalidProfile, p.Container)
	}
	return nil
}

// ContentType returns the MIME type of the container.
func (p EncodingProfile) ContentType() string {
	if ct, ok := containerTypes[NormalizeContainer(p.Container)]; ok {
		return ct
	}
	return "application/octet-stream"
}

// FileExt returns the file extension, without dot, for the container.
func (p EncodingProfile) FileExt() string {
	if ext, ok := containerExt[NormalizeContainer(p.Container)]; ok {
		return ext
	}
	return "bin"
}

// FrameInterval returns the duration of one frame in seconds.
func (p EncodingProfile) FrameInterval() float64 {
	return 1 / float64(p.FrameRate)
}

// VideoArtifact is the final deliverable of one render.
// Path is owned by the render's scope and disappears when the scope is released.
type VideoArtifact struct {
	Path        string
	Size        int64
	Duration    float64
	ContentType string
	FileName    string
}
