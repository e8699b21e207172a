package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"github.com/maauso/audiogram-api/internal/domain"
	"github.com/maauso/audiogram-api/internal/storage"
)

// Static errors for media operations.
var (
	// ErrEmptyOutput is returned when ffmpeg exits cleanly but writes nothing.
	ErrEmptyOutput = errors.New("ffmpeg produced an empty output")
	// ErrInvalidTrack is returned when a visual track cannot be encoded.
	ErrInvalidTrack = errors.New("invalid visual track")
)

// FFmpegEncoder implements Encoder using the ffmpeg CLI.
type FFmpegEncoder struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	prober     DurationProber
	logger     *slog.Logger
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
// prober measures the finished file.
func NewFFmpegEncoder(ffmpegPath string, prober DurationProber, logger *slog.Logger) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegEncoder{ffmpegPath: ffmpegPath, prober: prober, logger: logger}
}

// Verify interface implementation at compile time.
var _ Encoder = (*FFmpegEncoder)(nil)

// Encode renders track with audio into "output.<ext>" inside scope.
// All failures are returned as *domain.EncodingError.
func (e *FFmpegEncoder) Encode(ctx context.Context, scope *storage.Scope, track VisualTrack, audio storage.Asset, profile domain.EncodingProfile) (domain.VideoArtifact, error) {
	if err := profile.Validate(); err != nil {
		return domain.VideoArtifact{}, &domain.EncodingError{Err: err}
	}
	if track.FramePath == "" || track.FrameCount <= 0 {
		return domain.VideoArtifact{}, &domain.EncodingError{Err: fmt.Errorf("%w: frame=%q count=%d", ErrInvalidTrack, track.FramePath, track.FrameCount)}
	}

	fileName := "output." + profile.FileExt()
	out, err := scope.Reserve(fileName)
	if err != nil {
		return domain.VideoArtifact{}, &domain.EncodingError{Err: err}
	}

	if err := e.runFFmpeg(ctx, EncodeArgs(track, audio.Path, out, profile)); err != nil {
		return domain.VideoArtifact{}, &domain.EncodingError{Err: err}
	}

	info, err := os.Stat(out)
	if err != nil {
		return domain.VideoArtifact{}, &domain.EncodingError{Err: fmt.Errorf("stat output: %w", err)}
	}
	if info.Size() == 0 {
		return domain.VideoArtifact{}, &domain.EncodingError{Err: ErrEmptyOutput}
	}

	duration := track.VideoDuration()
	if e.prober != nil {
		d, err := e.prober.Duration(ctx, out)
		if err != nil {
			return domain.VideoArtifact{}, &domain.EncodingError{Err: fmt.Errorf("probe output: %w", err)}
		}
		duration = d
	}

	e.logger.Debug("video encoded",
		slog.String("file", fileName),
		slog.Int64("size", info.Size()),
		slog.Float64("duration", duration),
	)

	return domain.VideoArtifact{
		Path:        out,
		Size:        info.Size(),
		Duration:    duration,
		ContentType: profile.ContentType(),
		FileName:    fileName,
	}, nil
}

// EncodeArgs builds the ffmpeg arguments that loop the still frame for
// track.FrameCount frames and mux it with the first audio stream.
func EncodeArgs(track VisualTrack, audioPath, output string, profile domain.EncodingProfile) []string {
	fps := strconv.Itoa(profile.FrameRate)

	args := []string{
		"-y", // Overwrite output file without asking
		"-hide_banner",
		"-loglevel", "error",
		"-loop", "1", // Loop the still image
		"-framerate", fps,
		"-i", track.FramePath,
		"-i", audioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-frames:v", strconv.Itoa(track.FrameCount), // Bounds the looped input
		"-c:v", profile.VideoCodec,
	}
	if profile.Preset != "" {
		args = append(args, "-preset", profile.Preset)
	}
	if profile.VideoCodec == "libx264" {
		args = append(args, "-tune", "stillimage")
	}
	if profile.PixelFormat != "" {
		args = append(args, "-pix_fmt", profile.PixelFormat)
	}
	args = append(args,
		"-r", fps,
		"-c:a", profile.AudioCodec,
	)
	if profile.AudioBitrate != "" && profile.AudioCodec != "copy" {
		args = append(args, "-b:a", profile.AudioBitrate)
	}
	container := domain.NormalizeContainer(profile.Container)
	if container == "mp4" || container == "mov" {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args, "-f", container, output)

	return args
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (e *FFmpegEncoder) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
