// Package audio inspects media files with ffprobe. The pipeline only needs
// the duration of the soundtrack; decoding the samples is left to ffmpeg.
package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Static errors for probing.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrNoAudioStream is returned when a file has no audio stream.
	ErrNoAudioStream = errors.New("no audio stream found")
	// ErrNoDuration is returned when no positive duration can be determined.
	ErrNoDuration = errors.New("could not determine duration")
)

// Info describes a probed media file.
type Info struct {
	// Duration is the container duration in seconds.
	Duration   float64
	FormatName string
	HasAudio   bool
	HasVideo   bool
	AudioCodec string
	SampleRate int
	Channels   int
}

// Prober reads media metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FFprobe implements Prober using the ffprobe CLI, with ffmpeg's banner as a
// fallback source for the duration.
type FFprobe struct {
	ffprobePath string
	ffmpegPath  string
}

// NewFFprobe creates a new FFprobe.
// Empty paths default to "ffprobe" and "ffmpeg" found via PATH.
func NewFFprobe(ffprobePath, ffmpegPath string) *FFprobe {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &FFprobe{ffprobePath: ffprobePath, ffmpegPath: ffmpegPath}
}

// Verify interface implementation at compile time.
var _ Prober = (*FFprobe)(nil)

// Probe returns stream and duration information for path.
func (p *FFprobe) Probe(ctx context.Context, path string) (Info, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Info{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Info{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, strings.TrimSpace(stderr.String()))
	}

	info, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return Info{}, err
	}

	if info.Duration <= 0 {
		d, err := p.bannerDuration(ctx, path)
		if err != nil {
			return Info{}, err
		}
		info.Duration = d
	}

	return info, nil
}

// Duration returns the duration of the audio in path, failing when the
// file carries no audio stream.
func Duration(ctx context.Context, p Prober, path string) (float64, error) {
	info, err := p.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	if !info.HasAudio {
		return 0, ErrNoAudioStream
	}
	return info.Duration, nil
}

// bannerDuration reads "Duration: HH:MM:SS.xx" from ffmpeg's stderr. Some
// raw streams report no format duration to ffprobe but ffmpeg estimates one.
func (p *FFprobe) bannerDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath,
		"-hide_banner",
		"-i", path,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// ffmpeg exits non-zero without an output file; only stderr matters
	_ = cmd.Run()
	if ctx.Err() != nil {
		return 0, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}

	return parseBannerDuration(stderr.String())
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

type ffprobeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// parseProbeOutput converts ffprobe JSON into Info. The format duration is
// preferred; the audio stream duration is used when the format has none.
func parseProbeOutput(data []byte) (Info, error) {
	var ff ffprobeOutput
	if err := json.Unmarshal(data, &ff); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := Info{FormatName: ff.Format.FormatName}
	if d, err := strconv.ParseFloat(ff.Format.Duration, 64); err == nil {
		info.Duration = d
	}

	for _, s := range ff.Streams {
		switch s.CodecType {
		case "audio":
			if info.HasAudio {
				continue
			}
			info.HasAudio = true
			info.AudioCodec = s.CodecName
			info.Channels = s.Channels
			info.SampleRate, _ = strconv.Atoi(s.SampleRate)
			if info.Duration <= 0 {
				if d, err := strconv.ParseFloat(s.Duration, 64); err == nil {
					info.Duration = d
				}
			}
		case "video":
			info.HasVideo = true
		}
	}

	return info, nil
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// parseBannerDuration parses the first "Duration: HH:MM:SS.frac" line.
func parseBannerDuration(output string) (float64, error) {
	matches := durationRe.FindStringSubmatch(output)
	if len(matches) < 5 {
		return 0, ErrNoDuration
	}

	hours, _ := strconv.ParseFloat(matches[1], 64)
	minutes, _ := strconv.ParseFloat(matches[2], 64)
	seconds, _ := strconv.ParseFloat(matches[3], 64)
	frac, _ := strconv.ParseFloat("0."+matches[4], 64)

	d := hours*3600 + minutes*60 + seconds + frac
	if d <= 0 {
		return 0, ErrNoDuration
	}
	return d, nil
}

// Duration returns the audio duration of path. See the package-level Duration.
func (p *FFprobe) Duration(ctx context.Context, path string) (float64, error) {
	return Duration(ctx, p, path)
}
