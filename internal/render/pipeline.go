// Package render runs one audiogram render from asset references to a
// delivered video.
package render

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/audiogram-api/internal/canvas"
	"github.com/maauso/audiogram-api/internal/domain"
	"github.com/maauso/audiogram-api/internal/fetch"
	"github.com/maauso/audiogram-api/internal/media"
	"github.com/maauso/audiogram-api/internal/storage"
)

// DeliverFunc consumes the finished video. The reader is only valid for the
// duration of the call; the file is removed right after it returns.
type DeliverFunc func(ctx context.Context, artifact domain.VideoArtifact, r io.ReadSeeker) error

// ScopeProvider creates per-render working directories.
type ScopeProvider interface {
	NewScope(logger *slog.Logger) (*storage.Scope, error)
}

// Composer renders the canvas frame from the two image assets.
type Composer interface {
	Compose(ctx context.Context, background, foreground storage.Asset) (*canvas.Frame, error)
}

// Assembler turns a frame and the audio into a visual track.
type Assembler interface {
	Assemble(ctx context.Context, scope *storage.Scope, frame *canvas.Frame, audio storage.Asset, profile domain.EncodingProfile) (media.VisualTrack, error)
}

// Pipeline wires the stages of a render together. It holds no per-request
// state and is safe for concurrent use.
type Pipeline struct {
	scopes    ScopeProvider
	fetcher   fetch.Fetcher
	composer  Composer
	assembler Assembler
	encoder   media.Encoder
	profile   domain.EncodingProfile
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRequestTimeout bounds each Run. Zero disables the deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d >= 0 {
			p.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline creates a Pipeline producing videos with profile.
func NewPipeline(
	scopes ScopeProvider,
	fetcher fetch.Fetcher,
	composer Composer,
	assembler Assembler,
	encoder media.Encoder,
	profile domain.EncodingProfile,
	opts ...Option,
) (*Pipeline, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{
		scopes:    scopes,
		fetcher:   fetcher,
		composer:  composer,
		assembler: assembler,
		encoder:   encoder,
		profile:   profile,
		timeout:   5 * time.Minute,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Profile returns the encoding profile.
func (p *Pipeline) Profile() domain.EncodingProfile {
	return p.profile
}

// Run fetches assets, composes the frame, encodes the video and hands it
// to deliver. Every intermediate file is removed before Run returns,
// whatever the outcome. Errors are *Error.
func (p *Pipeline) Run(ctx context.Context, assets domain.AssetSet, deliver DeliverFunc) error {
	if err := assets.Validate(); err != nil {
		return &Error{Kind: KindValidation, Stage: StageValidate, Err: err}
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	logger := p.logger
	if id := domain.RequestIDFrom(ctx); id != "" {
		logger = logger.With(slog.String("request_id", id))
	}

	scope, err := p.scopes.NewScope(logger)
	if err != nil {
		return p.fail(ctx, StageFetch, fmt.Errorf("acquire scope: %w", err))
	}
	defer scope.Release(ctx)

	logger = logger.With(slog.String("scope_id", scope.ID()))
	start := time.Now()

	audio, foreground, background, err := p.fetchAll(ctx, scope, assets, logger)
	if err != nil {
		return p.fail(ctx, StageFetch, err)
	}

	logger.Debug("compose started")
	frame, err := p.composer.Compose(ctx, background, foreground)
	if err != nil {
		return p.fail(ctx, StageCompose, err)
	}

	logger.Debug("assemble started")
	track, err := p.assembler.Assemble(ctx, scope, frame, audio, p.profile)
	if err != nil {
		return p.fail(ctx, StageAssemble, err)
	}

	logger.Debug("encode started", slog.Int("frames", track.FrameCount))
	artifact, err := p.encoder.Encode(ctx, scope, track, audio, p.profile)
	if err != nil {
		return p.fail(ctx, StageEncode, err)
	}

	f, err := scope.Open(ctx, artifact.Path)
	if err != nil {
		return p.fail(ctx, StageDeliver, err)
	}
	defer func() { _ = f.Close() }()

	if err := deliver(ctx, artifact, f); err != nil {
		return p.fail(ctx, StageDeliver, err)
	}

	logger.Info("video rendered",
		slog.Float64("duration", artifact.Duration),
		slog.Int64("size", artifact.Size),
		slog.Duration("elapsed", time.Since(start)),
	)

	return nil
}

// fetchAll retrieves the three assets concurrently. The first failure
// cancels the others.
func (p *Pipeline) fetchAll(ctx context.Context, scope *storage.Scope, assets domain.AssetSet, logger *slog.Logger) (audio, foreground, background storage.Asset, err error) {
	refs := assets.Refs()
	fetched := make([]storage.Asset, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		g.Go(func() error {
			logger.Debug("fetch started", slog.String("kind", string(ref.Kind)))
			a, err := p.fetcher.Fetch(gctx, scope, ref)
			if err != nil {
				return err
			}
			logger.Debug("fetch finished",
				slog.String("kind", string(ref.Kind)),
				slog.Int64("size", a.Size),
			)
			fetched[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return storage.Asset{}, storage.Asset{}, storage.Asset{}, err
	}

	return fetched[0], fetched[1], fetched[2], nil
}

func (p *Pipeline) fail(ctx context.Context, stage Stage, err error) error {
	kind := classify(stage, err)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}
