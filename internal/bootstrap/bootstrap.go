// Package bootstrap provides dependency initialization for the audiogram API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"

	"github.com/maauso/audiogram-api/internal/audio"
	"github.com/maauso/audiogram-api/internal/canvas"
	"github.com/maauso/audiogram-api/internal/config"
	"github.com/maauso/audiogram-api/internal/fetch"
	"github.com/maauso/audiogram-api/internal/media"
	"github.com/maauso/audiogram-api/internal/render"
	"github.com/maauso/audiogram-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Pipeline *render.Pipeline
	// Checks holds the startup result of each external tool lookup.
	Checks map[string]error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", store.TempDir()),
	)

	fetchOpts := []fetch.Option{
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.FetchTimeout}),
		fetch.WithMaxRetries(cfg.FetchMaxRetries),
		fetch.WithMaxBytes(cfg.FetchMaxBytes),
		fetch.WithLogger(logger),
	}
	objects, err := initObjectReader(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if objects != nil {
		fetchOpts = append(fetchOpts, fetch.WithObjectReader(objects))
	}
	fetcher := fetch.NewHTTPFetcher(fetchOpts...)

	compositor, err := canvas.NewCompositor(cfg.CompositionSpec(),
		canvas.WithMaxPixels(cfg.MaxImagePixels),
		canvas.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create compositor: %w", err)
	}

	prober := audio.NewFFprobe(cfg.FFprobePath, cfg.FFmpegPath)
	assembler := media.NewAssembler(compositor, prober, logger)
	encoder := media.NewFFmpegEncoder(cfg.FFmpegPath, prober, logger)

	pipeline, err := render.NewPipeline(
		store,
		fetcher,
		compositor,
		assembler,
		encoder,
		cfg.EncodingProfile(),
		render.WithRequestTimeout(cfg.RequestTimeout),
		render.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	return &Dependencies{
		Pipeline: pipeline,
		Checks:   CheckTools(logger, cfg.FFmpegPath, cfg.FFprobePath),
	}, nil
}

// CheckTools resolves each binary on PATH and logs the ones that are missing.
func CheckTools(logger *slog.Logger, binaries ...string) map[string]error {
	checks := make(map[string]error, len(binaries))
	for _, bin := range binaries {
		path, err := exec.LookPath(bin)
		checks[bin] = err
		if err != nil {
			logger.Warn("external tool not found",
				slog.String("tool", bin),
				slog.String("error", err.Error()),
			)
			continue
		}
		logger.Debug("external tool found",
			slog.String("tool", bin),
			slog.String("path", path),
		)
	}
	return checks
}

// SplitOrigins parses a comma separated ALLOWED_ORIGINS value.
func SplitOrigins(s string) []string {
	var origins []string
	for o := range strings.SplitSeq(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// initObjectReader creates the S3 reader for s3:// asset URLs when configured.
func initObjectReader(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.ObjectReader, error) {
	if !cfg.S3Enabled() {
		return nil, nil
	}

	reader, err := storage.NewS3Reader(ctx, storage.S3Config{
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 reader: %w", err)
	}
	logger.Info("S3 asset source configured",
		slog.String("region", cfg.S3Region),
		slog.String("endpoint", cfg.S3Endpoint),
	)
	return reader, nil
}
