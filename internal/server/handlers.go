package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/audiogram-api/internal/domain"
	"github.com/maauso/audiogram-api/internal/render"
)

// maxBodyBytes caps the JSON request body.
const maxBodyBytes = 1 << 20

// Renderer produces a video from asset references and hands it to deliver.
type Renderer interface {
	Run(ctx context.Context, assets domain.AssetSet, deliver render.DeliverFunc) error
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	renderer  Renderer
	validator *validator.Validate
	logger    *slog.Logger
	checks    map[string]error
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithDependencyChecks reports the given startup checks on /health.
// A non-nil error marks the service as degraded.
func WithDependencyChecks(checks map[string]error) HandlerOption {
	return func(h *Handlers) {
		h.checks = checks
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(renderer Renderer, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(jsonFieldName)

	h := &Handlers{
		renderer:  renderer,
		validator: v,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if len(h.checks) == 0 {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	for name, err := range h.checks {
		if err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// CreateVideo handles POST /create-video requests. The rendered video is
// streamed back as the response body.
func (h *Handlers) CreateVideo(w http.ResponseWriter, r *http.Request) {
	var req CreateVideoRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	req.AudioURL = strings.TrimSpace(req.AudioURL)
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	req.BgURL = strings.TrimSpace(req.BgURL)

	if err := h.validator.Struct(req); err != nil {
		msg := validationMessage(err)
		h.logger.Warn("request validation failed",
			slog.String("error", msg),
		)
		writeError(w, http.StatusBadRequest, msg, "VALIDATION_ERROR")
		return
	}

	assets := domain.NewAssetSet(req.AudioURL, req.ImageURL, req.BgURL)

	streamed := false
	err := h.renderer.Run(r.Context(), assets, func(_ context.Context, artifact domain.VideoArtifact, body io.ReadSeeker) error {
		w.Header().Set("Content-Type", artifact.ContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.FileName))
		w.Header().Set("Content-Length", strconv.FormatInt(artifact.Size, 10))
		w.WriteHeader(http.StatusOK)
		streamed = true

		if _, err := io.Copy(w, body); err != nil {
			return fmt.Errorf("stream video: %w", err)
		}
		return nil
	})
	if err == nil {
		return
	}

	if streamed {
		// Headers are gone; the client sees a truncated body.
		h.logger.Warn("video stream interrupted",
			slog.String("request_id", domain.RequestIDFrom(r.Context())),
			slog.String("error", err.Error()),
		)
		return
	}

	status, code, msg := errorResponse(err)
	h.logger.Error("video render failed",
		slog.String("request_id", domain.RequestIDFrom(r.Context())),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
	writeError(w, status, msg, code)
}

// errorResponse maps a pipeline error to an HTTP status, code and message.
func errorResponse(err error) (int, string, string) {
	switch render.KindOf(err) {
	case render.KindValidation:
		var vErr *domain.ValidationError
		if errors.As(err, &vErr) {
			return http.StatusBadRequest, "VALIDATION_ERROR", vErr.Error()
		}
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case render.KindFetch:
		return http.StatusInternalServerError, "FETCH_FAILED", "failed to fetch asset: " + causeOf(err)
	case render.KindDecode:
		return http.StatusInternalServerError, "DECODE_FAILED", "failed to decode asset: " + causeOf(err)
	case render.KindEncoding:
		return http.StatusInternalServerError, "ENCODING_FAILED", "failed to encode video"
	case render.KindTimeout:
		return http.StatusGatewayTimeout, "TIMEOUT", "video rendering timed out"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}

// causeOf returns the domain-level message without the pipeline stage prefix.
func causeOf(err error) string {
	var pErr *render.Error
	if errors.As(err, &pErr) {
		return pErr.Err.Error()
	}
	return err.Error()
}

// validationMessage turns validator errors into "missing parameter: <field>"
// style messages, reporting the first failing field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return (&domain.ValidationError{Field: fe.Field(), Message: "missing parameter"}).Error()
	case "url":
		return (&domain.ValidationError{Field: fe.Field(), Message: "invalid URL"}).Error()
	default:
		return (&domain.ValidationError{Field: fe.Field(), Message: "invalid parameter"}).Error()
	}
}

// jsonFieldName reports struct fields by their JSON name in validation errors.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
