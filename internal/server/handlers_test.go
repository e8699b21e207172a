package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/audiogram-api/internal/domain"
	"github.com/maauso/audiogram-api/internal/render"
)

// mockRenderer implements Renderer for testing.
type mockRenderer struct {
	mock.Mock
}

func (m *mockRenderer) Run(ctx context.Context, assets domain.AssetSet, deliver render.DeliverFunc) error {
	args := m.Called(ctx, assets, deliver)
	return args.Error(0)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandlers(t *testing.T, opts ...HandlerOption) (*Handlers, *mockRenderer) {
	t.Helper()
	r := new(mockRenderer)
	return NewHandlers(r, testLogger(), opts...), r
}

func postJSON(t *testing.T, h http.HandlerFunc, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(http.MethodPost, "/create-video", reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func validRequest() CreateVideoRequest {
	return CreateVideoRequest{
		AudioURL: "https://cdn.example.com/voice.mp3",
		ImageURL: "https://cdn.example.com/cover.png",
		BgURL:    "https://cdn.example.com/bg.jpg",
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	err := json.NewDecoder(rec.Body).Decode(&resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestHealth_Degraded(t *testing.T) {
	h, _ := newTestHandlers(t, WithDependencyChecks(map[string]error{
		"ffmpeg":  nil,
		"ffprobe": errors.New(`exec: "ffprobe": executable file not found in $PATH`),
	}))

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "ok", resp.Checks["ffmpeg"])
	assert.Contains(t, resp.Checks["ffprobe"], "not found")
}

func TestCreateVideo_Success(t *testing.T) {
	h, renderer := newTestHandlers(t)

	video := []byte("\x00\x00\x00\x18ftypmp42 fake video")
	want := domain.NewAssetSet(validRequest().AudioURL, validRequest().ImageURL, validRequest().BgURL)

	renderer.On("Run", mock.Anything, want, mock.Anything).
		Run(func(args mock.Arguments) {
			deliver := args.Get(2).(render.DeliverFunc)
			artifact := domain.VideoArtifact{
				Path:        "/tmp/scope/output.mp4",
				Size:        int64(len(video)),
				Duration:    2.0,
				ContentType: "video/mp4",
				FileName:    "output.mp4",
			}
			require.NoError(t, deliver(context.Background(), artifact, bytes.NewReader(video)))
		}).
		Return(nil)

	rec := postJSON(t, h.CreateVideo, validRequest())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="output.mp4"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, strconv.Itoa(len(video)), rec.Header().Get("Content-Length"))
	assert.Equal(t, video, rec.Body.Bytes())
	renderer.AssertExpectations(t)
}

func TestCreateVideo_TrimsURLs(t *testing.T) {
	h, renderer := newTestHandlers(t)

	req := validRequest()
	req.AudioURL = "  " + req.AudioURL + "\n"

	renderer.On("Run", mock.Anything, mock.MatchedBy(func(a domain.AssetSet) bool {
		return a.Audio.URL == "https://cdn.example.com/voice.mp3"
	}), mock.Anything).Return(nil)

	rec := postJSON(t, h.CreateVideo, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	renderer.AssertExpectations(t)
}

func TestCreateVideo_InvalidJSON(t *testing.T) {
	h, renderer := newTestHandlers(t)

	rec := postJSON(t, h.CreateVideo, "invalid json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_JSON", decodeError(t, rec).Code)
	renderer.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateVideo_MissingParameter(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(r *CreateVideoRequest)
		wantMsg string
	}{
		{"missing audio_url", func(r *CreateVideoRequest) { r.AudioURL = "" }, "missing parameter: audio_url"},
		{"missing image_url", func(r *CreateVideoRequest) { r.ImageURL = "" }, "missing parameter: image_url"},
		{"blank bg_url", func(r *CreateVideoRequest) { r.BgURL = "   " }, "missing parameter: bg_url"},
		{"invalid image_url", func(r *CreateVideoRequest) { r.ImageURL = "not a url" }, "invalid URL: image_url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, renderer := newTestHandlers(t)

			req := validRequest()
			tt.modify(&req)
			rec := postJSON(t, h.CreateVideo, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, "VALIDATION_ERROR", resp.Code)
			assert.Equal(t, tt.wantMsg, resp.Error)
			renderer.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateVideo_EmptyBody(t *testing.T) {
	h, _ := newTestHandlers(t)

	rec := postJSON(t, h.CreateVideo, "{}")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing parameter: audio_url", decodeError(t, rec).Error)
}

func TestCreateVideo_RenderErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name: "fetch failure",
			err: &render.Error{Kind: render.KindFetch, Stage: render.StageFetch, Err: &domain.FetchError{
				URL: "https://cdn.example.com/cover.png", StatusCode: 404, Err: errors.New("unexpected HTTP status 404 Not Found"),
			}},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "FETCH_FAILED",
			wantMsg:    "failed to fetch asset: fetch https://cdn.example.com/cover.png: status 404",
		},
		{
			name: "decode failure",
			err: &render.Error{Kind: render.KindDecode, Stage: render.StageCompose, Err: &domain.DecodeError{
				Which: "foreground", Err: errors.New("image: unknown format"),
			}},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "DECODE_FAILED",
			wantMsg:    "decode foreground",
		},
		{
			name:       "encoding failure",
			err:        &render.Error{Kind: render.KindEncoding, Stage: render.StageEncode, Err: errors.New("exit status 1")},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "ENCODING_FAILED",
			wantMsg:    "failed to encode video",
		},
		{
			name:       "timeout",
			err:        &render.Error{Kind: render.KindTimeout, Stage: render.StageEncode, Err: context.DeadlineExceeded},
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   "TIMEOUT",
			wantMsg:    "timed out",
		},
		{
			name:       "validation from renderer",
			err:        &render.Error{Kind: render.KindValidation, Stage: render.StageValidate, Err: &domain.ValidationError{Field: "bg_url", Message: "missing parameter"}},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
			wantMsg:    "missing parameter: bg_url",
		},
		{
			name:       "untyped error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, renderer := newTestHandlers(t)
			renderer.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(tt.err)

			rec := postJSON(t, h.CreateVideo, validRequest())

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Contains(t, resp.Error, tt.wantMsg)
		})
	}
}

func TestCreateVideo_StreamInterrupted(t *testing.T) {
	h, renderer := newTestHandlers(t)

	renderer.On("Run", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			deliver := args.Get(2).(render.DeliverFunc)
			_ = deliver(context.Background(), domain.VideoArtifact{ContentType: "video/mp4", FileName: "output.mp4", Size: 3}, bytes.NewReader([]byte("abc")))
		}).
		Return(&render.Error{Kind: render.KindEncoding, Stage: render.StageDeliver, Err: errors.New("broken pipe")})

	rec := postJSON(t, h.CreateVideo, validRequest())

	// Status was already sent; no JSON error is appended to the body.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", rec.Body.String())
}

func TestRouter_Integration(t *testing.T) {
	h, renderer := newTestHandlers(t)
	renderer.On("Run", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	router := NewRouter(h, testLogger(), DefaultConfig())

	// Test health endpoint
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/create-video", "/videos"} {
		bodyJSON, _ := json.Marshal(validRequest())
		req = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(bodyJSON))
		req.Header.Set("Content-Type", "application/json")
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	// Wrong method
	req = httptest.NewRequest(http.MethodGet, "/create-video", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	renderer.AssertNumberOfCalls(t, "Run", 2)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = domain.RequestIDFrom(r.Context())
	}))

	t.Run("generates id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Len(t, seen, 36)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagates caller id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
	})
}

func TestCORSMiddleware(t *testing.T) {
	h, _ := newTestHandlers(t)

	cfg := Config{AllowedOrigins: []string{"https://example.com"}}
	router := NewRouter(h, testLogger(), cfg)

	// Test with allowed origin
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "https://example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	// Disallowed origin gets no CORS headers
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	// Test OPTIONS preflight
	req = httptest.NewRequest(http.MethodOptions, "/create-video", nil)
	req.Header.Set("Origin", "https://example.com")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	// Create a handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	handler := RecoveryMiddleware(testLogger())(panicHandler)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()

	// Should not panic
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeError(t, rec).Code)
}
