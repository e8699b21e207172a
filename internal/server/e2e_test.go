package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/audiogram-api/internal/audio"
	"github.com/maauso/audiogram-api/internal/bootstrap"
	"github.com/maauso/audiogram-api/internal/config"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0600))
}

// newE2ERouter wires the real dependencies with a fresh temp dir and serves
// assetDir over HTTP.
func newE2ERouter(t *testing.T, assetDir string) (http.Handler, string, string) {
	t.Helper()
	tempDir := t.TempDir()
	t.Setenv("TEMP_DIR", tempDir)
	t.Setenv("PRESET", "ultrafast")
	t.Setenv("FETCH_MAX_RETRIES", "0")

	cfg, err := config.Load()
	require.NoError(t, err)

	deps, err := bootstrap.NewDependencies(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	assets := httptest.NewServer(http.FileServer(http.Dir(assetDir)))
	t.Cleanup(assets.Close)

	h := NewHandlers(deps.Pipeline, testLogger(), WithDependencyChecks(deps.Checks))
	return NewRouter(h, testLogger(), DefaultConfig()), assets.URL, tempDir
}

func postVideo(t *testing.T, router http.Handler, body CreateVideoRequest) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/create-video", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateVideo_EndToEnd(t *testing.T) {
	skipIfNoFFmpeg(t)

	assetDir := t.TempDir()
	writePNG(t, filepath.Join(assetDir, "bg.png"), 320, 200, color.NRGBA{B: 255, A: 255})
	writePNG(t, filepath.Join(assetDir, "fg.png"), 500, 500, color.NRGBA{R: 255, A: 255})
	cmd := exec.Command("ffmpeg", "-y",
		"-f", "lavfi", "-i", "sine=frequency=440:duration=2",
		"-ar", "44100", "-ac", "2",
		filepath.Join(assetDir, "voice.wav"),
	)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))

	router, base, tempDir := newE2ERouter(t, assetDir)

	rec := postVideo(t, router, CreateVideoRequest{
		AudioURL: base + "/voice.wav",
		ImageURL: base + "/fg.png",
		BgURL:    base + "/bg.png",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="output.mp4"`, rec.Header().Get("Content-Disposition"))

	video := filepath.Join(t.TempDir(), "got.mp4")
	require.NoError(t, os.WriteFile(video, rec.Body.Bytes(), 0600))

	info, err := audio.NewFFprobe("", "").Probe(context.Background(), video)
	require.NoError(t, err)
	assert.True(t, info.HasVideo)
	assert.True(t, info.HasAudio)
	assert.InDelta(t, 2.0, info.Duration, 1.0/24+0.05)

	probe := exec.Command("ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height", "-of", "csv=p=0", video)
	dims, err := probe.Output()
	require.NoError(t, err)
	assert.Equal(t, "1080,1080", string(bytes.TrimSpace(dims)))

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestCreateVideo_EndToEnd_ImageNotFound(t *testing.T) {
	assetDir := t.TempDir()
	writePNG(t, filepath.Join(assetDir, "bg.png"), 8, 8, color.NRGBA{A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(assetDir, "voice.mp3"), []byte("ID3"), 0600))

	router, base, tempDir := newE2ERouter(t, assetDir)

	rec := postVideo(t, router, CreateVideoRequest{
		AudioURL: base + "/voice.mp3",
		ImageURL: base + "/missing.png",
		BgURL:    base + "/bg.png",
	})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, "FETCH_FAILED", resp.Code)
	assert.Contains(t, resp.Error, fmt.Sprintf("%s/missing.png", base))
	assert.Contains(t, resp.Error, "404")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}
