package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edirooss/rtsplive-server/internal/domain/camera"
	"github.com/edirooss/rtsplive-server/internal/service"
	"github.com/edirooss/rtsplive-server/internal/service/streaming"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const testKey = "k3y"

func init() { gin.SetMode(gin.TestMode) }

func get(r *gin.Engine, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newAssetsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "loading.m3u8"), "#EXTM3U\n#loading\n")
	writeFile(t, filepath.Join(dir, "loading.ts"), "LOADINGTS")
	writeFile(t, filepath.Join(dir, "error_image.jpg"), "ERRJPEG")
	writeFile(t, filepath.Join(dir, "favicon.ico"), "ICO")
	writeFile(t, filepath.Join(dir, "background.html"), "<p>bg</p>")
	writeFile(t, filepath.Join(dir, "player.html"),
		`key=%key% cam=%cam% src=%path% seek=%hls_allow_video_seek_back% bg=%redirect_url_if_background%`)
	return dir
}

func testCameras(t *testing.T) *camera.Set {
	t.Helper()
	set, err := camera.NewSet([]camera.Camera{
		{ID: "gate", Name: "Gate", RTSPURI: "rtsp://10.0.0.1/stream"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return set
}

type fakeSupervisor struct {
	mu       sync.Mutex
	canaries []string
	runs     []string
	cams     *camera.Set
}

func (f *fakeSupervisor) Run(camID string) (string, error) {
	if _, ok := f.cams.Find(camID); !ok {
		return "", camera.ErrNotFound
	}
	f.mu.Lock()
	f.runs = append(f.runs, camID)
	f.mu.Unlock()
	return filepath.Join("/data/stream", camID, "stream.m3u8"), nil
}

func (f *fakeSupervisor) Canary(camID string) {
	f.mu.Lock()
	f.canaries = append(f.canaries, camID)
	f.mu.Unlock()
}

func (f *fakeSupervisor) canaryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.canaries)
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"stream.m3u8":    "application/x-mpegURL",
		"stream_ab_1.ts": "video/MP2T",
		"player.html":    "text/html; charset=utf-8",
		"page.HTM":       "text/html; charset=utf-8",
		"app.js":         "application/javascript",
		"site.css":       "text/css",
		"favicon.ico":    "image/x-icon",
		"gate.jpg":       "image/jpeg",
		"gate.jpeg":      "image/jpeg",
		"gate.jpe":       "image/jpeg",
		"archive.tar.gz": "application/octet-stream",
		"no-extension":   "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestCacheControl(t *testing.T) {
	if got := CacheControl(0); got != "no-cache" {
		t.Errorf("CacheControl(0) = %q", got)
	}
	if got := CacheControl(-time.Second); got != "no-cache" {
		t.Errorf("CacheControl(-1s) = %q", got)
	}
	if got := CacheControl(5 * time.Second); got != "max-age=5" {
		t.Errorf("CacheControl(5s) = %q", got)
	}
	if got := CacheControl(AssetExpire); got != "max-age=2592000" {
		t.Errorf("CacheControl(AssetExpire) = %q", got)
	}
}

func newStreamRouter(t *testing.T) (*gin.Engine, *fakeSupervisor, string) {
	t.Helper()
	cams := testCameras(t)
	sup := &fakeSupervisor{cams: cams}
	streamDir := t.TempDir()
	h := NewStreamHandler(zap.NewNop(), cams, sup, streamDir, newAssetsDir(t), testKey)
	r := gin.New()
	r.GET("/stream/:cam/:file", h.File)
	return r, sup, streamDir
}

func TestStreamLoadingPlaceholders(t *testing.T) {
	r, sup, _ := newStreamRouter(t)

	rec := get(r, "/stream/gate/stream.m3u8?key="+testKey)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "#loading") {
		t.Fatalf("playlist: %d %q", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/x-mpegURL" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if sup.canaryCount() != 1 {
		t.Errorf("canaries = %d, want 1", sup.canaryCount())
	}

	rec = get(r, "/stream/gate/stream_0123456789abcdef_7.ts")
	if rec.Code != http.StatusOK || rec.Body.String() != "LOADINGTS" {
		t.Errorf("segment: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "video/MP2T" {
		t.Errorf("segment Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	if rec := get(r, "/stream/gate/notes.txt"); rec.Code != http.StatusNotFound {
		t.Errorf("other missing file: %d, want 404", rec.Code)
	}
	if sup.canaryCount() != 1 {
		t.Errorf("segment fetches must not count as canaries")
	}
}

func TestStreamShippedPlaceholders(t *testing.T) {
	cams := testCameras(t)
	h := NewStreamHandler(zap.NewNop(), cams, &fakeSupervisor{cams: cams}, t.TempDir(), filepath.Join("..", "..", "..", "assets"), testKey)
	r := gin.New()
	r.GET("/stream/:cam/:file", h.File)

	rec := get(r, "/stream/gate/stream.m3u8?key="+testKey)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "\nloading.ts") {
		t.Fatalf("playlist: %d %q", rec.Code, rec.Body.String())
	}

	rec = get(r, "/stream/gate/loading.ts")
	body := rec.Body.Bytes()
	if rec.Code != http.StatusOK || len(body) == 0 || len(body)%188 != 0 || body[0] != 0x47 {
		t.Errorf("segment: %d, %d bytes; want MPEG-TS packets", rec.Code, len(body))
	}
}

func TestStreamServesOutput(t *testing.T) {
	r, _, dir := newStreamRouter(t)
	writeFile(t, filepath.Join(dir, "gate", "stream.m3u8"), "#EXTM3U\n#live\n")
	writeFile(t, filepath.Join(dir, "gate", "stream_x_1.ts"), "SEGMENT")

	rec := get(r, "/stream/gate/stream.m3u8?key="+testKey)
	if !strings.Contains(rec.Body.String(), "#live") {
		t.Errorf("playlist body = %q", rec.Body.String())
	}
	rec = get(r, "/stream/gate/stream_x_1.ts")
	if rec.Body.String() != "SEGMENT" || rec.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("segment: %q cc=%q", rec.Body.String(), rec.Header().Get("Cache-Control"))
	}
}

func TestStreamAuthAndLookup(t *testing.T) {
	r, sup, _ := newStreamRouter(t)

	if rec := get(r, "/stream/gate/stream.m3u8?key=nope"); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad key: %d, want 401", rec.Code)
	}
	if rec := get(r, "/stream/gate/stream.m3u8"); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: %d, want 401", rec.Code)
	}
	if rec := get(r, "/stream/yard/stream.m3u8?key="+testKey); rec.Code != http.StatusNotFound {
		t.Errorf("unknown cam: %d, want 404", rec.Code)
	}
	if sup.canaryCount() != 0 {
		t.Errorf("rejected requests recorded canaries")
	}
}

func TestPlayer(t *testing.T) {
	cams := testCameras(t)
	sup := &fakeSupervisor{cams: cams}
	h := NewPlayerHandler(zap.NewNop(), sup, PlayerOptions{
		AssetsDir:     newAssetsDir(t),
		Key:           testKey,
		RedirectURL:   "/assets/background.html",
		AllowSeekBack: true,
	})
	r := gin.New()
	r.GET("/player", h.Player)

	rec := get(r, "/player?cam=gate")
	want := "key=k3y cam=gate src=/stream/gate/stream.m3u8 seek=true bg=/assets/background.html"
	if rec.Code != http.StatusOK || rec.Body.String() != want {
		t.Fatalf("player: %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if len(sup.runs) != 1 {
		t.Errorf("Run calls = %d, want 1", len(sup.runs))
	}

	if rec := get(r, "/player?cam=yard"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown cam: %d, want 404", rec.Code)
	}
}

type fakeCapturer struct {
	path   string
	err    error
	expire time.Duration
}

func (f *fakeCapturer) Run(context.Context, string) (string, error) { return f.path, f.err }
func (f *fakeCapturer) CacheExpire() time.Duration { return f.expire }

func TestImage(t *testing.T) {
	assets := newAssetsDir(t)
	snap := filepath.Join(t.TempDir(), "gate.jpg")
	writeFile(t, snap, "JPEGDATA")

	cases := []struct {
		name     string
		svc      *fakeCapturer
		wantCode int
		wantBody string
		wantCC   string
	}{
		{"fresh", &fakeCapturer{path: snap, expire: 5 * time.Second}, 200, "JPEGDATA", "max-age=5"},
		{"no cache window", &fakeCapturer{path: snap}, 200, "JPEGDATA", "no-cache"},
		{"timeout", &fakeCapturer{err: errors.New("capture timed out")}, 200, "ERRJPEG", "no-cache"},
		{"vanished file", &fakeCapturer{path: snap + ".gone", expire: 5 * time.Second}, 200, "ERRJPEG", "no-cache"},
		{"unknown camera", &fakeCapturer{err: camera.ErrNotFound}, 404, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewImageHandler(zap.NewNop(), tc.svc, filepath.Join(assets, "error_image.jpg"))
			r := gin.New()
			r.GET("/image", h.Image)

			rec := get(r, "/image?cam=gate")
			if rec.Code != tc.wantCode || rec.Body.String() != tc.wantBody {
				t.Fatalf("got %d %q, want %d %q", rec.Code, rec.Body.String(), tc.wantCode, tc.wantBody)
			}
			if cc := rec.Header().Get("Cache-Control"); cc != tc.wantCC {
				t.Errorf("Cache-Control = %q, want %q", cc, tc.wantCC)
			}
			if tc.wantCode == 200 && rec.Header().Get("Content-Type") != "image/jpeg" {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestAssets(t *testing.T) {
	h := NewAssetsHandler(zap.NewNop(), newAssetsDir(t), testKey)
	r := gin.New()
	r.GET("/assets/:file", h.Asset)
	r.GET("/favicon.ico", h.Favicon)

	rec := get(r, "/favicon.ico")
	if rec.Code != http.StatusOK || rec.Body.String() != "ICO" {
		t.Fatalf("favicon: %d %q", rec.Code, rec.Body.String())
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "max-age=2592000" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if rec := get(r, "/assets/background.html"); rec.Code != http.StatusOK {
		t.Errorf("background.html without key: %d", rec.Code)
	}
	if rec := get(r, "/assets/player.html"); rec.Code != http.StatusUnauthorized {
		t.Errorf("player.html without key: %d, want 401", rec.Code)
	}
	if rec := get(r, "/assets/player.html?key="+testKey); rec.Code != http.StatusOK {
		t.Errorf("player.html with key: %d", rec.Code)
	}
	if rec := get(r, "/assets/missing.css?key="+testKey); rec.Code != http.StatusNotFound {
		t.Errorf("missing asset: %d, want 404", rec.Code)
	}
}

type fixedStatus struct{ res service.StatusResult }

func (f fixedStatus) Get() service.StatusResult { return f.res }

func TestStatusHeaders(t *testing.T) {
	gen := time.UnixMilli(1700000000123)
	r := gin.New()
	r.GET("/api/status", Status(fixedStatus{service.StatusResult{
		Data:        []streaming.WorkerStatus{{ID: "gate", State: "running"}},
		CacheHit:    true,
		GeneratedAt: gen,
	}}))

	rec := get(r, "/api/status")
	if rec.Header().Get("X-Cache") != "HIT" ||
		rec.Header().Get("X-Summary-Generated-At") != "1700000000123" ||
		rec.Header().Get("X-Total-Count") != "1" {
		t.Errorf("headers = %v", rec.Header())
	}
	var got []streaming.WorkerStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 1 || got[0].ID != "gate" {
		t.Errorf("body = %s (%v)", rec.Body.String(), err)
	}
}

type fakeTailer map[string][]string

func (f fakeTailer) Tail(name string, n int) []string {
	lines := f[name]
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func TestCameraLogs(t *testing.T) {
	r := gin.New()
	r.GET("/api/cameras/:cam/logs", CameraLogs(testCameras(t), fakeTailer{
		"stream:gate": {"a", "b", "c"},
	}))

	rec := get(r, "/api/cameras/gate/logs?lines=2")
	var body struct {
		Stream  []string `json:"stream"`
		Capture []string `json:"capture"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if strings.Join(body.Stream, ",") != "b,c" || body.Capture == nil || len(body.Capture) != 0 {
		t.Errorf("body = %+v", body)
	}

	if rec := get(r, "/api/cameras/gate/logs?lines=zero"); rec.Code != http.StatusBadRequest {
		t.Errorf("bad lines: %d, want 400", rec.Code)
	}
	if rec := get(r, "/api/cameras/yard/logs"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown cam: %d, want 404", rec.Code)
	}
}
