package console

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/andresmejia3/faceguard/internal/coordinator"
	"github.com/andresmejia3/faceguard/internal/enroll"
	"github.com/andresmejia3/faceguard/internal/gallery"
	"github.com/andresmejia3/faceguard/internal/overlay"
	"github.com/andresmejia3/faceguard/internal/types"
)

type fakeController struct {
	mu        sync.Mutex
	streaming bool
	starts    int
	stops     int
	clearErr  error
	clears    int
	startErr  error
}

func (c *fakeController) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.startErr != nil {
		return c.startErr
	}
	c.starts++
	c.streaming = true
	return nil
}

func (c *fakeController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.streaming = false
}

func (c *fakeController) Toggle(ctx context.Context) (bool, error) {
	if c.Streaming() {
		c.Stop()
		return false, nil
	}
	return true, c.Start(ctx)
}

func (c *fakeController) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

func (c *fakeController) ClearGallery(ctx context.Context) error {
	c.clears++
	return c.clearErr
}

func (c *fakeController) BeginGalleryChange() (func(), error) {
	if c.Streaming() {
		return nil, enroll.ErrStreamingActive
	}
	return func() {}, nil
}

func (c *fakeController) Streams() []coordinator.StreamInfo {
	return []coordinator.StreamInfo{{Mode: "rgb", Running: c.Streaming()}}
}

// faceEngine finds one face in the middle of any image and extracts a one-byte feature.
type faceEngine struct{}

func (faceEngine) Detect(f *types.Frame) ([]types.FaceBox, error) {
	return []types.FaceBox{{Rect: types.Rect{Left: 8, Top: 8, Right: 40, Bottom: 40}}}, nil
}

func (faceEngine) AssessQuality(*types.Frame, types.FaceBox) (float32, error) { return 0.9, nil }

func (faceEngine) LivenessScore(*types.Frame, types.FaceBox, types.Mode) (float32, error) {
	return 0.9, nil
}

func (faceEngine) ExtractFeature(*types.Frame, types.FaceBox) (types.Feature, error) {
	return types.Feature{Data: []byte{1, 2, 3}}, nil
}

func (faceEngine) Compare(a, b types.Feature) (float32, error) { return 1, nil }

type testConsole struct {
	srv  *Server
	ctrl *fakeController
	gal  *gallery.Gallery
}

func newTestConsole(t *testing.T) *testConsole {
	t.Helper()
	tc := &testConsole{ctrl: &fakeController{}, gal: gallery.New()}
	tc.srv = New(Options{SurfaceWidth: 64, SurfaceHeight: 48, Modes: []types.Mode{types.ModeRGB}}, tc.gal, zerolog.Nop())
	tc.srv.Attach(tc.ctrl, enroll.New(faceEngine{}, tc.gal, nil, tc.ctrl, zerolog.Nop()))
	return tc
}

func (tc *testConsole) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	tc.srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	return out
}

func paintOnce(tc *testConsole) {
	f := types.NewPooledFrame(100, 50, types.PixelBGR24)
	defer f.Release()
	tc.srv.Paint(types.ModeRGB, f, overlay.Annotation{
		HasBox:      true,
		Box:         types.Rect{Left: 20, Top: 20, Right: 60, Bottom: 45},
		FrameWidth:  100,
		FrameHeight: 50,
		Message:     "0 0.93 live",
		Liveness:    types.LivenessLive,
	})
}

func TestHealth(t *testing.T) {
	tc := newTestConsole(t)
	tc.gal.Append("alice", types.Feature{Data: []byte{1}})

	rec := tc.do(http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeJSON(t, rec)
	if body["status"] != "ok" || body["gallery"] != float64(1) || body["streaming"] != false {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestPaintPublishesSurface(t *testing.T) {
	tc := newTestConsole(t)

	if rec := tc.do(http.MethodGet, "/streams/rgb/frame.jpg"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before the first paint, got %d", rec.Code)
	}

	paintOnce(tc)

	rec := tc.do(http.MethodGet, "/streams/rgb/frame.jpg")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/jpeg" {
		t.Fatalf("expected a JPEG, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	img, err := jpeg.Decode(rec.Body)
	if err != nil {
		t.Fatalf("frame is not a JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 48 {
		t.Errorf("expected the 64x48 surface, got %v", b)
	}

	rec = tc.do(http.MethodGet, "/streams/rgb/overlay")
	body := decodeJSON(t, rec)
	if body["message"] != "0 0.93 live" || body["liveness"] != "live" || body["has_box"] != true {
		t.Errorf("unexpected overlay %v", body)
	}
}

func TestUnconfiguredStream(t *testing.T) {
	tc := newTestConsole(t)
	for _, path := range []string{"/streams/ir/overlay", "/streams/ir/frame.jpg", "/streams/depth/overlay"} {
		if rec := tc.do(http.MethodGet, path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s: expected 404, got %d", path, rec.Code)
		}
	}
}

func TestStreamControl(t *testing.T) {
	tc := newTestConsole(t)

	if rec := tc.do(http.MethodPost, "/streams/start"); rec.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", rec.Code)
	}
	if !tc.ctrl.Streaming() {
		t.Fatal("expected streaming after start")
	}

	rec := tc.do(http.MethodGet, "/streams")
	body := decodeJSON(t, rec)
	if body["streaming"] != true {
		t.Errorf("unexpected streams body %v", body)
	}

	rec = tc.do(http.MethodPost, "/streams/toggle")
	if body := decodeJSON(t, rec); body["streaming"] != false {
		t.Errorf("toggle should stop streaming, got %v", body)
	}

	tc.do(http.MethodPost, "/streams/start")
	tc.do(http.MethodPost, "/streams/stop")
	if tc.ctrl.Streaming() || tc.ctrl.starts != 2 || tc.ctrl.stops != 2 {
		t.Errorf("unexpected controller state %+v", tc.ctrl)
	}
}

func TestStartRefusedDuringGalleryChange(t *testing.T) {
	tc := newTestConsole(t)
	tc.ctrl.startErr = enroll.ErrGalleryChanging

	for _, path := range []string{"/streams/start", "/streams/toggle"} {
		if rec := tc.do(http.MethodPost, path); rec.Code != http.StatusConflict {
			t.Errorf("POST %s: expected 409, got %d", path, rec.Code)
		}
	}
	if tc.ctrl.Streaming() {
		t.Error("streaming must not start while the gallery is changing")
	}
}

func TestClearGallery(t *testing.T) {
	tc := newTestConsole(t)

	tc.ctrl.clearErr = enroll.ErrStreamingActive
	if rec := tc.do(http.MethodPost, "/gallery/clear"); rec.Code != http.StatusConflict {
		t.Errorf("expected 409 while streaming, got %d", rec.Code)
	}

	tc.ctrl.clearErr = nil
	if rec := tc.do(http.MethodPost, "/gallery/clear"); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if tc.ctrl.clears != 2 {
		t.Errorf("expected two clear calls, got %d", tc.ctrl.clears)
	}
}

func TestListGalleryFilter(t *testing.T) {
	tc := newTestConsole(t)
	tc.gal.Append("José Núñez", types.Feature{Data: []byte{1}})
	tc.gal.Append("Ana", types.Feature{Data: []byte{2}})

	rec := tc.do(http.MethodGet, "/gallery?filter=jose")
	body := decodeJSON(t, rec)
	entries := body["entries"].([]any)
	if len(entries) != 1 || body["total"] != float64(2) {
		t.Fatalf("expected one of two entries, got %v", body)
	}
	e := entries[0].(map[string]any)
	if e["index"] != float64(0) || e["label"] != "José Núñez" {
		t.Errorf("unexpected entry %v", e)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func enrollRequest(t *testing.T, label string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if label != "" {
		mw.WriteField("label", label)
	}
	for name, data := range files {
		fw, err := mw.CreateFormFile("image", name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/gallery/enroll", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestEnrollUpload(t *testing.T) {
	tc := newTestConsole(t)

	rec := httptest.NewRecorder()
	tc.srv.Router().ServeHTTP(rec, enrollRequest(t, "alice", map[string][]byte{
		"alice.png": pngBytes(t, 64, 64),
		"bad.png":   []byte("not an image"),
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["enrolled"] != float64(1) || len(body["results"].([]any)) != 2 {
		t.Errorf("unexpected enroll body %v", body)
	}
	if tc.gal.Len() != 1 {
		t.Fatalf("expected one gallery entry, got %d", tc.gal.Len())
	}

	rec = tc.do(http.MethodGet, "/gallery/0/thumbnail.jpg")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected thumbnail, got %d", rec.Code)
	}
	thumb, err := jpeg.Decode(rec.Body)
	if err != nil {
		t.Fatalf("thumbnail is not a JPEG: %v", err)
	}
	if b := thumb.Bounds(); b.Dx() != 32 || b.Dy() != 32 {
		t.Errorf("thumbnail should be the face crop, got %v", b)
	}

	if rec := tc.do(http.MethodGet, "/gallery/5/thumbnail.jpg"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a missing entry, got %d", rec.Code)
	}
}

func TestEnrollRejections(t *testing.T) {
	tests := []struct {
		name      string
		streaming bool
		label     string
		files     map[string][]byte
		want      int
	}{
		{"While streaming", true, "alice", map[string][]byte{"a.png": {1, 2}}, http.StatusConflict},
		{"Missing label", false, "", map[string][]byte{"a.png": {1, 2}}, http.StatusBadRequest},
		{"No files", false, "alice", nil, http.StatusBadRequest},
		{"Nothing decodable", false, "alice", map[string][]byte{"a.png": []byte("junk")}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := newTestConsole(t)
			tc.ctrl.streaming = tt.streaming
			rec := httptest.NewRecorder()
			tc.srv.Router().ServeHTTP(rec, enrollRequest(t, tt.label, tt.files))
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
			if tc.gal.Len() != 0 {
				t.Error("gallery must stay empty")
			}
		})
	}
}

func TestMJPEGFeed(t *testing.T) {
	tc := newTestConsole(t)
	ts := httptest.NewServer(tc.srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/streams/rgb/mjpeg", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "multipart/x-mixed-replace") {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				paintOnce(tc)
			}
		}
	}()

	br := bufio.NewReader(resp.Body)
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("stream ended before a frame arrived: %v", err)
		}
		if strings.HasPrefix(line, "Content-Type: image/jpeg") {
			return
		}
	}
}
