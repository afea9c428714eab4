package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/doc-forge/internal/config"
	"github.com/yourusername/doc-forge/internal/convert"
	"github.com/yourusername/doc-forge/internal/jobs"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:                  "8080",
		GinMode:               "test",
		CORSAllowedOrigins:    "http://localhost:3000",
		MaxFileSize:           50 * 1024 * 1024,
		WorkDir:               t.TempDir(),
		ConvertTimeoutSeconds: 10,
		WorkerCount:           2,
	}
}

// newTestServer は実際の変換サービスとインメモリレジストリでAPI全体を組み立てます。
func newTestServer(t *testing.T, startWorkers bool) *gin.Engine {
	t.Helper()
	cfg := testConfig(t)

	service, err := convert.NewService(cfg)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	manager, err := setupJobs(cfg, service)
	if err != nil {
		t.Fatalf("setupJobs returned error: %v", err)
	}
	if startWorkers {
		manager.StartWorkers()
		t.Cleanup(func() { manager.Shutdown(context.Background()) })
	}

	router := gin.New()
	setupRoutes(router, service, manager)
	return router
}

func uploadRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fw, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("failed to write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func doJSON(t *testing.T, router *gin.Engine, req *http.Request) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	var body map[string]any
	if len(w.Body.Bytes()) > 0 && strings.Contains(w.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("failed to decode body %q: %v", w.Body.String(), err)
		}
	}
	return w.Code, body
}

func waitForStatus(t *testing.T, router *gin.Engine, jobID, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		code, body := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/convert/status/"+jobID, nil))
		if code != http.StatusOK {
			t.Fatalf("status endpoint returned %d: %v", code, body)
		}
		if body["status"] == want {
			return body
		}
		if body["status"] == string(jobs.StatusFailed) && want != string(jobs.StatusFailed) {
			t.Fatalf("job failed unexpectedly: %v", body)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s never reached status %s", jobID, want)
	return nil
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestServer(t, false)

	code, body := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/health", nil))
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if body["status"] != "ok" || body["service"] != "doc-forge-api" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestStatusUnknownJob(t *testing.T) {
	router := newTestServer(t, false)

	code, body := doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/convert/status/no-such-job", nil))
	if code != http.StatusNotFound {
		t.Fatalf("unexpected status %d: %v", code, body)
	}
	if body["code"] != convert.CodeJobNotFound {
		t.Fatalf("unexpected code: %v", body)
	}
}

func TestCleanupUnknownJob(t *testing.T) {
	router := newTestServer(t, false)

	code, body := doJSON(t, router, httptest.NewRequest(http.MethodDelete, "/api/convert/cleanup/no-such-job", nil))
	if code != http.StatusNotFound {
		t.Fatalf("unexpected status %d: %v", code, body)
	}
	if body["code"] != convert.CodeJobNotFound {
		t.Fatalf("unexpected code: %v", body)
	}
}

func TestDownloadBeforeCompletion(t *testing.T) {
	// ワーカー未起動なのでジョブはPENDINGのまま
	router := newTestServer(t, false)

	code, body := doJSON(t, router, uploadRequest(t, "/api/convert/txt-to-pdf", "memo.txt", []byte("hello")))
	if code != http.StatusOK {
		t.Fatalf("upload failed with %d: %v", code, body)
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatalf("job_id missing: %v", body)
	}

	code, body = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/convert/download/"+jobID, nil))
	if code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d: %v", code, body)
	}
	if body["code"] != convert.CodeNotReady {
		t.Fatalf("unexpected code: %v", body)
	}

	code, body = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/convert/status/"+jobID, nil))
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d: %v", code, body)
	}
	if body["status"] != string(jobs.StatusPending) {
		t.Fatalf("unexpected job status: %v", body)
	}
	if body["progress"] != float64(0) {
		t.Fatalf("unexpected progress: %v", body)
	}
	if _, ok := body["download_url"]; ok {
		t.Fatalf("download_url present before completion: %v", body)
	}
}

func TestUploadInvalidFormat(t *testing.T) {
	router := newTestServer(t, false)

	code, body := doJSON(t, router, uploadRequest(t, "/api/convert/txt-to-pdf", "memo.zip", []byte("PK")))
	if code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d: %v", code, body)
	}
	if body["code"] != convert.CodeInvalidFormat {
		t.Fatalf("unexpected code: %v", body)
	}
}

func TestConversionLifecycle(t *testing.T) {
	router := newTestServer(t, true)

	// アップロード
	content := []byte("The quick brown fox.\n\nJumps over the lazy dog.\n")
	code, body := doJSON(t, router, uploadRequest(t, "/api/convert/txt-to-pdf", "fox.txt", content))
	if code != http.StatusOK {
		t.Fatalf("upload failed with %d: %v", code, body)
	}
	if body["success"] != true {
		t.Fatalf("success not true: %v", body)
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatalf("job_id missing: %v", body)
	}
	convertedName, _ := body["converted_filename"].(string)
	if !strings.HasPrefix(convertedName, "fox_") || !strings.HasSuffix(convertedName, ".pdf") {
		t.Fatalf("unexpected converted_filename: %q", convertedName)
	}

	// 完了までポーリング
	status := waitForStatus(t, router, jobID, string(jobs.StatusCompleted))
	if status["progress"] != float64(100) {
		t.Fatalf("unexpected progress: %v", status)
	}
	downloadURL, _ := status["download_url"].(string)
	if downloadURL != "/api/convert/download/"+jobID {
		t.Fatalf("unexpected download_url: %v", status)
	}

	// ダウンロード
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, downloadURL, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("download failed with %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, convertedName) {
		t.Fatalf("unexpected content disposition: %q", cd)
	}
	if w.Header().Get("X-Job-Id") != jobID {
		t.Fatalf("unexpected X-Job-Id: %q", w.Header().Get("X-Job-Id"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("downloaded body is not a PDF")
	}

	// クリーンアップ
	code, body = doJSON(t, router, httptest.NewRequest(http.MethodDelete, "/api/convert/cleanup/"+jobID, nil))
	if code != http.StatusOK {
		t.Fatalf("cleanup failed with %d: %v", code, body)
	}
	if body["job_id"] != jobID {
		t.Fatalf("unexpected cleanup body: %v", body)
	}

	// 以後は404
	code, _ = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/convert/status/"+jobID, nil))
	if code != http.StatusNotFound {
		t.Fatalf("status after cleanup returned %d", code)
	}
	code, _ = doJSON(t, router, httptest.NewRequest(http.MethodGet, "/api/convert/download/"+jobID, nil))
	if code != http.StatusNotFound {
		t.Fatalf("download after cleanup returned %d", code)
	}
	code, _ = doJSON(t, router, httptest.NewRequest(http.MethodDelete, "/api/convert/cleanup/"+jobID, nil))
	if code != http.StatusNotFound {
		t.Fatalf("second cleanup returned %d", code)
	}
}

func TestImageConversionLifecycle(t *testing.T) {
	router := newTestServer(t, true)

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: uint8(x * 16), B: uint8(y * 16), A: 255})
		}
	}
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		t.Fatalf("failed to encode png fixture: %v", err)
	}

	code, body := doJSON(t, router, uploadRequest(t, "/api/convert/image-to-pdf", "dot.png", pngBuf.Bytes()))
	if code != http.StatusOK {
		t.Fatalf("upload failed with %d: %v", code, body)
	}
	jobID, _ := body["job_id"].(string)
	if jobID == "" {
		t.Fatalf("job_id missing: %v", body)
	}

	status := waitForStatus(t, router, jobID, string(jobs.StatusCompleted))
	if _, ok := status["conversion_time"]; !ok {
		// 変換が1ms未満で丸め落ちした場合はフィールド自体が省かれる
		t.Logf("conversion_time omitted for job %s", jobID)
	}
}
