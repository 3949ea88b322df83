package handlers

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
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/embedding"
	"github.com/kozaktomas/face-recognizer/internal/logger"
	"github.com/kozaktomas/face-recognizer/internal/recognizer"
)

const testDim = 3

// stubExtractor maps image bytes to fixed vectors; anything else has no face.
type stubExtractor struct {
	vectors map[string][]float32
}

func (s *stubExtractor) Extract(_ context.Context, data []byte) ([]float32, error) {
	if string(data) == "explode" {
		return nil, context.DeadlineExceeded
	}
	vec, ok := s.vectors[string(data)]
	if !ok {
		return nil, embedding.ErrNoFace
	}
	return database.Normalize(vec)
}

func newStubExtractor() *stubExtractor {
	return &stubExtractor{vectors: map[string][]float32{
		"ann-1":   {1, 0, 0},
		"ann-2":   {1, 0.05, 0},
		"ben-1":   {0, 1, 0},
		"ann-ish": {1, 0.2, 0},
		"nobody":  {0, 0, 1},
	}}
}

// testPNG returns a small valid PNG image.
func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := range 40 {
		for y := range 20 {
			img.Set(x, y, color.RGBA{R: uint8(x * 6), G: uint8(y * 12), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// writeTestDataset lays out dataset/<identity>/<file> with the given contents.
func writeTestDataset(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create dir: %v", err)
		}
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
	}
	return root
}

func defaultTestDataset(t *testing.T) string {
	t.Helper()
	return writeTestDataset(t, map[string][]byte{
		"Ann Lee/1.jpg":     []byte("ann-1"),
		"Ann Lee/2.jpg":     []byte("ann-2"),
		"Ben/portrait.png":  testPNG(t),
		"Ben/1.jpeg":        []byte("ben-1"),
		"Ben/readme.txt":    []byte("ben-1"),
		".cache/ignored.jp": []byte("x"),
	})
}

// newTestFaceDB returns a FaceDB over an in-memory flat index.
func newTestFaceDB(t *testing.T, root string) *recognizer.FaceDB {
	t.Helper()
	idx := database.NewFlatIndex("", "", testDim, logger.Nop())
	db, err := recognizer.New(recognizer.Options{
		Threshold:   recognizer.DefaultThreshold,
		DatasetPath: root,
	}, newStubExtractor(), idx, logger.Nop())
	if err != nil {
		t.Fatalf("failed to create face db: %v", err)
	}
	return db
}

// newBuiltFaceDB returns a FaceDB whose index was built from root.
func newBuiltFaceDB(t *testing.T, root string) *recognizer.FaceDB {
	t.Helper()
	db := newTestFaceDB(t, root)
	if _, err := db.BuildIndex(context.Background()); err != nil {
		t.Fatalf("failed to build index: %v", err)
	}
	return db
}

// multipartRequest builds a POST with a single file field plus extra form values.
func multipartRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		part.Write(content)
	}
	for k, v := range fields {
		writer.WriteField(k, v)
	}
	writer.Close()

	req := httptest.NewRequest("POST", path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
