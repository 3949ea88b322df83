// Package embedding extracts face embeddings from images using the InsightFace embedding server.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-recognizer/internal/database"
	"github.com/kozaktomas/face-recognizer/internal/imaging"
)

const (
	defaultEmbeddingURL = "http://localhost:8000"
	defaultModel        = "buffalo_l"
	defaultDim          = 512
)

var (
	// ErrNoFace is returned when the server detects no face in the image.
	ErrNoFace = errors.New("no face detected")

	// ErrUnreadableImage is returned when the input cannot be decoded as an image.
	ErrUnreadableImage = errors.New("unreadable image")

	// ErrZeroVector is returned when the server returns an embedding with zero norm.
	ErrZeroVector = errors.New("zero-norm embedding")

	// ErrModelMismatch is returned when the server runs a different model than configured.
	// Embeddings of different models are not comparable.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

// IsAbsent reports whether err means that the image has no usable face.
// Callers treat these as an absent result rather than a failure.
func IsAbsent(err error) bool {
	return errors.Is(err, ErrNoFace) || errors.Is(err, ErrUnreadableImage) || errors.Is(err, ErrZeroVector)
}

// Extractor produces one unit-norm face embedding per image.
type Extractor interface {
	Extract(ctx context.Context, imageData []byte) ([]float32, error)
}

// Client computes face embeddings using the embedding server.
type Client struct {
	baseURL string
	model   string
	dim     int
	client  *http.Client
}

// NewClient creates a new embedding client. dim is the expected embedding length.
func NewClient(baseURL, model string, dim int) *Client {
	if baseURL == "" {
		baseURL = defaultEmbeddingURL
	}
	if model == "" {
		model = defaultModel
	}
	if dim <= 0 {
		dim = defaultDim
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		dim:     dim,
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// FaceDetection represents a single detected face
type FaceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// FaceResponse represents the response from the face embedding endpoint
type FaceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []FaceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// postMultipartImage posts the image as the "file" field of a multipart form.
// The part carries an explicit Content-Type based on magic byte detection.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", imaging.DetectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// ComputeFaceEmbeddings detects faces and computes their embeddings
func (c *Client) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*FaceResponse, error) {
	body, err := c.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var faceResp FaceResponse
	if err := json.Unmarshal(body, &faceResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &faceResp, nil
}

// Extract returns the normalized embedding of the first detected face.
// The server orders faces by detection, so with several faces in the image the
// choice follows the server's ordering.
func (c *Client) Extract(ctx context.Context, imageData []byte) ([]float32, error) {
	if _, err := imaging.Validate(imageData); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnreadableImage, err)
	}

	resp, err := c.ComputeFaceEmbeddings(ctx, imageData)
	if err != nil {
		return nil, err
	}
	if resp.Model != "" && !strings.EqualFold(resp.Model, c.model) {
		return nil, fmt.Errorf("%w: server runs %s, configured %s", ErrModelMismatch, resp.Model, c.model)
	}
	if len(resp.Faces) == 0 {
		return nil, ErrNoFace
	}

	vec := resp.Faces[0].Embedding
	if len(vec) != c.dim {
		return nil, fmt.Errorf("unexpected embedding dimension %d (expected %d)", len(vec), c.dim)
	}

	return Normalize(vec)
}

// Model returns the model name being used
func (c *Client) Model() string {
	return c.model
}

// Dim returns the expected embedding dimension.
func (c *Client) Dim() int {
	return c.dim
}

// Normalize returns a unit-norm copy of v.
func Normalize(v []float32) ([]float32, error) {
	out, err := database.Normalize(v)
	if errors.Is(err, database.ErrZeroNorm) {
		return nil, ErrZeroVector
	}
	return out, err
}
