// Package embedding is the client for the external face-embedding server.
// Given raw image bytes it returns the detected face regions and one
// embedding vector per region; detection and encoding internals live
// entirely on the server side.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	// Register decoders for the local readability precheck.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const defaultGatewayURL = "http://localhost:8000"

// ErrUnreadableImage signals malformed input. Zero faces in a readable
// image is not an error.
var ErrUnreadableImage = errors.New("image is malformed or unreadable")

// DetectedFace is one detected face region and its embedding.
type DetectedFace struct {
	Index     int       `json:"face_index"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2] in pixels
	Score     float64   `json:"det_score"`
}

type detectResponse struct {
	FacesCount int            `json:"faces_count"`
	Faces      []DetectedFace `json:"faces"`
	Model      string         `json:"model"`
}

// Gateway talks to the face embedding server over HTTP.
type Gateway struct {
	baseURL string
	dim     int
	client  *http.Client
}

// NewGateway creates a gateway client. dim is the embedding dimensionality
// the server is expected to produce; responses with another dim are
// rejected so malformed embeddings never reach the matcher.
func NewGateway(baseURL string, dim int) *Gateway {
	if baseURL == "" {
		baseURL = defaultGatewayURL
	}
	return &Gateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		dim:     dim,
		client:  &http.Client{},
	}
}

// Detect uploads the image and returns the detected faces. Returns
// ErrUnreadableImage for input the server (or the local precheck) cannot
// decode, and an empty slice when the photo contains no faces. The caller
// bounds the call with its context; a deadline surfaces as the context's
// error.
func (g *Gateway) Detect(ctx context.Context, imageData []byte) ([]DetectedFace, error) {
	if _, _, err := image.DecodeConfig(bytes.NewReader(imageData)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}

	body, err := g.postMultipartImage(ctx, "/embed/face", imageData)
	if err != nil {
		return nil, err
	}

	var resp detectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]DetectedFace, 0, len(resp.Faces))
	for _, f := range resp.Faces {
		if g.dim > 0 && len(f.Embedding) != g.dim {
			return nil, fmt.Errorf("unexpected embedding dim %d for face %d (want %d)", len(f.Embedding), f.Index, g.dim)
		}
		faces = append(faces, f)
	}
	return faces, nil
}

// postMultipartImage constructs a multipart form with the image data and
// posts it to the given endpoint, with an explicit Content-Type header
// based on magic byte detection.
func (g *Gateway) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="photo.jpg"`)
	h.Set("Content-Type", detectMIMEType(imageData))
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

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, fmt.Errorf("%w: server rejected image (status %d): %s", ErrUnreadableImage, resp.StatusCode, string(body))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the MIME type from image data
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47 0D 0A 1A 0A
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: 52 49 46 46 ... 57 45 42 50
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
