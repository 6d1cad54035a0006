// Package analysis infers face attributes (age, gender, emotion) by sending
// a face crop to an external inference service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sweeney/kiosk-agent/internal/detect"
	"github.com/sweeney/kiosk-agent/internal/logic"
)

// Endpoints of the inference service, relative to its base URL.
const (
	AnalyzePath = "/analyze"
	HealthPath  = "/health"
)

// Client calls the inference service.
type Client struct {
	analyzeURL string
	healthURL  string
	http       *http.Client
	padding    float64
}

// NewClient creates a Client for the service at baseURL. Each request is
// bounded by timeout in addition to the caller's context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimRight(baseURL, "/")
	return &Client{
		analyzeURL: base + AnalyzePath,
		healthURL:  base + HealthPath,
		http:       &http.Client{Timeout: timeout},
		padding:    0.2,
	}
}

// response is the inference service reply.
type response struct {
	Age             float64            `json:"age"`
	DominantGender  string             `json:"dominant_gender"`
	DominantEmotion string             `json:"dominant_emotion"`
	Emotion         map[string]float64 `json:"emotion"`
	Error           string             `json:"error"`
}

// Attributes sends the padded crop of face and returns its attributes.
func (c *Client) Attributes(ctx context.Context, f detect.Frame, face logic.FaceBox) (logic.Attributes, error) {
	crop := Crop(f.Image, face, c.padding)
	if crop.Empty() {
		return logic.Attributes{}, fmt.Errorf("face %v outside frame", face)
	}

	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	part, err := w.CreateFormFile("file", "face.jpg")
	if err != nil {
		return logic.Attributes{}, fmt.Errorf("create form file: %w", err)
	}
	if err := jpeg.Encode(part, f.Image.SubImage(crop), &jpeg.Options{Quality: 90}); err != nil {
		return logic.Attributes{}, fmt.Errorf("encode crop: %w", err)
	}
	if err := w.Close(); err != nil {
		return logic.Attributes{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.analyzeURL, body)
	if err != nil {
		return logic.Attributes{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return logic.Attributes{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return logic.Attributes{}, fmt.Errorf("inference failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var r response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return logic.Attributes{}, fmt.Errorf("decode response: %w", err)
	}
	if r.Error != "" {
		return logic.Attributes{}, fmt.Errorf("inference: %s", r.Error)
	}

	return logic.Attributes{
		Age:             int(math.Round(r.Age)),
		Gender:          r.DominantGender,
		DominantEmotion: r.DominantEmotion,
		EmotionScores:   r.Emotion,
	}, nil
}

// Crop returns the face box grown by padding (a fraction of its size on
// each side), clipped to the image.
func Crop(img *image.RGBA, face logic.FaceBox, padding float64) image.Rectangle {
	padX := int(float64(face.Width) * padding)
	padY := int(float64(face.Height) * padding)
	r := image.Rect(face.X-padX, face.Y-padY, face.X+face.Width+padX, face.Y+face.Height+padY)
	return r.Add(img.Bounds().Min).Intersect(img.Bounds())
}

// Health checks that the inference service answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("inference service unhealthy: %d", resp.StatusCode)
	}
	return nil
}
