// Package media generates, loads and uploads the images attached to posts.
package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/models"
)

const (
	DefaultFreepikEndpoint = "https://api.freepik.com/v1/ai/mystic"

	freepikName = "freepik"

	// 1x1 transparent PNG returned whenever the image service cannot deliver.
	placeholderPNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

	maxImageBytes = 20 << 20
)

type FreepikConfig struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// ImageGenerator turns a prompt into image bytes.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (*models.GeneratedImage, error)
}

type Freepik struct {
	cfg    FreepikConfig
	client *http.Client
	logger *zap.Logger
}

func NewFreepik(cfg FreepikConfig, logger *zap.Logger) *Freepik {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultFreepikEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Freepik{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type freepikRequest struct {
	Prompt      string `json:"prompt"`
	Quality     string `json:"quality"`
	AspectRatio string `json:"aspect_ratio"`
}

type freepikResponse struct {
	ImageBase64 string `json:"image_base64"`
	ImageURL    string `json:"image_url"`
}

// Generate requests an image for prompt. Only a missing API key is reported
// as an error; any other failure yields the placeholder image.
func (f *Freepik) Generate(ctx context.Context, prompt string) (*models.GeneratedImage, error) {
	key := strings.TrimSpace(f.cfg.APIKey)
	if key == "" {
		return nil, failure.MissingCredential(freepikName)
	}

	img, err := f.generate(ctx, key, prompt)
	if err != nil {
		f.logger.Warn("Image generation failed, using placeholder", zap.Error(err))
		return Placeholder(), nil
	}
	return img, nil
}

func (f *Freepik) generate(ctx context.Context, key, prompt string) (*models.GeneratedImage, error) {
	body, err := json.Marshal(freepikRequest{Prompt: prompt, Quality: "high", AspectRatio: "16:9"})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, failure.FromStatus(freepikName, resp.StatusCode, string(text))
	}

	var out freepikResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, failure.Malformed("decode image response", err)
	}

	switch {
	case out.ImageBase64 != "":
		data, err := base64.StdEncoding.DecodeString(out.ImageBase64)
		if err != nil {
			return nil, failure.Malformed("decode image_base64", err)
		}
		source := out.ImageURL
		if source == "" {
			source = "generated"
		}
		return &models.GeneratedImage{Data: data, MimeType: mimetype.Detect(data).String(), Source: source}, nil
	case out.ImageURL != "":
		m, err := fetch(ctx, f.client, out.ImageURL)
		if err != nil {
			return nil, err
		}
		return &models.GeneratedImage{Data: m.Data, MimeType: m.MimeType, Source: out.ImageURL}, nil
	}
	return nil, &failure.Error{Kind: failure.KindEmptyResponse, Provider: freepikName, Message: "no image returned"}
}

// Placeholder returns the 1x1 PNG used when no real image is available.
func Placeholder() *models.GeneratedImage {
	data, _ := base64.StdEncoding.DecodeString(placeholderPNG)
	return &models.GeneratedImage{
		Data:     data,
		MimeType: "image/png",
		Source:   "data:image/png;base64," + placeholderPNG,
	}
}

// DataURI encodes data as a base64 data URI.
func DataURI(data []byte, mime string) string {
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
}
