package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/xaenox/x-agent/internal/failure"
	"github.com/xaenox/x-agent/internal/models"
)

// Loader resolves media references given by API callers.
type Loader struct {
	client *http.Client
}

func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{client: client}
}

// Load accepts an http(s) URL or a base64 data URI.
func (l *Loader) Load(ctx context.Context, ref string) (*models.Media, error) {
	ref = strings.TrimSpace(ref)
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return fetch(ctx, l.client, ref)
	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)
	}
	return nil, failure.Invalid("unsupported media reference")
}

// LoadAll resolves refs in order and stops at the first failure.
func (l *Loader) LoadAll(ctx context.Context, refs []string) ([]models.Media, error) {
	out := make([]models.Media, 0, len(refs))
	for i, ref := range refs {
		m, err := l.Load(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("media %d: %w", i, err)
		}
		out = append(out, *m)
	}
	return out, nil
}

func decodeDataURI(ref string) (*models.Media, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, failure.Invalid("data URI must be base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, failure.Invalid("data URI payload is not valid base64")
	}
	mt := strings.TrimSuffix(header, ";base64")
	if mt == "" {
		mt = mimetype.Detect(data).String()
	}
	return &models.Media{Data: data, MimeType: mt}, nil
}

func fetch(ctx context.Context, client *http.Client, url string) (*models.Media, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.Invalid("invalid media URL")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, failure.New(failure.KindProvider, fmt.Sprintf("fetch %s: %s", url, resp.Status), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mt == "" || mt == "application/octet-stream" {
		mt = mimetype.Detect(data).String()
	}
	return &models.Media{Data: data, MimeType: mt}, nil
}
