package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studymesh/internal/core/ports"

	"go.uber.org/zap"
)

// HTTPObjectStore uploads assets to the external storage platform over a
// plain PUT endpoint and derives the public URL from the configured base.
type HTTPObjectStore struct {
	uploadURL string
	publicURL string
	client    *http.Client
	logger    *zap.SugaredLogger
}

func NewHTTPObjectStore(uploadURL, publicURL string, logger *zap.SugaredLogger) ports.ObjectStore {
	return &HTTPObjectStore{
		uploadURL: strings.TrimSuffix(uploadURL, "/"),
		publicURL: strings.TrimSuffix(publicURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}
}

func (s *HTTPObjectStore) Upload(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	path = strings.TrimPrefix(path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.uploadURL+"/"+path, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("upload rejected with status %d: %s", resp.StatusCode, string(body))
	}

	url := s.publicURL + "/" + path
	s.logger.Infow("object uploaded", "path", path, "bytes", len(data), "url", url)
	return url, nil
}
