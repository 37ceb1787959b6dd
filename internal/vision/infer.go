package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/freshkeep/freshkeep/internal/imaging"
)

// Infer implements the Detector interface against a self-hosted
// object-detection inference service (e.g. a transformers model behind a
// small HTTP shim). The service loads the requested model into memory on
// the first detection and keeps it resident, so the first call per process
// is slow and subsequent ones are not.
type Infer struct {
	baseURL string
	model   string
	client  *http.Client

	warmOnce sync.Once
}

// NewInfer creates a new inference-service detector
func NewInfer(baseURL string, modelName string) (*Infer, error) {
	if baseURL == "" {
		baseURL = "http://localhost:9400"
	}
	if modelName == "" {
		modelName = "yolos-tiny"
	}

	return &Infer{
		baseURL: baseURL,
		model:   modelName,
		client: &http.Client{
			// First call includes model load, which can take a while
			Timeout: 120 * time.Second,
		},
	}, nil
}

// inferRequest is the request body for the service's detect endpoint
type inferRequest struct {
	Model     string `json:"model"`
	Precision string `json:"precision"`
	Image     string `json:"image"` // base64-encoded PNG
}

// Detect analyzes a bitmap via the remote inference service
func (d *Infer) Detect(ctx context.Context, bitmap *imaging.Bitmap, precision Precision) ([]Candidate, error) {
	d.warmOnce.Do(func() {
		slog.Info("vision: first inference call will load the model", "model", d.model, "url", d.baseURL)
	})

	reqBody := inferRequest{
		Model:     d.model,
		Precision: string(precision),
		Image:     base64.StdEncoding.EncodeToString(bitmap.PNG),
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/api/detect", d.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inference service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference service error (status %d): %s", resp.StatusCode, string(body))
	}

	candidates, err := parseDetections(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing detections: %w", err)
	}

	return candidates, nil
}

// Close closes the detector (no-op for HTTP client)
func (d *Infer) Close() error {
	return nil
}
