package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const replicateImageCost = 0.01

// ReplicateProvider generates images through Replicate's predictions API,
// using blocking mode so a single request carries the result.
type ReplicateProvider struct {
	apiToken string
	model    string
	client   *http.Client
}

func NewReplicateProvider(apiToken string) *ReplicateProvider {
	return &ReplicateProvider{
		apiToken: apiToken,
		model:    "black-forest-labs/flux-schnell",
		client:   &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *ReplicateProvider) Name() string { return "replicate" }

func (p *ReplicateProvider) IsAvailable() bool { return p.apiToken != "" }

func (p *ReplicateProvider) Generate(ctx context.Context, prompt string, opts Options) (*Image, error) {
	width, height := opts.sizeOrDefault()

	body := map[string]any{
		"input": map[string]any{
			"prompt":       prompt,
			"aspect_ratio": aspectRatio(width, height),
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("https://api.replicate.com/v1/models/%s/predictions", p.model)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiToken)
	req.Header.Set("Prefer", "wait=60")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Replicate API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Replicate API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Status string   `json:"status"`
		Output []string `json:"output"`
		Error  string   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("Replicate prediction failed: %s", result.Error)
	}
	if result.Status != "succeeded" || len(result.Output) == 0 {
		return nil, fmt.Errorf("Replicate prediction not ready (status %s)", result.Status)
	}

	return &Image{
		URL:     result.Output[0],
		Width:   width,
		Height:  height,
		Model:   p.model,
		Cost:    replicateImageCost,
		Latency: time.Since(start),
	}, nil
}
